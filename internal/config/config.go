// Package config loads the YAML configuration of the imagefrompage command.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	theme "github.com/goliatone/go-theme"
	"gopkg.in/yaml.v3"

	imagethumbs "github.com/goliatone/go-imagefrompage/components/thumbnails"
	"github.com/goliatone/go-imagefrompage/pkg/picker"
)

// DefaultTimeout bounds thumbnail requests when the file sets none.
const DefaultTimeout = 15 * time.Second

// Config is the command configuration.
type Config struct {
	Endpoint    string        `yaml:"endpoint"`
	Timeout     time.Duration `yaml:"timeout"`
	Placeholder string        `yaml:"placeholder"`
	Loader      string        `yaml:"loader"`
	Theme       Theme         `yaml:"theme"`
	Server      Server        `yaml:"server"`
	Pages       []Page        `yaml:"pages"`
}

// Theme names the asset set used for the loader and placeholder images.
type Theme struct {
	Name        string            `yaml:"name"`
	Variant     string            `yaml:"variant"`
	AssetPrefix string            `yaml:"asset_prefix"`
	Assets      map[string]string `yaml:"assets"`
}

// Server configures the local thumbnail endpoint serving Pages.
type Server struct {
	RoutePath  string        `yaml:"route_path"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
	MaxImages  int           `yaml:"max_images"`
	ThumbWidth int           `yaml:"thumb_width"`
	Template   string        `yaml:"template"`
}

// Page lists the images stored on one page.
type Page struct {
	ID     int                 `yaml:"id"`
	Images []imagethumbs.Image `yaml:"images"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{Timeout: DefaultTimeout}
}

// Load reads and validates the YAML file at path.
func Load(path string) (Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML, rejecting unknown keys, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalise() {
	c.Endpoint = strings.TrimSpace(c.Endpoint)
	c.Placeholder = strings.TrimSpace(c.Placeholder)
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	c.Theme.Name = strings.TrimSpace(c.Theme.Name)
	c.Theme.Variant = strings.TrimSpace(c.Theme.Variant)
	c.Theme.AssetPrefix = strings.TrimSpace(c.Theme.AssetPrefix)
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	var errs []error
	if c.Endpoint != "" {
		u, err := url.Parse(c.Endpoint)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("config: endpoint: %w", err))
		case u.Scheme != "http" && u.Scheme != "https":
			errs = append(errs, fmt.Errorf("config: endpoint %q must be an http(s) URL", c.Endpoint))
		}
	}
	seen := make(map[int]bool, len(c.Pages))
	for i, page := range c.Pages {
		if page.ID <= 0 {
			errs = append(errs, fmt.Errorf("config: pages[%d]: id must be positive", i))
			continue
		}
		if seen[page.ID] {
			errs = append(errs, fmt.Errorf("config: pages[%d]: duplicate page id %d", i, page.ID))
		}
		seen[page.ID] = true
	}
	return errors.Join(errs...)
}

// HasPages reports whether the file declares pages to serve locally.
func (c Config) HasPages() bool {
	return len(c.Pages) > 0
}

// PageIDs lists the declared pages, ascending.
func (c Config) PageIDs() []int {
	ids := make([]int, 0, len(c.Pages))
	for _, page := range c.Pages {
		ids = append(ids, page.ID)
	}
	sort.Ints(ids)
	return ids
}

// Source builds an in-memory image source from Pages.
func (c Config) Source() *imagethumbs.StaticSource {
	pages := make(map[int][]imagethumbs.Image, len(c.Pages))
	for _, page := range c.Pages {
		pages[page.ID] = page.Images
	}
	return imagethumbs.NewStaticSource(pages)
}

// ComponentOptions configures the local thumbnail endpoint.
func (c Config) ComponentOptions() []imagethumbs.OptionFn {
	fns := []imagethumbs.OptionFn{imagethumbs.WithSource(c.Source())}
	if c.Server.RoutePath != "" {
		fns = append(fns, imagethumbs.WithRoutePath(c.Server.RoutePath))
	}
	if c.Server.CacheTTL > 0 {
		fns = append(fns, imagethumbs.WithCacheTTL(c.Server.CacheTTL))
	}
	if c.Server.MaxImages > 0 {
		fns = append(fns, imagethumbs.WithMaxImages(c.Server.MaxImages))
	}
	if c.Server.ThumbWidth > 0 {
		fns = append(fns, imagethumbs.WithThumbWidth(c.Server.ThumbWidth))
	}
	if strings.TrimSpace(c.Server.Template) != "" {
		fns = append(fns, imagethumbs.WithTemplate(c.Server.Template))
	}
	return fns
}

// RendererConfig returns the theme selection, or nil when no theme is named.
// Asset keys resolve against Assets, then AssetPrefix joined with the key's
// last segment plus ".svg".
func (c Config) RendererConfig() *theme.RendererConfig {
	t := c.Theme
	if t.Name == "" && t.AssetPrefix == "" && len(t.Assets) == 0 {
		return nil
	}
	return &theme.RendererConfig{
		Theme:    t.Name,
		Variant:  t.Variant,
		AssetURL: t.assetURL,
	}
}

func (t Theme) assetURL(key string) string {
	if path, ok := t.Assets[key]; ok {
		return joinAsset(t.AssetPrefix, path)
	}
	if t.AssetPrefix == "" {
		return ""
	}
	name := key
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[idx+1:]
	}
	return joinAsset(t.AssetPrefix, name+".svg")
}

func joinAsset(prefix, path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if prefix == "" || strings.Contains(path, "://") || strings.HasPrefix(path, "/") {
		return path
	}
	return strings.TrimRight(prefix, "/") + "/" + strings.TrimLeft(path, "/")
}

// PickerOptions translates the file into controller options. endpoint
// overrides the configured one when not empty.
func (c Config) PickerOptions(endpoint string) []picker.OptionFn {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = c.Endpoint
	}
	fns := []picker.OptionFn{
		picker.WithEndpoint(endpoint),
		picker.WithTimeout(c.Timeout),
	}
	if cfg := c.RendererConfig(); cfg != nil {
		fns = append(fns, picker.WithTheme(cfg))
	}
	if c.Placeholder != "" {
		fns = append(fns, picker.WithPlaceholder(c.Placeholder))
	}
	if c.Loader != "" {
		fns = append(fns, picker.WithLoader(c.Loader))
	}
	return fns
}
