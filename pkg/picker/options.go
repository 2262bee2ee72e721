package picker

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	theme "github.com/goliatone/go-theme"
	"github.com/microcosm-cc/bluemonday"

	"github.com/goliatone/go-imagefrompage/pkg/thumbnails"
)

// Theme asset keys resolved through RendererConfig.AssetURL.
const (
	AssetLoader      = "imagefrompage.loader"
	AssetPlaceholder = "imagefrompage.placeholder"
)

// DefaultLoader is the spinner shown in a group while its thumbnails load.
const DefaultLoader = `<svg width="38" height="38" xmlns="http://www.w3.org/2000/svg" stroke="#000"><g transform="translate(1 1)" stroke-width="2" fill="none" fill-rule="evenodd"><circle stroke-opacity=".5" cx="18" cy="18" r="18"/><path d="M36 18c0-9.94-8.06-18-18-18"><animateTransform attributeName="transform" type="rotate" from="0 18 18" to="360 18 18" dur="1s" repeatCount="indefinite"/></path></g></svg>`

// Selectors names the classes, attributes and events of the widget markup.
type Selectors struct {
	Field        string
	Initialised  string
	InstanceAttr string
	Panel        string
	Caption      string
	ValueInput   string
	Group        string
	Collapsed    string
	Header       string
	List         string
	EditLink     string
	Loading      string
	Placeholder  string
	LoadState    string

	ClickEvent string
	EditEvent  string
}

// DefaultSelectors matches the markup rendered by the host CMS.
func DefaultSelectors() Selectors {
	return Selectors{
		Field:        "InputfieldImageFromPage",
		Initialised:  "imagefrompage_initialised",
		InstanceAttr: "data-imagefrompage-id",
		Panel:        "uk-panel",
		Caption:      "uk-thumbnail-caption",
		ValueInput:   "imagefrompage_value",
		Group:        "imagefrompage_thumbholder",
		Collapsed:    "InputfieldStateCollapsed",
		Header:       "InputfieldHeader",
		List:         "uk-thumbnav",
		EditLink:     "imagefrompage_editimages",
		Loading:      "imagefrompage_loading",
		Placeholder:  "data-src",
		LoadState:    "data-load-state",
		ClickEvent:   "click",
		EditEvent:    "pw-modal-closed",
	}
}

func (s Selectors) withDefaults() Selectors {
	d := DefaultSelectors()
	fill := func(v *string, def string) {
		if strings.TrimSpace(*v) == "" {
			*v = def
		}
	}
	fill(&s.Field, d.Field)
	fill(&s.Initialised, d.Initialised)
	fill(&s.InstanceAttr, d.InstanceAttr)
	fill(&s.Panel, d.Panel)
	fill(&s.Caption, d.Caption)
	fill(&s.ValueInput, d.ValueInput)
	fill(&s.Group, d.Group)
	fill(&s.Collapsed, d.Collapsed)
	fill(&s.Header, d.Header)
	fill(&s.List, d.List)
	fill(&s.EditLink, d.EditLink)
	fill(&s.Loading, d.Loading)
	fill(&s.Placeholder, d.Placeholder)
	fill(&s.LoadState, d.LoadState)
	fill(&s.ClickEvent, d.ClickEvent)
	fill(&s.EditEvent, d.EditEvent)
	return s
}

// Options configures a Controller.
type Options struct {
	// Endpoint is the thumbnail URL; "&pageid=<id>" is appended per group.
	Endpoint    string
	Client      *http.Client
	Timeout     time.Duration
	Fetcher     thumbnails.Fetcher
	Loader      string
	Placeholder string
	Logger      *slog.Logger
	Theme       *theme.RendererConfig
	Selectors   Selectors
	Policy      *bluemonday.Policy
	// Context scopes fetches started from event handlers.
	Context context.Context
	// ID forces the instance id instead of reusing or generating one.
	ID string
}

type OptionFn func(*Options)

func DefaultOptions() Options {
	return Options{
		Timeout:   15 * time.Second,
		Loader:    DefaultLoader,
		Selectors: DefaultSelectors(),
	}
}

func NewOptions(fns ...OptionFn) Options {
	opts := DefaultOptions()
	for _, fn := range fns {
		if fn == nil {
			continue
		}
		fn(&opts)
	}
	opts.Endpoint = strings.TrimSpace(opts.Endpoint)
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Policy == nil {
		opts.Policy = FragmentPolicy()
	}
	opts.Selectors = opts.Selectors.withDefaults()
	if opts.Loader == "" {
		opts.Loader = themeLoader(opts.Theme)
	}
	if opts.Loader == "" {
		opts.Loader = DefaultLoader
	}
	if opts.Placeholder == "" {
		opts.Placeholder = themeAsset(opts.Theme, AssetPlaceholder)
	}
	return opts
}

func WithEndpoint(endpoint string) OptionFn {
	return func(o *Options) {
		if o == nil {
			return
		}
		o.Endpoint = endpoint
	}
}

func WithHTTPClient(client *http.Client) OptionFn {
	return func(o *Options) {
		if o == nil {
			return
		}
		o.Client = client
	}
}

func WithTimeout(timeout time.Duration) OptionFn {
	return func(o *Options) {
		if o == nil {
			return
		}
		o.Timeout = timeout
	}
}

// WithFetcher replaces the HTTP fetcher, e.g. with an in-process source.
func WithFetcher(fetcher thumbnails.Fetcher) OptionFn {
	return func(o *Options) {
		if o == nil {
			return
		}
		o.Fetcher = fetcher
	}
}

// WithLoader sets the markup shown while a group loads. An empty string falls
// back to the theme asset, then to DefaultLoader.
func WithLoader(markup string) OptionFn {
	return func(o *Options) {
		if o == nil {
			return
		}
		o.Loader = markup
	}
}

// WithPlaceholder overrides the preview image shown with no selection. By
// default the preview's data-src attribute is used.
func WithPlaceholder(src string) OptionFn {
	return func(o *Options) {
		if o == nil {
			return
		}
		o.Placeholder = strings.TrimSpace(src)
	}
}

func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Options) {
		if o == nil {
			return
		}
		o.Logger = logger
	}
}

// WithTheme resolves loader and placeholder assets from a theme.
func WithTheme(cfg *theme.RendererConfig) OptionFn {
	return func(o *Options) {
		if o == nil {
			return
		}
		o.Theme = cfg
		if cfg != nil && o.Loader == DefaultLoader {
			o.Loader = ""
		}
	}
}

func WithSelectors(sel Selectors) OptionFn {
	return func(o *Options) {
		if o == nil {
			return
		}
		o.Selectors = sel
	}
}

// WithPolicy overrides the sanitizer applied to fetched thumbnail markup.
func WithPolicy(policy *bluemonday.Policy) OptionFn {
	return func(o *Options) {
		if o == nil {
			return
		}
		o.Policy = policy
	}
}

func WithContext(ctx context.Context) OptionFn {
	return func(o *Options) {
		if o == nil {
			return
		}
		o.Context = ctx
	}
}

func WithID(id string) OptionFn {
	return func(o *Options) {
		if o == nil {
			return
		}
		o.ID = strings.TrimSpace(id)
	}
}

func (o Options) fetcher() thumbnails.Fetcher {
	if o.Fetcher != nil {
		return o.Fetcher
	}
	if o.Endpoint == "" {
		return nil
	}
	client := o.Client
	if client == nil {
		client = &http.Client{Timeout: o.Timeout}
	}
	return thumbnails.NewHTTPFetcher(o.Endpoint, client)
}

func themeAsset(cfg *theme.RendererConfig, key string) string {
	if cfg == nil || cfg.AssetURL == nil {
		return ""
	}
	return strings.TrimSpace(cfg.AssetURL(key))
}

func themeLoader(cfg *theme.RendererConfig) string {
	src := themeAsset(cfg, AssetLoader)
	if src == "" {
		return ""
	}
	return `<img src="` + htmlAttrEscaper.Replace(src) + `" alt="" width="38" height="38">`
}

var htmlAttrEscaper = strings.NewReplacer(`&`, "&amp;", `"`, "&quot;", `<`, "&lt;", `>`, "&gt;")
