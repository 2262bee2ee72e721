package thumbnails

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/flosch/pongo2/v6"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/goliatone/go-imagefrompage/pkg/selection"
	pagethumbs "github.com/goliatone/go-imagefrompage/pkg/thumbnails"
)

// ErrMissingSource is returned when no ImageSource is configured.
var ErrMissingSource = errors.New("thumbnails: missing image source")

type imageView struct {
	Src      string
	Filename string
	Tooltip  string
	Alt      string
}

// Renderer turns a page's images into the picker fragment.
type Renderer struct {
	opts  Options
	tpl   *pongo2.Template
	cache *gocache.Cache
	group singleflight.Group

	mu      sync.Mutex
	flushes uint64
	epoch   map[int]uint64
}

// NewRenderer compiles the fragment template.
func NewRenderer(opts Options) (*Renderer, error) {
	opts = NewOptions(func(o *Options) { *o = opts })
	tpl, err := pongo2.FromString(opts.Template)
	if err != nil {
		return nil, fmt.Errorf("thumbnails: compile template: %w", err)
	}
	r := &Renderer{opts: opts, tpl: tpl, epoch: make(map[int]uint64)}
	if opts.CacheTTL > 0 {
		r.cache = gocache.New(opts.CacheTTL, 2*opts.CacheTTL)
	}
	return r, nil
}

// Fragment returns the rendered markup for pageID, from cache when fresh.
func (r *Renderer) Fragment(ctx context.Context, pageID int) (string, error) {
	if pageID <= 0 {
		return "", &pagethumbs.StatusError{Code: http.StatusBadRequest, Err: fmt.Errorf("thumbnails: invalid page id %d", pageID)}
	}
	key := cacheKey(pageID)
	if r.cache != nil {
		if cached, ok := r.cache.Get(key); ok {
			if markup, ok := cached.(string); ok {
				return markup, nil
			}
		}
	}

	if ctx == nil {
		ctx = context.Background()
	}
	// Shared renders outlive any single caller's cancellation.
	renderCtx := context.WithoutCancel(ctx)
	v, err, _ := r.group.Do(key, func() (any, error) {
		epoch := r.currentEpoch(pageID)
		markup, err := r.render(renderCtx, pageID)
		if err != nil {
			return "", err
		}
		r.store(pageID, epoch, markup)
		return markup, nil
	})
	if err != nil {
		return "", err
	}
	markup, _ := v.(string)
	return markup, nil
}

// Invalidate drops the cached fragment of pageID. A render already in
// flight still answers its callers but is not cached, and later callers do
// not join it.
func (r *Renderer) Invalidate(pageID int) {
	if r == nil {
		return
	}
	key := cacheKey(pageID)
	r.mu.Lock()
	r.epoch[pageID]++
	if r.cache != nil {
		r.cache.Delete(key)
	}
	r.mu.Unlock()
	r.group.Forget(key)
}

func (r *Renderer) currentEpoch(pageID int) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushes + r.epoch[pageID]
}

// store caches markup unless pageID was invalidated since epoch was read.
func (r *Renderer) store(pageID int, epoch uint64, markup string) {
	if r.cache == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.flushes+r.epoch[pageID] != epoch {
		return
	}
	r.cache.Set(cacheKey(pageID), markup, gocache.DefaultExpiration)
}

// Flush drops every cached fragment. Renders in flight are not cached.
func (r *Renderer) Flush() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes++
	if r.cache != nil {
		r.cache.Flush()
	}
}

// Cached reports whether a fragment for pageID is currently cached.
func (r *Renderer) Cached(pageID int) bool {
	if r == nil || r.cache == nil {
		return false
	}
	_, ok := r.cache.Get(cacheKey(pageID))
	return ok
}

func (r *Renderer) render(ctx context.Context, pageID int) (string, error) {
	if r.opts.Source == nil {
		return "", ErrMissingSource
	}
	images, err := r.opts.Source.Images(ctx, pageID)
	if err != nil {
		return "", err
	}
	if len(images) > r.opts.MaxImages {
		images = images[:r.opts.MaxImages]
	}

	views := make([]imageView, 0, len(images))
	for _, img := range images {
		filename := selection.SanitizeFilename(img.Filename)
		if filename == "" || strings.TrimSpace(img.URL) == "" {
			continue
		}
		views = append(views, imageView{
			Src:      strings.TrimSpace(img.URL),
			Filename: filename,
			Tooltip:  img.Tooltip(),
			Alt:      strings.TrimSpace(img.Description),
		})
	}

	out, err := r.tpl.Execute(pongo2.Context{
		"images":      views,
		"page_id":     pageID,
		"thumb_width": r.opts.ThumbWidth,
	})
	if err != nil {
		return "", fmt.Errorf("thumbnails: render page %d: %w", pageID, err)
	}
	return out, nil
}

func cacheKey(pageID int) string {
	return "page:" + strconv.Itoa(pageID)
}
