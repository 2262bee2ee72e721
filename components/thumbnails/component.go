package thumbnails

import (
	"net/http"
	"sync"
)

// Component wraps the fragment renderer, its configuration and routing
// helpers. The renderer is built lazily and shared by Handler and
// RegisterRoutes so Invalidate reaches the mounted cache.
type Component struct {
	opts Options

	once     sync.Once
	renderer *Renderer
	err      error
}

// New constructs a new component with default options plus any overrides.
func New(fns ...OptionFn) *Component {
	opts := NewOptions(fns...)
	return &Component{opts: opts}
}

// Options returns a copy of the component configuration.
func (c *Component) Options() Options {
	if c == nil {
		return DefaultOptions()
	}
	return NewOptions(func(o *Options) { *o = c.opts })
}

// Renderer returns the shared renderer, compiling the template on first use.
func (c *Component) Renderer() (*Renderer, error) {
	if c == nil {
		return NewRenderer(DefaultOptions())
	}
	c.once.Do(func() {
		c.renderer, c.err = NewRenderer(c.opts)
	})
	return c.renderer, c.err
}

// Handler returns a net/http handler serving thumbnail fragments.
func (c *Component) Handler() http.Handler {
	if c == nil {
		return Handler()
	}
	renderer, err := c.Renderer()
	if err != nil {
		return HandlerWithOptions(c.opts)
	}
	return renderer
}

// RegisterRoutes registers the component handler under basePath on mux.
func (c *Component) RegisterRoutes(mux Mux, basePath string) (string, error) {
	if c == nil {
		return RegisterRoutes(mux, basePath)
	}
	return registerHandler(mux, basePath, c.opts.RoutePath, c.Handler())
}

// Invalidate drops the cached fragment of pageID, e.g. after its images
// were edited.
func (c *Component) Invalidate(pageID int) {
	if c == nil {
		return
	}
	renderer, err := c.Renderer()
	if err != nil {
		return
	}
	renderer.Invalidate(pageID)
}
