package thumbnails

import (
	"net/http"
	"time"
)

// DefaultTemplate renders one <li> per image. pongo2 escapes every value.
const DefaultTemplate = `{% for image in images %}<li><img src="{{ image.Src }}" data-filename="{{ image.Filename }}" data-pageid="{{ page_id }}" uk-tooltip="{{ image.Tooltip }}" alt="{{ image.Alt }}"{% if thumb_width %} width="{{ thumb_width }}"{% endif %}></li>{% endfor %}`

// GuardFunc rejects a request by returning an error. An error implementing
// thumbnails.HTTPError (pkg/thumbnails) sets the status; others answer 403.
type GuardFunc func(r *http.Request) error

type Options struct {
	RoutePath   string
	PageIDParam string
	Template    string
	CacheTTL    time.Duration
	MaxImages   int
	ThumbWidth  int
	Guard       GuardFunc

	Source ImageSource
}

type OptionFn func(*Options)

func DefaultOptions() Options {
	return Options{
		RoutePath:   "/api/imagefrompage/thumbnails",
		PageIDParam: "pageid",
		Template:    DefaultTemplate,
		CacheTTL:    5 * time.Minute,
		MaxImages:   200,
		ThumbWidth:  100,
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
	if opts.RoutePath == "" {
		opts.RoutePath = "/api/imagefrompage/thumbnails"
	}
	if opts.PageIDParam == "" {
		opts.PageIDParam = "pageid"
	}
	if opts.Template == "" {
		opts.Template = DefaultTemplate
	}
	if opts.CacheTTL < 0 {
		opts.CacheTTL = 0
	}
	if opts.MaxImages <= 0 {
		opts.MaxImages = 200
	}
	if opts.ThumbWidth < 0 {
		opts.ThumbWidth = 0
	}
	return opts
}

func WithRoutePath(path string) OptionFn {
	return func(o *Options) {
		if o == nil {
			return
		}
		o.RoutePath = path
	}
}

func WithPageIDParam(name string) OptionFn {
	return func(o *Options) {
		if o == nil {
			return
		}
		o.PageIDParam = name
	}
}

// WithTemplate overrides the pongo2 fragment template. It receives images
// (Src, Filename, Tooltip, Alt), page_id and thumb_width.
func WithTemplate(tpl string) OptionFn {
	return func(o *Options) {
		if o == nil {
			return
		}
		o.Template = tpl
	}
}

// WithCacheTTL sets how long rendered fragments are reused; 0 disables the
// cache.
func WithCacheTTL(ttl time.Duration) OptionFn {
	return func(o *Options) {
		if o == nil {
			return
		}
		o.CacheTTL = ttl
	}
}

func WithMaxImages(limit int) OptionFn {
	return func(o *Options) {
		if o == nil {
			return
		}
		o.MaxImages = limit
	}
}

func WithThumbWidth(width int) OptionFn {
	return func(o *Options) {
		if o == nil {
			return
		}
		o.ThumbWidth = width
	}
}

func WithGuard(guard GuardFunc) OptionFn {
	return func(o *Options) {
		if o == nil {
			return
		}
		o.Guard = guard
	}
}

func WithSource(source ImageSource) OptionFn {
	return func(o *Options) {
		if o == nil {
			return
		}
		o.Source = source
	}
}
