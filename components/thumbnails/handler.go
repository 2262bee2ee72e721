package thumbnails

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/goliatone/go-imagefrompage/pkg/selection"
	pagethumbs "github.com/goliatone/go-imagefrompage/pkg/thumbnails"
)

// Handler builds a net/http handler with default options plus any overrides.
func Handler(fns ...OptionFn) http.Handler {
	return NewHandler(fns...)
}

func NewHandler(fns ...OptionFn) http.Handler {
	opts := NewOptions(fns...)
	return HandlerWithOptions(opts)
}

// HandlerWithOptions builds a handler over a fresh Renderer. A template that
// fails to compile yields a handler answering 500.
func HandlerWithOptions(opts Options) http.Handler {
	renderer, err := NewRenderer(opts)
	if err != nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		})
	}
	return renderer
}

// ServeHTTP answers GET/HEAD <route>?pageid=<id> with the page's fragment.
func (r *Renderer) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req == nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		w.Header().Set("Allow", http.MethodGet+", "+http.MethodHead)
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	if r.opts.Guard != nil {
		if err := r.opts.Guard(req); err != nil {
			writeError(w, err, http.StatusForbidden)
			return
		}
	}

	raw := strings.TrimSpace(req.URL.Query().Get(r.opts.PageIDParam))
	if _, err := strconv.Atoi(raw); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	pageID := selection.CoercePageID(raw)
	if pageID == 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	markup, err := r.Fragment(req.Context(), pageID)
	if err != nil {
		if errors.Is(err, ErrPageNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		writeError(w, err, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if req.Method == http.MethodHead {
		return
	}
	_, _ = w.Write([]byte(markup))
}

func writeError(w http.ResponseWriter, err error, fallback int) {
	if w == nil {
		return
	}
	code := fallback
	var httpErr pagethumbs.HTTPError
	if errors.As(err, &httpErr) && httpErr != nil {
		code = httpErr.StatusCode()
		if code <= 0 {
			code = fallback
		}
	}
	http.Error(w, http.StatusText(code), code)
}
