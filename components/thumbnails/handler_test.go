package thumbnails

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	pagethumbs "github.com/goliatone/go-imagefrompage/pkg/thumbnails"
)

func gallerySource() *StaticSource {
	return NewStaticSource(map[int][]Image{
		7: {
			{URL: "/files/7/a.jpg", Filename: "a.jpg", Description: "Sunset"},
			{URL: "/files/7/b.png", Filename: "b.png", Description: `B & "C"`, Width: 640, Height: 480},
		},
		9: {},
	})
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNewHandler_RendersFragment(t *testing.T) {
	h := NewHandler(WithSource(gallerySource()))

	rec := get(t, h, "/api/imagefrompage/thumbnails?pageid=7")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("expected html content-type, got %q", ct)
	}

	candidates, err := pagethumbs.ParseCandidates(rec.Body.String(), 0)
	if err != nil {
		t.Fatalf("parse fragment: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d: %s", len(candidates), rec.Body.String())
	}
	first := candidates[0]
	if first.Src != "/files/7/a.jpg" || first.Filename != "a.jpg" || first.PageID != 7 || first.Tooltip != "Sunset" {
		t.Fatalf("unexpected first candidate: %#v", first)
	}
	if candidates[1].Tooltip != `B & "C" (640x480)` {
		t.Fatalf("expected escaped tooltip to round-trip, got %q", candidates[1].Tooltip)
	}
	if !strings.Contains(rec.Body.String(), `width="100"`) {
		t.Fatalf("expected default thumb width in %s", rec.Body.String())
	}
}

func TestNewHandler_EmptyPageRendersNothing(t *testing.T) {
	h := NewHandler(WithSource(gallerySource()))

	rec := get(t, h, "/x?pageid=9")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != "" {
		t.Fatalf("expected empty fragment, got %q", rec.Body.String())
	}
}

func TestNewHandler_InvalidPageID(t *testing.T) {
	h := NewHandler(WithSource(gallerySource()))

	for _, target := range []string{"/x", "/x?pageid=", "/x?pageid=abc", "/x?pageid=-4", "/x?pageid=0"} {
		if rec := get(t, h, target); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected status 400, got %d", target, rec.Code)
		}
	}
}

func TestNewHandler_UnknownPage(t *testing.T) {
	h := NewHandler(WithSource(gallerySource()))

	if rec := get(t, h, "/x?pageid=404"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestNewHandler_SourceErrors(t *testing.T) {
	h := NewHandler(WithSource(SourceFunc(func(context.Context, int) ([]Image, error) {
		return nil, &pagethumbs.StatusError{Code: http.StatusServiceUnavailable}
	})))
	if rec := get(t, h, "/x?pageid=1"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}

	h = NewHandler(WithSource(SourceFunc(func(context.Context, int) ([]Image, error) {
		return nil, errors.New("boom")
	})))
	if rec := get(t, h, "/x?pageid=1"); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}

	h = NewHandler()
	if rec := get(t, h, "/x?pageid=1"); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500 without a source, got %d", rec.Code)
	}
}

func TestNewHandler_GuardRejects(t *testing.T) {
	h := NewHandler(
		WithSource(gallerySource()),
		WithGuard(func(r *http.Request) error {
			return &pagethumbs.StatusError{Code: http.StatusUnauthorized}
		}),
	)
	if rec := get(t, h, "/x?pageid=7"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}

	h = NewHandler(
		WithSource(gallerySource()),
		WithGuard(func(r *http.Request) error { return errors.New("nope") }),
	)
	if rec := get(t, h, "/x?pageid=7"); rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rec.Code)
	}
}

func TestNewHandler_MethodNotAllowed(t *testing.T) {
	h := NewHandler(WithSource(gallerySource()))

	req := httptest.NewRequest(http.MethodPost, "/x?pageid=7", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); !strings.Contains(allow, http.MethodGet) {
		t.Fatalf("expected Allow header, got %q", allow)
	}
}

func TestNewHandler_HeadHasNoBody(t *testing.T) {
	h := NewHandler(WithSource(gallerySource()))

	req := httptest.NewRequest(http.MethodHead, "/x?pageid=7", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.Len() != 0 {
		t.Fatalf("expected empty 200, got %d with %d bytes", rec.Code, rec.Body.Len())
	}
}

func TestNewHandler_CustomParamAndTemplate(t *testing.T) {
	h := NewHandler(
		WithSource(gallerySource()),
		WithPageIDParam("page"),
		WithTemplate(`{% for image in images %}[{{ image.Filename }}@{{ page_id }}]{% endfor %}`),
	)

	rec := get(t, h, "/x?page=7")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if got := rec.Body.String(); got != "[a.jpg@7][b.png@7]" {
		t.Fatalf("unexpected body %q", got)
	}
}

func TestHandlerWithOptions_BadTemplate(t *testing.T) {
	h := NewHandler(WithSource(gallerySource()), WithTemplate(`{% for %}`))
	if rec := get(t, h, "/x?pageid=7"); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
}

func TestRenderer_SkipsUnsafeAndTruncates(t *testing.T) {
	source := NewStaticSource(map[int][]Image{
		3: {
			{URL: "/files/3/one.jpg", Filename: "../one.jpg"},
			{URL: "", Filename: "missing-url.jpg"},
			{URL: "/files/3/dots.jpg", Filename: "..."},
			{URL: "/files/3/two.jpg", Filename: "two.jpg"},
			{URL: "/files/3/three.jpg", Filename: "three.jpg"},
		},
	})
	r, err := NewRenderer(NewOptions(WithSource(source), WithMaxImages(4)))
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}

	markup, err := r.Fragment(context.Background(), 3)
	if err != nil {
		t.Fatalf("fragment: %v", err)
	}
	candidates, err := pagethumbs.ParseCandidates(markup, 3)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var names []string
	for _, c := range candidates {
		names = append(names, c.Filename)
	}
	if got := strings.Join(names, ","); got != "one.jpg,two.jpg" {
		t.Fatalf("unexpected filenames %q", got)
	}
}

func TestRenderer_CachesUntilInvalidated(t *testing.T) {
	var calls atomic.Int32
	source := SourceFunc(func(_ context.Context, pageID int) ([]Image, error) {
		n := calls.Add(1)
		return []Image{{URL: "/f.jpg", Filename: fmt.Sprintf("v%d.jpg", n)}}, nil
	})
	r, err := NewRenderer(NewOptions(WithSource(source)))
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}

	first, _ := r.Fragment(context.Background(), 5)
	second, _ := r.Fragment(context.Background(), 5)
	if first != second || calls.Load() != 1 {
		t.Fatalf("expected cached fragment, got %d source calls", calls.Load())
	}
	if !r.Cached(5) {
		t.Fatalf("expected page 5 cached")
	}

	r.Invalidate(5)
	if r.Cached(5) {
		t.Fatalf("expected page 5 dropped")
	}
	third, _ := r.Fragment(context.Background(), 5)
	if calls.Load() != 2 || !strings.Contains(third, "v2.jpg") {
		t.Fatalf("expected a fresh render after invalidate, got %q", third)
	}

	r.Flush()
	if r.Cached(5) {
		t.Fatalf("expected flush to drop page 5")
	}
}

func TestRenderer_NoCacheWhenTTLZero(t *testing.T) {
	var calls atomic.Int32
	source := SourceFunc(func(context.Context, int) ([]Image, error) {
		calls.Add(1)
		return nil, nil
	})
	r, err := NewRenderer(NewOptions(WithSource(source), WithCacheTTL(0)))
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	_, _ = r.Fragment(context.Background(), 1)
	_, _ = r.Fragment(context.Background(), 1)
	if calls.Load() != 2 {
		t.Fatalf("expected every request to render, got %d", calls.Load())
	}
}

func TestRenderer_CollapsesConcurrentRenders(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	source := SourceFunc(func(context.Context, int) ([]Image, error) {
		calls.Add(1)
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return []Image{{URL: "/f.jpg", Filename: "f.jpg"}}, nil
	})
	r, err := NewRenderer(NewOptions(WithSource(source)))
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}

	var wg sync.WaitGroup
	results := make([]string, 4)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = r.Fragment(context.Background(), 2)
	}()
	<-started
	for i := 1; i < len(results); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = r.Fragment(context.Background(), 2)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("expected a single render, got %d", calls.Load())
	}
	for i, got := range results {
		if !strings.Contains(got, "f.jpg") {
			t.Fatalf("result %d missing fragment: %q", i, got)
		}
	}
}

func TestRenderer_InvalidateDuringRenderIsNotCached(t *testing.T) {
	source := NewStaticSource(map[int][]Image{7: {{URL: "/old.jpg", Filename: "old.jpg"}}})
	started := make(chan struct{})
	release := make(chan struct{})
	var gated atomic.Bool
	gated.Store(true)
	gate := SourceFunc(func(ctx context.Context, pageID int) ([]Image, error) {
		images, err := source.Images(ctx, pageID)
		if gated.CompareAndSwap(true, false) {
			close(started)
			<-release
		}
		return images, err
	})
	r, err := NewRenderer(NewOptions(WithSource(gate)))
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}

	done := make(chan string, 1)
	go func() {
		markup, _ := r.Fragment(context.Background(), 7)
		done <- markup
	}()
	<-started

	source.SetImages(7, []Image{{URL: "/new.jpg", Filename: "new.jpg"}})
	r.Invalidate(7)

	fresh, err := r.Fragment(context.Background(), 7)
	if err != nil {
		t.Fatalf("fragment: %v", err)
	}
	if !strings.Contains(fresh, "new.jpg") {
		t.Fatalf("request after invalidate joined the stale render: %q", fresh)
	}

	close(release)
	if stale := <-done; !strings.Contains(stale, "old.jpg") {
		t.Fatalf("in-flight caller should still get its render, got %q", stale)
	}
	if got, _ := r.Fragment(context.Background(), 7); !strings.Contains(got, "new.jpg") {
		t.Fatalf("stale render was cached after invalidate: %q", got)
	}
}

func TestRenderer_CancelledCallerDoesNotFailSharedRender(t *testing.T) {
	source := SourceFunc(func(ctx context.Context, pageID int) ([]Image, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return []Image{{URL: "/f.jpg", Filename: "f.jpg"}}, nil
	})
	r, err := NewRenderer(NewOptions(WithSource(source)))
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	markup, err := r.Fragment(ctx, 4)
	if err != nil || !strings.Contains(markup, "f.jpg") {
		t.Fatalf("expected render despite cancelled caller, got %q %v", markup, err)
	}
}

func TestRenderer_TemplateContext(t *testing.T) {
	r, err := NewRenderer(NewOptions(
		WithSource(gallerySource()),
		WithTemplate(`{{ page_id }}|{{ thumb_width }}|{{ rendered_at }}|{{ images|length }}`),
	))
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	got, err := r.Fragment(context.Background(), 7)
	if err != nil {
		t.Fatalf("fragment: %v", err)
	}
	if got != "7|100||2" {
		t.Fatalf("unexpected template context %q", got)
	}
}
