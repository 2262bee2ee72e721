package thumbnails

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type result struct {
	markup string
	err    error
}

// gatedFetcher blocks every call until the test releases it.
type gatedFetcher struct {
	mu      sync.Mutex
	calls   []int
	gates   []chan result
	started chan int
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{started: make(chan int, 16)}
}

func (f *gatedFetcher) Fetch(ctx context.Context, pageID int) (string, error) {
	gate := make(chan result, 1)
	f.mu.Lock()
	f.calls = append(f.calls, pageID)
	f.gates = append(f.gates, gate)
	f.mu.Unlock()
	f.started <- pageID

	select {
	case r := <-gate:
		return r.markup, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (f *gatedFetcher) release(t *testing.T, call int, r result) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if call >= len(f.gates) {
		t.Fatalf("call %d never started (have %d)", call, len(f.gates))
	}
	f.gates[call] <- r
}

func (f *gatedFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *gatedFetcher) waitStarted(t *testing.T) int {
	t.Helper()
	select {
	case id := <-f.started:
		return id
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for fetch to start")
		return 0
	}
}

const twoThumbs = `<li><img src="/site/assets/files/7/a.jpg" data-filename="a.jpg" data-pageid="7" uk-tooltip="A"></li>` +
	`<li><img src="/site/assets/files/7/b.png" data-filename="b.png" data-pageid="7" uk-tooltip="B"></li>`

func TestCache_EnsureLoadedTwiceIssuesOneRequest(t *testing.T) {
	f := newGatedFetcher()
	c := NewCache(f)

	if !c.EnsureLoaded(context.Background(), 7) {
		t.Fatalf("expected first call to start a fetch")
	}
	if c.EnsureLoaded(context.Background(), 7) {
		t.Fatalf("expected second call to be a no-op while loading")
	}
	if got := c.State(7); got != StateLoading {
		t.Fatalf("expected loading, got %s", got)
	}

	f.waitStarted(t)
	f.release(t, 0, result{markup: twoThumbs})
	c.Wait()

	if f.callCount() != 1 {
		t.Fatalf("expected exactly one request, got %d", f.callCount())
	}
	entry := c.Entry(7)
	if entry.State != StateLoaded || len(entry.Candidates) != 2 {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if c.EnsureLoaded(context.Background(), 7) {
		t.Fatalf("expected loaded entry to stay cached")
	}
}

func TestCache_InvalidateThenEnsureLoadedRefetches(t *testing.T) {
	f := newGatedFetcher()
	c := NewCache(f)

	c.EnsureLoaded(context.Background(), 7)
	f.waitStarted(t)
	f.release(t, 0, result{markup: twoThumbs})
	c.Wait()

	c.Invalidate(7)
	if entry := c.Entry(7); entry.State != StateEmpty || entry.Markup != "" || entry.Candidates != nil {
		t.Fatalf("expected cleared entry, got %+v", entry)
	}
	if !c.EnsureLoaded(context.Background(), 7) {
		t.Fatalf("expected a new request after invalidate")
	}
	f.waitStarted(t)
	f.release(t, 1, result{markup: `<li><img src="/c.jpg" data-filename="c.jpg"></li>`})
	c.Wait()

	if f.callCount() != 2 {
		t.Fatalf("expected two requests, got %d", f.callCount())
	}
	entry := c.Entry(7)
	if len(entry.Candidates) != 1 || entry.Candidates[0].Filename != "c.jpg" {
		t.Fatalf("unexpected candidates: %+v", entry.Candidates)
	}
}

func TestCache_StaleResultIsDiscarded(t *testing.T) {
	f := newGatedFetcher()
	var settled []Entry
	var mu sync.Mutex
	c := NewCache(f, WithOnSettled(func(e Entry) {
		mu.Lock()
		settled = append(settled, e)
		mu.Unlock()
	}))

	c.EnsureLoaded(context.Background(), 9)
	f.waitStarted(t)

	if !c.ForceReload(context.Background(), 9) {
		t.Fatalf("expected force reload to start a fetch")
	}
	f.waitStarted(t)

	f.release(t, 1, result{markup: `<li><img src="/new.jpg" data-filename="new.jpg"></li>`})
	// Let the newer fetch land first.
	deadline := time.Now().Add(2 * time.Second)
	for c.State(9) != StateLoaded {
		if time.Now().After(deadline) {
			t.Fatalf("newer fetch never settled")
		}
		time.Sleep(time.Millisecond)
	}

	f.release(t, 0, result{markup: `<li><img src="/old.jpg" data-filename="old.jpg"></li>`})
	c.Wait()

	entry := c.Entry(9)
	if entry.State != StateLoaded || !strings.Contains(entry.Markup, "new.jpg") {
		t.Fatalf("stale response overwrote newer state: %+v", entry)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(settled) != 1 {
		t.Fatalf("expected one accepted settlement, got %d", len(settled))
	}
}

func TestCache_StaleResultDoesNotOverwriteLoading(t *testing.T) {
	f := newGatedFetcher()
	c := NewCache(f)

	c.EnsureLoaded(context.Background(), 3)
	f.waitStarted(t)
	c.ForceReload(context.Background(), 3)
	f.waitStarted(t)

	f.release(t, 0, result{err: errors.New("boom")})
	// The first fetch is stale; the entry must still be loading.
	time.Sleep(20 * time.Millisecond)
	if got := c.State(3); got != StateLoading {
		t.Fatalf("expected loading to survive stale failure, got %s", got)
	}

	f.release(t, 1, result{markup: twoThumbs})
	c.Wait()
	if got := c.State(3); got != StateLoaded {
		t.Fatalf("expected loaded, got %s", got)
	}
}

func TestCache_ErrorThenRetry(t *testing.T) {
	f := newGatedFetcher()
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c := NewCache(f, WithLogger(logger))

	c.EnsureLoaded(context.Background(), 9)
	f.waitStarted(t)
	f.release(t, 0, result{err: &StatusError{Code: 500}})
	c.Wait()

	entry := c.Entry(9)
	if entry.State != StateError || entry.Markup != "" || len(entry.Candidates) != 0 {
		t.Fatalf("unexpected entry after failure: %+v", entry)
	}
	var httpErr HTTPError
	if !errors.As(entry.Err, &httpErr) || httpErr.StatusCode() != 500 {
		t.Fatalf("expected status error, got %v", entry.Err)
	}
	if !strings.Contains(logs.String(), "load failed") {
		t.Fatalf("expected failure logged, got %q", logs.String())
	}

	if !c.EnsureLoaded(context.Background(), 9) {
		t.Fatalf("expected retry from error state")
	}
	f.waitStarted(t)
	f.release(t, 1, result{markup: twoThumbs})
	c.Wait()
	if got := c.State(9); got != StateLoaded {
		t.Fatalf("expected loaded after retry, got %s", got)
	}
}

func TestCache_NoFetcherSettlesAsError(t *testing.T) {
	c := NewCache(nil)
	c.EnsureLoaded(context.Background(), 1)
	c.Wait()
	entry := c.Entry(1)
	if entry.State != StateError || !errors.Is(entry.Err, ErrNoFetcher) {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestCache_GroupsAreIndependent(t *testing.T) {
	c := NewCache(FetcherFunc(func(_ context.Context, pageID int) (string, error) {
		return twoThumbs, nil
	}))
	c.EnsureLoaded(context.Background(), 2)
	c.EnsureLoaded(context.Background(), 1)
	c.Wait()

	if ids := c.PageIDs(); len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Fatalf("unexpected page ids: %v", ids)
	}
	c.Invalidate(1)
	if c.State(1) != StateEmpty || c.State(2) != StateLoaded {
		t.Fatalf("invalidate leaked across groups: 1=%s 2=%s", c.State(1), c.State(2))
	}
	if State(42).String() != "state(42)" || StateLoading.String() != "loading" {
		t.Fatalf("unexpected state strings")
	}
}
