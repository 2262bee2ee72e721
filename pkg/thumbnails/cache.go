package thumbnails

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
)

// SettledFunc observes every accepted fetch result. It is called from the
// fetch goroutine after the cache lock has been released.
type SettledFunc func(Entry)

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithLogger sets the logger used for fetch diagnostics.
func WithLogger(logger *slog.Logger) CacheOption {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithOnSettled registers the settlement observer.
func WithOnSettled(fn SettledFunc) CacheOption {
	return func(c *Cache) {
		c.onSettled = fn
	}
}

// WithParser overrides how fetched markup is turned into candidates.
func WithParser(fn func(markup string, pageID int) ([]Candidate, error)) CacheOption {
	return func(c *Cache) {
		if fn != nil {
			c.parse = fn
		}
	}
}

type entry struct {
	state      State
	markup     string
	candidates []Candidate
	generation uint64
	err        error
}

// Cache lazily loads thumbnail markup per group.
type Cache struct {
	mu      sync.Mutex
	fetcher Fetcher
	entries map[int]*entry
	logger  *slog.Logger
	parse   func(string, int) ([]Candidate, error)

	onSettled SettledFunc
	inflight  sync.WaitGroup
}

// ErrNoFetcher is recorded when a cache without fetcher is asked to load.
var ErrNoFetcher = errors.New("thumbnails: no fetcher configured")

// NewCache builds a cache over fetcher.
func NewCache(fetcher Fetcher, opts ...CacheOption) *Cache {
	c := &Cache{
		fetcher: fetcher,
		entries: make(map[int]*entry),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		parse:   ParseCandidates,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// EnsureLoaded starts a fetch for pageID when its entry is Empty or Error.
// Loading and Loaded entries are left alone. It reports whether a fetch was
// started.
func (c *Cache) EnsureLoaded(ctx context.Context, pageID int) bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	e := c.slot(pageID)
	if e.state == StateLoading || e.state == StateLoaded {
		c.mu.Unlock()
		return false
	}
	e.state = StateLoading
	e.markup = ""
	e.candidates = nil
	e.err = nil
	e.generation++
	gen := e.generation
	c.inflight.Add(1)
	c.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	go c.run(ctx, pageID, gen)
	return true
}

// Invalidate returns pageID's entry to Empty whatever its state. A fetch still
// in flight for the entry will be discarded when it completes.
func (c *Cache) Invalidate(pageID int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.slot(pageID)
	e.state = StateEmpty
	e.markup = ""
	e.candidates = nil
	e.err = nil
	e.generation++
}

// ForceReload invalidates pageID and starts a fresh fetch.
func (c *Cache) ForceReload(ctx context.Context, pageID int) bool {
	c.Invalidate(pageID)
	return c.EnsureLoaded(ctx, pageID)
}

// Entry returns a snapshot of pageID's slot; unknown groups read as Empty.
func (c *Cache) Entry(pageID int) Entry {
	if c == nil {
		return Entry{PageID: pageID}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[pageID]
	if !ok {
		return Entry{PageID: pageID, State: StateEmpty}
	}
	return snapshot(pageID, e)
}

// State is shorthand for Entry(pageID).State.
func (c *Cache) State(pageID int) State {
	return c.Entry(pageID).State
}

// PageIDs lists the groups the cache has seen, ascending.
func (c *Cache) PageIDs() []int {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]int, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Wait blocks until every fetch started so far has settled.
func (c *Cache) Wait() {
	if c == nil {
		return
	}
	c.inflight.Wait()
}

func (c *Cache) run(ctx context.Context, pageID int, gen uint64) {
	defer c.inflight.Done()

	var (
		markup string
		err    error
	)
	if c.fetcher == nil {
		err = ErrNoFetcher
	} else {
		markup, err = c.fetcher.Fetch(ctx, pageID)
	}

	var candidates []Candidate
	if err == nil {
		candidates, err = c.parse(markup, pageID)
	}

	settled, ok := c.settle(pageID, gen, markup, candidates, err)
	if !ok {
		c.logger.Debug("thumbnails: discarded stale result",
			slog.Int("pageid", pageID),
			slog.Uint64("generation", gen),
		)
		return
	}
	if settled.State == StateError {
		c.logger.Warn("thumbnails: load failed",
			slog.Int("pageid", pageID),
			slog.Any("error", settled.Err),
		)
	} else {
		c.logger.Debug("thumbnails: loaded",
			slog.Int("pageid", pageID),
			slog.Int("candidates", len(settled.Candidates)),
		)
	}
	if c.onSettled != nil {
		c.onSettled(settled)
	}
}

func (c *Cache) settle(pageID int, gen uint64, markup string, candidates []Candidate, err error) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[pageID]
	if !ok || e.generation != gen || e.state != StateLoading {
		return Entry{}, false
	}
	if err != nil {
		e.state = StateError
		e.markup = ""
		e.candidates = nil
		e.err = err
	} else {
		e.state = StateLoaded
		e.markup = markup
		e.candidates = candidates
		e.err = nil
	}
	return snapshot(pageID, e), true
}

func (c *Cache) slot(pageID int) *entry {
	e, ok := c.entries[pageID]
	if !ok {
		e = &entry{}
		c.entries[pageID] = e
	}
	return e
}

func snapshot(pageID int, e *entry) Entry {
	out := Entry{
		PageID:     pageID,
		State:      e.state,
		Markup:     e.markup,
		Generation: e.generation,
		Err:        e.err,
	}
	if len(e.candidates) > 0 {
		out.Candidates = append([]Candidate(nil), e.candidates...)
	}
	return out
}
