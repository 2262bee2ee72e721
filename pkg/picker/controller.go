package picker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/net/html"

	"github.com/goliatone/go-imagefrompage/pkg/dom"
	"github.com/goliatone/go-imagefrompage/pkg/selection"
	"github.com/goliatone/go-imagefrompage/pkg/thumbnails"
)

var (
	ErrMissingDocument = errors.New("picker: missing document")
	ErrMissingRoot     = errors.New("picker: missing widget root")
	ErrMissingElement  = errors.New("picker: missing widget element")
	ErrUnknownGroup    = errors.New("picker: unknown group")
)

// State is the controller lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateReady
)

func (s State) String() string {
	if s == StateReady {
		return "ready"
	}
	return "uninitialized"
}

// PreviewState tells whether the preview shows a chosen image.
type PreviewState int

const (
	NoSelection PreviewState = iota
	HasSelection
)

func (s PreviewState) String() string {
	if s == HasSelection {
		return "has-selection"
	}
	return "no-selection"
}

// Listener keys; fixed so that binding the same nodes twice never stacks
// handlers, whichever controller attempts it.
const (
	keyClear  = "imagefrompage.clear"
	keyToggle = "imagefrompage.toggle"
	keyPick   = "imagefrompage.pick"
	keyEdited = "imagefrompage.edited"
)

type group struct {
	pageID    int
	holder    *html.Node
	header    *html.Node
	list      *html.Node
	collapsed bool
}

// GroupInfo is a snapshot of one candidate group.
type GroupInfo struct {
	PageID     int
	Collapsed  bool
	State      thumbnails.State
	Rendered   int
	Generation uint64
}

// Controller drives one image-from-page widget.
type Controller struct {
	id     string
	doc    *dom.Document
	root   *html.Node
	opts   Options
	sel    Selectors
	logger *slog.Logger
	cache  *thumbnails.Cache

	state   State
	preview PreviewState
	value   selection.Value

	input       *html.Node
	image       *html.Node
	caption     *html.Node
	clear       *html.Node
	placeholder string

	groups map[int]*group
	order  []int
}

// New resolves the widget's nodes under root and reads its stored value. The
// controller is inert until Bind is called.
func New(doc *dom.Document, root *html.Node, fns ...OptionFn) (*Controller, error) {
	if doc == nil {
		return nil, ErrMissingDocument
	}
	if root == nil {
		return nil, ErrMissingRoot
	}
	opts := NewOptions(fns...)
	c := &Controller{
		doc:    doc,
		root:   root,
		opts:   opts,
		sel:    opts.Selectors,
		logger: opts.Logger,
		groups: make(map[int]*group),
	}
	c.cache = thumbnails.NewCache(opts.fetcher(),
		thumbnails.WithLogger(opts.Logger),
		thumbnails.WithOnSettled(c.onSettled),
	)

	var err error
	doc.Do(func(*html.Node) {
		err = c.resolveLocked()
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Controller) resolveLocked() error {
	sel := c.sel

	c.id = c.opts.ID
	if c.id == "" {
		c.id = dom.AttrOr(c.root, sel.InstanceAttr, "")
	}
	if c.id == "" {
		c.id = uuid.NewString()
	}

	c.input = dom.Find(c.root, dom.All(dom.Tag("input"), dom.Class(sel.ValueInput)))
	if c.input == nil {
		return fmt.Errorf("%w: value input .%s", ErrMissingElement, sel.ValueInput)
	}
	panel := dom.Find(c.root, dom.Class(sel.Panel))
	if panel == nil {
		return fmt.Errorf("%w: preview panel .%s", ErrMissingElement, sel.Panel)
	}
	c.image = dom.Find(panel, dom.Tag("img"))
	if c.image == nil {
		return fmt.Errorf("%w: preview image", ErrMissingElement)
	}
	c.caption = dom.Find(panel, dom.Class(sel.Caption))
	if spans := dom.ChildElements(panel, dom.Tag("span")); len(spans) > 0 {
		c.clear = spans[0]
	}

	c.placeholder = c.opts.Placeholder
	if c.placeholder == "" {
		c.placeholder = dom.AttrOr(c.image, sel.Placeholder, "")
	}

	for _, holder := range dom.ByClass(c.root, sel.Group) {
		list := dom.Find(holder, dom.Class(sel.List))
		if list == nil {
			c.logger.Warn("picker: group without candidate list", slog.String("widget", c.id))
			continue
		}
		pageID := selection.CoercePageID(dom.AttrOr(list, thumbnails.AttrPageID, ""))
		if pageID == 0 {
			c.logger.Warn("picker: group without page id", slog.String("widget", c.id))
			continue
		}
		if _, dup := c.groups[pageID]; dup {
			c.logger.Warn("picker: duplicate group", slog.String("widget", c.id), slog.Int("pageid", pageID))
			continue
		}
		c.groups[pageID] = &group{
			pageID:    pageID,
			holder:    holder,
			header:    dom.Find(holder, dom.Class(sel.Header)),
			list:      list,
			collapsed: dom.HasClass(holder, sel.Collapsed),
		}
		c.order = append(c.order, pageID)
	}

	stored := dom.AttrOr(c.input, "value", "")
	c.value = selection.FromSerialized(stored)
	if canonical := c.value.Serialize(); canonical != stored {
		if stored != "" {
			c.logger.Debug("picker: stored value normalized",
				slog.String("widget", c.id),
				slog.String("stored", stored),
			)
		}
		dom.SetAttr(c.input, "value", canonical)
	}
	if c.value.IsEmpty() {
		c.preview = NoSelection
	} else {
		c.preview = HasSelection
	}
	return nil
}

// Bind attaches the widget's listeners and marks the root as initialised.
// It reports false when the controller was already bound or another
// controller already owns the widget.
func (c *Controller) Bind() bool {
	bound := false
	c.doc.Do(func(*html.Node) {
		bound = c.bindLocked()
	})
	return bound
}

func (c *Controller) bindLocked() bool {
	if c.state == StateReady {
		return false
	}
	sel := c.sel
	if c.doc.HasListenerLocked(c.root, sel.EditEvent, keyEdited) {
		c.logger.Debug("picker: widget already bound elsewhere", slog.String("widget", c.id))
		return false
	}

	if c.clear != nil {
		c.doc.OnLocked(c.clear, sel.ClickEvent, keyClear, func(*dom.Event) {
			c.clearLocked()
		})
	}

	for _, pageID := range c.order {
		g := c.groups[pageID]
		if g.header != nil {
			c.doc.DelegateLocked(g.holder, sel.ClickEvent, keyToggle, dom.Class(sel.Header), func(*dom.Event) {
				if g.collapsed {
					c.expandLocked(c.opts.Context, g)
					return
				}
				c.collapseLocked(g)
			})
		}
		c.doc.DelegateLocked(g.list, sel.ClickEvent, keyPick, c.isCandidate, func(ev *dom.Event) {
			cand, ok := thumbnails.CandidateFromNode(ev.Matched, g.pageID)
			if !ok {
				return
			}
			c.selectLocked(cand)
		})
	}

	c.doc.DelegateLocked(c.root, sel.EditEvent, keyEdited, dom.Class(sel.EditLink), func(ev *dom.Event) {
		pageID := c.groupForEditLink(ev.Matched)
		if pageID == 0 {
			c.logger.Warn("picker: edit signal without group", slog.String("widget", c.id))
			return
		}
		c.editedLocked(c.opts.Context, c.groups[pageID])
	})

	dom.AddClass(c.root, sel.Initialised)
	dom.SetAttr(c.root, sel.InstanceAttr, c.id)
	c.state = StateReady
	return true
}

func (c *Controller) isCandidate(n *html.Node) bool {
	if !dom.IsElement(n) || n.Data != "img" {
		return false
	}
	name, _ := dom.Attr(n, thumbnails.AttrFilename)
	return strings.TrimSpace(name) != ""
}

// BoundLocked reports whether root is a widget a live controller owns: it
// carries the marker class and its listeners are registered in doc. A copy
// of a bound widget keeps the marker but has no listeners. Call it under
// the document lock.
func BoundLocked(doc *dom.Document, root *html.Node, sel Selectors) bool {
	sel = sel.withDefaults()
	return dom.HasClass(root, sel.Initialised) && doc.HasListenerLocked(root, sel.EditEvent, keyEdited)
}

func (c *Controller) groupForEditLink(link *html.Node) int {
	if link == nil {
		return 0
	}
	lists := dom.Siblings(link, dom.Class(c.sel.List))
	if len(lists) == 0 {
		if holder := dom.Closest(link, dom.Class(c.sel.Group)); holder != nil {
			if l := dom.Find(holder, dom.Class(c.sel.List)); l != nil {
				lists = append(lists, l)
			}
		}
	}
	if len(lists) == 0 {
		return 0
	}
	pageID := selection.CoercePageID(dom.AttrOr(lists[0], thumbnails.AttrPageID, ""))
	if _, ok := c.groups[pageID]; !ok {
		return 0
	}
	return pageID
}

// OnExpandGroup expands the group and, when it was collapsed with nothing
// rendered, loads its thumbnails. Loading and loaded groups never refetch.
func (c *Controller) OnExpandGroup(ctx context.Context, pageID int) error {
	return c.withGroup(pageID, func(g *group) {
		c.expandLocked(ctx, g)
	})
}

// OnCollapseGroup collapses the group; cached thumbnails stay rendered.
func (c *Controller) OnCollapseGroup(pageID int) error {
	return c.withGroup(pageID, c.collapseLocked)
}

// OnSelectCandidate makes cand the selection.
func (c *Controller) OnSelectCandidate(cand thumbnails.Candidate) {
	c.doc.Do(func(*html.Node) {
		c.selectLocked(cand)
	})
}

// OnClear drops the selection.
func (c *Controller) OnClear() {
	c.doc.Do(func(*html.Node) {
		c.clearLocked()
	})
}

// OnExternalImagesEdited reloads a group whose images changed elsewhere. The
// current selection is left as is.
func (c *Controller) OnExternalImagesEdited(ctx context.Context, pageID int) error {
	return c.withGroup(pageID, func(g *group) {
		c.editedLocked(ctx, g)
	})
}

func (c *Controller) withGroup(pageID int, fn func(*group)) error {
	var err error
	c.doc.Do(func(*html.Node) {
		g, ok := c.groups[pageID]
		if !ok {
			err = fmt.Errorf("%w: %d", ErrUnknownGroup, pageID)
			return
		}
		fn(g)
	})
	return err
}

func (c *Controller) expandLocked(ctx context.Context, g *group) {
	wasCollapsed := g.collapsed
	g.collapsed = false
	dom.RemoveClass(g.holder, c.sel.Collapsed)

	if !wasCollapsed || c.renderedLocked(g) > 0 {
		return
	}
	if c.cache.EnsureLoaded(ctx, g.pageID) {
		c.showLoaderLocked(g)
	}
}

func (c *Controller) collapseLocked(g *group) {
	g.collapsed = true
	dom.AddClass(g.holder, c.sel.Collapsed)
}

func (c *Controller) editedLocked(ctx context.Context, g *group) {
	if c.cache.ForceReload(ctx, g.pageID) {
		c.showLoaderLocked(g)
	}
}

func (c *Controller) selectLocked(cand thumbnails.Candidate) {
	c.value.Set(cand.PageID, cand.Filename)
	if c.value.IsEmpty() {
		c.logger.Debug("picker: candidate coerced to empty selection",
			slog.String("widget", c.id),
			slog.Int("pageid", cand.PageID),
			slog.String("filename", cand.Filename),
		)
		c.applyEmptyLocked()
		return
	}
	dom.SetAttr(c.input, "value", c.value.Serialize())
	dom.SetAttr(c.image, "src", cand.Src)
	if c.caption != nil {
		dom.SetText(c.caption, CaptionText(cand.Tooltip))
	}
	c.preview = HasSelection
}

func (c *Controller) clearLocked() {
	c.value.Clear()
	c.applyEmptyLocked()
}

func (c *Controller) applyEmptyLocked() {
	dom.SetAttr(c.input, "value", c.value.Serialize())
	dom.SetAttr(c.image, "src", c.placeholder)
	if c.caption != nil {
		dom.SetText(c.caption, "")
	}
	c.preview = NoSelection
}

func (c *Controller) showLoaderLocked(g *group) {
	dom.SetAttr(g.list, c.sel.LoadState, thumbnails.StateLoading.String())
	loader := `<li class="` + htmlAttrEscaper.Replace(c.sel.Loading) + `">` + c.opts.Loader + `</li>`
	if err := dom.SetInnerHTML(g.list, loader); err != nil {
		c.logger.Debug("picker: loader markup rejected", slog.Any("error", err))
		dom.RemoveChildren(g.list)
	}
}

// onSettled runs on the fetch goroutine.
func (c *Controller) onSettled(e thumbnails.Entry) {
	c.doc.Do(func(*html.Node) {
		g, ok := c.groups[e.PageID]
		if !ok {
			return
		}
		current := c.cache.Entry(e.PageID)
		if current.Generation != e.Generation || current.State != e.State {
			return
		}
		c.renderEntryLocked(g, e)
	})
}

func (c *Controller) renderEntryLocked(g *group, e thumbnails.Entry) {
	dom.SetAttr(g.list, c.sel.LoadState, e.State.String())
	switch e.State {
	case thumbnails.StateLoaded:
		markup := c.opts.Policy.Sanitize(e.Markup)
		if err := dom.SetInnerHTML(g.list, markup); err != nil {
			c.logger.Warn("picker: thumbnail markup rejected",
				slog.String("widget", c.id),
				slog.Int("pageid", g.pageID),
				slog.Any("error", err),
			)
			dom.RemoveChildren(g.list)
		}
	case thumbnails.StateError:
		dom.RemoveChildren(g.list)
	}
}

func (c *Controller) renderedLocked(g *group) int {
	return len(dom.FindAll(g.list, c.isCandidate))
}

// ID returns the instance id written to the root's instance attribute.
func (c *Controller) ID() string { return c.id }

// Selectors returns the markup contract the controller was built with.
func (c *Controller) Selectors() Selectors { return c.sel }

// Root returns the widget element.
func (c *Controller) Root() *html.Node { return c.root }

// Cache exposes the controller's thumbnail cache.
func (c *Controller) Cache() *thumbnails.Cache { return c.cache }

// Wait blocks until in-flight thumbnail loads have been applied.
func (c *Controller) Wait() { c.cache.Wait() }

// The accessors below take the document lock; do not call them from inside
// an event handler.

func (c *Controller) State() State {
	var s State
	c.doc.Do(func(*html.Node) { s = c.state })
	return s
}

func (c *Controller) PreviewState() PreviewState {
	var s PreviewState
	c.doc.Do(func(*html.Node) { s = c.preview })
	return s
}

func (c *Controller) Value() selection.Value {
	var v selection.Value
	c.doc.Do(func(*html.Node) { v = c.value })
	return v
}

// SubmittedValue returns the value attribute of the field's input.
func (c *Controller) SubmittedValue() string {
	var v string
	c.doc.Do(func(*html.Node) { v = dom.AttrOr(c.input, "value", "") })
	return v
}

// Preview returns the preview image source and caption text.
func (c *Controller) Preview() (src, caption string) {
	c.doc.Do(func(*html.Node) {
		src = dom.AttrOr(c.image, "src", "")
		caption = dom.Text(c.caption)
	})
	return src, caption
}

// Group returns a snapshot of one group.
func (c *Controller) Group(pageID int) (GroupInfo, bool) {
	var (
		info GroupInfo
		ok   bool
	)
	c.doc.Do(func(*html.Node) {
		var g *group
		g, ok = c.groups[pageID]
		if ok {
			info = c.infoLocked(g)
		}
	})
	return info, ok
}

// Groups returns snapshots of every group in document order.
func (c *Controller) Groups() []GroupInfo {
	var out []GroupInfo
	c.doc.Do(func(*html.Node) {
		out = make([]GroupInfo, 0, len(c.order))
		for _, id := range c.order {
			out = append(out, c.infoLocked(c.groups[id]))
		}
	})
	return out
}

// Candidates returns the candidates currently rendered in a group.
func (c *Controller) Candidates(pageID int) []thumbnails.Candidate {
	var out []thumbnails.Candidate
	c.doc.Do(func(*html.Node) {
		g, ok := c.groups[pageID]
		if !ok {
			return
		}
		for _, n := range dom.FindAll(g.list, c.isCandidate) {
			if cand, ok := thumbnails.CandidateFromNode(n, g.pageID); ok {
				out = append(out, cand)
			}
		}
	})
	return out
}

// CandidateNodes returns the rendered candidate elements of a group, for
// dispatching events at them.
func (c *Controller) CandidateNodes(pageID int) []*html.Node {
	var out []*html.Node
	c.doc.Do(func(*html.Node) {
		if g, ok := c.groups[pageID]; ok {
			out = dom.FindAll(g.list, c.isCandidate)
		}
	})
	return out
}

// GroupIDs lists group page ids in ascending order.
func (c *Controller) GroupIDs() []int {
	var ids []int
	c.doc.Do(func(*html.Node) {
		ids = append(ids, c.order...)
	})
	sort.Ints(ids)
	return ids
}

func (c *Controller) infoLocked(g *group) GroupInfo {
	entry := c.cache.Entry(g.pageID)
	return GroupInfo{
		PageID:     g.pageID,
		Collapsed:  g.collapsed,
		State:      entry.State,
		Rendered:   c.renderedLocked(g),
		Generation: entry.Generation,
	}
}
