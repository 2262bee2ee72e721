package dom

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/net/html"
)

// ErrNilRoot is returned when a document is built without a tree.
var ErrNilRoot = errors.New("dom: missing root node")

// Event is passed to handlers while it bubbles from Target towards the root.
type Event struct {
	Type          string
	Target        *html.Node
	CurrentTarget *html.Node
	// Matched is the node that satisfied a delegated handler's matcher.
	Matched *html.Node
	Detail  any

	stopped bool
}

// StopPropagation prevents the event from reaching further ancestors.
// Handlers already registered on the current node still run.
func (e *Event) StopPropagation() {
	if e != nil {
		e.stopped = true
	}
}

// Handler receives dispatched events.
type Handler func(ev *Event)

type listener struct {
	key     string
	match   Matcher
	handler Handler
}

type listenerKey struct {
	node *html.Node
	typ  string
}

// Document is a node tree plus its listeners, guarded by one lock.
type Document struct {
	mu        sync.Mutex
	root      *html.Node
	listeners map[listenerKey][]*listener
}

// New wraps an existing tree.
func New(root *html.Node) (*Document, error) {
	if root == nil {
		return nil, ErrNilRoot
	}
	return &Document{
		root:      root,
		listeners: make(map[listenerKey][]*listener),
	}, nil
}

// Parse reads a full HTML document.
func Parse(r io.Reader) (*Document, error) {
	if r == nil {
		return nil, fmt.Errorf("dom: missing reader")
	}
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("dom: parse: %w", err)
	}
	return New(root)
}

// ParseString is Parse over a string.
func ParseString(markup string) (*Document, error) {
	return Parse(strings.NewReader(markup))
}

// Root returns the document's root node.
func (d *Document) Root() *html.Node {
	if d == nil {
		return nil
	}
	return d.root
}

// Do runs fn with the document locked.
func (d *Document) Do(fn func(root *html.Node)) {
	if d == nil || fn == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.root)
}

// On registers handler for events of type typ reaching node. Registration is
// keyed by (node, typ, key): a second call with the same key is ignored and
// reports false.
func (d *Document) On(node *html.Node, typ, key string, handler Handler) bool {
	return d.add(node, typ, key, nil, handler)
}

// Delegate registers handler on container, invoked only when the event
// target or one of its ancestors below container satisfies match. The
// matching node is exposed as Event.Matched. Nodes inserted under container
// after registration are covered without further calls.
func (d *Document) Delegate(container *html.Node, typ, key string, match Matcher, handler Handler) bool {
	if match == nil {
		return false
	}
	return d.add(container, typ, key, match, handler)
}

// Off removes a registration; it reports whether one existed.
func (d *Document) Off(node *html.Node, typ, key string) bool {
	if d == nil || node == nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	lk := listenerKey{node: node, typ: typ}
	list := d.listeners[lk]
	for i, l := range list {
		if l.key == key {
			d.listeners[lk] = append(list[:i:i], list[i+1:]...)
			if len(d.listeners[lk]) == 0 {
				delete(d.listeners, lk)
			}
			return true
		}
	}
	return false
}

// Release drops every listener registered on node or its descendants.
func (d *Document) Release(node *html.Node) int {
	if d == nil || node == nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.releaseLocked(node)
}

// ReleaseLocked is Release for callers already running under Do or inside a
// handler.
func (d *Document) ReleaseLocked(node *html.Node) int {
	if d == nil || node == nil {
		return 0
	}
	return d.releaseLocked(node)
}

func (d *Document) releaseLocked(node *html.Node) int {
	removed := 0
	for lk, list := range d.listeners {
		if Contains(node, lk.node) {
			removed += len(list)
			delete(d.listeners, lk)
		}
	}
	return removed
}

// ListenerCount returns the number of handlers registered on node for typ.
func (d *Document) ListenerCount(node *html.Node, typ string) int {
	if d == nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.listeners[listenerKey{node: node, typ: typ}])
}

// HasListener reports whether a handler is registered on node under
// (typ, key).
func (d *Document) HasListener(node *html.Node, typ, key string) bool {
	if d == nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.HasListenerLocked(node, typ, key)
}

// HasListenerLocked is HasListener for callers already holding the document
// lock.
func (d *Document) HasListenerLocked(node *html.Node, typ, key string) bool {
	if d == nil || node == nil {
		return false
	}
	for _, l := range d.listeners[listenerKey{node: node, typ: typ}] {
		if l.key == key {
			return true
		}
	}
	return false
}

// Dispatch fires an event at target and bubbles it to the root. It returns
// the number of handlers invoked.
func (d *Document) Dispatch(target *html.Node, typ string, detail any) int {
	if d == nil || target == nil || typ == "" {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	ev := &Event{Type: typ, Target: target, Detail: detail}
	invoked := 0
	for cur := target; cur != nil; cur = cur.Parent {
		list := d.listeners[listenerKey{node: cur, typ: typ}]
		if len(list) == 0 {
			continue
		}
		snapshot := append([]*listener(nil), list...)
		for _, l := range snapshot {
			ev.CurrentTarget = cur
			ev.Matched = nil
			if l.match != nil {
				matched := delegateMatch(target, cur, l.match)
				if matched == nil {
					continue
				}
				ev.Matched = matched
			}
			l.handler(ev)
			invoked++
		}
		if ev.stopped {
			break
		}
	}
	return invoked
}

// Render writes the document as HTML.
func (d *Document) Render(w io.Writer) error {
	if d == nil {
		return ErrNilRoot
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return html.Render(w, d.root)
}

// HTML renders the document to a string.
func (d *Document) HTML() (string, error) {
	var b strings.Builder
	if err := d.Render(&b); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (d *Document) add(node *html.Node, typ, key string, match Matcher, handler Handler) bool {
	if d == nil || node == nil || typ == "" || handler == nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addLocked(node, typ, key, match, handler)
}

// OnLocked is On for callers already holding the document lock.
func (d *Document) OnLocked(node *html.Node, typ, key string, handler Handler) bool {
	if d == nil || node == nil || typ == "" || handler == nil {
		return false
	}
	return d.addLocked(node, typ, key, nil, handler)
}

// DelegateLocked is Delegate for callers already holding the document lock.
func (d *Document) DelegateLocked(container *html.Node, typ, key string, match Matcher, handler Handler) bool {
	if d == nil || container == nil || typ == "" || handler == nil || match == nil {
		return false
	}
	return d.addLocked(container, typ, key, match, handler)
}

func (d *Document) addLocked(node *html.Node, typ, key string, match Matcher, handler Handler) bool {
	lk := listenerKey{node: node, typ: typ}
	for _, l := range d.listeners[lk] {
		if l.key == key {
			return false
		}
	}
	d.listeners[lk] = append(d.listeners[lk], &listener{key: key, match: match, handler: handler})
	return true
}

// delegateMatch walks from target up to (excluding) container.
func delegateMatch(target, container *html.Node, match Matcher) *html.Node {
	for cur := target; cur != nil && cur != container; cur = cur.Parent {
		if match(cur) {
			return cur
		}
	}
	return nil
}
