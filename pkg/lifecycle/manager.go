// Package lifecycle discovers image-from-page widgets in a document and
// initializes each one exactly once, however often it is asked to scan.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/net/html"

	"github.com/goliatone/go-imagefrompage/pkg/dom"
	"github.com/goliatone/go-imagefrompage/pkg/picker"
)

// Manager tracks the controllers bound within one document.
type Manager struct {
	doc    *dom.Document
	opts   []picker.OptionFn
	sel    picker.Selectors
	logger *slog.Logger

	mu          sync.Mutex
	controllers map[string]*picker.Controller
	order       []string
}

// New builds a manager whose controllers share opts.
func New(doc *dom.Document, opts ...picker.OptionFn) (*Manager, error) {
	if doc == nil {
		return nil, picker.ErrMissingDocument
	}
	resolved := picker.NewOptions(opts...)
	logger := resolved.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{
		doc:         doc,
		opts:        append([]picker.OptionFn(nil), opts...),
		sel:         resolved.Selectors,
		logger:      logger,
		controllers: make(map[string]*picker.Controller),
	}, nil
}

type pending struct {
	node *html.Node
	id   string
}

// InitAll binds every widget under root (the document root when nil) that
// no controller owns yet, and returns how many were initialized. Widgets
// carrying the marker with live listeners are skipped, whichever manager
// bound them. Widgets copied from a bound one (marker and id included,
// listeners not) are bound under a fresh id. Failures are joined; the
// remaining widgets still initialize.
//
// ctx governs the fetches later triggered by the new widgets' events unless
// New was given picker.WithContext, so pass a long-lived context.
func (m *Manager) InitAll(ctx context.Context, root *html.Node) (int, error) {
	if m == nil {
		return 0, errors.New("lifecycle: nil manager")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var found []pending
	m.doc.Do(func(docRoot *html.Node) {
		if root == nil {
			root = docRoot
		}
		for _, node := range dom.ByClass(root, m.sel.Field) {
			id := dom.AttrOr(node, m.sel.InstanceAttr, "")
			if m.boundTo(id, node) {
				continue
			}
			if picker.BoundLocked(m.doc, node, m.sel) {
				m.logger.Debug("lifecycle: widget owned by another controller", slog.String("id", id))
				continue
			}
			if dom.HasClass(node, m.sel.Initialised) || m.known(id) {
				// Marker without listeners: a copy of a bound widget.
				id = ""
			}
			if id == "" {
				id = uuid.NewString()
			}
			found = append(found, pending{node: node, id: id})
		}
	})

	var errs []error
	initialized := 0
	for _, p := range found {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		fns := append([]picker.OptionFn{picker.WithContext(ctx)}, m.opts...)
		fns = append(fns, picker.WithID(p.id))
		ctrl, err := picker.New(m.doc, p.node, fns...)
		if err != nil {
			m.logger.Warn("lifecycle: widget skipped", slog.String("id", p.id), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("lifecycle: widget %s: %w", p.id, err))
			continue
		}
		if !ctrl.Bind() {
			continue
		}
		m.mu.Lock()
		m.controllers[p.id] = ctrl
		m.order = append(m.order, p.id)
		m.mu.Unlock()
		initialized++
		m.logger.Debug("lifecycle: widget initialized", slog.String("id", p.id))
	}
	return initialized, errors.Join(errs...)
}

// Reloaded handles the host's "content reloaded" signal for a subtree, e.g.
// a repeater item that was just inserted or replaced.
func (m *Manager) Reloaded(ctx context.Context, node *html.Node) (int, error) {
	if node == nil {
		return 0, nil
	}
	return m.InitAll(ctx, node)
}

// Controller returns the controller bound under id.
func (m *Manager) Controller(id string) (*picker.Controller, bool) {
	if m == nil {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ctrl, ok := m.controllers[id]
	return ctrl, ok
}

// ControllerFor returns the controller bound to node.
func (m *Manager) ControllerFor(node *html.Node) (*picker.Controller, bool) {
	if m == nil || node == nil {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ctrl := range m.controllers {
		if ctrl.Root() == node {
			return ctrl, true
		}
	}
	return nil, false
}

// Controllers returns bound controllers in initialization order.
func (m *Manager) Controllers() []*picker.Controller {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*picker.Controller, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.controllers[id])
	}
	return out
}

// IDs returns the bound instance ids, sorted.
func (m *Manager) IDs() []string {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := append([]string(nil), m.order...)
	sort.Strings(ids)
	return ids
}

// Len returns the number of bound widgets.
func (m *Manager) Len() int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.controllers)
}

// Wait blocks until every bound widget has applied its in-flight loads.
func (m *Manager) Wait() {
	for _, ctrl := range m.Controllers() {
		ctrl.Wait()
	}
}

func (m *Manager) boundTo(id string, node *html.Node) bool {
	if id == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ctrl, ok := m.controllers[id]
	return ok && ctrl.Root() == node
}

func (m *Manager) known(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.controllers[id]
	return ok
}
