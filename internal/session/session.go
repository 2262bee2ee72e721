// Package session drives image-from-page widgets from a prompt loop: pick a
// field, then expand or collapse groups, pick thumbnails, clear the selection
// or signal that a page's images were edited.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/goliatone/go-imagefrompage/pkg/dom"
	"github.com/goliatone/go-imagefrompage/pkg/lifecycle"
	"github.com/goliatone/go-imagefrompage/pkg/picker"
	"github.com/goliatone/go-imagefrompage/pkg/thumbnails"
)

// ErrNoWidgets is returned by Run when the document holds no bound widget.
var ErrNoWidgets = errors.New("session: no image-from-page fields in document")

// Action is one entry of the action menu.
type Action int

const (
	ActionExpand Action = iota
	ActionCollapse
	ActionSelect
	ActionClear
	ActionEdited
	ActionShow
	ActionSwitchField
	ActionQuit
)

var actionLabels = []string{
	ActionExpand:      "Expand group",
	ActionCollapse:    "Collapse group",
	ActionSelect:      "Select thumbnail",
	ActionClear:       "Clear selection",
	ActionEdited:      "Images edited",
	ActionShow:        "Show value",
	ActionSwitchField: "Switch field",
	ActionQuit:        "Quit",
}

func (a Action) String() string {
	if int(a) >= 0 && int(a) < len(actionLabels) {
		return actionLabels[a]
	}
	return "unknown"
}

// EditedFunc runs before a group reloads after its page's images changed.
type EditedFunc func(pageID int)

// Session owns the prompt loop over a lifecycle manager's widgets.
type Session struct {
	doc      *dom.Document
	mgr      *lifecycle.Manager
	driver   PromptDriver
	onEdited EditedFunc

	current *picker.Controller
}

type Option func(*Session)

// WithEdited registers a hook for the "images edited" action, e.g. to drop
// a server-side fragment cache.
func WithEdited(fn EditedFunc) Option {
	return func(s *Session) {
		s.onEdited = fn
	}
}

func New(doc *dom.Document, mgr *lifecycle.Manager, driver PromptDriver, opts ...Option) *Session {
	s := &Session{doc: doc, mgr: mgr, driver: driver}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Run loops until the user quits or aborts. Aborting is not an error.
func (s *Session) Run(ctx context.Context) error {
	if s.mgr == nil || s.mgr.Len() == 0 {
		return ErrNoWidgets
	}
	for {
		done, err := s.Step(ctx)
		if errors.Is(err, ErrAborted) {
			return nil
		}
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// Step asks for one action and applies it. It reports true on quit.
func (s *Session) Step(ctx context.Context) (bool, error) {
	if s.current == nil {
		if err := s.chooseField(ctx); err != nil {
			return false, err
		}
	}
	idx, err := s.driver.Select(ctx, SelectConfig{
		Message: fmt.Sprintf("%s:", s.fieldLabel(s.current)),
		Options: actionLabels,
	})
	if err != nil {
		return false, err
	}

	switch Action(idx) {
	case ActionExpand:
		return false, s.withGroup(ctx, "Expand which group?", func(pageID int) error {
			if err := s.current.OnExpandGroup(ctx, pageID); err != nil {
				return err
			}
			s.current.Wait()
			return s.reportGroup(ctx, pageID)
		})
	case ActionCollapse:
		return false, s.withGroup(ctx, "Collapse which group?", s.current.OnCollapseGroup)
	case ActionSelect:
		return false, s.selectThumbnail(ctx)
	case ActionClear:
		s.current.OnClear()
		return false, s.show(ctx)
	case ActionEdited:
		return false, s.withGroup(ctx, "Which page's images were edited?", func(pageID int) error {
			if s.onEdited != nil {
				s.onEdited(pageID)
			}
			if err := s.current.OnExternalImagesEdited(ctx, pageID); err != nil {
				return err
			}
			s.current.Wait()
			return s.reportGroup(ctx, pageID)
		})
	case ActionShow:
		return false, s.show(ctx)
	case ActionSwitchField:
		s.current = nil
		return false, nil
	case ActionQuit:
		return true, nil
	}
	return false, nil
}

func (s *Session) chooseField(ctx context.Context) error {
	ctrls := s.mgr.Controllers()
	if len(ctrls) == 0 {
		return ErrNoWidgets
	}
	if len(ctrls) == 1 {
		s.current = ctrls[0]
		return nil
	}
	labels := make([]string, len(ctrls))
	for i, ctrl := range ctrls {
		labels[i] = fmt.Sprintf("%d. %s", i+1, s.fieldLabel(ctrl))
	}
	idx, err := s.driver.Select(ctx, SelectConfig{Message: "Field:", Options: labels})
	if err != nil {
		return err
	}
	if idx < 0 || idx >= len(ctrls) {
		return fmt.Errorf("session: no field at %d", idx)
	}
	s.current = ctrls[idx]
	return nil
}

func (s *Session) withGroup(ctx context.Context, msg string, fn func(pageID int) error) error {
	groups := s.current.Groups()
	if len(groups) == 0 {
		return s.driver.Info(ctx, "This field has no image groups.")
	}
	pageID := groups[0].PageID
	if len(groups) > 1 {
		labels := make([]string, len(groups))
		for i, g := range groups {
			labels[i] = s.groupLabel(g)
		}
		idx, err := s.driver.Select(ctx, SelectConfig{Message: msg, Options: labels})
		if err != nil {
			return err
		}
		if idx < 0 || idx >= len(groups) {
			return fmt.Errorf("session: no group at %d", idx)
		}
		pageID = groups[idx].PageID
	}
	return fn(pageID)
}

func (s *Session) selectThumbnail(ctx context.Context) error {
	return s.withGroup(ctx, "Pick from which group?", func(pageID int) error {
		nodes, cands := s.candidates(pageID)
		if len(cands) == 0 {
			return s.driver.Info(ctx, "No thumbnails loaded for this group; expand it first.")
		}
		labels := make([]string, len(cands))
		for i, c := range cands {
			label := c.Filename
			if c.Tooltip != "" && c.Tooltip != c.Filename {
				label += " (" + picker.CaptionText(c.Tooltip) + ")"
			}
			labels[i] = fmt.Sprintf("%d. %s", i+1, label)
		}
		idx, err := s.driver.Select(ctx, SelectConfig{Message: "Thumbnail:", Options: labels, PageSize: 12})
		if err != nil {
			return err
		}
		if idx < 0 || idx >= len(nodes) {
			return fmt.Errorf("session: no thumbnail at %d", idx)
		}
		s.doc.Dispatch(nodes[idx], s.current.Selectors().ClickEvent, nil)
		return s.show(ctx)
	})
}

// candidates pairs each rendered candidate node with its data, read in one
// pass so labels and click targets line up.
func (s *Session) candidates(pageID int) ([]*html.Node, []thumbnails.Candidate) {
	var (
		nodes []*html.Node
		cands []thumbnails.Candidate
	)
	all := s.current.CandidateNodes(pageID)
	s.doc.Do(func(*html.Node) {
		for _, n := range all {
			if c, ok := thumbnails.CandidateFromNode(n, pageID); ok {
				nodes = append(nodes, n)
				cands = append(cands, c)
			}
		}
	})
	return nodes, cands
}

func (s *Session) show(ctx context.Context) error {
	value := s.current.SubmittedValue()
	if value == "" {
		value = "(empty)"
	}
	src, caption := s.current.Preview()
	msg := fmt.Sprintf("value: %s\npreview: %s", value, src)
	if caption != "" {
		msg += "\ncaption: " + caption
	}
	return s.driver.Info(ctx, msg)
}

func (s *Session) reportGroup(ctx context.Context, pageID int) error {
	info, ok := s.current.Group(pageID)
	if !ok {
		return nil
	}
	msg := fmt.Sprintf("group %d: %s, %d thumbnails", pageID, info.State, info.Rendered)
	return s.driver.Info(ctx, msg)
}

func (s *Session) fieldLabel(ctrl *picker.Controller) string {
	if ctrl == nil {
		return ""
	}
	var label string
	s.doc.Do(func(*html.Node) {
		root := ctrl.Root()
		if input := dom.Find(root, dom.Class(ctrl.Selectors().ValueInput)); input != nil {
			label = dom.AttrOr(input, "name", "")
		}
		if label == "" {
			label = dom.AttrOr(root, "id", "")
		}
	})
	if label == "" {
		label = ctrl.ID()
	}
	return label
}

func (s *Session) groupLabel(g picker.GroupInfo) string {
	var header string
	ctrl := s.current
	sel := ctrl.Selectors()
	s.doc.Do(func(*html.Node) {
		list := dom.Find(ctrl.Root(), func(n *html.Node) bool {
			return dom.HasClass(n, sel.List) &&
				dom.AttrOr(n, "data-pageid", "") == strconv.Itoa(g.PageID)
		})
		if list == nil {
			return
		}
		holder := dom.Closest(list, dom.Class(sel.Group))
		if h := dom.Find(holder, dom.Class(sel.Header)); h != nil {
			header = strings.TrimSpace(dom.Text(h))
		}
	})
	state := "collapsed"
	if !g.Collapsed {
		state = "open"
	}
	if header == "" {
		return fmt.Sprintf("page %d (%s)", g.PageID, state)
	}
	return fmt.Sprintf("%s, page %d (%s)", header, g.PageID, state)
}
