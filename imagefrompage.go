// Package imagefrompage binds image-from-page picker widgets in a parsed HTML
// document: each widget lets the user pick one image from the thumbnails of a
// referenced page and stores the choice as {"pageid": N, "filename": "x"}.
package imagefrompage

import (
	"context"
	"io"

	"github.com/goliatone/go-imagefrompage/pkg/dom"
	"github.com/goliatone/go-imagefrompage/pkg/lifecycle"
	"github.com/goliatone/go-imagefrompage/pkg/picker"
	"github.com/goliatone/go-imagefrompage/pkg/selection"
)

// Value aliases selection.Value for callers reading stored selections.
type Value = selection.Value

// Controller aliases picker.Controller.
type Controller = picker.Controller

// Manager aliases lifecycle.Manager.
type Manager = lifecycle.Manager

// Option aliases picker.OptionFn.
type Option = picker.OptionFn

// ParseValue reads a stored selection strictly.
func ParseValue(raw string) (Value, error) {
	return selection.Parse(raw)
}

// ValueFromSerialized reads a stored selection, coercing anything malformed
// to the empty value.
func ValueFromSerialized(raw string) Value {
	return selection.FromSerialized(raw)
}

// NewManager exposes the lifecycle manager constructor from the top-level
// module.
func NewManager(doc *dom.Document, opts ...Option) (*Manager, error) {
	return lifecycle.New(doc, opts...)
}

// Bind parses r and initializes every widget in it. Widgets that fail to
// initialize are reported in err while the rest stay bound.
func Bind(ctx context.Context, r io.Reader, opts ...Option) (*dom.Document, *Manager, error) {
	doc, err := dom.Parse(r)
	if err != nil {
		return nil, nil, err
	}
	mgr, err := lifecycle.New(doc, opts...)
	if err != nil {
		return nil, nil, err
	}
	_, err = mgr.InitAll(ctx, nil)
	return doc, mgr, err
}
