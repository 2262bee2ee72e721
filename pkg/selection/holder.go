package selection

import (
	"fmt"
	"strings"
	"sync"
)

// Holder field keys.
const (
	KeyPageID   = "pageid"
	KeyFilename = "filename"
)

// Holder is the persisted side of the field: a two-attribute record that
// sanitizes on every write. Unlike Value it accepts the halves one at a time,
// so a partially written holder can exist between Set calls; Value reports
// the consistent view.
type Holder struct {
	mu       sync.RWMutex
	pageID   int
	filename string
}

// NewHolder returns an empty holder.
func NewHolder() *Holder {
	return &Holder{}
}

// HolderFromString loads a holder from its persisted canonical string.
func HolderFromString(raw string) (*Holder, error) {
	v, err := Parse(raw)
	if err != nil {
		return NewHolder(), fmt.Errorf("selection: load holder: %w", err)
	}
	h := NewHolder()
	h.pageID = v.PageID
	h.filename = v.Filename
	return h, nil
}

// Set writes one attribute. Unknown keys are rejected.
func (h *Holder) Set(key string, value any) error {
	if h == nil {
		return fmt.Errorf("selection: nil holder")
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	switch strings.ToLower(strings.TrimSpace(key)) {
	case KeyPageID:
		h.pageID = CoercePageID(value)
	case KeyFilename:
		switch v := value.(type) {
		case nil:
			h.filename = ""
		case string:
			h.filename = SanitizeFilename(v)
		case fmt.Stringer:
			h.filename = SanitizeFilename(v.String())
		default:
			h.filename = SanitizeFilename(fmt.Sprint(v))
		}
	default:
		return fmt.Errorf("selection: unknown holder key %q", key)
	}
	return nil
}

// Get returns the stored attribute, or nil for unknown keys.
func (h *Holder) Get(key string) any {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	switch strings.ToLower(strings.TrimSpace(key)) {
	case KeyPageID:
		return h.pageID
	case KeyFilename:
		return h.filename
	default:
		return nil
	}
}

// Value returns the consistent selection; a half-written holder reads as
// empty.
func (h *Holder) Value() Value {
	if h == nil {
		return Empty()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.pageID == 0 || h.filename == "" {
		return Empty()
	}
	return Value{PageID: h.pageID, Filename: h.filename}
}

// String renders the canonical form of Value.
func (h *Holder) String() string {
	return h.Value().Serialize()
}
