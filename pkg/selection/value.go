package selection

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformed reports a serialized value that cannot be decoded into a
// consistent selection.
var ErrMalformed = errors.New("selection: malformed value")

// Value identifies one image on one page. The zero Value means "no selection".
type Value struct {
	PageID   int
	Filename string
}

// Empty returns the no-selection value.
func Empty() Value { return Value{} }

// New builds a value from raw inputs, applying the same coercion as Set.
func New(pageID any, filename string) Value {
	var v Value
	v.Set(pageID, filename)
	return v
}

// FromSerialized decodes the canonical form. Any malformed, mixed or unsafe
// input yields the empty value; it never fails.
func FromSerialized(s string) Value {
	v, err := Parse(s)
	if err != nil {
		return Empty()
	}
	return v
}

// Parse decodes the canonical form strictly. The empty string (and the
// canonical empty object) decode to the empty value without error.
func Parse(s string) (Value, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Empty(), nil
	}

	var raw map[string]any
	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return Empty(), fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if dec.More() {
		return Empty(), fmt.Errorf("%w: trailing data", ErrMalformed)
	}
	if raw == nil {
		return Empty(), fmt.Errorf("%w: not an object", ErrMalformed)
	}

	pageID := CoercePageID(raw["pageid"])
	var filename string
	switch f := raw["filename"].(type) {
	case nil:
	case string:
		filename = SanitizeFilename(f)
	default:
		return Empty(), fmt.Errorf("%w: filename must be a string", ErrMalformed)
	}

	switch {
	case pageID == 0 && filename == "":
		return Empty(), nil
	case pageID == 0 || filename == "":
		return Empty(), fmt.Errorf("%w: pageid and filename must both be set", ErrMalformed)
	}
	return Value{PageID: pageID, Filename: filename}, nil
}

// Set replaces both parts at once. When either side coerces to its empty form
// the whole value becomes empty.
func (v *Value) Set(pageID any, filename string) Value {
	if v == nil {
		return Empty()
	}
	id := CoercePageID(pageID)
	name := SanitizeFilename(filename)
	if id == 0 || name == "" {
		*v = Value{}
		return *v
	}
	*v = Value{PageID: id, Filename: name}
	return *v
}

// Clear resets to the empty value.
func (v *Value) Clear() Value {
	if v == nil {
		return Empty()
	}
	*v = Value{}
	return *v
}

// IsEmpty reports whether no image is selected.
func (v Value) IsEmpty() bool {
	return v.PageID == 0 || v.Filename == ""
}

// Equal reports whether two values reference the same image.
func (v Value) Equal(other Value) bool {
	if v.IsEmpty() && other.IsEmpty() {
		return true
	}
	return v.PageID == other.PageID && v.Filename == other.Filename
}

// Serialize emits the canonical form, or "" for the empty value.
func (v Value) Serialize() string {
	if v.IsEmpty() {
		return ""
	}
	name, err := json.Marshal(v.Filename)
	if err != nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(`{"pageid": `)
	b.WriteString(strconv.Itoa(v.PageID))
	b.WriteString(`, "filename": `)
	b.Write(name)
	b.WriteString(`}`)
	return b.String()
}

func (v Value) String() string { return v.Serialize() }

// MarshalText implements encoding.TextMarshaler.
func (v Value) MarshalText() ([]byte, error) {
	return []byte(v.Serialize()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler using the forgiving
// decoder, so stored garbage becomes an empty selection.
func (v *Value) UnmarshalText(text []byte) error {
	if v == nil {
		return errors.New("selection: UnmarshalText on nil pointer")
	}
	*v = FromSerialized(string(text))
	return nil
}

// MarshalJSON embeds the value as a JSON object, or null when empty.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.IsEmpty() {
		return []byte("null"), nil
	}
	return []byte(v.Serialize()), nil
}

// UnmarshalJSON accepts null, the canonical object, or a JSON string holding
// the canonical object.
func (v *Value) UnmarshalJSON(data []byte) error {
	if v == nil {
		return errors.New("selection: UnmarshalJSON on nil pointer")
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*v = Value{}
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		trimmed = []byte(s)
	}
	parsed, err := Parse(string(trimmed))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
