package thumbnails

import "fmt"

// State is the load state of one group's thumbnails.
type State int

const (
	StateEmpty State = iota
	StateLoading
	StateLoaded
	StateError
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Candidate is one selectable image inside a group.
type Candidate struct {
	Src      string `json:"src"`
	Filename string `json:"filename"`
	PageID   int    `json:"pageid"`
	Tooltip  string `json:"tooltip,omitempty"`
}

// Entry is a point-in-time view of a group's cache slot.
type Entry struct {
	PageID     int
	State      State
	Markup     string
	Candidates []Candidate
	Generation uint64
	Err        error
}

// Loaded reports whether the entry holds usable markup.
func (e Entry) Loaded() bool { return e.State == StateLoaded }
