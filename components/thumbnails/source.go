package thumbnails

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrPageNotFound is returned by sources that know nothing about a page.
var ErrPageNotFound = errors.New("thumbnails: page not found")

// Image is one image stored on a page.
type Image struct {
	URL         string `yaml:"url" json:"url"`
	Filename    string `yaml:"filename" json:"filename"`
	Description string `yaml:"description" json:"description,omitempty"`
	Width       int    `yaml:"width" json:"width,omitempty"`
	Height      int    `yaml:"height" json:"height,omitempty"`
}

// Tooltip is the caption shown for the image in the picker.
func (i Image) Tooltip() string {
	label := strings.TrimSpace(i.Description)
	if label == "" {
		label = i.Filename
	}
	if i.Width > 0 && i.Height > 0 {
		return fmt.Sprintf("%s (%dx%d)", label, i.Width, i.Height)
	}
	return label
}

// ImageSource lists the images of a page.
type ImageSource interface {
	Images(ctx context.Context, pageID int) ([]Image, error)
}

// SourceFunc adapts a function to ImageSource.
type SourceFunc func(ctx context.Context, pageID int) ([]Image, error)

func (f SourceFunc) Images(ctx context.Context, pageID int) ([]Image, error) {
	return f(ctx, pageID)
}

// StaticSource is an in-memory ImageSource, safe for concurrent use.
type StaticSource struct {
	mu    sync.RWMutex
	pages map[int][]Image
}

// NewStaticSource copies pages into a new source.
func NewStaticSource(pages map[int][]Image) *StaticSource {
	s := &StaticSource{pages: make(map[int][]Image, len(pages))}
	for id, images := range pages {
		s.pages[id] = append([]Image(nil), images...)
	}
	return s
}

func (s *StaticSource) Images(ctx context.Context, pageID int) ([]Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	images, ok := s.pages[pageID]
	if !ok {
		return nil, ErrPageNotFound
	}
	return append([]Image(nil), images...), nil
}

// SetImages replaces a page's images.
func (s *StaticSource) SetImages(pageID int, images []Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[pageID] = append([]Image(nil), images...)
}

// PageIDs lists the known pages, ascending.
func (s *StaticSource) PageIDs() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int, 0, len(s.pages))
	for id := range s.pages {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
