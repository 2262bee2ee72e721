// Package thumbnails loads the per-page thumbnail markup shown by the image
// picker and caches it for the lifetime of one widget.
//
// Each candidate page (a group) moves through Empty -> Loading -> Loaded or
// Error. At most one fetch per group is in flight; Invalidate returns a group
// to Empty and bumps its generation so any result still in flight is
// discarded when it lands.
package thumbnails
