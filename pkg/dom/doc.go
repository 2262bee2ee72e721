// Package dom is a small in-memory document model for headless widgets.
//
// It wraps a golang.org/x/net/html node tree with class/attribute helpers and
// a bubbling event dispatcher. A Document owns a single lock: every dispatch
// and every mutation submitted through Do runs while holding it, which gives
// widgets the same one-thing-at-a-time guarantee a browser UI thread does.
//
// Handlers run with the document locked. They may mutate nodes directly but
// must not call Dispatch or Do on the same document.
package dom
