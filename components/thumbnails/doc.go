// Package thumbnails serves the thumbnail fragment consumed by the
// image-from-page picker: GET <route>?pageid=<id> returns an HTML list of the
// page's images, each carrying its source URL, filename, owning page id and a
// tooltip as attributes.
//
// Fragments are rendered with pongo2, cached per page for a configurable TTL
// and rendered at most once concurrently per page. Call Invalidate after a
// page's images change so the next request renders afresh.
package thumbnails
