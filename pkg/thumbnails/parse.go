package thumbnails

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Candidate attributes carried by thumbnail images in the fragment.
const (
	AttrFilename = "data-filename"
	AttrPageID   = "data-pageid"
	AttrTooltip  = "uk-tooltip"
)

// ParseCandidates extracts every <img> carrying data-filename from markup.
// Images without data-pageid inherit pageID.
func ParseCandidates(markup string, pageID int) ([]Candidate, error) {
	if strings.TrimSpace(markup) == "" {
		return nil, nil
	}
	ctx := &html.Node{Type: html.ElementNode, Data: "ul", DataAtom: atom.Ul}
	nodes, err := html.ParseFragment(strings.NewReader(markup), ctx)
	if err != nil {
		return nil, fmt.Errorf("thumbnails: parse fragment: %w", err)
	}

	var out []Candidate
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Img {
			if c, ok := CandidateFromNode(n, pageID); ok {
				out = append(out, c)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return out, nil
}

// CandidateFromNode reads candidate data from an <img> element. It reports
// false when the element carries no filename.
func CandidateFromNode(n *html.Node, fallbackPageID int) (Candidate, bool) {
	if n == nil || n.Type != html.ElementNode {
		return Candidate{}, false
	}
	attrs := make(map[string]string, len(n.Attr))
	for _, a := range n.Attr {
		if a.Namespace == "" {
			attrs[a.Key] = a.Val
		}
	}
	filename := strings.TrimSpace(attrs[AttrFilename])
	if filename == "" {
		return Candidate{}, false
	}

	pageID := fallbackPageID
	if raw, ok := attrs[AttrPageID]; ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && parsed > 0 {
			pageID = parsed
		}
	}

	tooltip := tooltipTitle(attrs[AttrTooltip])
	if tooltip == "" {
		tooltip = attrs["title"]
	}
	if tooltip == "" {
		tooltip = attrs["alt"]
	}

	return Candidate{
		Src:      strings.TrimSpace(attrs["src"]),
		Filename: filename,
		PageID:   pageID,
		Tooltip:  tooltip,
	}, true
}

// tooltipTitle accepts both a bare tooltip and the "title: ...; pos: ..."
// option form.
func tooltipTitle(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "title:") {
		return trimmed
	}
	for _, part := range strings.Split(trimmed, ";") {
		key, val, ok := strings.Cut(part, ":")
		if ok && strings.TrimSpace(key) == "title" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}
