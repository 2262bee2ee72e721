package picker

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	fragmentPolicyOnce sync.Once
	fragmentPolicy     *bluemonday.Policy

	captionPolicyOnce sync.Once
	captionPolicy     *bluemonday.Policy
)

// FragmentPolicy is the default sanitizer for fetched thumbnail markup: list
// structure, links and images with the candidate data attributes.
func FragmentPolicy() *bluemonday.Policy {
	fragmentPolicyOnce.Do(func() {
		policy := bluemonday.NewPolicy()
		policy.AllowElements("ul", "li", "a", "img", "span", "div", "small", "figure", "figcaption")
		policy.AllowAttrs("class", "title").Globally()
		policy.AllowDataAttributes()
		policy.AllowAttrs("src", "alt", "width", "height", "uk-tooltip", "loading").OnElements("img")
		policy.AllowAttrs("href", "target").OnElements("a")
		policy.AllowURLSchemes("http", "https")
		policy.AllowRelativeURLs(true)
		fragmentPolicy = policy
	})
	return fragmentPolicy
}

// CaptionText reduces a tooltip to plain text.
func CaptionText(raw string) string {
	captionPolicyOnce.Do(func() {
		captionPolicy = bluemonday.StrictPolicy()
	})
	cleaned := captionPolicy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}
