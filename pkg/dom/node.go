package dom

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Matcher reports whether a node is of interest.
type Matcher func(n *html.Node) bool

// IsElement reports whether n is an element node.
func IsElement(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode
}

// Tag matches elements by tag name.
func Tag(name string) Matcher {
	name = strings.ToLower(strings.TrimSpace(name))
	return func(n *html.Node) bool {
		return IsElement(n) && n.Data == name
	}
}

// Class matches elements carrying the class.
func Class(name string) Matcher {
	return func(n *html.Node) bool {
		return HasClass(n, name)
	}
}

// HasAttr matches elements carrying the attribute, whatever its value.
func HasAttr(key string) Matcher {
	return func(n *html.Node) bool {
		_, ok := Attr(n, key)
		return IsElement(n) && ok
	}
}

// All matches when every matcher matches.
func All(matchers ...Matcher) Matcher {
	return func(n *html.Node) bool {
		for _, m := range matchers {
			if m == nil || !m(n) {
				return false
			}
		}
		return true
	}
}

// Attr returns the attribute value and whether it is present.
func Attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// AttrOr returns the attribute value, or fallback when absent.
func AttrOr(n *html.Node, key, fallback string) string {
	if v, ok := Attr(n, key); ok {
		return v
	}
	return fallback
}

// SetAttr sets or replaces an attribute.
func SetAttr(n *html.Node, key, val string) {
	if n == nil {
		return
	}
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// RemoveAttr deletes an attribute if present.
func RemoveAttr(n *html.Node, key string) {
	if n == nil {
		return
	}
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			continue
		}
		out = append(out, a)
	}
	n.Attr = out
}

// Classes returns the element's class list.
func Classes(n *html.Node) []string {
	raw, _ := Attr(n, "class")
	return strings.Fields(raw)
}

// HasClass reports whether the element carries the class.
func HasClass(n *html.Node, class string) bool {
	if !IsElement(n) || class == "" {
		return false
	}
	for _, c := range Classes(n) {
		if c == class {
			return true
		}
	}
	return false
}

// AddClass appends the class when missing.
func AddClass(n *html.Node, class string) {
	if !IsElement(n) || class == "" || HasClass(n, class) {
		return
	}
	SetAttr(n, "class", strings.Join(append(Classes(n), class), " "))
}

// RemoveClass drops every occurrence of the class.
func RemoveClass(n *html.Node, class string) {
	if !IsElement(n) || !HasClass(n, class) {
		return
	}
	kept := make([]string, 0, 4)
	for _, c := range Classes(n) {
		if c != class {
			kept = append(kept, c)
		}
	}
	SetAttr(n, "class", strings.Join(kept, " "))
}

// FindAll returns every descendant of root (root included) matching m, in
// document order.
func FindAll(root *html.Node, m Matcher) []*html.Node {
	if root == nil || m == nil {
		return nil
	}
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if m(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

// Find returns the first node matching m in document order.
func Find(root *html.Node, m Matcher) *html.Node {
	if root == nil || m == nil {
		return nil
	}
	if m(root) {
		return root
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if found := Find(c, m); found != nil {
			return found
		}
	}
	return nil
}

// ByClass returns every element under root carrying class.
func ByClass(root *html.Node, class string) []*html.Node {
	return FindAll(root, Class(class))
}

// Closest walks from n (inclusive) up through its ancestors and returns the
// first match.
func Closest(n *html.Node, m Matcher) *html.Node {
	for cur := n; cur != nil; cur = cur.Parent {
		if m(cur) {
			return cur
		}
	}
	return nil
}

// ChildElements returns n's direct element children matching m (all when m
// is nil).
func ChildElements(n *html.Node, m Matcher) []*html.Node {
	if n == nil {
		return nil
	}
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !IsElement(c) {
			continue
		}
		if m == nil || m(c) {
			out = append(out, c)
		}
	}
	return out
}

// Siblings returns n's element siblings matching m, excluding n itself.
func Siblings(n *html.Node, m Matcher) []*html.Node {
	if n == nil || n.Parent == nil {
		return nil
	}
	var out []*html.Node
	for _, c := range ChildElements(n.Parent, m) {
		if c != n {
			out = append(out, c)
		}
	}
	return out
}

// Contains reports whether n is root or one of its descendants.
func Contains(root, n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur == root {
			return true
		}
	}
	return false
}

// RemoveChildren detaches every child of n.
func RemoveChildren(n *html.Node) {
	if n == nil {
		return
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
}

// SetInnerHTML replaces n's children with markup parsed in n's context.
func SetInnerHTML(n *html.Node, markup string) error {
	if !IsElement(n) {
		return fmt.Errorf("dom: inner html target must be an element")
	}
	ctx := n
	if ctx.DataAtom == 0 {
		ctx = &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	}
	nodes, err := html.ParseFragment(strings.NewReader(markup), ctx)
	if err != nil {
		return fmt.Errorf("dom: parse fragment: %w", err)
	}
	RemoveChildren(n)
	for _, child := range nodes {
		if child.Parent != nil {
			child.Parent.RemoveChild(child)
		}
		n.AppendChild(child)
	}
	return nil
}

// InnerHTML renders n's children.
func InnerHTML(n *html.Node) (string, error) {
	if n == nil {
		return "", nil
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&b, c); err != nil {
			return "", fmt.Errorf("dom: render: %w", err)
		}
	}
	return b.String(), nil
}

// SetText replaces n's children with a single text node.
func SetText(n *html.Node, text string) {
	if n == nil {
		return
	}
	RemoveChildren(n)
	if text == "" {
		return
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}

// Text returns the concatenated text content of n.
func Text(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(cur *html.Node) {
		if cur.Type == html.TextNode {
			b.WriteString(cur.Data)
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// Clone returns a detached deep copy of n.
func Clone(n *html.Node) *html.Node {
	if n == nil {
		return nil
	}
	out := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
	}
	if len(n.Attr) > 0 {
		out.Attr = append([]html.Attribute(nil), n.Attr...)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out.AppendChild(Clone(c))
	}
	return out
}

// Render writes n as HTML.
func Render(w io.Writer, n *html.Node) error {
	if n == nil {
		return nil
	}
	return html.Render(w, n)
}
