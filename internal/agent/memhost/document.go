// File: internal/agent/memhost/document.go

// Package memhost is an in-memory host for the visual edit agent. It keeps a
// parsed HTML document with hand-set layout, records what the agent posts to
// its parent and runs deferred work on a manual clock. It backs the agent's
// tests and the agent-replay command.
package memhost

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/xkilldash9x/vedit/internal/agent"
)

// AttrOverlay marks overlay boxes created by the agent. Its value is the
// overlay variant.
const AttrOverlay = "data-vedit-overlay"

// ErrDetached is returned when an element handle no longer belongs to the
// document.
var ErrDetached = errors.New("memhost: element is detached from the document")

// Document implements agent.Document over an x/net/html tree.
type Document struct {
	root     *html.Node
	body     *html.Node
	embedded bool

	rects    map[*html.Node]agent.Rect
	viewport agent.Viewport

	cursor      string
	listening   bool
	observed    []string
	reloads     int
	layoutReads int
}

var _ agent.Document = (*Document)(nil)

// Parse reads an HTML page. embedded decides what Embedded reports.
func Parse(r io.Reader, embedded bool) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	d := &Document{
		root:     root,
		embedded: embedded,
		rects:    make(map[*html.Node]agent.Rect),
		viewport: agent.Viewport{Width: 1280, Height: 800},
	}
	d.body = findAtom(root, atom.Body)
	if d.body == nil {
		return nil, fmt.Errorf("parse page: no body element")
	}
	return d, nil
}

// ParseString is Parse for an inline page.
func ParseString(page string, embedded bool) (*Document, error) {
	return Parse(strings.NewReader(page), embedded)
}

// Element is a handle to a node of the document.
type Element struct {
	n *html.Node
}

var _ agent.Element = (*Element)(nil)

// TagName follows the DOM: upper case for HTML, as written for SVG.
func (e *Element) TagName() string {
	if e.n.Namespace != "" {
		return e.n.Data
	}
	return strings.ToUpper(e.n.Data)
}

func (e *Element) Attr(name string) (string, bool) {
	return getAttr(e.n, name)
}

func (e *Element) ClassName() string {
	v, _ := getAttr(e.n, "class")
	return v
}

// InnerText concatenates the text of the subtree.
func (e *Element) InnerText() string {
	var b strings.Builder
	var visit func(n *html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(e.n)
	return b.String()
}

// Node exposes the underlying html node.
func (e *Element) Node() *html.Node { return e.n }

func (d *Document) Embedded() bool { return d.embedded }

// QueryAll returns matching elements in document order. Overlays are never
// matched.
func (d *Document) QueryAll(q agent.Query) ([]agent.Element, error) {
	var out []agent.Element
	d.walk(func(n *html.Node) {
		if matches(n, q) {
			out = append(out, &Element{n: n})
		}
	})
	return out, nil
}

// Find is QueryAll returning concrete elements.
func (d *Document) Find(q agent.Query) []*Element {
	var out []*Element
	d.walk(func(n *html.Node) {
		if matches(n, q) {
			out = append(out, &Element{n: n})
		}
	})
	return out
}

// First returns the first element matching q or nil.
func (d *Document) First(q agent.Query) *Element {
	if els := d.Find(q); len(els) > 0 {
		return els[0]
	}
	return nil
}

// ByTag returns every element with the given lower-case tag name.
func (d *Document) ByTag(tag string) []*Element {
	var out []*Element
	d.walk(func(n *html.Node) {
		if n.Data == tag && !isOverlay(n) {
			out = append(out, &Element{n: n})
		}
	})
	return out
}

func (d *Document) Closest(el agent.Element, attrs ...string) (agent.Element, error) {
	n, err := d.node(el)
	if err != nil {
		return nil, err
	}
	for ; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		for _, a := range attrs {
			if _, ok := getAttr(n, a); ok {
				return &Element{n: n}, nil
			}
		}
	}
	return nil, nil
}

// BoundingRect returns the rect set with SetRect, or a zero rect.
func (d *Document) BoundingRect(el agent.Element) (agent.Rect, error) {
	n, err := d.node(el)
	if err != nil {
		return agent.Rect{}, err
	}
	d.layoutReads++
	return d.rects[n], nil
}

func (d *Document) Viewport() (agent.Viewport, error) {
	return d.viewport, nil
}

func (d *Document) SetAttr(el agent.Element, name, value string) error {
	n, err := d.node(el)
	if err != nil {
		return err
	}
	setAttr(n, name, value)
	return nil
}

func (d *Document) SetClassName(el agent.Element, classes string) error {
	return d.SetAttr(el, "class", classes)
}

// SetInnerText replaces the children of el with a single text node.
func (d *Document) SetInnerText(el agent.Element, text string) error {
	n, err := d.node(el)
	if err != nil {
		return err
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	return nil
}

func (d *Document) SetCursor(cursor string) error {
	d.cursor = cursor
	return nil
}

func (d *Document) ListenPointer(enabled bool) error {
	d.listening = enabled
	return nil
}

func (d *Document) Observe(attrs []string) error {
	d.observed = append([]string(nil), attrs...)
	return nil
}

func (d *Document) Reload() error {
	d.reloads++
	return nil
}

// SetRect fixes the viewport-relative box of el.
func (d *Document) SetRect(el *Element, r agent.Rect) {
	d.rects[el.n] = r
}

// SetViewport sets the window size and scroll offset.
func (d *Document) SetViewport(vp agent.Viewport) {
	d.viewport = vp
}

// Remove detaches el from the tree.
func (d *Document) Remove(el *Element) {
	if el.n.Parent != nil {
		el.n.Parent.RemoveChild(el.n)
	}
}

func (d *Document) Cursor() string     { return d.cursor }
func (d *Document) Listening() bool    { return d.listening }
func (d *Document) Observed() []string { return d.observed }
func (d *Document) Reloads() int       { return d.reloads }
func (d *Document) LayoutReads() int   { return d.layoutReads }

// Tagged reports whether el or any descendant carries a selector attribute,
// which is what the host computes for a mutation record.
func (d *Document) Tagged(el *Element) bool {
	found := false
	var visit func(n *html.Node)
	visit = func(n *html.Node) {
		if found {
			return
		}
		if n.Type == html.ElementNode {
			for _, a := range agent.SelectorAttrs {
				if _, ok := getAttr(n, a); ok {
					found = true
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(el.n)
	return found
}

// Render serialises the current tree.
func (d *Document) Render() (string, error) {
	var b strings.Builder
	if err := html.Render(&b, d.root); err != nil {
		return "", fmt.Errorf("render page: %w", err)
	}
	return b.String(), nil
}

// node unwraps an agent.Element and checks that it is still attached.
func (d *Document) node(el agent.Element) (*html.Node, error) {
	e, ok := el.(*Element)
	if !ok || e == nil {
		return nil, fmt.Errorf("memhost: foreign element %T", el)
	}
	for n := e.n; n != nil; n = n.Parent {
		if n == d.root {
			return e.n, nil
		}
	}
	return nil, ErrDetached
}

func (d *Document) walk(fn func(n *html.Node)) {
	var visit func(n *html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode {
			fn(n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(d.root)
}

func matches(n *html.Node, q agent.Query) bool {
	if isOverlay(n) {
		return false
	}
	v, ok := getAttr(n, q.Attr)
	if !ok {
		return false
	}
	if q.Value != "" && v != q.Value {
		return false
	}
	if q.Without != "" {
		if _, has := getAttr(n, q.Without); has {
			return false
		}
	}
	return true
}

func isOverlay(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if _, ok := getAttr(p, AttrOverlay); ok {
			return true
		}
	}
	return false
}

func getAttr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, name, value string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}

func findAtom(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findAtom(c, a); found != nil {
			return found
		}
	}
	return nil
}
