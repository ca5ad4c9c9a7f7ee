// File: internal/agent/memhost/overlay.go
package memhost

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/xkilldash9x/vedit/internal/agent"
)

// Box is what a test sees of an overlay on the page.
type Box struct {
	Variant agent.OverlayVariant
	Label   string
	Rect    agent.Rect
}

type overlay struct {
	doc     *Document
	n       *html.Node
	variant agent.OverlayVariant
	style   string
	label   string
	rect    agent.Rect
}

func (d *Document) CreateOverlay(variant agent.OverlayVariant, label string) (agent.Overlay, error) {
	style, ok := agent.OverlayStyle(variant)
	if !ok {
		return nil, fmt.Errorf("memhost: unknown overlay variant %q", variant)
	}

	n := &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
		Attr: []html.Attribute{
			{Key: AttrOverlay, Val: string(variant)},
			{Key: "style", Val: "position:absolute;pointer-events:none;z-index:9999;" + style},
		},
	}
	tag := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	tag.AppendChild(&html.Node{Type: html.TextNode, Data: label})
	n.AppendChild(tag)
	d.body.AppendChild(n)

	return &overlay{doc: d, n: n, variant: variant, style: style, label: label}, nil
}

func (o *overlay) Place(r agent.Rect) error {
	if o.n.Parent == nil {
		return ErrDetached
	}
	o.rect = r
	setAttr(o.n, "style", fmt.Sprintf("position:absolute;pointer-events:none;z-index:9999;%s;top:%gpx;left:%gpx;width:%gpx;height:%gpx",
		o.style, r.Top, r.Left, r.Width, r.Height))
	return nil
}

func (o *overlay) Remove() error {
	if o.n.Parent != nil {
		o.n.Parent.RemoveChild(o.n)
	}
	return nil
}

// Overlays lists the overlay boxes currently in the body. An empty variant
// lists all of them.
func (d *Document) Overlays(variant agent.OverlayVariant) []Box {
	var out []Box
	for c := d.body.FirstChild; c != nil; c = c.NextSibling {
		v, ok := getAttr(c, AttrOverlay)
		if !ok || (variant != "" && agent.OverlayVariant(v) != variant) {
			continue
		}
		box := Box{Variant: agent.OverlayVariant(v), Rect: parseRect(c)}
		if c.FirstChild != nil && c.FirstChild.FirstChild != nil {
			box.Label = c.FirstChild.FirstChild.Data
		}
		out = append(out, box)
	}
	return out
}

// parseRect reads the box back out of the overlay's inline style.
func parseRect(n *html.Node) agent.Rect {
	style, _ := getAttr(n, "style")
	var r agent.Rect
	for _, decl := range strings.Split(style, ";") {
		prop, val, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSuffix(val, "px"), 64)
		if err != nil {
			continue
		}
		switch prop {
		case "top":
			r.Top = v
		case "left":
			r.Left = v
		case "width":
			r.Width = v
		case "height":
			r.Height = v
		}
	}
	return r
}
