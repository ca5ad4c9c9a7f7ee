// File: internal/agent/dom.go
package agent

import (
	"fmt"
	"strings"
	"time"
)

// Attribute names shared with the instrumentor and the parent editor.
const (
	AttrSourceLocation   = "data-source-location"
	AttrDynamicContent   = "data-dynamic-content"
	AttrVisualSelectorID = "data-visual-selector-id"
	AttrLineNumber       = "data-linenumber"
	AttrFilename         = "data-filename"
)

// SelectorAttrs are the attributes that make an element addressable, in
// order of preference.
var SelectorAttrs = []string{AttrSourceLocation, AttrVisualSelectorID}

// ObservedAttributes are the attribute changes that can move an element.
var ObservedAttributes = []string{"style", "class", "width", "height"}

// Rect is a bounding box relative to the viewport, as getBoundingClientRect
// reports it.
type Rect struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r Rect) Right() float64  { return r.Left + r.Width }
func (r Rect) Bottom() float64 { return r.Top + r.Height }

// Viewport is the visible window area and its scroll offset.
type Viewport struct {
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	ScrollX float64 `json:"scrollX"`
	ScrollY float64 `json:"scrollY"`
}

// Query selects elements by attribute. An empty Value matches any element
// that has Attr; Without excludes elements carrying that attribute.
type Query struct {
	Attr    string `json:"attr"`
	Value   string `json:"value,omitempty"`
	Without string `json:"without,omitempty"`
}

// String renders the query as a CSS selector.
func (q Query) String() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(q.Attr)
	if q.Value != "" {
		fmt.Fprintf(&b, `="%s"`, cssEscape(q.Value))
	}
	b.WriteString("]")
	if q.Without != "" {
		fmt.Fprintf(&b, ":not([%s])", q.Without)
	}
	return b.String()
}

func cssEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

// OverlayVariant selects the visual treatment of an overlay.
type OverlayVariant string

const (
	OverlayHover    OverlayVariant = "hover"
	OverlaySelected OverlayVariant = "selected"
)

// Hover is thin with a light tint; selected is heavier with no fill.
var overlayStyles = map[OverlayVariant]string{
	OverlayHover:    "border:2px solid #95a5fc;background-color:rgba(99,102,241,0.05)",
	OverlaySelected: "border:2px solid #2563EB",
}

// OverlayStyle returns the inline style hosts give an overlay box of the
// variant, without its geometry.
func OverlayStyle(v OverlayVariant) (string, bool) {
	s, ok := overlayStyles[v]
	return s, ok
}

// Element is a handle to a DOM element owned by the host.
type Element interface {
	// TagName is reported the way the DOM does, upper case for HTML.
	TagName() string
	Attr(name string) (string, bool)
	// ClassName resolves SVG's animated class name to its base value.
	ClassName() string
	InnerText() string
}

// Document is the part of the page the controller works against. Hosts
// return a nil Element and no error when a lookup finds nothing.
type Document interface {
	// Embedded reports whether the page runs inside another frame.
	Embedded() bool
	QueryAll(q Query) ([]Element, error)
	// Closest returns the nearest inclusive ancestor of el carrying any of
	// attrs.
	Closest(el Element, attrs ...string) (Element, error)
	// BoundingRect forces a layout read before measuring.
	BoundingRect(el Element) (Rect, error)
	Viewport() (Viewport, error)
	SetAttr(el Element, name, value string) error
	SetClassName(el Element, classes string) error
	SetInnerText(el Element, text string) error
	// CreateOverlay appends a non-interactive, absolutely positioned box
	// with a floating label to the body.
	CreateOverlay(variant OverlayVariant, label string) (Overlay, error)
	SetCursor(cursor string) error
	// ListenPointer attaches or detaches the mouseover, mouseout and
	// capturing click listeners.
	ListenPointer(enabled bool) error
	// Observe starts a subtree mutation observer for childList changes and
	// the given attributes.
	Observe(attrs []string) error
	Reload() error
}

// Overlay is a box drawn over an element.
type Overlay interface {
	// Place moves the overlay to r, given in page coordinates.
	Place(r Rect) error
	Remove() error
}

// Parent is the embedding editor frame.
type Parent interface {
	PostMessage(msg any) error
}

// Scheduler defers work. Callbacks must run on the same goroutine that
// drives the Controller.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func())
}

// PointerEvent is a mouseover or click delivered by the host.
type PointerEvent struct {
	Target Element
}

// ClickResult tells the host what to do with the original click.
type ClickResult struct {
	// Suppress means preventDefault plus stopImmediatePropagation.
	Suppress bool
}

// MutationType mirrors MutationRecord.type.
type MutationType string

const (
	MutationAttributes MutationType = "attributes"
	MutationChildList  MutationType = "childList"
)

// Mutation is the host's summary of one MutationRecord.
type Mutation struct {
	Type      MutationType `json:"type"`
	Attribute string       `json:"attribute,omitempty"`
	// Tagged is true when an element carrying a selector attribute is in the
	// changed element's subtree for attribute records, or in an added or
	// removed subtree for childList records. A childList record's parent
	// does not count.
	Tagged bool `json:"tagged"`
}
