// File: internal/bridge/document.go
package bridge

import (
	"fmt"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/vedit/internal/agent"
)

// remoteElement is a snapshot of an element living in the browser.
type remoteElement struct {
	info ElementInfo
}

func (e *remoteElement) TagName() string { return e.info.Tag }

func (e *remoteElement) Attr(name string) (string, bool) {
	v, ok := e.info.Attrs[name]
	return v, ok
}

func (e *remoteElement) ClassName() string { return e.info.ClassName }
func (e *remoteElement) InnerText() string { return e.info.Text }

// remoteDocument implements agent.Document by calling into the shim. It is
// only used from the session's event loop.
type remoteDocument struct {
	s        *Session
	embedded bool
}

var _ agent.Document = (*remoteDocument)(nil)

func handleOf(el agent.Element) (uint64, error) {
	re, ok := el.(*remoteElement)
	if !ok || re == nil {
		return 0, fmt.Errorf("bridge: foreign element %T", el)
	}
	return re.info.Handle, nil
}

func (d *remoteDocument) Embedded() bool { return d.embedded }

func (d *remoteDocument) QueryAll(q agent.Query) ([]agent.Element, error) {
	var infos []ElementInfo
	if err := d.s.callInto(&infos, MethodQueryAll, q.String()); err != nil {
		return nil, err
	}
	out := make([]agent.Element, 0, len(infos))
	for _, info := range infos {
		out = append(out, &remoteElement{info: info})
	}
	return out, nil
}

func (d *remoteDocument) Closest(el agent.Element, attrs ...string) (agent.Element, error) {
	h, err := handleOf(el)
	if err != nil {
		return nil, err
	}
	selector := ""
	for i, a := range attrs {
		if i > 0 {
			selector += ", "
		}
		selector += agent.Query{Attr: a}.String()
	}
	var info *ElementInfo
	if err := d.s.callInto(&info, MethodClosest, h, selector); err != nil {
		return nil, err
	}
	if info == nil {
		return nil, nil
	}
	return &remoteElement{info: *info}, nil
}

func (d *remoteDocument) BoundingRect(el agent.Element) (agent.Rect, error) {
	h, err := handleOf(el)
	if err != nil {
		return agent.Rect{}, err
	}
	var r agent.Rect
	err = d.s.callInto(&r, MethodRect, h)
	return r, err
}

func (d *remoteDocument) Viewport() (agent.Viewport, error) {
	var vp agent.Viewport
	err := d.s.callInto(&vp, MethodViewport)
	return vp, err
}

func (d *remoteDocument) SetAttr(el agent.Element, name, value string) error {
	h, err := handleOf(el)
	if err != nil {
		return err
	}
	return d.s.callInto(nil, MethodSetAttr, h, name, value)
}

func (d *remoteDocument) SetClassName(el agent.Element, classes string) error {
	h, err := handleOf(el)
	if err != nil {
		return err
	}
	return d.s.callInto(nil, MethodSetClass, h, classes)
}

func (d *remoteDocument) SetInnerText(el agent.Element, text string) error {
	h, err := handleOf(el)
	if err != nil {
		return err
	}
	return d.s.callInto(nil, MethodSetText, h, text)
}

// CreateOverlay sends the box style along with the variant so the shim draws
// exactly what other hosts draw.
func (d *remoteDocument) CreateOverlay(variant agent.OverlayVariant, label string) (agent.Overlay, error) {
	style, ok := agent.OverlayStyle(variant)
	if !ok {
		return nil, fmt.Errorf("bridge: unknown overlay variant %q", variant)
	}
	var h uint64
	if err := d.s.callInto(&h, MethodCreateOverlay, string(variant), label, style); err != nil {
		return nil, err
	}
	return &remoteOverlay{s: d.s, handle: h}, nil
}

func (d *remoteDocument) SetCursor(cursor string) error {
	return d.s.callInto(nil, MethodCursor, cursor)
}

func (d *remoteDocument) ListenPointer(enabled bool) error {
	return d.s.callInto(nil, MethodListen, enabled)
}

func (d *remoteDocument) Observe(attrs []string) error {
	return d.s.callInto(nil, MethodObserve, attrs)
}

func (d *remoteDocument) Reload() error {
	return d.s.callInto(nil, MethodReload)
}

type remoteOverlay struct {
	s      *Session
	handle uint64
}

func (o *remoteOverlay) Place(r agent.Rect) error {
	return o.s.callInto(nil, MethodPlaceOverlay, o.handle, r)
}

func (o *remoteOverlay) Remove() error {
	return o.s.callInto(nil, MethodRemoveOverlay, o.handle)
}

// callInto performs a call and decodes its result into out when out is not
// nil.
func (s *Session) callInto(out any, method string, args ...any) error {
	raw, err := s.call(method, args...)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}
