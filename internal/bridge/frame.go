// File: internal/bridge/frame.go
package bridge

import (
	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/vedit/internal/agent"
)

// Frame kinds sent by the in-page shim.
const (
	KindHello     = "hello"
	KindReply     = "reply"
	KindEvent     = "event"
	KindMutations = "mutations"
	KindMessage   = "message"
)

// Frame kinds sent to the shim.
const (
	KindCall = "call"
	KindPost = "post"
)

// Event names carried by KindEvent frames.
const (
	EventMouseOver = "mouseover"
	EventMouseOut  = "mouseout"
	EventClick     = "click"
	EventScroll    = "scroll"
	EventResize    = "resize"
	EventNavigate  = "navigate"
)

// Methods the shim executes for KindCall frames.
const (
	MethodQueryAll      = "queryAll"
	MethodClosest       = "closest"
	MethodRect          = "rect"
	MethodViewport      = "viewport"
	MethodSetAttr       = "setAttr"
	MethodSetClass      = "setClass"
	MethodSetText       = "setText"
	MethodCreateOverlay = "createOverlay"
	MethodPlaceOverlay  = "placeOverlay"
	MethodRemoveOverlay = "removeOverlay"
	MethodCursor        = "cursor"
	MethodListen        = "listen"
	MethodObserve       = "observe"
	MethodReload        = "reload"
)

// Frame is one websocket text message in either direction. Which fields
// are set depends on Kind.
type Frame struct {
	Kind string `json:"kind"`

	// call / reply
	ID     uint64          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Args   []any           `json:"args,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`

	// hello / event
	Embedded bool         `json:"embedded,omitempty"`
	URL      string       `json:"url,omitempty"`
	Event    string       `json:"event,omitempty"`
	Target   *ElementInfo `json:"target,omitempty"`
	// Suppressed reports what the shim decided for a click.
	Suppressed bool `json:"suppressed,omitempty"`

	// mutations
	Mutations []agent.Mutation `json:"mutations,omitempty"`

	// message (parent to page) / post (page to parent)
	Data json.RawMessage `json:"data,omitempty"`
}

// ElementInfo describes an element the shim holds a handle for. Attribute
// and text values are read at the moment the shim answers.
type ElementInfo struct {
	Handle    uint64            `json:"handle"`
	Tag       string            `json:"tag"`
	Attrs     map[string]string `json:"attrs,omitempty"`
	ClassName string            `json:"className"`
	Text      string            `json:"text"`
}

func encodeFrame(f Frame) ([]byte, error) {
	return json.Marshal(f)
}

func decodeFrame(raw []byte) (Frame, error) {
	var f Frame
	err := json.Unmarshal(raw, &f)
	return f, err
}
