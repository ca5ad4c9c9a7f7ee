// File: internal/agent/protocol.go
package agent

import (
	"fmt"

	json "github.com/json-iterator/go"
)

// Inbound message types, sent by the parent editor.
const (
	TypeToggleVisualEditMode   = "toggle-visual-edit-mode"
	TypeUpdateClasses          = "update-classes"
	TypeUnselectElement        = "unselect-element"
	TypeRefreshPage            = "refresh-page"
	TypeUpdateContent          = "update-content"
	TypeRequestElementPosition = "request-element-position"
	TypePopoverDragState       = "popover-drag-state"
	TypeDropdownState          = "dropdown-state"
)

// Outbound message types, posted to the parent editor.
const (
	TypeAgentReady            = "visual-edit-agent-ready"
	TypeElementSelected       = "element-selected"
	TypeElementPositionUpdate = "element-position-update"
	TypeCloseDropdowns        = "close-dropdowns"
	TypeSandboxMounted        = "sandbox:onMounted"
	TypeSandboxUnmounted      = "sandbox:onUnmounted"
	TypeSandboxBeforeUpdate   = "sandbox:beforeUpdate"
	TypeSandboxAfterUpdate    = "sandbox:afterUpdate"
	TypeAppChangedURL         = "app_changed_url"
	TypeAppError              = "app_error"
)

// Message is the envelope the parent posts into the frame.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ParseMessage decodes a posted envelope. Anything without a string type is
// rejected.
func ParseMessage(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if msg.Type == "" {
		return Message{}, fmt.Errorf("decode message: missing type")
	}
	return msg, nil
}

// NewMessage builds an envelope with data marshalled into it. A nil data
// produces an envelope without a data field.
func NewMessage(msgType string, data any) (Message, error) {
	msg := Message{Type: msgType}
	if data == nil {
		return msg, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	msg.Data = raw
	return msg, nil
}

// Payloads use pointers so absent fields can be told apart from zero values.

type toggleEditModeData struct {
	Enabled *bool `json:"enabled"`
}

type updateClassesData struct {
	VisualSelectorID *string `json:"visualSelectorId"`
	Classes          *string `json:"classes"`
}

type updateContentData struct {
	VisualSelectorID *string `json:"visualSelectorId"`
	Content          *string `json:"content"`
}

type popoverDragData struct {
	IsDragging *bool `json:"isDragging"`
}

type dropdownStateData struct {
	IsOpen *bool `json:"isOpen"`
}

// decodeData unmarshals msg.Data into v. A missing data object is reported
// as ErrInvalidPayload.
func decodeData(msg Message, v any) error {
	if len(msg.Data) == 0 || string(msg.Data) == "null" {
		return fmt.Errorf("%w: %s has no data", ErrInvalidPayload, msg.Type)
	}
	if err := json.Unmarshal(msg.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, msg.Type, err)
	}
	return nil
}

func missingField(msgType, field string) error {
	return fmt.Errorf("%w: %s requires %q", ErrInvalidPayload, msgType, field)
}

// Position is the geometry reported for a selected element, relative to the
// viewport.
type Position struct {
	Top     float64 `json:"top"`
	Left    float64 `json:"left"`
	Right   float64 `json:"right"`
	Bottom  float64 `json:"bottom"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	CenterX float64 `json:"centerX"`
	CenterY float64 `json:"centerY"`
}

// PositionOf derives a Position from a bounding rect.
func PositionOf(r Rect) Position {
	return Position{
		Top:     r.Top,
		Left:    r.Left,
		Right:   r.Right(),
		Bottom:  r.Bottom(),
		Width:   r.Width,
		Height:  r.Height,
		CenterX: r.Left + r.Width/2,
		CenterY: r.Top + r.Height/2,
	}
}

// InViewport reports whether r intersects the viewport on all four edges.
func InViewport(r Rect, vp Viewport) bool {
	return r.Top < vp.Height && r.Bottom() > 0 && r.Left < vp.Width && r.Right() > 0
}

// Notice is an outbound message that carries nothing but its type.
type Notice struct {
	Type string `json:"type"`
}

// ElementSelected is posted when a click selects an element.
type ElementSelected struct {
	Type               string   `json:"type"`
	TagName            string   `json:"tagName"`
	Classes            string   `json:"classes"`
	VisualSelectorID   string   `json:"visualSelectorId"`
	Content            string   `json:"content"`
	DataSourceLocation string   `json:"dataSourceLocation,omitempty"`
	IsDynamicContent   bool     `json:"isDynamicContent"`
	LineNumber         string   `json:"linenumber,omitempty"`
	Filename           string   `json:"filename,omitempty"`
	Position           Position `json:"position"`
}

// ElementPositionUpdate reports the geometry of the current selection.
type ElementPositionUpdate struct {
	Type             string   `json:"type"`
	Position         Position `json:"position"`
	IsInViewport     bool     `json:"isInViewport"`
	VisualSelectorID string   `json:"visualSelectorId"`
}

// URLChanged reports client-side navigation inside the frame.
type URLChanged struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// AppError reports a failure the parent should surface to the user, either a
// failed rebuild or an uncaught error in the running app.
type AppError struct {
	Type  string       `json:"type"`
	Error ErrorDetails `json:"error"`
}

// ErrorDetails is the body of an app_error message.
type ErrorDetails struct {
	Title         string `json:"title"`
	Details       string `json:"details,omitempty"`
	ComponentName string `json:"componentName,omitempty"`
	Stack         string `json:"stack,omitempty"`
}

// NewAppError builds an app_error message.
func NewAppError(title, details string) AppError {
	return AppError{Type: TypeAppError, Error: ErrorDetails{Title: title, Details: details}}
}
