// File: internal/agent/errors.go
package agent

import "errors"

// ErrStandalone is returned by Start when the page is not inside a frame.
// The agent stays inert in that case.
var ErrStandalone = errors.New("agent: page is not embedded in a frame")

// ErrInvalidPayload marks an inbound command missing a required field.
var ErrInvalidPayload = errors.New("agent: invalid message payload")
