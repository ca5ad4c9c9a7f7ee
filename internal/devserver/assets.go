// File: internal/devserver/assets.go
package devserver

import (
	_ "embed"
)

// Paths under which the dev server exposes its own endpoints.
const (
	AgentScriptPath = "/__vedit/agent.js"
	HMRScriptPath   = "/__vedit/hmr.js"
	ErrorScriptPath = "/__vedit/errors.js"
	BridgePath      = "/__vedit/ws"
	EventsPath      = "/__vedit/events"
)

//go:embed assets/agent.js
var agentScript []byte

//go:embed assets/hmr.js
var hmrScript []byte

//go:embed assets/errors.js
var errorScript []byte
