// File: internal/bridge/hub.go

// Package bridge runs the visual edit agent against a real browser page. The
// page loads a small shim that opens a websocket to the dev server; each
// connection becomes a Session whose agent.Document, agent.Parent and
// agent.Scheduler are backed by frames exchanged with the shim.
package bridge

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xkilldash9x/vedit/internal/agent"
	"github.com/xkilldash9x/vedit/internal/config"
)

// Options configures sessions created by a Hub.
type Options struct {
	Agent       agent.Options
	CallTimeout time.Duration
	// MessageRate and MessageBurst bound inbound parent messages per session.
	MessageRate  float64
	MessageBurst int
}

// DefaultOptions returns the stock session settings.
func DefaultOptions() Options {
	return Options{
		Agent:        agent.DefaultOptions(),
		CallTimeout:  2 * time.Second,
		MessageRate:  200,
		MessageBurst: 50,
	}
}

// OptionsFromConfig maps the agent section of the configuration.
func OptionsFromConfig(cfg config.AgentConfig) Options {
	return Options{
		Agent: agent.Options{
			SettleDelay:        cfg.SettleDelay,
			MutationDebounce:   cfg.MutationDebounce,
			MountNotifications: cfg.MountNotifications,
		},
		CallTimeout:  cfg.CallTimeout,
		MessageRate:  cfg.MessageRate,
		MessageBurst: cfg.MessageBurst,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The shim is served by the same dev server but the page may be opened
	// through a proxy or tunnel host.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub tracks the live sessions of a dev server.
type Hub struct {
	logger *zap.Logger
	opts   Options

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

// NewHub creates a Hub.
func NewHub(logger *zap.Logger, opts Options) *Hub {
	def := DefaultOptions()
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = def.CallTimeout
	}
	if opts.MessageRate <= 0 {
		opts.MessageRate = def.MessageRate
	}
	if opts.MessageBurst <= 0 {
		opts.MessageBurst = def.MessageBurst
	}
	return &Hub{
		logger:   logger.Named("bridge"),
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// ServeHTTP upgrades the request and starts a session.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Upgrade(w, r); err != nil {
		h.logger.Error("Failed to upgrade websocket", zap.Error(err))
	}
}

// Upgrade turns an HTTP request into a running Session.
func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request) (*Session, error) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return nil, ErrSessionClosed
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("upgrade: %w", err)
	}

	s := newSession(h, conn)
	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()
	s.start()
	h.logger.Info("New page session connected", zap.String("session_id", s.id))
	return s, nil
}

func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s.id)
	h.mu.Unlock()
}

// Sessions returns a snapshot of the live sessions.
func (h *Hub) Sessions() []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		out = append(out, s)
	}
	return out
}

// Broadcast posts msg to the parent frame of every session.
func (h *Hub) Broadcast(msg any) {
	for _, s := range h.Sessions() {
		if err := s.PostMessage(msg); err != nil {
			h.logger.Debug("Broadcast to session failed", zap.String("session_id", s.id), zap.Error(err))
		}
	}
}

// ReloadAll reloads every connected page.
func (h *Hub) ReloadAll() {
	for _, s := range h.Sessions() {
		if err := s.Reload(); err != nil {
			h.logger.Debug("Reload failed", zap.String("session_id", s.id), zap.Error(err))
		}
	}
}

// Close ends every session and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range h.Sessions() {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Close()
		}(s)
	}
	wg.Wait()
}
