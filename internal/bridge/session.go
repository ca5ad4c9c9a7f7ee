// File: internal/bridge/session.go
package bridge

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/vedit/internal/agent"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 4 << 20
	// Queued loop tasks before the reader blocks.
	taskBuffer = 256
)

var (
	// ErrSessionClosed is returned by calls on a session that has ended.
	ErrSessionClosed = errors.New("bridge: session closed")
	// ErrCallTimeout is returned when the shim does not answer a call in time.
	ErrCallTimeout = errors.New("bridge: call timed out")
)

// Session drives one embedded page. A single loop goroutine owns the agent
// controller; the reader goroutine feeds it and routes call replies.
type Session struct {
	id     string
	conn   *websocket.Conn
	hub    *Hub
	logger *zap.Logger
	opts   Options

	writeMu sync.Mutex

	nextCall  atomic.Uint64
	pendingMu sync.Mutex
	pending   map[uint64]chan Frame

	tasks     chan func()
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	limiter *rate.Limiter
	dropped atomic.Int64

	// Owned by the loop goroutine.
	ctrl *agent.Controller
}

func newSession(h *Hub, conn *websocket.Conn) *Session {
	id := uuid.New().String()
	return &Session{
		id:      id,
		conn:    conn,
		hub:     h,
		logger:  h.logger.With(zap.String("session_id", id)),
		opts:    h.opts,
		pending: make(map[uint64]chan Frame),
		tasks:   make(chan func(), taskBuffer),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(h.opts.MessageRate), h.opts.MessageBurst),
	}
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// Dropped returns how many parent messages were discarded by rate limiting.
func (s *Session) Dropped() int64 { return s.dropped.Load() }

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) start() {
	s.wg.Add(2)
	go s.readPump()
	go s.loop()
}

// Close ends the session and waits for its goroutines.
func (s *Session) Close() {
	s.shutdown()
	s.wg.Wait()
}

func (s *Session) shutdown() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		s.conn.Close()
		s.hub.unregister(s)
		s.logger.Debug("Session closed")
	})
}

// readPump pumps frames from the websocket connection into the loop.
func (s *Session) readPump() {
	defer s.wg.Done()
	defer s.shutdown()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error { return s.conn.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.logger.Warn("Websocket read error", zap.Error(err))
			}
			return
		}
		f, err := decodeFrame(raw)
		if err != nil {
			s.logger.Warn("Dropping undecodable frame", zap.Error(err))
			continue
		}
		s.route(f)
	}
}

func (s *Session) route(f Frame) {
	switch f.Kind {
	case KindReply:
		s.pendingMu.Lock()
		ch, ok := s.pending[f.ID]
		delete(s.pending, f.ID)
		s.pendingMu.Unlock()
		if ok {
			ch <- f
		}
	case KindHello:
		s.offer(func() { s.hello(f) })
	case KindEvent:
		s.offer(func() { s.event(f) })
	case KindMutations:
		s.offer(func() {
			if s.ctrl != nil {
				s.ctrl.HandleMutations(f.Mutations)
			}
		})
	case KindMessage:
		if !s.limiter.Allow() {
			s.dropped.Add(1)
			s.logger.Warn("Parent message rate exceeded; dropping message")
			return
		}
		msg, err := agent.ParseMessage(f.Data)
		if err != nil {
			s.logger.Warn("Dropping malformed parent message", zap.Error(err))
			return
		}
		s.offer(func() {
			if s.ctrl != nil {
				s.ctrl.HandleMessage(msg)
			}
		})
	default:
		s.logger.Debug("Ignoring frame", zap.String("kind", f.Kind))
	}
}

// loop runs every controller call. Calls made from here block on replies
// that the reader routes, so the reader never waits on the loop for them.
func (s *Session) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case fn := <-s.tasks:
			fn()
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			s.writeMu.Unlock()
			if err != nil {
				s.logger.Debug("Ping failed", zap.Error(err))
				go s.shutdown()
				return
			}
		case <-s.done:
			return
		}
	}
}

// offer queues fn from the reader without blocking, so replies keep
// flowing while the loop waits on a call. A full queue drops the work.
func (s *Session) offer(fn func()) {
	select {
	case s.tasks <- fn:
	case <-s.done:
	default:
		s.logger.Warn("Session queue full; dropping page event")
	}
}

// enqueue hands fn to the loop. It gives up once the session is closed.
func (s *Session) enqueue(fn func()) bool {
	select {
	case s.tasks <- fn:
		return true
	case <-s.done:
		return false
	}
}

func (s *Session) hello(f Frame) {
	if s.ctrl != nil {
		return
	}
	doc := &remoteDocument{s: s, embedded: f.Embedded}
	ctrl, err := agent.Start(doc, s, s, s.logger, s.opts.Agent)
	if errors.Is(err, agent.ErrStandalone) {
		s.logger.Info("Page is not embedded; closing session")
		go s.shutdown()
		return
	}
	s.ctrl = ctrl
	s.logger.Info("Visual edit agent attached", zap.String("url", f.URL))
	ctrl.HandleNavigation(f.URL)
}

func (s *Session) event(f Frame) {
	if s.ctrl == nil {
		return
	}
	switch f.Event {
	case EventMouseOver:
		if f.Target != nil {
			s.ctrl.HandleMouseOver(agent.PointerEvent{Target: &remoteElement{info: *f.Target}})
		}
	case EventMouseOut:
		s.ctrl.HandleMouseOut()
	case EventClick:
		if f.Target == nil {
			return
		}
		res := s.ctrl.HandleClick(agent.PointerEvent{Target: &remoteElement{info: *f.Target}})
		if res.Suppress != f.Suppressed {
			s.logger.Debug("Shim click decision differs from controller",
				zap.Bool("shim", f.Suppressed), zap.Bool("controller", res.Suppress))
		}
	case EventScroll:
		s.ctrl.HandleScroll()
	case EventResize:
		s.ctrl.HandleResize()
	case EventNavigate:
		s.ctrl.HandleNavigation(f.URL)
	default:
		s.logger.Debug("Ignoring event", zap.String("event", f.Event))
	}
}

// call sends a call frame and waits for the reply.
func (s *Session) call(method string, args ...any) ([]byte, error) {
	select {
	case <-s.done:
		return nil, ErrSessionClosed
	default:
	}

	id := s.nextCall.Add(1)
	ch := make(chan Frame, 1)
	s.pendingMu.Lock()
	s.pending[id] = ch
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, id)
		s.pendingMu.Unlock()
	}()

	if err := s.write(Frame{Kind: KindCall, ID: id, Method: method, Args: args}); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	timer := time.NewTimer(s.opts.CallTimeout)
	defer timer.Stop()
	select {
	case reply := <-ch:
		if reply.Error != "" {
			return nil, fmt.Errorf("%s: %s", method, reply.Error)
		}
		return reply.Result, nil
	case <-timer.C:
		return nil, fmt.Errorf("%s: %w", method, ErrCallTimeout)
	case <-s.done:
		return nil, fmt.Errorf("%s: %w", method, ErrSessionClosed)
	}
}

func (s *Session) write(f Frame) error {
	raw, err := encodeFrame(f)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, raw)
}

// PostMessage implements agent.Parent: the shim relays data to
// window.parent with a wildcard origin.
func (s *Session) PostMessage(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode posted message: %w", err)
	}
	return s.write(Frame{Kind: KindPost, Data: data})
}

// AfterFunc implements agent.Scheduler by re-entering the loop.
func (s *Session) AfterFunc(d time.Duration, fn func()) {
	time.AfterFunc(d, func() { s.enqueue(fn) })
}

// Reload asks the page to reload itself.
func (s *Session) Reload() error {
	_, err := s.call(MethodReload)
	return err
}
