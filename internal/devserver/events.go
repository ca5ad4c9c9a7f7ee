// File: internal/devserver/events.go
package devserver

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event names on the rebuild stream.
const (
	// EventRebuild starts every rebuild, whatever the notifier setting.
	EventRebuild = "rebuild"
	// EventUpdate carries a message for the parent frame.
	EventUpdate = "update"
	EventReload = "reload"
)

const heartbeatPeriod = 30 * time.Second

type event struct {
	name string
	data string
}

// broker fans rebuild events out to server-sent event streams.
type broker struct {
	logger *zap.Logger

	mu     sync.Mutex
	subs   map[chan event]struct{}
	closed bool
	done   chan struct{}
}

func newBroker(logger *zap.Logger) *broker {
	return &broker{
		logger: logger,
		subs:   make(map[chan event]struct{}),
		done:   make(chan struct{}),
	}
}

func (b *broker) subscribe() (chan event, func()) {
	ch := make(chan event, 16)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
	}
}

// publish never blocks; a subscriber with a full buffer misses the event.
func (b *broker) publish(name, data string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- event{name: name, data: data}:
		default:
			b.logger.Debug("Event stream subscriber is slow; dropping event", zap.String("event", name))
		}
	}
}

func (b *broker) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// close ends every stream so that in-flight handlers return.
func (b *broker) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.done)
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}

func (b *broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ch, cancel := b.subscribe()
	defer cancel()

	fmt.Fprint(w, ": vedit rebuild stream\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatPeriod)
	defer heartbeat.Stop()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, ev.data)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			return
		case <-b.done:
			return
		}
	}
}
