// File: internal/agent/memhost/timers.go
package memhost

import (
	"sort"
	"time"

	"github.com/xkilldash9x/vedit/internal/agent"
)

// Timers is a manual clock implementing agent.Scheduler. Callbacks only run
// inside Advance, on the caller's goroutine.
type Timers struct {
	now     time.Duration
	seq     int
	pending []timer
}

type timer struct {
	due time.Duration
	seq int
	fn  func()
}

var _ agent.Scheduler = (*Timers)(nil)

func (t *Timers) AfterFunc(d time.Duration, fn func()) {
	if d < 0 {
		d = 0
	}
	t.seq++
	t.pending = append(t.pending, timer{due: t.now + d, seq: t.seq, fn: fn})
}

// Advance moves the clock forward by d and runs every callback that falls
// due, in due order. Callbacks scheduled while advancing run too if they
// fall inside the window.
func (t *Timers) Advance(d time.Duration) {
	end := t.now + d
	for {
		next := -1
		for i, tm := range t.pending {
			if tm.due > end {
				continue
			}
			if next < 0 || tm.due < t.pending[next].due ||
				(tm.due == t.pending[next].due && tm.seq < t.pending[next].seq) {
				next = i
			}
		}
		if next < 0 {
			break
		}
		tm := t.pending[next]
		t.pending = append(t.pending[:next], t.pending[next+1:]...)
		t.now = tm.due
		tm.fn()
	}
	t.now = end
}

// Pending returns the number of callbacks not yet run.
func (t *Timers) Pending() int { return len(t.pending) }

// Now returns the elapsed manual time.
func (t *Timers) Now() time.Duration { return t.now }

// Due lists pending deadlines in order, for assertions.
func (t *Timers) Due() []time.Duration {
	out := make([]time.Duration, 0, len(t.pending))
	for _, tm := range t.pending {
		out = append(out, tm.due)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
