// File: internal/agent/memhost/outbox.go
package memhost

import (
	"fmt"
	"sync"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/vedit/internal/agent"
)

// Outbox is an agent.Parent that records every posted message as JSON.
type Outbox struct {
	mu       sync.Mutex
	messages []json.RawMessage
}

var _ agent.Parent = (*Outbox)(nil)

func (o *Outbox) PostMessage(msg any) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode posted message: %w", err)
	}
	o.mu.Lock()
	o.messages = append(o.messages, raw)
	o.mu.Unlock()
	return nil
}

// Messages returns the recorded messages in posting order.
func (o *Outbox) Messages() []json.RawMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]json.RawMessage(nil), o.messages...)
}

// Types returns the type field of every recorded message.
func (o *Outbox) Types() []string {
	msgs := o.Messages()
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, json.Get(m, "type").ToString())
	}
	return out
}

// Last decodes the most recent message of the given type into v and
// reports whether one was found.
func (o *Outbox) Last(msgType string, v any) bool {
	msgs := o.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if json.Get(msgs[i], "type").ToString() != msgType {
			continue
		}
		return json.Unmarshal(msgs[i], v) == nil
	}
	return false
}

// Count returns how many messages of the given type were posted.
func (o *Outbox) Count(msgType string) int {
	n := 0
	for _, t := range o.Types() {
		if t == msgType {
			n++
		}
	}
	return n
}

// Reset forgets everything recorded so far.
func (o *Outbox) Reset() {
	o.mu.Lock()
	o.messages = nil
	o.mu.Unlock()
}
