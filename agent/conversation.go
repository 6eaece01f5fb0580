package agent

import (
	"sync"

	"github.com/okenlabs/foreman/llm"
)

// Conversation is the mutable message history behind one agent loop. The
// loop appends assistant and tool turns as it runs; respawn replaces the
// whole history in place.
type Conversation struct {
	mu   sync.Mutex
	msgs []llm.Message
}

func NewConversation() *Conversation {
	return &Conversation{}
}

// Seed installs the initial messages if the history is still empty.
func (c *Conversation) Seed(msgs ...llm.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.msgs) == 0 {
		c.msgs = append(c.msgs, msgs...)
	}
}

// Append adds messages to the end of the history.
func (c *Conversation) Append(msgs ...llm.Message) {
	c.mu.Lock()
	c.msgs = append(c.msgs, msgs...)
	c.mu.Unlock()
}

// Replace discards the history and installs msgs as the new one.
func (c *Conversation) Replace(msgs ...llm.Message) {
	c.mu.Lock()
	c.msgs = append([]llm.Message(nil), msgs...)
	c.mu.Unlock()
}

// Messages returns a copy of the current history.
func (c *Conversation) Messages() []llm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]llm.Message(nil), c.msgs...)
}

// Len reports how many messages the history holds.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}
