package agent

import "sync"

// Mailbox is a FIFO of guidance messages for a running agent. Senders push
// at any time; the loop drains everything queued at the top of each
// iteration and injects the messages as user turns.
type Mailbox struct {
	mu   sync.Mutex
	msgs []string
}

func NewMailbox() *Mailbox {
	return &Mailbox{}
}

// Push queues one guidance message.
func (m *Mailbox) Push(msg string) {
	m.mu.Lock()
	m.msgs = append(m.msgs, msg)
	m.mu.Unlock()
}

// Drain returns all queued messages in arrival order and empties the box.
func (m *Mailbox) Drain() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.msgs) == 0 {
		return nil
	}
	out := m.msgs
	m.msgs = nil
	return out
}

// Len reports how many messages are waiting.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.msgs)
}
