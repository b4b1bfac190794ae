package core

import (
	"errors"
	"sync"

	"nightfall/protocol"
)

// DefaultMailboxSize is the number of pending control messages kept
const DefaultMailboxSize = 16

// ErrHeartbeatLine is returned for a heartbeat posted from outside the link.
// Peer liveness is only learned from the serial link.
var ErrHeartbeatLine = errors.New("heartbeat not accepted from a control channel")

// Mailbox is the only way other goroutines (WebSocket, HTTP, MQTT) hand
// messages to the control loop. Post holds the lock for a single append;
// the loop swaps the queue out under the lock and handles it unlocked.
type Mailbox struct {
	mu      sync.Mutex
	queue   []protocol.Message
	spare   []protocol.Message
	size    int
	dropped uint32
}

// NewMailbox creates a mailbox holding up to size ordinary messages
func NewMailbox(size int) *Mailbox {
	if size <= 0 {
		size = DefaultMailboxSize
	}
	return &Mailbox{
		queue: make([]protocol.Message, 0, size),
		spare: make([]protocol.Message, 0, size),
		size:  size,
	}
}

// Post queues a message. When the queue is full ordinary messages are
// dropped, but emergency and reset commands are always accepted.
func (m *Mailbox) Post(msg protocol.Message) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.queue) >= m.size && !isSafetyCommand(msg) {
		m.dropped++
		return false
	}
	m.queue = append(m.queue, msg)
	return true
}

// PostLine decodes a JSON control line and queues it
func (m *Mailbox) PostLine(line []byte) error {
	msg, err := protocol.DecodeLine(line)
	if err != nil {
		return err
	}
	if msg.Kind == protocol.KindHeartbeat {
		return ErrHeartbeatLine
	}
	m.Post(msg)
	return nil
}

// PostCommand queues a {"command":name} control message
func (m *Mailbox) PostCommand(name string) bool {
	return m.Post(protocol.Message{Kind: protocol.KindControl, Command: name})
}

// Drain hands every queued message to fn in arrival order
func (m *Mailbox) Drain(fn func(protocol.Message)) int {
	m.mu.Lock()
	batch := m.queue
	m.queue = m.spare[:0]
	m.mu.Unlock()

	for _, msg := range batch {
		fn(msg)
	}

	m.mu.Lock()
	if cap(batch) <= m.size*2 {
		m.spare = batch[:0]
	} else {
		m.spare = make([]protocol.Message, 0, m.size)
	}
	m.mu.Unlock()
	return len(batch)
}

// Len returns the number of queued messages
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Dropped returns how many messages were refused because the queue was full
func (m *Mailbox) Dropped() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

func isSafetyCommand(msg protocol.Message) bool {
	switch msg.Command {
	// emergency_reset is spelled the same on both channels
	case protocol.CommandEmergency, protocol.CommandEmergencyReset, protocol.LinkEmergencyStop:
		return msg.Kind == protocol.KindControl || msg.Kind == protocol.KindLink
	}
	return false
}
