package gateway

import (
	"sync"

	"github.com/google/uuid"
)

// DefaultSendBuffer is the outbound queue length used when none is given.
const DefaultSendBuffer = 256

// Conn is one socket's view in the registry. The transport drains Outbound
// and writes each message as a text frame.
type Conn struct {
	id   string
	send chan []byte

	mu   sync.RWMutex
	role Role
}

// NewConn creates a connection with the given outbound buffer size.
func NewConn(buffer int) *Conn {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	return &Conn{
		id:   uuid.NewString(),
		send: make(chan []byte, buffer),
	}
}

// ID returns the connection's unique identifier.
func (c *Conn) ID() string { return c.id }

// Outbound returns the queue of messages to write. It is closed when the
// connection is unregistered.
func (c *Conn) Outbound() <-chan []byte { return c.send }

// Role returns the connection's current role.
func (c *Conn) Role() Role {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

func (c *Conn) setRole(r Role) {
	c.mu.Lock()
	c.role = r
	c.mu.Unlock()
}

// trySend queues data without blocking. It returns false when the buffer is
// full or the connection has already been closed.
func (c *Conn) trySend(data []byte) (sent bool) {
	defer func() {
		if recover() != nil {
			sent = false
		}
	}()

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}
