package broadcast

import (
	"sync"

	domain "github.com/example/roomchat/domain/chat"
	"github.com/google/uuid"
)

// DefaultSendBuffer is the number of frames queued per connection before it is
// treated as a slow consumer and closed.
const DefaultSendBuffer = 256

// Client is one live connection. Frames are queued on a bounded channel and
// written by a single writer goroutine owned by the transport.
type Client struct {
	ID       string
	Identity domain.Identity

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a client for identity with a send queue of size buffer.
func NewClient(identity domain.Identity, buffer int) *Client {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	return &Client{
		ID:       uuid.New().String(),
		Identity: identity,
		send:     make(chan []byte, buffer),
		done:     make(chan struct{}),
	}
}

// Outbound returns the queue the writer drains.
func (c *Client) Outbound() <-chan []byte {
	return c.send
}

// Done is closed once the client has been closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close marks the client closed. It is safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Closed reports whether Close has been called.
func (c *Client) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Send queues a frame without blocking. A client whose queue is full is closed.
func (c *Client) Send(frame []byte) bool {
	if c.Closed() {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.Close()
		return false
	}
}
