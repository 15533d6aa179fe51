// Package netcore implements the TCP connection engine: accepting
// connections, driving non-blocking reads through a pluggable assembler,
// dispatching framed messages to a worker pool, and serializing outbound
// writes per client.
package netcore

import (
	"net"
	"sync"
	"sync/atomic"
)

// Client tracks one accepted connection's identity and lifecycle. It is
// reference counted: every in-flight operation referencing a client (a
// pending send, a worker processing a message from it) holds a reference
// via Acquire/Release. A client is only removed from the registry and
// its connection closed once disconnecting is set and refCount reaches
// zero — the destruction predicate.
type Client struct {
	ID   uint64
	Conn net.Conn

	RemoteAddr string

	recvBuf     []byte
	recvLen     int
	lastRecvLen int

	// assemblyPending gates flow control: onReadable may only post a
	// receive (read into recvBuf and push to the assembly queue) while
	// this is false, and only processClient may clear it, once it is
	// done touching recvBuf/recvLen. This keeps at most one party
	// mutating those fields at a time.
	assemblyPending atomic.Bool

	sendMu        sync.Mutex
	sending       bool
	outbound      [][]byte
	refCount      atomic.Int64
	disconnecting atomic.Bool
}

func newClient(id uint64, conn net.Conn, recvBuf []byte) *Client {
	return &Client{
		ID:         id,
		Conn:       conn,
		RemoteAddr: conn.RemoteAddr().String(),
		recvBuf:    recvBuf,
	}
}

// Acquire increments the reference count. Call before handing the client
// to code that will operate on it asynchronously.
func (c *Client) Acquire() { c.refCount.Add(1) }

// Release decrements the reference count and reports whether the client
// has met its destruction predicate (disconnecting && refCount == 0).
func (c *Client) Release() bool {
	n := c.refCount.Add(-1)
	return n == 0 && c.disconnecting.Load()
}

// MarkDisconnecting latches the client into the Draining state. It is
// idempotent; the first caller to transition it returns true.
func (c *Client) MarkDisconnecting() bool {
	return c.disconnecting.CompareAndSwap(false, true)
}

// Disconnecting reports whether this client has started draining.
func (c *Client) Disconnecting() bool { return c.disconnecting.Load() }

// enqueueOutbound appends data to the client's pending-send queue. It does
// not itself drain the queue; callers still need to win beginSend (directly
// or via onWritable) to become the one goroutine that writes it out.
func (c *Client) enqueueOutbound(data []byte) {
	c.sendMu.Lock()
	c.outbound = append(c.outbound, data)
	c.sendMu.Unlock()
}

// beginSend attempts to become the exclusive drainer of the outbound
// queue, returning false if another goroutine is already draining it.
// That goroutine is guaranteed to see anything enqueued after this call
// returns, since enqueueOutbound and nextOutbound share sendMu.
func (c *Client) beginSend() bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sending {
		return false
	}
	c.sending = true
	return true
}

// endSend releases the exclusive drain claim without having emptied the
// queue, used when a write fails mid-drain.
func (c *Client) endSend() {
	c.sendMu.Lock()
	c.sending = false
	c.sendMu.Unlock()
}

// nextOutbound pops the next pending send, or reports none remain and
// releases the drain claim.
func (c *Client) nextOutbound() ([]byte, bool) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if len(c.outbound) == 0 {
		c.sending = false
		return nil, false
	}
	data := c.outbound[0]
	c.outbound = c.outbound[1:]
	return data, true
}
