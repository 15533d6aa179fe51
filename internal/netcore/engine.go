package netcore

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bilalaabkari/pulsenet/internal/asyncio"
	"github.com/bilalaabkari/pulsenet/internal/assembler"
	"github.com/bilalaabkari/pulsenet/internal/concurrency"
)

// MaxReceiveBuffer is the hard per-connection receive buffer ceiling. A
// client that accumulates this many unconsumed bytes without the
// assembler framing a message is treated as misbehaving and dropped.
const MaxReceiveBuffer = 8192

// Logger is the minimal sink the engine writes operational events to.
// internal/logging.Logger satisfies it; tests can supply a stub.
type Logger interface {
	Write(severity string, message string)
}

type noopLogger struct{}

func (noopLogger) Write(string, string) {}

// Request pairs a client ID with one framed message produced by the
// assembler, the unit of work handed to application code via Next.
type Request struct {
	ClientID uint64
	Message  assembler.Message
}

// Options configures a new Engine.
type Options struct {
	ListenAddr    string
	Assembler     assembler.Assembler
	Poller        asyncio.Poller
	BufferPool    *asyncio.BytePool
	Workers       int
	QueueCapacity uint64
	Logger        Logger
}

// Engine is the connection engine: it accepts connections, drives reads
// and writes through a Poller, feeds bytes through an Assembler via a
// worker pool, and exposes framed messages through Next.
type Engine struct {
	opts     Options
	listener net.Listener
	poller   asyncio.Poller
	pool     *asyncio.BytePool
	reg      *registry
	nextID   atomic.Uint64

	assemblyQueue *concurrency.BlockingQueue[uint64]
	requestQueue  *concurrency.BlockingQueue[Request]

	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc

	logger Logger
}

// New constructs an Engine. Start must be called before it accepts
// connections.
func New(opts Options) *Engine {
	if opts.Assembler == nil {
		opts.Assembler = assembler.Default{}
	}
	if opts.Poller == nil {
		opts.Poller = asyncio.NewOSPoller()
	}
	if opts.BufferPool == nil {
		opts.BufferPool = asyncio.DefaultBytePool()
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueCapacity == 0 {
		opts.QueueCapacity = 1024
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Engine{
		opts:          opts,
		poller:        opts.Poller,
		pool:          opts.BufferPool,
		reg:           newRegistry(),
		assemblyQueue: concurrency.NewBlockingQueue[uint64](opts.QueueCapacity),
		requestQueue:  concurrency.NewBlockingQueue[Request](opts.QueueCapacity),
		logger:        opts.Logger,
	}
}

// Start binds the listening socket, starts the poller, the accept loop
// and the assembler worker pool.
func (e *Engine) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", e.opts.ListenAddr)
	if err != nil {
		var se *os.SyscallError
		if errors.As(err, &se) {
			switch se.Syscall {
			case "socket":
				return errors.Join(ErrSocketInit, err)
			case "listen":
				return errors.Join(ErrListenFailed, err)
			}
		}
		return errors.Join(ErrBindFailed, err)
	}
	e.listener = ln

	e.ctx, e.cancel = context.WithCancel(ctx)
	if err := e.poller.Start(e.ctx); err != nil {
		ln.Close()
		return errors.Join(ErrListenFailed, err)
	}

	g, gctx := errgroup.WithContext(e.ctx)
	e.group = g

	g.Go(func() error { return e.acceptLoop(gctx) })
	for i := 0; i < e.opts.Workers; i++ {
		g.Go(func() error { return e.assemblyWorker(gctx) })
	}
	return nil
}

// Stop closes the listener, starts every client draining, waits for their
// in-flight I/O references to release, stops the poller, and waits for the
// worker goroutines to drain.
func (e *Engine) Stop() error {
	if e.cancel != nil {
		e.cancel()
	}
	if e.listener != nil {
		e.listener.Close()
	}
	for _, c := range e.reg.snapshot() {
		e.disconnect(c, nil)
	}
	e.drainClients()
	e.poller.Stop()
	e.assemblyQueue.Close()
	e.requestQueue.Close()
	if e.group != nil {
		if err := e.group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	return nil
}

// drainClients waits for every client's in-flight read, write and assembly
// references to release — the same reference-count discipline that gates
// a single client's destruction — before the poller and queues are torn
// down. Bounded so a stuck reference can't hang shutdown forever.
func (e *Engine) drainClients() {
	deadline := time.Now().Add(5 * time.Second)
	for e.reg.count() > 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
}

func (e *Engine) acceptLoop(ctx context.Context) error {
	for {
		conn, err := e.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			e.logger.Write("ERROR", "accept failed: "+err.Error())
			continue
		}
		e.onAccept(conn)
	}
}

func (e *Engine) onAccept(conn net.Conn) {
	id := e.nextID.Add(1)
	buf := e.pool.Get(MaxReceiveBuffer)
	c := newClient(id, conn, buf)
	e.reg.insert(c)
	e.logger.Write("DEBUG", "client connected: "+c.RemoteAddr)

	err := e.poller.Register(conn, []asyncio.EventType{asyncio.Readable, asyncio.Writable}, func(ev asyncio.Event) {
		switch ev.Type {
		case asyncio.Readable:
			e.onReadable(c)
		case asyncio.Writable:
			e.onWritable(c)
		case asyncio.Error:
			e.disconnect(c, ev.Err)
		}
	})
	if err != nil {
		e.logger.Write("ERROR", "register failed: "+err.Error())
		conn.Close()
		e.reg.remove(id)
		return
	}
	// The registration itself holds a reference for the connection's
	// whole registered lifetime, released in disconnect's Deregister.
	c.Acquire()
}

// onReadable posts at most one outstanding receive per client: it only
// reads and hands the client off to the assembly queue while
// assemblyPending is false, and only processClient (once it has finished
// touching recvBuf/recvLen) clears it. This keeps recvBuf/recvLen mutated
// by exactly one goroutine at a time.
func (e *Engine) onReadable(c *Client) {
	if c.Disconnecting() {
		return
	}
	if !c.assemblyPending.CompareAndSwap(false, true) {
		// A previous buffer from this client is still awaiting assembly.
		// The poller keeps reporting Readable as long as bytes sit unread
		// in the kernel socket buffer, so this event is simply skipped;
		// processClient will clear assemblyPending and the next event
		// will post the receive.
		return
	}
	c.Acquire()
	defer e.releaseClient(c)

	n, err := c.Conn.Read(c.recvBuf[c.recvLen:])
	if n > 0 {
		c.recvLen += n
		c.lastRecvLen = n
		e.assemblyQueue.Push(c.ID)
	} else {
		c.assemblyPending.Store(false)
	}
	if err != nil {
		c.assemblyPending.Store(false)
		if errors.Is(err, io.EOF) {
			e.logger.Write("DEBUG", "client closed connection: "+c.RemoteAddr)
			e.disconnect(c, nil)
			return
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return
		}
		e.logger.Write("ERROR", "read error on "+c.RemoteAddr+": "+err.Error())
		e.disconnect(c, err)
	}
}

// onWritable drains the outbound queue under the client's send-exclusion
// claim: only the goroutine that wins beginSend actually calls Conn.Write,
// so two callers (Send and the poller's own Writable readiness event) can
// never have writes for the same client in flight at once, preserving
// FIFO delivery.
func (e *Engine) onWritable(c *Client) {
	if !c.beginSend() {
		return
	}
	c.Acquire()
	defer e.releaseClient(c)

	for {
		data, ok := c.nextOutbound()
		if !ok {
			return
		}
		if _, err := c.Conn.Write(data); err != nil {
			c.endSend()
			e.logger.Write("ERROR", "write error on "+c.RemoteAddr+": "+err.Error())
			e.disconnect(c, err)
			return
		}
	}
}

// Send queues data for client id and arranges for it to be written out.
func (e *Engine) Send(id uint64, data []byte) error {
	c, ok := e.reg.get(id)
	if !ok {
		return ErrUnknownClient
	}
	if c.Disconnecting() {
		return ErrUnknownClient
	}
	c.enqueueOutbound(data)
	e.onWritable(c)
	return nil
}

// releaseClient drops a reference obtained via c.Acquire, closing the
// connection and removing it from the registry once the destruction
// predicate (disconnecting && refCount == 0) is met. Centralized here so
// every Acquire site (registration, a posted read, a posted write, an
// assembly pass) tears the client down through the same path.
func (e *Engine) releaseClient(c *Client) {
	if c.Release() {
		c.Conn.Close()
		e.pool.Put(c.recvBuf)
		e.reg.remove(c.ID)
	}
}

// Next blocks until a framed message is available or ctx is cancelled.
func (e *Engine) Next(ctx context.Context) (Request, bool) {
	return e.requestQueue.Pop(ctx)
}

// ShowClients writes the live client table to w via the registry.
func (e *Engine) ShowClients(w io.Writer) { e.reg.showClients(w) }

// disconnect latches the client into draining, deregisters it from the
// poller, and releases the reference the registration held — once that
// and every other in-flight reference (a read, a write, an assembly pass)
// has released, releaseClient closes the connection and removes it from
// the registry.
func (e *Engine) disconnect(c *Client, _ error) {
	if !c.MarkDisconnecting() {
		return
	}
	e.poller.Deregister(c.Conn)
	e.opts.Assembler.Release(c.ID)
	e.releaseClient(c)
}
