package netcore

import "context"

// assemblyWorker pops client IDs whose receive buffer has new bytes,
// runs the assembler over them, and forwards framed messages to the
// request queue. Running this off the poller's I/O goroutines keeps
// parsing CPU work from blocking readiness delivery for other clients.
func (e *Engine) assemblyWorker(ctx context.Context) error {
	for {
		id, ok := e.assemblyQueue.Pop(ctx)
		if !ok {
			return nil
		}
		e.processClient(id)
	}
}

func (e *Engine) processClient(id uint64) {
	c, ok := e.reg.get(id)
	if !ok || c.Disconnecting() {
		return
	}
	c.Acquire()
	defer e.releaseClient(c)

	res := e.opts.Assembler.Feed(c.ID, c.recvBuf[:c.recvLen], c.lastRecvLen)
	if res.Consumed > 0 {
		remaining := c.recvLen - res.Consumed
		if remaining > 0 {
			copy(c.recvBuf, c.recvBuf[res.Consumed:c.recvLen])
		}
		c.recvLen = remaining
	}
	// recvBuf/recvLen are done being touched for this pass; onReadable may
	// now post the next receive for this client.
	c.assemblyPending.Store(false)

	if res.Err != nil {
		if len(res.ErrorPayload) > 0 {
			c.enqueueOutbound(res.ErrorPayload)
			e.onWritable(c)
		}
		e.logger.Write("ERROR", "protocol error from "+c.RemoteAddr+": "+res.Err.Error())
		e.disconnect(c, res.Err)
		return
	}

	for _, msg := range res.Messages {
		e.requestQueue.Push(Request{ClientID: c.ID, Message: msg})
	}

	if res.Consumed == 0 && c.recvLen >= MaxReceiveBuffer {
		e.logger.Write("ERROR", "receive buffer overflow for "+c.RemoteAddr)
		e.disconnect(c, &OverflowError{ClientID: c.ID, Limit: MaxReceiveBuffer})
	}
}
