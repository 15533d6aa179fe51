// Package handler is a sample application handler: it drains framed
// requests from the engine and replies to each with a fixed HTTP response,
// demonstrating the Next/Send contract a real application would drive.
package handler

import (
	"context"
	"fmt"

	"github.com/bilalaabkari/pulsenet/internal/httpassembler"
	"github.com/bilalaabkari/pulsenet/internal/logging"
	"github.com/bilalaabkari/pulsenet/internal/netcore"
)

// Server is the subset of netcore.Server a handler needs.
type Server interface {
	Next(ctx context.Context) (netcore.Request, bool)
	Send(clientID uint64, data []byte) error
}

// Run drains requests from srv until ctx is cancelled, replying with a
// minimal 200 OK to every HTTP request it sees; non-HTTP message
// payloads are logged and ignored.
func Run(ctx context.Context, srv Server, log logging.Logger) {
	for {
		req, ok := srv.Next(ctx)
		if !ok {
			return
		}
		msg, ok := req.Message.(*httpassembler.Message)
		if !ok {
			log.Write("DEBUG", fmt.Sprintf("client %d sent a non-HTTP message, ignoring", req.ClientID))
			continue
		}
		body := []byte("ok")
		resp := fmt.Sprintf(
			"HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: %d\r\nConnection: keep-alive\r\n\r\n%s",
			len(body), body,
		)
		log.Write("TRACE", fmt.Sprintf("client %d: %s %s", req.ClientID, msg.Method, msg.URI))
		if err := srv.Send(req.ClientID, []byte(resp)); err != nil {
			log.Write("DEBUG", fmt.Sprintf("send to client %d after it disconnected: %v", req.ClientID, err))
		}
	}
}
