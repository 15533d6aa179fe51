package netcore

import (
	"context"
	"io"
	"net"
	"strconv"
)

// Server is the thin facade application code drives: start/stop the
// engine, send to a client, pull the next framed request, and inspect
// the live connection table.
type Server struct {
	engine  *Engine
	addr    string
	port    int
	logging bool
}

// NewServer builds a Server around a freshly constructed Engine.
func NewServer(opts Options) *Server {
	return &Server{engine: New(opts), addr: opts.ListenAddr, logging: true}
}

// Start binds and begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	if err := s.engine.Start(ctx); err != nil {
		return err
	}
	if tcpAddr, ok := s.engine.listener.Addr().(*net.TCPAddr); ok {
		s.addr = tcpAddr.IP.String()
		s.port = tcpAddr.Port
	}
	return nil
}

// Stop shuts the engine down.
func (s *Server) Stop() error { return s.engine.Stop() }

// Send queues data for delivery to the given client.
func (s *Server) Send(clientID uint64, data []byte) error { return s.engine.Send(clientID, data) }

// Next blocks for the next framed application request.
func (s *Server) Next(ctx context.Context) (Request, bool) { return s.engine.Next(ctx) }

// ShowClients writes the live client table to w.
func (s *Server) ShowClients(w io.Writer) { s.engine.ShowClients(w) }

// GetIP returns the bound listen address's IP, once started.
func (s *Server) GetIP() string { return s.addr }

// GetPort returns the bound listen address's port, once started.
func (s *Server) GetPort() int { return s.port }

// EnableLogs toggles whether the engine's logger receives events; when
// disabled, a noop logger is substituted.
func (s *Server) EnableLogs(enabled bool) {
	s.logging = enabled
	if enabled {
		s.engine.logger = s.engine.opts.Logger
	} else {
		s.engine.logger = noopLogger{}
	}
}

// Addr returns the bound listen address as "ip:port". It is only a
// usable dial address after Start has resolved the concrete IP and port.
func (s *Server) Addr() string { return s.addr + ":" + strconv.Itoa(s.port) }
