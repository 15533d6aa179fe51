package netcore

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/bilalaabkari/pulsenet/internal/assembler"
)

func startTestServer(t *testing.T) (*Server, func()) {
	t.Helper()
	s := NewServer(Options{ListenAddr: "127.0.0.1:0", Assembler: assembler.Default{}, Workers: 2})
	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	return s, func() {
		cancel()
		s.Stop()
	}
}

func TestEngineAcceptsAndAssemblesMessage(t *testing.T) {
	s, stop := startTestServer(t)
	defer stop()

	conn, err := net.Dial("tcp", s.Addr())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("hello world")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, ok := s.Next(ctx)
	if !ok {
		t.Fatalf("expected a request, got none")
	}
	body, ok := req.Message.([]byte)
	if !ok {
		t.Fatalf("expected []byte message, got %T", req.Message)
	}
	if string(body) != "hello world" {
		t.Fatalf("unexpected message body: %q", body)
	}
}

func TestEngineSendRoundTrip(t *testing.T) {
	s, stop := startTestServer(t)
	defer stop()

	conn, err := net.Dial("tcp", s.Addr())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	conn.Write([]byte("ping"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, ok := s.Next(ctx)
	if !ok {
		t.Fatalf("expected a request")
	}

	if err := s.Send(req.ClientID, []byte("pong")); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4)
	if _, err := conn.Read(buf); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(buf) != "pong" {
		t.Fatalf("unexpected reply: %q", buf)
	}
}

func TestSendToUnknownClientErrors(t *testing.T) {
	s, stop := startTestServer(t)
	defer stop()
	if err := s.Send(999999, []byte("x")); err != ErrUnknownClient {
		t.Fatalf("expected ErrUnknownClient, got %v", err)
	}
}
