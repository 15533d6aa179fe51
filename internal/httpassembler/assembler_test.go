package httpassembler

import (
	"bytes"
	"testing"
)

func feedAll(t *testing.T, a *HTTPAssembler, clientID uint64, data []byte) []*Message {
	t.Helper()
	res := a.Feed(clientID, data, len(data))
	if res.Err != nil {
		t.Fatalf("unexpected error: %v (payload %s)", res.Err, res.ErrorPayload)
	}
	if res.Consumed != len(data) {
		t.Fatalf("expected full consumption, got %d of %d", res.Consumed, len(data))
	}
	msgs := make([]*Message, 0, len(res.Messages))
	for _, m := range res.Messages {
		msgs = append(msgs, m.(*Message))
	}
	return msgs
}

func TestSingleCompleteRequest(t *testing.T) {
	a := New(Options{})
	raw := "GET /index.html HTTP/1.1\r\nHost: example.com\r\nContent-Length: 5\r\n\r\nhello"
	msgs := feedAll(t, a, 1, []byte(raw))
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	m := msgs[0]
	if m.Kind != KindRequest || m.Method != MethodGet || m.URI != "/index.html" {
		t.Fatalf("unexpected message: %+v", m)
	}
	if v, ok := m.Headers.Get("host"); !ok || v != "example.com" {
		t.Fatalf("unexpected host header: %v %v", v, ok)
	}
	if string(m.Body) != "hello" {
		t.Fatalf("unexpected body: %q", m.Body)
	}
}

func TestTwoPipelinedRequests(t *testing.T) {
	a := New(Options{})
	one := "GET /a HTTP/1.1\r\nHost: x\r\n\r\n"
	two := "GET /b HTTP/1.1\r\nHost: y\r\n\r\n"
	msgs := feedAll(t, a, 1, []byte(one+two))
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].URI != "/a" || msgs[1].URI != "/b" {
		t.Fatalf("unexpected ordering: %+v %+v", msgs[0], msgs[1])
	}
}

func TestInvalidMethodIsFatal(t *testing.T) {
	a := New(Options{})
	res := a.Feed(1, []byte("FOO /x HTTP/1.1\r\n\r\n"), 20)
	if res.Err == nil {
		t.Fatalf("expected error for invalid method")
	}
	if !bytes.Contains(res.ErrorPayload, []byte("400 Bad Request")) {
		t.Fatalf("expected 400 response, got %s", res.ErrorPayload)
	}
}

func TestByteAtATimeFeed(t *testing.T) {
	a := New(Options{})
	raw := []byte("POST /submit HTTP/1.1\r\nHost: x\r\nContent-Length: 3\r\n\r\nabc")
	var got []*Message
	for i, b := range raw {
		res := a.Feed(1, []byte{b}, 1)
		if res.Err != nil {
			t.Fatalf("unexpected error at byte %d: %v", i, res.Err)
		}
		if res.Consumed != 1 {
			t.Fatalf("expected each single-byte feed fully consumed, got %d", res.Consumed)
		}
		for _, m := range res.Messages {
			got = append(got, m.(*Message))
		}
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 message assembled across single-byte feeds, got %d", len(got))
	}
	if string(got[0].Body) != "abc" {
		t.Fatalf("unexpected body: %q", got[0].Body)
	}
}

func TestChunkedBodyAssembled(t *testing.T) {
	a := New(Options{AssembleChunked: true})
	raw := "POST /upload HTTP/1.1\r\n" +
		"Host: x\r\n" +
		"Transfer-Encoding: chunked\r\n\r\n" +
		"4\r\nWiki\r\n" +
		"5\r\npedia\r\n" +
		"0\r\n\r\n"
	msgs := feedAll(t, a, 1, []byte(raw))
	if len(msgs) != 1 {
		t.Fatalf("expected 1 assembled message, got %d", len(msgs))
	}
	if string(msgs[0].Body) != "Wikipedia" {
		t.Fatalf("unexpected assembled body: %q", msgs[0].Body)
	}
}

func TestChunkedBodyPerChunk(t *testing.T) {
	a := New(Options{AssembleChunked: false})
	raw := "POST /upload HTTP/1.1\r\n" +
		"Host: x\r\n" +
		"Transfer-Encoding: chunked\r\n\r\n" +
		"4\r\nWiki\r\n" +
		"5\r\npedia\r\n" +
		"0\r\n\r\n"
	msgs := feedAll(t, a, 1, []byte(raw))
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages (2 chunks + terminator), got %d", len(msgs))
	}
	if string(msgs[0].Body) != "Wiki" || string(msgs[1].Body) != "pedia" {
		t.Fatalf("unexpected chunk bodies: %q %q", msgs[0].Body, msgs[1].Body)
	}
	if len(msgs[2].Body) != 0 {
		t.Fatalf("expected empty terminator body, got %q", msgs[2].Body)
	}
}

func TestConcurrentClientsHaveIsolatedState(t *testing.T) {
	a := New(Options{})
	res1 := a.Feed(1, []byte("GET /one HTTP/1.1\r\n"), 20)
	res2 := a.Feed(2, []byte("GET /two HTTP/1.1\r\nHost: y\r\n\r\n"), 30)
	if res1.Err != nil || res2.Err != nil {
		t.Fatalf("unexpected errors: %v %v", res1.Err, res2.Err)
	}
	if len(res1.Messages) != 0 {
		t.Fatalf("client 1 should still be mid-parse")
	}
	if len(res2.Messages) != 1 {
		t.Fatalf("client 2 should have completed its message")
	}
	rest := a.Feed(1, []byte("Host: x\r\n\r\n"), 11)
	if rest.Err != nil || len(rest.Messages) != 1 {
		t.Fatalf("client 1 should now complete independently: %+v", rest)
	}
	m := rest.Messages[0].(*Message)
	if m.URI != "/one" {
		t.Fatalf("client 1 state corrupted by client 2: %+v", m)
	}
}

func TestResponseMessage(t *testing.T) {
	a := New(Options{})
	raw := "HTTP/1.1 404 Not Found\r\nContent-Length: 0\r\n\r\n"
	msgs := feedAll(t, a, 1, []byte(raw))
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Kind != KindResponse || msgs[0].StatusCode != 404 {
		t.Fatalf("unexpected response message: %+v", msgs[0])
	}
}

func TestNoBodyWhenFramingAbsent(t *testing.T) {
	a := New(Options{})
	raw := "GET /ping HTTP/1.1\r\nHost: x\r\n\r\n"
	msgs := feedAll(t, a, 1, []byte(raw))
	if len(msgs) != 1 || len(msgs[0].Body) != 0 {
		t.Fatalf("expected single message with empty body, got %+v", msgs)
	}
}

func TestURIExactlyAtLimitAccepted(t *testing.T) {
	a := New(Options{Limits: Limits{MaxRequestLineLength: 8}})
	uri := "/" + string(bytes.Repeat([]byte("a"), 7))
	raw := "GET " + uri + " HTTP/1.1\r\nHost: x\r\n\r\n"
	msgs := feedAll(t, a, 1, []byte(raw))
	if len(msgs) != 1 || msgs[0].URI != uri {
		t.Fatalf("expected URI accepted at exact limit, got %+v", msgs)
	}
}

func TestURIOneByteOverLimitRejected(t *testing.T) {
	a := New(Options{Limits: Limits{MaxRequestLineLength: 8}})
	uri := "/" + string(bytes.Repeat([]byte("a"), 8))
	raw := "GET " + uri + " HTTP/1.1\r\nHost: x\r\n\r\n"
	res := a.Feed(1, []byte(raw), len(raw))
	if res.Err == nil {
		t.Fatalf("expected error for over-limit URI")
	}
}

func TestHeaderBlockExactlyAtLimitAccepted(t *testing.T) {
	line := "X-Pad: 12345\r\n" // 14 bytes
	a := New(Options{Limits: Limits{MaxTotalHeaderBytes: len(line)}})
	raw := "GET /x HTTP/1.1\r\n" + line + "\r\n"
	msgs := feedAll(t, a, 1, []byte(raw))
	if len(msgs) != 1 {
		t.Fatalf("expected message at exact header limit, got %+v", msgs)
	}
}

func TestHeaderBlockOverLimitRejected(t *testing.T) {
	line := "X-Pad: 12345\r\n"
	a := New(Options{Limits: Limits{MaxTotalHeaderBytes: len(line) - 1}})
	raw := "GET /x HTTP/1.1\r\n" + line + "\r\n"
	res := a.Feed(1, []byte(raw), len(raw))
	if res.Err == nil {
		t.Fatalf("expected error for over-limit header block")
	}
}

func TestBodyExactlyAtLimitAccepted(t *testing.T) {
	a := New(Options{Limits: Limits{MaxBodySize: 3}})
	raw := "POST /x HTTP/1.1\r\nContent-Length: 3\r\n\r\nabc"
	msgs := feedAll(t, a, 1, []byte(raw))
	if len(msgs) != 1 || string(msgs[0].Body) != "abc" {
		t.Fatalf("expected body accepted at exact limit, got %+v", msgs)
	}
}

func TestBodyOverLimitRejected(t *testing.T) {
	a := New(Options{Limits: Limits{MaxBodySize: 3}})
	raw := "POST /x HTTP/1.1\r\nContent-Length: 4\r\n\r\nabcd"
	res := a.Feed(1, []byte(raw), len(raw))
	if res.Err == nil {
		t.Fatalf("expected error for over-limit Content-Length")
	}
}

func TestReleaseDropsClientState(t *testing.T) {
	a := New(Options{})
	a.Feed(1, []byte("GET /x HTTP/1.1\r\n"), 17)
	a.Release(1)
	if _, ok := a.states.Load(1); ok {
		t.Fatalf("expected state removed after Release")
	}
}
