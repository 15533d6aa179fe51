// Package httpassembler implements the HTTP/1.x assembler: a byte-driven
// incremental parser that turns a per-client receive buffer into framed
// request or response messages, suitable for feeding through
// internal/assembler.Assembler.
package httpassembler

import (
	"fmt"
	"strconv"

	"github.com/bilalaabkari/pulsenet/internal/assembler"
	"github.com/bilalaabkari/pulsenet/internal/concurrency"
)

// Options configures a New assembler.
type Options struct {
	Limits Limits
	// AssembleChunked, when true, buffers every chunk of a chunked body
	// and emits a single Message once the terminating zero-length chunk
	// is seen. When false, each chunk is emitted as its own Message
	// (same headers, method/URI or status line; one Message per chunk),
	// followed by a final empty-body Message once the terminator arrives.
	AssembleChunked bool
	// Buckets sizes the internal per-client state map. Zero selects a
	// small default suitable for a handful of concurrent connections;
	// callers expecting many clients should size this near their peak
	// concurrent connection count.
	Buckets uint64
}

// HTTPAssembler implements assembler.Assembler for HTTP/1.x streams.
type HTTPAssembler struct {
	limits  Limits
	chunked bool
	states  *concurrency.StateMap[uint64, *clientState]
}

// New creates an HTTP/1.x assembler.
func New(opts Options) *HTTPAssembler {
	buckets := opts.Buckets
	if buckets == 0 {
		buckets = 64
	}
	return &HTTPAssembler{
		limits:  opts.Limits.withDefaults(),
		chunked: opts.AssembleChunked,
		states:  concurrency.NewClientStateMap[*clientState](buckets),
	}
}

func (a *HTTPAssembler) stateFor(clientID uint64) *clientState {
	if s, ok := a.states.Load(clientID); ok {
		return s
	}
	s := newClientState(a.chunked)
	a.states.Store(clientID, s)
	return s
}

// Release drops the per-client parser state for clientID.
func (a *HTTPAssembler) Release(clientID uint64) {
	a.states.Delete(clientID)
}

// Feed runs the state machine over buf for clientID, returning every
// message completed during this call. Unless a protocol error occurs, the
// assembler reports the entire buffer as consumed: unparsed bytes are
// folded into the client's own scratch state rather than left for the
// caller to retain, so a recoverable underflow produces zero messages with
// buf fully consumed, not a partial consumption count. On a protocol error,
// Consumed counts the bytes up to and including the offending byte.
func (a *HTTPAssembler) Feed(clientID uint64, buf []byte, _ int) assembler.Result {
	st := a.stateFor(clientID)

	var messages []assembler.Message
	for i := 0; i < len(buf); i++ {
		c := buf[i]
		done, msg, err := a.step(st, c)
		if err != nil {
			payload := buildErrorResponse(err)
			a.states.Delete(clientID)
			return assembler.Result{Messages: messages, Consumed: i + 1, Err: err, ErrorPayload: payload}
		}
		if done {
			messages = append(messages, msg)
		}
	}
	return assembler.Result{Messages: messages, Consumed: len(buf)}
}

// step feeds a single byte into st. done reports a message became ready
// (msg holds it); err is non-nil on a fatal protocol violation.
func (a *HTTPAssembler) step(st *clientState, c byte) (done bool, msg *Message, err error) {
	switch st.state {
	case stStart:
		return a.stepFirstToken(st, c)
	case stRequestURI:
		return a.stepLineToken(st, c, ' ', func(tok string) error {
			if tok == "" {
				return errMalformed("empty request URI")
			}
			st.uri = tok
			st.state = stRequestVersion
			return nil
		})
	case stRequestVersion:
		return a.stepCRLFToken(st, c, func(tok string) error {
			v, ok := parseVersion(tok)
			if !ok {
				return errMalformed("unrecognized HTTP version")
			}
			st.version = v
			st.state = stHeaderName
			return nil
		})
	case stResponseStatus:
		return a.stepStatusCode(st, c)
	case stResponseHeadersStart:
		return a.stepCRLFToken(st, c, func(tok string) error {
			st.reasonPhrase = tok
			st.state = stHeaderName
			return nil
		})
	case stHeaderName:
		return a.stepHeaderName(st, c)
	case stHeaderValue:
		return a.stepHeaderValue(st, c)
	case stBody:
		return a.stepBody(st, c)
	case stChunkSize:
		return a.stepChunkSize(st, c)
	case stChunkData:
		return a.stepChunkData(st, c)
	case stChunkDataCRLF:
		return a.stepChunkDataCRLF(st, c)
	case stChunkTrailer:
		return a.stepChunkTrailer(st, c)
	default:
		return false, nil, errMalformed("parser in error state")
	}
}

// stepFirstToken accumulates the very first whitespace-delimited token of
// a message: either an HTTP version (response) or a method (request).
func (a *HTTPAssembler) stepFirstToken(st *clientState, c byte) (bool, *Message, error) {
	if c == ' ' {
		tok := string(st.scratch)
		st.scratch = st.scratch[:0]
		if tok == "" {
			return false, nil, errMalformed("empty first token")
		}
		if v, ok := parseVersion(tok); ok {
			st.kind = KindResponse
			st.version = v
			st.state = stResponseStatus
			return false, nil, nil
		}
		m, ok := parseMethod(tok)
		if !ok {
			return false, nil, errMalformed("unrecognized method")
		}
		st.kind = KindRequest
		st.method = m
		st.state = stRequestURI
		return false, nil, nil
	}
	if c > 127 {
		return false, nil, errMalformed("non-ASCII byte in request line")
	}
	if len(st.scratch) >= a.limits.MaxRequestLineLength {
		return false, nil, errTooLarge("request line token too long")
	}
	st.scratch = append(st.scratch, c)
	return false, nil, nil
}

// stepLineToken accumulates bytes until delim, calling finish with the
// accumulated token (delim excluded).
func (a *HTTPAssembler) stepLineToken(st *clientState, c byte, delim byte, finish func(string) error) (bool, *Message, error) {
	if c == delim {
		tok := string(st.scratch)
		st.scratch = st.scratch[:0]
		if err := finish(tok); err != nil {
			return false, nil, err
		}
		return false, nil, nil
	}
	if c > 127 {
		return false, nil, errMalformed("non-ASCII byte in request line")
	}
	if len(st.scratch) >= a.limits.MaxRequestLineLength {
		return false, nil, errTooLarge("request line token too long")
	}
	st.scratch = append(st.scratch, c)
	return false, nil, nil
}

// stepCRLFToken accumulates bytes up to and including a CRLF sequence,
// calling finish with the accumulated token (CRLF excluded). The CRLF does
// not count against MaxRequestLineLength.
func (a *HTTPAssembler) stepCRLFToken(st *clientState, c byte, finish func(string) error) (bool, *Message, error) {
	if len(st.scratch) >= a.limits.MaxRequestLineLength+2 {
		return false, nil, errTooLarge("request line too long")
	}
	st.scratch = append(st.scratch, c)
	n := len(st.scratch)
	if n >= 2 && st.scratch[n-2] == '\r' && st.scratch[n-1] == '\n' {
		tok := string(st.scratch[:n-2])
		st.scratch = st.scratch[:0]
		if err := finish(tok); err != nil {
			return false, nil, err
		}
	}
	return false, nil, nil
}

func (a *HTTPAssembler) stepStatusCode(st *clientState, c byte) (bool, *Message, error) {
	if c == ' ' {
		if len(st.scratch) != 3 {
			return false, nil, errMalformed("status code must be 3 digits")
		}
		code, err := strconv.Atoi(string(st.scratch))
		if err != nil {
			return false, nil, errMalformed("status code not numeric")
		}
		st.statusCode = code
		st.scratch = st.scratch[:0]
		st.state = stResponseHeadersStart
		return false, nil, nil
	}
	if c < '0' || c > '9' {
		return false, nil, errMalformed("status code byte not a digit")
	}
	if len(st.scratch) >= 3 {
		return false, nil, errMalformed("status code too long")
	}
	st.scratch = append(st.scratch, c)
	return false, nil, nil
}

func (a *HTTPAssembler) stepHeaderName(st *clientState, c byte) (bool, *Message, error) {
	st.totalHeaderBytes++
	if st.totalHeaderBytes > a.limits.MaxTotalHeaderBytes {
		return false, nil, errTooLarge("header block too large")
	}
	if len(st.scratch) == 0 {
		if st.pendingCR {
			if c == '\n' {
				st.pendingCR = false
				return a.finishHeaders(st)
			}
			return false, nil, errMalformed("lone CR before headers terminator")
		}
		if c == '\r' {
			st.pendingCR = true
			return false, nil, nil
		}
	}
	st.totalHeaderBytes++
	if st.totalHeaderBytes > a.limits.MaxTotalHeaderBytes {
		return false, nil, errTooLarge("header block too large")
	}
	if c == ':' {
		name := trimSpace(string(st.scratch))
		st.scratch = st.scratch[:0]
		if name == "" {
			return false, nil, errMalformed("empty header name")
		}
		st.headerName = name
		st.state = stHeaderValue
		return false, nil, nil
	}
	if c == '\r' || c == '\n' {
		return false, nil, errMalformed("header line missing colon")
	}
	st.scratch = append(st.scratch, c)
	return false, nil, nil
}

func (a *HTTPAssembler) stepHeaderValue(st *clientState, c byte) (bool, *Message, error) {
	st.totalHeaderBytes++
	if st.totalHeaderBytes > a.limits.MaxTotalHeaderBytes {
		return false, nil, errTooLarge("header block too large")
	}
	if st.pendingCR {
		if c != '\n' {
			return false, nil, errMalformed("lone CR in header value")
		}
		st.pendingCR = false
		value := trimSpace(string(st.scratch))
		st.scratch = st.scratch[:0]
		if value == "" {
			return false, nil, errMalformed("empty header value")
		}
		st.headers.Add(st.headerName, value)
		st.headerName = ""
		st.state = stHeaderName
		return false, nil, nil
	}
	if c == '\r' {
		st.pendingCR = true
		return false, nil, nil
	}
	st.scratch = append(st.scratch, c)
	return false, nil, nil
}

// finishHeaders runs once the blank line terminating the header block is
// seen. It decides the body framing: chunked, Content-Length, or none.
func (a *HTTPAssembler) finishHeaders(st *clientState) (bool, *Message, error) {
	if te, ok := st.headers.Get("transfer-encoding"); ok && hasToken(te, "chunked") {
		st.chunked = true
		st.state = stChunkSize
		return false, nil, nil
	}
	if cl, ok := st.headers.Get("content-length"); ok {
		n, err := strconv.Atoi(trimSpace(cl))
		if err != nil || n < 0 {
			return false, nil, errMalformed("invalid Content-Length")
		}
		if n > a.limits.MaxBodySize {
			return false, nil, errTooLarge("declared body exceeds limit")
		}
		if n == 0 {
			return a.finishMessage(st, nil)
		}
		st.bodyLen = n
		st.bodyBuf = make([]byte, 0, n)
		st.state = stBody
		return false, nil, nil
	}
	return a.finishMessage(st, nil)
}

func (a *HTTPAssembler) stepBody(st *clientState, c byte) (bool, *Message, error) {
	st.bodyBuf = append(st.bodyBuf, c)
	if len(st.bodyBuf) < st.bodyLen {
		return false, nil, nil
	}
	return a.finishMessage(st, st.bodyBuf)
}

func (a *HTTPAssembler) stepChunkSize(st *clientState, c byte) (bool, *Message, error) {
	if c == '\r' {
		st.pendingCR = true
		return false, nil, nil
	}
	if c == '\n' {
		if !st.pendingCR {
			return false, nil, errMalformed("chunk size line missing CR")
		}
		st.pendingCR = false
		size, err := strconv.ParseInt(string(st.scratch), 16, 64)
		if err != nil || size < 0 {
			return false, nil, errMalformed("invalid chunk size")
		}
		st.scratch = st.scratch[:0]
		if size == 0 {
			st.state = stChunkTrailer
			return false, nil, nil
		}
		if len(st.bodyBuf)+int(size) > a.limits.MaxBodySize {
			return false, nil, errTooLarge("chunked body exceeds limit")
		}
		st.chunkRemaining = int(size)
		st.state = stChunkData
		return false, nil, nil
	}
	if isHexDigit(c) {
		st.scratch = append(st.scratch, c)
		return false, nil, nil
	}
	return false, nil, errMalformed("invalid chunk size digit")
}

func (a *HTTPAssembler) stepChunkData(st *clientState, c byte) (bool, *Message, error) {
	st.bodyBuf = append(st.bodyBuf, c)
	st.chunkRemaining--
	if st.chunkRemaining > 0 {
		return false, nil, nil
	}
	st.state = stChunkDataCRLF
	st.pendingCR = false
	return false, nil, nil
}

func (a *HTTPAssembler) stepChunkDataCRLF(st *clientState, c byte) (bool, *Message, error) {
	if !st.pendingCR {
		if c != '\r' {
			return false, nil, errMalformed("chunk data missing trailing CR")
		}
		st.pendingCR = true
		return false, nil, nil
	}
	if c != '\n' {
		return false, nil, errMalformed("chunk data missing trailing LF")
	}
	st.pendingCR = false
	if !st.assembleChunked {
		chunk := make([]byte, len(st.bodyBuf))
		copy(chunk, st.bodyBuf)
		st.bodyBuf = st.bodyBuf[:0]
		msg := st.buildMessage(chunk)
		st.state = stChunkSize
		return true, msg, nil
	}
	st.state = stChunkSize
	return false, nil, nil
}

// stepChunkTrailer skips trailer lines following the terminating
// zero-length chunk, up to the final blank-line CRLF that ends the
// message. Trailers are discarded, not merged into the message's headers.
func (a *HTTPAssembler) stepChunkTrailer(st *clientState, c byte) (bool, *Message, error) {
	if c == '\r' {
		if !st.pendingCR {
			st.pendingCR = true
			return false, nil, nil
		}
	}
	if c == '\n' {
		if st.pendingCR {
			st.pendingCR = false
			if len(st.scratch) == 0 {
				return a.finishMessage(st, st.bodyBuf)
			}
			st.scratch = st.scratch[:0]
			return false, nil, nil
		}
		return false, nil, errMalformed("lone LF in chunk trailer")
	}
	st.scratch = append(st.scratch, c)
	return false, nil, nil
}

// finishMessage assembles the completed Message, resets st for the next
// pipelined message on the same connection, and returns it.
func (a *HTTPAssembler) finishMessage(st *clientState, body []byte) (bool, *Message, error) {
	msg := st.buildMessage(body)
	assembleChunked := st.assembleChunked
	st.reset()
	st.assembleChunked = assembleChunked
	return true, msg, nil
}

func (st *clientState) buildMessage(body []byte) *Message {
	hdrs := make(Header, len(st.headers))
	for k, v := range st.headers {
		hdrs[k] = v
	}
	return &Message{
		Kind:         st.kind,
		Version:      st.version,
		Method:       st.method,
		URI:          st.uri,
		StatusCode:   st.statusCode,
		ReasonPhrase: st.reasonPhrase,
		Headers:      hdrs,
		Body:         body,
	}
}

func parseVersion(tok string) (Version, bool) {
	switch tok {
	case "HTTP/1.0":
		return Version10, true
	case "HTTP/1.1":
		return Version11, true
	default:
		return VersionUnknown, false
	}
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func trimSpace(s string) string {
	start := 0
	for start < len(s) && (s[start] == ' ' || s[start] == '\t') {
		start++
	}
	end := len(s)
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t') {
		end--
	}
	return s[start:end]
}

// ProtocolError is returned via Result.Err on a fatal, unrecoverable
// parse failure. ErrorPayload in the same Result holds the ready-to-send
// 400 response.
type ProtocolError struct {
	Reason   string
	TooLarge bool
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("httpassembler: %s", e.Reason)
}

func errMalformed(reason string) error { return &ProtocolError{Reason: reason} }
func errTooLarge(reason string) error  { return &ProtocolError{Reason: reason, TooLarge: true} }
