// Package assembler defines the pluggable stream-to-message capability:
// something that turns a growing per-client byte buffer into a list of
// fully framed messages.
package assembler

// Message is a single framed, application-level message produced by an
// Assembler. The concrete type is assembler-defined; internal/httpassembler
// produces *httpassembler.Message.
type Message any

// Result is the outcome of one Feed call.
type Result struct {
	// Messages holds every message fully framed during this call, in the
	// order their final byte was observed.
	Messages []Message
	// Consumed is the number of bytes, counted from the front of the
	// buffer passed to Feed, that the assembler consumed. The caller must
	// keep the remaining suffix at the front of the buffer for the next
	// call. An assembler that folds unparsed bytes into its own per-client
	// state (rather than leaving them in the caller's buffer) reports them
	// as consumed too, since the caller's copy is no longer needed.
	Consumed int
	// Err is non-nil on a fatal, unrecoverable protocol error. ErrorPayload
	// SHOULD then hold a complete protocol-level error response suitable
	// to send verbatim to the client before disconnect.
	Err          error
	ErrorPayload []byte
}

// Assembler transforms a per-client byte buffer into framed messages.
//   - the assembler may consume a prefix of the buffer; unconsumed bytes
//     remain a prefix for the next call;
//   - on recoverable underflow (not enough bytes yet for a full message),
//     Result.Messages is empty and Result.Err is nil;
//   - per-client state is retained across calls for the same clientID and
//     must be released via Release when that client disconnects — the
//     caller guarantees no further Feed calls for that id after Release;
//   - calls for different clientID values may happen concurrently; the
//     Assembler is responsible for per-id state isolation.
type Assembler interface {
	// Feed runs the assembler over buf (the connection's currently valid
	// receive bytes) for clientID. lastPacketLen is the size of the most
	// recent read that contributed to buf, used by assemblers that need to
	// detect EOF-framed protocols.
	Feed(clientID uint64, buf []byte, lastPacketLen int) Result
	// Release drops any per-client state held for clientID.
	Release(clientID uint64)
}

// Default emits the entire current buffer as a single message per call
// and clears the buffer. It is stateless, so Release is a no-op.
type Default struct{}

// Feed implements Assembler.
func (Default) Feed(_ uint64, buf []byte, _ int) Result {
	if len(buf) == 0 {
		return Result{}
	}
	msg := make([]byte, len(buf))
	copy(msg, buf)
	return Result{Messages: []Message{msg}, Consumed: len(buf)}
}

// Release implements Assembler.
func (Default) Release(uint64) {}
