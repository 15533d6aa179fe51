package netcore

import "errors"

var (
	// ErrSocketInit is returned when the listening socket cannot be
	// created.
	ErrSocketInit = errors.New("netcore: socket initialization failed")
	// ErrBindFailed is returned when binding the listening address fails.
	ErrBindFailed = errors.New("netcore: bind failed")
	// ErrListenFailed is returned when the listener cannot start
	// accepting connections.
	ErrListenFailed = errors.New("netcore: listen failed")
	// ErrUnknownClient is returned by Send/Next-adjacent operations that
	// reference a client ID no longer (or never) present in the
	// registry — a routine race against disconnect, not a bug.
	ErrUnknownClient = errors.New("netcore: unknown client")
	// ErrEngineStopped names the stopped-engine condition. No Engine method
	// returns it: after Stop, Send reports ErrUnknownClient and Next
	// reports ok == false.
	ErrEngineStopped = errors.New("netcore: engine stopped")
)

// OverflowError reports that a client's receive buffer reached its hard
// ceiling without the assembler framing a message, a protocol-agnostic
// guard against a single connection consuming unbounded memory.
type OverflowError struct {
	ClientID uint64
	Limit    int
}

func (e *OverflowError) Error() string {
	return "netcore: client receive buffer exceeded its limit"
}
