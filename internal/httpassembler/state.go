package httpassembler

type parseState int

const (
	stStart parseState = iota
	stRequestURI
	stRequestVersion
	stResponseStatus
	stResponseHeadersStart
	stHeaderName
	stHeaderValue
	stBody
	stChunkSize
	stChunkData
	stChunkDataCRLF
	stChunkTrailer
	stError
)

// clientState is the per-client parser state retained across Feed calls,
// created lazily on the first byte seen from a client and reset to
// ParseStart once a full message has been emitted. It owns its own
// scratch accumulators rather than indexing into the engine's receive
// buffer, so the assembler never aliases memory the engine might reuse
// between calls.
type clientState struct {
	state parseState

	scratch   []byte
	pendingCR bool

	kind       Kind
	version    Version
	method     Method
	uri        string
	statusCode   int
	reasonPhrase string
	headerName   string
	headers      Header

	totalHeaderBytes int

	bodyLen int // -1 until Content-Length is known
	bodyBuf []byte

	chunked         bool
	assembleChunked bool
	chunkRemaining  int
}

func newClientState(assembleChunked bool) *clientState {
	s := &clientState{assembleChunked: assembleChunked}
	s.reset()
	return s
}

// reset returns the state machine to ParseStart, ready for the next
// pipelined message on the same connection.
func (s *clientState) reset() {
	s.state = stStart
	s.scratch = s.scratch[:0]
	s.pendingCR = false
	s.kind = KindRequest
	s.version = VersionUnknown
	s.method = ""
	s.uri = ""
	s.statusCode = -1
	s.reasonPhrase = ""
	s.headerName = ""
	s.headers = Header{}
	s.totalHeaderBytes = 0
	s.bodyLen = -1
	s.bodyBuf = nil
	s.chunked = false
	s.chunkRemaining = 0
}
