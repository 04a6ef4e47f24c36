package xs

// OpType tags the operation a Packet carries. WatchEvent is the
// demultiplex trigger; every other tag is routed as a reply by rid.
type OpType int32

const (
	OpWatchEvent OpType = iota
	OpDirectory
	OpRead
	OpWrite
	OpWatch
	OpUnwatch
	OpTransactionStart
	OpTransactionEnd
	// OpError tags a reply that carries a server-side failure message
	// instead of the success payload the request's own op type would
	// otherwise imply. It is a reply like any other — routed by rid —
	// and every decoder, not just OK, must check for it before trying to
	// parse a payload that isn't there.
	OpError
)

func (t OpType) String() string {
	switch t {
	case OpWatchEvent:
		return "WATCH_EVENT"
	case OpDirectory:
		return "DIRECTORY"
	case OpRead:
		return "READ"
	case OpWrite:
		return "WRITE"
	case OpWatch:
		return "WATCH"
	case OpUnwatch:
		return "UNWATCH"
	case OpTransactionStart:
		return "TRANSACTION_START"
	case OpTransactionEnd:
		return "TRANSACTION_END"
	case OpError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Packet is opaque to the core except for these four accessors.
type Packet interface {
	Type() OpType
	RequestID() uint32
	TransactionID() uint32
	Payload() []byte
}

// ObservationKind is the tag of the sum type the streaming parser
// produces on every Observe call.
type ObservationKind int

const (
	// ObsPacket: a complete packet is available.
	ObsPacket ObservationKind = iota
	// ObsNeedMoreData: at least some bytes are required; NeedBytes is an
	// upper-bound hint on how much to read.
	ObsNeedMoreData
	// ObsUnknownOperation: the frame is well-formed but names an
	// unrecognized operation tag.
	ObsUnknownOperation
	// ObsParserFailed: framing or payload structure is invalid.
	ObsParserFailed
)

// Observation is the result of Parser.Observe.
type Observation struct {
	Kind      ObservationKind
	Packet    Packet // valid iff Kind == ObsPacket
	NeedBytes int    // valid iff Kind == ObsNeedMoreData
	BadOpCode int32  // valid iff Kind == ObsUnknownOperation
}

// Parser drives the streaming packet decoder. Reset discards any partial
// state and starts a fresh continuation: in-place mutation rather than
// threading an immutable state value through every call.
//
// Implementations must tolerate interleaved Feed calls with short reads:
// the core feeds exactly the bytes a single transport Read returned,
// which may be shorter than any NeedBytes hint.
type Parser interface {
	Reset()
	Feed(chunk []byte)
	Observe() Observation
}
