package xswire

import (
	"encoding/binary"

	"github.com/openxen/xsclient/pkg/xs"
)

// Parser is the stateful streaming decoder for the fixed header-plus-
// payload wire format (see packet.go). It implements xs.Parser.
//
// Observe is pure with respect to the buffered bytes (repeated calls
// without an intervening Feed/Reset return the same observation), which
// lets Reset's job be exactly "advance past the packet just consumed"
// rather than "discard everything" — bytes belonging to a
// pipelined next packet that arrived in the same transport Read survive
// a Reset.
type Parser struct {
	buf       []byte
	lastTotal int // byte length of the last fully-observed packet, if any
}

// NewParser returns a fresh Parser, ready for use.
func NewParser() *Parser {
	return &Parser{}
}

// Reset advances past the packet most recently returned by Observe,
// preserving any further bytes already buffered for the next one.
func (p *Parser) Reset() {
	if p.lastTotal > 0 {
		p.buf = p.buf[p.lastTotal:]
		p.lastTotal = 0
	}
}

// Feed appends newly-read bytes to the internal buffer.
func (p *Parser) Feed(chunk []byte) {
	p.buf = append(p.buf, chunk...)
}

// Observe reports what the parser can determine from the bytes fed so
// far.
func (p *Parser) Observe() xs.Observation {
	if len(p.buf) < headerSize {
		return xs.Observation{Kind: xs.ObsNeedMoreData, NeedBytes: headerSize - len(p.buf)}
	}

	ty := xs.OpType(binary.LittleEndian.Uint32(p.buf[0:4]))
	rid := binary.LittleEndian.Uint32(p.buf[4:8])
	tid := binary.LittleEndian.Uint32(p.buf[8:12])
	payloadLen := binary.LittleEndian.Uint32(p.buf[12:16])

	if !validOpType(ty) {
		return xs.Observation{Kind: xs.ObsUnknownOperation, BadOpCode: int32(ty)}
	}

	total := headerSize + int(payloadLen)
	if len(p.buf) < total {
		return xs.Observation{Kind: xs.ObsNeedMoreData, NeedBytes: total - len(p.buf)}
	}

	payload := make([]byte, payloadLen)
	copy(payload, p.buf[headerSize:total])
	p.lastTotal = total

	return xs.Observation{
		Kind: xs.ObsPacket,
		Packet: &packet{
			ty:      ty,
			rid:     rid,
			tid:     tid,
			payload: payload,
		},
	}
}

func validOpType(ty xs.OpType) bool {
	switch ty {
	case xs.OpWatchEvent, xs.OpDirectory, xs.OpRead, xs.OpWrite,
		xs.OpWatch, xs.OpUnwatch, xs.OpTransactionStart, xs.OpTransactionEnd,
		xs.OpError:
		return true
	default:
		return false
	}
}
