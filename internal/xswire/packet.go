// Package xswire is a minimal, self-contained reference implementation
// of the Parser, Codec, and OpFactories contracts pkg/xs consumes. It is
// not part of the public protocol contract — a real xenstored link would
// supply its own — it exists so pkg/xs is testable end-to-end and so a
// checkout has a default to link against.
package xswire

import (
	"bytes"
	"encoding/binary"

	"github.com/openxen/xsclient/pkg/xs"
)

// headerSize is the fixed 16-byte header: ty, rid, tid, len, all
// little-endian uint32.
const headerSize = 16

type packet struct {
	ty      xs.OpType
	rid     uint32
	tid     uint32
	payload []byte
}

func (p *packet) Type() xs.OpType        { return p.ty }
func (p *packet) RequestID() uint32      { return p.rid }
func (p *packet) TransactionID() uint32  { return p.tid }
func (p *packet) Payload() []byte        { return p.payload }

// EncodeHeader writes the fixed header for a packet with the given type,
// rid, tid and payload length.
func EncodeHeader(ty xs.OpType, rid, tid uint32, payloadLen int) []byte {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(ty))
	binary.LittleEndian.PutUint32(buf[4:8], rid)
	binary.LittleEndian.PutUint32(buf[8:12], tid)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(payloadLen))
	return buf
}

// EncodePacket builds the full wire representation of one packet.
func EncodePacket(ty xs.OpType, rid, tid uint32, payload []byte) []byte {
	out := make([]byte, 0, headerSize+len(payload))
	out = append(out, EncodeHeader(ty, rid, tid, len(payload))...)
	out = append(out, payload...)
	return out
}

// EncodeList joins fields with NUL separators, the wire representation
// the Codec's List/WatchEvent payloads use.
func EncodeList(fields ...string) []byte {
	return []byte(joinNUL(fields))
}

func joinNUL(fields []string) string {
	var buf bytes.Buffer
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(0)
		}
		buf.WriteString(f)
	}
	return buf.String()
}

// EncodeInt32 is the 4-byte little-endian wire representation an Int32
// payload uses (transaction_start's new tid, for example).
func EncodeInt32(v int32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(v))
	return buf
}

const (
	okMarker     = "OK"
	eagainMarker = "EAGAIN"
)

// EncodeOK is the literal success-marker payload.
func EncodeOK() []byte { return []byte(okMarker) }

// EncodeEagain is the literal transaction-conflict marker payload.
func EncodeEagain() []byte { return []byte(eagainMarker) }

// EncodeProtocolError encodes an arbitrary server-side failure message.
func EncodeProtocolError(msg string) []byte { return []byte(msg) }
