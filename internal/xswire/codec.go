package xswire

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/openxen/xsclient/pkg/xs"
)

// Codec decodes payloads produced by EncodeList/EncodeInt32/EncodeOK (see
// packet.go). It implements xs.Codec.
type Codec struct{}

// NewCodec returns a Codec for the wire format this package defines.
func NewCodec() Codec { return Codec{} }

// List splits a NUL-separated payload into its fields.
func (Codec) List(payload []byte) ([]string, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	return strings.Split(string(payload), "\x00"), nil
}

// String returns a single-field payload's contents verbatim.
func (Codec) String(payload []byte) (string, error) {
	return string(payload), nil
}

// Int32 decodes a 4-byte little-endian payload.
func (Codec) Int32(payload []byte) (int32, error) {
	if len(payload) != 4 {
		return 0, fmt.Errorf("xswire: int32 payload has %d bytes, want 4", len(payload))
	}
	return int32(binary.LittleEndian.Uint32(payload)), nil
}

// OK translates the literal success/eagain/error markers into the
// taxonomy pkg/xs expects: nil for "OK", xs.ErrEagain for
// "EAGAIN", and a *xs.ProtocolError wrapping anything else.
func (Codec) OK(payload []byte) error {
	switch string(payload) {
	case okMarker:
		return nil
	case eagainMarker:
		return xs.ErrEagain
	default:
		return &xs.ProtocolError{Message: string(payload)}
	}
}
