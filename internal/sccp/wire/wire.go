// Package wire implements the SCCP (Skinny) message framing and the payload
// layouts of the message kinds the server understands.
//
// A frame on the wire is
//
//	length   u32 LE  bytes following this field
//	reserved u32 LE  header version, 0 for classic phones
//	id       u32 LE  message kind
//	payload  ...     kind-specific, little-endian
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Framing constants.
const (
	// HeaderSize is the size of the fixed frame header in bytes.
	HeaderSize = 12

	// minLength is the smallest legal value of the length field: reserved + id.
	minLength = 8

	// DefaultMaxFrameSize bounds a single frame read off a connection.
	DefaultMaxFrameSize = 8192
)

// Decode errors. All of them are connection-fatal for the session that
// produced the bytes.
var (
	// ErrShortHeader indicates fewer bytes than a header or a declared
	// length below the header minimum.
	ErrShortHeader = errors.New("sccp frame shorter than header")

	// ErrTruncated indicates the declared length exceeds the received bytes.
	ErrTruncated = errors.New("sccp frame truncated")

	// ErrFrameTooLarge indicates a declared length above the reader's limit.
	ErrFrameTooLarge = errors.New("sccp frame too large")
)

// Message is a decoded SCCP message. Values are immutable once decoded.
type Message interface {
	ID() MessageID
}

// payload is implemented by every known message kind.
type payload interface {
	Message
	decode(r *reader)
	encode(w *writer)
}

// Unknown carries a message whose id the server does not recognise. It is a
// normal decode result, not an error.
type Unknown struct {
	Kind    MessageID
	Payload []byte
}

func (m *Unknown) ID() MessageID { return m.Kind }

// Decode parses one complete frame. Trailing bytes beyond the declared
// length are ignored. Known kinds with a short payload decode with the
// missing trailing fields left at zero.
func Decode(b []byte) (Message, error) {
	if len(b) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortHeader, len(b))
	}
	length := binary.LittleEndian.Uint32(b[0:4])
	if length < minLength {
		return nil, fmt.Errorf("%w: declared length %d", ErrShortHeader, length)
	}
	if uint64(length)+4 > uint64(len(b)) {
		return nil, fmt.Errorf("%w: declared length %d, have %d", ErrTruncated, length, len(b)-4)
	}
	id := MessageID(binary.LittleEndian.Uint32(b[8:12]))
	body := b[HeaderSize : 4+length]

	factory, ok := kinds[id]
	if !ok {
		raw := make([]byte, len(body))
		copy(raw, body)
		return &Unknown{Kind: id, Payload: raw}, nil
	}
	m := factory()
	m.decode(&reader{b: body})
	return m, nil
}

// Encode renders m as a complete frame including the header.
func Encode(m Message) ([]byte, error) {
	var body []byte
	switch v := m.(type) {
	case *Unknown:
		body = v.Payload
	case payload:
		w := &writer{}
		v.encode(w)
		body = w.b
	default:
		return nil, fmt.Errorf("encoding message %s: unsupported type %T", m.ID(), m)
	}

	out := make([]byte, HeaderSize, HeaderSize+len(body))
	binary.LittleEndian.PutUint32(out[0:4], uint32(minLength+len(body)))
	binary.LittleEndian.PutUint32(out[8:12], uint32(m.ID()))
	return append(out, body...), nil
}

// PeekID returns the message id of a frame without decoding it.
func PeekID(b []byte) (MessageID, bool) {
	if len(b) < HeaderSize {
		return 0, false
	}
	return MessageID(binary.LittleEndian.Uint32(b[8:12])), true
}
