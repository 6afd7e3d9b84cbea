package wire

import (
	"bytes"
	"encoding/binary"
)

// reader walks a payload. Reads past the end yield zero values so that
// payloads sent by older firmware, which omit trailing fields, still decode.
type reader struct {
	b   []byte
	off int
}

func (r *reader) take(n int) []byte {
	if r.off >= len(r.b) {
		return nil
	}
	end := r.off + n
	if end > len(r.b) {
		end = len(r.b)
	}
	p := r.b[r.off:end]
	r.off = end
	return p
}

func (r *reader) u32() uint32 {
	p := r.take(4)
	if len(p) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(p)
}

func (r *reader) u16() uint16 {
	p := r.take(2)
	if len(p) < 2 {
		return 0
	}
	return binary.LittleEndian.Uint16(p)
}

func (r *reader) u8() uint8 {
	p := r.take(1)
	if len(p) < 1 {
		return 0
	}
	return p[0]
}

func (r *reader) skip(n int) { r.take(n) }

func (r *reader) ip4() [4]byte {
	var ip [4]byte
	copy(ip[:], r.take(4))
	return ip
}

// str reads a fixed-width, NUL padded string.
func (r *reader) str(n int) string {
	p := r.take(n)
	if i := bytes.IndexByte(p, 0); i >= 0 {
		p = p[:i]
	}
	return string(bytes.TrimRight(p, " "))
}

func (r *reader) remaining() int { return len(r.b) - r.off }

type writer struct {
	b []byte
}

func (w *writer) u32(v uint32) { w.b = binary.LittleEndian.AppendUint32(w.b, v) }
func (w *writer) u16(v uint16) { w.b = binary.LittleEndian.AppendUint16(w.b, v) }
func (w *writer) u8(v uint8)   { w.b = append(w.b, v) }
func (w *writer) pad(n int)    { w.b = append(w.b, make([]byte, n)...) }
func (w *writer) ip4(ip [4]byte) {
	w.b = append(w.b, ip[:]...)
}

// str writes s into a fixed-width field, truncating it when longer and
// NUL padding it when shorter.
func (w *writer) str(s string, n int) {
	field := make([]byte, n)
	copy(field, s)
	w.b = append(w.b, field...)
}
