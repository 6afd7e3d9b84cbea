package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// FrameReader reads whole SCCP frames from a stream.
type FrameReader struct {
	r            io.Reader
	maxFrameSize uint32
	lengthBuf    [4]byte
}

// NewFrameReader creates a frame reader. A maxFrameSize of zero selects
// DefaultMaxFrameSize.
func NewFrameReader(r io.Reader, maxFrameSize uint32) *FrameReader {
	if maxFrameSize == 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &FrameReader{r: r, maxFrameSize: maxFrameSize}
}

// ReadFrame returns the next frame including its header, ready for Decode.
// io.EOF is returned unwrapped when the peer closed between frames.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	if _, err := io.ReadFull(fr.r, fr.lengthBuf[:]); err != nil {
		if err == io.EOF {
			return nil, err
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrTruncated
		}
		return nil, fmt.Errorf("reading frame length: %w", err)
	}

	length := binary.LittleEndian.Uint32(fr.lengthBuf[:])
	if length < minLength {
		return nil, fmt.Errorf("%w: declared length %d", ErrShortHeader, length)
	}
	if length > fr.maxFrameSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, fr.maxFrameSize)
	}

	frame := make([]byte, 4+length)
	copy(frame, fr.lengthBuf[:])
	if _, err := io.ReadFull(fr.r, frame[4:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || err == io.EOF {
			return nil, ErrTruncated
		}
		return nil, fmt.Errorf("reading frame body: %w", err)
	}
	return frame, nil
}

// IsDecodeError reports whether err is one of the framing errors that make
// a connection unusable.
func IsDecodeError(err error) bool {
	return errors.Is(err, ErrShortHeader) || errors.Is(err, ErrTruncated) || errors.Is(err, ErrFrameTooLarge)
}
