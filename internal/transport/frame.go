package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/tokencore/internal/apdu"
)

const FrameHeaderLen = 4

var ErrShortHeader = errors.New("transport: short frame header")

// Limits constrains frame sizes on the wire.
type Limits struct {
	MaxFrame int
	// MaxDrain bounds how much of an oversized frame is discarded to keep the
	// stream aligned; anything larger resets the link. 0 means 4*MaxFrame.
	MaxDrain int
}

func (l Limits) drainBound(limit int) uint64 {
	if l.MaxDrain > 0 {
		return uint64(l.MaxDrain)
	}
	return 4 * uint64(limit)
}

func DefaultLimits() Limits {
	return Limits{MaxFrame: apdu.MaxCommandLen}
}

// ReadFrame reads one [len:4][bytes] frame into buf and returns its length.
// Frames longer than buf or the limit are drained and rejected with
// ErrFrameTooLarge so the stream stays aligned. A declared length past the
// drain bound is not read at all and reports ErrReset.
func ReadFrame(r io.Reader, buf []byte, limits Limits) (int, error) {
	var hdr [FrameHeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, ErrShortHeader
		}
		return 0, err
	}
	length := binary.BigEndian.Uint32(hdr[:])
	limit := limits.MaxFrame
	if limit <= 0 || limit > len(buf) {
		limit = len(buf)
	}
	if uint64(length) > uint64(limit) {
		if bound := limits.drainBound(limit); uint64(length) > bound {
			return 0, fmt.Errorf("%w: declared frame %d exceeds drain bound %d", ErrReset, length, bound)
		}
		if _, err := io.CopyN(io.Discard, r, int64(length)); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, limit)
	}
	if _, err := io.ReadFull(r, buf[:length]); err != nil {
		return 0, err
	}
	return int(length), nil
}

// WriteFrame writes payload as one [len:4][bytes] frame.
func WriteFrame(w io.Writer, payload []byte) error {
	out := make([]byte, FrameHeaderLen+len(payload))
	binary.BigEndian.PutUint32(out[:FrameHeaderLen], uint32(len(payload)))
	copy(out[FrameHeaderLen:], payload)
	_, err := w.Write(out)
	return err
}

// ReadFrameAlloc reads one frame into a freshly sized buffer; host side.
func ReadFrameAlloc(r io.Reader, limits Limits) ([]byte, error) {
	var hdr [FrameHeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrShortHeader
		}
		return nil, err
	}
	length := binary.BigEndian.Uint32(hdr[:])
	if limits.MaxFrame > 0 && uint64(length) > uint64(limits.MaxFrame) {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, limits.MaxFrame)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
