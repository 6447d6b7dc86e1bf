package apdu

import (
	"errors"
	"fmt"

	"github.com/danmuck/tokencore/internal/sw"
)

// StatusLen is the size of the status word on the wire.
const StatusLen = 2

var (
	ErrResponseTooLong = errors.New("apdu: response exceeds output buffer")
	ErrShortResponse   = errors.New("apdu: response shorter than status word")
)

// Response is a decoded device answer.
type Response struct {
	Status sw.StatusWord
	Data   []byte
}

// ResponseWriter stages a handler's answer in the fixed output region.
type ResponseWriter struct {
	buf    []byte
	n      int
	status sw.StatusWord
}

// NewResponseWriter wraps out; its capacity bounds the payload.
func NewResponseWriter(out []byte) *ResponseWriter {
	return &ResponseWriter{buf: out[:cap(out)], status: sw.OK}
}

func (w *ResponseWriter) Write(p []byte) (int, error) {
	if len(p) > len(w.buf)-w.n {
		return 0, fmt.Errorf("%w: have %d, need %d", ErrResponseTooLong, len(w.buf)-w.n, len(p))
	}
	copy(w.buf[w.n:], p)
	w.n += len(p)
	return len(p), nil
}

func (w *ResponseWriter) WriteByte(b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

// SetStatus overrides the success status a handler answers with.
func (w *ResponseWriter) SetStatus(status sw.StatusWord) {
	w.status = status
}

func (w *ResponseWriter) Status() sw.StatusWord {
	return w.status
}

// Payload returns the staged bytes; it aliases the output region.
func (w *ResponseWriter) Payload() []byte {
	return w.buf[:w.n]
}

func (w *ResponseWriter) Len() int {
	return w.n
}

// Available reports the remaining payload capacity.
func (w *ResponseWriter) Available() int {
	return len(w.buf) - w.n
}

// Reset discards staged payload and restores the OK status.
func (w *ResponseWriter) Reset() {
	w.n = 0
	w.status = sw.OK
}

// EncodeResponse appends [sw:2][payload] to dst.
func EncodeResponse(dst []byte, status sw.StatusWord, payload []byte) []byte {
	b := status.Bytes()
	dst = append(dst, b[0], b[1])
	return append(dst, payload...)
}

// DecodeResponse splits a device answer into status and payload.
func DecodeResponse(raw []byte) (Response, error) {
	if len(raw) < StatusLen {
		return Response{}, fmt.Errorf("%w: got %d bytes", ErrShortResponse, len(raw))
	}
	resp := Response{Status: sw.StatusWord(uint16(raw[0])<<8 | uint16(raw[1]))}
	if len(raw) > StatusLen {
		resp.Data = make([]byte, len(raw)-StatusLen)
		copy(resp.Data, raw[StatusLen:])
	}
	return resp, nil
}
