package apdu

import (
	"testing"

	"github.com/danmuck/tokencore/internal/sw"
	"github.com/danmuck/tokencore/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

func TestResponseWriterStagesPayload(t *testing.T) {
	testlog.Start(t)
	out := make([]byte, 4)
	w := NewResponseWriter(out)
	require.Equal(t, sw.OK, w.Status())

	_, err := w.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, w.WriteByte(4))
	require.Equal(t, []byte{1, 2, 3, 4}, w.Payload())
	require.Zero(t, w.Available())

	_, err = w.Write([]byte{5})
	require.ErrorIs(t, err, ErrResponseTooLong)
	require.Equal(t, 4, w.Len(), "failed write must not stage bytes")

	w.SetStatus(sw.BadState)
	w.Reset()
	require.Zero(t, w.Len())
	require.Equal(t, sw.OK, w.Status())
}

func TestEncodeResponseStatusFirst(t *testing.T) {
	testlog.Start(t)
	require.Equal(t, []byte{0x90, 0x00}, EncodeResponse(nil, sw.OK, nil))
	require.Equal(t, []byte{0x6A, 0x87}, EncodeResponse(nil, sw.WrongLength, nil))
	require.Equal(t, []byte{0x90, 0x00, 0xDE, 0xAD}, EncodeResponse(nil, sw.OK, []byte{0xDE, 0xAD}))
}

func TestDecodeResponse(t *testing.T) {
	testlog.Start(t)
	resp, err := DecodeResponse([]byte{0x6D, 0x00})
	require.NoError(t, err)
	require.Equal(t, sw.UnknownInstruction, resp.Status)
	require.Nil(t, resp.Data)

	resp, err = DecodeResponse([]byte{0x90, 0x00, 0x01})
	require.NoError(t, err)
	require.Equal(t, []byte{0x01}, resp.Data)

	_, err = DecodeResponse([]byte{0x90})
	require.ErrorIs(t, err, ErrShortResponse)
}
