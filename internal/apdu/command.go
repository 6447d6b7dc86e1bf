package apdu

import (
	"errors"
	"fmt"
)

const (
	// HeaderLen is [cla][ins][p1][p2][lc].
	HeaderLen = 5
	// MaxDataLen is the largest payload a one-byte lc can declare.
	MaxDataLen = 255
	// MaxCommandLen is the largest well-formed command frame.
	MaxCommandLen = HeaderLen + MaxDataLen
)

var (
	ErrWrongLength    = errors.New("apdu: wrong length")
	ErrShortHeader    = fmt.Errorf("%w: short header", ErrWrongLength)
	ErrLengthMismatch = fmt.Errorf("%w: lc does not match data length", ErrWrongLength)
	ErrDataTooLong    = errors.New("apdu: data exceeds one-byte lc")
)

// Command is one decoded host command.
type Command struct {
	Class       byte
	Instruction byte
	P1          byte
	P2          byte
	Lc          byte
	Data        []byte
}

// Decode parses raw into a Command. Data aliases raw and is only valid until
// raw is reused; use Clone to keep it.
func Decode(raw []byte) (Command, error) {
	if len(raw) < HeaderLen {
		return Command{}, fmt.Errorf("%w: got %d bytes", ErrShortHeader, len(raw))
	}
	lc := raw[4]
	if HeaderLen+int(lc) != len(raw) {
		return Command{}, fmt.Errorf("%w: lc=%d remaining=%d", ErrLengthMismatch, lc, len(raw)-HeaderLen)
	}
	cmd := Command{
		Class:       raw[0],
		Instruction: raw[1],
		P1:          raw[2],
		P2:          raw[3],
		Lc:          lc,
	}
	if lc > 0 {
		cmd.Data = raw[HeaderLen:len(raw):len(raw)]
	}
	return cmd, nil
}

// Encode builds the wire form of cmd; Lc is derived from Data.
func Encode(cmd Command) ([]byte, error) {
	if len(cmd.Data) > MaxDataLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrDataTooLong, len(cmd.Data))
	}
	buf := make([]byte, HeaderLen+len(cmd.Data))
	buf[0] = cmd.Class
	buf[1] = cmd.Instruction
	buf[2] = cmd.P1
	buf[3] = cmd.P2
	buf[4] = byte(len(cmd.Data))
	copy(buf[HeaderLen:], cmd.Data)
	return buf, nil
}

// Clone returns a copy whose Data does not alias the receive buffer.
func (c Command) Clone() Command {
	out := c
	if len(c.Data) > 0 {
		out.Data = make([]byte, len(c.Data))
		copy(out.Data, c.Data)
	}
	return out
}

func (c Command) String() string {
	return fmt.Sprintf("cla=%02X ins=%02X p1=%02X p2=%02X lc=%d", c.Class, c.Instruction, c.P1, c.P2, c.Lc)
}
