package client

import (
	"errors"
	"fmt"

	"github.com/danmuck/tokencore/internal/sw"
)

var (
	ErrUnknownDevice          = errors.New("client: unknown device error")
	ErrDeny                   = errors.New("client: denied by user")
	ErrWrongP1P2              = errors.New("client: wrong p1/p2")
	ErrWrongDataLength        = errors.New("client: wrong data length")
	ErrInsNotSupported        = errors.New("client: instruction not supported")
	ErrClaNotSupported        = errors.New("client: class not supported")
	ErrWrongResponseLength    = errors.New("client: wrong response length")
	ErrInvalidData            = errors.New("client: invalid data")
	ErrDeviceGeneric          = errors.New("client: generic device failure")
	ErrClosed                 = errors.New("client: closed")
	ErrUnexpectedFrameTooLong = errors.New("client: response frame too long")
)

var statusErrors = map[sw.StatusWord]error{
	sw.Deny:                ErrDeny,
	sw.WrongP1P2:           ErrWrongP1P2,
	sw.WrongLength:         ErrWrongDataLength,
	sw.UnknownInstruction:  ErrInsNotSupported,
	sw.ClassNotSupported:   ErrClaNotSupported,
	sw.WrongResponseLength: ErrWrongResponseLength,
	sw.InvalidData:         ErrInvalidData,
	sw.Generic:             ErrDeviceGeneric,
}

// DeviceError is a non-success status word answered by the device.
type DeviceError struct {
	Status sw.StatusWord
	Data   []byte
	kind   error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%v: status 0x%s (%s)", e.kind, e.Status.Hex(), e.Status)
}

func (e *DeviceError) Unwrap() error {
	return e.kind
}

// StatusError maps status to an error; nil for OK. Unrecognised codes wrap
// ErrUnknownDevice.
func StatusError(status sw.StatusWord, data []byte) error {
	if status == sw.OK {
		return nil
	}
	kind, ok := statusErrors[status]
	if !ok {
		kind = ErrUnknownDevice
	}
	return &DeviceError{Status: status, Data: data, kind: kind}
}
