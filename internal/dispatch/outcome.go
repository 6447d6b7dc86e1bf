package dispatch

import (
	"errors"

	"github.com/danmuck/tokencore/internal/apdu"
	"github.com/danmuck/tokencore/internal/sw"
	"github.com/danmuck/tokencore/internal/transport"
)

// Kind tags how the loop must treat one iteration's result.
type Kind int

const (
	KindOK Kind = iota
	KindRecoverable
	KindReset
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindRecoverable:
		return "recoverable"
	case KindReset:
		return "reset"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Outcome is the tagged result of decoding or dispatching one frame.
// Status is meaningful for KindRecoverable only.
type Outcome struct {
	Kind   Kind
	Status sw.StatusWord
	Err    error
}

// Classify maps an error from the decoder or a handler onto an Outcome.
// Anything not explicitly categorised is a recoverable generic error.
func Classify(err error) Outcome {
	if err == nil {
		return Outcome{Kind: KindOK}
	}
	if errors.Is(err, transport.ErrReset) {
		return Outcome{Kind: KindReset, Err: err}
	}
	if errors.Is(err, ErrFatal) {
		return Outcome{Kind: KindFatal, Err: err}
	}
	var unknown *UnknownInstructionError
	if errors.As(err, &unknown) {
		return Outcome{Kind: KindRecoverable, Status: unknown.Status, Err: err}
	}
	if status, ok := sw.FromError(err); ok {
		return Outcome{Kind: KindRecoverable, Status: status, Err: err}
	}
	switch {
	case errors.Is(err, apdu.ErrWrongLength), errors.Is(err, transport.ErrFrameTooLarge):
		return Outcome{Kind: KindRecoverable, Status: sw.WrongLength, Err: err}
	case errors.Is(err, apdu.ErrResponseTooLong):
		return Outcome{Kind: KindRecoverable, Status: sw.WrongResponseLength, Err: err}
	}
	return Outcome{Kind: KindRecoverable, Status: sw.Generic, Err: err}
}
