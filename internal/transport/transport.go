// Package transport owns the host link the device receives commands on.
//
// Ownership boundary:
// - link lifecycle (init on power-up, reset, close)
// - wire framing of raw command/response frames
// - reset and end-of-session signalling
// - re-initialisation backoff
package transport

import (
	"context"
	"errors"
)

var (
	// ErrReset reports that the physical link was re-initialised and the
	// current operation must be abandoned without a response.
	ErrReset = errors.New("transport: link reset")
	// ErrEndOfSession reports that no further frames will arrive.
	ErrEndOfSession = errors.New("transport: end of session")
	// ErrFrameTooLarge reports a frame longer than the receive buffer; the
	// frame was consumed and the link is still usable.
	ErrFrameTooLarge = errors.New("transport: frame exceeds receive buffer")
)

// Receiver fills buf with the next raw command frame.
type Receiver interface {
	Receive(ctx context.Context, buf []byte) (int, error)
}

// Transmitter sends one encoded response frame.
type Transmitter interface {
	Transmit(ctx context.Context, frame []byte) error
}

// Link is the device side of the host connection.
type Link interface {
	Receiver
	Transmitter
	// Init powers the link up, dropping any previous connection.
	Init(ctx context.Context) error
	Close() error
}
