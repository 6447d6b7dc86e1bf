// Package dispatch owns instruction routing.
//
// Ownership boundary:
// - handler contract and the startup-built routing table
// - unknown-instruction and fatal signalling
// - classification of handler results into loop outcomes
//
// The dispatcher performs no business logic; handlers own any device state
// they mutate.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/tokencore/internal/apdu"
	"github.com/danmuck/tokencore/internal/sw"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownInstruction = errors.New("dispatch: unknown instruction")
	ErrFatal              = errors.New("dispatch: fatal condition")
	ErrHandlerPanic       = errors.New("dispatch: handler panic")
)

// Handler answers one validated command. On success it stages its payload
// (and optionally a status) in w; on failure anything staged is discarded.
type Handler interface {
	Handle(ctx context.Context, cmd apdu.Command, w *apdu.ResponseWriter) error
}

// HandlerFunc adapts an ordinary function to Handler.
type HandlerFunc func(ctx context.Context, cmd apdu.Command, w *apdu.ResponseWriter) error

func (f HandlerFunc) Handle(ctx context.Context, cmd apdu.Command, w *apdu.ResponseWriter) error {
	return f(ctx, cmd, w)
}

// UnknownInstructionError is returned for routes absent from the table.
type UnknownInstructionError struct {
	Route  Route
	Status sw.StatusWord
}

func (e *UnknownInstructionError) Error() string {
	return fmt.Sprintf("%v: %s (%s)", ErrUnknownInstruction, e.Route, e.Status)
}

func (e *UnknownInstructionError) Is(target error) bool {
	return target == ErrUnknownInstruction
}

// FatalError asks the supervisor to stop the application.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	if e.Err == nil {
		return ErrFatal.Error()
	}
	return fmt.Sprintf("%v: %v", ErrFatal, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

func (e *FatalError) Is(target error) bool {
	return target == ErrFatal
}

// Fatal marks err as unrecoverable.
func Fatal(err error) error {
	return &FatalError{Err: err}
}

// Dispatcher routes commands through a table fixed at construction.
type Dispatcher struct {
	table   map[Route]entry
	classes map[byte]struct{}
}

// NewDispatcher snapshots reg; later registrations are not visible.
func NewDispatcher(reg *Registry) *Dispatcher {
	d := &Dispatcher{
		table:   make(map[Route]entry),
		classes: make(map[byte]struct{}),
	}
	if reg == nil {
		return d
	}
	for route, e := range reg.items {
		d.table[route] = e
		d.classes[route.Class] = struct{}{}
	}
	return d
}

// Dispatch invokes the handler for cmd's route.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd apdu.Command, w *apdu.ResponseWriter) (err error) {
	route := Route{Class: cmd.Class, Instruction: cmd.Instruction}
	e, ok := d.table[route]
	if !ok {
		status := sw.UnknownInstruction
		if _, known := d.classes[cmd.Class]; !known {
			status = sw.ClassNotSupported
		}
		return &UnknownInstructionError{Route: route, Status: status}
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("route", route.String()).
				Str("handler", e.name).
				Interface("panic", r).
				Msg("dispatch.Dispatcher.Dispatch handler panic recovered")
			err = fmt.Errorf("%w: %s: %v", ErrHandlerPanic, e.name, r)
		}
	}()
	return e.handler.Handle(ctx, cmd, w)
}

// HandlerName returns the display name bound to route.
func (d *Dispatcher) HandlerName(route Route) (string, bool) {
	e, ok := d.table[route]
	return e.name, ok
}

func (d *Dispatcher) Routes() []RouteInfo {
	return sortedRoutes(d.table)
}
