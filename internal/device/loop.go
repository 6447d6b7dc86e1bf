package device

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/danmuck/tokencore/internal/apdu"
	"github.com/danmuck/tokencore/internal/dispatch"
	"github.com/danmuck/tokencore/internal/sw"
	"github.com/danmuck/tokencore/internal/transport"
	"github.com/rs/zerolog/log"
)

var ErrNilDispatcher = errors.New("device: dispatcher is nil")

// Result describes one answered iteration. Command is a copy and does not
// alias the loop's buffers.
type Result struct {
	Command apdu.Command
	Decoded bool
	Status  sw.StatusWord
	Elapsed time.Duration
}

// Observer receives loop telemetry. Implementations must not block.
type Observer interface {
	ObserveState(state LoopState)
	ObserveResult(res Result)
	ObserveExit(reason ExitReason)
}

type nopObserver struct{}

func (nopObserver) ObserveState(LoopState) {}
func (nopObserver) ObserveResult(Result) {}
func (nopObserver) ObserveExit(ExitReason) {}

// LoopConfig sizes the iteration buffers.
type LoopConfig struct {
	// MaxFrame bounds both the inbound command and the outbound response.
	MaxFrame int
}

func DefaultLoopConfig() LoopConfig {
	return LoopConfig{MaxFrame: transport.DefaultLimits().MaxFrame}
}

// buffers is the iteration buffer context handed to decoder and handlers.
// Nothing may retain either slice past the iteration.
type buffers struct {
	in  []byte
	out []byte
}

func newBuffers(size int) buffers {
	return buffers{in: make([]byte, size), out: make([]byte, size)}
}

func (b buffers) reset() {
	clear(b.in)
	clear(b.out)
}

// Loop runs the single-threaded receive/decode/dispatch/respond cycle.
type Loop struct {
	link       transport.Link
	dispatcher *dispatch.Dispatcher
	observer   Observer
	bufs       buffers
	state      atomic.Int32
}

// Loop constructor; a nil observer disables telemetry.
func NewLoop(link transport.Link, d *dispatch.Dispatcher, cfg LoopConfig, observer Observer) (*Loop, error) {
	if d == nil {
		return nil, ErrNilDispatcher
	}
	if cfg.MaxFrame <= apdu.StatusLen {
		cfg = DefaultLoopConfig()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Loop{
		link:       link,
		dispatcher: d,
		observer:   observer,
		bufs:       newBuffers(cfg.MaxFrame),
	}, nil
}

// State is for observability only.
func (l *Loop) State() LoopState {
	return LoopState(l.state.Load())
}

// Run iterates until a reset, a fatal condition, or end of session.
func (l *Loop) Run(ctx context.Context) Exit {
	for {
		if ctx.Err() != nil {
			return l.exit(StateStopped, Exit{Reason: ExitEndOfSession})
		}
		if exit, done := l.iterate(ctx); done {
			return exit
		}
	}
}

func (l *Loop) iterate(ctx context.Context) (Exit, bool) {
	l.setState(StateReady)
	l.bufs.reset()
	var cmd apdu.Command

	l.setState(StateReceiving)
	n, err := l.link.Receive(ctx, l.bufs.in)
	switch {
	case err == nil && (n < 0 || n > len(l.bufs.in)):
		err = fmt.Errorf("device: receiver reported %d bytes for %d byte buffer", n, len(l.bufs.in))
	case errors.Is(err, transport.ErrEndOfSession), err != nil && ctx.Err() != nil:
		return l.exit(StateStopped, Exit{Reason: ExitEndOfSession}), true
	}

	l.setState(StateProcessing)
	start := time.Now()
	w := apdu.NewResponseWriter(l.bufs.out[apdu.StatusLen:])
	decoded := false
	if err == nil {
		cmd, err = apdu.Decode(l.bufs.in[:n])
		decoded = err == nil
	}
	if decoded {
		err = l.dispatcher.Dispatch(ctx, cmd, w)
	}

	status := w.Status()
	outcome := dispatch.Classify(err)
	switch outcome.Kind {
	case dispatch.KindReset:
		log.Warn().Err(err).Msg("device.Loop.iterate transport reset")
		return l.exit(StateRestart, Exit{Reason: ExitReset, Err: err}), true
	case dispatch.KindFatal:
		log.Error().Err(err).Str("cmd", cmd.String()).Msg("device.Loop.iterate fatal")
		return l.exit(StateStopped, Exit{Reason: ExitFatal, Err: err}), true
	case dispatch.KindRecoverable:
		w.Reset()
		status = outcome.Status
		log.Debug().Err(err).Str("status", status.String()).Msg("device.Loop.iterate recovered")
	case dispatch.KindOK:
		if status == sw.IOReset {
			// a reset is only ever observed as a link re-init, never as a status
			log.Warn().Str("cmd", cmd.String()).Msg("device.Loop.iterate handler set reserved reset status")
			w.Reset()
			status = sw.Generic
		}
	}

	if err := l.respond(ctx, status, w.Len()); err != nil {
		log.Warn().Err(err).Msg("device.Loop.iterate respond failed")
		return l.exit(StateRestart, Exit{Reason: ExitReset, Err: err}), true
	}
	l.observer.ObserveResult(Result{
		Command: cmd.Clone(),
		Decoded: decoded,
		Status:  status,
		Elapsed: time.Since(start),
	})
	return Exit{}, false
}

// respond transmits [sw][payload] from the output region. Any transmit
// failure is a reset.
func (l *Loop) respond(ctx context.Context, status sw.StatusWord, payloadLen int) error {
	b := status.Bytes()
	l.bufs.out[0], l.bufs.out[1] = b[0], b[1]
	if err := l.link.Transmit(ctx, l.bufs.out[:apdu.StatusLen+payloadLen]); err != nil {
		if errors.Is(err, transport.ErrReset) {
			return err
		}
		return fmt.Errorf("%w: transmit: %v", transport.ErrReset, err)
	}
	return nil
}

func (l *Loop) exit(state LoopState, exit Exit) Exit {
	l.setState(state)
	l.observer.ObserveExit(exit.Reason)
	return exit
}

func (l *Loop) setState(state LoopState) {
	l.state.Store(int32(state))
	l.observer.ObserveState(state)
}
