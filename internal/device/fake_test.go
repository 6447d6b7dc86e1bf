package device

import (
	"context"
	"sync"

	"github.com/danmuck/tokencore/internal/transport"
)

type recvStep struct {
	frame []byte
	err   error
}

// scriptedLink replays receive steps and records every link call in order.
// An exhausted script ends the session.
type scriptedLink struct {
	mu          sync.Mutex
	steps       []recvStep
	initErrs    []error
	transmitErr error
	sent        [][]byte
	events      []string
}

var _ transport.Link = (*scriptedLink)(nil)

func (l *scriptedLink) Init(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, "init")
	if len(l.initErrs) == 0 {
		return nil
	}
	err := l.initErrs[0]
	l.initErrs = l.initErrs[1:]
	return err
}

func (l *scriptedLink) Receive(_ context.Context, buf []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, "recv")
	if len(l.steps) == 0 {
		return 0, transport.ErrEndOfSession
	}
	step := l.steps[0]
	l.steps = l.steps[1:]
	if step.err != nil {
		return 0, step.err
	}
	return copy(buf, step.frame), nil
}

func (l *scriptedLink) Transmit(_ context.Context, frame []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, "send")
	if l.transmitErr != nil {
		return l.transmitErr
	}
	l.sent = append(l.sent, append([]byte(nil), frame...))
	return nil
}

func (l *scriptedLink) Close() error {
	return nil
}

func (l *scriptedLink) count(event string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e == event {
			n++
		}
	}
	return n
}

func frames(raw ...[]byte) []recvStep {
	out := make([]recvStep, 0, len(raw))
	for _, f := range raw {
		out = append(out, recvStep{frame: f})
	}
	return out
}

type recordingObserver struct {
	states  []LoopState
	results []Result
	exits   []ExitReason
}

func (o *recordingObserver) ObserveState(s LoopState) { o.states = append(o.states, s) }
func (o *recordingObserver) ObserveResult(r Result) { o.results = append(o.results, r) }
func (o *recordingObserver) ObserveExit(r ExitReason) { o.exits = append(o.exits, r) }

type fakePlatform struct {
	uiInits   int
	exits     int
	uiErr     error
	exitErr   error
	exitPanic bool
}

func (p *fakePlatform) InitUI(context.Context) error {
	p.uiInits++
	return p.uiErr
}

func (p *fakePlatform) Exit(context.Context) error {
	p.exits++
	if p.exitPanic {
		panic("exit trap")
	}
	return p.exitErr
}
