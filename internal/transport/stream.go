package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrLinkClosed = errors.New("transport: link closed")

// StreamConfig tunes a StreamLink.
type StreamConfig struct {
	Limits       Limits
	WriteTimeout time.Duration
}

func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Limits:       DefaultLimits(),
		WriteTimeout: 5 * time.Second,
	}
}

// StreamLink serves one host connection at a time from a listener. Init
// accepts the next connection, so a host reconnect is a link reset.
type StreamLink struct {
	ln  net.Listener
	cfg StreamConfig

	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

var _ Link = (*StreamLink)(nil)

// Listen binds a TCP listener for host connections.
func Listen(addr string, cfg StreamConfig) (*StreamLink, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	return NewStreamLink(ln, cfg), nil
}

func NewStreamLink(ln net.Listener, cfg StreamConfig) *StreamLink {
	if cfg.Limits.MaxFrame <= 0 {
		cfg.Limits = DefaultLimits()
	}
	return &StreamLink{ln: ln, cfg: cfg}
}

func (l *StreamLink) Addr() net.Addr {
	return l.ln.Addr()
}

func (l *StreamLink) Init(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrEndOfSession
	}
	prev := l.conn
	l.conn = nil
	l.mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}

	stop := context.AfterFunc(ctx, func() {
		_ = l.ln.Close()
	})
	defer stop()

	conn, err := l.ln.Accept()
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
			return ErrEndOfSession
		}
		return fmt.Errorf("%w: accept: %v", ErrReset, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		_ = conn.Close()
		return ErrEndOfSession
	}
	l.conn = conn
	log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("transport.StreamLink.Init host connected")
	return nil
}

func (l *StreamLink) Receive(ctx context.Context, buf []byte) (int, error) {
	conn := l.current()
	if conn == nil {
		return 0, fmt.Errorf("%w: no host connection", ErrReset)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	n, err := ReadFrame(conn, buf, l.cfg.Limits)
	if err == nil {
		return n, nil
	}
	if ctx.Err() != nil {
		return 0, ErrEndOfSession
	}
	if errors.Is(err, ErrFrameTooLarge) {
		return 0, err
	}
	return 0, fmt.Errorf("%w: %v", ErrReset, err)
}

func (l *StreamLink) Transmit(ctx context.Context, frame []byte) error {
	conn := l.current()
	if conn == nil {
		return fmt.Errorf("%w: no host connection", ErrReset)
	}
	deadline := time.Time{}
	if l.cfg.WriteTimeout > 0 {
		deadline = time.Now().Add(l.cfg.WriteTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	_ = conn.SetWriteDeadline(deadline)
	if err := WriteFrame(conn, frame); err != nil {
		return fmt.Errorf("%w: %v", ErrReset, err)
	}
	return nil
}

func (l *StreamLink) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	conn := l.conn
	l.conn = nil
	l.mu.Unlock()

	var errs []error
	if conn != nil {
		errs = append(errs, conn.Close())
	}
	if err := l.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (l *StreamLink) current() net.Conn {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn
}
