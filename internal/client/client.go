// Package client is the host side of the token wire protocol.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/danmuck/tokencore/internal/apdu"
	"github.com/danmuck/tokencore/internal/transport"
	"github.com/rs/zerolog/log"
)

// Options configures a Client connection.
type Options struct {
	DialTimeout time.Duration
	// Timeout bounds one exchange when ctx carries no deadline.
	Timeout     time.Duration
	MaxResponse int
}

func DefaultOptions() Options {
	return Options{
		DialTimeout: 5 * time.Second,
		Timeout:     10 * time.Second,
		MaxResponse: transport.DefaultLimits().MaxFrame,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.DialTimeout <= 0 {
		o.DialTimeout = d.DialTimeout
	}
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.MaxResponse <= 0 {
		o.MaxResponse = d.MaxResponse
	}
	return o
}

// Client sends one command at a time over a framed stream.
type Client struct {
	opts Options

	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

// Dial connects to a device listening at addr.
func Dial(ctx context.Context, addr string, opts Options) (*Client, error) {
	opts = opts.withDefaults()
	dialer := net.Dialer{Timeout: opts.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", addr, err)
	}
	log.Debug().Str("addr", addr).Msg("client.Dial connected")
	return New(conn, opts), nil
}

// New wraps an established connection.
func New(conn net.Conn, opts Options) *Client {
	return &Client{conn: conn, opts: opts.withDefaults()}
}

// Exchange sends cmd and returns the device response. A non-OK status is
// returned as both the Response and a mapped error.
func (c *Client) Exchange(ctx context.Context, cmd apdu.Command) (apdu.Response, error) {
	raw, err := apdu.Encode(cmd)
	if err != nil {
		return apdu.Response{}, err
	}
	return c.ExchangeRaw(ctx, raw)
}

// ExchangeRaw sends raw bytes as one frame without validating them.
func (c *Client) ExchangeRaw(ctx context.Context, raw []byte) (apdu.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return apdu.Response{}, ErrClosed
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.opts.Timeout)
	}
	_ = c.conn.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := transport.WriteFrame(c.conn, raw); err != nil {
		return apdu.Response{}, c.ioError(ctx, "send", err)
	}
	frame, err := transport.ReadFrameAlloc(c.conn, transport.Limits{MaxFrame: c.opts.MaxResponse})
	if err != nil {
		if errors.Is(err, transport.ErrFrameTooLarge) {
			return apdu.Response{}, fmt.Errorf("%w: %v", ErrUnexpectedFrameTooLong, err)
		}
		return apdu.Response{}, c.ioError(ctx, "receive", err)
	}
	resp, err := apdu.DecodeResponse(frame)
	if err != nil {
		return apdu.Response{}, err
	}
	log.Debug().Str("status", resp.Status.String()).Int("len", len(resp.Data)).Msg("client.Client.Exchange response")
	return resp, StatusError(resp.Status, resp.Data)
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

func (c *Client) ioError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("client: %s: %w", op, ctxErr)
	}
	return fmt.Errorf("client: %s: %w", op, err)
}
