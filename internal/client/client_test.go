package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/tokencore/internal/apdu"
	"github.com/danmuck/tokencore/internal/device"
	"github.com/danmuck/tokencore/internal/dispatch"
	"github.com/danmuck/tokencore/internal/handlers"
	"github.com/danmuck/tokencore/internal/sw"
	"github.com/danmuck/tokencore/internal/testutil/testlog"
	"github.com/danmuck/tokencore/internal/transport"
	"github.com/stretchr/testify/require"
)

const cla = handlers.DefaultClass

// startDevice runs a full supervisor on a loopback listener until cleanup.
func startDevice(t *testing.T, bindings []handlers.Binding) (string, <-chan error) {
	t.Helper()

	reg, err := handlers.Build(handlers.AppInfo{Name: "Boilerplate", Version: "1.0.3", Class: cla}, bindings)
	require.NoError(t, err)
	link, err := transport.Listen("127.0.0.1:0", transport.DefaultStreamConfig())
	require.NoError(t, err)
	loop, err := device.NewLoop(link, dispatch.NewDispatcher(reg), device.DefaultLoopConfig(), nil)
	require.NoError(t, err)

	cfg := device.DefaultSupervisorConfig()
	cfg.EndOfSession = device.EndOfSessionExit
	sup := device.NewSupervisor(link, loop, device.ConsolePlatform{AppName: "Boilerplate"}, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		done <- sup.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		_ = link.Close()
		select {
		case <-stopped:
		case <-time.After(2 * time.Second):
			t.Errorf("supervisor did not stop")
		}
	})
	return link.Addr().String(), done
}

func dial(t *testing.T, addr string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, addr, Options{Timeout: 2 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestStatusError(t *testing.T) {
	testlog.Start(t)

	require.NoError(t, StatusError(sw.OK, nil))
	cases := map[sw.StatusWord]error{
		sw.Deny:                ErrDeny,
		sw.WrongP1P2:           ErrWrongP1P2,
		sw.WrongLength:         ErrWrongDataLength,
		sw.UnknownInstruction:  ErrInsNotSupported,
		sw.ClassNotSupported:   ErrClaNotSupported,
		sw.WrongResponseLength: ErrWrongResponseLength,
		sw.StatusWord(0x6F42):  ErrUnknownDevice,
	}
	for status, want := range cases {
		err := StatusError(status, []byte{0x01})
		require.ErrorIs(t, err, want, status.Hex())
		var devErr *DeviceError
		require.True(t, errors.As(err, &devErr))
		require.Equal(t, status, devErr.Status)
	}
}

func TestExchangeAgainstDevice(t *testing.T) {
	testlog.Start(t)

	addr, _ := startDevice(t, handlers.DefaultBindings(cla))
	c := dial(t, addr)
	ctx := context.Background()

	resp, err := c.Exchange(ctx, apdu.Command{Class: cla, Instruction: 0x01})
	require.NoError(t, err)
	require.Equal(t, sw.OK, resp.Status)
	require.Empty(t, resp.Data)

	resp, err = c.Exchange(ctx, apdu.Command{Class: cla, Instruction: 0x03})
	require.NoError(t, err)
	require.Equal(t, []byte{1, 0, 3}, resp.Data)

	resp, err = c.Exchange(ctx, apdu.Command{Class: cla, Instruction: 0x02, Data: []byte("hello")})
	require.NoError(t, err)
	require.Equal(t, "hello", string(resp.Data))

	_, err = c.Exchange(ctx, apdu.Command{Class: cla, Instruction: 0x02, P1: 0x01})
	require.ErrorIs(t, err, ErrWrongP1P2)

	_, err = c.Exchange(ctx, apdu.Command{Class: cla, Instruction: 0xFF})
	require.ErrorIs(t, err, ErrInsNotSupported)

	_, err = c.Exchange(ctx, apdu.Command{Class: 0x80, Instruction: 0x01})
	require.ErrorIs(t, err, ErrClaNotSupported)

	resp, err = c.ExchangeRaw(ctx, []byte{cla, 0x01, 0x00, 0x00, 0x05, 0xAA})
	require.ErrorIs(t, err, ErrWrongDataLength)
	require.Equal(t, sw.WrongLength, resp.Status)

	resp, err = c.Exchange(ctx, apdu.Command{Class: cla, Instruction: 0x05})
	require.NoError(t, err)
	info, err := handlers.DecodeDeviceInfo(resp.Data)
	require.NoError(t, err)
	require.Equal(t, "Boilerplate", info.Name)
	require.Len(t, info.Routes, 5)
}

func TestReconnectAfterHostDisconnect(t *testing.T) {
	testlog.Start(t)

	addr, _ := startDevice(t, handlers.DefaultBindings(cla))
	first := dial(t, addr)
	_, err := first.Exchange(context.Background(), apdu.Command{Class: cla, Instruction: 0x01})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := dial(t, addr)
	resp, err := second.Exchange(context.Background(), apdu.Command{Class: cla, Instruction: 0x04})
	require.NoError(t, err)
	require.Equal(t, "Boilerplate", string(resp.Data))

	_, err = first.Exchange(context.Background(), apdu.Command{Class: cla, Instruction: 0x01})
	require.ErrorIs(t, err, ErrClosed)
}

func TestQuitStopsDevice(t *testing.T) {
	testlog.Start(t)

	bindings := append(handlers.DefaultBindings(cla), handlers.Binding{Name: handlers.NameQuit, Class: cla, Instruction: 0x0F})
	addr, done := startDevice(t, bindings)
	c := dial(t, addr)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := c.Exchange(ctx, apdu.Command{Class: cla, Instruction: 0x0F})
	require.Error(t, err)

	select {
	case err := <-done:
		require.ErrorIs(t, err, dispatch.ErrFatal)
		require.ErrorIs(t, err, handlers.ErrQuitRequested)
	case <-time.After(2 * time.Second):
		t.Fatalf("device did not stop after quit")
	}
}

func TestExchangeRejectsOversizedData(t *testing.T) {
	testlog.Start(t)

	addr, _ := startDevice(t, handlers.DefaultBindings(cla))
	c := dial(t, addr)
	_, err := c.Exchange(context.Background(), apdu.Command{Class: cla, Instruction: 0x02, Data: make([]byte, 256)})
	require.ErrorIs(t, err, apdu.ErrDataTooLong)
}
