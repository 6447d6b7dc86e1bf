package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/tokencore/internal/config"
	"github.com/danmuck/tokencore/internal/device"
	"github.com/danmuck/tokencore/internal/dispatch"
	"github.com/danmuck/tokencore/internal/handlers"
	"github.com/danmuck/tokencore/internal/testutil/testlog"
	"github.com/danmuck/tokencore/internal/transport"
)

func startDevice(t *testing.T) string {
	t.Helper()

	bindings := append(handlers.DefaultBindings(handlers.DefaultClass),
		handlers.Binding{Name: handlers.NameQuit, Class: handlers.DefaultClass, Instruction: 0x0F})
	reg, err := handlers.Build(handlers.AppInfo{Name: "Boilerplate", Version: "2.1.0", Class: handlers.DefaultClass}, bindings)
	if err != nil {
		t.Fatalf("build handlers: %v", err)
	}
	link, err := transport.Listen("127.0.0.1:0", transport.DefaultStreamConfig())
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	loop, err := device.NewLoop(link, dispatch.NewDispatcher(reg), device.DefaultLoopConfig(), nil)
	if err != nil {
		t.Fatalf("loop: %v", err)
	}
	cfg := device.DefaultSupervisorConfig()
	sup := device.NewSupervisor(link, loop, nil, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = sup.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		_ = link.Close()
		select {
		case <-stopped:
		case <-time.After(2 * time.Second):
			t.Errorf("device did not stop")
		}
	})
	return link.Addr().String()
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	root := newRootCmd()
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestCommandsAgainstDevice(t *testing.T) {
	testlog.Start(t)

	addr := startDevice(t)
	cases := []struct {
		args []string
		want string
	}{
		{args: []string{"ping"}, want: "9000"},
		{args: []string{"version"}, want: "2.1.0"},
		{args: []string{"app-name", "-o", "json"}, want: `"name": "Boilerplate"`},
		{args: []string{"echo", "hi", "-o", "yaml"}, want: "data: \"6869\""},
		{args: []string{"echo", "--hex", "CAFE"}, want: "CAFE"},
		{args: []string{"send", "E0 01 00 00 05 AA"}, want: "6A87"},
		{args: []string{"send", "E0FF000000"}, want: "6D00"},
		{args: []string{"info"}, want: "app_name"},
	}
	for _, tc := range cases {
		t.Run(strings.Join(tc.args, "_"), func(t *testing.T) {
			out, err := execute(t, append([]string{"--addr", addr}, tc.args...)...)
			if err != nil {
				t.Fatalf("execute: %v (out=%s)", err, out)
			}
			if !strings.Contains(out, tc.want) {
				t.Fatalf("expected %q in output, got:\n%s", tc.want, out)
			}
		})
	}
}

func TestNamedCommandReportsDeviceError(t *testing.T) {
	testlog.Start(t)

	addr := startDevice(t)
	_, err := execute(t, "--addr", addr, "--class", "128", "ping")
	if err == nil || !strings.Contains(err.Error(), "class not supported") {
		t.Fatalf("expected class not supported error, got %v", err)
	}
}

func TestInvalidFlags(t *testing.T) {
	testlog.Start(t)

	if _, err := execute(t, "--class", "300", "ping"); err == nil {
		t.Fatalf("expected out of range class error")
	}
	if _, err := execute(t, "send", "zz"); err == nil {
		t.Fatalf("expected invalid hex error")
	}
}

func TestLoadHostConfig(t *testing.T) {
	testlog.Start(t)

	path := filepath.Join(t.TempDir(), "tokenctl.toml")
	if err := config.WriteTemplate(path, "host", false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	cfg, err := loadHostConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != "127.0.0.1:9999" || cfg.Class != 0xE0 || cfg.Timeout != 10*time.Second {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Instructions["quit"] != 0x0F || cfg.Instructions["info"] != 0x05 {
		t.Fatalf("unexpected instructions %+v", cfg.Instructions)
	}
}

func TestLoadHostConfigOverridesOnlyDefinedKeys(t *testing.T) {
	testlog.Start(t)

	path := filepath.Join(t.TempDir(), "tokenctl.toml")
	data := "output = \"json\"\n\n[instructions]\nping = 0x21\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := loadHostConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := defaultHostConfig()
	if cfg.Addr != def.Addr || cfg.Class != def.Class || cfg.Output != "json" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Instructions["ping"] != 0x21 || cfg.Instructions["echo"] != 0x02 {
		t.Fatalf("unexpected instructions %+v", cfg.Instructions)
	}

	bad := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(bad, []byte("colour = \"red\"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := loadHostConfig(bad); err == nil {
		t.Fatalf("expected unknown key error")
	}
}

func TestTableFormatter(t *testing.T) {
	testlog.Start(t)

	out := newFormatter("table").Format(responseView{Status: "9000", Name: "OK", Data: ""})
	if !strings.Contains(out, "Status:") || !strings.Contains(out, "9000") {
		t.Fatalf("unexpected table output %q", out)
	}
	rows := newFormatter("").Format([]handlers.RouteInfo{{Class: 1, Instruction: 2, Name: "ping"}})
	if !strings.Contains(rows, "INSTRUCTION") || !strings.Contains(rows, "ping") {
		t.Fatalf("unexpected rows output %q", rows)
	}
	if out := newFormatter("table").Format([]string{}); out != "(empty)\n" {
		t.Fatalf("unexpected empty output %q", out)
	}
}
