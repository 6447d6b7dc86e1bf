package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/tokencore/internal/device"
	"github.com/danmuck/tokencore/internal/handlers"
	"github.com/danmuck/tokencore/internal/testutil/testlog"
)

func TestDeviceTemplateLoads(t *testing.T) {
	testlog.Start(t)

	path := filepath.Join(t.TempDir(), "tokend.toml")
	if err := WriteTemplate(path, "device", false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := WriteTemplate(path, "device", false); err == nil {
		t.Fatalf("expected existing file to be kept")
	}

	cfg, err := LoadDeviceConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.App.Name != "Boilerplate" || cfg.App.Class != 0xE0 {
		t.Fatalf("unexpected app config: %+v", cfg.App)
	}
	if cfg.Admin.Addr != "127.0.0.1:9998" || len(cfg.Admin.CorsOrigins) != 1 {
		t.Fatalf("unexpected admin config: %+v", cfg.Admin)
	}
	bindings := cfg.Bindings()
	if len(bindings) != 6 {
		t.Fatalf("expected 6 bindings, got %d", len(bindings))
	}
	last := bindings[len(bindings)-1]
	if last.Name != handlers.NameQuit || last.Instruction != 0x0F || last.Class != 0xE0 {
		t.Fatalf("unexpected quit binding: %+v", last)
	}
	if _, err := handlers.Build(cfg.AppInfo(), bindings); err != nil {
		t.Fatalf("build handlers from template: %v", err)
	}
}

func TestParseAppliesDefaults(t *testing.T) {
	testlog.Start(t)

	cfg, err := ParseDeviceConfig([]byte("[app]\nname = \"Vault\"\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	def := DefaultDeviceConfig()
	if cfg.App.Name != "Vault" || cfg.App.Version != def.App.Version {
		t.Fatalf("unexpected app: %+v", cfg.App)
	}
	if cfg.Transport != def.Transport {
		t.Fatalf("expected default transport, got %+v", cfg.Transport)
	}
	if got := cfg.Bindings(); len(got) != len(handlers.DefaultBindings(handlers.DefaultClass)) {
		t.Fatalf("expected default bindings, got %+v", got)
	}

	sup := cfg.SupervisorConfig()
	if sup.EndOfSession != device.EndOfSessionExit {
		t.Fatalf("unexpected policy %q", sup.EndOfSession)
	}
	if sup.Backoff.InitialDelay != 250*time.Millisecond || sup.Backoff.MaxDelay != 5*time.Second {
		t.Fatalf("unexpected backoff %+v", sup.Backoff)
	}
	stream := cfg.StreamConfig()
	if stream.Limits.MaxFrame != 260 || stream.WriteTimeout != 5*time.Second {
		t.Fatalf("unexpected stream config %+v", stream)
	}
	if cfg.LoopConfig().MaxFrame != 260 {
		t.Fatalf("unexpected loop config %+v", cfg.LoopConfig())
	}
}

func TestHandlerClassOverride(t *testing.T) {
	testlog.Start(t)

	cfg, err := ParseDeviceConfig([]byte(`
[app]
name = "Vault"
class = 0xB0

[supervisor]
end_of_session = "restart"

[[handlers]]
name = "ping"
ins = 1

[[handlers]]
name = "ping"
ins = 1
class = 0x00
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	b := cfg.Bindings()
	if b[0].Class != 0xB0 || b[1].Class != 0x00 {
		t.Fatalf("unexpected classes: %+v", b)
	}
	if cfg.SupervisorConfig().EndOfSession != device.EndOfSessionRestart {
		t.Fatalf("expected restart policy")
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	testlog.Start(t)

	cases := map[string]string{
		"unknown key":      "[app]\nname = \"x\"\ncolor = \"red\"\n",
		"empty name":       "[app]\nname = \"\"\n",
		"bad version":      "[app]\nversion = \"1.2\"\n",
		"class range":      "[app]\nclass = 256\n",
		"frame too big":    "[transport]\nmax_frame = 1024\n",
		"frame too small":  "[transport]\nmax_frame = 2\n",
		"bad duration":     "[transport]\nwrite_timeout = \"soon\"\n",
		"bad policy":       "[supervisor]\nend_of_session = \"reboot\"\n",
		"negative attempt": "[supervisor]\nmax_init_attempts = -1\n",
		"handler no name":  "[[handlers]]\nins = 1\n",
		"handler ins":      "[[handlers]]\nname = \"ping\"\nins = 300\n",
		"handler class":    "[[handlers]]\nname = \"ping\"\nins = 1\nclass = -1\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseDeviceConfig([]byte(data)); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	testlog.Start(t)

	_, err := LoadDeviceConfig(filepath.Join(t.TempDir(), "missing.toml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestTemplateKinds(t *testing.T) {
	testlog.Start(t)

	for _, kind := range []string{"device", "tokend", "host", "TOKENCTL"} {
		if _, err := Template(kind); err != nil {
			t.Fatalf("template %q: %v", kind, err)
		}
	}
	if _, err := Template("bogus"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}

func TestValidateFile(t *testing.T) {
	testlog.Start(t)

	dir := t.TempDir()
	for _, kind := range []string{"device", "host"} {
		path := filepath.Join(dir, kind+".toml")
		if err := WriteTemplate(path, kind, false); err != nil {
			t.Fatalf("write %s: %v", kind, err)
		}
		if err := ValidateFile(path, kind); err != nil {
			t.Fatalf("validate %s: %v", kind, err)
		}
		if err := WriteTemplate(path, kind, false); err == nil {
			t.Fatalf("expected refusal to overwrite %s", path)
		}
	}

	bad := filepath.Join(dir, "bad-host.toml")
	if err := os.WriteFile(bad, []byte("addr = \"x\"\ncolour = \"red\"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := ValidateFile(bad, "host"); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if err := ValidateFile(bad, "bogus"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}
