package config

import (
	"strings"

	"github.com/danmuck/tokencore/internal/device"
	"github.com/danmuck/tokencore/internal/handlers"
	"github.com/danmuck/tokencore/internal/transport"
)

// Conversions assume a validated config.

func (c DeviceConfig) AppInfo() handlers.AppInfo {
	return handlers.AppInfo{
		Name:    strings.TrimSpace(c.App.Name),
		Version: strings.TrimSpace(c.App.Version),
		Class:   byte(c.App.Class),
	}
}

// Bindings falls back to the default layout when no handlers are listed.
func (c DeviceConfig) Bindings() []handlers.Binding {
	class := byte(c.App.Class)
	if len(c.Handlers) == 0 {
		return handlers.DefaultBindings(class)
	}
	out := make([]handlers.Binding, 0, len(c.Handlers))
	for _, h := range c.Handlers {
		b := handlers.Binding{Name: h.Name, Class: class, Instruction: byte(h.Ins)}
		if h.Class != nil {
			b.Class = byte(*h.Class)
		}
		out = append(out, b)
	}
	return out
}

func (c DeviceConfig) StreamConfig() transport.StreamConfig {
	cfg := transport.DefaultStreamConfig()
	cfg.Limits = transport.Limits{MaxFrame: c.Transport.MaxFrame}
	if d, err := parseDuration(c.Transport.WriteTimeout); err == nil {
		cfg.WriteTimeout = d
	}
	return cfg
}

func (c DeviceConfig) LoopConfig() device.LoopConfig {
	return device.LoopConfig{MaxFrame: c.Transport.MaxFrame}
}

func (c DeviceConfig) SupervisorConfig() device.SupervisorConfig {
	cfg := device.DefaultSupervisorConfig()
	if p, err := device.ParseEndOfSessionPolicy(c.Supervisor.EndOfSession); err == nil {
		cfg.EndOfSession = p
	}
	if d, err := parseDuration(c.Supervisor.BackoffInitial); err == nil && d > 0 {
		cfg.Backoff.InitialDelay = d
	}
	if d, err := parseDuration(c.Supervisor.BackoffMax); err == nil && d > 0 {
		cfg.Backoff.MaxDelay = d
	}
	cfg.MaxInitAttempts = c.Supervisor.MaxInitAttempts
	return cfg
}
