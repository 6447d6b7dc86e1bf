package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/danmuck/tokencore/internal/apdu"
	"github.com/danmuck/tokencore/internal/device"
	"github.com/danmuck/tokencore/internal/handlers"
	"github.com/pelletier/go-toml/v2"
)

var ErrInvalidConfig = errors.New("config: invalid device config")

// DeviceConfig is the tokend configuration file.
type DeviceConfig struct {
	App        AppConfig        `toml:"app"`
	Transport  TransportConfig  `toml:"transport"`
	Handlers   []HandlerConfig  `toml:"handlers"`
	Supervisor SupervisorConfig `toml:"supervisor"`
	Admin      AdminConfig      `toml:"admin"`
}

type AppConfig struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
	Class   int    `toml:"class"`
}

type TransportConfig struct {
	ListenAddr   string `toml:"listen_addr"`
	MaxFrame     int    `toml:"max_frame"`
	WriteTimeout string `toml:"write_timeout"`
}

// HandlerConfig binds a builtin handler; Class defaults to the app class.
type HandlerConfig struct {
	Name  string `toml:"name"`
	Ins   int    `toml:"ins"`
	Class *int   `toml:"class"`
}

type SupervisorConfig struct {
	EndOfSession    string `toml:"end_of_session"`
	BackoffInitial  string `toml:"backoff_initial"`
	BackoffMax      string `toml:"backoff_max"`
	MaxInitAttempts int    `toml:"max_init_attempts"`
}

type AdminConfig struct {
	Addr        string   `toml:"addr"`
	CorsOrigins []string `toml:"cors_origins"`
	Token       string   `toml:"token"`
}

func DefaultDeviceConfig() DeviceConfig {
	return DeviceConfig{
		App: AppConfig{
			Name:    "tokencore",
			Version: "0.1.0",
			Class:   int(handlers.DefaultClass),
		},
		Transport: TransportConfig{
			ListenAddr:   "127.0.0.1:9999",
			MaxFrame:     apdu.MaxCommandLen,
			WriteTimeout: "5s",
		},
		Supervisor: SupervisorConfig{
			EndOfSession:   string(device.EndOfSessionExit),
			BackoffInitial: "250ms",
			BackoffMax:     "5s",
		},
	}
}

// LoadDeviceConfig reads path over the defaults and validates the result.
func LoadDeviceConfig(path string) (DeviceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DeviceConfig{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	cfg, err := ParseDeviceConfig(data)
	if err != nil {
		return DeviceConfig{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return cfg, nil
}

// ParseDeviceConfig decodes TOML over the defaults. Unknown keys are errors.
func ParseDeviceConfig(data []byte) (DeviceConfig, error) {
	cfg := DefaultDeviceConfig()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return DeviceConfig{}, fmt.Errorf("%w: %s", ErrInvalidConfig, strict.String())
		}
		return DeviceConfig{}, err
	}
	if err := ValidateDeviceConfig(cfg); err != nil {
		return DeviceConfig{}, err
	}
	return cfg, nil
}

func ValidateDeviceConfig(cfg DeviceConfig) error {
	if strings.TrimSpace(cfg.App.Name) == "" {
		return fmt.Errorf("%w: app.name is required", ErrInvalidConfig)
	}
	if _, err := handlers.ParseVersion(cfg.App.Version); err != nil {
		return fmt.Errorf("%w: app.version: %v", ErrInvalidConfig, err)
	}
	if !isByte(cfg.App.Class) {
		return fmt.Errorf("%w: app.class %d out of range", ErrInvalidConfig, cfg.App.Class)
	}
	if strings.TrimSpace(cfg.Transport.ListenAddr) == "" {
		return fmt.Errorf("%w: transport.listen_addr is required", ErrInvalidConfig)
	}
	if cfg.Transport.MaxFrame < apdu.HeaderLen || cfg.Transport.MaxFrame > apdu.MaxCommandLen {
		return fmt.Errorf("%w: transport.max_frame must be within [%d, %d]", ErrInvalidConfig, apdu.HeaderLen, apdu.MaxCommandLen)
	}
	for key, raw := range map[string]string{
		"transport.write_timeout":    cfg.Transport.WriteTimeout,
		"supervisor.backoff_initial": cfg.Supervisor.BackoffInitial,
		"supervisor.backoff_max":     cfg.Supervisor.BackoffMax,
	} {
		if _, err := parseDuration(raw); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
		}
	}
	if _, err := device.ParseEndOfSessionPolicy(cfg.Supervisor.EndOfSession); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if cfg.Supervisor.MaxInitAttempts < 0 {
		return fmt.Errorf("%w: supervisor.max_init_attempts must be >= 0", ErrInvalidConfig)
	}
	for i, h := range cfg.Handlers {
		if err := validateHandler(h); err != nil {
			return fmt.Errorf("%w: handlers[%d]: %v", ErrInvalidConfig, i, err)
		}
	}
	return nil
}

func validateHandler(h HandlerConfig) error {
	if strings.TrimSpace(h.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if !isByte(h.Ins) {
		return fmt.Errorf("ins %d out of range", h.Ins)
	}
	if h.Class != nil && !isByte(*h.Class) {
		return fmt.Errorf("class %d out of range", *h.Class)
	}
	return nil
}

func isByte(v int) bool {
	return v >= 0 && v <= 0xFF
}

// parseDuration treats an empty value as zero.
func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", raw)
	}
	return d, nil
}
