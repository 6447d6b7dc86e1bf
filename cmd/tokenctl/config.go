package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/tokencore/internal/handlers"
)

// hostConfig is the resolved tokenctl configuration.
type hostConfig struct {
	Addr         string
	Class        byte
	Timeout      time.Duration
	Output       string
	Instructions map[string]byte
}

// tokenctl config.toml key mapping.
type fileConfig struct {
	Addr         string         `toml:"addr"`
	Class        int            `toml:"class"`
	Timeout      string         `toml:"timeout"`
	Output       string         `toml:"output"`
	Instructions map[string]int `toml:"instructions"`
}

func defaultHostConfig() hostConfig {
	cfg := hostConfig{
		Addr:         "127.0.0.1:9999",
		Class:        handlers.DefaultClass,
		Timeout:      10 * time.Second,
		Output:       "table",
		Instructions: make(map[string]byte),
	}
	for _, b := range handlers.DefaultBindings(handlers.DefaultClass) {
		cfg.Instructions[b.Name] = b.Instruction
	}
	cfg.Instructions[handlers.NameQuit] = 0x0F
	return cfg
}

// tokenctl loader for TOML config with default overlay.
func loadHostConfig(path string) (hostConfig, error) {
	cfg := defaultHostConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return hostConfig{}, fmt.Errorf("load tokenctl config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return hostConfig{}, fmt.Errorf("load tokenctl config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("class") {
		if raw.Class < 0 || raw.Class > 0xFF {
			return hostConfig{}, fmt.Errorf("class %d out of range", raw.Class)
		}
		cfg.Class = byte(raw.Class)
	}
	if meta.IsDefined("timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Timeout))
		if err != nil {
			return hostConfig{}, fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if meta.IsDefined("output") {
		cfg.Output = strings.TrimSpace(raw.Output)
	}
	for name, ins := range raw.Instructions {
		if !meta.IsDefined("instructions", name) {
			continue
		}
		if ins < 0 || ins > 0xFF {
			return hostConfig{}, fmt.Errorf("instructions.%s = %d out of range", name, ins)
		}
		cfg.Instructions[strings.TrimSpace(name)] = byte(ins)
	}
	return cfg, nil
}
