// Package handlers provides the built-in instruction handlers a device can
// bind by name from configuration.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/danmuck/tokencore/internal/apdu"
	"github.com/danmuck/tokencore/internal/dispatch"
	"github.com/danmuck/tokencore/internal/sw"
	"github.com/fxamacker/cbor/v2"
)

const DefaultClass byte = 0xE0

// Builtin handler names.
const (
	NamePing    = "ping"
	NameEcho    = "echo"
	NameVersion = "version"
	NameAppName = "app_name"
	NameInfo    = "info"
	NameQuit    = "quit"
)

var (
	ErrUnknownHandler = errors.New("handlers: unknown builtin handler")
	ErrInvalidVersion = errors.New("handlers: invalid semantic version")
	ErrInvalidAppName = errors.New("handlers: invalid application name")
	ErrQuitRequested  = errors.New("handlers: quit requested by host")
)

// AppInfo identifies the application answering commands.
type AppInfo struct {
	Name    string
	Version string
	Class   byte
}

// Binding assigns a builtin handler to an instruction.
type Binding struct {
	Name        string
	Class       byte
	Instruction byte
}

// DefaultBindings is the instruction layout used when configuration names none.
func DefaultBindings(class byte) []Binding {
	return []Binding{
		{Name: NamePing, Class: class, Instruction: 0x01},
		{Name: NameEcho, Class: class, Instruction: 0x02},
		{Name: NameVersion, Class: class, Instruction: 0x03},
		{Name: NameAppName, Class: class, Instruction: 0x04},
		{Name: NameInfo, Class: class, Instruction: 0x05},
	}
}

// DeviceInfo is the CBOR document answered by the info handler.
type DeviceInfo struct {
	Name    string      `cbor:"name" json:"name" yaml:"name"`
	Version string      `cbor:"version" json:"version" yaml:"version"`
	Class   byte        `cbor:"class" json:"class" yaml:"class"`
	Routes  []RouteInfo `cbor:"routes" json:"routes" yaml:"routes"`
}

type RouteInfo struct {
	Class       byte   `cbor:"cla" json:"cla" yaml:"cla"`
	Instruction byte   `cbor:"ins" json:"ins" yaml:"ins"`
	Name        string `cbor:"name" json:"name" yaml:"name"`
}

// DecodeDeviceInfo parses an info handler payload.
func DecodeDeviceInfo(payload []byte) (DeviceInfo, error) {
	var info DeviceInfo
	if err := cbor.Unmarshal(payload, &info); err != nil {
		return DeviceInfo{}, fmt.Errorf("handlers: decode device info: %w", err)
	}
	return info, nil
}

// Build registers each binding's builtin into a new registry. Duplicate
// routes fail; "none" and empty names are skipped.
func Build(app AppInfo, bindings []Binding) (*dispatch.Registry, error) {
	version, err := ParseVersion(app.Version)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(app.Name)
	if name == "" || len(name) > apdu.MaxDataLen {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAppName, app.Name)
	}

	reg := dispatch.NewRegistry()
	for _, b := range bindings {
		id := strings.ToLower(strings.TrimSpace(b.Name))
		if id == "" || id == "none" {
			continue
		}

		var h dispatch.HandlerFunc
		switch id {
		case NamePing:
			h = Ping
		case NameEcho:
			h = Echo
		case NameVersion:
			h = versionHandler(version)
		case NameAppName:
			h = appNameHandler(name)
		case NameInfo:
			h = infoHandler(app, reg)
		case NameQuit:
			h = Quit
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnknownHandler, b.Name)
		}
		route := dispatch.Route{Class: b.Class, Instruction: b.Instruction}
		if err := reg.RegisterFunc(route, id, h); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// ParseVersion turns "MAJOR.MINOR.PATCH" (optional leading v, optional
// pre-release suffix) into three bytes.
func ParseVersion(raw string) ([3]byte, error) {
	var out [3]byte
	v := strings.TrimPrefix(strings.TrimSpace(raw), "v")
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}
	parts := strings.Split(v, ".")
	if len(parts) != 3 {
		return out, fmt.Errorf("%w: %q", ErrInvalidVersion, raw)
	}
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return out, fmt.Errorf("%w: %q", ErrInvalidVersion, raw)
		}
		out[i] = byte(n)
	}
	return out, nil
}

func Ping(context.Context, apdu.Command, *apdu.ResponseWriter) error {
	return nil
}

// Echo answers the command data; both parameters must be zero.
func Echo(_ context.Context, cmd apdu.Command, w *apdu.ResponseWriter) error {
	if cmd.P1 != 0 || cmd.P2 != 0 {
		return sw.New(sw.WrongP1P2, fmt.Sprintf("echo: p1=%02X p2=%02X", cmd.P1, cmd.P2))
	}
	_, err := w.Write(cmd.Data)
	return err
}

// Quit asks the supervisor to leave the application.
func Quit(context.Context, apdu.Command, *apdu.ResponseWriter) error {
	return dispatch.Fatal(ErrQuitRequested)
}

func versionHandler(version [3]byte) dispatch.HandlerFunc {
	return func(_ context.Context, _ apdu.Command, w *apdu.ResponseWriter) error {
		_, err := w.Write(version[:])
		return err
	}
}

func appNameHandler(name string) dispatch.HandlerFunc {
	return func(_ context.Context, _ apdu.Command, w *apdu.ResponseWriter) error {
		_, err := w.Write([]byte(name))
		return err
	}
}

// infoHandler reads routes at call time; the registry is complete by then.
func infoHandler(app AppInfo, reg *dispatch.Registry) dispatch.HandlerFunc {
	return func(_ context.Context, _ apdu.Command, w *apdu.ResponseWriter) error {
		routes := reg.Routes()
		info := DeviceInfo{
			Name:    app.Name,
			Version: app.Version,
			Class:   app.Class,
			Routes:  make([]RouteInfo, 0, len(routes)),
		}
		for _, r := range routes {
			info.Routes = append(info.Routes, RouteInfo{
				Class:       r.Route.Class,
				Instruction: r.Route.Instruction,
				Name:        r.Name,
			})
		}
		payload, err := cbor.Marshal(info)
		if err != nil {
			return fmt.Errorf("handlers: encode device info: %w", err)
		}
		_, err = w.Write(payload)
		return err
	}
}
