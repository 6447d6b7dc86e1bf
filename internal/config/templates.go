package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

var hostKeys = map[string]struct{}{
	"addr": {}, "class": {}, "timeout": {}, "output": {}, "instructions": {},
}

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "device", "tokend":
		return deviceTemplate, nil
	case "host", "tokenctl":
		return hostTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

// ValidateFile checks an existing config file of the given kind. Device files
// go through the full loader; host files are owned by tokenctl so only their
// syntax and top-level keys are checked here.
func ValidateFile(path, kind string) error {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "device", "tokend":
		_, err := LoadDeviceConfig(path)
		return err
	case "host", "tokenctl":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("config load failed (%s): %w", path, err)
		}
		var doc map[string]any
		if err := toml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("config parse failed (%s): %w", path, err)
		}
		var unknown []string
		for k := range doc {
			if _, ok := hostKeys[k]; !ok {
				unknown = append(unknown, k)
			}
		}
		if len(unknown) > 0 {
			sort.Strings(unknown)
			return fmt.Errorf("%w: unknown host keys %s", ErrInvalidConfig, strings.Join(unknown, ", "))
		}
		return nil
	default:
		return fmt.Errorf("unknown config kind: %s", kind)
	}
}

const deviceTemplate = `[app]
name = "Boilerplate"
version = "1.0.1"
class = 0xE0

[transport]
listen_addr = "127.0.0.1:9999"
max_frame = 260
write_timeout = "5s"

[supervisor]
# exit | restart
end_of_session = "exit"
backoff_initial = "250ms"
backoff_max = "5s"
max_init_attempts = 0

[admin]
addr = "127.0.0.1:9998"
cors_origins = ["http://localhost:3000"]
# bearer token for /status, /routes and /metrics; empty leaves them open
token = ""

[[handlers]]
name = "ping"
ins = 0x01

[[handlers]]
name = "echo"
ins = 0x02

[[handlers]]
name = "version"
ins = 0x03

[[handlers]]
name = "app_name"
ins = 0x04

[[handlers]]
name = "info"
ins = 0x05

[[handlers]]
name = "quit"
ins = 0x0F
`

const hostTemplate = `addr = "127.0.0.1:9999"
class = 0xE0
timeout = "10s"
output = "table"

[instructions]
ping = 0x01
echo = 0x02
version = 0x03
app_name = 0x04
info = 0x05
quit = 0x0F
`
