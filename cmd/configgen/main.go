package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/danmuck/tokencore/internal/config"
	"github.com/danmuck/tokencore/internal/logging"
	"github.com/rs/zerolog/log"
)

var defaultPaths = map[string]string{
	"device": "cmd/tokend/config.toml",
	"host":   "cmd/tokenctl/config.toml",
}

func main() {
	logging.ConfigureRuntime()
	if err := run(os.Args[1:], os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatal().Err(err).Msg("configgen failed")
	}
}

func run(args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("configgen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	kind := fs.String("kind", "device", "config kind: device|host")
	output := fs.String("output", "", "output path for config template")
	validate := fs.Bool("validate", false, "validate an existing config file")
	input := fs.String("input", "", "config path for validation (defaults to per-kind cmd path)")
	force := fs.Bool("force", false, "overwrite existing config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	fallback, ok := defaultPaths[*kind]
	if !ok {
		return fmt.Errorf("unknown kind: %s", *kind)
	}

	if *validate {
		path := *input
		if path == "" {
			path = fallback
		}
		if err := config.ValidateFile(path, *kind); err != nil {
			return err
		}
		log.Info().Str("kind", *kind).Str("path", path).Msg("configgen validated")
		return nil
	}

	target := *output
	if target == "" {
		target = fallback
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		return err
	}
	log.Info().Str("kind", *kind).Str("path", target).Msg("configgen wrote template")
	return nil
}
