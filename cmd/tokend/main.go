package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/danmuck/tokencore/internal/config"
	"github.com/danmuck/tokencore/internal/device"
	"github.com/danmuck/tokencore/internal/dispatch"
	"github.com/danmuck/tokencore/internal/handlers"
	"github.com/danmuck/tokencore/internal/observability"
	"github.com/danmuck/tokencore/internal/transport"
	"github.com/rs/zerolog/log"
)

const adminTokenEnv = "TOKEND_ADMIN_TOKEN"

func main() {
	configPath := flag.String("config", "", "device config path (TOML); built-in defaults when empty")
	listen := flag.String("listen", "", "override transport.listen_addr")
	admin := flag.String("admin", "", "override admin.addr")
	flag.Parse()

	observability.InitLogger("tokend")

	cfg, err := loadConfig(*configPath, *listen, *admin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tokend: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "tokend: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig resolves the file (or defaults) and applies flag overrides.
func loadConfig(path, listen, admin string) (config.DeviceConfig, error) {
	cfg := config.DefaultDeviceConfig()
	if strings.TrimSpace(path) != "" {
		loaded, err := config.LoadDeviceConfig(path)
		if err != nil {
			return config.DeviceConfig{}, err
		}
		cfg = loaded
	}
	if v := strings.TrimSpace(listen); v != "" {
		cfg.Transport.ListenAddr = v
	}
	if v := strings.TrimSpace(admin); v != "" {
		cfg.Admin.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv(adminTokenEnv)); v != "" {
		cfg.Admin.Token = v
	}
	if err := config.ValidateDeviceConfig(cfg); err != nil {
		return config.DeviceConfig{}, err
	}
	return cfg, nil
}

// run wires the device and blocks until the supervisor exits.
func run(ctx context.Context, cfg config.DeviceConfig) error {
	reg, err := handlers.Build(cfg.AppInfo(), cfg.Bindings())
	if err != nil {
		return err
	}
	dispatcher := dispatch.NewDispatcher(reg)

	link, err := transport.Listen(cfg.Transport.ListenAddr, cfg.StreamConfig())
	if err != nil {
		return err
	}
	defer link.Close()

	loop, err := device.NewLoop(link, dispatcher, cfg.LoopConfig(), observability.NewLoopMetrics())
	if err != nil {
		return err
	}
	sup := device.NewSupervisor(link, loop, device.ConsolePlatform{AppName: cfg.App.Name}, cfg.SupervisorConfig())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	adminDone := make(chan struct{})
	if addr := strings.TrimSpace(cfg.Admin.Addr); addr != "" {
		router := observability.NewAdminRouter(sup, observability.AdminConfig{
			App:         cfg.App.Name,
			Version:     cfg.App.Version,
			CorsOrigins: cfg.Admin.CorsOrigins,
			Routes:      dispatcher.Routes(),
			Token:       cfg.Admin.Token,
		})
		go func() {
			defer close(adminDone)
			if err := observability.ServeAdmin(ctx, addr, router); err != nil {
				log.Error().Err(err).Msg("tokend.run admin server stopped")
			}
		}()
	} else {
		close(adminDone)
	}

	log.Info().
		Str("listen", link.Addr().String()).
		Str("admin", cfg.Admin.Addr).
		Int("routes", reg.Len()).
		Str("end_of_session", cfg.Supervisor.EndOfSession).
		Msg("tokend.run ready")

	err = sup.Run(ctx)
	cancel()
	<-adminDone
	return err
}
