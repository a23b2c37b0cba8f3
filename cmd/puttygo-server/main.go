package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/rechermann/puttygo/config"
	"github.com/rechermann/puttygo/internal/logging"
	"github.com/rechermann/puttygo/manager"
	"github.com/rechermann/puttygo/profile"
	"github.com/rechermann/puttygo/rpcserver"
	"github.com/rechermann/puttygo/telemetry"
)

func main() {
	cfgPath := flag.String("config", "puttygo-server.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger, cleanup, err := logging.Setup(cfg.Logging)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup logger")
	}
	defer cleanup()
	log.Logger = logger

	collector := telemetry.Noop()
	if cfg.Telemetry.Enabled {
		reg, err := telemetry.NewPrometheusCollector(nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "telemetry disabled: %v\n", err)
		} else {
			collector = reg
		}
	}

	store, err := profile.Load(cfg.Profiles.Path, profile.WithLogger(logger), profile.WithTelemetry(collector))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load profile store")
	}

	mgr := manager.New(
		manager.WithLogger(logger),
		manager.WithTelemetry(collector),
		manager.WithBusCapacity(cfg.BusCapacity),
	)
	defer mgr.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	stop := make(chan struct{})
	go store.Watch(stop, cfg.Profiles.PollInterval.Duration, nil)
	go func() {
		<-ctx.Done()
		close(stop)
	}()

	logger.Info().Str("listen", cfg.Listen).Msg("puttygo-server: starting")
	if err := rpcserver.Listen(ctx, cfg.Listen, mgr, store, logger); err != nil && err != context.Canceled {
		logger.Fatal().Err(err).Msg("rpc server stopped with error")
	}
}
