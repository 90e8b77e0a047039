package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bikeshrana/awfes/internal/api"
	"github.com/bikeshrana/awfes/internal/audit"
	"github.com/bikeshrana/awfes/internal/config"
	"github.com/bikeshrana/awfes/internal/events"
	"github.com/bikeshrana/awfes/internal/metrics"
	"github.com/bikeshrana/awfes/internal/runservice"
	"github.com/bikeshrana/awfes/internal/store"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	verbose := flag.Bool("verbose", false, "Enable verbose logging")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	logger := log.With().Str("component", "awfesapi").Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runStore, err := store.New(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to run store")
	}
	defer runStore.Close()
	if err := runStore.InitSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize run store schema")
	}

	auditLogger := audit.New(runStore.Pool(), logger)
	if err := auditLogger.InitSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize audit schema")
	}

	bus := events.NewBus(1000, logger)
	defer bus.Close()

	reg := metrics.NewRunMetrics(prometheus.DefaultRegisterer)
	runs := runservice.New(cfg, runStore, auditLogger, bus, reg, logger)

	srv := api.NewServer(&cfg.Server, cfg.Auth, runStore, auditLogger, runs, bus, reg, logger)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal().Err(err).Msg("server stopped unexpectedly")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
