package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bikeshrana/awfes/internal/aggregate"
	"github.com/bikeshrana/awfes/internal/barsource"
	"github.com/bikeshrana/awfes/internal/circuitbreaker"
	"github.com/bikeshrana/awfes/internal/config"
	"github.com/bikeshrana/awfes/internal/events"
	"github.com/bikeshrana/awfes/internal/fold"
	"github.com/bikeshrana/awfes/internal/model"
	"github.com/bikeshrana/awfes/internal/oos"
	"github.com/bikeshrana/awfes/internal/orchestrator"
	"github.com/bikeshrana/awfes/internal/report"
	"github.com/bikeshrana/awfes/internal/selector"
	"github.com/bikeshrana/awfes/internal/smoother"
	"github.com/bikeshrana/awfes/internal/sweep"
	"github.com/bikeshrana/awfes/pkg/types"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	barsPath := flag.String("bars", "", "Path to the JSON bar stream to run against")
	outputDir := flag.String("output", "./awfes_results", "Output directory for the NDJSON run report")
	verbose := flag.Bool("verbose", false, "Enable verbose logging")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	logger := log.With().Str("component", "awfes").Logger()

	logger.Info().Msg("starting AWFES run")

	if *barsPath == "" {
		logger.Fatal().Msg("-bars is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	bars, err := barsource.LoadJSON(*barsPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load bar stream")
	}
	logger.Info().Int("bars", len(bars)).Msg("bar stream loaded")

	candidates := cfg.EpochSearch.Candidates()
	if len(candidates) == 0 {
		logger.Fatal().Msg("epoch_search produced an empty candidate set")
	}

	factory := model.NewLinearFactory()
	breaker := circuitbreaker.New(circuitbreaker.DefaultModelFactoryConfig())

	annualize := annualizationFromString(cfg.Market.Annualization)

	sweeper := sweep.New(factory, cfg.EpochSearch.MaxWorkers, annualize, breaker)
	oosEval := oos.New(factory, annualize, breaker)

	sm, err := buildSmoother(cfg.Smoother, candidates)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build smoother")
	}

	bus := events.NewBus(1000, logger)
	defer bus.Close()

	orchCfg := orchestrator.Config{
		FoldPolicy: fold.Policy{
			NFolds:       cfg.FoldPolicy.NFolds,
			TrainPct:     cfg.FoldPolicy.TrainPct,
			ValPct:       cfg.FoldPolicy.ValPct,
			TestPct:      cfg.FoldPolicy.TestPct,
			EmbargoHours: cfg.FoldPolicy.EmbargoHours,
		},
		EpochCandidates: candidates,
		Selector: selector.Config{
			StabilityMargin:    cfg.Market.StabilityMargin,
			WFERejectThreshold: cfg.Market.RejectThreshold,
		},
		Annualize:  annualize,
		MaxWorkers: cfg.EpochSearch.MaxWorkers,
		Seed:       cfg.EpochSearch.RandomSeed,
		AggregateCfg: aggregate.Config{
			KEpochCandidates: len(candidates),
			Rho:              0,
		},
	}

	orch := orchestrator.New(orchCfg, sweeper, oosEval, sm, bus, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outcomes, aggReport, err := orch.Run(ctx, bars)
	if err != nil {
		logger.Fatal().Err(err).Msg("run failed")
	}

	gen := report.New(outcomes, aggReport)
	fmt.Println(gen.Console())

	if cfg.View.NDJSONOutput {
		path, err := gen.SaveNDJSON(*outputDir)
		if err != nil {
			logger.Error().Err(err).Msg("failed to save NDJSON report")
		} else {
			logger.Info().Str("path", path).Msg("NDJSON report saved")
		}
	}

	logger.Info().
		Str("verdict", string(aggReport.Verdict)).
		Int("folds", aggReport.NFolds).
		Msg("AWFES run complete")
}

func annualizationFromString(s string) types.AnnualizationFactor {
	switch s {
	case "hourly":
		return types.AnnualizeEquitySessionWeekly
	case "crypto_daily":
		return types.AnnualizeCryptoDaily
	default:
		return types.AnnualizeEquityDaily
	}
}

func buildSmoother(cfg config.SmootherConfig, candidates []types.EpochCandidate) (smoother.Smoother, error) {
	eMin := float64(candidates[0])
	eMax := float64(candidates[len(candidates)-1])

	switch cfg.Kind {
	case "ema":
		return smoother.NewEMA(cfg.EMAAlpha, (eMin+eMax)/2), nil
	case "sma":
		return smoother.NewSMA(cfg.WindowSize), nil
	case "median":
		return smoother.NewMedian(cfg.WindowSize), nil
	case "bayesian", "":
		return smoother.NewBayesian(eMin, eMax), nil
	default:
		return nil, fmt.Errorf("main: unknown smoother kind %q", cfg.Kind)
	}
}
