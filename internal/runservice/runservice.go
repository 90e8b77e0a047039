// Package runservice triggers AWFES runs from the HTTP API and persists
// their outcomes. It wires the same orchestrator/sweep/oos/smoother stack
// cmd/awfes assembles for a one-shot CLI run, but the core stays
// storage-free: this package is the ambient layer that hands each run a
// UUID, runs it in the background, and, once the whole run has finished,
// writes its fold outcomes and then its aggregate report to the run store.
// Nothing is written to the store while folds are still executing.
package runservice

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bikeshrana/awfes/internal/aggregate"
	"github.com/bikeshrana/awfes/internal/audit"
	"github.com/bikeshrana/awfes/internal/barsource"
	"github.com/bikeshrana/awfes/internal/circuitbreaker"
	"github.com/bikeshrana/awfes/internal/config"
	"github.com/bikeshrana/awfes/internal/events"
	"github.com/bikeshrana/awfes/internal/fold"
	"github.com/bikeshrana/awfes/internal/metrics"
	"github.com/bikeshrana/awfes/internal/model"
	"github.com/bikeshrana/awfes/internal/oos"
	"github.com/bikeshrana/awfes/internal/orchestrator"
	"github.com/bikeshrana/awfes/internal/selector"
	"github.com/bikeshrana/awfes/internal/smoother"
	"github.com/bikeshrana/awfes/internal/store"
	"github.com/bikeshrana/awfes/internal/sweep"
	"github.com/bikeshrana/awfes/pkg/types"
)

// Service triggers runs against the run store and event bus shared by one
// API process.
type Service struct {
	cfg     *config.Config
	store   *store.Store
	audit   *audit.Logger
	bus     *events.Bus
	metrics *metrics.RunMetrics
	logger  zerolog.Logger
	factory      model.Factory
	breaker      *circuitbreaker.CircuitBreaker
	storeBreaker *circuitbreaker.CircuitBreaker
}

// New returns a Service wired against cfg, st, auditLogger and bus. m may
// be nil; when it is, fold and run counters are simply not recorded.
func New(cfg *config.Config, st *store.Store, auditLogger *audit.Logger, bus *events.Bus, m *metrics.RunMetrics, logger zerolog.Logger) *Service {
	return &Service{
		cfg:          cfg,
		store:        st,
		audit:        auditLogger,
		bus:          bus,
		metrics:      m,
		logger:       logger,
		factory:      model.NewLinearFactory(),
		breaker:      circuitbreaker.New(circuitbreaker.DefaultModelFactoryConfig()),
		storeBreaker: circuitbreaker.New(circuitbreaker.DefaultStoreConfig()),
	}
}

// Trigger loads the bar stream at barsPath, allocates a run ID, and starts
// the run on a background goroutine. It returns as soon as the run is
// recorded, before any fold has executed.
func (s *Service) Trigger(ctx context.Context, barsPath string) (uuid.UUID, error) {
	bars, err := barsource.LoadJSON(barsPath)
	if err != nil {
		return uuid.Nil, fmt.Errorf("runservice: load bar stream: %w", err)
	}

	candidates := s.cfg.EpochSearch.Candidates()
	if len(candidates) == 0 {
		s.audit.LogConfigRejected(ctx, "epoch_search produced an empty candidate set")
		return uuid.Nil, fmt.Errorf("runservice: epoch_search produced an empty candidate set")
	}

	runID, err := s.store.CreateRun(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("runservice: create run: %w", err)
	}

	go s.execute(context.Background(), runID, bars, candidates)
	return runID, nil
}

func (s *Service) execute(ctx context.Context, runID uuid.UUID, bars []types.Bar, candidates []types.EpochCandidate) {
	logger := s.logger.With().Str("run_id", runID.String()).Logger()

	if s.metrics != nil {
		s.metrics.ActiveRuns.Inc()
		defer s.metrics.ActiveRuns.Dec()
	}

	annualize := annualizationFromString(s.cfg.Market.Annualization)
	sweeper := sweep.New(s.factory, s.cfg.EpochSearch.MaxWorkers, annualize, s.breaker)
	oosEval := oos.New(s.factory, annualize, s.breaker)

	sm, err := buildSmoother(s.cfg.Smoother, candidates)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build smoother")
		s.audit.LogConfigRejected(ctx, err.Error())
		return
	}

	orchCfg := orchestrator.Config{
		FoldPolicy: fold.Policy{
			NFolds:       s.cfg.FoldPolicy.NFolds,
			TrainPct:     s.cfg.FoldPolicy.TrainPct,
			ValPct:       s.cfg.FoldPolicy.ValPct,
			TestPct:      s.cfg.FoldPolicy.TestPct,
			EmbargoHours: s.cfg.FoldPolicy.EmbargoHours,
		},
		EpochCandidates: candidates,
		Selector: selector.Config{
			StabilityMargin:    s.cfg.Market.StabilityMargin,
			WFERejectThreshold: s.cfg.Market.RejectThreshold,
		},
		Annualize:  annualize,
		MaxWorkers: s.cfg.EpochSearch.MaxWorkers,
		Seed:       s.cfg.EpochSearch.RandomSeed,
		AggregateCfg: aggregate.Config{
			KEpochCandidates: len(candidates),
			Rho:              0,
		},
	}

	orch := orchestrator.New(orchCfg, sweeper, oosEval, sm, s.bus, logger)

	outcomes, report, err := orch.Run(ctx, bars)
	if err != nil {
		logger.Error().Err(err).Msg("run failed")
		return
	}

	for _, outcome := range outcomes {
		saveErr := s.storeBreaker.Execute(func() error {
			return s.store.SaveFoldOutcome(ctx, runID, outcome)
		})
		if saveErr != nil {
			logger.Error().Err(saveErr).Int("fold", outcome.Fold.Index).Msg("failed to persist fold outcome")
		}
		if s.metrics != nil {
			s.metrics.FoldsProcessedTotal.Inc()
			if outcome.Status == types.FoldFailed {
				s.metrics.FoldsRejectedTotal.Inc()
			}
		}
		if outcome.Status == types.FoldFailed {
			s.audit.LogFoldFailed(ctx, runID.String(), outcome.Fold.Index, outcome.FailureReason)
		}
	}

	completeErr := s.storeBreaker.Execute(func() error {
		return s.store.CompleteRun(ctx, runID, report)
	})
	if completeErr != nil {
		logger.Error().Err(completeErr).Msg("failed to persist aggregate report")
	}

	if report.Verdict != types.VerdictAccept {
		s.audit.LogRunVerdict(ctx, runID.String(), string(report.Verdict), report.ReasonCodes)
	}
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
		return nil, fmt.Errorf("runservice: unknown smoother kind %q", cfg.Kind)
	}
}
