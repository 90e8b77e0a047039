// Package store persists AWFES run history to Postgres so the run API can
// serve completed runs across process restarts. It adapts the
// inherited TimescaleDB client's pool setup and query shape, but every
// table here holds FoldOutcome/AggregateReport history instead of market
// data and orders; the core itself stays storage-free and returns values,
// this package is the ambient persistence wrapped around it.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/bikeshrana/awfes/internal/config"
	"github.com/bikeshrana/awfes/pkg/types"
)

// Store wraps a PostgreSQL connection pool holding run history.
type Store struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// New creates a connection pool against cfg and verifies it is reachable.
func New(ctx context.Context, cfg *config.DatabaseConfig, logger zerolog.Logger) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("store: parse connection string: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLife

	logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("connecting to run store")

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	return &Store{pool: pool, logger: logger}, nil
}

// Pool returns the underlying connection pool so other ambient components
// (the audit logger) can share it instead of opening a second one.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.logger.Info().Msg("closing run store connection pool")
	s.pool.Close()
}

// Health reports whether the store's connection pool is reachable.
func (s *Store) Health(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InitSchema creates the run/fold_outcome/aggregate_report tables if they
// do not already exist.
func (s *Store) InitSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id UUID PRIMARY KEY,
			started_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ,
			verdict TEXT,
			n_folds INT NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS fold_outcomes (
			run_id UUID NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			fold_idx INT NOT NULL,
			outcome JSONB NOT NULL,
			PRIMARY KEY (run_id, fold_idx)
		);

		CREATE TABLE IF NOT EXISTS aggregate_reports (
			run_id UUID PRIMARY KEY REFERENCES runs(id) ON DELETE CASCADE,
			report JSONB NOT NULL
		);
	`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("store: init schema: %w", err)
	}
	return nil
}

// CreateRun records the start of a new run and returns its generated ID.
func (s *Store) CreateRun(ctx context.Context) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, started_at) VALUES ($1, $2)`,
		id, time.Now())
	if err != nil {
		return uuid.Nil, fmt.Errorf("store: create run: %w", err)
	}
	return id, nil
}

// SaveFoldOutcome persists one fold's outcome for runID.
func (s *Store) SaveFoldOutcome(ctx context.Context, runID uuid.UUID, outcome types.FoldOutcome) error {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("store: marshal fold outcome: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO fold_outcomes (run_id, fold_idx, outcome) VALUES ($1, $2, $3)
		 ON CONFLICT (run_id, fold_idx) DO UPDATE SET outcome = EXCLUDED.outcome`,
		runID, outcome.Fold.Index, payload)
	if err != nil {
		return fmt.Errorf("store: save fold outcome: %w", err)
	}
	return nil
}

// CompleteRun persists the run's aggregate report and marks it finished.
func (s *Store) CompleteRun(ctx context.Context, runID uuid.UUID, report types.AggregateReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("store: marshal aggregate report: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin complete-run transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE runs SET completed_at = $1, verdict = $2, n_folds = $3 WHERE id = $4`,
		time.Now(), string(report.Verdict), report.NFolds, runID); err != nil {
		return fmt.Errorf("store: update run: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO aggregate_reports (run_id, report) VALUES ($1, $2)
		 ON CONFLICT (run_id) DO UPDATE SET report = EXCLUDED.report`,
		runID, payload); err != nil {
		return fmt.Errorf("store: insert aggregate report: %w", err)
	}
	return tx.Commit(ctx)
}

// RunSummary is one row of ListRuns.
type RunSummary struct {
	ID          uuid.UUID  `json:"id"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Verdict     string     `json:"verdict,omitempty"`
	NFolds      int        `json:"n_folds"`
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, started_at, completed_at, verdict, n_folds FROM runs
		 ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		var verdict *string
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.CompletedAt, &verdict, &r.NFolds); err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		if verdict != nil {
			r.Verdict = *verdict
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetFoldOutcomes returns every persisted fold outcome for runID, ordered
// by fold index.
func (s *Store) GetFoldOutcomes(ctx context.Context, runID uuid.UUID) ([]types.FoldOutcome, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT outcome FROM fold_outcomes WHERE run_id = $1 ORDER BY fold_idx ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: get fold outcomes: %w", err)
	}
	defer rows.Close()

	var out []types.FoldOutcome
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("store: scan fold outcome: %w", err)
		}
		var outcome types.FoldOutcome
		if err := json.Unmarshal(payload, &outcome); err != nil {
			return nil, fmt.Errorf("store: unmarshal fold outcome: %w", err)
		}
		out = append(out, outcome)
	}
	return out, rows.Err()
}

// GetAggregateReport returns the persisted AggregateReport for runID.
func (s *Store) GetAggregateReport(ctx context.Context, runID uuid.UUID) (types.AggregateReport, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT report FROM aggregate_reports WHERE run_id = $1`, runID).Scan(&payload)
	if err != nil {
		return types.AggregateReport{}, fmt.Errorf("store: get aggregate report: %w", err)
	}
	var report types.AggregateReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return types.AggregateReport{}, fmt.Errorf("store: unmarshal aggregate report: %w", err)
	}
	return report, nil
}
