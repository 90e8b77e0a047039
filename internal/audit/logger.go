// Package audit keeps a durable record of the run-level decisions an
// operator needs to review: configuration errors that stopped a run
// before any fold executed, and REJECT_ALL verdicts that completed a run
// but declared its results untrustworthy. The JSONB details column and
// query-filter shape are adapted from the inherited trading audit log;
// the event catalogue is entirely the decisions this core's error
// taxonomy describes instead of order/trade lifecycle events.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// EventType identifies the kind of audited decision.
type EventType string

const (
	// EventConfigRejected records a configuration error that stopped a
	// run before any fold executed (the core spec's fail-fast tier).
	EventConfigRejected EventType = "config_rejected"
	// EventRunRejectAll records a completed run whose AggregateReport
	// verdict is REJECT_ALL.
	EventRunRejectAll EventType = "run_reject_all"
	// EventRunWarning records a completed run whose verdict is WARNING.
	EventRunWarning EventType = "run_warning"
	// EventFoldFailed records a single fold marked FAILED by a
	// ModelFactory infrastructure error.
	EventFoldFailed EventType = "fold_failed"
)

// Event is one audited decision.
type Event struct {
	ID        string                 `json:"id" db:"id"`
	EventType EventType              `json:"event_type" db:"event_type"`
	Timestamp time.Time              `json:"timestamp" db:"timestamp"`
	RunID     string                 `json:"run_id,omitempty" db:"run_id"`
	Reason    string                 `json:"reason,omitempty" db:"reason"`
	Details   map[string]interface{} `json:"details,omitempty" db:"details"`
}

// Logger records audited decisions to Postgres.
type Logger struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// New returns a Logger backed by pool.
func New(pool *pgxpool.Pool, logger zerolog.Logger) *Logger {
	return &Logger{pool: pool, logger: logger}
}

// InitSchema creates the audit_events table if it does not already exist.
func (l *Logger) InitSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS audit_events (
			id TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			run_id TEXT,
			reason TEXT,
			details JSONB
		);
	`
	if _, err := l.pool.Exec(ctx, schema); err != nil {
		return err
	}
	l.logger.Info().Msg("audit schema initialized")
	return nil
}

// Log records one audited event.
func (l *Logger) Log(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = time.Now().Format("20060102150405.000000000")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	var detailsJSON []byte
	var err error
	if event.Details != nil {
		detailsJSON, err = json.Marshal(event.Details)
		if err != nil {
			l.logger.Warn().Err(err).Msg("failed to marshal audit event details")
			detailsJSON = []byte("{}")
		}
	}

	_, err = l.pool.Exec(ctx,
		`INSERT INTO audit_events (id, event_type, timestamp, run_id, reason, details)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.EventType, event.Timestamp, event.RunID, event.Reason, detailsJSON)
	if err != nil {
		l.logger.Error().Err(err).Str("event_type", string(event.EventType)).Msg("failed to log audit event")
		return err
	}
	return nil
}

// LogConfigRejected records a construction-time configuration error.
func (l *Logger) LogConfigRejected(ctx context.Context, reason string) {
	l.Log(ctx, Event{EventType: EventConfigRejected, Reason: reason})
}

// LogRunVerdict records a completed run's WARNING or REJECT_ALL verdict
// along with its reason codes; ACCEPT verdicts are not audited.
func (l *Logger) LogRunVerdict(ctx context.Context, runID, verdict string, reasonCodes []string) {
	eventType := EventRunWarning
	if verdict == "REJECT_ALL" {
		eventType = EventRunRejectAll
	}
	l.Log(ctx, Event{
		EventType: eventType,
		RunID:     runID,
		Details:   map[string]interface{}{"reason_codes": reasonCodes},
	})
}

// LogFoldFailed records a fold marked FAILED by a ModelFactory error.
func (l *Logger) LogFoldFailed(ctx context.Context, runID string, foldIdx int, failureReason string) {
	l.Log(ctx, Event{
		EventType: EventFoldFailed,
		RunID:     runID,
		Reason:    failureReason,
		Details:   map[string]interface{}{"fold_idx": foldIdx},
	})
}

// QueryFilters narrows the audit events that Query returns.
type QueryFilters struct {
	EventType EventType
	RunID     string
	StartTime time.Time
	EndTime   time.Time
	Limit     int
}

// Query retrieves audit events matching the given filters.
func (l *Logger) Query(ctx context.Context, filters QueryFilters) ([]Event, error) {
	query := `SELECT id, event_type, timestamp, run_id, reason, details FROM audit_events WHERE TRUE`
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return placeholder(len(args))
	}

	if filters.EventType != "" {
		query += ` AND event_type = ` + arg(filters.EventType)
	}
	if filters.RunID != "" {
		query += ` AND run_id = ` + arg(filters.RunID)
	}
	if !filters.StartTime.IsZero() {
		query += ` AND timestamp >= ` + arg(filters.StartTime)
	}
	if !filters.EndTime.IsZero() {
		query += ` AND timestamp <= ` + arg(filters.EndTime)
	}
	query += ` ORDER BY timestamp DESC`

	limit := filters.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query += ` LIMIT ` + arg(limit)

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var detailsJSON []byte
		var runID, reason *string
		if err := rows.Scan(&e.ID, &e.EventType, &e.Timestamp, &runID, &reason, &detailsJSON); err != nil {
			l.logger.Warn().Err(err).Msg("failed to scan audit event")
			continue
		}
		if runID != nil {
			e.RunID = *runID
		}
		if reason != nil {
			e.Reason = *reason
		}
		if len(detailsJSON) > 0 {
			json.Unmarshal(detailsJSON, &e.Details)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func placeholder(n int) string {
	return "$" + itoa(n)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
