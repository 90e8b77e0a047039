package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/bikeshrana/awfes/internal/audit"
)

// AuditHandler serves the durable record of configuration rejections and
// REJECT_ALL/WARNING run verdicts.
type AuditHandler struct {
	auditLogger *audit.Logger
	logger      zerolog.Logger
}

// NewAuditHandler returns an AuditHandler backed by auditLogger.
func NewAuditHandler(auditLogger *audit.Logger, logger zerolog.Logger) *AuditHandler {
	return &AuditHandler{auditLogger: auditLogger, logger: logger}
}

// GetAuditLogs returns audited events with optional filters.
// GET /api/v1/audit/events
func (h *AuditHandler) GetAuditLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filters := audit.QueryFilters{
		EventType: audit.EventType(query.Get("event_type")),
		RunID:     query.Get("run_id"),
		Limit:     100,
	}
	if s := query.Get("start_time"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			filters.StartTime = t
		}
	}
	if s := query.Get("end_time"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			filters.EndTime = t
		}
	}
	if s := query.Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			filters.Limit = n
		}
	}

	events, err := h.auditLogger.Query(r.Context(), filters)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to query audit events")
		writeError(w, http.StatusInternalServerError, "failed to retrieve audit events")
		return
	}
	writeJSON(w, http.StatusOK, events)
}
