package handlers

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"
)

// pinger is the subset of *store.Store this handler needs, kept as an
// interface so health checks do not require a live database in tests.
type pinger interface {
	Health(ctx context.Context) error
}

// HealthHandler reports process and run-store liveness.
type HealthHandler struct {
	store  pinger
	logger zerolog.Logger
}

// NewHealthHandler returns a HealthHandler backed by store.
func NewHealthHandler(store pinger, logger zerolog.Logger) *HealthHandler {
	return &HealthHandler{store: store, logger: logger}
}

// Handle reports 200 with store connectivity, or 503 if the store is
// unreachable.
func (h *HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK

	if err := h.store.Health(r.Context()); err != nil {
		h.logger.Warn().Err(err).Msg("run store health check failed")
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]string{"status": status})
}
