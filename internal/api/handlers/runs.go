package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/bikeshrana/awfes/internal/auth"
	"github.com/bikeshrana/awfes/internal/events"
	"github.com/bikeshrana/awfes/internal/runservice"
	"github.com/bikeshrana/awfes/internal/store"
)

// RunsHandler serves run history and triggers new runs.
type RunsHandler struct {
	store   *store.Store
	runs    *runservice.Service
	bus     *events.Bus
	logger  zerolog.Logger
	upgrade websocket.Upgrader
}

// NewRunsHandler returns a RunsHandler backed by st, runs and bus.
func NewRunsHandler(st *store.Store, runs *runservice.Service, bus *events.Bus, logger zerolog.Logger) *RunsHandler {
	return &RunsHandler{
		store:  st,
		runs:   runs,
		bus:    bus,
		logger: logger,
		upgrade: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ListRuns returns the most recent runs, newest first.
// GET /api/v1/runs?limit=50
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}

	runs, err := h.store.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list runs")
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// GetRun returns a run's fold outcomes and aggregate report together.
// GET /api/v1/runs/{runID}
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	outcomes, err := h.store.GetFoldOutcomes(r.Context(), runID)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to get fold outcomes")
		writeError(w, http.StatusInternalServerError, "failed to retrieve run")
		return
	}

	report, err := h.store.GetAggregateReport(r.Context(), runID)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"fold_outcomes": outcomes,
			"aggregate":     nil,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"fold_outcomes": outcomes,
		"aggregate":     report,
	})
}

// TriggerRequest is the TriggerRun request body.
type TriggerRequest struct {
	BarsPath string `json:"bars_path"`
}

// TriggerRun starts a new run against a JSON bar stream already present on
// disk, and returns its generated run ID immediately.
// POST /api/v1/runs
func (h *RunsHandler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok || !claims.HasScope("runs:trigger") {
		writeError(w, http.StatusForbidden, "operator lacks runs:trigger scope")
		return
	}

	var req TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BarsPath == "" {
		writeError(w, http.StatusBadRequest, "bars_path is required")
		return
	}

	runID, err := h.runs.Trigger(r.Context(), req.BarsPath)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to trigger run")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID.String()})
}

// StreamProgress upgrades to a websocket and relays every fold-lifecycle
// event published on the bus until the client disconnects.
// GET /api/v1/runs/stream
func (h *RunsHandler) StreamProgress(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrade.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx := r.Context()
	types := []events.Type{
		events.TypeFoldStarted,
		events.TypeSweepCompleted,
		events.TypeFoldCompleted,
		events.TypeSmootherUpdated,
		events.TypeRunStatus,
	}

	merged := make(chan events.Event, 256)
	for _, t := range types {
		sub := h.bus.Subscribe(t)
		go func(ch <-chan events.Event) {
			for ev := range ch {
				select {
				case merged <- ev:
				case <-ctx.Done():
					return
				}
			}
		}(sub)
	}

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-merged:
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}
