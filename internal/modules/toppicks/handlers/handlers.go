// Package handlers provides HTTP handlers for top picks.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aristath/optiwealth/internal/modules/toppicks"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Store reads stored picks
type Store interface {
	ListByPeriod(ctx context.Context, period string) ([]toppicks.Pick, error)
	ListAll(ctx context.Context) (map[string][]toppicks.Pick, error)
}

// Runner starts a background ranking run
type Runner interface {
	Trigger() error
	Running() bool
}

// Handler handles top picks requests
type Handler struct {
	store  Store
	runner Runner
	log    zerolog.Logger
}

// NewHandler creates a new top picks handler. runner may be nil when the job is disabled.
func NewHandler(store Store, runner Runner, log zerolog.Logger) *Handler {
	return &Handler{
		store:  store,
		runner: runner,
		log:    log.With().Str("handler", "toppicks").Logger(),
	}
}

// HandleList handles GET /api/top-picks
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	grouped, err := h.store.ListAll(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list top picks")
		h.writeError(w, http.StatusInternalServerError, "Failed to load top picks")
		return
	}

	periods := make(map[string][]toppicks.Pick, len(toppicks.Periods))
	for _, p := range toppicks.Periods {
		periods[p.Name] = grouped[p.Name]
		if periods[p.Name] == nil {
			periods[p.Name] = []toppicks.Pick{}
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"periods": periods,
		"running": h.runner != nil && h.runner.Running(),
	})
}

// HandleGetPeriod handles GET /api/top-picks/{period}
func (h *Handler) HandleGetPeriod(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "period")
	period, ok := toppicks.LookupPeriod(name)
	if !ok {
		h.writeError(w, http.StatusNotFound, "Unknown period: "+name)
		return
	}

	picks, err := h.store.ListByPeriod(r.Context(), period.Name)
	if err != nil {
		h.log.Error().Err(err).Str("period", period.Name).Msg("Failed to list top picks")
		h.writeError(w, http.StatusInternalServerError, "Failed to load top picks")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"period": period.Name,
		"picks":  picks,
	})
}

// HandleRefresh handles POST /api/top-picks/refresh
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if h.runner == nil {
		h.writeError(w, http.StatusServiceUnavailable, "Top picks job is disabled")
		return
	}

	if err := h.runner.Trigger(); err != nil {
		if errors.Is(err, toppicks.ErrJobRunning) {
			h.writeError(w, http.StatusConflict, "Top picks refresh already running")
			return
		}
		h.log.Error().Err(err).Msg("Failed to start top picks refresh")
		h.writeError(w, http.StatusInternalServerError, "Failed to start top picks refresh")
		return
	}

	h.log.Info().Msg("Top picks refresh started")
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
