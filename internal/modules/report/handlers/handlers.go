// Package handlers provides HTTP handlers for portfolio analysis.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aristath/optiwealth/internal/clients/yahoo"
	"github.com/aristath/optiwealth/internal/domain"
	"github.com/aristath/optiwealth/internal/modules/descriptive"
	"github.com/aristath/optiwealth/internal/modules/report"
	"github.com/rs/zerolog"
)

// maxBodyBytes caps the request payload
const maxBodyBytes = 1 << 20

// Error types reported to clients
const (
	ErrorTypeValidation = "validation_error"
	ErrorTypeTimeout    = "timeout_error"
	ErrorTypeProcessing = "processing_error"
)

// Generator produces a report for a request
type Generator interface {
	Generate(ctx context.Context, req report.Request) (*domain.PortfolioReport, error)
	Budget() time.Duration
}

// Handler handles portfolio analysis requests
type Handler struct {
	generator Generator
	suffix    string
	log       zerolog.Logger
}

// NewHandler creates a new analysis handler. suffix is appended to bare tickers.
func NewHandler(generator Generator, suffix string, log zerolog.Logger) *Handler {
	return &Handler{
		generator: generator,
		suffix:    suffix,
		log:       log.With().Str("handler", "report").Logger(),
	}
}

// AnalyzeRequest is the request body
type AnalyzeRequest struct {
	PortfolioID json.RawMessage  `json:"portfolioId,omitempty"`
	Holdings    []domain.Holding `json:"holdings"`
}

// ErrorResponse is returned on failure
type ErrorResponse struct {
	Error          string `json:"error"`
	Message        string `json:"message,omitempty"`
	Type           string `json:"type"`
	ProcessingTime string `json:"processingTime,omitempty"`
	Suggestion     string `json:"suggestion,omitempty"`
}

// HandleAnalyze handles POST /api/portfolio/analyze
func (h *Handler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	var body AnalyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil || body.Holdings == nil {
		h.writeError(w, http.StatusBadRequest, ErrorResponse{Error: "Missing or invalid payload", Type: ErrorTypeValidation})
		return
	}

	req, err := BuildRequest(body, h.suffix)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Type: ErrorTypeValidation})
		return
	}

	symbols := make([]string, len(req.Holdings))
	for i, holding := range req.Holdings {
		symbols[i] = holding.Symbol
	}
	h.log.Info().Strs("symbols", symbols).Msg("Analyzing portfolio")

	result, err := h.generator.Generate(r.Context(), req)
	if err != nil {
		elapsed := time.Since(started)
		resp := ErrorResponse{
			Error:          err.Error(),
			Message:        "An error occurred while analyzing the portfolio",
			ProcessingTime: fmt.Sprintf("%.2fs", elapsed.Seconds()),
		}

		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, descriptive.ErrAllHoldingsInvalid), errors.Is(err, report.ErrNoHoldings):
			status = http.StatusBadRequest
			resp.Type = ErrorTypeValidation
		case elapsed > h.generator.Budget() || errors.Is(err, context.DeadlineExceeded):
			resp.Type = ErrorTypeTimeout
			resp.Suggestion = "The analysis took too long. Try again or reduce the number of holdings."
		default:
			resp.Type = ErrorTypeProcessing
		}

		h.log.Error().Err(err).Dur("elapsed", elapsed).Str("type", resp.Type).Msg("Portfolio analysis failed")
		h.writeError(w, status, resp)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// BuildRequest validates holdings and qualifies their symbols with suffix
func BuildRequest(body AnalyzeRequest, suffix string) (report.Request, error) {
	if len(body.Holdings) == 0 {
		return report.Request{}, report.ErrNoHoldings
	}

	req := report.Request{
		PortfolioID: portfolioID(body.PortfolioID),
		Holdings:    make([]domain.Holding, len(body.Holdings)),
	}
	for i, holding := range body.Holdings {
		if err := holding.Validate(); err != nil {
			return report.Request{}, err
		}
		holding.Symbol = yahoo.QualifySymbol(holding.Symbol, suffix)
		req.Holdings[i] = holding
	}
	return req, nil
}

// portfolioID accepts both numeric and string ids
func portfolioID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	id := strings.TrimSpace(string(raw))
	if id == "null" {
		return ""
	}
	return id
}

func (h *Handler) writeError(w http.ResponseWriter, status int, resp ErrorResponse) {
	h.writeJSON(w, status, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
