package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aristath/optiwealth/internal/domain"
	"github.com/aristath/optiwealth/internal/modules/descriptive"
	"github.com/aristath/optiwealth/internal/modules/report"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	err     error
	budget  time.Duration
	lastReq report.Request
}

func (f *fakeGenerator) Generate(_ context.Context, req report.Request) (*domain.PortfolioReport, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &domain.PortfolioReport{
		ReportID:     "r-1",
		PortfolioID:  req.PortfolioID,
		Forecasts:    map[string]domain.ForecastResult{},
		Optimization: domain.EmptyOptimization(),
	}, nil
}

func (f *fakeGenerator) Budget() time.Duration {
	if f.budget == 0 {
		return time.Hour
	}
	return f.budget
}

func serve(t *testing.T, gen *fakeGenerator, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	r := chi.NewRouter()
	NewHandler(gen, ".NS", zerolog.Nop()).RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodPost, "/portfolio/analyze", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	return rec, decoded
}

const validBody = `{
	"portfolioId": 2,
	"holdings": [
		{"symbol": "rvnl", "quantity": 32, "avgCost": 357.06},
		{"symbol": "BEL", "quantity": 20, "avgCost": 271.66},
		{"symbol": "ITC.NS", "quantity": 10, "avgCost": 380.36}
	]
}`

func TestHandleAnalyze(t *testing.T) {
	gen := &fakeGenerator{}
	rec, body := serve(t, gen, validBody)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "r-1", body["reportId"])
	assert.Equal(t, "2", body["portfolioId"])

	require.Len(t, gen.lastReq.Holdings, 3)
	assert.Equal(t, "RVNL.NS", gen.lastReq.Holdings[0].Symbol)
	assert.Equal(t, "BEL.NS", gen.lastReq.Holdings[1].Symbol)
	assert.Equal(t, "ITC.NS", gen.lastReq.Holdings[2].Symbol)
}

func TestHandleAnalyze_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"holdings": [`},
		{"missing holdings", `{"portfolioId": 1}`},
		{"empty holdings", `{"holdings": []}`},
		{"zero quantity", `{"holdings": [{"symbol": "ITC", "quantity": 0, "avgCost": 1}]}`},
		{"negative cost", `{"holdings": [{"symbol": "ITC", "quantity": 1, "avgCost": -5}]}`},
		{"blank symbol", `{"holdings": [{"symbol": " ", "quantity": 1, "avgCost": 1}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := serve(t, &fakeGenerator{}, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, ErrorTypeValidation, body["type"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestHandleAnalyze_GeneratorErrors(t *testing.T) {
	tests := []struct {
		name       string
		gen        *fakeGenerator
		wantStatus int
		wantType   string
	}{
		{
			name:       "no priceable holding",
			gen:        &fakeGenerator{err: fmt.Errorf("descriptive analysis: %w", descriptive.ErrAllHoldingsInvalid)},
			wantStatus: http.StatusBadRequest,
			wantType:   ErrorTypeValidation,
		},
		{
			name:       "deadline",
			gen:        &fakeGenerator{err: context.DeadlineExceeded},
			wantStatus: http.StatusInternalServerError,
			wantType:   ErrorTypeTimeout,
		},
		{
			name:       "other",
			gen:        &fakeGenerator{err: errors.New("disk full")},
			wantStatus: http.StatusInternalServerError,
			wantType:   ErrorTypeProcessing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := serve(t, tt.gen, validBody)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantType, body["type"])
			assert.Contains(t, body["processingTime"], "s")
			assert.Equal(t, "An error occurred while analyzing the portfolio", body["message"])
		})
	}
}

func TestPortfolioID(t *testing.T) {
	assert.Equal(t, "2", portfolioID(json.RawMessage(`2`)))
	assert.Equal(t, "abc", portfolioID(json.RawMessage(`"abc"`)))
	assert.Equal(t, "", portfolioID(nil))
	assert.Equal(t, "", portfolioID(json.RawMessage(`null`)))
}
