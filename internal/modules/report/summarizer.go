package report

import (
	"context"
	"encoding/json"

	"github.com/aristath/optiwealth/internal/domain"
)

// NoopSummarizer stands in when no summary backend is configured
type NoopSummarizer struct{}

// Summarize returns a fixed note
func (NoopSummarizer) Summarize(context.Context, *domain.PortfolioReport) (json.RawMessage, error) {
	return json.RawMessage(`{"note":"AI summary disabled: no API key configured"}`), nil
}
