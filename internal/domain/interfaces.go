package domain

import (
	"context"
	"encoding/json"
	"time"
)

// MarketDataSource abstracts the market data vendor.
// Implementations return errors so callers can retry; the market data
// provider is the layer that turns failures into soft warnings.
type MarketDataSource interface {
	// FetchQuote returns the latest quote for an exchange-qualified symbol
	FetchQuote(ctx context.Context, symbol string) (*Quote, error)

	// FetchHistory returns daily bars covering [start, end]. Bars may be
	// unsorted or contain gaps; cleaning is the caller's job.
	FetchHistory(ctx context.Context, symbol string, start, end time.Time) ([]PriceBar, error)
}

// SeriesProvider is the soft-failing market data contract used by the analytics stages
type SeriesProvider interface {
	Fetch(ctx context.Context, symbol string, start, end time.Time) (HistoricalSeries, *Warning)
	Quote(ctx context.Context, symbol string) (*Quote, *Warning)
}

// SummaryGenerator produces a natural-language summary of a report
type SummaryGenerator interface {
	Summarize(ctx context.Context, report *PortfolioReport) (json.RawMessage, error)
}
