package yahoo

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/optiwealth/internal/domain"
	"github.com/rs/zerolog"
	"github.com/wnjoon/go-yfinance/pkg/models"
	"github.com/wnjoon/go-yfinance/pkg/multi"
	"github.com/wnjoon/go-yfinance/pkg/ticker"
)

// SecurityMetadata is the descriptive data used by the top-picks ranking
type SecurityMetadata struct {
	Symbol      string `json:"symbol" msgpack:"symbol"`
	CompanyName string `json:"companyName" msgpack:"company_name"`
	Sector      string `json:"sector" msgpack:"sector"`
}

// NativeClient implements domain.MarketDataSource using the go-yfinance library
type NativeClient struct {
	log zerolog.Logger
	now func() time.Time
}

// NewNativeClient creates a new native Yahoo Finance client
func NewNativeClient(log zerolog.Logger) *NativeClient {
	return &NativeClient{
		log: log.With().Str("client", "yahoo-native").Logger(),
		now: time.Now,
	}
}

// FetchQuote returns the latest price for a symbol.
// Falls back from the quote endpoint to Info when the market price is missing.
func (c *NativeClient) FetchQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	return withContext(ctx, func() (*domain.Quote, error) {
		t, err := ticker.New(symbol)
		if err != nil {
			return nil, fmt.Errorf("failed to create ticker: %w", err)
		}
		defer t.Close()

		quote := &domain.Quote{Symbol: symbol, Timestamp: c.now()}

		q, err := t.Quote()
		if err == nil && q != nil {
			switch {
			case q.RegularMarketPrice > 0:
				quote.CurrentPrice = q.RegularMarketPrice
			case q.PostMarketPrice > 0:
				quote.CurrentPrice = q.PostMarketPrice
			case q.PreMarketPrice > 0:
				quote.CurrentPrice = q.PreMarketPrice
			}
		}

		if quote.CurrentPrice > 0 {
			return quote, nil
		}

		info, infoErr := t.Info()
		if infoErr == nil && info != nil {
			if info.RegularMarketPreviousClose > 0 {
				prev := info.RegularMarketPreviousClose
				quote.PreviousClose = &prev
			}
			switch {
			case info.CurrentPrice > 0:
				quote.CurrentPrice = info.CurrentPrice
			case info.RegularMarketPreviousClose > 0:
				quote.CurrentPrice = info.RegularMarketPreviousClose
			}
		}

		if quote.CurrentPrice <= 0 {
			if err == nil {
				err = infoErr
			}
			return nil, fmt.Errorf("no valid price for %s: %v", symbol, err)
		}
		return quote, nil
	})
}

// FetchHistory returns daily bars covering [start, end].
// Yahoo only accepts named periods, so the smallest covering period is
// requested and the result is filtered to the window by the caller.
func (c *NativeClient) FetchHistory(ctx context.Context, symbol string, start, end time.Time) ([]domain.PriceBar, error) {
	period := periodFor(c.now().Sub(start))

	return withContext(ctx, func() ([]domain.PriceBar, error) {
		t, err := ticker.New(symbol)
		if err != nil {
			return nil, fmt.Errorf("failed to create ticker: %w", err)
		}
		defer t.Close()

		bars, err := t.History(models.HistoryParams{
			Period:     period,
			Interval:   "1d",
			AutoAdjust: true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get historical prices: %w", err)
		}

		out := make([]domain.PriceBar, 0, len(bars))
		for _, bar := range bars {
			if bar.Date.Before(start) || bar.Date.After(end) {
				continue
			}
			out = append(out, domain.PriceBar{
				Date:   bar.Date,
				Open:   bar.Open,
				High:   bar.High,
				Low:    bar.Low,
				Close:  bar.Close,
				Volume: int64(bar.Volume),
			})
		}

		c.log.Debug().
			Str("symbol", symbol).
			Str("period", period).
			Int("bars", len(out)).
			Msg("Fetched history")

		return out, nil
	})
}

// DownloadCloses fetches daily closes for many symbols in a single request.
// Symbols that fail are logged and left out of the result.
func (c *NativeClient) DownloadCloses(ctx context.Context, symbols []string, period string) (map[string][]domain.PriceBar, error) {
	if len(symbols) == 0 {
		return map[string][]domain.PriceBar{}, nil
	}

	return withContext(ctx, func() (map[string][]domain.PriceBar, error) {
		params := models.DefaultDownloadParams()
		params.Symbols = symbols
		params.Period = period
		params.Interval = "1d"

		result, err := multi.Download(symbols, &params)
		if err != nil {
			return nil, fmt.Errorf("failed to download batch history: %w", err)
		}

		out := make(map[string][]domain.PriceBar, len(symbols))
		for _, symbol := range symbols {
			if bars, ok := result.Data[symbol]; ok && len(bars) > 0 {
				converted := make([]domain.PriceBar, 0, len(bars))
				for _, bar := range bars {
					converted = append(converted, domain.PriceBar{
						Date:   bar.Date,
						Open:   bar.Open,
						High:   bar.High,
						Low:    bar.Low,
						Close:  bar.Close,
						Volume: int64(bar.Volume),
					})
				}
				out[symbol] = converted
			} else if symErr, ok := result.Errors[symbol]; ok {
				c.log.Warn().Err(symErr).Str("symbol", symbol).Msg("Failed to download symbol")
			}
		}

		return out, nil
	})
}

// FetchMetadata returns the company name and sector of a symbol.
// Missing fields are reported as "N/A".
func (c *NativeClient) FetchMetadata(ctx context.Context, symbol string) (*SecurityMetadata, error) {
	return withContext(ctx, func() (*SecurityMetadata, error) {
		t, err := ticker.New(symbol)
		if err != nil {
			return nil, fmt.Errorf("failed to create ticker: %w", err)
		}
		defer t.Close()

		info, err := t.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to get info: %w", err)
		}

		meta := &SecurityMetadata{Symbol: symbol, CompanyName: "N/A", Sector: "N/A"}
		if info.LongName != "" {
			meta.CompanyName = info.LongName
		} else if info.ShortName != "" {
			meta.CompanyName = info.ShortName
		}
		if info.Industry != "" {
			meta.Sector = info.Industry
		}
		return meta, nil
	})
}

// periodFor maps a look-back duration to the smallest Yahoo period covering it
func periodFor(lookback time.Duration) string {
	days := int(lookback.Hours()/24) + 1
	switch {
	case days <= 5:
		return "5d"
	case days <= 31:
		return "1mo"
	case days <= 92:
		return "3mo"
	case days <= 183:
		return "6mo"
	case days <= 366:
		return "1y"
	case days <= 731:
		return "2y"
	case days <= 1827:
		return "5y"
	case days <= 3653:
		return "10y"
	default:
		return "max"
	}
}

// withContext runs a blocking vendor call and abandons it when ctx is done.
// The go-yfinance API has no context support.
func withContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}

	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{val: v, err: err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
