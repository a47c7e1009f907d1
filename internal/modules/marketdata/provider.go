// Package marketdata turns a market data vendor into a soft-failing series provider.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/optiwealth/internal/clientdata"
	"github.com/aristath/optiwealth/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const stage = "marketdata"

// Cache is the persistent cache used between requests
type Cache interface {
	Store(ctx context.Context, table, key string, value interface{}, ttl time.Duration) error
	GetIfFresh(ctx context.Context, table, key string, dest interface{}) (bool, error)
	Get(ctx context.Context, table, key string, dest interface{}) (bool, error)
}

// Config controls vendor access
type Config struct {
	Workers     int
	RateLimit   float64 // requests per second
	MaxRetries  int
	Timeout     time.Duration // per attempt
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	CacheTTL    time.Duration
	QuoteTTL    time.Duration
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		Workers:     4,
		RateLimit:   5,
		MaxRetries:  3,
		Timeout:     10 * time.Second,
		BaseBackoff: 500 * time.Millisecond,
		MaxBackoff:  4 * time.Second,
		CacheTTL:    clientdata.TTLPriceHistory,
		QuoteTTL:    clientdata.TTLQuote,
	}
}

// Provider wraps a MarketDataSource with retries, rate limiting and caching.
// It is safe for concurrent use and shared across requests.
type Provider struct {
	source  domain.MarketDataSource
	cache   Cache
	limiter *rate.Limiter
	cfg     Config
	log     zerolog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewProvider creates a provider. cache may be nil.
func NewProvider(source domain.MarketDataSource, cache Cache, cfg Config, log zerolog.Logger) *Provider {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 1
	}
	burst := int(cfg.RateLimit)
	if burst < 1 {
		burst = 1
	}

	return &Provider{
		source:  source,
		cache:   cache,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), burst),
		cfg:     cfg,
		log:     log.With().Str("component", "marketdata").Logger(),
		sleep:   sleepContext,
	}
}

// Session returns a request-scoped view that memoizes fetches
func (p *Provider) Session() *Session {
	return &Session{
		provider: p,
		series:   make(map[string]seriesResult),
		quotes:   make(map[string]quoteResult),
	}
}

// Session memoizes series and quotes for the lifetime of one report.
// Failures are memoized too so a symbol is given up on once per report.
type Session struct {
	provider *Provider

	mu     sync.Mutex
	series map[string]seriesResult
	quotes map[string]quoteResult
}

type seriesResult struct {
	series  domain.HistoricalSeries
	warning *domain.Warning
}

type quoteResult struct {
	quote   *domain.Quote
	warning *domain.Warning
}

// Fetch returns the cleaned daily series for symbol within [start, end].
// Vendor failures yield an empty series and a data_unavailable warning.
func (s *Session) Fetch(ctx context.Context, symbol string, start, end time.Time) (domain.HistoricalSeries, *domain.Warning) {
	key := seriesKey(symbol, start, end)

	s.mu.Lock()
	if cached, ok := s.series[key]; ok {
		s.mu.Unlock()
		return cached.series, cached.warning
	}
	s.mu.Unlock()

	series, warning := s.provider.fetchSeries(ctx, symbol, start, end, key)

	// a canceled request says nothing about the symbol
	if warning == nil || ctx.Err() == nil {
		s.mu.Lock()
		s.series[key] = seriesResult{series: series, warning: warning}
		s.mu.Unlock()
	}

	return series, warning
}

// Quote returns the current quote, or nil and a warning when unavailable
func (s *Session) Quote(ctx context.Context, symbol string) (*domain.Quote, *domain.Warning) {
	s.mu.Lock()
	if cached, ok := s.quotes[symbol]; ok {
		s.mu.Unlock()
		return cached.quote, cached.warning
	}
	s.mu.Unlock()

	q, warning := s.provider.fetchQuote(ctx, symbol)
	if warning != nil {
		q = nil
	}

	if warning == nil || ctx.Err() == nil {
		s.mu.Lock()
		s.quotes[symbol] = quoteResult{quote: q, warning: warning}
		s.mu.Unlock()
	}

	return q, warning
}

// Prefetch loads the series of all symbols concurrently, bounded by the
// configured worker count, and returns the warnings of the failed ones.
func (s *Session) Prefetch(ctx context.Context, symbols []string, start, end time.Time) []domain.Warning {
	var (
		mu       sync.Mutex
		warnings []domain.Warning
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.provider.cfg.Workers)

	seen := make(map[string]bool, len(symbols))
	for _, symbol := range symbols {
		if seen[symbol] {
			continue
		}
		seen[symbol] = true

		g.Go(func() error {
			if _, w := s.Fetch(gctx, symbol, start, end); w != nil {
				mu.Lock()
				warnings = append(warnings, *w)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return warnings
}

func (p *Provider) fetchSeries(ctx context.Context, symbol string, start, end time.Time, key string) (domain.HistoricalSeries, *domain.Warning) {
	if p.cache != nil {
		var bars []domain.PriceBar
		found, err := p.cache.GetIfFresh(ctx, clientdata.TablePriceHistory, key, &bars)
		if err != nil {
			p.log.Warn().Err(err).Str("symbol", symbol).Msg("Price history cache read failed")
		} else if found {
			return domain.HistoricalSeries{Symbol: symbol, Bars: CleanBars(bars, start, end)}, nil
		}
	}

	bars, err := retry(ctx, p, symbol, func(attemptCtx context.Context) ([]domain.PriceBar, error) {
		return p.source.FetchHistory(attemptCtx, symbol, start, end)
	})
	if err != nil {
		if stale, ok := p.staleSeries(ctx, symbol, start, end, key); ok {
			return stale, nil
		}
		p.log.Warn().Err(err).Str("symbol", symbol).Msg("History unavailable")
		w := domain.NewWarning(domain.WarningDataUnavailable, stage, symbol, "history unavailable: %v", err)
		return domain.EmptySeries(symbol), &w
	}

	cleaned := CleanBars(bars, start, end)
	if len(cleaned) == 0 {
		w := domain.NewWarning(domain.WarningDataUnavailable, stage, symbol, "no usable bars between %s and %s",
			start.Format(time.DateOnly), end.Format(time.DateOnly))
		return domain.EmptySeries(symbol), &w
	}

	if p.cache != nil {
		if err := p.cache.Store(ctx, clientdata.TablePriceHistory, key, cleaned, p.cfg.CacheTTL); err != nil {
			p.log.Warn().Err(err).Str("symbol", symbol).Msg("Price history cache write failed")
		}
	}

	return domain.HistoricalSeries{Symbol: symbol, Bars: cleaned}, nil
}

func (p *Provider) staleSeries(ctx context.Context, symbol string, start, end time.Time, key string) (domain.HistoricalSeries, bool) {
	if p.cache == nil {
		return domain.HistoricalSeries{}, false
	}

	var bars []domain.PriceBar
	found, err := p.cache.Get(ctx, clientdata.TablePriceHistory, key, &bars)
	if err != nil || !found {
		return domain.HistoricalSeries{}, false
	}

	cleaned := CleanBars(bars, start, end)
	if len(cleaned) == 0 {
		return domain.HistoricalSeries{}, false
	}

	p.log.Warn().Str("symbol", symbol).Msg("Serving stale price history from cache")
	return domain.HistoricalSeries{Symbol: symbol, Bars: cleaned}, true
}

func (p *Provider) fetchQuote(ctx context.Context, symbol string) (*domain.Quote, *domain.Warning) {
	if p.cache != nil {
		var q domain.Quote
		found, err := p.cache.GetIfFresh(ctx, clientdata.TableQuotes, symbol, &q)
		if err == nil && found && q.CurrentPrice > 0 {
			return &q, nil
		}
	}

	q, err := retry(ctx, p, symbol, func(attemptCtx context.Context) (*domain.Quote, error) {
		q, err := p.source.FetchQuote(attemptCtx, symbol)
		if err != nil {
			return nil, err
		}
		if q == nil || !(q.CurrentPrice > 0) {
			return nil, errors.New("quote has no positive price")
		}
		return q, nil
	})
	if err != nil {
		p.log.Warn().Err(err).Str("symbol", symbol).Msg("Quote unavailable")
		w := domain.NewWarning(domain.WarningDataUnavailable, stage, symbol, "quote unavailable: %v", err)
		return nil, &w
	}

	if p.cache != nil {
		if err := p.cache.Store(ctx, clientdata.TableQuotes, symbol, q, p.cfg.QuoteTTL); err != nil {
			p.log.Warn().Err(err).Str("symbol", symbol).Msg("Quote cache write failed")
		}
	}

	return q, nil
}

// retry calls fn up to MaxRetries+1 times with a per-attempt timeout and
// bounded exponential backoff between attempts.
func retry[T any](ctx context.Context, p *Provider, symbol string, fn func(context.Context) (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)

	attempts := p.cfg.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if err := p.limiter.Wait(ctx); err != nil {
			return zero, fmt.Errorf("rate limiter: %w", err)
		}

		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if p.cfg.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		}
		v, err := fn(attemptCtx)
		cancel()
		if err == nil {
			return v, nil
		}
		lastErr = err

		if ctx.Err() != nil || attempt == attempts-1 {
			break
		}

		wait := backoff(p.cfg.BaseBackoff, p.cfg.MaxBackoff, attempt)
		p.log.Debug().
			Err(err).
			Str("symbol", symbol).
			Int("attempt", attempt+1).
			Dur("wait", wait).
			Msg("Retrying")
		if err := p.sleep(ctx, wait); err != nil {
			break
		}
	}

	return zero, fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

// backoff returns base*2^attempt capped at max
func backoff(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	wait := base << uint(attempt)
	if wait <= 0 || (max > 0 && wait > max) {
		return max
	}
	return wait
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func seriesKey(symbol string, start, end time.Time) string {
	return symbol + "|" + start.UTC().Format(time.DateOnly) + "|" + end.UTC().Format(time.DateOnly)
}
