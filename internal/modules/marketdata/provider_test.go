package marketdata

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/aristath/optiwealth/internal/clientdata"
	"github.com/aristath/optiwealth/internal/database"
	"github.com/aristath/optiwealth/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	windowStart = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	windowEnd   = time.Date(2025, 1, 31, 23, 59, 59, 0, time.UTC)
)

type fakeSource struct {
	mu           sync.Mutex
	historyCalls map[string]int
	quoteCalls   map[string]int
	failUntil    map[string]int // fail the first N calls per symbol
	bars         map[string][]domain.PriceBar
	prices       map[string]float64
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		historyCalls: map[string]int{},
		quoteCalls:   map[string]int{},
		failUntil:    map[string]int{},
		bars:         map[string][]domain.PriceBar{},
		prices:       map[string]float64{},
	}
}

func (f *fakeSource) FetchHistory(_ context.Context, symbol string, _, _ time.Time) ([]domain.PriceBar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyCalls[symbol]++
	if f.historyCalls[symbol] <= f.failUntil[symbol] {
		return nil, errors.New("vendor timeout")
	}
	bars, ok := f.bars[symbol]
	if !ok {
		return nil, errors.New("unknown symbol")
	}
	return bars, nil
}

func (f *fakeSource) FetchQuote(_ context.Context, symbol string) (*domain.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quoteCalls[symbol]++
	if f.quoteCalls[symbol] <= f.failUntil[symbol] {
		return nil, errors.New("vendor timeout")
	}
	price, ok := f.prices[symbol]
	if !ok {
		return nil, errors.New("unknown symbol")
	}
	return &domain.Quote{Symbol: symbol, CurrentPrice: price}, nil
}

func dailyBars(closes ...float64) []domain.PriceBar {
	bars := make([]domain.PriceBar, len(closes))
	for i, c := range closes {
		bars[i] = domain.PriceBar{Date: windowStart.AddDate(0, 0, i), Close: c}
	}
	return bars
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RateLimit = 1000
	cfg.Timeout = time.Second
	cfg.BaseBackoff = time.Millisecond
	cfg.MaxBackoff = 2 * time.Millisecond
	return cfg
}

func newTestProvider(source domain.MarketDataSource, cache Cache) *Provider {
	p := NewProvider(source, cache, testConfig(), zerolog.Nop())
	p.sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

func TestSession_ImplementsSeriesProvider(t *testing.T) {
	var _ domain.SeriesProvider = newTestProvider(newFakeSource(), nil).Session()
}

func TestFetch_RetriesThenSucceeds(t *testing.T) {
	src := newFakeSource()
	src.bars["ITC.NS"] = dailyBars(100, 101, 102)
	src.failUntil["ITC.NS"] = 2

	series, w := newTestProvider(src, nil).Session().Fetch(context.Background(), "ITC.NS", windowStart, windowEnd)

	assert.Nil(t, w)
	assert.Len(t, series.Bars, 3)
	assert.Equal(t, 3, src.historyCalls["ITC.NS"])
}

func TestFetch_GivesUpWithWarning(t *testing.T) {
	src := newFakeSource()
	src.bars["BEL.NS"] = dailyBars(100)
	src.failUntil["BEL.NS"] = 100

	series, w := newTestProvider(src, nil).Session().Fetch(context.Background(), "BEL.NS", windowStart, windowEnd)

	require.NotNil(t, w)
	assert.Equal(t, domain.WarningDataUnavailable, w.Kind)
	assert.Equal(t, "BEL.NS", w.Symbol)
	assert.True(t, series.IsEmpty())
	assert.NotNil(t, series.Bars)
	assert.Equal(t, testConfig().MaxRetries+1, src.historyCalls["BEL.NS"], "retries are bounded")
}

func TestFetch_MemoizesWithinSession(t *testing.T) {
	src := newFakeSource()
	src.bars["ITC.NS"] = dailyBars(100, 101)
	session := newTestProvider(src, nil).Session()

	for i := 0; i < 3; i++ {
		_, w := session.Fetch(context.Background(), "ITC.NS", windowStart, windowEnd)
		require.Nil(t, w)
	}
	assert.Equal(t, 1, src.historyCalls["ITC.NS"])
}

func TestFetch_UsesPersistentCache(t *testing.T) {
	db, err := database.New(database.Config{Path: ":memory:", Name: "cache"})
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Migrate(context.Background())
	require.NoError(t, err)
	cache := clientdata.NewRepository(db.Conn())

	src := newFakeSource()
	src.bars["ITC.NS"] = dailyBars(100, 101, 102)
	provider := newTestProvider(src, cache)

	_, w := provider.Session().Fetch(context.Background(), "ITC.NS", windowStart, windowEnd)
	require.Nil(t, w)

	// a new session hits the sqlite cache instead of the vendor
	series, w := provider.Session().Fetch(context.Background(), "ITC.NS", windowStart, windowEnd)
	require.Nil(t, w)
	assert.Equal(t, []float64{100, 101, 102}, series.Closes())
	assert.Equal(t, 1, src.historyCalls["ITC.NS"])
}

func TestFetch_ServesStaleCacheWhenVendorFails(t *testing.T) {
	db, err := database.New(database.Config{Path: ":memory:", Name: "cache"})
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Migrate(context.Background())
	require.NoError(t, err)
	cache := clientdata.NewRepository(db.Conn())

	key := seriesKey("ITC.NS", windowStart, windowEnd)
	require.NoError(t, cache.Store(context.Background(), clientdata.TablePriceHistory, key, dailyBars(90, 91), -time.Hour))

	src := newFakeSource()
	src.failUntil["ITC.NS"] = 100

	series, w := newTestProvider(src, cache).Session().Fetch(context.Background(), "ITC.NS", windowStart, windowEnd)
	assert.Nil(t, w)
	assert.Equal(t, []float64{90, 91}, series.Closes())
}

func TestQuote(t *testing.T) {
	src := newFakeSource()
	src.prices["ITC.NS"] = 416.8
	src.prices["ZERO.NS"] = 0
	session := newTestProvider(src, nil).Session()

	q, w := session.Quote(context.Background(), "ITC.NS")
	assert.Nil(t, w)
	require.NotNil(t, q)
	assert.Equal(t, 416.8, q.CurrentPrice)

	q, w = session.Quote(context.Background(), "ZERO.NS")
	assert.Nil(t, q)
	require.NotNil(t, w)
	assert.Equal(t, domain.WarningDataUnavailable, w.Kind)

	q, w = session.Quote(context.Background(), "MISSING.NS")
	assert.Nil(t, q)
	assert.NotNil(t, w)
}

func TestPrefetch_CollectsWarnings(t *testing.T) {
	src := newFakeSource()
	src.bars["RVNL.NS"] = dailyBars(300, 301)
	src.bars["BEL.NS"] = dailyBars(400, 401)

	session := newTestProvider(src, nil).Session()
	warnings := session.Prefetch(context.Background(), []string{"RVNL.NS", "BEL.NS", "ITC.NS", "BEL.NS"}, windowStart, windowEnd)

	require.Len(t, warnings, 1)
	assert.Equal(t, "ITC.NS", warnings[0].Symbol)
	assert.Equal(t, 1, src.historyCalls["BEL.NS"])

	series, w := session.Fetch(context.Background(), "RVNL.NS", windowStart, windowEnd)
	assert.Nil(t, w)
	assert.Len(t, series.Bars, 2)
}

func TestCleanBars(t *testing.T) {
	d := func(day int, hour int) time.Time { return time.Date(2025, 1, day, hour, 0, 0, 0, time.UTC) }

	bars := []domain.PriceBar{
		{Date: d(3, 4), Close: 103},
		{Date: d(1, 4), Close: 101},
		{Date: d(2, 4), Close: math.NaN()},
		{Date: d(2, 9), Close: 0},
		{Date: d(3, 9), Close: 103.5}, // same day, later bar wins
		{Date: d(20, 4), Close: 120},
		{Date: time.Date(2024, 12, 31, 4, 0, 0, 0, time.UTC), Close: 99},
	}

	cleaned := CleanBars(bars, windowStart, d(10, 0))

	require.Len(t, cleaned, 2)
	assert.Equal(t, 101.0, cleaned[0].Close)
	assert.Equal(t, 103.5, cleaned[1].Close)
}

func TestTrailingWindow(t *testing.T) {
	now := time.Date(2025, 10, 27, 15, 30, 0, 0, time.UTC)
	start, end := TrailingWindow(now, 365)

	assert.Equal(t, time.Date(2024, 10, 27, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, 27, end.Day())
	assert.True(t, end.After(now))
}

func TestBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	assert.Equal(t, 100*time.Millisecond, backoff(base, time.Second, 0))
	assert.Equal(t, 400*time.Millisecond, backoff(base, time.Second, 2))
	assert.Equal(t, time.Second, backoff(base, time.Second, 5))
	assert.Equal(t, time.Duration(0), backoff(0, time.Second, 3))
}

func TestFetch_MemoizesFailures(t *testing.T) {
	src := newFakeSource()
	src.failUntil["BEL.NS"] = 100
	session := newTestProvider(src, nil).Session()

	_, w1 := session.Fetch(context.Background(), "BEL.NS", windowStart, windowEnd)
	_, w2 := session.Fetch(context.Background(), "BEL.NS", windowStart, windowEnd)

	require.NotNil(t, w1)
	assert.Equal(t, w1, w2)
	assert.Equal(t, testConfig().MaxRetries+1, src.historyCalls["BEL.NS"])
}
