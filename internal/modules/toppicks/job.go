package toppicks

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aristath/optiwealth/internal/clientdata"
	"github.com/aristath/optiwealth/internal/clients/yahoo"
	"github.com/aristath/optiwealth/internal/domain"
	"github.com/aristath/optiwealth/pkg/formulas"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrJobRunning is returned when a run is requested while another is in progress
var ErrJobRunning = errors.New("top picks job already running")

const (
	jobName         = "top_picks"
	downloadPeriod  = "6mo"
	rsiLength       = 14
	notAvailable    = "N/A"
	defaultRunLimit = 30 * time.Minute
)

// Source downloads batch closes and security metadata
type Source interface {
	DownloadCloses(ctx context.Context, symbols []string, period string) (map[string][]domain.PriceBar, error)
	FetchMetadata(ctx context.Context, symbol string) (*yahoo.SecurityMetadata, error)
}

// MetadataCache stores metadata between runs
type MetadataCache interface {
	Store(ctx context.Context, table, key string, value interface{}, ttl time.Duration) error
	GetIfFresh(ctx context.Context, table, key string, dest interface{}) (bool, error)
}

// JobConfig controls a ranking run
type JobConfig struct {
	SymbolsFile string        // CSV with a SYMBOL column
	Suffix      string        // exchange suffix added for download, stripped on store
	BatchSize   int           // symbols per download request
	Top         int           // picks kept per period
	RunLimit    time.Duration // upper bound on a whole run
}

// Job downloads the universe, ranks it per period and stores the winners.
// Only one run is active at a time.
type Job struct {
	source  Source
	repo    *Repository
	cache   MetadataCache
	ranker  Ranker
	cfg     JobConfig
	running atomic.Bool
	now     func() time.Time
	log     zerolog.Logger
}

// NewJob creates a new top picks job. cache may be nil.
func NewJob(source Source, repo *Repository, cache MetadataCache, cfg JobConfig, log zerolog.Logger) *Job {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 150
	}
	if cfg.Top <= 0 {
		cfg.Top = DefaultTop
	}
	if cfg.RunLimit <= 0 {
		cfg.RunLimit = defaultRunLimit
	}

	return &Job{
		source: source,
		repo:   repo,
		cache:  cache,
		ranker: Ranker{Top: cfg.Top},
		cfg:    cfg,
		now:    time.Now,
		log:    log.With().Str("job", jobName).Logger(),
	}
}

// Name returns the scheduler name of the job
func (j *Job) Name() string {
	return jobName
}

// Running reports whether a run is in progress
func (j *Job) Running() bool {
	return j.running.Load()
}

// Run executes one ranking run, blocking until it finishes
func (j *Job) Run() error {
	return j.RunContext(context.Background())
}

// RunContext executes one ranking run bounded by ctx
func (j *Job) RunContext(ctx context.Context) error {
	if !j.running.CompareAndSwap(false, true) {
		return ErrJobRunning
	}
	defer j.running.Store(false)

	return j.run(ctx)
}

// Trigger starts a run on its own goroutine.
// It returns ErrJobRunning without starting anything when a run is active.
func (j *Job) Trigger() error {
	if !j.running.CompareAndSwap(false, true) {
		return ErrJobRunning
	}

	go func() {
		defer j.running.Store(false)
		if err := j.run(context.Background()); err != nil {
			j.log.Error().Err(err).Msg("Triggered run failed")
		}
	}()
	return nil
}

func (j *Job) run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.cfg.RunLimit)
	defer cancel()

	started := j.now()
	symbols, err := LoadUniverse(j.cfg.SymbolsFile, j.cfg.Suffix)
	if err != nil {
		return err
	}
	j.log.Info().Int("symbols", len(symbols)).Msg("Ranking universe")

	closes := j.download(ctx, symbols)
	if len(closes) == 0 {
		return errors.New("no price data downloaded")
	}

	ranked := make(map[string][]Score, len(Periods))
	winners := make(map[string]bool)
	for _, period := range Periods {
		ranked[period.Name] = j.ranker.Rank(closes, period)
		for _, s := range ranked[period.Name] {
			winners[s.Symbol] = true
		}
	}

	metadata := j.metadata(ctx, winners)
	runID := uuid.NewString()
	updatedAt := j.now().UTC()

	for _, period := range Periods {
		picks := make([]Pick, 0, len(ranked[period.Name]))
		for _, s := range ranked[period.Name] {
			picks = append(picks, j.buildPick(s, period, closes[s.Symbol], metadata[s.Symbol], runID, updatedAt))
		}
		if err := j.repo.ReplacePeriod(ctx, period.Name, picks); err != nil {
			return err
		}
	}

	j.log.Info().
		Str("run_id", runID).
		Int("priced", len(closes)).
		Int("winners", len(winners)).
		Dur("duration", j.now().Sub(started)).
		Msg("Top picks updated")
	return nil
}

// download fetches closes in batches; a failed batch is skipped
func (j *Job) download(ctx context.Context, symbols []string) map[string][]float64 {
	closes := make(map[string][]float64, len(symbols))
	for start := 0; start < len(symbols); start += j.cfg.BatchSize {
		if ctx.Err() != nil {
			j.log.Warn().Err(ctx.Err()).Msg("Download interrupted")
			break
		}

		batch := symbols[start:min(start+j.cfg.BatchSize, len(symbols))]
		bars, err := j.source.DownloadCloses(ctx, batch, downloadPeriod)
		if err != nil {
			j.log.Warn().Err(err).Int("offset", start).Int("size", len(batch)).Msg("Batch download failed")
			continue
		}

		for symbol, series := range bars {
			if c := closesOf(series); len(c) > 0 {
				closes[symbol] = c
			}
		}
	}
	return closes
}

func (j *Job) metadata(ctx context.Context, symbols map[string]bool) map[string]yahoo.SecurityMetadata {
	names := make([]string, 0, len(symbols))
	for symbol := range symbols {
		names = append(names, symbol)
	}
	sort.Strings(names)

	out := make(map[string]yahoo.SecurityMetadata, len(names))
	for _, symbol := range names {
		out[symbol] = j.lookupMetadata(ctx, symbol)
	}
	return out
}

func (j *Job) lookupMetadata(ctx context.Context, symbol string) yahoo.SecurityMetadata {
	if j.cache != nil {
		var cached yahoo.SecurityMetadata
		found, err := j.cache.GetIfFresh(ctx, clientdata.TableSecurityMetadata, symbol, &cached)
		if err != nil {
			j.log.Debug().Err(err).Str("symbol", symbol).Msg("Metadata cache read failed")
		} else if found {
			return cached
		}
	}

	meta, err := j.source.FetchMetadata(ctx, symbol)
	if err != nil || meta == nil {
		j.log.Warn().Err(err).Str("symbol", symbol).Msg("Metadata unavailable")
		return yahoo.SecurityMetadata{Symbol: symbol, CompanyName: notAvailable, Sector: notAvailable}
	}

	if j.cache != nil {
		if err := j.cache.Store(ctx, clientdata.TableSecurityMetadata, symbol, meta, clientdata.TTLSecurityMetadata); err != nil {
			j.log.Debug().Err(err).Str("symbol", symbol).Msg("Metadata cache write failed")
		}
	}
	return *meta
}

func (j *Job) buildPick(s Score, period Period, closes []float64, meta yahoo.SecurityMetadata, runID string, at time.Time) Pick {
	rationale := fmt.Sprintf("Momentum score %.3f from %.2f%% returns", s.Score, s.Return*100)
	if rsi := formulas.RSI(period.Window(closes), rsiLength); rsi != nil {
		rationale += fmt.Sprintf(", RSI(%d) %.1f", rsiLength, *rsi)
	}

	return Pick{
		Symbol:         yahoo.StripSuffix(s.Symbol, j.cfg.Suffix),
		Period:         period.Name,
		CompanyName:    orNotAvailable(meta.CompanyName),
		Sector:         orNotAvailable(meta.Sector),
		LastPrice:      formulas.Round(s.LastPrice, 2),
		ExpectedTarget: formulas.Round(s.LastPrice*(1+s.Return), 2),
		ReturnPercent:  formulas.Round(s.Return*100, 2),
		Score:          formulas.Round(s.Score, 4),
		Rationale:      rationale,
		RunID:          runID,
		UpdatedAt:      at,
	}
}

// LoadUniverse reads the SYMBOL column of a CSV file and qualifies each symbol.
// Duplicates and blanks are dropped; order follows the file.
func LoadUniverse(path, suffix string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open symbols file: %w", err)
	}
	defer f.Close()

	return parseUniverse(f, suffix)
}

func parseUniverse(r io.Reader, suffix string) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read symbols header: %w", err)
	}
	column := -1
	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")), "SYMBOL") {
			column = i
			break
		}
	}
	if column < 0 {
		return nil, errors.New("symbols file has no SYMBOL column")
	}

	seen := make(map[string]bool)
	var symbols []string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read symbols file: %w", err)
		}
		if column >= len(record) {
			continue
		}
		symbol := yahoo.QualifySymbol(record[column], suffix)
		if symbol == "" || seen[symbol] {
			continue
		}
		seen[symbol] = true
		symbols = append(symbols, symbol)
	}

	if len(symbols) == 0 {
		return nil, errors.New("symbols file lists no symbols")
	}
	return symbols, nil
}

func closesOf(bars []domain.PriceBar) []float64 {
	closes := make([]float64, 0, len(bars))
	for _, bar := range bars {
		if bar.Close > 0 && formulas.IsFinite(bar.Close) {
			closes = append(closes, bar.Close)
		}
	}
	return closes
}

func orNotAvailable(s string) string {
	if strings.TrimSpace(s) == "" {
		return notAvailable
	}
	return s
}
