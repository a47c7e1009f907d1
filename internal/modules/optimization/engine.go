// Package optimization searches random long-only allocations for the
// max-Sharpe and min-volatility portfolios and estimates portfolio CVaR.
package optimization

import (
	"context"
	"math"
	"math/rand/v2"
	"runtime"

	"github.com/aristath/optiwealth/internal/domain"
	"github.com/aristath/optiwealth/pkg/formulas"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	stage = "optimization"

	// chunkSize is the number of draws generated from one random stream
	chunkSize = 500

	cvarConfidence = 0.95
)

// Config controls the Monte Carlo sizes
type Config struct {
	FrontierSimulations int
	CVaRSimulations     int
	// Seed fixes the random streams; 0 draws a fresh seed per run
	Seed    uint64
	Workers int
}

// Input is one optimizable asset
type Input struct {
	Symbol         string
	ExpectedReturn float64
	Volatility     float64
}

// Engine runs the frontier search and the CVaR simulation
type Engine struct {
	cfg Config
	log zerolog.Logger
}

// NewEngine creates an optimization engine
func NewEngine(cfg Config, log zerolog.Logger) *Engine {
	if cfg.FrontierSimulations <= 0 {
		cfg.FrontierSimulations = 5000
	}
	if cfg.CVaRSimulations <= 0 {
		cfg.CVaRSimulations = 10000
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return &Engine{
		cfg: cfg,
		log: log.With().Str("component", "optimization").Logger(),
	}
}

// Inputs selects the usable forecasts in symbol order. A repeated symbol
// is taken once so each asset gets a single weight.
func Inputs(forecasts map[string]domain.ForecastResult, symbols []string) ([]Input, []domain.Warning) {
	var (
		inputs   []Input
		warnings []domain.Warning
	)
	seen := make(map[string]bool, len(symbols))
	for _, symbol := range symbols {
		if seen[symbol] {
			continue
		}
		seen[symbol] = true

		f, ok := forecasts[symbol]
		if !ok {
			continue
		}
		if !f.Usable() {
			warnings = append(warnings, domain.NewWarning(domain.WarningInsufficientData, stage, symbol,
				"excluded: forecast has no expected return or volatility"))
			continue
		}
		inputs = append(inputs, Input{
			Symbol:         symbol,
			ExpectedReturn: *f.ExpectedReturn,
			Volatility:     *f.VolatilityForecast.Average,
		})
	}
	return inputs, warnings
}

// Optimize builds the optimization section from forecasts
func (e *Engine) Optimize(ctx context.Context, forecasts map[string]domain.ForecastResult, symbols []string) (domain.OptimizationResult, []domain.Warning) {
	inputs, warnings := Inputs(forecasts, symbols)
	if len(inputs) == 0 {
		return domain.EmptyOptimization(), warnings
	}

	seed := e.cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	result := domain.EmptyOptimization()
	result.MaxSharpe, result.MinVolatility = e.EfficientFrontier(ctx, inputs, seed)
	result.PortfolioCVaR95 = e.PortfolioCVaR(ctx, inputs, seed+1)

	e.log.Debug().
		Int("assets", len(inputs)).
		Float64("max_sharpe", result.MaxSharpe.SharpeRatio).
		Float64("min_volatility", result.MinVolatility.Volatility).
		Msg("Frontier searched")

	return result, warnings
}

// candidate is a scored draw, idx is its global position
type candidate struct {
	idx     int
	weights []float64
	ret     float64
	vol     float64
	sharpe  float64
	scored  bool // vol > 0
}

type chunkBest struct {
	maxSharpe *candidate
	minVol    *candidate
}

// EfficientFrontier draws random normalised weight vectors against a
// diagonal covariance of the forecast volatilities. Draws are produced in
// fixed chunks, each from its own stream, and reduced with the lowest index
// winning ties, so the result only depends on the seed.
func (e *Engine) EfficientFrontier(ctx context.Context, inputs []Input, seed uint64) (domain.PortfolioCandidate, domain.PortfolioCandidate) {
	n := len(inputs)
	if n == 0 {
		empty := domain.EmptyOptimization()
		return empty.MaxSharpe, empty.MinVolatility
	}

	mu := mat.NewVecDense(n, nil)
	variances := make([]float64, n)
	for i, in := range inputs {
		mu.SetVec(i, in.ExpectedReturn)
		variances[i] = in.Volatility * in.Volatility
	}
	cov := mat.NewDiagDense(n, variances)

	chunks := chunkCount(e.cfg.FrontierSimulations)
	best := make([]chunkBest, chunks)

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for c := 0; c < chunks; c++ {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(seed, uint64(c)))
			w := mat.NewVecDense(n, nil)

			lo := c * chunkSize
			hi := min(lo+chunkSize, e.cfg.FrontierSimulations)
			for idx := lo; idx < hi; idx++ {
				var sum float64
				for i := 0; i < n; i++ {
					v := rng.Float64()
					w.SetVec(i, v)
					sum += v
				}
				if sum == 0 {
					continue
				}
				w.ScaleVec(1/sum, w)

				cand := candidate{
					idx: idx,
					ret: mat.Dot(w, mu),
					vol: math.Sqrt(mat.Inner(w, cov, w)),
				}
				if cand.vol > 0 {
					cand.sharpe = cand.ret / cand.vol
					cand.scored = true
				}

				if better(&cand, best[c].maxSharpe, bySharpe) {
					cand.weights = append([]float64(nil), w.RawVector().Data...)
					keep := cand
					best[c].maxSharpe = &keep
				}
				if better(&cand, best[c].minVol, byVolatility) {
					cand.weights = append([]float64(nil), w.RawVector().Data...)
					keep := cand
					best[c].minVol = &keep
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	var maxSharpe, minVol *candidate
	for _, b := range best {
		if b.maxSharpe != nil && better(b.maxSharpe, maxSharpe, bySharpe) {
			maxSharpe = b.maxSharpe
		}
		if b.minVol != nil && better(b.minVol, minVol, byVolatility) {
			minVol = b.minVol
		}
	}
	// no draw had positive volatility, Sharpe is undefined everywhere
	if maxSharpe == nil || !maxSharpe.scored {
		maxSharpe = minVol
	}

	return toPortfolio(inputs, maxSharpe), toPortfolio(inputs, minVol)
}

type ordering int

const (
	bySharpe ordering = iota
	byVolatility
)

// better reports whether a beats the current best b
func better(a, b *candidate, by ordering) bool {
	if b == nil {
		return true
	}
	switch by {
	case bySharpe:
		if a.scored != b.scored {
			return a.scored
		}
		if a.sharpe != b.sharpe {
			return a.sharpe > b.sharpe
		}
	case byVolatility:
		if a.vol != b.vol {
			return a.vol < b.vol
		}
	}
	return a.idx < b.idx
}

func toPortfolio(inputs []Input, c *candidate) domain.PortfolioCandidate {
	p := domain.PortfolioCandidate{Weights: make(map[string]float64, len(inputs))}
	if c == nil {
		return p
	}
	for i, in := range inputs {
		p.Weights[in.Symbol] = c.weights[i]
	}
	p.ExpectedReturn = c.ret
	p.Volatility = c.vol
	p.SharpeRatio = c.sharpe
	return p
}

// PortfolioCVaR simulates equal-weight portfolio returns from independent
// normal asset returns and returns the mean of the worst 5%.
func (e *Engine) PortfolioCVaR(ctx context.Context, inputs []Input, seed uint64) *float64 {
	n := len(inputs)
	if n == 0 {
		return nil
	}
	weight := 1 / float64(n)

	sims := e.cfg.CVaRSimulations
	draws := make([]float64, sims)

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for c := 0; c < chunkCount(sims); c++ {
		g.Go(func() error {
			src := rand.NewPCG(seed, uint64(c))
			dists := make([]distuv.Normal, n)
			for i, in := range inputs {
				dists[i] = distuv.Normal{Mu: in.ExpectedReturn, Sigma: in.Volatility, Src: src}
			}

			lo := c * chunkSize
			hi := min(lo+chunkSize, sims)
			for idx := lo; idx < hi; idx++ {
				var r float64
				for i := range dists {
					r += weight * dists[i].Rand()
				}
				draws[idx] = r
			}
			return nil
		})
	}
	_ = g.Wait()

	return domain.Float(formulas.ConditionalVaR(draws, cvarConfidence))
}

func chunkCount(total int) int {
	if total <= 0 {
		return 0
	}
	return (total + chunkSize - 1) / chunkSize
}
