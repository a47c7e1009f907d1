package forecast

import (
	"context"
	"math"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat/distuv"
)

// dt is one trading day in years
const dt = 1.0 / 252.0

// SimulatePaths runs sims geometric Brownian motion price paths of length
// steps and returns them as a steps x sims matrix. Each path draws from its
// own PCG stream seeded by (seed, path index), so the output does not depend
// on how paths are spread over workers. Prices never go below zero.
func SimulatePaths(currentPrice, mu, sigma float64, steps, sims int, seed uint64) [][]float64 {
	paths := make([][]float64, steps)
	for t := range paths {
		paths[t] = make([]float64, sims)
	}
	if steps <= 0 || sims <= 0 {
		return paths
	}

	shock := func(src rand.Source) distuv.Normal {
		return distuv.Normal{Mu: mu * dt, Sigma: sigma * math.Sqrt(dt), Src: src}
	}

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for s := 0; s < sims; s++ {
		g.Go(func() error {
			dist := shock(rand.NewPCG(seed, uint64(s)))
			price := currentPrice
			for t := 0; t < steps; t++ {
				price = math.Max(price*(1+dist.Rand()), 0)
				paths[t][s] = price
			}
			return nil
		})
	}
	_ = g.Wait()

	return paths
}

// terminalPrices returns the last row of a path matrix
func terminalPrices(paths [][]float64) []float64 {
	if len(paths) == 0 {
		return nil
	}
	return paths[len(paths)-1]
}

// canceled reports whether ctx is done without blocking
func canceled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
