package forecast

import (
	"errors"
	"fmt"
	"math"

	"github.com/aristath/optiwealth/pkg/formulas"
	"gonum.org/v1/gonum/optimize"
)

// returns are scaled to percent before fitting
const garchScale = 100.0

// garchParams are the constant-mean GARCH(1,1) parameters in percent units
type garchParams struct {
	mu, omega, alpha, beta float64
}

// fromUnconstrained maps optimizer coordinates onto omega > 0,
// alpha, beta >= 0 and alpha + beta < 1.
func fromUnconstrained(x []float64) garchParams {
	persistence := logistic(x[2])
	share := logistic(x[3])
	return garchParams{
		mu:    x[0],
		omega: math.Exp(x[1]),
		alpha: persistence * share,
		beta:  persistence * (1 - share),
	}
}

// ForecastGARCH forecasts daily volatility for the next steps days with a
// GARCH(1,1) model fitted by Gaussian quasi maximum likelihood.
// On failure every value is NaN and the error says why.
func ForecastGARCH(returns []float64, steps int) ([]float64, error) {
	out := nanSlice(steps)
	if err := checkSeries(returns); err != nil {
		return out, err
	}

	x := make([]float64, len(returns))
	for i, r := range returns {
		x[i] = r * garchScale
	}

	mean := formulas.Mean(x)
	variance, _ := formulas.SampleVariance(x)

	// start at alpha 0.1, beta 0.8
	start := []float64{mean, math.Log(variance * 0.1), logit(0.9), logit(1.0 / 9.0)}

	problem := optimize.Problem{
		Func: func(p []float64) float64 {
			nll, ok := negLogLikelihood(x, fromUnconstrained(p), variance)
			if !ok {
				return math.MaxFloat64
			}
			return nll
		},
	}
	settings := &optimize.Settings{MajorIterations: 2000, FuncEvaluations: 10000}

	result, err := optimize.Minimize(problem, start, settings, &optimize.NelderMead{})
	if result == nil {
		return out, fmt.Errorf("garch fit: %w", err)
	}
	if !formulas.IsFinite(result.F) || result.F == math.MaxFloat64 {
		return out, errors.New("garch likelihood is not finite")
	}

	params := fromUnconstrained(result.X)
	lastResid, lastVar := filter(x, params, variance)

	next := params.omega + params.alpha*lastResid*lastResid + params.beta*lastVar
	for s := 0; s < steps; s++ {
		if s > 0 {
			next = params.omega + (params.alpha+params.beta)*next
		}
		if !formulas.IsFinite(next) || next < 0 {
			return nanSlice(steps), errors.New("garch variance forecast is not finite")
		}
		out[s] = math.Sqrt(next / (garchScale * garchScale))
	}

	return out, nil
}

// negLogLikelihood returns the Gaussian negative log likelihood. The
// recursion starts from the sample variance.
func negLogLikelihood(x []float64, p garchParams, backcast float64) (float64, bool) {
	sigma2 := backcast
	var nll float64
	for t, v := range x {
		if t > 0 {
			prev := x[t-1] - p.mu
			sigma2 = p.omega + p.alpha*prev*prev + p.beta*sigma2
		}
		if !(sigma2 > 0) || math.IsInf(sigma2, 0) {
			return 0, false
		}
		resid := v - p.mu
		nll += 0.5 * (math.Log(2*math.Pi) + math.Log(sigma2) + resid*resid/sigma2)
	}
	return nll, formulas.IsFinite(nll)
}

// filter runs the variance recursion and returns the final residual and variance
func filter(x []float64, p garchParams, backcast float64) (float64, float64) {
	sigma2 := backcast
	for t := 1; t < len(x); t++ {
		prev := x[t-1] - p.mu
		sigma2 = p.omega + p.alpha*prev*prev + p.beta*sigma2
	}
	return x[len(x)-1] - p.mu, sigma2
}

func logistic(v float64) float64 {
	return 1 / (1 + math.Exp(-v))
}

func logit(p float64) float64 {
	return math.Log(p / (1 - p))
}
