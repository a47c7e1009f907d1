package forecast

import (
	"errors"
	"fmt"
	"math"

	"github.com/aristath/optiwealth/pkg/formulas"
	"gonum.org/v1/gonum/mat"
)

const (
	arOrder = 5

	// MinObservations is the shortest return series a model is fitted on
	MinObservations = 20
	minStdDev       = 1e-9
)

// ErrInsufficientData means the series is too short or has no variation
var ErrInsufficientData = errors.New("insufficient or constant data")

// checkSeries enforces the fitting precondition shared by both models
func checkSeries(returns []float64) error {
	if len(returns) < MinObservations {
		return fmt.Errorf("%w: %d observations, need %d", ErrInsufficientData, len(returns), MinObservations)
	}
	std, ok := formulas.SampleStdDev(returns)
	if !ok || std < minStdDev {
		return fmt.Errorf("%w: standard deviation %.3g", ErrInsufficientData, std)
	}
	return nil
}

// ForecastARIMA forecasts the next steps returns with an ARIMA(5,1,0) model.
// The series is differenced once, an AR(5) without intercept is fitted by
// conditional least squares and the forecast differences are integrated back.
// On failure every value is NaN and the error says why.
func ForecastARIMA(returns []float64, steps int) ([]float64, error) {
	out := nanSlice(steps)
	if err := checkSeries(returns); err != nil {
		return out, err
	}

	diffs := make([]float64, len(returns)-1)
	for i := 1; i < len(returns); i++ {
		diffs[i-1] = returns[i] - returns[i-1]
	}

	phi, err := fitAR(diffs, arOrder)
	if err != nil {
		return out, err
	}

	history := append([]float64(nil), diffs...)
	level := returns[len(returns)-1]
	for s := 0; s < steps; s++ {
		var next float64
		for k := 0; k < arOrder; k++ {
			next += phi[k] * history[len(history)-1-k]
		}
		history = append(history, next)
		level += next
		if !formulas.IsFinite(level) {
			return nanSlice(steps), errors.New("arima forecast diverged")
		}
		out[s] = level
	}

	return out, nil
}

// fitAR solves y_t = sum_k phi_k * y_{t-k} in the least-squares sense
func fitAR(y []float64, order int) ([]float64, error) {
	rows := len(y) - order
	if rows <= order {
		return nil, fmt.Errorf("%w: %d rows for AR(%d)", ErrInsufficientData, rows, order)
	}

	x := mat.NewDense(rows, order, nil)
	target := mat.NewVecDense(rows, nil)
	for r := 0; r < rows; r++ {
		t := r + order
		target.SetVec(r, y[t])
		for k := 0; k < order; k++ {
			x.Set(r, k, y[t-1-k])
		}
	}

	var coef mat.VecDense
	if err := coef.SolveVec(x, target); err != nil {
		return nil, fmt.Errorf("ar least squares: %w", err)
	}

	phi := make([]float64, order)
	for k := range phi {
		phi[k] = coef.AtVec(k)
	}
	if !formulas.AllFinite(phi) {
		return nil, errors.New("ar coefficients are not finite")
	}
	return phi, nil
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
