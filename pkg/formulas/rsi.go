package formulas

import (
	"math"

	"github.com/markcheno/go-talib"
)

// RSI returns the latest Relative Strength Index over length periods,
// or nil when there are not enough closes.
func RSI(closes []float64, length int) *float64 {
	if length <= 0 || len(closes) < length+1 {
		return nil
	}

	rsi := talib.Rsi(closes, length)
	if len(rsi) == 0 {
		return nil
	}
	last := rsi[len(rsi)-1]
	if math.IsNaN(last) || math.IsInf(last, 0) {
		return nil
	}
	return &last
}
