package formulas

import "math"

// ValueAtRisk returns the historical VaR at the given confidence (e.g. 0.95),
// i.e. the (1-confidence) percentile of returns.
func ValueAtRisk(returns []float64, confidence float64) float64 {
	if len(returns) == 0 {
		return math.NaN()
	}
	return Percentile(returns, (1-confidence)*100)
}

// ConditionalVaR is the mean of all returns at or below the VaR threshold.
//
// Args:
//   - returns: Historical or simulated returns
//   - confidence: Confidence level (e.g., 0.95 for 95%)
//
// Returns:
//   - CVaR value (negative for losses), NaN for empty input
func ConditionalVaR(returns []float64, confidence float64) float64 {
	if len(returns) == 0 {
		return math.NaN()
	}

	threshold := ValueAtRisk(returns, confidence)
	sum := 0.0
	count := 0
	for _, r := range returns {
		if r <= threshold {
			sum += r
			count++
		}
	}
	if count == 0 {
		return threshold
	}
	return sum / float64(count)
}

// MaxDrawdown returns min(cumulative/runningMax - 1) over the compounded
// return path. Always <= 0.
func MaxDrawdown(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}

	cumulative := 1.0
	peak := math.Inf(-1)
	worst := 0.0
	for _, r := range returns {
		cumulative *= 1 + r
		if cumulative > peak {
			peak = cumulative
		}
		if peak > 0 {
			if dd := cumulative/peak - 1; dd < worst {
				worst = dd
			}
		}
	}
	return worst
}

// CumulativeReturn returns last/first - 1, or 0 when first is zero
func CumulativeReturn(prices []float64) float64 {
	if len(prices) == 0 || prices[0] == 0 {
		return 0
	}
	return prices[len(prices)-1]/prices[0] - 1
}
