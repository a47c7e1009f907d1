package domain

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHolding_Validate(t *testing.T) {
	tests := []struct {
		name    string
		holding Holding
		wantErr bool
	}{
		{"valid", Holding{Symbol: "ITC.NS", Quantity: 10, AvgCost: 380.36}, false},
		{"blank symbol", Holding{Symbol: " ", Quantity: 10, AvgCost: 1}, true},
		{"zero quantity", Holding{Symbol: "ITC.NS", Quantity: 0, AvgCost: 1}, true},
		{"negative cost", Holding{Symbol: "ITC.NS", Quantity: 1, AvgCost: -1}, true},
		{"NaN quantity", Holding{Symbol: "ITC.NS", Quantity: math.NaN(), AvgCost: 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.holding.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidHolding)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMergeHoldings(t *testing.T) {
	merged := MergeHoldings([]Holding{
		{Symbol: "ITC.NS", Quantity: 10, AvgCost: 300},
		{Symbol: "BEL.NS", Quantity: 20, AvgCost: 271.66},
		{Symbol: "ITC.NS", Quantity: 30, AvgCost: 400},
	})

	require.Len(t, merged, 2)
	assert.Equal(t, "ITC.NS", merged[0].Symbol)
	assert.Equal(t, 40.0, merged[0].Quantity)
	assert.InDelta(t, 375.0, merged[0].AvgCost, 1e-9)
	assert.Equal(t, Holding{Symbol: "BEL.NS", Quantity: 20, AvgCost: 271.66}, merged[1])
}

func TestHistoricalSeries_Accessors(t *testing.T) {
	day := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := HistoricalSeries{Symbol: "BEL.NS", Bars: []PriceBar{
		{Date: day, Close: 100},
		{Date: day.AddDate(0, 0, 1), Close: 101},
	}}

	assert.False(t, s.IsEmpty())
	assert.Equal(t, []float64{100, 101}, s.Closes())
	assert.Equal(t, day, s.Dates()[0])

	last, ok := s.LastClose()
	assert.True(t, ok)
	assert.Equal(t, 101.0, last)

	empty := EmptySeries("X")
	assert.True(t, empty.IsEmpty())
	assert.NotNil(t, empty.Bars)
	_, ok = empty.LastClose()
	assert.False(t, ok)
}

func TestFloat_DropsNonFinite(t *testing.T) {
	assert.Nil(t, Float(math.NaN()))
	assert.Nil(t, Float(math.Inf(-1)))
	require.NotNil(t, Float(1.5))
	assert.Equal(t, 1.5, *Float(1.5))
}

func TestForecastResult_Usable(t *testing.T) {
	avg := 0.01
	ret := 0.001

	assert.True(t, ForecastResult{ExpectedReturn: &ret, VolatilityForecast: &VolatilityForecast{Average: &avg}}.Usable())
	assert.False(t, ForecastResult{Error: "no valid returns"}.Usable())
	assert.False(t, ForecastResult{ExpectedReturn: &ret, VolatilityForecast: &VolatilityForecast{}}.Usable())
}

func TestHoldingAnalysis_JSONIsFlat(t *testing.T) {
	a := HoldingAnalysis{
		Holding:      Holding{Symbol: "RVNL.NS", Quantity: 32, AvgCost: 357.06},
		CurrentPrice: 329.45,
	}

	raw, err := json.Marshal(a)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "RVNL.NS", decoded["symbol"])
	assert.Equal(t, 357.06, decoded["avgCost"])
	assert.Contains(t, decoded, "sharpeRatio")
	assert.Nil(t, decoded["sharpeRatio"])
}

func TestWarning_String(t *testing.T) {
	w := NewWarning(WarningDataUnavailable, "marketdata", "ITC.NS", "fetch failed after %d attempts", 3)
	assert.Equal(t, "[marketdata] data_unavailable ITC.NS: fetch failed after 3 attempts", w.String())

	w = NewWarning(WarningBudgetExceeded, "report", "", "over budget")
	assert.Equal(t, "[report] budget_exceeded: over budget", w.String())
}
