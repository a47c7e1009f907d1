package marketdata

import (
	"math"
	"sort"
	"time"

	"github.com/aristath/optiwealth/internal/domain"
)

// TrailingWindow returns a day-aligned [start, end] window ending on now's date.
// Aligning to whole days keeps memo and cache keys stable within a session.
func TrailingWindow(now time.Time, days int) (time.Time, time.Time) {
	y, m, d := now.UTC().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	end := today.Add(24*time.Hour - time.Nanosecond)
	return today.AddDate(0, 0, -days), end
}

// CleanBars sorts bars by date, keeps the last bar per calendar day, drops
// bars without a usable close and drops bars outside [start, end].
func CleanBars(bars []domain.PriceBar, start, end time.Time) []domain.PriceBar {
	filtered := make([]domain.PriceBar, 0, len(bars))
	for _, b := range bars {
		if math.IsNaN(b.Close) || math.IsInf(b.Close, 0) || b.Close <= 0 {
			continue
		}
		if !start.IsZero() && b.Date.Before(start) {
			continue
		}
		if !end.IsZero() && b.Date.After(end) {
			continue
		}
		filtered = append(filtered, b)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Date.Before(filtered[j].Date)
	})

	out := filtered[:0]
	for _, b := range filtered {
		if n := len(out); n > 0 && sameDay(out[n-1].Date, b.Date) {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
