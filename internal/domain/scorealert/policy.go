package scorealert

import (
	"fmt"
	"math"

	"github.com/golang-sql/civil"

	"github.com/Kaikai0Database/pleasure-monitoring-platform/internal/domain/trend"
)

// Policy holds the evaluation thresholds. Production and relaxed modes differ
// only in MinSubmissionsPerDay.
type Policy struct {
	MinSubmissionsPerDay int
	// MinCoverageFraction is the share of a window that needs data before
	// its moving average counts as a baseline.
	MinCoverageFraction float64
	// LowMargin bounds how far below a moving average the daily average may
	// sit and still raise a low alert.
	LowMargin float64
	Windows   []int
}

func ProductionPolicy() Policy {
	return Policy{
		MinSubmissionsPerDay: 3,
		MinCoverageFraction:  0.5,
		LowMargin:            3,
		Windows:              []int{7, 14, 30},
	}
}

func RelaxedPolicy() Policy {
	p := ProductionPolicy()
	p.MinSubmissionsPerDay = 1
	return p
}

// PolicyByName resolves "production" or "relaxed".
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "production", "":
		return ProductionPolicy(), nil
	case "relaxed":
		return RelaxedPolicy(), nil
	default:
		return Policy{}, fmt.Errorf("unknown alert policy %q", name)
	}
}

func (p Policy) maxWindow() int {
	longest := 0
	for _, w := range p.Windows {
		longest = max(longest, w)
	}
	return longest
}

// Detection is what one day's data says about each alert slot.
type Detection struct {
	DailyAverage float64
	Count        int
	Lines        map[Kind]map[string]float64
}

// Detect compares the daily average on day against every window's moving
// average. ok is false when the day has no data. Comparisons use unrounded
// values; recorded values are rounded to one decimal.
func (p Policy) Detect(s trend.Series, day civil.Date) (Detection, bool) {
	today, ok := s.Daily(day)
	if !ok {
		return Detection{}, false
	}
	d := Detection{
		DailyAverage: today.Mean,
		Count:        today.Count,
		Lines: map[Kind]map[string]float64{
			KindHigh: {},
			KindLow:  {},
		},
	}
	for _, w := range p.Windows {
		ma, ok := s.MovingAverage(w, day, p.MinCoverageFraction)
		if !ok {
			continue
		}
		switch gap := ma - today.Mean; {
		case today.Mean > ma:
			d.Lines[KindHigh][trend.Label(w)] = round1(ma)
		case gap > 0 && gap <= p.LowMargin:
			d.Lines[KindLow][trend.Label(w)] = round1(ma)
		}
	}
	return d, true
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
