// Package trend derives daily aggregates and trailing moving averages from a
// patient's submissions. Values are recomputed from the ledger on every call
// and never cached.
package trend

import (
	"cmp"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-sql/civil"
	"github.com/google/uuid"
)

// DayScore is the daily aggregate for one calendar day: the unweighted mean
// of that day's non-deleted scores and how many there were.
type DayScore struct {
	Day   civil.Date `json:"day"`
	Mean  float64    `json:"mean"`
	Count int        `json:"count"`
}

// ScoreSource yields daily aggregates for days in [from, to] that have at
// least one submission. Days without data are omitted.
type ScoreSource interface {
	DailyScores(ctx context.Context, patientID uuid.UUID, from, to civil.Date) ([]DayScore, error)
}

// Label names a window the way alerts record it, e.g. "7-day".
func Label(windowDays int) string {
	return fmt.Sprintf("%d-day", windowDays)
}

// WindowOf parses a label produced by Label back into its window length.
func WindowOf(label string) (int, bool) {
	n, ok := strings.CutSuffix(label, "-day")
	if !ok {
		return 0, false
	}
	days, err := strconv.Atoi(n)
	if err != nil || days <= 0 {
		return 0, false
	}
	return days, true
}

// CompareLabels orders window labels by window length. Unparseable labels
// sort after the rest, by text.
func CompareLabels(a, b string) int {
	wa, okA := WindowOf(a)
	wb, okB := WindowOf(b)
	switch {
	case okA && okB:
		return cmp.Compare(wa, wb)
	case okA:
		return -1
	case okB:
		return 1
	}
	return strings.Compare(a, b)
}

// WindowStart is the first day of the windowDays-long range ending on asOf.
func WindowStart(asOf civil.Date, windowDays int) civil.Date {
	return asOf.AddDays(-(windowDays - 1))
}

// Series is a patient's daily aggregates over a contiguous range, keyed by day.
type Series map[civil.Date]DayScore

func NewSeries(days []DayScore) Series {
	s := make(Series, len(days))
	for _, d := range days {
		if d.Count > 0 {
			s[d.Day] = d
		}
	}
	return s
}

// Daily returns the aggregate for day; ok is false when the day has no data.
func (s Series) Daily(day civil.Date) (DayScore, bool) {
	d, ok := s[day]
	return d, ok && d.Count > 0
}

// MovingAverage is the mean of the daily means over the windowDays ending on
// asOf. It is undefined when fewer than windowDays*minCoverage days in the
// window have data. The comparison uses real division, so a 7-day window at
// 0.5 needs 4 days.
func (s Series) MovingAverage(windowDays int, asOf civil.Date, minCoverage float64) (float64, bool) {
	if windowDays <= 0 {
		return 0, false
	}
	var sum float64
	var days int
	for d := WindowStart(asOf, windowDays); !d.After(asOf); d = d.AddDays(1) {
		if ds, ok := s.Daily(d); ok {
			sum += ds.Mean
			days++
		}
	}
	if days == 0 || float64(days) < float64(windowDays)*minCoverage {
		return 0, false
	}
	return sum / float64(days), true
}

// Calculator reads daily aggregates from a ScoreSource.
type Calculator struct {
	src         ScoreSource
	minCoverage float64
}

func NewCalculator(src ScoreSource, minCoverage float64) *Calculator {
	return &Calculator{src: src, minCoverage: minCoverage}
}

// DailyAverage returns the aggregate for one day. ok is false, with a nil
// error, when the day has no submissions.
func (c *Calculator) DailyAverage(ctx context.Context, patientID uuid.UUID, day civil.Date) (DayScore, bool, error) {
	days, err := c.src.DailyScores(ctx, patientID, day, day)
	if err != nil {
		return DayScore{}, false, err
	}
	d, ok := NewSeries(days).Daily(day)
	return d, ok, nil
}

// MovingAverage computes one window ending on asOf.
func (c *Calculator) MovingAverage(ctx context.Context, patientID uuid.UUID, windowDays int, asOf civil.Date) (float64, bool, error) {
	s, err := c.Load(ctx, patientID, asOf, windowDays)
	if err != nil {
		return 0, false, err
	}
	ma, ok := s.MovingAverage(windowDays, asOf, c.minCoverage)
	return ma, ok, nil
}

// Load fetches the span covering the largest window in one read so several
// windows can be evaluated against the same snapshot.
func (c *Calculator) Load(ctx context.Context, patientID uuid.UUID, asOf civil.Date, maxWindowDays int) (Series, error) {
	days, err := c.src.DailyScores(ctx, patientID, WindowStart(asOf, maxWindowDays), asOf)
	if err != nil {
		return nil, err
	}
	return NewSeries(days), nil
}

// MinCoverage is the fraction of a window that must have data.
func (c *Calculator) MinCoverage() float64 {
	return c.minCoverage
}
