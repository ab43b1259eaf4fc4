package scorealert

import (
	"context"
	"math"

	"github.com/golang-sql/civil"
	"github.com/google/uuid"

	"github.com/Kaikai0Database/pleasure-monitoring-platform/internal/domain/scoreledger"
	"github.com/Kaikai0Database/pleasure-monitoring-platform/internal/domain/trend"
	"github.com/Kaikai0Database/pleasure-monitoring-platform/internal/platform/apperr"
)

const (
	defaultTrendDays = 30
	maxTrendDays     = 366
)

// StatisticsSource reads a patient's per-day submission statistics.
type StatisticsSource interface {
	Statistics(ctx context.Context, patientID uuid.UUID, from, to civil.Date) (*scoreledger.Statistics, error)
}

// TrendPoint is one day with data, with the trailing averages as of that day.
// A window without enough coverage is null.
type TrendPoint struct {
	Date           civil.Date          `json:"date"`
	Score          float64             `json:"score"`
	Count          int                 `json:"count"`
	MaxScore       int                 `json:"maxScore"`
	Percentage     int                 `json:"percentage"`
	MovingAverages map[string]*float64 `json:"movingAverages"`
}

// Baseline is what an evaluation of Date would compare against.
type Baseline struct {
	Date           civil.Date          `json:"date"`
	DailyAverage   *float64            `json:"dailyAverage"`
	Count          int                 `json:"count"`
	MovingAverages map[string]*float64 `json:"movingAverages"`
}

type PatientTrend struct {
	PatientID    uuid.UUID    `json:"patientId"`
	From         civil.Date   `json:"from"`
	To           civil.Date   `json:"to"`
	MinCoverage  float64      `json:"minCoverage"`
	TotalCount   int          `json:"totalCount"`
	AverageScore *float64     `json:"averageScore"`
	HighestScore *int         `json:"highestScore"`
	LowestScore  *int         `json:"lowestScore"`
	Points       []TrendPoint `json:"points"`
	AsOf         Baseline     `json:"asOf"`
}

// TrendView builds the staff chart of daily scores against the evaluator's
// moving averages.
type TrendView struct {
	stats   StatisticsSource
	calc    *trend.Calculator
	windows []int
}

func NewTrendView(stats StatisticsSource, eval *Evaluator) *TrendView {
	return &TrendView{stats: stats, calc: eval.calc, windows: eval.policy.Windows}
}

// Trend charts [from, to]. The averages use the same windows and coverage
// as evaluation, so a point above its line is a day that raised a high alert.
func (v *TrendView) Trend(ctx context.Context, patientID uuid.UUID, from, to civil.Date) (*PatientTrend, error) {
	if to.Before(from) {
		return nil, apperr.Validation("invalid range", map[string]string{"from": "must not be after to"})
	}
	span := to.DaysSince(from) + 1
	if span > maxTrendDays {
		return nil, apperr.Validation("invalid range", map[string]string{"to": "range must be at most 366 days"})
	}

	st, err := v.stats.Statistics(ctx, patientID, from, to)
	if err != nil {
		return nil, err
	}
	longest := 0
	for _, w := range v.windows {
		longest = max(longest, w)
	}
	series, err := v.calc.Load(ctx, patientID, to, span+longest-1)
	if err != nil {
		return nil, err
	}

	out := &PatientTrend{
		PatientID:    patientID,
		From:         from,
		To:           to,
		MinCoverage:  v.calc.MinCoverage(),
		TotalCount:   st.TotalCount,
		AverageScore: roundPtr(st.AverageScore, round2),
		HighestScore: st.HighestScore,
		LowestScore:  st.LowestScore,
		Points:       make([]TrendPoint, 0, len(st.Days)),
	}
	for _, d := range st.Days {
		lines := make(map[string]*float64, len(v.windows))
		for _, w := range v.windows {
			if ma, ok := series.MovingAverage(w, d.Day, v.calc.MinCoverage()); ok {
				lines[trend.Label(w)] = roundPtr(&ma, round1)
			} else {
				lines[trend.Label(w)] = nil
			}
		}
		out.Points = append(out.Points, TrendPoint{
			Date:           d.Day,
			Score:          round2(d.Mean),
			Count:          d.Count,
			MaxScore:       d.MaxScore,
			Percentage:     d.Percentage(),
			MovingAverages: lines,
		})
	}

	if out.AsOf, err = v.baseline(ctx, patientID, to); err != nil {
		return nil, err
	}
	return out, nil
}

// baseline reads the range end afresh, so it also reports the lines on a
// day without submissions.
func (v *TrendView) baseline(ctx context.Context, patientID uuid.UUID, day civil.Date) (Baseline, error) {
	b := Baseline{Date: day, MovingAverages: make(map[string]*float64, len(v.windows))}
	ds, ok, err := v.calc.DailyAverage(ctx, patientID, day)
	if err != nil {
		return Baseline{}, err
	}
	if ok {
		b.DailyAverage = roundPtr(&ds.Mean, round1)
		b.Count = ds.Count
	}
	for _, w := range v.windows {
		ma, ok, err := v.calc.MovingAverage(ctx, patientID, w, day)
		if err != nil {
			return Baseline{}, err
		}
		b.MovingAverages[trend.Label(w)] = nil
		if ok {
			b.MovingAverages[trend.Label(w)] = roundPtr(&ma, round1)
		}
	}
	return b, nil
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

func roundPtr(x *float64, round func(float64) float64) *float64 {
	if x == nil {
		return nil
	}
	r := round(*x)
	return &r
}
