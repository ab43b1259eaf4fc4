package scorealert

import (
	"context"
	"errors"
	"testing"
)

func TestTrendView_SparseHistory(t *testing.T) {
	f := newFixture(t, ProductionPolicy())
	f.history(day31, 4, 30)
	view := NewTrendView(f.scores, f.eval)

	got, err := view.Trend(context.Background(), f.pid, day31.AddDays(-6), day31)
	if err != nil {
		t.Fatalf("Trend() error: %v", err)
	}
	if len(got.Points) != 4 || got.TotalCount != 12 || *got.AverageScore != 30 {
		t.Fatalf("unexpected trend %+v", got)
	}
	if got.MinCoverage != 0.5 {
		t.Errorf("expected policy coverage 0.5, got %v", got.MinCoverage)
	}

	first, last := got.Points[0], got.Points[3]
	if first.MovingAverages["7-day"] != nil {
		t.Errorf("expected no 7-day line with one day of data, got %v", *first.MovingAverages["7-day"])
	}
	if ma := last.MovingAverages["7-day"]; ma == nil || *ma != 30 {
		t.Errorf("expected 7-day line 30 once four days exist, got %v", ma)
	}
	if last.Percentage != 50 || last.Score != 30 || last.Count != 3 {
		t.Errorf("unexpected last point %+v", last)
	}

	// The range ends on a day without submissions; the lines still show.
	asOf := got.AsOf
	if asOf.Date != day31 || asOf.DailyAverage != nil || asOf.Count != 0 {
		t.Errorf("unexpected baseline %+v", asOf)
	}
	if ma := asOf.MovingAverages["7-day"]; ma == nil || *ma != 30 {
		t.Errorf("expected 7-day baseline 30, got %v", ma)
	}
	if asOf.MovingAverages["14-day"] != nil {
		t.Error("expected no 14-day baseline with four days of data")
	}
}

func TestTrendView_EmptyRange(t *testing.T) {
	f := newFixture(t, ProductionPolicy())
	view := NewTrendView(f.scores, f.eval)

	got, err := view.Trend(context.Background(), f.pid, day31, day31)
	if err != nil {
		t.Fatalf("Trend() error: %v", err)
	}
	if got.Points == nil || len(got.Points) != 0 || got.AverageScore != nil {
		t.Errorf("expected empty chart, got %+v", got)
	}
}

func TestTrendView_ScoreReadFailure(t *testing.T) {
	f := newFixture(t, ProductionPolicy())
	f.scores.err = errInjected
	view := NewTrendView(f.scores, f.eval)

	if _, err := view.Trend(context.Background(), f.pid, day31, day31); !errors.Is(err, errInjected) {
		t.Errorf("expected injected error, got %v", err)
	}
}
