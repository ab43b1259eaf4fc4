package scorealert

import (
	"context"
	"sync"

	"github.com/golang-sql/civil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Kaikai0Database/pleasure-monitoring-platform/internal/domain/scoreledger"
	"github.com/Kaikai0Database/pleasure-monitoring-platform/internal/platform/metrics"
)

// LatestDaySource lists each patient's most recent day with data.
type LatestDaySource interface {
	LatestDays(ctx context.Context) ([]scoreledger.PatientDay, error)
}

type evaluateFunc func(ctx context.Context, patientID uuid.UUID, day civil.Date) ([]*Alert, error)

// Sweeper re-evaluates every patient's latest day. It repairs alerts left
// stale by a failed submission-time evaluation.
type Sweeper struct {
	days        LatestDaySource
	evaluate    evaluateFunc
	concurrency int
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

func NewSweeper(days LatestDaySource, eval *Evaluator, concurrency int, m *metrics.Metrics, logger zerolog.Logger) *Sweeper {
	if concurrency < 1 {
		concurrency = 1
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &Sweeper{
		days:        days,
		evaluate:    eval.Evaluate,
		concurrency: concurrency,
		metrics:     m,
		logger:      logger.With().Str("component", "alert-sweep").Logger(),
	}
}

// Run evaluates patients in parallel, at most concurrency at a time. A
// failing patient is logged and counted; only listing the patients or
// cancellation fails the sweep.
func (s *Sweeper) Run(ctx context.Context) (SweepResult, error) {
	days, err := s.days.LatestDays(ctx)
	if err != nil {
		return SweepResult{}, err
	}

	var (
		mu  sync.Mutex
		res = SweepResult{Patients: len(days)}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, pd := range days {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			created, err := s.evaluate(gctx, pd.PatientID, pd.Day)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed++
				s.metrics.SweepPatients.WithLabelValues("failed").Inc()
				s.logger.Error().Err(err).
					Str("patient_id", pd.PatientID.String()).
					Str("date", pd.Day.String()).
					Msg("sweep evaluation failed")
				return nil
			}
			res.Created += len(created)
			s.metrics.SweepPatients.WithLabelValues("ok").Inc()
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return res, err
	}

	s.logger.Info().
		Int("patients", res.Patients).
		Int("created", res.Created).
		Int("failed", res.Failed).
		Msg("sweep complete")
	return res, nil
}
