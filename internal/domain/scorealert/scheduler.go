package scorealert

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Kaikai0Database/pleasure-monitoring-platform/internal/platform/metrics"
)

// Purger removes trashed submissions past retention.
type Purger interface {
	PurgeTrash(ctx context.Context, now time.Time) (int64, error)
}

// Scheduler runs the trash purge and the reconciliation sweep on tickers.
// A zero interval disables that job.
type Scheduler struct {
	purger        Purger
	sweeper       *Sweeper
	PurgeInterval time.Duration
	SweepInterval time.Duration

	metrics *metrics.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

func NewScheduler(purger Purger, sweeper *Sweeper, purgeEvery, sweepEvery time.Duration, m *metrics.Metrics, logger zerolog.Logger) *Scheduler {
	if m == nil {
		m = metrics.Nop()
	}
	return &Scheduler{
		purger:        purger,
		sweeper:       sweeper,
		PurgeInterval: purgeEvery,
		SweepInterval: sweepEvery,
		metrics:       m,
		logger:        logger.With().Str("component", "scheduler").Logger(),
		now:           time.Now,
	}
}

// Start purges once, then loops until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	if s.PurgeInterval > 0 {
		s.purge(ctx)
	}

	purgeC, stopPurge := tick(s.PurgeInterval)
	sweepC, stopSweep := tick(s.SweepInterval)
	defer stopPurge()
	defer stopSweep()

	for {
		select {
		case <-ctx.Done():
			return
		case <-purgeC:
			s.purge(ctx)
		case <-sweepC:
			s.sweep(ctx)
		}
	}
}

// tick returns a nil channel, which never fires, for a zero interval.
func tick(d time.Duration) (<-chan time.Time, func()) {
	if d <= 0 {
		return nil, func() {}
	}
	t := time.NewTicker(d)
	return t.C, t.Stop
}

func (s *Scheduler) purge(ctx context.Context) {
	n, err := s.purger.PurgeTrash(ctx, s.now())
	if err != nil {
		s.logger.Error().Err(err).Msg("trash purge failed")
		return
	}
	s.metrics.SubmissionsPurged.Add(float64(n))
}

func (s *Scheduler) sweep(ctx context.Context) {
	if _, err := s.sweeper.Run(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error().Err(err).Msg("reconciliation sweep failed")
	}
}
