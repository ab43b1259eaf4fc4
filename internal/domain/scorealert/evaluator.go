package scorealert

import (
	"context"
	"maps"
	"time"

	"github.com/golang-sql/civil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Kaikai0Database/pleasure-monitoring-platform/internal/domain/trend"
	"github.com/Kaikai0Database/pleasure-monitoring-platform/internal/platform/apperr"
	"github.com/Kaikai0Database/pleasure-monitoring-platform/internal/platform/metrics"
	"github.com/Kaikai0Database/pleasure-monitoring-platform/internal/platform/notify"
)

// Transactor runs fn in one transaction carried on the context passed to fn.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Directory resolves patients.
type Directory interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	Location(ctx context.Context, id uuid.UUID) (*time.Location, error)
}

// defaultPublishTimeout bounds event publishing on the request path.
const defaultPublishTimeout = 2 * time.Second

type mutation struct {
	kind   Kind
	action string
}

// Evaluator reconciles a patient's stored alerts for one day against what
// that day's data currently warrants.
type Evaluator struct {
	repo      Repository
	calc      *trend.Calculator
	patients  Directory
	tx        Transactor
	policy    Policy
	publisher notify.Publisher
	pubWait   time.Duration
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

type EvaluatorOption func(*Evaluator)

func WithPublisher(p notify.Publisher) EvaluatorOption {
	return func(e *Evaluator) { e.publisher = p }
}

// WithPublishTimeout caps how long an evaluation waits on the publisher.
func WithPublishTimeout(d time.Duration) EvaluatorOption {
	return func(e *Evaluator) {
		if d > 0 {
			e.pubWait = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) EvaluatorOption {
	return func(e *Evaluator) { e.metrics = m }
}

func WithLogger(l zerolog.Logger) EvaluatorOption {
	return func(e *Evaluator) { e.logger = l }
}

func NewEvaluator(repo Repository, scores trend.ScoreSource, patients Directory, tx Transactor, policy Policy, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		repo:     repo,
		calc:     trend.NewCalculator(scores, policy.MinCoverageFraction),
		patients: patients,
		tx:       tx,
		policy:   policy,
		pubWait:  defaultPublishTimeout,
		metrics:  metrics.Nop(),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With().Str("component", "alert-evaluator").Logger()
	return e
}

func (e *Evaluator) Policy() Policy {
	return e.policy
}

// Evaluate reconciles the high and low alerts of patientID on day and
// returns the alerts it created. Updates and deletions are applied but not
// returned. A day without enough submissions is a no-op with no error.
func (e *Evaluator) Evaluate(ctx context.Context, patientID uuid.UUID, day civil.Date) ([]*Alert, error) {
	start := time.Now()
	ok, err := e.patients.Exists(ctx, patientID)
	if err != nil {
		e.metrics.Evaluations.WithLabelValues(metrics.OutcomeFailed).Inc()
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFound("patient", patientID.String())
	}

	var (
		created   []*Alert
		mutations []mutation
		autoRead  int64
		outcome   string
	)
	err = e.tx.InTx(ctx, func(ctx context.Context) error {
		created, mutations, autoRead = nil, nil, 0

		if err := e.repo.LockPatient(ctx, patientID); err != nil {
			return err
		}
		series, err := e.calc.Load(ctx, patientID, day, e.policy.maxWindow())
		if err != nil {
			return err
		}
		det, ok := e.policy.Detect(series, day)
		if !ok {
			outcome = metrics.OutcomeSkippedNoData
			return nil
		}
		if det.Count < e.policy.MinSubmissionsPerDay {
			outcome = metrics.OutcomeSkippedInsufficient
			return nil
		}
		outcome = metrics.OutcomeEvaluated

		if autoRead, err = e.repo.MarkReadBefore(ctx, patientID, day); err != nil {
			return err
		}
		existing, err := e.repo.ListForDay(ctx, patientID, day)
		if err != nil {
			return err
		}
		for _, kind := range Kinds {
			a, muts, err := e.reconcile(ctx, patientID, day, kind, det, slot(existing, kind))
			if err != nil {
				return err
			}
			mutations = append(mutations, muts...)
			if a != nil {
				created = append(created, a)
			}
		}
		return nil
	})
	e.metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		e.metrics.Evaluations.WithLabelValues(metrics.OutcomeFailed).Inc()
		return nil, err
	}

	e.metrics.Evaluations.WithLabelValues(outcome).Inc()
	e.metrics.AlertsAutoRead.Add(float64(autoRead))
	for _, m := range mutations {
		e.metrics.AlertMutations.WithLabelValues(string(m.kind), m.action).Inc()
	}
	e.publish(ctx, created)
	return created, nil
}

// Reevaluate discards the created alerts. It lets the ledger trigger
// evaluation without depending on this package.
func (e *Evaluator) Reevaluate(ctx context.Context, patientID uuid.UUID, day civil.Date) error {
	_, err := e.Evaluate(ctx, patientID, day)
	return err
}

func slot(existing []*Alert, kind Kind) []*Alert {
	var out []*Alert
	for _, a := range existing {
		if a.AlertKind == kind {
			out = append(out, a)
		}
	}
	return out
}

// reconcile brings one kind's slot in line with det. Rows beyond the first
// are removed so the slot never holds more than one alert. An alert is
// rewritten, and reset to unread, only when its value or lines changed.
func (e *Evaluator) reconcile(ctx context.Context, patientID uuid.UUID, day civil.Date, kind Kind, det Detection, current []*Alert) (*Alert, []mutation, error) {
	lines := det.Lines[kind]
	var muts []mutation

	keep := 0
	if len(lines) > 0 {
		keep = 1
	}
	for _, extra := range current[min(keep, len(current)):] {
		if err := e.repo.Delete(ctx, extra.ID); err != nil {
			return nil, nil, err
		}
		muts = append(muts, mutation{kind, metrics.ActionDeleted})
	}
	if len(lines) == 0 {
		return nil, muts, nil
	}

	daily := round1(det.DailyAverage)
	if len(current) > 0 {
		a := current[0]
		// Unchanged values keep the read flag; only a changed condition
		// surfaces the alert again.
		if a.DailyAverage == daily && maps.Equal(a.ExceededLines, lines) {
			return nil, muts, nil
		}
		a.DailyAverage = daily
		a.ExceededLines = lines
		a.IsRead = false
		if err := e.repo.Update(ctx, a); err != nil {
			return nil, nil, err
		}
		return nil, append(muts, mutation{kind, metrics.ActionUpdated}), nil
	}

	a := &Alert{
		PatientID:     patientID,
		AlertDate:     day,
		AlertKind:     kind,
		DailyAverage:  daily,
		ExceededLines: lines,
	}
	if err := e.repo.Create(ctx, a); err != nil {
		return nil, nil, err
	}
	return a, append(muts, mutation{kind, metrics.ActionCreated}), nil
}

// publish emits created alerts after commit. A failed or slow publish
// leaves the alerts in place and is only logged. The wait is bounded by
// pubWait even when the caller's context has no deadline.
func (e *Evaluator) publish(ctx context.Context, created []*Alert) {
	if e.publisher == nil || len(created) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.pubWait)
	defer cancel()
	events := make([]notify.AlertEvent, 0, len(created))
	for _, a := range created {
		events = append(events, a.event())
	}
	if err := e.publisher.Publish(ctx, events...); err != nil {
		e.logger.Error().Err(err).
			Str("patient_id", created[0].PatientID.String()).
			Int("alerts", len(created)).
			Msg("publish alert events")
	}
}
