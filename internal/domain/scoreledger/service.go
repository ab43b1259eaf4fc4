package scoreledger

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-sql/civil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Kaikai0Database/pleasure-monitoring-platform/internal/platform/apperr"
)

// Directory is the patient lookup the ledger needs.
type Directory interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	Location(ctx context.Context, id uuid.UUID) (*time.Location, error)
}

// Trigger re-evaluates alerts for a day whose aggregate just changed.
type Trigger interface {
	Reevaluate(ctx context.Context, patientID uuid.UUID, day civil.Date) error
}

const reevaluateTimeout = 10 * time.Second

type Service struct {
	repo      Repository
	patients  Directory
	trigger   Trigger
	validate  *validator.Validate
	retention time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(repo Repository, patients Directory, retentionDays int, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		patients:  patients,
		validate:  apperr.NewValidator(),
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		logger:    logger.With().Str("component", "scoreledger").Logger(),
		now:       time.Now,
	}
}

// SetTrigger attaches the alert re-evaluation hook. Without one, ledger
// writes do not touch alerts.
func (s *Service) SetTrigger(t Trigger) {
	s.trigger = t
}

// RecordSubmission stores a new submission, then re-evaluates its day. The
// evaluation is best effort: its failure is logged and the stored
// submission is still returned.
func (s *Service) RecordSubmission(ctx context.Context, patientID uuid.UUID, in SubmissionInput) (*Submission, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, apperr.FromValidator("invalid submission", err)
	}
	ok, err := s.patients.Exists(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFound("patient", patientID.String())
	}

	sub := &Submission{
		PatientID:   patientID,
		Score:       in.Score,
		MaxScore:    in.MaxScore,
		CompletedAt: s.now(),
	}
	if in.CompletedAt != nil {
		sub.CompletedAt = *in.CompletedAt
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, err
	}

	s.afterChange(ctx, sub)
	return sub, nil
}

func (s *Service) ListActive(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Submission, int, error) {
	return s.repo.ListByPatient(ctx, patientID, false, limit, offset)
}

func (s *Service) ListTrash(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Submission, int, error) {
	return s.repo.ListByPatient(ctx, patientID, true, limit, offset)
}

// owned loads a submission and checks it belongs to requester.
func (s *Service) owned(ctx context.Context, id, requester uuid.UUID) (*Submission, error) {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.PatientID != requester {
		return nil, apperr.PermissionDenied("submission belongs to another patient")
	}
	return sub, nil
}

// SoftDelete moves a submission to the trash. Deleting a trashed row is a
// no-op.
func (s *Service) SoftDelete(ctx context.Context, id, requester uuid.UUID, reason string) (*Submission, error) {
	sub, err := s.owned(ctx, id, requester)
	if err != nil {
		return nil, err
	}
	if sub.IsDeleted {
		return sub, nil
	}
	if reason == "" {
		reason = defaultDeleteReason
	}
	at := s.now()
	if err := s.repo.SoftDelete(ctx, id, reason, at); err != nil {
		return nil, err
	}
	sub.IsDeleted = true
	sub.DeletedAt = &at
	sub.DeleteReason = &reason

	s.afterChange(ctx, sub)
	return sub, nil
}

// Restore takes a submission out of the trash.
func (s *Service) Restore(ctx context.Context, id, requester uuid.UUID) (*Submission, error) {
	sub, err := s.owned(ctx, id, requester)
	if err != nil {
		return nil, err
	}
	if !sub.IsDeleted {
		return sub, nil
	}
	if err := s.repo.Restore(ctx, id); err != nil {
		return nil, err
	}
	sub.IsDeleted = false
	sub.DeletedAt = nil
	sub.DeleteReason = nil

	s.afterChange(ctx, sub)
	return sub, nil
}

// DeletePermanently removes a submission outright, from the trash or not.
func (s *Service) DeletePermanently(ctx context.Context, id, requester uuid.UUID) error {
	sub, err := s.owned(ctx, id, requester)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if !sub.IsDeleted {
		s.afterChange(ctx, sub)
	}
	return nil
}

// PurgeTrash hard-deletes submissions trashed longer than the retention
// window before now.
func (s *Service) PurgeTrash(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.repo.PurgeDeletedBefore(ctx, now.Add(-s.retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info().Int64("purged", n).Msg("trash purged")
	}
	return n, nil
}

// Statistics summarises the patient's active submissions per day over
// [from, to], with totals across the range.
func (s *Service) Statistics(ctx context.Context, patientID uuid.UUID, from, to civil.Date) (*Statistics, error) {
	ok, err := s.patients.Exists(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFound("patient", patientID.String())
	}
	days, err := s.repo.DayStats(ctx, patientID, from, to)
	if err != nil {
		return nil, err
	}

	st := &Statistics{PatientID: patientID, From: from, To: to, Days: days}
	if st.Days == nil {
		st.Days = []DayStat{}
	}
	var sum float64
	for i, d := range days {
		st.TotalCount += d.Count
		sum += d.Mean * float64(d.Count)
		if i == 0 {
			highest, lowest := d.Highest, d.Lowest
			st.HighestScore, st.LowestScore = &highest, &lowest
			continue
		}
		*st.HighestScore = max(*st.HighestScore, d.Highest)
		*st.LowestScore = min(*st.LowestScore, d.Lowest)
	}
	if st.TotalCount > 0 {
		avg := sum / float64(st.TotalCount)
		st.AverageScore = &avg
	}
	return st, nil
}

func (s *Service) LatestDays(ctx context.Context) ([]PatientDay, error) {
	return s.repo.LatestDays(ctx)
}

// DayOf is the patient's calendar day for t.
func (s *Service) DayOf(ctx context.Context, patientID uuid.UUID, t time.Time) (civil.Date, error) {
	loc, err := s.patients.Location(ctx, patientID)
	if err != nil {
		return civil.Date{}, err
	}
	return civil.DateOf(t.In(loc)), nil
}

// afterChange re-evaluates the submission's day. It runs detached from the
// caller's cancellation so a dropped client does not abort it.
func (s *Service) afterChange(ctx context.Context, sub *Submission) {
	if s.trigger == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reevaluateTimeout)
	defer cancel()

	log := s.logger.With().
		Str("patient_id", sub.PatientID.String()).
		Str("submission_id", sub.ID.String()).
		Logger()

	day, err := s.DayOf(ctx, sub.PatientID, sub.CompletedAt)
	if err != nil {
		log.Error().Err(err).Msg("resolve submission day")
		return
	}
	if err := s.trigger.Reevaluate(ctx, sub.PatientID, day); err != nil {
		log.Error().Err(err).Str("date", day.String()).Msg("alert evaluation failed")
	}
}
