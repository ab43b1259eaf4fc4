package scoreledger

import (
	"context"
	"time"

	"github.com/golang-sql/civil"
	"github.com/google/uuid"

	"github.com/Kaikai0Database/pleasure-monitoring-platform/internal/domain/trend"
)

type Repository interface {
	Create(ctx context.Context, s *Submission) error
	// GetByID returns apperr.ErrNotFound for an unknown id, deleted or not.
	GetByID(ctx context.Context, id uuid.UUID) (*Submission, error)
	// ListByPatient returns active or trashed rows, newest completion first.
	ListByPatient(ctx context.Context, patientID uuid.UUID, deleted bool, limit, offset int) ([]*Submission, int, error)
	SoftDelete(ctx context.Context, id uuid.UUID, reason string, at time.Time) error
	Restore(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	// PurgeDeletedBefore hard-deletes trashed rows deleted before cutoff.
	PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	// DayStats returns per-day statistics for days in [from, to] with active
	// data, oldest first.
	DayStats(ctx context.Context, patientID uuid.UUID, from, to civil.Date) ([]DayStat, error)
	// LatestDays returns each patient's most recent day with active data.
	LatestDays(ctx context.Context) ([]PatientDay, error)

	trend.ScoreSource
}
