package scorealert

import (
	"context"

	"github.com/golang-sql/civil"
	"github.com/google/uuid"
)

type Repository interface {
	// LockPatient serialises evaluations of one patient until the
	// surrounding transaction ends.
	LockPatient(ctx context.Context, patientID uuid.UUID) error
	// MarkReadBefore acknowledges unread alerts dated strictly before day.
	MarkReadBefore(ctx context.Context, patientID uuid.UUID, day civil.Date) (int64, error)
	// ListForDay returns every alert of the patient on day, oldest first.
	ListForDay(ctx context.Context, patientID uuid.UUID, day civil.Date) ([]*Alert, error)
	Create(ctx context.Context, a *Alert) error
	Update(ctx context.Context, a *Alert) error
	Delete(ctx context.Context, id uuid.UUID) error

	GetByID(ctx context.Context, id uuid.UUID) (*Alert, error)
	// ListByPatient orders by alert_date, newest first.
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Alert, int, error)
	UnreadCount(ctx context.Context, patientID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, id uuid.UUID) error
	MarkAllRead(ctx context.Context, patientID uuid.UUID) (int64, error)
	// ListUnread returns unread alerts across all patients.
	ListUnread(ctx context.Context) ([]*Alert, error)
}
