package scorealert

import (
	"context"
	"errors"
	"time"

	"github.com/golang-sql/civil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Kaikai0Database/pleasure-monitoring-platform/internal/platform/apperr"
	"github.com/Kaikai0Database/pleasure-monitoring-platform/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const alertCols = `id, patient_id, alert_date, alert_kind, daily_average,
	exceeded_lines, is_read, created_at, updated_at`

func scanAlert(row pgx.Row) (*Alert, error) {
	var a Alert
	var day time.Time
	var kind string
	err := row.Scan(&a.ID, &a.PatientID, &day, &kind, &a.DailyAverage,
		&a.ExceededLines, &a.IsRead, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.AlertDate = db.DateOf(day)
	a.AlertKind = Kind(kind)
	if a.ExceededLines == nil {
		a.ExceededLines = map[string]float64{}
	}
	return &a, nil
}

func collectAlerts(rows pgx.Rows) ([]*Alert, error) {
	defer rows.Close()
	var out []*Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, apperr.Persistence(err)
		}
		out = append(out, a)
	}
	return out, apperr.Persistence(rows.Err())
}

// LockPatient takes a transaction-scoped advisory lock. Outside a
// transaction it would be released immediately, so callers run it in InTx.
func (r *repoPG) LockPatient(ctx context.Context, patientID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, patientID.String())
	return apperr.Persistence(err)
}

func (r *repoPG) MarkReadBefore(ctx context.Context, patientID uuid.UUID, day civil.Date) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE score_alert SET is_read = TRUE, updated_at = NOW()
		WHERE patient_id = $1 AND is_read = FALSE AND alert_date < $2::date`,
		patientID, db.DateArg(day))
	if err != nil {
		return 0, apperr.Persistence(err)
	}
	return tag.RowsAffected(), nil
}

func (r *repoPG) ListForDay(ctx context.Context, patientID uuid.UUID, day civil.Date) ([]*Alert, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+alertCols+` FROM score_alert
		WHERE patient_id = $1 AND alert_date = $2::date
		ORDER BY created_at, id`, patientID, db.DateArg(day))
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return collectAlerts(rows)
}

func (r *repoPG) Create(ctx context.Context, a *Alert) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO score_alert (id, patient_id, alert_date, alert_kind, daily_average, exceeded_lines, is_read)
		VALUES ($1, $2, $3::date, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, db.DateArg(a.AlertDate), string(a.AlertKind), a.DailyAverage,
		a.ExceededLines, a.IsRead).Scan(&a.CreatedAt, &a.UpdatedAt)
	return apperr.Persistence(err)
}

func (r *repoPG) Update(ctx context.Context, a *Alert) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE score_alert
		SET daily_average = $2, exceeded_lines = $3, is_read = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.DailyAverage, a.ExceededLines, a.IsRead).Scan(&a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("alert", a.ID.String())
	}
	return apperr.Persistence(err)
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM score_alert WHERE id = $1`, id)
	return apperr.Persistence(err)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Alert, error) {
	a, err := scanAlert(r.conn(ctx).QueryRow(ctx,
		`SELECT `+alertCols+` FROM score_alert WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("alert", id.String())
	}
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return a, nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Alert, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM score_alert WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, apperr.Persistence(err)
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+alertCols+` FROM score_alert
		WHERE patient_id = $1
		ORDER BY alert_date DESC, created_at DESC
		LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, apperr.Persistence(err)
	}
	items, err := collectAlerts(rows)
	return items, total, err
}

func (r *repoPG) UnreadCount(ctx context.Context, patientID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM score_alert WHERE patient_id = $1 AND is_read = FALSE`,
		patientID).Scan(&n)
	return n, apperr.Persistence(err)
}

func (r *repoPG) MarkRead(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE score_alert SET is_read = TRUE, updated_at = NOW()
		WHERE id = $1 AND is_read = FALSE`, id)
	return apperr.Persistence(err)
}

func (r *repoPG) MarkAllRead(ctx context.Context, patientID uuid.UUID) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE score_alert SET is_read = TRUE, updated_at = NOW()
		WHERE patient_id = $1 AND is_read = FALSE`, patientID)
	if err != nil {
		return 0, apperr.Persistence(err)
	}
	return tag.RowsAffected(), nil
}

func (r *repoPG) ListUnread(ctx context.Context) ([]*Alert, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+alertCols+` FROM score_alert
		WHERE is_read = FALSE
		ORDER BY patient_id, alert_date DESC`)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return collectAlerts(rows)
}
