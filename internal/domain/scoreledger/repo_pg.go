package scoreledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-sql/civil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Kaikai0Database/pleasure-monitoring-platform/internal/domain/trend"
	"github.com/Kaikai0Database/pleasure-monitoring-platform/internal/platform/apperr"
	"github.com/Kaikai0Database/pleasure-monitoring-platform/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
	// zone used to group days for patients without a timezone
	defaultTZ string
}

func NewRepoPG(pool *pgxpool.Pool, defaultTZ string) Repository {
	if defaultTZ == "" {
		defaultTZ = "UTC"
	}
	return &repoPG{pool: pool, defaultTZ: defaultTZ}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const submissionCols = `id, patient_id, score, max_score, completed_at,
	is_deleted, deleted_at, delete_reason, created_at`

// localDay is the calendar day of completed_at in the patient's zone.
const localDay = `(s.completed_at AT TIME ZONE COALESCE(NULLIF(p.timezone, ''), $%d))::date`

func sprintfDay(tzArg int) string {
	return fmt.Sprintf(localDay, tzArg)
}

func scanSubmission(row pgx.Row) (*Submission, error) {
	var s Submission
	err := row.Scan(&s.ID, &s.PatientID, &s.Score, &s.MaxScore, &s.CompletedAt,
		&s.IsDeleted, &s.DeletedAt, &s.DeleteReason, &s.CreatedAt)
	return &s, err
}

func (r *repoPG) Create(ctx context.Context, s *Submission) error {
	s.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO assessment_submission (id, patient_id, score, max_score, completed_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		s.ID, s.PatientID, s.Score, s.MaxScore, s.CompletedAt).Scan(&s.CreatedAt)
	return apperr.Persistence(err)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Submission, error) {
	s, err := scanSubmission(r.conn(ctx).QueryRow(ctx,
		`SELECT `+submissionCols+` FROM assessment_submission WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("submission", id.String())
	}
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return s, nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, deleted bool, limit, offset int) ([]*Submission, int, error) {
	order := `completed_at DESC`
	if deleted {
		order = `deleted_at DESC`
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM assessment_submission WHERE patient_id = $1 AND is_deleted = $2`,
		patientID, deleted).Scan(&total); err != nil {
		return nil, 0, apperr.Persistence(err)
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+submissionCols+` FROM assessment_submission
		WHERE patient_id = $1 AND is_deleted = $2
		ORDER BY `+order+`, id LIMIT $3 OFFSET $4`,
		patientID, deleted, limit, offset)
	if err != nil {
		return nil, 0, apperr.Persistence(err)
	}
	defer rows.Close()
	var items []*Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, 0, apperr.Persistence(err)
		}
		items = append(items, s)
	}
	return items, total, apperr.Persistence(rows.Err())
}

func (r *repoPG) SoftDelete(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE assessment_submission
		SET is_deleted = TRUE, deleted_at = $2, delete_reason = $3
		WHERE id = $1`, id, at, reason)
	return apperr.Persistence(err)
}

func (r *repoPG) Restore(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE assessment_submission
		SET is_deleted = FALSE, deleted_at = NULL, delete_reason = NULL
		WHERE id = $1`, id)
	return apperr.Persistence(err)
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM assessment_submission WHERE id = $1`, id)
	return apperr.Persistence(err)
}

func (r *repoPG) PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		DELETE FROM assessment_submission
		WHERE is_deleted = TRUE AND deleted_at < $1`, cutoff)
	if err != nil {
		return 0, apperr.Persistence(err)
	}
	return tag.RowsAffected(), nil
}

func (r *repoPG) DailyScores(ctx context.Context, patientID uuid.UUID, from, to civil.Date) ([]trend.DayScore, error) {
	day := sprintfDay(4)
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+day+` AS day, AVG(s.score)::float8, COUNT(*)
		FROM assessment_submission s
		JOIN patient p ON p.id = s.patient_id
		WHERE s.patient_id = $1
		  AND s.is_deleted = FALSE
		  AND `+day+` BETWEEN $2::date AND $3::date
		GROUP BY 1
		ORDER BY 1`,
		patientID, db.DateArg(from), db.DateArg(to), r.defaultTZ)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	defer rows.Close()

	var out []trend.DayScore
	for rows.Next() {
		var d time.Time
		var ds trend.DayScore
		if err := rows.Scan(&d, &ds.Mean, &ds.Count); err != nil {
			return nil, apperr.Persistence(err)
		}
		ds.Day = db.DateOf(d)
		out = append(out, ds)
	}
	return out, apperr.Persistence(rows.Err())
}

func (r *repoPG) DayStats(ctx context.Context, patientID uuid.UUID, from, to civil.Date) ([]DayStat, error) {
	day := sprintfDay(4)
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+day+` AS day, AVG(s.score)::float8, COUNT(*),
		       (array_agg(s.max_score ORDER BY s.completed_at, s.id))[1],
		       MAX(s.score), MIN(s.score)
		FROM assessment_submission s
		JOIN patient p ON p.id = s.patient_id
		WHERE s.patient_id = $1
		  AND s.is_deleted = FALSE
		  AND `+day+` BETWEEN $2::date AND $3::date
		GROUP BY 1
		ORDER BY 1`,
		patientID, db.DateArg(from), db.DateArg(to), r.defaultTZ)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	defer rows.Close()

	var out []DayStat
	for rows.Next() {
		var d time.Time
		var ds DayStat
		if err := rows.Scan(&d, &ds.Mean, &ds.Count, &ds.MaxScore, &ds.Highest, &ds.Lowest); err != nil {
			return nil, apperr.Persistence(err)
		}
		ds.Day = db.DateOf(d)
		out = append(out, ds)
	}
	return out, apperr.Persistence(rows.Err())
}

func (r *repoPG) LatestDays(ctx context.Context) ([]PatientDay, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT s.patient_id, MAX(`+sprintfDay(1)+`)
		FROM assessment_submission s
		JOIN patient p ON p.id = s.patient_id
		WHERE s.is_deleted = FALSE
		GROUP BY s.patient_id
		ORDER BY s.patient_id`, r.defaultTZ)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	defer rows.Close()

	var out []PatientDay
	for rows.Next() {
		var pd PatientDay
		var d time.Time
		if err := rows.Scan(&pd.PatientID, &d); err != nil {
			return nil, apperr.Persistence(err)
		}
		pd.Day = db.DateOf(d)
		out = append(out, pd)
	}
	return out, apperr.Persistence(rows.Err())
}
