package scoreledger

import (
	"math"
	"time"

	"github.com/golang-sql/civil"
	"github.com/google/uuid"
)

// Submission is one completed self-assessment. Soft-deleted rows stay in the
// trash until the retention window passes.
type Submission struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	PatientID    uuid.UUID  `db:"patient_id" json:"patientId"`
	Score        int        `db:"score" json:"score"`
	MaxScore     int        `db:"max_score" json:"maxScore"`
	CompletedAt  time.Time  `db:"completed_at" json:"completedAt"`
	IsDeleted    bool       `db:"is_deleted" json:"isDeleted"`
	DeletedAt    *time.Time `db:"deleted_at" json:"deletedAt,omitempty"`
	DeleteReason *string    `db:"delete_reason" json:"deleteReason,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
}

// DayStat summarises one calendar day of active submissions. MaxScore is
// the maximum of the day's first submission.
type DayStat struct {
	Day      civil.Date
	Mean     float64
	Count    int
	MaxScore int
	Highest  int
	Lowest   int
}

// Percentage is the day's mean as a whole-number share of MaxScore.
func (d DayStat) Percentage() int {
	if d.MaxScore <= 0 {
		return 0
	}
	return int(math.Round(d.Mean * 100 / float64(d.MaxScore)))
}

// Statistics summarises a patient's active submissions over [From, To].
// The score totals are nil when the range has no submissions.
type Statistics struct {
	PatientID    uuid.UUID
	From, To     civil.Date
	TotalCount   int
	AverageScore *float64
	HighestScore *int
	LowestScore  *int
	Days         []DayStat
}

// SubmissionInput is the request body for a new submission.
type SubmissionInput struct {
	Score       int        `json:"score" validate:"gte=0,ltefield=MaxScore"`
	MaxScore    int        `json:"maxScore" validate:"gt=0"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// DeleteInput is the body of DELETE /assessments/:id.
type DeleteInput struct {
	Reason    string `json:"reason" validate:"max=255"`
	Permanent bool   `json:"permanent"`
}

// PatientDay pairs a patient with one calendar day, e.g. their latest day
// with data.
type PatientDay struct {
	PatientID uuid.UUID
	Day       civil.Date
}

const defaultDeleteReason = "unspecified"
