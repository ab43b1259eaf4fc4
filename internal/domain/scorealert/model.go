package scorealert

import (
	"time"

	"github.com/golang-sql/civil"
	"github.com/google/uuid"

	"github.com/Kaikai0Database/pleasure-monitoring-platform/internal/platform/notify"
)

type Kind string

const (
	KindHigh Kind = "high"
	KindLow  Kind = "low"
)

// Kinds lists every alert slot the evaluator reconciles, in order.
var Kinds = []Kind{KindHigh, KindLow}

// Alert records that on AlertDate the patient's daily average crossed
// (high) or came within the low margin below (low) one or more moving
// averages. ExceededLines maps window label to the MA value, rounded to one
// decimal.
type Alert struct {
	ID            uuid.UUID          `json:"id"`
	PatientID     uuid.UUID          `json:"patientId"`
	AlertDate     civil.Date         `json:"alertDate"`
	AlertKind     Kind               `json:"alertKind"`
	DailyAverage  float64            `json:"dailyAverage"`
	ExceededLines map[string]float64 `json:"exceededLines"`
	IsRead        bool               `json:"isRead"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

func (a *Alert) event() notify.AlertEvent {
	return notify.AlertEvent{
		AlertID:       a.ID,
		PatientID:     a.PatientID,
		AlertDate:     a.AlertDate.String(),
		AlertKind:     string(a.AlertKind),
		DailyAverage:  a.DailyAverage,
		ExceededLines: a.ExceededLines,
		CreatedAt:     a.CreatedAt,
	}
}

// KindSummary condenses a patient's unread alerts of one kind.
type KindSummary struct {
	Count      int        `json:"count"`
	Lines      []string   `json:"lines"`
	LatestDate civil.Date `json:"latestDate"`
}

type PatientSummary struct {
	PatientID uuid.UUID    `json:"patientId"`
	High      *KindSummary `json:"high,omitempty"`
	Low       *KindSummary `json:"low,omitempty"`
}

// StaffSummary is the cross-patient view of unread alerts.
type StaffSummary struct {
	TotalUnread int              `json:"totalUnread"`
	ByKind      map[Kind]int     `json:"byKind"`
	ByLine      map[string]int   `json:"byLine"`
	Patients    []PatientSummary `json:"patients"`
}

// SweepResult reports one reconciliation pass.
type SweepResult struct {
	Patients int `json:"patients"`
	Created  int `json:"created"`
	Failed   int `json:"failed"`
}
