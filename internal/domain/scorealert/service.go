package scorealert

import (
	"context"
	"slices"

	"github.com/google/uuid"

	"github.com/Kaikai0Database/pleasure-monitoring-platform/internal/domain/trend"
	"github.com/Kaikai0Database/pleasure-monitoring-platform/internal/platform/apperr"
)

// Service is the read and acknowledge surface over stored alerts.
type Service struct {
	repo     Repository
	patients Directory
}

func NewService(repo Repository, patients Directory) *Service {
	return &Service{repo: repo, patients: patients}
}

func (s *Service) requirePatient(ctx context.Context, id uuid.UUID) error {
	ok, err := s.patients.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("patient", id.String())
	}
	return nil
}

// List returns the patient's alerts, most recent alert date first.
func (s *Service) List(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Alert, int, error) {
	if err := s.requirePatient(ctx, patientID); err != nil {
		return nil, 0, err
	}
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) UnreadCount(ctx context.Context, patientID uuid.UUID) (int, error) {
	if err := s.requirePatient(ctx, patientID); err != nil {
		return 0, err
	}
	return s.repo.UnreadCount(ctx, patientID)
}

// MarkRead acknowledges one of the requester's alerts. Marking an already
// read alert succeeds.
func (s *Service) MarkRead(ctx context.Context, alertID, requester uuid.UUID) (*Alert, error) {
	a, err := s.repo.GetByID(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if a.PatientID != requester {
		return nil, apperr.PermissionDenied("alert belongs to another patient")
	}
	if a.IsRead {
		return a, nil
	}
	if err := s.repo.MarkRead(ctx, alertID); err != nil {
		return nil, err
	}
	a.IsRead = true
	return a, nil
}

func (s *Service) MarkAllRead(ctx context.Context, patientID uuid.UUID) (int64, error) {
	if err := s.requirePatient(ctx, patientID); err != nil {
		return 0, err
	}
	return s.repo.MarkAllRead(ctx, patientID)
}

// Summary groups unread alerts per patient and kind with the window labels
// involved, plus totals by kind and by label.
func (s *Service) Summary(ctx context.Context) (*StaffSummary, error) {
	unread, err := s.repo.ListUnread(ctx)
	if err != nil {
		return nil, err
	}
	return summarize(unread), nil
}

func summarize(unread []*Alert) *StaffSummary {
	out := &StaffSummary{
		ByKind:   map[Kind]int{KindHigh: 0, KindLow: 0},
		ByLine:   map[string]int{},
		Patients: []PatientSummary{},
	}
	byPatient := map[uuid.UUID]*PatientSummary{}
	var order []uuid.UUID

	for _, a := range unread {
		out.TotalUnread++
		out.ByKind[a.AlertKind]++

		ps, ok := byPatient[a.PatientID]
		if !ok {
			ps = &PatientSummary{PatientID: a.PatientID}
			byPatient[a.PatientID] = ps
			order = append(order, a.PatientID)
		}
		ks := ps.kindSummary(a.AlertKind)
		ks.Count++
		if a.AlertDate.After(ks.LatestDate) {
			ks.LatestDate = a.AlertDate
		}
		for label := range a.ExceededLines {
			out.ByLine[label]++
			if !slices.Contains(ks.Lines, label) {
				ks.Lines = append(ks.Lines, label)
			}
		}
	}

	for _, id := range order {
		ps := byPatient[id]
		for _, ks := range []*KindSummary{ps.High, ps.Low} {
			if ks != nil {
				slices.SortFunc(ks.Lines, trend.CompareLabels)
			}
		}
		out.Patients = append(out.Patients, *ps)
	}
	return out
}

func (ps *PatientSummary) kindSummary(kind Kind) *KindSummary {
	ks := &ps.High
	if kind == KindLow {
		ks = &ps.Low
	}
	if *ks == nil {
		*ks = &KindSummary{Lines: []string{}}
	}
	return *ks
}
