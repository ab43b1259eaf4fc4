package scorealert

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Kaikai0Database/pleasure-monitoring-platform/internal/platform/apperr"
)

func newTestService(t *testing.T) (*Service, *memStore, uuid.UUID) {
	t.Helper()
	store := newMemStore()
	pid := uuid.New()
	dir := &memDirectory{known: map[uuid.UUID]*time.Location{pid: time.UTC}}
	return NewService(store, dir), store, pid
}

func TestService_ListOrdersByDateDesc(t *testing.T) {
	svc, store, pid := newTestService(t)
	for i := 0; i < 3; i++ {
		store.put(&Alert{PatientID: pid, AlertDate: day31.AddDays(-i), AlertKind: KindHigh})
	}
	items, total, err := svc.List(context.Background(), pid, 20, 0)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if total != 3 || items[0].AlertDate != day31 || items[2].AlertDate != day31.AddDays(-2) {
		t.Errorf("unexpected order: %v %v %v", items[0].AlertDate, items[1].AlertDate, items[2].AlertDate)
	}
}

func TestService_UnknownPatientIsNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	unknown := uuid.New()

	if _, _, err := svc.List(ctx, unknown, 20, 0); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("List: expected NotFound, got %v", err)
	}
	if _, err := svc.UnreadCount(ctx, unknown); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("UnreadCount: expected NotFound, got %v", err)
	}
	if _, err := svc.MarkAllRead(ctx, unknown); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("MarkAllRead: expected NotFound, got %v", err)
	}
	if _, err := svc.MarkRead(ctx, uuid.New(), unknown); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("MarkRead: expected NotFound, got %v", err)
	}
}

func TestService_MarkRead(t *testing.T) {
	svc, store, pid := newTestService(t)
	a := store.put(&Alert{PatientID: pid, AlertDate: day31, AlertKind: KindLow})
	ctx := context.Background()

	got, err := svc.MarkRead(ctx, a.ID, pid)
	if err != nil || !got.IsRead {
		t.Fatalf("MarkRead() = %+v, %v", got, err)
	}
	if _, err := svc.MarkRead(ctx, a.ID, pid); err != nil {
		t.Errorf("second MarkRead should be a no-op, got %v", err)
	}
	n, _ := svc.UnreadCount(ctx, pid)
	if n != 0 {
		t.Errorf("expected 0 unread, got %d", n)
	}
}

func TestService_MarkRead_OtherPatient(t *testing.T) {
	svc, store, pid := newTestService(t)
	a := store.put(&Alert{PatientID: pid, AlertDate: day31, AlertKind: KindHigh})

	_, err := svc.MarkRead(context.Background(), a.ID, uuid.New())
	if !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Fatalf("expected PermissionDenied, got %v", err)
	}
	if got, _ := store.GetByID(context.Background(), a.ID); got.IsRead {
		t.Error("alert must stay unread")
	}
}

func TestService_MarkAllRead(t *testing.T) {
	svc, store, pid := newTestService(t)
	store.put(&Alert{PatientID: pid, AlertDate: day31, AlertKind: KindHigh})
	store.put(&Alert{PatientID: pid, AlertDate: day31, AlertKind: KindLow})
	store.put(&Alert{PatientID: pid, AlertDate: day31.AddDays(-1), AlertKind: KindHigh, IsRead: true})

	n, err := svc.MarkAllRead(context.Background(), pid)
	if err != nil {
		t.Fatalf("MarkAllRead() error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 affected, got %d", n)
	}
}

func TestService_Summary(t *testing.T) {
	svc, store, pid := newTestService(t)
	other := uuid.New()
	store.put(&Alert{PatientID: pid, AlertDate: day31, AlertKind: KindHigh,
		ExceededLines: map[string]float64{"7-day": 30, "14-day": 29}})
	store.put(&Alert{PatientID: pid, AlertDate: day31.AddDays(-3), AlertKind: KindHigh,
		ExceededLines: map[string]float64{"7-day": 28}})
	store.put(&Alert{PatientID: other, AlertDate: day31, AlertKind: KindLow,
		ExceededLines: map[string]float64{"30-day": 31}})
	store.put(&Alert{PatientID: other, AlertDate: day31, AlertKind: KindHigh, IsRead: true,
		ExceededLines: map[string]float64{"7-day": 31}})

	s, err := svc.Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary() error: %v", err)
	}
	if s.TotalUnread != 3 || s.ByKind[KindHigh] != 2 || s.ByKind[KindLow] != 1 {
		t.Errorf("unexpected totals: %+v", s)
	}
	if s.ByLine["7-day"] != 2 || s.ByLine["14-day"] != 1 || s.ByLine["30-day"] != 1 {
		t.Errorf("unexpected line totals: %v", s.ByLine)
	}
	if len(s.Patients) != 2 {
		t.Fatalf("expected 2 patients, got %d", len(s.Patients))
	}
	for _, ps := range s.Patients {
		switch ps.PatientID {
		case pid:
			if ps.High == nil || ps.High.Count != 2 || ps.Low != nil {
				t.Errorf("unexpected summary for patient: %+v", ps)
			}
			if !slices.Equal(ps.High.Lines, []string{"7-day", "14-day"}) {
				t.Errorf("expected distinct labels by window length, got %v", ps.High.Lines)
			}
			if ps.High.LatestDate != day31 {
				t.Errorf("expected latest date %s, got %s", day31, ps.High.LatestDate)
			}
		case other:
			if ps.Low == nil || ps.Low.Count != 1 || ps.High != nil {
				t.Errorf("unexpected summary for other patient: %+v", ps)
			}
		}
	}
}

func TestService_Summary_Empty(t *testing.T) {
	svc, _, _ := newTestService(t)
	s, err := svc.Summary(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if s.TotalUnread != 0 || s.Patients == nil {
		t.Errorf("expected empty non-nil summary, got %+v", s)
	}
}

func TestService_Summary_LinesOrderedByWindow(t *testing.T) {
	svc, store, pid := newTestService(t)
	store.put(&Alert{PatientID: pid, AlertDate: day31, AlertKind: KindHigh,
		ExceededLines: map[string]float64{"30-day": 31, "7-day": 30, "14-day": 29}})

	s, err := svc.Summary(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Patients) != 1 || s.Patients[0].High == nil {
		t.Fatalf("unexpected summary: %+v", s)
	}
	if got := s.Patients[0].High.Lines; !slices.Equal(got, []string{"7-day", "14-day", "30-day"}) {
		t.Errorf("expected 7-day, 14-day, 30-day; got %v", got)
	}
}
