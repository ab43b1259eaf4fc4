package scorealert

import (
	"context"
	"errors"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/golang-sql/civil"
	"github.com/google/uuid"

	"github.com/Kaikai0Database/pleasure-monitoring-platform/internal/domain/scoreledger"
	"github.com/Kaikai0Database/pleasure-monitoring-platform/internal/domain/trend"
	"github.com/Kaikai0Database/pleasure-monitoring-platform/internal/platform/apperr"
	"github.com/Kaikai0Database/pleasure-monitoring-platform/internal/platform/notify"
)

var errInjected = errors.New("injected failure")

// memStore is an in-memory Repository. failOn names a method that returns an
// injected persistence error.
type memStore struct {
	mu     sync.Mutex
	alerts map[uuid.UUID]*Alert
	failOn string
	locked []uuid.UUID
}

func newMemStore() *memStore {
	return &memStore{alerts: make(map[uuid.UUID]*Alert)}
}

func clone(a *Alert) *Alert {
	cp := *a
	cp.ExceededLines = maps.Clone(a.ExceededLines)
	return &cp
}

func (m *memStore) fail(method string) error {
	if m.failOn == method {
		return apperr.Persistence(errInjected)
	}
	return nil
}

func (m *memStore) snapshot() map[uuid.UUID]*Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := make(map[uuid.UUID]*Alert, len(m.alerts))
	for id, a := range m.alerts {
		snap[id] = clone(a)
	}
	return snap
}

func (m *memStore) restore(snap map[uuid.UUID]*Alert) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = snap
}

// put inserts a as-is, for seeding.
func (m *memStore) put(a *Alert) *Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	m.alerts[a.ID] = clone(a)
	return a
}

func (m *memStore) forDay(patientID uuid.UUID, day civil.Date, kind Kind) []*Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Alert
	for _, a := range m.alerts {
		if a.PatientID == patientID && a.AlertDate == day && a.AlertKind == kind {
			out = append(out, clone(a))
		}
	}
	return out
}

func (m *memStore) LockPatient(_ context.Context, patientID uuid.UUID) error {
	if err := m.fail("LockPatient"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locked = append(m.locked, patientID)
	return nil
}

func (m *memStore) MarkReadBefore(_ context.Context, patientID uuid.UUID, day civil.Date) (int64, error) {
	if err := m.fail("MarkReadBefore"); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, a := range m.alerts {
		if a.PatientID == patientID && !a.IsRead && a.AlertDate.Before(day) {
			a.IsRead = true
			n++
		}
	}
	return n, nil
}

func (m *memStore) ListForDay(_ context.Context, patientID uuid.UUID, day civil.Date) ([]*Alert, error) {
	if err := m.fail("ListForDay"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Alert
	for _, a := range m.alerts {
		if a.PatientID == patientID && a.AlertDate == day {
			out = append(out, clone(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) Create(_ context.Context, a *Alert) error {
	if err := m.fail("Create"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	m.alerts[a.ID] = clone(a)
	return nil
}

func (m *memStore) Update(_ context.Context, a *Alert) error {
	if err := m.fail("Update"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.alerts[a.ID]; !ok {
		return apperr.NotFound("alert", a.ID.String())
	}
	a.UpdatedAt = time.Now()
	m.alerts[a.ID] = clone(a)
	return nil
}

func (m *memStore) Delete(_ context.Context, id uuid.UUID) error {
	if err := m.fail("Delete"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.alerts, id)
	return nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return nil, apperr.NotFound("alert", id.String())
	}
	return clone(a), nil
}

func (m *memStore) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Alert, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Alert
	for _, a := range m.alerts {
		if a.PatientID == patientID {
			out = append(out, clone(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AlertDate.After(out[j].AlertDate) })
	total := len(out)
	if offset > total {
		offset = total
	}
	end := min(offset+limit, total)
	return out[offset:end], total, nil
}

func (m *memStore) UnreadCount(_ context.Context, patientID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.alerts {
		if a.PatientID == patientID && !a.IsRead {
			n++
		}
	}
	return n, nil
}

func (m *memStore) MarkRead(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.alerts[id]; ok {
		a.IsRead = true
	}
	return nil
}

func (m *memStore) MarkAllRead(_ context.Context, patientID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, a := range m.alerts {
		if a.PatientID == patientID && !a.IsRead {
			a.IsRead = true
			n++
		}
	}
	return n, nil
}

func (m *memStore) ListUnread(_ context.Context) ([]*Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Alert
	for _, a := range m.alerts {
		if !a.IsRead {
			out = append(out, clone(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PatientID != out[j].PatientID {
			return out[i].PatientID.String() < out[j].PatientID.String()
		}
		return out[i].AlertDate.After(out[j].AlertDate)
	})
	return out, nil
}

// memTx serialises transactions and rolls the store back when fn fails.
type memTx struct {
	mu    sync.Mutex
	store *memStore
}

func (t *memTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := t.store.snapshot()
	if err := fn(ctx); err != nil {
		t.store.restore(snap)
		return err
	}
	return nil
}

// memScores holds raw scores per patient and day.
type memScores struct {
	mu     sync.Mutex
	scores map[uuid.UUID]map[civil.Date][]float64
	err    error
}

func newMemScores() *memScores {
	return &memScores{scores: make(map[uuid.UUID]map[civil.Date][]float64)}
}

func (s *memScores) add(patientID uuid.UUID, day civil.Date, scores ...float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scores[patientID] == nil {
		s.scores[patientID] = make(map[civil.Date][]float64)
	}
	s.scores[patientID][day] = append(s.scores[patientID][day], scores...)
}

func (s *memScores) replace(patientID uuid.UUID, day civil.Date, scores ...float64) {
	s.mu.Lock()
	s.scores[patientID][day] = nil
	s.mu.Unlock()
	s.add(patientID, day, scores...)
}

func (s *memScores) DailyScores(_ context.Context, patientID uuid.UUID, from, to civil.Date) ([]trend.DayScore, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []trend.DayScore
	for d := from; !d.After(to); d = d.AddDays(1) {
		vals := s.scores[patientID][d]
		if len(vals) == 0 {
			continue
		}
		var sum float64
		for _, v := range vals {
			sum += v
		}
		out = append(out, trend.DayScore{Day: d, Mean: sum / float64(len(vals)), Count: len(vals)})
	}
	return out, nil
}

// Statistics derives ledger statistics from the stored scores, each out of
// 60. Only the day fields the trend view reads are filled.
func (s *memScores) Statistics(ctx context.Context, patientID uuid.UUID, from, to civil.Date) (*scoreledger.Statistics, error) {
	days, err := s.DailyScores(ctx, patientID, from, to)
	if err != nil {
		return nil, err
	}
	st := &scoreledger.Statistics{PatientID: patientID, From: from, To: to, Days: []scoreledger.DayStat{}}
	var sum float64
	for _, d := range days {
		st.Days = append(st.Days, scoreledger.DayStat{Day: d.Day, Mean: d.Mean, Count: d.Count, MaxScore: 60})
		st.TotalCount += d.Count
		sum += d.Mean * float64(d.Count)
	}
	if st.TotalCount > 0 {
		avg := sum / float64(st.TotalCount)
		st.AverageScore = &avg
	}
	return st, nil
}

type memDirectory struct {
	known map[uuid.UUID]*time.Location
}

func (d *memDirectory) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	_, ok := d.known[id]
	return ok, nil
}

func (d *memDirectory) Location(_ context.Context, id uuid.UUID) (*time.Location, error) {
	loc, ok := d.known[id]
	if !ok {
		return nil, apperr.NotFound("patient", id.String())
	}
	return loc, nil
}

type capturePublisher struct {
	mu     sync.Mutex
	events int
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, events ...notify.AlertEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events += len(events)
	return p.err
}

func (p *capturePublisher) Close() error { return nil }
