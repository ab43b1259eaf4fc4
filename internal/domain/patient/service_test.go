package patient

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Kaikai0Database/pleasure-monitoring-platform/internal/platform/apperr"
)

type mockRepo struct {
	records map[uuid.UUID]*Patient
	err     error
}

func newMockRepo() *mockRepo {
	return &mockRepo{records: make(map[uuid.UUID]*Patient)}
}

func (m *mockRepo) Create(_ context.Context, p *Patient) error {
	if m.err != nil {
		return m.err
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	m.records[p.ID] = p
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.records[id]
	if !ok {
		return nil, apperr.NotFound("patient", id.String())
	}
	return p, nil
}

func (m *mockRepo) List(_ context.Context, limit, offset int) ([]*Patient, int, error) {
	var out []*Patient
	for _, p := range m.records {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	total := len(out)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func newTestService() (*Service, *mockRepo) {
	repo := newMockRepo()
	return NewService(repo, time.UTC), repo
}

func TestService_Create(t *testing.T) {
	svc, repo := newTestService()
	p := &Patient{DisplayName: "Chen Mei", Timezone: "Asia/Taipei"}
	if err := svc.Create(context.Background(), p); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if p.ID == uuid.Nil {
		t.Error("expected id to be assigned")
	}
	if _, ok := repo.records[p.ID]; !ok {
		t.Error("expected patient to be stored")
	}
}

func TestService_Create_Validation(t *testing.T) {
	tests := []struct {
		name string
		p    Patient
	}{
		{"missing name", Patient{}},
		{"bad timezone", Patient{DisplayName: "A", Timezone: "Nowhere/Land"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService()
			p := tt.p
			err := svc.Create(context.Background(), &p)
			if !errors.Is(err, apperr.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestService_Exists(t *testing.T) {
	svc, _ := newTestService()
	p := &Patient{DisplayName: "Lin"}
	_ = svc.Create(context.Background(), p)

	ok, err := svc.Exists(context.Background(), p.ID)
	if err != nil || !ok {
		t.Fatalf("expected existing patient, got %v %v", ok, err)
	}
	ok, err = svc.Exists(context.Background(), uuid.New())
	if err != nil || ok {
		t.Fatalf("expected missing patient without error, got %v %v", ok, err)
	}
}

func TestService_Exists_StorageFailure(t *testing.T) {
	svc, repo := newTestService()
	repo.err = apperr.Persistence(errors.New("connection reset"))
	if _, err := svc.Exists(context.Background(), uuid.New()); !errors.Is(err, apperr.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
}

func TestService_Location(t *testing.T) {
	taipei, _ := time.LoadLocation("Asia/Taipei")
	svc := NewService(newMockRepo(), taipei)
	repo := svc.repo.(*mockRepo)

	withZone := &Patient{ID: uuid.New(), DisplayName: "A", Timezone: "America/New_York"}
	noZone := &Patient{ID: uuid.New(), DisplayName: "B"}
	badZone := &Patient{ID: uuid.New(), DisplayName: "C", Timezone: "Bogus/Zone"}
	for _, p := range []*Patient{withZone, noZone, badZone} {
		repo.records[p.ID] = p
	}

	tests := []struct {
		name string
		id   uuid.UUID
		want string
	}{
		{"configured zone", withZone.ID, "America/New_York"},
		{"empty falls back", noZone.ID, "Asia/Taipei"},
		{"invalid falls back", badZone.ID, "Asia/Taipei"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := svc.Location(context.Background(), tt.id)
			if err != nil {
				t.Fatalf("Location() error: %v", err)
			}
			if loc.String() != tt.want {
				t.Errorf("expected %s, got %s", tt.want, loc)
			}
		})
	}

	if _, err := svc.Location(context.Background(), uuid.New()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found for unknown patient, got %v", err)
	}
}
