package patient

import (
	"context"
	"errors"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Kaikai0Database/pleasure-monitoring-platform/internal/platform/apperr"
)

type Service struct {
	repo     Repository
	validate *validator.Validate
	fallback *time.Location
}

// NewService uses fallback for patients without a usable timezone.
func NewService(repo Repository, fallback *time.Location) *Service {
	if fallback == nil {
		fallback = time.UTC
	}
	return &Service{repo: repo, validate: apperr.NewValidator(), fallback: fallback}
}

func (s *Service) Create(ctx context.Context, p *Patient) error {
	if err := s.validate.Struct(p); err != nil {
		return apperr.FromValidator("invalid patient", err)
	}
	return s.repo.Create(ctx, p)
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// Exists distinguishes an unknown patient from a storage failure.
func (s *Service) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Location is the zone whose calendar days group the patient's submissions.
func (s *Service) Location(ctx context.Context, id uuid.UUID) (*time.Location, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.locationOf(p), nil
}

func (s *Service) locationOf(p *Patient) *time.Location {
	if p.Timezone == "" {
		return s.fallback
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return s.fallback
	}
	return loc
}
