package patients

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/shared"
)

// ErrSelfBeneficiario rejects a patient set as their own insurance holder.
var ErrSelfBeneficiario = errors.New("un paciente no puede ser su propio beneficiario")

// Service handles patient registry rules.
type Service struct {
	repo Repository
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Result bundles a page of patients with pagination metadata.
type Result struct {
	Pacientes  []Paciente
	Pagination shared.Pagination
}

// List returns a filtered, paginated patient listing.
func (s *Service) List(ctx context.Context, filters ListFilters, page shared.PageParams) (*Result, error) {
	items, total, err := s.repo.List(ctx, filters, page.PageSize, page.Offset())
	if err != nil {
		return nil, err
	}
	return &Result{Pacientes: items, Pagination: shared.NewPagination(page.Page, page.PageSize, total)}, nil
}

// Get fetches a single patient.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Paciente, error) {
	return s.repo.Get(ctx, id)
}

// Create registers a patient.
func (s *Service) Create(ctx context.Context, input CreateInput) (*Paciente, error) {
	return s.repo.Create(ctx, input)
}

// Update applies a partial update.
func (s *Service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*Paciente, error) {
	if input.BeneficiarioDeID != nil && *input.BeneficiarioDeID == id {
		return nil, ErrSelfBeneficiario
	}
	return s.repo.Update(ctx, id, input)
}

// Delete removes a patient.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) (*Paciente, error) {
	paciente, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return nil, err
	}
	return paciente, nil
}
