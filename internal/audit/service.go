package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/clinicore/clinicore/internal/shared"
)

// Lister is the repository contract the service needs.
type Lister interface {
	List(ctx context.Context, filters ListFilters, limit, offset int) ([]Entry, int, error)
}

// Result bundles a page of entries with pagination metadata.
type Result struct {
	Entries    []Entry
	Pagination shared.Pagination
}

// Service coordinates bitácora retrieval.
type Service struct {
	repo Lister
}

// NewService constructs a Service.
func NewService(repo Lister) *Service {
	return &Service{repo: repo}
}

// List returns a page of entries, newest first.
func (s *Service) List(ctx context.Context, filters ListFilters, page shared.PageParams) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	entries, total, err := s.repo.List(ctx, filters, page.PageSize, page.Offset())
	if err != nil {
		return Result{}, err
	}
	return Result{
		Entries:    entries,
		Pagination: shared.NewPagination(page.Page, page.PageSize, total),
	}, nil
}

func decodeDetalles(raw []byte) map[string]any {
	var detalles map[string]any
	if err := json.Unmarshal(raw, &detalles); err != nil {
		return nil
	}
	return detalles
}
