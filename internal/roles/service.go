package roles

import (
	"context"
	"errors"
)

var (
	// ErrUnknownPermissions signals that a requested permission id does not
	// exist; the whole write is rejected.
	ErrUnknownPermissions = errors.New("algunos permisos no existen")
	// ErrNombreRequired rejects unnamed roles.
	ErrNombreRequired = errors.New("el nombre del rol es obligatorio")
)

// Service handles role and permission administration.
type Service struct {
	repo Repository
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// ListRoles returns all roles with their permission sets.
func (s *Service) ListRoles(ctx context.Context) ([]Rol, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a single role.
func (s *Service) GetRole(ctx context.Context, id int64) (*Rol, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole stores a role with its permission set.
func (s *Service) CreateRole(ctx context.Context, input WriteInput) (*Rol, error) {
	if input.Nombre == "" {
		return nil, ErrNombreRequired
	}
	return s.repo.CreateRole(ctx, input)
}

// UpdateRole renames a role and replaces its permission set. Capability maps
// are recomputed per request, so the change applies on the very next call.
func (s *Service) UpdateRole(ctx context.Context, id int64, input WriteInput) (*Rol, error) {
	if input.Nombre == "" {
		return nil, ErrNombreRequired
	}
	return s.repo.UpdateRole(ctx, id, input)
}

// DeleteRole removes a role; holders keep their accounts with a null role.
func (s *Service) DeleteRole(ctx context.Context, id int64) (*Rol, error) {
	rol, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return nil, err
	}
	return rol, nil
}

// ListPermissions returns the immutable permission catalogue.
func (s *Service) ListPermissions(ctx context.Context) ([]Permiso, error) {
	return s.repo.ListPermissions(ctx)
}

// CreatePermission adds a reference permission.
func (s *Service) CreatePermission(ctx context.Context, codename, descripcion string) (*Permiso, error) {
	return s.repo.CreatePermission(ctx, codename, descripcion)
}

// DeletePermission removes a reference permission.
func (s *Service) DeletePermission(ctx context.Context, id int64) error {
	return s.repo.DeletePermission(ctx, id)
}
