package users

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/clinicore/clinicore/internal/audit"
	"github.com/clinicore/clinicore/internal/perms"
	"github.com/clinicore/clinicore/internal/shared"
)

var (
	// ErrSelfDelete guards against an account removing itself.
	ErrSelfDelete = errors.New("no puedes eliminarte a ti mismo")
	// ErrPasswordChangeForbidden rejects password changes by third parties.
	ErrPasswordChangeForbidden = errors.New("no tienes permisos para cambiar este password")
	// ErrRoleChangeForbidden restricts role assignment to superusers.
	ErrRoleChangeForbidden = errors.New("solo los administradores pueden asignar roles")
	// ErrPasswordRequired rejects empty passwords.
	ErrPasswordRequired = errors.New("el password es obligatorio")
	// ErrPasswordTooShort rejects passwords under the minimum length.
	ErrPasswordTooShort = errors.New("el password debe tener al menos 8 caracteres")
	// ErrNoRoleAssigned rejects role removal for users without a role.
	ErrNoRoleAssigned = errors.New("el usuario no tiene rol asignado")
)

// Service handles user administration rules.
type Service struct {
	repo     Repository
	recorder *audit.Recorder
}

// NewService constructs a Service.
func NewService(repo Repository, recorder *audit.Recorder) *Service {
	return &Service{repo: repo, recorder: recorder}
}

// Result bundles a page of users with pagination metadata.
type Result struct {
	Users      []User
	Pagination shared.Pagination
}

// List returns a filtered, paginated user listing.
func (s *Service) List(ctx context.Context, filters ListFilters, page shared.PageParams) (*Result, error) {
	items, total, err := s.repo.List(ctx, filters, page.PageSize, page.Offset())
	if err != nil {
		return nil, err
	}
	return &Result{Users: items, Pagination: shared.NewPagination(page.Page, page.PageSize, total)}, nil
}

// Get fetches a single user.
func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	return s.repo.Get(ctx, id)
}

// Create validates the password policy, hashes it and stores the user.
func (s *Service) Create(ctx context.Context, input CreateInput) (*User, error) {
	if err := validatePassword(input.Password); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return s.repo.Create(ctx, input, string(hash))
}

// Update applies a partial update.
func (s *Service) Update(ctx context.Context, id int64, input UpdateInput) (*User, error) {
	return s.repo.Update(ctx, id, input)
}

// Delete removes a user. Accounts can never delete themselves, even
// superusers.
func (s *Service) Delete(ctx context.Context, id int64, requester *perms.Identity) (*User, error) {
	if requester != nil && requester.ID == id {
		return nil, ErrSelfDelete
	}
	user, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return nil, err
	}
	return user, nil
}

// ChangePassword replaces a user's password. Allowed for the user themselves
// or a superuser; audited with the target's email.
func (s *Service) ChangePassword(ctx context.Context, targetID int64, password string, requester *perms.Identity, ip string) error {
	if requester == nil || !(requester.IsSuperuser || requester.ID == targetID) {
		return ErrPasswordChangeForbidden
	}
	if err := validatePassword(password); err != nil {
		return err
	}
	target, err := s.repo.Get(ctx, targetID)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.SetPassword(ctx, targetID, string(hash)); err != nil {
		return err
	}

	actorID := requester.ID
	s.recorder.Record(ctx, audit.Entry{
		ActorID: &actorID,
		Accion:  fmt.Sprintf("Cambió password del usuario %s", target.Email),
		IP:      ip,
		Modulo:  Modulo,
	})
	return nil
}

// AssignRole sets the user's role. Superusers only.
func (s *Service) AssignRole(ctx context.Context, targetID, roleID int64, requester *perms.Identity, ip string) (string, error) {
	if requester == nil || !requester.IsSuperuser {
		return "", ErrRoleChangeForbidden
	}
	target, err := s.repo.Get(ctx, targetID)
	if err != nil {
		return "", err
	}
	roleName, err := s.repo.RoleName(ctx, roleID)
	if err != nil {
		return "", err
	}
	if err := s.repo.SetRole(ctx, targetID, &roleID); err != nil {
		return "", err
	}

	actorID := requester.ID
	s.recorder.Record(ctx, audit.Entry{
		ActorID: &actorID,
		Accion:  fmt.Sprintf("Asignó usuario %s al rol %s", target.Email, roleName),
		IP:      ip,
		Modulo:  Modulo,
	})
	return roleName, nil
}

// RemoveRole clears the user's role. Superusers only.
func (s *Service) RemoveRole(ctx context.Context, targetID int64, requester *perms.Identity, ip string) (string, error) {
	if requester == nil || !requester.IsSuperuser {
		return "", ErrRoleChangeForbidden
	}
	target, err := s.repo.Get(ctx, targetID)
	if err != nil {
		return "", err
	}
	if target.Rol == nil {
		return "", ErrNoRoleAssigned
	}
	roleName := target.Rol.Nombre
	if err := s.repo.SetRole(ctx, targetID, nil); err != nil {
		return "", err
	}

	actorID := requester.ID
	s.recorder.Record(ctx, audit.Entry{
		ActorID: &actorID,
		Accion:  fmt.Sprintf("Removió usuario %s del rol %s", target.Email, roleName),
		IP:      ip,
		Modulo:  Modulo,
	})
	return roleName, nil
}

func validatePassword(password string) error {
	if password == "" {
		return ErrPasswordRequired
	}
	if len(password) < 8 {
		return ErrPasswordTooShort
	}
	return nil
}
