package users

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/clinicore/clinicore/internal/audit"
	"github.com/clinicore/clinicore/internal/perms"
	"github.com/clinicore/clinicore/internal/shared"
)

type auditSink struct {
	acciones []string
	actors   []*int64
}

func (s *auditSink) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	actor, _ := args[1].(*int64)
	s.actors = append(s.actors, actor)
	s.acciones = append(s.acciones, fmt.Sprint(args[2]))
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

type memoryRepo struct {
	users     map[int64]*User
	passwords map[int64]string
	roles     map[int64]string
	deleted   []int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		users:     map[int64]*User{},
		passwords: map[int64]string{},
		roles:     map[int64]string{},
	}
}

func (m *memoryRepo) List(_ context.Context, _ ListFilters, _, _ int) ([]User, int, error) {
	var out []User
	for _, u := range m.users {
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (m *memoryRepo) Create(_ context.Context, input CreateInput, hash string) (*User, error) {
	id := int64(len(m.users) + 1)
	u := &User{ID: id, Email: input.Email, Nombre: input.Nombre, Apellido: input.Apellido, IsActive: true}
	m.users[id] = u
	m.passwords[id] = hash
	return u, nil
}

func (m *memoryRepo) Update(_ context.Context, id int64, input UpdateInput) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	if input.Nombre != nil {
		u.Nombre = *input.Nombre
	}
	clone := *u
	return &clone, nil
}

func (m *memoryRepo) Delete(_ context.Context, id int64) error {
	if _, ok := m.users[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.users, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *memoryRepo) SetPassword(_ context.Context, id int64, hash string) error {
	if _, ok := m.users[id]; !ok {
		return shared.ErrNotFound
	}
	m.passwords[id] = hash
	return nil
}

func (m *memoryRepo) SetRole(_ context.Context, id int64, roleID *int64) error {
	u, ok := m.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	if roleID == nil {
		u.Rol = nil
		return nil
	}
	u.Rol = &RoleRef{ID: *roleID, Nombre: m.roles[*roleID]}
	return nil
}

func (m *memoryRepo) RoleName(_ context.Context, roleID int64) (string, error) {
	nombre, ok := m.roles[roleID]
	if !ok {
		return "", shared.ErrNotFound
	}
	return nombre, nil
}

func newUserService(repo *memoryRepo) (*Service, *auditSink) {
	sink := &auditSink{}
	return NewService(repo, audit.NewRecorder(sink, slog.Default(), nil)), sink
}

func superuser(id int64) *perms.Identity {
	return &perms.Identity{ID: id, Email: fmt.Sprintf("admin%d@clinica.bo", id), IsSuperuser: true, IsActive: true}
}

func TestDeleteRejectsSelfDeletion(t *testing.T) {
	repo := newMemoryRepo()
	repo.users[5] = &User{ID: 5, Email: "yo@clinica.bo"}
	svc, _ := newUserService(repo)

	_, err := svc.Delete(context.Background(), 5, superuser(5))
	assert.ErrorIs(t, err, ErrSelfDelete)
	assert.Empty(t, repo.deleted, "no mutation before the guard")
}

func TestDeleteReturnsRemovedUser(t *testing.T) {
	repo := newMemoryRepo()
	repo.users[5] = &User{ID: 5, Email: "otro@clinica.bo", Nombre: "Luis", Apellido: "Mamani"}
	svc, _ := newUserService(repo)

	user, err := svc.Delete(context.Background(), 5, superuser(1))
	require.NoError(t, err)
	assert.Equal(t, "Luis", user.Nombre)
	assert.Equal(t, []int64{5}, repo.deleted)
}

func TestCreateEnforcesPasswordPolicy(t *testing.T) {
	svc, _ := newUserService(newMemoryRepo())

	_, err := svc.Create(context.Background(), CreateInput{Email: "a@b.co", Password: ""})
	assert.ErrorIs(t, err, ErrPasswordRequired)

	_, err = svc.Create(context.Background(), CreateInput{Email: "a@b.co", Password: "corta"})
	assert.ErrorIs(t, err, ErrPasswordTooShort)
}

func TestCreateStoresBcryptHash(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newUserService(repo)

	user, err := svc.Create(context.Background(), CreateInput{Email: "a@b.co", Nombre: "Ana", Password: "segura-y-larga"})
	require.NoError(t, err)
	hash := repo.passwords[user.ID]
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("segura-y-larga")))
}

func TestChangePasswordSelfIsAllowedAndAudited(t *testing.T) {
	repo := newMemoryRepo()
	repo.users[7] = &User{ID: 7, Email: "doc@clinica.bo"}
	svc, sink := newUserService(repo)

	requester := &perms.Identity{ID: 7, Email: "doc@clinica.bo", IsActive: true}
	err := svc.ChangePassword(context.Background(), 7, "nueva-password", requester, "10.0.0.1")
	require.NoError(t, err)

	require.Len(t, sink.acciones, 1)
	assert.Equal(t, "Cambió password del usuario doc@clinica.bo", sink.acciones[0])
	assert.Equal(t, int64(7), *sink.actors[0])
}

func TestChangePasswordByThirdPartyIsForbidden(t *testing.T) {
	repo := newMemoryRepo()
	repo.users[7] = &User{ID: 7, Email: "doc@clinica.bo"}
	svc, sink := newUserService(repo)

	requester := &perms.Identity{ID: 8, IsActive: true}
	err := svc.ChangePassword(context.Background(), 7, "nueva-password", requester, "10.0.0.1")
	assert.ErrorIs(t, err, ErrPasswordChangeForbidden)
	assert.Empty(t, sink.acciones)
}

func TestChangePasswordBySuperuserIsAllowed(t *testing.T) {
	repo := newMemoryRepo()
	repo.users[7] = &User{ID: 7, Email: "doc@clinica.bo"}
	svc, _ := newUserService(repo)

	err := svc.ChangePassword(context.Background(), 7, "nueva-password", superuser(1), "10.0.0.1")
	assert.NoError(t, err)
}

func TestChangePasswordValidatesLength(t *testing.T) {
	repo := newMemoryRepo()
	repo.users[7] = &User{ID: 7, Email: "doc@clinica.bo"}
	svc, _ := newUserService(repo)

	err := svc.ChangePassword(context.Background(), 7, "corta", superuser(1), "10.0.0.1")
	assert.ErrorIs(t, err, ErrPasswordTooShort)
}

func TestAssignRoleRequiresSuperuser(t *testing.T) {
	repo := newMemoryRepo()
	repo.users[7] = &User{ID: 7, Email: "doc@clinica.bo"}
	svc, _ := newUserService(repo)

	requester := &perms.Identity{ID: 9, IsActive: true}
	_, err := svc.AssignRole(context.Background(), 7, 1, requester, "10.0.0.1")
	assert.ErrorIs(t, err, ErrRoleChangeForbidden)
}

func TestAssignRoleAuditsWithNames(t *testing.T) {
	repo := newMemoryRepo()
	repo.users[7] = &User{ID: 7, Email: "doc@clinica.bo"}
	repo.roles[3] = "Médico"
	svc, sink := newUserService(repo)

	roleName, err := svc.AssignRole(context.Background(), 7, 3, superuser(1), "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "Médico", roleName)
	require.Len(t, sink.acciones, 1)
	assert.Equal(t, "Asignó usuario doc@clinica.bo al rol Médico", sink.acciones[0])
	assert.Equal(t, &RoleRef{ID: 3, Nombre: "Médico"}, repo.users[7].Rol)
}

func TestAssignRoleUnknownRole(t *testing.T) {
	repo := newMemoryRepo()
	repo.users[7] = &User{ID: 7, Email: "doc@clinica.bo"}
	svc, _ := newUserService(repo)

	_, err := svc.AssignRole(context.Background(), 7, 99, superuser(1), "10.0.0.1")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRemoveRoleClearsAndAudits(t *testing.T) {
	repo := newMemoryRepo()
	repo.users[7] = &User{ID: 7, Email: "doc@clinica.bo", Rol: &RoleRef{ID: 3, Nombre: "Médico"}}
	svc, sink := newUserService(repo)

	roleName, err := svc.RemoveRole(context.Background(), 7, superuser(1), "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "Médico", roleName)
	assert.Nil(t, repo.users[7].Rol)
	require.Len(t, sink.acciones, 1)
	assert.Equal(t, "Removió usuario doc@clinica.bo del rol Médico", sink.acciones[0])
}

func TestRemoveRoleWithoutRole(t *testing.T) {
	repo := newMemoryRepo()
	repo.users[7] = &User{ID: 7, Email: "doc@clinica.bo"}
	svc, _ := newUserService(repo)

	_, err := svc.RemoveRole(context.Background(), 7, superuser(1), "10.0.0.1")
	assert.ErrorIs(t, err, ErrNoRoleAssigned)
}
