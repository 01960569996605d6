package roles

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/clinicore/internal/audit"
	"github.com/clinicore/clinicore/internal/perms"
	"github.com/clinicore/clinicore/internal/shared"
)

type stubRepo struct {
	roles    map[int64]*Rol
	permisos []Permiso
	nextID   int64
}

func newStubRepo() *stubRepo {
	return &stubRepo{roles: map[int64]*Rol{}, nextID: 1}
}

func (s *stubRepo) ListRoles(context.Context) ([]Rol, error) {
	var out []Rol
	for _, rol := range s.roles {
		out = append(out, *rol)
	}
	return out, nil
}

func (s *stubRepo) GetRole(_ context.Context, id int64) (*Rol, error) {
	rol, ok := s.roles[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *rol
	return &clone, nil
}

func (s *stubRepo) CreateRole(_ context.Context, input WriteInput) (*Rol, error) {
	for _, id := range input.Permisos {
		if !s.permissionExists(id) {
			return nil, ErrUnknownPermissions
		}
	}
	rol := &Rol{ID: s.nextID, Nombre: input.Nombre}
	for _, id := range input.Permisos {
		rol.Permisos = append(rol.Permisos, s.permissionByID(id))
	}
	s.roles[s.nextID] = rol
	s.nextID++
	clone := *rol
	return &clone, nil
}

func (s *stubRepo) UpdateRole(_ context.Context, id int64, input WriteInput) (*Rol, error) {
	rol, ok := s.roles[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	rol.Nombre = input.Nombre
	rol.Permisos = nil
	for _, pid := range input.Permisos {
		if !s.permissionExists(pid) {
			return nil, ErrUnknownPermissions
		}
		rol.Permisos = append(rol.Permisos, s.permissionByID(pid))
	}
	clone := *rol
	return &clone, nil
}

func (s *stubRepo) DeleteRole(_ context.Context, id int64) error {
	if _, ok := s.roles[id]; !ok {
		return shared.ErrNotFound
	}
	delete(s.roles, id)
	return nil
}

func (s *stubRepo) ListPermissions(context.Context) ([]Permiso, error) {
	return s.permisos, nil
}

func (s *stubRepo) CreatePermission(_ context.Context, codename, descripcion string) (*Permiso, error) {
	p := Permiso{ID: int64(len(s.permisos) + 1), Codename: codename, Descripcion: descripcion}
	s.permisos = append(s.permisos, p)
	return &p, nil
}

func (s *stubRepo) DeletePermission(_ context.Context, id int64) error {
	for i, p := range s.permisos {
		if p.ID == id {
			s.permisos = append(s.permisos[:i], s.permisos[i+1:]...)
			return nil
		}
	}
	return shared.ErrNotFound
}

func (s *stubRepo) permissionExists(id int64) bool {
	for _, p := range s.permisos {
		if p.ID == id {
			return true
		}
	}
	return false
}

func (s *stubRepo) permissionByID(id int64) Permiso {
	for _, p := range s.permisos {
		if p.ID == id {
			return p
		}
	}
	return Permiso{}
}

type codenameSource map[int64][]string

func (s codenameSource) RoleCodenames(_ context.Context, roleID int64) ([]string, error) {
	return s[roleID], nil
}

type auditSink struct {
	acciones []string
}

func (s *auditSink) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	s.acciones = append(s.acciones, fmt.Sprint(args[2]))
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func newTestRouter(repo *stubRepo, source codenameSource) (*chi.Mux, *auditSink) {
	sink := &auditSink{}
	recorder := audit.NewRecorder(sink, slog.Default(), nil)
	guard := perms.Middleware{Resolver: perms.NewResolver(source), Logger: slog.Default()}
	handler := NewHandler(slog.Default(), NewService(repo), guard, audit.NewHook(recorder, Modulo), validator.New())

	router := chi.NewRouter()
	router.Route("/roles", handler.MountRoutes)
	router.Route("/permisos", handler.MountPermissionRoutes)
	return router, sink
}

func doRequest(t *testing.T, router http.Handler, method, path, body string, identity *perms.Identity) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if identity != nil {
		req = req.WithContext(perms.ContextWithIdentity(req.Context(), identity))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateRoleAsSuperuserAudits(t *testing.T) {
	repo := newStubRepo()
	repo.permisos = []Permiso{{ID: 1, Codename: "view_pacientes"}}
	router, sink := newTestRouter(repo, codenameSource{})

	admin := &perms.Identity{ID: 1, IsSuperuser: true, IsActive: true}
	rec := doRequest(t, router, http.MethodPost, "/roles/", `{"nombre":"Médico","permisos":[1]}`, admin)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "view_pacientes")
	require.Len(t, sink.acciones, 1)
	assert.Equal(t, "Creó roles: Médico", sink.acciones[0])
}

func TestCreateRoleWithUnknownPermissionFails(t *testing.T) {
	repo := newStubRepo()
	router, sink := newTestRouter(repo, codenameSource{})

	admin := &perms.Identity{ID: 1, IsSuperuser: true, IsActive: true}
	rec := doRequest(t, router, http.MethodPost, "/roles/", `{"nombre":"Médico","permisos":[99]}`, admin)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, sink.acciones)
}

func TestViewOnlyRoleCannotCreate(t *testing.T) {
	repo := newStubRepo()
	roleID := int64(2)
	source := codenameSource{roleID: {"view_roles"}}
	router, _ := newTestRouter(repo, source)

	viewer := &perms.Identity{ID: 5, RoleID: &roleID, IsActive: true}

	rec := doRequest(t, router, http.MethodGet, "/roles/", "", viewer)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/roles/", `{"nombre":"Nuevo"}`, viewer)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "add")
}

func TestAnonymousIsRejected(t *testing.T) {
	router, _ := newTestRouter(newStubRepo(), codenameSource{})

	rec := doRequest(t, router, http.MethodGet, "/roles/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPermissionCatalogueIsSuperuserOnly(t *testing.T) {
	repo := newStubRepo()
	roleID := int64(2)
	source := codenameSource{roleID: {"view_roles"}}
	router, _ := newTestRouter(repo, source)

	viewer := &perms.Identity{ID: 5, RoleID: &roleID, IsActive: true}
	rec := doRequest(t, router, http.MethodGet, "/permisos/", "", viewer)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin := &perms.Identity{ID: 1, IsSuperuser: true, IsActive: true}
	rec = doRequest(t, router, http.MethodGet, "/permisos/", "", admin)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeleteRoleAudits(t *testing.T) {
	repo := newStubRepo()
	repo.roles[9] = &Rol{ID: 9, Nombre: "Enfermería"}
	router, sink := newTestRouter(repo, codenameSource{})

	admin := &perms.Identity{ID: 1, IsSuperuser: true, IsActive: true}
	rec := doRequest(t, router, http.MethodDelete, "/roles/9", "", admin)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, sink.acciones, 1)
	assert.Equal(t, "Eliminó roles: Enfermería", sink.acciones[0])
	_, exists := repo.roles[9]
	assert.False(t, exists)
}
