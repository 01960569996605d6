package facilities

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
	establecimientos map[int64]*Establecimiento
	conocidas        map[int64]bool
	nextID           int64
}

func newStubRepo(especialidades ...int64) *stubRepo {
	conocidas := map[int64]bool{}
	for _, id := range especialidades {
		conocidas[id] = true
	}
	return &stubRepo{establecimientos: map[int64]*Establecimiento{}, conocidas: conocidas, nextID: 1}
}

func (s *stubRepo) List(_ context.Context, filters ListFilters, _, _ int) ([]Establecimiento, int, error) {
	var out []Establecimiento
	for _, e := range s.establecimientos {
		if filters.Tipo != "" && e.Tipo != filters.Tipo {
			continue
		}
		if filters.Nivel != "" && e.Nivel != filters.Nivel {
			continue
		}
		if filters.TieneEspecialidades != nil && *filters.TieneEspecialidades != (len(e.Especialidades) > 0) {
			continue
		}
		out = append(out, *e)
	}
	return out, len(out), nil
}

func (s *stubRepo) Get(_ context.Context, id int64) (*Establecimiento, error) {
	e, ok := s.establecimientos[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *e
	return &clone, nil
}

func (s *stubRepo) Create(_ context.Context, input WriteInput) (*Establecimiento, error) {
	for _, id := range input.Especialidades {
		if !s.conocidas[id] {
			return nil, ErrUnknownEspecialidades
		}
	}
	e := &Establecimiento{
		ID:             s.nextID,
		Nombre:         input.Nombre,
		Direccion:      input.Direccion,
		Tipo:           input.Tipo,
		Nivel:          input.Nivel,
		Especialidades: input.Especialidades,
	}
	s.nextID++
	s.establecimientos[e.ID] = e
	clone := *e
	return &clone, nil
}

func (s *stubRepo) Update(_ context.Context, id int64, input WriteInput) (*Establecimiento, error) {
	e, ok := s.establecimientos[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	for _, sid := range input.Especialidades {
		if !s.conocidas[sid] {
			return nil, ErrUnknownEspecialidades
		}
	}
	e.Nombre = input.Nombre
	e.Tipo = input.Tipo
	e.Nivel = input.Nivel
	if input.Especialidades != nil {
		e.Especialidades = input.Especialidades
	}
	clone := *e
	return &clone, nil
}

func (s *stubRepo) Delete(_ context.Context, id int64) error {
	if _, ok := s.establecimientos[id]; !ok {
		return shared.ErrNotFound
	}
	delete(s.establecimientos, id)
	return nil
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
	handler := NewHandler(slog.Default(), repo, guard, audit.NewHook(recorder, Modulo), validator.New())

	router := chi.NewRouter()
	router.Route("/sucursales", handler.MountRoutes)
	return router, sink
}

func doRequest(t *testing.T, router http.Handler, method, path, body string, identity *perms.Identity) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if identity != nil {
		req = req.WithContext(perms.ContextWithIdentity(req.Context(), identity))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func adminIdentity(roleID int64) *perms.Identity {
	return &perms.Identity{ID: 8, Email: "admin@clinica.bo", RoleID: &roleID, IsActive: true}
}

func TestCreateFacilityAudits(t *testing.T) {
	repo := newStubRepo(1, 2)
	source := codenameSource{5: {"add_sucursales", "view_sucursales"}}
	router, sink := newTestRouter(repo, source)

	body := `{"nombre":"Hospital Central","direccion":"Av. Saavedra 2302","tipo_establecimiento":"hospital","nivel":"nivel_3","especialidades_ids":[1,2]}`
	rec := doRequest(t, router, http.MethodPost, "/sucursales/", body, adminIdentity(5))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, sink.acciones, 1)
	assert.Equal(t, "Creó sucursales: Hospital Central", sink.acciones[0])
}

func TestCreateFacilityRejectsUnknownSpecialty(t *testing.T) {
	repo := newStubRepo(1)
	router, sink := newTestRouter(repo, codenameSource{5: {"add_sucursales"}})

	body := `{"nombre":"Clínica Sur","direccion":"Calle 21","tipo_establecimiento":"clinica","nivel":"nivel_2","especialidades_ids":[99]}`
	rec := doRequest(t, router, http.MethodPost, "/sucursales/", body, adminIdentity(5))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "especialidades")
	assert.Empty(t, repo.establecimientos)
	assert.Empty(t, sink.acciones)
}

func TestCreateFacilityValidatesTipo(t *testing.T) {
	router, _ := newTestRouter(newStubRepo(), codenameSource{5: {"add_sucursales"}})

	body := `{"nombre":"Puesto","direccion":"Camino","tipo_establecimiento":"farmacia","nivel":"nivel_1"}`
	rec := doRequest(t, router, http.MethodPost, "/sucursales/", body, adminIdentity(5))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListFacilityFilterTieneEspecialidades(t *testing.T) {
	repo := newStubRepo(1)
	repo.establecimientos[1] = &Establecimiento{ID: 1, Nombre: "Con", Tipo: TipoHospital, Nivel: Nivel3, Especialidades: []int64{1}}
	repo.establecimientos[2] = &Establecimiento{ID: 2, Nombre: "Sin", Tipo: TipoConsultorio, Nivel: Nivel1}
	router, _ := newTestRouter(repo, codenameSource{5: {"view_sucursales"}})

	rec := doRequest(t, router, http.MethodGet, "/sucursales/?tiene_especialidades=true", "", adminIdentity(5))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Con")
	assert.NotContains(t, rec.Body.String(), "Sin")
}

func TestDeleteFacilityRequiresPermission(t *testing.T) {
	repo := newStubRepo()
	repo.establecimientos[4] = &Establecimiento{ID: 4, Nombre: "Clínica Norte", Tipo: TipoClinica, Nivel: Nivel2}
	router, sink := newTestRouter(repo, codenameSource{5: {"view_sucursales"}})

	rec := doRequest(t, router, http.MethodDelete, "/sucursales/4", "", adminIdentity(5))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Len(t, repo.establecimientos, 1)
	assert.Empty(t, sink.acciones)
}

func TestDeleteFacilityAudits(t *testing.T) {
	repo := newStubRepo()
	repo.establecimientos[4] = &Establecimiento{ID: 4, Nombre: "Clínica Norte", Tipo: TipoClinica, Nivel: Nivel2}
	router, sink := newTestRouter(repo, codenameSource{5: {"delete_sucursales"}})

	rec := doRequest(t, router, http.MethodDelete, "/sucursales/4", "", adminIdentity(5))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, sink.acciones, 1)
	assert.Equal(t, "Eliminó sucursales: Clínica Norte", sink.acciones[0])
}
