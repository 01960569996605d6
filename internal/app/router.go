package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/clinicore/clinicore/internal/audit"
	"github.com/clinicore/clinicore/internal/auth"
	"github.com/clinicore/clinicore/internal/facilities"
	"github.com/clinicore/clinicore/internal/observability"
	"github.com/clinicore/clinicore/internal/patients"
	"github.com/clinicore/clinicore/internal/perms"
	"github.com/clinicore/clinicore/internal/records"
	"github.com/clinicore/clinicore/internal/roles"
	"github.com/clinicore/clinicore/internal/shared"
	"github.com/clinicore/clinicore/internal/specialties"
	"github.com/clinicore/clinicore/internal/users"
	"github.com/clinicore/clinicore/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	AuthRepo       auth.Repository
	Recorder       *audit.Recorder
	Guard          perms.Middleware

	AuthHandler        *auth.Handler
	UsersHandler       *users.Handler
	RolesHandler       *roles.Handler
	PermsHandler       *perms.Handler
	PatientsHandler    *patients.Handler
	RecordsHandler     *records.Handler
	SpecialtiesHandler *specialties.Handler
	FacilitiesHandler  *facilities.Handler
	AuditHandler       *audit.Handler
	JobsHandler        *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router with the full API surface mounted
// under /api.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		AuthRepo:       params.AuthRepo,
		Recorder:       params.Recorder,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", params.AuthHandler.MountRoutes)
		r.Route("/usuarios", func(r chi.Router) {
			params.PermsHandler.MountRoutes(r)
			params.UsersHandler.MountRoutes(r)
		})
		r.Route("/roles", params.RolesHandler.MountRoutes)
		r.Route("/permisos", params.RolesHandler.MountPermissionRoutes)
		r.Route("/pacientes", params.PatientsHandler.MountRoutes)
		r.Route("/historiales", params.RecordsHandler.MountHistorialRoutes)
		r.Route("/formularios", params.RecordsHandler.MountFormularioRoutes)
		r.Route("/preguntas", params.RecordsHandler.MountPreguntaRoutes)
		r.Route("/respuestas", params.RecordsHandler.MountRespuestaRoutes)
		r.Route("/especialidades", params.SpecialtiesHandler.MountRoutes)
		r.Route("/sucursales", params.FacilitiesHandler.MountRoutes)
		r.Route("/bitacora", func(r chi.Router) {
			r.Use(params.Guard.RequireSuperuser)
			params.AuditHandler.MountRoutes(r)
		})
		if params.JobsHandler != nil {
			r.Route("/jobs", func(r chi.Router) {
				r.Use(params.Guard.RequireSuperuser)
				params.JobsHandler.MountRoutes(r)
			})
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
