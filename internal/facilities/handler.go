package facilities

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/clinicore/clinicore/internal/audit"
	"github.com/clinicore/clinicore/internal/perms"
	"github.com/clinicore/clinicore/internal/platform/httpx"
	"github.com/clinicore/clinicore/internal/shared"
)

// Handler exposes the facility endpoints.
type Handler struct {
	logger   *slog.Logger
	repo     Repository
	guard    perms.Middleware
	hook     audit.Hook
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, repo Repository, guard perms.Middleware, hook audit.Hook, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, repo: repo, guard: guard, hook: hook, validate: validate}
}

// MountRoutes registers the facility routes behind capability guards.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(Modulo, perms.ActionView))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(Modulo, perms.ActionAdd))
		r.Post("/", h.create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(Modulo, perms.ActionChange))
		r.Put("/{id}", h.update)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(Modulo, perms.ActionDelete))
		r.Delete("/{id}", h.delete)
	})
}

func parseFilters(r *http.Request) ListFilters {
	q := r.URL.Query()
	filters := ListFilters{
		Nombre: q.Get("nombre"),
		Tipo:   q.Get("tipo_establecimiento"),
		Nivel:  q.Get("nivel"),
	}
	if raw := q.Get("especialidades_ids"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64); err == nil {
				filters.EspecialidadesIDs = append(filters.EspecialidadesIDs, id)
			}
		}
	}
	if raw := q.Get("tiene_especialidades"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			filters.TieneEspecialidades = &v
		}
	}
	return filters
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePageParams(r, 10, 100)
	result, total, err := h.repo.List(r.Context(), parseFilters(r), page.PageSize, page.Offset())
	if err != nil {
		h.logger.Error("list establecimientos", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"results":    result,
		"pagination": shared.NewPagination(page.Page, page.PageSize, total),
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	establecimiento, err := h.repo.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, establecimiento)
}

type establecimientoRequest struct {
	Nombre            string  `json:"nombre" validate:"required,max=150"`
	Direccion         string  `json:"direccion" validate:"required,max=255"`
	Telefono          string  `json:"telefono" validate:"max=20"`
	Correo            string  `json:"correo" validate:"omitempty,email"`
	Tipo              string  `json:"tipo_establecimiento" validate:"required,oneof=hospital clinica consultorio centro_salud"`
	Nivel             string  `json:"nivel" validate:"required,oneof=nivel_1 nivel_2 nivel_3"`
	EspecialidadesIDs []int64 `json:"especialidades_ids"`
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (*WriteInput, bool) {
	var req establecimientoRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return nil, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return nil, false
	}
	return &WriteInput{
		Nombre:         req.Nombre,
		Direccion:      req.Direccion,
		Telefono:       req.Telefono,
		Correo:         req.Correo,
		Tipo:           req.Tipo,
		Nivel:          req.Nivel,
		Especialidades: req.EspecialidadesIDs,
	}, true
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decode(w, r)
	if !ok {
		return
	}
	if input.Especialidades == nil {
		input.Especialidades = []int64{}
	}
	establecimiento, err := h.repo.Create(r.Context(), *input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.hook.Created(r, establecimiento)
	httpx.JSON(w, http.StatusCreated, establecimiento)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	input, ok := h.decode(w, r)
	if !ok {
		return
	}
	establecimiento, err := h.repo.Update(r.Context(), id, *input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.hook.Updated(r, establecimiento)
	httpx.JSON(w, http.StatusOK, establecimiento)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	establecimiento, err := h.repo.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if err := h.repo.Delete(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	h.hook.Deleted(r, establecimiento)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "establecimiento no encontrado")
	case errors.Is(err, ErrUnknownEspecialidades):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, httpx.ErrDuplicate):
		httpx.Problem(w, http.StatusConflict, "Duplicate", "el nombre ya está en uso")
	default:
		h.logger.Error("establecimientos", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id inválido")
		return 0, false
	}
	return id, true
}
