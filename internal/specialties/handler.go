package specialties

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/clinicore/clinicore/internal/audit"
	"github.com/clinicore/clinicore/internal/perms"
	"github.com/clinicore/clinicore/internal/platform/httpx"
	"github.com/clinicore/clinicore/internal/shared"
)

// Handler exposes the specialty reference endpoints.
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

// MountRoutes registers the specialty routes behind capability guards.
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

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	var activo *bool
	if raw := r.URL.Query().Get("activo"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			activo = &v
		}
	}
	result, err := h.repo.List(r.Context(), activo)
	if err != nil {
		h.logger.Error("list especialidades", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	especialidad, err := h.repo.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, especialidad)
}

type especialidadRequest struct {
	Nombre      string `json:"nombre" validate:"required,max=100"`
	Descripcion string `json:"descripcion"`
	Activo      *bool  `json:"activo"`
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (*WriteInput, bool) {
	var req especialidadRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return nil, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return nil, false
	}
	activo := true
	if req.Activo != nil {
		activo = *req.Activo
	}
	return &WriteInput{Nombre: req.Nombre, Descripcion: req.Descripcion, Activo: activo}, true
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decode(w, r)
	if !ok {
		return
	}
	especialidad, err := h.repo.Create(r.Context(), *input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.hook.Created(r, especialidad)
	httpx.JSON(w, http.StatusCreated, especialidad)
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
	especialidad, err := h.repo.Update(r.Context(), id, *input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.hook.Updated(r, especialidad)
	httpx.JSON(w, http.StatusOK, especialidad)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	especialidad, err := h.repo.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if err := h.repo.Delete(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	h.hook.Deleted(r, especialidad)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "especialidad no encontrada")
	case errors.Is(err, httpx.ErrDuplicate):
		httpx.Problem(w, http.StatusConflict, "Duplicate", "el nombre ya está en uso")
	default:
		h.logger.Error("especialidades", slog.Any("error", err))
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
