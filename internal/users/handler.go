package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/clinicore/clinicore/internal/audit"
	"github.com/clinicore/clinicore/internal/perms"
	"github.com/clinicore/clinicore/internal/platform/httpx"
	"github.com/clinicore/clinicore/internal/shared"
)

// Handler exposes user administration endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	guard    perms.Middleware
	hook     audit.Hook
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, guard perms.Middleware, hook audit.Hook, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, hook: hook, validate: validate}
}

// MountRoutes registers the user routes behind capability guards.
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
		r.Patch("/{id}", h.update)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(Modulo, perms.ActionDelete))
		r.Delete("/{id}", h.delete)
	})
	// Finer rules (self-or-superuser, superuser-only) live in the service.
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAuthenticated)
		r.Post("/{id}/set-password", h.setPassword)
		r.Post("/{id}/rol", h.assignRole)
		r.Delete("/{id}/rol", h.removeRole)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filters := parseFilters(r)
	page := shared.ParsePageParams(r, 10, 100)

	result, err := h.service.List(r.Context(), filters, page)
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"results":    result.Users,
		"pagination": result.Pagination,
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	user, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

type createRequest struct {
	Email             string `json:"email" validate:"required,email"`
	Nombre            string `json:"nombre" validate:"required,max=100"`
	Apellido          string `json:"apellido" validate:"required,max=100"`
	Password          string `json:"password" validate:"required"`
	FechaNacimiento   string `json:"fecha_nacimiento"`
	RolID             *int64 `json:"rol"`
	EspecialidadID    *int64 `json:"especialidad"`
	EstablecimientoID *int64 `json:"establecimiento"`
	IsActive          *bool  `json:"is_active"`
	IsStaff           *bool  `json:"is_staff"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	nacimiento, err := parseOptionalDate(req.FechaNacimiento)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "fecha_nacimiento inválida")
		return
	}

	user, err := h.service.Create(r.Context(), CreateInput{
		Email:             req.Email,
		Nombre:            req.Nombre,
		Apellido:          req.Apellido,
		Password:          req.Password,
		FechaNacimiento:   nacimiento,
		RolID:             req.RolID,
		EspecialidadID:    req.EspecialidadID,
		EstablecimientoID: req.EstablecimientoID,
		IsActive:          req.IsActive,
		IsStaff:           req.IsStaff,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.hook.Created(r, user)
	httpx.JSON(w, http.StatusCreated, user)
}

type updateRequest struct {
	Email             *string `json:"email" validate:"omitempty,email"`
	Nombre            *string `json:"nombre" validate:"omitempty,max=100"`
	Apellido          *string `json:"apellido" validate:"omitempty,max=100"`
	FechaNacimiento   *string `json:"fecha_nacimiento"`
	RolID             *int64  `json:"rol"`
	EspecialidadID    *int64  `json:"especialidad"`
	EstablecimientoID *int64  `json:"establecimiento"`
	IsActive          *bool   `json:"is_active"`
	IsStaff           *bool   `json:"is_staff"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	input := UpdateInput{
		Email:             req.Email,
		Nombre:            req.Nombre,
		Apellido:          req.Apellido,
		RolID:             req.RolID,
		EspecialidadID:    req.EspecialidadID,
		EstablecimientoID: req.EstablecimientoID,
		IsActive:          req.IsActive,
		IsStaff:           req.IsStaff,
	}
	if req.FechaNacimiento != nil {
		nacimiento, err := parseOptionalDate(*req.FechaNacimiento)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "fecha_nacimiento inválida")
			return
		}
		input.FechaNacimiento = nacimiento
	}

	user, err := h.service.Update(r.Context(), id, input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.hook.Updated(r, user)
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	user, err := h.service.Delete(r.Context(), id, perms.IdentityFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.hook.Deleted(r, user)
	w.WriteHeader(http.StatusNoContent)
}

type passwordRequest struct {
	Password string `json:"password"`
}

func (h *Handler) setPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req passwordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}

	requester := perms.IdentityFromContext(r.Context())
	if err := h.service.ChangePassword(r.Context(), id, req.Password, requester, shared.ClientIP(r)); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "password actualizado correctamente"})
}

type roleRequest struct {
	RolID int64 `json:"rol" validate:"required"`
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req roleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "el id de rol es obligatorio")
		return
	}

	requester := perms.IdentityFromContext(r.Context())
	roleName, err := h.service.AssignRole(r.Context(), id, req.RolID, requester, shared.ClientIP(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "usuario asignado al rol " + roleName})
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	requester := perms.IdentityFromContext(r.Context())
	roleName, err := h.service.RemoveRole(r.Context(), id, requester, shared.ClientIP(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "usuario removido del rol " + roleName})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "usuario no encontrado")
	case errors.Is(err, httpx.ErrDuplicate):
		httpx.Problem(w, http.StatusConflict, "Duplicate", "el email ya está registrado")
	case errors.Is(err, ErrSelfDelete),
		errors.Is(err, ErrPasswordChangeForbidden),
		errors.Is(err, ErrRoleChangeForbidden):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrPasswordRequired),
		errors.Is(err, ErrPasswordTooShort),
		errors.Is(err, ErrNoRoleAssigned):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("users", slog.Any("error", err))
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

func parseFilters(r *http.Request) ListFilters {
	q := r.URL.Query()
	filters := ListFilters{
		Nombre:   q.Get("nombre"),
		Apellido: q.Get("apellido"),
		Email:    q.Get("email"),
		Search:   q.Get("search"),
		Ordering: q.Get("ordering"),
	}
	filters.RolID = queryInt64(q.Get("rol"))
	filters.EspecialidadID = queryInt64(q.Get("especialidad"))
	filters.EstablecimientoID = queryInt64(q.Get("establecimiento"))
	filters.IsActive = queryBool(q.Get("is_active"))
	filters.IsStaff = queryBool(q.Get("is_staff"))
	filters.RegistroDesde = queryTime(q.Get("fecha_registro_after"))
	filters.RegistroHasta = queryTime(q.Get("fecha_registro_before"))
	return filters
}

func queryInt64(raw string) *int64 {
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

func queryBool(raw string) *bool {
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &v
}

func queryTime(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

func parseOptionalDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
