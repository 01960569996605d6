package patients

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/audit"
	"github.com/clinicore/clinicore/internal/perms"
	"github.com/clinicore/clinicore/internal/platform/httpx"
	"github.com/clinicore/clinicore/internal/shared"
)

// Handler exposes the patient registry endpoints.
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

// MountRoutes registers the patient routes behind capability guards.
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
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filters := parseFilters(r)
	page := shared.ParsePageParams(r, 10, 100)

	result, err := h.service.List(r.Context(), filters, page)
	if err != nil {
		h.logger.Error("list pacientes", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"results":    result.Pacientes,
		"pagination": result.Pagination,
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	paciente, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, paciente)
}

type pacienteRequest struct {
	Nombre           string  `json:"nombre" validate:"required,max=100"`
	Apellido         string  `json:"apellido" validate:"required,max=100"`
	CI               string  `json:"ci" validate:"required,max=20"`
	Telefono         string  `json:"telefono" validate:"max=20"`
	Email            string  `json:"email" validate:"omitempty,email"`
	FechaNacimiento  string  `json:"fecha_nacimiento" validate:"required"`
	Sexo             string  `json:"sexo" validate:"required,oneof=M F O"`
	Residencia       string  `json:"residencia" validate:"max=100"`
	Direccion        string  `json:"direccion"`
	Religion         string  `json:"religion" validate:"max=50"`
	Ocupacion        string  `json:"ocupacion" validate:"max=100"`
	Asegurado        bool    `json:"asegurado"`
	BeneficiarioDeID *string `json:"beneficiario_de_id"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req pacienteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	nacimiento, err := time.Parse("2006-01-02", req.FechaNacimiento)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "fecha_nacimiento inválida")
		return
	}
	beneficiario, err := parseOptionalUUID(req.BeneficiarioDeID)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "beneficiario_de_id inválido")
		return
	}

	paciente, err := h.service.Create(r.Context(), CreateInput{
		Nombre:           req.Nombre,
		Apellido:         req.Apellido,
		CI:               req.CI,
		Telefono:         req.Telefono,
		Email:            req.Email,
		FechaNacimiento:  nacimiento,
		Sexo:             req.Sexo,
		Residencia:       req.Residencia,
		Direccion:        req.Direccion,
		Religion:         req.Religion,
		Ocupacion:        req.Ocupacion,
		Asegurado:        req.Asegurado,
		BeneficiarioDeID: beneficiario,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.hook.Created(r, paciente)
	httpx.JSON(w, http.StatusCreated, paciente)
}

type pacienteUpdateRequest struct {
	Nombre           *string `json:"nombre" validate:"omitempty,max=100"`
	Apellido         *string `json:"apellido" validate:"omitempty,max=100"`
	CI               *string `json:"ci" validate:"omitempty,max=20"`
	Telefono         *string `json:"telefono" validate:"omitempty,max=20"`
	Email            *string `json:"email" validate:"omitempty,email"`
	FechaNacimiento  *string `json:"fecha_nacimiento"`
	Sexo             *string `json:"sexo" validate:"omitempty,oneof=M F O"`
	Residencia       *string `json:"residencia" validate:"omitempty,max=100"`
	Direccion        *string `json:"direccion"`
	Religion         *string `json:"religion" validate:"omitempty,max=50"`
	Ocupacion        *string `json:"ocupacion" validate:"omitempty,max=100"`
	Asegurado        *bool   `json:"asegurado"`
	BeneficiarioDeID *string `json:"beneficiario_de_id"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	var req pacienteUpdateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	input := UpdateInput{
		Nombre:     req.Nombre,
		Apellido:   req.Apellido,
		CI:         req.CI,
		Telefono:   req.Telefono,
		Email:      req.Email,
		Sexo:       req.Sexo,
		Residencia: req.Residencia,
		Direccion:  req.Direccion,
		Religion:   req.Religion,
		Ocupacion:  req.Ocupacion,
		Asegurado:  req.Asegurado,
	}
	if req.FechaNacimiento != nil {
		nacimiento, err := time.Parse("2006-01-02", *req.FechaNacimiento)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "fecha_nacimiento inválida")
			return
		}
		input.FechaNacimiento = &nacimiento
	}
	if req.BeneficiarioDeID != nil {
		if *req.BeneficiarioDeID == "" {
			input.ClearBeneficiario = true
		} else {
			beneficiario, err := uuid.Parse(*req.BeneficiarioDeID)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "beneficiario_de_id inválido")
				return
			}
			input.BeneficiarioDeID = &beneficiario
		}
	}

	paciente, err := h.service.Update(r.Context(), id, input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.hook.Updated(r, paciente)
	httpx.JSON(w, http.StatusOK, paciente)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	paciente, err := h.service.Delete(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.hook.Deleted(r, paciente)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "paciente no encontrado")
	case errors.Is(err, httpx.ErrDuplicate):
		httpx.Problem(w, http.StatusConflict, "Duplicate", "el ci ya está registrado")
	case errors.Is(err, ErrSelfBeneficiario):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("pacientes", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func pathUUID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id inválido")
		return uuid.Nil, false
	}
	return id, true
}

func parseOptionalUUID(raw *string) (*uuid.UUID, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func parseFilters(r *http.Request) ListFilters {
	q := r.URL.Query()
	filters := ListFilters{
		Nombre:   q.Get("nombre"),
		Apellido: q.Get("apellido"),
		CI:       q.Get("ci"),
		Sexo:     q.Get("sexo"),
		Search:   q.Get("search"),
		Ordering: q.Get("ordering"),
	}
	if raw := q.Get("asegurado"); raw != "" {
		if v, err := parseBool(raw); err == nil {
			filters.Asegurado = &v
		}
	}
	if raw := q.Get("beneficiario_de"); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			filters.BeneficiarioDe = &id
		}
	}
	if raw := q.Get("fecha_nacimiento_after"); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			filters.NacimientoDesde = &t
		}
	}
	if raw := q.Get("fecha_nacimiento_before"); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			filters.NacimientoHasta = &t
		}
	}
	return filters
}

func parseBool(raw string) (bool, error) {
	switch raw {
	case "true", "True", "1":
		return true, nil
	case "false", "False", "0":
		return false, nil
	}
	return false, errors.New("invalid bool")
}
