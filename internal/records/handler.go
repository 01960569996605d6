package records

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/audit"
	"github.com/clinicore/clinicore/internal/perms"
	"github.com/clinicore/clinicore/internal/platform/httpx"
	"github.com/clinicore/clinicore/internal/shared"
)

// Handler exposes the dynamic forms and clinical history endpoints.
type Handler struct {
	logger        *slog.Logger
	service       *Service
	guard         perms.Middleware
	historialHook audit.Hook
	formHook      audit.Hook
	validate      *validator.Validate
}

// NewHandler constructs a Handler. Histories and forms audit under their own
// module tags.
func NewHandler(logger *slog.Logger, service *Service, guard perms.Middleware, recorder *audit.Recorder, validate *validator.Validate) *Handler {
	return &Handler{
		logger:        logger,
		service:       service,
		guard:         guard,
		historialHook: audit.NewHook(recorder, ModuloHistoriales),
		formHook:      audit.NewHook(recorder, ModuloFormularios),
		validate:      validate,
	}
}

// MountHistorialRoutes registers the clinical history routes.
func (h *Handler) MountHistorialRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(ModuloHistoriales, perms.ActionView))
		r.Get("/", h.listHistoriales)
		r.Get("/{id}", h.getHistorial)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(ModuloHistoriales, perms.ActionAdd))
		r.Post("/", h.createHistorial)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(ModuloHistoriales, perms.ActionChange))
		r.Put("/{id}", h.updateHistorial)
		r.Patch("/{id}", h.updateHistorial)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(ModuloHistoriales, perms.ActionDelete))
		r.Delete("/{id}", h.deleteHistorial)
	})
}

// MountFormularioRoutes registers the form catalogue routes.
func (h *Handler) MountFormularioRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(ModuloFormularios, perms.ActionView))
		r.Get("/", h.listFormularios)
		r.Get("/{id}", h.getFormulario)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(ModuloFormularios, perms.ActionAdd))
		r.Post("/", h.createFormulario)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(ModuloFormularios, perms.ActionChange))
		r.Put("/{id}", h.updateFormulario)
		r.Patch("/{id}", h.updateFormulario)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(ModuloFormularios, perms.ActionDelete))
		r.Delete("/{id}", h.deleteFormulario)
	})
}

// MountPreguntaRoutes registers question routes under the forms module.
func (h *Handler) MountPreguntaRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(ModuloFormularios, perms.ActionView))
		r.Get("/", h.listPreguntas)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(ModuloFormularios, perms.ActionAdd))
		r.Post("/", h.createPregunta)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(ModuloFormularios, perms.ActionChange))
		r.Put("/{id}", h.updatePregunta)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(ModuloFormularios, perms.ActionDelete))
		r.Delete("/{id}", h.deletePregunta)
	})
}

// MountRespuestaRoutes registers the read-only answer listing under the
// histories module.
func (h *Handler) MountRespuestaRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(ModuloHistoriales, perms.ActionView))
		r.Get("/", h.listRespuestas)
	})
}

func (h *Handler) listHistoriales(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := HistorialFilters{Search: q.Get("search")}
	if raw := q.Get("paciente"); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			filters.PacienteID = &id
		}
	}
	if raw := q.Get("usuario"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filters.UsuarioID = &id
		}
	}
	if raw := q.Get("especialidad"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filters.EspecialidadID = &id
		}
	}
	if raw := q.Get("fecha_after"); raw != "" {
		if t, err := parseTimestamp(raw); err == nil {
			filters.FechaDesde = &t
		}
	}
	if raw := q.Get("fecha_before"); raw != "" {
		if t, err := parseTimestamp(raw); err == nil {
			filters.FechaHasta = &t
		}
	}
	page := shared.ParsePageParams(r, 10, 100)

	result, err := h.service.ListHistoriales(r.Context(), filters, page)
	if err != nil {
		h.logger.Error("list historiales", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"results":    result.Historiales,
		"pagination": result.Pagination,
	})
}

func (h *Handler) getHistorial(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	historial, err := h.service.GetHistorial(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, historial)
}

type answerRequest struct {
	Pregunta string `json:"pregunta" validate:"required,uuid"`
	Valor    string `json:"valor"`
}

type historialRequest struct {
	Paciente       string          `json:"paciente" validate:"required,uuid"`
	Especialidad   int64           `json:"especialidad" validate:"required"`
	Formulario     *string         `json:"formulario" validate:"omitempty,uuid"`
	MotivoConsulta string          `json:"motivo_consulta" validate:"required"`
	Fuente         string          `json:"fuente" validate:"required,max=255"`
	Confiabilidad  string          `json:"confiabilidad" validate:"max=225"`
	Diagnostico    string          `json:"diagnostico" validate:"required"`
	SignosVitales  map[string]any  `json:"signos_vitales" validate:"required"`
	Respuestas     []answerRequest `json:"respuestas"`
}

func (h *Handler) decodeHistorial(w http.ResponseWriter, r *http.Request) (*HistorialInput, bool) {
	var req historialRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return nil, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return nil, false
	}

	paciente, err := uuid.Parse(req.Paciente)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "paciente inválido")
		return nil, false
	}
	identity := perms.IdentityFromContext(r.Context())

	input := &HistorialInput{
		PacienteID:     paciente,
		UsuarioID:      identity.ID,
		EspecialidadID: req.Especialidad,
		MotivoConsulta: req.MotivoConsulta,
		Fuente:         req.Fuente,
		Confiabilidad:  req.Confiabilidad,
		Diagnostico:    req.Diagnostico,
		SignosVitales:  req.SignosVitales,
	}
	if req.Formulario != nil {
		fid, err := uuid.Parse(*req.Formulario)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "formulario inválido")
			return nil, false
		}
		input.FormularioID = &fid
	}
	for _, answer := range req.Respuestas {
		pid, err := uuid.Parse(answer.Pregunta)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "pregunta inválida")
			return nil, false
		}
		input.Respuestas = append(input.Respuestas, AnswerInput{PreguntaID: pid, Valor: answer.Valor})
	}
	return input, true
}

func (h *Handler) createHistorial(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeHistorial(w, r)
	if !ok {
		return
	}
	historial, err := h.service.CreateHistorial(r.Context(), *input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.historialHook.Created(r, historial)
	httpx.JSON(w, http.StatusCreated, historial)
}

func (h *Handler) updateHistorial(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	input, ok := h.decodeHistorial(w, r)
	if !ok {
		return
	}
	historial, err := h.service.UpdateHistorial(r.Context(), id, *input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.historialHook.Updated(r, historial)
	httpx.JSON(w, http.StatusOK, historial)
}

func (h *Handler) deleteHistorial(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	historial, err := h.service.DeleteHistorial(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.historialHook.Deleted(r, historial)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listFormularios(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var especialidad *int64
	if raw := q.Get("especialidad"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			especialidad = &id
		}
	}
	var activo *bool
	if raw := q.Get("activo"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			activo = &v
		}
	}

	result, err := h.service.ListFormularios(r.Context(), especialidad, activo)
	if err != nil {
		h.logger.Error("list formularios", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) getFormulario(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	formulario, err := h.service.GetFormulario(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, formulario)
}

type formularioRequest struct {
	Nombre       string `json:"nombre" validate:"required,max=255"`
	Especialidad int64  `json:"especialidad" validate:"required"`
	Activo       *bool  `json:"activo"`
}

func (h *Handler) decodeFormulario(w http.ResponseWriter, r *http.Request) (*FormularioInput, bool) {
	var req formularioRequest
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
	return &FormularioInput{Nombre: req.Nombre, EspecialidadID: req.Especialidad, Activo: activo}, true
}

func (h *Handler) createFormulario(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeFormulario(w, r)
	if !ok {
		return
	}
	formulario, err := h.service.CreateFormulario(r.Context(), *input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.formHook.Created(r, formulario)
	httpx.JSON(w, http.StatusCreated, formulario)
}

func (h *Handler) updateFormulario(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	input, ok := h.decodeFormulario(w, r)
	if !ok {
		return
	}
	formulario, err := h.service.UpdateFormulario(r.Context(), id, *input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.formHook.Updated(r, formulario)
	httpx.JSON(w, http.StatusOK, formulario)
}

func (h *Handler) deleteFormulario(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	formulario, err := h.service.DeleteFormulario(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.formHook.Deleted(r, formulario)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listPreguntas(w http.ResponseWriter, r *http.Request) {
	var formulario *uuid.UUID
	if raw := r.URL.Query().Get("formulario"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "formulario inválido")
			return
		}
		formulario = &id
	}

	result, err := h.service.ListPreguntas(r.Context(), formulario)
	if err != nil {
		h.logger.Error("list preguntas", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

type preguntaRequest struct {
	Formulario  string `json:"formulario" validate:"required,uuid"`
	Texto       string `json:"texto" validate:"required"`
	TipoDato    string `json:"tipo_dato" validate:"required"`
	Obligatorio bool   `json:"obligatorio"`
	Orden       int64  `json:"orden" validate:"gte=0"`
}

func (h *Handler) decodePregunta(w http.ResponseWriter, r *http.Request) (*PreguntaInput, bool) {
	var req preguntaRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return nil, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return nil, false
	}
	fid, err := uuid.Parse(req.Formulario)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "formulario inválido")
		return nil, false
	}
	return &PreguntaInput{
		FormularioID: fid,
		Texto:        req.Texto,
		TipoDato:     req.TipoDato,
		Obligatorio:  req.Obligatorio,
		Orden:        req.Orden,
	}, true
}

func (h *Handler) createPregunta(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodePregunta(w, r)
	if !ok {
		return
	}
	pregunta, err := h.service.CreatePregunta(r.Context(), *input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, pregunta)
}

func (h *Handler) updatePregunta(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	input, ok := h.decodePregunta(w, r)
	if !ok {
		return
	}
	pregunta, err := h.service.UpdatePregunta(r.Context(), id, *input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pregunta)
}

func (h *Handler) deletePregunta(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeletePregunta(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listRespuestas(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var historial, pregunta *uuid.UUID
	if raw := q.Get("historial"); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			historial = &id
		}
	}
	if raw := q.Get("pregunta"); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			pregunta = &id
		}
	}

	result, err := h.service.ListRespuestas(r.Context(), historial, pregunta)
	if err != nil {
		h.logger.Error("list respuestas", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "recurso no encontrado")
	case errors.Is(err, ErrTipoDatoInvalido),
		errors.Is(err, ErrRespuestaObligatoria),
		errors.Is(err, ErrPreguntaAjena):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("records", slog.Any("error", err))
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

func parseTimestamp(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}
