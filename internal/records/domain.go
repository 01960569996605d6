package records

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Permission and audit scopes. Forms and their questions share a module tag;
// clinical histories and their answers share another.
const (
	ModuloHistoriales = "historiales"
	ModuloFormularios = "formularios"
)

// Question data types accepted by dynamic forms.
const (
	TipoTexto    = "texto"
	TipoNumero   = "numero"
	TipoBooleano = "booleano"
	TipoFecha    = "fecha"
	TipoTextarea = "textarea"
)

// Formulario is a specialty-scoped dynamic form.
type Formulario struct {
	ID             uuid.UUID  `json:"id"`
	Nombre         string     `json:"nombre"`
	EspecialidadID int64      `json:"especialidad"`
	Activo         bool       `json:"activo"`
	Preguntas      []Pregunta `json:"preguntas"`
}

// Pregunta is one form question, ordered within its form.
type Pregunta struct {
	ID           uuid.UUID `json:"id"`
	FormularioID uuid.UUID `json:"formulario"`
	Texto        string    `json:"texto"`
	TipoDato     string    `json:"tipo_dato"`
	Obligatorio  bool      `json:"obligatorio"`
	Orden        int64     `json:"orden"`
}

// Respuesta is the captured answer to one question of a history.
type Respuesta struct {
	ID          uuid.UUID  `json:"id"`
	PreguntaID  uuid.UUID  `json:"pregunta"`
	HistorialID *uuid.UUID `json:"historial_clinico,omitempty"`
	Valor       string     `json:"valor"`
}

// HistorialClinico is one clinical encounter record.
type HistorialClinico struct {
	ID             uuid.UUID      `json:"id"`
	PacienteID     uuid.UUID      `json:"paciente"`
	UsuarioID      int64          `json:"usuario"`
	EspecialidadID int64          `json:"especialidad"`
	FormularioID   *uuid.UUID     `json:"formulario,omitempty"`
	Fecha          time.Time      `json:"fecha"`
	MotivoConsulta string         `json:"motivo_consulta"`
	Fuente         string         `json:"fuente"`
	Confiabilidad  string         `json:"confiabilidad,omitempty"`
	Diagnostico    string         `json:"diagnostico"`
	SignosVitales  map[string]any `json:"signos_vitales"`
	Respuestas     []Respuesta    `json:"respuesta"`
}

// String is the display name used in bitácora entries.
func (h HistorialClinico) String() string {
	return fmt.Sprintf("%s - %s", h.PacienteID, h.Fecha.Format("2006-01-02 15:04"))
}

// String is the display name used in bitácora entries.
func (p Pregunta) String() string {
	return fmt.Sprintf("%s (%s)", p.Texto, p.TipoDato)
}

// HistorialFilters narrows the history listing.
type HistorialFilters struct {
	PacienteID     *uuid.UUID
	UsuarioID      *int64
	EspecialidadID *int64
	FechaDesde     *time.Time
	FechaHasta     *time.Time
	Search         string
}

// AnswerInput is one answer submitted with a new history.
type AnswerInput struct {
	PreguntaID uuid.UUID
	Valor      string
}

// HistorialInput carries the writable fields of a history.
type HistorialInput struct {
	PacienteID     uuid.UUID
	UsuarioID      int64
	EspecialidadID int64
	FormularioID   *uuid.UUID
	MotivoConsulta string
	Fuente         string
	Confiabilidad  string
	Diagnostico    string
	SignosVitales  map[string]any
	Respuestas     []AnswerInput
}

// FormularioInput carries the writable fields of a form.
type FormularioInput struct {
	Nombre         string
	EspecialidadID int64
	Activo         bool
}

// PreguntaInput carries the writable fields of a question.
type PreguntaInput struct {
	FormularioID uuid.UUID
	Texto        string
	TipoDato     string
	Obligatorio  bool
	Orden        int64
}

// ValidTipoDato reports whether t names a supported question data type.
func ValidTipoDato(t string) bool {
	switch t {
	case TipoTexto, TipoNumero, TipoBooleano, TipoFecha, TipoTextarea:
		return true
	}
	return false
}
