package records

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/shared"
)

var (
	// ErrTipoDatoInvalido rejects unsupported question data types.
	ErrTipoDatoInvalido = errors.New("tipo_dato inválido")
	// ErrRespuestaObligatoria signals a required question left unanswered.
	ErrRespuestaObligatoria = errors.New("pregunta obligatoria sin respuesta")
	// ErrPreguntaAjena signals an answer to a question outside the form.
	ErrPreguntaAjena = errors.New("la pregunta no pertenece al formulario")
)

// Service handles dynamic forms and clinical histories.
type Service struct {
	repo Repository
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// HistorialResult bundles a page of histories with pagination metadata.
type HistorialResult struct {
	Historiales []HistorialClinico
	Pagination  shared.Pagination
}

// ListFormularios returns the form catalogue.
func (s *Service) ListFormularios(ctx context.Context, especialidadID *int64, activo *bool) ([]Formulario, error) {
	return s.repo.ListFormularios(ctx, especialidadID, activo)
}

// GetFormulario fetches a form with its questions.
func (s *Service) GetFormulario(ctx context.Context, id uuid.UUID) (*Formulario, error) {
	return s.repo.GetFormulario(ctx, id)
}

// CreateFormulario stores a new form.
func (s *Service) CreateFormulario(ctx context.Context, input FormularioInput) (*Formulario, error) {
	return s.repo.CreateFormulario(ctx, input)
}

// UpdateFormulario rewrites a form.
func (s *Service) UpdateFormulario(ctx context.Context, id uuid.UUID, input FormularioInput) (*Formulario, error) {
	return s.repo.UpdateFormulario(ctx, id, input)
}

// DeleteFormulario removes a form and returns the removed row.
func (s *Service) DeleteFormulario(ctx context.Context, id uuid.UUID) (*Formulario, error) {
	formulario, err := s.repo.GetFormulario(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.DeleteFormulario(ctx, id); err != nil {
		return nil, err
	}
	return formulario, nil
}

// ListPreguntas returns questions, optionally scoped to one form.
func (s *Service) ListPreguntas(ctx context.Context, formularioID *uuid.UUID) ([]Pregunta, error) {
	return s.repo.ListPreguntas(ctx, formularioID)
}

// CreatePregunta validates the data type and stores a question.
func (s *Service) CreatePregunta(ctx context.Context, input PreguntaInput) (*Pregunta, error) {
	if !ValidTipoDato(input.TipoDato) {
		return nil, ErrTipoDatoInvalido
	}
	if _, err := s.repo.GetFormulario(ctx, input.FormularioID); err != nil {
		return nil, err
	}
	return s.repo.CreatePregunta(ctx, input)
}

// UpdatePregunta validates the data type and rewrites a question.
func (s *Service) UpdatePregunta(ctx context.Context, id uuid.UUID, input PreguntaInput) (*Pregunta, error) {
	if !ValidTipoDato(input.TipoDato) {
		return nil, ErrTipoDatoInvalido
	}
	return s.repo.UpdatePregunta(ctx, id, input)
}

// DeletePregunta removes a question.
func (s *Service) DeletePregunta(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeletePregunta(ctx, id)
}

// ListHistoriales returns a filtered, paginated history listing.
func (s *Service) ListHistoriales(ctx context.Context, filters HistorialFilters, page shared.PageParams) (*HistorialResult, error) {
	items, total, err := s.repo.ListHistoriales(ctx, filters, page.PageSize, page.Offset())
	if err != nil {
		return nil, err
	}
	return &HistorialResult{Historiales: items, Pagination: shared.NewPagination(page.Page, page.PageSize, total)}, nil
}

// GetHistorial fetches a history with its answers.
func (s *Service) GetHistorial(ctx context.Context, id uuid.UUID) (*HistorialClinico, error) {
	return s.repo.GetHistorial(ctx, id)
}

// CreateHistorial validates the answers against the chosen form and stores
// the history. Every obligatory question of the form must carry a non-empty
// answer; answers to questions outside the form are rejected.
func (s *Service) CreateHistorial(ctx context.Context, input HistorialInput) (*HistorialClinico, error) {
	if err := s.checkAnswers(ctx, input); err != nil {
		return nil, err
	}
	return s.repo.CreateHistorial(ctx, input)
}

// UpdateHistorial re-validates the answers and rewrites the history.
func (s *Service) UpdateHistorial(ctx context.Context, id uuid.UUID, input HistorialInput) (*HistorialClinico, error) {
	if input.Respuestas != nil {
		if err := s.checkAnswers(ctx, input); err != nil {
			return nil, err
		}
	}
	return s.repo.UpdateHistorial(ctx, id, input)
}

// DeleteHistorial removes a history and returns the removed row.
func (s *Service) DeleteHistorial(ctx context.Context, id uuid.UUID) (*HistorialClinico, error) {
	historial, err := s.repo.GetHistorial(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.DeleteHistorial(ctx, id); err != nil {
		return nil, err
	}
	return historial, nil
}

// ListRespuestas returns answers filtered by history and/or question.
func (s *Service) ListRespuestas(ctx context.Context, historialID, preguntaID *uuid.UUID) ([]Respuesta, error) {
	return s.repo.ListRespuestas(ctx, historialID, preguntaID)
}

func (s *Service) checkAnswers(ctx context.Context, input HistorialInput) error {
	if input.FormularioID == nil {
		if len(input.Respuestas) > 0 {
			return ErrPreguntaAjena
		}
		return nil
	}

	formulario, err := s.repo.GetFormulario(ctx, *input.FormularioID)
	if err != nil {
		return err
	}

	answered := make(map[uuid.UUID]string, len(input.Respuestas))
	for _, answer := range input.Respuestas {
		answered[answer.PreguntaID] = answer.Valor
	}

	known := make(map[uuid.UUID]bool, len(formulario.Preguntas))
	for _, pregunta := range formulario.Preguntas {
		known[pregunta.ID] = true
		if !pregunta.Obligatorio {
			continue
		}
		if valor, ok := answered[pregunta.ID]; !ok || valor == "" {
			return fmt.Errorf("%w: %s", ErrRespuestaObligatoria, pregunta.Texto)
		}
	}
	for id := range answered {
		if !known[id] {
			return ErrPreguntaAjena
		}
	}
	return nil
}
