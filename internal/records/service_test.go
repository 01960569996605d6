package records

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/clinicore/internal/shared"
)

type stubRepo struct {
	formularios map[uuid.UUID]*Formulario
	created     []HistorialInput
}

func newStubRepo() *stubRepo {
	return &stubRepo{formularios: map[uuid.UUID]*Formulario{}}
}

func (s *stubRepo) ListFormularios(context.Context, *int64, *bool) ([]Formulario, error) {
	var out []Formulario
	for _, f := range s.formularios {
		out = append(out, *f)
	}
	return out, nil
}

func (s *stubRepo) GetFormulario(_ context.Context, id uuid.UUID) (*Formulario, error) {
	f, ok := s.formularios[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *f
	return &clone, nil
}

func (s *stubRepo) CreateFormulario(_ context.Context, input FormularioInput) (*Formulario, error) {
	f := &Formulario{ID: uuid.New(), Nombre: input.Nombre, EspecialidadID: input.EspecialidadID, Activo: input.Activo}
	s.formularios[f.ID] = f
	return f, nil
}

func (s *stubRepo) UpdateFormulario(_ context.Context, id uuid.UUID, input FormularioInput) (*Formulario, error) {
	f, ok := s.formularios[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	f.Nombre = input.Nombre
	f.Activo = input.Activo
	return f, nil
}

func (s *stubRepo) DeleteFormulario(_ context.Context, id uuid.UUID) error {
	if _, ok := s.formularios[id]; !ok {
		return shared.ErrNotFound
	}
	delete(s.formularios, id)
	return nil
}

func (s *stubRepo) ListPreguntas(_ context.Context, formularioID *uuid.UUID) ([]Pregunta, error) {
	var out []Pregunta
	for _, f := range s.formularios {
		if formularioID != nil && f.ID != *formularioID {
			continue
		}
		out = append(out, f.Preguntas...)
	}
	return out, nil
}

func (s *stubRepo) CreatePregunta(_ context.Context, input PreguntaInput) (*Pregunta, error) {
	f, ok := s.formularios[input.FormularioID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	p := Pregunta{ID: uuid.New(), FormularioID: f.ID, Texto: input.Texto, TipoDato: input.TipoDato, Obligatorio: input.Obligatorio, Orden: input.Orden}
	f.Preguntas = append(f.Preguntas, p)
	return &p, nil
}

func (s *stubRepo) UpdatePregunta(_ context.Context, id uuid.UUID, input PreguntaInput) (*Pregunta, error) {
	return nil, shared.ErrNotFound
}

func (s *stubRepo) DeletePregunta(context.Context, uuid.UUID) error { return nil }

func (s *stubRepo) ListHistoriales(context.Context, HistorialFilters, int, int) ([]HistorialClinico, int, error) {
	return nil, 0, nil
}

func (s *stubRepo) GetHistorial(context.Context, uuid.UUID) (*HistorialClinico, error) {
	return nil, shared.ErrNotFound
}

func (s *stubRepo) CreateHistorial(_ context.Context, input HistorialInput) (*HistorialClinico, error) {
	s.created = append(s.created, input)
	return &HistorialClinico{ID: uuid.New(), PacienteID: input.PacienteID, FormularioID: input.FormularioID}, nil
}

func (s *stubRepo) UpdateHistorial(_ context.Context, id uuid.UUID, input HistorialInput) (*HistorialClinico, error) {
	return &HistorialClinico{ID: id}, nil
}

func (s *stubRepo) DeleteHistorial(context.Context, uuid.UUID) error { return nil }

func (s *stubRepo) ListRespuestas(context.Context, *uuid.UUID, *uuid.UUID) ([]Respuesta, error) {
	return nil, nil
}

func formWithQuestions(repo *stubRepo, obligatorias, opcionales int) (*Formulario, []Pregunta) {
	f := &Formulario{ID: uuid.New(), Nombre: "Triaje", EspecialidadID: 1, Activo: true}
	for i := 0; i < obligatorias; i++ {
		f.Preguntas = append(f.Preguntas, Pregunta{ID: uuid.New(), FormularioID: f.ID, Texto: "Obligatoria", TipoDato: TipoTexto, Obligatorio: true, Orden: int64(i)})
	}
	for i := 0; i < opcionales; i++ {
		f.Preguntas = append(f.Preguntas, Pregunta{ID: uuid.New(), FormularioID: f.ID, Texto: "Opcional", TipoDato: TipoTexto, Orden: int64(obligatorias + i)})
	}
	repo.formularios[f.ID] = f
	return f, f.Preguntas
}

func baseInput(formularioID *uuid.UUID) HistorialInput {
	return HistorialInput{
		PacienteID:     uuid.New(),
		UsuarioID:      42,
		EspecialidadID: 1,
		FormularioID:   formularioID,
		MotivoConsulta: "Dolor torácico",
		Fuente:         "paciente",
		Diagnostico:    "pendiente",
		SignosVitales:  map[string]any{"pulso": 80},
	}
}

func TestCreateHistorialRequiresObligatoryAnswers(t *testing.T) {
	repo := newStubRepo()
	form, preguntas := formWithQuestions(repo, 1, 1)
	svc := NewService(repo)

	input := baseInput(&form.ID)
	input.Respuestas = []AnswerInput{{PreguntaID: preguntas[1].ID, Valor: "solo la opcional"}}

	_, err := svc.CreateHistorial(context.Background(), input)
	assert.ErrorIs(t, err, ErrRespuestaObligatoria)
	assert.Empty(t, repo.created, "validation failures must not persist")
}

func TestCreateHistorialRejectsEmptyObligatoryAnswer(t *testing.T) {
	repo := newStubRepo()
	form, preguntas := formWithQuestions(repo, 1, 0)
	svc := NewService(repo)

	input := baseInput(&form.ID)
	input.Respuestas = []AnswerInput{{PreguntaID: preguntas[0].ID, Valor: ""}}

	_, err := svc.CreateHistorial(context.Background(), input)
	assert.ErrorIs(t, err, ErrRespuestaObligatoria)
}

func TestCreateHistorialWithAllAnswersSucceeds(t *testing.T) {
	repo := newStubRepo()
	form, preguntas := formWithQuestions(repo, 2, 1)
	svc := NewService(repo)

	input := baseInput(&form.ID)
	for _, p := range preguntas {
		input.Respuestas = append(input.Respuestas, AnswerInput{PreguntaID: p.ID, Valor: "ok"})
	}

	historial, err := svc.CreateHistorial(context.Background(), input)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, historial.ID)
	require.Len(t, repo.created, 1)
}

func TestCreateHistorialRejectsForeignQuestion(t *testing.T) {
	repo := newStubRepo()
	form, _ := formWithQuestions(repo, 0, 1)
	svc := NewService(repo)

	input := baseInput(&form.ID)
	input.Respuestas = []AnswerInput{{PreguntaID: uuid.New(), Valor: "de otro formulario"}}

	_, err := svc.CreateHistorial(context.Background(), input)
	assert.ErrorIs(t, err, ErrPreguntaAjena)
}

func TestCreateHistorialWithoutFormSkipsValidation(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo)

	_, err := svc.CreateHistorial(context.Background(), baseInput(nil))
	require.NoError(t, err)
}

func TestCreateHistorialAnswersWithoutFormAreRejected(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo)

	input := baseInput(nil)
	input.Respuestas = []AnswerInput{{PreguntaID: uuid.New(), Valor: "x"}}

	_, err := svc.CreateHistorial(context.Background(), input)
	assert.ErrorIs(t, err, ErrPreguntaAjena)
}

func TestCreatePreguntaValidatesTipoDato(t *testing.T) {
	repo := newStubRepo()
	form, _ := formWithQuestions(repo, 0, 0)
	svc := NewService(repo)

	_, err := svc.CreatePregunta(context.Background(), PreguntaInput{FormularioID: form.ID, Texto: "¿?", TipoDato: "rango"})
	assert.ErrorIs(t, err, ErrTipoDatoInvalido)

	p, err := svc.CreatePregunta(context.Background(), PreguntaInput{FormularioID: form.ID, Texto: "¿Fuma?", TipoDato: TipoBooleano})
	require.NoError(t, err)
	assert.Equal(t, TipoBooleano, p.TipoDato)
}

func TestCreatePreguntaUnknownForm(t *testing.T) {
	svc := NewService(newStubRepo())

	_, err := svc.CreatePregunta(context.Background(), PreguntaInput{FormularioID: uuid.New(), Texto: "¿?", TipoDato: TipoTexto})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
