package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinicore/internal/platform/db"
	"github.com/clinicore/clinicore/internal/shared"
)

// Repository defines persistence operations for forms, questions, histories
// and answers.
type Repository interface {
	ListFormularios(ctx context.Context, especialidadID *int64, activo *bool) ([]Formulario, error)
	GetFormulario(ctx context.Context, id uuid.UUID) (*Formulario, error)
	CreateFormulario(ctx context.Context, input FormularioInput) (*Formulario, error)
	UpdateFormulario(ctx context.Context, id uuid.UUID, input FormularioInput) (*Formulario, error)
	DeleteFormulario(ctx context.Context, id uuid.UUID) error

	ListPreguntas(ctx context.Context, formularioID *uuid.UUID) ([]Pregunta, error)
	CreatePregunta(ctx context.Context, input PreguntaInput) (*Pregunta, error)
	UpdatePregunta(ctx context.Context, id uuid.UUID, input PreguntaInput) (*Pregunta, error)
	DeletePregunta(ctx context.Context, id uuid.UUID) error

	ListHistoriales(ctx context.Context, filters HistorialFilters, limit, offset int) ([]HistorialClinico, int, error)
	GetHistorial(ctx context.Context, id uuid.UUID) (*HistorialClinico, error)
	CreateHistorial(ctx context.Context, input HistorialInput) (*HistorialClinico, error)
	UpdateHistorial(ctx context.Context, id uuid.UUID, input HistorialInput) (*HistorialClinico, error)
	DeleteHistorial(ctx context.Context, id uuid.UUID) error

	ListRespuestas(ctx context.Context, historialID, preguntaID *uuid.UUID) ([]Respuesta, error)
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// ListFormularios returns forms ordered by name.
func (r *PGRepository) ListFormularios(ctx context.Context, especialidadID *int64, activo *bool) ([]Formulario, error) {
	var conditions []string
	var args []any
	if especialidadID != nil {
		args = append(args, *especialidadID)
		conditions = append(conditions, fmt.Sprintf("especialidad_id = $%d", len(args)))
	}
	if activo != nil {
		args = append(args, *activo)
		conditions = append(conditions, fmt.Sprintf("activo = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	rows, err := r.pool.Query(ctx, `SELECT id, nombre, especialidad_id, activo FROM formularios`+where+` ORDER BY nombre`, args...)
	if err != nil {
		return nil, fmt.Errorf("list formularios: %w", err)
	}
	defer rows.Close()

	var result []Formulario
	for rows.Next() {
		var f Formulario
		if err := rows.Scan(&f.ID, &f.Nombre, &f.EspecialidadID, &f.Activo); err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range result {
		id := result[i].ID
		preguntas, err := r.ListPreguntas(ctx, &id)
		if err != nil {
			return nil, err
		}
		result[i].Preguntas = preguntas
	}
	return result, nil
}

// GetFormulario fetches a form with its questions.
func (r *PGRepository) GetFormulario(ctx context.Context, id uuid.UUID) (*Formulario, error) {
	var f Formulario
	err := r.pool.QueryRow(ctx, `SELECT id, nombre, especialidad_id, activo FROM formularios WHERE id = $1`, id).
		Scan(&f.ID, &f.Nombre, &f.EspecialidadID, &f.Activo)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	preguntas, err := r.ListPreguntas(ctx, &id)
	if err != nil {
		return nil, err
	}
	f.Preguntas = preguntas
	return &f, nil
}

// CreateFormulario inserts a form.
func (r *PGRepository) CreateFormulario(ctx context.Context, input FormularioInput) (*Formulario, error) {
	id := uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO formularios (id, nombre, especialidad_id, activo)
		VALUES ($1, $2, $3, $4)`, id, input.Nombre, input.EspecialidadID, input.Activo)
	if err != nil {
		return nil, fmt.Errorf("create formulario: %w", err)
	}
	return r.GetFormulario(ctx, id)
}

// UpdateFormulario rewrites a form's fields.
func (r *PGRepository) UpdateFormulario(ctx context.Context, id uuid.UUID, input FormularioInput) (*Formulario, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE formularios SET nombre = $1, especialidad_id = $2, activo = $3 WHERE id = $4`,
		input.Nombre, input.EspecialidadID, input.Activo, id)
	if err != nil {
		return nil, fmt.Errorf("update formulario: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, shared.ErrNotFound
	}
	return r.GetFormulario(ctx, id)
}

// DeleteFormulario removes a form; questions cascade in the schema.
func (r *PGRepository) DeleteFormulario(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM formularios WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete formulario: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListPreguntas returns questions, optionally scoped to one form, ordered by
// their declared position.
func (r *PGRepository) ListPreguntas(ctx context.Context, formularioID *uuid.UUID) ([]Pregunta, error) {
	sql := `SELECT id, formulario_id, texto, tipo_dato, obligatorio, orden FROM preguntas`
	var args []any
	if formularioID != nil {
		sql += ` WHERE formulario_id = $1`
		args = append(args, *formularioID)
	}
	sql += ` ORDER BY orden`

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list preguntas: %w", err)
	}
	defer rows.Close()

	var result []Pregunta
	for rows.Next() {
		var p Pregunta
		if err := rows.Scan(&p.ID, &p.FormularioID, &p.Texto, &p.TipoDato, &p.Obligatorio, &p.Orden); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// CreatePregunta inserts a question.
func (r *PGRepository) CreatePregunta(ctx context.Context, input PreguntaInput) (*Pregunta, error) {
	p := Pregunta{
		ID:           uuid.New(),
		FormularioID: input.FormularioID,
		Texto:        input.Texto,
		TipoDato:     input.TipoDato,
		Obligatorio:  input.Obligatorio,
		Orden:        input.Orden,
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO preguntas (id, formulario_id, texto, tipo_dato, obligatorio, orden)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.FormularioID, p.Texto, p.TipoDato, p.Obligatorio, p.Orden)
	if err != nil {
		return nil, fmt.Errorf("create pregunta: %w", err)
	}
	return &p, nil
}

// UpdatePregunta rewrites a question's fields.
func (r *PGRepository) UpdatePregunta(ctx context.Context, id uuid.UUID, input PreguntaInput) (*Pregunta, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE preguntas SET formulario_id = $1, texto = $2, tipo_dato = $3, obligatorio = $4, orden = $5
		WHERE id = $6`,
		input.FormularioID, input.Texto, input.TipoDato, input.Obligatorio, input.Orden, id)
	if err != nil {
		return nil, fmt.Errorf("update pregunta: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, shared.ErrNotFound
	}
	return &Pregunta{
		ID:           id,
		FormularioID: input.FormularioID,
		Texto:        input.Texto,
		TipoDato:     input.TipoDato,
		Obligatorio:  input.Obligatorio,
		Orden:        input.Orden,
	}, nil
}

// DeletePregunta removes a question.
func (r *PGRepository) DeletePregunta(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM preguntas WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete pregunta: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

const historialSelect = `
	SELECT id, paciente_id, usuario_id, especialidad_id, formulario_id, fecha,
	       motivo_consulta, fuente, confiabilidad, diagnostico, signos_vitales
	FROM historiales`

func buildHistorialFilters(filters HistorialFilters) ([]string, []any) {
	var conditions []string
	var args []any

	add := func(cond string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if filters.PacienteID != nil {
		add("paciente_id = $%d", *filters.PacienteID)
	}
	if filters.UsuarioID != nil {
		add("usuario_id = $%d", *filters.UsuarioID)
	}
	if filters.EspecialidadID != nil {
		add("especialidad_id = $%d", *filters.EspecialidadID)
	}
	if filters.FechaDesde != nil {
		add("fecha >= $%d", *filters.FechaDesde)
	}
	if filters.FechaHasta != nil {
		add("fecha <= $%d", *filters.FechaHasta)
	}
	if filters.Search != "" {
		args = append(args, filters.Search)
		n := len(args)
		conditions = append(conditions, fmt.Sprintf(
			`(motivo_consulta ILIKE '%%' || $%d || '%%' OR diagnostico ILIKE '%%' || $%d || '%%'
			 OR fuente ILIKE '%%' || $%d || '%%' OR confiabilidad ILIKE '%%' || $%d || '%%')`,
			n, n, n, n))
	}
	return conditions, args
}

// ListHistoriales returns histories newest first plus the total match count.
func (r *PGRepository) ListHistoriales(ctx context.Context, filters HistorialFilters, limit, offset int) ([]HistorialClinico, int, error) {
	conditions, args := buildHistorialFilters(filters)
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM historiales`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count historiales: %w", err)
	}

	listSQL := fmt.Sprintf("%s%s ORDER BY fecha DESC LIMIT $%d OFFSET $%d",
		historialSelect, where, len(args)+1, len(args)+2)
	rows, err := r.pool.Query(ctx, listSQL, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list historiales: %w", err)
	}
	defer rows.Close()

	var result []HistorialClinico
	for rows.Next() {
		h, err := scanHistorial(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *h)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for i := range result {
		id := result[i].ID
		respuestas, err := r.ListRespuestas(ctx, &id, nil)
		if err != nil {
			return nil, 0, err
		}
		result[i].Respuestas = respuestas
	}
	return result, total, nil
}

// GetHistorial fetches a history with its answers.
func (r *PGRepository) GetHistorial(ctx context.Context, id uuid.UUID) (*HistorialClinico, error) {
	row := r.pool.QueryRow(ctx, historialSelect+` WHERE id = $1`, id)
	h, err := scanHistorial(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	respuestas, err := r.ListRespuestas(ctx, &id, nil)
	if err != nil {
		return nil, err
	}
	h.Respuestas = respuestas
	return h, nil
}

// CreateHistorial inserts a history and its answers in one transaction.
func (r *PGRepository) CreateHistorial(ctx context.Context, input HistorialInput) (*HistorialClinico, error) {
	id := uuid.New()
	vitales, err := json.Marshal(input.SignosVitales)
	if err != nil {
		return nil, fmt.Errorf("marshal signos_vitales: %w", err)
	}

	err = db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO historiales (id, paciente_id, usuario_id, especialidad_id, formulario_id,
			                         fecha, motivo_consulta, fuente, confiabilidad, diagnostico, signos_vitales)
			VALUES ($1, $2, $3, $4, $5, NOW(), $6, $7, NULLIF($8, ''), $9, $10)`,
			id, input.PacienteID, input.UsuarioID, input.EspecialidadID, input.FormularioID,
			input.MotivoConsulta, input.Fuente, input.Confiabilidad, input.Diagnostico, vitales)
		if err != nil {
			return err
		}
		for _, answer := range input.Respuestas {
			_, err := tx.Exec(ctx, `
				INSERT INTO respuestas (id, pregunta_id, historial_id, valor)
				VALUES ($1, $2, $3, $4)`,
				uuid.New(), answer.PreguntaID, id, answer.Valor)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create historial: %w", err)
	}
	return r.GetHistorial(ctx, id)
}

// UpdateHistorial rewrites a history's fields; answers are replaced when
// provided.
func (r *PGRepository) UpdateHistorial(ctx context.Context, id uuid.UUID, input HistorialInput) (*HistorialClinico, error) {
	vitales, err := json.Marshal(input.SignosVitales)
	if err != nil {
		return nil, fmt.Errorf("marshal signos_vitales: %w", err)
	}

	err = db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE historiales
			SET paciente_id = $1, usuario_id = $2, especialidad_id = $3, formulario_id = $4,
			    motivo_consulta = $5, fuente = $6, confiabilidad = NULLIF($7, ''),
			    diagnostico = $8, signos_vitales = $9
			WHERE id = $10`,
			input.PacienteID, input.UsuarioID, input.EspecialidadID, input.FormularioID,
			input.MotivoConsulta, input.Fuente, input.Confiabilidad, input.Diagnostico, vitales, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		if input.Respuestas == nil {
			return nil
		}
		if _, err := tx.Exec(ctx, `DELETE FROM respuestas WHERE historial_id = $1`, id); err != nil {
			return err
		}
		for _, answer := range input.Respuestas {
			_, err := tx.Exec(ctx, `
				INSERT INTO respuestas (id, pregunta_id, historial_id, valor)
				VALUES ($1, $2, $3, $4)`,
				uuid.New(), answer.PreguntaID, id, answer.Valor)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("update historial: %w", err)
	}
	return r.GetHistorial(ctx, id)
}

// DeleteHistorial removes a history; answers cascade in the schema.
func (r *PGRepository) DeleteHistorial(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM historiales WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete historial: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListRespuestas returns answers filtered by history and/or question.
func (r *PGRepository) ListRespuestas(ctx context.Context, historialID, preguntaID *uuid.UUID) ([]Respuesta, error) {
	var conditions []string
	var args []any
	if historialID != nil {
		args = append(args, *historialID)
		conditions = append(conditions, fmt.Sprintf("historial_id = $%d", len(args)))
	}
	if preguntaID != nil {
		args = append(args, *preguntaID)
		conditions = append(conditions, fmt.Sprintf("pregunta_id = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	rows, err := r.pool.Query(ctx, `SELECT id, pregunta_id, historial_id, valor FROM respuestas`+where, args...)
	if err != nil {
		return nil, fmt.Errorf("list respuestas: %w", err)
	}
	defer rows.Close()

	var result []Respuesta
	for rows.Next() {
		var resp Respuesta
		var historial pgtype.UUID
		if err := rows.Scan(&resp.ID, &resp.PreguntaID, &historial, &resp.Valor); err != nil {
			return nil, err
		}
		if historial.Valid {
			hid := uuid.UUID(historial.Bytes)
			resp.HistorialID = &hid
		}
		result = append(result, resp)
	}
	return result, rows.Err()
}

func scanHistorial(row pgx.Row) (*HistorialClinico, error) {
	var h HistorialClinico
	var formulario pgtype.UUID
	var confiabilidad pgtype.Text
	var vitales []byte

	err := row.Scan(&h.ID, &h.PacienteID, &h.UsuarioID, &h.EspecialidadID, &formulario, &h.Fecha,
		&h.MotivoConsulta, &h.Fuente, &confiabilidad, &h.Diagnostico, &vitales)
	if err != nil {
		return nil, err
	}
	if formulario.Valid {
		fid := uuid.UUID(formulario.Bytes)
		h.FormularioID = &fid
	}
	h.Confiabilidad = confiabilidad.String
	if len(vitales) > 0 {
		if err := json.Unmarshal(vitales, &h.SignosVitales); err != nil {
			return nil, fmt.Errorf("decode signos_vitales: %w", err)
		}
	}
	return &h, nil
}

var _ Repository = (*PGRepository)(nil)
