package patients

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinicore/internal/platform/db"
	"github.com/clinicore/clinicore/internal/platform/httpx"
	"github.com/clinicore/clinicore/internal/shared"
)

// Repository defines persistence operations for patients.
type Repository interface {
	List(ctx context.Context, filters ListFilters, limit, offset int) ([]Paciente, int, error)
	Get(ctx context.Context, id uuid.UUID) (*Paciente, error)
	Create(ctx context.Context, input CreateInput) (*Paciente, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*Paciente, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// PGRepository implements Repository on PostgreSQL.
//
// The nombre_busq and apellido_busq columns hold accent-stripped lowercase
// copies maintained on every write, so listado filters match "Pérez" and
// "Perez" alike.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const pacienteSelect = `
	SELECT p.id, p.nombre, p.apellido, p.ci, p.telefono, p.email,
	       p.fecha_nacimiento, p.sexo, p.residencia, p.direccion,
	       p.religion, p.ocupacion, p.asegurado,
	       b.id, b.nombre, b.apellido
	FROM pacientes p
	LEFT JOIN pacientes b ON b.id = p.beneficiario_de`

var orderColumns = map[string]string{
	"nombre":           "p.nombre",
	"apellido":         "p.apellido",
	"fecha_nacimiento": "p.fecha_nacimiento",
}

func orderClause(ordering string) string {
	dir := "ASC"
	field := ordering
	if strings.HasPrefix(field, "-") {
		dir = "DESC"
		field = field[1:]
	}
	col, ok := orderColumns[field]
	if !ok {
		return "p.apellido ASC, p.nombre ASC"
	}
	return col + " " + dir
}

func buildFilters(filters ListFilters) ([]string, []any) {
	var conditions []string
	var args []any

	add := func(cond string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if filters.Nombre != "" {
		add("p.nombre_busq LIKE '%%' || $%d || '%%'", shared.Fold(filters.Nombre))
	}
	if filters.Apellido != "" {
		add("p.apellido_busq LIKE '%%' || $%d || '%%'", shared.Fold(filters.Apellido))
	}
	if filters.CI != "" {
		add("p.ci ILIKE '%%' || $%d || '%%'", filters.CI)
	}
	if filters.Sexo != "" {
		add("p.sexo = $%d", filters.Sexo)
	}
	if filters.Asegurado != nil {
		add("p.asegurado = $%d", *filters.Asegurado)
	}
	if filters.BeneficiarioDe != nil {
		add("p.beneficiario_de = $%d", *filters.BeneficiarioDe)
	}
	if filters.NacimientoDesde != nil {
		add("p.fecha_nacimiento >= $%d", *filters.NacimientoDesde)
	}
	if filters.NacimientoHasta != nil {
		add("p.fecha_nacimiento <= $%d", *filters.NacimientoHasta)
	}
	if filters.Search != "" {
		args = append(args, shared.Fold(filters.Search))
		n := len(args)
		conditions = append(conditions, fmt.Sprintf(
			"(p.nombre_busq LIKE '%%' || $%d || '%%' OR p.apellido_busq LIKE '%%' || $%d || '%%' OR lower(p.ci) LIKE '%%' || $%d || '%%')",
			n, n, n))
	}
	return conditions, args
}

// List returns patients matching the filters plus the total match count.
func (r *PGRepository) List(ctx context.Context, filters ListFilters, limit, offset int) ([]Paciente, int, error) {
	conditions, args := buildFilters(filters)
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countSQL := `SELECT COUNT(*) FROM pacientes p` + where
	if err := r.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count pacientes: %w", err)
	}

	listSQL := fmt.Sprintf("%s%s ORDER BY %s LIMIT $%d OFFSET $%d",
		pacienteSelect, where, orderClause(filters.Ordering), len(args)+1, len(args)+2)
	rows, err := r.pool.Query(ctx, listSQL, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list pacientes: %w", err)
	}
	defer rows.Close()

	var result []Paciente
	for rows.Next() {
		paciente, err := scanPaciente(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *paciente)
	}
	return result, total, rows.Err()
}

// Get fetches a patient by id.
func (r *PGRepository) Get(ctx context.Context, id uuid.UUID) (*Paciente, error) {
	row := r.pool.QueryRow(ctx, pacienteSelect+` WHERE p.id = $1`, id)
	paciente, err := scanPaciente(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return paciente, nil
}

// Create inserts a patient and returns the stored row.
func (r *PGRepository) Create(ctx context.Context, input CreateInput) (*Paciente, error) {
	id := uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO pacientes (id, nombre, apellido, ci, telefono, email,
		                       fecha_nacimiento, sexo, residencia, direccion,
		                       religion, ocupacion, asegurado, beneficiario_de,
		                       nombre_busq, apellido_busq)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8,
		        NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, ''), NULLIF($12, ''),
		        $13, $14, $15, $16)`,
		id, input.Nombre, input.Apellido, input.CI, input.Telefono, input.Email,
		input.FechaNacimiento, input.Sexo, input.Residencia, input.Direccion,
		input.Religion, input.Ocupacion, input.Asegurado, input.BeneficiarioDeID,
		shared.Fold(input.Nombre), shared.Fold(input.Apellido))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, httpx.ErrDuplicate
		}
		return nil, fmt.Errorf("create paciente: %w", err)
	}
	return r.Get(ctx, id)
}

// Update applies the non-nil fields of input and returns the updated row.
func (r *PGRepository) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*Paciente, error) {
	var sets []string
	var args []any
	set := func(col string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if input.Nombre != nil {
		set("nombre", *input.Nombre)
		set("nombre_busq", shared.Fold(*input.Nombre))
	}
	if input.Apellido != nil {
		set("apellido", *input.Apellido)
		set("apellido_busq", shared.Fold(*input.Apellido))
	}
	if input.CI != nil {
		set("ci", *input.CI)
	}
	if input.Telefono != nil {
		set("telefono", *input.Telefono)
	}
	if input.Email != nil {
		set("email", *input.Email)
	}
	if input.FechaNacimiento != nil {
		set("fecha_nacimiento", *input.FechaNacimiento)
	}
	if input.Sexo != nil {
		set("sexo", *input.Sexo)
	}
	if input.Residencia != nil {
		set("residencia", *input.Residencia)
	}
	if input.Direccion != nil {
		set("direccion", *input.Direccion)
	}
	if input.Religion != nil {
		set("religion", *input.Religion)
	}
	if input.Ocupacion != nil {
		set("ocupacion", *input.Ocupacion)
	}
	if input.Asegurado != nil {
		set("asegurado", *input.Asegurado)
	}
	if input.ClearBeneficiario {
		sets = append(sets, "beneficiario_de = NULL")
	} else if input.BeneficiarioDeID != nil {
		set("beneficiario_de", *input.BeneficiarioDeID)
	}
	if len(sets) == 0 {
		return r.Get(ctx, id)
	}

	args = append(args, id)
	sql := fmt.Sprintf("UPDATE pacientes SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, httpx.ErrDuplicate
		}
		return nil, fmt.Errorf("update paciente: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, shared.ErrNotFound
	}
	return r.Get(ctx, id)
}

// Delete removes a patient row. Dependents referencing it as beneficiario
// keep their rows with the reference nulled by the schema.
func (r *PGRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM pacientes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete paciente: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanPaciente(row pgx.Row) (*Paciente, error) {
	var p Paciente
	var telefono, email, residencia, direccion, religion, ocupacion pgtype.Text
	var benID pgtype.UUID
	var benNombre, benApellido pgtype.Text

	err := row.Scan(&p.ID, &p.Nombre, &p.Apellido, &p.CI, &telefono, &email,
		&p.FechaNacimiento, &p.Sexo, &residencia, &direccion,
		&religion, &ocupacion, &p.Asegurado,
		&benID, &benNombre, &benApellido)
	if err != nil {
		return nil, err
	}
	p.Telefono = telefono.String
	p.Email = email.String
	p.Residencia = residencia.String
	p.Direccion = direccion.String
	p.Religion = religion.String
	p.Ocupacion = ocupacion.String
	if benID.Valid {
		p.BeneficiarioDe = &BeneficiarioRef{
			ID:       uuid.UUID(benID.Bytes),
			Nombre:   benNombre.String,
			Apellido: benApellido.String,
		}
	}
	return &p, nil
}

var _ Repository = (*PGRepository)(nil)
