package facilities

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinicore/internal/platform/db"
	"github.com/clinicore/clinicore/internal/platform/httpx"
	"github.com/clinicore/clinicore/internal/shared"
)

// ErrUnknownEspecialidades is returned when a write references specialty
// ids that do not exist.
var ErrUnknownEspecialidades = errors.New("algunas especialidades no existen")

// Repository defines persistence operations for facilities.
type Repository interface {
	List(ctx context.Context, filters ListFilters, limit, offset int) ([]Establecimiento, int, error)
	Get(ctx context.Context, id int64) (*Establecimiento, error)
	Create(ctx context.Context, input WriteInput) (*Establecimiento, error)
	Update(ctx context.Context, id int64, input WriteInput) (*Establecimiento, error)
	Delete(ctx context.Context, id int64) error
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const establecimientoSelect = `
	SELECT e.id, e.nombre, e.direccion, e.telefono, e.correo, e.tipo_establecimiento, e.nivel
	FROM establecimientos e`

func buildFilters(filters ListFilters) (string, []any) {
	var conds []string
	var args []any

	add := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filters.Nombre != "" {
		add(`e.nombre ILIKE '%%' || $%d || '%%'`, filters.Nombre)
	}
	if filters.Tipo != "" {
		add(`e.tipo_establecimiento = $%d`, filters.Tipo)
	}
	if filters.Nivel != "" {
		add(`e.nivel = $%d`, filters.Nivel)
	}
	if len(filters.EspecialidadesIDs) > 0 {
		add(`EXISTS (SELECT 1 FROM establecimiento_especialidades ee
			WHERE ee.establecimiento_id = e.id AND ee.especialidad_id = ANY($%d))`, filters.EspecialidadesIDs)
	}
	if filters.TieneEspecialidades != nil {
		cond := `EXISTS (SELECT 1 FROM establecimiento_especialidades ee WHERE ee.establecimiento_id = e.id)`
		if !*filters.TieneEspecialidades {
			cond = "NOT " + cond
		}
		conds = append(conds, cond)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + conds[0]
		for _, c := range conds[1:] {
			where += " AND " + c
		}
	}
	return where, args
}

// List returns a filtered page of facilities plus the total match count.
func (r *PGRepository) List(ctx context.Context, filters ListFilters, limit, offset int) ([]Establecimiento, int, error) {
	where, args := buildFilters(filters)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM establecimientos e`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count establecimientos: %w", err)
	}

	sql := establecimientoSelect + where +
		fmt.Sprintf(` ORDER BY e.nombre ASC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list establecimientos: %w", err)
	}
	defer rows.Close()

	var result []Establecimiento
	for rows.Next() {
		e, err := scanEstablecimiento(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for i := range result {
		ids, err := r.facilitySpecialties(ctx, result[i].ID)
		if err != nil {
			return nil, 0, err
		}
		result[i].Especialidades = ids
	}
	return result, total, nil
}

// Get fetches a facility with its specialty ids.
func (r *PGRepository) Get(ctx context.Context, id int64) (*Establecimiento, error) {
	row := r.pool.QueryRow(ctx, establecimientoSelect+` WHERE e.id = $1`, id)
	e, err := scanEstablecimiento(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	ids, err := r.facilitySpecialties(ctx, id)
	if err != nil {
		return nil, err
	}
	e.Especialidades = ids
	return e, nil
}

// Create inserts a facility and attaches its specialty set.
func (r *PGRepository) Create(ctx context.Context, input WriteInput) (*Establecimiento, error) {
	var id int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO establecimientos (nombre, direccion, telefono, correo, tipo_establecimiento, nivel)
			VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6) RETURNING id`,
			input.Nombre, input.Direccion, input.Telefono, input.Correo, input.Tipo, input.Nivel).Scan(&id)
		if err != nil {
			return err
		}
		return replaceSpecialties(ctx, tx, id, input.Especialidades)
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, httpx.ErrDuplicate
		}
		if errors.Is(err, ErrUnknownEspecialidades) {
			return nil, ErrUnknownEspecialidades
		}
		return nil, fmt.Errorf("create establecimiento: %w", err)
	}
	return r.Get(ctx, id)
}

// Update rewrites a facility and, when Especialidades is non-nil, replaces
// its specialty set.
func (r *PGRepository) Update(ctx context.Context, id int64, input WriteInput) (*Establecimiento, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE establecimientos
			SET nombre = $1, direccion = $2, telefono = NULLIF($3, ''), correo = NULLIF($4, ''),
			    tipo_establecimiento = $5, nivel = $6
			WHERE id = $7`,
			input.Nombre, input.Direccion, input.Telefono, input.Correo, input.Tipo, input.Nivel, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		if input.Especialidades == nil {
			return nil
		}
		return replaceSpecialties(ctx, tx, id, input.Especialidades)
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, httpx.ErrDuplicate
		}
		if errors.Is(err, shared.ErrNotFound) || errors.Is(err, ErrUnknownEspecialidades) {
			return nil, err
		}
		return nil, fmt.Errorf("update establecimiento: %w", err)
	}
	return r.Get(ctx, id)
}

// Delete removes a facility. Link rows go with it via the schema's cascade.
func (r *PGRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM establecimientos WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete establecimiento: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *PGRepository) facilitySpecialties(ctx context.Context, id int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT especialidad_id FROM establecimiento_especialidades
		WHERE establecimiento_id = $1 ORDER BY especialidad_id`, id)
	if err != nil {
		return nil, fmt.Errorf("establecimiento especialidades: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var sid int64
		if err := rows.Scan(&sid); err != nil {
			return nil, err
		}
		ids = append(ids, sid)
	}
	return ids, rows.Err()
}

// replaceSpecialties diffs the stored set against the requested one and
// only touches the difference.
func replaceSpecialties(ctx context.Context, tx pgx.Tx, facilityID int64, especialidades []int64) error {
	wanted := make(map[int64]bool, len(especialidades))
	for _, id := range especialidades {
		wanted[id] = true
	}

	var count int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM especialidades WHERE id = ANY($1)`, especialidades).Scan(&count); err != nil {
		return err
	}
	if count != len(wanted) {
		return ErrUnknownEspecialidades
	}

	rows, err := tx.Query(ctx, `SELECT especialidad_id FROM establecimiento_especialidades WHERE establecimiento_id = $1`, facilityID)
	if err != nil {
		return err
	}
	current := map[int64]bool{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		current[id] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for id := range current {
		if !wanted[id] {
			if _, err := tx.Exec(ctx, `DELETE FROM establecimiento_especialidades WHERE establecimiento_id = $1 AND especialidad_id = $2`, facilityID, id); err != nil {
				return err
			}
		}
	}
	for id := range wanted {
		if !current[id] {
			if _, err := tx.Exec(ctx, `INSERT INTO establecimiento_especialidades (establecimiento_id, especialidad_id) VALUES ($1, $2)`, facilityID, id); err != nil {
				return err
			}
		}
	}
	return nil
}

func scanEstablecimiento(row pgx.Row) (*Establecimiento, error) {
	var e Establecimiento
	var telefono, correo pgtype.Text
	if err := row.Scan(&e.ID, &e.Nombre, &e.Direccion, &telefono, &correo, &e.Tipo, &e.Nivel); err != nil {
		return nil, err
	}
	e.Telefono = telefono.String
	e.Correo = correo.String
	return &e, nil
}

var _ Repository = (*PGRepository)(nil)
