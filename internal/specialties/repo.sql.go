package specialties

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

// Repository defines persistence operations for specialties.
type Repository interface {
	List(ctx context.Context, activo *bool) ([]Especialidad, error)
	Get(ctx context.Context, id int64) (*Especialidad, error)
	Create(ctx context.Context, input WriteInput) (*Especialidad, error)
	Update(ctx context.Context, id int64, input WriteInput) (*Especialidad, error)
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

// List returns specialties ordered by name.
func (r *PGRepository) List(ctx context.Context, activo *bool) ([]Especialidad, error) {
	sql := `SELECT id, nombre, descripcion, activo FROM especialidades`
	var args []any
	if activo != nil {
		sql += ` WHERE activo = $1`
		args = append(args, *activo)
	}
	sql += ` ORDER BY nombre`

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list especialidades: %w", err)
	}
	defer rows.Close()

	var result []Especialidad
	for rows.Next() {
		e, err := scanEspecialidad(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	return result, rows.Err()
}

// Get fetches a specialty by id.
func (r *PGRepository) Get(ctx context.Context, id int64) (*Especialidad, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, nombre, descripcion, activo FROM especialidades WHERE id = $1`, id)
	e, err := scanEspecialidad(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

// Create inserts a specialty.
func (r *PGRepository) Create(ctx context.Context, input WriteInput) (*Especialidad, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO especialidades (nombre, descripcion, activo)
		VALUES ($1, NULLIF($2, ''), $3) RETURNING id`,
		input.Nombre, input.Descripcion, input.Activo).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, httpx.ErrDuplicate
		}
		return nil, fmt.Errorf("create especialidad: %w", err)
	}
	return r.Get(ctx, id)
}

// Update rewrites a specialty's fields.
func (r *PGRepository) Update(ctx context.Context, id int64, input WriteInput) (*Especialidad, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE especialidades SET nombre = $1, descripcion = NULLIF($2, ''), activo = $3 WHERE id = $4`,
		input.Nombre, input.Descripcion, input.Activo, id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, httpx.ErrDuplicate
		}
		return nil, fmt.Errorf("update especialidad: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, shared.ErrNotFound
	}
	return r.Get(ctx, id)
}

// Delete removes a specialty.
func (r *PGRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM especialidades WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete especialidad: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanEspecialidad(row pgx.Row) (*Especialidad, error) {
	var e Especialidad
	var descripcion pgtype.Text
	if err := row.Scan(&e.ID, &e.Nombre, &descripcion, &e.Activo); err != nil {
		return nil, err
	}
	e.Descripcion = descripcion.String
	return &e, nil
}

var _ Repository = (*PGRepository)(nil)
