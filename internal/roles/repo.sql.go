package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinicore/internal/platform/db"
	"github.com/clinicore/clinicore/internal/platform/httpx"
	"github.com/clinicore/clinicore/internal/shared"
)

// Repository defines persistence operations for roles and permissions.
type Repository interface {
	ListRoles(ctx context.Context) ([]Rol, error)
	GetRole(ctx context.Context, id int64) (*Rol, error)
	CreateRole(ctx context.Context, input WriteInput) (*Rol, error)
	UpdateRole(ctx context.Context, id int64, input WriteInput) (*Rol, error)
	DeleteRole(ctx context.Context, id int64) error
	ListPermissions(ctx context.Context) ([]Permiso, error)
	CreatePermission(ctx context.Context, codename, descripcion string) (*Permiso, error)
	DeletePermission(ctx context.Context, id int64) error
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// ListRoles returns all roles with their permission sets.
func (r *PGRepository) ListRoles(ctx context.Context) ([]Rol, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, nombre FROM roles ORDER BY nombre`)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	var result []Rol
	for rows.Next() {
		var rol Rol
		if err := rows.Scan(&rol.ID, &rol.Nombre); err != nil {
			return nil, err
		}
		result = append(result, rol)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range result {
		permisos, err := r.rolePermissions(ctx, result[i].ID)
		if err != nil {
			return nil, err
		}
		result[i].Permisos = permisos
	}
	return result, nil
}

// GetRole fetches a role with its permissions.
func (r *PGRepository) GetRole(ctx context.Context, id int64) (*Rol, error) {
	var rol Rol
	err := r.pool.QueryRow(ctx, `SELECT id, nombre FROM roles WHERE id = $1`, id).Scan(&rol.ID, &rol.Nombre)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	permisos, err := r.rolePermissions(ctx, id)
	if err != nil {
		return nil, err
	}
	rol.Permisos = permisos
	return &rol, nil
}

// CreateRole inserts a role and attaches its permission set.
func (r *PGRepository) CreateRole(ctx context.Context, input WriteInput) (*Rol, error) {
	var id int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `INSERT INTO roles (nombre) VALUES ($1) RETURNING id`, input.Nombre).Scan(&id); err != nil {
			return err
		}
		return replacePermissions(ctx, tx, id, input.Permisos)
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, httpx.ErrDuplicate
		}
		return nil, fmt.Errorf("create role: %w", err)
	}
	return r.GetRole(ctx, id)
}

// UpdateRole renames a role and replaces its permission set.
func (r *PGRepository) UpdateRole(ctx context.Context, id int64, input WriteInput) (*Rol, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE roles SET nombre = $1 WHERE id = $2`, input.Nombre, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return replacePermissions(ctx, tx, id, input.Permisos)
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, httpx.ErrDuplicate
		}
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("update role: %w", err)
	}
	return r.GetRole(ctx, id)
}

// DeleteRole removes a role. Users holding it keep their account; the
// role_id column is nulled by the schema's ON DELETE SET NULL.
func (r *PGRepository) DeleteRole(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListPermissions returns the permission catalogue ordered by codename.
func (r *PGRepository) ListPermissions(ctx context.Context) ([]Permiso, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, codename, descripcion FROM permissions ORDER BY codename`)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	defer rows.Close()

	var result []Permiso
	for rows.Next() {
		var p Permiso
		if err := rows.Scan(&p.ID, &p.Codename, &p.Descripcion); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// CreatePermission inserts a reference permission.
func (r *PGRepository) CreatePermission(ctx context.Context, codename, descripcion string) (*Permiso, error) {
	var p Permiso
	err := r.pool.QueryRow(ctx, `
		INSERT INTO permissions (codename, descripcion) VALUES ($1, $2)
		RETURNING id, codename, descripcion`, codename, descripcion).
		Scan(&p.ID, &p.Codename, &p.Descripcion)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, httpx.ErrDuplicate
		}
		return nil, fmt.Errorf("create permission: %w", err)
	}
	return &p, nil
}

// DeletePermission removes a reference permission and detaches it from all
// roles via the schema's cascade.
func (r *PGRepository) DeletePermission(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete permission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *PGRepository) rolePermissions(ctx context.Context, roleID int64) ([]Permiso, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.codename, p.descripcion
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = $1
		ORDER BY p.codename`, roleID)
	if err != nil {
		return nil, fmt.Errorf("role permissions: %w", err)
	}
	defer rows.Close()

	var result []Permiso
	for rows.Next() {
		var p Permiso
		if err := rows.Scan(&p.ID, &p.Codename, &p.Descripcion); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// replacePermissions diffs the stored set against the requested one and
// only touches the difference.
func replacePermissions(ctx context.Context, tx pgx.Tx, roleID int64, permisos []int64) error {
	wanted := make(map[int64]bool, len(permisos))
	for _, id := range permisos {
		wanted[id] = true
	}

	var count int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM permissions WHERE id = ANY($1)`, permisos).Scan(&count); err != nil {
		return err
	}
	if count != len(wanted) {
		return ErrUnknownPermissions
	}

	rows, err := tx.Query(ctx, `SELECT permission_id FROM role_permissions WHERE role_id = $1`, roleID)
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
			if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`, roleID, id); err != nil {
				return err
			}
		}
	}
	for id := range wanted {
		if !current[id] {
			if _, err := tx.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)`, roleID, id); err != nil {
				return err
			}
		}
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
