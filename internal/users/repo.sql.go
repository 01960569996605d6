package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinicore/internal/platform/db"
	"github.com/clinicore/clinicore/internal/platform/httpx"
	"github.com/clinicore/clinicore/internal/shared"
)

// Repository defines persistence operations for the users module.
type Repository interface {
	List(ctx context.Context, filters ListFilters, limit, offset int) ([]User, int, error)
	Get(ctx context.Context, id int64) (*User, error)
	Create(ctx context.Context, input CreateInput, passwordHash string) (*User, error)
	Update(ctx context.Context, id int64, input UpdateInput) (*User, error)
	Delete(ctx context.Context, id int64) error
	SetPassword(ctx context.Context, id int64, hash string) error
	SetRole(ctx context.Context, id int64, roleID *int64) error
	RoleName(ctx context.Context, roleID int64) (string, error)
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userSelect = `
	SELECT u.id, u.email, u.nombre, u.apellido, u.fecha_nacimiento, u.fecha_registro,
	       u.role_id, r.nombre, u.especialidad_id, u.establecimiento_id,
	       u.is_active, u.is_staff, u.is_superuser
	FROM users u
	LEFT JOIN roles r ON r.id = u.role_id`

var orderColumns = map[string]string{
	"nombre":         "u.nombre",
	"apellido":       "u.apellido",
	"email":          "u.email",
	"fecha_registro": "u.fecha_registro",
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
		return "u.fecha_registro DESC"
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
		add("u.nombre ILIKE '%%' || $%d || '%%'", filters.Nombre)
	}
	if filters.Apellido != "" {
		add("u.apellido ILIKE '%%' || $%d || '%%'", filters.Apellido)
	}
	if filters.Email != "" {
		add("u.email ILIKE '%%' || $%d || '%%'", filters.Email)
	}
	if filters.RolID != nil {
		add("u.role_id = $%d", *filters.RolID)
	}
	if filters.EspecialidadID != nil {
		add("u.especialidad_id = $%d", *filters.EspecialidadID)
	}
	if filters.EstablecimientoID != nil {
		add("u.establecimiento_id = $%d", *filters.EstablecimientoID)
	}
	if filters.IsActive != nil {
		add("u.is_active = $%d", *filters.IsActive)
	}
	if filters.IsStaff != nil {
		add("u.is_staff = $%d", *filters.IsStaff)
	}
	if filters.RegistroDesde != nil {
		add("u.fecha_registro >= $%d", *filters.RegistroDesde)
	}
	if filters.RegistroHasta != nil {
		add("u.fecha_registro <= $%d", *filters.RegistroHasta)
	}
	if filters.Search != "" {
		args = append(args, filters.Search)
		n := len(args)
		conditions = append(conditions, fmt.Sprintf(
			`(u.nombre ILIKE '%%' || $%d || '%%' OR u.apellido ILIKE '%%' || $%d || '%%'
			 OR u.email ILIKE '%%' || $%d || '%%' OR r.nombre ILIKE '%%' || $%d || '%%'
			 OR EXISTS (SELECT 1 FROM especialidades e WHERE e.id = u.especialidad_id AND e.nombre ILIKE '%%' || $%d || '%%')
			 OR EXISTS (SELECT 1 FROM establecimientos es WHERE es.id = u.establecimiento_id AND es.nombre ILIKE '%%' || $%d || '%%'))`,
			n, n, n, n, n, n))
	}
	return conditions, args
}

// List returns users matching the filters plus the total match count.
func (r *PGRepository) List(ctx context.Context, filters ListFilters, limit, offset int) ([]User, int, error) {
	conditions, args := buildFilters(filters)
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countSQL := `SELECT COUNT(*) FROM users u LEFT JOIN roles r ON r.id = u.role_id` + where
	if err := r.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	listSQL := fmt.Sprintf("%s%s ORDER BY %s LIMIT $%d OFFSET $%d",
		userSelect, where, orderClause(filters.Ordering), len(args)+1, len(args)+2)
	rows, err := r.pool.Query(ctx, listSQL, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var result []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *user)
	}
	return result, total, rows.Err()
}

// Get fetches a single user by id.
func (r *PGRepository) Get(ctx context.Context, id int64) (*User, error) {
	row := r.pool.QueryRow(ctx, userSelect+` WHERE u.id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

// Create inserts a user and returns the stored row.
func (r *PGRepository) Create(ctx context.Context, input CreateInput, passwordHash string) (*User, error) {
	active := true
	if input.IsActive != nil {
		active = *input.IsActive
	}
	staff := false
	if input.IsStaff != nil {
		staff = *input.IsStaff
	}

	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (email, nombre, apellido, password_hash, fecha_nacimiento,
		                   role_id, especialidad_id, establecimiento_id,
		                   is_active, is_staff, is_superuser, fecha_registro)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE, NOW())
		RETURNING id`,
		input.Email, input.Nombre, input.Apellido, passwordHash, input.FechaNacimiento,
		input.RolID, input.EspecialidadID, input.EstablecimientoID, active, staff).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, httpx.ErrDuplicate
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return r.Get(ctx, id)
}

// Update applies the non-nil fields of input and returns the updated row.
func (r *PGRepository) Update(ctx context.Context, id int64, input UpdateInput) (*User, error) {
	var sets []string
	var args []any
	set := func(col string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if input.Email != nil {
		set("email", *input.Email)
	}
	if input.Nombre != nil {
		set("nombre", *input.Nombre)
	}
	if input.Apellido != nil {
		set("apellido", *input.Apellido)
	}
	if input.FechaNacimiento != nil {
		set("fecha_nacimiento", *input.FechaNacimiento)
	}
	if input.ClearRol {
		sets = append(sets, "role_id = NULL")
	} else if input.RolID != nil {
		set("role_id", *input.RolID)
	}
	if input.EspecialidadID != nil {
		set("especialidad_id", *input.EspecialidadID)
	}
	if input.EstablecimientoID != nil {
		set("establecimiento_id", *input.EstablecimientoID)
	}
	if input.IsActive != nil {
		set("is_active", *input.IsActive)
	}
	if input.IsStaff != nil {
		set("is_staff", *input.IsStaff)
	}
	if len(sets) == 0 {
		return r.Get(ctx, id)
	}

	args = append(args, id)
	sql := fmt.Sprintf("UPDATE users SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, httpx.ErrDuplicate
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, shared.ErrNotFound
	}
	return r.Get(ctx, id)
}

// Delete removes a user row.
func (r *PGRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetPassword replaces the stored password hash.
func (r *PGRepository) SetPassword(ctx context.Context, id int64, hash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET password_hash = $1 WHERE id = $2`, hash, id)
	if err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetRole assigns (or, with nil, clears) the user's role.
func (r *PGRepository) SetRole(ctx context.Context, id int64, roleID *int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET role_id = $1 WHERE id = $2`, roleID, id)
	if err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// RoleName returns the display name of a role.
func (r *PGRepository) RoleName(ctx context.Context, roleID int64) (string, error) {
	var nombre string
	err := r.pool.QueryRow(ctx, `SELECT nombre FROM roles WHERE id = $1`, roleID).Scan(&nombre)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", shared.ErrNotFound
		}
		return "", err
	}
	return nombre, nil
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var nacimiento pgtype.Date
	var roleID pgtype.Int8
	var roleName pgtype.Text
	var especialidad, establecimiento pgtype.Int8

	err := row.Scan(&u.ID, &u.Email, &u.Nombre, &u.Apellido, &nacimiento, &u.FechaRegistro,
		&roleID, &roleName, &especialidad, &establecimiento,
		&u.IsActive, &u.IsStaff, &u.IsSuperuser)
	if err != nil {
		return nil, err
	}
	if nacimiento.Valid {
		t := nacimiento.Time
		u.FechaNacimiento = &t
	}
	if roleID.Valid {
		u.Rol = &RoleRef{ID: roleID.Int64, Nombre: roleName.String}
	}
	if especialidad.Valid {
		v := especialidad.Int64
		u.EspecialidadID = &v
	}
	if establecimiento.Valid {
		v := establecimiento.Int64
		u.EstablecimientoID = &v
	}
	return &u, nil
}

var _ Repository = (*PGRepository)(nil)
