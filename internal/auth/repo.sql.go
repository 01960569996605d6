package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinicore/internal/perms"
	"github.com/clinicore/clinicore/internal/shared"
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*Credentials, error)
	IdentityByID(ctx context.Context, id int64) (*perms.Identity, error)
	CreateUser(ctx context.Context, email, nombre, apellido, passwordHash string) (*perms.Identity, error)
	CreateSession(ctx context.Context, rec SessionRecord) error
	DeleteSession(ctx context.Context, id string) error
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const identityColumns = `id, email, nombre, apellido, role_id, is_active, is_staff, is_superuser`

// FindByEmail fetches credentials by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*Credentials, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+identityColumns+`, password_hash
		FROM users WHERE email = $1`, email)

	var creds Credentials
	var roleID pgtype.Int8
	err := row.Scan(&creds.ID, &creds.Email, &creds.Nombre, &creds.Apellido, &roleID,
		&creds.IsActive, &creds.IsStaff, &creds.IsSuperuser, &creds.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	if roleID.Valid {
		id := roleID.Int64
		creds.RoleID = &id
	}
	return &creds, nil
}

// IdentityByID loads the identity fresh from the database. Called on every
// authenticated request so role changes are observed immediately.
func (r *PGRepository) IdentityByID(ctx context.Context, id int64) (*perms.Identity, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+identityColumns+`
		FROM users WHERE id = $1`, id)

	var identity perms.Identity
	var roleID pgtype.Int8
	err := row.Scan(&identity.ID, &identity.Email, &identity.Nombre, &identity.Apellido, &roleID,
		&identity.IsActive, &identity.IsStaff, &identity.IsSuperuser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	if roleID.Valid {
		rid := roleID.Int64
		identity.RoleID = &rid
	}
	return &identity, nil
}

// CreateUser inserts a self-registered account. Registrations are never staff
// nor superuser.
func (r *PGRepository) CreateUser(ctx context.Context, email, nombre, apellido, passwordHash string) (*perms.Identity, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (email, nombre, apellido, password_hash, is_active, is_staff, is_superuser, fecha_registro)
		VALUES ($1, $2, $3, $4, TRUE, FALSE, FALSE, NOW())
		RETURNING id`, email, nombre, apellido, passwordHash)

	var id int64
	if err := row.Scan(&id); err != nil {
		return nil, err
	}
	return &perms.Identity{ID: id, Email: email, Nombre: nombre, Apellido: apellido, IsActive: true}, nil
}

// CreateSession persists a login session row for auditing.
func (r *PGRepository) CreateSession(ctx context.Context, rec SessionRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sessions (id, user_id, created_at, expires_at, ip, ua)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))`,
		rec.ID, rec.UserID, rec.CreatedAt.UTC(), rec.ExpiresAt.UTC(), rec.IP, rec.UserAgent)
	return err
}

// DeleteSession removes a session row.
func (r *PGRepository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

var _ Repository = (*PGRepository)(nil)
