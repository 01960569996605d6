package auth

import (
	"time"

	"github.com/clinicore/clinicore/internal/perms"
)

// Credentials couples an identity with its stored password hash.
type Credentials struct {
	perms.Identity
	PasswordHash string
}

// SessionRecord mirrors a login session row kept in Postgres for the trail.
type SessionRecord struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
	IP        string
	UserAgent string
}

// UserPayload is the login/registration response shape.
type UserPayload struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	Nombre      string `json:"nombre"`
	Apellido    string `json:"apellido"`
	RolID       *int64 `json:"rol,omitempty"`
	IsStaff     bool   `json:"is_staff"`
	IsSuperuser bool   `json:"is_superuser"`
}

func payloadFor(identity *perms.Identity) UserPayload {
	return UserPayload{
		ID:          identity.ID,
		Email:       identity.Email,
		Nombre:      identity.Nombre,
		Apellido:    identity.Apellido,
		RolID:       identity.RoleID,
		IsStaff:     identity.IsStaff,
		IsSuperuser: identity.IsSuperuser,
	}
}
