package users

import "time"

// Modulo is the permission and audit scope for this resource.
const Modulo = "usuario"

// RoleRef is the embedded role summary returned with a user.
type RoleRef struct {
	ID     int64  `json:"id"`
	Nombre string `json:"nombre"`
}

// User is a system account. Clinical staff typically carry an especialidad
// and an establecimiento; administrative accounts may have neither.
type User struct {
	ID                int64      `json:"id"`
	Email             string     `json:"email"`
	Nombre            string     `json:"nombre"`
	Apellido          string     `json:"apellido"`
	FechaNacimiento   *time.Time `json:"fecha_nacimiento,omitempty"`
	FechaRegistro     time.Time  `json:"fecha_registro"`
	Rol               *RoleRef   `json:"rol,omitempty"`
	EspecialidadID    *int64     `json:"especialidad,omitempty"`
	EstablecimientoID *int64     `json:"establecimiento,omitempty"`
	IsActive          bool       `json:"is_active"`
	IsStaff           bool       `json:"is_staff"`
	IsSuperuser       bool       `json:"is_superuser"`
}

// ListFilters narrows the user listing.
type ListFilters struct {
	Nombre            string
	Apellido          string
	Email             string
	RolID             *int64
	EspecialidadID    *int64
	EstablecimientoID *int64
	IsActive          *bool
	IsStaff           *bool
	RegistroDesde     *time.Time
	RegistroHasta     *time.Time
	Search            string
	Ordering          string
}

// CreateInput carries the fields accepted when creating a user.
type CreateInput struct {
	Email             string
	Nombre            string
	Apellido          string
	Password          string
	FechaNacimiento   *time.Time
	RolID             *int64
	EspecialidadID    *int64
	EstablecimientoID *int64
	IsActive          *bool
	IsStaff           *bool
}

// UpdateInput carries the mutable fields of a user. Nil pointers leave the
// column untouched; password changes go through ChangePassword only.
type UpdateInput struct {
	Email             *string
	Nombre            *string
	Apellido          *string
	FechaNacimiento   *time.Time
	RolID             *int64
	ClearRol          bool
	EspecialidadID    *int64
	EstablecimientoID *int64
	IsActive          *bool
	IsStaff           *bool
}
