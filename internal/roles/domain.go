package roles

// Modulo is the permission and audit scope for roles.
const Modulo = "roles"

// Permiso is an immutable reference permission. The codename follows the
// "{action}_{module}" convention consumed by the capability resolver.
type Permiso struct {
	ID          int64  `json:"id"`
	Codename    string `json:"codename"`
	Descripcion string `json:"descripcion"`
}

// Rol groups a named set of permissions.
type Rol struct {
	ID       int64     `json:"id"`
	Nombre   string    `json:"nombre"`
	Permisos []Permiso `json:"permisos"`
}

// WriteInput carries the writable fields of a role. Permisos replaces the
// whole permission set.
type WriteInput struct {
	Nombre   string
	Permisos []int64
}
