package specialties

// Modulo is the permission and audit scope for specialties.
const Modulo = "especialidades"

// Especialidad is a clinical specialty, reference data for forms,
// histories, facilities and clinical staff.
type Especialidad struct {
	ID          int64  `json:"id"`
	Nombre      string `json:"nombre"`
	Descripcion string `json:"descripcion,omitempty"`
	Activo      bool   `json:"activo"`
}

// WriteInput carries the writable fields of a specialty.
type WriteInput struct {
	Nombre      string
	Descripcion string
	Activo      bool
}
