package facilities

// Modulo is the permission and audit scope for facilities.
const Modulo = "sucursales"

// Facility types.
const (
	TipoHospital    = "hospital"
	TipoClinica     = "clinica"
	TipoConsultorio = "consultorio"
	TipoCentroSalud = "centro_salud"
)

// Care levels.
const (
	Nivel1 = "nivel_1"
	Nivel2 = "nivel_2"
	Nivel3 = "nivel_3"
)

// Establecimiento is a healthcare facility offering a set of specialties.
type Establecimiento struct {
	ID             int64   `json:"id"`
	Nombre         string  `json:"nombre"`
	Direccion      string  `json:"direccion"`
	Telefono       string  `json:"telefono"`
	Correo         string  `json:"correo"`
	Tipo           string  `json:"tipo_establecimiento"`
	Nivel          string  `json:"nivel"`
	Especialidades []int64 `json:"especialidades"`
}

// ListFilters narrows the facility listing.
type ListFilters struct {
	Nombre              string
	Tipo                string
	Nivel               string
	EspecialidadesIDs   []int64
	TieneEspecialidades *bool
}

// WriteInput carries the writable fields of a facility. Especialidades
// replaces the whole set when non-nil.
type WriteInput struct {
	Nombre         string
	Direccion      string
	Telefono       string
	Correo         string
	Tipo           string
	Nivel          string
	Especialidades []int64
}
