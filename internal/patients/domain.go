package patients

import (
	"time"

	"github.com/google/uuid"
)

// Modulo is the permission and audit scope for patients.
const Modulo = "pacientes"

// Sexo values accepted for a patient.
const (
	SexoMasculino = "M"
	SexoFemenino  = "F"
	SexoOtro      = "O"
)

// BeneficiarioRef is the embedded summary of the insurance holder.
type BeneficiarioRef struct {
	ID       uuid.UUID `json:"id"`
	Nombre   string    `json:"nombre"`
	Apellido string    `json:"apellido"`
}

// Paciente is a clinical patient record.
type Paciente struct {
	ID              uuid.UUID        `json:"id"`
	Nombre          string           `json:"nombre"`
	Apellido        string           `json:"apellido"`
	CI              string           `json:"ci"`
	Telefono        string           `json:"telefono,omitempty"`
	Email           string           `json:"email,omitempty"`
	FechaNacimiento time.Time        `json:"fecha_nacimiento"`
	Sexo            string           `json:"sexo"`
	Residencia      string           `json:"residencia,omitempty"`
	Direccion       string           `json:"direccion,omitempty"`
	Religion        string           `json:"religion,omitempty"`
	Ocupacion       string           `json:"ocupacion,omitempty"`
	Asegurado       bool             `json:"asegurado"`
	BeneficiarioDe  *BeneficiarioRef `json:"beneficiario_de,omitempty"`
}

// ListFilters narrows the patient listing. Name and CI matches are
// accent-insensitive.
type ListFilters struct {
	Nombre          string
	Apellido        string
	CI              string
	Sexo            string
	Asegurado       *bool
	BeneficiarioDe  *uuid.UUID
	NacimientoDesde *time.Time
	NacimientoHasta *time.Time
	Search          string
	Ordering        string
}

// CreateInput carries the fields accepted when registering a patient.
type CreateInput struct {
	Nombre           string
	Apellido         string
	CI               string
	Telefono         string
	Email            string
	FechaNacimiento  time.Time
	Sexo             string
	Residencia       string
	Direccion        string
	Religion         string
	Ocupacion        string
	Asegurado        bool
	BeneficiarioDeID *uuid.UUID
}

// UpdateInput carries the mutable fields; nil pointers leave the column
// untouched.
type UpdateInput struct {
	Nombre            *string
	Apellido          *string
	CI                *string
	Telefono          *string
	Email             *string
	FechaNacimiento   *time.Time
	Sexo              *string
	Residencia        *string
	Direccion         *string
	Religion          *string
	Ocupacion         *string
	Asegurado         *bool
	BeneficiarioDeID  *uuid.UUID
	ClearBeneficiario bool
}
