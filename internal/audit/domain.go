package audit

import (
	"time"

	"github.com/google/uuid"
)

// Entry is a bitácora record. Entries are append-only: the application never
// updates or deletes them.
type Entry struct {
	ID        uuid.UUID      `json:"id"`
	ActorID   *int64         `json:"-"`
	Actor     *ActorSummary  `json:"usuario"`
	Accion    string         `json:"accion"`
	IP        string         `json:"ip"`
	Modulo    string         `json:"modulo,omitempty"`
	Detalles  map[string]any `json:"detalles,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// ActorSummary identifies the acting user on a listing row. Nil when the
// entry was recorded without a resolved identity (failed logins).
type ActorSummary struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Nombre   string `json:"nombre"`
	Apellido string `json:"apellido"`
}

// ListFilters narrows the audit listing.
type ListFilters struct {
	ActorID *int64
	IP      string
	From    time.Time
	To      time.Time
	Search  string
}

// Audit verbs used by the CRUD hooks.
const (
	VerbCreated = "Creó"
	VerbUpdated = "Actualizó"
	VerbDeleted = "Eliminó"
)
