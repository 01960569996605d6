package audit

import (
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/clinicore/clinicore/internal/perms"
	"github.com/clinicore/clinicore/internal/shared"
)

// displayFields are probed in order to derive an object's display name,
// mirroring the candidate attributes of the original records system.
var displayFields = []string{"Nombre", "Titulo", "Name", "Title"}

// Hook writes a bitácora entry after a successful create, update or delete of
// a module's resource. Handlers call it strictly after the mutation
// succeeded; hook failures never reach the client.
type Hook struct {
	rec    *Recorder
	modulo string
}

// NewHook constructs a Hook bound to a module tag.
func NewHook(rec *Recorder, modulo string) Hook {
	return Hook{rec: rec, modulo: modulo}
}

// Created records a creation entry.
func (h Hook) Created(r *http.Request, obj any) {
	h.record(r, VerbCreated, obj)
}

// Updated records an update entry.
func (h Hook) Updated(r *http.Request, obj any) {
	h.record(r, VerbUpdated, obj)
}

// Deleted records a deletion entry.
func (h Hook) Deleted(r *http.Request, obj any) {
	h.record(r, VerbDeleted, obj)
}

func (h Hook) record(r *http.Request, verb string, obj any) {
	if h.rec == nil {
		return
	}
	entry := Entry{
		Accion: fmt.Sprintf("%s %s: %s", verb, strings.ToLower(h.modulo), ObjectName(obj)),
		IP:     shared.ClientIP(r),
		Modulo: h.modulo,
	}
	if identity := perms.IdentityFromContext(r.Context()); identity != nil {
		id := identity.ID
		entry.ActorID = &id
	}
	h.rec.Record(r.Context(), entry)
}

// ObjectName derives a display name for an audited object: the first present
// display field, the object's Stringer output, or a generic conversion.
func ObjectName(obj any) string {
	if obj == nil {
		return "<nil>"
	}
	v := reflect.ValueOf(obj)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return "<nil>"
		}
		v = v.Elem()
	}
	if v.Kind() == reflect.Struct {
		parts := make([]string, 0, 2)
		for _, field := range displayFields {
			f := v.FieldByName(field)
			if f.IsValid() && f.Kind() == reflect.String && f.String() != "" {
				parts = append(parts, f.String())
				// Nombre plus Apellido yields the full person name.
				if field == "Nombre" {
					if ap := v.FieldByName("Apellido"); ap.IsValid() && ap.Kind() == reflect.String && ap.String() != "" {
						parts = append(parts, ap.String())
					}
				}
				return strings.Join(parts, " ")
			}
		}
	}
	if s, ok := obj.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", obj)
}
