package audit

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/clinicore/internal/perms"
)

type named struct {
	Nombre   string
	Apellido string
}

type titled struct {
	Titulo string
}

type anonymous struct {
	Valor int
}

func TestObjectName(t *testing.T) {
	assert.Equal(t, "Juan Pérez", ObjectName(named{Nombre: "Juan", Apellido: "Pérez"}))
	assert.Equal(t, "Juan Pérez", ObjectName(&named{Nombre: "Juan", Apellido: "Pérez"}))
	assert.Equal(t, "Radiografía de tórax", ObjectName(titled{Titulo: "Radiografía de tórax"}))
	assert.Equal(t, "{7}", ObjectName(anonymous{Valor: 7}))
	assert.Equal(t, "<nil>", ObjectName(nil))
	var p *named
	assert.Equal(t, "<nil>", ObjectName(p))
}

func TestHookCreatedRecordsActorAndDisplayName(t *testing.T) {
	db := &stubExecer{}
	hook := NewHook(NewRecorder(db, slog.Default(), nil), "pacientes")

	req := httptest.NewRequest("POST", "/api/pacientes", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	req = req.WithContext(perms.ContextWithIdentity(req.Context(), &perms.Identity{ID: 42, Email: "doc@clinica.bo"}))

	hook.Created(req, &named{Nombre: "Juan", Apellido: "Pérez"})

	require.Len(t, db.calls, 1)
	actor, ok := db.calls[0].args[1].(*int64)
	require.True(t, ok)
	assert.Equal(t, int64(42), *actor)
	assert.Equal(t, "Creó pacientes: Juan Pérez", db.calls[0].args[2])
	assert.Equal(t, "203.0.113.9", db.calls[0].args[3])
	assert.Equal(t, "pacientes", db.calls[0].args[4])
}

func TestHookVerbs(t *testing.T) {
	db := &stubExecer{}
	hook := NewHook(NewRecorder(db, slog.Default(), nil), "Usuario")

	req := httptest.NewRequest("PUT", "/api/usuarios/1", nil)
	req = req.WithContext(perms.ContextWithIdentity(req.Context(), &perms.Identity{ID: 1}))

	hook.Updated(req, named{Nombre: "Ana", Apellido: "Rojas"})
	hook.Deleted(req, named{Nombre: "Ana", Apellido: "Rojas"})

	require.Len(t, db.calls, 2)
	assert.Equal(t, "Actualizó usuario: Ana Rojas", db.calls[0].args[2])
	assert.Equal(t, "Eliminó usuario: Ana Rojas", db.calls[1].args[2])
}

func TestHookWithoutRecorderIsNoop(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/pacientes", nil)
	req = req.WithContext(perms.ContextWithIdentity(context.Background(), &perms.Identity{ID: 1}))
	assert.NotPanics(t, func() { Hook{}.Created(req, named{Nombre: "X"}) })
}
