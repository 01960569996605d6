package audit

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubExecer struct {
	err   error
	calls []stubExecCall
}

type stubExecCall struct {
	sql  string
	args []any
}

func (s *stubExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.calls = append(s.calls, stubExecCall{sql: sql, args: args})
	if s.err != nil {
		return pgconn.CommandTag{}, s.err
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

type countingFailures struct{ n int }

func (c *countingFailures) Inc() { c.n++ }

func TestRecorderRecordsEntry(t *testing.T) {
	db := &stubExecer{}
	rec := NewRecorder(db, slog.Default(), nil)

	actor := int64(42)
	ok := rec.Record(context.Background(), Entry{
		ActorID: &actor,
		Accion:  "Creó pacientes: Juan Pérez",
		IP:      "10.0.0.1",
		Modulo:  "pacientes",
	})

	assert.True(t, ok)
	require.Len(t, db.calls, 1)
	assert.Equal(t, &actor, db.calls[0].args[1])
	assert.Equal(t, "Creó pacientes: Juan Pérez", db.calls[0].args[2])
}

func TestRecorderToleratesNilActor(t *testing.T) {
	db := &stubExecer{}
	rec := NewRecorder(db, slog.Default(), nil)

	ok := rec.Record(context.Background(), Entry{
		Accion: "Intento de login fallido para email: x@y.z",
		IP:     "10.0.0.1",
		Modulo: "Autenticación",
	})

	assert.True(t, ok)
	require.Len(t, db.calls, 1)
	assert.Nil(t, db.calls[0].args[1])
}

func TestRecorderSwallowsInsertFailure(t *testing.T) {
	failures := &countingFailures{}
	rec := NewRecorder(&stubExecer{err: errors.New("connection refused")}, slog.Default(), failures)

	ok := rec.Record(context.Background(), Entry{Accion: "POST en /api/pacientes"})

	assert.False(t, ok)
	assert.Equal(t, 1, failures.n)
}

func TestRecorderSwallowsUnserializableDetails(t *testing.T) {
	db := &stubExecer{}
	failures := &countingFailures{}
	rec := NewRecorder(db, slog.Default(), failures)

	ok := rec.Record(context.Background(), Entry{
		Accion:   "Actualizó usuario: a@b.c",
		Detalles: map[string]any{"callback": func() {}},
	})

	assert.False(t, ok)
	assert.Empty(t, db.calls, "no insert should be attempted after a marshal failure")
	assert.Equal(t, 1, failures.n)
}

func TestRecorderAttemptsWriteAfterCancellation(t *testing.T) {
	db := &stubExecer{}
	rec := NewRecorder(db, slog.Default(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok := rec.Record(ctx, Entry{Accion: "DELETE en /api/usuarios/3"})

	assert.True(t, ok)
	assert.Len(t, db.calls, 1)
}

func TestRecorderNilReceiverIsSafe(t *testing.T) {
	var rec *Recorder
	assert.False(t, rec.Record(context.Background(), Entry{Accion: "x"}))
}
