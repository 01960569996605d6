package audit

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/clinicore/internal/perms"
)

func trailRequest(t *testing.T, db *stubExecer, method, path string, identity *perms.Identity, status int) {
	t.Helper()
	rec := NewRecorder(db, slog.Default(), nil)
	handler := Trail(rec, []string{"/static/", "/metrics", "/healthz"})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

	req := httptest.NewRequest(method, path, nil)
	if identity != nil {
		req = req.WithContext(perms.ContextWithIdentity(req.Context(), identity))
	}
	handler.ServeHTTP(httptest.NewRecorder(), req)
}

func TestTrailLogsMutatingRequests(t *testing.T) {
	db := &stubExecer{}
	trailRequest(t, db, http.MethodPost, "/api/pacientes", &perms.Identity{ID: 5}, http.StatusCreated)

	require.Len(t, db.calls, 1)
	assert.Equal(t, "POST en /api/pacientes", db.calls[0].args[2])
	actor := db.calls[0].args[1].(*int64)
	assert.Equal(t, int64(5), *actor)
}

func TestTrailSkipsReads(t *testing.T) {
	db := &stubExecer{}
	trailRequest(t, db, http.MethodGet, "/api/pacientes", &perms.Identity{ID: 5}, http.StatusOK)
	assert.Empty(t, db.calls)
}

func TestTrailSkipsAnonymous(t *testing.T) {
	db := &stubExecer{}
	trailRequest(t, db, http.MethodPost, "/api/auth/login", nil, http.StatusOK)
	assert.Empty(t, db.calls)
}

func TestTrailSkipsExemptPaths(t *testing.T) {
	db := &stubExecer{}
	trailRequest(t, db, http.MethodPost, "/static/upload", &perms.Identity{ID: 5}, http.StatusOK)
	assert.Empty(t, db.calls)
}

func TestTrailSkipsFailedRequests(t *testing.T) {
	db := &stubExecer{}
	trailRequest(t, db, http.MethodDelete, "/api/usuarios/1", &perms.Identity{ID: 5}, http.StatusForbidden)
	assert.Empty(t, db.calls, "denied or failed mutations leave no success entry")
}

func TestTrailNeverFailsTheResponse(t *testing.T) {
	rec := NewRecorder(&stubExecer{err: assert.AnError}, slog.Default(), nil)
	handler := Trail(rec, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodDelete, "/api/pacientes/9", nil)
	req = req.WithContext(perms.ContextWithIdentity(req.Context(), &perms.Identity{ID: 1}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
}
