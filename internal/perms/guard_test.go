package perms

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okHandler() (http.Handler, *bool) {
	called := false
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}), &called
}

func guardRequest(t *testing.T, mw Middleware, module string, action Action, identity *Identity) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	next, called := okHandler()
	handler := mw.Require(module, action)(next)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if identity != nil {
		req = req.WithContext(ContextWithIdentity(req.Context(), identity))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, *called
}

func TestRequireRejectsAnonymous(t *testing.T) {
	mw := Middleware{Resolver: NewResolver(&stubSource{}), Logger: slog.Default()}

	rec, called := guardRequest(t, mw, "pacientes", ActionView, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}

func TestRequireDoctorCanViewButNotAdd(t *testing.T) {
	roleID := int64(1)
	source := &stubSource{codenames: map[int64][]string{roleID: {"view_pacientes"}}}
	mw := Middleware{Resolver: NewResolver(source), Logger: slog.Default()}
	doctor := &Identity{ID: 10, RoleID: &roleID, IsActive: true}

	rec, called := guardRequest(t, mw, "pacientes", ActionView, doctor)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)

	rec, called = guardRequest(t, mw, "pacientes", ActionAdd, doctor)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, called)
	assert.Contains(t, rec.Body.String(), "add")
}

func TestRequireUserWithoutRoleIsDeniedEverything(t *testing.T) {
	mw := Middleware{Resolver: NewResolver(&stubSource{}), Logger: slog.Default()}
	identity := &Identity{ID: 4, IsActive: true}

	for _, action := range []Action{ActionView, ActionAdd, ActionChange, ActionDelete} {
		rec, called := guardRequest(t, mw, "pacientes", action, identity)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.False(t, called)
	}
}

func TestRequireSuperuserBypassesWithoutRole(t *testing.T) {
	mw := Middleware{Resolver: NewResolver(&stubSource{}), Logger: slog.Default()}
	admin := &Identity{ID: 1, IsSuperuser: true}

	for _, action := range []Action{ActionView, ActionAdd, ActionChange, ActionDelete} {
		rec, called := guardRequest(t, mw, "usuario", action, admin)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, called)
	}
}

func TestRequireEmptyModuleDeniesNonSuperusers(t *testing.T) {
	roleID := int64(2)
	source := &stubSource{codenames: map[int64][]string{roleID: {"view_pacientes", "add_pacientes"}}}
	mw := Middleware{Resolver: NewResolver(source), Logger: slog.Default()}

	rec, called := guardRequest(t, mw, "", ActionView, &Identity{ID: 9, RoleID: &roleID})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, called)

	rec, called = guardRequest(t, mw, "", ActionView, &Identity{ID: 1, IsSuperuser: true})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}

func TestRequireRevocationAppliesNextRequest(t *testing.T) {
	roleID := int64(5)
	source := &stubSource{codenames: map[int64][]string{roleID: {"delete_usuario"}}}
	mw := Middleware{Resolver: NewResolver(source), Logger: slog.Default()}
	identity := &Identity{ID: 2, RoleID: &roleID}

	rec, _ := guardRequest(t, mw, "usuario", ActionDelete, identity)
	assert.Equal(t, http.StatusOK, rec.Code)

	source.codenames[roleID] = []string{}

	rec, called := guardRequest(t, mw, "usuario", ActionDelete, identity)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, called)
	assert.Contains(t, rec.Body.String(), "delete")
}

func TestDenialMessageNamesAction(t *testing.T) {
	assert.Contains(t, DenialMessage(ActionView), "view")
	assert.Contains(t, DenialMessage(ActionAdd), "add")
	assert.Contains(t, DenialMessage(ActionChange), "change")
	assert.Contains(t, DenialMessage(ActionDelete), "delete")
}
