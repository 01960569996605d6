package perms

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCodename(t *testing.T) {
	tests := []struct {
		name     string
		codename string
		action   Action
		module   string
		ok       bool
	}{
		{"view patient", "view_pacientes", ActionView, "pacientes", true},
		{"add patient", "add_pacientes", ActionAdd, "pacientes", true},
		{"change user", "change_usuario", ActionChange, "usuario", true},
		{"delete user", "delete_usuario", ActionDelete, "usuario", true},
		{"module with underscore", "view_historial_clinico", ActionView, "historial_clinico", true},
		{"no underscore", "administrar", "", "", false},
		{"unknown action", "export_pacientes", "", "", false},
		{"empty", "", "", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			action, module, ok := DecodeCodename(tc.codename)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.action, action)
				assert.Equal(t, tc.module, module)
			}
		})
	}
}

func TestResolveGrantsOnlyNamedActions(t *testing.T) {
	caps := Resolve([]string{"add_pacientes"})

	require.Contains(t, caps, "pacientes")
	assert.True(t, caps["pacientes"].Add)
	assert.False(t, caps["pacientes"].View)
	assert.False(t, caps["pacientes"].Change)
	assert.False(t, caps["pacientes"].Delete)
}

func TestResolveSkipsMalformedCodenames(t *testing.T) {
	caps := Resolve([]string{"administrar", "view_pacientes", "superpoder"})

	assert.Len(t, caps, 1)
	assert.True(t, caps.Allows("pacientes", ActionView))
}

func TestResolveIsIdempotent(t *testing.T) {
	codenames := []string{"view_pacientes", "add_pacientes", "delete_usuario"}
	first := Resolve(codenames)
	second := Resolve(codenames)

	assert.Equal(t, first, second)
}

func TestCapabilityMapDeniesByDefault(t *testing.T) {
	caps := CapabilityMap{}
	for _, action := range []Action{ActionView, ActionAdd, ActionChange, ActionDelete} {
		assert.False(t, caps.Allows("pacientes", action))
	}
}

type stubSource struct {
	codenames map[int64][]string
	err       error
}

func (s *stubSource) RoleCodenames(_ context.Context, roleID int64) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.codenames[roleID], nil
}

func TestResolverWithoutRoleIsEmpty(t *testing.T) {
	resolver := NewResolver(&stubSource{})

	caps, err := resolver.CapabilitiesFor(context.Background(), &Identity{ID: 7})
	require.NoError(t, err)
	assert.Empty(t, caps)

	caps, err = resolver.CapabilitiesFor(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, caps)
}

func TestResolverObservesRoleEdits(t *testing.T) {
	roleID := int64(3)
	source := &stubSource{codenames: map[int64][]string{roleID: {"delete_usuario"}}}
	resolver := NewResolver(source)
	identity := &Identity{ID: 1, RoleID: &roleID}

	caps, err := resolver.CapabilitiesFor(context.Background(), identity)
	require.NoError(t, err)
	assert.True(t, caps.Allows("usuario", ActionDelete))

	// Revoking the permission takes effect on the very next resolution.
	source.codenames[roleID] = nil
	caps, err = resolver.CapabilitiesFor(context.Background(), identity)
	require.NoError(t, err)
	assert.False(t, caps.Allows("usuario", ActionDelete))
}
