package perms

import "strings"

// Action is one of the four recognized operation categories.
type Action string

const (
	ActionView   Action = "view"
	ActionAdd    Action = "add"
	ActionChange Action = "change"
	ActionDelete Action = "delete"
)

// Capabilities holds the per-module action grants.
type Capabilities struct {
	View   bool `json:"view"`
	Add    bool `json:"add"`
	Change bool `json:"change"`
	Delete bool `json:"delete"`
}

// Allows reports whether the action is granted.
func (c Capabilities) Allows(action Action) bool {
	switch action {
	case ActionView:
		return c.View
	case ActionAdd:
		return c.Add
	case ActionChange:
		return c.Change
	case ActionDelete:
		return c.Delete
	}
	return false
}

// CapabilityMap maps module names to their granted actions. Modules absent
// from the map have no grants at all.
type CapabilityMap map[string]Capabilities

// Allows reports whether the module/action pair is granted. Missing modules
// fail closed.
func (m CapabilityMap) Allows(module string, action Action) bool {
	return m[module].Allows(action)
}

// Identity describes the authenticated actor.
type Identity struct {
	ID          int64
	Email       string
	Nombre      string
	Apellido    string
	RoleID      *int64
	IsActive    bool
	IsStaff     bool
	IsSuperuser bool
}

// DisplayName returns the human-readable name for audit descriptions.
func (i *Identity) DisplayName() string {
	name := strings.TrimSpace(i.Nombre + " " + i.Apellido)
	if name == "" {
		return i.Email
	}
	return name
}

// DecodeCodename splits a permission codename of the form
// "{action}_{module}" on the first underscore. Codenames without an
// underscore or with an unrecognized action are rejected (ok == false);
// callers skip them. This is the single place that knows the encoding.
func DecodeCodename(codename string) (Action, string, bool) {
	idx := strings.Index(codename, "_")
	if idx < 0 {
		return "", "", false
	}
	action := Action(codename[:idx])
	module := codename[idx+1:]
	switch action {
	case ActionView, ActionAdd, ActionChange, ActionDelete:
		return action, module, true
	}
	return "", "", false
}

// Resolve derives a capability map from a role's permission codenames.
// Malformed codenames are silently excluded. Pure function: resolving the
// same input twice yields identical results.
func Resolve(codenames []string) CapabilityMap {
	caps := make(CapabilityMap)
	for _, codename := range codenames {
		action, module, ok := DecodeCodename(codename)
		if !ok {
			continue
		}
		entry := caps[module]
		switch action {
		case ActionView:
			entry.View = true
		case ActionAdd:
			entry.Add = true
		case ActionChange:
			entry.Change = true
		case ActionDelete:
			entry.Delete = true
		}
		caps[module] = entry
	}
	return caps
}
