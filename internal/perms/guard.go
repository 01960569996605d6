package perms

import (
	"log/slog"
	"net/http"

	"github.com/clinicore/clinicore/internal/platform/httpx"
)

// Middleware wires the authorization guard for HTTP handlers.
type Middleware struct {
	Resolver *Resolver
	Logger   *slog.Logger
}

// Require guards a route with a module/action capability check. The check
// runs strictly before the wrapped handler; on denial the handler never
// executes. Superusers bypass the check entirely. Routes mounted without a
// module tag fail closed for everyone else.
func (m Middleware) Require(module string, action Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := IdentityFromContext(r.Context())
			if identity == nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
				return
			}
			if identity.IsSuperuser {
				next.ServeHTTP(w, r)
				return
			}
			if module == "" {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", DenialMessage(action))
				return
			}
			caps, err := m.Resolver.CapabilitiesFor(r.Context(), identity)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("resolve capabilities", slog.Any("error", err), slog.Int64("user", identity.ID))
				}
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			if !caps.Allows(module, action) {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", DenialMessage(action))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// DenialMessage names the attempted action in the 403 payload.
func DenialMessage(action Action) string {
	switch action {
	case ActionView:
		return "not permitted to view this resource"
	case ActionAdd:
		return "not permitted to add a new record"
	case ActionChange:
		return "not permitted to change this resource"
	case ActionDelete:
		return "not permitted to delete this resource"
	}
	return "not permitted to perform this action"
}

// RequireAuthenticated rejects anonymous requests without consulting the
// capability map. Used for routes whose finer checks live in the service.
func (m Middleware) RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IdentityFromContext(r.Context()) == nil {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSuperuser guards administrative routes.
func (m Middleware) RequireSuperuser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := IdentityFromContext(r.Context())
		if identity == nil {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
			return
		}
		if !identity.IsSuperuser {
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "administrators only")
			return
		}
		next.ServeHTTP(w, r)
	})
}
