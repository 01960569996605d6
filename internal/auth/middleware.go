package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/clinicore/clinicore/internal/perms"
	"github.com/clinicore/clinicore/internal/shared"
)

// Middleware resolves the bearer token to an identity loaded fresh from the
// database and stores both session and identity in the request context.
// Requests without a valid session pass through anonymously; route guards
// decide whether that is acceptable.
func Middleware(sessions *shared.SessionManager, repo Repository, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sess, err := sessions.Load(ctx, r)
			if err != nil {
				if !errors.Is(err, shared.ErrNoSession) && logger != nil {
					logger.Error("load session", slog.Any("error", err))
				}
				next.ServeHTTP(w, r)
				return
			}

			identity, err := repo.IdentityByID(ctx, sess.UserID)
			if err != nil || !identity.IsActive {
				// Stale token for a removed or deactivated account.
				next.ServeHTTP(w, r)
				return
			}

			ctx = shared.ContextWithSession(ctx, sess)
			ctx = perms.ContextWithIdentity(ctx, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
