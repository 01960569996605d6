package audit

import (
	"fmt"
	"net/http"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/clinicore/clinicore/internal/perms"
	"github.com/clinicore/clinicore/internal/shared"
)

var mutatingMethods = map[string]struct{}{
	http.MethodPost:   {},
	http.MethodPut:    {},
	http.MethodPatch:  {},
	http.MethodDelete: {},
}

// Trail is the pipeline-wide interception: every authenticated request with a
// mutating method on a non-exempt path leaves a generic bitácora entry. This
// runs independently of the per-handler hooks, so specific actions may be
// logged twice — an accepted safety net ensuring no mutation goes unlogged.
// The entry is written only after the handler finished with a success status,
// so no record claims success before it actually occurred.
func Trail(rec *Recorder, exemptPrefixes []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, mutating := mutatingMethods[r.Method]; !mutating || exempt(r.URL.Path, exemptPrefixes) {
				next.ServeHTTP(w, r)
				return
			}

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			identity := perms.IdentityFromContext(r.Context())
			if identity == nil || ww.Status() >= http.StatusBadRequest {
				return
			}
			id := identity.ID
			rec.Record(r.Context(), Entry{
				ActorID: &id,
				Accion:  fmt.Sprintf("%s en %s", r.Method, r.URL.Path),
				IP:      shared.ClientIP(r),
			})
		})
	}
}

func exempt(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
