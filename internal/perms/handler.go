package perms

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clinicore/clinicore/internal/platform/httpx"
)

// Handler exposes the current identity's permissions to clients. The output
// is UI hinting only; the guard middleware remains the sole enforcement
// point.
type Handler struct {
	logger   *slog.Logger
	resolver *Resolver
	source   CodenameSource
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, resolver *Resolver, source CodenameSource) *Handler {
	return &Handler{logger: logger, resolver: resolver, source: source}
}

// MountRoutes attaches the permission query endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/mis-permisos", h.MyPermissions)
	r.Get("/mis-permisos-estructurados", h.MyCapabilities)
}

// MyPermissions returns the flat codename list of the caller's role.
func (h *Handler) MyPermissions(w http.ResponseWriter, r *http.Request) {
	identity := IdentityFromContext(r.Context())
	if identity == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	codenames := []string{}
	if identity.RoleID != nil {
		loaded, err := h.source.RoleCodenames(r.Context(), *identity.RoleID)
		if err != nil {
			h.logger.Error("load role codenames", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
		codenames = append(codenames, loaded...)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permisos": codenames})
}

// MyCapabilities returns the caller's structured capability map.
func (h *Handler) MyCapabilities(w http.ResponseWriter, r *http.Request) {
	identity := IdentityFromContext(r.Context())
	if identity == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	caps, err := h.resolver.CapabilitiesFor(r.Context(), identity)
	if err != nil {
		h.logger.Error("resolve capabilities", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, caps)
}
