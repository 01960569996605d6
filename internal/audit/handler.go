package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clinicore/clinicore/internal/platform/httpx"
	"github.com/clinicore/clinicore/internal/shared"
)

// Handler exposes the read-only bitácora listing to administrators.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes attaches the listing endpoint. Caller is expected to guard it
// with the superuser check.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
}

// List serves the paginated, filterable, searchable trail.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := ListFilters{
		IP:     q.Get("ip"),
		Search: q.Get("search"),
	}
	if raw := q.Get("usuario"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "usuario must be a numeric id")
			return
		}
		filters.ActorID = &id
	}
	if raw := q.Get("desde"); raw != "" {
		ts, err := parseTimestamp(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "desde must be a date or RFC3339 timestamp")
			return
		}
		filters.From = ts
	}
	if raw := q.Get("hasta"); raw != "" {
		ts, err := parseTimestamp(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "hasta must be a date or RFC3339 timestamp")
			return
		}
		filters.To = ts
	}

	page := shared.ParsePageParams(r, 20, 100)
	result, err := h.service.List(r.Context(), filters, page)
	if err != nil {
		h.logger.Error("list bitacora", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"results":    result.Entries,
		"pagination": result.Pagination,
	})
}

func parseTimestamp(raw string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, nil
	}
	return time.Parse("2006-01-02", raw)
}
