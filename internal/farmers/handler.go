package farmers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/farmtally/farmtally/internal/platform/httpx"
	"github.com/farmtally/farmtally/internal/shared"
)

// Handler exposes read-only farmer endpoints. Stats shown here are written
// exclusively by lorry batch processing.
type Handler struct {
	logger *slog.Logger
	repo   Repository
}

// NewHandler constructs a farmers handler.
func NewHandler(logger *slog.Logger, repo Repository) *Handler {
	return &Handler{logger: logger, repo: repo}
}

// List handles GET /farmers.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing identity")
		return
	}

	farmers, err := h.repo.List(r.Context(), identity.OrganizationID)
	if err != nil {
		h.logger.Error("list farmers failed", slog.String("error", err.Error()))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"farmers": farmers})
}

// Get handles GET /farmers/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing identity")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid farmer id")
		return
	}

	farmer, err := h.repo.Get(r.Context(), identity.OrganizationID, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "farmer not found")
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, farmer)
}

// MountRoutes attaches the farmer endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/farmers", h.List)
	r.Get("/farmers/{id}", h.Get)
}
