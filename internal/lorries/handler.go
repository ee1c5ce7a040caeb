package lorries

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/farmtally/farmtally/internal/platform/httpx"
	"github.com/farmtally/farmtally/internal/shared"
)

// Handler exposes lorry fleet and request endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a lorries handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// ListLorries handles GET /lorries.
func (h *Handler) ListLorries(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing identity")
		return
	}

	lorries, err := h.service.ListLorries(r.Context(), identity)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"lorries": lorries})
}

// GetLorry handles GET /lorries/{id}.
func (h *Handler) GetLorry(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing identity")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid lorry id")
		return
	}

	lorry, err := h.service.GetLorry(r.Context(), identity, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lorry)
}

// ListRequests handles GET /lorry-requests.
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing identity")
		return
	}

	var statusPtr *RequestStatus
	if v := r.URL.Query().Get("status"); v != "" {
		status := RequestStatus(v)
		if !status.IsValid() {
			httpx.RespondError(w, fmt.Errorf("%w: unknown status %q", httpx.ErrValidation, v))
			return
		}
		statusPtr = &status
	}

	requests, err := h.service.ListRequests(r.Context(), identity, statusPtr)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"requests": requests})
}

// CreateRequest handles POST /lorry-requests.
func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing identity")
		return
	}

	var input CreateRequestInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
		return
	}

	request, err := h.service.RequestLorry(r.Context(), identity, input)
	if err != nil {
		h.logger.Warn("lorry request failed",
			slog.Int64("manager_id", identity.UserID),
			slog.String("error", err.Error()),
		)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, request)
}

// ApproveRequest handles POST /lorry-requests/{id}/approve.
func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing identity")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid request id")
		return
	}

	var input ApproveRequestInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
		return
	}

	request, err := h.service.ApproveRequest(r.Context(), identity, id, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, request)
}

// RejectRequest handles POST /lorry-requests/{id}/reject.
func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing identity")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid request id")
		return
	}

	request, err := h.service.RejectRequest(r.Context(), identity, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, request)
}

// MountRoutes attaches the lorry fleet endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/lorries", h.ListLorries)
	r.Get("/lorries/{id}", h.GetLorry)
	r.Route("/lorry-requests", func(r chi.Router) {
		r.Get("/", h.ListRequests)
		r.Post("/", h.CreateRequest)
		r.Post("/{id}/approve", h.ApproveRequest)
		r.Post("/{id}/reject", h.RejectRequest)
	})
}
