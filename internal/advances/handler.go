package advances

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

// Handler exposes advance-payment endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs an advances handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// Record handles POST /advances.
func (h *Handler) Record(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing identity")
		return
	}

	var req RecordAdvanceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
		return
	}

	advance, err := h.service.Record(r.Context(), identity, req)
	if err != nil {
		h.logger.Warn("record advance failed",
			slog.Int64("farmer_id", req.FarmerID),
			slog.String("error", err.Error()),
		)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, advance)
}

// Reverse handles POST /advances/{id}/reverse.
func (h *Handler) Reverse(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing identity")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid advance id")
		return
	}

	advance, err := h.service.Reverse(r.Context(), identity, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, advance)
}

// FarmerBalance handles GET /farmers/{id}/advance-balance.
func (h *Handler) FarmerBalance(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing identity")
		return
	}
	farmerID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid farmer id")
		return
	}

	balance, err := h.service.OutstandingBalance(r.Context(), identity.OrganizationID, farmerID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"farmer_id": farmerID,
		"balance":   balance,
	})
}

// FarmerHistory handles GET /farmers/{id}/advances.
func (h *Handler) FarmerHistory(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing identity")
		return
	}
	farmerID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid farmer id")
		return
	}

	history, err := h.service.History(r.Context(), identity.OrganizationID, farmerID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"advances": history})
}

// MountRoutes attaches the advance endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/advances", h.Record)
	r.Post("/advances/{id}/reverse", h.Reverse)
	r.Get("/farmers/{id}/advance-balance", h.FarmerBalance)
	r.Get("/farmers/{id}/advances", h.FarmerHistory)
}
