package settlement

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

// Handler exposes the settlement pipeline over JSON.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a settlement handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// AddFarmerToLorry handles POST /deliveries.
func (h *Handler) AddFarmerToLorry(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing identity")
		return
	}

	var req AddFarmerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
		return
	}

	delivery, err := h.service.AddFarmerToLorry(r.Context(), identity, req)
	if err != nil {
		h.logger.Warn("add farmer to lorry failed",
			slog.Int64("lorry_id", req.LorryID),
			slog.Int64("farmer_id", req.FarmerID),
			slog.String("error", err.Error()),
		)
		httpx.RespondError(w, err)
		return
	}

	httpx.JSON(w, http.StatusCreated, delivery)
}

// UpdateDelivery handles PATCH /deliveries/{id}.
func (h *Handler) UpdateDelivery(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing identity")
		return
	}
	id, err := parseID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid delivery id")
		return
	}

	var req UpdateDeliveryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
		return
	}

	delivery, err := h.service.UpdateDelivery(r.Context(), identity, id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, delivery)
}

// DeleteDelivery handles DELETE /deliveries/{id}.
func (h *Handler) DeleteDelivery(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing identity")
		return
	}
	id, err := parseID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid delivery id")
		return
	}

	if err := h.service.DeleteDelivery(r.Context(), identity, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetDelivery handles GET /deliveries/{id}.
func (h *Handler) GetDelivery(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing identity")
		return
	}
	id, err := parseID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid delivery id")
		return
	}

	delivery, err := h.service.GetDelivery(r.Context(), identity, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, delivery)
}

// ListDeliveries handles GET /deliveries.
func (h *Handler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing identity")
		return
	}

	req := ListDeliveriesRequest{Limit: 50}
	q := r.URL.Query()
	if v := q.Get("lorry_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			req.LorryID = &id
		}
	}
	if v := q.Get("farmer_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			req.FarmerID = &id
		}
	}
	if v := q.Get("status"); v != "" {
		status := DeliveryStatus(v)
		if !status.IsValid() {
			httpx.RespondError(w, fmt.Errorf("%w: unknown status %q", httpx.ErrValidation, v))
			return
		}
		req.Status = &status
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			req.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			req.Offset = n
		}
	}

	deliveries, total, err := h.service.ListDeliveries(r.Context(), identity, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"deliveries": deliveries,
		"total":      total,
		"limit":      req.Limit,
		"offset":     req.Offset,
	})
}

// SetQualityDeduction handles PUT /deliveries/{id}/quality.
func (h *Handler) SetQualityDeduction(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing identity")
		return
	}
	id, err := parseID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid delivery id")
		return
	}

	var req QualityDeductionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
		return
	}

	delivery, err := h.service.SetQualityDeduction(r.Context(), identity, id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, delivery)
}

// SetPricing handles PUT /deliveries/{id}/pricing.
func (h *Handler) SetPricing(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing identity")
		return
	}
	id, err := parseID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid delivery id")
		return
	}

	var req PricingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
		return
	}

	delivery, err := h.service.SetPricing(r.Context(), identity, id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, delivery)
}

// SubmitLorry handles POST /lorries/{id}/submit.
func (h *Handler) SubmitLorry(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing identity")
		return
	}
	id, err := parseID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid lorry id")
		return
	}

	if err := h.service.SubmitLorry(r.Context(), identity, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "submitted"})
}

// ProcessLorry handles POST /lorries/{id}/process.
func (h *Handler) ProcessLorry(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing identity")
		return
	}
	id, err := parseID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid lorry id")
		return
	}

	result, err := h.service.ProcessLorryDeliveries(r.Context(), identity, id)
	if err != nil {
		h.logger.Warn("process lorry failed",
			slog.Int64("lorry_id", id),
			slog.String("error", err.Error()),
		)
		httpx.RespondError(w, err)
		return
	}

	h.logger.Info("lorry processed",
		slog.Int64("lorry_id", id),
		slog.Int("processed_count", result.ProcessedCount),
		slog.Float64("total_payout", result.TotalPayout),
	)
	httpx.JSON(w, http.StatusOK, result)
}

// ProcessLorries handles POST /lorries/process.
func (h *Handler) ProcessLorries(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing identity")
		return
	}

	var req struct {
		LorryIDs []int64 `json:"lorry_ids" validate:"required,min=1,dive,gt=0"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
		return
	}

	outcomes, err := h.service.ProcessLorries(r.Context(), identity, req.LorryIDs)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"outcomes": outcomes})
}

// GetReport handles GET /deliveries/{id}/report.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing identity")
		return
	}
	id, err := parseID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid delivery id")
		return
	}

	report, err := h.service.GetSettlementReport(r.Context(), identity, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func parseID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}
