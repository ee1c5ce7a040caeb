// Package settlement implements the delivery settlement pipeline: field data
// ingestion, deduction and pricing application, advance netting, batch
// finalization, and report projection.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/farmtally/farmtally/internal/advances"
	"github.com/farmtally/farmtally/internal/lorries"
	"github.com/farmtally/farmtally/internal/notify"
	"github.com/farmtally/farmtally/internal/platform/httpx"
	"github.com/farmtally/farmtally/internal/shared"
)

// AdvanceLedger reads a farmer's outstanding cash-advance balance. The
// engine reads it twice per delivery: a snapshot at creation and a fresh
// read at pricing/processing time; the later read always wins.
type AdvanceLedger interface {
	OutstandingBalance(ctx context.Context, organizationID, farmerID int64) (float64, error)
	History(ctx context.Context, organizationID, farmerID int64) ([]advances.Advance, error)
}

// Notifier emits semantic events for the notification dispatcher.
type Notifier interface {
	Emit(ctx context.Context, event notify.Event) error
}

// Service orchestrates the per-delivery lifecycle and enforces the state
// machine and role gates.
type Service struct {
	repo     Repository
	ledger   AdvanceLedger
	mutex    *shared.Mutex
	notifier Notifier
	audit    *shared.AuditLogger
	lockTTL  time.Duration
}

// NewService constructs a settlement service.
func NewService(
	repo Repository,
	ledger AdvanceLedger,
	mutex *shared.Mutex,
	notifier Notifier,
	audit *shared.AuditLogger,
	lockTTL time.Duration,
) *Service {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &Service{
		repo:     repo,
		ledger:   ledger,
		mutex:    mutex,
		notifier: notifier,
		audit:    audit,
		lockTTL:  lockTTL,
	}
}

// ============================================================================
// FIELD MANAGER OPERATIONS
// ============================================================================

// AddFarmerToLorry records a farmer's corn drop-off against the caller's
// assigned lorry. The delivery starts PENDING with the standard deduction
// applied and the advance balance snapshotted; the lorry moves to LOADING on
// its first delivery.
func (s *Service) AddFarmerToLorry(ctx context.Context, identity shared.Identity, req AddFarmerRequest) (*Delivery, error) {
	if !identity.IsFieldManager() {
		return nil, fmt.Errorf("%w: only field managers can record deliveries", httpx.ErrForbidden)
	}

	if req.BagsCount < 1 {
		return nil, fmt.Errorf("%w: bags count must be at least 1", httpx.ErrValidation)
	}
	if req.MoistureContent < 0 || req.MoistureContent > 100 {
		return nil, fmt.Errorf("%w: moisture content must be between 0 and 100", httpx.ErrValidation)
	}
	if len(req.IndividualWeights) != req.BagsCount {
		return nil, fmt.Errorf("%w: individual weights count does not match bags count", httpx.ErrValidation)
	}
	for _, w := range req.IndividualWeights {
		if w <= 0 {
			return nil, fmt.Errorf("%w: individual weights must be positive", httpx.ErrValidation)
		}
	}

	lorry, err := s.repo.GetLorryInfo(ctx, identity.OrganizationID, req.LorryID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: lorry not found", httpx.ErrNotFound)
		}
		return nil, fmt.Errorf("get lorry: %w", err)
	}
	status := lorries.Status(lorry.Status)
	if !status.CanAcceptDeliveries() {
		return nil, fmt.Errorf("%w: lorry already sent to dealer", httpx.ErrConflict)
	}
	if lorry.AssignedManagerID == nil || *lorry.AssignedManagerID != identity.UserID {
		return nil, fmt.Errorf("%w: lorry is not assigned to you", httpx.ErrForbidden)
	}

	farmer, err := s.repo.GetFarmerInfo(ctx, identity.OrganizationID, req.FarmerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: farmer not found", httpx.ErrNotFound)
		}
		return nil, fmt.Errorf("get farmer: %w", err)
	}
	if !farmer.Active {
		return nil, fmt.Errorf("%w: farmer not found", httpx.ErrNotFound)
	}

	gross := GrossWeight(req.IndividualWeights)
	standard := StandardDeduction(req.BagsCount, req.MoistureContent)

	// Creation-time snapshot; pricing and batch processing re-read.
	balance, err := s.ledger.OutstandingBalance(ctx, identity.OrganizationID, req.FarmerID)
	if err != nil {
		return nil, fmt.Errorf("advance balance: %w", err)
	}

	delivery := Delivery{
		OrganizationID:    identity.OrganizationID,
		LorryID:           req.LorryID,
		FarmerID:          req.FarmerID,
		FieldManagerID:    identity.UserID,
		BagsCount:         req.BagsCount,
		IndividualWeights: req.IndividualWeights,
		MoistureContent:   req.MoistureContent,
		GrossWeight:       gross,
		StandardDeduction: standard,
		QualityDeduction:  0,
		NetWeight:         NetWeight(gross, standard, 0),
		AdvanceAmount:     balance,
		Status:            StatusPending,
	}

	var deliveryID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateDelivery(ctx, delivery)
		if err != nil {
			if errors.Is(err, ErrFarmerAlreadyAdded) {
				return fmt.Errorf("%w: farmer already added to this lorry", httpx.ErrConflict)
			}
			return fmt.Errorf("create delivery: %w", err)
		}
		deliveryID = id

		if status == lorries.StatusAssigned {
			if err := tx.UpdateLorryStatus(ctx, req.LorryID, lorries.StatusLoading); err != nil {
				return fmt.Errorf("update lorry status: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.repo.GetDelivery(ctx, identity.OrganizationID, deliveryID)
}

// UpdateDelivery recomputes derived weights for a PENDING delivery when its
// raw inputs change. The quality deduction is carried forward unchanged.
func (s *Service) UpdateDelivery(ctx context.Context, identity shared.Identity, deliveryID int64, req UpdateDeliveryRequest) (*Delivery, error) {
	existing, err := s.getDelivery(ctx, identity.OrganizationID, deliveryID)
	if err != nil {
		return nil, err
	}
	if existing.FieldManagerID != identity.UserID {
		return nil, fmt.Errorf("%w: access denied", httpx.ErrForbidden)
	}
	if !existing.Status.CanEdit() {
		return nil, fmt.Errorf("%w: delivery is not pending", httpx.ErrConflict)
	}

	bags := existing.BagsCount
	weights := existing.IndividualWeights
	moisture := existing.MoistureContent

	if req.BagsCount != nil {
		bags = *req.BagsCount
	}
	if req.IndividualWeights != nil {
		weights = *req.IndividualWeights
	}
	if req.MoistureContent != nil {
		moisture = *req.MoistureContent
	}

	if bags < 1 {
		return nil, fmt.Errorf("%w: bags count must be at least 1", httpx.ErrValidation)
	}
	if moisture < 0 || moisture > 100 {
		return nil, fmt.Errorf("%w: moisture content must be between 0 and 100", httpx.ErrValidation)
	}
	if len(weights) != bags {
		return nil, fmt.Errorf("%w: individual weights count does not match bags count", httpx.ErrValidation)
	}

	gross := GrossWeight(weights)
	standard := StandardDeduction(bags, moisture)

	updates := map[string]interface{}{
		"bags_count":         bags,
		"individual_weights": weights,
		"moisture_content":   moisture,
		"gross_weight":       gross,
		"standard_deduction": standard,
		"net_weight":         NetWeight(gross, standard, existing.QualityDeduction),
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateDelivery(ctx, deliveryID, updates)
	})
	if err != nil {
		return nil, fmt.Errorf("update delivery: %w", err)
	}

	return s.repo.GetDelivery(ctx, identity.OrganizationID, deliveryID)
}

// DeleteDelivery removes a still-PENDING delivery. When the lorry is left
// with no deliveries it reverts to ASSIGNED.
func (s *Service) DeleteDelivery(ctx context.Context, identity shared.Identity, deliveryID int64) error {
	existing, err := s.getDelivery(ctx, identity.OrganizationID, deliveryID)
	if err != nil {
		return err
	}
	if existing.FieldManagerID != identity.UserID {
		return fmt.Errorf("%w: access denied", httpx.ErrForbidden)
	}
	if !existing.Status.CanDelete() {
		return fmt.Errorf("%w: delivery is not pending", httpx.ErrConflict)
	}

	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeleteDelivery(ctx, deliveryID); err != nil {
			return fmt.Errorf("delete delivery: %w", err)
		}
		remaining, err := tx.CountOpenByLorry(ctx, existing.LorryID)
		if err != nil {
			return fmt.Errorf("count deliveries: %w", err)
		}
		if remaining == 0 {
			if err := tx.UpdateLorryStatus(ctx, existing.LorryID, lorries.StatusAssigned); err != nil {
				return fmt.Errorf("revert lorry status: %w", err)
			}
		}
		return nil
	})
}

// SubmitLorry sends the lorry off to the dealer: all its PENDING deliveries
// move to IN_PROGRESS and the lorry to SUBMITTED.
func (s *Service) SubmitLorry(ctx context.Context, identity shared.Identity, lorryID int64) error {
	if !identity.IsFieldManager() {
		return fmt.Errorf("%w: only field managers can submit lorries", httpx.ErrForbidden)
	}

	lorry, err := s.repo.GetLorryInfo(ctx, identity.OrganizationID, lorryID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: lorry not found", httpx.ErrNotFound)
		}
		return fmt.Errorf("get lorry: %w", err)
	}
	if lorry.AssignedManagerID == nil || *lorry.AssignedManagerID != identity.UserID {
		return fmt.Errorf("%w: lorry is not assigned to you", httpx.ErrForbidden)
	}
	if !lorries.Status(lorry.Status).CanSubmit() {
		return fmt.Errorf("%w: lorry is not loading", httpx.ErrConflict)
	}

	count, err := s.repo.CountOpenByLorry(ctx, lorryID)
	if err != nil {
		return fmt.Errorf("count deliveries: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("%w: lorry has no deliveries", httpx.ErrConflict)
	}

	release, err := s.mutex.Acquire(ctx, shared.LorryLockKey(lorryID), s.lockTTL)
	if err != nil {
		if errors.Is(err, shared.ErrLockHeld) {
			return fmt.Errorf("%w: lorry is being updated, retry", httpx.ErrConflict)
		}
		return err
	}
	defer release()

	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetLorryForUpdate(ctx, identity.OrganizationID, lorryID); err != nil {
			return fmt.Errorf("lock lorry: %w", err)
		}
		if _, err := tx.BulkUpdateStatus(ctx, lorryID, StatusPending, StatusInProgress); err != nil {
			return fmt.Errorf("move deliveries in progress: %w", err)
		}
		return tx.UpdateLorryStatus(ctx, lorryID, lorries.StatusSubmitted)
	})
}

// ============================================================================
// FARM ADMIN OPERATIONS
// ============================================================================

// SetQualityDeduction records the admin-assessed weight penalty and
// recomputes the net weight.
func (s *Service) SetQualityDeduction(ctx context.Context, identity shared.Identity, deliveryID int64, req QualityDeductionRequest) (*Delivery, error) {
	if !identity.IsFarmAdmin() {
		return nil, fmt.Errorf("%w: only farm admins can set quality deductions", httpx.ErrForbidden)
	}

	existing, err := s.getDelivery(ctx, identity.OrganizationID, deliveryID)
	if err != nil {
		return nil, err
	}
	if existing.Status == StatusCompleted {
		return nil, fmt.Errorf("%w: delivery already completed", httpx.ErrConflict)
	}

	if req.QualityDeduction < 0 {
		return nil, fmt.Errorf("%w: quality deduction cannot be negative", httpx.ErrValidation)
	}
	if req.QualityDeduction > existing.GrossWeight {
		return nil, fmt.Errorf("%w: quality deduction exceeds gross weight", httpx.ErrValidation)
	}

	updates := map[string]interface{}{
		"quality_deduction": req.QualityDeduction,
		"net_weight":        NetWeight(existing.GrossWeight, existing.StandardDeduction, req.QualityDeduction),
	}
	if req.QualityGrade != nil {
		updates["quality_grade"] = req.QualityGrade
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateDelivery(ctx, deliveryID, updates)
	})
	if err != nil {
		return nil, fmt.Errorf("set quality deduction: %w", err)
	}

	return s.repo.GetDelivery(ctx, identity.OrganizationID, deliveryID)
}

// SetPricing applies a price to a single delivery and computes its
// financials against a fresh advance-balance read. The creation-time
// snapshot is deliberately discarded here: new advances recorded since the
// field entry must be netted.
func (s *Service) SetPricing(ctx context.Context, identity shared.Identity, deliveryID int64, req PricingRequest) (*Delivery, error) {
	if !identity.IsFarmAdmin() {
		return nil, fmt.Errorf("%w: only farm admins can set pricing", httpx.ErrForbidden)
	}
	if req.PricePerKg <= 0 {
		return nil, fmt.Errorf("%w: price per kg must be positive", httpx.ErrValidation)
	}

	existing, err := s.getDelivery(ctx, identity.OrganizationID, deliveryID)
	if err != nil {
		return nil, err
	}
	if existing.Status == StatusCompleted {
		return nil, fmt.Errorf("%w: delivery already completed", httpx.ErrConflict)
	}

	balance, err := s.ledger.OutstandingBalance(ctx, identity.OrganizationID, existing.FarmerID)
	if err != nil {
		return nil, fmt.Errorf("advance balance: %w", err)
	}

	interest := InterestCharges(balance)
	total := TotalValue(existing.NetWeight, req.PricePerKg)

	updates := map[string]interface{}{
		"price_per_kg":     req.PricePerKg,
		"advance_amount":   balance,
		"interest_charges": interest,
		"total_value":      total,
		"final_amount":     FinalAmount(total, balance, interest),
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateDelivery(ctx, deliveryID, updates)
	})
	if err != nil {
		return nil, fmt.Errorf("set pricing: %w", err)
	}

	return s.repo.GetDelivery(ctx, identity.OrganizationID, deliveryID)
}

// ============================================================================
// QUERY OPERATIONS
// ============================================================================

// GetDelivery retrieves a delivery with display details.
func (s *Service) GetDelivery(ctx context.Context, identity shared.Identity, deliveryID int64) (*WithDetails, error) {
	wd, err := s.repo.GetDeliveryWithDetails(ctx, identity.OrganizationID, deliveryID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: delivery not found", httpx.ErrNotFound)
		}
		return nil, err
	}
	return wd, nil
}

// ListDeliveries returns a filtered, paginated delivery listing.
func (s *Service) ListDeliveries(ctx context.Context, identity shared.Identity, req ListDeliveriesRequest) ([]WithDetails, int, error) {
	return s.repo.List(ctx, identity.OrganizationID, req)
}

func (s *Service) getDelivery(ctx context.Context, organizationID, deliveryID int64) (*Delivery, error) {
	existing, err := s.repo.GetDelivery(ctx, organizationID, deliveryID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: delivery not found", httpx.ErrNotFound)
		}
		return nil, fmt.Errorf("get delivery: %w", err)
	}
	return existing, nil
}
