package settlement

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/farmtally/farmtally/internal/notify"
	"github.com/farmtally/farmtally/internal/platform/httpx"
	"github.com/farmtally/farmtally/internal/shared"
)

// BatchResult summarizes one lorry's processing run.
type BatchResult struct {
	LorryID        int64   `json:"lorryId"`
	ProcessedCount int     `json:"processedCount"`
	TotalPayout    float64 `json:"totalPayout"`
}

// LorryOutcome pairs a lorry with its processing result or failure for
// multi-lorry runs.
type LorryOutcome struct {
	LorryID int64        `json:"lorryId"`
	Result  *BatchResult `json:"result,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// ProcessLorryDeliveries finalizes every IN_PROGRESS delivery on a lorry in
// a single transaction: financials are recomputed against a fresh advance
// balance, deliveries move to COMPLETED, farmer stats are incremented, and
// the lorry is released back to AVAILABLE. Either every delivery on the
// lorry completes or none do.
func (s *Service) ProcessLorryDeliveries(ctx context.Context, identity shared.Identity, lorryID int64) (*BatchResult, error) {
	if !identity.IsFarmAdmin() {
		return nil, fmt.Errorf("%w: only farm admins can process deliveries", httpx.ErrForbidden)
	}

	if _, err := s.repo.GetLorryInfo(ctx, identity.OrganizationID, lorryID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: lorry not found", httpx.ErrNotFound)
		}
		return nil, fmt.Errorf("get lorry: %w", err)
	}

	price, err := s.repo.GetOrgPricePerKg(ctx, identity.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("organization price: %w", err)
	}
	if price <= 0 {
		return nil, fmt.Errorf("%w: set the organization price per kg before processing", httpx.ErrDependency)
	}

	release, err := s.mutex.Acquire(ctx, shared.LorryLockKey(lorryID), s.lockTTL)
	if err != nil {
		if errors.Is(err, shared.ErrLockHeld) {
			return nil, fmt.Errorf("%w: lorry is being processed, retry", httpx.ErrConflict)
		}
		return nil, err
	}
	defer release()

	result := &BatchResult{LorryID: lorryID}
	var completed []Delivery

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetLorryForUpdate(ctx, identity.OrganizationID, lorryID); err != nil {
			return fmt.Errorf("lock lorry: %w", err)
		}

		deliveries, err := tx.ListLorryDeliveriesForUpdate(ctx, lorryID, StatusInProgress)
		if err != nil {
			return fmt.Errorf("list deliveries: %w", err)
		}
		if len(deliveries) == 0 {
			return fmt.Errorf("%w: no deliveries to process", httpx.ErrConflict)
		}

		for _, d := range deliveries {
			// Processing-time balance read replaces the creation snapshot.
			balance, err := s.ledger.OutstandingBalance(ctx, identity.OrganizationID, d.FarmerID)
			if err != nil {
				return fmt.Errorf("advance balance farmer %d: %w", d.FarmerID, err)
			}

			d.PricePerKg = price
			d.AdvanceAmount = balance
			d.InterestCharges = InterestCharges(balance)
			d.TotalValue = TotalValue(d.NetWeight, price)
			d.FinalAmount = FinalAmount(d.TotalValue, balance, d.InterestCharges)
			d.Status = StatusCompleted

			if err := tx.CompleteDelivery(ctx, &d); err != nil {
				return fmt.Errorf("complete delivery %d: %w", d.ID, err)
			}
			if err := tx.IncrementFarmerStats(ctx, identity.OrganizationID, d.FarmerID, d.FinalAmount); err != nil {
				return fmt.Errorf("increment farmer stats %d: %w", d.FarmerID, err)
			}

			result.ProcessedCount++
			result.TotalPayout += d.FinalAmount
			completed = append(completed, d)
		}

		return tx.ReleaseLorry(ctx, lorryID)
	})
	if err != nil {
		return nil, err
	}
	result.TotalPayout = round2(result.TotalPayout)

	for _, d := range completed {
		_ = s.notifier.Emit(ctx, notify.Event{
			Type:           notify.EventDeliveryCompleted,
			OrganizationID: identity.OrganizationID,
			Recipients:     []int64{d.FieldManagerID},
			Detail: map[string]any{
				"delivery_id":  d.ID,
				"lorry_id":     lorryID,
				"farmer_id":    d.FarmerID,
				"final_amount": d.FinalAmount,
			},
		})
		_ = s.notifier.Emit(ctx, notify.Event{
			Type:           notify.EventPaymentProcessed,
			OrganizationID: identity.OrganizationID,
			Recipients:     []int64{identity.UserID},
			Detail: map[string]any{
				"delivery_id": d.ID,
				"farmer_id":   d.FarmerID,
				"amount":      d.FinalAmount,
			},
		})
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  identity.UserID,
		Action:   "settlement.process_lorry",
		Entity:   "lorry",
		EntityID: fmt.Sprintf("%d", lorryID),
		Meta: map[string]any{
			"organization_id": identity.OrganizationID,
			"processed_count": result.ProcessedCount,
			"total_payout":    result.TotalPayout,
		},
	})

	return result, nil
}

// ProcessLorries runs the batch processor over several lorries
// concurrently. Each lorry is an independent unit of work: one lorry
// failing does not roll back or stop the others.
func (s *Service) ProcessLorries(ctx context.Context, identity shared.Identity, lorryIDs []int64) ([]LorryOutcome, error) {
	if !identity.IsFarmAdmin() {
		return nil, fmt.Errorf("%w: only farm admins can process deliveries", httpx.ErrForbidden)
	}
	if len(lorryIDs) == 0 {
		return nil, fmt.Errorf("%w: no lorries given", httpx.ErrValidation)
	}

	outcomes := make([]LorryOutcome, len(lorryIDs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, id := range lorryIDs {
		i, id := i, id
		g.Go(func() error {
			res, err := s.ProcessLorryDeliveries(ctx, identity, id)
			if err != nil {
				outcomes[i] = LorryOutcome{LorryID: id, Error: err.Error()}
				return nil
			}
			outcomes[i] = LorryOutcome{LorryID: id, Result: res}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}
