package advances

import (
	"context"
	"fmt"

	"github.com/farmtally/farmtally/internal/notify"
	"github.com/farmtally/farmtally/internal/platform/httpx"
	"github.com/farmtally/farmtally/internal/shared"
)

// Notifier emits semantic events for the notification dispatcher.
type Notifier interface {
	Emit(ctx context.Context, event notify.Event) error
}

// Service provides business logic for advance payments.
type Service struct {
	repo     Repository
	notifier Notifier
}

// NewService constructs an advances service.
func NewService(repo Repository, notifier Notifier) *Service {
	return &Service{repo: repo, notifier: notifier}
}

// OutstandingBalance aggregates the farmer's advances that have not been
// reversed. The settlement engine calls this twice per delivery: once to
// snapshot at creation and again at processing time; the processing-time
// read always wins for the final computation.
func (s *Service) OutstandingBalance(ctx context.Context, organizationID, farmerID int64) (float64, error) {
	balance, err := s.repo.OutstandingBalance(ctx, organizationID, farmerID)
	if err != nil {
		return 0, fmt.Errorf("outstanding balance: %w", err)
	}
	return balance, nil
}

// Record creates a new advance for a farmer. Only farm admins disburse cash.
func (s *Service) Record(ctx context.Context, identity shared.Identity, req RecordAdvanceRequest) (*Advance, error) {
	if !identity.IsFarmAdmin() {
		return nil, fmt.Errorf("%w: only farm admins can record advances", httpx.ErrForbidden)
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: advance amount must be positive", httpx.ErrValidation)
	}

	advance := Advance{
		OrganizationID: identity.OrganizationID,
		FarmerID:       req.FarmerID,
		Amount:         req.Amount,
		Status:         StatusActive,
		Purpose:        req.Purpose,
		RecordedBy:     identity.UserID,
	}

	id, err := s.repo.Create(ctx, advance)
	if err != nil {
		return nil, fmt.Errorf("create advance: %w", err)
	}

	created, err := s.repo.Get(ctx, identity.OrganizationID, id)
	if err != nil {
		return nil, fmt.Errorf("get advance: %w", err)
	}

	if s.notifier != nil {
		_ = s.notifier.Emit(ctx, notify.Event{
			Type:           notify.EventAdvancePayment,
			OrganizationID: identity.OrganizationID,
			Recipients:     []int64{req.FarmerID},
			Detail: map[string]any{
				"advance_id": id,
				"farmer_id":  req.FarmerID,
				"amount":     req.Amount,
			},
		})
	}

	return created, nil
}

// Reverse writes off an advance so it no longer counts toward the balance.
func (s *Service) Reverse(ctx context.Context, identity shared.Identity, advanceID int64) (*Advance, error) {
	if !identity.IsFarmAdmin() {
		return nil, fmt.Errorf("%w: only farm admins can reverse advances", httpx.ErrForbidden)
	}

	existing, err := s.repo.Get(ctx, identity.OrganizationID, advanceID)
	if err != nil {
		if err == ErrNotFound {
			return nil, fmt.Errorf("%w: advance not found", httpx.ErrNotFound)
		}
		return nil, fmt.Errorf("get advance: %w", err)
	}
	if existing.Status == StatusReversed {
		return nil, fmt.Errorf("%w: advance already reversed", httpx.ErrConflict)
	}

	if err := s.repo.UpdateStatus(ctx, identity.OrganizationID, advanceID, StatusReversed); err != nil {
		return nil, fmt.Errorf("reverse advance: %w", err)
	}

	return s.repo.Get(ctx, identity.OrganizationID, advanceID)
}

// History lists the farmer's advances, newest first.
func (s *Service) History(ctx context.Context, organizationID, farmerID int64) ([]Advance, error) {
	return s.repo.ListByFarmer(ctx, organizationID, farmerID)
}
