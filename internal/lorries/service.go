// Package lorries manages the vehicle fleet: lifecycle status, field manager
// assignment through dated requests, and release after settlement.
package lorries

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/farmtally/farmtally/internal/notify"
	"github.com/farmtally/farmtally/internal/platform/httpx"
	"github.com/farmtally/farmtally/internal/shared"
)

// Notifier emits semantic events for the notification dispatcher.
type Notifier interface {
	Emit(ctx context.Context, event notify.Event) error
}

// Service provides business logic for lorry assignment.
type Service struct {
	repo     Repository
	mutex    *shared.Mutex
	notifier Notifier
	lockTTL  time.Duration
}

// NewService constructs a lorries service.
func NewService(repo Repository, mutex *shared.Mutex, notifier Notifier, lockTTL time.Duration) *Service {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &Service{repo: repo, mutex: mutex, notifier: notifier, lockTTL: lockTTL}
}

// GetLorry retrieves a lorry in the caller's organization.
func (s *Service) GetLorry(ctx context.Context, identity shared.Identity, lorryID int64) (*Lorry, error) {
	lorry, err := s.repo.GetLorry(ctx, identity.OrganizationID, lorryID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: lorry not found", httpx.ErrNotFound)
		}
		return nil, err
	}
	return lorry, nil
}

// ListLorries returns all lorries in the caller's organization.
func (s *Service) ListLorries(ctx context.Context, identity shared.Identity) ([]Lorry, error) {
	return s.repo.ListLorries(ctx, identity.OrganizationID)
}

// ListRequests returns lorry requests, optionally filtered by status.
func (s *Service) ListRequests(ctx context.Context, identity shared.Identity, status *RequestStatus) ([]Request, error) {
	return s.repo.ListRequests(ctx, identity.OrganizationID, status)
}

// RequestLorry records a field manager's dated lorry request. Only one
// pending or approved request per manager per date is allowed.
func (s *Service) RequestLorry(ctx context.Context, identity shared.Identity, input CreateRequestInput) (*Request, error) {
	if !identity.IsFieldManager() {
		return nil, fmt.Errorf("%w: only field managers can request lorries", httpx.ErrForbidden)
	}

	req := Request{
		OrganizationID: identity.OrganizationID,
		ManagerID:      identity.UserID,
		RequestedFor:   input.RequestedFor.Truncate(24 * time.Hour),
		Priority:       input.Priority,
		Status:         RequestPending,
	}

	id, err := s.repo.CreateRequest(ctx, req)
	if err != nil {
		if errors.Is(err, ErrDuplicateDate) {
			return nil, fmt.Errorf("%w: a request already exists for this date", httpx.ErrConflict)
		}
		return nil, fmt.Errorf("create request: %w", err)
	}

	created, err := s.repo.GetRequest(ctx, identity.OrganizationID, id)
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}

	if s.notifier != nil {
		_ = s.notifier.Emit(ctx, notify.Event{
			Type:           notify.EventLorryRequest,
			OrganizationID: identity.OrganizationID,
			Recipients:     []int64{identity.UserID},
			Detail: map[string]any{
				"request_id":    id,
				"manager_id":    identity.UserID,
				"requested_for": req.RequestedFor.Format("2006-01-02"),
				"priority":      req.Priority,
			},
		})
	}

	return created, nil
}

// ApproveRequest assigns a lorry to the requesting manager. The lorry must
// be AVAILABLE and unassigned; assignment and unassignment are mutually
// exclusive so the row is locked for the duration of the transaction, with a
// redis mutex serializing across instances.
func (s *Service) ApproveRequest(ctx context.Context, identity shared.Identity, requestID int64, input ApproveRequestInput) (*Request, error) {
	if !identity.IsFarmAdmin() {
		return nil, fmt.Errorf("%w: only farm admins can approve lorry requests", httpx.ErrForbidden)
	}

	request, err := s.repo.GetRequest(ctx, identity.OrganizationID, requestID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: lorry request not found", httpx.ErrNotFound)
		}
		return nil, fmt.Errorf("get request: %w", err)
	}
	if request.Status != RequestPending {
		return nil, fmt.Errorf("%w: request already decided", httpx.ErrConflict)
	}

	release, err := s.mutex.Acquire(ctx, shared.LorryLockKey(input.LorryID), s.lockTTL)
	if err != nil {
		if errors.Is(err, shared.ErrLockHeld) {
			return nil, fmt.Errorf("%w: lorry is being updated, retry", httpx.ErrConflict)
		}
		return nil, err
	}
	defer release()

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lorry, err := tx.GetLorryForUpdate(ctx, identity.OrganizationID, input.LorryID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%w: lorry not found", httpx.ErrNotFound)
			}
			return err
		}
		if !lorry.Status.CanAssign() || lorry.AssignedManagerID != nil {
			return fmt.Errorf("%w: lorry is not available for assignment", httpx.ErrConflict)
		}

		if err := tx.UpdateLorry(ctx, lorry.ID, map[string]interface{}{
			"status":              StatusAssigned,
			"assigned_manager_id": request.ManagerID,
			"assigned_at":         time.Now(),
		}); err != nil {
			return fmt.Errorf("assign lorry: %w", err)
		}

		return tx.UpdateRequestStatus(ctx, requestID, RequestApproved, identity.UserID, &input.LorryID)
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		_ = s.notifier.Emit(ctx, notify.Event{
			Type:           notify.EventLorryApproved,
			OrganizationID: identity.OrganizationID,
			Recipients:     []int64{request.ManagerID},
			Detail: map[string]any{
				"request_id": requestID,
				"lorry_id":   input.LorryID,
				"manager_id": request.ManagerID,
			},
		})
	}

	return s.repo.GetRequest(ctx, identity.OrganizationID, requestID)
}

// RejectRequest declines a pending lorry request.
func (s *Service) RejectRequest(ctx context.Context, identity shared.Identity, requestID int64) (*Request, error) {
	if !identity.IsFarmAdmin() {
		return nil, fmt.Errorf("%w: only farm admins can reject lorry requests", httpx.ErrForbidden)
	}

	request, err := s.repo.GetRequest(ctx, identity.OrganizationID, requestID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: lorry request not found", httpx.ErrNotFound)
		}
		return nil, fmt.Errorf("get request: %w", err)
	}
	if request.Status != RequestPending {
		return nil, fmt.Errorf("%w: request already decided", httpx.ErrConflict)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateRequestStatus(ctx, requestID, RequestRejected, identity.UserID, nil)
	})
	if err != nil {
		return nil, err
	}

	return s.repo.GetRequest(ctx, identity.OrganizationID, requestID)
}
