package lorries

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmtally/farmtally/internal/notify"
	"github.com/farmtally/farmtally/internal/platform/httpx"
	"github.com/farmtally/farmtally/internal/shared"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	lorries  map[int64]*Lorry
	requests map[int64]*Request
	nextID   int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		lorries:  make(map[int64]*Lorry),
		requests: make(map[int64]*Request),
		nextID:   1,
	}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *mockRepository) GetLorry(ctx context.Context, organizationID, id int64) (*Lorry, error) {
	l, ok := m.lorries[id]
	if !ok || l.OrganizationID != organizationID {
		return nil, ErrNotFound
	}
	copied := *l
	return &copied, nil
}

func (m *mockRepository) ListLorries(ctx context.Context, organizationID int64) ([]Lorry, error) {
	var out []Lorry
	for _, l := range m.lorries {
		if l.OrganizationID == organizationID {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (m *mockRepository) GetRequest(ctx context.Context, organizationID, id int64) (*Request, error) {
	r, ok := m.requests[id]
	if !ok || r.OrganizationID != organizationID {
		return nil, ErrNotFound
	}
	copied := *r
	return &copied, nil
}

func (m *mockRepository) ListRequests(ctx context.Context, organizationID int64, status *RequestStatus) ([]Request, error) {
	var out []Request
	for _, r := range m.requests {
		if r.OrganizationID != organizationID {
			continue
		}
		if status != nil && r.Status != *status {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

func (m *mockRepository) CreateRequest(ctx context.Context, req Request) (int64, error) {
	for _, existing := range m.requests {
		if existing.ManagerID == req.ManagerID &&
			existing.RequestedFor.Equal(req.RequestedFor) &&
			existing.Status != RequestRejected {
			return 0, ErrDuplicateDate
		}
	}
	id := m.nextID
	m.nextID++
	req.ID = id
	m.requests[id] = &req
	return id, nil
}

func (m *mockRepository) GetLorryForUpdate(ctx context.Context, organizationID, id int64) (*Lorry, error) {
	return m.GetLorry(ctx, organizationID, id)
}

func (m *mockRepository) UpdateLorry(ctx context.Context, id int64, updates map[string]interface{}) error {
	l, ok := m.lorries[id]
	if !ok {
		return ErrNotFound
	}
	for field, value := range updates {
		switch field {
		case "status":
			l.Status = value.(Status)
		case "assigned_manager_id":
			managerID := value.(int64)
			l.AssignedManagerID = &managerID
		case "assigned_at":
			at := value.(time.Time)
			l.AssignedAt = &at
		}
	}
	return nil
}

func (m *mockRepository) UpdateRequestStatus(ctx context.Context, id int64, status RequestStatus, decidedBy int64, lorryID *int64) error {
	r, ok := m.requests[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	r.Status = status
	r.DecidedBy = &decidedBy
	r.DecidedAt = &now
	r.LorryID = lorryID
	return nil
}

type mockNotifier struct {
	events []notify.Event
}

func (m *mockNotifier) Emit(ctx context.Context, event notify.Event) error {
	m.events = append(m.events, event)
	return nil
}

// ============================================================================
// FIXTURE
// ============================================================================

const (
	testOrgID     int64 = 1
	testManagerID int64 = 10
	testAdminID   int64 = 20
	testLorryID   int64 = 100
)

func managerIdentity() shared.Identity {
	return shared.Identity{UserID: testManagerID, OrganizationID: testOrgID, Role: shared.RoleFieldManager}
}

func adminIdentity() shared.Identity {
	return shared.Identity{UserID: testAdminID, OrganizationID: testOrgID, Role: shared.RoleFarmAdmin}
}

func newTestService() (*Service, *mockRepository, *mockNotifier) {
	repo := newMockRepository()
	notifier := &mockNotifier{}
	service := NewService(repo, nil, notifier, 0)

	repo.lorries[testLorryID] = &Lorry{
		ID:             testLorryID,
		OrganizationID: testOrgID,
		PlateNumber:    "KDA 123X",
		CapacityKg:     7000,
		Status:         StatusAvailable,
	}
	return service, repo, notifier
}

func pendingRequest(t *testing.T, service *Service) *Request {
	t.Helper()
	req, err := service.RequestLorry(context.Background(), managerIdentity(), CreateRequestInput{
		RequestedFor: time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC),
		Priority:     3,
	})
	require.NoError(t, err)
	return req
}

// ============================================================================
// TESTS
// ============================================================================

func TestRequestLorry(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a pending request and emits an event", func(t *testing.T) {
		service, _, notifier := newTestService()
		req := pendingRequest(t, service)

		assert.Equal(t, RequestPending, req.Status)
		assert.Equal(t, testManagerID, req.ManagerID)
		require.Len(t, notifier.events, 1)
		assert.Equal(t, notify.EventLorryRequest, notifier.events[0].Type)
	})

	t.Run("second request for the same date conflicts", func(t *testing.T) {
		service, _, _ := newTestService()
		pendingRequest(t, service)

		_, err := service.RequestLorry(ctx, managerIdentity(), CreateRequestInput{
			RequestedFor: time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC),
		})
		require.ErrorIs(t, err, httpx.ErrConflict)
	})

	t.Run("admins cannot request lorries", func(t *testing.T) {
		service, _, _ := newTestService()
		_, err := service.RequestLorry(ctx, adminIdentity(), CreateRequestInput{
			RequestedFor: time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC),
		})
		require.ErrorIs(t, err, httpx.ErrForbidden)
	})
}

func TestApproveRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("assigns the lorry to the requesting manager", func(t *testing.T) {
		service, repo, notifier := newTestService()
		req := pendingRequest(t, service)

		approved, err := service.ApproveRequest(ctx, adminIdentity(), req.ID, ApproveRequestInput{LorryID: testLorryID})
		require.NoError(t, err)

		assert.Equal(t, RequestApproved, approved.Status)
		require.NotNil(t, approved.LorryID)
		assert.Equal(t, testLorryID, *approved.LorryID)

		lorry := repo.lorries[testLorryID]
		assert.Equal(t, StatusAssigned, lorry.Status)
		require.NotNil(t, lorry.AssignedManagerID)
		assert.Equal(t, testManagerID, *lorry.AssignedManagerID)

		var types []notify.EventType
		for _, e := range notifier.events {
			types = append(types, e.Type)
		}
		assert.Contains(t, types, notify.EventLorryApproved)
	})

	t.Run("already assigned lorry conflicts", func(t *testing.T) {
		service, repo, _ := newTestService()
		req := pendingRequest(t, service)

		other := int64(99)
		repo.lorries[testLorryID].Status = StatusAssigned
		repo.lorries[testLorryID].AssignedManagerID = &other

		_, err := service.ApproveRequest(ctx, adminIdentity(), req.ID, ApproveRequestInput{LorryID: testLorryID})
		require.ErrorIs(t, err, httpx.ErrConflict)
	})

	t.Run("decided request cannot be approved again", func(t *testing.T) {
		service, _, _ := newTestService()
		req := pendingRequest(t, service)

		_, err := service.ApproveRequest(ctx, adminIdentity(), req.ID, ApproveRequestInput{LorryID: testLorryID})
		require.NoError(t, err)

		_, err = service.ApproveRequest(ctx, adminIdentity(), req.ID, ApproveRequestInput{LorryID: testLorryID})
		require.ErrorIs(t, err, httpx.ErrConflict)
	})

	t.Run("managers cannot approve", func(t *testing.T) {
		service, _, _ := newTestService()
		req := pendingRequest(t, service)

		_, err := service.ApproveRequest(ctx, managerIdentity(), req.ID, ApproveRequestInput{LorryID: testLorryID})
		require.ErrorIs(t, err, httpx.ErrForbidden)
	})
}

func TestRejectRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("marks the request rejected", func(t *testing.T) {
		service, _, _ := newTestService()
		req := pendingRequest(t, service)

		rejected, err := service.RejectRequest(ctx, adminIdentity(), req.ID)
		require.NoError(t, err)
		assert.Equal(t, RequestRejected, rejected.Status)
	})

	t.Run("rejected date can be requested again", func(t *testing.T) {
		service, _, _ := newTestService()
		req := pendingRequest(t, service)

		_, err := service.RejectRequest(ctx, adminIdentity(), req.ID)
		require.NoError(t, err)

		_, err = service.RequestLorry(ctx, managerIdentity(), CreateRequestInput{
			RequestedFor: time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
	})
}
