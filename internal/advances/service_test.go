package advances

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmtally/farmtally/internal/platform/httpx"
	"github.com/farmtally/farmtally/internal/shared"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	advances map[int64]*Advance
	nextID   int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{advances: make(map[int64]*Advance), nextID: 1}
}

func (m *mockRepository) OutstandingBalance(ctx context.Context, organizationID, farmerID int64) (float64, error) {
	var sum float64
	for _, a := range m.advances {
		if a.OrganizationID == organizationID && a.FarmerID == farmerID && a.Status.CountsTowardBalance() {
			sum += a.Amount
		}
	}
	return sum, nil
}

func (m *mockRepository) ListByFarmer(ctx context.Context, organizationID, farmerID int64) ([]Advance, error) {
	var out []Advance
	for _, a := range m.advances {
		if a.OrganizationID == organizationID && a.FarmerID == farmerID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *mockRepository) Get(ctx context.Context, organizationID, id int64) (*Advance, error) {
	a, ok := m.advances[id]
	if !ok || a.OrganizationID != organizationID {
		return nil, ErrNotFound
	}
	copied := *a
	return &copied, nil
}

func (m *mockRepository) Create(ctx context.Context, a Advance) (int64, error) {
	id := m.nextID
	m.nextID++
	a.ID = id
	m.advances[id] = &a
	return id, nil
}

func (m *mockRepository) UpdateStatus(ctx context.Context, organizationID, id int64, status Status) error {
	a, ok := m.advances[id]
	if !ok || a.OrganizationID != organizationID {
		return ErrNotFound
	}
	a.Status = status
	return nil
}

func (m *mockRepository) seed(orgID, farmerID int64, amount float64, status Status) int64 {
	id, _ := m.Create(context.Background(), Advance{
		OrganizationID: orgID,
		FarmerID:       farmerID,
		Amount:         amount,
		Status:         status,
	})
	return id
}

var admin = shared.Identity{UserID: 9, OrganizationID: 1, Role: shared.RoleFarmAdmin}
var manager = shared.Identity{UserID: 5, OrganizationID: 1, Role: shared.RoleFieldManager}

// ============================================================================
// TESTS
// ============================================================================

func TestOutstandingBalanceSumsNonReversed(t *testing.T) {
	repo := newMockRepository()
	repo.seed(1, 10, 500, StatusActive)
	repo.seed(1, 10, 300, StatusCompleted)
	repo.seed(1, 10, 1000, StatusReversed) // written off, must not count
	repo.seed(1, 11, 700, StatusActive)    // different farmer
	repo.seed(2, 10, 900, StatusActive)    // different org

	svc := NewService(repo, nil)
	balance, err := svc.OutstandingBalance(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 800.0, balance)
}

func TestOutstandingBalanceEmptyIsZero(t *testing.T) {
	svc := NewService(newMockRepository(), nil)
	balance, err := svc.OutstandingBalance(context.Background(), 1, 99)
	require.NoError(t, err)
	assert.Equal(t, 0.0, balance)
}

func TestRecordAdvance(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)

	created, err := svc.Record(context.Background(), admin, RecordAdvanceRequest{FarmerID: 10, Amount: 1500})
	require.NoError(t, err)
	assert.Equal(t, StatusActive, created.Status)
	assert.Equal(t, 1500.0, created.Amount)
	assert.Equal(t, admin.UserID, created.RecordedBy)

	balance, err := svc.OutstandingBalance(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1500.0, balance)
}

func TestRecordAdvanceRejectsNonAdmin(t *testing.T) {
	svc := NewService(newMockRepository(), nil)
	_, err := svc.Record(context.Background(), manager, RecordAdvanceRequest{FarmerID: 10, Amount: 100})
	require.ErrorIs(t, err, httpx.ErrForbidden)
}

func TestRecordAdvanceRejectsNonPositiveAmount(t *testing.T) {
	svc := NewService(newMockRepository(), nil)
	_, err := svc.Record(context.Background(), admin, RecordAdvanceRequest{FarmerID: 10, Amount: 0})
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestReverseExcludesFromBalance(t *testing.T) {
	repo := newMockRepository()
	id := repo.seed(1, 10, 500, StatusActive)
	svc := NewService(repo, nil)

	reversed, err := svc.Reverse(context.Background(), admin, id)
	require.NoError(t, err)
	assert.Equal(t, StatusReversed, reversed.Status)

	balance, err := svc.OutstandingBalance(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 0.0, balance)
}

func TestReverseTwiceConflicts(t *testing.T) {
	repo := newMockRepository()
	id := repo.seed(1, 10, 500, StatusActive)
	svc := NewService(repo, nil)

	_, err := svc.Reverse(context.Background(), admin, id)
	require.NoError(t, err)
	_, err = svc.Reverse(context.Background(), admin, id)
	require.ErrorIs(t, err, httpx.ErrConflict)
}

func TestReverseUnknownAdvance(t *testing.T) {
	svc := NewService(newMockRepository(), nil)
	_, err := svc.Reverse(context.Background(), admin, 404)
	require.ErrorIs(t, err, httpx.ErrNotFound)
}
