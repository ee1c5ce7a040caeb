package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmtally/farmtally/internal/lorries"
	"github.com/farmtally/farmtally/internal/notify"
	"github.com/farmtally/farmtally/internal/platform/httpx"
	"github.com/farmtally/farmtally/internal/shared"
)

// submitFixture stages a lorry with one submitted delivery ready for
// processing.
func submitFixture(t *testing.T) (*fixture, *Delivery) {
	t.Helper()
	f := newFixture(t)
	f.ledger.balances[testFarmerID] = 1000
	d := f.addDelivery(t, tenBags(50), 20)
	require.NoError(t, f.service.SubmitLorry(context.Background(), managerIdentity(), testLorryID))
	return f, d
}

func TestProcessLorryDeliveries(t *testing.T) {
	ctx := context.Background()

	t.Run("completes deliveries and releases the lorry", func(t *testing.T) {
		f, d := submitFixture(t)

		result, err := f.service.ProcessLorryDeliveries(ctx, adminIdentity(), testLorryID)
		require.NoError(t, err)

		assert.Equal(t, 1, result.ProcessedCount)
		assert.Equal(t, 8460.0, result.TotalPayout)

		stored := f.repo.deliveries[d.ID]
		assert.Equal(t, StatusCompleted, stored.Status)
		assert.Equal(t, 20.0, stored.PricePerKg)
		assert.Equal(t, 9480.0, stored.TotalValue)
		assert.Equal(t, 1000.0, stored.AdvanceAmount)
		assert.Equal(t, 20.0, stored.InterestCharges)
		assert.Equal(t, 8460.0, stored.FinalAmount)

		lorry := f.repo.lorryInfos[testLorryID]
		assert.Equal(t, string(lorries.StatusAvailable), lorry.Status)
		assert.Nil(t, lorry.AssignedManagerID)
	})

	t.Run("increments farmer stats once per delivery", func(t *testing.T) {
		f, _ := submitFixture(t)

		_, err := f.service.ProcessLorryDeliveries(ctx, adminIdentity(), testLorryID)
		require.NoError(t, err)

		stats := f.repo.stats[testFarmerID]
		assert.Equal(t, 1, stats.TotalDeliveries)
		assert.Equal(t, 8460.0, stats.TotalEarnings)
	})

	t.Run("reprocessing fails with no deliveries to process", func(t *testing.T) {
		f, _ := submitFixture(t)

		_, err := f.service.ProcessLorryDeliveries(ctx, adminIdentity(), testLorryID)
		require.NoError(t, err)

		_, err = f.service.ProcessLorryDeliveries(ctx, adminIdentity(), testLorryID)
		require.ErrorIs(t, err, httpx.ErrConflict)

		// No double counting.
		stats := f.repo.stats[testFarmerID]
		assert.Equal(t, 1, stats.TotalDeliveries)
		assert.Equal(t, 8460.0, stats.TotalEarnings)
	})

	t.Run("processing-time balance replaces the stored snapshot", func(t *testing.T) {
		f := newFixture(t)
		f.ledger.balances[testFarmerID] = 400
		d := f.addDelivery(t, tenBags(50), 20)
		require.NoError(t, f.service.SubmitLorry(ctx, managerIdentity(), testLorryID))

		f.ledger.balances[testFarmerID] = 1000

		_, err := f.service.ProcessLorryDeliveries(ctx, adminIdentity(), testLorryID)
		require.NoError(t, err)

		stored := f.repo.deliveries[d.ID]
		assert.Equal(t, 1000.0, stored.AdvanceAmount)
		assert.Equal(t, 8460.0, stored.FinalAmount)
	})

	t.Run("missing org price blocks processing", func(t *testing.T) {
		f, _ := submitFixture(t)
		f.repo.orgPrice[testOrgID] = 0

		_, err := f.service.ProcessLorryDeliveries(ctx, adminIdentity(), testLorryID)
		require.ErrorIs(t, err, httpx.ErrDependency)
	})

	t.Run("stats failure rolls the whole lorry back", func(t *testing.T) {
		f, d := submitFixture(t)
		delete(f.repo.stats, testFarmerID)

		_, err := f.service.ProcessLorryDeliveries(ctx, adminIdentity(), testLorryID)
		require.Error(t, err)

		stored := f.repo.deliveries[d.ID]
		assert.Equal(t, StatusInProgress, stored.Status)
		assert.Equal(t, string(lorries.StatusSubmitted), f.repo.lorryInfos[testLorryID].Status)
	})

	t.Run("managers cannot process", func(t *testing.T) {
		f, _ := submitFixture(t)
		_, err := f.service.ProcessLorryDeliveries(ctx, managerIdentity(), testLorryID)
		require.ErrorIs(t, err, httpx.ErrForbidden)
	})

	t.Run("emits completion and payment events", func(t *testing.T) {
		f, _ := submitFixture(t)

		_, err := f.service.ProcessLorryDeliveries(ctx, adminIdentity(), testLorryID)
		require.NoError(t, err)

		var types []notify.EventType
		for _, e := range f.notifier.events {
			types = append(types, e.Type)
		}
		assert.Contains(t, types, notify.EventDeliveryCompleted)
		assert.Contains(t, types, notify.EventPaymentProcessed)
	})
}

// reassign hands a released lorry back to the manager for a second trip.
// Completed rows from the first trip stay behind in the deliveries table.
func (f *fixture) reassign(t *testing.T) {
	t.Helper()
	lorry := f.repo.lorryInfos[testLorryID]
	require.Equal(t, string(lorries.StatusAvailable), lorry.Status)
	mgr := testManagerID
	lorry.Status = string(lorries.StatusAssigned)
	lorry.AssignedManagerID = &mgr
}

func TestLorryReuseAfterProcessing(t *testing.T) {
	ctx := context.Background()

	t.Run("reused lorry with no open deliveries cannot be submitted", func(t *testing.T) {
		f, _ := submitFixture(t)
		_, err := f.service.ProcessLorryDeliveries(ctx, adminIdentity(), testLorryID)
		require.NoError(t, err)
		f.reassign(t)

		err = f.service.SubmitLorry(ctx, managerIdentity(), testLorryID)
		require.ErrorIs(t, err, httpx.ErrConflict)
		assert.Equal(t, string(lorries.StatusAssigned), f.repo.lorryInfos[testLorryID].Status)
	})

	t.Run("deleting the last open delivery reverts a reused lorry to assigned", func(t *testing.T) {
		f, _ := submitFixture(t)
		_, err := f.service.ProcessLorryDeliveries(ctx, adminIdentity(), testLorryID)
		require.NoError(t, err)
		f.reassign(t)

		d := f.addDelivery(t, tenBags(40), 12)
		require.Equal(t, string(lorries.StatusLoading), f.repo.lorryInfos[testLorryID].Status)

		require.NoError(t, f.service.DeleteDelivery(ctx, managerIdentity(), d.ID))
		assert.Equal(t, string(lorries.StatusAssigned), f.repo.lorryInfos[testLorryID].Status)
	})
}

func TestProcessLorries(t *testing.T) {
	ctx := context.Background()

	t.Run("one failing lorry does not stop the others", func(t *testing.T) {
		f, _ := submitFixture(t)

		outcomes, err := f.service.ProcessLorries(ctx, adminIdentity(), []int64{testLorryID, 9999})
		require.NoError(t, err)
		require.Len(t, outcomes, 2)

		require.NotNil(t, outcomes[0].Result)
		assert.Equal(t, 1, outcomes[0].Result.ProcessedCount)

		assert.Nil(t, outcomes[1].Result)
		assert.NotEmpty(t, outcomes[1].Error)
	})

	t.Run("empty lorry list is rejected", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.ProcessLorries(ctx, adminIdentity(), nil)
		require.ErrorIs(t, err, httpx.ErrValidation)
	})

	t.Run("managers cannot process", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.ProcessLorries(ctx, managerIdentity(), []int64{testLorryID})
		require.ErrorIs(t, err, httpx.ErrForbidden)
	})
}

func TestConcurrentAddFarmer(t *testing.T) {
	// Two racing creations for the same (lorry, farmer): exactly one wins.
	f := newFixture(t)
	ctx := context.Background()

	_, firstErr := f.service.AddFarmerToLorry(ctx, managerIdentity(), AddFarmerRequest{
		LorryID:           testLorryID,
		FarmerID:          testFarmerID,
		BagsCount:         1,
		IndividualWeights: []float64{50},
	})
	_, secondErr := f.service.AddFarmerToLorry(ctx, managerIdentity(), AddFarmerRequest{
		LorryID:           testLorryID,
		FarmerID:          testFarmerID,
		BagsCount:         1,
		IndividualWeights: []float64{50},
	})

	require.NoError(t, firstErr)
	require.ErrorIs(t, secondErr, httpx.ErrConflict)
	assert.Len(t, f.repo.deliveries, 1)
}

func TestLorryLockContention(t *testing.T) {
	// With a real lock held by someone else, processing surfaces a retryable
	// conflict instead of blocking.
	f, _ := submitFixture(t)
	ctx := context.Background()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	mutex := shared.NewMutex(client)
	locked := NewService(f.repo, f.ledger, mutex, f.notifier, nil, 0)

	release, err := mutex.Acquire(ctx, shared.LorryLockKey(testLorryID), time.Minute)
	require.NoError(t, err)
	defer release()

	_, err = locked.ProcessLorryDeliveries(ctx, adminIdentity(), testLorryID)
	require.ErrorIs(t, err, httpx.ErrConflict)
}
