package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmtally/farmtally/internal/advances"
	"github.com/farmtally/farmtally/internal/platform/httpx"
)

func TestMaskTail(t *testing.T) {
	assert.Equal(t, "******6789", maskTail("0123456789"))
	assert.Equal(t, "*********0042", maskTail("FRM-2024-0042"))
	assert.Equal(t, "****", maskTail("123"))
	assert.Equal(t, "****", maskTail(""))
	assert.Equal(t, "****", maskTail("1234"))
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "9,480.00", formatAmount(9480))
	assert.Equal(t, "8,460.00", formatAmount(8460))
	assert.Equal(t, "0.00", formatAmount(0))
	assert.Equal(t, "1,234,567.89", formatAmount(1234567.89))
}

func TestGetSettlementReport(t *testing.T) {
	ctx := context.Background()

	t.Run("assembles a completed delivery", func(t *testing.T) {
		f, d := submitFixture(t)
		f.ledger.history[testFarmerID] = []advances.Advance{
			{ID: 1, FarmerID: testFarmerID, Amount: 600, Status: advances.StatusActive, CreatedAt: time.Now().Add(-48 * time.Hour)},
			{ID: 2, FarmerID: testFarmerID, Amount: 400, Status: advances.StatusActive, CreatedAt: time.Now().Add(-24 * time.Hour)},
		}

		_, err := f.service.ProcessLorryDeliveries(ctx, adminIdentity(), testLorryID)
		require.NoError(t, err)

		report, err := f.service.GetSettlementReport(ctx, adminIdentity(), d.ID)
		require.NoError(t, err)

		assert.Equal(t, d.ID, report.DeliveryID)
		assert.Equal(t, "Wanjiku Mwangi", report.Farmer.Name)
		assert.Equal(t, "*********0042", report.Farmer.Code)
		assert.Equal(t, "******6789", report.Farmer.BankAccount)

		assert.Equal(t, 10, report.BagsCount)
		assert.Equal(t, 500.0, report.GrossWeight)
		assert.Equal(t, 26.0, report.StandardDeduction)
		assert.Equal(t, 474.0, report.NetWeight)
		assert.Equal(t, 9480.0, report.TotalValue)
		assert.Equal(t, 8460.0, report.FinalAmount)
		assert.Equal(t, "8,460.00", report.FinalAmountDisplay)

		require.Len(t, report.AdvanceHistory, 2)
		assert.Equal(t, 600.0, report.AdvanceHistory[0].Amount)
	})

	t.Run("refuses deliveries that are not completed", func(t *testing.T) {
		f := newFixture(t)
		d := f.addDelivery(t, tenBags(50), 20)

		_, err := f.service.GetSettlementReport(ctx, adminIdentity(), d.ID)
		require.ErrorIs(t, err, httpx.ErrConflict)
	})

	t.Run("unknown delivery is not found", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.GetSettlementReport(ctx, adminIdentity(), 424242)
		require.ErrorIs(t, err, httpx.ErrNotFound)
	})
}
