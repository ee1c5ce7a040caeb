package settlement

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStandardDeductionDryCorn(t *testing.T) {
	// At or below the moisture threshold only the per-bag allowance applies.
	assert.Equal(t, 20.0, StandardDeduction(10, 12))
	assert.Equal(t, 20.0, StandardDeduction(10, 14))
	assert.Equal(t, 2.0, StandardDeduction(1, 0))
}

func TestStandardDeductionMoisturePenalty(t *testing.T) {
	// 10 bags at 20% moisture: 10*2.0 + 10*(20-14)*0.1 = 26.0
	assert.Equal(t, 26.0, StandardDeduction(10, 20))
	// Just above the threshold.
	assert.Equal(t, 20.5, StandardDeduction(10, 14.5))
}

func TestStandardDeductionMonotonicInMoisture(t *testing.T) {
	prev := StandardDeduction(25, 14)
	for moisture := 15.0; moisture <= 40; moisture++ {
		cur := StandardDeduction(25, moisture)
		assert.Greater(t, cur, prev, "moisture %.0f", moisture)
		prev = cur
	}
}

func TestStandardDeductionRounding(t *testing.T) {
	// 3 bags at 14.15%: 6 + 3*0.15*0.1 = 6.045, half away from zero -> 6.05.
	assert.Equal(t, 6.05, StandardDeduction(3, 14.15))
	// 1 bag at 14.05%: 2 + 0.005 = 2.005 -> 2.01, not 2.00 (banker's would
	// give 2.00; the pinned mode is half away from zero).
	assert.Equal(t, 2.01, StandardDeduction(1, 14.05))
}

func TestInterestCharges(t *testing.T) {
	assert.Equal(t, 20.0, InterestCharges(1000))
	assert.Equal(t, 0.0, InterestCharges(0))
	assert.Equal(t, 2.47, InterestCharges(123.45)) // 2.469 -> 2.47
}

func TestGrossWeight(t *testing.T) {
	assert.Equal(t, 150.5, GrossWeight([]float64{50, 50.25, 50.25}))
	assert.Equal(t, 0.0, GrossWeight(nil))
}

func TestNetWeightClampsAtZero(t *testing.T) {
	assert.Equal(t, 474.0, NetWeight(500, 26, 0))
	assert.Equal(t, 0.0, NetWeight(10, 8, 5))
}

func TestFinalAmountScenario(t *testing.T) {
	// netWeight=474 at 20/kg with a 1000 advance and 20 interest.
	total := TotalValue(474, 20)
	assert.Equal(t, 9480.0, total)
	assert.Equal(t, 8460.0, FinalAmount(total, 1000, 20))
}

func TestFinalAmountClampsAtZero(t *testing.T) {
	assert.Equal(t, 0.0, FinalAmount(500, 1000, 20))
}
