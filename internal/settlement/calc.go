package settlement

import "math"

const (
	// perBagAllowanceKg is the fixed tare and handling loss allowed per bag.
	perBagAllowanceKg = 2.0
	// moistureThresholdPct is the moisture level above which extra weight
	// loss is deducted.
	moistureThresholdPct = 14.0
	// moisturePenaltyPerBagKg is deducted per bag for each percentage point
	// of moisture above the threshold.
	moisturePenaltyPerBagKg = 0.1
	// advanceInterestRate is the flat rate charged on the outstanding
	// advance balance at settlement.
	advanceInterestRate = 0.02
)

// round2 rounds to two decimals, half away from zero. Settlement amounts are
// stored with this exact rounding; tests pin it.
func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// clamp0 floors a derived value at zero. Negative weights and payouts are a
// domain error masked by clamping, never propagated as negative stored
// values or surfaced as failures; the farmer never owes money back through
// this mechanism. Do not replace the clamp with an error.
func clamp0(x float64) float64 {
	if x < 0 {
		return 0
	}
	return x
}

// StandardDeduction computes the standard weight deduction for a delivery
// from its bag count and moisture content. Inputs are validated upstream:
// bagsCount >= 1 and moistureContent within [0,100].
func StandardDeduction(bagsCount int, moistureContent float64) float64 {
	deduction := float64(bagsCount) * perBagAllowanceKg
	if moistureContent > moistureThresholdPct {
		deduction += float64(bagsCount) * (moistureContent - moistureThresholdPct) * moisturePenaltyPerBagKg
	}
	return round2(deduction)
}

// InterestCharges applies the flat advance interest rate to an outstanding
// balance. The caller guarantees advanceBalance >= 0.
func InterestCharges(advanceBalance float64) float64 {
	return round2(advanceBalance * advanceInterestRate)
}

// GrossWeight sums the individually weighed bags.
func GrossWeight(individualWeights []float64) float64 {
	var sum float64
	for _, w := range individualWeights {
		sum += w
	}
	return round2(sum)
}

// NetWeight derives net weight from gross weight and both deductions,
// floored at zero.
func NetWeight(grossWeight, standardDeduction, qualityDeduction float64) float64 {
	return clamp0(round2(grossWeight - standardDeduction - qualityDeduction))
}

// TotalValue prices the net weight.
func TotalValue(netWeight, pricePerKg float64) float64 {
	return round2(netWeight * pricePerKg)
}

// FinalAmount nets the advance balance and interest against the total value,
// floored at zero.
func FinalAmount(totalValue, advanceAmount, interestCharges float64) float64 {
	return clamp0(round2(totalValue - advanceAmount - interestCharges))
}
