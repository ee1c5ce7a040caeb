package settlement

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/farmtally/farmtally/internal/platform/httpx"
	"github.com/farmtally/farmtally/internal/shared"
)

// ReportFarmer is the masked farmer identity shown on the report. Code and
// bank account keep only their last four characters.
type ReportFarmer struct {
	Name        string `json:"name"`
	Code        string `json:"code"`
	BankAccount string `json:"bank_account"`
}

// ReportAdvance is one prior advance on the farmer's history.
type ReportAdvance struct {
	Amount     float64   `json:"amount"`
	Status     string    `json:"status"`
	RecordedAt time.Time `json:"recorded_at"`
}

// SettlementReport is the point-in-time projection of one completed
// delivery. Everything here is already computed by the engine; the report
// only masks, formats, and assembles.
type SettlementReport struct {
	DeliveryID       int64        `json:"delivery_id"`
	GeneratedAt      time.Time    `json:"generated_at"`
	Farmer           ReportFarmer `json:"farmer"`
	LorryPlateNumber string       `json:"lorry_plate_number"`
	RecordedBy       string       `json:"recorded_by"`

	BagsCount         int       `json:"bags_count"`
	IndividualWeights []float64 `json:"individual_weights"`
	MoistureContent   float64   `json:"moisture_content"`
	GrossWeight       float64   `json:"gross_weight"`
	StandardDeduction float64   `json:"standard_deduction"`
	QualityDeduction  float64   `json:"quality_deduction"`
	QualityGrade      *string   `json:"quality_grade,omitempty"`
	NetWeight         float64   `json:"net_weight"`

	PricePerKg      float64 `json:"price_per_kg"`
	TotalValue      float64 `json:"total_value"`
	AdvanceAmount   float64 `json:"advance_amount"`
	InterestCharges float64 `json:"interest_charges"`
	FinalAmount     float64 `json:"final_amount"`

	FinalAmountDisplay string `json:"final_amount_display"`
	TotalValueDisplay  string `json:"total_value_display"`

	AdvanceHistory []ReportAdvance `json:"advance_history"`
}

var reportPrinter = message.NewPrinter(language.English)

// formatAmount renders a monetary value with grouping separators, e.g.
// 9480 -> "9,480.00".
func formatAmount(v float64) string {
	return reportPrinter.Sprintf("%v", number.Decimal(v,
		number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}

// maskTail keeps the last four characters and blanks the rest. Short values
// are masked entirely.
func maskTail(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	masked := make([]byte, len(s)-4)
	for i := range masked {
		masked[i] = '*'
	}
	return string(masked) + s[len(s)-4:]
}

// GetSettlementReport assembles the report for a completed delivery. It is
// a projection over stored fields; no settlement math runs here.
func (s *Service) GetSettlementReport(ctx context.Context, identity shared.Identity, deliveryID int64) (*SettlementReport, error) {
	wd, err := s.GetDelivery(ctx, identity, deliveryID)
	if err != nil {
		return nil, err
	}
	if wd.Status != StatusCompleted {
		return nil, fmt.Errorf("%w: delivery is not completed", httpx.ErrConflict)
	}

	farmer, err := s.repo.GetFarmerInfo(ctx, identity.OrganizationID, wd.FarmerID)
	if err != nil {
		return nil, fmt.Errorf("get farmer: %w", err)
	}

	history, err := s.ledger.History(ctx, identity.OrganizationID, wd.FarmerID)
	if err != nil {
		return nil, fmt.Errorf("advance history: %w", err)
	}
	reportAdvances := make([]ReportAdvance, 0, len(history))
	for _, a := range history {
		reportAdvances = append(reportAdvances, ReportAdvance{
			Amount:     a.Amount,
			Status:     string(a.Status),
			RecordedAt: a.CreatedAt,
		})
	}

	return &SettlementReport{
		DeliveryID:  wd.ID,
		GeneratedAt: time.Now().UTC(),
		Farmer: ReportFarmer{
			Name:        farmer.Name,
			Code:        maskTail(farmer.Code),
			BankAccount: maskTail(farmer.BankAccount),
		},
		LorryPlateNumber: wd.LorryPlateNumber,
		RecordedBy:       wd.ManagerName,

		BagsCount:         wd.BagsCount,
		IndividualWeights: wd.IndividualWeights,
		MoistureContent:   wd.MoistureContent,
		GrossWeight:       wd.GrossWeight,
		StandardDeduction: wd.StandardDeduction,
		QualityDeduction:  wd.QualityDeduction,
		QualityGrade:      wd.QualityGrade,
		NetWeight:         wd.NetWeight,

		PricePerKg:      wd.PricePerKg,
		TotalValue:      wd.TotalValue,
		AdvanceAmount:   wd.AdvanceAmount,
		InterestCharges: wd.InterestCharges,
		FinalAmount:     wd.FinalAmount,

		FinalAmountDisplay: formatAmount(wd.FinalAmount),
		TotalValueDisplay:  formatAmount(wd.TotalValue),

		AdvanceHistory: reportAdvances,
	}, nil
}
