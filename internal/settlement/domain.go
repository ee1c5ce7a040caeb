package settlement

import (
	"time"
)

// ============================================================================
// DELIVERY STATUS
// ============================================================================

// DeliveryStatus represents the lifecycle of a delivery.
type DeliveryStatus string

const (
	// StatusPending covers field-recorded deliveries still open to edits.
	StatusPending DeliveryStatus = "PENDING"
	// StatusInProgress means the lorry was submitted; deliveries await
	// admin pricing and batch processing.
	StatusInProgress DeliveryStatus = "IN_PROGRESS"
	// StatusCompleted means financials are final and stats applied.
	StatusCompleted DeliveryStatus = "COMPLETED"
)

// IsValid checks if the status is valid.
func (s DeliveryStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	default:
		return false
	}
}

// CanEdit checks if field managers may still change the raw inputs.
func (s DeliveryStatus) CanEdit() bool {
	return s == StatusPending
}

// CanDelete checks if the delivery may still be removed.
func (s DeliveryStatus) CanDelete() bool {
	return s == StatusPending
}

// ============================================================================
// DELIVERY ENTITY
// ============================================================================

// Delivery is one farmer's corn drop-off into one lorry. Raw inputs come
// from the field; derived and financial fields are computed by the engine
// and only meaningful once status reaches COMPLETED.
type Delivery struct {
	ID             int64 `json:"id" db:"id"`
	OrganizationID int64 `json:"organization_id" db:"organization_id"`
	LorryID        int64 `json:"lorry_id" db:"lorry_id"`
	FarmerID       int64 `json:"farmer_id" db:"farmer_id"`
	FieldManagerID int64 `json:"field_manager_id" db:"field_manager_id"`

	BagsCount         int       `json:"bags_count" db:"bags_count"`
	IndividualWeights []float64 `json:"individual_weights" db:"individual_weights"`
	MoistureContent   float64   `json:"moisture_content" db:"moisture_content"`

	GrossWeight       float64 `json:"gross_weight" db:"gross_weight"`
	StandardDeduction float64 `json:"standard_deduction" db:"standard_deduction"`
	QualityDeduction  float64 `json:"quality_deduction" db:"quality_deduction"`
	QualityGrade      *string `json:"quality_grade,omitempty" db:"quality_grade"`
	NetWeight         float64 `json:"net_weight" db:"net_weight"`

	PricePerKg      float64 `json:"price_per_kg" db:"price_per_kg"`
	TotalValue      float64 `json:"total_value" db:"total_value"`
	AdvanceAmount   float64 `json:"advance_amount" db:"advance_amount"`
	InterestCharges float64 `json:"interest_charges" db:"interest_charges"`
	FinalAmount     float64 `json:"final_amount" db:"final_amount"`

	Status    DeliveryStatus `json:"status" db:"status"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}

// WithDetails includes joined display data for API projections.
type WithDetails struct {
	Delivery
	FarmerName       string `json:"farmer_name" db:"farmer_name"`
	LorryPlateNumber string `json:"lorry_plate_number" db:"lorry_plate_number"`
	ManagerName      string `json:"manager_name" db:"manager_name"`
}

// LorryInfo holds the lorry fields the engine consults for its gates.
type LorryInfo struct {
	ID                int64
	OrganizationID    int64
	PlateNumber       string
	Status            string
	AssignedManagerID *int64
}

// FarmerInfo holds the farmer fields the engine and report consult.
type FarmerInfo struct {
	ID          int64
	Code        string
	Name        string
	BankAccount string
	Active      bool
}

// ============================================================================
// REQUEST DTOs
// ============================================================================

// AddFarmerRequest carries field-collected raw data for a new delivery.
type AddFarmerRequest struct {
	LorryID           int64     `json:"lorry_id" validate:"required,gt=0"`
	FarmerID          int64     `json:"farmer_id" validate:"required,gt=0"`
	BagsCount         int       `json:"bags_count" validate:"required,gte=1"`
	IndividualWeights []float64 `json:"individual_weights" validate:"required,min=1,dive,gt=0"`
	MoistureContent   float64   `json:"moisture_content" validate:"gte=0,lte=100"`
}

// UpdateDeliveryRequest edits a PENDING delivery's raw inputs.
type UpdateDeliveryRequest struct {
	BagsCount         *int       `json:"bags_count,omitempty" validate:"omitempty,gte=1"`
	IndividualWeights *[]float64 `json:"individual_weights,omitempty" validate:"omitempty,min=1,dive,gt=0"`
	MoistureContent   *float64   `json:"moisture_content,omitempty" validate:"omitempty,gte=0,lte=100"`
}

// QualityDeductionRequest sets the admin-assessed weight penalty.
type QualityDeductionRequest struct {
	QualityDeduction float64 `json:"quality_deduction"`
	QualityGrade     *string `json:"quality_grade,omitempty" validate:"omitempty,max=10"`
}

// PricingRequest applies a price to a single delivery.
type PricingRequest struct {
	PricePerKg float64 `json:"price_per_kg" validate:"required,gt=0"`
}

// ListDeliveriesRequest filters the delivery listing.
type ListDeliveriesRequest struct {
	LorryID  *int64          `json:"lorry_id,omitempty"`
	FarmerID *int64          `json:"farmer_id,omitempty"`
	Status   *DeliveryStatus `json:"status,omitempty"`
	Limit    int             `json:"limit" validate:"gte=0,lte=1000"`
	Offset   int             `json:"offset" validate:"gte=0"`
}
