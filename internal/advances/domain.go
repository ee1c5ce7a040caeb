// Package advances manages farmer cash advances and the outstanding balance
// the settlement engine nets against at payout time.
package advances

import (
	"time"
)

// Status represents the lifecycle of an advance payment.
type Status string

const (
	// StatusActive counts toward the farmer's outstanding balance.
	StatusActive Status = "ACTIVE"
	// StatusCompleted is a disbursed advance that has not been settled yet;
	// it still counts toward the outstanding balance.
	StatusCompleted Status = "COMPLETED"
	// StatusReversed is written off and excluded from the balance.
	StatusReversed Status = "REVERSED"
)

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusReversed:
		return true
	default:
		return false
	}
}

// CountsTowardBalance reports whether the advance is still outstanding. An
// advance counts until it is explicitly reversed.
func (s Status) CountsTowardBalance() bool {
	return s == StatusActive || s == StatusCompleted
}

// Advance represents a cash payment to a farmer recorded against an
// organization, netted against the final payout at settlement.
type Advance struct {
	ID             int64     `json:"id" db:"id"`
	OrganizationID int64     `json:"organization_id" db:"organization_id"`
	FarmerID       int64     `json:"farmer_id" db:"farmer_id"`
	Amount         float64   `json:"amount" db:"amount"`
	Status         Status    `json:"status" db:"status"`
	Purpose        *string   `json:"purpose,omitempty" db:"purpose"`
	RecordedBy     int64     `json:"recorded_by" db:"recorded_by"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// RecordAdvanceRequest represents a request to record a new advance.
type RecordAdvanceRequest struct {
	FarmerID int64   `json:"farmer_id" validate:"required,gt=0"`
	Amount   float64 `json:"amount" validate:"required,gt=0"`
	Purpose  *string `json:"purpose,omitempty" validate:"omitempty,max=500"`
}
