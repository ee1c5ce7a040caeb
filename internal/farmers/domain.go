// Package farmers holds farmer identities and their per-organization
// membership stats. Stats are cumulative settlement outcomes and are mutated
// only by lorry batch processing.
package farmers

import "time"

// Farmer represents a registered farmer identity.
type Farmer struct {
	ID          int64     `json:"id" db:"id"`
	Code        string    `json:"code" db:"code"`
	Name        string    `json:"name" db:"name"`
	Phone       *string   `json:"phone" db:"phone"`
	BankAccount string    `json:"bank_account" db:"bank_account"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Membership carries the farmer's per-organization cumulative stats.
type Membership struct {
	FarmerID        int64     `json:"farmer_id" db:"farmer_id"`
	OrganizationID  int64     `json:"organization_id" db:"organization_id"`
	Active          bool      `json:"active" db:"active"`
	TotalDeliveries int       `json:"total_deliveries" db:"total_deliveries"`
	TotalEarnings   float64   `json:"total_earnings" db:"total_earnings"`
	QualityRating   *float64  `json:"quality_rating" db:"quality_rating"`
	JoinedAt        time.Time `json:"joined_at" db:"joined_at"`
}

// WithStats joins farmer identity with org membership stats for display.
type WithStats struct {
	Farmer
	Membership
}
