package lorries

import "time"

// ============================================================================
// LORRY STATUS
// ============================================================================

// Status represents the lorry lifecycle. A lorry moves AVAILABLE -> ASSIGNED
// when a request is approved, -> LOADING on its first delivery, -> SUBMITTED
// when the field manager sends it off, and back to AVAILABLE when the farm
// admin processes its deliveries.
type Status string

const (
	StatusAvailable Status = "AVAILABLE"
	StatusAssigned  Status = "ASSIGNED"
	StatusLoading   Status = "LOADING"
	StatusSubmitted Status = "SUBMITTED"
)

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	switch s {
	case StatusAvailable, StatusAssigned, StatusLoading, StatusSubmitted:
		return true
	default:
		return false
	}
}

// CanAssign checks if the lorry can be handed to a field manager.
func (s Status) CanAssign() bool {
	return s == StatusAvailable
}

// CanAcceptDeliveries checks whether field data can still be recorded.
func (s Status) CanAcceptDeliveries() bool {
	return s == StatusAssigned || s == StatusLoading
}

// CanSubmit checks if the lorry can be sent to the dealer.
func (s Status) CanSubmit() bool {
	return s == StatusLoading
}

// ============================================================================
// ENTITIES
// ============================================================================

// Lorry is a vehicle asset scoped to one organization. At most one field
// manager is assigned at a time; AssignedManagerID nil means unassigned.
type Lorry struct {
	ID                int64      `json:"id" db:"id"`
	OrganizationID    int64      `json:"organization_id" db:"organization_id"`
	PlateNumber       string     `json:"plate_number" db:"plate_number"`
	CapacityKg        float64    `json:"capacity_kg" db:"capacity_kg"`
	Status            Status     `json:"status" db:"status"`
	AssignedManagerID *int64     `json:"assigned_manager_id,omitempty" db:"assigned_manager_id"`
	AssignedAt        *time.Time `json:"assigned_at,omitempty" db:"assigned_at"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// RequestStatus represents the lifecycle of a lorry request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "PENDING"
	RequestApproved RequestStatus = "APPROVED"
	RequestRejected RequestStatus = "REJECTED"
)

// IsValid checks if the request status is valid.
func (s RequestStatus) IsValid() bool {
	switch s {
	case RequestPending, RequestApproved, RequestRejected:
		return true
	default:
		return false
	}
}

// Request is a field manager's dated ask for a lorry. One pending or
// approved request per manager per date.
type Request struct {
	ID             int64         `json:"id" db:"id"`
	OrganizationID int64         `json:"organization_id" db:"organization_id"`
	ManagerID      int64         `json:"manager_id" db:"manager_id"`
	RequestedFor   time.Time     `json:"requested_for" db:"requested_for"`
	Priority       int           `json:"priority" db:"priority"`
	Status         RequestStatus `json:"status" db:"status"`
	LorryID        *int64        `json:"lorry_id,omitempty" db:"lorry_id"`
	DecidedBy      *int64        `json:"decided_by,omitempty" db:"decided_by"`
	DecidedAt      *time.Time    `json:"decided_at,omitempty" db:"decided_at"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
}

// ============================================================================
// REQUEST DTOs
// ============================================================================

// CreateRequestInput represents a field manager's lorry request.
type CreateRequestInput struct {
	RequestedFor time.Time `json:"requested_for" validate:"required"`
	Priority     int       `json:"priority" validate:"gte=0,lte=10"`
}

// ApproveRequestInput assigns a concrete lorry to an approved request.
type ApproveRequestInput struct {
	LorryID int64 `json:"lorry_id" validate:"required,gt=0"`
}
