package shared

// Role is the organization-scoped role of the acting user.
type Role string

const (
	// RoleFieldManager records deliveries in the field and manages assigned lorries.
	RoleFieldManager Role = "FIELD_MANAGER"
	// RoleFarmAdmin sets deductions and pricing and finalizes lorries.
	RoleFarmAdmin Role = "FARM_ADMIN"
)

// IsValid checks if the role is known.
func (r Role) IsValid() bool {
	switch r {
	case RoleFieldManager, RoleFarmAdmin:
		return true
	default:
		return false
	}
}

// Identity is the org-scoped caller context resolved by the identity
// collaborator upstream of this service. Every mutating operation checks it
// before touching state.
type Identity struct {
	UserID         int64
	OrganizationID int64
	Role           Role
}

// IsFieldManager reports whether the caller acts as a field manager.
func (i Identity) IsFieldManager() bool {
	return i.Role == RoleFieldManager
}

// IsFarmAdmin reports whether the caller acts as a farm admin.
func (i Identity) IsFarmAdmin() bool {
	return i.Role == RoleFarmAdmin
}
