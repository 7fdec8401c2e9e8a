package model

// Role classifies an authenticated user. Exactly one role is stored per user;
// the legacy boolean flags from older installations are mapped through
// ResolveRole at provisioning time and never persisted.
type Role string

const (
	RoleUltraAdmin Role = "ultra_admin"
	RoleSuperAdmin Role = "super_admin"
	RoleCoOfficer  Role = "co_officer"
	RoleAdminUser  Role = "admin_user"
	RoleUser       Role = "user"
)

// rolePriority orders roles from highest to lowest privilege.
var rolePriority = []Role{RoleUltraAdmin, RoleSuperAdmin, RoleCoOfficer, RoleAdminUser, RoleUser}

// RoleFlags mirrors the flag set older clients still submit when provisioning users.
type RoleFlags struct {
	IsUltraAdmin bool `json:"is_ultraadmin"`
	IsSuperAdmin bool `json:"is_superadmin"`
	IsCoOfficer  bool `json:"is_co_officer"`
	IsAdmin      bool `json:"is_admin"`
}

// ResolveRole collapses a flag set into a single role. The highest-privilege
// flag wins; no flags at all yields the lowest-privilege role.
func ResolveRole(flags RoleFlags) Role {
	switch {
	case flags.IsUltraAdmin:
		return RoleUltraAdmin
	case flags.IsSuperAdmin:
		return RoleSuperAdmin
	case flags.IsCoOfficer:
		return RoleCoOfficer
	case flags.IsAdmin:
		return RoleAdminUser
	default:
		return RoleUser
	}
}

// IsValid reports whether the role is one of the five defined values.
func (r Role) IsValid() bool {
	for _, known := range rolePriority {
		if r == known {
			return true
		}
	}
	return false
}

// rank returns the position of the role in the privilege order, lower is stronger.
// Unknown roles rank below every defined role.
func (r Role) rank() int {
	for i, known := range rolePriority {
		if r == known {
			return i
		}
	}
	return len(rolePriority)
}

// AtLeast reports whether r carries privilege equal to or above other.
func (r Role) AtLeast(other Role) bool {
	return r.rank() <= other.rank()
}
