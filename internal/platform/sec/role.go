// Copyright (c) 2026 Pressdeck. All rights reserved.

package sec

// # User Roles

// UserRole represents the authorization level granted to an account.
type UserRole string

const (
	// Unrestricted fleet access, including team and billing management
	RoleAdmin UserRole = "admin"

	// Can manage assigned sites and invite members
	RoleManager UserRole = "manager"

	// Default role for standard dashboard users
	RoleMember UserRole = "member"
)

// # Role Hierarchy

// AtLeast checks if the current role meets or exceeds the required target role.
func (r UserRole) AtLeast(target UserRole) bool {
	return r.level() >= target.level()
}

// level maps a role to a numeric hierarchy level for comparison logic.
func (r UserRole) level() int {

	// Linear scale (10-30) allows for future intermediate roles
	switch r {
	case RoleAdmin:
		return 30
	case RoleManager:
		return 20
	case RoleMember:
		return 10
	default:
		return 0
	}
}
