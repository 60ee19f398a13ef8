package auth

import "strings"

// Role represents a user role.
type Role string

const (
	// RoleViewer reads agreements and statements.
	RoleViewer Role = "viewer"
	// RoleCounterparty settles and terminates agreements it is party to.
	RoleCounterparty Role = "counterparty"
	// RoleAdmin books new agreements.
	RoleAdmin Role = "admin"
)

// NormalizeRole validates and normalizes a role string.
func NormalizeRole(value string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	switch role {
	case RoleViewer, RoleCounterparty, RoleAdmin:
		return role, true
	default:
		return "", false
	}
}

// RoleAtLeast returns true when role satisfies required role.
func RoleAtLeast(role Role, required Role) bool {
	return roleRank(role) >= roleRank(required)
}

func roleRank(role Role) int {
	switch role {
	case RoleViewer:
		return 1
	case RoleCounterparty:
		return 2
	case RoleAdmin:
		return 3
	default:
		return 0
	}
}
