// Package domain contains the core concepts of the messaging system.
// No runtime, network, or storage logic should be added here.
package domain

import "time"

// Role describes what kind of account a user holds. Roles are consumed for
// authorization display only; message flow never branches on them.
type Role string

const (
	RolePerformer  Role = "PERFORMER"
	RoleVenueOwner Role = "VENUE_OWNER"
	RoleAdmin      Role = "ADMIN"
)

// ParseRole maps a stored string back to a Role, defaulting to performer for
// unknown values so that old records stay readable.
func ParseRole(s string) Role {
	switch Role(s) {
	case RolePerformer, RoleVenueOwner, RoleAdmin:
		return Role(s)
	default:
		return RolePerformer
	}
}

// User is the identity record the messaging core consumes. Authentication is
// handled elsewhere; the core only checks IDs it is handed.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}
