package domain

import "time"

// Principal mirrors the persisted representation in the users table together
// with the identifiers of the roles assigned to it.
type Principal struct {
	ID           int64
	Username     string
	PasswordHash string
	RealName     string
	Email        string
	RoleIDs      []int64
	IsSystem     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ExternalProfile is the identity returned by a third-party login provider.
// Subject is the provider's stable account id; Username is only a hint for
// naming a new principal and may change upstream.
type ExternalProfile struct {
	Provider string
	Subject  string
	Username string
	RealName string
	Email    string
}

// PasswordContext carries user attributes that must not appear in a password.
type PasswordContext struct {
	Username string
	Email    string
	// Previous is the password being replaced, empty on creation.
	Previous string
}
