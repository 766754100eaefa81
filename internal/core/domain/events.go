package domain

import "time"

// PrincipalRegisteredEvent represents the payload for iam.principal.registered messages.
type PrincipalRegisteredEvent struct {
	EventID      string
	PrincipalID  int64
	Username     string
	Method       string
	RoleIDs      []int64
	RegisteredAt time.Time
}

// RoleGrantsChangedEvent represents the payload for iam.role.grants.changed messages.
type RoleGrantsChangedEvent struct {
	EventID   string
	RoleIDs   []int64
	Change    string
	ChangedBy int64
	ChangedAt time.Time
}

// TokenReuseDetectedEvent represents the payload for iam.token.reuse_detected messages.
type TokenReuseDetectedEvent struct {
	EventID     string
	PrincipalID int64
	TokenID     string
	DetectedAt  time.Time
	IPAddress   string
}
