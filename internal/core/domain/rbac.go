package domain

import "time"

// SuperPermission authorizes every request when present in a resolved grant set.
const SuperPermission = "sys:manage"

// Role groups business and API permissions.
type Role struct {
	ID               int64
	Name             string
	Description      string
	IsSystem         bool
	PermissionIDs    []int64
	APIPermissionIDs []int64
	Permissions      []Permission
	APIPermissions   []APIPermission
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Permission is a named business capability such as "user:create".
type Permission struct {
	ID          int64
	Name        string
	Description string
	IsSystem    bool
}

// APIPermission describes an HTTP endpoint a role may call.
type APIPermission struct {
	ID          int64
	Method      string
	Path        string
	MatchType   MatchType
	Description string
}

// Grant returns the canonical grant string for the API permission.
func (p APIPermission) Grant() string {
	return Grant{Method: p.Method, Path: p.Path, Match: p.MatchType}.String()
}

// Grants flattens the role's associations into canonical grant strings.
func (r Role) Grants() []string {
	out := make([]string, 0, len(r.Permissions)+len(r.APIPermissions))
	for _, p := range r.Permissions {
		out = append(out, p.Name)
	}
	for _, ap := range r.APIPermissions {
		out = append(out, ap.Grant())
	}
	return out
}
