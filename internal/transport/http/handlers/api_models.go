package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/admin-iam/internal/core/domain"
	"github.com/arklim/admin-iam/internal/transport/http/middleware"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{Error: errorMsg, TraceID: middleware.GetTraceID(c)}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// TokenRefreshRequest represents the payload to refresh an access token.
type TokenRefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// TokenResponse is returned by login, refresh and the OAuth callback.
type TokenResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int       `json:"expires_in"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// UserSummary describes a principal without its credentials.
type UserSummary struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	RealName  string    `json:"real_name,omitempty"`
	Email     string    `json:"email,omitempty"`
	RoleIDs   []int64   `json:"role_ids"`
	IsSystem  bool      `json:"is_system"`
	CreatedAt time.Time `json:"created_at"`
}

// MeResponse describes the caller together with its effective grants.
type MeResponse struct {
	User        UserSummary `json:"user"`
	Permissions []string    `json:"permissions"`
	IsSuper     bool        `json:"is_super"`
}

// PasswordChangeRequest captures a password change request body.
type PasswordChangeRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// UserCreateRequest defines the payload for creating a local principal.
type UserCreateRequest struct {
	Username string  `json:"username" binding:"required"`
	Password string  `json:"password" binding:"required"`
	RealName string  `json:"real_name"`
	Email    string  `json:"email" binding:"omitempty,email"`
	RoleIDs  []int64 `json:"role_ids"`
}

// UserListResponse wraps multiple principals.
type UserListResponse struct {
	Users []UserSummary `json:"users"`
}

// IDListRequest replaces an association with the given ids.
type IDListRequest struct {
	IDs []int64 `json:"ids"`
}

// PermissionPayload describes a business permission.
type PermissionPayload struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsSystem    bool   `json:"is_system"`
}

// PermissionCreateRequest defines the payload for creating a business permission.
type PermissionCreateRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// PermissionListResponse wraps multiple business permissions.
type PermissionListResponse struct {
	Permissions []PermissionPayload `json:"permissions"`
}

// APIPermissionPayload describes an API permission.
type APIPermissionPayload struct {
	ID          int64            `json:"id"`
	Method      string           `json:"method"`
	Path        string           `json:"path"`
	MatchType   domain.MatchType `json:"match_type"`
	Grant       string           `json:"grant"`
	Description string           `json:"description,omitempty"`
}

// APIPermissionRequest defines the payload for creating or updating an API permission.
type APIPermissionRequest struct {
	Method      string           `json:"method" binding:"required"`
	Path        string           `json:"path" binding:"required"`
	MatchType   domain.MatchType `json:"match_type" binding:"omitempty,oneof=exact prefix"`
	Description string           `json:"description"`
}

// APIPermissionListResponse wraps multiple API permissions.
type APIPermissionListResponse struct {
	APIPermissions []APIPermissionPayload `json:"api_permissions"`
}

// SyncResponse reports the outcome of a route sync.
type SyncResponse struct {
	Created  int `json:"created"`
	Existing int `json:"existing"`
}

// RoleRequest defines the payload for creating a role.
type RoleRequest struct {
	Name             string  `json:"name" binding:"required"`
	Description      string  `json:"description"`
	PermissionIDs    []int64 `json:"permission_ids"`
	APIPermissionIDs []int64 `json:"api_permission_ids"`
}

// RoleUpdateRequest defines the payload for renaming a role.
type RoleUpdateRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// RolePayload summarizes a role and, when loaded, its associations.
type RolePayload struct {
	ID             int64                  `json:"id"`
	Name           string                 `json:"name"`
	Description    string                 `json:"description,omitempty"`
	IsSystem       bool                   `json:"is_system"`
	Permissions    []PermissionPayload    `json:"permissions,omitempty"`
	APIPermissions []APIPermissionPayload `json:"api_permissions,omitempty"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// RoleListResponse wraps multiple roles.
type RoleListResponse struct {
	Roles []RolePayload `json:"roles"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

func newTokenResponse(pair domain.TokenPair, now time.Time) TokenResponse {
	return TokenResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		TokenType:        "Bearer",
		ExpiresIn:        max(int(pair.AccessExpiresAt.Sub(now).Seconds()), 0),
		RefreshExpiresAt: pair.RefreshExpiresAt.UTC(),
	}
}

func newUserSummary(p domain.Principal) UserSummary {
	roleIDs := p.RoleIDs
	if roleIDs == nil {
		roleIDs = []int64{}
	}
	return UserSummary{
		ID:        p.ID,
		Username:  p.Username,
		RealName:  p.RealName,
		Email:     p.Email,
		RoleIDs:   roleIDs,
		IsSystem:  p.IsSystem,
		CreatedAt: p.CreatedAt,
	}
}

func newPermissionPayload(p domain.Permission) PermissionPayload {
	return PermissionPayload{ID: p.ID, Name: p.Name, Description: p.Description, IsSystem: p.IsSystem}
}

func newAPIPermissionPayload(p domain.APIPermission) APIPermissionPayload {
	return APIPermissionPayload{
		ID:          p.ID,
		Method:      p.Method,
		Path:        p.Path,
		MatchType:   p.MatchType,
		Grant:       p.Grant(),
		Description: p.Description,
	}
}

func newRolePayload(r domain.Role) RolePayload {
	payload := RolePayload{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		IsSystem:    r.IsSystem,
		UpdatedAt:   r.UpdatedAt,
	}
	for _, p := range r.Permissions {
		payload.Permissions = append(payload.Permissions, newPermissionPayload(p))
	}
	for _, p := range r.APIPermissions {
		payload.APIPermissions = append(payload.APIPermissions, newAPIPermissionPayload(p))
	}
	return payload
}
