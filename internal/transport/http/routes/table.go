package routes

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/arklim/admin-iam/internal/transport/http/handlers"
	"github.com/arklim/admin-iam/internal/usecase"
)

// Access is the protection level of a route.
type Access int

const (
	// Public routes need no token.
	Public Access = iota
	// Authenticated routes need a valid access token only.
	Authenticated
	// Guarded routes additionally need an API grant covering the route and
	// every permission listed in Route.Required.
	Guarded
)

const apiPrefix = "/api/v1"

// Route is one entry of the static route table.
type Route struct {
	Method   string
	Path     string
	Access   Access
	Required []string
	// RateLimited routes pass through the login rate limiter first.
	RateLimited bool
	Handler     gin.HandlerFunc
}

type handlerSet struct {
	health         *handlers.HealthHandler
	auth           *handlers.AuthHandler
	roles          *handlers.RoleHandler
	permissions    *handlers.PermissionHandler
	apiPermissions *handlers.APIPermissionHandler
	users          *handlers.UserHandler
}

// table lists every route the service exposes. Handler pointers may be nil
// when only the shape of the table is needed.
func table(h *handlerSet) []Route {
	return []Route{
		{Method: http.MethodPost, Path: "/auth/login", Access: Public, RateLimited: true, Handler: h.auth.Login},
		{Method: http.MethodPost, Path: "/auth/refresh", Access: Public, Handler: h.auth.Refresh},
		{Method: http.MethodGet, Path: "/auth/github", Access: Public, Handler: h.auth.GitHubLogin},
		{Method: http.MethodGet, Path: "/auth/github/callback", Access: Public, Handler: h.auth.GitHubCallback},
		{Method: http.MethodGet, Path: "/auth/me", Access: Authenticated, Handler: h.auth.Me},
		{Method: http.MethodPost, Path: "/auth/password", Access: Authenticated, Handler: h.auth.ChangePassword},

		{Method: http.MethodGet, Path: "/roles", Access: Guarded, Handler: h.roles.ListRoles},
		{Method: http.MethodPost, Path: "/roles", Access: Guarded, Handler: h.roles.CreateRole},
		{Method: http.MethodGet, Path: "/roles/:id", Access: Guarded, Handler: h.roles.GetRole},
		{Method: http.MethodPut, Path: "/roles/:id", Access: Guarded, Handler: h.roles.UpdateRole},
		{Method: http.MethodDelete, Path: "/roles/:id", Access: Guarded, Handler: h.roles.DeleteRole},
		{Method: http.MethodPut, Path: "/roles/:id/permissions", Access: Guarded, Required: []string{"role:grant"}, Handler: h.roles.AssignPermissions},
		{Method: http.MethodPut, Path: "/roles/:id/api-permissions", Access: Guarded, Required: []string{"role:grant"}, Handler: h.roles.AssignAPIPermissions},

		{Method: http.MethodGet, Path: "/permissions", Access: Guarded, Handler: h.permissions.ListPermissions},
		{Method: http.MethodPost, Path: "/permissions", Access: Guarded, Handler: h.permissions.CreatePermission},
		{Method: http.MethodDelete, Path: "/permissions/:id", Access: Guarded, Handler: h.permissions.DeletePermission},

		{Method: http.MethodGet, Path: "/api-permissions", Access: Guarded, Handler: h.apiPermissions.ListAPIPermissions},
		{Method: http.MethodPost, Path: "/api-permissions", Access: Guarded, Handler: h.apiPermissions.CreateAPIPermission},
		{Method: http.MethodPost, Path: "/api-permissions/sync", Access: Guarded, Handler: h.apiPermissions.SyncRoutes},
		{Method: http.MethodPut, Path: "/api-permissions/:id", Access: Guarded, Handler: h.apiPermissions.UpdateAPIPermission},
		{Method: http.MethodDelete, Path: "/api-permissions/:id", Access: Guarded, Handler: h.apiPermissions.DeleteAPIPermission},

		{Method: http.MethodGet, Path: "/users", Access: Guarded, Handler: h.users.ListUsers},
		{Method: http.MethodPost, Path: "/users", Access: Guarded, Required: []string{"user:create"}, Handler: h.users.CreateUser},
		{Method: http.MethodGet, Path: "/users/:id", Access: Guarded, Handler: h.users.GetUser},
		{Method: http.MethodPut, Path: "/users/:id/roles", Access: Guarded, Required: []string{"user:assign_roles"}, Handler: h.users.AssignRoles},
		{Method: http.MethodDelete, Path: "/users/:id", Access: Guarded, Required: []string{"user:delete"}, Handler: h.users.DeleteUser},
	}
}

// Table returns the route table without handlers.
func Table() []Route {
	return table(&handlerSet{})
}

// GuardedRoutes lists the full paths of guarded routes, the routes whose
// access an API permission controls.
func GuardedRoutes() []usecase.RouteInfo {
	var out []usecase.RouteInfo
	for _, r := range Table() {
		if r.Access == Guarded {
			out = append(out, usecase.RouteInfo{Method: r.Method, Path: apiPrefix + r.Path})
		}
	}
	return out
}

// RequiredPermissions lists every business permission a route demands.
func RequiredPermissions() []string {
	seen := make(map[string]struct{})
	for _, r := range Table() {
		for _, p := range r.Required {
			seen[p] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
