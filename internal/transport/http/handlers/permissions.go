package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/admin-iam/internal/usecase"
)

// PermissionHandler manages business permissions.
type PermissionHandler struct {
	permissions *usecase.PermissionService
}

func NewPermissionHandler(permissions *usecase.PermissionService) *PermissionHandler {
	return &PermissionHandler{permissions: permissions}
}

var permissionErrorCases = []ErrorCase{
	{Err: usecase.ErrPermissionNotFound, Status: http.StatusNotFound, Message: "permission not found"},
	{Err: usecase.ErrPermissionExists, Status: http.StatusConflict, Message: "permission already exists"},
}

// CreatePermission godoc
// @Summary Create a business permission
// @Description Names shaped like METHOD:path:matchType are rejected; use the API permission endpoints for those.
// @Tags Permissions
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param request body PermissionCreateRequest true "Permission create request"
// @Success 201 {object} PermissionPayload
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/permissions [post]
func (h *PermissionHandler) CreatePermission(c *gin.Context) {
	if h.permissions == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "permission handler not fully configured"))
		return
	}

	var req PermissionCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid permission payload"))
		return
	}

	p, err := h.permissions.Create(c.Request.Context(), strings.TrimSpace(req.Name), strings.TrimSpace(req.Description))
	if err != nil {
		RespondWithMappedError(c, err, permissionErrorCases, http.StatusInternalServerError, "failed to create permission")
		return
	}
	c.JSON(http.StatusCreated, newPermissionPayload(*p))
}

// ListPermissions godoc
// @Summary List business permissions
// @Tags Permissions
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Success 200 {object} PermissionListResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/permissions [get]
func (h *PermissionHandler) ListPermissions(c *gin.Context) {
	if h.permissions == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "permission handler not fully configured"))
		return
	}

	perms, err := h.permissions.List(c.Request.Context())
	if err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "failed to list permissions")
		return
	}
	resp := PermissionListResponse{Permissions: make([]PermissionPayload, 0, len(perms))}
	for _, p := range perms {
		resp.Permissions = append(resp.Permissions, newPermissionPayload(p))
	}
	c.JSON(http.StatusOK, resp)
}

// DeletePermission godoc
// @Summary Delete a business permission
// @Description System permissions cannot be deleted. Roles holding the permission lose it immediately.
// @Tags Permissions
// @Param Authorization header string true "Bearer access token"
// @Param id path int true "Permission ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/permissions/{id} [delete]
func (h *PermissionHandler) DeletePermission(c *gin.Context) {
	if h.permissions == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "permission handler not fully configured"))
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.permissions.Delete(c.Request.Context(), id); err != nil {
		RespondWithMappedError(c, err, permissionErrorCases, http.StatusInternalServerError, "failed to delete permission")
		return
	}
	c.Status(http.StatusNoContent)
}

// APIPermissionHandler manages method and path permissions.
type APIPermissionHandler struct {
	apiPermissions *usecase.APIPermissionService
	routes         func() []usecase.RouteInfo
}

// NewAPIPermissionHandler constructs the handler. routes lists the routes
// registered on the router, for the sync endpoint.
func NewAPIPermissionHandler(apiPermissions *usecase.APIPermissionService, routes func() []usecase.RouteInfo) *APIPermissionHandler {
	return &APIPermissionHandler{apiPermissions: apiPermissions, routes: routes}
}

var apiPermissionErrorCases = []ErrorCase{
	{Err: usecase.ErrAPIPermissionNotFound, Status: http.StatusNotFound, Message: "api permission not found"},
	{Err: usecase.ErrAPIPermissionExists, Status: http.StatusConflict, Message: "api permission already exists"},
}

func (h *APIPermissionHandler) ready(c *gin.Context) bool {
	if h.apiPermissions == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "api permission handler not fully configured"))
		return false
	}
	return true
}

func (req APIPermissionRequest) input() usecase.APIPermissionInput {
	return usecase.APIPermissionInput{
		Method:      req.Method,
		Path:        req.Path,
		MatchType:   req.MatchType,
		Description: strings.TrimSpace(req.Description),
	}
}

// CreateAPIPermission godoc
// @Summary Create an API permission
// @Tags API Permissions
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param request body APIPermissionRequest true "API permission"
// @Success 201 {object} APIPermissionPayload
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/api-permissions [post]
func (h *APIPermissionHandler) CreateAPIPermission(c *gin.Context) {
	if !h.ready(c) {
		return
	}

	var req APIPermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid api permission payload"))
		return
	}

	p, err := h.apiPermissions.Create(c.Request.Context(), req.input())
	if err != nil {
		RespondWithMappedError(c, err, apiPermissionErrorCases, http.StatusInternalServerError, "failed to create api permission")
		return
	}
	c.JSON(http.StatusCreated, newAPIPermissionPayload(*p))
}

// ListAPIPermissions godoc
// @Summary List API permissions
// @Tags API Permissions
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Success 200 {object} APIPermissionListResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/api-permissions [get]
func (h *APIPermissionHandler) ListAPIPermissions(c *gin.Context) {
	if !h.ready(c) {
		return
	}

	perms, err := h.apiPermissions.List(c.Request.Context())
	if err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "failed to list api permissions")
		return
	}
	resp := APIPermissionListResponse{APIPermissions: make([]APIPermissionPayload, 0, len(perms))}
	for _, p := range perms {
		resp.APIPermissions = append(resp.APIPermissions, newAPIPermissionPayload(p))
	}
	c.JSON(http.StatusOK, resp)
}

// UpdateAPIPermission godoc
// @Summary Update an API permission
// @Description Roles holding the permission see the change on their next request.
// @Tags API Permissions
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param id path int true "API permission ID"
// @Param request body APIPermissionRequest true "API permission"
// @Success 200 {object} APIPermissionPayload
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/api-permissions/{id} [put]
func (h *APIPermissionHandler) UpdateAPIPermission(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req APIPermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid api permission payload"))
		return
	}

	p, err := h.apiPermissions.Update(c.Request.Context(), id, req.input())
	if err != nil {
		RespondWithMappedError(c, err, apiPermissionErrorCases, http.StatusInternalServerError, "failed to update api permission")
		return
	}
	c.JSON(http.StatusOK, newAPIPermissionPayload(*p))
}

// DeleteAPIPermission godoc
// @Summary Delete an API permission
// @Tags API Permissions
// @Param Authorization header string true "Bearer access token"
// @Param id path int true "API permission ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/api-permissions/{id} [delete]
func (h *APIPermissionHandler) DeleteAPIPermission(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.apiPermissions.Delete(c.Request.Context(), id); err != nil {
		RespondWithMappedError(c, err, apiPermissionErrorCases, http.StatusInternalServerError, "failed to delete api permission")
		return
	}
	c.Status(http.StatusNoContent)
}

// SyncRoutes godoc
// @Summary Register every route as an exact-match API permission
// @Description Existing entries are left untouched.
// @Tags API Permissions
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Success 200 {object} SyncResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/api-permissions/sync [post]
func (h *APIPermissionHandler) SyncRoutes(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	if h.routes == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "route list unavailable"))
		return
	}

	res, err := h.apiPermissions.SyncRoutes(c.Request.Context(), h.routes())
	if err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "failed to sync routes")
		return
	}
	c.JSON(http.StatusOK, SyncResponse{Created: res.Created, Existing: res.Existing})
}
