package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/admin-iam/internal/core/domain"
	"github.com/arklim/admin-iam/internal/usecase"
)

// RoleHandler manages roles and their grant associations.
type RoleHandler struct {
	roles *usecase.RoleService
}

func NewRoleHandler(roles *usecase.RoleService) *RoleHandler {
	return &RoleHandler{roles: roles}
}

var roleErrorCases = []ErrorCase{
	{Err: usecase.ErrRoleNotFound, Status: http.StatusNotFound, Message: "role not found"},
	{Err: usecase.ErrRoleExists, Status: http.StatusConflict, Message: "role already exists"},
}

func (h *RoleHandler) ready(c *gin.Context) bool {
	if h.roles == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "role handler not fully configured"))
		return false
	}
	return true
}

// CreateRole godoc
// @Summary Create a new role
// @Description Creates a role, optionally granting business and API permissions.
// @Tags Roles
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param request body RoleRequest true "Role create request"
// @Success 201 {object} RolePayload
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/roles [post]
func (h *RoleHandler) CreateRole(c *gin.Context) {
	if !h.ready(c) {
		return
	}

	var req RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid role payload"))
		return
	}

	role, err := h.roles.Create(c.Request.Context(), usecase.RoleInput{
		Name:             strings.TrimSpace(req.Name),
		Description:      strings.TrimSpace(req.Description),
		PermissionIDs:    req.PermissionIDs,
		APIPermissionIDs: req.APIPermissionIDs,
	})
	if err != nil {
		RespondWithMappedError(c, err, roleErrorCases, http.StatusInternalServerError, "failed to create role")
		return
	}
	c.JSON(http.StatusCreated, newRolePayload(*role))
}

// ListRoles godoc
// @Summary List roles
// @Tags Roles
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Success 200 {object} RoleListResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/roles [get]
func (h *RoleHandler) ListRoles(c *gin.Context) {
	if !h.ready(c) {
		return
	}

	roles, err := h.roles.List(c.Request.Context())
	if err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "failed to list roles")
		return
	}

	resp := RoleListResponse{Roles: make([]RolePayload, 0, len(roles))}
	for _, r := range roles {
		resp.Roles = append(resp.Roles, newRolePayload(r))
	}
	c.JSON(http.StatusOK, resp)
}

// GetRole godoc
// @Summary Get a role with its permissions
// @Tags Roles
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param id path int true "Role ID"
// @Success 200 {object} RolePayload
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/roles/{id} [get]
func (h *RoleHandler) GetRole(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	role, err := h.roles.Get(c.Request.Context(), id)
	if err != nil {
		RespondWithMappedError(c, err, roleErrorCases, http.StatusInternalServerError, "failed to load role")
		return
	}
	c.JSON(http.StatusOK, newRolePayload(*role))
}

// UpdateRole godoc
// @Summary Rename a role
// @Tags Roles
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param id path int true "Role ID"
// @Param request body RoleUpdateRequest true "Role update request"
// @Success 200 {object} RolePayload
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/roles/{id} [put]
func (h *RoleHandler) UpdateRole(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req RoleUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid role payload"))
		return
	}

	role, err := h.roles.Update(c.Request.Context(), id, strings.TrimSpace(req.Name), strings.TrimSpace(req.Description))
	if err != nil {
		RespondWithMappedError(c, err, roleErrorCases, http.StatusInternalServerError, "failed to update role")
		return
	}
	c.JSON(http.StatusOK, newRolePayload(*role))
}

// DeleteRole godoc
// @Summary Delete a role
// @Description Built-in roles cannot be deleted. Holders lose the role's grants immediately.
// @Tags Roles
// @Param Authorization header string true "Bearer access token"
// @Param id path int true "Role ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/roles/{id} [delete]
func (h *RoleHandler) DeleteRole(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.roles.Delete(c.Request.Context(), id); err != nil {
		RespondWithMappedError(c, err, roleErrorCases, http.StatusInternalServerError, "failed to delete role")
		return
	}
	c.Status(http.StatusNoContent)
}

// AssignPermissions godoc
// @Summary Replace a role's business permissions
// @Tags Roles
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param id path int true "Role ID"
// @Param request body IDListRequest true "Permission ids"
// @Success 200 {object} RolePayload
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/roles/{id}/permissions [put]
func (h *RoleHandler) AssignPermissions(c *gin.Context) {
	h.assign(c, h.roles.AssignPermissions)
}

// AssignAPIPermissions godoc
// @Summary Replace a role's API permissions
// @Tags Roles
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param id path int true "Role ID"
// @Param request body IDListRequest true "API permission ids"
// @Success 200 {object} RolePayload
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/roles/{id}/api-permissions [put]
func (h *RoleHandler) AssignAPIPermissions(c *gin.Context) {
	h.assign(c, h.roles.AssignAPIPermissions)
}

func (h *RoleHandler) assign(c *gin.Context, replace func(ctx context.Context, roleID int64, ids []int64) (*domain.Role, error)) {
	if !h.ready(c) {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req IDListRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid id list"))
		return
	}

	role, err := replace(c.Request.Context(), id, req.IDs)
	if err != nil {
		RespondWithMappedError(c, err, roleErrorCases, http.StatusInternalServerError, "failed to update role grants")
		return
	}
	c.JSON(http.StatusOK, newRolePayload(*role))
}
