package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/admin-iam/internal/usecase"
)

// UserHandler manages local principals.
type UserHandler struct {
	users *usecase.UserService
}

func NewUserHandler(users *usecase.UserService) *UserHandler {
	return &UserHandler{users: users}
}

var userErrorCases = []ErrorCase{
	{Err: usecase.ErrPrincipalNotFound, Status: http.StatusNotFound, Message: "user not found"},
	{Err: usecase.ErrUsernameTaken, Status: http.StatusConflict, Message: "username already taken"},
}

func (h *UserHandler) ready(c *gin.Context) bool {
	if h.users == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "user handler not fully configured"))
		return false
	}
	return true
}

// CreateUser godoc
// @Summary Create a local principal
// @Description The password must satisfy the password policy and may not contain the username or email.
// @Tags Users
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param request body UserCreateRequest true "User create request"
// @Success 201 {object} UserSummary
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/users [post]
func (h *UserHandler) CreateUser(c *gin.Context) {
	if !h.ready(c) {
		return
	}

	var req UserCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid user payload"))
		return
	}

	p, err := h.users.Create(c.Request.Context(), usecase.CreateUserInput{
		Username: strings.TrimSpace(req.Username),
		Password: req.Password,
		RealName: strings.TrimSpace(req.RealName),
		Email:    strings.TrimSpace(req.Email),
		RoleIDs:  req.RoleIDs,
	})
	if err != nil {
		RespondWithMappedError(c, err, userErrorCases, http.StatusInternalServerError, "failed to create user")
		return
	}
	c.JSON(http.StatusCreated, newUserSummary(*p))
}

// ListUsers godoc
// @Summary List principals
// @Tags Users
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Success 200 {object} UserListResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/users [get]
func (h *UserHandler) ListUsers(c *gin.Context) {
	if !h.ready(c) {
		return
	}

	list, err := h.users.List(c.Request.Context())
	if err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "failed to list users")
		return
	}
	resp := UserListResponse{Users: make([]UserSummary, 0, len(list))}
	for _, p := range list {
		resp.Users = append(resp.Users, newUserSummary(p))
	}
	c.JSON(http.StatusOK, resp)
}

// GetUser godoc
// @Summary Get a principal
// @Tags Users
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param id path int true "User ID"
// @Success 200 {object} UserSummary
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/users/{id} [get]
func (h *UserHandler) GetUser(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	p, err := h.users.Get(c.Request.Context(), id)
	if err != nil {
		RespondWithMappedError(c, err, userErrorCases, http.StatusInternalServerError, "failed to load user")
		return
	}
	c.JSON(http.StatusOK, newUserSummary(*p))
}

// AssignRoles godoc
// @Summary Replace a principal's roles
// @Description Access tokens already issued keep their role ids until the next refresh.
// @Tags Users
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param id path int true "User ID"
// @Param request body IDListRequest true "Role ids"
// @Success 200 {object} UserSummary
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/users/{id}/roles [put]
func (h *UserHandler) AssignRoles(c *gin.Context) {
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

	p, err := h.users.AssignRoles(c.Request.Context(), id, req.IDs)
	if err != nil {
		RespondWithMappedError(c, err, userErrorCases, http.StatusInternalServerError, "failed to assign roles")
		return
	}
	c.JSON(http.StatusOK, newUserSummary(*p))
}

// DeleteUser godoc
// @Summary Delete a principal
// @Tags Users
// @Param Authorization header string true "Bearer access token"
// @Param id path int true "User ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/users/{id} [delete]
func (h *UserHandler) DeleteUser(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.users.Delete(c.Request.Context(), id); err != nil {
		RespondWithMappedError(c, err, userErrorCases, http.StatusInternalServerError, "failed to delete user")
		return
	}
	c.Status(http.StatusNoContent)
}
