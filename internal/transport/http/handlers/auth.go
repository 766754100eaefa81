package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/admin-iam/internal/core/domain"
	"github.com/arklim/admin-iam/internal/infra/security"
	"github.com/arklim/admin-iam/internal/transport/http/middleware"
	"github.com/arklim/admin-iam/internal/usecase"
)

const (
	oauthStateCookie = "iam_oauth_state"
	oauthStateTTL    = 5 * time.Minute
)

// Authenticator runs the login and refresh flows. Implemented by usecase.AuthService.
type Authenticator interface {
	Login(ctx context.Context, username, password string, meta usecase.RequestMeta) (domain.TokenPair, error)
	LoginExternal(ctx context.Context, profile domain.ExternalProfile, meta usecase.RequestMeta) (domain.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string, meta usecase.RequestMeta) (domain.TokenPair, error)
	Me(ctx context.Context, userID int64) (usecase.Profile, error)
}

// ExternalProvider is a third-party login provider such as GitHub.
type ExternalProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (domain.ExternalProfile, error)
}

// PasswordChanger changes a principal's own password.
type PasswordChanger interface {
	ChangePassword(ctx context.Context, id int64, current, next string) error
}

// AuthHandler exposes authentication endpoints.
type AuthHandler struct {
	auth         Authenticator
	github       ExternalProvider
	passwords    PasswordChanger
	secureCookie bool
	now          func() time.Time
}

// AuthHandlerOption configures optional AuthHandler dependencies.
type AuthHandlerOption func(*AuthHandler)

// WithGitHub enables the GitHub login endpoints.
func WithGitHub(provider ExternalProvider) AuthHandlerOption {
	return func(h *AuthHandler) {
		h.github = provider
	}
}

// WithPasswordChanger enables self-service password changes.
func WithPasswordChanger(passwords PasswordChanger) AuthHandlerOption {
	return func(h *AuthHandler) {
		h.passwords = passwords
	}
}

// WithSecureCookies marks the OAuth state cookie Secure.
func WithSecureCookies(secure bool) AuthHandlerOption {
	return func(h *AuthHandler) {
		h.secureCookie = secure
	}
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth Authenticator, opts ...AuthHandlerOption) *AuthHandler {
	h := &AuthHandler{auth: auth, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

func (h *AuthHandler) ready(c *gin.Context) bool {
	if h.auth == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "authentication service unavailable"))
		return false
	}
	return true
}

var refreshErrorCases = []ErrorCase{
	{Err: usecase.ErrTokenExpired, Status: http.StatusUnauthorized, Message: "refresh token expired"},
	{Err: usecase.ErrTokenReused, Status: http.StatusUnauthorized, Message: "refresh token already used"},
	{Err: usecase.ErrTokenInvalid, Status: http.StatusUnauthorized, Message: "invalid refresh token"},
	{Err: usecase.ErrPrincipalNotFound, Status: http.StatusUnauthorized, Message: "invalid refresh token"},
}

// Login godoc
// @Summary Log in with username and password
// @Description Verifies the credentials and issues an access and refresh token pair. Unknown users and wrong passwords are indistinguishable.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} TokenResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 429 {object} middleware.ProblemDetails
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "username and password are required"))
		return
	}

	pair, err := h.auth.Login(c.Request.Context(), strings.TrimSpace(req.Username), req.Password, middleware.RequestMeta(c))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid credentials"},
		}, http.StatusInternalServerError, "internal error")
		return
	}
	c.JSON(http.StatusOK, newTokenResponse(pair, h.now()))
}

// Refresh godoc
// @Summary Exchange a refresh token for a new token pair
// @Description Each refresh token can be exchanged exactly once. The new pair carries the principal's current roles.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body TokenRefreshRequest true "Refresh request"
// @Success 200 {object} TokenResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	var req TokenRefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "refresh_token is required"))
		return
	}

	pair, err := h.auth.Refresh(c.Request.Context(), strings.TrimSpace(req.RefreshToken), middleware.RequestMeta(c))
	if err != nil {
		RespondWithMappedError(c, err, refreshErrorCases, http.StatusInternalServerError, "internal error")
		return
	}
	c.JSON(http.StatusOK, newTokenResponse(pair, h.now()))
}

// Me godoc
// @Summary Describe the authenticated principal
// @Description Returns the caller and the grants resolved from the roles in its access token.
// @Tags Authentication
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Success 200 {object} MeResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	profile, err := h.auth.Me(c.Request.Context(), userID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrPrincipalNotFound, Status: http.StatusUnauthorized, Message: "principal no longer exists"},
		}, http.StatusInternalServerError, "internal error")
		return
	}

	c.JSON(http.StatusOK, MeResponse{
		User:        newUserSummary(profile.Principal),
		Permissions: profile.Grants.Strings(),
		IsSuper:     profile.Grants.IsSuper(),
	})
}

// ChangePassword godoc
// @Summary Change the caller's password
// @Description Verifies the current password and stores a new one that satisfies the password policy.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param request body PasswordChangeRequest true "Password change request"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/auth/password [post]
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	if h.passwords == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "password changes unavailable"))
		return
	}
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req PasswordChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid change password payload"))
		return
	}

	if err := h.passwords.ChangePassword(c.Request.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "current password is incorrect"},
			{Err: usecase.ErrPrincipalNotFound, Status: http.StatusUnauthorized, Message: "principal no longer exists"},
		}, http.StatusInternalServerError, "failed to change password")
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "password changed"})
}

// GitHubLogin godoc
// @Summary Start GitHub login
// @Description Redirects to GitHub with a state bound to a short-lived cookie.
// @Tags Authentication
// @Success 307
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/auth/github [get]
func (h *AuthHandler) GitHubLogin(c *gin.Context) {
	if h.github == nil {
		c.JSON(http.StatusNotFound, NewErrorResponse(c, "github login is not configured"))
		return
	}

	state, err := security.RandomToken(24)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "internal error"))
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(oauthStateCookie, state, int(oauthStateTTL.Seconds()), "/api/v1/auth/github", "", h.secureCookie, true)
	c.Redirect(http.StatusTemporaryRedirect, h.github.AuthCodeURL(state))
}

// GitHubCallback godoc
// @Summary Complete GitHub login
// @Description Exchanges the authorization code, provisions the principal on first login and issues a token pair.
// @Tags Authentication
// @Produce json
// @Param code query string true "Authorization code"
// @Param state query string true "State issued by /auth/github"
// @Success 200 {object} TokenResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /api/v1/auth/github/callback [get]
func (h *AuthHandler) GitHubCallback(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	if h.github == nil {
		c.JSON(http.StatusNotFound, NewErrorResponse(c, "github login is not configured"))
		return
	}

	expected, err := c.Cookie(oauthStateCookie)
	state := c.Query("state")
	if err != nil || expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(state)) != 1 {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid oauth state"))
		return
	}
	c.SetCookie(oauthStateCookie, "", -1, "/api/v1/auth/github", "", h.secureCookie, true)

	profile, err := h.github.Exchange(c.Request.Context(), c.Query("code"))
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, NewErrorResponse(c, "github login failed"))
		return
	}

	pair, err := h.auth.LoginExternal(c.Request.Context(), profile, middleware.RequestMeta(c))
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid credentials"))
			return
		}
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "internal error")
		return
	}
	c.JSON(http.StatusOK, newTokenResponse(pair, h.now()))
}
