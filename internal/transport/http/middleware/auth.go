package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/admin-iam/internal/core/domain"
	"github.com/arklim/admin-iam/internal/usecase"
)

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

func abortWithError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg, TraceID: GetTraceID(c)})
}

// TokenVerifier checks access tokens. Implemented by usecase.TokenService.
type TokenVerifier interface {
	Verify(token string, kind domain.TokenKind) (domain.Claims, error)
}

// GrantResolver turns role ids into an effective grant set.
type GrantResolver interface {
	Resolve(ctx context.Context, roleIDs []int64) (domain.GrantSet, error)
}

// Decider makes the allow or deny decision for a request.
type Decider interface {
	Decide(grants domain.GrantSet, req domain.AccessRequest) error
}

// bearerToken extracts the token from an "Authorization: Bearer <token>" header.
func bearerToken(header string) (string, string) {
	if header == "" {
		return "", "missing authorization header"
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", "invalid authorization format: expected 'Bearer <token>'"
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", "missing access token"
	}
	return token, ""
}

// RequireAuth verifies the bearer access token and stores the principal id,
// role ids and claims on the context. Expired tokens get a distinct message
// so clients know to refresh.
func RequireAuth(tokens TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, problem := bearerToken(c.GetHeader("Authorization"))
		if problem != "" {
			abortWithError(c, http.StatusUnauthorized, problem)
			return
		}

		claims, err := tokens.Verify(token, domain.TokenKindAccess)
		switch {
		case err == nil:
		case errors.Is(err, usecase.ErrTokenExpired):
			abortWithError(c, http.StatusUnauthorized, "access token expired")
			return
		case errors.Is(err, usecase.ErrTokenInvalid):
			abortWithError(c, http.StatusUnauthorized, "invalid access token")
			return
		default:
			_ = c.Error(err)
			abortWithError(c, http.StatusInternalServerError, "authentication failed")
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(RoleIDsKey, claims.RoleIDs)
		c.Set(ClaimsKey, claims)
		GetRequestContext(c).UserID = claims.UserID
		c.Request = c.Request.WithContext(usecase.WithActor(c.Request.Context(), claims.UserID))

		c.Next()
	}
}

// RequirePermission resolves the caller's grants from the role ids in the
// access token and asks the decider whether the matched route may be called.
// required lists business permissions the route demands on top of its API
// grant. It must run after RequireAuth.
func RequirePermission(resolver GrantResolver, decider Decider, required ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := GetAuthenticatedUserID(c); !ok {
			abortWithError(c, http.StatusUnauthorized, "authentication required")
			return
		}
		roleIDs, _ := c.Get(RoleIDsKey)
		ids, _ := roleIDs.([]int64)

		grants, err := resolver.Resolve(c.Request.Context(), ids)
		if err != nil {
			_ = c.Error(err)
			abortWithError(c, http.StatusInternalServerError, "internal error")
			return
		}
		c.Set(GrantsKey, grants)

		err = decider.Decide(grants, domain.AccessRequest{
			Method:   c.Request.Method,
			Path:     c.Request.URL.Path,
			Route:    c.FullPath(),
			Required: required,
		})
		if err != nil {
			var forbidden *usecase.ForbiddenError
			if errors.As(err, &forbidden) {
				c.Set(DeniedKey, forbidden.Error())
				abortWithError(c, http.StatusForbidden, forbidden.Error())
				return
			}
			_ = c.Error(err)
			abortWithError(c, http.StatusInternalServerError, "internal error")
			return
		}

		c.Next()
	}
}

// GetGrants returns the grant set resolved by RequirePermission.
func GetGrants(c *gin.Context) (domain.GrantSet, bool) {
	v, ok := c.Get(GrantsKey)
	if !ok {
		return domain.GrantSet{}, false
	}
	grants, ok := v.(domain.GrantSet)
	return grants, ok
}
