package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/arklim/admin-iam/internal/usecase"
)

const (
	// TraceIDHeader is the HTTP header name for trace ID
	TraceIDHeader = "X-Trace-ID"
	// TraceIDKey is the context key for trace ID
	TraceIDKey = "trace_id"
	// UserIDKey is the context key for the authenticated principal id (int64)
	UserIDKey = "user_id"
	// RoleIDsKey is the context key for the role ids carried by the access token
	RoleIDsKey = "role_ids"
	// ClaimsKey is the context key for the verified access token claims
	ClaimsKey = "claims"
	// GrantsKey is the context key for the resolved grant set
	GrantsKey = "grants"
	// DeniedKey holds the reason RequirePermission refused the request
	DeniedKey = "access_denied"

	requestContextKey = "request_context"
)

// RequestContext holds request-scoped information
type RequestContext struct {
	TraceID   string
	UserID    int64
	IP        string
	UserAgent string
}

// EnrichContext adds trace ID and request context to each request
func EnrichContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceIDHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}

		c.Set(TraceIDKey, traceID)
		c.Header(TraceIDHeader, traceID)

		c.Set(requestContextKey, &RequestContext{
			TraceID:   traceID,
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})

		c.Next()
	}
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(c *gin.Context) string {
	return c.GetString(TraceIDKey)
}

// GetRequestContext retrieves the full request context
func GetRequestContext(c *gin.Context) *RequestContext {
	if ctx, exists := c.Get(requestContextKey); exists {
		if reqCtx, ok := ctx.(*RequestContext); ok {
			return reqCtx
		}
	}
	return &RequestContext{}
}

// RequestMeta extracts the client attributes recorded on security events.
func RequestMeta(c *gin.Context) usecase.RequestMeta {
	reqCtx := GetRequestContext(c)
	meta := usecase.RequestMeta{IP: reqCtx.IP, UserAgent: reqCtx.UserAgent}
	if meta.IP == "" {
		meta.IP = c.ClientIP()
	}
	if meta.UserAgent == "" {
		meta.UserAgent = c.Request.UserAgent()
	}
	return meta
}

// GetAuthenticatedUserID retrieves the principal id set by RequireAuth.
func GetAuthenticatedUserID(c *gin.Context) (int64, bool) {
	v, exists := c.Get(UserIDKey)
	if !exists {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok && id != 0
}
