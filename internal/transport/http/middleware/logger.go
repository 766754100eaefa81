package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appLogger "github.com/arklim/admin-iam/internal/infra/logger"
)

// Logger writes one access line per admin API call. Refused calls are logged
// at warn with the missing grant, so access reviews can be run off the logs.
func Logger(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("trace_id", GetTraceID(c)),
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", appLogger.MaskIP(c.ClientIP())),
		}
		if route := c.FullPath(); route != "" && route != c.Request.URL.Path {
			fields = append(fields, zap.String("route", route))
		}
		if userID, ok := GetAuthenticatedUserID(c); ok {
			fields = append(fields, zap.Int64("user_id", userID))
		}
		if roleIDs, ok := c.Get(RoleIDsKey); ok {
			if ids, ok := roleIDs.([]int64); ok {
				fields = append(fields, zap.Int64s("role_ids", ids))
			}
		}

		switch {
		case len(c.Errors) > 0:
			log.Error("admin request failed", append(fields, zap.String("errors", c.Errors.String()))...)
		case status >= http.StatusInternalServerError:
			log.Error("admin request failed", fields...)
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			if reason := c.GetString(DeniedKey); reason != "" {
				fields = append(fields, zap.String("denied", reason))
			}
			log.Warn("admin request refused", fields...)
		default:
			log.Info("admin request served", fields...)
		}
	}
}
