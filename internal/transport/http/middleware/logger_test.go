package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestIDReplacesForgedHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID())
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	cases := map[string]bool{
		"req-42":               true,
		"trace:abc.1_2":        true,
		"evil\" level=\"admin": false,
		"":                     false,
	}
	for header, kept := range cases {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		if header != "" {
			req.Header.Set(requestIDHeader, header)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		got := rec.Header().Get(requestIDHeader)
		if kept && got != header {
			t.Fatalf("expected %q to be echoed, got %q", header, got)
		}
		if !kept && (got == header || got == "") {
			t.Fatalf("expected %q to be replaced, got %q", header, got)
		}
	}
}

func TestLoggerWarnsOnRefusedRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.InfoLevel)

	router := gin.New()
	router.Use(RequestID(), Logger(zap.New(core)))
	router.GET("/api/v1/roles", func(c *gin.Context) {
		c.Set(UserIDKey, int64(7))
		c.Set(RoleIDsKey, []int64{2})
		c.Set(DeniedKey, "missing grant GET:/api/v1/roles")
		c.AbortWithStatus(http.StatusForbidden)
	})
	router.GET("/api/v1/me", func(c *gin.Context) { c.Status(http.StatusOK) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/roles", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected two access lines, got %d", len(entries))
	}
	refused := entries[0]
	if refused.Level != zapcore.WarnLevel || refused.Message != "admin request refused" {
		t.Fatalf("unexpected refused entry %s %q", refused.Level, refused.Message)
	}
	fields := refused.ContextMap()
	if fields["denied"] != "missing grant GET:/api/v1/roles" || fields["user_id"] != int64(7) {
		t.Fatalf("unexpected fields %v", fields)
	}
	if entries[1].Level != zapcore.InfoLevel {
		t.Fatalf("expected served call at info, got %s", entries[1].Level)
	}
}
