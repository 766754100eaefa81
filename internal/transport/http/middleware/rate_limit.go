package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/admin-iam/internal/core/port"
	appLogger "github.com/arklim/admin-iam/internal/infra/logger"
)

const (
	rateLimitProblemType  = "https://admin-iam.dev/problems/rate-limit-exceeded"
	rateLimitProblemTitle = "Rate Limit Exceeded"
)

// IdentifierFunc extracts the identifier used to scope a limit. Returning
// false skips the rule for the request.
type IdentifierFunc func(*gin.Context) (string, bool)

// RateLimitRule configures a sliding-window limit for one identifier.
type RateLimitRule struct {
	Name       string
	Limit      int
	Window     time.Duration
	Identifier IdentifierFunc
}

func (r RateLimitRule) valid() bool {
	return r.Identifier != nil && r.Limit > 0 && r.Window > 0
}

// RateLimiter enforces sliding-window rules against a shared store.
type RateLimiter struct {
	store  port.AttemptWindowStore
	logger *zap.Logger
	now    func() time.Time
}

// window is the evaluated state of one rule for one request.
type window struct {
	limit     int
	remaining int
	reset     time.Time
	allowed   bool
}

func (w window) retryAfter(now time.Time) int {
	return max(int(math.Ceil(w.reset.Sub(now).Seconds())), 0)
}

// tighter reports whether w should be reported in headers instead of other.
func (w window) tighter(other window) bool {
	if w.allowed != other.allowed {
		return !w.allowed
	}
	if w.remaining != other.remaining {
		return w.remaining < other.remaining
	}
	return w.reset.Before(other.reset)
}

// ProblemDetails is an RFC 9457 payload for rate limit rejections.
type ProblemDetails struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	Status     int    `json:"status"`
	Detail     string `json:"detail"`
	Instance   string `json:"instance"`
	RetryAfter int    `json:"retry_after"`
	TraceID    string `json:"trace_id,omitempty"`
}

// NewRateLimiter builds a rate limiter. A nil store disables limiting.
func NewRateLimiter(store port.AttemptWindowStore, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{store: store, logger: logger, now: time.Now}
}

// WithClock replaces the clock, for tests.
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		rl.now = now
	}
	return rl
}

// ClientIPIdentifier scopes a rule to the request's client IP.
func ClientIPIdentifier() IdentifierFunc {
	return func(c *gin.Context) (string, bool) {
		ip := c.ClientIP()
		return ip, ip != ""
	}
}

// RateLimit returns a middleware enforcing rules in order. The first rule
// that is exhausted rejects the request with 429; store failures fail open.
func (rl *RateLimiter) RateLimit(rules ...RateLimitRule) gin.HandlerFunc {
	active := make([]RateLimitRule, 0, len(rules))
	for _, rule := range rules {
		if !rule.valid() {
			continue
		}
		if rule.Name == "" {
			rule.Name = "default"
		}
		active = append(active, rule)
	}

	return func(c *gin.Context) {
		if len(active) == 0 || rl.store == nil {
			c.Next()
			return
		}

		now := rl.now()
		var reported *window

		for _, rule := range active {
			id, ok := rule.Identifier(c)
			if !ok || id == "" {
				continue
			}

			w, err := rl.evaluate(c, rule, rule.Name+":"+id, now)
			if err != nil {
				rl.logger.Warn("rate limit check failed",
					zap.String("rule", rule.Name),
					zap.String("identifier", appLogger.MaskString(id)),
					zap.Error(err))
				continue
			}

			if reported == nil || w.tighter(*reported) {
				reported = &w
			}
			if !w.allowed {
				rl.writeHeaders(c, w, now)
				rl.reject(c, w, now)
				return
			}
		}

		if reported != nil {
			rl.writeHeaders(c, *reported, now)
		}
		c.Next()
	}
}

func (rl *RateLimiter) evaluate(c *gin.Context, rule RateLimitRule, key string, now time.Time) (window, error) {
	ctx := c.Request.Context()

	if err := rl.store.TrimWindow(ctx, key, rule.Window, now); err != nil {
		return window{}, err
	}
	count, err := rl.store.CountAttempts(ctx, key, rule.Window, now)
	if err != nil {
		return window{}, err
	}
	oldest, found, err := rl.store.OldestAttempt(ctx, key, rule.Window, now)
	if err != nil {
		return window{}, err
	}

	w := window{limit: rule.Limit, reset: now.Add(rule.Window), allowed: true}
	if found {
		w.reset = oldest.Add(rule.Window)
	}

	if count >= rule.Limit {
		w.allowed = false
		return w, nil
	}

	if err := rl.store.RecordAttempt(ctx, key, now); err != nil {
		return window{}, err
	}
	w.remaining = max(rule.Limit-count-1, 0)
	return w, nil
}

func (rl *RateLimiter) writeHeaders(c *gin.Context, w window, now time.Time) {
	h := c.Writer.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(w.limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(w.remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(w.reset.Unix(), 10))
	if !w.allowed {
		h.Set("Retry-After", strconv.Itoa(w.retryAfter(now)))
	}
}

func (rl *RateLimiter) reject(c *gin.Context, w window, now time.Time) {
	retry := w.retryAfter(now)
	instance := c.FullPath()
	if instance == "" {
		instance = c.Request.URL.Path
	}

	c.AbortWithStatusJSON(http.StatusTooManyRequests, ProblemDetails{
		Type:       rateLimitProblemType,
		Title:      rateLimitProblemTitle,
		Status:     http.StatusTooManyRequests,
		Detail:     fmt.Sprintf("Too many requests. Try again in %d seconds.", retry),
		Instance:   instance,
		RetryAfter: retry,
		TraceID:    GetTraceID(c),
	})
}
