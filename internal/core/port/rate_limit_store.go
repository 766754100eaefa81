package port

import (
	"context"
	"time"
)

// AttemptWindowStore keeps per-client login attempts for the sliding-window
// limiter in front of the token endpoints. Identifiers are already scoped by
// rule name and client IP.
type AttemptWindowStore interface {
	// TrimWindow forgets attempts made before reference-window.
	TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error
	CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error)
	RecordAttempt(ctx context.Context, identifier string, at time.Time) error
	// OldestAttempt reports the attempt that leaves the window first; the
	// limiter derives Retry-After from it.
	OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error)
}
