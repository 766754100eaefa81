package redis

import (
	"context"
	"testing"
	"time"
)

func TestRateLimitRepository_SlidingWindow(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{KeyPrefix: "iam:rate_limit", TTL: time.Minute})
	ctx := context.Background()

	base := time.Unix(1_700_000_000, 0)
	for i := 0; i < 3; i++ {
		if err := repo.RecordAttempt(ctx, "login:10.0.0.1", base.Add(time.Duration(i)*10*time.Second)); err != nil {
			t.Fatalf("RecordAttempt returned error: %v", err)
		}
	}

	if !server.Exists("iam:rate_limit:login:10.0.0.1") {
		t.Fatal("expected prefixed key")
	}

	ref := base.Add(65 * time.Second)
	if err := repo.TrimWindow(ctx, "login:10.0.0.1", time.Minute, ref); err != nil {
		t.Fatalf("TrimWindow returned error: %v", err)
	}

	count, err := repo.CountAttempts(ctx, "login:10.0.0.1", time.Minute, ref)
	if err != nil {
		t.Fatalf("CountAttempts returned error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 attempts in window, got %d", count)
	}

	oldest, ok, err := repo.OldestAttempt(ctx, "login:10.0.0.1", time.Minute, ref)
	if err != nil || !ok {
		t.Fatalf("OldestAttempt ok=%v err=%v", ok, err)
	}
	if !oldest.Equal(base.Add(10 * time.Second)) {
		t.Fatalf("unexpected oldest attempt %v", oldest)
	}
}

func TestRateLimitRepository_RejectsNonPositiveWindow(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{})

	if _, err := repo.CountAttempts(context.Background(), "x", 0, time.Now()); err == nil {
		t.Fatal("expected error for zero window")
	}
}
