package redis

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/admin-iam/internal/infra/config"
)

func TestOptionsDefaultsRetries(t *testing.T) {
	opts := Options(config.RedisSettings{Host: "cache", Port: 6380})
	if opts.Addr != "cache:6380" {
		t.Fatalf("unexpected addr %q", opts.Addr)
	}
	if opts.MaxRetries != 3 {
		t.Fatalf("expected 3 retries, got %d", opts.MaxRetries)
	}
	if opts.TLSConfig != nil {
		t.Fatal("expected TLS to be disabled")
	}
	if opts.ClientName != "admin-iam" {
		t.Fatalf("unexpected client name %q", opts.ClientName)
	}
}

func TestEvictsLedger(t *testing.T) {
	cases := map[string]bool{
		"noeviction":   false,
		"allkeys-lru":  true,
		"volatile-ttl": true,
		"volatile-lfu": true,
		"":             false,
	}
	for policy, want := range cases {
		if got := evictsLedger(policy); got != want {
			t.Fatalf("evictsLedger(%q) = %v, want %v", policy, got, want)
		}
	}
}

func TestNewClientPingsServer(t *testing.T) {
	mr := miniredis.RunT(t)
	host, portStr, _ := strings.Cut(mr.Addr(), ":")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}

	client, err := NewClient(context.Background(), config.RedisSettings{Host: host, Port: port}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}
