package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/arklim/admin-iam/internal/infra/config"
)

const clientName = "admin-iam"

// Client owns the connection shared by the permission cache, the refresh
// token ledger and the login rate limiter.
type Client struct {
	client *redis.Client
	logger *zap.Logger
}

// Options translates settings into go-redis options. Transient command
// failures are retried by go-redis up to MaxRetries times.
func Options(cfg config.RedisSettings) *redis.Options {
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}

	opts := &redis.Options{
		Addr:       fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		ClientName: clientName,
		Password:   cfg.Password,
		DB:         cfg.DB,

		PoolSize:        10,
		MinIdleConns:    2,
		MaxRetries:      retries,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}

// NewClient connects, pings, and warns when the server's eviction policy can
// drop refresh-ledger entries before they expire.
func NewClient(ctx context.Context, cfg config.RedisSettings, logger *zap.Logger) (*Client, error) {
	client := redis.NewClient(Options(cfg))

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	policy, err := client.ConfigGet(pingCtx, "maxmemory-policy").Result()
	switch {
	case err != nil:
		logger.Debug("redis eviction policy unavailable", zap.Error(err))
	case evictsLedger(policy["maxmemory-policy"]):
		logger.Warn("redis may evict refresh ledger entries; reuse detection weakens under memory pressure",
			zap.String("maxmemory_policy", policy["maxmemory-policy"]),
		)
	}

	logger.Info("redis connection established",
		zap.String("addr", client.Options().Addr),
		zap.Int("db", cfg.DB),
		zap.Bool("tls_enabled", cfg.TLSEnabled),
		zap.String("permission_prefix", cfg.PermissionKeyPrefix),
		zap.String("ledger_prefix", cfg.LedgerKeyPrefix),
	)

	return &Client{client: client, logger: logger}, nil
}

// evictsLedger reports whether policy may evict keys that carry a TTL. The
// volatile policies target exactly those, and ledger entries always have one.
func evictsLedger(policy string) bool {
	return strings.HasPrefix(policy, "allkeys-") || strings.HasPrefix(policy, "volatile-")
}

// Client returns the underlying redis.Client for repositories.
func (c *Client) Client() *redis.Client {
	return c.client
}

// HealthCheck backs the readiness probe.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (c *Client) Close() error {
	c.logger.Info("closing redis connection")
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}
