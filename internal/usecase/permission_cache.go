package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	uuid "github.com/google/uuid"

	"github.com/arklim/admin-iam/internal/core/port"
	"github.com/arklim/admin-iam/internal/infra/telemetry"
)

// PermissionCache stores each role's grant strings without expiry. Every
// entry records the role epoch current when it was loaded; Invalidate bumps
// the epoch before deleting, so a fill that raced a mutation is ignored on read.
type PermissionCache struct {
	store   port.KeyValueStore
	prefix  string
	metrics *telemetry.AuthMetrics
}

type cachedGrants struct {
	Epoch       string   `json:"epoch"`
	Permissions []string `json:"permissions"`
}

// NewPermissionCache constructs a cache with keys under prefix.
func NewPermissionCache(store port.KeyValueStore, prefix string, metrics *telemetry.AuthMetrics) *PermissionCache {
	if prefix == "" {
		prefix = "rbac:role"
	}
	return &PermissionCache{store: store, prefix: prefix, metrics: metrics}
}

func (c *PermissionCache) entryKey(roleID int64) string {
	return c.prefix + ":" + strconv.FormatInt(roleID, 10) + ":permissions"
}

func (c *PermissionCache) epochKey(roleID int64) string {
	return c.prefix + ":" + strconv.FormatInt(roleID, 10) + ":epoch"
}

// Epoch returns the role's current epoch; empty when never invalidated.
func (c *PermissionCache) Epoch(ctx context.Context, roleID int64) (string, error) {
	epoch, _, err := c.store.Get(ctx, c.epochKey(roleID))
	if err != nil {
		return "", fmt.Errorf("read epoch for role %d: %w", roleID, err)
	}
	return epoch, nil
}

// Get returns the cached grants for roleID. Undecodable or stale entries
// are reported as misses.
func (c *PermissionCache) Get(ctx context.Context, roleID int64) ([]string, bool, error) {
	raw, ok, err := c.store.Get(ctx, c.entryKey(roleID))
	if err != nil {
		return nil, false, fmt.Errorf("read permissions for role %d: %w", roleID, err)
	}
	if !ok {
		c.metrics.CacheLookup("miss")
		return nil, false, nil
	}

	var entry cachedGrants
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		c.metrics.CacheLookup("stale")
		return nil, false, nil
	}
	epoch, err := c.Epoch(ctx, roleID)
	if err != nil {
		return nil, false, err
	}
	if entry.Epoch != epoch {
		c.metrics.CacheLookup("stale")
		return nil, false, nil
	}

	c.metrics.CacheLookup("hit")
	return entry.Permissions, true, nil
}

// Put stores grants loaded while the role was at epoch.
func (c *PermissionCache) Put(ctx context.Context, roleID int64, epoch string, grants []string) error {
	if grants == nil {
		grants = []string{}
	}
	payload, err := json.Marshal(cachedGrants{Epoch: epoch, Permissions: grants})
	if err != nil {
		return fmt.Errorf("encode permissions for role %d: %w", roleID, err)
	}
	if err := c.store.Set(ctx, c.entryKey(roleID), string(payload), 0); err != nil {
		return fmt.Errorf("write permissions for role %d: %w", roleID, err)
	}
	return nil
}

// Invalidate drops the cached grants of every listed role.
func (c *PermissionCache) Invalidate(ctx context.Context, roleIDs ...int64) error {
	if len(roleIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(roleIDs))
	for _, id := range roleIDs {
		if err := c.store.Set(ctx, c.epochKey(id), uuid.NewString(), 0); err != nil {
			return fmt.Errorf("bump epoch for role %d: %w", id, err)
		}
		keys = append(keys, c.entryKey(id))
	}
	if err := c.store.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("drop cached permissions: %w", err)
	}
	return nil
}
