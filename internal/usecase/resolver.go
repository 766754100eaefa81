package usecase

import (
	"context"
	"errors"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/arklim/admin-iam/internal/core/domain"
	"github.com/arklim/admin-iam/internal/core/port"
	"github.com/arklim/admin-iam/internal/infra/logger"
	"github.com/arklim/admin-iam/internal/repository"
)

const tracerName = "github.com/arklim/admin-iam/internal/usecase"

// PermissionResolver turns a list of role ids into the union of their grants.
type PermissionResolver struct {
	roles  port.RoleRepository
	cache  *PermissionCache
	logger *zap.Logger
	loads  singleflight.Group
}

// NewPermissionResolver constructs a resolver.
func NewPermissionResolver(roles port.RoleRepository, cache *PermissionCache, log *zap.Logger) *PermissionResolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &PermissionResolver{roles: roles, cache: cache, logger: log}
}

// Resolve loads every role concurrently and returns the deduplicated union of
// their grants. Unknown roles contribute nothing. Any storage failure fails
// the whole resolution.
func (r *PermissionResolver) Resolve(ctx context.Context, roleIDs []int64) (domain.GrantSet, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "PermissionResolver.Resolve")
	defer span.End()

	ids := uniqueIDs(roleIDs)
	span.SetAttributes(attribute.Int("rbac.role_count", len(ids)))
	if len(ids) == 0 {
		return domain.NewGrantSet(), nil
	}

	results := make([][]string, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			grants, err := r.roleGrants(gctx, id)
			if err != nil {
				return err
			}
			results[i] = grants
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return domain.GrantSet{}, internal("resolve permissions", err)
	}

	set := domain.NewGrantSet()
	for _, grants := range results {
		set.Add(grants...)
	}
	return set, nil
}

func (r *PermissionResolver) roleGrants(ctx context.Context, roleID int64) ([]string, error) {
	grants, ok, err := r.cache.Get(ctx, roleID)
	if err != nil {
		logger.Enrich(ctx, r.logger).Warn("permission cache read failed",
			zap.Int64("role_id", roleID),
			zap.Error(err),
		)
	} else if ok {
		return grants, nil
	}

	// The epoch is read before joining a load so an invalidation landing
	// mid-load leaves that fill unreadable, and later callers start a new
	// load instead of sharing the pre-mutation one.
	epoch, err := r.cache.Epoch(ctx, roleID)
	if err != nil {
		logger.Enrich(ctx, r.logger).Warn("permission cache epoch unavailable, skipping fill",
			zap.Int64("role_id", roleID),
			zap.Error(err),
		)
		grants, _, err := r.load(ctx, roleID)
		return grants, err
	}

	// One load per role and epoch at a time; detached so a cancelled caller
	// does not fail the waiters sharing the result.
	key := strconv.FormatInt(roleID, 10) + ":" + epoch
	v, err, _ := r.loads.Do(key, func() (any, error) {
		ctx := context.WithoutCancel(ctx)
		grants, found, err := r.load(ctx, roleID)
		if err != nil || !found {
			return grants, err
		}
		if err := r.cache.Put(ctx, roleID, epoch, grants); err != nil {
			logger.Enrich(ctx, r.logger).Warn("permission cache fill failed",
				zap.Int64("role_id", roleID),
				zap.Error(err),
			)
		}
		return grants, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// load reads the role's grants from storage. Missing roles have none and
// are not cached.
func (r *PermissionResolver) load(ctx context.Context, roleID int64) ([]string, bool, error) {
	role, err := r.roles.GetByID(ctx, roleID, true)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return role.Grants(), true, nil
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
