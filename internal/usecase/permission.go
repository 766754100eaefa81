package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/admin-iam/internal/core/domain"
	"github.com/arklim/admin-iam/internal/core/port"
	"github.com/arklim/admin-iam/internal/repository"
)

// PermissionService manages business permissions.
type PermissionService struct {
	permissions port.PermissionRepository
	roles       port.RoleRepository
	mutator     grantMutator
}

// NewPermissionService constructs a PermissionService.
func NewPermissionService(
	permissions port.PermissionRepository,
	roles port.RoleRepository,
	cache *PermissionCache,
	events port.EventPublisher,
	log *zap.Logger,
) *PermissionService {
	if log == nil {
		log = zap.NewNop()
	}
	return &PermissionService{
		permissions: permissions,
		roles:       roles,
		mutator:     grantMutator{cache: cache, events: events, logger: log, now: time.Now},
	}
}

// Create registers a business permission. Names that parse as API grants are
// rejected so the two namespaces never collide.
func (s *PermissionService) Create(ctx context.Context, name, description string) (*domain.Permission, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: permission name is required", ErrInvalidInput)
	}
	if _, ok := domain.ParseGrant(name); ok {
		return nil, fmt.Errorf("%w: %q is an api grant, not a business permission", ErrInvalidInput, name)
	}

	created, err := s.permissions.Create(ctx, domain.Permission{Name: name, Description: description})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrPermissionExists
		}
		return nil, internal("create permission", err)
	}
	return created, nil
}

// List returns every business permission.
func (s *PermissionService) List(ctx context.Context) ([]domain.Permission, error) {
	perms, err := s.permissions.List(ctx)
	if err != nil {
		return nil, internal("list permissions", err)
	}
	return perms, nil
}

// Delete removes a business permission and invalidates every role that held it.
func (s *PermissionService) Delete(ctx context.Context, id int64) error {
	perm, err := s.permissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPermissionNotFound
		}
		return internal("get permission", err)
	}
	if perm.IsSystem {
		return ErrSystemEntity
	}

	before, err := s.roles.ListIDsByPermission(ctx, id)
	if err != nil {
		return internal("list roles holding permission", err)
	}
	return s.mutator.mutateTouched(ctx, "permission_deleted", before, func(ctx context.Context) ([]int64, error) {
		holders, err := s.permissions.Delete(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrPermissionNotFound
			}
			return nil, internal("delete permission", err)
		}
		return holders, nil
	})
}

// APIPermissionInput carries the attributes of an API permission.
type APIPermissionInput struct {
	Method      string
	Path        string
	MatchType   domain.MatchType
	Description string
}

func (in APIPermissionInput) normalize() (domain.APIPermission, error) {
	p := domain.APIPermission{
		Method:      strings.ToUpper(strings.TrimSpace(in.Method)),
		Path:        strings.TrimSpace(in.Path),
		MatchType:   in.MatchType,
		Description: in.Description,
	}
	if p.MatchType == "" {
		p.MatchType = domain.MatchExact
	}
	if _, ok := domain.ParseGrant(p.Grant()); !ok {
		return domain.APIPermission{}, fmt.Errorf("%w: invalid api permission %q", ErrInvalidInput, p.Grant())
	}
	return p, nil
}

// RouteInfo describes one route registered on the HTTP router.
type RouteInfo struct {
	Method string
	Path   string
}

// SyncResult reports what SyncRoutes changed.
type SyncResult struct {
	Created  int
	Existing int
}

// APIPermissionService manages method and path permissions.
type APIPermissionService struct {
	apiPermissions port.APIPermissionRepository
	roles          port.RoleRepository
	mutator        grantMutator
}

// NewAPIPermissionService constructs an APIPermissionService.
func NewAPIPermissionService(
	apiPermissions port.APIPermissionRepository,
	roles port.RoleRepository,
	cache *PermissionCache,
	events port.EventPublisher,
	log *zap.Logger,
) *APIPermissionService {
	if log == nil {
		log = zap.NewNop()
	}
	return &APIPermissionService{
		apiPermissions: apiPermissions,
		roles:          roles,
		mutator:        grantMutator{cache: cache, events: events, logger: log, now: time.Now},
	}
}

// Create registers an API permission.
func (s *APIPermissionService) Create(ctx context.Context, in APIPermissionInput) (*domain.APIPermission, error) {
	p, err := in.normalize()
	if err != nil {
		return nil, err
	}
	created, err := s.apiPermissions.Create(ctx, p)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrAPIPermissionExists
		}
		return nil, internal("create api permission", err)
	}
	return created, nil
}

// List returns every API permission.
func (s *APIPermissionService) List(ctx context.Context) ([]domain.APIPermission, error) {
	perms, err := s.apiPermissions.List(ctx)
	if err != nil {
		return nil, internal("list api permissions", err)
	}
	return perms, nil
}

// Update rewrites an API permission and invalidates every role holding it.
func (s *APIPermissionService) Update(ctx context.Context, id int64, in APIPermissionInput) (*domain.APIPermission, error) {
	p, err := in.normalize()
	if err != nil {
		return nil, err
	}
	p.ID = id

	before, err := s.roles.ListIDsByAPIPermission(ctx, id)
	if err != nil {
		return nil, internal("list roles holding api permission", err)
	}
	err = s.mutator.mutateTouched(ctx, "api_permission_updated", before, func(ctx context.Context) ([]int64, error) {
		if err := s.apiPermissions.Update(ctx, p); err != nil {
			switch {
			case errors.Is(err, repository.ErrNotFound):
				return nil, ErrAPIPermissionNotFound
			case errors.Is(err, repository.ErrConflict):
				return nil, ErrAPIPermissionExists
			}
			return nil, internal("update api permission", err)
		}
		// Roles linked after the first listing may already have cached
		// the old rule.
		after, err := s.roles.ListIDsByAPIPermission(ctx, id)
		if err != nil {
			return nil, s.invalidateAfterFailedListing(ctx, before, err)
		}
		return after, nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Delete removes an API permission and invalidates every role holding it.
func (s *APIPermissionService) Delete(ctx context.Context, id int64) error {
	before, err := s.roles.ListIDsByAPIPermission(ctx, id)
	if err != nil {
		return internal("list roles holding api permission", err)
	}
	return s.mutator.mutateTouched(ctx, "api_permission_deleted", before, func(ctx context.Context) ([]int64, error) {
		holders, err := s.apiPermissions.Delete(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrAPIPermissionNotFound
			}
			return nil, internal("delete api permission", err)
		}
		return holders, nil
	})
}

// invalidateAfterFailedListing drops the roles known to hold a rewritten
// permission when the post-write listing failed; the write itself stands.
func (s *APIPermissionService) invalidateAfterFailedListing(ctx context.Context, before []int64, listErr error) error {
	if err := s.mutator.cache.Invalidate(ctx, before...); err != nil {
		s.mutator.logger.Error("permission cache invalidation failed",
			zap.Int64s("role_ids", before),
			zap.Error(err),
		)
	}
	return internal("list roles holding api permission", listErr)
}

// SyncRoutes registers one exact-match API permission per route. Routes
// already registered are left as they are, so edited match types survive.
func (s *APIPermissionService) SyncRoutes(ctx context.Context, routes []RouteInfo) (SyncResult, error) {
	var res SyncResult
	for _, r := range routes {
		p, err := APIPermissionInput{
			Method:      r.Method,
			Path:        r.Path,
			MatchType:   domain.MatchExact,
			Description: r.Method + " " + r.Path,
		}.normalize()
		if err != nil {
			return res, err
		}
		created, err := s.apiPermissions.Upsert(ctx, p)
		if err != nil {
			return res, internal("sync api permission", err)
		}
		if created {
			res.Created++
		} else {
			res.Existing++
		}
	}
	return res, nil
}
