package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/admin-iam/internal/core/domain"
	"github.com/arklim/admin-iam/internal/core/port"
	"github.com/arklim/admin-iam/internal/infra/logger"
	"github.com/arklim/admin-iam/internal/repository"
)

// RoleInput carries the mutable role attributes.
type RoleInput struct {
	Name             string
	Description      string
	PermissionIDs    []int64
	APIPermissionIDs []int64
}

// grantMutator runs association changes and keeps the permission cache in
// step with them. Services holding one cannot change grants any other way.
type grantMutator struct {
	cache  *PermissionCache
	events port.EventPublisher
	logger *zap.Logger
	now    func() time.Time
}

// mutateRoles runs fn and then synchronously invalidates the cached grants of
// roleIDs. The invalidation error is returned to the caller: the write is
// committed, but the cache may still serve the old grants.
func (m grantMutator) mutateRoles(ctx context.Context, change string, roleIDs []int64, fn func(ctx context.Context) error) error {
	return m.mutateTouched(ctx, change, roleIDs, func(ctx context.Context) ([]int64, error) {
		return nil, fn(ctx)
	})
}

// mutateTouched is mutateRoles for writes that learn which roles they
// affected while running: fn reports them from inside its write, and both
// those and the roles listed beforehand are invalidated. Roles that gained
// the grant between the listing and the write are covered that way.
func (m grantMutator) mutateTouched(ctx context.Context, change string, before []int64, fn func(ctx context.Context) ([]int64, error)) error {
	touched, err := fn(ctx)
	if err != nil {
		return err
	}
	roleIDs := uniqueIDs(append(append([]int64(nil), before...), touched...))
	if len(roleIDs) == 0 {
		return nil
	}

	if err := m.cache.Invalidate(ctx, roleIDs...); err != nil {
		logger.Enrich(ctx, m.logger).Error("permission cache invalidation failed",
			zap.Int64s("role_ids", roleIDs),
			zap.String("change", change),
			zap.Error(err),
		)
		return internal("invalidate permission cache", err)
	}

	if m.events != nil {
		event := domain.RoleGrantsChangedEvent{
			EventID:   uuid.NewString(),
			RoleIDs:   roleIDs,
			Change:    change,
			ChangedBy: ActorFrom(ctx),
			ChangedAt: m.now().UTC(),
		}
		if err := m.events.PublishRoleGrantsChanged(ctx, event); err != nil {
			logger.Enrich(ctx, m.logger).Warn("publish role grants changed failed", zap.Error(err))
		}
	}
	return nil
}

// RoleService manages roles and their permission associations.
type RoleService struct {
	roles          port.RoleRepository
	permissions    port.PermissionRepository
	apiPermissions port.APIPermissionRepository
	mutator        grantMutator
	logger         *zap.Logger
}

// NewRoleService constructs a RoleService.
func NewRoleService(
	roles port.RoleRepository,
	permissions port.PermissionRepository,
	apiPermissions port.APIPermissionRepository,
	cache *PermissionCache,
	events port.EventPublisher,
	log *zap.Logger,
) *RoleService {
	if log == nil {
		log = zap.NewNop()
	}
	return &RoleService{
		roles:          roles,
		permissions:    permissions,
		apiPermissions: apiPermissions,
		mutator:        grantMutator{cache: cache, events: events, logger: log, now: time.Now},
		logger:         log,
	}
}

// Create persists a role and its initial associations.
func (s *RoleService) Create(ctx context.Context, in RoleInput) (*domain.Role, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	if err := s.checkPermissions(ctx, in.PermissionIDs); err != nil {
		return nil, err
	}
	if err := s.checkAPIPermissions(ctx, in.APIPermissionIDs); err != nil {
		return nil, err
	}

	var created int64
	err := s.mutator.mutateTouched(ctx, "created", nil, func(ctx context.Context) ([]int64, error) {
		role, err := s.roles.Create(ctx, domain.Role{
			Name:             name,
			Description:      in.Description,
			PermissionIDs:    uniqueIDs(in.PermissionIDs),
			APIPermissionIDs: uniqueIDs(in.APIPermissionIDs),
		})
		if err != nil {
			switch {
			case errors.Is(err, repository.ErrConflict):
				return nil, ErrRoleExists
			case errors.Is(err, repository.ErrNotFound):
				return nil, fmt.Errorf("%w: referenced permission no longer exists", ErrInvalidInput)
			}
			return nil, internal("create role", err)
		}
		created = role.ID
		if len(in.PermissionIDs) == 0 && len(in.APIPermissionIDs) == 0 {
			return nil, nil
		}
		return []int64{role.ID}, nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, created)
}

// List returns every role without associations.
func (s *RoleService) List(ctx context.Context) ([]domain.Role, error) {
	roles, err := s.roles.List(ctx)
	if err != nil {
		return nil, internal("list roles", err)
	}
	return roles, nil
}

// Get returns a role with its associations.
func (s *RoleService) Get(ctx context.Context, id int64) (*domain.Role, error) {
	role, err := s.roles.GetByID(ctx, id, true)
	if err != nil {
		return nil, s.mapRoleError("get role", err)
	}
	return role, nil
}

// Update renames or re-describes a role. Associations are left untouched.
func (s *RoleService) Update(ctx context.Context, id int64, name, description string) (*domain.Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	err := s.roles.Update(ctx, domain.Role{ID: id, Name: name, Description: description})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrRoleExists
		}
		return nil, s.mapRoleError("update role", err)
	}
	return s.Get(ctx, id)
}

// Delete removes a role. Built-in roles are protected.
func (s *RoleService) Delete(ctx context.Context, id int64) error {
	role, err := s.roles.GetByID(ctx, id, false)
	if err != nil {
		return s.mapRoleError("get role", err)
	}
	if role.IsSystem {
		return ErrSystemEntity
	}
	return s.mutator.mutateRoles(ctx, "deleted", []int64{id}, func(ctx context.Context) error {
		if err := s.roles.Delete(ctx, id); err != nil {
			return s.mapRoleError("delete role", err)
		}
		return nil
	})
}

// AssignPermissions replaces the role's business permissions.
func (s *RoleService) AssignPermissions(ctx context.Context, roleID int64, permissionIDs []int64) (*domain.Role, error) {
	if err := s.checkPermissions(ctx, permissionIDs); err != nil {
		return nil, err
	}
	err := s.mutator.mutateRoles(ctx, "permissions_assigned", []int64{roleID}, func(ctx context.Context) error {
		if err := s.roles.ReplacePermissions(ctx, roleID, permissionIDs); err != nil {
			return s.mapRoleError("assign permissions", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, roleID)
}

// AssignAPIPermissions replaces the role's API permissions.
func (s *RoleService) AssignAPIPermissions(ctx context.Context, roleID int64, apiPermissionIDs []int64) (*domain.Role, error) {
	if err := s.checkAPIPermissions(ctx, apiPermissionIDs); err != nil {
		return nil, err
	}
	err := s.mutator.mutateRoles(ctx, "api_permissions_assigned", []int64{roleID}, func(ctx context.Context) error {
		if err := s.roles.ReplaceAPIPermissions(ctx, roleID, apiPermissionIDs); err != nil {
			return s.mapRoleError("assign api permissions", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, roleID)
}

func (s *RoleService) checkPermissions(ctx context.Context, ids []int64) error {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil
	}
	found, err := s.permissions.ListByIDs(ctx, ids)
	if err != nil {
		return internal("load permissions", err)
	}
	present := make(map[int64]struct{}, len(found))
	for _, p := range found {
		present[p.ID] = struct{}{}
	}
	return missingRefs("permission", ids, present)
}

func (s *RoleService) checkAPIPermissions(ctx context.Context, ids []int64) error {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil
	}
	found, err := s.apiPermissions.ListByIDs(ctx, ids)
	if err != nil {
		return internal("load api permissions", err)
	}
	present := make(map[int64]struct{}, len(found))
	for _, p := range found {
		present[p.ID] = struct{}{}
	}
	return missingRefs("api permission", ids, present)
}

func missingRefs(kind string, ids []int64, present map[int64]struct{}) error {
	var missing []int64
	for _, id := range ids {
		if _, ok := present[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return &MissingReferencesError{Kind: kind, IDs: missing}
	}
	return nil
}

func (s *RoleService) mapRoleError(op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrRoleNotFound
	}
	return internal(op, err)
}
