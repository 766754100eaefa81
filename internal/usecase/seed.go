package usecase

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/admin-iam/internal/core/domain"
	"github.com/arklim/admin-iam/internal/core/port"
	"github.com/arklim/admin-iam/internal/repository"
)

// SeedConfig names the built-in roles. Permissions lists business
// permissions routes demand; they are created as system entries.
type SeedConfig struct {
	AdminRole   string
	DefaultRole string
	Permissions []string
}

// Seeder makes sure the built-in roles and the super-permission exist.
type Seeder struct {
	roles       port.RoleRepository
	permissions port.PermissionRepository
	mutator     grantMutator
	logger      *zap.Logger
}

// NewSeeder constructs a Seeder.
func NewSeeder(roles port.RoleRepository, permissions port.PermissionRepository, cache *PermissionCache, log *zap.Logger) *Seeder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Seeder{
		roles:       roles,
		permissions: permissions,
		mutator:     grantMutator{cache: cache, logger: log, now: time.Now},
		logger:      log,
	}
}

// Seed is idempotent.
func (s *Seeder) Seed(ctx context.Context, cfg SeedConfig) error {
	super, err := s.ensurePermission(ctx, domain.SuperPermission, "Unrestricted access to every endpoint")
	if err != nil {
		return err
	}

	admin, err := s.ensureRole(ctx, cfg.AdminRole, "Built-in administrator")
	if err != nil {
		return err
	}
	full, err := s.roles.GetByID(ctx, admin.ID, true)
	if err != nil {
		return internal("load admin role", err)
	}
	if !containsID(full.PermissionIDs, super.ID) {
		ids := append(append([]int64(nil), full.PermissionIDs...), super.ID)
		err = s.mutator.mutateRoles(ctx, "seeded", []int64{admin.ID}, func(ctx context.Context) error {
			return s.roles.ReplacePermissions(ctx, admin.ID, ids)
		})
		if err != nil {
			return internal("grant super permission", err)
		}
	}

	for _, name := range cfg.Permissions {
		if _, err := s.ensurePermission(ctx, name, "Required by a built-in route"); err != nil {
			return err
		}
	}

	for _, name := range []string{"general_user", cfg.DefaultRole} {
		if name == "" {
			continue
		}
		if _, err := s.ensureRole(ctx, name, "Built-in role"); err != nil {
			return err
		}
	}
	return nil
}

func (s *Seeder) ensurePermission(ctx context.Context, name, description string) (*domain.Permission, error) {
	p, err := s.permissions.GetByName(ctx, name)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, internal("load permission "+name, err)
	}
	p, err = s.permissions.Create(ctx, domain.Permission{Name: name, Description: description, IsSystem: true})
	if errors.Is(err, repository.ErrConflict) {
		p, err = s.permissions.GetByName(ctx, name)
	}
	if err != nil {
		return nil, internal("create permission "+name, err)
	}
	s.logger.Info("seeded permission", zap.String("name", name))
	return p, nil
}

func (s *Seeder) ensureRole(ctx context.Context, name, description string) (*domain.Role, error) {
	r, err := s.roles.GetByName(ctx, name)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, internal("load role "+name, err)
	}
	r, err = s.roles.Create(ctx, domain.Role{Name: name, Description: description, IsSystem: true})
	if errors.Is(err, repository.ErrConflict) {
		r, err = s.roles.GetByName(ctx, name)
	}
	if err != nil {
		return nil, internal("create role "+name, err)
	}
	s.logger.Info("seeded role", zap.String("name", name))
	return r, nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
