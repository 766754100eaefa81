package usecase

import (
	"context"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/arklim/admin-iam/internal/core/domain"
)

func TestSeederIsIdempotent(t *testing.T) {
	f := newFixture(t)
	seeder := NewSeeder(roleRepoStub{f.rbac}, permRepoStub{f.rbac}, f.cache, zaptest.NewLogger(t))
	cfg := SeedConfig{AdminRole: "admin", DefaultRole: "member"}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := seeder.Seed(ctx, cfg); err != nil {
			t.Fatalf("Seed #%d returned error: %v", i+1, err)
		}
	}

	roles, _ := roleRepoStub{f.rbac}.List(ctx)
	if len(roles) != 3 {
		t.Fatalf("expected admin, general_user and member roles, got %d", len(roles))
	}

	admin, err := roleRepoStub{f.rbac}.GetByName(ctx, "admin")
	if err != nil {
		t.Fatalf("admin role missing: %v", err)
	}
	if !admin.IsSystem {
		t.Fatal("expected seeded role to be a system role")
	}
	grants, err := f.resolver.Resolve(ctx, []int64{admin.ID})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if !grants.IsSuper() {
		t.Fatalf("expected admin to hold %s, got %v", domain.SuperPermission, grants.Strings())
	}
}

func TestSeederCreatesRoutePermissions(t *testing.T) {
	f := newFixture(t)
	seeder := NewSeeder(roleRepoStub{f.rbac}, permRepoStub{f.rbac}, f.cache, zaptest.NewLogger(t))
	ctx := context.Background()

	cfg := SeedConfig{AdminRole: "admin", DefaultRole: "member", Permissions: []string{"user:create", "user:delete"}}
	if err := seeder.Seed(ctx, cfg); err != nil {
		t.Fatalf("Seed returned error: %v", err)
	}

	for _, name := range cfg.Permissions {
		p, err := permRepoStub{f.rbac}.GetByName(ctx, name)
		if err != nil {
			t.Fatalf("permission %s missing: %v", name, err)
		}
		if !p.IsSystem {
			t.Fatalf("expected %s to be a system permission", name)
		}
	}
}
