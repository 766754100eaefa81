package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/arklim/admin-iam/internal/core/domain"
	"github.com/arklim/admin-iam/internal/core/port"
	"github.com/arklim/admin-iam/internal/infra/logger"
	"github.com/arklim/admin-iam/internal/infra/security"
	"github.com/arklim/admin-iam/internal/repository"
)

// CredentialVerifierConfig tunes the verifier.
type CredentialVerifierConfig struct {
	// HashConcurrency caps simultaneous password hash comparisons.
	HashConcurrency int64
	// DefaultRole is assigned to principals created by third-party login.
	DefaultRole string
}

// CredentialVerifier checks username/password pairs and provisions
// principals on first third-party login.
type CredentialVerifier struct {
	users       port.UserRepository
	roles       port.RoleRepository
	hasher      port.PasswordHasher
	events      port.EventPublisher
	logger      *zap.Logger
	hashSlots   *semaphore.Weighted
	dummyHash   string
	defaultRole string
	now         func() time.Time
}

// NewCredentialVerifier constructs a verifier. It precomputes a hash used to
// keep the unknown-username path as slow as a real comparison.
func NewCredentialVerifier(
	users port.UserRepository,
	roles port.RoleRepository,
	hasher port.PasswordHasher,
	events port.EventPublisher,
	log *zap.Logger,
	cfg CredentialVerifierConfig,
) (*CredentialVerifier, error) {
	if cfg.HashConcurrency <= 0 {
		cfg.HashConcurrency = 1
	}
	if strings.TrimSpace(cfg.DefaultRole) == "" {
		return nil, fmt.Errorf("default role is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	dummy, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("compute dummy hash: %w", err)
	}

	return &CredentialVerifier{
		users:       users,
		roles:       roles,
		hasher:      hasher,
		events:      events,
		logger:      log,
		hashSlots:   semaphore.NewWeighted(cfg.HashConcurrency),
		dummyHash:   dummy,
		defaultRole: cfg.DefaultRole,
		now:         time.Now,
	}, nil
}

// Verify returns the principal whose stored hash matches password. Every
// authentication failure is reported as ErrInvalidCredentials.
func (v *CredentialVerifier) Verify(ctx context.Context, username, password string) (domain.Principal, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return domain.Principal{}, ErrInvalidCredentials
	}

	principal, err := v.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			if _, cmpErr := v.compare(ctx, password, v.dummyHash); cmpErr != nil && ctx.Err() != nil {
				return domain.Principal{}, ctx.Err()
			}
			logger.Enrich(ctx, v.logger).Info("login rejected",
				zap.String("username", logger.MaskString(username)),
				zap.String("reason", "unknown_user"),
			)
			return domain.Principal{}, ErrInvalidCredentials
		}
		return domain.Principal{}, internal("lookup principal", err)
	}

	ok, err := v.compare(ctx, password, principal.PasswordHash)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Principal{}, ctxErr
		}
		logger.Enrich(ctx, v.logger).Error("stored password hash unreadable",
			zap.Int64("user_id", principal.ID),
			zap.Error(err),
		)
		return domain.Principal{}, ErrInvalidCredentials
	}
	if !ok {
		logger.Enrich(ctx, v.logger).Info("login rejected",
			zap.Int64("user_id", principal.ID),
			zap.String("reason", "password_mismatch"),
		)
		return domain.Principal{}, ErrInvalidCredentials
	}

	return *principal, nil
}

func (v *CredentialVerifier) compare(ctx context.Context, password, encoded string) (bool, error) {
	if err := v.hashSlots.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer v.hashSlots.Release(1)
	return v.hasher.Verify(password, encoded)
}

// ExternalNameSep joins provider and login in the usernames of provisioned
// principals. Local usernames may not contain it.
const ExternalNameSep = ":"

// VerifyExternal resolves a third-party identity by its provider account id.
// Unknown accounts get a new principal with a random password and the default
// role; an existing local principal is never adopted, whatever its username.
func (v *CredentialVerifier) VerifyExternal(ctx context.Context, profile domain.ExternalProfile) (domain.Principal, error) {
	provider := strings.TrimSpace(profile.Provider)
	subject := strings.TrimSpace(profile.Subject)
	if provider == "" || subject == "" {
		return domain.Principal{}, fmt.Errorf("%w: external profile has no account id", ErrInvalidInput)
	}

	existing, err := v.users.GetByExternalIdentity(ctx, provider, subject)
	if err == nil {
		return *existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return domain.Principal{}, internal("lookup external identity", err)
	}

	role, err := v.roles.GetByName(ctx, v.defaultRole)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Principal{}, internal("resolve default role", fmt.Errorf("role %q missing", v.defaultRole))
		}
		return domain.Principal{}, internal("resolve default role", err)
	}

	secret, err := security.RandomToken(32)
	if err != nil {
		return domain.Principal{}, internal("generate password", err)
	}
	hash, err := v.hasher.Hash(secret)
	if err != nil {
		return domain.Principal{}, internal("hash password", err)
	}

	var created *domain.Principal
	for _, username := range externalUsernames(provider, profile.Username, subject) {
		created, err = v.users.CreateExternal(ctx, domain.Principal{
			Username:     username,
			PasswordHash: hash,
			RealName:     profile.RealName,
			Email:        profile.Email,
			RoleIDs:      []int64{role.ID},
		}, provider, subject)
		if !errors.Is(err, repository.ErrConflict) {
			break
		}
		// Either a concurrent first login bound the identity, or another
		// account of this provider already holds the username.
		again, getErr := v.users.GetByExternalIdentity(ctx, provider, subject)
		if getErr == nil {
			return *again, nil
		}
		if !errors.Is(getErr, repository.ErrNotFound) {
			return domain.Principal{}, internal("reload principal", getErr)
		}
	}
	if err != nil {
		return domain.Principal{}, internal("create principal", err)
	}

	logger.Enrich(ctx, v.logger).Info("principal provisioned from external login",
		zap.Int64("user_id", created.ID),
		zap.String("provider", provider),
	)

	if v.events != nil {
		event := domain.PrincipalRegisteredEvent{
			EventID:      uuid.NewString(),
			PrincipalID:  created.ID,
			Username:     created.Username,
			Method:       provider,
			RoleIDs:      created.RoleIDs,
			RegisteredAt: v.now().UTC(),
		}
		if err := v.events.PublishPrincipalRegistered(ctx, event); err != nil {
			logger.Enrich(ctx, v.logger).Warn("publish principal registered failed", zap.Error(err))
		}
	}

	return *created, nil
}

// externalUsernames lists the usernames tried for a new external principal:
// the provider login first, then the account id, which is unique per provider.
func externalUsernames(provider, login, subject string) []string {
	names := make([]string, 0, 2)
	if login = strings.TrimSpace(login); login != "" && login != subject {
		names = append(names, provider+ExternalNameSep+login)
	}
	return append(names, provider+ExternalNameSep+subject)
}
