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

// CreateUserInput carries the attributes of a local principal.
type CreateUserInput struct {
	Username string
	Password string
	RealName string
	Email    string
	RoleIDs  []int64
}

// UserService manages local principals.
type UserService struct {
	users    port.UserRepository
	roles    port.RoleRepository
	hasher   port.PasswordHasher
	policy   port.PasswordPolicyValidator
	verifier *CredentialVerifier
	events   port.EventPublisher
	logger   *zap.Logger
	now      func() time.Time
}

// NewUserService constructs a UserService.
func NewUserService(
	users port.UserRepository,
	roles port.RoleRepository,
	hasher port.PasswordHasher,
	policy port.PasswordPolicyValidator,
	verifier *CredentialVerifier,
	events port.EventPublisher,
	log *zap.Logger,
) *UserService {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserService{
		users:    users,
		roles:    roles,
		hasher:   hasher,
		policy:   policy,
		verifier: verifier,
		events:   events,
		logger:   log,
		now:      time.Now,
	}
}

// Create registers a principal with a policy-checked password.
func (s *UserService) Create(ctx context.Context, in CreateUserInput) (*domain.Principal, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if strings.Contains(username, ExternalNameSep) {
		return nil, fmt.Errorf("%w: username may not contain %q", ErrInvalidInput, ExternalNameSep)
	}
	if s.policy != nil {
		if err := s.policy.Validate(in.Password, domain.PasswordContext{Username: username, Email: in.Email}); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
	}
	if err := s.checkRoles(ctx, in.RoleIDs); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, internal("hash password", err)
	}

	created, err := s.users.Create(ctx, domain.Principal{
		Username:     username,
		PasswordHash: hash,
		RealName:     in.RealName,
		Email:        in.Email,
		RoleIDs:      uniqueIDs(in.RoleIDs),
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrUsernameTaken
		}
		return nil, internal("create principal", err)
	}

	if s.events != nil {
		event := domain.PrincipalRegisteredEvent{
			EventID:      uuid.NewString(),
			PrincipalID:  created.ID,
			Username:     created.Username,
			Method:       "password",
			RoleIDs:      created.RoleIDs,
			RegisteredAt: s.now().UTC(),
		}
		if err := s.events.PublishPrincipalRegistered(ctx, event); err != nil {
			logger.Enrich(ctx, s.logger).Warn("publish principal registered failed", zap.Error(err))
		}
	}
	return created, nil
}

// Get returns a principal by id.
func (s *UserService) Get(ctx context.Context, id int64) (*domain.Principal, error) {
	p, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, mapPrincipalError("get principal", err)
	}
	return p, nil
}

// List returns every principal.
func (s *UserService) List(ctx context.Context) ([]domain.Principal, error) {
	list, err := s.users.List(ctx)
	if err != nil {
		return nil, internal("list principals", err)
	}
	return list, nil
}

// AssignRoles replaces the principal's roles. Tokens already issued keep
// their role ids until the next refresh.
func (s *UserService) AssignRoles(ctx context.Context, id int64, roleIDs []int64) (*domain.Principal, error) {
	if err := s.checkRoles(ctx, roleIDs); err != nil {
		return nil, err
	}
	if err := s.users.ReplaceRoles(ctx, id, uniqueIDs(roleIDs)); err != nil {
		return nil, mapPrincipalError("assign roles", err)
	}
	return s.Get(ctx, id)
}

// ChangePassword verifies the current password and stores a new one.
func (s *UserService) ChangePassword(ctx context.Context, id int64, current, next string) error {
	p, err := s.users.GetByID(ctx, id)
	if err != nil {
		return mapPrincipalError("get principal", err)
	}
	if _, err := s.verifier.Verify(ctx, p.Username, current); err != nil {
		return err
	}
	if s.policy != nil {
		pctx := domain.PasswordContext{Username: p.Username, Email: p.Email, Previous: current}
		if err := s.policy.Validate(next, pctx); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return internal("hash password", err)
	}
	if err := s.users.UpdatePassword(ctx, id, hash); err != nil {
		return mapPrincipalError("update password", err)
	}
	logger.Enrich(ctx, s.logger).Info("password changed", zap.Int64("user_id", id))
	return nil
}

// Delete removes a principal. Built-in principals are protected.
func (s *UserService) Delete(ctx context.Context, id int64) error {
	p, err := s.users.GetByID(ctx, id)
	if err != nil {
		return mapPrincipalError("get principal", err)
	}
	if p.IsSystem {
		return ErrSystemEntity
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return mapPrincipalError("delete principal", err)
	}
	return nil
}

func (s *UserService) checkRoles(ctx context.Context, ids []int64) error {
	var missing []int64
	for _, id := range uniqueIDs(ids) {
		if _, err := s.roles.GetByID(ctx, id, false); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				missing = append(missing, id)
				continue
			}
			return internal("load role", err)
		}
	}
	if len(missing) > 0 {
		return &MissingReferencesError{Kind: "role", IDs: missing}
	}
	return nil
}

func mapPrincipalError(op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrPrincipalNotFound
	}
	return internal(op, err)
}
