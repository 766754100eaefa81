package usecase

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/arklim/admin-iam/internal/core/domain"
	"github.com/arklim/admin-iam/internal/core/port"
	"github.com/arklim/admin-iam/internal/infra/logger"
	"github.com/arklim/admin-iam/internal/infra/telemetry"
	"github.com/arklim/admin-iam/internal/repository"
)

// AuthService orchestrates the login, refresh and profile flows.
type AuthService struct {
	credentials *CredentialVerifier
	tokens      *TokenService
	guard       *RefreshGuard
	resolver    *PermissionResolver
	users       port.UserRepository
	metrics     *telemetry.AuthMetrics
	logger      *zap.Logger
}

// NewAuthService wires the auth flows together.
func NewAuthService(
	credentials *CredentialVerifier,
	tokens *TokenService,
	guard *RefreshGuard,
	resolver *PermissionResolver,
	users port.UserRepository,
	metrics *telemetry.AuthMetrics,
	log *zap.Logger,
) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{
		credentials: credentials,
		tokens:      tokens,
		guard:       guard,
		resolver:    resolver,
		users:       users,
		metrics:     metrics,
		logger:      log,
	}
}

// Profile is the authenticated principal together with its effective grants.
type Profile struct {
	Principal domain.Principal
	Grants    domain.GrantSet
}

// Login verifies a username and password and issues a token pair.
func (s *AuthService) Login(ctx context.Context, username, password string, meta RequestMeta) (domain.TokenPair, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "AuthService.Login")
	defer span.End()

	principal, err := s.credentials.Verify(ctx, username, password)
	if err != nil {
		s.metrics.Login("password", outcome(err))
		return domain.TokenPair{}, err
	}
	span.SetAttributes(attribute.Int64("iam.user_id", principal.ID))

	pair, err := s.issue(ctx, principal)
	if err != nil {
		s.metrics.Login("password", "error")
		return domain.TokenPair{}, err
	}

	s.metrics.Login("password", "success")
	logger.Enrich(ctx, s.logger).Info("login succeeded",
		zap.Int64("user_id", principal.ID),
		zap.String("ip", logger.MaskIP(meta.IP)),
	)
	return pair, nil
}

// LoginExternal issues a token pair for a third-party identity, provisioning
// a principal on first sight.
func (s *AuthService) LoginExternal(ctx context.Context, profile domain.ExternalProfile, meta RequestMeta) (domain.TokenPair, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "AuthService.LoginExternal")
	defer span.End()

	principal, err := s.credentials.VerifyExternal(ctx, profile)
	if err != nil {
		s.metrics.Login(profile.Provider, outcome(err))
		return domain.TokenPair{}, err
	}

	pair, err := s.issue(ctx, principal)
	if err != nil {
		s.metrics.Login(profile.Provider, "error")
		return domain.TokenPair{}, err
	}

	s.metrics.Login(profile.Provider, "success")
	logger.Enrich(ctx, s.logger).Info("external login succeeded",
		zap.Int64("user_id", principal.ID),
		zap.String("provider", profile.Provider),
		zap.String("ip", logger.MaskIP(meta.IP)),
	)
	return pair, nil
}

// Refresh redeems a refresh token and issues a pair carrying the principal's
// current roles.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, meta RequestMeta) (domain.TokenPair, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "AuthService.Refresh")
	defer span.End()

	principal, err := s.guard.Redeem(ctx, refreshToken, meta)
	if err != nil {
		s.metrics.Refresh(outcome(err))
		return domain.TokenPair{}, err
	}

	pair, err := s.issue(ctx, principal)
	if err != nil {
		s.metrics.Refresh("error")
		return domain.TokenPair{}, err
	}
	s.metrics.Refresh("success")
	return pair, nil
}

// Me loads the principal behind an access token and its effective grants.
func (s *AuthService) Me(ctx context.Context, userID int64) (Profile, error) {
	principal, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Profile{}, ErrPrincipalNotFound
		}
		return Profile{}, internal("load principal", err)
	}
	grants, err := s.resolver.Resolve(ctx, principal.RoleIDs)
	if err != nil {
		return Profile{}, err
	}
	return Profile{Principal: *principal, Grants: grants}, nil
}

func (s *AuthService) issue(ctx context.Context, principal domain.Principal) (domain.TokenPair, error) {
	// Warm the permission cache; the first guarded request will need it.
	if _, err := s.resolver.Resolve(ctx, principal.RoleIDs); err != nil {
		logger.Enrich(ctx, s.logger).Warn("permission warm-up failed",
			zap.Int64("user_id", principal.ID),
			zap.Error(err),
		)
	}

	pair, err := s.tokens.Issue(principal)
	if err != nil {
		return domain.TokenPair{}, internal("issue tokens", err)
	}
	return pair, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrTokenReused):
		return "reused"
	case errors.Is(err, ErrTokenInvalid), errors.Is(err, ErrPrincipalNotFound):
		return "invalid"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	default:
		return "error"
	}
}
