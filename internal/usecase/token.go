package usecase

import (
	"errors"
	"fmt"
	"time"

	"github.com/arklim/admin-iam/internal/core/domain"
	"github.com/arklim/admin-iam/internal/core/port"
	"github.com/arklim/admin-iam/internal/infra/security"
)

// TokenService issues and verifies access and refresh tokens. Both kinds
// carry the same payload; only lifetime and the typ claim differ.
type TokenService struct {
	signer     port.TokenSigner
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenService constructs a TokenService.
func NewTokenService(signer port.TokenSigner, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{
		signer:     signer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// Issue signs a new access/refresh pair for the principal's current roles.
func (s *TokenService) Issue(p domain.Principal) (domain.TokenPair, error) {
	now := s.now()
	roleIDs := append([]int64(nil), p.RoleIDs...)

	access := domain.Claims{
		UserID:    p.ID,
		RoleIDs:   roleIDs,
		Kind:      domain.TokenKindAccess,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.accessTTL),
	}
	refresh := access
	refresh.Kind = domain.TokenKindRefresh
	refresh.ExpiresAt = now.Add(s.refreshTTL)

	accessToken, err := s.signer.Sign(access)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	refreshToken, err := s.signer.Sign(refresh)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return domain.TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

// Verify checks signature, expiry and kind. An expired token yields
// ErrTokenExpired; every other failure yields ErrTokenInvalid.
func (s *TokenService) Verify(token string, kind domain.TokenKind) (domain.Claims, error) {
	if token == "" {
		return domain.Claims{}, ErrTokenInvalid
	}

	claims, err := s.signer.Parse(token)
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			return domain.Claims{}, ErrTokenExpired
		}
		return domain.Claims{}, ErrTokenInvalid
	}
	if claims.Kind != kind {
		return domain.Claims{}, ErrTokenInvalid
	}
	return claims, nil
}
