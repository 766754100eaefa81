package usecase

import (
	"context"
	"errors"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/admin-iam/internal/core/domain"
	"github.com/arklim/admin-iam/internal/core/port"
	"github.com/arklim/admin-iam/internal/infra/logger"
	"github.com/arklim/admin-iam/internal/infra/security"
	"github.com/arklim/admin-iam/internal/infra/telemetry"
	"github.com/arklim/admin-iam/internal/repository"
)

const minLedgerTTL = time.Second

// RequestMeta carries caller details used for audit logging.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// RefreshGuard redeems refresh tokens exactly once. The ledger entry for a
// token lives until the token itself would have expired.
type RefreshGuard struct {
	tokens    *TokenService
	ledger    port.KeyValueStore
	users     port.UserRepository
	events    port.EventPublisher
	metrics   *telemetry.AuthMetrics
	logger    *zap.Logger
	keyPrefix string
	now       func() time.Time
}

// NewRefreshGuard constructs a RefreshGuard. keyPrefix namespaces ledger keys.
func NewRefreshGuard(
	tokens *TokenService,
	ledger port.KeyValueStore,
	users port.UserRepository,
	events port.EventPublisher,
	metrics *telemetry.AuthMetrics,
	log *zap.Logger,
	keyPrefix string,
) *RefreshGuard {
	if log == nil {
		log = zap.NewNop()
	}
	if keyPrefix == "" {
		keyPrefix = "auth:refresh:used"
	}
	return &RefreshGuard{
		tokens:    tokens,
		ledger:    ledger,
		users:     users,
		events:    events,
		metrics:   metrics,
		logger:    log,
		keyPrefix: keyPrefix,
		now:       time.Now,
	}
}

func (g *RefreshGuard) ledgerKey(token string) string {
	return g.keyPrefix + ":" + security.Fingerprint(token)
}

// Redeem consumes token and returns the principal reloaded from storage, so
// the caller can issue a pair carrying current roles. A token that was
// already redeemed yields ErrTokenReused.
func (g *RefreshGuard) Redeem(ctx context.Context, token string, meta RequestMeta) (domain.Principal, error) {
	if token == "" {
		return domain.Principal{}, ErrTokenInvalid
	}
	key := g.ledgerKey(token)

	_, used, err := g.ledger.Get(ctx, key)
	if err != nil {
		return domain.Principal{}, internal("check refresh ledger", err)
	}
	if used {
		return domain.Principal{}, g.reuse(ctx, token, meta)
	}

	claims, err := g.tokens.Verify(token, domain.TokenKindRefresh)
	if err != nil {
		return domain.Principal{}, err
	}

	ttl := claims.ExpiresAt.Sub(g.now())
	if ttl < minLedgerTTL {
		ttl = minLedgerTTL
	}
	won, err := g.ledger.SetIfNotExists(ctx, key, g.now().UTC().Format(time.RFC3339Nano), ttl)
	if err != nil {
		return domain.Principal{}, internal("record refresh redemption", err)
	}
	if !won {
		return domain.Principal{}, g.reuse(ctx, token, meta)
	}

	principal, err := g.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Principal{}, ErrPrincipalNotFound
		}
		return domain.Principal{}, internal("reload principal", err)
	}
	return *principal, nil
}

func (g *RefreshGuard) reuse(ctx context.Context, token string, meta RequestMeta) error {
	g.metrics.RefreshReuse()

	// Signature may still be intact; the subject is only needed for the audit trail.
	var userID int64
	var tokenID string
	if claims, err := g.tokens.Verify(token, domain.TokenKindRefresh); err == nil || errors.Is(err, ErrTokenExpired) {
		userID = claims.UserID
		tokenID = claims.ID
	}

	logger.Enrich(ctx, g.logger).Error("refresh token reuse detected",
		zap.Int64("user_id", userID),
		zap.String("token_id", tokenID),
		zap.String("ip", logger.MaskIP(meta.IP)),
		zap.String("user_agent", meta.UserAgent),
	)

	if g.events != nil {
		event := domain.TokenReuseDetectedEvent{
			EventID:     uuid.NewString(),
			PrincipalID: userID,
			TokenID:     tokenID,
			DetectedAt:  g.now().UTC(),
			IPAddress:   logger.MaskIP(meta.IP),
		}
		if err := g.events.PublishTokenReuseDetected(ctx, event); err != nil {
			logger.Enrich(ctx, g.logger).Warn("publish token reuse failed", zap.Error(err))
		}
	}
	return ErrTokenReused
}
