package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"

	"github.com/arklim/admin-iam/internal/core/domain"
	"github.com/arklim/admin-iam/internal/core/port"
)

// MinSecretLength is the shortest HMAC secret accepted at startup.
const MinSecretLength = 32

var (
	// ErrSecretMissing indicates the signing secret is empty or too short.
	ErrSecretMissing = errors.New("jwt: signing secret missing or shorter than 32 bytes")
	// ErrTokenExpired indicates the token signature is valid but exp has passed.
	ErrTokenExpired = errors.New("jwt: token expired")
	// ErrTokenMalformed covers every other parse or signature failure.
	ErrTokenMalformed = errors.New("jwt: token invalid")
)

// tokenClaims is the signed payload. userId and roleIds keep the wire names
// used by existing clients.
type tokenClaims struct {
	UserID  int64            `json:"userId"`
	RoleIDs []int64          `json:"roleIds"`
	Kind    domain.TokenKind `json:"typ"`
	jwt.RegisteredClaims
}

// JWTManager signs and verifies HS256 tokens with a single process-wide secret.
type JWTManager struct {
	secret []byte
	issuer string
	now    func() time.Time
}

var _ port.TokenSigner = (*JWTManager)(nil)

// NewJWTManager builds a manager; the secret must be at least MinSecretLength bytes.
func NewJWTManager(secret, issuer string) (*JWTManager, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrSecretMissing
	}
	return &JWTManager{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// WithClock overrides the time source used for validation.
func (m *JWTManager) WithClock(now func() time.Time) *JWTManager {
	if now != nil {
		m.now = now
	}
	return m
}

// Sign encodes claims. A missing ID is filled with a fresh UUID so two tokens
// issued in the same second never collide.
func (m *JWTManager) Sign(c domain.Claims) (string, error) {
	if c.UserID <= 0 {
		return "", fmt.Errorf("jwt: user id is required")
	}
	if c.ExpiresAt.IsZero() {
		return "", fmt.Errorf("jwt: expiry is required")
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	issuedAt := c.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = m.now()
	}

	roleIDs := c.RoleIDs
	if roleIDs == nil {
		roleIDs = []int64{}
	}

	claims := tokenClaims{
		UserID:  c.UserID,
		RoleIDs: roleIDs,
		Kind:    c.Kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(c.ExpiresAt),
			ID:        c.ID,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies the signature and expiry and returns the payload.
func (m *JWTManager) Parse(token string) (domain.Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	var claims tokenClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Claims{}, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return domain.Claims{}, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if !parsed.Valid || claims.UserID <= 0 {
		return domain.Claims{}, ErrTokenMalformed
	}

	out := domain.Claims{
		ID:      claims.ID,
		UserID:  claims.UserID,
		RoleIDs: claims.RoleIDs,
		Kind:    claims.Kind,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
