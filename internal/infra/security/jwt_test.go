package security

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/arklim/admin-iam/internal/core/domain"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestJWTManager(t *testing.T, now time.Time) *JWTManager {
	t.Helper()
	mgr, err := NewJWTManager(testSecret, "admin-iam")
	if err != nil {
		t.Fatalf("NewJWTManager returned error: %v", err)
	}
	return mgr.WithClock(func() time.Time { return now })
}

func TestNewJWTManagerRequiresSecret(t *testing.T) {
	if _, err := NewJWTManager("", "admin-iam"); !errors.Is(err, ErrSecretMissing) {
		t.Fatalf("expected ErrSecretMissing, got %v", err)
	}
	if _, err := NewJWTManager("short", "admin-iam"); !errors.Is(err, ErrSecretMissing) {
		t.Fatalf("expected ErrSecretMissing for short secret, got %v", err)
	}
}

func TestSignAndParseRoundTrip(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	mgr := newTestJWTManager(t, now)

	token, err := mgr.Sign(domain.Claims{
		UserID:    7,
		RoleIDs:   []int64{1, 2},
		Kind:      domain.TokenKindAccess,
		ExpiresAt: now.Add(30 * time.Minute),
	})
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}

	claims, err := mgr.Parse(token)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if claims.UserID != 7 || len(claims.RoleIDs) != 2 || claims.RoleIDs[1] != 2 {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.Kind != domain.TokenKindAccess {
		t.Fatalf("expected access kind, got %q", claims.Kind)
	}
	if claims.ID == "" {
		t.Fatal("expected jti to be generated")
	}
	if !claims.ExpiresAt.Equal(now.Add(30 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", claims.ExpiresAt)
	}
}

func TestParseExpiredToken(t *testing.T) {
	issued := time.Unix(1_700_000_000, 0)
	token, err := newTestJWTManager(t, issued).Sign(domain.Claims{
		UserID:    1,
		Kind:      domain.TokenKindAccess,
		ExpiresAt: issued.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}

	later := newTestJWTManager(t, issued.Add(2*time.Minute))
	if _, err := later.Parse(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestParseRejectsForeignSignature(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	other, err := NewJWTManager("ffffffffffffffffffffffffffffffff", "admin-iam")
	if err != nil {
		t.Fatalf("NewJWTManager returned error: %v", err)
	}
	other.WithClock(func() time.Time { return now })

	token, err := other.Sign(domain.Claims{UserID: 1, ExpiresAt: now.Add(time.Hour)})
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}

	if _, err := newTestJWTManager(t, now).Parse(token); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}
}

func TestParseRejectsOtherAlgorithms(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"userId": 1,
		"exp":    now.Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token: %v", err)
	}

	if _, err := newTestJWTManager(t, now).Parse(unsigned); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}
}

func TestParseGarbage(t *testing.T) {
	if _, err := newTestJWTManager(t, time.Now()).Parse("not-a-token"); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}
}
