package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// RandomToken returns n bytes from crypto/rand as unpadded base64url. It backs
// OAuth state values and the throwaway passwords of external principals.
func RandomToken(n int) (string, error) {
	if n < 16 {
		return "", fmt.Errorf("random token needs at least 16 bytes, got %d", n)
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Fingerprint is the hex SHA-256 of a refresh token. The used-token ledger
// keys on it so raw tokens never reach Redis.
func Fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
