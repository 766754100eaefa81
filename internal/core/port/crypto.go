package port

import "github.com/arklim/admin-iam/internal/core/domain"

// PasswordPolicyValidator rejects passwords for new or re-keyed principals.
// ctx carries the account attributes a password must not embed.
type PasswordPolicyValidator interface {
	Validate(password string, ctx domain.PasswordContext) error
}

// Argon2Params are the Argon2id costs written into every new hash. Stored
// hashes carry their own parameters, so changing these never locks anyone out.
type Argon2Params struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// PasswordHasher produces Argon2id hashes. Verify also accepts the bcrypt
// hashes of imported accounts.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password string, encoded string) (bool, error)
}

// TokenSigner signs and parses the HS256 access and refresh tokens.
type TokenSigner interface {
	Sign(claims domain.Claims) (string, error)
	Parse(token string) (domain.Claims, error)
}
