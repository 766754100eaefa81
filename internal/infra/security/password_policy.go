package security

import (
	"fmt"
	"strings"
	"unicode"

	zxcvbn "github.com/nbutton23/zxcvbn-go"

	"github.com/arklim/admin-iam/internal/core/domain"
	"github.com/arklim/admin-iam/internal/core/port"
)

// PasswordValidationError names the first policy check a password failed.
type PasswordValidationError struct {
	Code    string
	Message string
}

func (e *PasswordValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// PasswordPolicy is the password policy for admin principals. Checks run
// cheapest first and the zxcvbn estimate, which sees the account's username
// and email as known words, runs last.
type PasswordPolicy struct {
	MinLength  int
	MinClasses int
	MinScore   int
}

// NewPasswordPolicy returns the default policy: ten characters, three of the
// four character classes and a zxcvbn score of 3.
func NewPasswordPolicy() *PasswordPolicy {
	return &PasswordPolicy{MinLength: 10, MinClasses: 3, MinScore: 3}
}

// Validate returns a *PasswordValidationError for the first failed check.
func (p *PasswordPolicy) Validate(password string, ctx domain.PasswordContext) error {
	if p == nil {
		return fmt.Errorf("password policy not configured")
	}

	if n := len([]rune(password)); n < p.MinLength {
		return violation("min_length", "password must be at least %d characters long", p.MinLength)
	}
	if classes := characterClasses(password); classes < p.MinClasses {
		return violation("character_classes", "password must include at least %d character types", p.MinClasses)
	}
	if ctx.Previous != "" && password == ctx.Previous {
		return violation("different", "new password must be different from current password")
	}

	identity := identityWords(ctx)
	lowered := strings.ToLower(password)
	for _, word := range identity {
		if len(word) >= 4 && strings.Contains(lowered, word) {
			return violation("contains_identity", "password must not contain the account's username or email")
		}
	}

	if p.MinScore > 0 && zxcvbn.PasswordStrength(password, identity).Score < min(p.MinScore, 4) {
		return violation("weak_password", "password is too weak; choose a more complex value")
	}
	return nil
}

func violation(code, format string, args ...any) error {
	return &PasswordValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// characterClasses counts which of upper, lower, digit and symbol appear.
func characterClasses(password string) int {
	var seen [4]bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			seen[0] = true
		case unicode.IsLower(r):
			seen[1] = true
		case unicode.IsDigit(r):
			seen[2] = true
		case unicode.IsSymbol(r) || unicode.IsPunct(r):
			seen[3] = true
		}
	}
	n := 0
	for _, ok := range seen {
		if ok {
			n++
		}
	}
	return n
}

// identityWords lowercases the username and the email's local part.
// Provisioned names like "github:octocat" contribute only the login.
func identityWords(ctx domain.PasswordContext) []string {
	words := make([]string, 0, 2)
	if name := strings.TrimSpace(ctx.Username); name != "" {
		if _, login, ok := strings.Cut(name, ":"); ok {
			name = login
		}
		words = append(words, strings.ToLower(name))
	}
	if email := strings.TrimSpace(ctx.Email); email != "" {
		local, _, _ := strings.Cut(email, "@")
		words = append(words, strings.ToLower(local))
	}
	return words
}

var _ port.PasswordPolicyValidator = (*PasswordPolicy)(nil)
