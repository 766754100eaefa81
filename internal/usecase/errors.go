package usecase

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials covers both unknown usernames and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTokenExpired indicates a correctly signed token past its exp.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid indicates a malformed, forged or wrong-kind token.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenReused indicates a refresh token that was already exchanged.
	ErrTokenReused = errors.New("refresh token already used")
	// ErrForbidden is the sentinel wrapped by *ForbiddenError.
	ErrForbidden = errors.New("forbidden")
	// ErrPrincipalNotFound indicates the token subject no longer exists.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrInternal marks collaborator failures that survived bounded retries.
	ErrInternal = errors.New("internal error")

	// ErrInvalidInput indicates a request failed validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrRoleNotFound is returned for unknown role ids.
	ErrRoleNotFound = errors.New("role not found")
	// ErrRoleExists indicates a role with the provided name already exists.
	ErrRoleExists = errors.New("role already exists")
	// ErrPermissionNotFound is returned for unknown business permission ids.
	ErrPermissionNotFound = errors.New("permission not found")
	// ErrPermissionExists indicates the permission name is taken.
	ErrPermissionExists = errors.New("permission already exists")
	// ErrAPIPermissionNotFound is returned for unknown API permission ids.
	ErrAPIPermissionNotFound = errors.New("api permission not found")
	// ErrAPIPermissionExists indicates the method and path are already registered.
	ErrAPIPermissionExists = errors.New("api permission already exists")
	// ErrUsernameTaken indicates the username is already registered.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrSystemEntity indicates an attempt to delete a built-in role, permission or principal.
	ErrSystemEntity = errors.New("system entries cannot be deleted")
)

// ForbiddenError names the request that was denied.
type ForbiddenError struct {
	Method     string
	Path       string
	Permission string
}

func (e *ForbiddenError) Error() string {
	target := e.Method + ":" + e.Path
	if e.Permission != "" {
		return "missing permission " + e.Permission + " for " + target
	}
	return "missing permission " + target
}

// Unwrap lets errors.Is match ErrForbidden.
func (e *ForbiddenError) Unwrap() error {
	return ErrForbidden
}

// MissingReferencesError lists ids that do not exist.
type MissingReferencesError struct {
	Kind string
	IDs  []int64
}

func (e *MissingReferencesError) Error() string {
	return fmt.Sprintf("unknown %s ids %v", e.Kind, e.IDs)
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e *MissingReferencesError) Unwrap() error {
	return ErrInvalidInput
}

func internal(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrInternal, err)
}
