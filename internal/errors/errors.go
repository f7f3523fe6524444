package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Common error types for the session subsystem
var (
	// Token errors
	ErrMalformedToken = errors.New("malformed token")
	ErrRefreshFailed  = errors.New("refresh failed")

	// Login errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRoleMismatch       = errors.New("role mismatch")
	ErrAmbiguousIdentity  = errors.New("ambiguous identity")

	// Profile errors
	ErrProfilePrefetchFailed = errors.New("profile prefetch failed")

	// Storage errors
	ErrStaleWrite = errors.New("namespace was rewritten concurrently")

	// General errors
	ErrInvalidRequest = errors.New("invalid request")
	ErrNotFound       = errors.New("not found")
)

// RoleMismatchError reports that a username is registered under a different
// role than the one the user is trying to log in as.
type RoleMismatchError struct {
	Registered string
	Attempted  string
}

func (e *RoleMismatchError) Error() string {
	return fmt.Sprintf("this account is registered as %q and cannot sign in as %q; use the %s login instead",
		e.Registered, e.Attempted, e.Registered)
}

func (e *RoleMismatchError) Unwrap() error {
	return ErrRoleMismatch
}

// AmbiguousIdentityError is returned when the backend finds more than one
// account for a username. Candidates lists the usernames to choose from.
type AmbiguousIdentityError struct {
	Candidates []string
}

func (e *AmbiguousIdentityError) Error() string {
	return fmt.Sprintf("multiple accounts match this username, sign in with one of: %s", strings.Join(e.Candidates, ", "))
}

func (e *AmbiguousIdentityError) Unwrap() error {
	return ErrAmbiguousIdentity
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New is errors.New, re-exported so callers need only one errors import.
func New(text string) error {
	return errors.New(text)
}
