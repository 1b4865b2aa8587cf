package auth

import (
	"errors"
	"fmt"
)

// Token acquisition errors
var (
	// ErrNotConfigured is returned when the API key or the secret key is missing.
	// No network call is made in that case.
	ErrNotConfigured = errors.New("OCR credentials are not configured")

	// ErrExchangeFailed is returned when the client-credentials exchange fails,
	// either in transport or because the response carries no access token.
	ErrExchangeFailed = errors.New("token exchange failed")
)

// AuthError wraps errors with additional context about the token failure.
type AuthError struct {
	// Op is the operation that failed (e.g., "Token", "exchange").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("auth: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("auth: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *AuthError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewAuthError creates a new AuthError with the specified operation and underlying error.
func NewAuthError(op string, err error, details string) *AuthError {
	return &AuthError{
		Op:      op,
		Err:     err,
		Details: details,
	}
}
