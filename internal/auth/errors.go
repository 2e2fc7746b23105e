// Package auth implements client authentication for apiguard: secret key
// hashing, credential verification, and the authenticated principal.
package auth

import (
	"errors"
	"fmt"
)

// Sentinel errors for authentication operations. All of these are
// client-caused; internal failures are wrapped separately so callers can
// tell them apart.
var (
	// ErrNoCredentials indicates that no credentials were provided.
	ErrNoCredentials = errors.New("no credentials provided")

	// ErrInvalidClient indicates that the client identifier is unknown.
	ErrInvalidClient = errors.New("invalid client")

	// ErrInactiveClient indicates that the client or credential is
	// deactivated.
	ErrInactiveClient = errors.New("client inactive")

	// ErrCredentialExpired indicates that the credential is past its
	// expiration.
	ErrCredentialExpired = errors.New("credential expired")

	// ErrInvalidKey indicates that the presented secret does not match
	// any active credential.
	ErrInvalidKey = errors.New("invalid API key")

	// ErrIPNotAllowed indicates that the caller IP is outside the
	// client's allowlist.
	ErrIPNotAllowed = errors.New("ip address not allowed")
)

// AuthError wraps an authentication failure with context.
type AuthError struct {
	Reason  string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("auth error (%s): %s: %v", e.Reason, e.Message, e.Cause)
	}
	return fmt.Sprintf("auth error (%s): %s", e.Reason, e.Message)
}

// Unwrap returns the underlying error.
func (e *AuthError) Unwrap() error {
	return e.Cause
}

// IsClientError reports whether err is caused by the client (bad id, bad
// key, expired or revoked credential) rather than an internal failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNoCredentials) ||
		errors.Is(err, ErrInvalidClient) ||
		errors.Is(err, ErrInactiveClient) ||
		errors.Is(err, ErrCredentialExpired) ||
		errors.Is(err, ErrInvalidKey) ||
		errors.Is(err, ErrIPNotAllowed)
}
