// Package server implements the HTTP surface of apiguard: the guarded
// content API, the administrative API, and the middleware chain that
// authenticates, authorizes, rate limits, and records every request.
package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kabhishek18/apiguard/internal/auth"
	"github.com/kabhishek18/apiguard/internal/authz"
)

// Machine-readable error codes returned in the error envelope.
const (
	CodeInvalidClientID      = "INVALID_CLIENT_ID"
	CodeAuthenticationFailed = "AUTHENTICATION_FAILED"
	CodeKeyExpired           = "KEY_EXPIRED"
	CodePermissionDenied     = "PERMISSION_DENIED"
	CodeRateLimitExceeded    = "RATE_LIMIT_EXCEEDED"
	CodeIPNotAllowed         = "IP_NOT_ALLOWED"
	CodeHTTPSRequired        = "HTTPS_REQUIRED"
	CodeNotFound             = "NOT_FOUND"
	CodeBadRequest           = "BAD_REQUEST"
	CodeConflict             = "CONFLICT"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeInternalError        = "INTERNAL_ERROR"
)

// ErrorBody is the inner error object of the envelope.
type ErrorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ErrorResponse is the uniform error envelope for all failure responses.
type ErrorResponse struct {
	Error     ErrorBody `json:"error"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// writeError sends the error envelope and aborts the request.
func writeError(c *gin.Context, status int, code, message string, details map[string]interface{}) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
		Timestamp: time.Now().UTC(),
		RequestID: requestIDFrom(c),
	})
}

// writeAuthError maps an authentication failure to its envelope. Internal
// store failures are reported as a server error, never blamed on the
// caller's credentials.
func writeAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidClient):
		writeError(c, http.StatusUnauthorized, CodeInvalidClientID, "unknown client ID", nil)
	case errors.Is(err, auth.ErrCredentialExpired):
		writeError(c, http.StatusUnauthorized, CodeKeyExpired, "API key has expired", nil)
	case errors.Is(err, auth.ErrInactiveClient):
		// A deactivated client is a permission failure, not a bad secret.
		writeError(c, http.StatusForbidden, CodeAuthenticationFailed, "client is deactivated", nil)
	case errors.Is(err, auth.ErrIPNotAllowed):
		writeError(c, http.StatusForbidden, CodeIPNotAllowed, "request IP address not allowed", nil)
	case auth.IsClientError(err):
		writeError(c, http.StatusUnauthorized, CodeAuthenticationFailed, "authentication failed", nil)
	default:
		writeInternalError(c)
	}
}

// writePermissionError maps a capability failure to its envelope.
func writePermissionError(c *gin.Context, err error) {
	details := map[string]interface{}{}
	var perr *authz.PermissionError
	if errors.As(err, &perr) {
		details["required"] = perr.Required.Names()
		details["missing"] = perr.Missing.Names()
	}
	writeError(c, http.StatusForbidden, CodePermissionDenied, "client lacks the required capability", details)
}

// writeInternalError sends a generic server error without leaking the
// cause to the caller.
func writeInternalError(c *gin.Context) {
	writeError(c, http.StatusInternalServerError, CodeInternalError, "internal server error", nil)
}
