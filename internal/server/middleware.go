package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kabhishek18/apiguard/internal/audit"
	"github.com/kabhishek18/apiguard/internal/auth"
	"github.com/kabhishek18/apiguard/internal/authz"
	"github.com/kabhishek18/apiguard/internal/observability"
	"github.com/kabhishek18/apiguard/internal/ratelimit"
	"github.com/kabhishek18/apiguard/internal/store"
)

// Request and response header names.
const (
	HeaderClientID  = "X-Client-ID"
	HeaderAPIKey    = "X-API-Key"
	HeaderRequestID = "X-Request-ID"

	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter         = "Retry-After"
)

const requestIDKey = "request_id"

// RequestID assigns each request a unique identifier, echoes it in the
// response, and propagates it through the request context for logging.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}

		c.Set(requestIDKey, id)
		c.Header(HeaderRequestID, id)

		ctx := observability.ContextWithRequestID(c.Request.Context(), id)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// requestIDFrom returns the request ID assigned by the RequestID
// middleware.
func requestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// Recovery converts panics into the uniform error envelope.
func Recovery(logger observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered",
					observability.String("path", c.Request.URL.Path),
					observability.String("request_id", requestIDFrom(c)),
					observability.Any("panic", r),
				)
				writeInternalError(c)
			}
		}()
		c.Next()
	}
}

// EnforceHTTPS rejects requests that did not arrive over TLS, directly
// or behind a proxy that sets X-Forwarded-Proto.
func EnforceHTTPS() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
			c.Next()
			return
		}
		writeError(c, http.StatusForbidden, CodeHTTPSRequired, "HTTPS is required", nil)
	}
}

// Authenticate validates the client ID and API key headers, optionally
// enforces the client's IP allowlist, and attaches the authenticated
// principal to the request context.
func Authenticate(authenticator *auth.Authenticator, enforceAllowlist bool, logger observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.GetHeader(HeaderClientID)
		key := c.GetHeader(HeaderAPIKey)

		principal, err := authenticator.Authenticate(c.Request.Context(), clientID, key)
		if err != nil {
			if !auth.IsClientError(err) {
				logger.Error("authentication store failure",
					observability.String("request_id", requestIDFrom(c)),
					observability.Error(err),
				)
			}
			writeAuthError(c, err)
			return
		}

		if enforceAllowlist && !auth.IPAllowed(principal.IPAllowlist, c.ClientIP()) {
			logger.Warn("request from disallowed IP",
				observability.String("client_id", principal.ClientID),
				observability.String("ip", c.ClientIP()),
			)
			writeAuthError(c, auth.ErrIPNotAllowed)
			return
		}

		ctx := auth.ContextWithPrincipal(c.Request.Context(), principal)
		ctx = observability.ContextWithClientID(ctx, principal.ClientID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// RequireCapability rejects requests from clients lacking the given
// capability. Must run after Authenticate.
func RequireCapability(required authz.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := auth.PrincipalFromContext(c.Request.Context())
		if !ok {
			writeError(c, http.StatusUnauthorized, CodeAuthenticationFailed, "authentication required", nil)
			return
		}

		if err := authz.Check(principal.Capabilities, required); err != nil {
			writePermissionError(c, err)
			return
		}

		c.Next()
	}
}

// RateLimit enforces the client's per-minute and per-hour quotas. Quota
// state is advanced before the request proceeds, so concurrent requests
// beyond the quota are rejected deterministically. Must run after
// Authenticate.
func RateLimit(limiter *ratelimit.ClientLimiter, logger observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := auth.PrincipalFromContext(c.Request.Context())
		if !ok {
			writeError(c, http.StatusUnauthorized, CodeAuthenticationFailed, "authentication required", nil)
			return
		}

		decision, err := limiter.Check(c.Request.Context(), principal.ClientID,
			principal.RequestsPerMinute, principal.RequestsPerHour)
		if err != nil {
			// A broken counter store must not take the API down. The
			// request proceeds unthrottled and the failure is logged.
			logger.Error("rate limit check failed",
				observability.String("client_id", principal.ClientID),
				observability.Error(err),
			)
			c.Next()
			return
		}

		c.Header(HeaderRateLimitLimit, strconv.Itoa(decision.Minute.Limit))
		c.Header(HeaderRateLimitRemaining, strconv.Itoa(decision.Minute.Remaining))
		c.Header(HeaderRateLimitReset, strconv.Itoa(int(decision.Minute.ResetAfter.Seconds())))

		if !decision.Allowed {
			retryAfter := int(decision.RetryAfter().Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header(HeaderRetryAfter, strconv.Itoa(retryAfter))

			writeError(c, http.StatusTooManyRequests, CodeRateLimitExceeded,
				"rate limit exceeded", map[string]interface{}{
					"retry_after": retryAfter,
					"scope":       decision.Scope,
				})
			return
		}

		c.Next()
	}
}

// RecordUsage appends a usage record for every authenticated request
// after the handler completes. Recording is asynchronous and never
// affects the response.
func RecordUsage(recorder *audit.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		principal, ok := auth.PrincipalFromContext(c.Request.Context())
		if !ok {
			return
		}

		recorder.Record(&store.UsageRecord{
			ID:             uuid.NewString(),
			ClientID:       principal.ClientID,
			CredentialID:   principal.CredentialID,
			RequestID:      requestIDFrom(c),
			Endpoint:       c.FullPath(),
			Method:         c.Request.Method,
			StatusCode:     c.Writer.Status(),
			ResponseTimeMS: time.Since(start).Milliseconds(),
			ClientIP:       c.ClientIP(),
			UserAgent:      c.Request.UserAgent(),
			CreatedAt:      time.Now().UTC(),
		})
	}
}

// AdminAuth guards the administrative API with a static bearer token.
func AdminAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			writeError(c, http.StatusNotFound, CodeNotFound, "admin API is disabled", nil)
			return
		}

		if c.GetHeader("Authorization") != "Bearer "+token {
			writeError(c, http.StatusUnauthorized, CodeUnauthorized, "invalid admin token", nil)
			return
		}

		c.Next()
	}
}
