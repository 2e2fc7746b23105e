package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kabhishek18/apiguard/internal/observability"
	"github.com/kabhishek18/apiguard/internal/store"
)

// Authenticator validates client ID + secret key pairs against the
// credential store.
type Authenticator struct {
	clients store.ClientStore
	creds   store.CredentialStore
	hasher  Hasher
	logger  observability.Logger
	metrics *Metrics
	now     func() time.Time
}

// Option is a functional option for the Authenticator.
type Option func(*Authenticator)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(a *Authenticator) {
		a.logger = logger
	}
}

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(a *Authenticator) {
		a.metrics = metrics
	}
}

// WithClock sets the time source. Used by tests to pin the expiry
// boundary.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) {
		a.now = now
	}
}

// NewAuthenticator creates a new Authenticator.
func NewAuthenticator(clients store.ClientStore, creds store.CredentialStore, hasher Hasher, opts ...Option) *Authenticator {
	a := &Authenticator{
		clients: clients,
		creds:   creds,
		hasher:  hasher,
		logger:  observability.NopLogger(),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Hasher returns the hasher used to verify secrets. Credential issuance
// must hash new keys with the same algorithm.
func (a *Authenticator) Hasher() Hasher {
	return a.hasher
}

// Authenticate verifies the claimed client identifier and presented
// secret. On success it returns the authenticated principal and records
// credential usage best-effort: a failed usage update is logged, never
// surfaced.
//
// Client-caused failures map to the sentinel errors in this package;
// anything else is an internal store failure and is wrapped distinctly
// so the transport layer reports a server error instead of blaming the
// caller's credentials.
func (a *Authenticator) Authenticate(ctx context.Context, clientID, key string) (*Principal, error) {
	start := a.now()

	if clientID == "" || key == "" {
		a.metrics.RecordValidation("error", "missing_credentials", a.now().Sub(start))
		return nil, ErrNoCredentials
	}

	client, err := a.clients.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			a.metrics.RecordValidation("error", "unknown_client", a.now().Sub(start))
			return nil, ErrInvalidClient
		}
		a.metrics.RecordValidation("error", "store_error", a.now().Sub(start))
		return nil, fmt.Errorf("look up client: %w", err)
	}

	// A deactivated client fails immediately, regardless of the state of
	// its individual credentials.
	if !client.Active {
		a.metrics.RecordValidation("error", "inactive_client", a.now().Sub(start))
		return nil, ErrInactiveClient
	}

	creds, err := a.creds.ActiveCredentials(ctx, clientID)
	if err != nil {
		a.metrics.RecordValidation("error", "store_error", a.now().Sub(start))
		return nil, fmt.Errorf("load credentials: %w", err)
	}

	now := a.now()
	for _, cred := range creds {
		if !a.hasher.Compare(key, cred.KeyHash) {
			continue
		}

		// Expiry is evaluated lazily, here, at authentication time.
		if cred.Expired(now) {
			a.metrics.RecordValidation("error", "expired", a.now().Sub(start))
			return nil, ErrCredentialExpired
		}

		a.touch(ctx, cred.ID, now)

		a.metrics.RecordValidation("success", "valid", a.now().Sub(start))
		a.logger.Debug("client authenticated",
			observability.String("client_id", client.ID),
			observability.String("credential_id", cred.ID),
		)

		return NewPrincipal(client, cred, now), nil
	}

	a.metrics.RecordValidation("error", "invalid_key", a.now().Sub(start))
	return nil, ErrInvalidKey
}

// touch records the successful use of a credential. Best-effort: the
// usage counter is advisory telemetry and a failed write must not fail
// the authenticated request.
func (a *Authenticator) touch(ctx context.Context, credentialID string, now time.Time) {
	if err := a.creds.TouchCredential(ctx, credentialID, now); err != nil {
		a.logger.Warn("failed to record credential use",
			observability.String("credential_id", credentialID),
			observability.Error(err),
		)
	}
}
