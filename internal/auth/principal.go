package auth

import (
	"context"
	"time"

	"github.com/kabhishek18/apiguard/internal/authz"
	"github.com/kabhishek18/apiguard/internal/store"
)

// Principal is an authenticated API client.
type Principal struct {
	// ClientID is the unique client identifier.
	ClientID string `json:"client_id"`

	// ClientName is the client's display name.
	ClientName string `json:"client_name,omitempty"`

	// CredentialID is the credential that matched.
	CredentialID string `json:"credential_id"`

	// Capabilities are the client's granted capabilities.
	Capabilities authz.Capability `json:"-"`

	// RequestsPerMinute and RequestsPerHour are the client's quotas.
	RequestsPerMinute int `json:"-"`
	RequestsPerHour   int `json:"-"`

	// IPAllowlist is the client's allowed source addresses. Empty means
	// any source is allowed.
	IPAllowlist []string `json:"-"`

	// ExpiresAt is when the matched credential expires.
	ExpiresAt time.Time `json:"expires_at"`

	// AuthTime is when authentication occurred.
	AuthTime time.Time `json:"auth_time"`
}

// NewPrincipal builds a Principal from a client and its matched credential.
func NewPrincipal(client *store.Client, cred *store.Credential, now time.Time) *Principal {
	return &Principal{
		ClientID:          client.ID,
		ClientName:        client.Name,
		CredentialID:      cred.ID,
		Capabilities:      client.Capabilities,
		RequestsPerMinute: client.RequestsPerMinute,
		RequestsPerHour:   client.RequestsPerHour,
		IPAllowlist:       client.IPAllowlist,
		ExpiresAt:         cred.ExpiresAt,
		AuthTime:          now,
	}
}

type principalContextKey struct{}

// ContextWithPrincipal stores the authenticated principal in the context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*Principal)
	return p, ok
}
