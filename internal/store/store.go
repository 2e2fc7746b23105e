package store

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict indicates that the operation conflicts with the
	// record's current state (duplicate id, terminal credential).
	ErrConflict = errors.New("conflicting record state")

	// ErrInvalidExpiry indicates that a credential's expiration is not
	// strictly after its creation time.
	ErrInvalidExpiry = errors.New("credential expiration must be after creation")
)

// ClientStore persists API client identity records.
type ClientStore interface {
	CreateClient(ctx context.Context, client *Client) error
	GetClient(ctx context.Context, id string) (*Client, error)
	ListClients(ctx context.Context) ([]*Client, error)
	UpdateClient(ctx context.Context, client *Client) error
	SetClientActive(ctx context.Context, id string, active bool) error
}

// CredentialStore persists credentials and their lifecycle state.
type CredentialStore interface {
	CreateCredential(ctx context.Context, cred *Credential) error
	GetCredential(ctx context.Context, id string) (*Credential, error)
	// ActiveCredentials returns the credentials in the active state for
	// a client. Expiry is evaluated lazily by the caller.
	ActiveCredentials(ctx context.Context, clientID string) ([]*Credential, error)
	ListCredentials(ctx context.Context, clientID string) ([]*Credential, error)
	RevokeCredential(ctx context.Context, id string, now time.Time) error
	// TouchCredential records a successful use: bumps last_used_at and
	// increments the monotonic usage counter.
	TouchCredential(ctx context.Context, id string, now time.Time) error
	// ResetUsage zeroes usage counters for a client's credentials.
	// Explicit administrative action, the only permitted reset.
	ResetUsage(ctx context.Context, clientID string) error
	// MarkExpired flips active credentials past their expiration to the
	// expired state. Housekeeping for reporting; authentication does
	// not depend on it.
	MarkExpired(ctx context.Context, now time.Time) (int64, error)
}

// UsageStore persists append-only usage records.
type UsageStore interface {
	AppendUsage(ctx context.Context, rec *UsageRecord) error
	RecentUsage(ctx context.Context, clientID string, limit int) ([]*UsageRecord, error)
}

// ContentStore persists the guarded blog content.
type ContentStore interface {
	CreatePost(ctx context.Context, post *Post) error
	GetPost(ctx context.Context, id string) (*Post, error)
	ListPosts(ctx context.Context) ([]*Post, error)
	UpdatePost(ctx context.Context, post *Post) error
	DeletePost(ctx context.Context, id string) error

	CreateCategory(ctx context.Context, cat *Category) error
	ListCategories(ctx context.Context) ([]*Category, error)
	DeleteCategory(ctx context.Context, id string) error
}

// Store aggregates all persistence interfaces.
type Store interface {
	ClientStore
	CredentialStore
	UsageStore
	ContentStore
}
