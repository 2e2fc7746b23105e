// Package store provides the relational persistence layer for apiguard:
// clients, credentials, usage records, and the guarded blog content.
package store

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/kabhishek18/apiguard/internal/authz"
)

// Client is an API client identity record. Clients are soft-deactivated,
// never hard-deleted, so usage records always have a valid referent.
type Client struct {
	ID                string           `db:"id" json:"id"`
	Name              string           `db:"name" json:"name"`
	Active            bool             `db:"active" json:"active"`
	Capabilities      authz.Capability `db:"capabilities" json:"-"`
	RequestsPerMinute int              `db:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int              `db:"requests_per_hour" json:"requests_per_hour"`
	IPAllowlist       StringList       `db:"ip_allowlist" json:"ip_allowlist,omitempty"`
	CreatedAt         time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time        `db:"updated_at" json:"updated_at"`
}

// CredentialStatus is the lifecycle state of a credential.
type CredentialStatus string

// Credential lifecycle states. Expired and Revoked are terminal; a new
// credential must be issued for continued access.
const (
	StatusPending CredentialStatus = "pending"
	StatusActive  CredentialStatus = "active"
	StatusExpired CredentialStatus = "expired"
	StatusRevoked CredentialStatus = "revoked"
)

// Credential is a secret key issued to a client. Only the one-way hash of
// the secret is stored. A client may hold multiple credentials over time;
// rotation issues a new row and revokes the prior one.
type Credential struct {
	ID            string           `db:"id" json:"id"`
	ClientID      string           `db:"client_id" json:"client_id"`
	KeyHash       string           `db:"key_hash" json:"-"`
	KeyPrefix     string           `db:"key_prefix" json:"key_prefix"`
	EncryptionKey string           `db:"encryption_key" json:"-"`
	Status        CredentialStatus `db:"status" json:"status"`
	ExpiresAt     time.Time        `db:"expires_at" json:"expires_at"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	RevokedAt     *time.Time       `db:"revoked_at" json:"revoked_at,omitempty"`
	LastUsedAt    *time.Time       `db:"last_used_at" json:"last_used_at,omitempty"`
	UsageCount    int64            `db:"usage_count" json:"usage_count"`
}

// Expired reports whether the credential is past its expiration at now.
func (c *Credential) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// UsageRecord is an immutable append-only log entry for one request.
type UsageRecord struct {
	ID             string    `db:"id" json:"id"`
	ClientID       string    `db:"client_id" json:"client_id"`
	CredentialID   string    `db:"credential_id" json:"credential_id"`
	RequestID      string    `db:"request_id" json:"request_id"`
	Endpoint       string    `db:"endpoint" json:"endpoint"`
	Method         string    `db:"method" json:"method"`
	StatusCode     int       `db:"status_code" json:"status_code"`
	ResponseTimeMS int64     `db:"response_time_ms" json:"response_time_ms"`
	ClientIP       string    `db:"client_ip" json:"client_ip"`
	UserAgent      string    `db:"user_agent" json:"user_agent"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Post is a blog post in the guarded content API.
type Post struct {
	ID        string    `db:"id" json:"id"`
	Title     string    `db:"title" json:"title"`
	Slug      string    `db:"slug" json:"slug"`
	Body      string    `db:"body" json:"body"`
	Category  string    `db:"category" json:"category,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Category is a blog post category.
type Category struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Slug      string    `db:"slug" json:"slug"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// StringList stores a list of strings as a single comma-separated column.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	return strings.Join(l, ","), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*l = nil
	case string:
		if v == "" {
			*l = nil
			return nil
		}
		*l = strings.Split(v, ",")
	case []byte:
		return l.Scan(string(v))
	default:
		return fmt.Errorf("cannot scan %T into StringList", src)
	}
	return nil
}
