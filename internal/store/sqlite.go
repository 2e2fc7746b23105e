package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // sqlite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS clients (
	id                  TEXT PRIMARY KEY,
	name                TEXT NOT NULL,
	active              BOOLEAN NOT NULL DEFAULT 1,
	capabilities        INTEGER NOT NULL DEFAULT 0,
	requests_per_minute INTEGER NOT NULL,
	requests_per_hour   INTEGER NOT NULL,
	ip_allowlist        TEXT NOT NULL DEFAULT '',
	created_at          TIMESTAMP NOT NULL,
	updated_at          TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS credentials (
	id             TEXT PRIMARY KEY,
	client_id      TEXT NOT NULL REFERENCES clients(id),
	key_hash       TEXT NOT NULL,
	key_prefix     TEXT NOT NULL,
	encryption_key TEXT NOT NULL,
	status         TEXT NOT NULL,
	expires_at     TIMESTAMP NOT NULL,
	created_at     TIMESTAMP NOT NULL,
	revoked_at     TIMESTAMP,
	last_used_at   TIMESTAMP,
	usage_count    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_credentials_client ON credentials(client_id, status);

CREATE TABLE IF NOT EXISTS usage_records (
	id               TEXT PRIMARY KEY,
	client_id        TEXT NOT NULL,
	credential_id    TEXT NOT NULL,
	request_id       TEXT NOT NULL,
	endpoint         TEXT NOT NULL,
	method           TEXT NOT NULL,
	status_code      INTEGER NOT NULL,
	response_time_ms INTEGER NOT NULL,
	client_ip        TEXT NOT NULL,
	user_agent       TEXT NOT NULL,
	created_at       TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_client_time ON usage_records(client_id, created_at);

CREATE TABLE IF NOT EXISTS posts (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	slug       TEXT NOT NULL UNIQUE,
	body       TEXT NOT NULL,
	category   TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS categories (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	slug       TEXT NOT NULL UNIQUE,
	created_at TIMESTAMP NOT NULL
);
`

// SQLStore implements Store backed by sqlite via sqlx.
type SQLStore struct {
	db *sqlx.DB
}

// Open connects to the database and bootstraps the schema.
func Open(driver, dsn string, maxOpen, maxIdle int) (*SQLStore, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)

	s := &SQLStore{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// New wraps an existing database handle without running migrations.
func New(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Migrate creates the schema if it does not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// DB returns the underlying database handle.
func (s *SQLStore) DB() *sqlx.DB {
	return s.db
}

// Ping verifies database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// ----------------------------------------------------------------------
// ClientStore
// ----------------------------------------------------------------------

// CreateClient inserts a new client record.
func (s *SQLStore) CreateClient(ctx context.Context, client *Client) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO clients (id, name, active, capabilities, requests_per_minute,
			requests_per_hour, ip_allowlist, created_at, updated_at)
		VALUES (:id, :name, :active, :capabilities, :requests_per_minute,
			:requests_per_hour, :ip_allowlist, :created_at, :updated_at)`,
		client)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("create client: %w", err)
	}
	return nil
}

// GetClient fetches a client by id.
func (s *SQLStore) GetClient(ctx context.Context, id string) (*Client, error) {
	var client Client
	err := s.db.GetContext(ctx, &client, `SELECT * FROM clients WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	return &client, nil
}

// ListClients returns all clients ordered by creation time.
func (s *SQLStore) ListClients(ctx context.Context) ([]*Client, error) {
	var clients []*Client
	err := s.db.SelectContext(ctx, &clients, `SELECT * FROM clients ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	return clients, nil
}

// UpdateClient updates a client's mutable fields.
func (s *SQLStore) UpdateClient(ctx context.Context, client *Client) error {
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE clients SET name = :name, active = :active,
			capabilities = :capabilities,
			requests_per_minute = :requests_per_minute,
			requests_per_hour = :requests_per_hour,
			ip_allowlist = :ip_allowlist,
			updated_at = :updated_at
		WHERE id = :id`,
		client)
	if err != nil {
		return fmt.Errorf("update client: %w", err)
	}
	return requireRow(res)
}

// SetClientActive flips the soft-deactivation flag.
func (s *SQLStore) SetClientActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE clients SET active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set client active: %w", err)
	}
	return requireRow(res)
}

// ----------------------------------------------------------------------
// CredentialStore
// ----------------------------------------------------------------------

// CreateCredential inserts a new credential. The expiration must be
// strictly after the creation time.
func (s *SQLStore) CreateCredential(ctx context.Context, cred *Credential) error {
	if !cred.ExpiresAt.After(cred.CreatedAt) {
		return ErrInvalidExpiry
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO credentials (id, client_id, key_hash, key_prefix,
			encryption_key, status, expires_at, created_at, revoked_at,
			last_used_at, usage_count)
		VALUES (:id, :client_id, :key_hash, :key_prefix, :encryption_key,
			:status, :expires_at, :created_at, :revoked_at, :last_used_at,
			:usage_count)`,
		cred)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("create credential: %w", err)
	}
	return nil
}

// GetCredential fetches a credential by id.
func (s *SQLStore) GetCredential(ctx context.Context, id string) (*Credential, error) {
	var cred Credential
	err := s.db.GetContext(ctx, &cred, `SELECT * FROM credentials WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return &cred, nil
}

// ActiveCredentials returns the active-state credentials for a client.
func (s *SQLStore) ActiveCredentials(ctx context.Context, clientID string) ([]*Credential, error) {
	var creds []*Credential
	err := s.db.SelectContext(ctx, &creds,
		`SELECT * FROM credentials WHERE client_id = ? AND status = ? ORDER BY created_at DESC`,
		clientID, StatusActive)
	if err != nil {
		return nil, fmt.Errorf("active credentials: %w", err)
	}
	return creds, nil
}

// ListCredentials returns all credentials for a client, newest first.
func (s *SQLStore) ListCredentials(ctx context.Context, clientID string) ([]*Credential, error) {
	var creds []*Credential
	err := s.db.SelectContext(ctx, &creds,
		`SELECT * FROM credentials WHERE client_id = ? ORDER BY created_at DESC`,
		clientID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return creds, nil
}

// RevokeCredential moves a credential to the terminal revoked state.
// Terminal credentials stay as they are: revocation is irreversible and
// expired credentials keep their state for reporting.
func (s *SQLStore) RevokeCredential(ctx context.Context, id string, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE credentials SET status = ?, revoked_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		StatusRevoked, now.UTC(), id, StatusActive, StatusPending)
	if err != nil {
		return fmt.Errorf("revoke credential: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke credential: %w", err)
	}
	if n == 0 {
		// Distinguish a missing credential from one already terminal.
		if _, getErr := s.GetCredential(ctx, id); getErr != nil {
			return getErr
		}
		return ErrConflict
	}
	return nil
}

// TouchCredential records a successful authentication. The usage counter
// is monotonic; lost updates under concurrency are tolerated since this
// is advisory telemetry.
func (s *SQLStore) TouchCredential(ctx context.Context, id string, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE credentials SET last_used_at = ?, usage_count = usage_count + 1 WHERE id = ?`,
		now.UTC(), id)
	if err != nil {
		return fmt.Errorf("touch credential: %w", err)
	}
	return nil
}

// ResetUsage zeroes usage counters for all of a client's credentials.
func (s *SQLStore) ResetUsage(ctx context.Context, clientID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE credentials SET usage_count = 0 WHERE client_id = ?`, clientID)
	if err != nil {
		return fmt.Errorf("reset usage: %w", err)
	}
	return nil
}

// MarkExpired flips active credentials past their expiration.
func (s *SQLStore) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE credentials SET status = ? WHERE status = ? AND expires_at < ?`,
		StatusExpired, StatusActive, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("mark expired: %w", err)
	}
	return res.RowsAffected()
}

// ----------------------------------------------------------------------
// UsageStore
// ----------------------------------------------------------------------

// AppendUsage inserts an immutable usage record.
func (s *SQLStore) AppendUsage(ctx context.Context, rec *UsageRecord) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO usage_records (id, client_id, credential_id, request_id,
			endpoint, method, status_code, response_time_ms, client_ip,
			user_agent, created_at)
		VALUES (:id, :client_id, :credential_id, :request_id, :endpoint,
			:method, :status_code, :response_time_ms, :client_ip,
			:user_agent, :created_at)`,
		rec)
	if err != nil {
		return fmt.Errorf("append usage: %w", err)
	}
	return nil
}

// RecentUsage returns the newest usage records for a client.
func (s *SQLStore) RecentUsage(ctx context.Context, clientID string, limit int) ([]*UsageRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var recs []*UsageRecord
	err := s.db.SelectContext(ctx, &recs,
		`SELECT * FROM usage_records WHERE client_id = ? ORDER BY created_at DESC LIMIT ?`,
		clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent usage: %w", err)
	}
	return recs, nil
}

// ----------------------------------------------------------------------
// helpers
// ----------------------------------------------------------------------

// requireRow converts a zero-row update into ErrNotFound.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// isUniqueViolation reports whether the error is a sqlite unique
// constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
