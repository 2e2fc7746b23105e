package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kabhishek18/apiguard/internal/auth"
	"github.com/kabhishek18/apiguard/internal/authz"
	"github.com/kabhishek18/apiguard/internal/observability"
	"github.com/kabhishek18/apiguard/internal/ratelimit"
	"github.com/kabhishek18/apiguard/internal/store"
)

// adminHandlers serves the administrative API: client registration,
// credential issuance and revocation, and usage queries.
type adminHandlers struct {
	store      store.Store
	hasher     auth.Hasher
	limiter    *ratelimit.ClientLimiter
	defaultTTL time.Duration
	logger     observability.Logger
}

type createClientRequest struct {
	Name              string   `json:"name" binding:"required"`
	Capabilities      []string `json:"capabilities"`
	RequestsPerMinute int      `json:"requests_per_minute"`
	RequestsPerHour   int      `json:"requests_per_hour"`
	IPAllowlist       []string `json:"ip_allowlist"`
}

// clientResponse renders a client with its capability names.
type clientResponse struct {
	*store.Client
	Capabilities []string `json:"capabilities"`
}

func renderClient(c *store.Client) clientResponse {
	return clientResponse{Client: c, Capabilities: c.Capabilities.Names()}
}

func (h *adminHandlers) createClient(c *gin.Context) {
	var req createClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, CodeBadRequest, err.Error(), nil)
		return
	}

	caps, err := authz.Parse(req.Capabilities)
	if err != nil {
		writeError(c, http.StatusBadRequest, CodeBadRequest, err.Error(), nil)
		return
	}

	now := time.Now().UTC()
	client := &store.Client{
		ID:                uuid.NewString(),
		Name:              req.Name,
		Active:            true,
		Capabilities:      caps,
		RequestsPerMinute: req.RequestsPerMinute,
		RequestsPerHour:   req.RequestsPerHour,
		IPAllowlist:       req.IPAllowlist,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := h.store.CreateClient(c.Request.Context(), client); err != nil {
		writeInternalError(c)
		return
	}

	h.logger.Info("client created",
		observability.String("client_id", client.ID),
		observability.String("name", client.Name),
	)

	c.JSON(http.StatusCreated, renderClient(client))
}

func (h *adminHandlers) listClients(c *gin.Context) {
	clients, err := h.store.ListClients(c.Request.Context())
	if err != nil {
		writeInternalError(c)
		return
	}

	out := make([]clientResponse, 0, len(clients))
	for _, client := range clients {
		out = append(out, renderClient(client))
	}
	c.JSON(http.StatusOK, gin.H{"clients": out})
}

func (h *adminHandlers) getClient(c *gin.Context) {
	client, err := h.store.GetClient(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(c, http.StatusNotFound, CodeNotFound, "client not found", nil)
			return
		}
		writeInternalError(c)
		return
	}
	c.JSON(http.StatusOK, renderClient(client))
}

func (h *adminHandlers) setClientActive(active bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := h.store.SetClientActive(c.Request.Context(), id, active); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(c, http.StatusNotFound, CodeNotFound, "client not found", nil)
				return
			}
			writeInternalError(c)
			return
		}

		h.logger.Info("client active state changed",
			observability.String("client_id", id),
			observability.Bool("active", active),
		)

		c.Status(http.StatusNoContent)
	}
}

type issueCredentialRequest struct {
	// TTLHours overrides the default credential lifetime.
	TTLHours int `json:"ttl_hours"`
}

// issuedCredential is returned exactly once at issuance; the plaintext
// key is never stored or shown again.
type issuedCredential struct {
	Credential *store.Credential `json:"credential"`
	APIKey     string            `json:"api_key"`
}

func (h *adminHandlers) issueCredential(c *gin.Context) {
	client, err := h.store.GetClient(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(c, http.StatusNotFound, CodeNotFound, "client not found", nil)
			return
		}
		writeInternalError(c)
		return
	}

	// An absent or empty body means default TTL.
	var req issueCredentialRequest
	_ = c.ShouldBindJSON(&req)

	issued, key, err := h.issue(c, client.ID, req.TTLHours)
	if err != nil {
		writeInternalError(c)
		return
	}

	c.JSON(http.StatusCreated, issuedCredential{Credential: issued, APIKey: key})
}

// issue generates a key, stores its hash, and returns the credential
// with the plaintext key.
func (h *adminHandlers) issue(c *gin.Context, clientID string, ttlHours int) (*store.Credential, string, error) {
	key, prefix, err := auth.GenerateKey()
	if err != nil {
		return nil, "", err
	}

	hash, err := h.hasher.Hash(key)
	if err != nil {
		return nil, "", err
	}

	encKey, err := auth.GenerateEncryptionKey()
	if err != nil {
		return nil, "", err
	}

	ttl := h.defaultTTL
	if ttlHours > 0 {
		ttl = time.Duration(ttlHours) * time.Hour
	}

	now := time.Now().UTC()
	cred := &store.Credential{
		ID:            uuid.NewString(),
		ClientID:      clientID,
		KeyHash:       hash,
		KeyPrefix:     prefix,
		EncryptionKey: encKey,
		Status:        store.StatusActive,
		ExpiresAt:     now.Add(ttl),
		CreatedAt:     now,
	}

	if err := h.store.CreateCredential(c.Request.Context(), cred); err != nil {
		return nil, "", err
	}

	h.logger.Info("credential issued",
		observability.String("client_id", clientID),
		observability.String("credential_id", cred.ID),
		observability.Time("expires_at", cred.ExpiresAt),
	)

	return cred, key, nil
}

func (h *adminHandlers) listCredentials(c *gin.Context) {
	creds, err := h.store.ListCredentials(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeInternalError(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"credentials": creds})
}

func (h *adminHandlers) revokeCredential(c *gin.Context) {
	id := c.Param("id")

	err := h.store.RevokeCredential(c.Request.Context(), id, time.Now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(c, http.StatusNotFound, CodeNotFound, "credential not found", nil)
		case errors.Is(err, store.ErrConflict):
			writeError(c, http.StatusConflict, CodeConflict, "credential is already in a terminal state", nil)
		default:
			writeInternalError(c)
		}
		return
	}

	h.logger.Info("credential revoked", observability.String("credential_id", id))

	c.Status(http.StatusNoContent)
}

// rotateCredentials revokes the client's active credentials and issues a
// fresh one in their place. Prior rows are preserved for history.
func (h *adminHandlers) rotateCredentials(c *gin.Context) {
	clientID := c.Param("id")

	if _, err := h.store.GetClient(c.Request.Context(), clientID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(c, http.StatusNotFound, CodeNotFound, "client not found", nil)
			return
		}
		writeInternalError(c)
		return
	}

	active, err := h.store.ActiveCredentials(c.Request.Context(), clientID)
	if err != nil {
		writeInternalError(c)
		return
	}

	now := time.Now().UTC()
	for _, cred := range active {
		if err := h.store.RevokeCredential(c.Request.Context(), cred.ID, now); err != nil {
			writeInternalError(c)
			return
		}
	}

	var req issueCredentialRequest
	_ = c.ShouldBindJSON(&req)

	issued, key, err := h.issue(c, clientID, req.TTLHours)
	if err != nil {
		writeInternalError(c)
		return
	}

	h.logger.Info("credentials rotated",
		observability.String("client_id", clientID),
		observability.Int("revoked", len(active)),
	)

	c.JSON(http.StatusCreated, issuedCredential{Credential: issued, APIKey: key})
}

// resetUsage zeroes the client's credential usage counters and clears
// its live rate-limit windows. The only sanctioned counter reset.
func (h *adminHandlers) resetUsage(c *gin.Context) {
	clientID := c.Param("id")

	if _, err := h.store.GetClient(c.Request.Context(), clientID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(c, http.StatusNotFound, CodeNotFound, "client not found", nil)
			return
		}
		writeInternalError(c)
		return
	}

	if err := h.store.ResetUsage(c.Request.Context(), clientID); err != nil {
		writeInternalError(c)
		return
	}

	if err := h.limiter.Reset(c.Request.Context(), clientID); err != nil {
		h.logger.Warn("failed to clear rate limit windows",
			observability.String("client_id", clientID),
			observability.Error(err),
		)
	}

	h.logger.Info("usage counters reset", observability.String("client_id", clientID))

	c.Status(http.StatusNoContent)
}

func (h *adminHandlers) recentUsage(c *gin.Context) {
	limit := 100
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			writeError(c, http.StatusBadRequest, CodeBadRequest, "limit must be between 1 and 1000", nil)
			return
		}
		limit = n
	}

	records, err := h.store.RecentUsage(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		writeInternalError(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{"usage": records})
}
