package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kabhishek18/apiguard/internal/authz"
	"github.com/kabhishek18/apiguard/internal/config"
	"github.com/kabhishek18/apiguard/internal/store"
)

func (e *testEnv) adminRequest(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+adminToken)

	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

type issuedResponse struct {
	Credential store.Credential `json:"credential"`
	APIKey     string           `json:"api_key"`
}

func TestAdminAuthRequired(t *testing.T) {
	e := newTestEnv(t, nil)

	w := e.request(http.MethodGet, "/admin/v1/clients", "", "", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, CodeUnauthorized, decodeError(t, w).Error.Code)

	req := httptest.NewRequest(http.MethodGet, "/admin/v1/clients", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminDisabledWithoutToken(t *testing.T) {
	e := newTestEnv(t, func(cfg *config.Config) {
		cfg.Admin.Token = ""
	})

	w := e.request(http.MethodGet, "/admin/v1/clients", "", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminClientLifecycle(t *testing.T) {
	e := newTestEnv(t, nil)

	w := e.adminRequest(http.MethodPost, "/admin/v1/clients",
		`{"name":"blog frontend","capabilities":["read_posts","write_posts"],
		  "requests_per_minute":10,"requests_per_hour":100}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var created clientResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.True(t, created.Active)
	assert.ElementsMatch(t, []string{"read_posts", "write_posts"}, created.Capabilities)

	w = e.adminRequest(http.MethodGet, "/admin/v1/clients", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "blog frontend")

	w = e.adminRequest(http.MethodGet, "/admin/v1/clients/"+created.ID, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = e.adminRequest(http.MethodPost, "/admin/v1/clients/"+created.ID+"/deactivate", "")
	require.Equal(t, http.StatusNoContent, w.Code)

	got, err := e.store.GetClient(t.Context(), created.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	w = e.adminRequest(http.MethodPost, "/admin/v1/clients/"+created.ID+"/activate", "")
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestAdminCreateClient_UnknownCapability(t *testing.T) {
	e := newTestEnv(t, nil)

	w := e.adminRequest(http.MethodPost, "/admin/v1/clients",
		`{"name":"x","capabilities":["root"]}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeBadRequest, decodeError(t, w).Error.Code)
}

func TestAdminIssueAndUseCredential(t *testing.T) {
	e := newTestEnv(t, nil)

	w := e.adminRequest(http.MethodPost, "/admin/v1/clients",
		`{"name":"reader","capabilities":["read_posts"]}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var client clientResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &client))

	w = e.adminRequest(http.MethodPost, "/admin/v1/clients/"+client.ID+"/credentials", "")
	require.Equal(t, http.StatusCreated, w.Code)

	var issued issuedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &issued))
	assert.True(t, strings.HasPrefix(issued.APIKey, "ak_"))
	assert.Equal(t, store.StatusActive, issued.Credential.Status)
	assert.Equal(t, issued.APIKey[:8], issued.Credential.KeyPrefix)

	// The store holds only the hash; the listing never leaks it.
	w = e.adminRequest(http.MethodGet, "/admin/v1/clients/"+client.ID+"/credentials", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), issued.APIKey)
	assert.NotContains(t, w.Body.String(), "key_hash")

	// The issued key authenticates immediately.
	w = e.request(http.MethodGet, "/api/v1/posts", client.ID, issued.APIKey, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminRevokeCredential(t *testing.T) {
	e := newTestEnv(t, nil)

	w := e.adminRequest(http.MethodPost, "/admin/v1/clients",
		`{"name":"reader","capabilities":["read_posts"]}`)
	var client clientResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &client))

	w = e.adminRequest(http.MethodPost, "/admin/v1/clients/"+client.ID+"/credentials", "")
	var issued issuedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &issued))

	w = e.adminRequest(http.MethodPost, "/admin/v1/credentials/"+issued.Credential.ID+"/revoke", "")
	require.Equal(t, http.StatusNoContent, w.Code)

	// Revocation takes effect on the next attempt.
	w = e.request(http.MethodGet, "/api/v1/posts", client.ID, issued.APIKey, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, CodeAuthenticationFailed, decodeError(t, w).Error.Code)

	// Terminal states are final.
	w = e.adminRequest(http.MethodPost, "/admin/v1/credentials/"+issued.Credential.ID+"/revoke", "")
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestAdminRotateCredentials(t *testing.T) {
	e := newTestEnv(t, nil)

	w := e.adminRequest(http.MethodPost, "/admin/v1/clients",
		`{"name":"reader","capabilities":["read_posts"]}`)
	var client clientResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &client))

	w = e.adminRequest(http.MethodPost, "/admin/v1/clients/"+client.ID+"/credentials", "")
	var old issuedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &old))

	w = e.adminRequest(http.MethodPost, "/admin/v1/clients/"+client.ID+"/credentials/rotate", "")
	require.Equal(t, http.StatusCreated, w.Code)
	var fresh issuedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fresh))
	assert.NotEqual(t, old.APIKey, fresh.APIKey)

	// The old key is revoked, the new one works.
	w = e.request(http.MethodGet, "/api/v1/posts", client.ID, old.APIKey, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.request(http.MethodGet, "/api/v1/posts", client.ID, fresh.APIKey, "")
	assert.Equal(t, http.StatusOK, w.Code)

	// History preserved: both rows still exist.
	creds, err := e.store.ListCredentials(t.Context(), client.ID)
	require.NoError(t, err)
	assert.Len(t, creds, 2)
}

func TestAdminUsageResetAndQuery(t *testing.T) {
	e := newTestEnv(t, nil)
	clientID, key := e.seedClient(t, authz.CapReadPosts, 1, 1000, nil)

	w := e.request(http.MethodGet, "/api/v1/posts", clientID, key, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = e.request(http.MethodGet, "/api/v1/posts", clientID, key, "")
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	// The reset clears the live window, so the next request passes.
	w = e.adminRequest(http.MethodPost, "/admin/v1/clients/"+clientID+"/usage/reset", "")
	require.Equal(t, http.StatusNoContent, w.Code)

	w = e.request(http.MethodGet, "/api/v1/posts", clientID, key, "")
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, e.recorder.Close())

	w = e.adminRequest(http.MethodGet, "/admin/v1/clients/"+clientID+"/usage?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/v1/posts")

	w = e.adminRequest(http.MethodGet, "/admin/v1/clients/"+clientID+"/usage?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminGetMissingClient(t *testing.T) {
	e := newTestEnv(t, nil)

	w := e.adminRequest(http.MethodGet, "/admin/v1/clients/nope", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, CodeNotFound, decodeError(t, w).Error.Code)
}
