package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mail-code-service/internal/config"
)

func newTokenServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(tokenURL string) *Client {
	return NewClient(config.AuthConfig{
		TokenURL: tokenURL,
		Scope:    "https://graph.microsoft.com/.default",
	}, 5*time.Second)
}

func TestTokenRefreshGrant(t *testing.T) {
	srv := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "rt-1", r.Form.Get("refresh_token"))
		assert.Equal(t, "cid-1", r.Form.Get("client_id"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-1",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})

	c := newTestClient(srv.URL)
	token, err := c.Token(context.Background(), Credentials{RefreshToken: "rt-1", ClientID: "cid-1"})
	require.NoError(t, err)
	assert.Equal(t, "at-1", token)
}

func TestTokenPasswordGrant(t *testing.T) {
	srv := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "password", r.Form.Get("grant_type"))
		assert.Equal(t, "user@outlook.com", r.Form.Get("username"))
		assert.Equal(t, "hunter2", r.Form.Get("password"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-2",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})

	c := newTestClient(srv.URL)
	token, err := c.Token(context.Background(), Credentials{
		Email:    "user@outlook.com",
		Password: "hunter2",
		ClientID: "cid-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "at-2", token)
}

func TestTokenMissingClientID(t *testing.T) {
	c := newTestClient("http://127.0.0.1:0/token")

	_, err := c.Token(context.Background(), Credentials{RefreshToken: "rt"})
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, KindMissingClientID, authErr.Kind)
}

func TestTokenDefaultClientIDFromConfig(t *testing.T) {
	srv := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "default-cid", r.Form.Get("client_id"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-3",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})

	c := NewClient(config.AuthConfig{TokenURL: srv.URL, ClientID: "default-cid", Scope: "s"}, time.Second)
	token, err := c.Token(context.Background(), Credentials{RefreshToken: "rt"})
	require.NoError(t, err)
	assert.Equal(t, "at-3", token)
}

func errorServer(t *testing.T, status int, body map[string]any) *httptest.Server {
	return newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	})
}

func TestTokenClassification(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
		want Kind
	}{
		{
			name: "expired refresh token",
			body: map[string]any{"error": "invalid_grant", "error_description": "AADSTS50126: Error validating credentials"},
			want: KindInvalidGrant,
		},
		{
			name: "invalid_grant without code",
			body: map[string]any{"error": "invalid_grant", "error_description": "something went wrong"},
			want: KindInvalidGrant,
		},
		{
			name: "public client flow disabled",
			body: map[string]any{"error": "unauthorized_client", "error_description": "AADSTS7000218: The request body must contain client_assertion or client_secret"},
			want: KindClientFlowDisabled,
		},
		{
			name: "anything else",
			body: map[string]any{"error": "temporarily_unavailable", "error_description": "AADSTS90033: transient"},
			want: KindOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := errorServer(t, http.StatusBadRequest, tt.body)
			c := newTestClient(srv.URL)

			_, err := c.Token(context.Background(), Credentials{RefreshToken: "rt", ClientID: "cid"})
			var authErr *AuthError
			require.ErrorAs(t, err, &authErr)
			assert.Equal(t, tt.want, authErr.Kind)
		})
	}
}

func TestTokenTransportFailureIsNetworkError(t *testing.T) {
	srv := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {})
	url := srv.URL
	srv.Close()

	c := newTestClient(url)
	_, err := c.Token(context.Background(), Credentials{RefreshToken: "rt", ClientID: "cid"})
	var netErr *NetworkError
	assert.ErrorAs(t, err, &netErr)
}
