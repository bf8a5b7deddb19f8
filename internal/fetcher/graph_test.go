package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraphFetcherListMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		assert.Equal(t, "eventual", r.Header.Get("ConsistencyLevel"))
		assert.Equal(t, "/me/messages", r.URL.Path)
		assert.Equal(t, "50", r.URL.Query().Get("$top"))
		assert.Equal(t, "subject,body,from,receivedDateTime", r.URL.Query().Get("$select"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]any{
				{
					"subject": "Your Uber verification code",
					"body":    map[string]any{"contentType": "html", "content": "<p>123456</p>"},
					"from": map[string]any{
						"emailAddress": map[string]any{"address": "admin@uber.com"},
					},
					"receivedDateTime": "2024-05-01T10:00:00Z",
				},
			},
		})
	}))
	t.Cleanup(srv.Close)

	f := NewGraphFetcher(srv.URL, "token-1", 50, time.Second)
	messages, err := f.ListMessages(context.Background())
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "Your Uber verification code", messages[0].Subject)
	assert.Equal(t, "admin@uber.com", messages[0].From)
	assert.True(t, messages[0].BodyIsHTML)
	assert.Equal(t, "2024-05-01T10:00:00Z", messages[0].Received)
}

func TestGraphFetcherMailboxError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error": {"code": "ErrorAccessDenied"}}`))
	}))
	t.Cleanup(srv.Close)

	f := NewGraphFetcher(srv.URL, "token-1", 50, time.Second)
	_, err := f.ListMessages(context.Background())
	var mailboxErr *MailboxError
	require.ErrorAs(t, err, &mailboxErr)
	assert.Equal(t, http.StatusForbidden, mailboxErr.StatusCode)
	assert.Contains(t, mailboxErr.Body, "ErrorAccessDenied")
}

func TestGraphFetcherNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	f := NewGraphFetcher(url, "token-1", 50, time.Second)
	_, err := f.ListMessages(context.Background())
	var netErr *NetworkError
	assert.ErrorAs(t, err, &netErr)
}

func TestGraphFetcherResolveEmail(t *testing.T) {
	tests := []struct {
		name    string
		profile map[string]any
		want    string
	}{
		{"prefers mail", map[string]any{"mail": "real@outlook.com", "userPrincipalName": "upn@outlook.com"}, "real@outlook.com"},
		{"falls back to upn", map[string]any{"userPrincipalName": "upn@outlook.com"}, "upn@outlook.com"},
		{"both missing", map[string]any{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/me", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(tt.profile)
			}))
			t.Cleanup(srv.Close)

			f := NewGraphFetcher(srv.URL, "token-1", 50, time.Second)
			email, err := f.ResolveEmail(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, email)
		})
	}
}
