package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mail-code-service/internal/audit"
	"mail-code-service/internal/auth"
	"mail-code-service/internal/config"
	"mail-code-service/internal/fetcher"
	"mail-code-service/internal/metrics"
	"mail-code-service/internal/service"
	"mail-code-service/internal/store"
)

func newTestRouter(t *testing.T) (*gin.Engine, *store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := store.New(t.TempDir())
	require.NoError(t, err)

	m := metrics.NewMetricsWith(prometheus.NewRegistry())
	authClient := auth.NewClient(config.AuthConfig{TokenURL: "http://127.0.0.1:0/token", Scope: "s"}, time.Second)
	factory := func(accessToken, email string) fetcher.EmailFetcher { return nil }

	codes := service.NewCodeService(authClient, st, factory, m)
	accounts := service.NewAccountService(st, audit.New(nil), m)

	h := NewHandlers(codes, accounts, st, nil)
	router := gin.New()
	h.SetupRoutes(router)
	return router, st
}

func doJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSaveListDeleteAccount(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/accounts",
		`{"email": "User@X.com", "refresh_token": "rt", "client_id": "cid"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, "/api/v1/accounts", "")
	assert.Equal(t, http.StatusOK, w.Code)
	var listing struct {
		Accounts []string `json:"accounts"`
		Total    int      `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
	assert.Equal(t, 1, listing.Total)
	assert.Equal(t, []string{"user@x.com"}, listing.Accounts)

	w = doJSON(router, http.MethodDelete, "/api/v1/accounts/user@x.com", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(router, http.MethodDelete, "/api/v1/accounts/user@x.com", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSaveAccountValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/accounts", `{"email": "a@b.com"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImportAndExportAccounts(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/accounts/import",
		strings.NewReader("a@b.com:pw:rt:cid\nbad\n"))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var report service.ImportReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 1, report.Added)
	assert.Len(t, report.Skipped, 1)

	w = doJSON(router, http.MethodPost, "/api/v1/accounts/export", `{"amount": 5}`)
	require.Equal(t, http.StatusOK, w.Code)
	var export struct {
		Dispensed int    `json:"dispensed"`
		Remaining int    `json:"remaining"`
		Content   string `json:"content"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &export))
	assert.Equal(t, 1, export.Dispensed)
	assert.Equal(t, 0, export.Remaining)
	assert.Equal(t, "a@b.com:pw:rt:cid", export.Content)
}

func TestExportErrorStatuses(t *testing.T) {
	router, st := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/accounts/export", `{"amount": 0}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodPost, "/api/v1/accounts/export", `{"amount": 1}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	require.NoError(t, st.Upsert("a@b.com", store.Record{RefreshToken: "rt", ClientID: "cid"}))
	w = doJSON(router, http.MethodPost, "/api/v1/accounts/export", `{"amount": 1}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestFetchCodeWithoutSavedCredentials(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/code", `{"email": "nobody@x.com"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "no_saved_credentials", resp.Error)
	assert.Equal(t, "nobody@x.com", resp.Email)
}

func TestFetchCodeMissingIdentifiers(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/code", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "config_error", resp.Error)
}

func TestHealthCheck(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "disabled", health.Audit)
}
