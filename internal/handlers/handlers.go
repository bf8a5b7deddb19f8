package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"mail-code-service/internal/auth"
	"mail-code-service/internal/fetcher"
	"mail-code-service/internal/service"
	"mail-code-service/internal/store"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	codes    *service.CodeService
	accounts *service.AccountService
	store    *store.Store
	db       *gorm.DB
}

// NewHandlers creates new HTTP handlers. db may be nil when the audit sink
// is disabled.
func NewHandlers(codes *service.CodeService, accounts *service.AccountService, st *store.Store, db *gorm.DB) *Handlers {
	return &Handlers{
		codes:    codes,
		accounts: accounts,
		store:    st,
		db:       db,
	}
}

// SetupRoutes sets up all HTTP routes
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	// Health check
	router.GET("/healthz", h.HealthCheck)

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	api := router.Group("/api/v1")
	{
		api.POST("/code", h.FetchCode)

		api.GET("/accounts", h.ListAccounts)
		api.POST("/accounts", h.SaveAccount)
		api.DELETE("/accounts/:email", h.DeleteAccount)
		api.POST("/accounts/import", h.ImportAccounts)
		api.POST("/accounts/export", h.ExportAccounts)
	}
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Email   string `json:"email,omitempty"`
}

// CodeRequest asks for the newest verification code of one mailbox. With
// only an email set, stored credentials for that email are used.
type CodeRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	RefreshToken string `json:"refresh_token"`
	ClientID     string `json:"client_id"`
	AutoSave     *bool  `json:"auto_save"`
}

// FetchCode handles verification code requests
func (h *Handlers) FetchCode(c *gin.Context) {
	var req CodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: err.Error()})
		return
	}

	creds := auth.Credentials{
		Email:        strings.TrimSpace(req.Email),
		Password:     req.Password,
		RefreshToken: strings.TrimSpace(req.RefreshToken),
		ClientID:     strings.TrimSpace(req.ClientID),
	}

	// Email-only requests fall back to stored credentials.
	if creds.RefreshToken == "" && creds.Password == "" && creds.Email != "" {
		rec, ok, err := h.store.Get(creds.Email)
		if err != nil {
			h.respondError(c, err)
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "no_saved_credentials",
				Message: "no saved credentials for this email; supply refresh_token and client_id once",
				Email:   strings.ToLower(creds.Email),
			})
			return
		}
		creds.RefreshToken = rec.RefreshToken
		creds.ClientID = rec.ClientID
	}

	autoSave := true
	if req.AutoSave != nil {
		autoSave = *req.AutoSave
	}

	result, err := h.codes.FetchCode(c.Request.Context(), creds, autoSave)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ListAccounts returns one page of stored accounts
func (h *Handlers) ListAccounts(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))

	result, err := h.accounts.ListPage(page)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"accounts": result.Emails,
		"page":     result.Page,
		"pages":    result.Pages,
		"total":    result.Total,
	})
}

// AccountRequest represents the request structure for saving an account
type AccountRequest struct {
	Email        string `json:"email" binding:"required"`
	RefreshToken string `json:"refresh_token" binding:"required"`
	ClientID     string `json:"client_id" binding:"required"`
	Password     string `json:"password"`
}

// SaveAccount upserts one credential record
func (h *Handlers) SaveAccount(c *gin.Context) {
	var req AccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: err.Error()})
		return
	}

	if err := h.store.Upsert(req.Email, store.Record{
		RefreshToken: req.RefreshToken,
		ClientID:     req.ClientID,
		Password:     req.Password,
	}); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"saved": strings.ToLower(strings.TrimSpace(req.Email))})
}

// DeleteAccount removes one credential record
func (h *Handlers) DeleteAccount(c *gin.Context) {
	email := c.Param("email")

	if err := h.store.Remove(email); err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ImportAccounts bulk-imports accounts from a line-oriented text body
func (h *Handlers) ImportAccounts(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "failed to read request body"})
		return
	}

	report, err := h.accounts.ImportText(string(body))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// ExportRequest represents the request structure for exporting accounts
type ExportRequest struct {
	Amount int `json:"amount"`
}

// ExportAccounts dispenses accounts from the store. Dispensed accounts can
// never be re-imported.
func (h *Handlers) ExportAccounts(c *gin.Context) {
	var req ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: err.Error()})
		return
	}

	result, err := h.accounts.Export(req.Amount)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"dispensed": len(result.Accounts),
		"remaining": result.Remaining,
		"content":   result.Content,
	})
}

// respondError maps the error taxonomy onto HTTP statuses. The message text
// is the user-facing phrasing; internals stay in the logs.
func (h *Handlers) respondError(c *gin.Context, err error) {
	var (
		configErr  *service.ConfigError
		authErr    *auth.AuthError
		authNet    *auth.NetworkError
		fetchNet   *fetcher.NetworkError
		mailboxErr *fetcher.MailboxError
		formatErr  *store.FileFormatError
		acctErr    *service.AccountError
	)

	email := ""
	if errors.As(err, &acctErr) {
		email = acctErr.Email
	}

	switch {
	case errors.As(err, &configErr):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "config_error", Message: configErr.Error()})
	case errors.As(err, &authErr):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "auth_error", Message: authErr.Error()})
	case errors.As(err, &authNet), errors.As(err, &fetchNet):
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "network_error", Message: err.Error(), Email: email})
	case errors.As(err, &mailboxErr):
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "mailbox_error", Message: mailboxErr.Error(), Email: email})
	case errors.Is(err, service.ErrEmptyMailbox):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "empty_mailbox", Message: err.Error(), Email: email})
	case errors.Is(err, service.ErrNoCodeFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no_code_found", Message: err.Error(), Email: email})
	case errors.Is(err, store.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_amount", Message: err.Error()})
	case errors.Is(err, store.ErrEmptyStore):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "empty_store", Message: err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: err.Error()})
	case errors.As(err, &formatErr):
		logrus.Errorf("Store document error: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "store_error", Message: "persisted store document is malformed"})
	default:
		logrus.Errorf("Unhandled error: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: err.Error()})
	}
}
