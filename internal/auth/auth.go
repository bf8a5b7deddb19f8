package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"mail-code-service/internal/config"
)

// Kind classifies an authentication failure
type Kind string

const (
	KindMissingClientID    Kind = "missing_client_id"
	KindInvalidGrant       Kind = "invalid_grant"
	KindClientFlowDisabled Kind = "client_flow_disabled"
	KindOther              Kind = "other"
)

// AuthError is a failed token acquisition, classified from the provider's
// error description
type AuthError struct {
	Kind        Kind
	Description string
}

func (e *AuthError) Error() string {
	switch e.Kind {
	case KindMissingClientID:
		return "client ID missing"
	case KindInvalidGrant:
		return "invalid credentials or expired refresh token"
	case KindClientFlowDisabled:
		return "public client flows not enabled for this application"
	default:
		return fmt.Sprintf("auth error: %s", e.Description)
	}
}

// NetworkError is a transport-level failure talking to the identity endpoint
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Credentials identify one mailbox: either a refresh token or an email and
// password, plus the OAuth client ID of the registered application.
type Credentials struct {
	Email        string
	Password     string
	RefreshToken string
	ClientID     string
}

// Client exchanges stored credentials for short-lived access tokens against
// the Microsoft identity endpoint
type Client struct {
	tenant          string
	defaultClientID string
	scope           string
	tokenURL        string
	http            *http.Client
}

// NewClient creates a token client from configuration. The Graph timeout
// doubles as the fixed per-call network timeout for the token exchange.
func NewClient(cfg config.AuthConfig, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		tenant:          cfg.Tenant,
		defaultClientID: cfg.ClientID,
		scope:           cfg.Scope,
		tokenURL:        cfg.TokenURL,
		http:            &http.Client{Timeout: timeout},
	}
}

func (c *Client) endpoint() oauth2.Endpoint {
	if c.tokenURL != "" {
		return oauth2.Endpoint{TokenURL: c.tokenURL}
	}
	return microsoft.AzureADEndpoint(c.tenant)
}

// Token acquires an access token using the refresh-token grant when a
// refresh token is present, or the resource-owner password grant otherwise.
// Failures come back as *AuthError or *NetworkError; the call is never
// retried here.
func (c *Client) Token(ctx context.Context, creds Credentials) (string, error) {
	clientID := creds.ClientID
	if clientID == "" {
		clientID = c.defaultClientID
	}
	if clientID == "" {
		return "", &AuthError{Kind: KindMissingClientID}
	}

	conf := &oauth2.Config{
		ClientID: clientID,
		Endpoint: c.endpoint(),
		Scopes:   []string{c.scope},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)

	var tok *oauth2.Token
	var err error
	if creds.RefreshToken != "" {
		tok, err = conf.TokenSource(ctx, &oauth2.Token{RefreshToken: creds.RefreshToken}).Token()
	} else {
		tok, err = conf.PasswordCredentialsToken(ctx, creds.Email, creds.Password)
	}
	if err != nil {
		return "", classify(err)
	}

	return tok.AccessToken, nil
}

// classify maps a token exchange failure onto the auth error taxonomy using
// the provider's error description. AADSTS50126 is a bad username/password
// or dead refresh token; AADSTS7000218 means the app registration has public
// client flows disabled.
func classify(err error) error {
	var rerr *oauth2.RetrieveError
	if !errors.As(err, &rerr) {
		return &NetworkError{Err: err}
	}

	desc := rerr.ErrorDescription
	if desc == "" {
		desc = string(rerr.Body)
	}

	switch {
	case strings.Contains(desc, "50126"), strings.Contains(desc, "invalid_grant"), rerr.ErrorCode == "invalid_grant":
		return &AuthError{Kind: KindInvalidGrant, Description: truncate(desc, 300)}
	case strings.Contains(desc, "7000218"):
		return &AuthError{Kind: KindClientFlowDisabled, Description: truncate(desc, 300)}
	default:
		return &AuthError{Kind: KindOther, Description: truncate(desc, 300)}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
