package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"mail-code-service/internal/auth"
	"mail-code-service/internal/fetcher"
	"mail-code-service/internal/metrics"
	"mail-code-service/internal/parser"
	"mail-code-service/internal/store"
)

var (
	// ErrEmptyMailbox means the mailbox listing returned zero messages
	ErrEmptyMailbox = errors.New("no emails found in inbox")

	// ErrNoCodeFound means matching messages existed but none contained a code
	ErrNoCodeFound = errors.New("found matching emails but no verification code detected")
)

// ConfigError reports a fetch request missing a required identifier. It is
// fatal to the single request only.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return e.Msg }

// AccountError attaches the resolved account email to a fetch failure so the
// caller can still say which mailbox it was talking to
type AccountError struct {
	Email string
	Err   error
}

func (e *AccountError) Error() string { return e.Err.Error() }

func (e *AccountError) Unwrap() error { return e.Err }

// CodeResult is a successfully extracted verification code
type CodeResult struct {
	Code       string `json:"code"`
	Subject    string `json:"subject"`
	From       string `json:"from"`
	ReceivedAt string `json:"received_at"`
	Email      string `json:"email"`
}

// FetcherFactory builds a mailbox fetcher for one acquired access token.
// The caller-supplied email is only meaningful to the IMAP fetcher.
type FetcherFactory func(accessToken, email string) fetcher.EmailFetcher

// CodeService orchestrates token acquisition, mailbox listing, message
// ranking and code extraction
type CodeService struct {
	auth       *auth.Client
	store      *store.Store
	newFetcher FetcherFactory
	metrics    *metrics.Metrics
}

// NewCodeService creates a code service
func NewCodeService(authClient *auth.Client, st *store.Store, newFetcher FetcherFactory, m *metrics.Metrics) *CodeService {
	return &CodeService{
		auth:       authClient,
		store:      st,
		newFetcher: newFetcher,
		metrics:    m,
	}
}

// FetchCode retrieves the newest verification code from the mailbox the
// credentials unlock. With autoSave set, a working refresh token is persisted
// under the mailbox's canonical address, unless that address was previously
// exported. The store is only touched between network calls, never while
// holding its lock across one.
func (s *CodeService) FetchCode(ctx context.Context, creds auth.Credentials, autoSave bool) (*CodeResult, error) {
	s.metrics.FetchAttempts.Inc()
	timer := time.Now()
	defer func() {
		s.metrics.FetchDuration.Observe(time.Since(timer).Seconds())
	}()

	result, err := s.fetchCode(ctx, creds, autoSave)
	if err != nil {
		s.metrics.FetchFailures.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}
	s.metrics.FetchSuccesses.Inc()
	return result, nil
}

func (s *CodeService) fetchCode(ctx context.Context, creds auth.Credentials, autoSave bool) (*CodeResult, error) {
	if creds.RefreshToken == "" && (creds.Email == "" || creds.Password == "") {
		return nil, &ConfigError{Msg: "either a refresh token or an email and password is required"}
	}

	accessToken, err := s.auth.Token(ctx, creds)
	if err != nil {
		return nil, err
	}

	f := s.newFetcher(accessToken, creds.Email)

	email, err := f.ResolveEmail(ctx)
	if err != nil {
		logrus.Warnf("Failed to resolve account email: %v", err)
		email = ""
	}
	if email == "" {
		email = creds.Email
	}
	if email == "" {
		email = "Unknown"
	}

	if autoSave && creds.RefreshToken != "" && creds.ClientID != "" && email != "Unknown" {
		s.autoSave(email, creds)
	}

	messages, err := f.ListMessages(ctx)
	if err != nil {
		return nil, &AccountError{Email: email, Err: err}
	}
	if len(messages) == 0 {
		return nil, &AccountError{Email: email, Err: ErrEmptyMailbox}
	}

	sortNewestFirst(messages)

	// Pass 1: messages whose subject announces a verification code.
	for _, msg := range messages {
		subject := strings.ToLower(msg.Subject)
		if !strings.Contains(subject, "your uber verification code") && !strings.Contains(subject, "verification code") {
			continue
		}
		if result := s.tryExtract(msg, email); result != nil {
			return result, nil
		}
	}

	// Pass 2: any message from or about Uber.
	for _, msg := range messages {
		subject := strings.ToLower(msg.Subject)
		from := strings.ToLower(msg.From)
		if !strings.Contains(subject, "uber") && !strings.Contains(from, "uber") {
			continue
		}
		if result := s.tryExtract(msg, email); result != nil {
			return result, nil
		}
	}

	return nil, &AccountError{Email: email, Err: ErrNoCodeFound}
}

// autoSave keeps the store keyed by the provider's canonical address instead
// of whatever the caller typed. Previously exported accounts never re-enter
// the store this way.
func (s *CodeService) autoSave(email string, creds auth.Credentials) {
	exported, err := s.store.IsExported(email)
	if err != nil {
		logrus.Warnf("Failed to check exported set for %s: %v", email, err)
		return
	}
	if exported {
		logrus.Infof("Not auto-saving previously exported account %s", email)
		return
	}
	if err := s.store.Upsert(email, store.Record{
		RefreshToken: creds.RefreshToken,
		ClientID:     creds.ClientID,
	}); err != nil {
		logrus.Warnf("Failed to auto-save credentials for %s: %v", email, err)
	}
}

func (s *CodeService) tryExtract(msg fetcher.EmailMessage, email string) *CodeResult {
	body := msg.Body
	if msg.BodyIsHTML {
		body = parser.StripHTML(body)
	}

	code, ok := parser.ExtractCode(msg.Subject + " " + body)
	if !ok {
		return nil
	}

	return &CodeResult{
		Code:       code,
		Subject:    truncate(msg.Subject, 100),
		From:       msg.From,
		ReceivedAt: formatReceived(msg.Received),
		Email:      email,
	}
}

// sortNewestFirst orders messages by received timestamp descending. A
// timestamp that does not parse sorts as the oldest possible value.
func sortNewestFirst(messages []fetcher.EmailMessage) {
	sort.SliceStable(messages, func(i, j int) bool {
		return parseReceived(messages[i].Received).After(parseReceived(messages[j].Received))
	})
}

func parseReceived(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

// formatReceived turns 2024-01-02T15:04:05Z into "2024-01-02 15:04:05"
func formatReceived(value string) string {
	if len(value) >= 19 {
		value = value[:19]
	}
	return strings.Replace(value, "T", " ", 1)
}

func failureReason(err error) string {
	var authErr *auth.AuthError
	var mailboxErr *fetcher.MailboxError
	switch {
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &mailboxErr):
		return "mailbox"
	case errors.Is(err, ErrEmptyMailbox):
		return "empty_mailbox"
	case errors.Is(err, ErrNoCodeFound):
		return "no_code"
	default:
		return "other"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
