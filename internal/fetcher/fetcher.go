package fetcher

import (
	"context"
	"fmt"
)

// EmailMessage is one mailbox message as consumed by code extraction.
// Received keeps the provider's raw timestamp string; callers decide how to
// parse it.
type EmailMessage struct {
	Subject    string
	From       string
	Body       string
	BodyIsHTML bool
	Received   string
}

// EmailFetcher lists mailbox messages and resolves the mailbox's canonical
// address, using an already-acquired access token
type EmailFetcher interface {
	ResolveEmail(ctx context.Context) (string, error)
	ListMessages(ctx context.Context) ([]EmailMessage, error)
}

// MailboxError is a non-2xx response from the mail API
type MailboxError struct {
	StatusCode int
	Body       string
}

func (e *MailboxError) Error() string {
	return fmt.Sprintf("mail API error %d: %s", e.StatusCode, e.Body)
}

// NetworkError is a transport-level failure reaching the mailbox
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }
