package fetcher

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message"
	"github.com/emersion/go-sasl"
	"github.com/sirupsen/logrus"
)

// IMAPFetcher lists mailbox messages over IMAP, authenticating with the same
// OAuth access token via SASL XOAUTH2. Outlook mailboxes advertise XOAUTH2
// but not OAUTHBEARER.
type IMAPFetcher struct {
	host        string
	port        int
	email       string
	accessToken string
	limit       int
}

// NewIMAPFetcher creates an IMAP fetcher for one mailbox and access token
func NewIMAPFetcher(host string, port int, email, accessToken string, limit int) *IMAPFetcher {
	if limit <= 0 {
		limit = 200
	}
	return &IMAPFetcher{
		host:        host,
		port:        port,
		email:       email,
		accessToken: accessToken,
		limit:       limit,
	}
}

// xoauth2Client implements the XOAUTH2 SASL mechanism on top of go-sasl
type xoauth2Client struct {
	username string
	token    string
}

func (c *xoauth2Client) Start() (string, []byte, error) {
	ir := []byte("user=" + c.username + "\x01auth=Bearer " + c.token + "\x01\x01")
	return "XOAUTH2", ir, nil
}

func (c *xoauth2Client) Next(challenge []byte) ([]byte, error) {
	// The server only challenges on failure, with a JSON error blob; an
	// empty response makes it return the tagged NO.
	return []byte{}, nil
}

var _ sasl.Client = (*xoauth2Client)(nil)

// ResolveEmail returns the mailbox address the fetcher was configured with;
// IMAP has no profile endpoint
func (f *IMAPFetcher) ResolveEmail(ctx context.Context) (string, error) {
	return f.email, nil
}

// ListMessages fetches the newest messages from INBOX, up to the configured
// limit
func (f *IMAPFetcher) ListMessages(ctx context.Context) ([]EmailMessage, error) {
	c, err := client.DialTLS(fmt.Sprintf("%s:%d", f.host, f.port), nil)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer c.Logout()

	if err := c.Authenticate(&xoauth2Client{username: f.email, token: f.accessToken}); err != nil {
		return nil, fmt.Errorf("failed to authenticate to IMAP server: %w", err)
	}

	mbox, err := c.Select("INBOX", true)
	if err != nil {
		return nil, fmt.Errorf("failed to select INBOX: %w", err)
	}
	if mbox.Messages == 0 {
		return nil, nil
	}

	from := uint32(1)
	if mbox.Messages > uint32(f.limit) {
		from = mbox.Messages - uint32(f.limit) + 1
	}
	seqset := new(imap.SeqSet)
	seqset.AddRange(from, mbox.Messages)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, section.FetchItem()}

	ch := make(chan *imap.Message, f.limit)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, items, ch)
	}()

	var messages []EmailMessage
	for msg := range ch {
		email, err := f.parseMessage(msg, section)
		if err != nil {
			logrus.Warnf("Failed to parse IMAP message: %v", err)
			continue
		}
		messages = append(messages, email)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return messages, nil
}

func (f *IMAPFetcher) parseMessage(msg *imap.Message, section *imap.BodySectionName) (EmailMessage, error) {
	email := EmailMessage{}

	if msg.Envelope != nil {
		email.Subject = msg.Envelope.Subject
		if len(msg.Envelope.From) > 0 {
			email.From = msg.Envelope.From[0].Address()
		}
		if !msg.Envelope.Date.IsZero() {
			email.Received = msg.Envelope.Date.UTC().Format(time.RFC3339)
		}
	}

	r := msg.GetBody(section)
	if r == nil {
		return email, nil
	}

	entity, err := message.Read(r)
	if err != nil {
		return email, fmt.Errorf("failed to read message: %w", err)
	}

	if mr := entity.MultipartReader(); mr != nil {
		var plain, html string
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				return email, fmt.Errorf("failed to read part: %w", err)
			}

			content, err := io.ReadAll(p.Body)
			if err != nil {
				return email, fmt.Errorf("failed to read part body: %w", err)
			}

			contentType := p.Header.Get("Content-Type")
			if strings.Contains(contentType, "text/plain") {
				plain = string(content)
			} else if strings.Contains(contentType, "text/html") {
				html = string(content)
			}
		}
		if plain != "" {
			email.Body = plain
		} else {
			email.Body = html
			email.BodyIsHTML = html != ""
		}
	} else {
		content, err := io.ReadAll(entity.Body)
		if err != nil {
			return email, fmt.Errorf("failed to read message body: %w", err)
		}
		email.Body = string(content)
		email.BodyIsHTML = strings.Contains(entity.Header.Get("Content-Type"), "text/html")
	}

	return email, nil
}
