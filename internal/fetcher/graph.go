package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// GraphFetcher lists mailbox messages through the Microsoft Graph REST API
type GraphFetcher struct {
	baseURL     string
	accessToken string
	pageSize    int
	http        *http.Client
}

// NewGraphFetcher creates a Graph fetcher for one access token. The timeout
// is the fixed per-call network timeout; there are no retries.
func NewGraphFetcher(baseURL, accessToken string, pageSize int, timeout time.Duration) *GraphFetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &GraphFetcher{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		pageSize:    pageSize,
		http:        &http.Client{Timeout: timeout},
	}
}

type graphProfile struct {
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

type graphMessage struct {
	Subject string `json:"subject"`
	Body    struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
	From struct {
		EmailAddress struct {
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"from"`
	ReceivedDateTime string `json:"receivedDateTime"`
}

type graphMessageList struct {
	Value []graphMessage `json:"value"`
}

// ResolveEmail looks up the authenticated account's canonical address via
// the profile endpoint, preferring the mail field over userPrincipalName
func (f *GraphFetcher) ResolveEmail(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/me?$select=mail,userPrincipalName", nil)
	if err != nil {
		return "", fmt.Errorf("failed to build profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+f.accessToken)

	resp, err := f.http.Do(req)
	if err != nil {
		return "", &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return "", &MailboxError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var profile graphProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return "", fmt.Errorf("failed to decode profile response: %w", err)
	}

	if profile.Mail != "" {
		return profile.Mail, nil
	}
	return profile.UserPrincipalName, nil
}

// ListMessages retrieves up to pageSize most-recent-capable messages with
// subject, body, sender and received timestamp selected
func (f *GraphFetcher) ListMessages(ctx context.Context) ([]EmailMessage, error) {
	params := url.Values{}
	params.Set("$top", strconv.Itoa(f.pageSize))
	params.Set("$select", "subject,body,from,receivedDateTime")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/me/messages?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build message request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+f.accessToken)
	req.Header.Set("ConsistencyLevel", "eventual")

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return nil, &MailboxError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var list graphMessageList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode message list: %w", err)
	}

	messages := make([]EmailMessage, 0, len(list.Value))
	for _, msg := range list.Value {
		messages = append(messages, EmailMessage{
			Subject:    msg.Subject,
			From:       msg.From.EmailAddress.Address,
			Body:       msg.Body.Content,
			BodyIsHTML: strings.EqualFold(msg.Body.ContentType, "html"),
			Received:   msg.ReceivedDateTime,
		})
	}
	return messages, nil
}
