// internal/mailbox/client.go

// Package mailbox reads the notification mailbox through the Microsoft Graph
// API. The client is deliberately small: one authenticated GET for the
// newest message, no retries, no caching.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrUnauthorized means Graph rejected our credentials or the app lacks
// mailbox permissions. Callers treat it as terminal for the operation.
var ErrUnauthorized = errors.New("mailbox: graph rejected the request (check credentials and mailbox permissions)")

// defaultBaseURL is the production Graph endpoint.
const defaultBaseURL = "https://graph.microsoft.com/v1.0"

// Message is the slice of a Graph message the pipeline cares about.
type Message struct {
	ID      string
	Subject string
	From    string
	Body    string
}

// Graph wire shapes, trimmed to the selected fields.
type graphMessage struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	From    struct {
		EmailAddress struct {
			Name    string `json:"name"`
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"from"`
	Body struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
}

type graphListResponse struct {
	Value []graphMessage `json:"value"`
}

// Client reads a shared mailbox.
type Client struct {
	httpClient *http.Client
	baseURL    string
	mailbox    string
	timeout    time.Duration
	log        *zap.Logger
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithBaseURL points the client at a different Graph root. Tests use this
// with httptest servers.
func WithBaseURL(base string) ClientOption {
	return func(c *Client) { c.baseURL = base }
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// NewClient wraps an authenticated http.Client (see NewHTTPClient) for the
// given mailbox address.
func NewClient(httpClient *http.Client, mailboxAddr string, logger *zap.Logger, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: httpClient,
		baseURL:    defaultBaseURL,
		mailbox:    mailboxAddr,
		timeout:    30 * time.Second,
		log:        logger.Named("mailbox"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Latest fetches the newest message in the mailbox. An empty mailbox returns
// (nil, nil); 401/403 return ErrUnauthorized.
func (c *Client) Latest(ctx context.Context) (*Message, error) {
	reqURL := fmt.Sprintf("%s/users/%s/messages?%s",
		c.baseURL,
		url.PathEscape(c.mailbox),
		url.Values{
			"$top":    {"1"},
			"$select": {"subject,from,body"},
		}.Encode())

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("mailbox: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.log.Debug("Fetching newest message", zap.String("mailbox", c.mailbox))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mailbox: request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		c.log.Warn("Graph denied access",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body))
		return nil, fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("mailbox: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var list graphListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("mailbox: decoding response: %w", err)
	}
	if len(list.Value) == 0 {
		c.log.Info("Mailbox is empty")
		return nil, nil
	}

	gm := list.Value[0]
	from := gm.From.EmailAddress.Address
	if from == "" {
		from = gm.From.EmailAddress.Name
	}
	return &Message{
		ID:      gm.ID,
		Subject: gm.Subject,
		From:    from,
		Body:    gm.Body.Content,
	}, nil
}
