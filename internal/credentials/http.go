// Package credentials fetches short-lived realtime connection credentials
// from an external credential service over HTTP. Tokens are never cached:
// every connection attempt gets a fresh set, so an expired token can never
// poison a reconnect.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/godt333/voicelink/pkg/realtime"
)

// Compile-time interface assertion.
var _ realtime.CredentialProvider = (*Client)(nil)

// defaultTimeout bounds a single credential request.
const defaultTimeout = 10 * time.Second

// Option configures a Client during construction.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client, e.g. for tests or custom
// transports.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// Client fetches credentials from a single service endpoint.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a Client for the credential service at endpoint,
// authenticating with apiKey.
func NewClient(endpoint, apiKey string, opts ...Option) (*Client, error) {
	if endpoint == "" {
		return nil, errors.New("credentials: endpoint is required")
	}
	c := &Client{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Fetch requests a fresh credential set. Called once per connection attempt.
func (c *Client) Fetch(ctx context.Context) (realtime.Credentials, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, nil)
	if err != nil {
		return realtime.Credentials{}, fmt.Errorf("credentials: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return realtime.Credentials{}, fmt.Errorf("credentials: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return realtime.Credentials{}, fmt.Errorf("credentials: service returned %d: %s", resp.StatusCode, body)
	}

	var creds realtime.Credentials
	if err := json.NewDecoder(resp.Body).Decode(&creds); err != nil {
		return realtime.Credentials{}, fmt.Errorf("credentials: decode response: %w", err)
	}

	if creds.Token == "" {
		return realtime.Credentials{}, errors.New("credentials: service returned no token")
	}
	if creds.Region == "" && creds.Endpoint == "" {
		return realtime.Credentials{}, errors.New("credentials: service returned neither region nor endpoint")
	}
	return creds, nil
}
