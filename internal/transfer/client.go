// Package transfer downloads document files from the URLs the ERP
// attachment links point at. Downloads are authorized with a
// client-credentials bearer token that is cached until shortly before
// it expires.
package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/erpai/verification-be/internal/errclass"
)

// tokenExpiryBuffer refreshes the token this long before the server's
// stated expiry.
const tokenExpiryBuffer = 5 * time.Minute

// Config holds transfer service settings.
type Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scope        string
	Timeout      time.Duration
}

// Client downloads files with bearer-token authorization.
type Client struct {
	http   *resty.Client
	config *Config
	logger *slog.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient creates a transfer client.
func NewClient(cfg *Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := resty.New()
	client.SetTimeout(timeout)

	return &Client{
		http:   client,
		config: cfg,
		logger: logger,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// AccessToken returns a valid bearer token, fetching a fresh one when
// the cached token is near expiry.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	c.logger.Info("Requesting new transfer access token")

	var token tokenResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"client_id":     c.config.ClientID,
			"client_secret": c.config.ClientSecret,
			"scope":         c.config.Scope,
			"grant_type":    "client_credentials",
		}).
		SetResult(&token).
		Post(c.config.TokenURL)
	if err != nil {
		return "", fmt.Errorf("request access token: %w", err)
	}

	if resp.IsError() {
		return "", &errclass.HTTPStatusError{
			StatusCode: resp.StatusCode(),
			Operation:  "request access token",
			Body:       string(resp.Body()),
		}
	}

	if token.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned no access token")
	}

	c.token = token.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn)*time.Second - tokenExpiryBuffer)

	c.logger.Info("Obtained transfer access token",
		slog.Int("expires_in", token.ExpiresIn),
	)

	return c.token, nil
}

// Download fetches a file from an absolute URL. Returns the raw bytes
// and the response content type.
func (c *Client) Download(ctx context.Context, fileURL string) ([]byte, string, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, "", err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		Get(fileURL)
	if err != nil {
		return nil, "", fmt.Errorf("download file: %w", err)
	}

	if resp.IsError() {
		return nil, "", &errclass.HTTPStatusError{
			StatusCode: resp.StatusCode(),
			Operation:  "download file",
			Body:       string(resp.Body()),
		}
	}

	body := resp.Body()
	if len(body) == 0 {
		return nil, "", fmt.Errorf("downloaded file is empty: %s", fileURL)
	}

	c.logger.Debug("Downloaded file",
		slog.String("url", fileURL),
		slog.Int("size", len(body)),
	)

	return body, resp.Header().Get("Content-Type"), nil
}
