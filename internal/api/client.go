// Package api implements the chat backend collaborators over HTTP: send,
// event stream, history and conversation management.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	http "github.com/bogdanfinn/fhttp"
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"
	"github.com/rs/zerolog"

	"github.com/diogo/agentchat/internal/config"
	apierrors "github.com/diogo/agentchat/internal/errors"
	"github.com/diogo/agentchat/internal/models"
)

const (
	// defaultTimeout bounds every JSON request
	defaultTimeout = 20 * time.Second
	// streamTimeoutSeconds bounds the transport itself, streams included
	streamTimeoutSeconds = 600
	maxErrorBody         = 4096
)

// Client is the HTTP client for the chat backend
type Client struct {
	httpClient        tls_client.HttpClient
	baseURL           string
	streamPath        string
	timeout           time.Duration
	conversationLimit int
	credentials       *config.Credentials
	logger            zerolog.Logger
	mu                sync.RWMutex
	closed            bool
}

// ClientOption is a function that configures the client
type ClientOption func(*Client)

// WithBaseURL sets the backend root, e.g. http://localhost:8080
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithStreamPath sets the path of the event stream endpoint
func WithStreamPath(path string) ClientOption {
	return func(c *Client) {
		if path != "" {
			c.streamPath = path
		}
	}
}

// WithTimeout sets the timeout applied to non-streaming requests
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithConversationLimit sets how many conversations a list call returns
func WithConversationLimit(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.conversationLimit = n
		}
	}
}

// WithCredentials sets the auth context sent with every request
func WithCredentials(creds *config.Credentials) ClientOption {
	return func(c *Client) {
		c.credentials = creds
	}
}

// WithLogger sets the client's logger
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient replaces the underlying transport
func WithHTTPClient(httpClient tls_client.HttpClient) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a new Client
func NewClient(opts ...ClientOption) (*Client, error) {
	client := &Client{
		baseURL:           "http://localhost:8080",
		streamPath:        models.PathStreamDefault,
		timeout:           defaultTimeout,
		conversationLimit: models.DefaultConversationsN,
		logger:            zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(client)
	}

	if client.httpClient == nil {
		options := []tls_client.HttpClientOption{
			tls_client.WithTimeoutSeconds(streamTimeoutSeconds),
			tls_client.WithClientProfile(profiles.Chrome_120),
			tls_client.WithNotFollowRedirects(),
		}
		httpClient, err := tls_client.NewHttpClient(tls_client.NewNoopLogger(), options...)
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP client: %w", err)
		}
		client.httpClient = httpClient
	}

	if _, err := url.Parse(client.baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", client.baseURL, err)
	}

	return client, nil
}

// Close releases idle connections. Calls after Close fail.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.httpClient.CloseIdleConnections()
}

// IsClosed returns whether the client is closed
func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// BaseURL returns the backend root
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetCredentials swaps the auth context, e.g. after a token import
func (c *Client) SetCredentials(creds *config.Credentials) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credentials = creds
}

func (c *Client) authHeader() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.credentials.AuthHeader()
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// doJSON performs a JSON request and returns the body of a 2xx answer
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, int, error) {
	if c.IsClosed() {
		return nil, 0, fmt.Errorf("client is closed")
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range models.DefaultHeaders() {
		req.Header.Set(key, value)
	}
	if auth := c.authHeader(); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, classifyTransportError(ctx, method+" "+path, path, err)
	}
	defer func() {
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
	}()

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("request finished")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, resp.StatusCode, apierrors.FromStatus(resp.StatusCode, path, string(errorBody))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, classifyTransportError(ctx, "read "+path, path, err)
	}
	return data, resp.StatusCode, nil
}

func classifyTransportError(ctx context.Context, operation, endpoint string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apierrors.NewTimeoutError(operation)
	}
	return apierrors.NewNetworkError(operation, endpoint, err)
}
