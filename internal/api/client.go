// ABOUTME: Shared HTTP client for the management platform API
// ABOUTME: Applies default headers and registered request hooks to every outgoing request

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultTimeout = 30 * time.Second

// maxErrorBody bounds how much of an error response is read
const maxErrorBody = 64 << 10

// RequestHook inspects or mutates a request before it is sent.
// Returning an error aborts the request.
type RequestHook func(req *http.Request) error

type hookEntry struct {
	fn RequestHook
}

// Client talks JSON to the platform API. Default headers and hooks are
// shared by every request made through the client.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger

	mu      sync.RWMutex
	headers http.Header
	hooks   []*hookEntry
}

// NewClient creates a client rooted at baseURL. A nil httpClient gets a
// default client with a 30s timeout.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    httpClient,
		logger:  logger.With("component", "api"),
		headers: make(http.Header),
	}
}

// BaseURL returns the API root the client was created with
func (c *Client) BaseURL() string { return c.baseURL }

// SetDefaultHeader sets a header sent with every request.
func (c *Client) SetDefaultHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers.Set(key, value)
}

// DeleteDefaultHeader removes a default header. Missing headers are ignored.
func (c *Client) DeleteDefaultHeader(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers.Del(key)
}

// DefaultHeader returns the current value of a default header, or "".
func (c *Client) DefaultHeader(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.headers.Get(key)
}

// Use registers a hook and returns a function that unregisters it.
// The returned function is safe to call more than once.
func (c *Client) Use(hook RequestHook) (remove func()) {
	entry := &hookEntry{fn: hook}

	c.mu.Lock()
	c.hooks = append(c.hooks, entry)
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, h := range c.hooks {
				if h == entry {
					c.hooks = append(c.hooks[:i:i], c.hooks[i+1:]...)
					return
				}
			}
		})
	}
}

// prepare applies default headers, then hooks in registration order.
func (c *Client) prepare(req *http.Request) error {
	c.mu.RLock()
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	hooks := make([]*hookEntry, len(c.hooks))
	copy(hooks, c.hooks)
	c.mu.RUnlock()

	for _, h := range hooks {
		if err := h.fn(req); err != nil {
			return fmt.Errorf("request hook: %w", err)
		}
	}
	return nil
}

// Do sends a JSON request and decodes a JSON response into out (when
// non-nil). Non-2xx responses are returned as *Error.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if err := c.prepare(req); err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("api request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
		"request_id", req.Header.Get(RequestIDHeader),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

// RequestIDHeader carries a per-request correlation ID
const RequestIDHeader = "X-Request-ID"

// RequestIDHook tags requests that have no correlation ID with a fresh UUID.
func RequestIDHook(req *http.Request) error {
	if req.Header.Get(RequestIDHeader) == "" {
		req.Header.Set(RequestIDHeader, uuid.NewString())
	}
	return nil
}
