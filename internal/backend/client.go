// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend provides the HTTP client for the chat backend REST API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// DefaultBaseURL is the well-known address the backend listens on.
const DefaultBaseURL = "http://localhost:5001"

// maxErrorBody caps how much of a failed response is read for its detail.
const maxErrorBody = 64 * 1024

// ClientConfig holds configuration options for the backend client.
type ClientConfig struct {
	// BaseURL is the candidate endpoint the prober checks (default: http://localhost:5001)
	BaseURL string

	// Timeout for regular requests (default: 120s). Chat and image calls can be slow.
	Timeout time.Duration

	// ProbeTimeout bounds the health check (default: 5s)
	ProbeTimeout time.Duration

	// RequestsPerSecond is the client-side request rate (default: 20)
	RequestsPerSecond float64

	// Burst is the limiter burst size (default: 10)
	Burst int

	// Logger receives request-level debug logs (default: no-op)
	Logger *zap.Logger
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:           DefaultBaseURL,
		Timeout:           120 * time.Second,
		ProbeTimeout:      5 * time.Second,
		RequestsPerSecond: 20,
		Burst:             10,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client issues requests against a bound backend endpoint.
//
// The client starts unbound. Every call except Ping fails with ErrUnbound
// until Bind succeeds; once bound the endpoint stays fixed until Reset.
//
// The Client is thread-safe for concurrent use.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger

	mu        sync.RWMutex
	candidate Endpoint
	endpoint  Endpoint
}

// NewClient creates a new backend client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a new backend client with custom configuration.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	// Fill in defaults for any zero values
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second
	}
	if config.ProbeTimeout == 0 {
		config.ProbeTimeout = 5 * time.Second
	}
	if config.RequestsPerSecond == 0 {
		config.RequestsPerSecond = 20
	}
	if config.Burst == 0 {
		config.Burst = 10
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		limiter:   rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		logger:    logger.Named("backend"),
		candidate: Endpoint(config.BaseURL),
	}
}

// Candidate returns the address the next probe checks.
func (c *Client) Candidate() Endpoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.candidate
}

// SetCandidate changes the address the next probe checks. The bound endpoint,
// if any, is unaffected until Reset.
func (c *Client) SetCandidate(ep Endpoint) error {
	ep = Endpoint(strings.TrimRight(string(ep), "/"))
	if ep == "" {
		return NewError(ErrTypeInvalidInput, "candidate endpoint is empty")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.candidate = ep
	return nil
}

// Endpoint returns the bound endpoint and whether one is bound.
func (c *Client) Endpoint() (Endpoint, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.endpoint, c.endpoint != ""
}

// Bound reports whether an endpoint is bound.
func (c *Client) Bound() bool {
	_, ok := c.Endpoint()
	return ok
}

// Bind fixes the endpoint used by all later calls.
// It fails with ErrAlreadyBound if an endpoint is already bound.
func (c *Client) Bind(ep Endpoint) error {
	ep = Endpoint(strings.TrimRight(string(ep), "/"))
	if ep == "" {
		return NewError(ErrTypeInvalidInput, "endpoint is empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.endpoint != "" {
		return ErrAlreadyBound
	}
	c.endpoint = ep
	c.logger.Info("endpoint bound", zap.String("endpoint", string(ep)))
	return nil
}

// Reset unbinds the endpoint. Calls made afterwards fail with ErrUnbound.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.endpoint != "" {
		c.logger.Info("endpoint reset", zap.String("endpoint", string(c.endpoint)))
	}
	c.endpoint = ""
}

// =============================================================================
// HEALTH CHECK
// =============================================================================

// Ping runs the health check against a candidate endpoint without binding it.
// The backend has no dedicated health route; clearing the live conversation
// doubles as one. Any transport error or non-2xx status is Unreachable.
func (c *Client) Ping(ctx context.Context, candidate Endpoint) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.ProbeTimeout)
	defer cancel()

	base := strings.TrimRight(string(candidate), "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/conversations/clear", nil)
	if err != nil {
		return &ClientError{Type: ErrTypeUnreachable, Message: "invalid endpoint " + base, Cause: err}
	}
	req.Header.Set("X-Request-ID", uuid.New().String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ClientError{Type: ErrTypeUnreachable, Message: "backend not reachable at " + base, Cause: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ClientError{
			Type:    ErrTypeUnreachable,
			Message: "health check failed at " + base + ": " + resp.Status,
			Status:  resp.StatusCode,
		}
	}
	return nil
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// do sends a JSON request to the bound endpoint and decodes the reply into out.
// in and out may be nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	base, ok := c.Endpoint()
	if !ok {
		return ErrUnbound
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return &ClientError{Type: ErrTypeUnreachable, Message: "request not sent", Cause: err}
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &ClientError{Type: ErrTypeInvalidInput, Message: "failed to marshal request", Cause: err}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, string(base)+path, body)
	if err != nil {
		return &ClientError{Type: ErrTypeUnreachable, Message: "failed to create request", Cause: err}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	requestID := uuid.New().String()
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("request failed",
			zap.String("request_id", requestID),
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		if errors.Is(err, context.DeadlineExceeded) {
			return &ClientError{Type: ErrTypeUnreachable, Message: "request timed out", Cause: err}
		}
		return &ClientError{Type: ErrTypeUnreachable, Message: "backend not reachable", Cause: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("request completed",
		zap.String("request_id", requestID),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorFromResponse(method, path, resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ClientError{Type: ErrTypeRemoteFailure, Message: "failed to decode response", Status: resp.StatusCode, Cause: err}
	}
	return nil
}

// errorFromResponse classifies a non-2xx response, keeping the backend's
// own error text when it sent one.
func errorFromResponse(method, path string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	msg := method + " " + path + ": " + resp.Status
	var payload ErrorPayload
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
		msg = payload.Error
	}

	return &ClientError{
		Type:    typeForStatus(resp.StatusCode),
		Message: msg,
		Status:  resp.StatusCode,
	}
}

// remoteFailure builds the error for a 2xx reply that still reported success=false.
func remoteFailure(detail, fallback string) error {
	if detail == "" {
		detail = fallback
	}
	return &ClientError{Type: ErrTypeRemoteFailure, Message: detail}
}
