// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package openwebui

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/jeranaias/webui-chat/internal/stream"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultBaseURL is where a local Open WebUI listens.
	DefaultBaseURL = "http://localhost:3000"

	// DefaultTimeout bounds non-streaming requests.
	DefaultTimeout = 120 * time.Second

	// DefaultStopTimeout bounds the best-effort stop call made on abort.
	DefaultStopTimeout = time.Second

	// MaxResponseSize is the maximum allowed non-streaming response body (10MB).
	MaxResponseSize = 10 * 1024 * 1024

	// maxErrorBodySize limits how much of an error body is read.
	maxErrorBodySize = 64 * 1024
)

// Endpoint paths.
const (
	pathModels = "/api/models"
	pathChat   = "/api/chat/completions"
	pathStop   = "/api/stop"
	pathFiles  = "/api/v1/files/"
)

// bearerScheme is the Authorization scheme for API keys.
const bearerScheme = "Bearer"

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the client.
type ClientConfig struct {
	// BaseURL is the server root, without a trailing slash (default: http://localhost:3000)
	BaseURL string

	// APIKey is sent as a bearer token when non-empty
	APIKey string

	// Timeout for non-streaming requests (default: 120s)
	Timeout time.Duration

	// StopTimeout for the stop side-channel (default: 1s)
	StopTimeout time.Duration

	// HTTPClient overrides the transport. Streaming requests use it without
	// its Timeout so long generations are bounded only by their context.
	HTTPClient *http.Client

	// Logger receives request logs (default: slog.Default())
	Logger *slog.Logger
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:     DefaultBaseURL,
		Timeout:     DefaultTimeout,
		StopTimeout: DefaultStopTimeout,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the chat server.
// The Client is safe for concurrent use.
type Client struct {
	baseURL      string
	apiKey       string
	stopTimeout  time.Duration
	httpClient   *http.Client
	streamClient *http.Client
	logger       *slog.Logger
}

// NewClient creates a client. A nil config uses DefaultConfig.
func NewClient(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	baseURL := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	stopTimeout := config.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := config.HTTPClient
	if base == nil {
		base = &http.Client{}
	}
	httpClient := *base
	if httpClient.Timeout == 0 {
		httpClient.Timeout = timeout
	}
	streamClient := *base
	streamClient.Timeout = 0

	return &Client{
		baseURL:      baseURL,
		apiKey:       NormalizeAPIKey(config.APIKey),
		stopTimeout:  stopTimeout,
		httpClient:   &httpClient,
		streamClient: &streamClient,
		logger:       logger.With("component", "openwebui"),
	}
}

// BaseURL returns the normalized server root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// NormalizeAPIKey trims key and strips any "Bearer" prefix so the
// Authorization header never carries it twice. The prefix counts only when
// followed by whitespace or nothing; "Bearersk-1" is a key.
func NormalizeAPIKey(key string) string {
	key = strings.TrimSpace(key)
	for len(key) >= len(bearerScheme) && strings.EqualFold(key[:len(bearerScheme)], bearerScheme) {
		rest := key[len(bearerScheme):]
		if rest != "" && !unicode.IsSpace(rune(rest[0])) {
			break
		}
		key = strings.TrimSpace(rest)
	}
	return key
}

// KeyFingerprint returns a short SHA-256 fingerprint of the API key for logs.
func (c *Client) KeyFingerprint() string {
	return KeyFingerprint(c.apiKey)
}

// KeyFingerprint fingerprints a key after normalization; "none" when empty.
func KeyFingerprint(key string) string {
	key = NormalizeAPIKey(key)
	if key == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:4])
}

func (c *Client) endpoint(path string) string {
	return c.baseURL + path
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", bearerScheme+" "+c.apiKey)
	}
	if req.Header.Get("Content-Type") == "" && req.Body != nil && req.Method != http.MethodGet {
		req.Header.Set("Content-Type", "application/json")
	}
}

// do sends req, classifying transport failures. The caller owns the body.
func (c *Client) do(hc *http.Client, req *http.Request) (*http.Response, error) {
	c.setHeaders(req)
	start := time.Now()
	c.logger.Debug("request", "method", req.Method, "path", req.URL.Path, "key", c.KeyFingerprint())

	resp, err := hc.Do(req)
	req.Header.Del("Authorization")
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil && errors.Is(ctxErr, context.Canceled) {
			return nil, &APIError{Kind: KindAborted, Message: "request aborted", Cause: ctxErr}
		}
		return nil, &APIError{Kind: KindNetwork, Message: "Network error", Cause: err}
	}
	c.logger.Debug("response", "path", req.URL.Path, "status", resp.StatusCode, "elapsed", time.Since(start))
	return resp, nil
}

// readResponse reads the response body with a size limit.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, &APIError{Kind: KindNetwork, Message: "failed to read response", Cause: err}
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, &APIError{Kind: KindMalformedResponse, Message: fmt.Sprintf("response exceeded maximum size of %d bytes", MaxResponseSize)}
	}
	return body, nil
}

// checkStatus returns an APIError for non-2xx responses, consuming a bounded
// part of the body.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	return newStatusError(resp.StatusCode, body)
}

// =============================================================================
// MODELS
// =============================================================================

// ListModels fetches the model catalog from GET /api/models.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(pathModels), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(c.httpClient, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	body, err := readResponse(resp)
	if err != nil {
		return nil, err
	}
	return parseModels(body)
}

// =============================================================================
// CHAT
// =============================================================================

// Chat performs a non-streaming completion.
func (c *Client) Chat(ctx context.Context, chatReq ChatRequest) (*ChatResult, error) {
	chatReq.Stream = false
	bodyBytes, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(pathChat), bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(c.httpClient, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	body, err := readResponse(resp)
	if err != nil {
		return nil, err
	}
	return parseChatResponse(body)
}

func parseChatResponse(body []byte) (*ChatResult, error) {
	frame, err := stream.ParseFrame(body)
	if err != nil {
		return nil, &APIError{Kind: KindMalformedResponse, Message: "Invalid response format from server", Cause: err}
	}

	result := &ChatResult{Model: frame.Model.Value, FinishReason: frame.FinishReason()}
	if content := frame.Lookup(stream.ShapeChoiceMessage); content.Set {
		result.Content = content.Value
	} else if content := frame.Lookup(stream.ShapeContent); content.Set {
		result.Content = content.Value
	} else {
		return nil, &APIError{Kind: KindMalformedResponse, Message: "Invalid response format from server"}
	}
	return result, nil
}

// =============================================================================
// STOP
// =============================================================================

// Stop asks the server to stop generating. Callers treat failures as
// best-effort.
func (c *Client) Stop(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(pathStop), http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(c.httpClient, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodySize))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newStatusError(resp.StatusCode, nil)
	}
	return nil
}

// stopBestEffort calls Stop with the configured bound and logs failures.
func (c *Client) stopBestEffort() {
	ctx, cancel := context.WithTimeout(context.Background(), c.stopTimeout)
	defer cancel()
	if err := c.Stop(ctx); err != nil {
		c.logger.Warn("stop request failed", "error", err)
	}
}
