// Package client provides the Agora Go SDK for discovering agents through
// the registry and invoking them with short-lived execution keys.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned when the requested agent does not exist.
var ErrNotFound = errors.New("not found")

// ErrRateLimited is returned when the registry throttles feedback submissions.
// Callers should back off before retrying.
var ErrRateLimited = errors.New("rate limited")

// Caller types accepted by the token endpoint.
const (
	CallerTypeConsumer = "consumer"
	CallerTypeProvider = "provider"
)

// TokenGrant holds the session token returned by POST /auth/token.
type TokenGrant struct {
	Token     string `json:"token"`
	ExpiresIn string `json:"expires_in"`
	TokenType string `json:"token_type"`
}

// RegisterRequest is the payload for Register.
type RegisterRequest struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Endpoint      string          `json:"endpoint"`
	Description   string          `json:"description,omitempty"`
	Intents       []string        `json:"intents,omitempty"`
	Tasks         []string        `json:"tasks,omitempty"`
	Tags          []string        `json:"tags,omitempty"`
	Categories    []string        `json:"categories,omitempty"`
	LocationScope string          `json:"location_scope,omitempty"`
	Languages     []string        `json:"languages,omitempty"`
	Version       string          `json:"version,omitempty"`
	InputSchema   json.RawMessage `json:"input_schema,omitempty"`
	Meta          json.RawMessage `json:"meta,omitempty"`
}

// RegisterResult holds the agent ID and the provider session token echoed
// back by a successful registration.
type RegisterResult struct {
	ID           string `json:"id"`
	SessionToken string `json:"jwt_token"`
}

// SearchRequest is the payload for Search. Categories must carry at least one
// entry; the registry rejects requests without one. Everything else is
// optional and narrows the ranking.
type SearchRequest struct {
	Intent      []string `json:"intent,omitempty"`
	Categories  []string `json:"categories,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Location    string   `json:"location,omitempty"`
	Language    string   `json:"language,omitempty"`
	Description string   `json:"description,omitempty"`
	Limit       int      `json:"limit,omitempty"`
}

// SearchResult is one ranked agent returned by Search. ExecutionKey is valid
// for roughly five minutes from KeyExpiresAt's perspective; call the agent
// promptly or search again.
type SearchResult struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Endpoint      string          `json:"endpoint"`
	Description   string          `json:"description"`
	CallerID      string          `json:"caller_id"`
	Tags          []string        `json:"tags"`
	Intents       []string        `json:"intents"`
	Tasks         []string        `json:"tasks"`
	Categories    []string        `json:"categories"`
	LocationScope string          `json:"location_scope"`
	Score         float64         `json:"score"`
	InputSchema   json.RawMessage `json:"input_schema,omitempty"`
	ExecutionKey  string          `json:"execution_key"`
	KeyExpiresAt  time.Time       `json:"key_expires_at"`
}

// FeedbackRequest is the payload for Feedback. LatencyMS and Rating are
// optional; leave them nil when the measurement is unavailable.
type FeedbackRequest struct {
	AgentID   string   `json:"agent_id"`
	Success   bool     `json:"success"`
	LatencyMS *float64 `json:"latency_ms,omitempty"`
	Rating    *float64 `json:"rating,omitempty"`
}

// HealthMetrics summarizes an agent's aggregate feedback quality.
type HealthMetrics struct {
	SuccessRate          float64 `json:"success_rate"`
	AvgRating            float64 `json:"avg_rating"`
	AvgLatencyMS         float64 `json:"avg_latency_ms"`
	TotalFeedbacks       int64   `json:"total_feedbacks"`
	FraudDetected        int64   `json:"fraud_detected"`
	FraudPercentage      float64 `json:"fraud_percentage"`
	SelfRatingPercentage float64 `json:"self_rating_percentage"`
}

// HealthReport is the public health view returned by AgentHealth.
type HealthReport struct {
	AgentID          string        `json:"agent_id"`
	Status           string        `json:"status"`
	HealthScore      float64       `json:"health_score"`
	Metrics          HealthMetrics `json:"metrics"`
	Warnings         []string      `json:"warnings"`
	QuarantineRisk   string        `json:"quarantine_risk"`
	QuarantineReason string        `json:"quarantine_reason,omitempty"`
	QuarantineAt     *time.Time    `json:"quarantine_at,omitempty"`
}

// ExecuteRequest is the task invocation payload sent to a provider's /execute.
type ExecuteRequest struct {
	Task   string         `json:"task"`
	Params map[string]any `json:"params,omitempty"`
}

// ExecuteResult is the provider's /execute response envelope.
type ExecuteResult struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Client is the Agora SDK entry point.
type Client struct {
	baseURL    string
	httpClient *http.Client

	// identity presented to POST /auth/token
	clientID       string
	providerSecret string

	// session state — guarded by mu
	mu             sync.Mutex
	sessionToken   string
	sessionRole    string
	sessionExpires time.Time // zero = token was set manually (no auto-refresh)
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithTimeout sets the per-request timeout on the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		c.httpClient.Timeout = d
		return nil
	}
}

// WithSessionToken attaches a pre-obtained session token to every request.
// The token is used as-is and will not be auto-refreshed.
func WithSessionToken(token string) Option {
	return func(c *Client) error {
		c.sessionToken = token
		c.sessionExpires = time.Time{} // zero = manual, never auto-refresh
		return nil
	}
}

// WithClientID pins the caller identity to a stable client ID instead of the
// source address. Sent as the x-client-id header on token requests; the
// registry binds the ID to the first address it sees.
func WithClientID(id string) Option {
	return func(c *Client) error {
		c.clientID = id
		return nil
	}
}

// WithProviderSecret supplies the per-provider signing secret sent on provider
// token requests. The registry stores it encrypted and signs execution keys
// with it; agents registered under this session verify keys against the same
// secret.
func WithProviderSecret(secret string) Option {
	return func(c *Client) error {
		c.providerSecret = secret
		return nil
	}
}

// New creates a new Agora SDK Client connected to baseURL.
//
//	c, err := client.New("https://registry.agoramesh.dev",
//	    client.WithClientID("billing-worker-1"),
//	)
func New(baseURL string, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(baseURL string, opts ...Option) *Client {
	c, err := New(baseURL, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Token requests a session token for callerType (CallerTypeConsumer or
// CallerTypeProvider), caches it for subsequent SDK calls, and returns the
// grant. Search, Feedback, and Register call this automatically; use it
// directly when the raw token is needed, e.g. to persist it.
func (c *Client) Token(ctx context.Context, callerType string) (*TokenGrant, error) {
	grant, expiry, err := c.fetchTokenRaw(ctx, callerType)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.sessionToken = grant.Token
	c.sessionRole = callerType
	c.sessionExpires = expiry
	c.mu.Unlock()
	return grant, nil
}

// fetchTokenRaw fetches a fresh session token from the registry without
// touching cached state.
func (c *Client) fetchTokenRaw(ctx context.Context, callerType string) (grant *TokenGrant, expiry time.Time, err error) {
	payload, _ := json.Marshal(map[string]string{"type": callerType})
	url := c.baseURL + "/auth/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.clientID != "" {
		req.Header.Set("x-client-id", c.clientID)
	}
	if callerType == CallerTypeProvider && c.providerSecret != "" {
		req.Header.Set("x-provider-secret", c.providerSecret)
	}

	body, err := c.do(req)
	if err != nil {
		return nil, time.Time{}, err
	}

	var g TokenGrant
	if err := json.Unmarshal(body, &g); err != nil {
		return nil, time.Time{}, fmt.Errorf("decode token response: %w", err)
	}

	ttl, err := time.ParseDuration(g.ExpiresIn)
	if err != nil {
		ttl = 24 * time.Hour
	}

	// Refresh 60 s before actual expiry to avoid clock-skew failures.
	const refreshBuffer = 60 * time.Second
	return &g, time.Now().Add(ttl - refreshBuffer), nil
}

// ensureSession returns a session token valid for callerType, fetching a
// fresh one when the cached token is absent, approaching expiry, or was
// issued for a different role. Thread-safe.
func (c *Client) ensureSession(ctx context.Context, callerType string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// sessionExpires.IsZero() means the token was set manually via
	// WithSessionToken and should never be auto-refreshed.
	if c.sessionToken != "" && c.sessionExpires.IsZero() {
		return c.sessionToken, nil
	}
	if c.sessionToken != "" && c.sessionRole == callerType && time.Now().Before(c.sessionExpires) {
		return c.sessionToken, nil
	}

	grant, expiry, err := c.fetchTokenRaw(ctx, callerType)
	if err != nil {
		return "", err
	}
	c.sessionToken = grant.Token
	c.sessionRole = callerType
	c.sessionExpires = expiry
	return c.sessionToken, nil
}

// Register registers an agent under the client's provider session and returns
// its ID. The registry requires a provider token, so the client must carry a
// provider session (WithSessionToken) or enough identity to request one
// (WithClientID, WithProviderSecret).
func (c *Client) Register(ctx context.Context, reg RegisterRequest) (*RegisterResult, error) {
	token, err := c.ensureSession(ctx, CallerTypeProvider)
	if err != nil {
		return nil, fmt.Errorf("obtain provider session: %w", err)
	}

	payload, err := json.Marshal(reg)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	url := c.baseURL + "/register"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var result RegisterResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode register response: %w", err)
	}
	return &result, nil
}

// Search queries the registry for agents matching q and returns them ranked
// by score, best first. Each result carries a short-lived execution key for
// calling the agent directly.
func (c *Client) Search(ctx context.Context, q SearchRequest) ([]SearchResult, error) {
	token, err := c.ensureSession(ctx, CallerTypeConsumer)
	if err != nil {
		return nil, fmt.Errorf("obtain consumer session: %w", err)
	}

	payload, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	url := c.baseURL + "/search"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var results []SearchResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return results, nil
}

// Feedback reports the outcome of an agent call back to the registry.
// Returns ErrRateLimited when the caller is submitting too fast and
// ErrNotFound when the agent does not exist.
func (c *Client) Feedback(ctx context.Context, fb FeedbackRequest) error {
	token, err := c.ensureSession(ctx, CallerTypeConsumer)
	if err != nil {
		return fmt.Errorf("obtain consumer session: %w", err)
	}

	payload, err := json.Marshal(fb)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	url := c.baseURL + "/feedback"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	_, err = c.do(req)
	return err
}

// AgentHealth fetches the public health report for an agent. No session is
// required.
func (c *Client) AgentHealth(ctx context.Context, agentID string) (*HealthReport, error) {
	url := c.baseURL + "/agents/" + agentID + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var report HealthReport
	if err := json.Unmarshal(body, &report); err != nil {
		return nil, fmt.Errorf("decode health response: %w", err)
	}
	return &report, nil
}

// Execute invokes a task on a provider's /execute endpoint using an execution
// key obtained from a search result. The registry is not on this path; the
// call goes directly to the provider's endpoint.
//
//	results, _ := c.Search(ctx, client.SearchRequest{
//	    Intent:     []string{"weather.forecast"},
//	    Categories: []string{"weather"},
//	})
//	best := results[0]
//	reply, err := c.Execute(ctx, best.Endpoint, best.ExecutionKey,
//	    "forecast", map[string]any{"city": "Berlin", "days": 3},
//	)
//
// The provider's envelope is returned whenever it can be decoded, even on
// non-2xx responses; check reply.Success and reply.Error.
func (c *Client) Execute(ctx context.Context, endpoint, executionKey, task string, params map[string]any) (*ExecuteResult, error) {
	payload, err := json.Marshal(ExecuteRequest{Task: task, Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	target := strings.TrimRight(endpoint, "/") + "/execute"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build provider request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+executionKey)

	// Execute against the provider, not the registry — use httpClient directly
	// so registry error mapping does not apply.
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call provider: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read provider response: %w", err)
	}

	var result ExecuteResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("provider returned HTTP %d: %s", resp.StatusCode, string(body))
	}
	return &result, nil
}

// do executes an HTTP request against the registry and returns the response
// body, translating non-2xx statuses into errors.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, apiMessage(body))
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: %s", ErrRateLimited, apiMessage(body))
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("registry error %d: %s", resp.StatusCode, apiMessage(body))
	}
	return body, nil
}

// apiMessage extracts the {"error": "..."} body the registry returns on
// failure, falling back to the raw body.
func apiMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(body))
}
