package baostock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wonny/aegis-ingest/internal/contracts"
	"github.com/wonny/aegis-ingest/pkg/config"
	"github.com/wonny/aegis-ingest/pkg/httputil"
	"github.com/wonny/aegis-ingest/pkg/logger"
	"github.com/wonny/aegis-ingest/pkg/metrics"
)

// ErrAuth marks responses that require a new session
var ErrAuth = errors.New("provider session not authenticated")

// authErrorCodes are the provider codes for a missing or expired login
var authErrorCodes = map[string]bool{
	"10001001": true, // not logged in
	"10001011": true, // session expired
}

const sessionHeader = "X-Session-Id"

// ProviderError is a non-zero error_code in a provider response
type ProviderError struct {
	Code string
	Msg  string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %s: %s", e.Code, e.Msg)
}

// Is lets errors.Is(err, ErrAuth) match authentication codes
func (e *ProviderError) Is(target error) bool {
	return target == ErrAuth && authErrorCodes[e.Code]
}

// resultSet is the provider's tabular response envelope
type resultSet struct {
	ErrorCode string     `json:"error_code"`
	ErrorMsg  string     `json:"error_msg"`
	Fields    []string   `json:"fields"`
	Data      [][]string `json:"data"`
}

// column returns the index of field or -1
func (r *resultSet) column(field string) int {
	for i, f := range r.Fields {
		if f == field {
			return i
		}
	}
	return -1
}

// Client talks to the bar provider gateway
// ⭐ SSOT: 시세 provider 호출은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	metrics    *metrics.Metrics
	baseURL    string
	session    *SessionManager
	strategy   contracts.Strategy

	retries    int
	retryDelay time.Duration
}

// Option customizes a Client
type Option func(*Client)

// WithRetries sets the attempt bound and the pause between attempts
func WithRetries(attempts int, delay time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.retries = attempts
		}
		c.retryDelay = delay
	}
}

// WithStrategy sets the frequency and adjustment basis of history requests
func WithStrategy(s contracts.Strategy) Option {
	return func(c *Client) { c.strategy = s }
}

// WithMetrics records attempts and logins
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a provider client with its own session manager.
// The http client should have retry disabled; this client owns the retry loop.
func NewClient(cfg config.ProviderConfig, httpClient *httputil.Client, log *logger.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient: httpClient,
		logger:     log.Module("baostock"),
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		retries:    5,
		retryDelay: time.Second,
	}
	c.strategy, _ = contracts.ResolveStrategy(contracts.Interval1d, contracts.RegionCN)
	for _, opt := range opts {
		opt(c)
	}
	c.session = NewSessionManager(func(ctx context.Context) (string, error) {
		return c.login(ctx, cfg.User, cfg.Password)
	}, c.logger)
	return c
}

// Session returns the shared session manager
func (c *Client) Session() *SessionManager {
	return c.session
}

type loginResponse struct {
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
	SessionID string `json:"session_id"`
}

func (c *Client) login(ctx context.Context, user, password string) (string, error) {
	resp, err := c.httpClient.PostJSON(ctx, c.baseURL+"/login", map[string]string{
		"user_id":  user,
		"password": password,
	})
	if err != nil {
		return "", fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login failed with status %d", resp.StatusCode)
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return "", fmt.Errorf("failed to decode login response: %w", err)
	}
	if lr.ErrorCode != "0" {
		return "", &ProviderError{Code: lr.ErrorCode, Msg: lr.ErrorMsg}
	}

	if c.metrics != nil {
		c.metrics.SessionLogins.Inc()
	}
	return lr.SessionID, nil
}

// query performs one authenticated GET. Authentication failures clear the
// session flag so the next attempt logs in again.
func (c *Client) query(ctx context.Context, path string, params url.Values) (*resultSet, error) {
	sessionID, err := c.session.Ensure(ctx)
	if err != nil {
		return nil, fmt.Errorf("ensure session: %w", err)
	}

	fullURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set(sessionHeader, sessionID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.session.Invalidate()
		return nil, fmt.Errorf("%w: status %d", ErrAuth, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var rs resultSet
	if err := json.NewDecoder(resp.Body).Decode(&rs); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if rs.ErrorCode != "0" {
		perr := &ProviderError{Code: rs.ErrorCode, Msg: rs.ErrorMsg}
		if errors.Is(perr, ErrAuth) {
			c.session.Invalidate()
		}
		return nil, perr
	}
	return &rs, nil
}

// withRetry runs fn up to c.retries times with identical arguments
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= c.retries; attempt++ {
		if err = fn(); err == nil {
			c.observe("ok")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == c.retries {
			break
		}

		c.observe("retry")
		c.logger.WithError(err).WithFields(map[string]interface{}{
			"op":      op,
			"attempt": attempt,
		}).Warn("provider call failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryDelay):
		}
	}

	c.observe("failed")
	return fmt.Errorf("%s failed after %d attempts: %w", op, c.retries, err)
}

func (c *Client) observe(result string) {
	if c.metrics != nil {
		c.metrics.FetchAttempts.WithLabelValues(result).Inc()
	}
}
