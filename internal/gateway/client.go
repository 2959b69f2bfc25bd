package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	sandboxBaseURL    = "https://sandbox.gateway.example.com"
	productionBaseURL = "https://gateway.example.com"

	// The processor does not return an expiry with the token; it documents a
	// one hour lifetime, so we refresh on that fixed schedule.
	tokenTTL = time.Hour

	defaultTimeout = 15 * time.Second
)

// Config holds connection parameters for the payment processor.
type Config struct {
	// Environment selects the processor endpoint: "production" hits the live
	// API, anything else stays in the sandbox.
	Environment string

	// BaseURL overrides the environment-derived endpoint. Used in tests.
	BaseURL string

	// Email and Password are the merchant API credentials exchanged for a
	// bearer token.
	Email    string
	Password string

	// Timeout bounds each outbound call. Zero means the default.
	Timeout time.Duration
}

// IsProduction reports whether the client targets the live processor.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c Config) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	if c.IsProduction() {
		return productionBaseURL
	}
	return sandboxBaseURL
}

// HTTPClient implements Client against the processor's JSON API.
//
// It holds the only piece of shared mutable state in the whole service: a
// single-slot token cache, guarded by a mutex. Two concurrent refreshes would
// merely waste an authentication call, but unsynchronized access is still a
// data race under the Go memory model, so we lock.
type HTTPClient struct {
	config Config
	http   *http.Client
	logger zerolog.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time

	now func() time.Time // injectable for expiry tests
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a processor client for the configured environment.
func NewHTTPClient(config Config, logger zerolog.Logger) *HTTPClient {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPClient{
		config: config,
		http:   &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "gateway").Logger(),
		now:    time.Now,
	}
}

// CheckTransactionStatus fetches the authoritative status of a transaction.
func (c *HTTPClient) CheckTransactionStatus(ctx context.Context, transactionID int64) (*StatusResult, error) {
	token, err := c.getValidToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("gateway token unavailable: %w", err)
	}

	url := fmt.Sprintf("%s/api/transactions/%d", c.config.baseURL(), transactionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn().
			Int("status_code", resp.StatusCode).
			Int64("transaction_id", transactionID).
			Bytes("body", body).
			Msg("gateway rejected status query")
		return nil, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	var payload struct {
		Status        string `json:"status"`
		OrderStatus   string `json:"orderStatus"`
		BankOrderID   string `json:"bankOrderId"`
		BankSessionID string `json:"bankSessionId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode gateway status response: %w", err)
	}

	return &StatusResult{
		Success:       true,
		Status:        payload.Status,
		OrderStatus:   payload.OrderStatus,
		BankOrderID:   payload.BankOrderID,
		BankSessionID: payload.BankSessionID,
	}, nil
}

// getValidToken returns the cached bearer token while it is fresh, otherwise
// performs a credential exchange. Any failure is logged and returned; callers
// treat a missing token as recoverable.
func (c *HTTPClient) getValidToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, nil
	}

	if c.config.Email == "" || c.config.Password == "" {
		c.logger.Error().Msg("gateway credentials not configured")
		return "", fmt.Errorf("gateway credentials not configured")
	}

	body, err := json.Marshal(map[string]string{
		"email":    c.config.Email,
		"password": c.config.Password,
	})
	if err != nil {
		return "", fmt.Errorf("encode auth request: %w", err)
	}

	url := c.config.baseURL() + "/api/auth/login"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Msg("gateway authentication request failed")
		return "", fmt.Errorf("gateway authentication failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error().Int("status_code", resp.StatusCode).Msg("gateway authentication rejected")
		return "", fmt.Errorf("gateway authentication returned status %d", resp.StatusCode)
	}

	var payload struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode auth response: %w", err)
	}
	if payload.Token == "" {
		c.logger.Error().Msg("gateway auth response missing token field")
		return "", fmt.Errorf("gateway auth response missing token")
	}

	c.token = payload.Token
	c.expiresAt = c.now().Add(tokenTTL)
	c.logger.Debug().Time("expires_at", c.expiresAt).Msg("gateway token refreshed")

	return c.token, nil
}
