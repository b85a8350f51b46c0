// Package adapter talks to the remote balance-accrual service.
package adapter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	apperrors "github.com/accrual-runner/internal/errors"
	"github.com/accrual-runner/internal/jsonx"
	"github.com/accrual-runner/internal/types"
	"golang.org/x/time/rate"
)

const (
	// OpCheckRegistration names the registration call in logs and errors
	OpCheckRegistration = "Registration check"
	// OpUpdateBalance names the balance update call in logs and errors
	OpUpdateBalance = "Balance update"

	maxErrorBody = 4 << 10
)

// AccrualService is the remote API consumed by account workers
type AccrualService interface {
	CheckRegistration(ctx context.Context, wallet string) (*types.RegistrationResponse, error)
	UpdateBalance(ctx context.Context, req *types.BalanceUpdateRequest) (*types.BalanceUpdateResponse, error)
}

// AccrualClient is the HTTP implementation of AccrualService. Every failure
// it returns is an *errors.RemoteError.
type AccrualClient struct {
	baseURL   string
	referer   string
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter // shared by every worker using this client
}

// AccrualClientConfig holds configuration for the client
type AccrualClientConfig struct {
	BaseURL    string
	Referer    string
	UserAgent  string
	Timeout    time.Duration
	RateLimit  float64 // requests per second; 0 disables pacing
	RateBurst  int
	HTTPClient *http.Client
}

// NewAccrualClient creates a new accrual service client
func NewAccrualClient(cfg *AccrualClientConfig) (*AccrualClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &AccrualClient{
		baseURL:   cfg.BaseURL,
		referer:   cfg.Referer,
		userAgent: cfg.UserAgent,
		client:    httpClient,
		limiter:   limiter,
	}, nil
}

// CheckRegistration calls GET /check-registration?wallet=<wallet>
func (c *AccrualClient) CheckRegistration(ctx context.Context, wallet string) (*types.RegistrationResponse, error) {
	endpoint := fmt.Sprintf("%s/check-registration?wallet=%s", c.baseURL, url.QueryEscape(wallet))

	var out types.RegistrationResponse
	if err := c.do(ctx, OpCheckRegistration, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateBalance calls POST /update-balance
func (c *AccrualClient) UpdateBalance(ctx context.Context, req *types.BalanceUpdateRequest) (*types.BalanceUpdateResponse, error) {
	body, err := jsonx.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode balance update: %w", err)
	}

	var out types.BalanceUpdateResponse
	if err := c.do(ctx, OpUpdateBalance, http.MethodPost, c.baseURL+"/update-balance", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do performs one request and converts every failure into a RemoteError
func (c *AccrualClient) do(ctx context.Context, op, method, endpoint string, body []byte, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return apperrors.NewTransientError(op, 0, 0, err)
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return apperrors.NewTransientError(op, 0, 0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.referer != "" {
		req.Header.Set("Referer", c.referer)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return apperrors.NewTransientError(op, 0, 0, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var errBody types.ErrorResponse
		_ = jsonx.Unmarshal(raw, &errBody)
		return apperrors.FromHTTPStatus(op, resp.StatusCode,
			apperrors.ParseRetryAfter(resp.Header.Get("Retry-After")), errBody.Message)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.NewTransientError(op, resp.StatusCode, 0, err)
	}
	if err := jsonx.Unmarshal(raw, out); err != nil {
		return apperrors.NewTransientError(op, resp.StatusCode, 0, fmt.Errorf("decode response: %w", err))
	}
	return nil
}
