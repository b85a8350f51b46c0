package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "github.com/accrual-runner/internal/errors"
	"github.com/accrual-runner/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *AccrualClient {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewAccrualClient(&AccrualClientConfig{
		BaseURL:   srv.URL,
		Referer:   "https://example.test/testnet",
		UserAgent: "accrual-runner-test",
		Timeout:   5 * time.Second,
	})
	require.NoError(t, err)
	return client
}

func TestCheckRegistration(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/check-registration", r.URL.Path)
		assert.Equal(t, "0xabc", r.URL.Query().Get("wallet"))
		assert.Equal(t, "https://example.test/testnet", r.Header.Get("Referer"))
		assert.Equal(t, "accrual-runner-test", r.Header.Get("User-Agent"))

		_, _ = w.Write([]byte(`{"isRegistered":true,"userData":{"referralBonus":0.05}}`))
	})

	resp, err := client.CheckRegistration(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.True(t, resp.IsRegistered)
	assert.Equal(t, 0.05, resp.UserData.ReferralBonus)
}

func TestUpdateBalance(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/update-balance", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req types.BalanceUpdateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "0xabc", req.Wallet)
		assert.Equal(t, int64(99), req.Earnings.Session)

		_ = json.NewEncoder(w).Encode(types.BalanceUpdateResponse{Success: true, Balance: req.Earnings.Total + 1})
	})

	resp, err := client.UpdateBalance(context.Background(), &types.BalanceUpdateRequest{
		Wallet:   "0xabc",
		Earnings: types.ReportedEarnings{Total: 2, Pending: 1, Session: 99},
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, 3.0, resp.Balance)
}

func TestClientErrorsAreClassifiedAtBoundary(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		retryAfter string
		wantKind   apperrors.Kind
		wantHint   time.Duration
	}{
		{"bad request", http.StatusBadRequest, "", apperrors.KindNonRetriable, 0},
		{"unauthorized", http.StatusUnauthorized, "", apperrors.KindNonRetriable, 0},
		{"rate limited with hint", http.StatusTooManyRequests, "7", apperrors.KindTransient, 7 * time.Second},
		{"server error", http.StatusBadGateway, "", apperrors.KindTransient, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"message":"nope"}`))
			})

			_, err := client.CheckRegistration(context.Background(), "0xabc")
			require.Error(t, err)

			re, ok := apperrors.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantKind, re.Kind)
			assert.Equal(t, tt.status, re.StatusCode)
			assert.Equal(t, tt.wantHint, re.RetryAfter)
			assert.Equal(t, OpCheckRegistration, re.Operation)
		})
	}
}

func TestNetworkFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	client, err := NewAccrualClient(&AccrualClientConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.UpdateBalance(context.Background(), &types.BalanceUpdateRequest{Wallet: "0xabc"})
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
	assert.Zero(t, apperrors.StatusCode(err))
}

func TestMalformedBodyIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	})

	_, err := client.CheckRegistration(context.Background(), "0xabc")
	require.Error(t, err)

	re, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindTransient, re.Kind)
}

func TestRateLimiterHonorsContext(t *testing.T) {
	client, err := NewAccrualClient(&AccrualClientConfig{
		BaseURL:   "http://127.0.0.1:1",
		RateLimit: 0.001,
		RateBurst: 1,
	})
	require.NoError(t, err)
	// drain the single burst token
	require.True(t, client.limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = client.CheckRegistration(ctx, "0xabc")
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
}

func TestNewAccrualClient_RequiresBaseURL(t *testing.T) {
	_, err := NewAccrualClient(&AccrualClientConfig{})
	assert.Error(t, err)
}
