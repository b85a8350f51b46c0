package worker

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/accrual-runner/internal/display"
	apperrors "github.com/accrual-runner/internal/errors"
	"github.com/accrual-runner/internal/logging"
	"github.com/accrual-runner/internal/retry"
	"github.com/accrual-runner/internal/storage"
	"github.com/accrual-runner/internal/types"
)

// fakeService records every call and echoes the reported total as the balance
type fakeService struct {
	mu         sync.Mutex
	registered bool
	userData   types.UserData
	regErr     error
	updateErr  error
	rejected   bool
	checks     int
	updates    []types.BalanceUpdateRequest

	// a non-nil gate holds each call until it is closed; entered gets a
	// signal as a call reaches the gate
	checkGate     chan struct{}
	checkEntered  chan struct{}
	updateGate    chan struct{}
	updateEntered chan struct{}
}

func (f *fakeService) holdAt(entered, gate chan struct{}) {
	if gate == nil {
		return
	}
	select {
	case entered <- struct{}{}:
	default:
	}
	<-gate
}

func newFakeService(bonus float64) *fakeService {
	return &fakeService{registered: true, userData: types.UserData{ReferralBonus: bonus}}
}

func (f *fakeService) CheckRegistration(ctx context.Context, wallet string) (*types.RegistrationResponse, error) {
	f.holdAt(f.checkEntered, f.checkGate)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.checks++
	if f.regErr != nil {
		return nil, f.regErr
	}
	return &types.RegistrationResponse{IsRegistered: f.registered, UserData: f.userData}, nil
}

func (f *fakeService) UpdateBalance(ctx context.Context, req *types.BalanceUpdateRequest) (*types.BalanceUpdateResponse, error) {
	f.holdAt(f.updateEntered, f.updateGate)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.updates = append(f.updates, *req)
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	if f.rejected {
		return &types.BalanceUpdateResponse{Success: false}, nil
	}
	return &types.BalanceUpdateResponse{Success: true, Balance: req.Earnings.Total}, nil
}

func (f *fakeService) setUpdateErr(err error) {
	f.mu.Lock()
	f.updateErr = err
	f.mu.Unlock()
}

func (f *fakeService) checkCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checks
}

func (f *fakeService) updatesFor(wallet string) []types.BalanceUpdateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []types.BalanceUpdateRequest
	for _, u := range f.updates {
		if u.Wallet == wallet {
			out = append(out, u)
		}
	}
	return out
}

func (f *fakeService) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}

// fakeClock only moves when told to, or by step on every read
type fakeClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordingReporter keeps every report
type recordingReporter struct {
	mu        sync.Mutex
	statuses  []display.StatusReport
	summaries []display.Summary
}

func (r *recordingReporter) Status(report display.StatusReport) {
	r.mu.Lock()
	r.statuses = append(r.statuses, report)
	r.mu.Unlock()
}

func (r *recordingReporter) Summary(summary display.Summary) {
	r.mu.Lock()
	r.summaries = append(r.summaries, summary)
	r.mu.Unlock()
}

func (r *recordingReporter) statusCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.statuses)
}

func testLogger() *logging.Logger {
	return logging.NewLoggerWithOutput(logging.LevelDebug, logging.FormatJSON, io.Discard)
}

// noSleepRetry attempts once per call unless attempts says otherwise
func noSleepRetry(attempts int) *retry.RetryConfig {
	cfg := retry.DefaultRetryConfig()
	cfg.MaxAttempts = attempts
	cfg.Sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return cfg
}

type workerFixture struct {
	service  *fakeService
	clock    *fakeClock
	store    *storage.SessionStore
	reporter *recordingReporter
}

func newFixture(t *testing.T, bonus float64) *workerFixture {
	t.Helper()
	return &workerFixture{
		service:  newFakeService(bonus),
		clock:    newFakeClock(),
		store:    storage.NewSessionStore(storage.NewFileBackend(t.TempDir())),
		reporter: &recordingReporter{},
	}
}

func (f *workerFixture) config(identifier string, index int) *AccountWorkerConfig {
	return &AccountWorkerConfig{
		Identifier:      identifier,
		Index:           index,
		Service:         f.service,
		Sessions:        f.store,
		Reporter:        f.reporter,
		Retry:           noSleepRetry(1),
		Logger:          testLogger(),
		Hashrate:        75.5,
		PollInterval:    time.Hour,
		FailureCooldown: time.Hour,
		InitRetryDelay:  time.Hour,
		Now:             f.clock.Now,
		NewSessionID:    func() int64 { return 42 },
	}
}

func (f *workerFixture) newWorker(t *testing.T, identifier string) *AccountWorker {
	t.Helper()
	w, err := NewAccountWorker(f.config(identifier, 1))
	require.NoError(t, err)
	return w
}

func transientErr(op string) error {
	return apperrors.NewTransientError(op, 503, 0, nil)
}

type stopResult struct {
	paid float64
	err  error
}

func stopAsync(ctx context.Context, w *AccountWorker) <-chan stopResult {
	out := make(chan stopResult, 1)
	go func() {
		paid, err := w.Stop(ctx)
		out <- stopResult{paid: paid, err: err}
	}()
	return out
}

func receiveWithin[T any](t *testing.T, ch <-chan T, d time.Duration, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(d):
		t.Fatalf("timed out waiting for %s", what)
	}
	var zero T
	return zero
}
