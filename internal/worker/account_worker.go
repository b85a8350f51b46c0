package worker

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/accrual-runner/internal/accrual"
	"github.com/accrual-runner/internal/adapter"
	"github.com/accrual-runner/internal/display"
	apperrors "github.com/accrual-runner/internal/errors"
	"github.com/accrual-runner/internal/logging"
	"github.com/accrual-runner/internal/models"
	"github.com/accrual-runner/internal/retry"
	"github.com/accrual-runner/internal/storage"
	"github.com/accrual-runner/internal/types"
	"github.com/accrual-runner/internal/wallets"
)

// State is the lifecycle position of an account worker
type State string

const (
	StateUninitialized State = "uninitialized"
	StateRegistering   State = "registering"
	StateActive        State = "active"
	StateDegraded      State = "degraded"
	StateStopped       State = "stopped"
)

// Default timings
const (
	DefaultPollInterval    = 30 * time.Second
	DefaultFailureCooldown = 60 * time.Second
	DefaultInitRetryDelay  = 10 * time.Second
	DefaultHashrate        = 75.5

	maxSessionID = 1_000_000
)

// errStopped aborts an initialize attempt that lost the race with Stop
var errStopped = errors.New("worker stopped")

// AccountWorker drives periodic accrual reporting for one account
type AccountWorker struct {
	identifier string
	index      int

	service  adapter.AccrualService
	sessions *storage.SessionStore
	reporter display.Reporter
	retry    *retry.RetryConfig
	logger   *logging.Logger

	hashrate        float64
	pollInterval    time.Duration
	failureCooldown time.Duration
	initRetryDelay  time.Duration
	now             func() time.Time
	newSessionID    func() int64

	// cycleMu serializes initialize attempts, polls and the final flush
	cycleMu sync.Mutex

	mu             sync.RWMutex
	state          State
	active         bool
	stopped        bool
	earnings       types.Earnings
	referralBonus  float64
	startTime      time.Time
	pausedDuration time.Duration
	pauseStart     time.Time
	sessionID      int64

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// AccountWorkerConfig holds configuration for an account worker
type AccountWorkerConfig struct {
	Identifier string
	Index      int

	Service  adapter.AccrualService
	Sessions *storage.SessionStore
	Reporter display.Reporter
	Retry    *retry.RetryConfig
	Logger   *logging.Logger

	Hashrate        float64 // zero uses DefaultHashrate
	PollInterval    time.Duration
	FailureCooldown time.Duration
	InitRetryDelay  time.Duration

	// Now and NewSessionID default to the wall clock and a random id
	Now          func() time.Time
	NewSessionID func() int64
}

// WorkerStatus is a point-in-time copy of a worker's state
type WorkerStatus struct {
	Identifier     string
	Index          int
	State          State
	Active         bool
	Earnings       types.Earnings
	ReferralBonus  float64
	StartTime      time.Time
	PausedDuration time.Duration
	PauseStart     time.Time
	SessionID      int64
}

// NewAccountWorker creates a new account worker
func NewAccountWorker(cfg *AccountWorkerConfig) (*AccountWorker, error) {
	if cfg.Identifier == "" {
		return nil, fmt.Errorf("identifier cannot be empty")
	}
	if cfg.Service == nil {
		return nil, fmt.Errorf("accrual service cannot be nil")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session store cannot be nil")
	}
	if cfg.Reporter == nil {
		return nil, fmt.Errorf("reporter cannot be nil")
	}

	w := &AccountWorker{
		identifier:      cfg.Identifier,
		index:           cfg.Index,
		service:         cfg.Service,
		sessions:        cfg.Sessions,
		reporter:        cfg.Reporter,
		retry:           cfg.Retry,
		hashrate:        cfg.Hashrate,
		pollInterval:    cfg.PollInterval,
		failureCooldown: cfg.FailureCooldown,
		initRetryDelay:  cfg.InitRetryDelay,
		now:             cfg.Now,
		newSessionID:    cfg.NewSessionID,
		state:           StateUninitialized,
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
	}

	if w.retry == nil {
		w.retry = retry.DefaultRetryConfig()
	}
	if w.hashrate < 0 {
		return nil, fmt.Errorf("hashrate cannot be negative")
	}
	if w.hashrate == 0 {
		w.hashrate = DefaultHashrate
	}
	if w.pollInterval <= 0 {
		w.pollInterval = DefaultPollInterval
	}
	if w.failureCooldown <= 0 {
		w.failureCooldown = DefaultFailureCooldown
	}
	if w.initRetryDelay <= 0 {
		w.initRetryDelay = DefaultInitRetryDelay
	}
	if w.now == nil {
		w.now = time.Now
	}
	if w.newSessionID == nil {
		w.newSessionID = func() int64 { return rand.Int64N(maxSessionID) }
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	w.logger = logger.WithFields(map[string]interface{}{
		"wallet": cfg.Index,
		"id":     wallets.Mask(cfg.Identifier),
	})

	return w, nil
}

// Identifier returns the account key
func (w *AccountWorker) Identifier() string { return w.identifier }

// Index returns the 1-based position of the worker
func (w *AccountWorker) Index() int { return w.index }

// Done is closed when Run returns
func (w *AccountWorker) Done() <-chan struct{} { return w.doneCh }

// Status returns a snapshot of the worker state
func (w *AccountWorker) Status() WorkerStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return WorkerStatus{
		Identifier:     w.identifier,
		Index:          w.index,
		State:          w.state,
		Active:         w.active,
		Earnings:       w.earnings,
		ReferralBonus:  w.referralBonus,
		StartTime:      w.startTime,
		PausedDuration: w.pausedDuration,
		PauseStart:     w.pauseStart,
		SessionID:      w.sessionID,
	}
}

// Run initializes the worker, retrying until it succeeds or the worker is
// stopped, and then polls until Stop is called.
func (w *AccountWorker) Run(ctx context.Context) {
	defer close(w.doneCh)
	ctx = logging.WithLogger(ctx, w.logger)

	for {
		if w.stopRequested() {
			return
		}

		err := w.initialize(ctx)
		if err == nil {
			break
		}
		if errors.Is(err, errStopped) {
			return
		}

		w.logger.WithError(err).Error("Initialization failed")
		w.logger.Warnf("Retrying initialization in %s", w.initRetryDelay)
		if !w.wait(ctx, w.initRetryDelay) {
			return
		}
	}

	w.loop(ctx)
}

// initialize checks registration and restores or creates the session
func (w *AccountWorker) initialize(ctx context.Context) error {
	w.cycleMu.Lock()
	defer w.cycleMu.Unlock()

	if w.stopRequested() {
		return errStopped
	}
	w.setState(StateRegistering)

	var reg *types.RegistrationResponse
	err := retry.Do(ctx, w.retry, adapter.OpCheckRegistration, func(ctx context.Context) error {
		resp, err := w.service.CheckRegistration(ctx, w.identifier)
		if err != nil {
			return err
		}
		reg = resp
		return nil
	})
	if err != nil {
		return fmt.Errorf("check registration: %w", err)
	}
	if !reg.IsRegistered {
		return apperrors.ErrNotRegistered
	}

	record, resumed := w.sessions.Load(ctx, w.identifier)
	now := w.clock()

	w.mu.Lock()
	if resumed {
		w.startTime = record.StartTime
		w.earnings = record.Earnings
		w.referralBonus = record.ReferralBonus
		w.pausedDuration = record.PausedDuration
		w.sessionID = record.SessionID
		if w.sessionID == 0 {
			w.sessionID = w.newSessionID()
		}
	} else {
		w.referralBonus = reg.UserData.ReferralBonus
		w.earnings = types.Earnings{}
		if reg.UserData.Balance != nil {
			w.earnings.Total = *reg.UserData.Balance
		}
		w.startTime = now
		w.pausedDuration = 0
		w.sessionID = w.newSessionID()
	}
	w.pauseStart = time.Time{}
	// a Stop that arrived during registration has already closed stopCh
	w.active = !w.stopRequested()
	w.state = StateActive
	w.mu.Unlock()

	if resumed {
		w.logger.Info("Previous session loaded successfully")
		w.logger.Info("Mining resumed successfully")
	} else {
		w.logger.Info("Mining initialized successfully")
	}
	return nil
}

// loop polls until the worker is stopped
func (w *AccountWorker) loop(ctx context.Context) {
	for w.isActive() {
		if err := w.PollOnce(ctx, false); err != nil {
			w.logger.WithError(err).Error("API error detected, switching to offline mode")
			w.logger.Warnf("Retrying in %s", w.failureCooldown)
			if !w.wait(ctx, w.failureCooldown) {
				return
			}
		}
		if !w.wait(ctx, w.pollInterval) {
			return
		}
	}
}

// PollOnce runs one reporting cycle. A final cycle moves everything
// accrued into paid and always reports, however small the amount.
func (w *AccountWorker) PollOnce(ctx context.Context, final bool) error {
	w.cycleMu.Lock()
	defer w.cycleMu.Unlock()

	if !final && w.stopRequested() {
		return nil
	}
	return w.pollOnceLocked(ctx, final)
}

// pollOnceLocked requires cycleMu
func (w *AccountWorker) pollOnceLocked(ctx context.Context, final bool) error {
	now := w.clock()

	w.mu.Lock()
	if !w.pauseStart.IsZero() {
		downtime := now.Sub(w.pauseStart)
		if downtime < 0 {
			downtime = 0
		}
		w.pausedDuration += downtime
		w.pauseStart = time.Time{}
		if !w.stopped {
			w.state = StateActive
		}
		w.logger.WithField("downtime", downtime.String()).
			Infof("Resumed after downtime of %.2f seconds", downtime.Seconds())
	}

	newEarnings := accrual.Accrue(
		w.hashrate,
		accrual.ElapsedActiveSeconds(now, w.startTime, w.pausedDuration),
		w.referralBonus,
	)
	if !final && newEarnings < accrual.MinReportable {
		w.mu.Unlock()
		return nil
	}

	pending := newEarnings
	paid := w.earnings.Paid
	if final {
		pending = 0
		paid += newEarnings
	}
	req := &types.BalanceUpdateRequest{
		Wallet: w.identifier,
		Earnings: types.ReportedEarnings{
			Total:   w.earnings.Total + newEarnings,
			Pending: pending,
			Paid:    paid,
			Session: w.sessionID,
		},
	}
	w.mu.Unlock()

	var resp *types.BalanceUpdateResponse
	err := retry.Do(ctx, w.retry, adapter.OpUpdateBalance, func(ctx context.Context) error {
		r, err := w.service.UpdateBalance(ctx, req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		w.enterDegraded()
		w.logger.WithError(err).Error("Update failed")
		return fmt.Errorf("update balance: %w", err)
	}

	if !resp.Success {
		w.logger.Warn("Balance update not accepted by service")
		return nil
	}

	w.mu.Lock()
	w.earnings = types.Earnings{
		Total:   resp.Balance,
		Pending: pending,
		Paid:    paid,
	}
	record := w.snapshotLocked()
	report := display.StatusReport{
		Index:         w.index,
		Identifier:    w.identifier,
		Final:         final,
		Uptime:        accrual.ActiveUptime(now, w.startTime, w.pausedDuration),
		Active:        w.active,
		Hashrate:      w.hashrate,
		Earnings:      w.earnings,
		ReferralBonus: w.referralBonus,
	}
	w.mu.Unlock()

	w.sessions.Save(ctx, w.identifier, record)
	w.reporter.Status(report)
	return nil
}

// enterDegraded starts excluding time from accrual. Repeated failures
// keep the first pause start.
func (w *AccountWorker) enterDegraded() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.pauseStart.IsZero() {
		return
	}
	w.pauseStart = w.clock()
	if !w.stopped {
		w.state = StateDegraded
	}
	w.logger.Warn("Entering maintenance mode, pausing earnings calculation")
}

// Stop ends polling, flushes pending earnings into paid and persists the
// final state. It waits for any in-flight cycle and returns the final paid
// amount; a failed flush is returned alongside the unflushed amount.
func (w *AccountWorker) Stop(ctx context.Context) (float64, error) {
	w.requestStop()

	w.cycleMu.Lock()
	defer w.cycleMu.Unlock()

	w.mu.Lock()
	if w.stopped {
		paid := w.earnings.Paid
		w.mu.Unlock()
		return paid, nil
	}
	w.stopped = true
	w.active = false
	started := !w.startTime.IsZero()
	if !started {
		w.state = StateStopped
		paid := w.earnings.Paid
		w.mu.Unlock()
		return paid, nil
	}
	w.mu.Unlock()

	ctx = logging.WithLogger(ctx, w.logger)
	flushErr := w.pollOnceLocked(ctx, true)

	w.mu.Lock()
	w.state = StateStopped
	record := w.snapshotLocked()
	paid := w.earnings.Paid
	w.mu.Unlock()

	w.sessions.Save(ctx, w.identifier, record)

	if flushErr != nil {
		return paid, fmt.Errorf("final flush: %w", flushErr)
	}
	return paid, nil
}

// snapshotLocked requires mu
func (w *AccountWorker) snapshotLocked() *models.SessionRecord {
	return &models.SessionRecord{
		StartTime:      w.startTime,
		Earnings:       w.earnings,
		ReferralBonus:  w.referralBonus,
		SessionID:      w.sessionID,
		PausedDuration: w.pausedDuration,
	}
}

// requestStop closes stopCh before clearing active, so initialize either
// sees the closed channel or has its active flag cleared afterwards
func (w *AccountWorker) requestStop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.mu.Lock()
		w.active = false
		w.mu.Unlock()
	})
}

// clock reads the time at the millisecond resolution sessions are stored at
func (w *AccountWorker) clock() time.Time {
	return w.now().Truncate(time.Millisecond)
}

func (w *AccountWorker) stopRequested() bool {
	select {
	case <-w.stopCh:
		return true
	default:
		return false
	}
}

func (w *AccountWorker) isActive() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.active
}

func (w *AccountWorker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// wait sleeps for d; it returns false if the worker was stopped or ctx ended first
func (w *AccountWorker) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-w.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}
