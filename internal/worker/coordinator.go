package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/remeh/sizedwaitgroup"

	"github.com/accrual-runner/internal/display"
	"github.com/accrual-runner/internal/logging"
	"github.com/accrual-runner/internal/wallets"
)

// WorkerFactory builds the worker for one identifier. index is 1-based.
type WorkerFactory func(identifier string, index int) (*AccountWorker, error)

// Coordinator owns one worker per loaded identifier and aggregates their
// results at shutdown.
type Coordinator struct {
	source              wallets.Source
	newWorker           WorkerFactory
	reporter            display.Reporter
	shutdownConcurrency int
	runID               string
	logger              *logging.Logger

	mu        sync.Mutex
	running   bool
	workers   []*AccountWorker
	totalPaid float64
	runWG     sync.WaitGroup
}

// CoordinatorConfig holds configuration for the coordinator
type CoordinatorConfig struct {
	Source    wallets.Source
	NewWorker WorkerFactory
	Reporter  display.Reporter
	// ShutdownConcurrency bounds concurrent final flushes; 0 flushes all at once
	ShutdownConcurrency int
	Logger              *logging.Logger
}

// NewCoordinator creates a new coordinator
func NewCoordinator(cfg *CoordinatorConfig) (*Coordinator, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("wallet source cannot be nil")
	}
	if cfg.NewWorker == nil {
		return nil, fmt.Errorf("worker factory cannot be nil")
	}
	if cfg.Reporter == nil {
		return nil, fmt.Errorf("reporter cannot be nil")
	}

	runID := uuid.New().String()
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	return &Coordinator{
		source:              cfg.Source,
		newWorker:           cfg.NewWorker,
		reporter:            cfg.Reporter,
		shutdownConcurrency: cfg.ShutdownConcurrency,
		runID:               runID,
		logger:              logger.WithField("run_id", runID),
	}, nil
}

// RunID identifies this coordinator in logs
func (c *Coordinator) RunID() string { return c.runID }

// Workers returns the workers created by Start in index order
func (c *Coordinator) Workers() []*AccountWorker {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*AccountWorker, len(c.workers))
	copy(out, c.workers)
	return out
}

// TotalPaid returns the total computed by the last Shutdown
func (c *Coordinator) TotalPaid() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalPaid
}

// IsRunning reports whether Start has been called
func (c *Coordinator) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Start loads identifiers and launches one worker each. A second call
// logs and does nothing. An empty or unreadable identifier list starts
// no workers and is not an error.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		c.logger.Warn("Mining coordinator is already running")
		return nil
	}
	c.running = true

	ids, err := c.source.Load()
	if err != nil {
		c.logger.WithError(err).Error("Error loading wallets")
		ids = nil
	}
	if len(ids) == 0 {
		c.logger.Warn("No valid wallets found")
		return nil
	}
	c.logger.Infof("Loaded %d wallets", len(ids))

	workers := make([]*AccountWorker, 0, len(ids))
	for i, id := range ids {
		w, err := c.newWorker(id, i+1)
		if err != nil {
			return fmt.Errorf("create worker %d: %w", i+1, err)
		}
		workers = append(workers, w)
	}
	c.workers = workers

	ctx = logging.WithLogger(ctx, c.logger)
	for _, w := range workers {
		c.runWG.Add(1)
		go func(w *AccountWorker) {
			defer c.runWG.Done()
			w.Run(ctx)
		}(w)
	}

	return nil
}

// Shutdown stops every worker, waits for their final flushes and reports
// the summary. Total paid is the sum of each worker's final paid amount,
// including workers whose flush failed.
func (c *Coordinator) Shutdown(ctx context.Context) display.Summary {
	c.mu.Lock()
	workers := c.workers
	c.mu.Unlock()

	c.logger.Info("Mining Power Off...")

	limit := c.shutdownConcurrency
	if limit <= 0 || limit > len(workers) {
		limit = len(workers)
	}
	if limit < 1 {
		limit = 1
	}

	paid := make([]float64, len(workers))
	swg := sizedwaitgroup.New(limit)
	for i, w := range workers {
		swg.Add()
		go func(i int, w *AccountWorker) {
			defer swg.Done()
			p, err := w.Stop(ctx)
			if err != nil {
				c.logger.WithError(err).WithField("wallet", w.Index()).Error("Final update failed")
			}
			paid[i] = p
		}(i, w)
	}
	swg.Wait()
	c.runWG.Wait()

	var total float64
	for _, p := range paid {
		total += p
	}

	c.mu.Lock()
	c.totalPaid = total
	c.mu.Unlock()

	summary := display.Summary{Wallets: len(workers), TotalPaid: total}
	c.reporter.Summary(summary)
	return summary
}
