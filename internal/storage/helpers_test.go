package storage

import (
	"context"
	"testing"
	"time"

	"github.com/accrual-runner/internal/logging"
)

// testContext carries a timeout and a debug logger for storage calls
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return logging.WithLogger(ctx, logging.NewLogger(logging.LevelDebug, logging.FormatText))
}
