package worker

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/accrual-runner/internal/accrual"
	"github.com/accrual-runner/internal/adapter"
)

func TestPauseAccountingProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("paused duration is the exact sum of degraded intervals", prop.ForAll(
		func(activeMs, downMs []int64) bool {
			f := newFixture(t, 0.1)
			w, err := NewAccountWorker(f.config("0xabc", 1))
			if err != nil {
				return false
			}
			ctx := context.Background()
			if err := w.initialize(ctx); err != nil {
				return false
			}

			var wantPaused, active time.Duration
			for i := range activeMs {
				up := time.Duration(activeMs[i]) * time.Millisecond
				down := time.Duration(downMs[i]) * time.Millisecond
				active += up
				wantPaused += down

				f.clock.Advance(up)
				f.service.setUpdateErr(transientErr(adapter.OpUpdateBalance))
				if w.PollOnce(ctx, false) == nil {
					return false
				}

				f.clock.Advance(down)
				f.service.setUpdateErr(nil)
				if err := w.PollOnce(ctx, false); err != nil {
					return false
				}
			}

			st := w.Status()
			if st.PausedDuration != wantPaused || !st.PauseStart.IsZero() {
				return false
			}

			// accrual over the whole span equals accrual over the active time alone
			updates := f.service.updatesFor("0xabc")
			last := updates[len(updates)-1]
			return last.Earnings.Pending == accrual.Accrue(75.5, active.Seconds(), 0.1)
		},
		gen.SliceOfN(4, gen.Int64Range(1_000, 10_000_000)),
		gen.SliceOfN(4, gen.Int64Range(0, 10_000_000)),
	))

	properties.TestingRun(t)
}
