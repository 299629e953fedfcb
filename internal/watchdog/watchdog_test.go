package watchdog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stocksentry/stocksentry/internal/ledger"
	"github.com/stocksentry/stocksentry/internal/testutil"
	"github.com/stocksentry/stocksentry/pkg/types"
)

func TestSweep_RecoversStuckExecutions(t *testing.T) {
	ctx := context.Background()
	led := ledger.NewMemory()
	start := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	clock := testutil.NewFakeClock(start.Add(30 * time.Minute))

	require.NoError(t, led.Record(ctx, types.Execution{
		ID: "stuck", RuleID: "rule-1", Status: types.ExecutionRunning, StartTime: start,
	}))
	require.NoError(t, led.Record(ctx, types.Execution{
		ID: "fresh", RuleID: "rule-1", Status: types.ExecutionRunning, StartTime: clock.Now().Add(-time.Minute),
	}))

	w := New(types.WatchdogConfig{StuckFor: types.Duration(10 * time.Minute)}, led, clock, nil)
	assert.Equal(t, 1, w.Sweep(ctx))

	stuck, err := led.Get(ctx, "stuck")
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionFailed, stuck.Status)
	require.Len(t, stuck.Errors, 1)
	assert.Equal(t, types.FailureTimeout, stuck.Errors[0].Category)

	fresh, err := led.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionRunning, fresh.Status)

	// A second sweep finds nothing new.
	assert.Zero(t, w.Sweep(ctx))
}

func TestSweep_EmptyLedger(t *testing.T) {
	w := New(types.WatchdogConfig{}, ledger.NewMemory(), testutil.NewFakeClock(time.Now()), nil)
	assert.Zero(t, w.Sweep(context.Background()))
}

func TestStartStop_SweepsOnTicks(t *testing.T) {
	ctx := context.Background()
	led := ledger.NewMemory()
	start := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	clock := testutil.NewFakeClock(start.Add(time.Hour))

	require.NoError(t, led.Record(ctx, types.Execution{
		ID: "stuck", RuleID: "rule-1", Status: types.ExecutionRunning, StartTime: start,
	}))

	w := New(types.WatchdogConfig{StuckFor: types.Duration(10 * time.Minute)}, led, clock, nil)
	w.Start(ctx)
	defer w.Stop()

	require.Eventually(t, func() bool {
		clock.Advance(time.Second)
		got, err := led.Get(ctx, "stuck")
		return err == nil && got.Status == types.ExecutionFailed
	}, time.Second, 5*time.Millisecond)
}
