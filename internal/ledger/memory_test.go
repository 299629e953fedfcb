package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stocksentry/stocksentry/pkg/types"
)

func running(id, ruleID string, start time.Time) types.Execution {
	return types.Execution{
		ID:        id,
		RuleID:    ruleID,
		Status:    types.ExecutionRunning,
		StartTime: start,
	}
}

func finalized(exec types.Execution, status types.ExecutionStatus, dur time.Duration) types.Execution {
	end := exec.StartTime.Add(dur)
	exec.Status = status
	exec.EndTime = &end
	return exec
}

func TestMemory_RecordAndFinalize(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	start := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

	exec := running("exec-1", "rule-1", start)
	require.NoError(t, m.Record(ctx, exec))

	got, err := m.Get(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionRunning, got.Status)

	final := finalized(exec, types.ExecutionSuccess, 120*time.Millisecond)
	final.RecordsProcessed = 10
	final.RecordsAffected = 3
	require.NoError(t, m.Finalize(ctx, final))

	got, err = m.Get(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionSuccess, got.Status)
	assert.Equal(t, 3, got.RecordsAffected)
}

func TestMemory_FinalizeIsOnce(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	start := time.Now()

	exec := running("exec-1", "rule-1", start)
	require.NoError(t, m.Record(ctx, exec))
	require.NoError(t, m.Finalize(ctx, finalized(exec, types.ExecutionSuccess, time.Millisecond)))

	err := m.Finalize(ctx, finalized(exec, types.ExecutionFailed, time.Millisecond))
	assert.ErrorIs(t, err, ErrAlreadyFinal)

	got, err := m.Get(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionSuccess, got.Status)
}

func TestMemory_DuplicateRecord(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	exec := running("exec-1", "rule-1", time.Now())
	require.NoError(t, m.Record(ctx, exec))
	assert.Error(t, m.Record(ctx, exec))
}

func TestMemory_ListFilters(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	for i, ruleID := range []string{"rule-1", "rule-2", "rule-1"} {
		exec := running(string(rune('a'+i)), ruleID, base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, m.Record(ctx, exec))
		status := types.ExecutionSuccess
		if i == 2 {
			status = types.ExecutionFailed
		}
		require.NoError(t, m.Finalize(ctx, finalized(exec, status, time.Second)))
	}

	byRule, err := m.List(ctx, types.ExecutionFilter{RuleID: "rule-1"})
	require.NoError(t, err)
	assert.Len(t, byRule, 2)
	// Newest first.
	assert.Equal(t, "c", byRule[0].ID)

	byStatus, err := m.List(ctx, types.ExecutionFilter{Status: types.ExecutionFailed})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, "c", byStatus[0].ID)

	windowed, err := m.List(ctx, types.ExecutionFilter{From: base.Add(30 * time.Minute), To: base.Add(90 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, windowed, 1)
	assert.Equal(t, "b", windowed[0].ID)

	limited, err := m.List(ctx, types.ExecutionFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestMemory_StatsAreIncremental(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	durations := []time.Duration{100 * time.Millisecond, 300 * time.Millisecond}
	statuses := []types.ExecutionStatus{types.ExecutionSuccess, types.ExecutionFailed}
	for i := range durations {
		exec := running(string(rune('a'+i)), "rule-1", base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, m.Record(ctx, exec))
		require.NoError(t, m.Finalize(ctx, finalized(exec, statuses[i], durations[i])))
	}

	stats, err := m.Stats(ctx, "rule-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.ExecutionCount)
	assert.InDelta(t, 0.5, stats.SuccessRate, 0.001)
	assert.InDelta(t, 200.0, stats.AverageExecutionTimeMs, 0.1)
	require.NotNil(t, stats.LastExecutedAt)
	assert.Equal(t, base.Add(time.Minute), *stats.LastExecutedAt)
}

func TestMemory_StatsForUnknownRule(t *testing.T) {
	stats, err := NewMemory().Stats(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Zero(t, stats.ExecutionCount)
	assert.Nil(t, stats.LastExecutedAt)
}

func TestMemory_RunningExcludedFromStats(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Record(ctx, running("exec-1", "rule-1", time.Now())))

	stats, err := m.Stats(ctx, "rule-1")
	require.NoError(t, err)
	assert.Zero(t, stats.ExecutionCount)
}
