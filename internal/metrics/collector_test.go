package metrics_test

import (
	"errors"
	"testing"
	"time"

	"github.com/raphaelgruber/agentdesk/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorAggregates(t *testing.T) {
	c := metrics.NewCollector()
	c.RecordTiming(metrics.OpAccept, 10*time.Millisecond)
	c.RecordTiming(metrics.OpAccept, 30*time.Millisecond)
	c.RecordFailure(metrics.OpAccept, 20*time.Millisecond)

	snap := c.Snapshot()
	op := snap.Operation(metrics.OpAccept)
	require.NotNil(t, op)
	assert.Equal(t, int64(3), op.Count)
	assert.Equal(t, int64(1), op.Failures)
	assert.Equal(t, int64(60), op.TotalTimeMs)
	assert.Equal(t, int64(10), op.MinTimeMs)
	assert.Equal(t, int64(30), op.MaxTimeMs)
	assert.InDelta(t, 20.0, op.AvgTimeMs, 0.001)
}

func TestCollectorObserve(t *testing.T) {
	c := metrics.NewCollector()
	c.Observe(metrics.OpClose, time.Now(), nil)
	c.Observe(metrics.OpClose, time.Now(), errors.New("boom"))

	op := c.Snapshot().Operation(metrics.OpClose)
	require.NotNil(t, op)
	assert.Equal(t, int64(2), op.Count)
	assert.Equal(t, int64(1), op.Failures)
}

func TestCollectorSnapshotSortedAndSparse(t *testing.T) {
	c := metrics.NewCollector()
	c.RecordTiming(metrics.OpSend, time.Millisecond)
	c.RecordTiming(metrics.OpHistory, time.Millisecond)

	snap := c.Snapshot()
	require.Len(t, snap.Operations, 2)
	assert.Equal(t, metrics.OpHistory, snap.Operations[0].Name)
	assert.Equal(t, metrics.OpSend, snap.Operations[1].Name)
	assert.Nil(t, snap.Operation(metrics.OpListQueue))
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *metrics.Collector
	c.RecordTiming(metrics.OpSend, time.Millisecond)
	assert.Empty(t, c.Snapshot().Operations)
}

func TestCollectorP95AndFailureRate(t *testing.T) {
	c := metrics.NewCollector()
	for i := 1; i <= 100; i++ {
		c.RecordTiming(metrics.OpHistory, time.Duration(i)*time.Millisecond)
	}
	c.RecordFailure(metrics.OpHistory, time.Millisecond)

	op := c.Snapshot().Operation(metrics.OpHistory)
	require.NotNil(t, op)
	assert.Equal(t, int64(95), op.P95TimeMs)
	assert.InDelta(t, 1.0/101, op.FailureRate(), 1e-9)
	assert.False(t, op.LastCall.IsZero())
}

func TestCollectorP95UsesRecentWindow(t *testing.T) {
	c := metrics.NewCollector()
	for range 200 {
		c.RecordTiming(metrics.OpSend, time.Second)
	}
	for range 128 {
		c.RecordTiming(metrics.OpSend, time.Millisecond)
	}

	op := c.Snapshot().Operation(metrics.OpSend)
	require.NotNil(t, op)
	assert.Equal(t, int64(1), op.P95TimeMs)
	assert.Equal(t, int64(1000), op.MaxTimeMs)
}

func TestFailureRateWithoutCalls(t *testing.T) {
	assert.Zero(t, metrics.OperationSnapshot{}.FailureRate())
}
