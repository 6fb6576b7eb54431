// Package metrics keeps per-operation call statistics for one console run.
package metrics

import (
	"cmp"
	"slices"
	"sync"
	"time"
)

// Operation names for the collector.
const (
	OpListQueue         = "rest_list_queue"
	OpListConversations = "rest_list_conversations"
	OpAccept            = "rest_accept"
	OpHistory           = "rest_history"
	OpClose             = "rest_close"
	OpSend              = "ws_send"
	OpHandshake         = "ws_handshake"
)

// recentWindow is how many of the latest durations feed the P95 estimate.
const recentWindow = 128

// OperationSnapshot is the computed view of one operation's calls.
type OperationSnapshot struct {
	Name        string
	Count       int64
	Failures    int64
	TotalTimeMs int64
	AvgTimeMs   float64
	MinTimeMs   int64
	MaxTimeMs   int64
	P95TimeMs   int64
	LastCall    time.Time
}

// FailureRate returns failures as a fraction of calls.
func (o OperationSnapshot) FailureRate() float64 {
	if o.Count == 0 {
		return 0
	}
	return float64(o.Failures) / float64(o.Count)
}

// Snapshot is the collector state at one point in time.
type Snapshot struct {
	UptimeSeconds float64
	Operations    []OperationSnapshot // sorted by name
}

// Operation returns the snapshot for op, or nil if it was never recorded.
func (s Snapshot) Operation(op string) *OperationSnapshot {
	i := slices.IndexFunc(s.Operations, func(o OperationSnapshot) bool { return o.Name == op })
	if i < 0 {
		return nil
	}
	return &s.Operations[i]
}

// opStats accumulates calls of one operation.
type opStats struct {
	count    int64
	failures int64
	total    time.Duration
	min      time.Duration
	max      time.Duration
	last     time.Time
	recent   []time.Duration
	next     int
}

func (s *opStats) add(d time.Duration, failed bool, at time.Time) {
	if s.count == 0 || d < s.min {
		s.min = d
	}
	s.max = max(s.max, d)
	s.count++
	s.total += d
	s.last = at
	if failed {
		s.failures++
	}

	if len(s.recent) < recentWindow {
		s.recent = append(s.recent, d)
		return
	}
	s.recent[s.next] = d
	s.next = (s.next + 1) % recentWindow
}

func (s *opStats) snapshot(name string) OperationSnapshot {
	return OperationSnapshot{
		Name:        name,
		Count:       s.count,
		Failures:    s.failures,
		TotalTimeMs: s.total.Milliseconds(),
		AvgTimeMs:   float64(s.total.Milliseconds()) / float64(s.count),
		MinTimeMs:   s.min.Milliseconds(),
		MaxTimeMs:   s.max.Milliseconds(),
		P95TimeMs:   percentile(s.recent, 0.95).Milliseconds(),
		LastCall:    s.last,
	}
}

// percentile uses the nearest-rank method over a copy of samples.
func percentile(samples []time.Duration, p float64) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := slices.Clone(samples)
	slices.Sort(sorted)
	rank := int(float64(len(sorted))*p+0.999999) - 1
	return sorted[min(max(rank, 0), len(sorted)-1)]
}

// Collector records call durations and failures per operation.
// It is safe for concurrent use. A nil *Collector discards everything.
type Collector struct {
	mu      sync.Mutex
	started time.Time
	ops     map[string]*opStats
}

// NewCollector creates an empty collector; uptime counts from now.
func NewCollector() *Collector {
	return &Collector{
		started: time.Now(),
		ops:     make(map[string]*opStats),
	}
}

// RecordTiming records a successful call.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	c.record(op, duration, false)
}

// RecordFailure records a failed call.
func (c *Collector) RecordFailure(op string, duration time.Duration) {
	c.record(op, duration, true)
}

// Observe records a call that started at start and ended with err.
func (c *Collector) Observe(op string, start time.Time, err error) {
	c.record(op, time.Since(start), err != nil)
}

func (c *Collector) record(op string, duration time.Duration, failed bool) {
	if c == nil {
		return
	}
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.ops[op]
	if !ok {
		s = &opStats{}
		c.ops[op] = s
	}
	s.add(duration, failed, now)
}

// Snapshot returns the statistics of every operation recorded so far.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{UptimeSeconds: time.Since(c.started).Seconds()}
	for name, s := range c.ops {
		snap.Operations = append(snap.Operations, s.snapshot(name))
	}
	slices.SortFunc(snap.Operations, func(a, b OperationSnapshot) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return snap
}
