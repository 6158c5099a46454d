// Package monitoring - metrics.go provides simple counters.
//
// DESIGN: Lightweight in-memory counters for operational metrics:
//   - requests/successes:   HTTP requests served by the gateway
//   - runs/aborted/failed:  Pipeline run outcomes
//   - stages:               Per-stage call count, error count, total latency
//
// MetricsCollector satisfies pipeline.Recorder, so the engine feeds it directly.
package monitoring

import (
	"sync"
	"sync/atomic"
	"time"
)

// MetricsCollector collects operational metrics.
type MetricsCollector struct {
	requests  atomic.Int64
	successes atomic.Int64
	runs      atomic.Int64
	aborted   atomic.Int64
	failed    atomic.Int64
	runTimeUs atomic.Int64

	mu     sync.Mutex
	stages map[string]*stageCounters
}

type stageCounters struct {
	calls   int64
	errors  int64
	totalUs int64
}

// StageStats is the exported view of one stage's counters.
type StageStats struct {
	Calls        int64 `json:"calls"`
	Errors       int64 `json:"errors"`
	AvgLatencyUs int64 `json:"avg_latency_us"`
}

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	Requests     int64                 `json:"requests"`
	Successes    int64                 `json:"successes"`
	Runs         int64                 `json:"runs"`
	Aborted      int64                 `json:"aborted"`
	Failed       int64                 `json:"failed"`
	AvgRunTimeUs int64                 `json:"avg_run_time_us"`
	Stages       map[string]StageStats `json:"stages"`
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{stages: make(map[string]*stageCounters)}
}

// RecordRequest records an HTTP request.
func (mc *MetricsCollector) RecordRequest(success bool, _ time.Duration) {
	mc.requests.Add(1)
	if success {
		mc.successes.Add(1)
	}
}

// RecordRun records a pipeline run outcome.
func (mc *MetricsCollector) RecordRun(aborted bool, err error, d time.Duration) {
	mc.runs.Add(1)
	mc.runTimeUs.Add(d.Microseconds())
	switch OutcomeOf(aborted, err) {
	case OutcomeAborted:
		mc.aborted.Add(1)
	case OutcomeFailed:
		mc.failed.Add(1)
	}
}

// RecordStage records one stage execution.
func (mc *MetricsCollector) RecordStage(name string, d time.Duration, err error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	c, ok := mc.stages[name]
	if !ok {
		c = &stageCounters{}
		mc.stages[name] = c
	}
	c.calls++
	c.totalUs += d.Microseconds()
	if err != nil {
		c.errors++
	}
}

// Stats returns current metrics.
func (mc *MetricsCollector) Stats() Snapshot {
	s := Snapshot{
		Requests:  mc.requests.Load(),
		Successes: mc.successes.Load(),
		Runs:      mc.runs.Load(),
		Aborted:   mc.aborted.Load(),
		Failed:    mc.failed.Load(),
	}
	if s.Runs > 0 {
		s.AvgRunTimeUs = mc.runTimeUs.Load() / s.Runs
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	s.Stages = make(map[string]StageStats, len(mc.stages))
	for name, c := range mc.stages {
		st := StageStats{Calls: c.calls, Errors: c.errors}
		if c.calls > 0 {
			st.AvgLatencyUs = c.totalUs / c.calls
		}
		s.Stages[name] = st
	}
	return s
}
