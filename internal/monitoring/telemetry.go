// Package monitoring - telemetry.go records run reports to JSONL files.
//
// DESIGN: Tracker writes one RunReport per pipeline run as JSONL (one JSON
// object per line). Reports are appended immediately for real-time logging.
package monitoring

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/compresr/context-pipeline/internal/pipeline"
)

// Tracker handles telemetry event recording to file and stdout.
type Tracker struct {
	config   TelemetryConfig
	logger   *Logger
	logPath  string
	runCount int
	mu       sync.Mutex
}

// NewTracker creates a new telemetry tracker. logger may be nil.
func NewTracker(cfg TelemetryConfig, logger *Logger) (*Tracker, error) {
	if logger == nil {
		logger = Nop()
	}
	t := &Tracker{config: cfg, logger: logger}

	if !cfg.Enabled || cfg.LogPath == "" {
		return t, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0750); err != nil {
		return nil, err
	}
	t.logPath = cfg.LogPath
	if _, err := os.Stat(cfg.LogPath); os.IsNotExist(err) {
		if f, err := os.Create(cfg.LogPath); err == nil {
			f.Close()
		}
	}
	return t, nil
}

// appendJSONL appends a single JSON object as a line to the file.
func appendJSONL(path string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(data)
	return err
}

// RecordRun records a run report.
func (t *Tracker) RecordRun(report *RunReport) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.config.LogToStdout {
		t.logger.Info().
			Str("run_id", report.RunID).
			Str("outcome", string(report.Outcome)).
			Int("input_messages", report.InputMessages).
			Int("output_messages", report.OutputMessages).
			Int64("latency_ms", report.TotalLatencyMs).
			Msg("telemetry")
	}

	if t.logPath != "" {
		if err := appendJSONL(t.logPath, report); err != nil {
			t.logger.Error().Err(err).Str("path", t.logPath).Msg("telemetry: failed to write run report")
		} else {
			t.runCount++
		}
	}
}

// Close logs a session summary.
func (t *Tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.logPath != "" && t.runCount > 0 {
		t.logger.Info().
			Str("path", t.logPath).
			Int("runs", t.runCount).
			Msg("telemetry: session complete")
	}
	return nil
}

// NewRunReport builds a report from a run's input and outcome.
// res is nil when the run failed.
func NewRunReport(source, requestID string, in pipeline.Input, res *pipeline.Result, err error, latency time.Duration) *RunReport {
	report := &RunReport{
		RunID:          in.RunID,
		RequestID:      requestID,
		Timestamp:      time.Now().UTC(),
		Source:         source,
		Model:          in.Model,
		Provider:       in.Provider,
		Outcome:        OutcomeOf(res != nil && res.IsAborted, err),
		InputMessages:  len(in.Messages),
		TotalLatencyMs: latency.Milliseconds(),
	}
	if err != nil {
		report.Error = err.Error()
	}
	if res == nil {
		return report
	}

	report.RunID = res.InitialState.RunID
	report.AbortReason = res.AbortReason
	report.OutputMessages = len(res.Messages)
	report.Metadata = res.Metadata
	for _, name := range res.Stats.Executed {
		report.Stages = append(report.Stages, StageReport{
			Name:      name,
			LatencyUs: res.Stats.Durations[name].Microseconds(),
		})
	}
	return report
}
