// Package monitoring - types.go defines shared types.
//
// DESIGN: These types are used by both gateway/ and monitoring/ packages.
// Defined here ONCE to avoid duplication and circular imports.
//
// TYPES:
//   - RunOutcome:   How a pipeline run ended
//   - RunReport:    Telemetry data for each run
//   - Config types: TelemetryConfig, LoggerConfig, AlertConfig
package monitoring

import "time"

// =============================================================================
// OUTCOMES
// =============================================================================

// RunOutcome classifies a finished pipeline run.
type RunOutcome string

const (
	OutcomeCompleted RunOutcome = "completed"
	OutcomeAborted   RunOutcome = "aborted"
	OutcomeFailed    RunOutcome = "failed"
)

// OutcomeOf classifies a run from its abort flag and error.
func OutcomeOf(aborted bool, err error) RunOutcome {
	switch {
	case err != nil:
		return OutcomeFailed
	case aborted:
		return OutcomeAborted
	default:
		return OutcomeCompleted
	}
}

// =============================================================================
// EVENT TYPES
// =============================================================================

// RunReport captures one pipeline run.
type RunReport struct {
	RunID          string         `json:"run_id"`
	RequestID      string         `json:"request_id,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	Source         string         `json:"source"` // http path or "cli"
	Model          string         `json:"model,omitempty"`
	Provider       string         `json:"provider,omitempty"`
	Outcome        RunOutcome     `json:"outcome"`
	AbortReason    string         `json:"abort_reason,omitempty"`
	Error          string         `json:"error,omitempty"`
	InputMessages  int            `json:"input_messages"`
	OutputMessages int            `json:"output_messages"`
	Stages         []StageReport  `json:"stages,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	TotalLatencyMs int64          `json:"total_latency_ms"`
}

// StageReport is the timing of one stage.
type StageReport struct {
	Name      string `json:"name"`
	LatencyUs int64  `json:"latency_us"`
}

// =============================================================================
// CONFIG TYPES
// =============================================================================

// TelemetryConfig contains telemetry configuration.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	LogPath     string `yaml:"log_path"`
	LogToStdout bool   `yaml:"log_to_stdout"`
}

// LoggerConfig contains logging configuration.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console, auto
	Output string `yaml:"output"` // stdout, stderr, or file path
}

// AlertConfig contains alert thresholds.
type AlertConfig struct {
	SlowRunThreshold time.Duration `yaml:"slow_run_threshold"`
}
