// Package monitoring - alerts.go flags anomalies and errors.
//
// DESIGN: AlertManager logs notable events at appropriate levels:
//   - FlagSlowRun:          Warn when a run exceeds the threshold
//   - FlagRunFailure:       Error when a stage fails the run
//   - FlagAbort:            Info when a run aborts (not an error)
//   - FlagInvalidRequest:   Debug on unparseable requests
//   - FlagPanic:            Error on recovered panics
package monitoring

import "time"

// DefaultSlowRunThreshold applies when AlertConfig leaves it unset.
const DefaultSlowRunThreshold = 2 * time.Second

// AlertManager flags anomalies and errors.
type AlertManager struct {
	logger           *Logger
	slowRunThreshold time.Duration
}

// NewAlertManager creates a new alert manager.
func NewAlertManager(logger *Logger, cfg AlertConfig) *AlertManager {
	threshold := cfg.SlowRunThreshold
	if threshold == 0 {
		threshold = DefaultSlowRunThreshold
	}
	return &AlertManager{logger: logger, slowRunThreshold: threshold}
}

// FlagSlowRun logs when run latency exceeds threshold.
// Reports whether the alert fired.
func (am *AlertManager) FlagSlowRun(runID string, latency time.Duration, model string) bool {
	if latency < am.slowRunThreshold {
		return false
	}
	am.logger.Warn().
		Str("run_id", runID).
		Dur("latency", latency).
		Str("model", model).
		Msg("slow_run")
	return true
}

// FlagRunFailure logs a failed run.
func (am *AlertManager) FlagRunFailure(runID string, err error) {
	am.logger.Error().
		Str("run_id", runID).
		Err(err).
		Msg("run_failed")
}

// FlagAbort logs an aborted run.
func (am *AlertManager) FlagAbort(runID, reason string) {
	am.logger.Info().
		Str("run_id", runID).
		Str("reason", reason).
		Msg("run_aborted")
}

// FlagInvalidRequest logs invalid request.
func (am *AlertManager) FlagInvalidRequest(requestID, reason string) {
	am.logger.Debug().
		Str("request_id", requestID).
		Str("reason", reason).
		Msg("invalid_request")
}

// FlagPanic logs recovered panic.
func (am *AlertManager) FlagPanic(requestID string, panicValue any, stack string) {
	am.logger.Error().
		Str("request_id", requestID).
		Interface("panic", panicValue).
		Str("stack", stack).
		Msg("panic_recovered")
}
