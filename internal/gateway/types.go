// Package gateway types - request/response contracts of the HTTP surface.
//
// DESIGN: Types used by the gateway for:
//   - Native pipeline requests (POST /v1/pipeline/process)
//   - Error envelopes
//   - Header names and limits
//
// Types are defined here to avoid circular imports and provide clear contracts.
package gateway

import (
	"github.com/compresr/context-pipeline/internal/messages"
	"github.com/compresr/context-pipeline/internal/pipeline"
	"github.com/compresr/context-pipeline/internal/processors/capability"
)

// =============================================================================
// HEADERS & LIMITS
// =============================================================================

const (
	HeaderRequestID   = "X-Request-ID"
	HeaderRunID       = "X-Pipeline-Run-ID"
	HeaderAborted     = "X-Pipeline-Aborted"
	HeaderAbortReason = "X-Pipeline-Abort-Reason"
)

const (
	// MaxRateLimitBuckets caps the number of tracked client IPs.
	MaxRateLimitBuckets = 10000

	// DefaultRecentRuns is the page size of GET /v1/pipeline/runs.
	DefaultRecentRuns = 20
)

// =============================================================================
// PROCESS - native pipeline endpoint
// =============================================================================

// ProcessRequest is the body of POST /v1/pipeline/process.
// Pointer fields override the server defaults only when present.
type ProcessRequest struct {
	Model    string             `json:"model"`
	Provider string             `json:"provider"`
	Messages []messages.Message `json:"messages"`
	Metadata map[string]any     `json:"metadata,omitempty"`

	Capabilities       *capability.Capabilities `json:"capabilities,omitempty"`
	Variables          map[string]any           `json:"variables,omitempty"`
	EnableHistoryCount *bool                    `json:"enable_history_count,omitempty"`
	HistoryCount       *int                     `json:"history_count,omitempty"`
	InputTemplate      *string                  `json:"input_template,omitempty"`
	SystemRole         *string                  `json:"system_role,omitempty"`
	HistorySummary     string                   `json:"history_summary,omitempty"`
}

// Overrides extracts the per-request pipeline settings.
func (r *ProcessRequest) Overrides() Overrides {
	return Overrides{
		Model:              r.Model,
		Provider:           r.Provider,
		Capabilities:       r.Capabilities,
		Variables:          r.Variables,
		EnableHistoryCount: r.EnableHistoryCount,
		HistoryCount:       r.HistoryCount,
		InputTemplate:      r.InputTemplate,
		SystemRole:         r.SystemRole,
		HistorySummary:     r.HistorySummary,
	}
}

// ProcessResponse is the body returned by POST /v1/pipeline/process.
type ProcessResponse struct {
	RunID       string             `json:"run_id"`
	Messages    []messages.Message `json:"messages"`
	Metadata    map[string]any     `json:"metadata"`
	IsAborted   bool               `json:"is_aborted"`
	AbortReason string             `json:"abort_reason,omitempty"`
	Stats       pipeline.Stats     `json:"stats"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody describes one failure.
type ErrorBody struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Processor string `json:"processor,omitempty"`
}

// Error types.
const (
	ErrTypeInvalidRequest = "invalid_request"
	ErrTypeValidation     = "validation_error"
	ErrTypeProcessor      = "processor_error"
	ErrTypeNotFound       = "not_found"
	ErrTypeInternal       = "internal_error"
	ErrTypeRateLimited    = "rate_limited"
)
