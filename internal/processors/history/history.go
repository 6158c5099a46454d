// Package history truncates conversation history to the most recent messages.
//
// DESIGN: Message-count heuristic only, no token counting:
//   - disabled or count unset → passthrough
//   - count <= 0              → empty history
//   - otherwise               → last N messages
package history

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/compresr/context-pipeline/internal/pipeline"
)

// Name is the stage identifier.
const Name = "history_truncate"

// Metadata keys written by this stage.
const (
	MetaTruncated  = "historyTruncated"
	MetaFinalCount = "historyFinalCount"
)

// Config controls truncation.
type Config struct {
	EnableHistoryCount bool
	HistoryCount       *int
}

// Processor keeps the last HistoryCount messages.
type Processor struct {
	cfg Config
}

// New creates a history truncation processor.
func New(cfg Config) *Processor {
	return &Processor{cfg: cfg}
}

// Name returns the stage name.
func (p *Processor) Name() string { return Name }

// Process truncates the message history.
func (p *Processor) Process(ctx context.Context, pc *pipeline.PipelineContext) (*pipeline.PipelineContext, error) {
	return pipeline.Run(ctx, Name, pc, func(ctx context.Context, out *pipeline.PipelineContext) error {
		before := len(out.Messages)
		out.Messages = Truncate(out.Messages, p.cfg)

		dropped := before - len(out.Messages)
		out.Metadata[MetaTruncated] = dropped
		out.Metadata[MetaFinalCount] = len(out.Messages)

		if dropped > 0 {
			zerolog.Ctx(ctx).Debug().
				Int("dropped", dropped).
				Int("kept", len(out.Messages)).
				Msg("history: truncated")
		}
		return nil
	})
}

// Truncate applies the history-count policy to msgs.
// The result is always non-nil when msgs is non-nil.
func Truncate[T any](msgs []T, cfg Config) []T {
	if !cfg.EnableHistoryCount || cfg.HistoryCount == nil {
		return msgs
	}
	n := *cfg.HistoryCount
	if n <= 0 {
		return msgs[:0]
	}
	if n >= len(msgs) {
		return msgs
	}
	return msgs[len(msgs)-n:]
}
