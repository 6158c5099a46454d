// Package inject adds system-level context to the conversation.
//
// Two stages live here:
//   - SystemRole prepends the agent's system role as its own system message
//   - HistorySummary folds a summary of dropped history into the system prompt
//
// FLOW (history summary):
//  1. Format the summary (DefaultSummaryFormat unless a formatter is set)
//  2. First system message found → append after a blank line
//  3. No system message          → insert a new one at the front
//
// Both stages are no-ops for empty input and still record their metadata key.
package inject

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/compresr/context-pipeline/internal/messages"
	"github.com/compresr/context-pipeline/internal/pipeline"
)

// Stage names.
const (
	SystemRoleName     = "system_role_inject"
	HistorySummaryName = "history_summary_inject"
)

// Metadata keys written by the stages.
const (
	MetaSystemRoleInjected     = "systemRoleInjected"
	MetaHistorySummaryInjected = "historySummaryInjected"
)

// summaryTemplate wraps the summary when no formatter is configured.
const summaryTemplate = `<chat_history_summary>
<docstring>Users may have lots of chat messages, here is the summary of the history:</docstring>
<summary>%s</summary>
</chat_history_summary>`

// DefaultSummaryFormat renders a history summary for the system prompt.
func DefaultSummaryFormat(summary string) string {
	return fmt.Sprintf(summaryTemplate, summary)
}

// =============================================================================
// SYSTEM ROLE
// =============================================================================

// SystemRoleConfig holds the role text. Blank means disabled.
type SystemRoleConfig struct {
	SystemRole string
}

// SystemRole injects the configured system role.
type SystemRole struct {
	cfg SystemRoleConfig
}

// NewSystemRole creates the system role stage.
func NewSystemRole(cfg SystemRoleConfig) *SystemRole {
	return &SystemRole{cfg: cfg}
}

// Name returns the stage name.
func (s *SystemRole) Name() string { return SystemRoleName }

// Process puts the system role first. A conversation that already opens with
// the same system text is left alone so repeated runs stay stable.
func (s *SystemRole) Process(ctx context.Context, pc *pipeline.PipelineContext) (*pipeline.PipelineContext, error) {
	return pipeline.Run(ctx, SystemRoleName, pc, func(ctx context.Context, out *pipeline.PipelineContext) error {
		out.Metadata[MetaSystemRoleInjected] = false

		role := s.cfg.SystemRole
		if strings.TrimSpace(role) == "" {
			return nil
		}
		if len(out.Messages) > 0 {
			first := out.Messages[0]
			if first.Role == messages.RoleSystem && first.Content.PlainText() == role {
				return nil
			}
		}

		out.Messages = append([]messages.Message{{
			Role:    messages.RoleSystem,
			Content: messages.Text(role),
		}}, out.Messages...)
		out.Metadata[MetaSystemRoleInjected] = true

		zerolog.Ctx(ctx).Debug().
			Str("processor", SystemRoleName).
			Int("length", len(role)).
			Msg("system_role: injected")
		return nil
	})
}

// =============================================================================
// HISTORY SUMMARY
// =============================================================================

// HistorySummaryConfig holds the summary and an optional formatter.
type HistorySummaryConfig struct {
	Summary string
	Format  func(summary string) string
}

// HistorySummary injects a summary of earlier conversation.
type HistorySummary struct {
	cfg HistorySummaryConfig
}

// NewHistorySummary creates the history summary stage.
func NewHistorySummary(cfg HistorySummaryConfig) *HistorySummary {
	if cfg.Format == nil {
		cfg.Format = DefaultSummaryFormat
	}
	return &HistorySummary{cfg: cfg}
}

// Name returns the stage name.
func (h *HistorySummary) Name() string { return HistorySummaryName }

// Process merges the formatted summary into the system prompt.
func (h *HistorySummary) Process(ctx context.Context, pc *pipeline.PipelineContext) (*pipeline.PipelineContext, error) {
	return pipeline.Run(ctx, HistorySummaryName, pc, func(ctx context.Context, out *pipeline.PipelineContext) error {
		out.Metadata[MetaHistorySummaryInjected] = false

		if strings.TrimSpace(h.cfg.Summary) == "" {
			return nil
		}
		formatted := h.cfg.Format(h.cfg.Summary)
		if formatted == "" {
			return nil
		}

		merged := false
		for i := range out.Messages {
			if out.Messages[i].Role != messages.RoleSystem {
				continue
			}
			updated := out.Messages[i].Clone()
			updated.Content = updated.Content.WithText(joinPrompt(updated.Content.PlainText(), formatted))
			out.Messages[i] = updated
			merged = true
			break
		}
		if !merged {
			out.Messages = append([]messages.Message{{
				Role:    messages.RoleSystem,
				Content: messages.Text(formatted),
			}}, out.Messages...)
		}
		out.Metadata[MetaHistorySummaryInjected] = true

		zerolog.Ctx(ctx).Debug().
			Str("processor", HistorySummaryName).
			Bool("merged", merged).
			Msg("history_summary: injected")
		return nil
	})
}

// joinPrompt appends extra to an existing prompt, skipping empty sides.
func joinPrompt(prompt, extra string) string {
	if prompt == "" {
		return extra
	}
	return prompt + "\n\n" + extra
}
