// Pipeline configuration - stage order and per-stage settings.
//
// DESIGN: Static, server-wide defaults. Request-level fields (model,
// capabilities, variables, history count) override these in the gateway.
package config

import (
	"fmt"
	"strings"

	"github.com/compresr/context-pipeline/internal/processors"
	"github.com/compresr/context-pipeline/internal/processors/capability"
	"github.com/compresr/context-pipeline/internal/processors/content"
)

// PipelineConfig configures the processor pipeline.
type PipelineConfig struct {
	Order         []string                `yaml:"order"`          // Stage names; empty = default order
	History       HistoryConfig           `yaml:"history"`        // history_truncate
	SystemRole    string                  `yaml:"system_role"`    // system_role_inject
	Summary       SummaryConfig           `yaml:"summary"`        // history_summary_inject
	InputTemplate string                  `yaml:"input_template"` // input_template
	Placeholder   PlaceholderConfig       `yaml:"placeholder"`    // placeholder_variables
	FileContext   FileContextConfig       `yaml:"file_context"`   // message_content
	Capabilities  capability.Capabilities `yaml:"capabilities"`   // capability_validator defaults
	Policy        capability.Policy       `yaml:"policy"`         // capability_validator
}

// HistoryConfig controls history truncation.
type HistoryConfig struct {
	Enabled bool `yaml:"enabled"`
	Count   *int `yaml:"count"`
}

// SummaryConfig controls how a request's history summary is rendered.
type SummaryConfig struct {
	// Format wraps the summary; SummaryToken marks where it goes.
	// Empty = built-in <chat_history_summary> wrapper.
	Format string `yaml:"format"`
}

// SummaryToken is replaced by the summary text in SummaryConfig.Format.
const SummaryToken = "{{summary}}"

// Formatter returns the configured summary formatter, or nil for the default.
func (s SummaryConfig) Formatter() func(string) string {
	if s.Format == "" {
		return nil
	}
	format := s.Format
	return func(summary string) string {
		return strings.ReplaceAll(format, SummaryToken, summary)
	}
}

// PlaceholderConfig controls placeholder expansion.
type PlaceholderConfig struct {
	Depth     int               `yaml:"depth"`     // 0 = default depth
	Builtins  bool              `yaml:"builtins"`  // Register date/time/uuid generators
	Variables map[string]string `yaml:"variables"` // Static variables
}

// FileContextConfig controls the attachment description block.
type FileContextConfig struct {
	Enabled    bool `yaml:"enabled"`
	IncludeURL bool `yaml:"include_url"`
}

// Validate checks stage names and bounds.
func (p PipelineConfig) Validate() error {
	seen := make(map[string]bool, len(p.Order))
	for _, name := range p.Order {
		if !processors.Known(name) {
			return fmt.Errorf("pipeline.order: unknown processor %q", name)
		}
		if seen[name] {
			return fmt.Errorf("pipeline.order: duplicate processor %q", name)
		}
		seen[name] = true
	}
	if p.Placeholder.Depth < 0 {
		return fmt.Errorf("pipeline.placeholder.depth must not be negative")
	}
	if p.Summary.Format != "" && !strings.Contains(p.Summary.Format, SummaryToken) {
		return fmt.Errorf("pipeline.summary.format must contain %s", SummaryToken)
	}
	return nil
}

// Options converts the static settings into builder options.
func (p PipelineConfig) Options() processors.Options {
	return processors.Options{
		Order:                p.Order,
		EnableHistoryCount:   p.History.Enabled,
		HistoryCount:         p.History.Count,
		SystemRole:           p.SystemRole,
		FormatHistorySummary: p.Summary.Formatter(),
		InputTemplate:        p.InputTemplate,
		PlaceholderDepth:     p.Placeholder.Depth,
		FileContext: content.FileContext{
			Enabled:    p.FileContext.Enabled,
			IncludeURL: p.FileContext.IncludeURL,
		},
		Capabilities: p.Capabilities,
		Policy:       p.Policy,
	}
}
