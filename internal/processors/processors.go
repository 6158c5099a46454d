// Package processors assembles configured stages into a pipeline.
//
// DESIGN: Each stage lives in its own package and knows nothing about the
// others. This package maps stage names to constructors so callers (gateway,
// cli) can describe a pipeline as an ordered list of names.
//
// FLOW:
//  1. Caller fills Options (per-request model, capabilities, variables)
//  2. Build walks Order (DefaultOrder when empty)
//  3. Each name becomes one configured Processor
//  4. Caller hands the slice to pipeline.NewEngine
package processors

import (
	"fmt"

	"github.com/compresr/context-pipeline/internal/pipeline"
	"github.com/compresr/context-pipeline/internal/processors/capability"
	"github.com/compresr/context-pipeline/internal/processors/cleanup"
	"github.com/compresr/context-pipeline/internal/processors/content"
	"github.com/compresr/context-pipeline/internal/processors/groupflatten"
	"github.com/compresr/context-pipeline/internal/processors/history"
	"github.com/compresr/context-pipeline/internal/processors/inject"
	"github.com/compresr/context-pipeline/internal/processors/inputtemplate"
	"github.com/compresr/context-pipeline/internal/processors/placeholder"
	"github.com/compresr/context-pipeline/internal/processors/toolcall"
	"github.com/compresr/context-pipeline/internal/processors/toolreorder"
)

// DefaultOrder is the stage order used when none is configured.
// Supervisor messages are restored right after truncation so every later
// stage sees them as assistants and their tool_calls count as issued.
// System context is injected after truncation so it is never cut off.
var DefaultOrder = []string{
	history.Name,
	cleanup.SupervisorName,
	groupflatten.Name,
	inject.SystemRoleName,
	inject.HistorySummaryName,
	inputtemplate.Name,
	placeholder.Name,
	toolcall.Name,
	content.Name,
	capability.Name,
	toolreorder.Name,
	cleanup.FieldName,
}

// Options carries the configuration for every stage.
type Options struct {
	Order []string

	Model    string
	Provider string

	// history_truncate
	EnableHistoryCount bool
	HistoryCount       *int

	// system_role_inject
	SystemRole string

	// history_summary_inject; nil FormatHistorySummary uses the default wrapper
	HistorySummary       string
	FormatHistorySummary func(summary string) string

	// input_template
	InputTemplate string

	// placeholder_variables
	Variables        map[string]placeholder.Generator
	PlaceholderDepth int

	// tool_call
	IsCanUseFC         func(model, provider string) bool
	GenToolCallingName func(identifier, apiName, toolType string) string

	// message_content
	IsCanUseVision func(model, provider string) bool
	FileContext    content.FileContext
	Resolver       content.Resolver

	// capability_validator
	Capabilities capability.Capabilities
	Policy       capability.Policy
}

// Known reports whether name is a registered stage.
func Known(name string) bool {
	_, ok := constructors[name]
	return ok
}

// Build returns the configured stages in order.
func Build(opts Options) ([]pipeline.Processor, error) {
	order := opts.Order
	if len(order) == 0 {
		order = DefaultOrder
	}

	out := make([]pipeline.Processor, 0, len(order))
	seen := make(map[string]bool, len(order))
	for _, name := range order {
		ctor, ok := constructors[name]
		if !ok {
			return nil, fmt.Errorf("unknown processor %q", name)
		}
		if seen[name] {
			return nil, fmt.Errorf("processor %q listed twice", name)
		}
		seen[name] = true
		out = append(out, ctor(opts))
	}
	return out, nil
}

// CapabilityPredicates derives the tool_call and message_content predicates
// from a capability descriptor, for callers without a model catalog.
func CapabilityPredicates(caps capability.Capabilities) (fc, vision func(model, provider string) bool) {
	fc = func(string, string) bool { return caps.SupportsFunctionCall }
	vision = func(string, string) bool { return caps.SupportsVision }
	return fc, vision
}

var constructors = map[string]func(Options) pipeline.Processor{
	history.Name: func(o Options) pipeline.Processor {
		return history.New(history.Config{EnableHistoryCount: o.EnableHistoryCount, HistoryCount: o.HistoryCount})
	},
	groupflatten.Name: func(Options) pipeline.Processor {
		return groupflatten.New()
	},
	inject.SystemRoleName: func(o Options) pipeline.Processor {
		return inject.NewSystemRole(inject.SystemRoleConfig{SystemRole: o.SystemRole})
	},
	inject.HistorySummaryName: func(o Options) pipeline.Processor {
		return inject.NewHistorySummary(inject.HistorySummaryConfig{
			Summary: o.HistorySummary,
			Format:  o.FormatHistorySummary,
		})
	},
	inputtemplate.Name: func(o Options) pipeline.Processor {
		return inputtemplate.New(inputtemplate.Config{InputTemplate: o.InputTemplate})
	},
	placeholder.Name: func(o Options) pipeline.Processor {
		return placeholder.New(placeholder.Config{Variables: o.Variables, Depth: o.PlaceholderDepth})
	},
	toolcall.Name: func(o Options) pipeline.Processor {
		return toolcall.New(toolcall.Config{
			Model:              o.Model,
			Provider:           o.Provider,
			IsCanUseFC:         o.IsCanUseFC,
			GenToolCallingName: o.GenToolCallingName,
		})
	},
	content.Name: func(o Options) pipeline.Processor {
		return content.New(content.Config{
			Model:          o.Model,
			Provider:       o.Provider,
			IsCanUseVision: o.IsCanUseVision,
			FileContext:    o.FileContext,
			Resolver:       o.Resolver,
		})
	},
	capability.Name: func(o Options) pipeline.Processor {
		return capability.New(capability.Config{Capabilities: o.Capabilities, Policy: o.Policy})
	},
	toolreorder.Name: func(Options) pipeline.Processor {
		return toolreorder.New()
	},
	cleanup.SupervisorName: func(Options) pipeline.Processor {
		return cleanup.NewSupervisorRestore()
	},
	cleanup.FieldName: func(Options) pipeline.Processor {
		return cleanup.NewFieldCleanup()
	},
}
