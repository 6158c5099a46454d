// Package capability checks messages against what the target model supports.
//
// DESIGN: One scan pass collects an issue per (message, feature) pair the
// model cannot accept. The policy then decides the outcome:
//
//	AutoFix             → strip the offending content, keep going
//	AbortOnUnsupported  → abort the run with every issue in the reason
//	neither             → record issues, pass messages through
//
// AutoFix takes precedence when both flags are set.
package capability

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/compresr/context-pipeline/internal/messages"
	"github.com/compresr/context-pipeline/internal/pipeline"
)

// Name is the stage identifier.
const Name = "capability_validator"

// Metadata keys read or written by this stage.
const (
	MetaIssues        = "capabilityIssues"
	MetaAutoFixed     = "capabilityAutoFixed"
	MetaCapabilities  = "validatedCapabilities"
	MetaEnabledSearch = "enabledSearch"
)

// Capabilities describes the features a model accepts.
type Capabilities struct {
	SupportsVision       bool `json:"supportsVision" yaml:"supports_vision"`
	SupportsFunctionCall bool `json:"supportsFunctionCall" yaml:"supports_function_call"`
	SupportsReasoning    bool `json:"supportsReasoning" yaml:"supports_reasoning"`
	SupportsSearch       bool `json:"supportsSearch" yaml:"supports_search"`
}

// Policy decides what happens when issues are found.
type Policy struct {
	AbortOnUnsupported bool `yaml:"abort_on_unsupported"`
	AutoFix            bool `yaml:"auto_fix"`
}

// Config bundles capabilities and policy.
type Config struct {
	Capabilities Capabilities
	Policy       Policy
}

// Processor validates capabilities.
type Processor struct {
	cfg Config
}

// New creates a capability validator.
func New(cfg Config) *Processor {
	return &Processor{cfg: cfg}
}

// Name returns the stage name.
func (p *Processor) Name() string { return Name }

// Process scans, then fixes or aborts according to policy.
func (p *Processor) Process(ctx context.Context, pc *pipeline.PipelineContext) (*pipeline.PipelineContext, error) {
	return pipeline.Run(ctx, Name, pc, func(ctx context.Context, out *pipeline.PipelineContext) error {
		caps := p.cfg.Capabilities
		issues := Scan(out.Messages, caps, out.MetaBool(MetaEnabledSearch))

		out.Metadata[MetaIssues] = issues
		out.Metadata[MetaAutoFixed] = 0
		out.Metadata[MetaCapabilities] = caps

		if len(issues) == 0 {
			return nil
		}

		logger := zerolog.Ctx(ctx)
		switch {
		case p.cfg.Policy.AutoFix:
			fixed := fixMessages(out.Messages, caps)
			if !caps.SupportsSearch && out.MetaBool(MetaEnabledSearch) {
				out.Metadata[MetaEnabledSearch] = false
				fixed++
			}
			out.Metadata[MetaAutoFixed] = fixed
			logger.Info().Int("issues", len(issues)).Int("fixed", fixed).Msg("capability: auto-fixed unsupported content")
		case p.cfg.Policy.AbortOnUnsupported:
			out.Abort("Model capability validation failed: " + strings.Join(issues, "; "))
			logger.Warn().Strs("issues", issues).Msg("capability: aborting run")
		default:
			logger.Debug().Strs("issues", issues).Msg("capability: issues recorded")
		}
		return nil
	})
}

// =============================================================================
// SCAN
// =============================================================================

// Usage is the set of features one message relies on.
type Usage struct {
	Vision       bool
	FunctionCall bool
	Reasoning    bool
}

// Detect reports the features m uses.
func Detect(m messages.Message) Usage {
	u := Usage{
		Vision:       len(m.ImageList) > 0,
		FunctionCall: len(m.Tools) > 0 || len(m.ToolCalls) > 0 || m.Role == messages.RoleTool,
		Reasoning:    m.Reasoning != nil && m.Reasoning.Content != "",
	}
	for _, part := range m.Content.Parts {
		switch part.Type {
		case messages.PartImageURL:
			u.Vision = true
		case messages.PartThinking:
			u.Reasoning = true
		}
	}
	return u
}

// Scan returns one issue string per unsupported feature use.
func Scan(msgs []messages.Message, caps Capabilities, searchEnabled bool) []string {
	issues := []string{}
	for i, m := range msgs {
		u := Detect(m)
		if u.Vision && !caps.SupportsVision {
			issues = append(issues, issue(i, m.Role, "vision content", "vision"))
		}
		if u.FunctionCall && !caps.SupportsFunctionCall {
			issues = append(issues, issue(i, m.Role, "function calling", "function calling"))
		}
		if u.Reasoning && !caps.SupportsReasoning {
			issues = append(issues, issue(i, m.Role, "reasoning content", "reasoning"))
		}
	}
	if searchEnabled && !caps.SupportsSearch {
		issues = append(issues, "Search is enabled, but model does not support search")
	}
	return issues
}

func issue(index int, role messages.Role, usage, feature string) string {
	return fmt.Sprintf("Message[%d] (%s) uses %s, but model does not support %s", index, role, usage, feature)
}

// =============================================================================
// AUTO-FIX
// =============================================================================

// fixMessages strips unsupported features in place and returns how many
// messages changed.
func fixMessages(msgs []messages.Message, caps Capabilities) int {
	fixed := 0
	for i := range msgs {
		u := Detect(msgs[i])
		needsFix := (u.Vision && !caps.SupportsVision) ||
			(u.FunctionCall && !caps.SupportsFunctionCall) ||
			(u.Reasoning && !caps.SupportsReasoning)
		if !needsFix {
			continue
		}

		m := msgs[i].Clone()
		if !caps.SupportsVision {
			m.ImageList = nil
			m.Content = dropParts(m.Content, messages.PartImageURL)
		}
		if !caps.SupportsFunctionCall {
			m.Tools = nil
			m.ToolCalls = nil
			if m.Role == messages.RoleTool {
				m.Role = messages.RoleUser
				m.ToolCallID = ""
				m.Plugin = nil
				m.Name = ""
			}
		}
		if !caps.SupportsReasoning {
			m.Reasoning = nil
			m.Content = dropParts(m.Content, messages.PartThinking)
		}
		msgs[i] = m
		fixed++
	}
	return fixed
}

// dropParts removes parts of type t, collapsing a lone text part to a string.
func dropParts(c messages.Content, t messages.PartType) messages.Content {
	if !c.IsStructured() {
		return c
	}
	kept := make([]messages.ContentPart, 0, len(c.Parts))
	for _, part := range c.Parts {
		if part.Type != t {
			kept = append(kept, part)
		}
	}
	if len(kept) == len(c.Parts) {
		return c
	}
	if len(kept) == 0 {
		return messages.Text("")
	}
	return messages.Parts(kept...).Collapse()
}
