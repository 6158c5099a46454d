// Package toolcall converts UI tool payloads into model tool_calls.
//
// DESIGN: Assistant messages carry `tools` (identifier + apiName) from the UI;
// models expect OpenAI-style `tool_calls`. Tool-result messages carry a
// `plugin` that becomes the function `name`.
//
// When the target model cannot call functions, tool linkage is stripped and
// tool results are demoted to user messages.
package toolcall

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/compresr/context-pipeline/internal/messages"
	"github.com/compresr/context-pipeline/internal/pipeline"
)

// Name is the stage identifier.
const Name = "tool_call"

// Metadata keys written by this stage.
const (
	MetaProcessed         = "toolCallProcessed"
	MetaCallsConverted    = "toolCallsConverted"
	MetaMessagesConverted = "toolMessagesConverted"
	MetaSupportTools      = "supportTools"
)

// FunctionType is the tool_calls type for every converted call.
const FunctionType = "function"

// Config controls conversion.
type Config struct {
	Model    string
	Provider string

	// IsCanUseFC reports function-call support; nil means supported.
	IsCanUseFC func(model, provider string) bool

	// GenToolCallingName builds the function name; nil means "identifier.apiName".
	GenToolCallingName func(identifier, apiName, toolType string) string
}

// Processor converts tool payloads.
type Processor struct {
	cfg Config
}

// New creates a tool call processor.
func New(cfg Config) *Processor {
	if cfg.GenToolCallingName == nil {
		cfg.GenToolCallingName = DefaultToolCallingName
	}
	return &Processor{cfg: cfg}
}

// DefaultToolCallingName joins identifier and apiName with a dot.
func DefaultToolCallingName(identifier, apiName, _ string) string {
	if identifier == "" {
		return apiName
	}
	return identifier + "." + apiName
}

// Name returns the stage name.
func (p *Processor) Name() string { return Name }

// Process converts assistant tools and tool-result plugins.
func (p *Processor) Process(ctx context.Context, pc *pipeline.PipelineContext) (*pipeline.PipelineContext, error) {
	return pipeline.Run(ctx, Name, pc, func(ctx context.Context, out *pipeline.PipelineContext) error {
		supportTools := true
		if p.cfg.IsCanUseFC != nil {
			supportTools = p.cfg.IsCanUseFC(p.cfg.Model, p.cfg.Provider)
		}

		callsConverted, messagesConverted := 0, 0
		for i := range out.Messages {
			msg := &out.Messages[i]
			switch msg.Role {
			case messages.RoleAssistant:
				if updated, ok := p.convertAssistant(*msg, supportTools); ok {
					*msg = updated
					callsConverted++
				}
			case messages.RoleTool:
				if updated, ok := p.convertTool(*msg, supportTools); ok {
					*msg = updated
					messagesConverted++
				}
			}
		}

		out.Metadata[MetaProcessed] = callsConverted + messagesConverted
		out.Metadata[MetaCallsConverted] = callsConverted
		out.Metadata[MetaMessagesConverted] = messagesConverted
		out.Metadata[MetaSupportTools] = supportTools

		zerolog.Ctx(ctx).Debug().
			Bool("support_tools", supportTools).
			Int("calls_converted", callsConverted).
			Int("messages_converted", messagesConverted).
			Msg("tool_call: done")
		return nil
	})
}

// convertAssistant reports true when the message had tool payloads converted.
func (p *Processor) convertAssistant(m messages.Message, supportTools bool) (messages.Message, bool) {
	if !supportTools {
		if m.Tools == nil && m.ToolCalls == nil {
			return m, false
		}
		out := m.Clone()
		out.Tools = nil
		out.ToolCalls = nil
		return out, false
	}

	if len(m.Tools) == 0 {
		return m, false
	}

	out := m.Clone()
	calls := make([]messages.ToolCall, 0, len(m.Tools))
	for _, t := range m.Tools {
		calls = append(calls, messages.ToolCall{
			ID:   t.ID,
			Type: FunctionType,
			Function: messages.ToolCallFunction{
				Name:      p.cfg.GenToolCallingName(t.Identifier, t.APIName, t.Type),
				Arguments: t.Arguments,
			},
		})
	}
	out.ToolCalls = calls
	out.Tools = nil
	return out, true
}

// convertTool reports true when the message was demoted or renamed.
func (p *Processor) convertTool(m messages.Message, supportTools bool) (messages.Message, bool) {
	if !supportTools {
		out := m.Clone()
		out.Role = messages.RoleUser
		out.Name = ""
		out.Plugin = nil
		out.ToolCallID = ""
		return out, true
	}
	if m.Plugin == nil {
		return m, false
	}
	name := p.cfg.GenToolCallingName(m.Plugin.Identifier, m.Plugin.APIName, m.Plugin.Type)
	if name == m.Name {
		return m, false
	}
	out := m.Clone()
	out.Name = name
	return out, true
}
