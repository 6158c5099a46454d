// Package toolreorder restores tool call / tool result adjacency.
//
// DESIGN: A tool result is only valid when an assistant message issued its
// call id. Valid results are emitted directly after that assistant, in the
// order of its tool_calls, and nowhere else:
//
//	[system, tool{c1}, assistant{c1}]  →  [system, assistant{c1}, tool{c1}]
//
// Results with a missing or unknown tool_call_id are dropped. When several
// results answer the same call id, the first one wins.
package toolreorder

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/compresr/context-pipeline/internal/messages"
	"github.com/compresr/context-pipeline/internal/pipeline"
)

// Name is the stage identifier.
const Name = "tool_message_reorder"

// Metadata keys written by this stage.
const (
	MetaOriginalCount    = "toolReorderOriginalCount"
	MetaReorderedCount   = "toolReorderReorderedCount"
	MetaRemovedInvalid   = "toolReorderRemovedInvalid"
	MetaRemovedDuplicate = "toolReorderRemovedDuplicate"
)

// Processor reorders tool results.
type Processor struct{}

// New creates a tool message reorder processor.
func New() *Processor { return &Processor{} }

// Name returns the stage name.
func (p *Processor) Name() string { return Name }

// Process rebuilds the message sequence.
func (p *Processor) Process(ctx context.Context, pc *pipeline.PipelineContext) (*pipeline.PipelineContext, error) {
	return pipeline.Run(ctx, Name, pc, func(ctx context.Context, out *pipeline.PipelineContext) error {
		res := Reorder(out.Messages)

		if res.RemovedInvalid > 0 || res.RemovedDuplicate > 0 {
			zerolog.Ctx(ctx).Warn().
				Str("processor", Name).
				Strs("invalid_message_ids", res.InvalidIDs).
				Int("removed_invalid", res.RemovedInvalid).
				Int("removed_duplicate", res.RemovedDuplicate).
				Msg("tool_reorder: dropped tool messages")
		}

		out.Metadata[MetaOriginalCount] = len(out.Messages)
		out.Metadata[MetaReorderedCount] = len(res.Messages)
		out.Metadata[MetaRemovedInvalid] = res.RemovedInvalid
		out.Metadata[MetaRemovedDuplicate] = res.RemovedDuplicate
		out.Messages = res.Messages
		return nil
	})
}

// Result is the outcome of Reorder.
type Result struct {
	Messages         []messages.Message
	RemovedInvalid   int
	RemovedDuplicate int
	InvalidIDs       []string // message ids of dropped invalid results
}

// Reorder places every valid tool result right after its assistant message.
func Reorder(msgs []messages.Message) Result {
	valid := make(map[string]bool)
	for _, m := range msgs {
		if m.Role != messages.RoleAssistant {
			continue
		}
		for _, call := range m.ToolCalls {
			if call.ID != "" {
				valid[call.ID] = true
			}
		}
	}

	var res Result
	results := make(map[string]messages.Message)
	for _, m := range msgs {
		if m.Role != messages.RoleTool {
			continue
		}
		switch {
		case m.ToolCallID == "" || !valid[m.ToolCallID]:
			res.RemovedInvalid++
			res.InvalidIDs = append(res.InvalidIDs, m.ID)
		case hasKey(results, m.ToolCallID):
			res.RemovedDuplicate++
		default:
			results[m.ToolCallID] = m
		}
	}

	placed := make(map[string]bool, len(results))
	out := make([]messages.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == messages.RoleTool {
			continue
		}
		out = append(out, m)
		if m.Role != messages.RoleAssistant {
			continue
		}
		for _, call := range m.ToolCalls {
			result, ok := results[call.ID]
			if !ok || placed[call.ID] {
				continue
			}
			out = append(out, result)
			placed[call.ID] = true
		}
	}

	res.Messages = out
	return res
}

func hasKey(m map[string]messages.Message, k string) bool {
	_, ok := m[k]
	return ok
}
