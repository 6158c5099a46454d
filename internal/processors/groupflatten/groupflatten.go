// Package groupflatten expands assistant groups into plain assistant and tool
// messages.
//
// DESIGN: The UI stores a multi-step agent turn as one assistantGroup message
// whose children each hold an assistant reply plus the tools it invoked. Model
// APIs only understand the flat form, so each child becomes:
//
//	assistant{id: child.id, tools: child.tools without results}
//	tool{id: result.id, tool_call_id: tool.id}   one per tool with a result
//
// Every generated message inherits the group's timestamps, meta and
// parent/thread/group/topic ids. A group without a children field is left
// untouched; a group with an empty children list disappears.
package groupflatten

import (
	"context"
	"maps"

	"github.com/rs/zerolog"

	"github.com/compresr/context-pipeline/internal/messages"
	"github.com/compresr/context-pipeline/internal/pipeline"
)

// Name is the stage identifier.
const Name = "group_message_flatten"

// Metadata keys written by this stage.
const (
	MetaGroupsFlattened   = "groupMessagesFlattened"
	MetaAssistantsCreated = "assistantMessagesCreated"
	MetaToolsCreated      = "toolMessagesCreated"
)

// Processor flattens assistant groups.
type Processor struct{}

// New creates a group flatten processor.
func New() *Processor { return &Processor{} }

// Name returns the stage name.
func (p *Processor) Name() string { return Name }

// Process replaces every expandable group with its members.
func (p *Processor) Process(ctx context.Context, pc *pipeline.PipelineContext) (*pipeline.PipelineContext, error) {
	return pipeline.Run(ctx, Name, pc, func(ctx context.Context, out *pipeline.PipelineContext) error {
		var groups, assistants, tools int

		flat := make([]messages.Message, 0, len(out.Messages))
		for _, m := range out.Messages {
			if m.Role != messages.RoleAssistantGroup || m.Children == nil {
				flat = append(flat, m)
				continue
			}
			expanded, nTools := Flatten(m)
			flat = append(flat, expanded...)
			groups++
			assistants += len(m.Children)
			tools += nTools
		}

		if groups > 0 {
			zerolog.Ctx(ctx).Debug().
				Str("processor", Name).
				Int("groups", groups).
				Int("assistant_messages", assistants).
				Int("tool_messages", tools).
				Msg("group_flatten: expanded assistant groups")
		}

		out.Messages = flat
		out.Metadata[MetaGroupsFlattened] = groups
		out.Metadata[MetaAssistantsCreated] = assistants
		out.Metadata[MetaToolsCreated] = tools
		return nil
	})
}

// Flatten expands one group and reports how many tool messages it produced.
func Flatten(group messages.Message) ([]messages.Message, int) {
	out := make([]messages.Message, 0, len(group.Children))
	tools := 0

	for _, child := range group.Children {
		child = child.Clone()

		assistant := inherit(group, messages.Message{
			ID:        child.ID,
			Role:      messages.RoleAssistant,
			Content:   child.Content,
			Reasoning: child.Reasoning,
			Error:     child.Error,
			ImageList: child.ImageList,
		})
		if len(child.Tools) > 0 {
			assistant.Tools = make([]messages.ToolPayload, len(child.Tools))
			for i, t := range child.Tools {
				assistant.Tools[i] = t.Payload()
			}
		}
		out = append(out, assistant)

		for _, t := range child.Tools {
			if t.Result == nil {
				continue
			}
			out = append(out, inherit(group, messages.Message{
				ID:         t.Result.ID,
				Role:       messages.RoleTool,
				Content:    messages.Text(t.Result.Content),
				ToolCallID: t.ID,
				Plugin: &messages.Plugin{
					Identifier: t.Identifier,
					APIName:    t.APIName,
					Arguments:  t.Arguments,
					Type:       t.Type,
				},
				PluginState: t.Result.State,
				PluginError: t.Result.Error,
			}))
			tools++
		}
	}
	return out, tools
}

// inherit copies the group-level bookkeeping onto m.
func inherit(group, m messages.Message) messages.Message {
	m.Model = group.Model
	m.Provider = group.Provider
	m.CreatedAt = group.CreatedAt
	m.UpdatedAt = group.UpdatedAt
	m.ParentID = group.ParentID
	m.ThreadID = group.ThreadID
	m.GroupID = group.GroupID
	m.TopicID = group.TopicID
	if group.Meta != nil {
		m.Meta = maps.Clone(group.Meta)
	}
	return m
}
