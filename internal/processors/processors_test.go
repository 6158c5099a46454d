package processors_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/context-pipeline/internal/messages"
	"github.com/compresr/context-pipeline/internal/pipeline"
	"github.com/compresr/context-pipeline/internal/processors"
	"github.com/compresr/context-pipeline/internal/processors/capability"
	"github.com/compresr/context-pipeline/internal/processors/cleanup"
	"github.com/compresr/context-pipeline/internal/processors/groupflatten"
	"github.com/compresr/context-pipeline/internal/processors/history"
	"github.com/compresr/context-pipeline/internal/processors/inject"
	"github.com/compresr/context-pipeline/internal/processors/placeholder"
	"github.com/compresr/context-pipeline/internal/processors/toolreorder"
)

func names(ps []pipeline.Processor) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Name()
	}
	return out
}

func TestBuild_DefaultOrder(t *testing.T) {
	ps, err := processors.Build(processors.Options{})
	require.NoError(t, err)
	assert.Equal(t, processors.DefaultOrder, names(ps))

	for _, name := range processors.DefaultOrder {
		assert.True(t, processors.Known(name), name)
	}
	assert.False(t, processors.Known("nope"))
}

func TestBuild_CustomOrder(t *testing.T) {
	ps, err := processors.Build(processors.Options{Order: []string{cleanup.FieldName, history.Name}})
	require.NoError(t, err)
	assert.Equal(t, []string{cleanup.FieldName, history.Name}, names(ps))
}

func TestBuild_Errors(t *testing.T) {
	_, err := processors.Build(processors.Options{Order: []string{"bogus"}})
	assert.ErrorContains(t, err, `unknown processor "bogus"`)

	_, err = processors.Build(processors.Options{Order: []string{history.Name, history.Name}})
	assert.ErrorContains(t, err, "listed twice")
}

func TestDefaultPipeline_EndToEnd(t *testing.T) {
	count := 4
	caps := capability.Capabilities{SupportsFunctionCall: true}
	fc, vision := processors.CapabilityPredicates(caps)

	ps, err := processors.Build(processors.Options{
		Model:              "gpt-4",
		Provider:           "openai",
		EnableHistoryCount: true,
		HistoryCount:       &count,
		InputTemplate:      "Q: {{text}}",
		Variables:          map[string]placeholder.Generator{"name": func() (string, error) { return "Ann", nil }},
		IsCanUseFC:         fc,
		IsCanUseVision:     vision,
		Capabilities:       caps,
		Policy:             capability.Policy{AutoFix: true},
	})
	require.NoError(t, err)

	engine := pipeline.NewEngine(pipeline.EngineOptions{Pipeline: ps})
	res, err := engine.Process(context.Background(), pipeline.Input{
		Model:    "gpt-4",
		Provider: "openai",
		Messages: []messages.Message{
			{ID: "old", Role: messages.RoleUser, Content: messages.Text("dropped by history")},
			{ID: "sys", Role: messages.RoleSystem, Content: messages.Text("You help {{name}}.")},
			{ID: "t", Role: messages.RoleTool, ToolCallID: "c1", Content: messages.Text("42"),
				Plugin: &messages.Plugin{Identifier: "calc", APIName: "eval"}},
			{ID: "a", Role: messages.RoleAssistant, Tools: []messages.ToolPayload{{ID: "c1", Identifier: "calc", APIName: "eval", Arguments: "{}"}}},
			{ID: "sup", Role: messages.RoleSupervisor, Content: messages.Text("ok"),
				ImageList: []messages.ImageItem{{ID: "i", URL: "http://example.com/i.png"}}},
		},
	})
	require.NoError(t, err)
	require.False(t, res.IsAborted)

	got := res.Messages
	require.Len(t, got, 4)

	assert.Equal(t, messages.Message{Role: messages.RoleSystem, Content: messages.Text("You help Ann.")}, got[0])

	assert.Equal(t, messages.RoleAssistant, got[1].Role)
	require.Len(t, got[1].ToolCalls, 1)
	assert.Equal(t, "calc.eval", got[1].ToolCalls[0].Function.Name)

	assert.Equal(t, messages.Message{Role: messages.RoleTool, ToolCallID: "c1", Name: "calc.eval", Content: messages.Text("42")}, got[2])

	assert.Equal(t, messages.Message{Role: messages.RoleAssistant, Content: messages.Text("ok")}, got[3])

	assert.Equal(t, 1, res.Metadata[history.MetaTruncated])
	assert.Equal(t, 1, res.Metadata[capability.MetaAutoFixed])
	assert.Equal(t, 4, res.Metadata[toolreorder.MetaReorderedCount])
	assert.Equal(t, 1, res.Metadata[cleanup.MetaSupervisorRestored])
	assert.Equal(t, len(processors.DefaultOrder), res.Stats.ProcessedCount)
}

func TestDefaultPipeline_SupervisorToolCallsKeepResults(t *testing.T) {
	caps := capability.Capabilities{SupportsFunctionCall: true}
	fc, vision := processors.CapabilityPredicates(caps)
	ps, err := processors.Build(processors.Options{IsCanUseFC: fc, IsCanUseVision: vision, Capabilities: caps})
	require.NoError(t, err)

	call := messages.ToolCall{ID: "c1", Type: "function", Function: messages.ToolCallFunction{Name: "lookup", Arguments: "{}"}}
	res, err := pipeline.NewEngine(pipeline.EngineOptions{Pipeline: ps}).Process(context.Background(), pipeline.Input{
		Messages: []messages.Message{
			{Role: messages.RoleUser, Content: messages.Text("find it")},
			{Role: messages.RoleSupervisor, Content: messages.Text("delegating"), ToolCalls: []messages.ToolCall{call}},
			{Role: messages.RoleTool, ToolCallID: "c1", Name: "lookup", Content: messages.Text("found")},
		},
	})
	require.NoError(t, err)

	require.Len(t, res.Messages, 3)
	assert.Equal(t, messages.RoleAssistant, res.Messages[1].Role)
	assert.Equal(t, []messages.ToolCall{call}, res.Messages[1].ToolCalls)
	assert.Equal(t, messages.RoleTool, res.Messages[2].Role)
	assert.Equal(t, "c1", res.Messages[2].ToolCallID)
	assert.Equal(t, 0, res.Metadata[toolreorder.MetaRemovedInvalid])
	assert.Equal(t, 1, res.Metadata[cleanup.MetaSupervisorRestored])
}

func TestDefaultPipeline_GroupsAndSystemContext(t *testing.T) {
	caps := capability.Capabilities{SupportsFunctionCall: true}
	fc, vision := processors.CapabilityPredicates(caps)
	ps, err := processors.Build(processors.Options{
		SystemRole:           "Be helpful.",
		HistorySummary:       "earlier chat",
		FormatHistorySummary: func(s string) string { return "<summary>" + s },
		IsCanUseFC:           fc,
		IsCanUseVision:       vision,
		Capabilities:         caps,
	})
	require.NoError(t, err)

	res, err := pipeline.NewEngine(pipeline.EngineOptions{Pipeline: ps}).Process(context.Background(), pipeline.Input{
		Messages: []messages.Message{
			{ID: "u", Role: messages.RoleUser, Content: messages.Text("weather?")},
			{ID: "g", Role: messages.RoleAssistantGroup, Children: []messages.GroupChild{
				{ID: "c1", Content: messages.Text("looking"), Tools: []messages.ToolPayload{{
					ID: "call_1", Identifier: "weather", APIName: "current", Arguments: "{}",
					Result: &messages.ToolResult{ID: "r1", Content: "sunny"},
				}}},
				{ID: "c2", Content: messages.Text("It is sunny.")},
			}},
		},
	})
	require.NoError(t, err)

	got := res.Messages
	require.Len(t, got, 5)
	assert.Equal(t, messages.Message{Role: messages.RoleSystem, Content: messages.Text("Be helpful.\n\n<summary>earlier chat")}, got[0])
	assert.Equal(t, messages.RoleUser, got[1].Role)

	assert.Equal(t, messages.RoleAssistant, got[2].Role)
	require.Len(t, got[2].ToolCalls, 1)
	assert.Equal(t, "call_1", got[2].ToolCalls[0].ID)
	assert.Equal(t, "weather.current", got[2].ToolCalls[0].Function.Name)

	assert.Equal(t, messages.Message{Role: messages.RoleTool, ToolCallID: "call_1", Name: "weather.current", Content: messages.Text("sunny")}, got[3])
	assert.Equal(t, messages.Message{Role: messages.RoleAssistant, Content: messages.Text("It is sunny.")}, got[4])

	assert.Equal(t, 1, res.Metadata[groupflatten.MetaGroupsFlattened])
	assert.Equal(t, true, res.Metadata[inject.MetaSystemRoleInjected])
	assert.Equal(t, true, res.Metadata[inject.MetaHistorySummaryInjected])
	assert.Equal(t, 0, res.Metadata[toolreorder.MetaRemovedInvalid])
}
