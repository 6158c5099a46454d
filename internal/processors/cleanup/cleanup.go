// Package cleanup prepares messages for transmission.
//
// Two stages live here:
//   - SupervisorRestore rewrites the UI-only supervisor role to assistant
//   - FieldCleanup strips each message down to the fields its role needs
//
// FieldCleanup output per role:
//
//	system, user  {role, content}
//	assistant     {role, content, tool_calls?}
//	tool          {role, content, tool_call_id, name?}
//	other         unchanged
package cleanup

import (
	"context"
	"reflect"

	"github.com/compresr/context-pipeline/internal/messages"
	"github.com/compresr/context-pipeline/internal/pipeline"
)

// Stage names.
const (
	SupervisorName = "supervisor_role_restore"
	FieldName      = "message_cleanup"
)

// Metadata keys written by the stages.
const (
	MetaSupervisorRestored = "supervisorRoleRestored"
	MetaCleanupCount       = "messageCleanupCount"
)

// =============================================================================
// SUPERVISOR ROLE
// =============================================================================

// SupervisorRestore maps supervisor messages back to assistant.
type SupervisorRestore struct{}

// NewSupervisorRestore creates the supervisor restore stage.
func NewSupervisorRestore() *SupervisorRestore { return &SupervisorRestore{} }

// Name returns the stage name.
func (s *SupervisorRestore) Name() string { return SupervisorName }

// Process rewrites roles; every other field is kept as is.
func (s *SupervisorRestore) Process(ctx context.Context, pc *pipeline.PipelineContext) (*pipeline.PipelineContext, error) {
	return pipeline.Run(ctx, SupervisorName, pc, func(_ context.Context, out *pipeline.PipelineContext) error {
		restored := 0
		for i := range out.Messages {
			if out.Messages[i].Role != messages.RoleSupervisor {
				continue
			}
			updated := out.Messages[i].Clone()
			updated.Role = messages.RoleAssistant
			out.Messages[i] = updated
			restored++
		}
		out.Metadata[MetaSupervisorRestored] = restored
		return nil
	})
}

// =============================================================================
// FIELD CLEANUP
// =============================================================================

// FieldCleanup strips transport-irrelevant fields.
type FieldCleanup struct{}

// NewFieldCleanup creates the field cleanup stage.
func NewFieldCleanup() *FieldCleanup { return &FieldCleanup{} }

// Name returns the stage name.
func (f *FieldCleanup) Name() string { return FieldName }

// Process minimizes every message.
func (f *FieldCleanup) Process(ctx context.Context, pc *pipeline.PipelineContext) (*pipeline.PipelineContext, error) {
	return pipeline.Run(ctx, FieldName, pc, func(_ context.Context, out *pipeline.PipelineContext) error {
		cleaned := 0
		for i, m := range out.Messages {
			minimal, ok := Minimize(m)
			if !ok || reflect.DeepEqual(minimal, m) {
				continue
			}
			out.Messages[i] = minimal
			cleaned++
		}
		out.Metadata[MetaCleanupCount] = cleaned
		return nil
	})
}

// Minimize returns the minimal form of m. ok is false for roles it does
// not know how to minimize.
func Minimize(m messages.Message) (minimal messages.Message, ok bool) {
	base := messages.Message{Role: m.Role, Content: m.Content.Clone()}

	switch m.Role {
	case messages.RoleSystem, messages.RoleUser:
		return base, true
	case messages.RoleAssistant:
		if len(m.ToolCalls) > 0 {
			base.ToolCalls = append([]messages.ToolCall(nil), m.ToolCalls...)
		}
		return base, true
	case messages.RoleTool:
		base.ToolCallID = m.ToolCallID
		base.Name = m.Name
		return base, true
	default:
		return m, false
	}
}
