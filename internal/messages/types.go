// Package messages defines the conversation model shared by every pipeline stage.
//
// DESIGN: A Message is one turn in the conversation. Role-specific fields are
// optional and only meaningful for the roles that carry them:
//   - assistant:      ToolCalls, Tools, Reasoning, ImageList, Error
//   - assistantGroup: Children
//   - tool:           ToolCallID, Name, Plugin, PluginState, PluginError
//   - user:           ImageList, FileList
//
// Content is a union of a plain string and an ordered list of content parts.
// See content.go for the JSON encoding.
package messages

// Role identifies the author of a message.
type Role string

const (
	RoleSystem     Role = "system"
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleTool       Role = "tool"
	RoleSupervisor Role = "supervisor" // UI-only, must be restored before a model call

	// RoleAssistantGroup bundles several assistant turns and their tool
	// results into one UI message. It is flattened before transmission.
	RoleAssistantGroup Role = "assistantGroup"
)

// Known reports whether r is one of the roles the pipeline understands.
func (r Role) Known() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool, RoleSupervisor, RoleAssistantGroup:
		return true
	}
	return false
}

// Message is a single conversation turn.
type Message struct {
	ID      string  `json:"id,omitempty"`
	Role    Role    `json:"role"`
	Content Content `json:"content"`

	// Tool linkage
	ToolCalls  []ToolCall    `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
	Name       string        `json:"name,omitempty"`
	Plugin     *Plugin       `json:"plugin,omitempty"`
	Tools      []ToolPayload `json:"tools,omitempty"`

	// Pre-normalization attachments
	ImageList []ImageItem `json:"imageList,omitempty"`
	FileList  []FileItem  `json:"fileList,omitempty"`

	Reasoning *Reasoning `json:"reasoning,omitempty"`
	Error     any        `json:"error,omitempty"`

	// Tool execution outcome
	PluginState any `json:"pluginState,omitempty"`
	PluginError any `json:"pluginError,omitempty"`

	// Group members, only for RoleAssistantGroup. Nil means the group was
	// never expanded; an empty slice means it has no members.
	Children []GroupChild `json:"children,omitempty"`

	// Bookkeeping carried from the UI/persistence layer
	Model     string         `json:"model,omitempty"`
	Provider  string         `json:"provider,omitempty"`
	CreatedAt int64          `json:"createdAt,omitempty"`
	UpdatedAt int64          `json:"updatedAt,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
	ParentID  string         `json:"parentId,omitempty"`
	ThreadID  string         `json:"threadId,omitempty"`
	GroupID   string         `json:"groupId,omitempty"`
	TopicID   string         `json:"topicId,omitempty"`
}

// GroupChild is one assistant turn inside an assistant group.
type GroupChild struct {
	ID        string        `json:"id"`
	Content   Content       `json:"content"`
	Tools     []ToolPayload `json:"tools,omitempty"`
	Reasoning *Reasoning    `json:"reasoning,omitempty"`
	Error     any           `json:"error,omitempty"`
	ImageList []ImageItem   `json:"imageList,omitempty"`
}

// ToolCall is an assistant-issued function call.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction names the function and carries its JSON-encoded arguments.
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolPayload is the UI-side description of a tool invocation, converted
// to ToolCall before transmission.
type ToolPayload struct {
	ID         string `json:"id"`
	Identifier string `json:"identifier"`
	APIName    string `json:"apiName"`
	Arguments  string `json:"arguments"`
	Type       string `json:"type,omitempty"`

	// Result is set on tools inside an assistant group once they have run.
	Result *ToolResult `json:"result,omitempty"`
}

// ToolResult is the recorded outcome of a grouped tool invocation.
type ToolResult struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Error   any    `json:"error,omitempty"`
	State   any    `json:"state,omitempty"`
}

// Payload returns t without its result.
func (t ToolPayload) Payload() ToolPayload {
	t.Result = nil
	return t
}

// Plugin links a tool-result message back to the plugin that produced it.
type Plugin struct {
	Identifier string `json:"identifier"`
	APIName    string `json:"apiName"`
	Arguments  string `json:"arguments,omitempty"`
	Type       string `json:"type,omitempty"`
}

// Reasoning is the model's thinking output. A non-empty Signature marks
// content that must be replayed as a thinking part.
type Reasoning struct {
	Content   string `json:"content"`
	Signature string `json:"signature,omitempty"`
}

// ImageItem references an uploaded image.
type ImageItem struct {
	ID  string `json:"id"`
	URL string `json:"url"`
	Alt string `json:"alt"`
}

// FileItem references an uploaded file.
type FileItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	FileType string `json:"fileType"`
	Size     int64  `json:"size"`
	URL      string `json:"url"`
}

// HasAttachments reports whether the message carries images or files.
func (m *Message) HasAttachments() bool {
	return len(m.ImageList) > 0 || len(m.FileList) > 0
}
