package adapters

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/compresr/context-pipeline/internal/imagefetch"
	"github.com/compresr/context-pipeline/internal/messages"
)

// AnthropicAdapter handles Anthropic Messages API bodies.
// Anthropic differs from the message model in three places:
//   - system prompt is a top-level "system" field, not a message
//   - tool calls are assistant content blocks with type:"tool_use"
//   - tool results are user content blocks with type:"tool_result"
type AnthropicAdapter struct {
	BaseAdapter
}

// NewAnthropicAdapter creates a new Anthropic adapter.
func NewAnthropicAdapter() *AnthropicAdapter {
	return &AnthropicAdapter{
		BaseAdapter: BaseAdapter{
			name:     "anthropic",
			provider: ProviderAnthropic,
		},
	}
}

// =============================================================================
// EXTRACT
// =============================================================================

// ExtractMessages decodes "system" and messages[]. Each tool_result block
// becomes a tool message placed before the rest of its user turn.
func (a *AnthropicAdapter) ExtractMessages(body []byte) ([]messages.Message, error) {
	root := gjson.ParseBytes(body)
	arr := root.Get("messages")
	if !arr.IsArray() {
		return nil, ErrNoMessages
	}

	var out []messages.Message
	if sys := textOf(root.Get("system")); sys != "" {
		out = append(out, messages.Message{Role: messages.RoleSystem, Content: messages.Text(sys)})
	}

	for i, item := range arr.Array() {
		role := messages.Role(item.Get("role").String())
		content := item.Get("content")

		if content.Type == gjson.String {
			out = append(out, messages.Message{Role: role, Content: messages.Text(content.String())})
			continue
		}
		if !content.IsArray() {
			return nil, fmt.Errorf("messages[%d]: content must be a string or an array", i)
		}

		var (
			parts   []messages.ContentPart
			calls   []messages.ToolCall
			results []messages.Message
			blkErr  error
		)
		content.ForEach(func(_, block gjson.Result) bool {
			switch typ := block.Get("type").String(); typ {
			case "text":
				parts = append(parts, messages.TextPart(block.Get("text").String()))
			case "image":
				url := sourceURL(block.Get("source"))
				if url == "" {
					blkErr = fmt.Errorf("image block without a usable source")
					return false
				}
				parts = append(parts, messages.ImagePart(url))
			case "thinking":
				parts = append(parts, messages.ThinkingPart(block.Get("thinking").String(), block.Get("signature").String()))
			case "tool_use":
				args := block.Get("input").Raw
				if args == "" {
					args = "{}"
				}
				calls = append(calls, messages.ToolCall{
					ID:   block.Get("id").String(),
					Type: "function",
					Function: messages.ToolCallFunction{
						Name:      block.Get("name").String(),
						Arguments: args,
					},
				})
			case "tool_result":
				results = append(results, messages.Message{
					Role:       messages.RoleTool,
					ToolCallID: block.Get("tool_use_id").String(),
					Content:    messages.Text(textOf(block.Get("content"))),
				})
			case "redacted_thinking":
				// opaque, nothing to carry
			default:
				blkErr = fmt.Errorf("unsupported content block %q", typ)
				return false
			}
			return true
		})
		if blkErr != nil {
			return nil, fmt.Errorf("messages[%d]: %w", i, blkErr)
		}

		out = append(out, results...)
		if len(results) > 0 && len(parts) == 0 && len(calls) == 0 {
			continue
		}

		m := messages.Message{Role: role, ToolCalls: calls, Content: messages.Text("")}
		if len(parts) > 0 {
			m.Content = messages.Parts(parts...).Collapse()
		}
		out = append(out, m)
	}
	return out, nil
}

// sourceURL turns an image source into a URL or data URI.
func sourceURL(src gjson.Result) string {
	switch src.Get("type").String() {
	case "base64":
		return "data:" + src.Get("media_type").String() + ";base64," + src.Get("data").String()
	case "url":
		return src.Get("url").String()
	}
	return ""
}

// =============================================================================
// APPLY
// =============================================================================

// ApplyMessages writes msgs back as "system" + messages[]. Consecutive tool
// messages are merged into one user turn of tool_result blocks.
func (a *AnthropicAdapter) ApplyMessages(body []byte, msgs []messages.Message) ([]byte, error) {
	var (
		system  []string
		turns   []string
		pending []string // tool_result blocks awaiting a user turn
	)

	flush := func() {
		if len(pending) == 0 {
			return
		}
		turns = append(turns, `{"role":"user","content":[`+strings.Join(pending, ",")+`]}`)
		pending = nil
	}

	for i, m := range msgs {
		switch m.Role {
		case messages.RoleSystem:
			system = append(system, m.Content.PlainText())
			continue
		case messages.RoleTool:
			block, err := toolResultBlock(m)
			if err != nil {
				return nil, fmt.Errorf("messages[%d]: %w", i, err)
			}
			pending = append(pending, block)
			continue
		}

		flush()
		turn, err := anthropicTurn(m)
		if err != nil {
			return nil, fmt.Errorf("messages[%d]: %w", i, err)
		}
		turns = append(turns, turn)
	}
	flush()

	out, err := sjson.SetRawBytes(body, "messages", []byte("["+strings.Join(turns, ",")+"]"))
	if err != nil {
		return nil, err
	}
	if len(system) > 0 {
		return sjson.SetBytes(out, "system", strings.Join(system, "\n\n"))
	}
	return sjson.DeleteBytes(out, "system")
}

// anthropicTurn encodes a user or assistant message. Roles Anthropic does not
// know are sent as user turns.
func anthropicTurn(m messages.Message) (string, error) {
	role := "user"
	if m.Role == messages.RoleAssistant {
		role = "assistant"
	}
	turn, _ := sjson.Set(`{}`, "role", role)

	if !m.Content.IsStructured() && len(m.ToolCalls) == 0 {
		return sjson.Set(turn, "content", m.Content.Text)
	}

	var blocks []string
	if !m.Content.IsStructured() && m.Content.Text != "" {
		b, _ := sjson.Set(`{"type":"text"}`, "text", m.Content.Text)
		blocks = append(blocks, b)
	}
	for _, p := range m.Content.Parts {
		b, err := partBlock(p)
		if err != nil {
			return "", err
		}
		blocks = append(blocks, b)
	}
	for _, tc := range m.ToolCalls {
		b, _ := sjson.Set(`{"type":"tool_use"}`, "id", tc.ID)
		b, _ = sjson.Set(b, "name", tc.Function.Name)
		input := tc.Function.Arguments
		if !gjson.Valid(input) || !gjson.Parse(input).IsObject() {
			input = "{}"
		}
		b, err := sjson.SetRaw(b, "input", input)
		if err != nil {
			return "", err
		}
		blocks = append(blocks, b)
	}

	return sjson.SetRaw(turn, "content", "["+strings.Join(blocks, ",")+"]")
}

func partBlock(p messages.ContentPart) (string, error) {
	switch p.Type {
	case messages.PartText:
		return sjson.Set(`{"type":"text"}`, "text", p.Text)
	case messages.PartThinking:
		b, _ := sjson.Set(`{"type":"thinking"}`, "thinking", p.Thinking)
		return sjson.Set(b, "signature", p.Signature)
	case messages.PartImageURL:
		if p.ImageURL == nil || p.ImageURL.URL == "" {
			return "", fmt.Errorf("image part without url")
		}
		url := p.ImageURL.URL
		if imagefetch.IsDataURI(url) {
			mime, data, err := imagefetch.ParseDataURI(url)
			if err != nil {
				return "", err
			}
			b, _ := sjson.Set(`{"type":"image"}`, "source.type", "base64")
			b, _ = sjson.Set(b, "source.media_type", mime)
			return sjson.Set(b, "source.data", base64.StdEncoding.EncodeToString(data))
		}
		b, _ := sjson.Set(`{"type":"image"}`, "source.type", "url")
		return sjson.Set(b, "source.url", url)
	default:
		return "", fmt.Errorf("unknown content part type %q", p.Type)
	}
}

func toolResultBlock(m messages.Message) (string, error) {
	b, _ := sjson.Set(`{"type":"tool_result"}`, "tool_use_id", m.ToolCallID)
	return sjson.Set(b, "content", m.Content.PlainText())
}

var _ Adapter = (*AnthropicAdapter)(nil)
