package adapters

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/compresr/context-pipeline/internal/messages"
)

// OpenAIAdapter handles Chat Completions bodies:
// messages[] with role="tool" items and assistant tool_calls.
type OpenAIAdapter struct {
	BaseAdapter
}

// NewOpenAIAdapter creates a new OpenAI adapter.
func NewOpenAIAdapter() *OpenAIAdapter {
	return &OpenAIAdapter{
		BaseAdapter: BaseAdapter{
			name:     "openai",
			provider: ProviderOpenAI,
		},
	}
}

// ExtractMessages decodes messages[]. The wire shape matches the message
// model, so each element is unmarshalled directly.
func (a *OpenAIAdapter) ExtractMessages(body []byte) ([]messages.Message, error) {
	arr := gjson.GetBytes(body, "messages")
	if !arr.IsArray() {
		return nil, ErrNoMessages
	}

	items := arr.Array()
	out := make([]messages.Message, 0, len(items))
	for i, item := range items {
		var m messages.Message
		if err := json.Unmarshal([]byte(item.Raw), &m); err != nil {
			return nil, fmt.Errorf("messages[%d]: %w", i, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// ApplyMessages replaces messages[] and leaves every other field as sent.
func (a *OpenAIAdapter) ApplyMessages(body []byte, msgs []messages.Message) ([]byte, error) {
	if msgs == nil {
		msgs = []messages.Message{}
	}
	raw, err := json.Marshal(msgs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode messages: %w", err)
	}
	return sjson.SetRawBytes(body, "messages", raw)
}

var _ Adapter = (*OpenAIAdapter)(nil)
