// Package adapters converts provider request bodies to and from the
// pipeline's message model.
//
// DESIGN: Clients send provider-native bodies (OpenAI chat completions,
// Anthropic messages). Each adapter implements one Extract/Apply pair:
//
//   - ExtractMessages: body → []messages.Message
//   - ApplyMessages:   patch processed messages back into the body
//
// Every other field of the body (tools, temperature, stream, ...) is left
// untouched; adapters read with gjson and write with sjson.
//
// FLOW:
//  1. Gateway picks the adapter from the registry by provider name
//  2. ExtractMessages + ExtractModel feed pipeline.Input
//  3. Engine runs the configured stages
//  4. ApplyMessages writes the result back into the original body
//
// To add a new provider: implement Adapter interface and register in Registry.
package adapters

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/compresr/context-pipeline/internal/messages"
)

// Provider identifies a request body format.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// ErrNoMessages is returned when a body carries no messages array.
var ErrNoMessages = errors.New("request body has no messages array")

// Adapter defines the unified interface for provider-specific request handling.
// Adapters are stateless and thread-safe.
type Adapter interface {
	// Name returns the adapter identifier (e.g., "openai", "anthropic")
	Name() string

	// Provider returns the provider type for this adapter
	Provider() Provider

	// ExtractModel extracts the model name from request body.
	ExtractModel(body []byte) string

	// ExtractMessages decodes the conversation carried by body.
	ExtractMessages(body []byte) ([]messages.Message, error)

	// ApplyMessages replaces the conversation in body with msgs.
	ApplyMessages(body []byte, msgs []messages.Message) ([]byte, error)
}

// BaseAdapter provides common functionality for all adapters.
type BaseAdapter struct {
	name     string
	provider Provider
}

// Name returns the adapter name.
func (a *BaseAdapter) Name() string {
	return a.name
}

// Provider returns the provider type.
func (a *BaseAdapter) Provider() Provider {
	return a.provider
}

// ExtractModel reads "model", stripping a provider prefix
// (e.g., "openai/gpt-4o" -> "gpt-4o").
func (a *BaseAdapter) ExtractModel(body []byte) string {
	model := gjson.GetBytes(body, "model").String()
	if idx := strings.Index(model, "/"); idx != -1 {
		return model[idx+1:]
	}
	return model
}

// textOf joins the text of a string or an array of {type:"text"} blocks.
func textOf(v gjson.Result) string {
	if v.Type == gjson.String {
		return v.String()
	}
	if !v.IsArray() {
		return ""
	}
	var b strings.Builder
	v.ForEach(func(_, block gjson.Result) bool {
		if s := block.Get("text").String(); s != "" {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(s)
		}
		return true
	})
	return b.String()
}
