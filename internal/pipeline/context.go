// Package pipeline defines the processor contract and the engine that runs it.
//
// DESIGN: Every stage implements Processor. A stage receives a
// PipelineContext, works on a clone (see Run), and returns the clone:
//
//	validate input → clone → transform → validate output
//
// FLOW:
//  1. Caller builds an Input from message history + request metadata
//  2. Engine snapshots InitialState, validates messages once
//  3. Engine runs stages sequentially, threading one context through
//  4. A stage may Abort (normal outcome, no error) to stop the run
//  5. Engine returns the final messages + metadata as a Result
//
// ERRORS: callers only ever observe *ValidationError or *ProcessorError.
package pipeline

import (
	"maps"

	"github.com/compresr/context-pipeline/internal/messages"
)

// Well-known metadata keys seeded by the engine.
const (
	MetaModel    = "model"
	MetaProvider = "provider"
)

// InitialState is the immutable snapshot of what the run started from.
// Only used for diagnostics.
type InitialState struct {
	RunID        string `json:"run_id"`
	Model        string `json:"model,omitempty"`
	Provider     string `json:"provider,omitempty"`
	MessageCount int    `json:"message_count"`
}

// PipelineContext is the unit of work threaded through the pipeline.
type PipelineContext struct {
	Messages     []messages.Message
	Metadata     map[string]any
	IsAborted    bool
	AbortReason  string
	InitialState InitialState
}

// Clone copies the message slice (shallow per element) and the metadata map.
// Stages deep-copy only the messages they modify.
func (pc *PipelineContext) Clone() *PipelineContext {
	out := *pc
	out.Messages = make([]messages.Message, len(pc.Messages))
	copy(out.Messages, pc.Messages)
	out.Metadata = make(map[string]any, len(pc.Metadata)+4)
	maps.Copy(out.Metadata, pc.Metadata)
	return &out
}

// Abort marks the context so that no further stages run.
func (pc *PipelineContext) Abort(reason string) {
	pc.IsAborted = true
	pc.AbortReason = reason
}

// MetaBool reads a boolean metadata flag, false when absent.
func (pc *PipelineContext) MetaBool(key string) bool {
	v, _ := pc.Metadata[key].(bool)
	return v
}

// MetaString reads a string metadata value, "" when absent.
func (pc *PipelineContext) MetaString(key string) string {
	v, _ := pc.Metadata[key].(string)
	return v
}
