package pipeline

import (
	"context"
	"fmt"
)

// Processor is one stage of the pipeline.
type Processor interface {
	// Name returns the stage identifier, unique within a pipeline.
	Name() string

	// Process returns a new context; the input context must not be mutated.
	Process(ctx context.Context, pc *PipelineContext) (*PipelineContext, error)
}

// TransformFunc mutates the working copy handed to it by Run.
type TransformFunc func(ctx context.Context, pc *PipelineContext) error

// Run implements the processor contract around fn:
// validate input, clone, transform, validate output.
// Panics and errors from fn become *ProcessorError tagged with name.
func Run(ctx context.Context, name string, pc *PipelineContext, fn TransformFunc) (*PipelineContext, error) {
	if err := validateContext(name, pc); err != nil {
		return nil, err
	}

	out := pc.Clone()
	if err := safeTransform(ctx, out, fn); err != nil {
		return nil, &ProcessorError{Processor: name, Reason: "transform failed", Err: err}
	}

	if err := validateContext(name, out); err != nil {
		return nil, err
	}
	return out, nil
}

func safeTransform(ctx context.Context, pc *PipelineContext, fn TransformFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, pc)
}

func validateContext(name string, pc *PipelineContext) error {
	if pc == nil {
		return &ValidationError{Processor: name, Reason: "context is nil"}
	}
	if pc.Messages == nil {
		return &ValidationError{Processor: name, Reason: "messages must be a sequence"}
	}
	return nil
}
