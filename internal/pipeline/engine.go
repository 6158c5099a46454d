package pipeline

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/compresr/context-pipeline/internal/messages"
)

// Recorder receives per-stage and per-run measurements.
// monitoring.MetricsCollector satisfies it.
type Recorder interface {
	RecordStage(name string, d time.Duration, err error)
	RecordRun(aborted bool, err error, d time.Duration)
}

// EngineOptions configures an Engine.
type EngineOptions struct {
	Pipeline []Processor
	Logger   *zerolog.Logger // nil = disabled
	Metrics  Recorder        // nil = not recorded
}

// Engine runs an ordered list of processors.
// An Engine is not safe for concurrent mutation, but Process may be called
// concurrently once the pipeline is assembled.
type Engine struct {
	processors []Processor
	logger     zerolog.Logger
	metrics    Recorder
}

// NewEngine creates an engine with the given pipeline.
func NewEngine(opts EngineOptions) *Engine {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Engine{
		processors: slices.Clone(opts.Pipeline),
		logger:     logger,
		metrics:    opts.Metrics,
	}
}

// Input is what a caller hands to Process.
type Input struct {
	Model    string
	Provider string
	Messages []messages.Message
	Metadata map[string]any
	RunID    string // generated when empty
}

// Stats describes one run.
type Stats struct {
	ProcessedCount int                      `json:"processed_count"`
	Executed       []string                 `json:"executed"` // stage names in run order
	TotalDuration  time.Duration            `json:"total_duration"`
	Durations      map[string]time.Duration `json:"durations"`
}

// Result is the terminal state of a run.
type Result struct {
	Messages     []messages.Message `json:"messages"`
	Metadata     map[string]any     `json:"metadata"`
	IsAborted    bool               `json:"is_aborted"`
	AbortReason  string             `json:"abort_reason,omitempty"`
	InitialState InitialState       `json:"initial_state"`
	Stats        Stats              `json:"stats"`
}

// =============================================================================
// PIPELINE MANAGEMENT
// =============================================================================

// AddProcessor appends a processor. Returns the engine for chaining.
func (e *Engine) AddProcessor(p Processor) *Engine {
	e.processors = append(e.processors, p)
	return e
}

// RemoveProcessor removes every processor with the given name.
func (e *Engine) RemoveProcessor(name string) *Engine {
	e.processors = slices.DeleteFunc(e.processors, func(p Processor) bool {
		return p.Name() == name
	})
	return e
}

// Processors returns a copy of the pipeline.
func (e *Engine) Processors() []Processor {
	return slices.Clone(e.processors)
}

// Clear removes all processors.
func (e *Engine) Clear() *Engine {
	e.processors = nil
	return e
}

// Clone returns an independent engine sharing the same processor values.
func (e *Engine) Clone() *Engine {
	return &Engine{
		processors: slices.Clone(e.processors),
		logger:     e.logger,
		metrics:    e.metrics,
	}
}

// ValidationResult reports pipeline assembly problems.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// Validate checks the assembled pipeline.
func (e *Engine) Validate() ValidationResult {
	var errs []string
	if len(e.processors) == 0 {
		errs = append(errs, "No processors in pipeline")
	}

	seen := make(map[string]int)
	for _, p := range e.processors {
		if p == nil {
			errs = append(errs, "Processor is nil")
			continue
		}
		if p.Name() == "" {
			errs = append(errs, "Processor missing name")
			continue
		}
		seen[p.Name()]++
	}

	var dups []string
	for name, n := range seen {
		if n > 1 {
			dups = append(dups, name)
		}
	}
	if len(dups) > 0 {
		sort.Strings(dups)
		errs = append(errs, "Found duplicate processor names: "+strings.Join(dups, ", "))
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// EngineStats summarizes the assembled pipeline.
type EngineStats struct {
	ProcessorCount int
	ProcessorNames []string
}

// Stats returns processor count and names in order.
func (e *Engine) Stats() EngineStats {
	names := make([]string, 0, len(e.processors))
	for _, p := range e.processors {
		names = append(names, p.Name())
	}
	return EngineStats{ProcessorCount: len(e.processors), ProcessorNames: names}
}

// =============================================================================
// EXECUTION
// =============================================================================

// Process runs every stage in order and returns the final state.
// Abort is reported in the Result; cancellation of ctx is returned as an error.
func (e *Engine) Process(ctx context.Context, in Input) (result *Result, err error) {
	start := time.Now()

	pc := e.initialContext(in)
	logger := e.logger.With().Str("run_id", pc.InitialState.RunID).Logger()
	ctx = logger.WithContext(ctx)

	defer func() {
		if e.metrics != nil {
			e.metrics.RecordRun(result != nil && result.IsAborted, err, time.Since(start))
		}
	}()

	if verr := messages.Validate(pc.Messages); verr != nil {
		return nil, &ValidationError{Processor: "engine", Reason: verr.Error()}
	}

	stats := Stats{Durations: make(map[string]time.Duration, len(e.processors))}

	for _, p := range e.processors {
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}

		name := p.Name()
		stageStart := time.Now()
		next, perr := p.Process(ctx, pc)
		elapsed := time.Since(stageStart)

		stats.Durations[name] = elapsed
		stats.Executed = append(stats.Executed, name)
		stats.ProcessedCount++
		if e.metrics != nil {
			e.metrics.RecordStage(name, elapsed, perr)
		}

		if perr != nil {
			perr = normalizeError(name, perr)
			logger.Error().Err(perr).Str("processor", name).Msg("pipeline: stage failed")
			return nil, perr
		}
		if next == nil {
			return nil, &ValidationError{Processor: name, Reason: "returned nil context"}
		}

		pc = next
		logger.Debug().
			Str("processor", name).
			Int("messages", len(pc.Messages)).
			Dur("duration", elapsed).
			Msg("pipeline: stage done")

		if pc.IsAborted {
			logger.Info().
				Str("processor", name).
				Str("reason", pc.AbortReason).
				Msg("pipeline: aborted")
			break
		}
	}

	stats.TotalDuration = time.Since(start)

	return &Result{
		Messages:     pc.Messages,
		Metadata:     pc.Metadata,
		IsAborted:    pc.IsAborted,
		AbortReason:  pc.AbortReason,
		InitialState: pc.InitialState,
		Stats:        stats,
	}, nil
}

func (e *Engine) initialContext(in Input) *PipelineContext {
	msgs := in.Messages
	if msgs == nil {
		msgs = []messages.Message{}
	} else {
		msgs = slices.Clone(msgs)
	}

	meta := make(map[string]any, len(in.Metadata)+2)
	maps.Copy(meta, in.Metadata)
	if in.Model != "" {
		meta[MetaModel] = in.Model
	}
	if in.Provider != "" {
		meta[MetaProvider] = in.Provider
	}

	runID := in.RunID
	if runID == "" {
		runID = uuid.New().String()
	}

	return &PipelineContext{
		Messages: msgs,
		Metadata: meta,
		InitialState: InitialState{
			RunID:        runID,
			Model:        in.Model,
			Provider:     in.Provider,
			MessageCount: len(msgs),
		},
	}
}

// normalizeError guarantees the caller only sees the two error kinds.
func normalizeError(name string, err error) error {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return err
	}
	var perr *ProcessorError
	if errors.As(err, &perr) {
		return err
	}
	return &ProcessorError{Processor: name, Reason: "execution failed", Err: err}
}
