// Router builds the pipeline that serves one request.
//
// DESIGN: Stage order and defaults come from configuration; a request may
// override the model, capabilities, variables, history and template. Stages
// hold per-request settings, so an Engine is assembled per request from the
// shared base Options. Assembly is allocation-only (no I/O).
//
// Placeholder variables are layered (later wins):
//  1. Built-in generators (date, time, uuid, ...) when enabled
//  2. Static variables from configuration
//  3. Request variables
package gateway

import (
	"github.com/rs/zerolog"

	"github.com/compresr/context-pipeline/internal/config"
	"github.com/compresr/context-pipeline/internal/pipeline"
	"github.com/compresr/context-pipeline/internal/processors"
	"github.com/compresr/context-pipeline/internal/processors/capability"
	"github.com/compresr/context-pipeline/internal/processors/content"
	"github.com/compresr/context-pipeline/internal/processors/placeholder"
)

// Overrides are the request-level pipeline settings.
type Overrides struct {
	Model              string
	Provider           string
	Capabilities       *capability.Capabilities
	Variables          map[string]any
	EnableHistoryCount *bool
	HistoryCount       *int
	InputTemplate      *string
	SystemRole         *string
	HistorySummary     string
}

// Router assembles engines from configuration plus request overrides.
type Router struct {
	base       processors.Options
	staticVars map[string]placeholder.Generator
	resolver   content.Resolver
	metrics    pipeline.Recorder
}

// NewRouter creates a router. resolver and metrics may be nil.
func NewRouter(cfg config.PipelineConfig, resolver content.Resolver, metrics pipeline.Recorder) *Router {
	static := make(map[string]any, len(cfg.Placeholder.Variables))
	for k, v := range cfg.Placeholder.Variables {
		static[k] = v
	}

	var builtins map[string]placeholder.Generator
	if cfg.Placeholder.Builtins {
		builtins = placeholder.Builtins(nil)
	}

	return &Router{
		base:       cfg.Options(),
		staticVars: placeholder.Merge(builtins, placeholder.FromValues(static)),
		resolver:   resolver,
		metrics:    metrics,
	}
}

// Options resolves the builder options for one request.
func (r *Router) Options(o Overrides) processors.Options {
	opts := r.base
	opts.Model = o.Model
	opts.Provider = o.Provider

	if o.Capabilities != nil {
		opts.Capabilities = *o.Capabilities
	}
	opts.IsCanUseFC, opts.IsCanUseVision = processors.CapabilityPredicates(opts.Capabilities)

	if o.EnableHistoryCount != nil {
		opts.EnableHistoryCount = *o.EnableHistoryCount
	}
	if o.HistoryCount != nil {
		opts.HistoryCount = o.HistoryCount
	}
	if o.InputTemplate != nil {
		opts.InputTemplate = *o.InputTemplate
	}
	if o.SystemRole != nil {
		opts.SystemRole = *o.SystemRole
	}
	opts.HistorySummary = o.HistorySummary

	opts.Variables = placeholder.Merge(r.staticVars, placeholder.FromValues(o.Variables))
	opts.Resolver = r.resolver
	return opts
}

// Engine builds the engine for one request.
func (r *Router) Engine(o Overrides, logger *zerolog.Logger) (*pipeline.Engine, error) {
	stages, err := processors.Build(r.Options(o))
	if err != nil {
		return nil, err
	}
	return pipeline.NewEngine(pipeline.EngineOptions{
		Pipeline: stages,
		Logger:   logger,
		Metrics:  r.metrics,
	}), nil
}
