package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/compresr/context-pipeline/internal/adapters"
	"github.com/compresr/context-pipeline/internal/monitoring"
	"github.com/compresr/context-pipeline/internal/pipeline"
)

// =============================================================================
// PIPELINE
// =============================================================================

func (g *Gateway) handleProcess(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, g.cfg.Server.BodyLimit())

	var req ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.rejectBody(w, r, err)
		return
	}

	in := pipeline.Input{
		Model:    req.Model,
		Provider: req.Provider,
		Messages: req.Messages,
		Metadata: req.Metadata,
		RunID:    uuid.NewString(),
	}
	res, err := g.run(r, req.Overrides(), in)
	if err != nil {
		g.writePipelineError(w, err)
		return
	}

	w.Header().Set(HeaderRunID, res.InitialState.RunID)
	g.writeJSON(w, http.StatusOK, ProcessResponse{
		RunID:       res.InitialState.RunID,
		Messages:    res.Messages,
		Metadata:    res.Metadata,
		IsAborted:   res.IsAborted,
		AbortReason: res.AbortReason,
		Stats:       res.Stats,
	})
}

// handlePrepare runs the pipeline over a provider-native body and returns the
// body with its messages replaced. All other fields pass through untouched.
func (g *Gateway) handlePrepare(adapter adapters.Adapter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, g.cfg.Server.BodyLimit())

		body, err := io.ReadAll(r.Body)
		if err != nil {
			g.rejectBody(w, r, err)
			return
		}
		msgs, err := adapter.ExtractMessages(body)
		if err != nil {
			g.rejectBody(w, r, err)
			return
		}

		in := pipeline.Input{
			Model:    adapter.ExtractModel(body),
			Provider: adapter.Name(),
			Messages: msgs,
			RunID:    uuid.NewString(),
		}
		res, err := g.run(r, Overrides{Model: in.Model, Provider: in.Provider}, in)
		if err != nil {
			g.writePipelineError(w, err)
			return
		}

		out, err := adapter.ApplyMessages(body, res.Messages)
		if err != nil {
			g.logger.Error().Err(err).Str("adapter", adapter.Name()).Msg("failed to apply messages")
			g.writeError(w, http.StatusInternalServerError, ErrTypeInternal, "failed to encode messages", "")
			return
		}

		w.Header().Set(HeaderRunID, res.InitialState.RunID)
		w.Header().Set(HeaderAborted, strconv.FormatBool(res.IsAborted))
		if res.IsAborted {
			w.Header().Set(HeaderAbortReason, res.AbortReason)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(out)
	}
}

func (g *Gateway) handleProviderPrepare(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("provider")
	adapter := g.registry.Get(name)
	if adapter == nil {
		g.writeError(w, http.StatusNotFound, ErrTypeNotFound,
			fmt.Sprintf("unknown provider %q (known: %s)", name, strings.Join(g.registry.Names(), ", ")), "")
		return
	}
	g.handlePrepare(adapter)(w, r)
}

// run assembles the engine, processes the input and records the run.
func (g *Gateway) run(r *http.Request, o Overrides, in pipeline.Input) (*pipeline.Result, error) {
	requestID := monitoring.RequestIDFromContext(r.Context())
	logger := g.logger.Zerolog().With().Str("request_id", requestID).Logger()

	engine, err := g.router.Engine(o, &logger)
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	start := time.Now()
	res, err := engine.Process(r.Context(), in)
	latency := time.Since(start)

	report := monitoring.NewRunReport(r.URL.Path, requestID, in, res, err, latency)
	g.record(context.WithoutCancel(r.Context()), report)

	switch {
	case err != nil:
		g.alerts.FlagRunFailure(report.RunID, err)
	case res.IsAborted:
		g.alerts.FlagAbort(report.RunID, res.AbortReason)
	}
	g.alerts.FlagSlowRun(report.RunID, latency, in.Model)

	return res, err
}

func (g *Gateway) record(ctx context.Context, report *monitoring.RunReport) {
	if err := g.store.Put(ctx, report); err != nil {
		g.logger.Warn().Err(err).Str("run_id", report.RunID).Msg("failed to store run report")
	}
	g.tracker.RecordRun(report)
	g.requestLogger.LogRun(report)
}

// =============================================================================
// RUNS, STATS, HEALTH
// =============================================================================

func (g *Gateway) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	report, ok, err := g.store.Get(r.Context(), id)
	if err != nil {
		g.logger.Error().Err(err).Str("run_id", id).Msg("failed to read run report")
		g.writeError(w, http.StatusInternalServerError, ErrTypeInternal, "failed to read run report", "")
		return
	}
	if !ok {
		g.writeError(w, http.StatusNotFound, ErrTypeNotFound, fmt.Sprintf("run %q not found", id), "")
		return
	}
	g.writeJSON(w, http.StatusOK, report)
}

func (g *Gateway) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := DefaultRecentRuns
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			g.writeError(w, http.StatusBadRequest, ErrTypeInvalidRequest, "limit must be a positive integer", "")
			return
		}
		limit = n
	}

	reports, err := g.store.Recent(r.Context(), limit)
	if err != nil {
		g.logger.Error().Err(err).Msg("failed to list run reports")
		g.writeError(w, http.StatusInternalServerError, ErrTypeInternal, "failed to list run reports", "")
		return
	}
	if reports == nil {
		reports = []*monitoring.RunReport{}
	}
	g.writeJSON(w, http.StatusOK, map[string]any{"runs": reports})
}

func (g *Gateway) handleStats(w http.ResponseWriter, _ *http.Request) {
	g.writeJSON(w, http.StatusOK, g.metrics.Stats())
}

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	g.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// RESPONSES
// =============================================================================

func (g *Gateway) rejectBody(w http.ResponseWriter, r *http.Request, err error) {
	g.alerts.FlagInvalidRequest(monitoring.RequestIDFromContext(r.Context()), err.Error())

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		g.writeError(w, http.StatusRequestEntityTooLarge, ErrTypeInvalidRequest, "request body too large", "")
		return
	}
	g.writeError(w, http.StatusBadRequest, ErrTypeInvalidRequest, err.Error(), "")
}

// writePipelineError maps engine errors to status codes:
// ValidationError → 422, ProcessorError and anything else → 500.
func (g *Gateway) writePipelineError(w http.ResponseWriter, err error) {
	var verr *pipeline.ValidationError
	if errors.As(err, &verr) {
		g.writeError(w, http.StatusUnprocessableEntity, ErrTypeValidation, verr.Error(), verr.Processor)
		return
	}
	var perr *pipeline.ProcessorError
	if errors.As(err, &perr) {
		g.writeError(w, http.StatusInternalServerError, ErrTypeProcessor, perr.Error(), perr.Processor)
		return
	}
	g.writeError(w, http.StatusInternalServerError, ErrTypeInternal, err.Error(), "")
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Debug().Err(err).Msg("failed to write response")
	}
}

func (g *Gateway) writeError(w http.ResponseWriter, status int, typ, msg, processor string) {
	g.writeJSON(w, status, ErrorResponse{Error: ErrorBody{Message: msg, Type: typ, Processor: processor}})
}
