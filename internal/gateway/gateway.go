// Package gateway exposes the context pipeline over HTTP.
//
// DESIGN: A thin HTTP layer around pipeline.Engine:
//   - POST /v1/pipeline/process:            native messages in, processed messages out
//   - POST /v1/chat/completions/prepare:    OpenAI body in, processed body out
//   - POST /v1/messages/prepare:            Anthropic body in, processed body out
//   - POST /v1/providers/{provider}/prepare: any registered adapter
//   - GET  /v1/pipeline/runs[/{id}]:        stored run reports
//   - GET  /stats, GET /health
//
// FLOW (per request):
//  1. Middleware assigns the request id, applies rate limit, logs
//  2. Handler decodes the body (adapter for provider formats)
//  3. Router assembles the engine from config + request overrides
//  4. Engine runs; the run report goes to store, telemetry and alerts
//  5. Handler encodes the result (adapter writes messages back)
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/compresr/context-pipeline/internal/adapters"
	"github.com/compresr/context-pipeline/internal/config"
	"github.com/compresr/context-pipeline/internal/imagefetch"
	"github.com/compresr/context-pipeline/internal/monitoring"
	"github.com/compresr/context-pipeline/internal/processors/content"
	"github.com/compresr/context-pipeline/internal/store"
)

// Options carries optional collaborators. Zero values are built from config.
type Options struct {
	Store   store.Store         // nil = opened from cfg.Store
	Tracker *monitoring.Tracker // nil = built from cfg.Monitoring
	Logger  *monitoring.Logger  // nil = disabled
	Fetcher imagefetch.Fetcher  // nil = HTTP fetcher from cfg.ImageFetch
}

// Gateway is the HTTP server.
type Gateway struct {
	cfg      *config.Config
	router   *Router
	registry *adapters.Registry
	store    store.Store

	logger        *monitoring.Logger
	metrics       *monitoring.MetricsCollector
	tracker       *monitoring.Tracker
	alerts        *monitoring.AlertManager
	requestLogger *monitoring.RequestLogger
	rateLimiter   *rateLimiter

	handler http.Handler
	server  *http.Server
}

// New creates a gateway from a validated configuration.
func New(cfg *config.Config, opts Options) (*Gateway, error) {
	logger := opts.Logger
	if logger == nil {
		logger = monitoring.Nop()
	}

	st := opts.Store
	if st == nil {
		var err error
		st, err = store.Open(cfg.Store.Type, cfg.Store.Path, cfg.Store.TTL)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
	}

	tracker := opts.Tracker
	if tracker == nil {
		var err error
		tracker, err = monitoring.NewTracker(cfg.Monitoring.Telemetry(), logger)
		if err != nil {
			return nil, fmt.Errorf("init telemetry: %w", err)
		}
	}

	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = imagefetch.NewHTTPFetcher(cfg.ImageFetch.Timeout, cfg.ImageFetch.MaxBytes)
	}
	var resolver content.Resolver = imagefetch.NewResolver(fetcher, cfg.ImageFetch.LocalHosts...)

	metrics := monitoring.NewMetricsCollector()
	g := &Gateway{
		cfg:           cfg,
		router:        NewRouter(cfg.Pipeline, resolver, metrics),
		registry:      adapters.NewRegistry(),
		store:         st,
		logger:        logger,
		metrics:       metrics,
		tracker:       tracker,
		alerts:        monitoring.NewAlertManager(logger, cfg.Monitoring.Alerts()),
		requestLogger: monitoring.NewRequestLogger(logger),
	}
	if cfg.Server.RateLimit > 0 {
		g.rateLimiter = newRateLimiter(cfg.Server.RateLimit)
	}

	g.handler = g.setupRoutes()
	return g, nil
}

func (g *Gateway) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/pipeline/process", g.handleProcess)
	mux.HandleFunc("POST /v1/chat/completions/prepare", g.handlePrepare(adapters.NewOpenAIAdapter()))
	mux.HandleFunc("POST /v1/messages/prepare", g.handlePrepare(adapters.NewAnthropicAdapter()))
	mux.HandleFunc("POST /v1/providers/{provider}/prepare", g.handleProviderPrepare)
	mux.HandleFunc("GET /v1/pipeline/runs", g.handleListRuns)
	mux.HandleFunc("GET /v1/pipeline/runs/{id}", g.handleGetRun)
	mux.HandleFunc("GET /stats", g.handleStats)
	mux.HandleFunc("GET /health", g.handleHealth)

	return g.panicRecovery(g.rateLimit(g.loggingMiddleware(g.security(mux))))
}

// Handler returns the root handler with middleware applied.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// Start listens on the configured port. It blocks until Shutdown.
func (g *Gateway) Start() error {
	g.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", g.cfg.Server.Port),
		Handler:      g.handler,
		ReadTimeout:  g.cfg.Server.ReadTimeout,
		WriteTimeout: g.cfg.Server.WriteTimeout,
	}

	g.logger.Info().Int("port", g.cfg.Server.Port).Msg("gateway listening")
	if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server and releases the store and telemetry.
func (g *Gateway) Shutdown(ctx context.Context) error {
	var errs []error
	if g.server != nil {
		errs = append(errs, g.server.Shutdown(ctx))
	}
	if g.rateLimiter != nil {
		g.rateLimiter.close()
	}
	errs = append(errs, g.tracker.Close(), g.store.Close())
	return errors.Join(errs...)
}
