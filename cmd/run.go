package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/compresr/context-pipeline/internal/adapters"
	"github.com/compresr/context-pipeline/internal/config"
	"github.com/compresr/context-pipeline/internal/gateway"
	"github.com/compresr/context-pipeline/internal/imagefetch"
	"github.com/compresr/context-pipeline/internal/messages"
	"github.com/compresr/context-pipeline/internal/monitoring"
	"github.com/compresr/context-pipeline/internal/pipeline"
)

// Exit codes of the run command.
const (
	exitOK      = 0
	exitError   = 1
	exitUsage   = 2
	exitAborted = 3
)

// formatNative is the gateway's own request shape: a ProcessRequest object
// or a bare array of messages.
const formatNative = "native"

// runOptions are the flags of the run command.
type runOptions struct {
	Format string
	Model  string
}

// runCommand processes one conversation and prints the result to stdout.
func runCommand(args []string) int {
	loadEnvFiles()

	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file")
	inputPath := fs.String("input", "-", "input JSON file, - for stdin")
	format := fs.String("format", formatNative, "input format: native, openai or anthropic")
	model := fs.String("model", "", "model name (overrides the input)")
	debug := fs.Bool("debug", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitError
	}

	// stdout carries the result
	if cfg.Monitoring.LogOutput == "" || cfg.Monitoring.LogOutput == "stdout" {
		cfg.Monitoring.LogOutput = "stderr"
	}
	logger := setupLogging(cfg, *debug)

	data, err := readInput(*inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitError
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fetcher := imagefetch.NewHTTPFetcher(cfg.ImageFetch.Timeout, cfg.ImageFetch.MaxBytes)
	res, err := runPipeline(ctx, cfg, fetcher, logger, data, runOptions{Format: *format, Model: *model}, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitError
	}
	if res.IsAborted {
		fmt.Fprintf(os.Stderr, "pipeline aborted: %s\n", res.AbortReason)
		return exitAborted
	}
	return exitOK
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return data, nil
}

// runPipeline decodes data in the requested format, runs the configured
// pipeline once and writes the output in the same format to out.
func runPipeline(ctx context.Context, cfg *config.Config, fetcher imagefetch.Fetcher, logger *monitoring.Logger, data []byte, ro runOptions, out io.Writer) (*pipeline.Result, error) {
	if logger == nil {
		logger = monitoring.Nop()
	}
	router := gateway.NewRouter(cfg.Pipeline, imagefetch.NewResolver(fetcher, cfg.ImageFetch.LocalHosts...), nil)

	if ro.Format == "" || ro.Format == formatNative {
		req, err := decodeNative(data)
		if err != nil {
			return nil, err
		}
		if ro.Model != "" {
			req.Model = ro.Model
		}

		res, err := process(ctx, router, logger, req.Overrides(), pipeline.Input{
			Model:    req.Model,
			Provider: req.Provider,
			Messages: req.Messages,
			Metadata: req.Metadata,
			RunID:    uuid.NewString(),
		})
		if err != nil {
			return nil, err
		}
		return res, writeIndented(out, gateway.ProcessResponse{
			RunID:       res.InitialState.RunID,
			Messages:    res.Messages,
			Metadata:    res.Metadata,
			IsAborted:   res.IsAborted,
			AbortReason: res.AbortReason,
			Stats:       res.Stats,
		})
	}

	adapter := adapters.NewRegistry().Get(ro.Format)
	if adapter == nil {
		return nil, fmt.Errorf("unknown format %q", ro.Format)
	}
	msgs, err := adapter.ExtractMessages(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s body: %w", adapter.Name(), err)
	}
	model := adapter.ExtractModel(data)
	if ro.Model != "" {
		model = ro.Model
	}

	res, err := process(ctx, router, logger, gateway.Overrides{Model: model, Provider: adapter.Name()}, pipeline.Input{
		Model:    model,
		Provider: adapter.Name(),
		Messages: msgs,
		RunID:    uuid.NewString(),
	})
	if err != nil {
		return nil, err
	}
	body, err := adapter.ApplyMessages(data, res.Messages)
	if err != nil {
		return nil, fmt.Errorf("encode %s body: %w", adapter.Name(), err)
	}
	if _, err := out.Write(append(body, '\n')); err != nil {
		return nil, err
	}
	return res, nil
}

func process(ctx context.Context, router *gateway.Router, logger *monitoring.Logger, o gateway.Overrides, in pipeline.Input) (*pipeline.Result, error) {
	engine, err := router.Engine(o, logger.Zerolog())
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	res, err := engine.Process(ctx, in)
	if err != nil {
		var verr *pipeline.ValidationError
		if errors.As(err, &verr) {
			return nil, fmt.Errorf("invalid input: %w", err)
		}
		return nil, err
	}
	logger.Debug().
		Str("run_id", res.InitialState.RunID).
		Int("processed", res.Stats.ProcessedCount).
		Dur("duration", res.Stats.TotalDuration).
		Msg("pipeline run complete")
	return res, nil
}

// decodeNative accepts either a ProcessRequest object or a bare message array.
func decodeNative(data []byte) (*gateway.ProcessRequest, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("input is not valid JSON")
	}

	var req gateway.ProcessRequest
	if gjson.ParseBytes(data).IsArray() {
		if err := json.Unmarshal(data, &req.Messages); err != nil {
			return nil, fmt.Errorf("decode messages: %w", err)
		}
		return &req, nil
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	if req.Messages == nil {
		req.Messages = []messages.Message{}
	}
	return &req, nil
}

func writeIndented(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
