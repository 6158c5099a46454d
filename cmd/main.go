// Package main is the entry point for the Context Pipeline.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/compresr/context-pipeline/internal/config"
	"github.com/compresr/context-pipeline/internal/gateway"
	"github.com/compresr/context-pipeline/internal/monitoring"
)

// ANSI color codes
const (
	compresrGreen = "\033[38;2;23;128;68m" // #178044
	bold          = "\033[1m"
	reset         = "\033[0m"
)

const banner = `
  ┌─┐┌─┐┌┐┌┌┬┐┌─┐─┐ ┬┌┬┐  ┌─┐┬┌─┐┌─┐┬  ┬┌┐┌┌─┐
  │  │ ││││ │ ├┤ ┌┴┬┘ │   ├─┘│├─┘├┤ │  ││││├┤
  └─┘└─┘┘└┘ ┴ └─┘┴ └─ ┴   ┴  ┴┴  └─┘┴─┘┴┘└┘└─┘
`

func printBanner() {
	fmt.Print(compresrGreen + bold + banner + reset + "\n")
}

// loadEnvFiles loads .env from standard locations
func loadEnvFiles() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		_ = godotenv.Load()
		return
	}

	// Try loading from ~/.config/context-pipeline/.env first
	configEnv := filepath.Join(homeDir, ".config", "context-pipeline", ".env")
	if _, err := os.Stat(configEnv); err == nil {
		_ = godotenv.Load(configEnv)
	}

	// Also load local .env (can override)
	_ = godotenv.Load()
}

func main() {
	if len(os.Args) < 2 {
		runServer(nil)
		return
	}

	switch os.Args[1] {
	case "serve", "start":
		runServer(os.Args[2:])
	case "run":
		os.Exit(runCommand(os.Args[2:]))
	case "configs":
		names, err := listEmbeddedConfigs()
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		for _, name := range names {
			fmt.Println(name)
		}
	case "version", "-v", "--version":
		PrintVersion()
	case "help", "-h", "--help":
		printHelp()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		printHelp()
		os.Exit(2)
	}
}

// resolveServeConfig resolves the config for the serve and run commands.
// Checks: user flag -> filesystem locations -> embedded configs.
// Returns raw bytes and source description.
func resolveServeConfig(userConfig string) ([]byte, string, error) {
	if userConfig != "" {
		data, err := os.ReadFile(userConfig)
		if err != nil {
			return nil, "", fmt.Errorf("config file not found: %s", userConfig)
		}
		return data, userConfig, nil
	}

	homeDir, _ := os.UserHomeDir()

	// Search filesystem in order of preference
	searchPaths := []string{}
	if homeDir != "" {
		searchPaths = append(searchPaths,
			filepath.Join(homeDir, ".config", "context-pipeline", "configs", "pipeline.yaml"),
		)
	}
	searchPaths = append(searchPaths, "configs/pipeline.yaml")

	for _, path := range searchPaths {
		if data, err := os.ReadFile(path); err == nil {
			return data, path, nil
		}
	}

	if data, err := getEmbeddedConfig(defaultConfigName); err == nil {
		return data, "(embedded) " + defaultConfigName + ".yaml", nil
	}

	return nil, "", fmt.Errorf("no config file found. Specify --config path")
}

// loadConfig resolves and parses the configuration.
func loadConfig(userConfig string) (*config.Config, string, error) {
	data, source, err := resolveServeConfig(userConfig)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.LoadFromBytes(data)
	if err != nil {
		return nil, source, fmt.Errorf("%s: %w", source, err)
	}
	return cfg, source, nil
}

// runServer starts the HTTP server
func runServer(args []string) {
	loadEnvFiles()

	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	debug := fs.Bool("debug", false, "enable debug logging")
	noBanner := fs.Bool("no-banner", false, "suppress startup banner")
	_ = fs.Parse(args) // ExitOnError handles errors

	if !*noBanner {
		printBanner()
	}

	cfg, source, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := setupLogging(cfg, *debug)
	logger.Info().
		Str("version", Version).
		Str("config", source).
		Msg("Context Pipeline starting")

	logger.Info().
		Int("port", cfg.Server.Port).
		Strs("order", cfg.Pipeline.Order).
		Str("store", cfg.Store.Type).
		Bool("telemetry", cfg.Monitoring.TelemetryEnabled).
		Msg("configuration loaded")

	gw, err := gateway.New(cfg, gateway.Options{Logger: logger})
	if err != nil {
		logger.Zerolog().Fatal().Err(err).Msg("failed to create gateway")
	}

	// Handle graceful shutdown
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info().Msg("shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := gw.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("gateway shutdown error")
		}
	}()

	if err := gw.Start(); err != nil {
		logger.Zerolog().Fatal().Err(err).Msg("gateway error")
	}
	<-stopped

	logger.Info().Msg("Context Pipeline stopped")
}

// setupLogging installs the configured logger as the global zerolog logger.
func setupLogging(cfg *config.Config, debug bool) *monitoring.Logger {
	lc := cfg.Monitoring.Logger()
	if debug {
		lc.Level = "debug"
	}
	return monitoring.Global(lc)
}

// printHelp prints usage information
func printHelp() {
	printBanner()
	fmt.Println("Context Pipeline - conversation context processing service")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  context-pipeline [command] [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve        Start the HTTP server (default)")
	fmt.Println("  run          Run the pipeline once over a JSON file or stdin")
	fmt.Println("  configs      List embedded configurations")
	fmt.Println("  version      Print version information")
	fmt.Println("  help         Show this help message")
	fmt.Println()
	fmt.Println("Server Options:")
	fmt.Println("  context-pipeline serve [--config FILE] [--debug] [--no-banner]")
	fmt.Println()
	fmt.Println("Run Options:")
	fmt.Println("  context-pipeline run [--config FILE] [--input FILE|-] [--format native|openai|anthropic]")
	fmt.Println("                       [--model NAME] [--debug]")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  context-pipeline serve --config configs/pipeline.yaml")
	fmt.Println("  context-pipeline run --input conversation.json")
	fmt.Println("  cat body.json | context-pipeline run --format openai")
}
