// AgriGuardian is an AI farming assistant.
//
// It answers agricultural questions against live farm conditions using
// an OpenRouter-hosted model, and exposes the answers through an HTTP
// API with a browser chat UI, an interactive console, and an optional
// SMS gateway bridge. Configuration is loaded from a single YAML file
// discovered automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	agriguardian serve            Start the API server (web UI, SMS webhook)
//	agriguardian chat             Interactive console session
//	agriguardian ask <question>   Ask a single question (for testing)
//	agriguardian init [dir]       Initialize a working directory with defaults
//	agriguardian version          Print version and build information
//	agriguardian -o json version  Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/agriguardian/agriguardian/internal/advice"
	"github.com/agriguardian/agriguardian/internal/api"
	"github.com/agriguardian/agriguardian/internal/buildinfo"
	"github.com/agriguardian/agriguardian/internal/config"
	"github.com/agriguardian/agriguardian/internal/farmstore"
	"github.com/agriguardian/agriguardian/internal/metrics"
	"github.com/agriguardian/agriguardian/internal/openrouter"
	"github.com/agriguardian/agriguardian/internal/sensors"
	"github.com/agriguardian/agriguardian/internal/session"
	"github.com/agriguardian/agriguardian/internal/sms"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the agriguardian command. All
// OS-level dependencies are injected as parameters:
//
//   - ctx controls the lifetime of the process. Cancelling it triggers
//     graceful shutdown of the server and background goroutines.
//   - stdin feeds the interactive console (the chat subcommand).
//   - stdout and stderr receive all program output. Structured logs go
//     to stdout; fatal error messages go to stderr.
//   - args is os.Args[1:] — the command-line arguments after the
//     program name. We parse these manually rather than using the flag
//     package to avoid global state that interferes with parallel tests.
//
// run returns nil on clean shutdown and a non-nil error for any failure.
// The caller (main) is responsible for printing the error and exiting.
func run(ctx context.Context, stdin io.Reader, stdout io.Writer, stderr io.Writer, args []string) error {
	// Parse arguments by hand. The flag package relies on package-level
	// globals (flag.CommandLine), which makes it impossible to call run()
	// concurrently from tests. Our argument surface is small enough that
	// manual parsing is clearer than bringing in a CLI framework.
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++ // skip the value
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				// Collect remaining args as subcommand arguments.
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	// Default to human-readable text output.
	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, stderr, configPath)
	case "chat":
		return runChat(ctx, stdin, stdout, configPath)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: agriguardian ask <question>")
		}
		return runAsk(ctx, stdout, configPath, cmdArgs)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	// Print fields in a stable order for human readability.
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w. It is called when
// agriguardian is invoked with no arguments, or with -h / --help.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "AgriGuardian - AI Farming Assistant")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: agriguardian [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the API server (web UI, SMS webhook)")
	fmt.Fprintln(w, "  chat         Interactive console session")
	fmt.Fprintln(w, "  ask          Ask a single question (for testing)")
	fmt.Fprintln(w, "  init [dir]   Initialize working directory with defaults (default: .)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/agriguardian/config.yaml,")
	fmt.Fprintln(w, "  /etc/agriguardian/config.yaml")
	return nil
}

// runAsk handles the "agriguardian ask <question>" subcommand. It wires
// a console pipeline with simulated sensor data and answers a single
// question, printing the advice to stdout. Useful for quick smoke tests
// without starting the server or the interactive console.
func runAsk(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	logger := newLogger(stdout, slog.LevelWarn, "text")

	question := strings.Join(args, " ")

	config.LoadDotenv()
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		// ask works without a config file; defaults plus the
		// environment credential are enough.
		cfg = config.Default()
	}

	counter := advice.NewCounter(int64(cfg.OpenRouter.DailyLimit))
	client := openrouter.NewClient(cfg.OpenRouter, counter, logger)

	pipeline := advice.NewPipeline(client, counter, advice.ConsoleVariant(), nil, logger)

	resp := pipeline.Ask(ctx, advice.Request{
		Question: question,
		Reading:  sensors.NewSimulator().Reading(""),
	})

	fmt.Fprintln(stdout, resp.Text)
	return nil
}

// runServe handles the "agriguardian serve" subcommand. It is the
// primary operating mode: loads config, builds the shared request
// counter and model client, wires the web pipeline (and the SMS bridge
// when enabled), starts the HTTP server, and blocks until a shutdown
// signal arrives.
//
// The shutdown sequence is:
//  1. SIGINT or SIGTERM cancels the context
//  2. The HTTP server drains in-flight requests
//  3. The farmer store is closed via defer
func runServe(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting AgriGuardian", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	config.LoadDotenv()

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure logger now that we know the desired level. The initial
	// Info-level logger is used only for the startup banner.
	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("config %s: %w", cfgPath, err)
		}
		logger = newLogger(stdout, level, "text")
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"model", cfg.OpenRouter.Model,
		"daily_limit", cfg.OpenRouter.DailyLimit,
	)

	if cfg.OpenRouter.ResolveAPIKey() == "" {
		logger.Warn("no OpenRouter API key configured - every request will return fallback advice",
			"env", config.EnvAPIKey)
	}

	// --- Metrics ---
	// Prometheus collectors, exposed at /metrics. Registered once per
	// process on the default registry.
	mc := metrics.NewCollector("agriguardian")

	// --- Request budget ---
	// One counter shared by every surface. The model client increments
	// it; front-ends gate on it before calling the pipeline.
	counter := advice.NewCounter(int64(cfg.OpenRouter.DailyLimit))

	// --- Model client ---
	client := openrouter.NewClient(cfg.OpenRouter, counter, logger)

	// --- Web pipeline ---
	// Serves the browser UI and the JSON API. Faults are hidden behind
	// canned advice so the page always renders something useful.
	webPipeline := advice.NewPipeline(client, counter, advice.WebVariant(), mc, logger)

	provider := sensors.NewSimulator()
	sessions := session.NewManager(advice.WebVariant().Prompt.HistoryLimit)

	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, webPipeline, provider, sessions, mc, logger)

	// --- Farmer store ---
	// SQLite-backed farmer profiles and interaction history. Used by the
	// SMS bridge for personalization; optional otherwise.
	var store *farmstore.Store
	if cfg.Store.Path != "" {
		store, err = farmstore.NewStore(cfg.Store.Path, logger)
		if err != nil {
			return fmt.Errorf("open farmer store %s: %w", cfg.Store.Path, err)
		}
		defer store.Close()
		logger.Info("farmer store opened", "path", cfg.Store.Path)
	}

	// --- SMS bridge ---
	// Optional webhook that answers inbound text messages through a
	// terse pipeline and replies via the gateway provider.
	if cfg.SMS.Enabled {
		if cfg.SMS.ProviderURL == "" {
			return fmt.Errorf("sms enabled but provider_url is not set")
		}

		smsPipeline := advice.NewPipeline(client, counter, advice.SMSVariant(), mc, logger)

		var directory sms.FarmerDirectory
		if store != nil {
			directory = store
		}

		bridge := sms.NewBridge(sms.BridgeConfig{
			Sender:    sms.NewClient(cfg.SMS, logger),
			Pipeline:  smsPipeline,
			Store:     directory,
			Sensors:   provider,
			Metrics:   mc,
			Logger:    logger,
			RateLimit: cfg.SMS.RateLimit,
		})
		server.SMSHandler = bridge.Handler()
		logger.Info("sms bridge enabled",
			"sender_id", cfg.SMS.SenderID,
			"rate_limit", cfg.SMS.RateLimit,
		)
	} else {
		logger.Info("sms bridge disabled")
	}

	// --- Signal handling and graceful shutdown ---
	// NotifyContext wraps the parent context so that SIGINT/SIGTERM
	// cancellation flows through the same ctx used by all components.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")
		_ = server.Shutdown(context.Background())
	}()

	// Start the API server. This blocks until the server is shut down
	// (via context cancellation or fatal error).
	if err := server.Start(ctx); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("AgriGuardian stopped")
	return nil
}

// newLogger creates a structured logger that writes to w at the given
// level and format. Format must be "text" or "json"; any other value
// defaults to text. All log output goes through slog; this helper
// standardizes the handler configuration across subcommands.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// loadConfig locates and parses the YAML configuration file. If explicit
// is non-empty, that exact path is used (and must exist). Otherwise,
// [config.FindConfig] searches the default locations. Returns the parsed
// config, the path that was loaded, and any error.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}
