// Hafız is a personal conversational agent.
//
// It answers its owner over an MQTT chat transport, remembers facts in
// a persistent memory store, reads the owner's CalDAV calendar,
// generates and publishes social media content, and dispatches
// directives to subordinate bot identities through a shared mission
// control queue. Configuration is loaded from a single YAML file
// discovered automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	hafiz serve                     Start the agent
//	hafiz init [dir]                Initialize a working directory with defaults
//	hafiz ask <question>            Ask a single question (for testing)
//	hafiz import <file.md> [tag]    Import a markdown document into memory
//	hafiz version                   Print version and build information
//	hafiz -o json version           Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hafizlabs/hafiz-agent/internal/agent"
	"github.com/hafizlabs/hafiz-agent/internal/buildinfo"
	"github.com/hafizlabs/hafiz-agent/internal/calendar"
	"github.com/hafizlabs/hafiz-agent/internal/config"
	"github.com/hafizlabs/hafiz-agent/internal/conversation"
	"github.com/hafizlabs/hafiz-agent/internal/guard"
	"github.com/hafizlabs/hafiz-agent/internal/heartbeat"
	"github.com/hafizlabs/hafiz-agent/internal/ingest"
	"github.com/hafizlabs/hafiz-agent/internal/llm"
	"github.com/hafizlabs/hafiz-agent/internal/media"
	"github.com/hafizlabs/hafiz-agent/internal/memory"
	"github.com/hafizlabs/hafiz-agent/internal/mission"
	"github.com/hafizlabs/hafiz-agent/internal/mqtt"
	"github.com/hafizlabs/hafiz-agent/internal/tools"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// main constructs the OS-level environment (context, stdio, argv) and
// delegates immediately to [run]. This keeps os.Exit, os.Stdout, and
// os.Args out of the application logic so the full lifecycle can be
// driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Arguments are parsed by hand: the flag
// package relies on package-level globals, which makes it impossible to
// call run() concurrently from tests, and the argument surface is small
// enough that manual parsing stays clear.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
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
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: hafiz ask <question>")
		}
		return runAsk(ctx, stdout, configPath, cmdArgs)
	case "import":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: hafiz import <file.md> [tag]")
		}
		tag := ""
		if len(cmdArgs) > 1 {
			tag = cmdArgs[1]
		}
		return runImport(ctx, stdout, configPath, cmdArgs[0], tag)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Hafız - Personal Conversational Agent")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: hafiz [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve                  Start the agent")
	fmt.Fprintln(w, "  init [dir]             Initialize a working directory with defaults (default: .)")
	fmt.Fprintln(w, "  ask <question>         Ask a single question (for testing)")
	fmt.Fprintln(w, "  import <file.md> [tag] Import a markdown document into memory")
	fmt.Fprintln(w, "  version                Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./hafiz.yaml, ~/.config/hafiz/hafiz.yaml, /etc/hafiz/hafiz.yaml")
	return nil
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
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

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

func loadConfig(explicit string) (*config.Config, string, error) {
	path, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, path, nil
}

// createLLMClient builds the chat backend named by the config. The
// provider value is validated at config load time.
func createLLMClient(cfg *config.Config, logger *slog.Logger) llm.Client {
	switch cfg.Model.Provider {
	case "openrouter":
		return llm.NewOpenRouterClient(cfg.Model.APIKey, logger)
	default:
		return llm.NewAnthropicClient(cfg.Model.APIKey, logger)
	}
}

// runAsk boots a minimal agent (no transport, no dispatcher) and
// processes a single question, printing the response to stdout. Useful
// for smoke tests and debugging without a broker.
func runAsk(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	logger := newLogger(stdout, slog.LevelWarn, "text")

	question := strings.Join(args, " ")

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	mem, err := memory.NewStore(filepath.Join(cfg.DataDir, "memory.db"))
	if err != nil {
		return fmt.Errorf("open memory database: %w", err)
	}
	defer mem.Close()

	llmClient := createLLMClient(cfg, logger)

	registry := tools.NewRegistry(tools.Deps{
		Memory:   mem,
		Sender:   cfg.MQTT.BotName,
		Location: cfg.Location(),
		Logger:   logger,
	})

	loop := agent.NewLoop(agent.Config{
		LLM:            llmClient,
		Registry:       registry,
		Guard:          guard.New(nil),
		Conversations:  conversation.NewStore(cfg.Agent.MaxHistory, cfg.HistoryTTL()),
		Memory:         mem,
		Model:          cfg.Model.Name,
		MaxIterations:  cfg.Agent.MaxIterations,
		RecallK:        cfg.Agent.RecallK,
		ToolTimeout:    cfg.ToolTimeout(),
		RequestTimeout: cfg.RequestTimeout(),
		Location:       cfg.Location(),
		Logger:         logger,
	})

	persona := agent.LoadPersona(cfg.Agent.PersonaDir, agent.Hafiz())
	response, err := loop.Run(ctx, persona, "cli", question, "")
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	fmt.Fprintln(stdout, response)
	return nil
}

// runImport parses a markdown document into heading-scoped chunks and
// stores them as memories for later recall.
func runImport(ctx context.Context, stdout io.Writer, configPath string, filePath, tag string) error {
	logger := newLogger(stdout, slog.LevelInfo, "text")

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	mem, err := memory.NewStore(filepath.Join(cfg.DataDir, "memory.db"))
	if err != nil {
		return fmt.Errorf("open memory database: %w", err)
	}
	defer mem.Close()

	source := "file:" + filePath
	importer := ingest.NewImporter(mem, source, tag)

	count, err := importer.ImportFile(ctx, filePath)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	logger.Info("import complete", "memories", count, "source", source)
	fmt.Fprintf(stdout, "Imported %d memories from %s\n", count, filePath)
	return nil
}

// runServe is the primary operating mode: loads config, opens the
// stores, wires the agent loop with all tools, connects the MQTT
// transport, starts the mission dispatcher and heartbeat, and blocks
// until a shutdown signal arrives.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting Hafız", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure the logger now that the desired level and format are
	// known. Everything before this point logs at Info in text form.
	{
		level, _ := config.ParseLogLevel(cfg.LogLevel)
		logger = newLogger(stdout, level, cfg.LogFormat)
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"provider", cfg.Model.Provider,
		"model", cfg.Model.Name,
		"timezone", cfg.Timezone,
	)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	// --- Memory store ---
	// Long-term facts and imported documents. Persists across restarts.
	memPath := filepath.Join(cfg.DataDir, "memory.db")
	mem, err := memory.NewStore(memPath)
	if err != nil {
		return fmt.Errorf("open memory database %s: %w", memPath, err)
	}
	defer mem.Close()
	logger.Info("memory database opened", "path", memPath)

	// --- Mission control store ---
	// The directive queue is shared wiring between identities: Hafız
	// writes directives, the dispatcher claims and executes them. It is
	// opened unconditionally so dispatch_directive works even when this
	// process runs no dispatcher.
	missionPath := filepath.Join(cfg.DataDir, "missions.db")
	missions, err := mission.NewStore(missionPath)
	if err != nil {
		return fmt.Errorf("open mission database %s: %w", missionPath, err)
	}
	defer missions.Close()

	// --- LLM client ---
	llmClient := createLLMClient(cfg, logger)

	// --- Optional collaborators ---
	// Each nil collaborator leaves its tools unregistered, so the model
	// never sees a tool it cannot use.
	var cal tools.CalendarSource
	if cfg.Calendar.URL != "" {
		c, err := calendar.NewClient(calendar.Config(cfg.Calendar), logger)
		if err != nil {
			return fmt.Errorf("calendar client: %w", err)
		}
		cal = c
		logger.Info("calendar configured", "url", cfg.Calendar.URL)
	}

	var images tools.ImageGenerator
	if cfg.Media.ImageAPIKey != "" {
		images = media.NewImageClient(cfg.Media.ImageURL, cfg.Media.ImageAPIKey, logger)
	}
	var videos tools.VideoGenerator
	if cfg.Media.VideoAPIKey != "" {
		videos = media.NewVideoClient(cfg.Media.VideoURL, cfg.Media.VideoAPIKey, logger)
	}
	// Influencer images ride the same fal.ai key as video.
	var influencers tools.InfluencerGenerator
	if cfg.Media.VideoAPIKey != "" {
		influencers = media.NewInfluencerClient(cfg.Media.VideoURL, cfg.Media.VideoAPIKey, logger)
	}
	var captions tools.CaptionWriter
	if cfg.Media.CaptionModel != "" {
		captions = media.NewCaptionClient(llmClient, cfg.Media.CaptionModel)
	}
	var social tools.SocialPoster
	if cfg.Media.SocialAPIKey != "" {
		social = media.NewSocialClient(cfg.Media.SocialURL, cfg.Media.SocialAPIKey, cfg.Media.SocialAccounts, logger)
	}

	registry := tools.NewRegistry(tools.Deps{
		Memory:      mem,
		Calendar:    cal,
		Images:      images,
		Videos:      videos,
		Influencers: influencers,
		Captions:    captions,
		Social:      social,
		Directives:  missions,
		Sender:      cfg.MQTT.BotName,
		Location:    cfg.Location(),
		Logger:      logger,
	})
	logger.Info("tools registered", "names", registry.AllToolNames())

	conversations := conversation.NewStore(cfg.Agent.MaxHistory, cfg.HistoryTTL())
	loop := agent.NewLoop(agent.Config{
		LLM:            llmClient,
		Registry:       registry,
		Guard:          guard.New(nil),
		Conversations:  conversations,
		Memory:         mem,
		Model:          cfg.Model.Name,
		MaxIterations:  cfg.Agent.MaxIterations,
		RecallK:        cfg.Agent.RecallK,
		ToolTimeout:    cfg.ToolTimeout(),
		RequestTimeout: cfg.RequestTimeout(),
		Location:       cfg.Location(),
		Logger:         logger,
	})

	hafizPersona := agent.LoadPersona(cfg.Agent.PersonaDir, agent.Hafiz())
	avynaPersona := agent.LoadPersona(cfg.Agent.PersonaDir, agent.Avyna())

	// --- MQTT chat transport ---
	var transport *mqtt.Transport
	transportErr := make(chan error, 1)
	if cfg.MQTT.Enabled {
		ask := func(ctx context.Context, conversationID, text, imageURL string) (string, error) {
			return loop.Run(ctx, hafizPersona, conversationID, text, imageURL)
		}
		transport = mqtt.NewTransport(cfg.MQTT, ask, logger)
		go func() { transportErr <- transport.Start(ctx) }()
	} else {
		logger.Warn("mqtt transport disabled - no chat surface")
	}

	// Notifications ride the transport. Without one, dispatcher results
	// are only logged and the heartbeat stays off.
	var notifier mission.Notifier
	if transport != nil {
		notifier = transport
	}

	// --- Mission dispatcher ---
	if cfg.Mission.Enabled {
		runDirective := func(ctx context.Context, conversationID, message string) (string, error) {
			// Each directive gets a throwaway conversation id. Drop its
			// history and turn lock once the directive is done, or a
			// long-running serve accumulates one entry per directive.
			defer conversations.Clear(conversationID)
			return loop.Run(ctx, avynaPersona, conversationID, message, "")
		}
		dispatcher := mission.NewDispatcher(missions, runDirective, notifier, cfg.Mission.Subordinate, cfg.PollInterval(), logger)
		go dispatcher.Run(ctx)
		logger.Info("mission dispatcher started", "subordinate", cfg.Mission.Subordinate, "interval", cfg.PollInterval())
	}

	// --- Heartbeat ---
	if cfg.Heartbeat.Enabled {
		if transport == nil {
			logger.Warn("heartbeat enabled but there is no transport to notify on")
		} else {
			hb := heartbeat.New(cfg.Heartbeat, transport, cfg.Location(), logger)
			go func() {
				if err := hb.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("heartbeat stopped", "error", err)
				}
			}()
		}
	}

	logger.Info("Hafız is up")

	// Block until shutdown. A transport failure before then is fatal.
	select {
	case <-ctx.Done():
	case err := <-transportErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("mqtt transport: %w", err)
		}
	}

	logger.Info("shutting down")
	if transport != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := transport.Stop(stopCtx); err != nil {
			logger.Warn("transport shutdown incomplete", "error", err)
		}
	}
	return nil
}
