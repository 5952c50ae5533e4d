package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/moorebrett0/vernacular/internal/agent"
	"github.com/moorebrett0/vernacular/internal/brain"
	"github.com/moorebrett0/vernacular/internal/config"
	"github.com/moorebrett0/vernacular/internal/console"
	"github.com/moorebrett0/vernacular/internal/discord"
	"github.com/moorebrett0/vernacular/internal/session"
	"github.com/moorebrett0/vernacular/internal/speech"
	"github.com/moorebrett0/vernacular/internal/tools"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	mode := flag.String("mode", config.ModeDiscord, "presentation to run (discord|console)")
	flag.Parse()

	if err := run(*configPath, *mode); err != nil {
		fmt.Fprintf(os.Stderr, "vernacular: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, mode string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(mode); err != nil {
		return err
	}
	if err := setupLogger(cfg.Log, mode); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kb, err := newKnowledgeAgent(ctx, cfg)
	if err != nil {
		return err
	}
	dispatcher := tools.New(kb, cfg.Agent.Timeout)

	b, err := brain.New(ctx, brain.Config{
		ClaudeAPIKey: cfg.Claude.APIKey,
		ClaudeModel:  cfg.Claude.Model,
		GeminiAPIKey: cfg.Gemini.APIKey,
		GeminiModel:  cfg.Gemini.Model,
		Provider:     cfg.AI.Provider,
		SystemPrompt: cfg.AI.SystemPrompt,
		MaxTokens:    cfg.Claude.MaxTokens,
		Timeout:      cfg.AI.Timeout,
		RateLimit:    cfg.AI.RateLimit,
		RateWindow:   cfg.AI.RateWindow,
	}, dispatcher)
	if err != nil {
		return err
	}

	voice := speech.New(speech.Config{
		APIKey:     cfg.Speech.APIKey,
		STTURL:     cfg.Speech.STTURL,
		TTSURL:     cfg.Speech.TTSURL,
		Timeout:    cfg.Speech.Timeout,
		SampleRate: cfg.Speech.SampleRate,
		TempDir:    cfg.Speech.TempDir,
	})
	if !voice.Configured() {
		slog.Warn("main: SARVAM_API_KEY not set, voice input and spoken replies are disabled")
	}

	sessions := session.NewStore(cfg.History.MaxTurns, cfg.Speech.Language)

	switch mode {
	case config.ModeConsole:
		console.PrintStartup(os.Stdout, []console.Check{
			{Label: "ai connected", OK: true},
			{Label: "knowledge agent", OK: kb != nil},
			{Label: "speech", OK: voice.Configured()},
		}, 150*time.Millisecond)
		c := console.New(os.Stdin, os.Stdout, b, sessions.Get("console-"+uuid.NewString()), voice, cfg.Speech.TempDir)
		return c.Run(ctx)

	default:
		go session.NewJanitor(sessions, cfg.Session.SweepInterval, cfg.Session.IdleTTL).Run(ctx)

		bot, err := discord.NewBot(cfg.Discord.BotToken, cfg.Discord.ChannelID)
		if err != nil {
			return err
		}
		discord.NewRouter(bot, b, sessions, voice)
		return bot.Start(ctx)
	}
}

// newKnowledgeAgent builds the agent behind government_scheme_info. A nil
// agent is not an error: the tool then reports missing configuration.
func newKnowledgeAgent(ctx context.Context, cfg *config.Config) (agent.Agent, error) {
	if !cfg.AgentConfigured() {
		slog.Warn("main: knowledge agent not configured, scheme lookups will fail")
		return nil, nil
	}

	switch cfg.Agent.Backend {
	case config.AgentGemini:
		a, err := agent.NewGeminiAgent(ctx, cfg.Agent.APIKey, cfg.Agent.Model, cfg.Agent.Instruction)
		if err != nil {
			return nil, err
		}
		slog.Info("main: knowledge agent ready", "backend", "gemini", "model", cfg.Agent.Model)
		return a, nil
	default:
		a, err := agent.NewHTTPAgent(agent.HTTPConfig{
			Endpoint: cfg.Agent.Endpoint,
			APIKey:   cfg.Agent.APIKey,
			AgentID:  cfg.Agent.AgentID,
			AliasID:  cfg.Agent.AliasID,
			Timeout:  cfg.Agent.Timeout,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("main: knowledge agent ready", "backend", "http", "agent", cfg.Agent.AgentID)
		return a, nil
	}
}

// setupLogger installs the default slog handler. The console keeps its
// terminal for the conversation, so logs go to stderr at warn or above
// unless debug is asked for.
func setupLogger(lc config.LogConfig, mode string) error {
	level, err := config.ParseLevel(lc.Level)
	if err != nil {
		return err
	}
	if mode == config.ModeConsole && level > slog.LevelDebug && level < slog.LevelWarn {
		level = slog.LevelWarn
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if lc.Format == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
	return nil
}
