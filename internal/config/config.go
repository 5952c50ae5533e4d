package config

import (
	"bufio"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/moorebrett0/vernacular/internal/fault"
)

// Presentation modes accepted by Validate.
const (
	ModeDiscord = "discord"
	ModeConsole = "console"
)

// Knowledge agent backends.
const (
	AgentHTTP   = "http"
	AgentGemini = "gemini"
)

type Config struct {
	AI      AIConfig      `yaml:"ai"`
	Claude  ClaudeConfig  `yaml:"claude"`
	Gemini  GeminiConfig  `yaml:"gemini"`
	Agent   AgentConfig   `yaml:"agent"`
	Speech  SpeechConfig  `yaml:"speech"`
	History HistoryConfig `yaml:"history"`
	Session SessionConfig `yaml:"session"`
	Discord DiscordConfig `yaml:"discord"`
	Log     LogConfig     `yaml:"log"`
}

type AIConfig struct {
	Provider     string        `yaml:"provider"` // "claude", "gemini", or "" (auto-detect)
	SystemPrompt string        `yaml:"system_prompt"`
	Timeout      time.Duration `yaml:"timeout"`
	// Sliding window rate limiter
	RateLimit  int           `yaml:"rate_limit"`
	RateWindow time.Duration `yaml:"rate_window"`
}

type ClaudeConfig struct {
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int64  `yaml:"max_tokens"`
}

type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// AgentConfig describes the knowledge agent behind government_scheme_info.
type AgentConfig struct {
	Backend     string        `yaml:"backend"` // "http" or "gemini"
	Endpoint    string        `yaml:"endpoint"`
	APIKey      string        `yaml:"api_key"`
	AgentID     string        `yaml:"agent_id"`
	AliasID     string        `yaml:"alias_id"`
	Model       string        `yaml:"model"`
	Instruction string        `yaml:"instruction"`
	Timeout     time.Duration `yaml:"timeout"`
}

type SpeechConfig struct {
	APIKey     string        `yaml:"api_key"`
	STTURL     string        `yaml:"stt_url"`
	TTSURL     string        `yaml:"tts_url"`
	Timeout    time.Duration `yaml:"timeout"`
	SampleRate int           `yaml:"sample_rate"`
	TempDir    string        `yaml:"temp_dir"`
	Language   string        `yaml:"language"`
}

type HistoryConfig struct {
	MaxTurns int `yaml:"max_turns"`
}

type SessionConfig struct {
	IdleTTL       time.Duration `yaml:"idle_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type DiscordConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"` // "" answers in every channel the bot can read
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Load builds the configuration from defaults, the YAML file at path (if
// present), a .env file and environment variables, in that order. It does
// not validate; callers run Validate once they know the mode.
func Load(path string) (*Config, error) {
	cfg := defaults()

	// Load .env file first (from same directory as binary, or working dir)
	loadDotEnv(".env")

	// Load YAML config if it exists
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fault.Configuration("config", "reading config: %v", err)
		}
		// File doesn't exist, use defaults + env vars
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fault.Configuration("config", "parsing config: %v", err)
		}
	}

	// Env vars override config file (secrets live in .env or environment)
	overrides := map[string]*string{
		"ANTHROPIC_API_KEY":        &cfg.Claude.APIKey,
		"GOOGLE_API_KEY":           &cfg.Gemini.APIKey,
		"AI_PROVIDER":              &cfg.AI.Provider,
		"SYSTEM_PROMPT":            &cfg.AI.SystemPrompt,
		"SARVAM_API_KEY":           &cfg.Speech.APIKey,
		"KNOWLEDGE_AGENT_BACKEND":  &cfg.Agent.Backend,
		"KNOWLEDGE_AGENT_ENDPOINT": &cfg.Agent.Endpoint,
		"KNOWLEDGE_AGENT_API_KEY":  &cfg.Agent.APIKey,
		"KNOWLEDGE_AGENT_ID":       &cfg.Agent.AgentID,
		"KNOWLEDGE_AGENT_ALIAS_ID": &cfg.Agent.AliasID,
		"DISCORD_BOT_TOKEN":        &cfg.Discord.BotToken,
		"DISCORD_CHANNEL_ID":       &cfg.Discord.ChannelID,
		"LOG_LEVEL":                &cfg.Log.Level,
	}
	for key, dst := range overrides {
		if env := os.Getenv(key); env != "" {
			*dst = env
		}
	}
	if env := os.Getenv("HISTORY_MAX_TURNS"); env != "" {
		n, err := strconv.Atoi(env)
		if err != nil {
			return nil, fault.Configuration("config", "HISTORY_MAX_TURNS must be a number, got %q", env)
		}
		cfg.History.MaxTurns = n
	}

	// The knowledge agent can share the Gemini key
	if cfg.Agent.Backend == AgentGemini && cfg.Agent.APIKey == "" {
		cfg.Agent.APIKey = cfg.Gemini.APIKey
	}

	return cfg, nil
}

// loadDotEnv reads a .env file and sets env vars that aren't already set.
func loadDotEnv(path string) {
	f, err := os.Open(path)
	if err != nil {
		return // no .env, that's fine
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)

		// Strip surrounding quotes
		if len(val) >= 2 {
			if (val[0] == '"' && val[len(val)-1] == '"') ||
				(val[0] == '\'' && val[len(val)-1] == '\'') {
				val = val[1 : len(val)-1]
			}
		}

		// Only set if not already in environment
		if os.Getenv(key) == "" && val != "" {
			os.Setenv(key, val)
		}
	}
}

func defaults() *Config {
	return &Config{
		AI: AIConfig{
			Timeout:    60 * time.Second,
			RateLimit:  10,
			RateWindow: time.Minute,
		},
		Claude: ClaudeConfig{
			Model:     "claude-sonnet-4-5-20250929",
			MaxTokens: 1024,
		},
		Gemini: GeminiConfig{
			Model: "gemini-2.5-flash",
		},
		Agent: AgentConfig{
			Backend: AgentHTTP,
			Model:   "gemini-2.5-flash",
			Timeout: 60 * time.Second,
		},
		Speech: SpeechConfig{
			Timeout:    45 * time.Second,
			SampleRate: 16000,
			Language:   "hi-IN",
		},
		History: HistoryConfig{
			MaxTurns: 50,
		},
		Session: SessionConfig{
			IdleTTL:       2 * time.Hour,
			SweepInterval: 10 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks the settings the given presentation mode needs. The
// knowledge agent and speech keys are optional: without them the tool
// reports missing configuration and voice features are disabled.
func (c *Config) Validate(mode string) error {
	if c.Claude.APIKey == "" && c.Gemini.APIKey == "" {
		return fault.Configuration("config", "missing ANTHROPIC_API_KEY or GOOGLE_API_KEY: no AI provider configured")
	}
	switch c.AI.Provider {
	case "", "claude", "gemini":
	default:
		return fault.Configuration("config", "unknown ai.provider %q (want claude or gemini)", c.AI.Provider)
	}
	switch c.Agent.Backend {
	case AgentHTTP, AgentGemini:
	default:
		return fault.Configuration("config", "unknown agent.backend %q (want http or gemini)", c.Agent.Backend)
	}
	if c.History.MaxTurns <= 0 {
		return fault.Configuration("config", "history.max_turns must be positive, got %d", c.History.MaxTurns)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}

	switch mode {
	case ModeDiscord:
		if c.Discord.BotToken == "" {
			return fault.Configuration("config", "missing DISCORD_BOT_TOKEN")
		}
	case ModeConsole:
	default:
		return fault.Configuration("config", "unknown mode %q (want discord or console)", mode)
	}
	return nil
}

// AgentConfigured reports whether enough is set to reach the knowledge
// agent. The HTTP backend sends its API key only when one is set.
func (c *Config) AgentConfigured() bool {
	a := c.Agent
	if a.Backend == AgentGemini {
		return a.APIKey != ""
	}
	return a.Endpoint != "" && a.AgentID != "" && a.AliasID != ""
}

// ParseLevel maps a log.level value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fault.Configuration("config", "invalid log.level %q", s)
	}
	return level, nil
}
