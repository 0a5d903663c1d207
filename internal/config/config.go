// Package config provides configuration management for TeleInterview.
package config

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jxucoder/TeleInterview/pkg/model"
)

// Config holds all configuration for the TeleInterview server.
type Config struct {
	// ServerAddr is the address the HTTP server listens on (e.g., ":7090").
	ServerAddr string

	// DataDir is the directory for persistent data (SQLite DB, etc.).
	DataDir string

	// DatabasePath is the full path to the SQLite archive file.
	DatabasePath string

	// LLM provider API keys. Anthropic is preferred for questions and
	// evaluation when both are set; OpenAI is also used for speech.
	AnthropicAPIKey string
	OpenAIAPIKey    string
	// LLMProvider forces "openai" or "anthropic"; empty picks by key.
	LLMProvider string
	// LLMModel overrides the provider's default chat model.
	LLMModel string
	// OpenAIBaseURL points the OpenAI clients at a compatible endpoint.
	OpenAIBaseURL string
	// TTSVoice is the OpenAI voice questions are read in.
	TTSVoice string

	// Timing is the per-session timing new interviews are created with.
	// Resolved as env > TimingFile > defaults.
	Timing     model.Timing
	TimingFile string

	// SampleRate of the PCM16 chunks clients submit.
	SampleRate int
	// TickInterval is how often each session's driver ticks.
	TickInterval time.Duration
	// CallTimeout bounds every LLM and speech call.
	CallTimeout time.Duration
	// IdleTimeout removes sessions nobody touched for this long. 0 disables.
	IdleTimeout time.Duration

	// Slack notification of saved interviews (optional).
	SlackBotToken string
	SlackChannel  string

	// Telegram notification of saved interviews (optional).
	TelegramBotToken string
	TelegramChatID   int64

	// LogLevel is debug, info, warn or error. LogFormat is text or json.
	LogLevel  string
	LogFormat string
}

// Load creates a Config from the config file and environment variables.
// Values are resolved in order: environment variable > config file > default.
func Load() (*Config, error) {
	// Load config file (~/.teleinterview/config.env) into the environment.
	// Existing env vars take precedence (loadConfigFile only sets unset vars).
	loadConfigFile()

	dataDir := envOr("TELEINTERVIEW_DATA_DIR", defaultDataDir())
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	timingFile := os.Getenv("TELEINTERVIEW_TIMING_FILE")
	timing := model.DefaultTiming()
	if timingFile != "" {
		var err error
		if timing, err = LoadTimingFile(timingFile); err != nil {
			return nil, err
		}
	}

	chatID, err := envInt64("TELEGRAM_CHAT_ID")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServerAddr:      envOr("TELEINTERVIEW_ADDR", ":7090"),
		DataDir:         dataDir,
		DatabasePath:    filepath.Join(dataDir, "interviews.db"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		LLMProvider:     strings.ToLower(os.Getenv("TELEINTERVIEW_LLM_PROVIDER")),
		LLMModel:        os.Getenv("TELEINTERVIEW_LLM_MODEL"),
		OpenAIBaseURL:   os.Getenv("OPENAI_BASE_URL"),
		TTSVoice:        envOr("TELEINTERVIEW_TTS_VOICE", "alloy"),
		Timing: model.Timing{
			TotalQuestions: envOrInt("TELEINTERVIEW_TOTAL_QUESTIONS", timing.TotalQuestions),
			RepeatWindow:   envOrDuration("TELEINTERVIEW_REPEAT_WINDOW", timing.RepeatWindow),
			RecordMax:      envOrDuration("TELEINTERVIEW_RECORD_MAX", timing.RecordMax),
			StopButton:     envOrDuration("TELEINTERVIEW_STOP_BUTTON", timing.StopButton),
			Preview:        envOrDuration("TELEINTERVIEW_PREVIEW", timing.Preview),
			Chunk:          envOrDuration("TELEINTERVIEW_CHUNK", timing.Chunk),
			PartialEvery:   envOrDuration("TELEINTERVIEW_PARTIAL_EVERY", timing.PartialEvery),
			Countdown:      envOrDuration("TELEINTERVIEW_COUNTDOWN", timing.Countdown),
		},
		TimingFile:       timingFile,
		SampleRate:       envOrInt("TELEINTERVIEW_SAMPLE_RATE", 16000),
		TickInterval:     envOrDuration("TELEINTERVIEW_TICK_INTERVAL", 200*time.Millisecond),
		CallTimeout:      envOrDuration("TELEINTERVIEW_CALL_TIMEOUT", 60*time.Second),
		IdleTimeout:      envOrDuration("TELEINTERVIEW_IDLE_TIMEOUT", 2*time.Hour),
		SlackBotToken:    os.Getenv("SLACK_BOT_TOKEN"),
		SlackChannel:     os.Getenv("SLACK_CHANNEL"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   chatID,
		LogLevel:         envOr("TELEINTERVIEW_LOG_LEVEL", "info"),
		LogFormat:        envOr("TELEINTERVIEW_LOG_FORMAT", "text"),
	}

	return cfg, nil
}

// LoadTimingFile reads a YAML timing profile. Keys left out of the file keep
// their default values; durations are written like "90s" or "2m".
func LoadTimingFile(path string) (model.Timing, error) {
	timing := model.DefaultTiming()
	data, err := os.ReadFile(path)
	if err != nil {
		return timing, fmt.Errorf("reading timing file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&timing); err != nil && !errors.Is(err, io.EOF) {
		return timing, fmt.Errorf("parsing timing file %s: %w", path, err)
	}
	return timing, nil
}

// loadConfigFile reads ~/.teleinterview/config.env and sets any values that
// are not already present in the environment.
func loadConfigFile() {
	path := filepath.Join(defaultDataDir(), "config.env")
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key, value := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// Validate checks that the configuration can run an interview server.
func (c *Config) Validate() error {
	if err := c.Timing.Validate(); err != nil {
		return fmt.Errorf("timing: %w", err)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("TELEINTERVIEW_SAMPLE_RATE must be positive, got %d", c.SampleRate)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("TELEINTERVIEW_TICK_INTERVAL must be positive, got %v", c.TickInterval)
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("TELEINTERVIEW_CALL_TIMEOUT must be positive, got %v", c.CallTimeout)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("TELEINTERVIEW_IDLE_TIMEOUT must not be negative, got %v", c.IdleTimeout)
	}
	switch c.LLMProvider {
	case "":
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
		}
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required for the anthropic provider")
		}
	default:
		return fmt.Errorf("TELEINTERVIEW_LLM_PROVIDER must be openai or anthropic, got %q", c.LLMProvider)
	}
	if c.SlackBotToken != "" && c.SlackChannel == "" {
		return fmt.Errorf("SLACK_CHANNEL is required when SLACK_BOT_TOKEN is set")
	}
	if c.TelegramBotToken != "" && c.TelegramChatID == 0 {
		return fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}
	return nil
}

// Provider returns the LLM provider that will back question generation and
// evaluation, or "" when no key is configured.
func (c *Config) Provider() string {
	switch {
	case c.LLMProvider != "":
		return c.LLMProvider
	case c.AnthropicAPIKey != "":
		return "anthropic"
	case c.OpenAIAPIKey != "":
		return "openai"
	default:
		return ""
	}
}

// SpeechEnabled reports whether OpenAI TTS/STT can be used.
func (c *Config) SpeechEnabled() bool {
	return c.OpenAIAPIKey != ""
}

// SlackEnabled returns true if Slack notifications are configured.
func (c *Config) SlackEnabled() bool {
	return c.SlackBotToken != "" && c.SlackChannel != ""
}

// TelegramEnabled returns true if Telegram notifications are configured.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != 0
}

// NewLogger builds the process logger from LogLevel and LogFormat.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func envOrDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".teleinterview"
	}
	return filepath.Join(home, ".teleinterview")
}
