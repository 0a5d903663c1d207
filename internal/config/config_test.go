package config_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jxucoder/TeleInterview/internal/config"
	"github.com/jxucoder/TeleInterview/pkg/model"
)

// clearConfigEnv unsets all environment variables that Load reads and points
// HOME at an empty directory so no real config.env leaks into the test.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TELEINTERVIEW_ADDR",
		"TELEINTERVIEW_DATA_DIR",
		"TELEINTERVIEW_LLM_PROVIDER",
		"TELEINTERVIEW_LLM_MODEL",
		"TELEINTERVIEW_TTS_VOICE",
		"TELEINTERVIEW_TIMING_FILE",
		"TELEINTERVIEW_TOTAL_QUESTIONS",
		"TELEINTERVIEW_REPEAT_WINDOW",
		"TELEINTERVIEW_RECORD_MAX",
		"TELEINTERVIEW_STOP_BUTTON",
		"TELEINTERVIEW_PREVIEW",
		"TELEINTERVIEW_CHUNK",
		"TELEINTERVIEW_PARTIAL_EVERY",
		"TELEINTERVIEW_COUNTDOWN",
		"TELEINTERVIEW_SAMPLE_RATE",
		"TELEINTERVIEW_TICK_INTERVAL",
		"TELEINTERVIEW_CALL_TIMEOUT",
		"TELEINTERVIEW_IDLE_TIMEOUT",
		"TELEINTERVIEW_LOG_LEVEL",
		"TELEINTERVIEW_LOG_FORMAT",
		"ANTHROPIC_API_KEY",
		"OPENAI_API_KEY",
		"OPENAI_BASE_URL",
		"SLACK_BOT_TOKEN",
		"SLACK_CHANNEL",
		"TELEGRAM_BOT_TOKEN",
		"TELEGRAM_CHAT_ID",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	t.Setenv("HOME", t.TempDir())
}

// ---------------------------------------------------------------------------
// Load
// ---------------------------------------------------------------------------

func TestLoad_Defaults(t *testing.T) {
	clearConfigEnv(t)

	tmpDir := t.TempDir()
	t.Setenv("TELEINTERVIEW_DATA_DIR", tmpDir)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	if cfg.ServerAddr != ":7090" {
		t.Errorf("ServerAddr = %q, want %q", cfg.ServerAddr, ":7090")
	}
	if cfg.DatabasePath != filepath.Join(tmpDir, "interviews.db") {
		t.Errorf("DatabasePath = %q", cfg.DatabasePath)
	}
	if cfg.Timing != model.DefaultTiming() {
		t.Errorf("Timing = %+v, want defaults", cfg.Timing)
	}
	if cfg.SampleRate != 16000 || cfg.TickInterval != 200*time.Millisecond {
		t.Errorf("SampleRate = %d, TickInterval = %v", cfg.SampleRate, cfg.TickInterval)
	}
	if cfg.CallTimeout != time.Minute || cfg.IdleTimeout != 2*time.Hour {
		t.Errorf("CallTimeout = %v, IdleTimeout = %v", cfg.CallTimeout, cfg.IdleTimeout)
	}
	if cfg.Provider() != "" || cfg.SpeechEnabled() || cfg.SlackEnabled() || cfg.TelegramEnabled() {
		t.Error("integrations enabled without credentials")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoad_CustomEnvVars(t *testing.T) {
	clearConfigEnv(t)

	tmpDir := t.TempDir()
	t.Setenv("TELEINTERVIEW_ADDR", ":9090")
	t.Setenv("TELEINTERVIEW_DATA_DIR", tmpDir)
	t.Setenv("TELEINTERVIEW_TOTAL_QUESTIONS", "5")
	t.Setenv("TELEINTERVIEW_RECORD_MAX", "2m")
	t.Setenv("TELEINTERVIEW_STOP_BUTTON", "45s")
	t.Setenv("TELEINTERVIEW_IDLE_TIMEOUT", "0s")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("OPENAI_API_KEY", "sk-openai-test")
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-test")
	t.Setenv("SLACK_CHANNEL", "#hiring")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123456:ABC")
	t.Setenv("TELEGRAM_CHAT_ID", "-10042")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	if cfg.ServerAddr != ":9090" {
		t.Errorf("ServerAddr = %q", cfg.ServerAddr)
	}
	if cfg.Timing.TotalQuestions != 5 || cfg.Timing.RecordMax != 2*time.Minute || cfg.Timing.StopButton != 45*time.Second {
		t.Errorf("Timing = %+v", cfg.Timing)
	}
	if cfg.Timing.RepeatWindow != 120*time.Second {
		t.Errorf("RepeatWindow = %v, want default", cfg.Timing.RepeatWindow)
	}
	if cfg.IdleTimeout != 0 {
		t.Errorf("IdleTimeout = %v, want 0", cfg.IdleTimeout)
	}
	if cfg.Provider() != "anthropic" {
		t.Errorf("Provider() = %q, want anthropic", cfg.Provider())
	}
	if !cfg.SpeechEnabled() || !cfg.SlackEnabled() || !cfg.TelegramEnabled() {
		t.Error("expected speech, slack and telegram to be enabled")
	}
	if cfg.TelegramChatID != -10042 {
		t.Errorf("TelegramChatID = %d", cfg.TelegramChatID)
	}
}

func TestLoad_BadChatID(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("TELEINTERVIEW_DATA_DIR", t.TempDir())
	t.Setenv("TELEGRAM_CHAT_ID", "hiring")

	if _, err := config.Load(); err == nil || !strings.Contains(err.Error(), "TELEGRAM_CHAT_ID") {
		t.Fatalf("Load() error = %v, want TELEGRAM_CHAT_ID error", err)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	clearConfigEnv(t)
	home := os.Getenv("HOME")
	dir := filepath.Join(home, ".teleinterview")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	content := "# interview defaults\nTELEINTERVIEW_ADDR=:8000\nTELEINTERVIEW_COUNTDOWN = 5s\nOPENAI_API_KEY=from-file\n"
	if err := os.WriteFile(filepath.Join(dir, "config.env"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TELEINTERVIEW_ADDR", ":7777")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if cfg.ServerAddr != ":7777" {
		t.Errorf("ServerAddr = %q, env should win over config file", cfg.ServerAddr)
	}
	if cfg.Timing.Countdown != 5*time.Second {
		t.Errorf("Countdown = %v, want 5s from config file", cfg.Timing.Countdown)
	}
	if cfg.OpenAIAPIKey != "from-file" {
		t.Errorf("OpenAIAPIKey = %q", cfg.OpenAIAPIKey)
	}
	if cfg.DataDir != dir {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, dir)
	}
}

func TestLoad_CreatesDataDir(t *testing.T) {
	clearConfigEnv(t)

	nested := filepath.Join(t.TempDir(), "a", "b", "c")
	t.Setenv("TELEINTERVIEW_DATA_DIR", nested)

	if _, err := config.Load(); err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	info, err := os.Stat(nested)
	if err != nil {
		t.Fatalf("data dir was not created: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("data dir path exists but is not a directory")
	}
}

// ---------------------------------------------------------------------------
// Timing file
// ---------------------------------------------------------------------------

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadTimingFile(t *testing.T) {
	path := writeFile(t, "timing.yaml", "total_questions: 4\nrepeat_window: 30s\nrecord_max: 2m\n")

	timing, err := config.LoadTimingFile(path)
	if err != nil {
		t.Fatalf("LoadTimingFile: %v", err)
	}
	want := model.DefaultTiming()
	want.TotalQuestions = 4
	want.RepeatWindow = 30 * time.Second
	want.RecordMax = 2 * time.Minute
	if timing != want {
		t.Fatalf("timing = %+v, want %+v", timing, want)
	}
}

func TestLoadTimingFile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown key", "total_question: 4\n"},
		{"bare number duration", "record_max: 300\n"},
		{"malformed", "record_max: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := config.LoadTimingFile(writeFile(t, "timing.yaml", tt.content)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
	if _, err := config.LoadTimingFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_TimingFileThenEnv(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("TELEINTERVIEW_DATA_DIR", t.TempDir())
	t.Setenv("TELEINTERVIEW_TIMING_FILE", writeFile(t, "timing.yaml", "total_questions: 4\npreview: 10s\n"))
	t.Setenv("TELEINTERVIEW_TOTAL_QUESTIONS", "6")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if cfg.Timing.TotalQuestions != 6 {
		t.Errorf("TotalQuestions = %d, env should win over the timing file", cfg.Timing.TotalQuestions)
	}
	if cfg.Timing.Preview != 10*time.Second {
		t.Errorf("Preview = %v, want 10s from the timing file", cfg.Timing.Preview)
	}
}

// ---------------------------------------------------------------------------
// Validate
// ---------------------------------------------------------------------------

func validConfig() *config.Config {
	return &config.Config{
		Timing:       model.DefaultTiming(),
		SampleRate:   16000,
		TickInterval: 200 * time.Millisecond,
		CallTimeout:  time.Minute,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr string
	}{
		{"valid", func(c *config.Config) {}, ""},
		{"stop after record max", func(c *config.Config) { c.Timing.StopButton = c.Timing.RecordMax + time.Second }, "stop button"},
		{"zero questions", func(c *config.Config) { c.Timing.TotalQuestions = 0 }, "total questions"},
		{"zero sample rate", func(c *config.Config) { c.SampleRate = 0 }, "SAMPLE_RATE"},
		{"negative idle", func(c *config.Config) { c.IdleTimeout = -time.Second }, "IDLE_TIMEOUT"},
		{"unknown provider", func(c *config.Config) { c.LLMProvider = "cohere" }, "LLM_PROVIDER"},
		{"openai without key", func(c *config.Config) { c.LLMProvider = "openai" }, "OPENAI_API_KEY"},
		{"slack without channel", func(c *config.Config) { c.SlackBotToken = "xoxb" }, "SLACK_CHANNEL"},
		{"telegram without chat", func(c *config.Config) { c.TelegramBotToken = "1:A" }, "TELEGRAM_CHAT_ID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestProvider(t *testing.T) {
	tests := []struct {
		cfg  config.Config
		want string
	}{
		{config.Config{}, ""},
		{config.Config{OpenAIAPIKey: "k"}, "openai"},
		{config.Config{OpenAIAPIKey: "k", AnthropicAPIKey: "a"}, "anthropic"},
		{config.Config{OpenAIAPIKey: "k", AnthropicAPIKey: "a", LLMProvider: "openai"}, "openai"},
	}
	for _, tt := range tests {
		if got := tt.cfg.Provider(); got != tt.want {
			t.Errorf("Provider() = %q, want %q", got, tt.want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{LogLevel: "warn", LogFormat: "json"}
	logger := cfg.NewLogger(&buf)

	logger.Info("hidden")
	logger.Warn("shown", "session_id", "abc")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line logged at warn level: %s", out)
	}
	if !strings.Contains(out, `"session_id":"abc"`) {
		t.Errorf("expected JSON output, got %s", out)
	}
}
