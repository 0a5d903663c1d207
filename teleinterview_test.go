package teleinterview

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jxucoder/TeleInterview/internal/config"
	llmAnthropic "github.com/jxucoder/TeleInterview/pkg/llm/anthropic"
	llmOpenAI "github.com/jxucoder/TeleInterview/pkg/llm/openai"
	"github.com/jxucoder/TeleInterview/pkg/model"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		ServerAddr:   "127.0.0.1:0",
		DataDir:      dir,
		DatabasePath: filepath.Join(dir, "interviews.db"),
		Timing:       model.DefaultTiming(),
		SampleRate:   16000,
		TickInterval: 50 * time.Millisecond,
		CallTimeout:  time.Second,
		IdleTimeout:  time.Hour,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuild_Defaults(t *testing.T) {
	app, err := NewBuilder().WithConfig(testConfig(t)).WithLogger(quietLogger()).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer app.Close()

	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}

	// Without an LLM key the interview still starts on a fallback question.
	body := `{"candidate_name":"Ada","job_title":"SRE","interview_type":"technical"}`
	resp, err = http.Post(srv.URL+"/api/sessions", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/sessions: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start status = %d", resp.StatusCode)
	}
	var started struct {
		SessionID     string `json:"session_id"`
		FirstQuestion string `json:"first_question"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&started); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if started.SessionID == "" || started.FirstQuestion == "" {
		t.Errorf("unexpected start response: %+v", started)
	}

	if _, err := app.Engine().PollState(started.SessionID); err != nil {
		t.Errorf("PollState: %v", err)
	}
}

func TestBuild_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.SampleRate = 0
	if _, err := NewBuilder().WithConfig(cfg).WithLogger(quietLogger()).Build(); err == nil {
		t.Fatal("expected error for invalid configuration")
	}
}

func TestApp_StartStopsOnCancel(t *testing.T) {
	app, err := NewBuilder().WithConfig(testConfig(t)).WithLogger(quietLogger()).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestLLMClientFromConfig(t *testing.T) {
	cfg := testConfig(t)
	if c := llmClientFromConfig(cfg); c != nil {
		t.Errorf("no keys: got %T, want nil", c)
	}

	cfg.OpenAIAPIKey = "sk-test"
	if _, ok := llmClientFromConfig(cfg).(*llmOpenAI.Client); !ok {
		t.Errorf("openai key: got %T", llmClientFromConfig(cfg))
	}

	cfg.AnthropicAPIKey = "sk-ant-test"
	if _, ok := llmClientFromConfig(cfg).(*llmAnthropic.Client); !ok {
		t.Errorf("both keys: got %T, want anthropic", llmClientFromConfig(cfg))
	}

	cfg.LLMProvider = "openai"
	if _, ok := llmClientFromConfig(cfg).(*llmOpenAI.Client); !ok {
		t.Errorf("forced openai: got %T", llmClientFromConfig(cfg))
	}
}
