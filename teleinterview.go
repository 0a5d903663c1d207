// Package teleinterview is the top-level entry point for the TeleInterview
// interview engine.
//
// Use the Builder to compose an application from configuration:
//
//	cfg, _ := config.Load()
//	app, err := teleinterview.NewBuilder().WithConfig(cfg).Build()
//	app.Start(ctx)
//
// Or replace any collaborator:
//
//	app, err := teleinterview.NewBuilder().
//	    WithArchive(myArchive).
//	    WithTranscriber(myWhisper).
//	    Build()
package teleinterview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/jxucoder/TeleInterview/internal/config"
	"github.com/jxucoder/TeleInterview/internal/engine"
	"github.com/jxucoder/TeleInterview/internal/httpapi"
	"github.com/jxucoder/TeleInterview/internal/metrics"
	"github.com/jxucoder/TeleInterview/pkg/archive"
	sqliteArchive "github.com/jxucoder/TeleInterview/pkg/archive/sqlite"
	"github.com/jxucoder/TeleInterview/pkg/clock"
	"github.com/jxucoder/TeleInterview/pkg/eventbus"
	"github.com/jxucoder/TeleInterview/pkg/interviewer"
	"github.com/jxucoder/TeleInterview/pkg/llm"
	llmAnthropic "github.com/jxucoder/TeleInterview/pkg/llm/anthropic"
	llmOpenAI "github.com/jxucoder/TeleInterview/pkg/llm/openai"
	"github.com/jxucoder/TeleInterview/pkg/notify"
	slackNotify "github.com/jxucoder/TeleInterview/pkg/notify/slack"
	telegramNotify "github.com/jxucoder/TeleInterview/pkg/notify/telegram"
	"github.com/jxucoder/TeleInterview/pkg/speech"
	speechOpenAI "github.com/jxucoder/TeleInterview/pkg/speech/openai"
	"github.com/jxucoder/TeleInterview/pkg/store"
	"github.com/jxucoder/TeleInterview/pkg/store/memory"
)

// Builder constructs a TeleInterview App.
type Builder struct {
	config      *config.Config
	store       store.SessionStore
	bus         eventbus.Bus
	archive     archive.Archive
	llm         llm.Client
	questions   interviewer.QuestionGenerator
	evaluator   interviewer.AnswerEvaluator
	speaker     speech.Speaker
	transcriber speech.Transcriber
	notifiers   []notify.Notifier
	clock       clock.Clock
	logger      *slog.Logger
}

// NewBuilder creates a new Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// WithConfig sets the application configuration. Without it, config.Load is
// used.
func (b *Builder) WithConfig(cfg *config.Config) *Builder {
	b.config = cfg
	return b
}

// WithStore sets the session store implementation.
func (b *Builder) WithStore(s store.SessionStore) *Builder {
	b.store = s
	return b
}

// WithBus sets the event bus implementation.
func (b *Builder) WithBus(bus eventbus.Bus) *Builder {
	b.bus = bus
	return b
}

// WithArchive sets where completed interviews are saved.
func (b *Builder) WithArchive(a archive.Archive) *Builder {
	b.archive = a
	return b
}

// WithLLM sets the chat client behind question generation and evaluation.
func (b *Builder) WithLLM(client llm.Client) *Builder {
	b.llm = client
	return b
}

// WithQuestionGenerator replaces the LLM question generator.
func (b *Builder) WithQuestionGenerator(q interviewer.QuestionGenerator) *Builder {
	b.questions = q
	return b
}

// WithEvaluator replaces the LLM answer evaluator.
func (b *Builder) WithEvaluator(e interviewer.AnswerEvaluator) *Builder {
	b.evaluator = e
	return b
}

// WithSpeaker sets the text-to-speech backend.
func (b *Builder) WithSpeaker(s speech.Speaker) *Builder {
	b.speaker = s
	return b
}

// WithTranscriber sets the speech-to-text backend.
func (b *Builder) WithTranscriber(t speech.Transcriber) *Builder {
	b.transcriber = t
	return b
}

// WithNotifier adds a notifier told about every saved interview.
func (b *Builder) WithNotifier(n notify.Notifier) *Builder {
	b.notifiers = append(b.notifiers, n)
	return b
}

// WithClock replaces the real clock.
func (b *Builder) WithClock(c clock.Clock) *Builder {
	b.clock = c
	return b
}

// WithLogger sets the logger.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// Build creates the App. Missing components are filled with defaults.
func (b *Builder) Build() (*App, error) {
	if err := applyDefaults(b); err != nil {
		return nil, err
	}

	m := metrics.New()
	eng := engine.New(
		engine.Config{
			Timing:       b.config.Timing,
			SampleRate:   b.config.SampleRate,
			CallTimeout:  b.config.CallTimeout,
			TickInterval: b.config.TickInterval,
			IdleTimeout:  b.config.IdleTimeout,
		},
		b.store,
		b.bus,
		b.archive,
		engine.Collaborators{
			Questions:   b.questions,
			Evaluator:   b.evaluator,
			Speaker:     b.speaker,
			Transcriber: b.transcriber,
		},
		engine.WithClock(b.clock),
		engine.WithLogger(b.logger),
		engine.WithMetrics(m),
		engine.WithNotifier(notify.NewFanout(b.logger, b.notifiers...)),
	)

	return &App{
		config:  b.config,
		engine:  eng,
		server:  httpapi.New(eng, b.logger),
		archive: b.archive,
		logger:  b.logger,
	}, nil
}

// App is a TeleInterview application.
type App struct {
	config  *config.Config
	engine  *engine.Engine
	server  *httpapi.Server
	archive archive.Archive
	logger  *slog.Logger
}

// Engine returns the underlying engine for direct access.
func (a *App) Engine() *engine.Engine { return a.engine }

// Handler returns the HTTP API handler.
func (a *App) Handler() http.Handler { return a.server.Handler() }

// Start runs the session drivers and the HTTP server. It blocks until ctx is
// done or the server fails, then stops background work and closes the
// archive.
func (a *App) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	a.engine.Start(gctx)
	g.Go(func() error {
		return a.server.Serve(gctx, a.config.ServerAddr)
	})
	g.Go(func() error {
		<-gctx.Done()
		a.engine.Stop()
		return nil
	})

	err := g.Wait()
	if cerr := a.archive.Close(); cerr != nil {
		err = errors.Join(err, fmt.Errorf("closing archive: %w", cerr))
	}
	return err
}

// Close releases resources held by an App that was never started.
func (a *App) Close() error {
	a.engine.Stop()
	return a.archive.Close()
}

// ---------------------------------------------------------------------------
// Defaults
// ---------------------------------------------------------------------------

// applyDefaults fills in missing components from the configuration.
func applyDefaults(b *Builder) error {
	if b.config == nil {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		b.config = cfg
	}
	if err := b.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	cfg := b.config

	if b.logger == nil {
		b.logger = cfg.NewLogger(os.Stderr)
	}
	if b.clock == nil {
		b.clock = clock.Real{}
	}

	if b.store == nil {
		b.store = memory.New(b.clock, b.logger)
	}
	if b.bus == nil {
		b.bus = eventbus.NewInMemoryBus()
	}
	if b.archive == nil {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
		a, err := sqliteArchive.New(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("initializing archive: %w", err)
		}
		b.archive = a
	}

	// Question generation and evaluation.
	if b.llm == nil {
		b.llm = llmClientFromConfig(cfg)
	}
	if b.llm != nil {
		iv := interviewer.NewLLM(b.llm, b.logger)
		if b.questions == nil {
			b.questions = iv
		}
		if b.evaluator == nil {
			b.evaluator = iv
		}
	} else {
		b.logger.Warn("no LLM key configured: fallback questions and default scores will be used")
	}

	// Speech.
	if (b.speaker == nil || b.transcriber == nil) && cfg.SpeechEnabled() {
		sp, err := speechOpenAI.New(speechOpenAI.Config{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			Voice:      cfg.TTSVoice,
			Timeout:    cfg.CallTimeout,
			MaxRetries: 2,
		}, b.logger)
		if err != nil {
			return fmt.Errorf("initializing speech: %w", err)
		}
		if b.speaker == nil {
			b.speaker = sp
		}
		if b.transcriber == nil {
			b.transcriber = sp
		}
	}

	// Notifications.
	if cfg.SlackEnabled() {
		b.notifiers = append(b.notifiers, slackNotify.New(cfg.SlackBotToken, cfg.SlackChannel))
	}
	if cfg.TelegramEnabled() {
		tg, err := telegramNotify.New(cfg.TelegramBotToken, cfg.TelegramChatID)
		if err != nil {
			b.logger.Warn("telegram notifications disabled", "error", err)
		} else {
			b.notifiers = append(b.notifiers, tg)
		}
	}

	return nil
}

// llmClientFromConfig creates the chat client for the configured provider.
// Returns nil if no API key is found.
func llmClientFromConfig(cfg *config.Config) llm.Client {
	switch cfg.Provider() {
	case "anthropic":
		return llmAnthropic.New(cfg.AnthropicAPIKey, cfg.LLMModel)
	case "openai":
		c := llmOpenAI.New(cfg.OpenAIAPIKey, cfg.LLMModel)
		if cfg.OpenAIBaseURL != "" {
			c = c.WithBaseURL(cfg.OpenAIBaseURL)
		}
		return c
	default:
		return nil
	}
}
