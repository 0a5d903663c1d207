// Package engine runs interview sessions: the per-session state machine, the
// answer finalizer and the background drivers that tick live sessions.
// It depends only on interfaces (store, bus, archive, collaborators).
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jxucoder/TeleInterview/internal/metrics"
	"github.com/jxucoder/TeleInterview/pkg/archive"
	"github.com/jxucoder/TeleInterview/pkg/clock"
	"github.com/jxucoder/TeleInterview/pkg/eventbus"
	"github.com/jxucoder/TeleInterview/pkg/interviewer"
	"github.com/jxucoder/TeleInterview/pkg/model"
	"github.com/jxucoder/TeleInterview/pkg/notify"
	"github.com/jxucoder/TeleInterview/pkg/score"
	"github.com/jxucoder/TeleInterview/pkg/speech"
	"github.com/jxucoder/TeleInterview/pkg/store"
)

// Config holds engine-specific configuration.
type Config struct {
	Timing model.Timing

	// SampleRate of submitted PCM16 mono chunks (default 16000).
	SampleRate int
	// CallTimeout bounds every collaborator call (default 60s).
	CallTimeout time.Duration
	// TickInterval is how often a driver ticks its session (default 200ms).
	TickInterval time.Duration
	// IdleTimeout removes sessions untouched for this long; zero disables.
	IdleTimeout time.Duration
	// ReapInterval is how often idle sessions are looked for (default 1m).
	ReapInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.Timing == (model.Timing{}) {
		c.Timing = model.DefaultTiming()
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 60 * time.Second
	}
	if c.TickInterval <= 0 {
		c.TickInterval = 200 * time.Millisecond
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = time.Minute
	}
}

// Collaborators are the external services a session calls out to.
type Collaborators struct {
	Questions   interviewer.QuestionGenerator
	Evaluator   interviewer.AnswerEvaluator
	Speaker     speech.Speaker
	Transcriber speech.Transcriber
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock replaces the real clock.
func WithClock(c clock.Clock) Option { return func(e *Engine) { e.clock = c } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithMetrics sets the collectors the engine records to.
func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

// WithNotifier announces saved interviews.
func WithNotifier(n *notify.Fanout) Option { return func(e *Engine) { e.notifier = n } }

// Engine orchestrates interview session lifecycle.
type Engine struct {
	config   Config
	store    store.SessionStore
	bus      eventbus.Bus
	archive  archive.Archive
	collab   Collaborators
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *metrics.Metrics
	notifier *notify.Fanout

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	drivers map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new Engine with all dependencies.
func New(cfg Config, st store.SessionStore, bus eventbus.Bus, arch archive.Archive, collab Collaborators, opts ...Option) *Engine {
	cfg.applyDefaults()
	e := &Engine{
		config:  cfg,
		store:   st,
		bus:     bus,
		archive: arch,
		collab:  collab,
		drivers: make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.clock == nil {
		e.clock = clock.Real{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With("component", "engine")
	if e.metrics == nil {
		e.metrics = metrics.New()
	}
	if e.collab.Speaker == nil {
		e.collab.Speaker = speech.Silent{}
	}
	return e
}

// Store returns the session store.
func (e *Engine) Store() store.SessionStore { return e.store }

// Bus returns the event bus.
func (e *Engine) Bus() eventbus.Bus { return e.bus }

// Timing returns the timing new sessions are created with.
func (e *Engine) Timing() model.Timing { return e.config.Timing }

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.config }

// Metrics returns the collectors the engine records to.
func (e *Engine) Metrics() *metrics.Metrics { return e.metrics }

// StartRequest carries the inputs for StartInterview.
type StartRequest struct {
	CandidateName      string `json:"candidate_name"`
	JobTitle           string `json:"job_title"`
	InterviewType      string `json:"interview_type"`
	ResumeText         string `json:"resume_text"`
	JobDescriptionText string `json:"job_description_text"`
}

// StartResponse is returned by StartInterview.
type StartResponse struct {
	SessionID      string `json:"session_id"`
	FirstQuestion  string `json:"first_question"`
	TotalQuestions int    `json:"total_questions"`
}

// StartInterview generates the first question and creates a session awaiting
// its delivery. When the engine is running a driver is started for it.
func (e *Engine) StartInterview(ctx context.Context, req StartRequest) (*StartResponse, error) {
	itype, err := model.ParseInterviewType(strings.ToLower(strings.TrimSpace(req.InterviewType)))
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.CandidateName)
	title := strings.TrimSpace(req.JobTitle)
	if name == "" || title == "" {
		return nil, fmt.Errorf("%w: candidate name and job title are required", model.ErrInvalidRequest)
	}

	timing := e.config.Timing
	first := e.nextQuestion(ctx, "", interviewer.QuestionRequest{
		Resume:         req.ResumeText,
		JobDescription: req.JobDescriptionText,
		Type:           itype,
		Number:         1,
		Total:          timing.TotalQuestions,
	})

	sess, err := e.store.Create(model.CreateParams{
		CandidateName:      name,
		JobTitle:           title,
		InterviewType:      itype,
		ResumeText:         req.ResumeText,
		JobDescriptionText: req.JobDescriptionText,
		FirstQuestion:      first,
		Timing:             timing,
		Now:                e.clock.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	e.metrics.SessionsStarted.Inc()
	e.metrics.ActiveSessions.Inc()
	e.metrics.RecordPhase(string(sess.Phase))
	e.logger.Info("interview started", "session_id", sess.ID, "type", itype, "total_questions", timing.TotalQuestions)

	e.startDriver(sess.ID)

	return &StartResponse{
		SessionID:      sess.ID,
		FirstQuestion:  first,
		TotalQuestions: timing.TotalQuestions,
	}, nil
}

// RequestRepeat re-delivers the current question while the repeat window is
// open. Outside the window, and in every other phase, it returns
// model.ErrRepeatDisabled and leaves the session unchanged.
func (e *Engine) RequestRepeat(ctx context.Context, id string) (string, error) {
	now := e.clock.Now()
	sess, err := e.store.Get(id)
	if err != nil {
		return "", err
	}
	if sess.Unusable {
		return "", fmt.Errorf("%w: %s", model.ErrSessionUnusable, sess.UnusableReason)
	}
	if !repeatAllowed(sess, now) {
		e.reject(id, "repeat", model.ErrRepeatDisabled)
		return "", model.ErrRepeatDisabled
	}

	text := sess.CurrentQuestionText
	audio := e.speak(ctx, id, text)
	e.emit(id, model.EventRepeat, text, audio)
	e.logger.Debug("question repeated", "session_id", id, "number", sess.CurrentQuestionNumber)
	return text, nil
}

// SubmitAudioChunk appends PCM16 samples to the active recording. Chunks that
// arrive outside RECORDING are discarded with model.ErrNotRecording.
func (e *Engine) SubmitAudioChunk(id string, samples []byte) error {
	_, err := e.store.MutateAtomically(id, func(s *model.Session) error {
		if s.Phase != model.PhaseRecording {
			return model.ErrNotRecording
		}
		if err := s.Audio.Append(samples); err != nil {
			return fmt.Errorf("%w: %v", model.ErrInvalidAudio, err)
		}
		return nil
	})
	switch {
	case err == nil:
		e.metrics.ChunksReceived.Inc()
	case errors.Is(err, model.ErrNotRecording):
		e.metrics.ChunksDropped.Inc()
		e.reject(id, "chunk", err)
	}
	return err
}

// RequestStop ends the recording once the minimum answer time has passed.
// The session moves to FINALIZING; the driver (or a direct Finalize call)
// then produces the QA record.
func (e *Engine) RequestStop(id string) error {
	now := e.clock.Now()
	_, err := e.store.MutateAtomically(id, func(s *model.Session) error {
		if s.Phase != model.PhaseRecording {
			return model.ErrNotRecording
		}
		if now.Sub(s.RecordingStartedAt) < s.Timing.StopButton {
			return model.ErrStopTooEarly
		}
		s.Phase = model.PhaseFinalizing
		return nil
	})
	if err != nil {
		if model.IsRejection(err) {
			e.reject(id, "stop", err)
		}
		return err
	}
	e.metrics.RecordPhase(string(model.PhaseFinalizing))
	e.logger.Info("recording stopped by candidate", "session_id", id)
	return nil
}

// PollState returns the driver-facing view of the session.
func (e *Engine) PollState(id string) (*model.StateView, error) {
	sess, err := e.store.Get(id)
	if err != nil {
		return nil, err
	}
	if sess.Unusable {
		return nil, fmt.Errorf("%w: %s", model.ErrSessionUnusable, sess.UnusableReason)
	}
	return stateView(sess, e.clock.Now()), nil
}

// ListSessions returns the view of every live session, oldest first.
func (e *Engine) ListSessions() []*model.StateView {
	now := e.clock.Now()
	sessions := e.store.List()
	views := make([]*model.StateView, 0, len(sessions))
	for _, sess := range sessions {
		if sess.Unusable {
			continue
		}
		views = append(views, stateView(sess, now))
	}
	return views
}

// GetResults scores a completed interview.
func (e *Engine) GetResults(id string) (*model.Results, error) {
	sess, err := e.store.Get(id)
	if err != nil {
		return nil, err
	}
	return results(sess)
}

func results(sess *model.Session) (*model.Results, error) {
	if sess.Unusable {
		return nil, fmt.Errorf("%w: %s", model.ErrSessionUnusable, sess.UnusableReason)
	}
	if sess.Phase != model.PhaseComplete {
		return nil, model.ErrNotComplete
	}
	final, err := score.FinalScore(sess.QARecords)
	if err != nil {
		return nil, err
	}
	return &model.Results{
		SessionID:     sess.ID,
		CandidateName: sess.CandidateName,
		JobTitle:      sess.JobTitle,
		InterviewType: sess.InterviewType,
		FinalScore:    final,
		Percentage:    score.Percentage(final),
		QARecords:     sess.QARecords,
		StartedAt:     sess.StartedAt,
		CompletedAt:   sess.CompletedAt,
	}, nil
}

// SaveInterview hands a completed interview to the archive and deletes the
// session once the archive has accepted it.
func (e *Engine) SaveInterview(ctx context.Context, id string) (string, error) {
	if e.archive == nil {
		return "", fmt.Errorf("no archive configured")
	}
	sess, err := e.store.MutateAtomically(id, func(s *model.Session) error {
		if s.SaveInFlight {
			return model.ErrSaveInFlight
		}
		if _, err := results(s); err != nil {
			return err
		}
		s.SaveInFlight = true
		return nil
	})
	if err != nil {
		if model.IsRejection(err) {
			e.reject(id, "save", err)
		}
		return "", err
	}
	res, err := results(sess)
	if err != nil {
		return "", err
	}

	rec := &model.InterviewRecord{
		CandidateName: res.CandidateName,
		JobTitle:      res.JobTitle,
		InterviewType: res.InterviewType,
		FinalScore:    res.FinalScore,
		StartTime:     res.StartedAt,
		CompletedAt:   res.CompletedAt,
		CreatedAt:     e.clock.Now(),
		Questions:     res.QARecords,
	}
	recID, err := e.archive.Save(ctx, rec)
	if err != nil {
		_, _ = e.store.MutateAtomically(id, func(s *model.Session) error {
			s.SaveInFlight = false
			return nil
		})
		return "", fmt.Errorf("saving interview: %w", err)
	}

	e.removeSession(id)
	e.metrics.InterviewsSaved.Inc()
	e.logger.Info("interview saved", "session_id", id, "interview_id", recID, "final_score", res.FinalScore)

	if e.notifier != nil && e.notifier.Len() > 0 {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			nctx, cancel := context.WithTimeout(e.background(), e.config.CallTimeout)
			defer cancel()
			e.notifier.InterviewSaved(nctx, rec)
		}()
	}
	return recID, nil
}

// ListInterviews returns archived interviews, newest first.
func (e *Engine) ListInterviews(ctx context.Context) ([]*model.InterviewRecord, error) {
	if e.archive == nil {
		return nil, nil
	}
	return e.archive.List(ctx)
}

// GetInterview returns one archived interview with its questions.
func (e *Engine) GetInterview(ctx context.Context, id string) (*model.InterviewRecord, error) {
	if e.archive == nil {
		return nil, fmt.Errorf("%w: %s", model.ErrInterviewNotFound, id)
	}
	return e.archive.Get(ctx, id)
}

// Schema returns the archive DDL.
func (e *Engine) Schema() string {
	if e.archive == nil {
		return ""
	}
	return e.archive.Schema()
}

// Synthesize renders text with the configured speaker.
func (e *Engine) Synthesize(ctx context.Context, text string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.CallTimeout)
	defer cancel()
	return e.collab.Speaker.Speak(ctx, text)
}

// TranscribeAudio transcribes an uploaded clip with the configured transcriber.
func (e *Engine) TranscribeAudio(ctx context.Context, data []byte) (string, error) {
	if e.collab.Transcriber == nil {
		return "", fmt.Errorf("no transcriber configured")
	}
	ctx, cancel := context.WithTimeout(ctx, e.config.CallTimeout)
	defer cancel()
	return e.collab.Transcriber.Transcribe(ctx, data)
}

// --- Helpers ---

// nextQuestion asks the generator for a question, falling back to a generic
// one when it fails.
func (e *Engine) nextQuestion(ctx context.Context, sessionID string, req interviewer.QuestionRequest) string {
	if e.collab.Questions == nil {
		e.metrics.Questions.WithLabelValues(metrics.OutcomeFallback).Inc()
		return interviewer.FallbackQuestion
	}
	ctx, cancel := context.WithTimeout(ctx, e.config.CallTimeout)
	defer cancel()
	q, err := e.collab.Questions.GenerateQuestion(ctx, req)
	if err != nil || strings.TrimSpace(q) == "" {
		e.logger.Warn("question generation failed, using fallback", "session_id", sessionID, "number", req.Number, "error", err)
		e.metrics.Questions.WithLabelValues(metrics.OutcomeFallback).Inc()
		return interviewer.FallbackQuestion
	}
	e.metrics.Questions.WithLabelValues(metrics.OutcomeOK).Inc()
	return q
}

// speak renders text; a failure is reported as a warning and the question is
// delivered as text only.
func (e *Engine) speak(ctx context.Context, sessionID, text string) []byte {
	ctx, cancel := context.WithTimeout(ctx, e.config.CallTimeout)
	defer cancel()
	audio, err := e.collab.Speaker.Speak(ctx, text)
	if err != nil {
		e.logger.Warn("speech synthesis failed", "session_id", sessionID, "error", err)
		e.emit(sessionID, model.EventWarning, "speech unavailable: question delivered as text", nil)
		return nil
	}
	return audio
}

func (e *Engine) emit(sessionID, eventType, data string, audio []byte) {
	e.bus.Publish(sessionID, &model.Event{
		SessionID: sessionID,
		Type:      eventType,
		Data:      data,
		Audio:     audio,
		CreatedAt: e.clock.Now().UTC(),
	})
}

func (e *Engine) emitJSON(sessionID, eventType string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		e.logger.Error("encoding event", "session_id", sessionID, "type", eventType, "error", err)
		return
	}
	e.emit(sessionID, eventType, string(data), nil)
}

func (e *Engine) reject(sessionID, op string, err error) {
	e.metrics.RecordRejection(op, model.RejectionReason(err))
	e.logger.Debug("request rejected", "session_id", sessionID, "op", op, "reason", err)
}

// fail records a mutation error. Unusable sessions are surfaced on the event
// stream once, when the invariant check first fails.
func (e *Engine) fail(sessionID string, err error) {
	if errors.Is(err, model.ErrSessionUnusable) {
		e.metrics.SessionsUnusable.Inc()
		e.emit(sessionID, model.EventError, err.Error(), nil)
	}
}

func (e *Engine) removeSession(id string) {
	if err := e.store.Delete(id); err == nil {
		e.metrics.ActiveSessions.Dec()
	}
	e.stopDriver(id)
	e.bus.Close(id)
}

// background returns the engine's run context, or Background when the engine
// has not been started.
func (e *Engine) background() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx != nil {
		return e.ctx
	}
	return context.Background()
}

func repeatAllowed(s *model.Session, now time.Time) bool {
	return s.Phase == model.PhaseRepeatWindowOpen && now.Sub(s.QuestionPresentedAt) <= s.Timing.RepeatWindow
}

func stateView(s *model.Session, now time.Time) *model.StateView {
	v := &model.StateView{
		SessionID:             s.ID,
		Phase:                 s.Phase,
		CurrentQuestionNumber: s.CurrentQuestionNumber,
		TotalQuestions:        s.Timing.TotalQuestions,
		CurrentQuestionText:   s.CurrentQuestionText,
	}
	switch s.Phase {
	case model.PhaseRepeatWindowOpen:
		v.RemainingSeconds = ceilSeconds(s.Timing.RepeatWindow - now.Sub(s.QuestionPresentedAt))
		v.RepeatAllowed = repeatAllowed(s, now)
	case model.PhaseCountdown:
		v.RemainingSeconds = ceilSeconds(s.Timing.Countdown - now.Sub(s.CountdownStartedAt))
	case model.PhaseRecording:
		elapsed := now.Sub(s.RecordingStartedAt)
		remaining := s.Timing.RecordMax - elapsed
		v.RemainingSeconds = ceilSeconds(remaining)
		v.StopAllowed = elapsed >= s.Timing.StopButton
		if remaining <= s.Timing.Preview {
			v.PartialTranscript = s.PartialTranscript
		}
	}
	return v
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
