package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jxucoder/TeleInterview/pkg/clock"
	"github.com/jxucoder/TeleInterview/pkg/eventbus"
	"github.com/jxucoder/TeleInterview/pkg/interviewer"
	"github.com/jxucoder/TeleInterview/pkg/model"
	"github.com/jxucoder/TeleInterview/pkg/store/memory"
)

// --- stubs ---

type stubGenerator struct {
	mu       sync.Mutex
	fail     bool
	requests []interviewer.QuestionRequest
}

func (s *stubGenerator) GenerateQuestion(_ context.Context, req interviewer.QuestionRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req.History = append([]model.Turn(nil), req.History...)
	s.requests = append(s.requests, req)
	if s.fail {
		return "", errors.New("llm down")
	}
	return fmt.Sprintf("Question %d?", req.Number), nil
}

func (s *stubGenerator) calls() []interviewer.QuestionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]interviewer.QuestionRequest(nil), s.requests...)
}

// stubEvaluator returns scores in order; calls listed in failOn fail.
type stubEvaluator struct {
	mu      sync.Mutex
	scores  []float64
	failOn  map[int]bool
	answers []string
}

func (s *stubEvaluator) EvaluateAnswer(_ context.Context, req interviewer.EvaluationRequest) (interviewer.Evaluation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers = append(s.answers, req.Answer)
	n := len(s.answers)
	if s.failOn[n] {
		return interviewer.Evaluation{}, errors.New("evaluator down")
	}
	sc := 5.0
	if n <= len(s.scores) {
		sc = s.scores[n-1]
	}
	return interviewer.Evaluation{Score: sc, Feedback: fmt.Sprintf("feedback %d", n)}, nil
}

func (s *stubEvaluator) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.answers...)
}

// stubSpeaker runs onSpeak, when set, before returning each synthesis.
type stubSpeaker struct {
	mu      sync.Mutex
	texts   []string
	fail    bool
	onSpeak func()
}

func (s *stubSpeaker) Speak(_ context.Context, text string) ([]byte, error) {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	fail, hook := s.fail, s.onSpeak
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	if fail {
		return nil, errors.New("tts down")
	}
	return []byte("ID3" + text), nil
}

func (s *stubSpeaker) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.texts)
}

// stubTranscriber delegates to fn, numbering calls from 1.
type stubTranscriber struct {
	mu sync.Mutex
	n  int
	fn func(ctx context.Context, call int, wav []byte) (string, error)
}

func (s *stubTranscriber) Transcribe(ctx context.Context, wav []byte) (string, error) {
	s.mu.Lock()
	s.n++
	call := s.n
	s.mu.Unlock()
	if s.fn == nil {
		return fmt.Sprintf("answer from %d bytes", len(wav)), nil
	}
	return s.fn(ctx, call, wav)
}

func (s *stubTranscriber) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

type stubArchive struct {
	mu      sync.Mutex
	saved   []*model.InterviewRecord
	failing bool
}

func (a *stubArchive) Save(_ context.Context, rec *model.InterviewRecord) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failing {
		return "", errors.New("disk full")
	}
	rec.ID = fmt.Sprintf("int-%d", len(a.saved)+1)
	a.saved = append(a.saved, rec)
	return rec.ID, nil
}

func (a *stubArchive) List(context.Context) ([]*model.InterviewRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*model.InterviewRecord(nil), a.saved...), nil
}

func (a *stubArchive) Get(_ context.Context, id string) (*model.InterviewRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, r := range a.saved {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, model.ErrInterviewNotFound
}

func (a *stubArchive) Schema() string { return "CREATE TABLE interviews" }
func (a *stubArchive) Close() error   { return nil }

// --- helpers ---

var epoch = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func testTiming() model.Timing {
	return model.Timing{
		TotalQuestions: 3,
		RepeatWindow:   10 * time.Second,
		RecordMax:      30 * time.Second,
		StopButton:     10 * time.Second,
		Preview:        5 * time.Second,
		Chunk:          time.Second,
		PartialEvery:   5 * time.Second,
		Countdown:      3 * time.Second,
	}
}

type harness struct {
	e     *Engine
	clk   *clock.Fake
	store *memory.Store
	bus   *eventbus.InMemoryBus
	gen   *stubGenerator
	eval  *stubEvaluator
	spk   *stubSpeaker
	stt   *stubTranscriber
	arch  *stubArchive
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clk := clock.NewFake(epoch)
	h := &harness{
		clk:   clk,
		store: memory.New(clk, nil),
		bus:   eventbus.NewInMemoryBus(),
		gen:   &stubGenerator{},
		eval:  &stubEvaluator{},
		spk:   &stubSpeaker{},
		stt:   &stubTranscriber{},
		arch:  &stubArchive{},
	}
	h.e = New(Config{Timing: testTiming(), CallTimeout: 5 * time.Second, IdleTimeout: time.Hour},
		h.store, h.bus, h.arch,
		Collaborators{Questions: h.gen, Evaluator: h.eval, Speaker: h.spk, Transcriber: h.stt},
		WithClock(clk))
	t.Cleanup(h.e.Stop)
	return h
}

func (h *harness) start(t *testing.T) string {
	t.Helper()
	resp, err := h.e.StartInterview(context.Background(), StartRequest{
		CandidateName:      "Ada",
		JobTitle:           "Backend Engineer",
		InterviewType:      "technical",
		ResumeText:         "Go, Kafka",
		JobDescriptionText: "Build services",
	})
	if err != nil {
		t.Fatalf("StartInterview: %v", err)
	}
	return resp.SessionID
}

func (h *harness) tick(t *testing.T, id string) model.Action {
	t.Helper()
	action, err := h.e.Tick(context.Background(), id, h.clk.Now())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	return action
}

func (h *harness) session(t *testing.T, id string) *model.Session {
	t.Helper()
	sess, err := h.store.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := sess.Validate(); err != nil {
		t.Fatalf("invariant violated: %v", err)
	}
	return sess
}

// toRecording delivers the question, lets the repeat window lapse and runs
// the countdown.
func (h *harness) toRecording(t *testing.T, id string) {
	t.Helper()
	if a := h.tick(t, id); a != model.ActionSpeakQuestion {
		t.Fatalf("first tick = %s, want %s", a, model.ActionSpeakQuestion)
	}
	h.clk.Advance(testTiming().RepeatWindow + time.Second)
	if a := h.tick(t, id); a != model.ActionShowCountdown {
		t.Fatalf("tick after window = %s, want %s", a, model.ActionShowCountdown)
	}
	h.clk.Advance(testTiming().Countdown)
	if a := h.tick(t, id); a != model.ActionRecordChunk {
		t.Fatalf("tick after countdown = %s, want %s", a, model.ActionRecordChunk)
	}
	if p := h.session(t, id).Phase; p != model.PhaseRecording {
		t.Fatalf("phase = %s, want recording", p)
	}
}

// answer records a few chunks, stops and finalizes the current question.
func (h *harness) answer(t *testing.T, id string) model.QARecord {
	t.Helper()
	h.toRecording(t, id)
	for i := 0; i < 3; i++ {
		if err := h.e.SubmitAudioChunk(id, make([]byte, 3200)); err != nil {
			t.Fatalf("SubmitAudioChunk: %v", err)
		}
	}
	h.clk.Advance(testTiming().StopButton)
	if err := h.e.RequestStop(id); err != nil {
		t.Fatalf("RequestStop: %v", err)
	}
	rec, err := h.e.Finalize(context.Background(), id)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	sess := h.session(t, id)
	if sess.Phase == model.PhaseNextQuestion {
		if a := h.tick(t, id); a != model.ActionAdvance {
			t.Fatalf("tick after finalize = %s, want %s", a, model.ActionAdvance)
		}
	}
	return rec
}

// drain collects every event already buffered on ch.
func drain(ch chan *model.Event) []*model.Event {
	var out []*model.Event
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func eventsOfType(evs []*model.Event, typ string) []*model.Event {
	var out []*model.Event
	for _, ev := range evs {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}
