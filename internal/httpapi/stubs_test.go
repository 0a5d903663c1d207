package httpapi

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/jxucoder/TeleInterview/internal/engine"
	"github.com/jxucoder/TeleInterview/pkg/archive/sqlite"
	"github.com/jxucoder/TeleInterview/pkg/clock"
	"github.com/jxucoder/TeleInterview/pkg/eventbus"
	"github.com/jxucoder/TeleInterview/pkg/interviewer"
	"github.com/jxucoder/TeleInterview/pkg/model"
	"github.com/jxucoder/TeleInterview/pkg/store/memory"
)

// stubInterviewer numbers its questions and scores every answer 9.
type stubInterviewer struct{}

func (stubInterviewer) GenerateQuestion(_ context.Context, req interviewer.QuestionRequest) (string, error) {
	return fmt.Sprintf("Question %d?", req.Number), nil
}

func (stubInterviewer) EvaluateAnswer(_ context.Context, _ interviewer.EvaluationRequest) (interviewer.Evaluation, error) {
	return interviewer.Evaluation{Score: 9, Feedback: "clear and specific"}, nil
}

// stubSpeech returns an MP3-looking payload and a fixed transcript.
type stubSpeech struct{}

func (stubSpeech) Speak(_ context.Context, text string) ([]byte, error) {
	return append([]byte("ID3"), text...), nil
}

func (stubSpeech) Transcribe(_ context.Context, audio []byte) (string, error) {
	return fmt.Sprintf("heard %d bytes", len(audio)), nil
}

var epoch = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func testTiming() model.Timing {
	return model.Timing{
		TotalQuestions: 1,
		RepeatWindow:   10 * time.Second,
		RecordMax:      30 * time.Second,
		StopButton:     5 * time.Second,
		Preview:        5 * time.Second,
		Chunk:          time.Second,
		PartialEvery:   5 * time.Second,
		Countdown:      3 * time.Second,
	}
}

type fixture struct {
	srv *Server
	eng *engine.Engine
	clk *clock.Fake
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	arch, err := sqlite.New(filepath.Join(t.TempDir(), "interviews.db"))
	if err != nil {
		t.Fatalf("opening archive: %v", err)
	}
	t.Cleanup(func() { arch.Close() })

	clk := clock.NewFake(epoch)
	eng := engine.New(engine.Config{Timing: testTiming()},
		memory.New(clk, nil), eventbus.NewInMemoryBus(), arch,
		engine.Collaborators{
			Questions:   stubInterviewer{},
			Evaluator:   stubInterviewer{},
			Speaker:     stubSpeech{},
			Transcriber: stubSpeech{},
		},
		engine.WithClock(clk))
	t.Cleanup(eng.Stop)

	return &fixture{srv: New(eng, nil), eng: eng, clk: clk}
}

// tick drives the session's state machine once at the fake clock's time.
func (f *fixture) tick(t *testing.T, id string) model.Action {
	t.Helper()
	a, err := f.eng.Tick(context.Background(), id, f.clk.Now())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	return a
}

// toRecording delivers the question and runs the repeat window and countdown.
func (f *fixture) toRecording(t *testing.T, id string) {
	t.Helper()
	f.tick(t, id)
	f.clk.Advance(11 * time.Second)
	f.tick(t, id)
	f.clk.Advance(3 * time.Second)
	if a := f.tick(t, id); a != model.ActionRecordChunk {
		t.Fatalf("expected recording, got %s", a)
	}
}
