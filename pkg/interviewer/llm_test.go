package interviewer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jxucoder/TeleInterview/pkg/model"
)

// stubLLM records the last prompt and returns a canned reply.
type stubLLM struct {
	reply      string
	err        error
	lastSystem string
	lastUser   string
}

func (s *stubLLM) Complete(_ context.Context, system, user string) (string, error) {
	s.lastSystem, s.lastUser = system, user
	return s.reply, s.err
}

// ---------------------------------------------------------------------------
// ParseEvaluation
// ---------------------------------------------------------------------------

func TestParseEvaluation(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantScore float64
		wantFB    string
		wantErr   bool
	}{
		{"plain", `{"score": 8, "feedback": "Good depth."}`, 8, "Good depth.", false},
		{"fenced", "```json\n{\"score\": 6.5, \"feedback\": \"ok\"}\n```", 6.5, "ok", false},
		{"bare fence", "```\n{\"score\": 4, \"feedback\": \"thin\"}\n```", 4, "thin", false},
		{"prose around", `Here you go: {"score": 9, "feedback": "great"} thanks`, 9, "great", false},
		{"string score", `{"score": "7", "feedback": "fine"}`, 7, "fine", false},
		{"clamped high", `{"score": 14, "feedback": "x"}`, 10, "x", false},
		{"clamped low", `{"score": -2, "feedback": "x"}`, 0, "x", false},
		{"no json", `I think it was a 7`, 0, "", true},
		{"no score", `{"feedback": "missing"}`, 0, "", true},
		{"bad score", `{"score": "high", "feedback": "x"}`, 0, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEvaluation(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseEvaluation: %v", err)
			}
			if got.Score != tt.wantScore || got.Feedback != tt.wantFB {
				t.Fatalf("got %+v, want score=%v feedback=%q", got, tt.wantScore, tt.wantFB)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// GenerateQuestion
// ---------------------------------------------------------------------------

func TestGenerateQuestion_PromptCarriesHistory(t *testing.T) {
	stub := &stubLLM{reply: "Question: \"How do you size a worker pool?\""}
	l := NewLLM(stub, nil)

	q, err := l.GenerateQuestion(context.Background(), QuestionRequest{
		Resume:         "Go, Postgres",
		JobDescription: "Backend role",
		Type:           model.InterviewTechnical,
		Number:         3,
		Total:          5,
		History: []model.Turn{
			{Question: "Q one", Answer: "A one"},
			{Question: "Q two", Answer: "A two"},
		},
	})
	if err != nil {
		t.Fatalf("GenerateQuestion: %v", err)
	}
	if q != "How do you size a worker pool?" {
		t.Fatalf("question = %q", q)
	}
	for _, want := range []string{"question 3 out of 5", "Q2: Q two", "A1: A one", "Backend role", "Go, Postgres"} {
		if !strings.Contains(stub.lastUser, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestGenerateQuestion_Errors(t *testing.T) {
	l := NewLLM(&stubLLM{err: errors.New("down")}, nil)
	if _, err := l.GenerateQuestion(context.Background(), QuestionRequest{Number: 1, Total: 1}); err == nil {
		t.Fatal("expected error from failing client")
	}

	l = NewLLM(&stubLLM{reply: "   "}, nil)
	if _, err := l.GenerateQuestion(context.Background(), QuestionRequest{Number: 1, Total: 1}); err == nil {
		t.Fatal("expected error for empty question")
	}
}

// ---------------------------------------------------------------------------
// EvaluateAnswer
// ---------------------------------------------------------------------------

func TestEvaluateAnswer(t *testing.T) {
	stub := &stubLLM{reply: `{"score": 8, "feedback": "Clear."}`}
	l := NewLLM(stub, nil)

	ev, err := l.EvaluateAnswer(context.Background(), EvaluationRequest{
		Question: "Why Go?",
		Answer:   "",
		Type:     model.InterviewHR,
	})
	if err != nil {
		t.Fatalf("EvaluateAnswer: %v", err)
	}
	if ev.Score != 8 || ev.Feedback != "Clear." {
		t.Fatalf("evaluation = %+v", ev)
	}
	if !strings.Contains(stub.lastUser, "no answer was captured") {
		t.Error("empty answer not called out in prompt")
	}
}

func TestEvaluateAnswer_UnparseableReply(t *testing.T) {
	l := NewLLM(&stubLLM{reply: "seven"}, nil)
	if _, err := l.EvaluateAnswer(context.Background(), EvaluationRequest{}); err == nil {
		t.Fatal("expected parse error")
	}
}
