package notify

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jxucoder/TeleInterview/pkg/model"
)

type stubNotifier struct {
	name  string
	err   error
	calls atomic.Int32
}

func (s *stubNotifier) Name() string { return s.name }

func (s *stubNotifier) InterviewSaved(context.Context, *model.InterviewRecord) error {
	s.calls.Add(1)
	return s.err
}

func sampleRecord() *model.InterviewRecord {
	start := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	return &model.InterviewRecord{
		ID:            "rec-1",
		CandidateName: "Lin",
		JobTitle:      "Data Engineer",
		InterviewType: model.InterviewHR,
		FinalScore:    7.5,
		StartTime:     start,
		CompletedAt:   start.Add(42 * time.Minute),
		Questions: []model.QARecord{
			{Number: 1, Question: "Tell me about a conflict.", Score: 7},
			{Number: 2, Question: strings.Repeat("long ", 40), Score: 8},
		},
	}
}

func TestFanout_CallsAllAndCountsFailures(t *testing.T) {
	ok := &stubNotifier{name: "ok"}
	bad := &stubNotifier{name: "bad", err: errors.New("down")}
	f := NewFanout(nil, ok, bad)

	if failed := f.InterviewSaved(context.Background(), sampleRecord()); failed != 1 {
		t.Fatalf("failed = %d, want 1", failed)
	}
	if ok.calls.Load() != 1 || bad.calls.Load() != 1 {
		t.Fatalf("calls ok=%d bad=%d", ok.calls.Load(), bad.calls.Load())
	}
	if f.Len() != 2 {
		t.Fatalf("Len = %d", f.Len())
	}
}

func TestFanout_Empty(t *testing.T) {
	if failed := NewFanout(nil).InterviewSaved(context.Background(), sampleRecord()); failed != 0 {
		t.Fatalf("failed = %d", failed)
	}
}

func TestSummary(t *testing.T) {
	s := Summary(sampleRecord())
	for _, want := range []string{"Lin", "Data Engineer", "hr", "7.50/10", "2 questions", "42m0s", "Q1 7.0", "rec-1", "..."} {
		if !strings.Contains(s, want) {
			t.Errorf("summary missing %q:\n%s", want, s)
		}
	}
}
