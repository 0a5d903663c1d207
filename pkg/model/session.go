// Package model defines the domain types shared across TeleInterview packages.
package model

import (
	"fmt"
	"time"

	"github.com/jxucoder/TeleInterview/pkg/audio"
)

// Phase is the stage of a session's interview state machine.
type Phase string

const (
	PhaseAwaitingQuestionSpeech Phase = "awaiting_question_speech"
	PhaseRepeatWindowOpen       Phase = "repeat_window_open"
	PhaseCountdown              Phase = "countdown"
	PhaseRecording              Phase = "recording"
	PhaseFinalizing             Phase = "finalizing"
	// PhaseNextQuestion is held between a committed answer and the next
	// tick, which moves the session back to PhaseAwaitingQuestionSpeech.
	PhaseNextQuestion Phase = "next_question"
	PhaseComplete     Phase = "complete"
)

// InterviewType selects the style of questions and evaluation.
type InterviewType string

const (
	InterviewTechnical InterviewType = "technical"
	InterviewHR        InterviewType = "hr"
)

// ParseInterviewType validates s as an InterviewType.
func ParseInterviewType(s string) (InterviewType, error) {
	switch InterviewType(s) {
	case InterviewTechnical, InterviewHR:
		return InterviewType(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidInterviewType, s)
	}
}

// Timing is the per-session timing configuration. It is fixed when the
// session is created.
type Timing struct {
	TotalQuestions int           `json:"total_questions" yaml:"total_questions"`
	RepeatWindow   time.Duration `json:"repeat_window" yaml:"repeat_window"`
	RecordMax      time.Duration `json:"record_max" yaml:"record_max"`
	StopButton     time.Duration `json:"stop_button" yaml:"stop_button"`
	Preview        time.Duration `json:"preview" yaml:"preview"`
	Chunk          time.Duration `json:"chunk" yaml:"chunk"`
	PartialEvery   time.Duration `json:"partial_every" yaml:"partial_every"`
	Countdown      time.Duration `json:"countdown" yaml:"countdown"`
}

// DefaultTiming returns the standard interview timing.
func DefaultTiming() Timing {
	return Timing{
		TotalQuestions: 10,
		RepeatWindow:   120 * time.Second,
		RecordMax:      300 * time.Second,
		StopButton:     90 * time.Second,
		Preview:        20 * time.Second,
		Chunk:          1 * time.Second,
		PartialEvery:   5 * time.Second,
		Countdown:      3 * time.Second,
	}
}

// Validate checks that every timing value is usable.
func (t Timing) Validate() error {
	if t.TotalQuestions <= 0 {
		return fmt.Errorf("total questions must be positive, got %d", t.TotalQuestions)
	}
	for name, d := range map[string]time.Duration{
		"repeat window": t.RepeatWindow,
		"record max":    t.RecordMax,
		"chunk":         t.Chunk,
		"partial every": t.PartialEvery,
		"countdown":     t.Countdown,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, d)
		}
	}
	if t.StopButton < 0 || t.Preview < 0 {
		return fmt.Errorf("stop button and preview must not be negative")
	}
	if t.StopButton > t.RecordMax {
		return fmt.Errorf("stop button (%v) exceeds record max (%v)", t.StopButton, t.RecordMax)
	}
	return nil
}

// Turn is one answered question in the conversation history handed to the
// question generator.
type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// QARecord is one finalized question/answer/score/feedback tuple.
type QARecord struct {
	Number   int     `json:"number"`
	Question string  `json:"question"`
	Answer   string  `json:"answer"`
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`

	// AudioHash is the BLAKE3 fingerprint of the recorded answer audio.
	AudioHash string `json:"audio_hash,omitempty"`
	// Degraded marks an answer whose final transcription failed.
	Degraded bool `json:"degraded,omitempty"`
	// Defaulted marks a score/feedback pair substituted after an evaluation failure.
	Defaulted bool `json:"defaulted,omitempty"`
}

// CreateParams are the inputs needed to start an interview session.
type CreateParams struct {
	CandidateName      string
	JobTitle           string
	InterviewType      InterviewType
	ResumeText         string
	JobDescriptionText string
	FirstQuestion      string
	Timing             Timing
	Now                time.Time
}

// Session is one candidate's in-progress or completed interview. It is owned
// by a SessionStore and must only be changed inside MutateAtomically.
type Session struct {
	ID            string        `json:"id"`
	CandidateName string        `json:"candidate_name"`
	JobTitle      string        `json:"job_title"`
	InterviewType InterviewType `json:"interview_type"`

	ResumeText         string `json:"-"`
	JobDescriptionText string `json:"-"`
	Timing             Timing `json:"timing"`

	Phase                 Phase     `json:"phase"`
	CurrentQuestionNumber int       `json:"current_question_number"`
	CurrentQuestionText   string    `json:"current_question_text"`
	QuestionPresentedAt   time.Time `json:"question_presented_at,omitzero"`
	CountdownStartedAt    time.Time `json:"countdown_started_at,omitzero"`
	RecordingStartedAt    time.Time `json:"recording_started_at,omitzero"`
	PartialTranscript     string    `json:"partial_transcript,omitempty"`

	Audio   audio.Buffer  `json:"-"`
	Cadence audio.Cadence `json:"-"`

	// RecordingGeneration increments every time a recording starts, so late
	// partial transcripts from an earlier recording can be discarded.
	RecordingGeneration int `json:"-"`
	// PartialSeq numbers partial transcription attempts; PartialApplied is
	// the highest attempt whose result has been stored.
	PartialSeq     int `json:"-"`
	PartialApplied int `json:"-"`
	// CountdownShown is the last countdown value emitted.
	CountdownShown int  `json:"-"`
	PreviewShown   bool `json:"-"`

	SpeechInFlight   bool `json:"-"`
	FinalizeInFlight bool `json:"-"`
	SaveInFlight     bool `json:"-"`

	ConversationHistory []Turn     `json:"conversation_history"`
	QARecords           []QARecord `json:"qa_records"`

	Unusable       bool   `json:"unusable,omitempty"`
	UnusableReason string `json:"unusable_reason,omitempty"`

	StartedAt   time.Time `json:"started_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CompletedAt time.Time `json:"completed_at,omitzero"`
}

// NewSession builds a freshly started session awaiting delivery of its first
// question.
func NewSession(id string, p CreateParams) *Session {
	return &Session{
		ID:                    id,
		CandidateName:         p.CandidateName,
		JobTitle:              p.JobTitle,
		InterviewType:         p.InterviewType,
		ResumeText:            p.ResumeText,
		JobDescriptionText:    p.JobDescriptionText,
		Timing:                p.Timing,
		Phase:                 PhaseAwaitingQuestionSpeech,
		CurrentQuestionNumber: 1,
		CurrentQuestionText:   p.FirstQuestion,
		Cadence:               audio.NewCadence(p.Timing.PartialEvery, p.Timing.RecordMax),
		StartedAt:             p.Now,
		UpdatedAt:             p.Now,
	}
}

// Clone returns a deep copy that shares no mutable state with s.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Audio = s.Audio.Clone()
	if s.ConversationHistory != nil {
		cp.ConversationHistory = append([]Turn(nil), s.ConversationHistory...)
	}
	if s.QARecords != nil {
		cp.QARecords = append([]QARecord(nil), s.QARecords...)
	}
	return &cp
}

// Complete reports whether every question has been answered.
func (s *Session) Complete() bool {
	return s.Phase == PhaseComplete
}

// Validate checks the session invariants. A non-nil result means the session
// state is corrupt.
func (s *Session) Validate() error {
	total := s.Timing.TotalQuestions
	if s.CurrentQuestionNumber < 1 || s.CurrentQuestionNumber > total+1 {
		return fmt.Errorf("question number %d outside [1, %d]", s.CurrentQuestionNumber, total+1)
	}
	if len(s.QARecords) != s.CurrentQuestionNumber-1 {
		return fmt.Errorf("%d QA records at question %d", len(s.QARecords), s.CurrentQuestionNumber)
	}
	if len(s.ConversationHistory) != len(s.QARecords) {
		return fmt.Errorf("%d history turns but %d QA records", len(s.ConversationHistory), len(s.QARecords))
	}
	for i, rec := range s.QARecords {
		if rec.Number != i+1 {
			return fmt.Errorf("QA record %d has number %d", i, rec.Number)
		}
		if rec.Score < 0 || rec.Score > 10 {
			return fmt.Errorf("QA record %d score %v outside [0, 10]", rec.Number, rec.Score)
		}
		turn := s.ConversationHistory[i]
		if turn.Question != rec.Question || turn.Answer != rec.Answer {
			return fmt.Errorf("history turn %d does not match QA record", i+1)
		}
	}
	if !s.Audio.Empty() && s.Phase != PhaseRecording && s.Phase != PhaseFinalizing {
		return fmt.Errorf("audio buffered in phase %s", s.Phase)
	}
	if (s.Phase == PhaseComplete) != (s.CurrentQuestionNumber == total+1) {
		return fmt.Errorf("phase %s at question %d of %d", s.Phase, s.CurrentQuestionNumber, total)
	}
	return nil
}
