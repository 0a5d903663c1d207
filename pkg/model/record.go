package model

import "time"

// StateView is the driver-facing snapshot returned by PollState.
type StateView struct {
	SessionID             string `json:"session_id"`
	Phase                 Phase  `json:"phase"`
	CurrentQuestionNumber int    `json:"current_question_number"`
	TotalQuestions        int    `json:"total_questions"`
	CurrentQuestionText   string `json:"current_question_text"`
	// RemainingSeconds counts down whichever timer governs the phase: the
	// repeat window, the countdown, or the recording budget.
	RemainingSeconds  int    `json:"remaining_seconds"`
	RepeatAllowed     bool   `json:"repeat_allowed"`
	StopAllowed       bool   `json:"stop_allowed"`
	PartialTranscript string `json:"partial_transcript,omitempty"`
}

// Results is the scored outcome of a completed interview.
type Results struct {
	SessionID     string        `json:"session_id"`
	CandidateName string        `json:"candidate_name"`
	JobTitle      string        `json:"job_title"`
	InterviewType InterviewType `json:"interview_type"`
	FinalScore    float64       `json:"final_score"`
	Percentage    float64       `json:"percentage"`
	QARecords     []QARecord    `json:"qa_records"`
	StartedAt     time.Time     `json:"started_at"`
	CompletedAt   time.Time     `json:"completed_at"`
}

// InterviewRecord is a completed interview handed off to persistence.
type InterviewRecord struct {
	ID            string        `json:"id"`
	CandidateName string        `json:"candidate_name"`
	JobTitle      string        `json:"job_title"`
	InterviewType InterviewType `json:"interview_type"`
	FinalScore    float64       `json:"final_score"`
	StartTime     time.Time     `json:"start_time"`
	CompletedAt   time.Time     `json:"completed_at"`
	CreatedAt     time.Time     `json:"created_at"`
	Questions     []QARecord    `json:"questions,omitempty"`
}
