// Package interviewer generates interview questions and evaluates answers.
package interviewer

import (
	"context"

	"github.com/jxucoder/TeleInterview/pkg/model"
)

// Values substituted when a collaborator call fails.
const (
	FallbackQuestion = "Tell me about your relevant experience for this role."
	DefaultScore     = 7.0
	DefaultFeedback  = "Unable to provide detailed feedback at this time."
)

// QuestionRequest is the context handed to a QuestionGenerator.
type QuestionRequest struct {
	Resume         string
	JobDescription string
	Type           model.InterviewType
	Number         int
	Total          int
	History        []model.Turn
}

// QuestionGenerator produces the text of the next interview question.
type QuestionGenerator interface {
	GenerateQuestion(ctx context.Context, req QuestionRequest) (string, error)
}

// EvaluationRequest is one answer to score.
type EvaluationRequest struct {
	Question       string
	Answer         string
	JobDescription string
	Type           model.InterviewType
}

// Evaluation is a score on the 0-10 scale with feedback.
type Evaluation struct {
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
}

// AnswerEvaluator scores a candidate's answer.
type AnswerEvaluator interface {
	EvaluateAnswer(ctx context.Context, req EvaluationRequest) (Evaluation, error)
}
