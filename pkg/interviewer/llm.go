package interviewer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jxucoder/TeleInterview/pkg/llm"
	"github.com/jxucoder/TeleInterview/pkg/model"
	"github.com/jxucoder/TeleInterview/pkg/score"
)

// LLM implements QuestionGenerator and AnswerEvaluator over a chat model.
// It returns errors as-is; callers decide on fallbacks.
type LLM struct {
	client llm.Client
	logger *slog.Logger
}

var (
	_ QuestionGenerator = (*LLM)(nil)
	_ AnswerEvaluator   = (*LLM)(nil)
)

// NewLLM creates an LLM-backed interviewer.
func NewLLM(client llm.Client, logger *slog.Logger) *LLM {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLM{client: client, logger: logger.With("component", "interviewer")}
}

// GenerateQuestion asks the model for question req.Number of req.Total.
func (l *LLM) GenerateQuestion(ctx context.Context, req QuestionRequest) (string, error) {
	out, err := llm.CompleteWith(ctx, l.client, questionSystemPrompt, buildQuestionPrompt(req),
		llm.Options{MaxTokens: 300, Temperature: 0.7})
	if err != nil {
		return "", fmt.Errorf("generating question %d: %w", req.Number, err)
	}
	q := cleanQuestion(out)
	if q == "" {
		return "", fmt.Errorf("generating question %d: empty response", req.Number)
	}
	l.logger.Debug("question generated", "number", req.Number, "type", req.Type)
	return q, nil
}

// EvaluateAnswer asks the model to score an answer.
func (l *LLM) EvaluateAnswer(ctx context.Context, req EvaluationRequest) (Evaluation, error) {
	out, err := llm.CompleteWith(ctx, l.client, evaluationSystemPrompt, buildEvaluationPrompt(req),
		llm.Options{MaxTokens: 300, Temperature: 0.5})
	if err != nil {
		return Evaluation{}, fmt.Errorf("evaluating answer: %w", err)
	}
	ev, err := ParseEvaluation(out)
	if err != nil {
		return Evaluation{}, err
	}
	return ev, nil
}

// ParseEvaluation decodes a {"score": n, "feedback": "..."} reply, tolerating
// surrounding prose and markdown fences. The score is clamped to [0, 10].
func ParseEvaluation(raw string) (Evaluation, error) {
	obj := extractJSONObject(raw)
	if obj == "" {
		return Evaluation{}, fmt.Errorf("no JSON object in evaluator response")
	}
	var parsed struct {
		Score    *json.Number `json:"score"`
		Feedback string       `json:"feedback"`
	}
	dec := json.NewDecoder(strings.NewReader(obj))
	dec.UseNumber()
	if err := dec.Decode(&parsed); err != nil {
		return Evaluation{}, fmt.Errorf("parsing evaluation: %w", err)
	}
	if parsed.Score == nil {
		return Evaluation{}, fmt.Errorf("evaluation has no score")
	}
	s, err := parsed.Score.Float64()
	if err != nil {
		return Evaluation{}, fmt.Errorf("evaluation score %q: %w", parsed.Score.String(), err)
	}
	return Evaluation{
		Score:    score.Clamp(s),
		Feedback: strings.TrimSpace(parsed.Feedback),
	}, nil
}

func extractJSONObject(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// cleanQuestion strips quoting and "Question:" labels models sometimes add.
func cleanQuestion(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"Question:", "Q:"} {
		if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
			s = strings.TrimSpace(s[len(prefix):])
		}
	}
	return strings.Trim(s, "\"")
}

func buildQuestionPrompt(req QuestionRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are conducting a %s interview.\n\n", req.Type)
	fmt.Fprintf(&b, "Job Description:\n%s\n\n", req.JobDescription)
	fmt.Fprintf(&b, "Candidate's Resume:\n%s\n", req.Resume)
	if len(req.History) > 0 {
		b.WriteString("\nPrevious Questions and Answers:\n")
		for i, turn := range req.History {
			fmt.Fprintf(&b, "\nQ%d: %s\nA%d: %s\n", i+1, turn.Question, i+1, turn.Answer)
		}
	}
	fmt.Fprintf(&b, "\nThis is question %d out of %d questions total.\n\n", req.Number, req.Total)
	fmt.Fprintf(&b, "Generate ONE relevant %s interview question that:\n", req.Type)
	fmt.Fprintf(&b, "- Is appropriate for question number %d (start easier, get progressively harder)\n", req.Number)
	b.WriteString(`- Relates to the job requirements
- Builds upon previous answers if any
- Is specific and clear
`)
	switch req.Type {
	case model.InterviewHR:
		b.WriteString("- Focuses on soft skills, culture fit and situational scenarios\n")
	default:
		b.WriteString("- Focuses on skills, problem-solving and hands-on engineering experience\n")
	}
	b.WriteString("\nReturn ONLY the question text, nothing else.")
	return b.String()
}

func buildEvaluationPrompt(req EvaluationRequest) string {
	answer := req.Answer
	if strings.TrimSpace(answer) == "" {
		answer = "(no answer was captured)"
	}
	return fmt.Sprintf(`Evaluate this %s interview answer.

Job Requirements:
%s

Question: %s
Answer: %s

Provide:
1. A score from 0-10 (0=poor, 10=excellent)
2. Brief constructive feedback (2-3 sentences)

Consider relevance to the question, depth of knowledge, communication clarity
and alignment with the job requirements.

Return ONLY valid JSON in this exact format:
{"score": 8, "feedback": "Your feedback here"}`, req.Type, req.JobDescription, req.Question, answer)
}

const questionSystemPrompt = `You are an expert technical and HR interviewer. You ask one clear question at a time.`

const evaluationSystemPrompt = `You are an expert interview evaluator. Return only valid JSON.`
