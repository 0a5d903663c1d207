package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/jxucoder/TeleInterview/internal/metrics"
	"github.com/jxucoder/TeleInterview/pkg/audio"
	"github.com/jxucoder/TeleInterview/pkg/interviewer"
	"github.com/jxucoder/TeleInterview/pkg/model"
	"github.com/jxucoder/TeleInterview/pkg/score"
)

// finalizeClaim is the state captured when a finalize claims a session.
type finalizeClaim struct {
	number   int
	total    int
	question string
	resume   string
	jd       string
	itype    model.InterviewType
	history  []model.Turn
	pcm      []byte
}

// Finalize transcribes and scores the stopped answer, and commits the QA
// record together with the next question. The session must already be in
// FINALIZING, reached through RequestStop or the recording limit; a call
// during RECORDING gets model.ErrStopTooEarly before the stop button unlocks
// and model.ErrWrongPhase after. At most one finalize runs per session; a
// concurrent call gets model.ErrFinalizeInFlight.
//
// Collaborator failures never abort a finalize: a failed transcription yields
// an empty (degraded) answer, a failed evaluation the default score and
// feedback, and a failed question generation the fallback question.
// Cancelling ctx does not cut the collaborator calls short; each is bounded by
// the call timeout instead.
func (e *Engine) Finalize(ctx context.Context, id string) (model.QARecord, error) {
	start := time.Now()
	now := e.clock.Now()
	ctx = context.WithoutCancel(ctx)

	var claim finalizeClaim
	_, err := e.store.MutateAtomically(id, func(s *model.Session) error {
		if s.FinalizeInFlight {
			return model.ErrFinalizeInFlight
		}
		if s.Phase == model.PhaseRecording && now.Sub(s.RecordingStartedAt) < s.Timing.StopButton {
			return model.ErrStopTooEarly
		}
		if s.Phase != model.PhaseFinalizing {
			return model.ErrWrongPhase
		}
		s.FinalizeInFlight = true
		claim = finalizeClaim{
			number:   s.CurrentQuestionNumber,
			total:    s.Timing.TotalQuestions,
			question: s.CurrentQuestionText,
			resume:   s.ResumeText,
			jd:       s.JobDescriptionText,
			itype:    s.InterviewType,
			history:  append([]model.Turn(nil), s.ConversationHistory...),
			pcm:      s.Audio.Bytes(),
		}
		return nil
	})
	if err != nil {
		if model.IsRejection(err) {
			e.reject(id, "finalize", err)
		} else {
			e.fail(id, err)
		}
		return model.QARecord{}, err
	}
	logger := e.logger.With("session_id", id, "number", claim.number)

	rec := model.QARecord{
		Number:    claim.number,
		Question:  claim.question,
		AudioHash: audio.Fingerprint(claim.pcm),
	}

	answer, ok := e.finalTranscribe(ctx, id, claim.pcm)
	rec.Answer = answer
	rec.Degraded = !ok

	ev, ok := e.evaluate(ctx, interviewer.EvaluationRequest{
		Question:       claim.question,
		Answer:         answer,
		JobDescription: claim.jd,
		Type:           claim.itype,
	})
	if !ok {
		logger.Warn("evaluation failed, using default score")
		e.emit(id, model.EventWarning, "evaluation unavailable: default score recorded", nil)
	}
	rec.Score = score.Clamp(ev.Score)
	rec.Feedback = ev.Feedback
	rec.Defaulted = !ok

	last := claim.number >= claim.total
	var next string
	if !last {
		history := append(claim.history, model.Turn{Question: claim.question, Answer: answer})
		next = e.nextQuestion(ctx, id, interviewer.QuestionRequest{
			Resume:         claim.resume,
			JobDescription: claim.jd,
			Type:           claim.itype,
			Number:         claim.number + 1,
			Total:          claim.total,
			History:        history,
		})
	}

	now = e.clock.Now()
	var lost bool
	sess, err := e.mutate(id, func(s *model.Session) error {
		if !s.FinalizeInFlight || s.CurrentQuestionNumber != claim.number || s.Phase != model.PhaseFinalizing {
			lost = true
			s.Unusable = true
			s.UnusableReason = fmt.Sprintf("finalize claim lost for question %d", claim.number)
			s.FinalizeInFlight = false
			return nil
		}
		s.QARecords = append(s.QARecords, rec)
		s.ConversationHistory = append(s.ConversationHistory, model.Turn{Question: rec.Question, Answer: rec.Answer})

		s.Audio.Reset()
		s.PartialTranscript = ""
		s.RecordingStartedAt = time.Time{}
		s.CountdownStartedAt = time.Time{}
		s.QuestionPresentedAt = time.Time{}
		s.PreviewShown = false
		s.CountdownShown = 0
		s.RecordingGeneration++
		s.FinalizeInFlight = false

		s.CurrentQuestionNumber++
		if last {
			s.Phase = model.PhaseComplete
			s.CurrentQuestionText = ""
			s.CompletedAt = now
		} else {
			s.Phase = model.PhaseNextQuestion
			s.CurrentQuestionText = next
		}
		return nil
	})
	if err != nil {
		logger.Error("committing answer failed", "error", err)
		return model.QARecord{}, err
	}
	if lost {
		err := fmt.Errorf("%w: %s", model.ErrSessionUnusable, sess.UnusableReason)
		logger.Error("committing answer failed", "error", err)
		e.fail(id, err)
		return model.QARecord{}, err
	}

	e.metrics.FinalizeDuration.Observe(time.Since(start).Seconds())
	e.metrics.AnswerScore.Observe(rec.Score)
	e.metrics.RecordPhase(string(sess.Phase))
	logger.Info("answer finalized", "score", rec.Score, "degraded", rec.Degraded, "defaulted", rec.Defaulted)

	e.emitJSON(id, model.EventAnswer, rec)
	if sess.Phase == model.PhaseComplete {
		if res, err := results(sess); err == nil {
			e.emitJSON(id, model.EventComplete, res)
		}
		logger.Info("interview complete", "answers", len(sess.QARecords))
	}
	return rec, nil
}

// finalTranscribe transcribes the whole recording. It reports false, with an
// empty answer, when there was no audio or the transcriber failed.
func (e *Engine) finalTranscribe(ctx context.Context, id string, pcm []byte) (string, bool) {
	if len(pcm) == 0 {
		e.logger.Warn("no audio captured", "session_id", id)
		e.emit(id, model.EventWarning, "no audio captured for this answer", nil)
		return "", false
	}
	text, err := e.transcribe(ctx, "final", pcm)
	if err != nil {
		e.logger.Warn("final transcription failed", "session_id", id, "error", err)
		e.emit(id, model.EventWarning, "transcription unavailable: answer recorded as empty", nil)
		return "", false
	}
	return text, true
}

// transcribe encodes pcm as WAV and sends it to the transcriber under the
// call timeout.
func (e *Engine) transcribe(ctx context.Context, kind string, pcm []byte) (string, error) {
	if e.collab.Transcriber == nil {
		return "", fmt.Errorf("no transcriber configured")
	}
	wav, err := audio.EncodeWAV(pcm, e.config.SampleRate)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, e.config.CallTimeout)
	defer cancel()

	start := time.Now()
	text, err := e.collab.Transcriber.Transcribe(ctx, wav)
	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = metrics.OutcomeFailed
	}
	e.metrics.RecordTranscription(kind, outcome, time.Since(start).Seconds())
	return text, err
}

// evaluate scores an answer, returning the documented defaults and false on
// failure.
func (e *Engine) evaluate(ctx context.Context, req interviewer.EvaluationRequest) (interviewer.Evaluation, bool) {
	fallback := interviewer.Evaluation{Score: interviewer.DefaultScore, Feedback: interviewer.DefaultFeedback}
	if e.collab.Evaluator == nil {
		e.metrics.Evaluations.WithLabelValues(metrics.OutcomeFallback).Inc()
		return fallback, false
	}
	ctx, cancel := context.WithTimeout(ctx, e.config.CallTimeout)
	defer cancel()
	ev, err := e.collab.Evaluator.EvaluateAnswer(ctx, req)
	if err != nil {
		e.logger.Warn("evaluation failed", "error", err)
		e.metrics.Evaluations.WithLabelValues(metrics.OutcomeFallback).Inc()
		return fallback, false
	}
	e.metrics.Evaluations.WithLabelValues(metrics.OutcomeOK).Inc()
	return ev, true
}
