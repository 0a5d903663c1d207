package engine

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jxucoder/TeleInterview/pkg/model"
)

// partialJob is a partial transcription scheduled by a RECORDING tick.
type partialJob struct {
	generation int
	seq        int
	pcm        []byte
}

// Tick evaluates the session's timers at now, performs the transition they
// call for and returns what the driver should do next. Ticks for one session
// must not run concurrently; different sessions are independent.
func (e *Engine) Tick(ctx context.Context, id string, now time.Time) (model.Action, error) {
	sess, err := e.store.Get(id)
	if err != nil {
		return model.ActionTerminate, err
	}
	if sess.Unusable {
		return model.ActionTerminate, model.ErrSessionUnusable
	}

	switch sess.Phase {
	case model.PhaseAwaitingQuestionSpeech:
		return e.deliverQuestion(ctx, id, now)
	case model.PhaseRepeatWindowOpen:
		return e.tickRepeatWindow(id, now)
	case model.PhaseCountdown:
		return e.tickCountdown(id, now)
	case model.PhaseRecording:
		return e.tickRecording(id, now)
	case model.PhaseFinalizing:
		if sess.FinalizeInFlight {
			return model.ActionNone, nil
		}
		return model.ActionFinalize, nil
	case model.PhaseNextQuestion:
		return e.advance(id)
	case model.PhaseComplete:
		return model.ActionTerminate, nil
	default:
		return model.ActionNone, nil
	}
}

// deliverQuestion speaks the current question exactly once and opens the
// repeat window.
func (e *Engine) deliverQuestion(ctx context.Context, id string, now time.Time) (model.Action, error) {
	var text string
	_, err := e.mutate(id, func(s *model.Session) error {
		if s.Phase != model.PhaseAwaitingQuestionSpeech || s.SpeechInFlight {
			return errNoop
		}
		s.SpeechInFlight = true
		text = s.CurrentQuestionText
		return nil
	})
	if err != nil {
		return noop(err)
	}

	audio := e.speak(ctx, id, text)
	// The repeat window runs from the end of delivery, not the start of the tick.
	presented := e.clock.Now()
	if presented.Before(now) {
		presented = now
	}

	sess, err := e.mutate(id, func(s *model.Session) error {
		s.SpeechInFlight = false
		s.Phase = model.PhaseRepeatWindowOpen
		s.QuestionPresentedAt = presented
		return nil
	})
	if err != nil {
		return model.ActionTerminate, err
	}
	e.emit(id, model.EventQuestion, text, audio)
	e.metrics.RecordPhase(string(model.PhaseRepeatWindowOpen))
	e.logger.Debug("question delivered", "session_id", id, "number", sess.CurrentQuestionNumber)
	return model.ActionSpeakQuestion, nil
}

// tickRepeatWindow closes the repeat window once it has fully elapsed and
// starts the countdown.
func (e *Engine) tickRepeatWindow(id string, now time.Time) (model.Action, error) {
	var seconds int
	_, err := e.mutate(id, func(s *model.Session) error {
		if s.Phase != model.PhaseRepeatWindowOpen || now.Sub(s.QuestionPresentedAt) <= s.Timing.RepeatWindow {
			return errNoop
		}
		s.Phase = model.PhaseCountdown
		s.CountdownStartedAt = now
		seconds = ceilSeconds(s.Timing.Countdown)
		s.CountdownShown = seconds
		return nil
	})
	if err != nil {
		return noop(err)
	}
	e.metrics.RecordPhase(string(model.PhaseCountdown))
	e.emit(id, model.EventCountdown, strconv.Itoa(seconds), nil)
	return model.ActionShowCountdown, nil
}

// tickCountdown emits one event per remaining second and starts recording
// when the countdown is over.
func (e *Engine) tickCountdown(id string, now time.Time) (model.Action, error) {
	var (
		started bool
		shown   int
	)
	_, err := e.mutate(id, func(s *model.Session) error {
		if s.Phase != model.PhaseCountdown {
			return errNoop
		}
		left := s.Timing.Countdown - now.Sub(s.CountdownStartedAt)
		if left <= 0 {
			s.Phase = model.PhaseRecording
			s.RecordingStartedAt = now
			s.Audio.Reset()
			s.PartialTranscript = ""
			s.Cadence.Reset()
			s.RecordingGeneration++
			s.PreviewShown = false
			s.CountdownShown = 0
			started = true
			return nil
		}
		secs := ceilSeconds(left)
		if secs == s.CountdownShown {
			return errNoop
		}
		s.CountdownShown = secs
		shown = secs
		return nil
	})
	if err != nil {
		return noop(err)
	}
	if started {
		e.metrics.RecordPhase(string(model.PhaseRecording))
		e.emit(id, model.EventRecording, "", nil)
		e.logger.Debug("recording started", "session_id", id)
		return model.ActionRecordChunk, nil
	}
	e.emit(id, model.EventCountdown, strconv.Itoa(shown), nil)
	return model.ActionShowCountdown, nil
}

// tickRecording enforces the recording budget, schedules partial
// transcriptions on the cadence and reveals the preview near the end.
func (e *Engine) tickRecording(id string, now time.Time) (model.Action, error) {
	var (
		job        *partialJob
		expired    bool
		preview    bool
		revealNow  bool
		previewTxt string
	)
	_, err := e.mutate(id, func(s *model.Session) error {
		if s.Phase != model.PhaseRecording {
			return errNoop
		}
		elapsed := now.Sub(s.RecordingStartedAt)
		remaining := s.Timing.RecordMax - elapsed
		if remaining <= 0 {
			s.Phase = model.PhaseFinalizing
			expired = true
			return nil
		}
		if s.Cadence.PartialDue(elapsed) && !s.Audio.Empty() {
			s.PartialSeq++
			job = &partialJob{generation: s.RecordingGeneration, seq: s.PartialSeq, pcm: s.Audio.Bytes()}
		}
		if remaining <= s.Timing.Preview {
			preview = true
			if !s.PreviewShown {
				s.PreviewShown = true
				revealNow = true
				previewTxt = s.PartialTranscript
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errNoop) {
		return model.ActionTerminate, err
	}
	if errors.Is(err, errNoop) {
		return model.ActionNone, nil
	}

	if expired {
		e.metrics.RecordPhase(string(model.PhaseFinalizing))
		e.logger.Info("recording time limit reached", "session_id", id)
		return model.ActionFinalize, nil
	}
	if job != nil {
		e.schedulePartial(id, *job)
	}
	if revealNow {
		e.emit(id, model.EventPreview, previewTxt, nil)
	}
	if preview {
		return model.ActionShowPreview, nil
	}
	return model.ActionRecordChunk, nil
}

// advance moves a session from NEXT_QUESTION back to awaiting delivery.
func (e *Engine) advance(id string) (model.Action, error) {
	_, err := e.mutate(id, func(s *model.Session) error {
		if s.Phase != model.PhaseNextQuestion {
			return errNoop
		}
		s.Phase = model.PhaseAwaitingQuestionSpeech
		return nil
	})
	if err != nil {
		return noop(err)
	}
	e.metrics.RecordPhase(string(model.PhaseAwaitingQuestionSpeech))
	return model.ActionAdvance, nil
}

// errNoop aborts a mutation that found nothing to do.
var errNoop = errors.New("no transition")

// mutate wraps MutateAtomically, surfacing newly unusable sessions.
func (e *Engine) mutate(id string, fn func(*model.Session) error) (*model.Session, error) {
	sess, err := e.store.MutateAtomically(id, fn)
	if err != nil && !errors.Is(err, errNoop) {
		e.fail(id, err)
	}
	return sess, err
}

func noop(err error) (model.Action, error) {
	if errors.Is(err, errNoop) {
		return model.ActionNone, nil
	}
	return model.ActionTerminate, err
}
