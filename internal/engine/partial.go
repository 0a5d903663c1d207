package engine

import (
	"errors"

	"github.com/jxucoder/TeleInterview/internal/metrics"
	"github.com/jxucoder/TeleInterview/pkg/model"
)

var errStalePartial = errors.New("stale partial transcript")

// schedulePartial transcribes the audio captured so far in the background.
// The result is kept only if it belongs to the current recording and is newer
// than the transcript already stored.
func (e *Engine) schedulePartial(id string, job partialJob) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runPartial(id, job)
	}()
}

func (e *Engine) runPartial(id string, job partialJob) {
	text, err := e.transcribe(e.background(), "partial", job.pcm)
	if err != nil {
		e.logger.Warn("partial transcription failed", "session_id", id, "seq", job.seq, "error", err)
		e.emit(id, model.EventWarning, "live preview unavailable", nil)
		return
	}

	var visible bool
	_, err = e.store.MutateAtomically(id, func(s *model.Session) error {
		if s.Phase != model.PhaseRecording || s.RecordingGeneration != job.generation || job.seq <= s.PartialApplied {
			return errStalePartial
		}
		s.PartialTranscript = text
		s.PartialApplied = job.seq
		visible = s.PreviewShown
		return nil
	})
	switch {
	case errors.Is(err, errStalePartial):
		e.metrics.Transcriptions.WithLabelValues("partial", metrics.OutcomeStale).Inc()
		e.logger.Debug("discarding stale partial transcript", "session_id", id, "seq", job.seq)
		return
	case err != nil:
		e.logger.Debug("partial transcript not stored", "session_id", id, "error", err)
		return
	}
	if visible {
		e.emit(id, model.EventPreview, text, nil)
	}
}
