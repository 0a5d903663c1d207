package model

import "errors"

// Not-found and validation errors.
var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrInterviewNotFound    = errors.New("interview not found")
	ErrInvalidInterviewType = errors.New("interview type must be technical or hr")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrInvalidAudio         = errors.New("invalid audio chunk")
)

// Policy rejections. The caller sees these synchronously and the session is
// left unchanged.
var (
	ErrRepeatDisabled   = errors.New("repeat disabled")
	ErrStopTooEarly     = errors.New("too early to stop")
	ErrNotRecording     = errors.New("not recording")
	ErrFinalizeInFlight = errors.New("answer already being finalized")
	ErrWrongPhase       = errors.New("operation not allowed in current phase")
	ErrNotComplete      = errors.New("interview not complete")
	ErrNoAnswers        = errors.New("no answers recorded")
	ErrSaveInFlight     = errors.New("interview already being saved")
)

// ErrSessionUnusable is returned for a session whose state failed an
// invariant check. The session is never repaired.
var ErrSessionUnusable = errors.New("session state is corrupt")

var rejections = []error{
	ErrRepeatDisabled, ErrStopTooEarly, ErrNotRecording, ErrFinalizeInFlight,
	ErrWrongPhase, ErrNotComplete, ErrNoAnswers, ErrSaveInFlight,
}

// IsRejection reports whether err is a policy rejection.
func IsRejection(err error) bool {
	return RejectionReason(err) != ""
}

// RejectionReason returns the message of the policy rejection wrapped in err,
// or "" if err is not a rejection.
func RejectionReason(err error) string {
	for _, target := range rejections {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return ""
}
