package model

import "time"

// Event types published on a session's output channel.
const (
	EventQuestion  = "question"  // question text (and speech audio) delivered
	EventRepeat    = "repeat"    // question re-delivered inside the repeat window
	EventCountdown = "countdown" // seconds until recording starts
	EventRecording = "recording" // recording started
	EventPreview   = "preview"   // live partial transcript
	EventAnswer    = "answer"    // answer finalized and scored
	EventComplete  = "complete"  // last answer scored
	EventWarning   = "warning"   // recoverable collaborator failure
	EventError     = "error"     // session became unusable
)

// Event is a single output-channel message for a session.
type Event struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Type      string    `json:"type"`
	Data      string    `json:"data"`
	Audio     []byte    `json:"audio,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Action is what the driver must do after a tick.
type Action string

const (
	ActionNone          Action = "none"
	ActionSpeakQuestion Action = "speak_question"
	ActionShowCountdown Action = "show_countdown"
	ActionRecordChunk   Action = "record_chunk"
	ActionShowPreview   Action = "show_preview"
	ActionFinalize      Action = "finalize"
	ActionAdvance       Action = "advance"
	ActionTerminate     Action = "terminate"
)
