package audio

import "time"

// Cadence decides when a partial transcription attempt is due during a
// recording and when the recording must be finalized.
//
// A partial attempt is due each time the whole-second elapsed time crosses a
// multiple of PartialEvery. The last attempted multiple is remembered so that
// several ticks inside the same second trigger at most one attempt, and an
// irregular tick that skips the exact second still triggers once.
type Cadence struct {
	PartialEvery time.Duration
	RecordMax    time.Duration

	lastSecond int // last second a partial attempt was made for; 0 means none
}

// NewCadence returns a Cadence with no partial attempt recorded.
func NewCadence(partialEvery, recordMax time.Duration) Cadence {
	return Cadence{PartialEvery: partialEvery, RecordMax: recordMax}
}

// PartialDue reports whether a partial transcription should be attempted at
// elapsed and, if so, records the attempt.
func (c *Cadence) PartialDue(elapsed time.Duration) bool {
	every := int(c.PartialEvery / time.Second)
	if every <= 0 || elapsed < 0 {
		return false
	}
	sec := int(elapsed / time.Second)
	mark := (sec / every) * every
	if mark == 0 || mark <= c.lastSecond {
		return false
	}
	c.lastSecond = mark
	return true
}

// LastAttempted returns the second of the most recent partial attempt.
func (c *Cadence) LastAttempted() int { return c.lastSecond }

// FinalDue reports whether the recording has used its full time budget.
func (c *Cadence) FinalDue(elapsed time.Duration) bool {
	return c.Remaining(elapsed) <= 0
}

// Remaining is the recording time left at elapsed.
func (c *Cadence) Remaining(elapsed time.Duration) time.Duration {
	return c.RecordMax - elapsed
}

// Reset forgets the last partial attempt; used when a new recording starts.
func (c *Cadence) Reset() { c.lastSecond = 0 }
