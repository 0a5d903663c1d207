// Package audio holds the per-recording capture state of an interview answer:
// the ordered chunk buffer, the transcription cadence that decides when a
// partial or final transcript is due, and the PCM-16 WAV framing handed to
// speech-to-text providers.
package audio
