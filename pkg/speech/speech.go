// Package speech defines the text-to-speech and speech-to-text collaborators.
package speech

import (
	"bytes"
	"context"
)

// Speaker renders question text as playable audio.
type Speaker interface {
	Speak(ctx context.Context, text string) ([]byte, error)
}

// Transcriber converts recorded audio to text. Implementations accept any
// container the backing engine understands; the interview engine sends WAV.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Silent is a Speaker that produces no audio. It is used when no TTS backend
// is configured, so questions are delivered as text only.
type Silent struct{}

func (Silent) Speak(context.Context, string) ([]byte, error) { return nil, nil }

// Format guesses an audio container from its leading bytes and returns the
// file extension to upload it under. Unknown data is treated as WAV.
func Format(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("RIFF")):
		return "wav"
	case bytes.HasPrefix(data, []byte("OggS")):
		return "ogg"
	case bytes.HasPrefix(data, []byte("fLaC")):
		return "flac"
	case bytes.HasPrefix(data, []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return "webm"
	case bytes.HasPrefix(data, []byte("ID3")), len(data) > 1 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return "mp3"
	case len(data) > 8 && string(data[4:8]) == "ftyp":
		return "m4a"
	default:
		return "wav"
	}
}
