package audio

import (
	"encoding/hex"
	"fmt"
	"time"

	"lukechampine.com/blake3"
)

// Buffer accumulates the PCM-16 little-endian mono chunks captured for one
// recording. It is not synchronized; the owning session's lock guards it.
type Buffer struct {
	chunks [][]byte
	size   int
}

// Append copies chunk onto the end of the buffer.
func (b *Buffer) Append(chunk []byte) error {
	if len(chunk) == 0 {
		return fmt.Errorf("empty audio chunk")
	}
	if len(chunk)%2 != 0 {
		return fmt.Errorf("audio data length must be even (got %d bytes)", len(chunk))
	}
	c := make([]byte, len(chunk))
	copy(c, chunk)
	b.chunks = append(b.chunks, c)
	b.size += len(c)
	return nil
}

// Chunks returns the number of chunks captured so far.
func (b *Buffer) Chunks() int { return len(b.chunks) }

// Size returns the total number of captured bytes.
func (b *Buffer) Size() int { return b.size }

// Empty reports whether nothing has been captured.
func (b *Buffer) Empty() bool { return b.size == 0 }

// Bytes returns all chunks concatenated in capture order. The result is a
// fresh slice; mutating it does not affect the buffer.
func (b *Buffer) Bytes() []byte {
	out := make([]byte, 0, b.size)
	for _, c := range b.chunks {
		out = append(out, c...)
	}
	return out
}

// Duration is the captured audio length at the given sample rate.
func (b *Buffer) Duration(sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := b.size / 2
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// Reset drops every captured chunk.
func (b *Buffer) Reset() {
	b.chunks = nil
	b.size = 0
}

// Clone returns a copy that does not observe later Appends or Resets on b.
// Chunks are never written after Append copies them in, so the copy shares
// their backing arrays.
func (b *Buffer) Clone() Buffer {
	cp := Buffer{size: b.size}
	if len(b.chunks) > 0 {
		cp.chunks = make([][]byte, len(b.chunks))
		copy(cp.chunks, b.chunks)
	}
	return cp
}

// Fingerprint returns the hex BLAKE3-256 digest of data. Finalized answers
// carry the fingerprint of the audio they were transcribed from.
func Fingerprint(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
