package audio

import (
	"sync"
	"time"
)

// Chunk is one block of mono samples at the engine rate, in capture order.
type Chunk struct {
	Seq     uint64
	At      time.Time
	Samples []float32
}

// Sink receives chunks from a Recorder. Append is called from the audio
// thread and must not block.
type Sink interface {
	Append(c Chunk)
}

// Buffer accumulates the samples of one session in arrival order.
// It is safe for one writer (the capture thread) and concurrent readers.
type Buffer struct {
	sampleRate int

	mu      sync.Mutex
	samples []float32
	chunks  int
	lastSeq uint64
}

// NewBuffer creates an empty buffer for audio at sampleRate Hz.
func NewBuffer(sampleRate int) *Buffer {
	return &Buffer{sampleRate: sampleRate}
}

// Append adds a chunk's samples to the end of the buffer.
func (b *Buffer) Append(c Chunk) {
	if len(c.Samples) == 0 {
		return
	}
	b.mu.Lock()
	b.samples = append(b.samples, c.Samples...)
	b.chunks++
	b.lastSeq = c.Seq
	b.mu.Unlock()
}

// Snapshot returns a copy of everything buffered so far.
func (b *Buffer) Snapshot() []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]float32, len(b.samples))
	copy(out, b.samples)
	return out
}

// Tail returns a copy of the last n samples, or all samples if fewer are
// buffered.
func (b *Buffer) Tail(n int) []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= 0 {
		return nil
	}
	start := max(len(b.samples)-n, 0)
	out := make([]float32, len(b.samples)-start)
	copy(out, b.samples[start:])
	return out
}

// Len returns the number of buffered samples.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

// Chunks returns how many non-empty chunks were appended.
func (b *Buffer) Chunks() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.chunks
}

// Duration returns the buffered audio length.
func (b *Buffer) Duration() time.Duration {
	if b.sampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Len()) * time.Second / time.Duration(b.sampleRate)
}

// Take hands the buffered samples to the caller and empties the buffer.
func (b *Buffer) Take() []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.samples
	b.samples = nil
	b.chunks = 0
	return out
}

// Reset discards all buffered samples.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.samples = nil
	b.chunks = 0
	b.lastSeq = 0
	b.mu.Unlock()
}
