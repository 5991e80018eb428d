package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// WhisperBackend wraps a whisper.cpp model for speech-to-text.
type WhisperBackend struct {
	model whisper.Model
	opts  Options
}

// LoadWhisper loads a whisper model from the given path. It satisfies Loader.
func LoadWhisper(path string, opts Options) (Backend, error) {
	return NewWhisperBackend(path, opts)
}

// NewWhisperBackend loads a whisper model from the given path.
// The caller must call Close() when done.
func NewWhisperBackend(modelPath string, opts Options) (*WhisperBackend, error) {
	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("transcribe: load whisper model %q: %w", modelPath, err)
	}
	return &WhisperBackend{model: model, opts: opts}, nil
}

// Close releases the whisper model resources.
func (w *WhisperBackend) Close() error {
	if w.model != nil {
		return w.model.Close()
	}
	return nil
}

// Transcribe runs one full inference pass on a fresh context. Cancellation
// is checked when the encoder is about to start, which is the only point
// whisper.cpp lets callers abort.
func (w *WhisperBackend) Transcribe(ctx context.Context, samples []float32) (string, error) {
	wctx, err := w.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("transcribe: create context: %w", err)
	}

	if w.opts.Language != "" {
		if err := wctx.SetLanguage(w.opts.Language); err != nil {
			return "", fmt.Errorf("transcribe: set language %q: %w", w.opts.Language, err)
		}
	}
	if w.opts.Threads > 0 {
		wctx.SetThreads(w.opts.Threads)
	}
	if w.opts.InitialPrompt != "" {
		wctx.SetInitialPrompt(w.opts.InitialPrompt)
	}

	encoderBegin := func() bool { return ctx.Err() == nil }
	if err := wctx.Process(samples, encoderBegin, nil, nil); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("transcribe: process: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var segments []string
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("transcribe: next segment: %w", err)
		}
		if text := strings.TrimSpace(seg.Text); text != "" {
			segments = append(segments, text)
		}
	}

	return strings.Join(segments, " "), nil
}
