// Package transcribe runs local speech-to-text with whisper.cpp.
//
// An Engine owns one loaded model and serializes inference on it. Preview
// calls are best-effort and never queue behind other work; Final calls wait
// their turn.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrModelUnavailable is returned when no model is loaded.
	ErrModelUnavailable = errors.New("transcribe: model unavailable")
	// ErrBusy is returned by Preview when inference is already running.
	ErrBusy = errors.New("transcribe: engine busy")
)

// Backend converts mono float32 audio at 16kHz to text. Implementations
// need not be safe for concurrent use and should return promptly once ctx
// is cancelled.
type Backend interface {
	Transcribe(ctx context.Context, samples []float32) (string, error)
	Close() error
}

// Options tune decoding.
type Options struct {
	Language      string // "auto" or an ISO code
	Threads       uint
	InitialPrompt string
}

// Loader opens a Backend for the model file at path.
type Loader func(path string, opts Options) (Backend, error)

// Observer receives inference timings. kind is "preview" or "final".
type Observer interface {
	ObserveInference(ctx context.Context, kind string, d time.Duration, err error)
}

// Engine wraps a Backend with model lifecycle and inference scheduling.
type Engine struct {
	modelsDir string
	opts      Options
	loader    Loader
	observer  Observer
	log       *slog.Logger

	// infer is held for the duration of every backend call.
	infer sync.Mutex

	mu      sync.RWMutex
	backend Backend
	path    string
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLoader replaces the whisper loader, mainly for tests.
func WithLoader(l Loader) EngineOption {
	return func(e *Engine) { e.loader = l }
}

// WithObserver records inference timings.
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) { e.observer = o }
}

// NewEngine creates an engine with no model loaded. modelsDir is reported
// to the user as the place models are expected.
func NewEngine(modelsDir string, opts Options, options ...EngineOption) *Engine {
	e := &Engine{
		modelsDir: modelsDir,
		opts:      opts,
		loader:    LoadWhisper,
		log:       slog.With("component", "transcribe"),
	}
	for _, o := range options {
		o(e)
	}
	return e
}

// Load opens the model at path, replacing any loaded model once in-flight
// inference has finished.
func (e *Engine) Load(path string) error {
	start := time.Now()
	b, err := e.loader(path, e.opts)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	e.infer.Lock()
	e.mu.Lock()
	old := e.backend
	e.backend = b
	e.path = path
	e.mu.Unlock()
	e.infer.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			e.log.Warn("closing previous model", "err", err)
		}
	}
	e.log.Info("model loaded", "path", path, "took", time.Since(start).Round(time.Millisecond))
	return nil
}

// Loaded reports whether a model is ready.
func (e *Engine) Loaded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.backend != nil
}

// ModelPath returns the path of the loaded model, or "" if none.
func (e *Engine) ModelPath() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.path
}

// ModelsDir returns the directory where models are expected.
func (e *Engine) ModelsDir() string {
	return e.modelsDir
}

// Preview transcribes samples if the engine is idle. It returns ErrBusy
// instead of waiting, and the context error if ctx is cancelled before
// the encoder starts.
func (e *Engine) Preview(ctx context.Context, samples []float32) (string, error) {
	if !e.Loaded() {
		return "", ErrModelUnavailable
	}
	if !e.infer.TryLock() {
		return "", ErrBusy
	}
	defer e.infer.Unlock()
	return e.run(ctx, "preview", samples)
}

// Final transcribes the complete recording, waiting for any running
// inference to finish first.
func (e *Engine) Final(ctx context.Context, samples []float32) (string, error) {
	if !e.Loaded() {
		return "", ErrModelUnavailable
	}
	e.infer.Lock()
	defer e.infer.Unlock()
	return e.run(ctx, "final", samples)
}

func (e *Engine) run(ctx context.Context, kind string, samples []float32) (string, error) {
	e.mu.RLock()
	b := e.backend
	e.mu.RUnlock()
	if b == nil {
		return "", ErrModelUnavailable
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	start := time.Now()
	text, err := b.Transcribe(ctx, samples)
	if e.observer != nil {
		e.observer.ObserveInference(ctx, kind, time.Since(start), err)
	}
	if err != nil {
		return "", err
	}
	e.log.Debug("inference done", "kind", kind, "samples", len(samples), "took", time.Since(start).Round(time.Millisecond))
	return text, nil
}

// Close releases the loaded model.
func (e *Engine) Close() error {
	e.infer.Lock()
	defer e.infer.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.backend == nil {
		return nil
	}
	err := e.backend.Close()
	e.backend = nil
	e.path = ""
	return err
}
