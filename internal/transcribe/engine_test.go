package transcribe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeBackend struct {
	mu      sync.Mutex
	text    string
	err     error
	calls   int
	block   chan struct{} // if set, Transcribe waits on it or ctx
	started chan struct{}
	closed  bool
}

func (f *fakeBackend) Transcribe(ctx context.Context, samples []float32) (string, error) {
	f.mu.Lock()
	f.calls++
	block, started := f.block, f.started
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.text, f.err
}

func (f *fakeBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func loaderFor(b Backend) Loader {
	return func(string, Options) (Backend, error) { return b, nil }
}

func TestEngineUnloaded(t *testing.T) {
	e := NewEngine("/models", Options{})

	if e.Loaded() {
		t.Fatal("Loaded() = true before Load")
	}
	if e.ModelsDir() != "/models" {
		t.Errorf("ModelsDir() = %q, want /models", e.ModelsDir())
	}
	if _, err := e.Preview(context.Background(), []float32{0}); !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("Preview() error = %v, want ErrModelUnavailable", err)
	}
	if _, err := e.Final(context.Background(), []float32{0}); !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("Final() error = %v, want ErrModelUnavailable", err)
	}
}

func TestEngineLoadFailure(t *testing.T) {
	e := NewEngine("", Options{}, WithLoader(func(string, Options) (Backend, error) {
		return nil, errors.New("no such file")
	}))

	err := e.Load("/missing.bin")
	if !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("Load() error = %v, want ErrModelUnavailable", err)
	}
	if e.Loaded() {
		t.Error("Loaded() = true after failed Load")
	}
}

func TestEngineFinal(t *testing.T) {
	fb := &fakeBackend{text: "hello world"}
	e := NewEngine("", Options{}, WithLoader(loaderFor(fb)))
	if err := e.Load("model.bin"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if e.ModelPath() != "model.bin" {
		t.Errorf("ModelPath() = %q, want model.bin", e.ModelPath())
	}

	text, err := e.Final(context.Background(), make([]float32, 16000))
	if err != nil {
		t.Fatalf("Final() error = %v", err)
	}
	if text != "hello world" {
		t.Errorf("Final() = %q, want %q", text, "hello world")
	}
}

func TestEnginePreviewBusy(t *testing.T) {
	fb := &fakeBackend{text: "x", block: make(chan struct{}), started: make(chan struct{}, 1)}
	e := NewEngine("", Options{}, WithLoader(loaderFor(fb)))
	if err := e.Load("m"); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := e.Final(context.Background(), nil)
		done <- err
	}()
	<-fb.started

	if _, err := e.Preview(context.Background(), nil); !errors.Is(err, ErrBusy) {
		t.Errorf("Preview() during Final error = %v, want ErrBusy", err)
	}

	close(fb.block)
	if err := <-done; err != nil {
		t.Errorf("Final() error = %v", err)
	}
}

func TestEnginePreviewCancelUnblocksFinal(t *testing.T) {
	fb := &fakeBackend{text: "final", block: make(chan struct{}), started: make(chan struct{}, 2)}
	e := NewEngine("", Options{}, WithLoader(loaderFor(fb)))
	if err := e.Load("m"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	previewErr := make(chan error, 1)
	go func() {
		_, err := e.Preview(ctx, nil)
		previewErr <- err
	}()
	<-fb.started

	cancel()
	if err := <-previewErr; !errors.Is(err, context.Canceled) {
		t.Errorf("Preview() error = %v, want context.Canceled", err)
	}

	close(fb.block)
	finalDone := make(chan string, 1)
	go func() {
		text, _ := e.Final(context.Background(), nil)
		finalDone <- text
	}()
	select {
	case text := <-finalDone:
		if text != "final" {
			t.Errorf("Final() = %q, want %q", text, "final")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Final() blocked after preview was cancelled")
	}
}

func TestEnginePreviewCancelledBeforeStart(t *testing.T) {
	fb := &fakeBackend{text: "x"}
	e := NewEngine("", Options{}, WithLoader(loaderFor(fb)))
	if err := e.Load("m"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Preview(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Preview() error = %v, want context.Canceled", err)
	}
	if fb.calls != 0 {
		t.Errorf("backend called %d times, want 0", fb.calls)
	}
}

func TestEngineLoadReplacesAndClose(t *testing.T) {
	first := &fakeBackend{text: "one"}
	second := &fakeBackend{text: "two"}
	backends := []Backend{first, second}
	e := NewEngine("", Options{}, WithLoader(func(string, Options) (Backend, error) {
		b := backends[0]
		backends = backends[1:]
		return b, nil
	}))

	if err := e.Load("a"); err != nil {
		t.Fatal(err)
	}
	if err := e.Load("b"); err != nil {
		t.Fatal(err)
	}
	if !first.closed {
		t.Error("previous backend not closed on reload")
	}

	text, err := e.Final(context.Background(), nil)
	if err != nil || text != "two" {
		t.Errorf("Final() = %q, %v; want %q", text, err, "two")
	}

	if err := e.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !second.closed || e.Loaded() {
		t.Error("Close() should release the backend")
	}
}

type recordingObserver struct {
	mu    sync.Mutex
	kinds []string
}

func (o *recordingObserver) ObserveInference(_ context.Context, kind string, _ time.Duration, _ error) {
	o.mu.Lock()
	o.kinds = append(o.kinds, kind)
	o.mu.Unlock()
}

func TestEngineObserver(t *testing.T) {
	obs := &recordingObserver{}
	e := NewEngine("", Options{}, WithLoader(loaderFor(&fakeBackend{})), WithObserver(obs))
	if err := e.Load("m"); err != nil {
		t.Fatal(err)
	}
	_, _ = e.Preview(context.Background(), nil)
	_, _ = e.Final(context.Background(), nil)

	if len(obs.kinds) != 2 || obs.kinds[0] != "preview" || obs.kinds[1] != "final" {
		t.Errorf("observed kinds = %v, want [preview final]", obs.kinds)
	}
}
