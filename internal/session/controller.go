// Package session drives one dictation at a time: capture while the hotkey
// is held, preview transcripts while recording, then transcribe, clean,
// format and inject the final text.
//
// All state lives in a single goroutine (Run). Hotkey events, preview ticks,
// capture failures and the results of background work are posted to its
// inbox and handled in order, so notifications come out in exactly the order
// the state changes.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/chaz8081/murmur/internal/audio"
	"github.com/chaz8081/murmur/internal/config"
	"github.com/chaz8081/murmur/internal/format"
	"github.com/chaz8081/murmur/internal/history"
	"github.com/chaz8081/murmur/internal/postprocess"
	"github.com/chaz8081/murmur/internal/sound"
	"github.com/chaz8081/murmur/internal/transcribe"
)

// Deps are the Controller's collaborators. Recorder, Engine, Injector and
// Settings are required.
type Deps struct {
	Recorder  Recorder
	Engine    Transcriber
	Formatter Formatter
	Injector  Injector
	Cues      Cues
	Settings  SettingsSource
	Notifier  Notifier
	History   History
	Metrics   Metrics
}

// Options tune the Controller.
type Options struct {
	// SampleRate is the rate of the samples the Recorder delivers.
	// Default: 16000.
	SampleRate int
	// HistoryTimeout bounds each history write. Default: 2s.
	HistoryTimeout time.Duration
	Logger         *slog.Logger
}

// inbox messages
type (
	hotkeyDown    struct{}
	hotkeyUp      struct{}
	captureFailed struct {
		id  string
		err error
	}
	previewDone struct {
		id   string
		text string
		err  error
	}
	finalDone struct {
		id   string
		text string
		err  error
	}
	formatDone struct {
		id  string
		res format.Result
	}
	injectDone struct {
		id  string
		err error
	}
)

// active is the one session the loop owns.
type active struct {
	id        string
	state     State
	cfg       *config.Config
	buf       *audio.Buffer
	ctx       context.Context
	cancel    context.CancelFunc
	partial   string
	final     string
	formatted string
	provider  format.Provider

	previewCancel context.CancelFunc // non-nil while a preview is in flight
}

// Controller is the dictation state machine.
type Controller struct {
	deps Deps
	opts Options
	log  *slog.Logger

	inbox chan any
	done  chan struct{}

	// loop-owned
	runCtx context.Context
	sess   *active
	timer  *time.Timer
	timerC <-chan time.Time

	state atomic.Int32

	mu   sync.Mutex
	last string
}

// New creates a Controller. Call Run to start processing events.
func New(deps Deps, opts Options) *Controller {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 16000
	}
	if opts.HistoryTimeout <= 0 {
		opts.HistoryTimeout = 2 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if deps.Notifier == nil {
		deps.Notifier = NotifierFunc(func(Event) {})
	}
	return &Controller{
		deps:  deps,
		opts:  opts,
		log:   log.With("component", "session"),
		inbox: make(chan any, 64),
		done:  make(chan struct{}),
	}
}

// Run processes events until ctx is cancelled. An active session is
// abandoned: capture stops and no text is injected. Run must be called once.
func (c *Controller) Run(ctx context.Context) error {
	c.runCtx = ctx
	defer close(c.done)

	if c.deps.History != nil {
		if e, err := c.deps.History.Last(ctx); err != nil {
			c.log.Warn("loading last transcript", "err", err)
		} else if e != nil {
			c.setLast(e.Final)
		}
	}

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case m := <-c.inbox:
			c.handle(m)
		case <-c.timerC:
			c.onPreviewTick()
		}
	}
}

// HotkeyDown starts a session when Idle. It never blocks on session work.
func (c *Controller) HotkeyDown() { c.post(hotkeyDown{}) }

// HotkeyUp ends recording. Ignored unless Recording.
func (c *Controller) HotkeyUp() { c.post(hotkeyUp{}) }

// State returns the current state.
func (c *Controller) State() State { return State(c.state.Load()) }

// LastTranscript returns the text of the most recent completed session.
func (c *Controller) LastTranscript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// ModelLoaded reports whether a transcription model is loaded.
func (c *Controller) ModelLoaded() bool { return c.deps.Engine.Loaded() }

// ModelsDir returns where model files are expected.
func (c *Controller) ModelsDir() string { return c.deps.Engine.ModelsDir() }

// TestSound plays cue with the current settings without starting a session.
func (c *Controller) TestSound(cue sound.Cue) {
	if c.deps.Cues == nil {
		return
	}
	c.deps.Cues.Play(cue, sound.SettingsFrom(c.deps.Settings.Snapshot().Sounds))
}

func (c *Controller) post(m any) {
	select {
	case c.inbox <- m:
	case <-c.done:
	}
}

func (c *Controller) setLast(text string) {
	c.mu.Lock()
	c.last = text
	c.mu.Unlock()
}

func (c *Controller) handle(m any) {
	switch m := m.(type) {
	case hotkeyDown:
		c.onHotkeyDown()
	case hotkeyUp:
		c.onHotkeyUp()
	case captureFailed:
		c.onCaptureFailed(m)
	case previewDone:
		c.onPreviewDone(m)
	case finalDone:
		c.onFinalDone(m)
	case formatDone:
		c.onFormatDone(m)
	case injectDone:
		c.onInjectDone(m)
	default:
		c.log.Error("unknown inbox message", "type", fmt.Sprintf("%T", m))
	}
}

// current returns the session a result belongs to, or nil when the result
// is stale or arrives in a state that no longer expects it.
func (c *Controller) current(id string, want State) *active {
	if c.sess == nil || c.sess.id != id || c.sess.state != want {
		return nil
	}
	return c.sess
}

func (c *Controller) onHotkeyDown() {
	if c.sess != nil {
		c.log.Debug("hotkey down ignored", "state", c.sess.state)
		return
	}

	id := uuid.NewString()
	if !c.deps.Engine.Loaded() {
		c.log.Warn("no model loaded", "models_dir", c.deps.Engine.ModelsDir())
		c.emitError(id, CodeModelUnavailable,
			fmt.Sprintf("no transcription model loaded; place a model in %s", c.deps.Engine.ModelsDir()))
		return
	}

	cfg := c.deps.Settings.Snapshot()
	buf := audio.NewBuffer(c.opts.SampleRate)
	onError := func(err error) { c.post(captureFailed{id: id, err: err}) }
	if err := c.deps.Recorder.Start(buf, onError); err != nil {
		c.log.Error("starting capture", "err", err)
		c.emitError(id, CodeDevice, err.Error())
		return
	}

	ctx, cancel := context.WithCancel(c.runCtx)
	c.sess = &active{id: id, cfg: cfg, buf: buf, ctx: ctx, cancel: cancel}
	if c.deps.Metrics != nil {
		c.deps.Metrics.SessionStarted(ctx)
	}
	c.transition(Recording)
	c.playCue(sound.CueStart)
	c.armPreview(cfg.Audio.MinPreview)
	c.log.Info("recording", "session", id)
}

func (c *Controller) onHotkeyUp() {
	s := c.sess
	if s == nil || s.state != Recording {
		return
	}

	c.stopRecording(s)
	c.playCue(sound.CueStop)
	c.transition(Transcribing)

	samples := s.buf.Take()
	if len(samples) == 0 {
		c.log.Info("no audio captured", "session", s.id)
		c.end(outcomeEmpty)
		return
	}

	c.log.Debug("final transcription", "session", s.id,
		"duration", time.Duration(len(samples))*time.Second/time.Duration(c.opts.SampleRate))
	go func(ctx context.Context, id string) {
		text, err := c.deps.Engine.Final(ctx, samples)
		c.post(finalDone{id: id, text: text, err: err})
	}(s.ctx, s.id)
}

// stopRecording ends capture and leaves the recording phase. After it
// returns no chunk reaches the buffer and no preview result is applied.
func (c *Controller) stopRecording(s *active) {
	c.disarmPreview()
	if s.previewCancel != nil {
		s.previewCancel()
		s.previewCancel = nil
	}
	c.deps.Recorder.Stop()
	s.partial = ""
	c.emit(Event{Type: EventPreview, SessionID: s.id})
}

func (c *Controller) onCaptureFailed(m captureFailed) {
	s := c.current(m.id, Recording)
	if s == nil {
		return
	}
	c.log.Error("capture failed", "session", s.id, "err", m.err)
	c.stopRecording(s)
	c.emitError(s.id, CodeDevice, m.err.Error())
	c.end(outcomeAborted)
}

func (c *Controller) armPreview(after time.Duration) {
	if c.sess.cfg.Audio.PreviewInterval <= 0 {
		return
	}
	if after <= 0 {
		after = time.Millisecond
	}
	if c.timer == nil {
		c.timer = time.NewTimer(after)
	} else {
		c.timer.Reset(after)
	}
	c.timerC = c.timer.C
}

func (c *Controller) disarmPreview() {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timerC = nil
}

func (c *Controller) onPreviewTick() {
	c.timerC = nil
	s := c.sess
	if s == nil || s.state != Recording {
		return
	}
	audioCfg := s.cfg.Audio
	c.armPreview(audioCfg.PreviewInterval)

	if s.previewCancel != nil || s.buf.Duration() < audioCfg.MinPreview {
		return
	}

	window := int(audioCfg.PreviewWindow.Seconds() * float64(c.opts.SampleRate))
	samples := s.buf.Tail(window)
	if len(samples) == 0 {
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	s.previewCancel = cancel
	go func(id string) {
		text, err := c.deps.Engine.Preview(ctx, samples)
		c.post(previewDone{id: id, text: text, err: err})
	}(s.id)
}

func (c *Controller) onPreviewDone(m previewDone) {
	if c.sess == nil || c.sess.id != m.id {
		return
	}
	s := c.sess
	if s.previewCancel != nil {
		s.previewCancel()
		s.previewCancel = nil
	}
	if s.state != Recording {
		return
	}
	if m.err != nil {
		if !errors.Is(m.err, transcribe.ErrBusy) && !errors.Is(m.err, context.Canceled) {
			c.log.Debug("preview failed", "session", s.id, "err", m.err)
		}
		return
	}

	text := strings.TrimSpace(m.text)
	if text == s.partial {
		return
	}
	s.partial = text
	c.emit(Event{Type: EventPreview, SessionID: s.id, Text: text})
}

func (c *Controller) onFinalDone(m finalDone) {
	s := c.current(m.id, Transcribing)
	if s == nil {
		return
	}
	if m.err != nil {
		code := CodeTranscription
		if errors.Is(m.err, transcribe.ErrModelUnavailable) {
			code = CodeModelUnavailable
		}
		c.log.Error("transcription failed", "session", s.id, "err", m.err)
		c.emitError(s.id, code, m.err.Error())
		c.end(outcomeAborted)
		return
	}

	cleaner := postprocess.New(s.cfg.Postprocess.Languages, s.cfg.Postprocess.ExtraFillers)
	s.final = cleaner.Clean(m.text)
	if s.final == "" {
		c.log.Info("empty transcript", "session", s.id)
		c.end(outcomeEmpty)
		return
	}

	s.provider = format.ProviderFromSettings(s.cfg.Formatting)
	if _, none := s.provider.(format.None); none || c.deps.Formatter == nil {
		c.inject(s)
		return
	}

	c.transition(Formatting)
	req := format.Request{Provider: s.provider, Prompt: s.cfg.Formatting.Prompt, Text: s.final}
	go func(ctx context.Context, id string) {
		c.post(formatDone{id: id, res: c.deps.Formatter.Format(ctx, req)})
	}(s.ctx, s.id)
}

func (c *Controller) onFormatDone(m formatDone) {
	s := c.current(m.id, Formatting)
	if s == nil {
		return
	}
	if m.res.Err != nil {
		c.emit(Event{
			Type:      EventNotice,
			SessionID: s.id,
			Code:      CodeFormatting,
			Message:   "formatting failed, using the unformatted transcript: " + m.res.Err.Error(),
		})
	}
	if m.res.Formatted && strings.TrimSpace(m.res.Text) != "" {
		s.formatted = m.res.Text
	}
	c.inject(s)
}

// text returns the formatted text when formatting succeeded, else the
// cleaned transcript.
func (s *active) text() string {
	if s.formatted != "" {
		return s.formatted
	}
	return s.final
}

func (c *Controller) inject(s *active) {
	c.transition(Injecting)
	text := s.text()
	go func(id string) {
		c.post(injectDone{id: id, err: c.deps.Injector.Inject(text)})
	}(s.id)
}

func (c *Controller) onInjectDone(m injectDone) {
	s := c.current(m.id, Injecting)
	if s == nil {
		return
	}
	text := s.text()
	if m.err != nil {
		c.log.Error("injection failed", "session", s.id, "err", m.err)
		c.emitError(s.id, CodeInjection, m.err.Error())
	}

	c.setLast(text)
	c.record(s)
	c.emit(Event{Type: EventComplete, SessionID: s.id, Text: text})
	c.log.Info("session complete", "session", s.id, "formatted", s.formatted != "", "chars", len(text))
	c.end(outcomeCompleted)
}

func (c *Controller) record(s *active) {
	if c.deps.History == nil {
		return
	}
	provider := config.ProviderNone
	if s.provider != nil {
		provider = s.provider.Name()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), c.opts.HistoryTimeout)
	defer cancel()
	err := c.deps.History.Record(ctx, history.Entry{
		SessionID: s.id,
		Raw:       s.final,
		Final:     s.text(),
		Formatted: s.formatted != "",
		Provider:  provider,
		CreatedAt: time.Now(),
	})
	if err != nil {
		c.log.Warn("recording history", "session", s.id, "err", err)
	}
}

// end releases the session and returns to Idle.
func (c *Controller) end(outcome string) {
	s := c.sess
	s.cancel()
	s.buf.Reset()
	c.sess = nil
	c.setState(s.id, Idle)
	if c.deps.Metrics != nil {
		c.deps.Metrics.SessionEnded(context.WithoutCancel(s.ctx), outcome)
	}
}

func (c *Controller) shutdown() {
	s := c.sess
	if s == nil {
		return
	}
	c.log.Info("shutting down, abandoning session", "session", s.id, "state", s.state)
	if s.state == Recording {
		c.stopRecording(s)
	}
	c.end(outcomeAborted)
}

func (c *Controller) transition(st State) {
	c.sess.state = st
	c.setState(c.sess.id, st)
}

func (c *Controller) setState(id string, st State) {
	c.state.Store(int32(st))
	c.emit(Event{Type: EventStatus, SessionID: id, State: st})
}

func (c *Controller) emitError(id, code, msg string) {
	if c.deps.Metrics != nil {
		c.deps.Metrics.SessionError(c.runCtx, code)
	}
	c.emit(Event{Type: EventError, SessionID: id, Code: code, Message: msg})
}

func (c *Controller) emit(e Event) {
	c.deps.Notifier.Notify(e)
}

func (c *Controller) playCue(cue sound.Cue) {
	if c.deps.Cues == nil {
		return
	}
	c.deps.Cues.Play(cue, sound.SettingsFrom(c.sess.cfg.Sounds))
}
