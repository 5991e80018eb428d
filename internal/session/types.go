package session

import (
	"context"
	"fmt"

	"github.com/chaz8081/murmur/internal/audio"
	"github.com/chaz8081/murmur/internal/config"
	"github.com/chaz8081/murmur/internal/format"
	"github.com/chaz8081/murmur/internal/history"
	"github.com/chaz8081/murmur/internal/sound"
)

// State is the Controller's position in a session.
type State int32

const (
	Idle State = iota
	Recording
	Transcribing
	Formatting
	Injecting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Recording:
		return "Recording"
	case Transcribing:
		return "Transcribing"
	case Formatting:
		return "Formatting"
	case Injecting:
		return "Injecting"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// EventType tags a notification.
type EventType string

const (
	EventStatus   EventType = "status"
	EventPreview  EventType = "preview"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
	EventNotice   EventType = "notice"
)

// Error and notice codes.
const (
	CodeDevice           = "device"
	CodeModelUnavailable = "model_unavailable"
	CodeTranscription    = "transcription"
	CodeInjection        = "injection"
	CodeFormatting       = "formatting"
)

// Event is one notification to the display layer. Which fields are set
// depends on Type: State for status, Text for preview and complete, Code and
// Message for error and notice.
type Event struct {
	Type      EventType
	SessionID string
	State     State
	Text      string
	Code      string
	Message   string
}

// Notifier receives events in the order the Controller produces them.
// Notify is called from the Controller's loop and must not block.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) { f(e) }

// Recorder captures microphone audio into a sink.
type Recorder interface {
	Start(sink audio.Sink, onError func(error)) error
	Stop()
}

// Transcriber runs speech recognition.
type Transcriber interface {
	Loaded() bool
	ModelsDir() string
	Preview(ctx context.Context, samples []float32) (string, error)
	Final(ctx context.Context, samples []float32) (string, error)
}

// Formatter rewrites a transcript. It must return the input text when it
// cannot format.
type Formatter interface {
	Format(ctx context.Context, req format.Request) format.Result
}

// Injector delivers text to the focused application.
type Injector interface {
	Inject(text string) error
}

// Cues plays sound cues without blocking.
type Cues interface {
	Play(cue sound.Cue, s sound.Settings)
}

// SettingsSource hands out immutable settings snapshots.
type SettingsSource interface {
	Snapshot() *config.Config
}

// History persists completed sessions.
type History interface {
	Record(ctx context.Context, e history.Entry) error
	Last(ctx context.Context) (*history.Entry, error)
}

// Metrics observes session outcomes.
type Metrics interface {
	SessionStarted(ctx context.Context)
	SessionEnded(ctx context.Context, outcome string)
	SessionError(ctx context.Context, code string)
}

// Session outcomes reported to Metrics.
const (
	outcomeCompleted = "completed"
	outcomeEmpty     = "empty"
	outcomeAborted   = "aborted"
)
