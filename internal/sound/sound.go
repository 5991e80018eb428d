// Package sound plays the start and stop cues that bracket a recording.
package sound

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/chaz8081/murmur/internal/audio"
	"github.com/chaz8081/murmur/internal/config"
)

// Cue identifies a sound.
type Cue int

const (
	// CueStart plays when recording begins.
	CueStart Cue = iota
	// CueStop plays when recording ends.
	CueStop
)

func (c Cue) String() string {
	switch c {
	case CueStart:
		return "start"
	case CueStop:
		return "stop"
	default:
		return fmt.Sprintf("cue(%d)", int(c))
	}
}

// ParseCue maps "start" or "stop" to a Cue.
func ParseCue(s string) (Cue, error) {
	switch s {
	case "start":
		return CueStart, nil
	case "stop":
		return CueStop, nil
	default:
		return 0, fmt.Errorf("sound: unknown cue %q (expected start or stop)", s)
	}
}

// Settings are the cue files and volume in effect for one Play call.
type Settings struct {
	StartPath string
	StopPath  string
	Volume    float32
}

// SettingsFrom extracts cue settings from the config.
func SettingsFrom(cfg config.SoundConfig) Settings {
	return Settings{StartPath: cfg.Start, StopPath: cfg.Stop, Volume: cfg.Volume}
}

func (s Settings) path(c Cue) string {
	if c == CueStart {
		return s.StartPath
	}
	return s.StopPath
}

// toneRate is the sample rate of the built-in chimes.
const toneRate = 44100

// Output plays mono float32 samples, blocking until they have been played.
type Output interface {
	Play(samples []float32, sampleRate uint32) error
	Close() error
}

type command struct {
	cue      Cue
	settings Settings
}

// Player plays cues one at a time on its own goroutine. Play never blocks
// the caller.
type Player struct {
	out Output
	log *slog.Logger

	mu     sync.Mutex
	closed bool
	cmds   chan command
	done   chan struct{}
}

// NewPlayer creates a Player on the default playback device.
func NewPlayer() (*Player, error) {
	out, err := NewMalgoOutput()
	if err != nil {
		return nil, err
	}
	return NewPlayerWithOutput(out), nil
}

// NewPlayerWithOutput creates a Player that renders to out.
func NewPlayerWithOutput(out Output) *Player {
	p := &Player{
		out:  out,
		log:  slog.With("component", "sound"),
		cmds: make(chan command, 4),
		done: make(chan struct{}),
	}
	go p.loop()
	return p
}

// Play queues cue. When the queue is full the cue is dropped.
func (p *Player) Play(cue Cue, s Settings) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.cmds <- command{cue: cue, settings: s}:
	default:
		p.log.Warn("sound queue full, dropping cue", "cue", cue)
	}
}

// Close plays any queued cues, then releases the output device.
func (p *Player) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.cmds)
	p.mu.Unlock()

	<-p.done
	return p.out.Close()
}

func (p *Player) loop() {
	defer close(p.done)
	for cmd := range p.cmds {
		samples, rate := p.render(cmd)
		if err := p.out.Play(samples, rate); err != nil {
			p.log.Warn("playing cue", "cue", cmd.cue, "err", err)
		}
	}
}

// render loads the custom file for the cue, falling back to the built-in
// chime, and applies the volume.
func (p *Player) render(cmd command) ([]float32, uint32) {
	var samples []float32
	var rate uint32
	if path := cmd.settings.path(cmd.cue); path != "" {
		var err error
		samples, rate, err = LoadWAV(path)
		if err != nil {
			p.log.Warn("custom cue unusable, using built-in tone", "path", path, "err", err)
			samples = nil
		}
	}
	if samples == nil {
		samples, rate = Chime(cmd.cue), toneRate
	}
	applyVolume(samples, cmd.settings.Volume)
	return samples, rate
}

// tone is one segment of a chime.
type tone struct {
	freq float64
	dur  time.Duration
	amp  float32
}

var chimes = map[Cue][]tone{
	// Ascending A4 to C#5.
	CueStart: {{440, 60 * time.Millisecond, 0.08}, {554, 80 * time.Millisecond, 0.06}},
	// Descending C#5 to A4.
	CueStop: {{554, 60 * time.Millisecond, 0.08}, {440, 80 * time.Millisecond, 0.06}},
}

const fadeIn = 10 * time.Millisecond

// Chime synthesizes the built-in tone for cue at toneRate.
func Chime(cue Cue) []float32 {
	var out []float32
	fadeSamples := int(math.Round(fadeIn.Seconds() * toneRate))
	for _, t := range chimes[cue] {
		n := int(math.Round(t.dur.Seconds() * toneRate))
		for i := range n {
			v := t.amp * float32(math.Sin(2*math.Pi*t.freq*float64(i)/toneRate))
			if i < fadeSamples {
				v *= float32(i) / float32(fadeSamples)
			}
			out = append(out, v)
		}
	}
	return out
}

func applyVolume(samples []float32, volume float32) {
	volume = min(max(volume, 0), 1)
	for i := range samples {
		samples[i] *= volume
	}
}

// LoadWAV decodes a PCM WAV file to mono float32 samples in [-1, 1].
func LoadWAV(path string) ([]float32, uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("sound: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("sound: %s is not a valid WAV file", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("sound: decode %s: %w", path, err)
	}
	if buf.Format == nil || buf.Format.SampleRate <= 0 {
		return nil, 0, fmt.Errorf("sound: %s has no sample rate", path)
	}
	return intBufferToMono(buf), uint32(buf.Format.SampleRate), nil
}

func intBufferToMono(buf *goaudio.IntBuffer) []float32 {
	depth := buf.SourceBitDepth
	if depth <= 0 {
		depth = 16
	}
	scale := float32(int64(1) << (depth - 1))
	samples := make([]float32, len(buf.Data))
	for i, s := range buf.Data {
		samples[i] = float32(s) / scale
	}
	return audio.ToMono(samples, buf.Format.NumChannels)
}
