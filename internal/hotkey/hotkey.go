// Package hotkey provides a global hotkey listener using gohook.
// It supports "hold" mode (press to start, release to stop) and
// "toggle" mode (press to start, press again to stop). The combo and mode
// can be replaced while the listener runs.
package hotkey

import (
	"fmt"
	"sync"

	hook "github.com/robotn/gohook"
)

// EventType indicates whether recording should start or stop.
type EventType int

const (
	// EventStart signals that the hotkey was activated (start recording).
	EventStart EventType = iota
	// EventStop signals that the hotkey was deactivated (stop recording).
	EventStop
)

// Event is emitted on the channel returned by Events.
type Event struct {
	Type EventType
}

// binding is a combo resolved to gohook keycodes.
type binding struct {
	combo Combo
	mode  string
	codes []uint16
}

func resolve(c Combo, mode string) (binding, error) {
	switch mode {
	case "hold", "toggle":
	default:
		return binding{}, fmt.Errorf("hotkey: unknown mode %q", mode)
	}
	keys := c.Keys()
	codes := make([]uint16, 0, len(keys))
	for _, k := range keys {
		code, ok := hook.Keycode[k]
		if !ok {
			return binding{}, fmt.Errorf("hotkey: no keycode for %q", k)
		}
		codes = append(codes, code)
	}
	return binding{combo: c, mode: mode, codes: codes}, nil
}

// Listener manages a global hotkey and emits start/stop events.
type Listener struct {
	ch   chan Event
	done chan struct{}
	once sync.Once

	mu      sync.Mutex
	bind    binding
	pressed map[uint16]bool
	held    bool // every key of the combo is down
	toggled bool
	closed  bool
}

// NewListener creates a Listener for the given combo and mode.
// mode must be "hold" or "toggle".
func NewListener(combo Combo, mode string) (*Listener, error) {
	b, err := resolve(combo, mode)
	if err != nil {
		return nil, err
	}
	return &Listener{
		ch:      make(chan Event, 16),
		done:    make(chan struct{}),
		bind:    b,
		pressed: make(map[uint16]bool),
	}, nil
}

// Events returns the channel that receives hotkey events.
// The channel is closed when the listener stops.
func (l *Listener) Events() <-chan Event {
	return l.ch
}

// Combo returns the current combo.
func (l *Listener) Combo() Combo {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bind.combo
}

// Rebind switches to a new combo and mode. A hold in progress is released
// first so a recording started by the old combo is not left running.
func (l *Listener) Rebind(combo Combo, mode string) error {
	b, err := resolve(combo, mode)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held && l.bind.mode == "hold" {
		l.emit(EventStop)
	}
	l.bind = b
	l.held = false
	if mode == "hold" {
		l.toggled = false
	}
	return nil
}

// Start begins listening for the global hotkey.
// This function blocks until Stop is called. Run it in a goroutine.
func (l *Listener) Start() {
	evChan := hook.Start()
	defer func() {
		l.mu.Lock()
		l.closed = true
		close(l.ch)
		l.mu.Unlock()
	}()
	for {
		select {
		case <-l.done:
			hook.End()
			return
		case ev, ok := <-evChan:
			if !ok {
				return
			}
			switch ev.Kind {
			case hook.KeyDown, hook.KeyHold:
				l.press(ev.Keycode)
			case hook.KeyUp:
				l.release(ev.Keycode)
			}
		}
	}
}

func (l *Listener) press(code uint16) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pressed[code] = true
	if l.held || !l.allPressed() {
		return
	}
	l.held = true
	if l.bind.mode == "toggle" {
		l.toggled = !l.toggled
		if !l.toggled {
			l.emit(EventStop)
			return
		}
	}
	l.emit(EventStart)
}

func (l *Listener) release(code uint16) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.pressed, code)
	if !l.held || !l.inCombo(code) {
		return
	}
	l.held = false
	if l.bind.mode == "hold" {
		l.emit(EventStop)
	}
}

func (l *Listener) allPressed() bool {
	for _, c := range l.bind.codes {
		if !l.pressed[c] {
			return false
		}
	}
	return true
}

func (l *Listener) inCombo(code uint16) bool {
	for _, c := range l.bind.codes {
		if c == code {
			return true
		}
	}
	return false
}

// emit never blocks the hook thread; events are dropped if nobody reads.
// Callers hold l.mu.
func (l *Listener) emit(t EventType) {
	if l.closed {
		return
	}
	select {
	case l.ch <- Event{Type: t}:
	default:
	}
}

// Stop terminates the hotkey listener.
// It is safe to call multiple times.
func (l *Listener) Stop() {
	l.once.Do(func() {
		close(l.done)
	})
}
