package hotkey

import (
	"reflect"
	"testing"

	hook "github.com/robotn/gohook"
)

func mustListener(t *testing.T, combo, mode string) *Listener {
	t.Helper()
	c, err := ParseCombo(combo)
	if err != nil {
		t.Fatalf("ParseCombo(%q) error: %v", combo, err)
	}
	l, err := NewListener(c, mode)
	if err != nil {
		t.Fatalf("NewListener(%q, %q) error: %v", combo, mode, err)
	}
	return l
}

func code(t *testing.T, key string) uint16 {
	t.Helper()
	c, ok := hook.Keycode[key]
	if !ok {
		t.Fatalf("no gohook keycode for %q", key)
	}
	return c
}

// drain returns the events queued so far without blocking.
func drain(l *Listener) []EventType {
	var got []EventType
	for {
		select {
		case ev := <-l.ch:
			got = append(got, ev.Type)
		default:
			return got
		}
	}
}

func TestListenerHold(t *testing.T) {
	l := mustListener(t, "Ctrl+Shift+Space", "hold")
	ctrl, shift, space := code(t, "ctrl"), code(t, "shift"), code(t, "space")

	l.press(ctrl)
	l.press(shift)
	if got := drain(l); len(got) != 0 {
		t.Fatalf("partial combo emitted %v", got)
	}
	l.press(space)
	l.press(space) // key repeat
	l.release(shift)
	l.release(ctrl)
	l.release(space)

	want := []EventType{EventStart, EventStop}
	if got := drain(l); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestListenerToggle(t *testing.T) {
	l := mustListener(t, "Ctrl+R", "toggle")
	ctrl, r := code(t, "ctrl"), code(t, "r")

	for range 2 {
		l.press(ctrl)
		l.press(r)
		l.release(r)
		l.release(ctrl)
	}

	want := []EventType{EventStart, EventStop}
	if got := drain(l); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestListenerRebind(t *testing.T) {
	l := mustListener(t, "Ctrl+Shift+Space", "hold")
	ctrl, shift, space, alt, d := code(t, "ctrl"), code(t, "shift"), code(t, "space"), code(t, "alt"), code(t, "d")

	l.press(ctrl)
	l.press(shift)
	l.press(space)

	next, err := ParseCombo("Alt+D")
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Rebind(next, "hold"); err != nil {
		t.Fatalf("Rebind error: %v", err)
	}
	if got := l.Combo().String(); got != "alt+d" {
		t.Errorf("Combo() = %q, want alt+d", got)
	}
	l.release(space)
	l.release(shift)
	l.release(ctrl)

	// The old combo no longer fires.
	l.press(ctrl)
	l.press(shift)
	l.press(space)
	l.release(space)
	l.release(shift)
	l.release(ctrl)

	l.press(alt)
	l.press(d)
	l.release(d)
	l.release(alt)

	want := []EventType{EventStart, EventStop, EventStart, EventStop}
	if got := drain(l); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestListenerRebindInvalidKeepsCombo(t *testing.T) {
	l := mustListener(t, "Ctrl+Shift+Space", "hold")
	c, _ := ParseCombo("Alt+D")
	if err := l.Rebind(c, "sticky"); err == nil {
		t.Fatal("Rebind with unknown mode should fail")
	}
	if got := l.Combo().String(); got != "ctrl+shift+space" {
		t.Errorf("Combo() = %q after failed Rebind, want ctrl+shift+space", got)
	}
}

func TestNewListenerUnknownMode(t *testing.T) {
	c, _ := ParseCombo("Ctrl+R")
	if _, err := NewListener(c, "press"); err == nil {
		t.Error("NewListener with unknown mode should fail")
	}
}

func TestRebindAfterStopDoesNotPanic(t *testing.T) {
	l := mustListener(t, "Ctrl+R", "hold")
	l.press(code(t, "ctrl"))
	l.press(code(t, "r"))
	drain(l)

	// What Start does on exit.
	l.mu.Lock()
	l.closed = true
	close(l.ch)
	l.mu.Unlock()

	c, _ := ParseCombo("Alt+D")
	if err := l.Rebind(c, "hold"); err != nil {
		t.Fatalf("Rebind error: %v", err)
	}
}
