package hotkey

import (
	"reflect"
	"testing"
)

func TestParseCombo(t *testing.T) {
	tests := []struct {
		in       string
		wantKeys []string
		wantErr  bool
	}{
		{"Ctrl+Shift+Space", []string{"ctrl", "shift", "space"}, false},
		{"shift + control + space", []string{"ctrl", "shift", "space"}, false},
		{"Cmd+R", []string{"cmd", "r"}, false},
		{"Super+Alt+F9", []string{"alt", "cmd", "f9"}, false},
		{"Win+Return", []string{"cmd", "enter"}, false},
		{"Escape", []string{"esc"}, false},
		{"Ctrl+Ctrl+7", []string{"ctrl", "7"}, false},
		{"", nil, true},
		{"Ctrl+Shift", nil, true},
		{"Ctrl+A+B", nil, true},
		{"Ctrl+Banana", nil, true},
		{"Ctrl++A", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			c, err := ParseCombo(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCombo(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got := c.Keys(); !reflect.DeepEqual(got, tt.wantKeys) {
				t.Errorf("Keys() = %v, want %v", got, tt.wantKeys)
			}
		})
	}
}

func TestComboString(t *testing.T) {
	c, err := ParseCombo("CONTROL+shift+Space")
	if err != nil {
		t.Fatal(err)
	}
	if got := c.String(); got != "ctrl+shift+space" {
		t.Errorf("String() = %q, want %q", got, "ctrl+shift+space")
	}
}

func TestListenerToggle(t *testing.T) {
	l := NewListener(Combo{Key: "r"}, "toggle")
	if got := l.toggle(); got != EventStart {
		t.Errorf("first toggle = %v, want EventStart", got)
	}
	if got := l.toggle(); got != EventStop {
		t.Errorf("second toggle = %v, want EventStop", got)
	}
}

func TestListenerEmitNeverBlocks(t *testing.T) {
	l := NewListener(Combo{Key: "r"}, "hold")
	for range cap(l.ch) + 5 {
		l.emit(EventStart)
	}
	if len(l.ch) != cap(l.ch) {
		t.Errorf("queued %d events, want %d", len(l.ch), cap(l.ch))
	}
	l.Stop()
	l.Stop()
}
