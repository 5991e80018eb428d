// Package inject provides text injection into the active application
// using robotgo for keystroke simulation or clipboard paste.
package inject

import (
	"fmt"
	"runtime"
	"time"

	"github.com/go-vgo/robotgo"
)

// pasteSettle is how long the target app gets to read the clipboard before
// the previous contents are restored.
const pasteSettle = 300 * time.Millisecond

// keyboard is the OS input surface the Injector drives.
type keyboard interface {
	Type(text string)
	ReadClipboard() (string, error)
	WriteClipboard(text string) error
	KeyTap(key string, modifier string) error
}

type robotKeyboard struct{}

func (robotKeyboard) Type(text string)                  { robotgo.Type(text) }
func (robotKeyboard) ReadClipboard() (string, error)    { return robotgo.ReadAll() }
func (robotKeyboard) WriteClipboard(text string) error  { return robotgo.WriteAll(text) }
func (robotKeyboard) KeyTap(key, modifier string) error { return robotgo.KeyTap(key, modifier) }

// Injector handles typing or pasting text into the active application.
type Injector struct {
	method string // "type" or "paste"
	kb     keyboard
	settle time.Duration
	mod    string
}

// NewInjector creates an Injector with the given method.
// method must be "type" (keystroke simulation) or "paste" (clipboard).
func NewInjector(method string) *Injector {
	return &Injector{
		method: method,
		kb:     robotKeyboard{},
		settle: pasteSettle,
		mod:    pasteModifier(runtime.GOOS),
	}
}

// pasteModifier returns the modifier of the platform paste chord.
func pasteModifier(goos string) string {
	if goos == "darwin" {
		return "cmd"
	}
	return "ctrl"
}

// Method returns the configured injection method.
func (inj *Injector) Method() string {
	return inj.method
}

// Inject sends text to the active application using the configured method.
func (inj *Injector) Inject(text string) error {
	if text == "" {
		return nil
	}

	switch inj.method {
	case "paste":
		return inj.paste(text)
	default: // "type"
		return inj.typeText(text)
	}
}

// typeText simulates individual keystrokes. Preserves clipboard contents
// but is slower for long text.
func (inj *Injector) typeText(text string) error {
	inj.kb.Type(text)
	return nil
}

// paste copies text to the clipboard, sends the paste chord and then puts
// the previous clipboard contents back.
func (inj *Injector) paste(text string) error {
	prev, _ := inj.kb.ReadClipboard()

	if err := inj.kb.WriteClipboard(text); err != nil {
		return fmt.Errorf("inject: write to clipboard: %w", err)
	}

	if err := inj.kb.KeyTap("v", inj.mod); err != nil {
		return fmt.Errorf("inject: key tap %s+v: %w", inj.mod, err)
	}

	time.Sleep(inj.settle)

	// Best effort.
	_ = inj.kb.WriteClipboard(prev)

	return nil
}
