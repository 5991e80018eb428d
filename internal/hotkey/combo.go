package hotkey

import (
	"fmt"
	"strings"
)

// Combo is a parsed hotkey: zero or more modifiers plus exactly one key,
// using gohook key names.
type Combo struct {
	Modifiers []string
	Key       string
}

// modifierAliases maps accepted spellings to gohook modifier names.
var modifierAliases = map[string]string{
	"ctrl":    "ctrl",
	"control": "ctrl",
	"shift":   "shift",
	"alt":     "alt",
	"option":  "alt",
	"super":   "cmd",
	"win":     "cmd",
	"meta":    "cmd",
	"cmd":     "cmd",
	"command": "cmd",
}

// modifierOrder fixes the order of modifiers in Keys and String.
var modifierOrder = []string{"ctrl", "shift", "alt", "cmd"}

// keyAliases maps accepted spellings to gohook key names.
var keyAliases = map[string]string{
	"space":     "space",
	"enter":     "enter",
	"return":    "enter",
	"tab":       "tab",
	"esc":       "esc",
	"escape":    "esc",
	"backspace": "backspace",
	"delete":    "delete",
	"del":       "delete",
	"insert":    "insert",
	"home":      "home",
	"end":       "end",
	"pageup":    "pageup",
	"pagedown":  "pagedown",
	"up":        "up",
	"down":      "down",
	"left":      "left",
	"right":     "right",
	"`":         "`",
	"backquote": "`",
	"-":         "-",
	"minus":     "-",
	"=":         "=",
	"equal":     "=",
	"[":         "[",
	"]":         "]",
	"\\":        "\\",
	";":         ";",
	"semicolon": ";",
	"'":         "'",
	"quote":     "'",
	",":         ",",
	"comma":     ",",
	".":         ".",
	"period":    ".",
	"/":         "/",
	"slash":     "/",
}

func init() {
	for c := 'a'; c <= 'z'; c++ {
		keyAliases[string(c)] = string(c)
	}
	for c := '0'; c <= '9'; c++ {
		keyAliases[string(c)] = string(c)
	}
	for i := 1; i <= 12; i++ {
		k := fmt.Sprintf("f%d", i)
		keyAliases[k] = k
	}
}

// ParseCombo parses strings like "Ctrl+Shift+Space". Parts are
// case-insensitive and surrounding whitespace is ignored.
func ParseCombo(s string) (Combo, error) {
	if strings.TrimSpace(s) == "" {
		return Combo{}, fmt.Errorf("hotkey: empty combo")
	}

	mods := make(map[string]bool)
	var key string
	for _, part := range strings.Split(s, "+") {
		p := strings.ToLower(strings.TrimSpace(part))
		if p == "" {
			return Combo{}, fmt.Errorf("hotkey: empty part in %q", s)
		}
		if m, ok := modifierAliases[p]; ok {
			mods[m] = true
			continue
		}
		k, ok := keyAliases[p]
		if !ok {
			return Combo{}, fmt.Errorf("hotkey: unknown key %q in %q", part, s)
		}
		if key != "" {
			return Combo{}, fmt.Errorf("hotkey: multiple keys in %q", s)
		}
		key = k
	}
	if key == "" {
		return Combo{}, fmt.Errorf("hotkey: no key in %q", s)
	}

	c := Combo{Key: key}
	for _, m := range modifierOrder {
		if mods[m] {
			c.Modifiers = append(c.Modifiers, m)
		}
	}
	return c, nil
}

// Keys returns the gohook key list for hook.Register.
func (c Combo) Keys() []string {
	keys := make([]string, 0, len(c.Modifiers)+1)
	keys = append(keys, c.Modifiers...)
	return append(keys, c.Key)
}

// String returns the normalized form, e.g. "ctrl+shift+space".
func (c Combo) String() string {
	return strings.Join(c.Keys(), "+")
}
