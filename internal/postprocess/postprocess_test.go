package postprocess

import (
	"strings"
	"testing"
)

func TestClean(t *testing.T) {
	c := New([]string{"en", "ru"}, nil)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"single filler", "hello um this is a test", "hello this is a test"},
		{"leading filler with comma", "Um, I think, uh, we should go.", "I think, we should go."},
		{"case insensitive", "UM hello", "hello"},
		{"multi-word phrase", "you know it works", "it works"},
		{"terminal punctuation moves back", "It works, you know.", "It works."},
		{"filler only", "Hmm.", ""},
		{"trailing filler drops comma", "hello, um", "hello"},
		{"whole words only", "umbrella human ahead", "umbrella human ahead"},
		{"ambiguous words kept", "I like it so well", "I like it so well"},
		{"whitespace collapsed", "  hello \n\t world  ", "hello world"},
		{"space before punctuation", "hello , world !!", "hello, world!"},
		{"adjacent fillers", "uh um er hello", "hello"},
		{"phrase formed after removal", "you um know it", "it"},
		{"punctuation inside phrase breaks match", "you, know", "you, know"},
		{"russian single", "ну я думаю что это типа работает", "я думаю что это работает"},
		{"russian phrase", "в общем, всё готово", "всё готово"},
		{"russian case", "Короче, поехали", "поехали"},
		{"empty", "", ""},
		{"no change keeps case", "Hello World", "Hello World"},
		{"ellipsis kept", "wait... what", "wait... what"},
		{"long dot run becomes ellipsis", "wait..... what", "wait... what"},
		{"mixed terminal run collapses", "really?!? yes..!", "really? yes."},
		{"ellipsis moves back with filler", "so um... yes", "so... yes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Clean(tt.in); got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCleanLanguageSelection(t *testing.T) {
	en := New([]string{"en"}, nil)
	if got := en.Clean("ну hello um"); got != "ну hello" {
		t.Errorf("en-only Clean = %q, want %q", got, "ну hello")
	}

	ru := New([]string{"ru"}, nil)
	if got := ru.Clean("ну hello um"); got != "hello um" {
		t.Errorf("ru-only Clean = %q, want %q", got, "hello um")
	}

	none := New(nil, nil)
	if got := none.Clean("um  hello"); got != "um hello" {
		t.Errorf("no-language Clean = %q, want %q", got, "um hello")
	}
}

func TestCleanExtraFillers(t *testing.T) {
	c := New([]string{"en"}, []string{"Okay So", "right"})
	if got := c.Clean("okay so right let's start"); got != "let's start" {
		t.Errorf("Clean = %q, want %q", got, "let's start")
	}
}

func TestCleanIdempotent(t *testing.T) {
	c := New([]string{"en", "ru"}, []string{"okay"})
	inputs := []string{
		"hello um this is a test",
		"Um, I think, uh, we should go.",
		"you um know it",
		"so, er, you , know .",
		"okay. okay! done um?",
		"ну вот, это самое, как бы так",
		"a , , b .. c !? um",
		"hello ,um world",
		". , um hi",
		"wait .... what ...",
		// Each "i ... mean" level only becomes a phrase once the inner one is gone.
		strings.Repeat("i ", 20) + "um" + strings.Repeat(" mean", 20) + " hello",
	}
	for _, in := range inputs {
		once := c.Clean(in)
		twice := c.Clean(once)
		if once != twice {
			t.Errorf("Clean not idempotent for %q: once %q, twice %q", in, once, twice)
		}
	}
}

func TestCleanDeeplyNestedPhrase(t *testing.T) {
	c := New([]string{"en"}, nil)
	for _, depth := range []int{1, 16, 17, 40} {
		in := strings.Repeat("i ", depth) + "um" + strings.Repeat(" mean", depth) + " hello"
		if got := c.Clean(in); got != "hello" {
			t.Errorf("depth %d: Clean = %q, want %q", depth, got, "hello")
		}
	}
}

func TestLanguages(t *testing.T) {
	langs := Languages()
	if len(langs) != 2 || langs[0] != "en" || langs[1] != "ru" {
		t.Errorf("Languages() = %v, want [en ru]", langs)
	}
}
