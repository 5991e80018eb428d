// Package postprocess cleans up raw transcripts before they are formatted
// or injected: filler words are removed and whitespace and punctuation are
// normalized.
package postprocess

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"unicode"
)

// fillers lists filler words and phrases per language, lowercase.
// Ambiguous English words such as "like", "so" and "well" are left out
// because they are usually meaningful in dictated prose.
var fillers = map[string][]string{
	"en": {
		"um", "uh", "uhh", "umm", "hmm", "er", "ah",
		"you know", "i mean", "basically",
	},
	"ru": {
		"ну", "эм", "э", "ээ", "эээ", "ам", "хм", "ммм", "мм",
		"типа", "короче", "как бы", "это самое", "в общем", "так сказать",
		"слушай", "значит", "ну вот",
	},
}

// Languages returns the languages with built-in filler lists.
func Languages() []string {
	langs := make([]string, 0, len(fillers))
	for l := range fillers {
		langs = append(langs, l)
	}
	slices.Sort(langs)
	return langs
}

var (
	spaceBeforePunct    = regexp.MustCompile(`\s+([,.;:!?])`)
	commaBeforeTerminal = regexp.MustCompile(`,+([.!?])`)
	repeatedComma       = regexp.MustCompile(`,{2,}`)
	terminalRun         = regexp.MustCompile(`[.!?]{2,}`)
	leadingPunct        = regexp.MustCompile(`^[\s,.;:!?]+`)
	trailingSeparator   = regexp.MustCompile(`[\s,;:]+$`)
)

// Cleaner removes a fixed set of filler phrases. It is immutable and safe
// for concurrent use.
type Cleaner struct {
	phrases [][]string // longest first
}

// New builds a Cleaner for the given languages plus any extra filler
// phrases. Unknown languages are ignored.
func New(languages []string, extra []string) *Cleaner {
	seen := make(map[string]bool)
	var phrases [][]string
	add := func(p string) {
		words := strings.Fields(strings.ToLower(p))
		if len(words) == 0 {
			return
		}
		key := strings.Join(words, " ")
		if seen[key] {
			return
		}
		seen[key] = true
		phrases = append(phrases, words)
	}
	for _, lang := range languages {
		for _, p := range fillers[lang] {
			add(p)
		}
	}
	for _, p := range extra {
		add(p)
	}
	slices.SortStableFunc(phrases, func(a, b []string) int {
		return cmp.Compare(len(b), len(a))
	})
	return &Cleaner{phrases: phrases}
}

// Clean returns text with filler phrases removed and whitespace and
// punctuation normalized. It does not change case or add punctuation.
// Clean(Clean(s)) == Clean(s).
func (c *Cleaner) Clean(text string) string {
	// Every pass that changes the text removes at least one token, so this
	// terminates. Nested phrases such as "i um mean" need one pass per level.
	cur := normalize(text)
	for {
		next := normalize(join(c.removeFillers(tokenize(cur))))
		if next == cur {
			return cur
		}
		cur = next
	}
}

// token is one whitespace-delimited word split into leading punctuation,
// the word itself, and trailing punctuation.
type token struct {
	prefix, core, suffix string
	lower                string
}

func tokenize(text string) []token {
	fields := strings.Fields(text)
	toks := make([]token, 0, len(fields))
	for _, f := range fields {
		core := strings.TrimLeftFunc(f, unicode.IsPunct)
		prefix := f[:len(f)-len(core)]
		trimmed := strings.TrimRightFunc(core, unicode.IsPunct)
		suffix := core[len(trimmed):]
		toks = append(toks, token{
			prefix: prefix,
			core:   trimmed,
			suffix: suffix,
			lower:  strings.ToLower(trimmed),
		})
	}
	return toks
}

func join(toks []token) string {
	parts := make([]string, len(toks))
	for i, t := range toks {
		parts[i] = t.prefix + t.core + t.suffix
	}
	return strings.Join(parts, " ")
}

// removeFillers drops every filler match in one left-to-right pass. A
// trailing comma on a removed phrase goes with it; sentence-ending
// punctuation moves to the previous kept word.
func (c *Cleaner) removeFillers(toks []token) []token {
	out := make([]token, 0, len(toks))
	for i := 0; i < len(toks); {
		n := c.match(toks, i)
		if n == 0 {
			out = append(out, toks[i])
			i++
			continue
		}
		if term := terminal(toks[i+n-1].suffix); term != "" && len(out) > 0 {
			out[len(out)-1].suffix += term
		}
		i += n
	}
	return out
}

// match returns the length in tokens of the longest filler phrase starting
// at toks[i], or 0. Punctuation inside a phrase breaks the match.
func (c *Cleaner) match(toks []token, i int) int {
	for _, p := range c.phrases {
		if i+len(p) > len(toks) {
			continue
		}
		ok := true
		for k, w := range p {
			t := toks[i+k]
			if t.lower != w ||
				(k < len(p)-1 && t.suffix != "") ||
				(k > 0 && t.prefix != "") {
				ok = false
				break
			}
		}
		if ok {
			return len(p)
		}
	}
	return 0
}

func terminal(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '.' || r == '!' || r == '?' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// collapseTerminal keeps the first mark of a run such as "?!" or "..",
// except that a run of three or more dots is an ellipsis and stays "...".
func collapseTerminal(run string) string {
	if len(run) >= 3 && strings.Trim(run, ".") == "" {
		return "..."
	}
	return run[:1]
}

func normalize(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = spaceBeforePunct.ReplaceAllString(s, "$1")
	s = commaBeforeTerminal.ReplaceAllString(s, "$1")
	s = repeatedComma.ReplaceAllString(s, ",")
	s = terminalRun.ReplaceAllStringFunc(s, collapseTerminal)
	s = leadingPunct.ReplaceAllString(s, "")
	s = trailingSeparator.ReplaceAllString(s, "")
	return s
}
