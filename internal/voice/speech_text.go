package voice

import (
	"regexp"
	"strings"
	"unicode"
)

// speechRewrites run in order before the rune pass. Code is dropped, link
// labels are kept, bare URLs are dropped.
var speechRewrites = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile("(?s)```.*?```"), " "},
	{regexp.MustCompile("`[^`]*`"), " "},
	{regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`), "$1"},
	{regexp.MustCompile(`https?://\S+`), " "},
}

type speechRune int

const (
	speechKeep speechRune = iota
	speechDrop
	speechGap
)

func classifySpeechRune(r rune) speechRune {
	switch r {
	case '.', ',', '!', '?', ':', ';', '\'', '"', '-', '(', ')':
		return speechKeep
	case '\u200d', '\ufe0f', '\u20e3':
		return speechDrop
	case '|', '~', '<', '>':
		return speechGap
	}
	switch {
	case unicode.IsSpace(r):
		return speechGap
	case unicode.IsControl(r):
		return speechDrop
	case unicode.In(r, unicode.So, unicode.Sm, unicode.Sk):
		// emoji and math symbols read badly through TTS
		return speechDrop
	case unicode.IsPunct(r):
		return speechGap
	}
	return speechKeep
}

// SanitizeSpeechText turns model output into plain words for synthesis:
// markdown, code, URLs and emoji are removed and whitespace collapses to
// single spaces.
func SanitizeSpeechText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	for _, rw := range speechRewrites {
		raw = rw.re.ReplaceAllString(raw, rw.repl)
	}

	var b strings.Builder
	b.Grow(len(raw))
	gap := true
	for _, r := range raw {
		switch classifySpeechRune(r) {
		case speechKeep:
			b.WriteRune(r)
			gap = false
		case speechGap:
			if !gap {
				b.WriteByte(' ')
				gap = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}
