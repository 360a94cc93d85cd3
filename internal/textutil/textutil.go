// Package textutil holds helpers for recognized text: counters shown next to
// the result and the name used when the text is downloaded as a file.
package textutil

import (
	"path"
	"strings"
	"unicode/utf8"
)

const DefaultFilename = "extracted_text.txt"

type Stats struct {
	Chars int `json:"chars"`
	Words int `json:"words"`
	Lines int `json:"lines"`
}

// Count returns character (rune), word and non-blank line counts.
func Count(text string) Stats {
	return Stats{
		Chars: utf8.RuneCountInString(text),
		Words: len(strings.Fields(text)),
		Lines: countLines(text),
	}
}

func countLines(text string) int {
	n := 0
	for _, l := range strings.Split(text, "\n") {
		if strings.TrimSpace(l) != "" {
			n++
		}
	}
	return n
}

// Filename sanitizes a caller supplied download name. Anything outside
// [A-Za-z0-9._-] becomes '_' and the result always ends in .txt.
func Filename(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return DefaultFilename
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		return DefaultFilename
	}
	if !strings.HasSuffix(strings.ToLower(out), ".txt") {
		out += ".txt"
	}
	return out
}
