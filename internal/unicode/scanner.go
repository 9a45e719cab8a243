// Package unicode detects character-level smuggling in inbound prompts:
// invisible characters, bidirectional overrides, and Unicode tag characters
// that hide instructions from human reviewers while remaining visible to the
// model. A hit is treated by the prompt risk evaluator as an injection
// signal.
package unicode

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Threat is a single smuggling indicator found in the input.
type Threat struct {
	Category    string // "zero-width", "bidi-override", "tag-char", "control-char", "invalid-utf8"
	Description string
	Position    int    // byte offset in the input
	Codepoint   string // e.g. "U+200B"
}

// ScanResult holds the outcome of a scan.
type ScanResult struct {
	Clean   bool
	Threats []Threat

	// Sanitized is the input with smuggling characters stripped. Scanning
	// the sanitized text again always yields a clean result.
	Sanitized string
}

// Scan inspects prompt text for smuggling indicators.
func Scan(input string) ScanResult {
	result := ScanResult{Clean: true}
	var sanitized strings.Builder

	i := 0
	for i < len(input) {
		r, size := utf8.DecodeRuneInString(input[i:])

		if r == utf8.RuneError && size == 1 {
			result.Clean = false
			result.Threats = append(result.Threats, Threat{
				Category:    "invalid-utf8",
				Description: "invalid UTF-8 byte sequence",
				Position:    i,
				Codepoint:   fmt.Sprintf("0x%02X", input[i]),
			})
			i++
			continue
		}

		if threat, found := classifyRune(r, i); found {
			result.Clean = false
			result.Threats = append(result.Threats, threat)
			i += size
			continue
		}

		sanitized.WriteRune(r)
		i += size
	}

	result.Sanitized = sanitized.String()
	return result
}

func classifyRune(r rune, pos int) (Threat, bool) {
	cp := fmt.Sprintf("U+%04X", r)

	if isZeroWidth(r) {
		return Threat{
			Category:    "zero-width",
			Description: fmt.Sprintf("zero-width character %s can hide prompt content from review", cp),
			Position:    pos,
			Codepoint:   cp,
		}, true
	}

	if isBidiOverride(r) {
		return Threat{
			Category:    "bidi-override",
			Description: fmt.Sprintf("bidirectional override %s can make displayed text differ from evaluated text", cp),
			Position:    pos,
			Codepoint:   cp,
		}, true
	}

	// Unicode tag characters (U+E0001–U+E007F) smuggle invisible ASCII.
	if r >= 0xE0001 && r <= 0xE007F {
		return Threat{
			Category:    "tag-char",
			Description: fmt.Sprintf("Unicode tag character %s can carry hidden instructions", cp),
			Position:    pos,
			Codepoint:   cp,
		}, true
	}

	if isUnsafeControl(r) {
		return Threat{
			Category:    "control-char",
			Description: fmt.Sprintf("control character %s should not appear in prompt text", cp),
			Position:    pos,
			Codepoint:   cp,
		}, true
	}

	return Threat{}, false
}

func isZeroWidth(r rune) bool {
	switch r {
	case '\u200b', // ZERO WIDTH SPACE
		'\u200c', // ZERO WIDTH NON-JOINER
		'\u200d', // ZERO WIDTH JOINER
		'\ufeff', // ZERO WIDTH NO-BREAK SPACE (BOM)
		'\u2060', // WORD JOINER
		'\u180e', // MONGOLIAN VOWEL SEPARATOR
		'\u200e', // LEFT-TO-RIGHT MARK
		'\u200f': // RIGHT-TO-LEFT MARK
		return true
	}
	return false
}

func isBidiOverride(r rune) bool {
	switch r {
	case '\u202a', '\u202b', '\u202c', '\u202d', '\u202e',
		'\u2066', '\u2067', '\u2068', '\u2069':
		return true
	}
	return false
}

func isUnsafeControl(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	if r <= 0x1F || r == 0x7F {
		return true
	}
	// C1 controls
	if r >= 0x80 && r <= 0x9F {
		return true
	}
	return false
}
