package main

import (
	"strings"
	"unicode"
)

// sanitize makes remote text safe to print: control characters (escape
// sequences included) become spaces and emoji joiners, skin tone modifiers
// and variation selectors are dropped so wide glyphs keep a stable width.
func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\t':
			b.WriteRune(r)
		case unicode.IsControl(r):
			b.WriteRune(' ')
		case isJoinerOrModifier(r):
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isJoinerOrModifier(r rune) bool {
	switch {
	case r >= 0x1F3FB && r <= 0x1F3FF: // skin tones
		return true
	case r == 0x200D: // zero width joiner
		return true
	case r >= 0xFE00 && r <= 0xFE0F, r >= 0xE0100 && r <= 0xE01EF:
		return true
	default:
		return false
	}
}
