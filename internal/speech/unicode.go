package speech

import (
	"regexp"
	"strconv"
	"unicode"
	"unicode/utf16"
)

var escapedRune = regexp.MustCompile(`\\u([0-9a-fA-F]{4})(?:\\u([0-9a-fA-F]{4}))?`)

// DecodeUnicodeEscapes replaces literal \uXXXX sequences (including UTF-16
// surrogate pairs) with the characters they name. Text without escapes is
// returned unchanged.
func DecodeUnicodeEscapes(s string) string {
	return escapedRune.ReplaceAllStringFunc(s, func(m string) string {
		sub := escapedRune.FindStringSubmatch(m)
		hi := hexRune(sub[1])
		if sub[2] == "" {
			return string(hi)
		}
		lo := hexRune(sub[2])
		if utf16.IsSurrogate(hi) {
			if r := utf16.DecodeRune(hi, lo); r != unicode.ReplacementChar {
				return string(r)
			}
		}
		return string(hi) + string(lo)
	})
}

func hexRune(h string) rune {
	v, _ := strconv.ParseUint(h, 16, 32)
	return rune(v)
}
