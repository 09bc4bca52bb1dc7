// Package text holds the string transforms applied at the station boundary:
// color codes, identifier normalization and message placeholders.
package text

import (
	"strings"
	"unicode/utf8"
)

const (
	altColorChar = '&'
	colorChar    = '§'
)

const colorCodes = "0123456789AaBbCcDdEeFfKkLlMmNnOoRrXx"

// Colorize translates '&' color codes into section-sign codes.
func Colorize(s string) string {
	if s == "" || !strings.ContainsRune(s, altColorChar) {
		return s
	}
	rs := []rune(s)
	for i := 0; i < len(rs)-1; i++ {
		if rs[i] == altColorChar && strings.ContainsRune(colorCodes, rs[i+1]) {
			rs[i] = colorChar
			rs[i+1] = toLowerRune(rs[i+1])
		}
	}
	return string(rs)
}

// Decolorize is the inverse of Colorize.
func Decolorize(s string) string {
	if s == "" || !strings.ContainsRune(s, colorChar) {
		return s
	}
	rs := []rune(s)
	for i := 0; i < len(rs)-1; i++ {
		if rs[i] == colorChar && strings.ContainsRune(colorCodes, rs[i+1]) {
			rs[i] = altColorChar
		}
	}
	return string(rs)
}

// StripColor removes section-sign codes entirely.
func StripColor(s string) string {
	if !strings.ContainsRune(s, colorChar) {
		return s
	}
	var b strings.Builder
	rs := []rune(s)
	for i := 0; i < len(rs); i++ {
		if rs[i] == colorChar && i+1 < len(rs) && strings.ContainsRune(colorCodes, rs[i+1]) {
			i++
			continue
		}
		b.WriteRune(rs[i])
	}
	return b.String()
}

// Normalize lower-cases an identifier and maps '_' and ' ' to '-'.
func Normalize(id string) string {
	id = strings.TrimSpace(id)
	id = strings.ReplaceAll(id, "_", "-")
	id = strings.ReplaceAll(id, " ", "-")
	return strings.ToLower(id)
}

// Truncate cuts s to at most max runes.
func Truncate(s string, max int) (string, bool) {
	if max < 0 || utf8.RuneCountInString(s) <= max {
		return s, false
	}
	return string([]rune(s)[:max]), true
}

// RuneLen counts runes, the unit name limits are expressed in.
func RuneLen(s string) int { return utf8.RuneCountInString(s) }

// ReplaceArgs replaces placeholder/value pairs, e.g. ReplaceArgs(msg, "{type}", "book").
func ReplaceArgs(msg string, args ...string) string {
	if len(args) < 2 {
		return msg
	}
	pairs := make([]string, 0, len(args))
	for i := 0; i+1 < len(args); i += 2 {
		pairs = append(pairs, args[i], args[i+1])
	}
	return strings.NewReplacer(pairs...).Replace(msg)
}

func toLowerRune(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}
