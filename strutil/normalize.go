package strutil

import "strings"

// NormalizeUpper trims surrounding whitespace and converts to upper case.
// Use for callsigns, grids, bands and mode tokens where case is not significant.
func NormalizeUpper(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}

// KeepOnly drops every byte of value that keep rejects. Entry fields use it
// to filter typed input down to its legal alphabet.
func KeepOnly(value string, keep func(c byte) bool) string {
	var b strings.Builder
	b.Grow(len(value))
	for i := 0; i < len(value); i++ {
		if keep(value[i]) {
			b.WriteByte(value[i])
		}
	}
	return b.String()
}

// CollapseSpaces replaces runs of blanks and tabs with a single space and
// trims the ends.
func CollapseSpaces(value string) string {
	return strings.Join(strings.Fields(value), " ")
}
