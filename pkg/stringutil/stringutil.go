// Package stringutil shortens names for single-line terminal output.
package stringutil

import "strings"

// singleLine trims s and folds line breaks into spaces.
func singleLine(s string) []rune {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", " ")
	return []rune(s)
}

// Ellipsis shortens s to maxLength runes, ending in "..." when truncated.
// With maxLength of 3 or less there is no room for the dots and s is cut.
func Ellipsis(s string, maxLength int) string {
	r := singleLine(s)
	if maxLength < 0 {
		return ""
	}
	if len(r) <= maxLength {
		return string(r)
	}
	if maxLength <= 3 {
		return string(r[:maxLength])
	}
	return string(r[:maxLength-3]) + "..."
}

// MiddleEllipsis shortens s to maxLength runes by dropping its middle, so
// both the leading directory and the file extension stay visible.
func MiddleEllipsis(s string, maxLength int) string {
	r := singleLine(s)
	if len(r) <= maxLength || maxLength <= 3 {
		return Ellipsis(string(r), maxLength)
	}
	keep := maxLength - 3
	head := keep / 2
	tail := keep - head
	return string(r[:head]) + "..." + string(r[len(r)-tail:])
}
