package chunking

import "strings"

// Normalize collapses every run of whitespace (including newlines) into a
// single space and trims leading and trailing whitespace.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
