package main

import (
	"regexp"
	"strings"
	"unicode"
)

// maxNameLen bounds the sanitized token so full artifact names stay well
// under common filesystem limits.
const maxNameLen = 200

var (
	unsafeNameChars = regexp.MustCompile(`[:\\/\s\[\]<>"|?*]`)
	underscoreRuns  = regexp.MustCompile(`_+`)
)

// Sanitize converts a test identifier into a filesystem-safe token.
// The same identifier always yields the same token, so artifacts written
// at different lifecycle points can be correlated by name.
func Sanitize(raw string) string {
	// RE2's \s is ASCII only; map every Unicode space first.
	name := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return '_'
		}
		return r
	}, raw)
	name = unsafeNameChars.ReplaceAllString(name, "_")
	name = underscoreRuns.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")

	runes := []rune(name)
	if len(runes) > maxNameLen {
		// Truncation can expose a trailing underscore; trim again so the
		// result is a fixed point of Sanitize.
		name = strings.TrimRight(string(runes[:maxNameLen]), "_")
	}
	return name
}
