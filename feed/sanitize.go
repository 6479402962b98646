package feed

import (
	"html"
	"regexp"
	"strings"
)

// maxNameLength caps sanitized names so they stay usable as filenames and
// storage keys.
const maxNameLength = 200

var (
	// unsafeChars covers path separators and characters rejected by common
	// filesystems.
	unsafeChars = regexp.MustCompile(`[/\\:*?"<>|]`)
	// controlChars covers C0/C1 control characters.
	controlChars = regexp.MustCompile("[\x00-\x1f\x7f]")
	// multiSpace collapses runs of whitespace left behind by stripping.
	multiSpace = regexp.MustCompile(`\s+`)
)

// Sanitize turns a raw feed title into a display-safe name: HTML entities
// are unescaped, control characters and filesystem-unsafe characters are
// stripped, whitespace is collapsed, and the result is length-capped.
// An empty result becomes "untitled".
func Sanitize(raw string) string {
	name := html.UnescapeString(raw)
	name = controlChars.ReplaceAllString(name, " ")
	name = unsafeChars.ReplaceAllString(name, " ")
	name = multiSpace.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)

	if runes := []rune(name); len(runes) > maxNameLength {
		name = strings.TrimSpace(string(runes[:maxNameLength]))
	}
	if name == "" {
		return "untitled"
	}
	return name
}
