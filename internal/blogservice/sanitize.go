package blogservice

import (
	"regexp"
	"strings"
)

var (
	scriptBlockPattern = regexp.MustCompile(`(?is)<\s*script\b[^>]*>.*?<\s*/\s*script\s*>`)
	scriptOpenPattern  = regexp.MustCompile(`(?is)<\s*script\b.*$`)
)

// sanitizeText drops script blocks and surrounding whitespace from user supplied text.
// Blocks are removed until none are left, since a removal can join the halves of a nested tag.
// An unclosed script tag takes the rest of the text with it.
func sanitizeText(s string) string {
	for {
		next := scriptBlockPattern.ReplaceAllString(s, "")
		if next == s {
			break
		}
		s = next
	}

	s = scriptOpenPattern.ReplaceAllString(s, "")

	return strings.TrimSpace(s)
}
