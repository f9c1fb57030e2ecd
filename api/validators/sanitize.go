package validators

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// plainText strips every tag; free-text fields end up in operator messages.
var plainText = bluemonday.StrictPolicy()

// StripMarkup removes HTML tags and returns the remaining text unescaped.
func StripMarkup(input string) string {
	if !strings.ContainsAny(input, "<>") {
		return input
	}
	return html.UnescapeString(plainText.Sanitize(input))
}

// SanitizeString strips markup and control characters, collapses whitespace
// runs to a single space and truncates to maxLen runes. maxLen <= 0 means no
// limit.
func SanitizeString(input string, maxLen int) string {
	input = StripMarkup(input)
	var b strings.Builder
	b.Grow(len(input))
	pendingSpace := false
	runes := 0
	for _, r := range input {
		if maxLen > 0 && runes >= maxLen {
			break
		}
		switch {
		case unicode.IsSpace(r):
			pendingSpace = b.Len() > 0
			continue
		case unicode.IsControl(r):
			continue
		}
		if pendingSpace {
			if maxLen > 0 && runes+1 >= maxLen {
				break
			}
			b.WriteByte(' ')
			runes++
			pendingSpace = false
		}
		b.WriteRune(r)
		runes++
	}
	return b.String()
}
