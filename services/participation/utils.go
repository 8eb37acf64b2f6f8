package participation

import (
	"strings"
	"unicode/utf8"
)

func normalizeContent(s string) string {
	return strings.TrimSpace(s)
}

func contentLen(s string) int {
	return utf8.RuneCountInString(s)
}
