package cases

import (
	"cmp"
	"slices"
	"strings"
	"unicode/utf8"
)

func sortArguments(args []*Argument) {
	slices.SortStableFunc(args, func(a, b *Argument) int {
		if c := cmp.Compare(b.LikeCount, a.LikeCount); c != 0 {
			return c
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// Truncate cuts s to at most max runes, ending with "..." when shortened.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	if max <= 3 {
		return string([]rune(s)[:max])
	}
	return string([]rune(s)[:max-3]) + "..."
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

func normalize(s string) string {
	return strings.TrimSpace(s)
}
