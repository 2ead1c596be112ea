package textutil

import (
	"strings"

	"golang.org/x/text/width"
)

// FoldWidth maps full-width ASCII and half-width katakana onto their
// canonical widths so "ＡＢＣ" and "ABC", or "ｷﾀ" and "キタ", compare equal.
func FoldWidth(s string) string {
	return width.Fold.String(s)
}

// ContainsFolded reports whether substr occurs in s after width folding.
// An empty substr never matches.
func ContainsFolded(s, substr string) bool {
	if substr == "" {
		return false
	}
	return strings.Contains(FoldWidth(s), FoldWidth(substr))
}
