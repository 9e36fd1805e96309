package dom

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultMaxSelectorLength bounds selectors and hints.
const DefaultMaxSelectorLength = 1000

// DefaultMaxTextLength bounds text passed to type.
const DefaultMaxTextLength = 10000

// Limits caps caller supplied strings.
type Limits struct {
	MaxSelectorLength int
	MaxTextLength     int
}

// DefaultLimits returns the stock limits.
func DefaultLimits() Limits {
	return Limits{MaxSelectorLength: DefaultMaxSelectorLength, MaxTextLength: DefaultMaxTextLength}
}

// ValidateSelector rejects empty input, script injection attempts and oversize
// selectors. It runs before anything is sent to the page.
func (l Limits) ValidateSelector(selector string) error {
	if strings.TrimSpace(selector) == "" {
		return InvalidSelector(selector, "selector is empty")
	}
	max := l.MaxSelectorLength
	if max <= 0 {
		max = DefaultMaxSelectorLength
	}
	if n := utf8.RuneCountInString(selector); n > max {
		return InvalidSelector(truncateRunes(selector, 64), fmt.Sprintf("selector is %d characters, limit is %d", n, max))
	}
	lower := strings.ToLower(selector)
	if strings.Contains(lower, "javascript:") || strings.Contains(lower, "<script") {
		return InvalidSelector(selector, "selector contains script content")
	}
	return nil
}

// ValidateText rejects text longer than the configured limit.
func (l Limits) ValidateText(text string) error {
	max := l.MaxTextLength
	if max <= 0 {
		max = DefaultMaxTextLength
	}
	if n := utf8.RuneCountInString(text); n > max {
		return &Error{Kind: KindInvalidSelector, Op: "validate", Detail: fmt.Sprintf("text is %d characters, limit is %d", n, max)}
	}
	return nil
}

// IsSelectorLike reports whether a hint reads as CSS rather than prose. Hints
// with class, id, attribute or pseudo markers, or with child/sibling combinators,
// qualify.
func IsSelectorLike(hint string) bool {
	return strings.ContainsAny(strings.TrimSpace(hint), ".#[]:>+~")
}

// Preview truncates s to at most n runes, appending an ellipsis when cut. A
// non-positive n disables the preview.
func Preview(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return truncateRunes(s, n) + "..."
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
