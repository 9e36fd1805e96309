package dom

import (
	"strings"
)

// Category is a semantic class of control a free-text hint can describe.
type Category string

const (
	CategorySubmit   Category = "submit"
	CategorySearch   Category = "search"
	CategoryLogin    Category = "login"
	CategoryPassword Category = "password"
	CategoryButton   Category = "button"
	CategoryLink     Category = "link"
	CategoryInput    Category = "input"
)

// KeywordRule maps hint keywords to a category.
type KeywordRule struct {
	Category Category
	Keywords []string
}

// PatternSet is the ordered candidate selectors for one category. Earlier
// patterns are preferred.
type PatternSet struct {
	Category Category
	Patterns []string
}

// Tables holds the keyword and pattern tables used by the resolver. Order is
// significant in both: the first keyword rule that matches wins, and patterns
// are tried top to bottom.
type Tables struct {
	keywords []KeywordRule
	patterns map[Category][]string
}

// NewTables copies the given rules so later mutation by the caller has no effect.
func NewTables(keywords []KeywordRule, patterns []PatternSet) *Tables {
	t := &Tables{patterns: make(map[Category][]string, len(patterns))}
	for _, k := range keywords {
		kw := make([]string, len(k.Keywords))
		for i, w := range k.Keywords {
			kw[i] = strings.ToLower(w)
		}
		t.keywords = append(t.keywords, KeywordRule{Category: k.Category, Keywords: kw})
	}
	for _, p := range patterns {
		t.patterns[p.Category] = append([]string(nil), p.Patterns...)
	}
	return t
}

// DefaultTables returns the stock tables.
func DefaultTables() *Tables {
	return NewTables(defaultKeywords, defaultPatterns)
}

// Classify returns the first category whose keywords occur in hint.
func (t *Tables) Classify(hint string) (Category, bool) {
	h := strings.ToLower(hint)
	for _, rule := range t.keywords {
		for _, kw := range rule.Keywords {
			if strings.Contains(h, kw) {
				return rule.Category, true
			}
		}
	}
	return "", false
}

// Patterns returns a copy of the ordered patterns for c.
func (t *Tables) Patterns(c Category) []string {
	return append([]string(nil), t.patterns[c]...)
}

// Known reports whether c has a pattern set.
func (t *Tables) Known(c Category) bool {
	_, ok := t.patterns[c]
	return ok
}

var defaultKeywords = []KeywordRule{
	{CategorySubmit, []string{"submit", "send", "sign in", "signin", "log in"}},
	{CategorySearch, []string{"search", "query", "find"}},
	{CategoryLogin, []string{"email", "e-mail", "username", "user name", "login", "@"}},
	{CategoryPassword, []string{"password", "passcode", "passwd", "pwd"}},
	{CategoryButton, []string{"button", "btn"}},
	{CategoryLink, []string{"link", "anchor", "href"}},
	{CategoryInput, []string{"input", "textbox", "text box", "text field", "textarea"}},
}

var defaultPatterns = []PatternSet{
	{CategorySubmit, []string{
		`button[type="submit"]`,
		`input[type="submit"]`,
		`form button:not([type="button"]):not([type="reset"])`,
		`button.btn-primary`,
		`[role="button"][data-type="submit"]`,
		`input[type="image"]`,
	}},
	{CategorySearch, []string{
		`input[type="search"]`,
		`[role="searchbox"]`,
		`input[name="q"]`,
		`input[name*="search" i]`,
		`input[placeholder*="search" i]`,
		`input[aria-label*="search" i]`,
		`[role="search"] input`,
	}},
	{CategoryLogin, []string{
		`input[type="email"]`,
		`input[autocomplete="username"]`,
		`input[autocomplete="email"]`,
		`input[name*="email" i]`,
		`input[id*="email" i]`,
		`input[name*="user" i]`,
		`input[id*="user" i]`,
		`input[name*="login" i]`,
	}},
	{CategoryPassword, []string{
		`input[type="password"]`,
		`input[autocomplete="current-password"]`,
		`input[autocomplete="new-password"]`,
		`input[name*="pass" i]`,
	}},
	{CategoryButton, []string{
		`button.btn-primary`,
		`button:not([disabled])`,
		`input[type="button"]`,
		`[role="button"]`,
		`a.btn`,
	}},
	{CategoryLink, []string{
		`a[href]:not([href^="javascript:"])`,
		`[role="link"]`,
		`a[href]`,
	}},
	{CategoryInput, []string{
		`input[type="text"]`,
		`input:not([type])`,
		`textarea`,
		`[contenteditable="true"]`,
		`input:not([type="hidden"]):not([type="submit"]):not([type="button"]):not([type="checkbox"]):not([type="radio"])`,
	}},
}
