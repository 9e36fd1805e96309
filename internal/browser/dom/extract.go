package dom

import (
	"context"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/xkilldash9x/tabpilot/api/schemas"
)

// DefaultExtractSelector is used when extract-text is called without a selector.
const DefaultExtractSelector = "body"

// DefaultMaxExtractLength caps extracted text when the caller gives no limit.
const DefaultMaxExtractLength = 20000

// skippedElements never contribute text.
var skippedElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Head:     true,
	atom.Svg:      true,
}

// blockElements start a new line.
var blockElements = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Br: true, atom.Dd: true, atom.Div: true, atom.Dl: true, atom.Dt: true,
	atom.Fieldset: true, atom.Figcaption: true, atom.Figure: true, atom.Footer: true,
	atom.Form: true, atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true,
	atom.H5: true, atom.H6: true, atom.Header: true, atom.Hr: true, atom.Li: true,
	atom.Main: true, atom.Nav: true, atom.Ol: true, atom.P: true, atom.Pre: true,
	atom.Section: true, atom.Table: true, atom.Tr: true, atom.Ul: true,
}

// HTMLToText renders the readable text of an HTML fragment, one block per line
// with runs of whitespace collapsed.
func HTMLToText(fragment string) (string, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), body)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			if skippedElements[n.DataAtom] {
				return
			}
			if blockElements[n.DataAtom] {
				b.WriteByte('\n')
			}
			if n.DataAtom == atom.Td || n.DataAtom == atom.Th {
				b.WriteByte(' ')
			}
		case html.CommentNode:
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.DataAtom] {
			b.WriteByte('\n')
		}
	}
	for _, n := range nodes {
		walk(n)
	}

	lines := strings.Split(b.String(), "\n")
	out := lines[:0]
	for _, line := range lines {
		if collapsed := strings.Join(strings.Fields(line), " "); collapsed != "" {
			out = append(out, collapsed)
		}
	}
	return strings.Join(out, "\n"), nil
}

// ExtractText returns the readable text of the first node matching sel, cut to
// maxLength runes. A missing node is KindElementNotFound.
func ExtractText(ctx context.Context, page Page, sel schemas.ResolvedSelector, maxLength int) (*schemas.ExtractResult, error) {
	if maxLength <= 0 {
		maxLength = DefaultMaxExtractLength
	}
	markup, found, err := page.OuterHTML(ctx, sel.Selector)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, NotFound("extract_text", sel.Selector, ReasonNeverExisted)
	}

	text, err := HTMLToText(markup)
	if err != nil {
		return nil, NewError(KindEvaluationError, "extract_text", sel.Selector, "unparseable markup", err)
	}

	res := &schemas.ExtractResult{Selector: sel.Selector, Provenance: sel.Provenance}
	if n := utf8.RuneCountInString(text); n > maxLength {
		text = truncateRunes(text, maxLength)
		res.Truncated = true
	}
	res.Text = text
	res.Length = utf8.RuneCountInString(text)
	return res, nil
}
