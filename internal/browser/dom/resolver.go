package dom

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tabpilot/api/schemas"
)

var cssIdentRe = regexp.MustCompile(`^-?[A-Za-z_][A-Za-z0-9_-]*$`)

// BestSelector builds a selector for the node preferring id, then name, then
// the first class token, then the bare tag.
func (e ElementInfo) BestSelector() string {
	tag := strings.ToLower(e.Tag)
	if tag == "" {
		tag = "*"
	}
	switch {
	case e.ID != "":
		if cssIdentRe.MatchString(e.ID) {
			return "#" + e.ID
		}
		return `[id="` + escapeAttr(e.ID) + `"]`
	case e.Name != "":
		return tag + `[name="` + escapeAttr(e.Name) + `"]`
	case len(e.Classes) > 0 && e.Classes[0] != "":
		if cssIdentRe.MatchString(e.Classes[0]) {
			return tag + "." + e.Classes[0]
		}
		return tag + `[class~="` + escapeAttr(e.Classes[0]) + `"]`
	default:
		return tag
	}
}

func escapeAttr(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

// textGroup is one pass of the text matching scan.
type textGroup struct {
	selector string
	fields   func(ElementInfo) []string
}

// textGroups are scanned in order: buttons, then links, then inputs.
var textGroups = []textGroup{
	{
		selector: `button, input[type="submit"], input[type="button"], input[type="reset"], [role="button"]`,
		fields:   func(e ElementInfo) []string { return []string{e.Text, e.Value} },
	},
	{
		selector: `a, [role="link"]`,
		fields:   func(e ElementInfo) []string { return []string{e.Text, e.Value} },
	},
	{
		selector: `input, textarea, select`,
		fields:   func(e ElementInfo) []string { return []string{e.Placeholder, e.AriaLabel, e.Title} },
	},
}

// Resolver maps a hint to a single CSS selector.
type Resolver struct {
	page   Page
	tables *Tables
	logger *zap.Logger
}

// NewResolver creates a Resolver. A nil tables uses DefaultTables.
func NewResolver(page Page, tables *Tables, logger *zap.Logger) *Resolver {
	if tables == nil {
		tables = DefaultTables()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{page: page, tables: tables, logger: logger.Named("resolver")}
}

// Resolve runs the resolution cascade: exact match for selector-like hints,
// keyword classification, then pattern matching for classified hints or text
// matching for the rest. It returns ErrElementNotFound when nothing matches.
func (r *Resolver) Resolve(ctx context.Context, hint, elementType string) (schemas.ResolvedSelector, error) {
	res, _, err := r.resolve(ctx, hint, elementType)
	return res, err
}

// ResolveOrLiteral behaves like Resolve but hands back a syntactically valid,
// selector-like hint unchanged when nothing matches yet, so a later wait can
// pick up nodes that appear asynchronously.
func (r *Resolver) ResolveOrLiteral(ctx context.Context, hint, elementType string) (schemas.ResolvedSelector, error) {
	res, literalOK, err := r.resolve(ctx, hint, elementType)
	if err != nil && literalOK && errors.Is(err, ErrElementNotFound) {
		r.logger.Debug("No match; using hint as a literal selector.", zap.String("hint", hint))
		return schemas.ResolvedSelector{Selector: hint, Provenance: schemas.ProvenanceLiteral}, nil
	}
	return res, err
}

func (r *Resolver) resolve(ctx context.Context, hint, elementType string) (schemas.ResolvedSelector, bool, error) {
	literalOK := false

	if IsSelectorLike(hint) {
		nodes, err := r.page.Query(ctx, hint)
		switch {
		case err == nil && len(nodes) > 0:
			return schemas.ResolvedSelector{Selector: hint, Provenance: schemas.ProvenanceExact}, false, nil
		case err == nil:
			literalOK = true
		case errors.Is(err, ErrInvalidSelector):
			// Prose that happens to contain punctuation.
			r.logger.Debug("Selector-like hint is not valid CSS; treating as text.", zap.String("hint", hint))
		default:
			return schemas.ResolvedSelector{}, false, err
		}
	}

	if category, ok := r.categoryFor(hint, elementType); ok {
		sel, found, err := r.matchPattern(ctx, category)
		if err != nil {
			return schemas.ResolvedSelector{}, false, err
		}
		if found {
			return schemas.ResolvedSelector{Selector: sel, Provenance: schemas.ProvenancePatternMatch, Category: string(category)}, false, nil
		}
	} else {
		sel, found, err := r.matchText(ctx, hint)
		if err != nil {
			return schemas.ResolvedSelector{}, false, err
		}
		if found {
			return schemas.ResolvedSelector{Selector: sel, Provenance: schemas.ProvenanceTextMatch}, false, nil
		}
	}

	return schemas.ResolvedSelector{}, literalOK, NotFound("resolve", hint, ReasonNeverExisted)
}

// categoryFor honors an explicit element type when it names a known category.
func (r *Resolver) categoryFor(hint, elementType string) (Category, bool) {
	if elementType != "" {
		if c := Category(strings.ToLower(strings.TrimSpace(elementType))); r.tables.Known(c) {
			return c, true
		}
	}
	return r.tables.Classify(hint)
}

// matchPattern returns the first pattern whose first match is visible. When a
// pattern's first match is hidden but a later one is visible, the visible
// node's own selector is used instead, provided it addresses that node first.
func (r *Resolver) matchPattern(ctx context.Context, category Category) (string, bool, error) {
	for _, pattern := range r.tables.Patterns(category) {
		nodes, err := r.page.Query(ctx, pattern)
		if err != nil {
			if errors.Is(err, ErrInvalidSelector) {
				r.logger.Debug("Skipping unsupported pattern.", zap.String("pattern", pattern), zap.Error(err))
				continue
			}
			return "", false, err
		}
		idx := firstVisible(nodes)
		if idx < 0 {
			continue
		}
		if idx == 0 {
			return pattern, true, nil
		}
		sel, ok, err := r.addressFor(ctx, nodes[idx])
		if err != nil {
			return "", false, err
		}
		if ok {
			return sel, true, nil
		}
	}
	return "", false, nil
}

func (r *Resolver) matchText(ctx context.Context, hint string) (string, bool, error) {
	needle := strings.ToLower(strings.TrimSpace(hint))
	if needle == "" {
		return "", false, nil
	}
	for _, group := range textGroups {
		nodes, err := r.page.Query(ctx, group.selector)
		if err != nil {
			return "", false, err
		}
		for _, n := range nodes {
			if !textMatches(group.fields(n), needle) {
				continue
			}
			sel, ok, err := r.addressFor(ctx, n)
			if err != nil {
				return "", false, err
			}
			if ok {
				return sel, true, nil
			}
			r.logger.Debug("Text match has no selector of its own; trying the next one.", zap.String("tag", n.Tag))
		}
	}
	return "", false, nil
}

func textMatches(fields []string, needle string) bool {
	for _, field := range fields {
		if field != "" && strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

// addressFor returns a selector whose first match is n: BestSelector when it
// already addresses n, otherwise n's structural path.
func (r *Resolver) addressFor(ctx context.Context, n ElementInfo) (string, bool, error) {
	for _, candidate := range []string{n.BestSelector(), n.Path} {
		if candidate == "" {
			continue
		}
		check, err := r.page.Query(ctx, candidate)
		if err != nil {
			if errors.Is(err, ErrInvalidSelector) {
				continue
			}
			return "", false, err
		}
		if len(check) > 0 && sameNode(check[0], n) {
			return candidate, true, nil
		}
	}
	return "", false, nil
}

// sameNode compares descriptors. Paths identify a node outright; without them
// every reported attribute has to agree.
func sameNode(a, b ElementInfo) bool {
	if a.Path != "" && b.Path != "" {
		return a.Path == b.Path
	}
	return a.Tag == b.Tag && a.Type == b.Type && a.ID == b.ID && a.Name == b.Name &&
		strings.Join(a.Classes, " ") == strings.Join(b.Classes, " ") &&
		a.Text == b.Text && a.Value == b.Value && a.Placeholder == b.Placeholder &&
		a.AriaLabel == b.AriaLabel && a.Title == b.Title && a.Visible == b.Visible
}

func firstVisible(nodes []ElementInfo) int {
	for i, n := range nodes {
		if n.Visible {
			return i
		}
	}
	return -1
}
