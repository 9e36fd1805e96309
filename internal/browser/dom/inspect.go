package dom

import (
	"context"
	"strings"

	"github.com/xkilldash9x/tabpilot/api/schemas"
)

// DefaultFormSelector is used when inspect-form is called without a selector.
const DefaultFormSelector = "form"

// InspectForm reports every input, button, textarea and select inside the first
// form matching selector, in document order. A missing form yields a nil report
// and no error so the caller decides how severe that is.
func InspectForm(ctx context.Context, page Page, selector string) (*schemas.FormReport, error) {
	if strings.TrimSpace(selector) == "" {
		selector = DefaultFormSelector
	}
	controls, found, err := page.FormControls(ctx, selector)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	report := &schemas.FormReport{Selector: selector, Fields: make([]schemas.FormField, 0, len(controls))}
	for _, c := range controls {
		report.Fields = append(report.Fields, schemas.FormField{
			Tag:               strings.ToLower(c.Tag),
			Type:              c.Type,
			Name:              c.Name,
			ID:                c.ID,
			Class:             strings.Join(c.Classes, " "),
			Value:             c.Value,
			Placeholder:       c.Placeholder,
			Text:              strings.TrimSpace(c.Text),
			Visible:           c.Visible,
			SuggestedSelector: c.BestSelector(),
		})
	}
	return report, nil
}
