package dom

import (
	"context"

	"github.com/xkilldash9x/tabpilot/api/schemas"
)

// Primitives is the minimal surface a connected tab must provide. The session
// gateway implements it over CDP; tests implement it with canned responses.
type Primitives interface {
	// Evaluate runs expression in the page, awaiting promises and decoding the
	// returned value into out. A thrown exception yields KindEvaluationError.
	Evaluate(ctx context.Context, expression string, out interface{}) error
	// ContentQuads returns the content quads of the first node matching selector.
	ContentQuads(ctx context.Context, selector string) ([]schemas.Quad, error)
	// BoxModel returns the content box of the first node matching selector.
	BoxModel(ctx context.Context, selector string) (schemas.Quad, error)
	// ScrollIntoView scrolls the first node matching selector into the viewport.
	ScrollIntoView(ctx context.Context, selector string) error
	// DispatchClick sends a trusted left-button press and release at x,y.
	DispatchClick(ctx context.Context, x, y float64) error
	// InsertText sends trusted text input to the focused element.
	InsertText(ctx context.Context, text string) error
	// TrustedInput reports whether browser-level input may be used.
	TrustedInput() bool
	// Bind exposes a page function named name. Each call from the page delivers
	// its payload on the returned channel until stop is called.
	Bind(ctx context.Context, name string) (payloads <-chan string, stop func(), err error)
}

// ElementInfo is the descriptor the page reports for a node.
type ElementInfo struct {
	Tag         string   `json:"tag"`
	Type        string   `json:"type"`
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Classes     []string `json:"classes"`
	Text        string   `json:"text"`
	Value       string   `json:"value"`
	Placeholder string   `json:"placeholder"`
	AriaLabel   string   `json:"ariaLabel"`
	Title       string   `json:"title"`
	Visible     bool     `json:"visible"`
	// Path is a structural selector that addresses this node first: an
	// nth-of-type chain up to the nearest uniquely identified ancestor.
	Path string `json:"path"`
}

// Subscription delivers a signal whenever the document mutates.
type Subscription interface {
	C() <-chan struct{}
	// Close releases the in-page observer. It is safe to call more than once.
	Close() error
}

// Page is the element level view of a tab used by the resolver, wait engine,
// locator, executor and inspector. ScriptPage implements it over Primitives.
type Page interface {
	// Query describes every node matching selector, in document order.
	Query(ctx context.Context, selector string) ([]ElementInfo, error)
	// Snapshot observes the first node matching selector.
	Snapshot(ctx context.Context, selector string) (schemas.ElementSnapshot, error)
	// Observe subscribes to document mutations.
	Observe(ctx context.Context) (Subscription, error)

	ContentQuads(ctx context.Context, selector string) ([]schemas.Quad, error)
	BoxModel(ctx context.Context, selector string) (schemas.Quad, error)
	BoundingRect(ctx context.Context, selector string) (schemas.Rect, error)

	TrustedInput() bool
	// ScrollIntoView brings the node into the viewport so its geometry can be clicked.
	ScrollIntoView(ctx context.Context, selector string) error
	DispatchClick(ctx context.Context, x, y float64) error
	InsertText(ctx context.Context, text string) error

	// SimulateClick scrolls the node into view and fires the synthetic pointer
	// and mouse event sequence on it.
	SimulateClick(ctx context.Context, selector string) error
	// Focus focuses the node and places the caret at the end of its content.
	Focus(ctx context.Context, selector string) error
	// ClearValue empties the node's value and fires input.
	ClearValue(ctx context.Context, selector string) error
	// AppendValue appends text to the node's value and fires input, change and a keystroke.
	AppendValue(ctx context.Context, selector, text string) error
	// Commit fires change and blur on the node.
	Commit(ctx context.Context, selector string) error
	// ReadValue returns the node's current value or text content.
	ReadValue(ctx context.Context, selector string) (string, error)

	// OuterHTML returns the markup of the first node matching selector, or found=false.
	OuterHTML(ctx context.Context, selector string) (html string, found bool, err error)
	// FormControls lists the controls inside the first form matching selector.
	FormControls(ctx context.Context, selector string) (controls []ElementInfo, found bool, err error)
}
