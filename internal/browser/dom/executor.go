package dom

import (
	"context"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tabpilot/api/schemas"
)

const (
	pathTrusted   = "trusted"
	pathSimulated = "simulated"
)

// Executor performs click and type against a resolved selector. Each call
// waits for visibility, scrolls the node into view and locates it, then delivers input through the
// trusted path when coordinates and trusted input are available, retrying once
// through simulated input if the trusted path fails.
type Executor struct {
	page    Page
	waiter  *Waiter
	locator *Locator
	opts    Options
	logger  *zap.Logger
}

// NewExecutor wires an Executor over page.
func NewExecutor(page Page, opts Options, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()
	return &Executor{
		page:    page,
		waiter:  NewWaiter(page, opts.RecheckInterval, logger),
		locator: NewLocator(page, logger),
		opts:    opts,
		logger:  logger.Named("executor"),
	}
}

// Click clicks the first node matching sel.
func (x *Executor) Click(ctx context.Context, sel schemas.ResolvedSelector, timeout time.Duration) (*schemas.InteractionResult, error) {
	if err := x.ensureVisible(ctx, "click", sel.Selector, timeout); err != nil {
		return nil, err
	}

	coord := x.reveal(ctx, sel.Selector)
	method, err := x.deliver(ctx, "click", sel.Selector, coord,
		func(ctx context.Context) error {
			return x.page.DispatchClick(ctx, float64(coord.X), float64(coord.Y))
		},
		func(ctx context.Context) error {
			return x.page.SimulateClick(ctx, sel.Selector)
		},
	)
	if err != nil {
		return nil, err
	}

	return &schemas.InteractionResult{
		Success:     true,
		Selector:    sel.Selector,
		Provenance:  sel.Provenance,
		Coordinates: coord,
		Method:      method,
	}, nil
}

// Type focuses the first node matching sel, optionally clears it, inserts text
// and commits the edit with change and blur.
func (x *Executor) Type(ctx context.Context, sel schemas.ResolvedSelector, text string, clear bool, timeout time.Duration) (*schemas.InteractionResult, error) {
	if err := x.opts.Limits.ValidateText(text); err != nil {
		return nil, err
	}
	if err := x.ensureVisible(ctx, "type", sel.Selector, timeout); err != nil {
		return nil, err
	}

	coord := x.reveal(ctx, sel.Selector)
	if err := x.focus(ctx, sel.Selector, coord); err != nil {
		return nil, err
	}

	if clear {
		if err := x.page.ClearValue(ctx, sel.Selector); err != nil {
			return nil, NewError(KindInteractionFailed, "type", sel.Selector, "clear failed", err)
		}
	}

	method := schemas.InteractionSimulated
	if text != "" {
		before, readErr := x.page.ReadValue(ctx, sel.Selector)
		var err error
		method, err = x.deliver(ctx, "type", sel.Selector, nil,
			func(ctx context.Context) error { return x.page.InsertText(ctx, text) },
			func(ctx context.Context) error { return x.page.AppendValue(ctx, sel.Selector, text) },
		)
		if err != nil {
			return nil, err
		}
		if method == schemas.InteractionTrusted && readErr == nil {
			if method, err = x.confirmInsert(ctx, sel.Selector, text, before); err != nil {
				return nil, err
			}
		}
	}

	if err := x.page.Commit(ctx, sel.Selector); err != nil {
		return nil, NewError(KindInteractionFailed, "type", sel.Selector, "commit failed", err)
	}

	return &schemas.InteractionResult{
		Success:     true,
		Selector:    sel.Selector,
		Provenance:  sel.Provenance,
		Coordinates: coord,
		Method:      method,
		TextPreview: Preview(text, x.opts.PreviewLength),
		TextLength:  utf8.RuneCountInString(text),
	}, nil
}

// ensureVisible waits for the node and converts a hidden result into an error.
func (x *Executor) ensureVisible(ctx context.Context, op, selector string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = x.opts.WaitTimeout
	}
	snap, err := x.waiter.WaitVisible(ctx, selector, timeout)
	if err != nil {
		if e := AsError(err); e.Op == "" || e.Op == "wait" {
			e.Op = op
		}
		return err
	}
	if !snap.Visible {
		return NotFound(op, selector, ReasonHidden)
	}
	return nil
}

// reveal scrolls the node into view and returns its click point. A failed
// scroll returns nil so delivery takes the simulated path, which scrolls in
// the page itself.
func (x *Executor) reveal(ctx context.Context, selector string) *schemas.Coordinate {
	if err := x.page.ScrollIntoView(ctx, selector); err != nil {
		x.logger.Debug("Could not scroll node into view; skipping coordinates.", zap.String("selector", selector), zap.Error(err))
		return nil
	}
	return x.locator.Locate(ctx, selector)
}

// confirmInsert checks that a trusted insertion changed the node's value. The
// browser accepts text even when focus landed elsewhere, so an unchanged
// value is retried once through the simulated path.
func (x *Executor) confirmInsert(ctx context.Context, selector, text, before string) (schemas.InteractionMethod, error) {
	after, err := x.page.ReadValue(ctx, selector)
	if err != nil || after != before {
		return schemas.InteractionTrusted, nil
	}
	x.logger.Warn("Trusted insertion left the value unchanged; delivered through simulated fallback.", zap.String("selector", selector))
	if err := x.page.AppendValue(ctx, selector, text); err != nil {
		return "", NewError(KindInteractionFailed, "type", selector, "simulated fallback failed", err)
	}
	return schemas.InteractionSimulatedFallback, nil
}

// focus clicks the node through the trusted path when possible, then focuses
// it directly so the caret sits at the end of the existing content.
func (x *Executor) focus(ctx context.Context, selector string, coord *schemas.Coordinate) error {
	if coord != nil && x.page.TrustedInput() {
		if err := x.page.DispatchClick(ctx, float64(coord.X), float64(coord.Y)); err != nil {
			x.logger.Debug("Trusted focus click failed; focusing directly.", zap.String("selector", selector), zap.Error(err))
		}
	}
	if err := x.page.Focus(ctx, selector); err != nil {
		return NewError(KindInteractionFailed, "type", selector, "focus failed", err)
	}
	return nil
}

// deliver runs exactly one input path, with a single simulated retry when the
// trusted path was chosen and failed. A nil coord on a trusted pointer path
// makes that path inapplicable; pass nil for keyboard paths that do not need one.
func (x *Executor) deliver(ctx context.Context, op, selector string, coord *schemas.Coordinate, trusted, simulated func(context.Context) error) (schemas.InteractionMethod, error) {
	needsCoord := op == "click"
	strategies := []Strategy[struct{}]{
		{
			Name: pathTrusted,
			Applicable: func() bool {
				return x.page.TrustedInput() && (!needsCoord || coord != nil)
			},
			Run: func(ctx context.Context) (struct{}, error) { return struct{}{}, trusted(ctx) },
		},
		{
			Name: pathSimulated,
			Run:  func(ctx context.Context) (struct{}, error) { return struct{}{}, simulated(ctx) },
		},
	}

	_, winner, attempts, err := RunStrategies(ctx, strategies)
	if err != nil {
		return "", NewError(KindInteractionFailed, op, selector, "every input path failed", err)
	}
	if winner == pathTrusted {
		return schemas.InteractionTrusted, nil
	}
	if len(attempts) > 1 {
		x.logger.Warn("Trusted input failed; delivered through simulated fallback.",
			zap.String("operation", op), zap.String("selector", selector), zap.Error(attempts[0].Err))
		return schemas.InteractionSimulatedFallback, nil
	}
	return schemas.InteractionSimulated, nil
}
