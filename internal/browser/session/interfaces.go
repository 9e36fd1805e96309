// internal/browser/session/interfaces.go
package session

import (
	"context"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/tabpilot/api/schemas"
	"github.com/xkilldash9x/tabpilot/internal/browser/dom"
)

// ActionExecutor runs chromedp actions against a connected tab. The
// implementation combines the operational context with the long-lived scope
// context so actions carry the CDP connection information.
type ActionExecutor interface {
	RunActions(ctx context.Context, actions ...chromedp.Action) error
}

// TabRegistry lists the browser's live page targets. It is consulted on every
// call; no target handle is cached between operations.
type TabRegistry interface {
	ListTargets(ctx context.Context) ([]schemas.TargetInfo, error)
	// Resolve maps a tab reference onto a live target, or fails with
	// dom.KindTabNotFound.
	Resolve(ctx context.Context, tabID string) (schemas.TargetInfo, error)
}

// Tab is the connection handed to a scope callback. It is only valid until the
// callback returns.
type Tab interface {
	dom.Primitives
	Target() schemas.TargetInfo
	// Navigate loads url and waits for the load event and a ready body.
	Navigate(ctx context.Context, url string) error
	// Location reports the current URL and document title.
	Location(ctx context.Context) (url, title string, err error)
}
