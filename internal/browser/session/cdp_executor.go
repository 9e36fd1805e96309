// internal/browser/session/cdp_executor.go
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	cdpdom "github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tabpilot/api/schemas"
	"github.com/xkilldash9x/tabpilot/internal/browser/dom"
)

const (
	inputTimeout    = 10 * time.Second
	geometryTimeout = 10 * time.Second
	bindingBuffer   = 16
)

// cdpExecutor implements Tab over chromedp for the lifetime of one scope.
type cdpExecutor struct {
	ctx            context.Context // scope context carrying the CDP target
	target         schemas.TargetInfo
	trusted        bool
	evalTimeout    time.Duration
	logger         *zap.Logger
	runActionsFunc func(ctx context.Context, actions ...chromedp.Action) error
	listenFunc     func(ctx context.Context, fn func(ev interface{}))
}

var (
	_ Tab            = (*cdpExecutor)(nil)
	_ ActionExecutor = (*cdpExecutor)(nil)
)

func newCDPExecutor(ctx context.Context, target schemas.TargetInfo, trusted bool, evalTimeout time.Duration, logger *zap.Logger) *cdpExecutor {
	e := &cdpExecutor{
		ctx:         ctx,
		target:      target,
		trusted:     trusted,
		evalTimeout: evalTimeout,
		logger:      logger,
		listenFunc:  chromedp.ListenTarget,
	}
	e.runActionsFunc = e.run
	return e
}

// run executes actions on the scope context, canceled early when ctx is done.
func (e *cdpExecutor) run(ctx context.Context, actions ...chromedp.Action) error {
	combined, cancel := CombineContext(e.ctx, ctx)
	defer cancel()
	return chromedp.Run(combined, actions...)
}

func (e *cdpExecutor) RunActions(ctx context.Context, actions ...chromedp.Action) error {
	return e.runActionsFunc(ctx, actions...)
}

func (e *cdpExecutor) Target() schemas.TargetInfo { return e.target }

func (e *cdpExecutor) TrustedInput() bool { return e.trusted }

// Evaluate runs expression with promise awaiting and by-value return. A thrown
// exception is reported as dom.KindEvaluationError carrying the page's text.
func (e *cdpExecutor) Evaluate(ctx context.Context, expression string, out interface{}) error {
	opCtx := ctx
	if e.evalTimeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(ctx, e.evalTimeout)
		defer cancel()
	}

	err := e.runActionsFunc(opCtx,
		chromedp.Evaluate(expression, out, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithReturnByValue(true).WithAwaitPromise(true)
		}),
	)
	if err == nil {
		return nil
	}

	var exc *runtime.ExceptionDetails
	if errors.As(err, &exc) {
		return dom.NewError(dom.KindEvaluationError, "", "", exceptionText(exc), err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if opCtx.Err() == context.DeadlineExceeded {
		return dom.NewError(dom.KindEvaluationError, "", "", fmt.Sprintf("evaluation timed out after %v", e.evalTimeout), opCtx.Err())
	}
	return dom.NewError(dom.KindEvaluationError, "", "", "", err)
}

func exceptionText(exc *runtime.ExceptionDetails) string {
	if exc.Exception != nil && exc.Exception.Description != "" {
		// Descriptions carry the stack after the first line.
		desc, _, _ := strings.Cut(exc.Exception.Description, "\n")
		return desc
	}
	return exc.Text
}

// queryNode resolves the first node matching selector in the main document.
func queryNode(ctx context.Context, selector string) (cdp.NodeID, error) {
	root, err := cdpdom.GetDocument().WithDepth(0).Do(ctx)
	if err != nil {
		return 0, err
	}
	id, err := cdpdom.QuerySelector(root.NodeID, selector).Do(ctx)
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, dom.NotFound("geometry", selector, dom.ReasonNeverExisted)
	}
	return id, nil
}

func (e *cdpExecutor) ContentQuads(ctx context.Context, selector string) ([]schemas.Quad, error) {
	opCtx, cancel := context.WithTimeout(ctx, geometryTimeout)
	defer cancel()

	var quads []schemas.Quad
	err := e.runActionsFunc(opCtx, chromedp.ActionFunc(func(c context.Context) error {
		id, err := queryNode(c, selector)
		if err != nil {
			return err
		}
		raw, err := cdpdom.GetContentQuads().WithNodeID(id).Do(c)
		if err != nil {
			return err
		}
		for _, q := range raw {
			if len(q) == 8 {
				quads = append(quads, schemas.QuadFromSlice(q))
			}
		}
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("content quads for '%s': %w", selector, err)
	}
	return quads, nil
}

func (e *cdpExecutor) BoxModel(ctx context.Context, selector string) (schemas.Quad, error) {
	opCtx, cancel := context.WithTimeout(ctx, geometryTimeout)
	defer cancel()

	var quad schemas.Quad
	err := e.runActionsFunc(opCtx, chromedp.ActionFunc(func(c context.Context) error {
		id, err := queryNode(c, selector)
		if err != nil {
			return err
		}
		model, err := cdpdom.GetBoxModel().WithNodeID(id).Do(c)
		if err != nil {
			return err
		}
		if model == nil || len(model.Content) != 8 {
			return fmt.Errorf("box model has no content quad")
		}
		quad = schemas.QuadFromSlice(model.Content)
		return nil
	}))
	if err != nil {
		return schemas.Quad{}, fmt.Errorf("box model for '%s': %w", selector, err)
	}
	return quad, nil
}

// ScrollIntoView scrolls the node's content box into the viewport, if it is
// not already there.
func (e *cdpExecutor) ScrollIntoView(ctx context.Context, selector string) error {
	opCtx, cancel := context.WithTimeout(ctx, geometryTimeout)
	defer cancel()

	err := e.runActionsFunc(opCtx, chromedp.ActionFunc(func(c context.Context) error {
		id, err := queryNode(c, selector)
		if err != nil {
			return err
		}
		return cdpdom.ScrollIntoViewIfNeeded().WithNodeID(id).Do(c)
	}))
	if err != nil {
		return fmt.Errorf("scroll into view for '%s': %w", selector, err)
	}
	return nil
}

// DispatchClick moves to x,y and sends a left press and release.
func (e *cdpExecutor) DispatchClick(ctx context.Context, x, y float64) error {
	opCtx, cancel := context.WithTimeout(ctx, inputTimeout)
	defer cancel()

	err := e.runActionsFunc(opCtx,
		input.DispatchMouseEvent(input.MouseMoved, x, y),
		input.DispatchMouseEvent(input.MousePressed, x, y).WithButton(input.Left).WithButtons(1).WithClickCount(1),
		input.DispatchMouseEvent(input.MouseReleased, x, y).WithButton(input.Left).WithClickCount(1),
	)
	if err != nil && opCtx.Err() == context.DeadlineExceeded {
		e.logger.Debug("DispatchClick timed out.", zap.Duration("timeout", inputTimeout))
		return fmt.Errorf("dispatch click timed out after %v: %w", inputTimeout, opCtx.Err())
	}
	return err
}

// InsertText sends text to the focused element as a single trusted insertion.
func (e *cdpExecutor) InsertText(ctx context.Context, text string) error {
	opCtx, cancel := context.WithTimeout(ctx, inputTimeout)
	defer cancel()

	err := e.runActionsFunc(opCtx, input.InsertText(text))
	if err != nil && opCtx.Err() == context.DeadlineExceeded {
		e.logger.Debug("InsertText timed out.", zap.Duration("timeout", inputTimeout))
		return fmt.Errorf("insert text timed out after %v: %w", inputTimeout, opCtx.Err())
	}
	return err
}

// Bind adds a runtime binding and forwards each call's payload. Payloads that
// arrive while the buffer is full are dropped; receivers only need to know
// that something happened.
func (e *cdpExecutor) Bind(ctx context.Context, name string) (<-chan string, func(), error) {
	if err := e.runActionsFunc(ctx, runtime.AddBinding(name)); err != nil {
		return nil, nil, fmt.Errorf("failed to add binding '%s': %w", name, err)
	}

	ch := make(chan string, bindingBuffer)
	var mu sync.Mutex
	stopped := false

	e.listenFunc(e.ctx, func(ev interface{}) {
		called, ok := ev.(*runtime.EventBindingCalled)
		if !ok || called.Name != name {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			return
		}
		select {
		case ch <- called.Payload:
		default:
		}
	})

	var once sync.Once
	stop := func() {
		once.Do(func() {
			mu.Lock()
			stopped = true
			close(ch)
			mu.Unlock()

			cleanupCtx, cancel := context.WithTimeout(Detach(ctx), inputTimeout)
			defer cancel()
			if err := e.runActionsFunc(cleanupCtx, runtime.RemoveBinding(name)); err != nil {
				e.logger.Debug("Failed to remove binding.", zap.String("name", name), zap.Error(err))
			}
		})
	}
	return ch, stop, nil
}

// Navigate loads url, waiting for the load event and a ready body.
func (e *cdpExecutor) Navigate(ctx context.Context, url string) error {
	return e.runActionsFunc(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery))
}

func (e *cdpExecutor) Location(ctx context.Context) (string, string, error) {
	var url, title string
	if err := e.runActionsFunc(ctx, chromedp.Location(&url), chromedp.Title(&title)); err != nil {
		return "", "", err
	}
	return url, title, nil
}
