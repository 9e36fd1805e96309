package engine

import (
	"context"
	"fmt"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tabpilot/api/schemas"
	"github.com/xkilldash9x/tabpilot/internal/browser/dom"
	"github.com/xkilldash9x/tabpilot/internal/browser/session"
	"github.com/xkilldash9x/tabpilot/internal/config"
	"github.com/xkilldash9x/tabpilot/internal/observability"
)

// -- Interfaces for Dependency Inversion --

// Gateway opens a scoped connection to one tab per call.
type Gateway interface {
	ListTabs(ctx context.Context) ([]schemas.TargetInfo, error)
	WithScope(ctx context.Context, tabID string, fn func(ctx context.Context, tab session.Tab) error) error
}

// allowedSchemes are the URL schemes navigate will load.
var allowedSchemes = map[string]bool{"http": true, "https": true, "file": true, "about": true}

// Engine runs tool operations. Every operation resolves the tab, opens a fresh
// scope, runs resolve, wait, locate and act inside it and folds the outcome
// into a ToolResult. Errors never escape an operation.
type Engine struct {
	gateway Gateway
	cfg     config.InteractionConfig
	opts    dom.Options
	tables  *dom.Tables
	logger  *zap.Logger

	newPage func(tab session.Tab) dom.Page
}

// New creates an Engine.
func New(gateway Gateway, cfg config.InteractionConfig, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		gateway: gateway,
		cfg:     cfg,
		opts: dom.Options{
			WaitTimeout:     cfg.WaitTimeout,
			RecheckInterval: cfg.RecheckInterval,
			ClearBeforeType: cfg.ClearBeforeType,
			PreviewLength:   cfg.PreviewLength,
			Limits:          dom.Limits{MaxSelectorLength: cfg.MaxSelectorLength, MaxTextLength: cfg.MaxTextLength},
		},
		tables:  dom.DefaultTables(),
		logger:  logger.With(zap.String("component", "engine")),
		newPage: func(tab session.Tab) dom.Page { return dom.NewScriptPage(tab) },
	}
}

// limits returns the validation limits with defaults applied.
func (e *Engine) limits() dom.Limits {
	l := e.opts.Limits
	d := dom.DefaultLimits()
	if l.MaxSelectorLength <= 0 {
		l.MaxSelectorLength = d.MaxSelectorLength
	}
	if l.MaxTextLength <= 0 {
		l.MaxTextLength = d.MaxTextLength
	}
	return l
}

func (e *Engine) waitTimeout(ms int) time.Duration {
	if ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	if e.cfg.WaitTimeout > 0 {
		return e.cfg.WaitTimeout
	}
	return dom.DefaultOptions().WaitTimeout
}

// scope bundles the per-call pipeline stages built over one tab.
type scope struct {
	tab      session.Tab
	page     dom.Page
	resolver *dom.Resolver
	waiter   *dom.Waiter
	executor *dom.Executor
	logger   *zap.Logger
}

func (e *Engine) newScope(tab session.Tab, logger *zap.Logger) *scope {
	page := e.newPage(tab)
	return &scope{
		tab:      tab,
		page:     page,
		resolver: dom.NewResolver(page, e.tables, logger),
		waiter:   dom.NewWaiter(page, e.opts.RecheckInterval, logger),
		executor: dom.NewExecutor(page, e.opts, logger),
		logger:   logger,
	}
}

// scopeFunc is the body of an operation. A non-nil result is reported even
// when err is set.
type scopeFunc func(ctx context.Context, s *scope) (interface{}, error)

// run executes fn inside a tab scope and builds the ToolResult. Panics are
// recovered into an InteractionFailed result.
func (e *Engine) run(ctx context.Context, op schemas.Operation, tabID, hint string, fn scopeFunc) (res *schemas.ToolResult) {
	log := e.logger.With(observability.ScopeFields("", tabID, hint, op.String())...)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error("Operation panicked.", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			res = failure(op, tabID, hint, nil,
				dom.NewError(dom.KindInteractionFailed, op.String(), hint, fmt.Sprintf("internal error: %v", r), nil))
		}
	}()

	var result interface{}
	err := e.gateway.WithScope(ctx, tabID, func(ctx context.Context, tab session.Tab) error {
		var err error
		result, err = fn(ctx, e.newScope(tab, log))
		return err
	})
	if err != nil {
		log.Info("Operation failed.", zap.Duration("duration", time.Since(start)), zap.Error(err))
		return failure(op, tabID, hint, result, err)
	}
	log.Debug("Operation completed.", zap.Duration("duration", time.Since(start)))
	return &schemas.ToolResult{Success: true, Operation: op, TabID: tabID, Selector: hint, Result: result}
}

// failure folds err into a ToolResult.
func failure(op schemas.Operation, tabID, hint string, result interface{}, err error) *schemas.ToolResult {
	de := dom.AsError(err)
	return &schemas.ToolResult{
		Success:   false,
		Operation: op,
		TabID:     tabID,
		Selector:  hint,
		Error:     err.Error(),
		ErrorKind: string(de.Kind),
		Reason:    string(de.Reason),
		Result:    result,
	}
}

// Ping reports liveness without touching the browser.
func (e *Engine) Ping(context.Context) *schemas.ToolResult {
	return &schemas.ToolResult{Success: true, Operation: schemas.OpPing, Result: map[string]string{"message": "pong"}}
}

// ListTabs reports the browser's open page targets.
func (e *Engine) ListTabs(ctx context.Context) *schemas.ToolResult {
	tabs, err := e.gateway.ListTabs(ctx)
	if err != nil {
		e.logger.Info("Listing tabs failed.", zap.Error(err))
		return failure(schemas.OpListTabs, "", "", nil, dom.NewError(dom.KindTabNotFound, "list_tabs", "", "could not list tabs", err))
	}
	if tabs == nil {
		tabs = []schemas.TargetInfo{}
	}
	return &schemas.ToolResult{Success: true, Operation: schemas.OpListTabs, Result: schemas.TabList{Tabs: tabs}}
}

// Click resolves the selector hint and clicks the first matching node once it
// is visible.
func (e *Engine) Click(ctx context.Context, p schemas.ClickParams) *schemas.ToolResult {
	if err := e.limits().ValidateSelector(p.Selector); err != nil {
		return failure(schemas.OpClick, p.TabID, p.Selector, nil, err)
	}
	timeout := e.waitTimeout(p.TimeoutMs)

	return e.run(ctx, schemas.OpClick, p.TabID, p.Selector, func(ctx context.Context, s *scope) (interface{}, error) {
		sel, err := s.resolver.ResolveOrLiteral(ctx, p.Selector, "")
		if err != nil {
			return nil, err
		}
		res, err := s.executor.Click(ctx, sel, timeout)
		if err != nil {
			return nil, err
		}
		res.OriginalHint = p.Selector
		return res, nil
	})
}

// Type resolves the selector hint and types text into the first matching node.
func (e *Engine) Type(ctx context.Context, p schemas.TypeParams) *schemas.ToolResult {
	limits := e.limits()
	if err := limits.ValidateSelector(p.Selector); err != nil {
		return failure(schemas.OpType, p.TabID, p.Selector, nil, err)
	}
	if err := limits.ValidateText(p.Text); err != nil {
		return failure(schemas.OpType, p.TabID, p.Selector, nil, err)
	}
	clearFirst := e.cfg.ClearBeforeType
	if p.Clear != nil {
		clearFirst = *p.Clear
	}
	timeout := e.waitTimeout(p.TimeoutMs)

	return e.run(ctx, schemas.OpType, p.TabID, p.Selector, func(ctx context.Context, s *scope) (interface{}, error) {
		sel, err := s.resolver.ResolveOrLiteral(ctx, p.Selector, "")
		if err != nil {
			return nil, err
		}
		res, err := s.executor.Type(ctx, sel, p.Text, clearFirst, timeout)
		if err != nil {
			return nil, err
		}
		res.OriginalHint = p.Selector
		return res, nil
	})
}

// Wait waits for the hinted node to become visible, or with Visible=false
// checks once that it exists. The outcome is always reported as one of the
// three element states.
func (e *Engine) Wait(ctx context.Context, p schemas.WaitParams) *schemas.ToolResult {
	if err := e.limits().ValidateSelector(p.Selector); err != nil {
		return failure(schemas.OpWait, p.TabID, p.Selector, nil, err)
	}
	wantVisible := p.Visible == nil || *p.Visible
	timeout := e.waitTimeout(p.TimeoutMs)

	return e.run(ctx, schemas.OpWait, p.TabID, p.Selector, func(ctx context.Context, s *scope) (interface{}, error) {
		start := time.Now()
		sel, err := s.resolver.ResolveOrLiteral(ctx, p.Selector, "")
		if err != nil {
			return nil, err
		}

		var snap schemas.ElementSnapshot
		if wantVisible {
			snap, err = s.waiter.WaitVisible(ctx, sel.Selector, timeout)
		} else {
			snap, err = s.waiter.Check(ctx, sel.Selector)
		}

		res := &schemas.WaitResult{
			State:      snap.State(),
			Exists:     snap.Exists,
			Visible:    snap.Visible,
			Selector:   sel.Selector,
			Provenance: sel.Provenance,
			ElapsedMs:  time.Since(start).Milliseconds(),
		}
		if err != nil {
			if dom.KindOf(err) == dom.KindElementNotFound {
				return res, err
			}
			return nil, err
		}

		switch {
		case !snap.Exists:
			return res, dom.NotFound("wait", sel.Selector, dom.ReasonNeverExisted)
		case wantVisible && !snap.Visible:
			return res, dom.NotFound("wait", sel.Selector, dom.ReasonHidden)
		}
		return res, nil
	})
}

// ExtractText returns the readable text of the hinted node, or of the body
// when no selector is given.
func (e *Engine) ExtractText(ctx context.Context, p schemas.ExtractTextParams) *schemas.ToolResult {
	hint := strings.TrimSpace(p.Selector)
	if hint != "" {
		if err := e.limits().ValidateSelector(hint); err != nil {
			return failure(schemas.OpExtractText, p.TabID, p.Selector, nil, err)
		}
	}
	maxLength := p.MaxLength
	if maxLength <= 0 {
		maxLength = e.cfg.MaxExtractLength
	}

	return e.run(ctx, schemas.OpExtractText, p.TabID, p.Selector, func(ctx context.Context, s *scope) (interface{}, error) {
		sel := schemas.ResolvedSelector{Selector: "body", Provenance: schemas.ProvenanceExact}
		if hint != "" {
			var err error
			if sel, err = s.resolver.ResolveOrLiteral(ctx, hint, ""); err != nil {
				return nil, err
			}
		}
		return dom.ExtractText(ctx, s.page, sel, maxLength)
	})
}

// InspectForm lists the controls of the first form matching the selector.
func (e *Engine) InspectForm(ctx context.Context, p schemas.InspectFormParams) *schemas.ToolResult {
	selector := strings.TrimSpace(p.FormSelector)
	if selector == "" {
		selector = dom.DefaultFormSelector
	}
	if err := e.limits().ValidateSelector(selector); err != nil {
		return failure(schemas.OpInspectForm, p.TabID, p.FormSelector, nil, err)
	}

	return e.run(ctx, schemas.OpInspectForm, p.TabID, p.FormSelector, func(ctx context.Context, s *scope) (interface{}, error) {
		report, err := dom.InspectForm(ctx, s.page, selector)
		if err != nil {
			return nil, err
		}
		if report == nil {
			return nil, dom.NotFound("inspect_form", selector, dom.ReasonNeverExisted)
		}
		return report, nil
	})
}

// Navigate loads a URL in the tab and reports where it ended up.
func (e *Engine) Navigate(ctx context.Context, p schemas.NavigateParams) *schemas.ToolResult {
	if err := validateURL(p.URL); err != nil {
		return failure(schemas.OpNavigate, p.TabID, "", nil, err)
	}
	timeout := e.cfg.NavigationTimeout
	if p.TimeoutMs > 0 {
		timeout = time.Duration(p.TimeoutMs) * time.Millisecond
	}

	return e.run(ctx, schemas.OpNavigate, p.TabID, "", func(ctx context.Context, s *scope) (interface{}, error) {
		navCtx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			navCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		if err := s.tab.Navigate(navCtx, p.URL); err != nil {
			if ctx.Err() == nil && navCtx.Err() == context.DeadlineExceeded {
				return nil, dom.NewError(dom.KindEvaluationError, "navigate", "", fmt.Sprintf("navigation timed out after %v", timeout), err)
			}
			return nil, dom.NewError(dom.KindEvaluationError, "navigate", "", "navigation failed", err)
		}
		current, title, err := s.tab.Location(ctx)
		if err != nil {
			return nil, dom.NewError(dom.KindEvaluationError, "navigate", "", "could not read location", err)
		}
		return &schemas.NavigateResult{Success: true, URL: current, Title: title}, nil
	})
}

func validateURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return dom.NewError(dom.KindInvalidSelector, "navigate", "", "url is required", nil)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return dom.NewError(dom.KindInvalidSelector, "navigate", "", "invalid url", err)
	}
	if !allowedSchemes[strings.ToLower(u.Scheme)] {
		return dom.NewError(dom.KindInvalidSelector, "navigate", "", fmt.Sprintf("invalid url: scheme %q is not allowed", u.Scheme), nil)
	}
	return nil
}
