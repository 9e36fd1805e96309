package session

import (
	"context"
	"fmt"
	"time"

	cdpdom "github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/tabpilot/api/schemas"
	"github.com/xkilldash9x/tabpilot/internal/browser/dom"
	"github.com/xkilldash9x/tabpilot/internal/config"
	"github.com/xkilldash9x/tabpilot/internal/observability"
)

// connectFunc attaches to a target and returns the scope context together with
// the function that closes the connection.
type connectFunc func(ctx context.Context, targetID string) (context.Context, func(), error)

// Gateway opens one short-lived debugging connection per operation. Scopes are
// never shared or pooled; the semaphore only bounds how many are open at once.
type Gateway struct {
	registry    TabRegistry
	cfg         config.BrowserConfig
	evalTimeout time.Duration
	sem         *semaphore.Weighted
	logger      *zap.Logger

	connect  connectFunc
	newTab   func(ctx context.Context, target schemas.TargetInfo, scopeLogger *zap.Logger) Tab
	enableFn func(ctx context.Context, tab Tab, scopeLogger *zap.Logger) error
}

// NewGateway creates a Gateway for the browser described by cfg.
func NewGateway(cfg config.BrowserConfig, evalTimeout time.Duration, registry TabRegistry, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	scopes := cfg.MaxConcurrentScopes
	if scopes <= 0 {
		scopes = 1
	}
	g := &Gateway{
		registry:    registry,
		cfg:         cfg,
		evalTimeout: evalTimeout,
		sem:         semaphore.NewWeighted(int64(scopes)),
		logger:      logger.Named("gateway"),
	}
	g.connect = g.dial
	g.newTab = func(ctx context.Context, t schemas.TargetInfo, l *zap.Logger) Tab {
		return newCDPExecutor(ctx, t, g.cfg.TrustedInput, g.evalTimeout, l)
	}
	g.enableFn = enableDomains
	return g
}

// ListTabs returns the live page targets.
func (g *Gateway) ListTabs(ctx context.Context) ([]schemas.TargetInfo, error) {
	return g.registry.ListTargets(ctx)
}

// WithScope resolves tabID, connects to it, enables the required domains and
// runs fn. The connection is closed on every exit path, including a panic in fn.
func (g *Gateway) WithScope(ctx context.Context, tabID string, fn func(ctx context.Context, tab Tab) error) error {
	info, err := g.registry.Resolve(ctx, tabID)
	if err != nil {
		return err
	}

	if err := g.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for a free scope: %w", err)
	}
	defer g.sem.Release(1)

	scopeID := uuid.NewString()
	log := g.logger.With(observability.ScopeFields(scopeID, info.ID, "", "")...)

	start := time.Now()
	scopeCtx, closeScope, err := g.connect(ctx, info.ID)
	if err != nil {
		return dom.NewError(dom.KindTabNotFound, "attach", "", fmt.Sprintf("could not attach to tab %s", info.ID), err)
	}
	defer func() {
		closeScope()
		log.Debug("Scope closed.", zap.Duration("duration", time.Since(start)))
	}()
	log.Debug("Scope opened.", zap.String("url", info.URL))

	tab := g.newTab(scopeCtx, info, log)
	if err := g.enableFn(ctx, tab, log); err != nil {
		return dom.NewError(dom.KindEvaluationError, "attach", "", "could not enable protocol domains", err)
	}
	return fn(ctx, tab)
}

// dial attaches to an existing target as the connection's first context. The
// first context does not own the tab, so canceling it closes only the
// websocket and leaves the user's tab open.
func (g *Gateway) dial(ctx context.Context, targetID string) (context.Context, func(), error) {
	allocCtx, cancelAlloc := chromedp.NewRemoteAllocator(Detach(ctx), g.cfg.DebuggerURL)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithTargetID(target.ID(targetID)))
	closeFn := func() {
		cancelTab()
		cancelAlloc()
	}

	// The first Run binds the connection lifetime to its context, so it gets
	// tabCtx itself and the handshake bound is enforced from outside.
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(tabCtx) }()

	var timeout <-chan time.Time
	if g.cfg.HandshakeTimeout > 0 {
		timer := time.NewTimer(g.cfg.HandshakeTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case err := <-done:
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		return tabCtx, closeFn, nil
	case <-timeout:
		closeFn()
		return nil, nil, fmt.Errorf("handshake timed out after %v", g.cfg.HandshakeTimeout)
	case <-ctx.Done():
		closeFn()
		return nil, nil, ctx.Err()
	}
}

// enableDomains turns on page and runtime. The DOM domain only serves the
// protocol geometry sources, which have a script fallback, so failing to
// enable it is logged and ignored.
func enableDomains(ctx context.Context, tab Tab, log *zap.Logger) error {
	exec, ok := tab.(ActionExecutor)
	if !ok {
		return nil
	}
	if err := exec.RunActions(ctx, page.Enable(), runtime.Enable()); err != nil {
		return err
	}
	if err := exec.RunActions(ctx, cdpdom.Enable()); err != nil {
		log.Warn("DOM domain unavailable; coordinates will use fallbacks.", zap.Error(err))
	}
	return nil
}
