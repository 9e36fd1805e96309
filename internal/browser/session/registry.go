package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tabpilot/api/schemas"
	"github.com/xkilldash9x/tabpilot/internal/browser/dom"
)

// minPrefixLength is the shortest tab id prefix Resolve accepts.
const minPrefixLength = 6

// CDPRegistry lists targets through a short-lived browser-level connection.
type CDPRegistry struct {
	debuggerURL string
	timeout     time.Duration
	logger      *zap.Logger
	listFunc    func(ctx context.Context) ([]*target.Info, error)
}

var _ TabRegistry = (*CDPRegistry)(nil)

// NewCDPRegistry creates a registry for the browser at debuggerURL.
func NewCDPRegistry(debuggerURL string, timeout time.Duration, logger *zap.Logger) *CDPRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &CDPRegistry{debuggerURL: debuggerURL, timeout: timeout, logger: logger.Named("registry")}
	r.listFunc = r.fetchTargets
	return r
}

// fetchTargets connects to the browser endpoint without attaching to any tab.
// Canceling a context that never created a target only closes the websocket.
func (r *CDPRegistry) fetchTargets(ctx context.Context) ([]*target.Info, error) {
	allocCtx, cancelAlloc := chromedp.NewRemoteAllocator(Detach(ctx), r.debuggerURL)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	type result struct {
		infos []*target.Info
		err   error
	}
	done := make(chan result, 1)
	go func() {
		infos, err := chromedp.Targets(browserCtx)
		done <- result{infos, err}
	}()

	var timeout <-chan time.Time
	if r.timeout > 0 {
		timer := time.NewTimer(r.timeout)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case res := <-done:
		return res.infos, res.err
	case <-timeout:
		return nil, fmt.Errorf("listing targets at %s timed out after %v", r.debuggerURL, r.timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ListTargets returns every page target. Workers, iframes and extension
// backgrounds are not tabs.
func (r *CDPRegistry) ListTargets(ctx context.Context) ([]schemas.TargetInfo, error) {
	infos, err := r.listFunc(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list browser targets: %w", err)
	}
	tabs := make([]schemas.TargetInfo, 0, len(infos))
	for _, info := range infos {
		if info == nil || info.Type != "page" {
			continue
		}
		tabs = append(tabs, schemas.TargetInfo{
			ID:    string(info.TargetID),
			Type:  info.Type,
			URL:   info.URL,
			Title: info.Title,
		})
	}
	return tabs, nil
}

// Resolve matches tabID against the live page targets, either exactly or as a
// unique prefix of at least minPrefixLength characters.
func (r *CDPRegistry) Resolve(ctx context.Context, tabID string) (schemas.TargetInfo, error) {
	tabID = strings.TrimSpace(tabID)
	if tabID == "" {
		return schemas.TargetInfo{}, dom.NewError(dom.KindTabNotFound, "resolve_tab", "", "tab id is required", nil)
	}

	tabs, err := r.ListTargets(ctx)
	if err != nil {
		return schemas.TargetInfo{}, dom.NewError(dom.KindTabNotFound, "resolve_tab", "", "could not list targets", err)
	}

	var matches []schemas.TargetInfo
	for _, tab := range tabs {
		if strings.EqualFold(tab.ID, tabID) {
			return tab, nil
		}
		if len(tabID) >= minPrefixLength && strings.HasPrefix(strings.ToUpper(tab.ID), strings.ToUpper(tabID)) {
			matches = append(matches, tab)
		}
	}

	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return schemas.TargetInfo{}, dom.NewError(dom.KindTabNotFound, "resolve_tab", "", fmt.Sprintf("no live tab matches %q", tabID), nil)
	default:
		r.logger.Debug("Ambiguous tab prefix.", zap.String("tab_id", tabID), zap.Int("matches", len(matches)))
		return schemas.TargetInfo{}, dom.NewError(dom.KindTabNotFound, "resolve_tab", "", fmt.Sprintf("tab id prefix %q matches %d tabs", tabID, len(matches)), nil)
	}
}
