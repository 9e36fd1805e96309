package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	cdpdom "github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/tabpilot/api/schemas"
	"github.com/xkilldash9x/tabpilot/internal/browser/dom"
	"github.com/xkilldash9x/tabpilot/internal/config"
)

type mockRegistry struct {
	mock.Mock
}

func (m *mockRegistry) ListTargets(ctx context.Context) ([]schemas.TargetInfo, error) {
	args := m.Called(ctx)
	tabs, _ := args.Get(0).([]schemas.TargetInfo)
	return tabs, args.Error(1)
}

func (m *mockRegistry) Resolve(ctx context.Context, tabID string) (schemas.TargetInfo, error) {
	args := m.Called(ctx, tabID)
	return args.Get(0).(schemas.TargetInfo), args.Error(1)
}

type gatewayHarness struct {
	gw      *Gateway
	reg     *mockRegistry
	rec     *recorder
	opened  atomic.Int32
	closed  atomic.Int32
	connErr error
}

func newHarness(t *testing.T, scopes int) *gatewayHarness {
	h := &gatewayHarness{reg: &mockRegistry{}, rec: &recorder{}}
	cfg := config.BrowserConfig{DebuggerURL: "http://127.0.0.1:9222", MaxConcurrentScopes: scopes, TrustedInput: true}
	h.gw = NewGateway(cfg, time.Second, h.reg, zaptest.NewLogger(t))
	h.gw.connect = func(ctx context.Context, targetID string) (context.Context, func(), error) {
		if h.connErr != nil {
			return nil, nil, h.connErr
		}
		h.opened.Add(1)
		return context.Background(), func() { h.closed.Add(1) }, nil
	}
	baseNewTab := h.gw.newTab
	h.gw.newTab = func(ctx context.Context, info schemas.TargetInfo, l *zap.Logger) Tab {
		tab := baseNewTab(ctx, info, l).(*cdpExecutor)
		tab.runActionsFunc = h.rec.run
		return tab
	}
	return h
}

var exampleTab = schemas.TargetInfo{ID: "TAB1", Type: "page", URL: "https://example.com"}

func TestGateway_WithScope(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(t, 2)
	h.reg.On("Resolve", mock.Anything, "TAB1").Return(exampleTab, nil)

	var got schemas.TargetInfo
	err := h.gw.WithScope(context.Background(), "TAB1", func(ctx context.Context, tab Tab) error {
		got = tab.Target()
		assert.True(t, tab.TrustedInput())
		assert.Equal(t, int32(0), h.closed.Load(), "scope must stay open while fn runs")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, exampleTab, got)
	assert.Equal(t, int32(1), h.opened.Load())
	assert.Equal(t, int32(1), h.closed.Load())
	// page + runtime, then dom.
	assert.Len(t, h.rec.Actions(), 3)
	h.reg.AssertExpectations(t)
}

func TestGateway_ClosesOnEveryExit(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("error", func(t *testing.T) {
		h := newHarness(t, 1)
		h.reg.On("Resolve", mock.Anything, "TAB1").Return(exampleTab, nil)
		boom := errors.New("boom")

		err := h.gw.WithScope(context.Background(), "TAB1", func(context.Context, Tab) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, int32(1), h.closed.Load())
	})

	t.Run("panic", func(t *testing.T) {
		h := newHarness(t, 1)
		h.reg.On("Resolve", mock.Anything, "TAB1").Return(exampleTab, nil)

		assert.Panics(t, func() {
			_ = h.gw.WithScope(context.Background(), "TAB1", func(context.Context, Tab) error { panic("fn exploded") })
		})
		assert.Equal(t, int32(1), h.closed.Load())

		// The slot was released.
		err := h.gw.WithScope(context.Background(), "TAB1", func(context.Context, Tab) error { return nil })
		assert.NoError(t, err)
	})

	t.Run("deadline", func(t *testing.T) {
		h := newHarness(t, 1)
		h.reg.On("Resolve", mock.Anything, "TAB1").Return(exampleTab, nil)
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		err := h.gw.WithScope(ctx, "TAB1", func(ctx context.Context, _ Tab) error {
			<-ctx.Done()
			return ctx.Err()
		})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, int32(1), h.closed.Load())
	})
}

func TestGateway_TabNotFound(t *testing.T) {
	h := newHarness(t, 1)
	h.reg.On("Resolve", mock.Anything, "GONE").Return(schemas.TargetInfo{}, dom.NewError(dom.KindTabNotFound, "resolve_tab", "", "no live tab", nil))

	called := false
	err := h.gw.WithScope(context.Background(), "GONE", func(context.Context, Tab) error { called = true; return nil })
	assert.True(t, errors.Is(err, dom.ErrTabNotFound))
	assert.False(t, called)
	assert.Equal(t, int32(0), h.opened.Load())
}

func TestGateway_AttachFailure(t *testing.T) {
	h := newHarness(t, 1)
	h.reg.On("Resolve", mock.Anything, "TAB1").Return(exampleTab, nil)
	h.connErr = errors.New("websocket: bad handshake")

	err := h.gw.WithScope(context.Background(), "TAB1", func(context.Context, Tab) error { return nil })
	require.Error(t, err)
	assert.Equal(t, dom.KindTabNotFound, dom.KindOf(err))
	assert.ErrorContains(t, err, "bad handshake")
}

func TestGateway_DOMDomainIsOptional(t *testing.T) {
	h := newHarness(t, 1)
	h.reg.On("Resolve", mock.Anything, "TAB1").Return(exampleTab, nil)
	h.rec.fn = func(_ context.Context, actions ...chromedp.Action) error {
		if _, ok := actions[0].(*cdpdom.EnableParams); ok {
			return errors.New("'DOM.enable' wasn't found")
		}
		return nil
	}

	ran := false
	err := h.gw.WithScope(context.Background(), "TAB1", func(context.Context, Tab) error { ran = true; return nil })
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestGateway_RequiredDomainFailure(t *testing.T) {
	h := newHarness(t, 1)
	h.reg.On("Resolve", mock.Anything, "TAB1").Return(exampleTab, nil)
	h.rec.fn = func(context.Context, ...chromedp.Action) error { return errors.New("target crashed") }

	err := h.gw.WithScope(context.Background(), "TAB1", func(context.Context, Tab) error { return nil })
	require.Error(t, err)
	assert.Equal(t, int32(1), h.closed.Load())
}

func TestGateway_BoundsConcurrentScopes(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(t, 2)
	h.reg.On("Resolve", mock.Anything, mock.Anything).Return(exampleTab, nil)

	var active, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.gw.WithScope(context.Background(), "TAB1", func(context.Context, Tab) error {
				n := active.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				active.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, int32(6), h.opened.Load())
	assert.Equal(t, int32(6), h.closed.Load())
}

func TestGateway_ListTabs(t *testing.T) {
	h := newHarness(t, 1)
	h.reg.On("ListTargets", mock.Anything).Return([]schemas.TargetInfo{exampleTab}, nil)

	tabs, err := h.gw.ListTabs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []schemas.TargetInfo{exampleTab}, tabs)
}
