// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/tabpilot/api/schemas"
	"github.com/xkilldash9x/tabpilot/internal/browser/dom"
	"github.com/xkilldash9x/tabpilot/internal/browser/session"
	"github.com/xkilldash9x/tabpilot/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

var _ config.Interface = (*MockConfig)(nil)

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	args := m.Called()
	return args.Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Interaction() config.InteractionConfig {
	args := m.Called()
	return args.Get(0).(config.InteractionConfig)
}

func (m *MockConfig) MCP() config.MCPConfig {
	args := m.Called()
	return args.Get(0).(config.MCPConfig)
}

// --- Setters ---

func (m *MockConfig) SetBrowserDebuggerURL(url string)          { m.Called(url) }
func (m *MockConfig) SetBrowserTrustedInput(b bool)             { m.Called(b) }
func (m *MockConfig) SetInteractionWaitTimeout(d time.Duration) { m.Called(d) }
func (m *MockConfig) SetInteractionClearBeforeType(b bool)      { m.Called(b) }

// -- Gateway Mock --

// MockGateway mocks the engine's view of the session gateway. WithScope hands
// the Tab configured as its first return value to the callback unless an error
// is configured.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) ListTabs(ctx context.Context) ([]schemas.TargetInfo, error) {
	args := m.Called(ctx)
	tabs, _ := args.Get(0).([]schemas.TargetInfo)
	return tabs, args.Error(1)
}

func (m *MockGateway) WithScope(ctx context.Context, tabID string, fn func(ctx context.Context, tab session.Tab) error) error {
	args := m.Called(ctx, tabID)
	if err := args.Error(1); err != nil {
		return err
	}
	tab, _ := args.Get(0).(session.Tab)
	return fn(ctx, tab)
}

// -- Tab Mock --

// MockTab implements session.Tab.
type MockTab struct {
	mock.Mock
}

var _ session.Tab = (*MockTab)(nil)

func (m *MockTab) Target() schemas.TargetInfo {
	return m.Called().Get(0).(schemas.TargetInfo)
}

func (m *MockTab) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockTab) Location(ctx context.Context) (string, string, error) {
	args := m.Called(ctx)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *MockTab) Evaluate(ctx context.Context, expression string, out interface{}) error {
	return m.Called(ctx, expression, out).Error(0)
}

func (m *MockTab) ContentQuads(ctx context.Context, selector string) ([]schemas.Quad, error) {
	args := m.Called(ctx, selector)
	quads, _ := args.Get(0).([]schemas.Quad)
	return quads, args.Error(1)
}

func (m *MockTab) BoxModel(ctx context.Context, selector string) (schemas.Quad, error) {
	args := m.Called(ctx, selector)
	return args.Get(0).(schemas.Quad), args.Error(1)
}

func (m *MockTab) ScrollIntoView(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}

func (m *MockTab) DispatchClick(ctx context.Context, x, y float64) error {
	return m.Called(ctx, x, y).Error(0)
}

func (m *MockTab) InsertText(ctx context.Context, text string) error {
	return m.Called(ctx, text).Error(0)
}

func (m *MockTab) TrustedInput() bool { return m.Called().Bool(0) }

func (m *MockTab) Bind(ctx context.Context, name string) (<-chan string, func(), error) {
	args := m.Called(ctx, name)
	ch, _ := args.Get(0).(<-chan string)
	stop, _ := args.Get(1).(func())
	return ch, stop, args.Error(2)
}

// -- Page Mock --

// MockPage implements dom.Page.
type MockPage struct {
	mock.Mock
}

var _ dom.Page = (*MockPage)(nil)

func (m *MockPage) Query(ctx context.Context, selector string) ([]dom.ElementInfo, error) {
	args := m.Called(ctx, selector)
	nodes, _ := args.Get(0).([]dom.ElementInfo)
	return nodes, args.Error(1)
}

func (m *MockPage) Snapshot(ctx context.Context, selector string) (schemas.ElementSnapshot, error) {
	args := m.Called(ctx, selector)
	return args.Get(0).(schemas.ElementSnapshot), args.Error(1)
}

func (m *MockPage) Observe(ctx context.Context) (dom.Subscription, error) {
	args := m.Called(ctx)
	sub, _ := args.Get(0).(dom.Subscription)
	return sub, args.Error(1)
}

func (m *MockPage) ContentQuads(ctx context.Context, selector string) ([]schemas.Quad, error) {
	args := m.Called(ctx, selector)
	quads, _ := args.Get(0).([]schemas.Quad)
	return quads, args.Error(1)
}

func (m *MockPage) BoxModel(ctx context.Context, selector string) (schemas.Quad, error) {
	args := m.Called(ctx, selector)
	return args.Get(0).(schemas.Quad), args.Error(1)
}

func (m *MockPage) BoundingRect(ctx context.Context, selector string) (schemas.Rect, error) {
	args := m.Called(ctx, selector)
	return args.Get(0).(schemas.Rect), args.Error(1)
}

func (m *MockPage) TrustedInput() bool { return m.Called().Bool(0) }

func (m *MockPage) ScrollIntoView(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}

func (m *MockPage) DispatchClick(ctx context.Context, x, y float64) error {
	return m.Called(ctx, x, y).Error(0)
}

func (m *MockPage) InsertText(ctx context.Context, text string) error {
	return m.Called(ctx, text).Error(0)
}

func (m *MockPage) SimulateClick(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}

func (m *MockPage) Focus(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}

func (m *MockPage) ClearValue(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}

func (m *MockPage) AppendValue(ctx context.Context, selector, text string) error {
	return m.Called(ctx, selector, text).Error(0)
}

func (m *MockPage) Commit(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}

func (m *MockPage) ReadValue(ctx context.Context, selector string) (string, error) {
	args := m.Called(ctx, selector)
	return args.String(0), args.Error(1)
}

func (m *MockPage) OuterHTML(ctx context.Context, selector string) (string, bool, error) {
	args := m.Called(ctx, selector)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockPage) FormControls(ctx context.Context, selector string) ([]dom.ElementInfo, bool, error) {
	args := m.Called(ctx, selector)
	controls, _ := args.Get(0).([]dom.ElementInfo)
	return controls, args.Bool(1), args.Error(2)
}

// -- Subscription Mock --

// MockSubscription is a dom.Subscription driven by Signal.
type MockSubscription struct {
	mu     sync.Mutex
	ch     chan struct{}
	closed bool
}

// NewMockSubscription returns an open subscription.
func NewMockSubscription() *MockSubscription {
	return &MockSubscription{ch: make(chan struct{}, 1)}
}

func (s *MockSubscription) C() <-chan struct{} { return s.ch }

// Signal delivers one mutation notification, coalescing with a pending one.
func (s *MockSubscription) Signal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

func (s *MockSubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}

// Closed reports whether Close has been called.
func (s *MockSubscription) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
