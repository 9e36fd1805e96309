package dom

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xkilldash9x/tabpilot/api/schemas"
)

// -- In-memory Page used by the package tests --

type fakeElement struct {
	info      ElementInfo
	selectors []string
	present   bool
	quads     []schemas.Quad
	box       *schemas.Quad
	rect      schemas.Rect
	html      string
	controls  []ElementInfo
}

func (e *fakeElement) with(selectors ...string) *fakeElement {
	e.selectors = append(e.selectors, selectors...)
	return e
}

func (e *fakeElement) hidden() *fakeElement {
	e.info.Visible = false
	return e
}

func (e *fakeElement) matches(sel string) bool {
	if !e.present {
		return false
	}
	if sel == e.info.BestSelector() || sel == strings.ToLower(e.info.Tag) || (e.info.Path != "" && sel == e.info.Path) {
		return true
	}
	for _, s := range e.selectors {
		if s == sel {
			return true
		}
	}
	return false
}

func newElement(info ElementInfo) *fakeElement {
	if info.Tag == "" {
		info.Tag = "div"
	}
	info.Visible = true
	return &fakeElement{
		info:    info,
		present: true,
		quads:   []schemas.Quad{{10, 10, 110, 10, 110, 30, 10, 30}},
		rect:    schemas.Rect{X: 10, Y: 10, Width: 100, Height: 20},
	}
}

func fakeButton(info ElementInfo) *fakeElement {
	info.Tag = "button"
	return newElement(info).with(textGroups[0].selector)
}

func fakeLink(info ElementInfo) *fakeElement {
	info.Tag = "a"
	return newElement(info).with(textGroups[1].selector)
}

func fakeInput(info ElementInfo) *fakeElement {
	if info.Tag == "" {
		info.Tag = "input"
	}
	return newElement(info).with(textGroups[2].selector)
}

type fakeSub struct {
	page   *fakePage
	ch     chan struct{}
	mu     sync.Mutex
	closed bool
}

func (s *fakeSub) C() <-chan struct{} { return s.ch }

func (s *fakeSub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.page.mu.Lock()
	defer s.page.mu.Unlock()
	for i, sub := range s.page.subs {
		if sub == s {
			s.page.subs = append(s.page.subs[:i], s.page.subs[i+1:]...)
			break
		}
	}
	return nil
}

type fakePage struct {
	mu       sync.Mutex
	elements []*fakeElement
	invalid  map[string]bool
	trusted  bool
	values   map[string]string
	focused  string

	subs    []*fakeSub
	allSubs []*fakeSub
	calls   []string
	queries []string
	nSnaps  int

	queryErr    error
	snapshotErr error
	observeErr  error
	quadsErr    error
	boxErr      error
	dispatchErr error
	insertErr   error
	simulateErr error
	scrollErr   error

	// dropInsert makes InsertText report success without changing the value.
	dropInsert bool
}

func newFakePage(elements ...*fakeElement) *fakePage {
	return &fakePage{elements: elements, invalid: map[string]bool{}, trusted: true, values: map[string]string{}}
}

var _ Page = (*fakePage)(nil)

func (p *fakePage) record(format string, args ...interface{}) {
	p.calls = append(p.calls, fmt.Sprintf(format, args...))
}

// mutate applies fn under the lock and signals every live subscription.
func (p *fakePage) mutate(fn func()) {
	p.mu.Lock()
	fn()
	subs := append([]*fakeSub(nil), p.subs...)
	p.mu.Unlock()
	for _, s := range subs {
		select {
		case s.ch <- struct{}{}:
		default:
		}
	}
}

func (p *fakePage) first(sel string) *fakeElement {
	for _, e := range p.elements {
		if e.matches(sel) {
			return e
		}
	}
	return nil
}

func (p *fakePage) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakePage) liveSubs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

func (p *fakePage) Query(ctx context.Context, selector string) ([]ElementInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queries = append(p.queries, selector)
	if p.queryErr != nil {
		return nil, p.queryErr
	}
	if p.invalid[selector] {
		return nil, InvalidSelector(selector, "not a valid selector")
	}
	var out []ElementInfo
	for _, e := range p.elements {
		if e.matches(selector) {
			out = append(out, e.info)
		}
	}
	return out, nil
}

func (p *fakePage) Snapshot(ctx context.Context, selector string) (schemas.ElementSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return schemas.ElementSnapshot{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nSnaps++
	if p.snapshotErr != nil {
		return schemas.ElementSnapshot{}, p.snapshotErr
	}
	if p.invalid[selector] {
		return schemas.ElementSnapshot{}, InvalidSelector(selector, "not a valid selector")
	}
	e := p.first(selector)
	if e == nil {
		return schemas.ElementSnapshot{}, nil
	}
	return schemas.ElementSnapshot{Exists: true, Visible: e.info.Visible, Bounds: e.rect}, nil
}

func (p *fakePage) Observe(ctx context.Context) (Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.observeErr != nil {
		return nil, p.observeErr
	}
	s := &fakeSub{page: p, ch: make(chan struct{}, 1)}
	p.subs = append(p.subs, s)
	p.allSubs = append(p.allSubs, s)
	return s, nil
}

func (p *fakePage) ContentQuads(ctx context.Context, selector string) ([]schemas.Quad, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.quadsErr != nil {
		return nil, p.quadsErr
	}
	e := p.first(selector)
	if e == nil {
		return nil, NotFound("quads", selector, ReasonNeverExisted)
	}
	return e.quads, nil
}

func (p *fakePage) BoxModel(ctx context.Context, selector string) (schemas.Quad, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.boxErr != nil {
		return schemas.Quad{}, p.boxErr
	}
	e := p.first(selector)
	if e == nil || e.box == nil {
		return schemas.Quad{}, errors.New("no box model")
	}
	return *e.box, nil
}

func (p *fakePage) BoundingRect(ctx context.Context, selector string) (schemas.Rect, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.first(selector)
	if e == nil {
		return schemas.Rect{}, NotFound("bounding_rect", selector, ReasonNeverExisted)
	}
	return e.rect, nil
}

func (p *fakePage) TrustedInput() bool { return p.trusted }

func (p *fakePage) ScrollIntoView(ctx context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("scrollIntoView %s", selector)
	return p.scrollErr
}

func (p *fakePage) DispatchClick(ctx context.Context, x, y float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("dispatchClick %.0f,%.0f", x, y)
	return p.dispatchErr
}

func (p *fakePage) InsertText(ctx context.Context, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("insertText %s", text)
	if p.insertErr != nil {
		return p.insertErr
	}
	if !p.dropInsert {
		p.values[p.focused] += text
	}
	return nil
}

func (p *fakePage) SimulateClick(ctx context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("simulateClick %s", selector)
	return p.simulateErr
}

func (p *fakePage) Focus(ctx context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("focus %s", selector)
	p.focused = selector
	return nil
}

func (p *fakePage) ClearValue(ctx context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("clear %s", selector)
	p.values[selector] = ""
	return nil
}

func (p *fakePage) AppendValue(ctx context.Context, selector, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("append %s %s", selector, text)
	p.values[selector] += text
	return nil
}

func (p *fakePage) Commit(ctx context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("commit %s", selector)
	return nil
}

func (p *fakePage) ReadValue(ctx context.Context, selector string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.values[selector], nil
}

func (p *fakePage) OuterHTML(ctx context.Context, selector string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.first(selector)
	if e == nil {
		return "", false, nil
	}
	return e.html, true, nil
}

func (p *fakePage) FormControls(ctx context.Context, selector string) ([]ElementInfo, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.first(selector)
	if e == nil {
		return nil, false, nil
	}
	return e.controls, true, nil
}
