package dom

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/xkilldash9x/tabpilot/api/schemas"
)

// scriptReply is the envelope every selector script returns.
type scriptReply struct {
	Invalid  string                  `json:"invalid"`
	Found    bool                    `json:"found"`
	Nodes    []ElementInfo           `json:"nodes"`
	Snapshot schemas.ElementSnapshot `json:"snapshot"`
	Rect     schemas.Rect            `json:"rect"`
	Value    string                  `json:"value"`
	HTML     string                  `json:"html"`
}

// ScriptPage implements Page by evaluating scripts through Primitives.
type ScriptPage struct {
	prims Primitives
}

var _ Page = (*ScriptPage)(nil)

// NewScriptPage creates a ScriptPage.
func NewScriptPage(prims Primitives) *ScriptPage {
	return &ScriptPage{prims: prims}
}

// run evaluates a selector script and converts the envelope into errors.
func (p *ScriptPage) run(ctx context.Context, op, selector, body string, args ...string) (scriptReply, error) {
	var script string
	if len(args) == 0 {
		script = selectorScript(body, selector)
	} else {
		script = buildScript(body, []string{"sel", "text"}, selector, args[0])
	}

	var reply scriptReply
	if err := p.prims.Evaluate(ctx, script, &reply); err != nil {
		var e *Error
		if errors.As(err, &e) && e.Op == "" {
			e.Op = op
			e.Selector = selector
		}
		return reply, err
	}
	if reply.Invalid != "" {
		return reply, InvalidSelector(selector, reply.Invalid)
	}
	return reply, nil
}

// mustFind is run for scripts where a missing node is an error.
func (p *ScriptPage) mustFind(ctx context.Context, op, selector, body string, args ...string) (scriptReply, error) {
	reply, err := p.run(ctx, op, selector, body, args...)
	if err != nil {
		return reply, err
	}
	if !reply.Found {
		return reply, NotFound(op, selector, ReasonNeverExisted)
	}
	return reply, nil
}

func (p *ScriptPage) Query(ctx context.Context, selector string) ([]ElementInfo, error) {
	reply, err := p.run(ctx, "query", selector, queryScript)
	if err != nil {
		return nil, err
	}
	return reply.Nodes, nil
}

func (p *ScriptPage) Snapshot(ctx context.Context, selector string) (schemas.ElementSnapshot, error) {
	reply, err := p.run(ctx, "snapshot", selector, snapshotScript)
	if err != nil {
		return schemas.ElementSnapshot{}, err
	}
	if !reply.Found {
		return schemas.ElementSnapshot{}, nil
	}
	return reply.Snapshot, nil
}

func (p *ScriptPage) ContentQuads(ctx context.Context, selector string) ([]schemas.Quad, error) {
	return p.prims.ContentQuads(ctx, selector)
}

func (p *ScriptPage) BoxModel(ctx context.Context, selector string) (schemas.Quad, error) {
	return p.prims.BoxModel(ctx, selector)
}

func (p *ScriptPage) BoundingRect(ctx context.Context, selector string) (schemas.Rect, error) {
	reply, err := p.mustFind(ctx, "bounding_rect", selector, boundingRectScript)
	if err != nil {
		return schemas.Rect{}, err
	}
	return reply.Rect, nil
}

func (p *ScriptPage) TrustedInput() bool { return p.prims.TrustedInput() }

// ScrollIntoView asks the browser to scroll the node into view and falls back
// to scrolling it from a page script.
func (p *ScriptPage) ScrollIntoView(ctx context.Context, selector string) error {
	if err := p.prims.ScrollIntoView(ctx, selector); err == nil {
		return nil
	}
	_, err := p.mustFind(ctx, "scroll", selector, scrollIntoViewScript)
	return err
}

func (p *ScriptPage) DispatchClick(ctx context.Context, x, y float64) error {
	return p.prims.DispatchClick(ctx, x, y)
}

func (p *ScriptPage) InsertText(ctx context.Context, text string) error {
	return p.prims.InsertText(ctx, text)
}

func (p *ScriptPage) SimulateClick(ctx context.Context, selector string) error {
	_, err := p.mustFind(ctx, "click", selector, simulateClickScript)
	return err
}

func (p *ScriptPage) Focus(ctx context.Context, selector string) error {
	_, err := p.mustFind(ctx, "focus", selector, focusScript)
	return err
}

func (p *ScriptPage) ClearValue(ctx context.Context, selector string) error {
	_, err := p.mustFind(ctx, "clear", selector, clearScript)
	return err
}

func (p *ScriptPage) AppendValue(ctx context.Context, selector, text string) error {
	_, err := p.mustFind(ctx, "type", selector, appendScript, text)
	return err
}

func (p *ScriptPage) Commit(ctx context.Context, selector string) error {
	_, err := p.mustFind(ctx, "commit", selector, commitScript)
	return err
}

func (p *ScriptPage) ReadValue(ctx context.Context, selector string) (string, error) {
	reply, err := p.mustFind(ctx, "read_value", selector, readValueScript)
	if err != nil {
		return "", err
	}
	return reply.Value, nil
}

func (p *ScriptPage) OuterHTML(ctx context.Context, selector string) (string, bool, error) {
	reply, err := p.run(ctx, "extract_text", selector, outerHTMLScript)
	if err != nil {
		return "", false, err
	}
	return reply.HTML, reply.Found, nil
}

func (p *ScriptPage) FormControls(ctx context.Context, selector string) ([]ElementInfo, bool, error) {
	reply, err := p.run(ctx, "inspect_form", selector, formControlsScript)
	if err != nil {
		return nil, false, err
	}
	return reply.Nodes, reply.Found, nil
}

// Observe installs a MutationObserver that reports through a page binding.
func (p *ScriptPage) Observe(ctx context.Context) (Subscription, error) {
	binding := "__tabpilotMutation_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	payloads, stop, err := p.prims.Bind(ctx, binding)
	if err != nil {
		return nil, err
	}

	var ok bool
	if err := p.prims.Evaluate(ctx, sprintfScript(observeScript, binding), &ok); err != nil {
		stop()
		return nil, err
	}

	sub := &mutationSubscription{
		page:    p,
		binding: binding,
		stop:    stop,
		signals: make(chan struct{}, 1),
		done:    make(chan struct{}),
		ctx:     context.WithoutCancel(ctx),
	}
	sub.wg.Add(1)
	go sub.pump(payloads)
	return sub, nil
}

// mutationSubscription coalesces binding payloads into a single pending signal.
type mutationSubscription struct {
	page    *ScriptPage
	binding string
	stop    func()
	signals chan struct{}
	done    chan struct{}
	ctx     context.Context
	once    sync.Once
	wg      sync.WaitGroup
}

func (s *mutationSubscription) C() <-chan struct{} { return s.signals }

func (s *mutationSubscription) pump(payloads <-chan string) {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case _, ok := <-payloads:
			if !ok {
				return
			}
			select {
			case s.signals <- struct{}{}:
			default:
			}
		}
	}
}

// Close disconnects the in-page observer, stops the binding and waits for the
// pump goroutine to exit.
func (s *mutationSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.stop()
		s.wg.Wait()

		ctx, cancel := context.WithTimeout(s.ctx, finalCheckTimeout)
		defer cancel()
		var ok bool
		err = s.page.prims.Evaluate(ctx, sprintfScript(disconnectScript, s.binding), &ok)
	})
	return err
}
