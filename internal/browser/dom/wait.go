package dom

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tabpilot/api/schemas"
)

// finalCheckTimeout bounds the last observation taken after a wait expires.
const finalCheckTimeout = 2 * time.Second

// Waiter blocks until a node becomes visible. It re-checks on every document
// mutation and on a slow safety interval that catches style changes which do
// not mutate the DOM, such as stylesheet driven transitions.
type Waiter struct {
	page    Page
	recheck time.Duration
	logger  *zap.Logger
}

// NewWaiter creates a Waiter. A non-positive recheck uses the default interval.
func NewWaiter(page Page, recheck time.Duration, logger *zap.Logger) *Waiter {
	if recheck <= 0 {
		recheck = DefaultOptions().RecheckInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Waiter{page: page, recheck: recheck, logger: logger.Named("wait")}
}

// Check takes a single observation. A missing or hidden node is reported in the
// snapshot, not as an error.
func (w *Waiter) Check(ctx context.Context, selector string) (schemas.ElementSnapshot, error) {
	return w.page.Snapshot(ctx, selector)
}

// WaitVisible waits up to timeout for the first node matching selector to be
// visible. When the wait expires with the node present but hidden, the hidden
// snapshot is returned without error. When no node is present it returns
// KindElementNotFound with ReasonNeverExisted, or ReasonTimedOut when a node
// was seen at some point during the wait.
func (w *Waiter) WaitVisible(ctx context.Context, selector string, timeout time.Duration) (schemas.ElementSnapshot, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Immediate check before subscribing.
	snap, err := w.page.Snapshot(waitCtx, selector)
	if err != nil && !isWaitExpiry(waitCtx, err) {
		return snap, err
	}
	if err == nil && snap.Visible {
		return snap, nil
	}
	seen := snap.Exists

	var signals <-chan struct{}
	sub, subErr := w.page.Observe(waitCtx)
	if subErr != nil {
		w.logger.Debug("Mutation subscription unavailable; relying on re-checks.", zap.String("selector", selector), zap.Error(subErr))
	} else {
		defer func() {
			if cerr := sub.Close(); cerr != nil {
				w.logger.Debug("Failed to release mutation subscription.", zap.Error(cerr))
			}
		}()
		signals = sub.C()
	}

	ticker := time.NewTicker(w.recheck)
	defer ticker.Stop()

	for {
		select {
		case <-waitCtx.Done():
			return w.expire(ctx, selector, seen)
		case <-signals:
		case <-ticker.C:
		}

		snap, err = w.page.Snapshot(waitCtx, selector)
		if err != nil {
			if isWaitExpiry(waitCtx, err) {
				return w.expire(ctx, selector, seen)
			}
			if errors.Is(err, ErrInvalidSelector) {
				return snap, err
			}
			// Navigation can destroy the execution context mid-wait; try again.
			w.logger.Debug("Re-check failed; continuing.", zap.String("selector", selector), zap.Error(err))
			continue
		}
		if snap.Visible {
			return snap, nil
		}
		seen = seen || snap.Exists
	}
}

// expire takes one last observation outside the expired wait context.
func (w *Waiter) expire(parent context.Context, selector string, seen bool) (schemas.ElementSnapshot, error) {
	if err := parent.Err(); err != nil {
		return schemas.ElementSnapshot{}, &Error{Kind: KindElementNotFound, Reason: ReasonTimedOut, Op: "wait", Selector: selector, Err: err}
	}
	finalCtx, cancel := context.WithTimeout(context.WithoutCancel(parent), finalCheckTimeout)
	defer cancel()

	snap, err := w.page.Snapshot(finalCtx, selector)
	if err == nil && snap.Exists {
		return snap, nil
	}
	if seen {
		return schemas.ElementSnapshot{}, NotFound("wait", selector, ReasonTimedOut)
	}
	return schemas.ElementSnapshot{}, NotFound("wait", selector, ReasonNeverExisted)
}

func isWaitExpiry(waitCtx context.Context, err error) bool {
	return waitCtx.Err() != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, waitCtx.Err()))
}
