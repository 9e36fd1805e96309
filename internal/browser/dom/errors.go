package dom

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies every failure the interaction pipeline can report.
type Kind string

const (
	KindTabNotFound       Kind = "TabNotFound"
	KindElementNotFound   Kind = "ElementNotFound"
	KindInvalidSelector   Kind = "InvalidSelector"
	KindInteractionFailed Kind = "InteractionFailed"
	KindEvaluationError   Kind = "EvaluationError"
)

// Reason refines KindElementNotFound.
type Reason string

const (
	ReasonNone Reason = ""
	// ReasonNeverExisted means no matching node was observed at any point.
	ReasonNeverExisted Reason = "never-existed"
	// ReasonHidden means the node exists but is not visible.
	ReasonHidden Reason = "hidden"
	// ReasonTimedOut means a matching node was seen but the wait ran out first.
	ReasonTimedOut Reason = "timed-out"
)

// Error is the single error type produced by this package and the gateway.
type Error struct {
	Kind     Kind
	Reason   Reason
	Op       string
	Selector string
	Detail   string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Reason != ReasonNone {
		fmt.Fprintf(&b, " (%s)", e.Reason)
	}
	if e.Selector != "" {
		fmt.Fprintf(&b, " for %q", e.Selector)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by Kind, and by Reason when the target sets one.
// This lets callers write errors.Is(err, ErrElementHidden).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Reason == ReasonNone || t.Reason == e.Reason
}

// Sentinels for errors.Is.
var (
	ErrTabNotFound         = &Error{Kind: KindTabNotFound}
	ErrElementNotFound     = &Error{Kind: KindElementNotFound}
	ErrElementHidden       = &Error{Kind: KindElementNotFound, Reason: ReasonHidden}
	ErrElementNeverExisted = &Error{Kind: KindElementNotFound, Reason: ReasonNeverExisted}
	ErrElementWaitTimedOut = &Error{Kind: KindElementNotFound, Reason: ReasonTimedOut}
	ErrInvalidSelector     = &Error{Kind: KindInvalidSelector}
	ErrInteractionFailed   = &Error{Kind: KindInteractionFailed}
	ErrEvaluation          = &Error{Kind: KindEvaluationError}
)

// NewError builds an *Error. err may be nil.
func NewError(kind Kind, op, selector, detail string, err error) *Error {
	return &Error{Kind: kind, Op: op, Selector: selector, Detail: detail, Err: err}
}

// NotFound builds a KindElementNotFound error carrying a reason.
func NotFound(op, selector string, reason Reason) *Error {
	return &Error{Kind: KindElementNotFound, Reason: reason, Op: op, Selector: selector}
}

// EvaluationFailed wraps a failure raised while running a script in the page.
func EvaluationFailed(op string, err error) *Error {
	return &Error{Kind: KindEvaluationError, Op: op, Err: err}
}

// InvalidSelector builds a KindInvalidSelector error.
func InvalidSelector(selector, detail string) *Error {
	return &Error{Kind: KindInvalidSelector, Op: "validate", Selector: selector, Detail: detail}
}

// AsError extracts the *Error in err's chain. Context errors and anything else
// unrecognized are reported as evaluation errors so the boundary always has a kind.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindEvaluationError, Detail: "deadline exceeded", Err: err}
	}
	return &Error{Kind: KindEvaluationError, Err: err}
}

// KindOf returns the Kind of err, or "" when err is nil.
func KindOf(err error) Kind {
	if e := AsError(err); e != nil {
		return e.Kind
	}
	return ""
}

// ReasonOf returns the Reason of err, or ReasonNone.
func ReasonOf(err error) Reason {
	if e := AsError(err); e != nil {
		return e.Reason
	}
	return ReasonNone
}
