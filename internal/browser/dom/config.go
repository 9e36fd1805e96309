// browser/dom/config.go
package dom

import (
	"time"
)

// Options tunes the interaction pipeline. Zero values fall back to defaults.
type Options struct {
	WaitTimeout     time.Duration
	RecheckInterval time.Duration
	ClearBeforeType bool
	PreviewLength   int
	Limits          Limits
}

// DefaultOptions returns the stock interaction options.
func DefaultOptions() Options {
	return Options{
		WaitTimeout:     5 * time.Second,
		RecheckInterval: 500 * time.Millisecond,
		ClearBeforeType: true,
		PreviewLength:   50,
		Limits:          DefaultLimits(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.WaitTimeout <= 0 {
		o.WaitTimeout = d.WaitTimeout
	}
	if o.RecheckInterval <= 0 {
		o.RecheckInterval = d.RecheckInterval
	}
	if o.Limits.MaxSelectorLength <= 0 {
		o.Limits.MaxSelectorLength = d.Limits.MaxSelectorLength
	}
	if o.Limits.MaxTextLength <= 0 {
		o.Limits.MaxTextLength = d.Limits.MaxTextLength
	}
	return o
}
