package matcher

import (
	"context"
	"fmt"

	"github.com/mikabele/canoe-go/internal/chatevent"
)

// cancellableSource decorates an underlying Source so that every event
// is checked against cancelWhen before the wrapped episode's own Next
// gets a chance to see it. This is what gives Cancellable uniform
// observation of all events passing through inner, including those
// nested inside its sub-episodes, and what makes Cancellable win the
// tie-break against a Next checked on the same event: cancellation is
// always checked before the inner episode sees the event.
type cancellableSource struct {
	inner      Source
	cancelWhen func(chatevent.Event) bool
	onCancel   func(ctx context.Context, ev chatevent.Event) error
}

func (c *cancellableSource) Next(ctx context.Context) (chatevent.Event, *Outcome) {
	ev, halt := c.inner.Next(ctx)
	if halt != nil {
		return ev, halt
	}
	if !c.cancelWhen(ev) {
		return ev, nil
	}
	if c.onCancel != nil {
		if err := c.onCancel(ctx, ev); err != nil {
			// An effect error inside onCancel escalates to a match
			// failure rather than being swallowed.
			return chatevent.Event{}, &Outcome{
				Tag: TagFailed,
				Err: fmt.Errorf("cancellable onCancel effect: %w", err),
			}
		}
	}
	return chatevent.Event{}, &Outcome{Tag: TagCancelled}
}
