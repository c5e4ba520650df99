package matcher

import (
	"context"

	"github.com/mikabele/canoe-go/internal/chatevent"
)

// Source is a pull cursor over the input stream. It is the Go rendering
// of a match step's (value, remaining-stream) pair: rather than pairing
// every outcome with an immutable tail stream, Source is a mutable,
// single-consumer cursor — once Next returns an event, that event cannot
// be seen again by this Source, which is exactly the linearity
// invariant required of event consumption: once an event is consumed it
// is never revisited.
//
// Next blocks until an event is available, ctx is done, or the stream
// is exhausted. A non-nil halt return means the caller cannot proceed
// with an ordinary match step and must propagate the given Outcome
// instead (Cancelled for context cancellation, NoMoreInput for an
// exhausted stream).
type Source interface {
	Next(ctx context.Context) (ev chatevent.Event, halt *Outcome)
}

// ChanSource adapts a channel of events — as produced by
// internal/demux's per-conversation fan-out — into a Source.
type ChanSource struct {
	ch <-chan chatevent.Event
}

// NewChanSource wraps ch as a Source.
func NewChanSource(ch <-chan chatevent.Event) *ChanSource {
	return &ChanSource{ch: ch}
}

// Next implements Source.
func (s *ChanSource) Next(ctx context.Context) (chatevent.Event, *Outcome) {
	select {
	case <-ctx.Done():
		return chatevent.Event{}, &Outcome{Tag: TagCancelled}
	case ev, ok := <-s.ch:
		if !ok {
			return chatevent.Event{}, &Outcome{Tag: TagNoMoreInput}
		}
		return ev, nil
	}
}
