// Package matcher interprets an episode.Episode against a Source,
// producing one Outcome according to each variant's own semantics.
//
// Evaluation is trampolined in one specific direction: once a
// continuation's result is already a Pure value, proceed's loop applies
// every subsequent continuation in the chain without recursing, so a
// run of `.map(f)` calls chained onto an already-resolved value costs
// O(1) added Go call-stack depth at that point. Walking down to that
// point is not free, though: runStep descends a Bind/Map node's Prev
// chain via ordinary recursive calls, and proceed falls back to
// runStep (not a loop iteration) whenever a continuation yields
// anything other than Pure or RaiseError. Both are therefore O(depth)
// in Go call-stack frames, bounded by how deep the Episode value itself
// is nested rather than by how many events it consumes. In practice
// this is fine because Go grows goroutine stacks on demand, not because
// the depth is bounded.
package matcher

import (
	"context"
	"fmt"

	"github.com/mikabele/canoe-go/internal/episode"
)

// cont is one pending continuation, the trampoline's explicit stack
// frame. fn is either a user-supplied Bind continuation or a synthetic
// one wrapping a Map function.
type cont struct {
	fn   func(any) *episode.Episode
	next *cont
}

// Run evaluates ep against src once, honoring cancellation via ctx.
// It returns exactly one Outcome: Matched, Mismatched, Failed,
// Cancelled, or NoMoreInput.
func Run(ctx context.Context, ep *episode.Episode, src Source) Outcome {
	return runStep(ctx, ep, src, nil)
}

func runStep(ctx context.Context, ep *episode.Episode, src Source, conts *cont) Outcome {
	select {
	case <-ctx.Done():
		return Outcome{Tag: TagCancelled}
	default:
	}

	switch ep.Kind {
	case episode.KindPure:
		return proceed(ctx, src, conts, ep.Value)

	case episode.KindEval:
		return runEval(ctx, ep, src, conts)

	case episode.KindRaiseError:
		return Outcome{Tag: TagFailed, Err: ep.Err}

	case episode.KindNext:
		return runNext(ctx, ep, src, conts)

	case episode.KindBind:
		return runStep(ctx, ep.Prev, src, &cont{fn: ep.Bind, next: conts})

	case episode.KindMap:
		wrapped := func(v any) *episode.Episode { return episode.Pure(ep.MapF(v)) }
		return runStep(ctx, ep.Prev, src, &cont{fn: wrapped, next: conts})

	case episode.KindProtected:
		return runProtected(ctx, ep, src, conts)

	case episode.KindTolerate:
		return runTolerate(ctx, ep, src, conts)

	case episode.KindCancellable:
		return runCancellable(ctx, ep, src, conts)

	case episode.KindTimeLimited:
		return runTimeLimited(ctx, ep, src, conts)

	default:
		return Outcome{Tag: TagFailed, Err: fmt.Errorf("matcher: unknown episode kind %v", ep.Kind)}
	}
}

// proceed drains the continuation stack. A continuation that yields
// Pure/RaiseError is resolved inline (the trampoline's fast path);
// anything else is handed back to runStep, which recurses exactly once
// per genuine step.
func proceed(ctx context.Context, src Source, conts *cont, value any) Outcome {
	for conts != nil {
		k := conts.fn
		conts = conts.next
		next := k(value)
		switch next.Kind {
		case episode.KindPure:
			value = next.Value
			continue
		case episode.KindRaiseError:
			return Outcome{Tag: TagFailed, Err: next.Err}
		default:
			return runStep(ctx, next, src, conts)
		}
	}
	return Outcome{Tag: TagMatched, Value: value}
}

func runEval(ctx context.Context, ep *episode.Episode, src Source, conts *cont) Outcome {
	notifySuspend(ep)
	v, err := ep.Effect(ctx)
	notifyResume(ep)
	if err != nil {
		return Outcome{Tag: TagFailed, Err: err}
	}
	return proceed(ctx, src, conts, v)
}

func runNext(ctx context.Context, ep *episode.Episode, src Source, conts *cont) Outcome {
	notifySuspend(ep)
	ev, halt := src.Next(ctx)
	notifyResume(ep)
	if halt != nil {
		return *halt
	}
	if ep.Predicate(ev) {
		return proceed(ctx, src, conts, ev)
	}
	return Outcome{Tag: TagMismatched, Event: ev}
}

// runProtected evaluates inner in isolation (its own, empty
// continuation stack — Protected's recovery scope only covers inner,
// not whatever comes after it in an enclosing Bind). On Failed, it
// hands control to recover on the same, already-advanced src; Protected
// does not rewind consumed input. Matched feeds the outer conts;
// Mismatched and Cancelled are not caught and propagate untouched,
// discarding the outer conts.
func runProtected(ctx context.Context, ep *episode.Episode, src Source, conts *cont) Outcome {
	out := runStep(ctx, ep.Inner, src, nil)
	switch out.Tag {
	case TagFailed:
		recovered := ep.Recover(out.Err)
		return runStep(ctx, recovered, src, conts)
	case TagMatched:
		return proceed(ctx, src, conts, out.Value)
	default:
		return out
	}
}

// runTolerate restarts inner (from scratch, on the same src — which has
// already advanced past the mismatched event) each time inner
// mismatches, until limit is exhausted. Failed and Cancelled from inner
// are not caught and propagate as-is.
func runTolerate(ctx context.Context, ep *episode.Episode, src Source, conts *cont) Outcome {
	limit := ep.Limit
	for {
		out := runStep(ctx, ep.Inner, src, nil)
		switch out.Tag {
		case TagMismatched:
			if ep.OnMismatch != nil {
				if err := ep.OnMismatch(ctx, out.Event); err != nil {
					return Outcome{Tag: TagFailed, Err: fmt.Errorf("tolerate onMismatch effect: %w", err)}
				}
			}
			if limit != nil {
				if *limit <= 0 {
					return out
				}
				remaining := *limit - 1
				limit = &remaining
			}
			continue
		case TagMatched:
			return proceed(ctx, src, conts, out.Value)
		default:
			return out
		}
	}
}

func runCancellable(ctx context.Context, ep *episode.Episode, src Source, conts *cont) Outcome {
	wrapped := &cancellableSource{
		inner:      src,
		cancelWhen: ep.CancelWhen,
		onCancel:   ep.OnCancel,
	}
	out := runStep(ctx, ep.Inner, wrapped, nil)
	if out.Tag == TagMatched {
		return proceed(ctx, src, conts, out.Value)
	}
	return out
}

// runTimeLimited imposes a deadline starting now (not on first event)
// by deriving a child context. The deadline interrupts whatever
// suspension point inner is blocked on (Next's channel receive, most
// commonly); a well-behaved Eval effect also observes ctx directly.
func runTimeLimited(ctx context.Context, ep *episode.Episode, src Source, conts *cont) Outcome {
	deadlineCtx, cancel := context.WithTimeout(ctx, ep.Duration)
	defer cancel()

	out := runStep(deadlineCtx, ep.Inner, src, nil)
	if out.Tag == TagMatched {
		return proceed(ctx, src, conts, out.Value)
	}
	return out
}

func notifySuspend(ep *episode.Episode) {
	if ep.Hooks.OnSuspend != nil {
		ep.Hooks.OnSuspend()
	}
}

func notifyResume(ep *episode.Episode) {
	if ep.Hooks.OnResume != nil {
		ep.Hooks.OnResume()
	}
}
