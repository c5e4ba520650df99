// Package scenario is the user-facing façade: a generic wrapper around
// the untyped episode.Episode IR that restores static typing at the
// public API boundary.
//
// Go methods cannot introduce type parameters beyond the receiver's, so
// operations that change the carried type (FlatMap, Map, Attempt) are
// free generic functions — the same shape the wider Go ecosystem uses
// for generic collection helpers (e.g. samber/lo's `lo.Map[T, R]`)
// because Go has no higher-kinded types to abstract over. Operations
// that keep the same type parameter (HandleErrorWith, Tolerate,
// TolerateN, TolerateAll, StopOn, StopWith, Within, MapK) are ordinary
// methods on Scenario[A].
package scenario

import (
	"context"
	"time"

	"github.com/mikabele/canoe-go/internal/chatevent"
	"github.com/mikabele/canoe-go/internal/episode"
)

// Scenario wraps an Episode IR value, carrying the Go type of the value
// a successful match yields.
type Scenario[A any] struct {
	ep *episode.Episode
}

// Episode exposes the underlying IR node to collaborators within this
// module (the matcher and demux) without widening the public API.
func (s Scenario[A]) Episode() *episode.Episode { return s.ep }

// Pure builds a Scenario that succeeds immediately with a, consuming no
// input.
func Pure[A any](a A) Scenario[A] {
	return Scenario[A]{ep: episode.Pure(a)}
}

// RaiseError builds a Scenario that fails immediately with err.
func RaiseError[A any](err error) Scenario[A] {
	return Scenario[A]{ep: episode.RaiseError(err)}
}

// Eval builds a Scenario around a single effectful action. The effect
// receives ctx so it can observe an enclosing Within/StopOn/StopWith
// deadline or cancellation.
func Eval[A any](effect func(ctx context.Context) (A, error)) Scenario[A] {
	return Scenario[A]{ep: episode.Eval(func(ctx context.Context) (any, error) {
		return effect(ctx)
	})}
}

// Expect builds a Scenario that consumes the next input event,
// succeeding with it if predicate holds.
func Expect(predicate func(chatevent.Event) bool) Scenario[chatevent.Event] {
	return Scenario[chatevent.Event]{ep: episode.Next(predicate)}
}

// Done is a Scenario that succeeds immediately without a meaningful
// value, for composing side-effecting steps with Then.
func Done() Scenario[struct{}] {
	return Pure(struct{}{})
}

// FlatMap sequences s into k, which receives s's successful value and
// returns the next Scenario to run.
func FlatMap[A, B any](s Scenario[A], k func(A) Scenario[B]) Scenario[B] {
	return Scenario[B]{ep: episode.Bind(s.ep, func(v any) *episode.Episode {
		return k(v.(A)).ep
	})}
}

// Map transforms a successful value with f, consuming no additional
// input — equivalent to FlatMap(s, x => Pure(f(x))).
func Map[A, B any](s Scenario[A], f func(A) B) Scenario[B] {
	return Scenario[B]{ep: episode.Map(s.ep, func(v any) any {
		return f(v.(A))
	})}
}

// Then sequences prev into next, discarding prev's value:
// prev >> next ≡ prev.flatMap(_ ⇒ next).
func Then[A, B any](prev Scenario[A], next Scenario[B]) Scenario[B] {
	return FlatMap(prev, func(A) Scenario[B] { return next })
}

// HandleErrorWith opens an error-recovery scope: if s fails, recover is
// evaluated on the same remaining input (no rewinding of consumed
// events). Mismatch and cancellation are not caught.
func (s Scenario[A]) HandleErrorWith(recover func(error) Scenario[A]) Scenario[A] {
	return Scenario[A]{ep: episode.Protected(s.ep, func(err error) *episode.Episode {
		return recover(err).ep
	})}
}

// Result is the value produced by Attempt: either the error s failed
// with, or the value it succeeded with.
type Result[A any] struct {
	Err   error
	Value A
}

// Ok reports whether this Result carries a value rather than an error.
func (r Result[A]) Ok() bool { return r.Err == nil }

// Attempt converts failure into a value: raiseError(e).attempt yields
// Result{Err: e}; pure(a).attempt yields Result{Value: a}.
func Attempt[A any](s Scenario[A]) Scenario[Result[A]] {
	asValue := episode.Map(s.ep, func(v any) any {
		return Result[A]{Value: v.(A)}
	})
	return Scenario[Result[A]]{ep: episode.Protected(asValue, func(err error) *episode.Episode {
		return episode.Pure(Result[A]{Err: err})
	})}
}

// Tolerate restarts s on mismatch, running onMismatch first, with no
// bound on the number of retries.
func (s Scenario[A]) Tolerate(onMismatch func(ctx context.Context, ev chatevent.Event) error) Scenario[A] {
	return Scenario[A]{ep: episode.Tolerate(s.ep, nil, onMismatch)}
}

// TolerateN restarts s on mismatch up to n times before surfacing the
// mismatch.
func (s Scenario[A]) TolerateN(n int, onMismatch func(ctx context.Context, ev chatevent.Event) error) Scenario[A] {
	limit := n
	return Scenario[A]{ep: episode.Tolerate(s.ep, &limit, onMismatch)}
}

// TolerateAll restarts s on mismatch with no bound and no side effect —
// mismatching events are silently discarded.
func (s Scenario[A]) TolerateAll() Scenario[A] {
	return Scenario[A]{ep: episode.Tolerate(s.ep, nil, func(context.Context, chatevent.Event) error {
		return nil
	})}
}

// StopOn cancels s as soon as any event flowing through it (including
// nested sub-episodes) satisfies pred, with no side effect on
// cancellation.
func (s Scenario[A]) StopOn(pred func(chatevent.Event) bool) Scenario[A] {
	return Scenario[A]{ep: episode.Cancellable(s.ep, pred, nil)}
}

// StopWith cancels s as soon as pred holds on an event, first running
// onCancel as a side effect.
func (s Scenario[A]) StopWith(pred func(chatevent.Event) bool, onCancel func(ctx context.Context, ev chatevent.Event) error) Scenario[A] {
	return Scenario[A]{ep: episode.Cancellable(s.ep, pred, onCancel)}
}

// Within imposes a wall-clock deadline on s's entire evaluation,
// starting when the episode begins executing.
func (s Scenario[A]) Within(d time.Duration) Scenario[A] {
	return Scenario[A]{ep: episode.TimeLimited(s.ep, d)}
}

// MapK rewrites every effect capability (Eval node) in s with
// transform — a natural transformation of the effect carrier, letting a
// Scenario built against one capability (e.g. a test double) be
// replayed against another (e.g. a live platform adapter) without
// rewriting the Scenario itself. The structural walk through chained
// Bind/Map/Protected/Tolerate/Cancellable/TimeLimited nodes is
// iterative, not recursive, to avoid overflowing the Go call stack on
// deep chains; continuations that are only produced at runtime (a
// Bind's k, a Protected's recover) are wrapped so whatever episode they
// return later is rewritten too, the first time it is actually needed.
func (s Scenario[A]) MapK(transform func(episode.Effect) episode.Effect) Scenario[A] {
	return Scenario[A]{ep: rewriteK(s.ep, transform)}
}
