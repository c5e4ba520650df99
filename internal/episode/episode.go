// Package episode is the Episode IR: the closed set of constructor
// variants a Scenario compiles down to. The IR is represented as a
// single tagged-union struct rather than one type per variant — Go has
// no sum types, and a struct-with-Kind plus an explicit switch in the
// matcher is a tagged-union representation with explicit dispatch,
// preferred here over dynamic polymorphism (an interface per variant
// would scatter the matching logic across a dozen small types instead
// of keeping it in one place).
//
// The IR itself is untyped (fields hold `any`): Go methods cannot
// introduce new type parameters, so a generic Episode[A] cannot hold a
// Bind continuation into Episode[B] for an unrelated B without either
// existential wrappers or type erasure. This package erases; the
// scenario package re-establishes static typing at its public boundary
// with generic free functions and a single type assertion per step.
package episode

import (
	"context"
	"time"

	"github.com/mikabele/canoe-go/internal/chatevent"
)

// Kind tags each Episode IR variant.
type Kind int

const (
	KindPure Kind = iota
	KindEval
	KindRaiseError
	KindNext
	KindBind
	KindMap
	KindProtected
	KindTolerate
	KindCancellable
	KindTimeLimited
)

// Effect is the simplest Go rendering of a carrier with pure/flatMap/
// raiseError/handleErrorWith/sleep capability: a function from a context
// to a (value, error) pair. Sequential composition is ordinary Go
// function composition; raiseError is a non-nil returned error; sleep is
// context-aware delay, used by TimeLimited and implemented by the
// matcher, not by Effect itself.
type Effect func(ctx context.Context) (any, error)

// OnSuspend/OnResume hooks let an adapter observe when a session
// suspends waiting on Eval or Next, and when it resumes — generalizing
// the typing-indicator refresh loop pattern used by chat platform
// bridges. Nil hooks are no-ops.
type SuspendHooks struct {
	OnSuspend func()
	OnResume  func()
}

// Episode is the IR node. Only the fields relevant to Kind are set; see
// the constructor functions below for which fields each variant uses.
type Episode struct {
	Kind Kind

	// KindPure
	Value any

	// KindEval
	Effect Effect

	// KindRaiseError
	Err error

	// KindNext
	Predicate func(chatevent.Event) bool

	// KindBind / KindMap
	Prev *Episode
	Bind func(any) *Episode // KindBind continuation
	MapF func(any) any      // KindMap function

	// KindProtected
	Inner   *Episode
	Recover func(error) *Episode

	// KindTolerate
	Limit      *int // nil = unbounded
	OnMismatch func(ctx context.Context, ev chatevent.Event) error

	// KindCancellable
	CancelWhen func(chatevent.Event) bool
	OnCancel   func(ctx context.Context, ev chatevent.Event) error

	// KindTimeLimited
	Duration time.Duration

	// Hooks, set on any node, observed by the matcher around
	// suspension points (Eval/Next) for that node only.
	Hooks SuspendHooks
}

// Pure succeeds immediately with a, consuming no input.
func Pure(a any) *Episode {
	return &Episode{Kind: KindPure, Value: a}
}

// Eval runs an effect and yields its result, consuming no input itself
// (though the effect may suspend the matching session).
func Eval(effect Effect) *Episode {
	return &Episode{Kind: KindEval, Effect: effect}
}

// RaiseError fails immediately with e, consuming no input.
func RaiseError(e error) *Episode {
	return &Episode{Kind: KindRaiseError, Err: e}
}

// Next consumes the next input event; it succeeds with the event if
// predicate holds, and mismatches otherwise.
func Next(predicate func(chatevent.Event) bool) *Episode {
	return &Episode{Kind: KindNext, Predicate: predicate}
}

// Bind sequences prev into k, which receives prev's successful value.
func Bind(prev *Episode, k func(any) *Episode) *Episode {
	return &Episode{Kind: KindBind, Prev: prev, Bind: k}
}

// Map is Bind(prev, x => Pure(f(x))), provided as its own variant so the
// matcher and the natural-transformation walk can treat it specially
// (no intermediate Pure node, one less trampoline step).
func Map(prev *Episode, f func(any) any) *Episode {
	return &Episode{Kind: KindMap, Prev: prev, MapF: f}
}

// Protected opens an error-recovery scope: on Failed(e) from inner,
// evaluation continues with recover(e) on the same remaining stream.
func Protected(inner *Episode, recover func(error) *Episode) *Episode {
	return &Episode{Kind: KindProtected, Inner: inner, Recover: recover}
}

// Tolerate restarts inner on mismatch, running onMismatch as a side
// effect first, up to limit times (nil limit means unbounded).
func Tolerate(inner *Episode, limit *int, onMismatch func(ctx context.Context, ev chatevent.Event) error) *Episode {
	return &Episode{Kind: KindTolerate, Inner: inner, Limit: limit, OnMismatch: onMismatch}
}

// Cancellable inspects every event flowing through inner before inner
// sees it; if cancelWhen holds, the event is consumed by cancellation
// (optionally running onCancel) instead of reaching inner.
func Cancellable(inner *Episode, cancelWhen func(chatevent.Event) bool, onCancel func(ctx context.Context, ev chatevent.Event) error) *Episode {
	return &Episode{Kind: KindCancellable, Inner: inner, CancelWhen: cancelWhen, OnCancel: onCancel}
}

// TimeLimited imposes a wall-clock upper bound on inner's entire
// evaluation, starting when the episode begins executing.
func TimeLimited(inner *Episode, duration time.Duration) *Episode {
	return &Episode{Kind: KindTimeLimited, Inner: inner, Duration: duration}
}
