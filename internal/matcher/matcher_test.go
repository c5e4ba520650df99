package matcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mikabele/canoe-go/internal/chatevent"
	"github.com/mikabele/canoe-go/internal/episode"
)

func msg(text string) chatevent.Event {
	return chatevent.Event{Kind: chatevent.KindIncomingMessage, Text: text}
}

func textEqual(want string) func(chatevent.Event) bool {
	return func(ev chatevent.Event) bool {
		return ev.Kind == chatevent.KindIncomingMessage && ev.Text == want
	}
}

func anyText() func(chatevent.Event) bool {
	return func(ev chatevent.Event) bool { return ev.Kind == chatevent.KindIncomingMessage }
}

func sourceFrom(events ...chatevent.Event) (*ChanSource, chan chatevent.Event) {
	ch := make(chan chatevent.Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	return NewChanSource(ch), ch
}

func TestPureMatchesWithoutConsumingInput(t *testing.T) {
	src, ch := sourceFrom(msg("unused"))
	out := Run(context.Background(), episode.Pure(42), src)
	if out.Tag != TagMatched || out.Value != 42 {
		t.Fatalf("got %+v, want Matched(42)", out)
	}
	if len(ch) != 1 {
		t.Fatalf("Pure must not consume input, channel has %d", len(ch))
	}
}

func TestRaiseErrorFails(t *testing.T) {
	src, _ := sourceFrom()
	wantErr := errors.New("boom")
	out := Run(context.Background(), episode.RaiseError(wantErr), src)
	if out.Tag != TagFailed || !errors.Is(out.Err, wantErr) {
		t.Fatalf("got %+v, want Failed(%v)", out, wantErr)
	}
}

func TestNextMatchAndMismatch(t *testing.T) {
	src, _ := sourceFrom(msg("hello"))
	out := Run(context.Background(), episode.Next(textEqual("hello")), src)
	if out.Tag != TagMatched {
		t.Fatalf("got %+v, want Matched", out)
	}

	src2, _ := sourceFrom(msg("goodbye"))
	out2 := Run(context.Background(), episode.Next(textEqual("hello")), src2)
	if out2.Tag != TagMismatched {
		t.Fatalf("got %+v, want Mismatched", out2)
	}
}

func TestNextOnEmptyStreamHaltsSilently(t *testing.T) {
	ch := make(chan chatevent.Event)
	close(ch)
	out := Run(context.Background(), episode.Next(anyText()), NewChanSource(ch))
	if out.Tag != TagNoMoreInput {
		t.Fatalf("got %+v, want NoMoreInput", out)
	}
}

// End-to-end: a command followed by a free-text reply.
func TestEndToEndCommandThenReply(t *testing.T) {
	src, _ := sourceFrom(msg("/start"), msg("hello"))

	ep := episode.Bind(
		episode.Next(textEqual("/start")),
		func(any) *episode.Episode {
			return episode.Map(episode.Next(anyText()), func(v any) any {
				return v.(chatevent.Event).Text
			})
		},
	)

	out := Run(context.Background(), ep, src)
	if out.Tag != TagMatched || out.Value != "hello" {
		t.Fatalf("got %+v, want Matched(hello)", out)
	}
}

func isNumeric(ev chatevent.Event) bool {
	if ev.Kind != chatevent.KindIncomingMessage || ev.Text == "" {
		return false
	}
	for _, r := range ev.Text {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// End-to-end: tolerate with retry up to a bounded limit.
func TestToleranceRetriesUpToLimit(t *testing.T) {
	src, _ := sourceFrom(msg("/age"), msg("x"), msg("y"), msg("30"))

	var mismatches []string
	limit := 2
	inner := episode.Map(episode.Next(isNumeric), func(v any) any {
		return v.(chatevent.Event).Text
	})
	tolerant := episode.Tolerate(inner, &limit, func(_ context.Context, ev chatevent.Event) error {
		mismatches = append(mismatches, ev.Text)
		return nil
	})

	ep := episode.Bind(episode.Next(textEqual("/age")), func(any) *episode.Episode {
		return tolerant
	})

	out := Run(context.Background(), ep, src)
	if out.Tag != TagMatched || out.Value != "30" {
		t.Fatalf("got %+v, want Matched(30)", out)
	}
	if len(mismatches) != 2 || mismatches[0] != "x" || mismatches[1] != "y" {
		t.Fatalf("got mismatches %v, want [x y]", mismatches)
	}
}

func TestToleranceSurfacesMismatchWhenLimitExhausted(t *testing.T) {
	src, _ := sourceFrom(msg("x"), msg("y"), msg("z"))

	limit := 1
	var onMismatchCalls int
	tolerant := episode.Tolerate(episode.Next(textEqual("only-this")), &limit, func(context.Context, chatevent.Event) error {
		onMismatchCalls++
		return nil
	})

	out := Run(context.Background(), tolerant, src)
	if out.Tag != TagMismatched {
		t.Fatalf("got %+v, want Mismatched once limit exhausted", out)
	}
	if onMismatchCalls != 2 {
		t.Fatalf("onMismatch called %d times, want 2 (1 retry + final)", onMismatchCalls)
	}
}

// End-to-end: cancellation mid-form.
func TestStopOnCancelsWithoutEmission(t *testing.T) {
	src, _ := sourceFrom(msg("/form"), msg("/cancel"))

	inner := episode.Bind(episode.Next(textEqual("/form")), func(any) *episode.Episode {
		return episode.Next(anyText())
	})
	cancellable := episode.Cancellable(inner, func(ev chatevent.Event) bool {
		return ev.Text == "/cancel"
	}, nil)

	out := Run(context.Background(), cancellable, src)
	if out.Tag != TagCancelled {
		t.Fatalf("got %+v, want Cancelled", out)
	}
}

func TestCancellableWinsTieBreakOverNext(t *testing.T) {
	src, _ := sourceFrom(msg("/cancel"))

	inner := episode.Next(func(ev chatevent.Event) bool { return true }) // would match anything
	cancellable := episode.Cancellable(inner, func(ev chatevent.Event) bool {
		return ev.Text == "/cancel"
	}, nil)

	out := Run(context.Background(), cancellable, src)
	if out.Tag != TagCancelled {
		t.Fatalf("got %+v, want Cancelled (Cancellable checked before Next)", out)
	}
}

// End-to-end: timeout while waiting for an event.
func TestTimeLimitedCancelsWhenNoEventArrives(t *testing.T) {
	ch := make(chan chatevent.Event)
	src := NewChanSource(ch)

	ep := episode.TimeLimited(episode.Next(anyText()), 20*time.Millisecond)

	start := time.Now()
	out := Run(context.Background(), ep, src)
	elapsed := time.Since(start)

	if out.Tag != TagCancelled {
		t.Fatalf("got %+v, want Cancelled", out)
	}
	if elapsed > 200*time.Millisecond {
		t.Fatalf("took %v, want close to the 20ms deadline", elapsed)
	}
}

// End-to-end: error recovery via HandleErrorWith.
func TestProtectedRecoversFromFailure(t *testing.T) {
	src, _ := sourceFrom()

	failing := episode.Eval(func(context.Context) (any, error) {
		return nil, errors.New("failing action")
	})
	recovered := episode.Protected(failing, func(error) *episode.Episode {
		return episode.Pure("ok")
	})

	out := Run(context.Background(), recovered, src)
	if out.Tag != TagMatched || out.Value != "ok" {
		t.Fatalf("got %+v, want Matched(ok)", out)
	}
}

func TestProtectedDoesNotCatchMismatchOrCancellation(t *testing.T) {
	src, _ := sourceFrom(msg("nope"))
	recovered := episode.Protected(episode.Next(textEqual("yes")), func(error) *episode.Episode {
		return episode.Pure("recovered")
	})
	out := Run(context.Background(), recovered, src)
	if out.Tag != TagMismatched {
		t.Fatalf("got %+v, want Mismatched to propagate uncaught", out)
	}
}

// A long chain of Map calls recurses one Go call frame per link while
// descending to the innermost Pure value; this only succeeds because Go
// grows goroutine stacks on demand, not because the descent is O(1).
func TestDeepMapChainDoesNotOverflowTheStack(t *testing.T) {
	var ep *episode.Episode = episode.Pure(0)
	const depth = 200000
	for i := 0; i < depth; i++ {
		ep = episode.Map(ep, func(v any) any { return v.(int) + 1 })
	}
	src, _ := sourceFrom()
	out := Run(context.Background(), ep, src)
	if out.Tag != TagMatched || out.Value != depth {
		t.Fatalf("got tag=%v value=%v, want Matched(%d)", out.Tag, out.Value, depth)
	}
}

func TestMismatchPropagatesThroughBindWithoutAnEnclosingTolerate(t *testing.T) {
	src, _ := sourceFrom(msg("/start"), msg("nope"))

	ep := episode.Bind(episode.Next(textEqual("/start")), func(any) *episode.Episode {
		return episode.Next(textEqual("expected"))
	})

	out := Run(context.Background(), ep, src)
	if out.Tag != TagMismatched {
		t.Fatalf("got %+v, want Mismatched propagating out of Bind", out)
	}
	if out.Event.Text != "nope" {
		t.Fatalf("mismatch carried event %+v, want text=nope", out.Event)
	}
}
