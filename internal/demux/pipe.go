package demux

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mikabele/canoe-go/internal/chatevent"
	"github.com/mikabele/canoe-go/internal/events"
	"github.com/mikabele/canoe-go/internal/matcher"
	"github.com/mikabele/canoe-go/scenario"
)

// ErrCancelled is the error carried by a Result when a session was
// interrupted by a cancellation predicate or a deadline rather than
// failing outright.
var ErrCancelled = errors.New("demux: session cancelled")

// ErrMismatched is the error carried by a Result when a session ended
// because an event failed every remaining predicate, with no
// enclosing Tolerate to absorb it.
var ErrMismatched = errors.New("demux: session mismatched")

// inboxBufferSize bounds how many events may queue for a conversation
// whose worker is busy before the fan-out loop starts dropping events
// for it (publishing KindEventDropped) rather than delivering them.
const inboxBufferSize = 32

// conversationState is the per-conversation worker Pipe spawns on first
// sight of a ConversationID. It is generic over the Scenario's result
// type, which is why it lives beside Pipe rather than on Demux itself.
type conversationState[A any] struct {
	inbox *conversationInbox
}

// Pipe fans events from in out by ConversationID, running one matching
// session per conversation at a time against a freshly built Scenario
// from factory. Events within a single conversation are processed in
// the order they arrive, by one goroutine; different conversations
// proceed independently and concurrently. When a session completes,
// its Result is emitted on the returned channel and the next session
// for that conversation starts fresh from factory() against the same,
// still-open inbox — the caller decides what the next scenario looks
// like (e.g. by closing over state collected from the previous
// Result), which is what makes restart "caller-driven" rather than a
// fixed loop. A conversation idle for longer than Config.IdleTimeout is
// torn down; the next event for that ConversationID spawns a new
// worker from scratch. Pipe returns (and closes its output channel)
// once in closes or ctx is done.
func Pipe[A any](ctx context.Context, d *Demux, in <-chan chatevent.Event, factory func() scenario.Scenario[A]) <-chan scenario.Result[A] {
	out := make(chan scenario.Result[A])

	go func() {
		// Workers send on out, so it is closed only after every worker
		// has returned.
		var workers sync.WaitGroup
		defer close(out)
		defer workers.Wait()

		conversations := make(map[string]*conversationState[A])
		var mu sync.Mutex

		evictLocked := func(id string) {
			cs, ok := conversations[id]
			if !ok {
				return
			}
			cs.inbox.cancel()
			close(cs.inbox.ch)
			delete(conversations, id)
			d.publish(events.KindConversationEvicted, map[string]any{"conversation_id": id})
		}

		var idleC <-chan time.Time
		if d.idleTimeout > 0 {
			ticker := time.NewTicker(d.idleTimeout / 2)
			defer ticker.Stop()
			idleC = ticker.C
		}

		for {
			select {
			case <-ctx.Done():
				mu.Lock()
				for id := range conversations {
					evictLocked(id)
				}
				mu.Unlock()
				return

			case now := <-idleC:
				mu.Lock()
				for id, cs := range conversations {
					if now.Sub(cs.inbox.lastActive) > d.idleTimeout {
						evictLocked(id)
					}
				}
				mu.Unlock()

			case ev, ok := <-in:
				if !ok {
					mu.Lock()
					for id := range conversations {
						evictLocked(id)
					}
					mu.Unlock()
					return
				}
				if !ev.IsMessageable() {
					continue
				}
				if !d.allow(ev.SenderID) {
					d.publish(events.KindEventRateLimited, map[string]any{
						"conversation_id": ev.ConversationID,
						"sender":          ev.SenderID,
					})
					continue
				}

				mu.Lock()
				cs, exists := conversations[ev.ConversationID]
				if !exists {
					inbox, convCtx := newConversationInbox(ctx, inboxBufferSize)
					cs = &conversationState[A]{inbox: inbox}
					conversations[ev.ConversationID] = cs
					d.publish(events.KindConversationSpawned, map[string]any{"conversation_id": ev.ConversationID})
					workers.Add(1)
					go func(id string) {
						defer workers.Done()
						runConversation(convCtx, d, id, inbox.ch, factory, out)
					}(ev.ConversationID)
				}
				cs.inbox.lastActive = time.Now()
				inbox := cs.inbox
				mu.Unlock()

				// Non-blocking: a conversation whose worker is stuck in a
				// slow Eval must never stall delivery to every other
				// conversation, and a full inbox is the caller's fault
				// (backlog), not a reason to make the whole fan-out deaf
				// to ctx cancellation.
				select {
				case inbox.ch <- ev:
				default:
					d.publish(events.KindEventDropped, map[string]any{
						"conversation_id": ev.ConversationID,
						"reason":          "inbox_full",
					})
				}
			}
		}
	}()

	return out
}

// runConversation drives successive matching sessions for a single
// conversation until its inbox is closed or ctx is cancelled.
func runConversation[A any](ctx context.Context, d *Demux, conversationID string, inbox <-chan chatevent.Event, factory func() scenario.Scenario[A], out chan<- scenario.Result[A]) {
	src := matcher.NewChanSource(inbox)
	start := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s := factory()
		outcome := matcher.Run(ctx, s.Episode(), src)
		result, kind, data := classify[A](outcome, conversationID, time.Since(start))
		d.publish(kind, data)

		select {
		case out <- result:
		case <-ctx.Done():
			return
		}

		if outcome.Tag == matcher.TagNoMoreInput {
			return
		}
		start = time.Now()
	}
}

func classify[A any](outcome matcher.Outcome, conversationID string, elapsed time.Duration) (scenario.Result[A], string, map[string]any) {
	elapsedMs := elapsed.Milliseconds()
	switch outcome.Tag {
	case matcher.TagMatched:
		return scenario.Result[A]{Value: outcome.Value.(A)}, events.KindSessionMatched,
			map[string]any{"conversation_id": conversationID, "elapsed_ms": elapsedMs}
	case matcher.TagFailed:
		return scenario.Result[A]{Err: outcome.Err}, events.KindSessionFailed,
			map[string]any{"conversation_id": conversationID, "error": outcome.Err.Error(), "elapsed_ms": elapsedMs}
	case matcher.TagMismatched:
		err := fmt.Errorf("%w: event kind=%s text=%q", ErrMismatched, outcome.Event.Kind, outcome.Event.Text)
		return scenario.Result[A]{Err: err}, events.KindSessionMismatched,
			map[string]any{"conversation_id": conversationID, "elapsed_ms": elapsedMs}
	default: // TagCancelled, TagNoMoreInput
		return scenario.Result[A]{Err: ErrCancelled}, events.KindSessionCancelled,
			map[string]any{"conversation_id": conversationID, "elapsed_ms": elapsedMs}
	}
}
