package main

import (
	"context"
	"fmt"
	"time"

	"github.com/mikabele/canoe-go/adapters/contactbook"
	"github.com/mikabele/canoe-go/internal/chatevent"
	"github.com/mikabele/canoe-go/internal/episode"
	"github.com/mikabele/canoe-go/internal/incident"
	"github.com/mikabele/canoe-go/internal/pipes"
	"github.com/mikabele/canoe-go/scenario"
)

// sessionTimeout bounds how long a single reply round-trip may run
// before the matcher gives up and reports the session cancelled.
const sessionTimeout = 30 * time.Second

// replyer sends text to a conversation; every platform adapter's Send
// method has this shape.
type replyer func(conversationID, text string) episode.Effect

// newEchoFactory builds the Scenario factory driving one reply
// round-trip per matching session: wait for a text message, resolve
// the sender's display name if a contact book is configured, and echo
// the message back through the platform it arrived on. demux.Pipe
// calls the returned factory again for the next message in the same
// conversation once this session reaches a terminal state, so no
// looping combinator is needed here.
func newEchoFactory(send replyer, resolver contactbook.ContactResolver, reporter *incident.Reporter) func() scenario.Scenario[string] {
	return func() scenario.Scenario[string] {
		round := scenario.FlatMap(scenario.Expect(pipes.TextMessage()), func(ev chatevent.Event) scenario.Scenario[string] {
			step := replyTo(send, resolver, ev)
			if reporter == nil {
				return step
			}
			return step.HandleErrorWith(func(err error) scenario.Scenario[string] {
				return scenario.Eval(func(ctx context.Context) (string, error) {
					return "", reporter.Recover(ev.ConversationID)(ctx, err)
				})
			})
		})

		return round.Within(sessionTimeout)
	}
}

func replyTo(send replyer, resolver contactbook.ContactResolver, ev chatevent.Event) scenario.Scenario[string] {
	name := ev.SenderID
	if resolver != nil {
		if resolved, ok := resolver.Resolve(ev.SenderID); ok {
			name = resolved
		}
	}
	reply := fmt.Sprintf("Hi %s, you said: %s", name, ev.Text)

	return scenario.Eval(func(ctx context.Context) (string, error) {
		if _, err := send(ev.ConversationID, reply)(ctx); err != nil {
			return "", fmt.Errorf("reply to %s: %w", ev.ConversationID, err)
		}
		return reply, nil
	})
}
