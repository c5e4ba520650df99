// Package pipes is a small library of predicates over chatevent.Event,
// the building blocks scenario.Expect is given to recognize the next
// event it wants. Each selector is a pure function; none of them touch
// a Source or an Episode, so they compose with plain Go (&&, ||, !) as
// well as with each other.
package pipes

import (
	"strings"

	"github.com/mikabele/canoe-go/internal/chatevent"
)

// Command matches a text message whose body is exactly "/name" or
// begins with "/name " (so "/age 30" is a Command("age") with the
// remainder left in the message text for the scenario to parse).
func Command(name string) func(chatevent.Event) bool {
	prefix := "/" + name
	return func(ev chatevent.Event) bool {
		if ev.Kind != chatevent.KindIncomingMessage {
			return false
		}
		return ev.Text == prefix || strings.HasPrefix(ev.Text, prefix+" ")
	}
}

// Containing matches a text message whose body contains substr.
func Containing(substr string) func(chatevent.Event) bool {
	return func(ev chatevent.Event) bool {
		return ev.Kind == chatevent.KindIncomingMessage && strings.Contains(ev.Text, substr)
	}
}

// TextMessage matches any incoming text message.
func TextMessage() func(chatevent.Event) bool {
	return func(ev chatevent.Event) bool { return ev.Kind == chatevent.KindIncomingMessage }
}

// DocumentMessage matches an incoming message carrying a document
// attachment.
func DocumentMessage() func(chatevent.Event) bool {
	return func(ev chatevent.Event) bool {
		return ev.Kind == chatevent.KindIncomingMessage && ev.DocumentName != ""
	}
}

// Callback matches a callback-button press attached to
// originMessageID.
func Callback(originMessageID string) func(chatevent.Event) bool {
	return func(ev chatevent.Event) bool {
		return ev.Kind == chatevent.KindCallbackQuery && ev.OriginMessageID == originMessageID
	}
}

// AnyCallback matches any callback-button press, regardless of which
// message it was attached to.
func AnyCallback() func(chatevent.Event) bool {
	return func(ev chatevent.Event) bool { return ev.Kind == chatevent.KindCallbackQuery }
}

// Messageable matches any event in the matcher's Messageable alphabet
// (incoming message or callback query), filtering out edits and inline
// queries before they reach a Scenario.
func Messageable() func(chatevent.Event) bool {
	return func(ev chatevent.Event) bool { return ev.IsMessageable() }
}

// Not negates a predicate, for composing selectors ad hoc (e.g. a text
// message that is not a command).
func Not(pred func(chatevent.Event) bool) func(chatevent.Event) bool {
	return func(ev chatevent.Event) bool { return !pred(ev) }
}

// And is the conjunction of two predicates.
func And(a, b func(chatevent.Event) bool) func(chatevent.Event) bool {
	return func(ev chatevent.Event) bool { return a(ev) && b(ev) }
}

// Or is the disjunction of two predicates.
func Or(a, b func(chatevent.Event) bool) func(chatevent.Event) bool {
	return func(ev chatevent.Event) bool { return a(ev) || b(ev) }
}
