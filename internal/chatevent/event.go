// Package chatevent defines the closed event variant that flows through
// the matcher and demultiplexer: the Messageable alphabet. Platform
// adapters (adapters/signalplatform, adapters/mqttplatform,
// adapters/emailplatform, ...) are responsible for decoding their own
// wire formats into this alphabet; this package stays ignorant of any
// one platform's payload shape.
package chatevent

import "time"

// Kind tags the closed set of event variants this package carries.
// KindIncomingMessage and KindCallbackQuery make up the matcher's
// Messageable alphabet; KindEdited and KindInlineQuery are carried
// through the demux for completeness (adapters may need them for
// bookkeeping) but are filtered out by pipes.Messageable before reaching
// a Scenario.
type Kind int

const (
	// KindIncomingMessage is a text message sent by a participant.
	KindIncomingMessage Kind = iota
	// KindCallbackQuery is a callback-button press.
	KindCallbackQuery
	// KindEdited is a message edit notification.
	KindEdited
	// KindInlineQuery is an inline query (typed into the platform's
	// inline-search box rather than sent as a message).
	KindInlineQuery
)

// String returns a human-readable name for the event kind, used in log
// lines across adapters and the demux.
func (k Kind) String() string {
	switch k {
	case KindIncomingMessage:
		return "incoming_message"
	case KindCallbackQuery:
		return "callback_query"
	case KindEdited:
		return "edited"
	case KindInlineQuery:
		return "inline_query"
	default:
		return "unknown"
	}
}

// Event is the single tagged-variant type that flows from a platform
// adapter, through pipes, into the demux, and finally to a matcher
// session. Only the fields relevant to Kind are populated; predicates
// built by internal/pipes know which fields apply to which kind.
type Event struct {
	Kind Kind

	// ConversationID identifies the chat/participant this event belongs
	// to. The demux keys its per-conversation fan-out on this field.
	ConversationID string

	// SenderID identifies the participant who produced the event.
	SenderID string

	// Timestamp is when the platform recorded the event.
	Timestamp time.Time

	// Text is the message body for KindIncomingMessage and
	// KindInlineQuery, and the edited body for KindEdited.
	Text string

	// DocumentName is non-empty when the message carries a document
	// attachment (KindIncomingMessage only).
	DocumentName string

	// CallbackData is the payload attached to a callback button
	// (KindCallbackQuery only).
	CallbackData string

	// OriginMessageID is the platform ID of the message a callback
	// button was attached to (KindCallbackQuery only), or the message
	// being edited (KindEdited only).
	OriginMessageID string
}

// IsMessageable reports whether this event belongs to the matcher's
// Messageable alphabet: incoming message or callback query only.
func (e Event) IsMessageable() bool {
	return e.Kind == KindIncomingMessage || e.Kind == KindCallbackQuery
}
