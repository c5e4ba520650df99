// Package events provides a publish/subscribe event bus for operational
// observability. Events flow from components (the demultiplexer,
// platform adapters, the incident reporter, ...) to subscribers (the
// ops dashboard's WebSocket handler, the Prometheus collector). The bus
// is nil-safe: calling Publish on a nil *Bus is a no-op, so components
// do not need guard checks.
package events

import (
	"sync"
	"time"
)

// Source constants identify which component published an event.
const (
	// SourceDemux identifies events from the conversation demultiplexer.
	SourceDemux = "demux"
	// SourceSignal identifies events from the Signal platform adapter.
	SourceSignal = "signal"
	// SourceMQTT identifies events from the MQTT platform adapter.
	SourceMQTT = "mqtt"
	// SourceEmail identifies events from the email platform adapter.
	SourceEmail = "email"
	// SourceIncident identifies events from the incident reporter.
	SourceIncident = "incident"
	// SourceSessionLog identifies events from the session audit ledger.
	SourceSessionLog = "sessionlog"
)

// Kind constants describe the type of event within a source.
const (
	// KindConversationSpawned signals a new per-conversation worker was
	// started for a previously unseen ConversationID.
	// Data: conversation_id.
	KindConversationSpawned = "conversation_spawned"
	// KindConversationEvicted signals a per-conversation worker was torn
	// down: after exceeding the idle timeout, or when the demultiplexer's
	// input closes or its context is cancelled.
	// Data: conversation_id.
	KindConversationEvicted = "conversation_evicted"
	// KindEventRateLimited signals an inbound event was dropped because
	// its sender exceeded the configured rate limit.
	// Data: conversation_id, sender.
	KindEventRateLimited = "event_rate_limited"
	// KindEventDropped signals an inbound event was dropped for a reason
	// other than rate limiting (e.g. a conversation's inbox was full).
	// Data: conversation_id, reason.
	KindEventDropped = "event_dropped"

	// KindSessionMatched signals a matching session completed
	// successfully.
	// Data: conversation_id, elapsed_ms.
	KindSessionMatched = "session_matched"
	// KindSessionMismatched signals a matching session ended because an
	// event failed every remaining predicate.
	// Data: conversation_id, elapsed_ms.
	KindSessionMismatched = "session_mismatched"
	// KindSessionFailed signals a matching session ended because an
	// effect or side-effect action returned an error.
	// Data: conversation_id, error, elapsed_ms.
	KindSessionFailed = "session_failed"
	// KindSessionCancelled signals a matching session was interrupted by
	// a cancellation predicate or a deadline.
	// Data: conversation_id, elapsed_ms.
	KindSessionCancelled = "session_cancelled"

	// KindMessageReceived signals an inbound message from a platform
	// adapter before it reaches the demultiplexer.
	// Data: conversation_id, message_len; the Signal adapter also sets
	// sender.
	KindMessageReceived = "message_received"
	// KindDeviceLinked signals a new platform device completed the
	// QR-code linking flow.
	// Data: device_name.
	KindDeviceLinked = "device_linked"
	// KindIncidentReported signals an incident was filed as a GitHub
	// issue comment.
	// Data: conversation_id, issue_number.
	KindIncidentReported = "incident_reported"
)

// Event represents a single operational event published by a component.
type Event struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"ts"`
	// Source identifies the component that published the event.
	Source string `json:"source"`
	// Kind describes the type of event within the source.
	Kind string `json:"kind"`
	// Data holds event-specific key/value pairs.
	Data map[string]any `json:"data,omitempty"`
}

// Bus is a non-blocking broadcast event bus. Subscribers receive events
// on buffered channels; slow subscribers miss events rather than
// blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	// recvToSend maps the receive-only channel returned by Subscribe
	// back to the bidirectional channel stored in subs. This allows
	// Unsubscribe to accept <-chan Event (the caller's view) without
	// an illegal type conversion.
	recvToSend map[<-chan Event]chan Event
}

// New creates a new event bus ready for use.
func New() *Bus {
	return &Bus{
		subs:       make(map[chan Event]struct{}),
		recvToSend: make(map[<-chan Event]chan Event),
	}
}

// Publish sends an event to all subscribers. Non-blocking: if a
// subscriber's channel is full, the event is dropped for that
// subscriber. Safe to call on a nil receiver (no-op).
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Subscriber is full — drop the event rather than block.
		}
	}
}

// Subscribe returns a channel that receives published events. The
// caller must eventually call Unsubscribe to avoid resource leaks.
// bufSize controls the channel buffer; 64 is a reasonable default for
// WebSocket consumers.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes the channel. Safe to
// call with a channel that is already unsubscribed (no-op).
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
