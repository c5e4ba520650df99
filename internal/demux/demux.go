// Package demux fans inbound chat events out by conversation, running
// one matching session per conversation at a time while different
// conversations progress independently of each other. The design is
// the spawn-per-key worker pattern used by chat platform bridges (a
// per-sender goroutine and private inbox, idle eviction, per-sender
// rate limiting), generalized from one fixed request loop to an
// arbitrary caller-supplied Scenario.
package demux

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mikabele/canoe-go/internal/chatevent"
	"github.com/mikabele/canoe-go/internal/events"
)

// Config configures the facilities shared across every conversation
// regardless of the Scenario result type a particular Pipe call runs.
type Config struct {
	Logger *slog.Logger
	Bus    *events.Bus

	// RateLimit bounds how many events per sender, per minute, are
	// admitted before the rest are dropped. Zero means unlimited.
	RateLimit int

	// IdleTimeout tears down a conversation's worker once no event has
	// arrived for this long. Zero disables idle eviction.
	IdleTimeout time.Duration

	// Platform labels every event this Demux publishes (e.g. "signal",
	// "mqtt", "email"), so a bus subscriber driving per-platform
	// metrics or audit records doesn't have to guess it from the event
	// Source, which only ever identifies the demux package itself.
	Platform string
}

// cleanupInterval controls how often stale rate-limit bookkeeping is
// evicted, bounding Demux's own memory growth independent of
// IdleTimeout (which only bounds per-conversation worker state).
const cleanupInterval = 10 * time.Minute

const rateWindow = time.Minute

// Demux holds the state shared across every conversation regardless of
// the Scenario type a particular Pipe call runs: per-sender rate
// limiting and lifecycle event publishing. The per-conversation
// goroutine/inbox state lives inside Pipe instead, because Go methods
// cannot introduce new type parameters — Demux itself can't be generic
// over a Scenario's result type, so the part of the design that needs
// to be generic is a free function, not a method.
type Demux struct {
	logger      *slog.Logger
	bus         *events.Bus
	rateLimit   int
	idleTimeout time.Duration
	platform    string

	mu          sync.Mutex
	senderTimes map[string][]time.Time
	lastCleanup time.Time
}

// New creates a Demux ready for use with Pipe.
func New(cfg Config) *Demux {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Demux{
		logger:      logger,
		bus:         cfg.Bus,
		rateLimit:   cfg.RateLimit,
		idleTimeout: cfg.IdleTimeout,
		platform:    cfg.Platform,
		senderTimes: make(map[string][]time.Time),
	}
}

// allow reports whether an event from senderID should be admitted,
// under a sliding per-minute window.
func (d *Demux) allow(senderID string) bool {
	if d.rateLimit <= 0 {
		return true
	}

	now := time.Now()
	cutoff := now.Add(-rateWindow)

	d.mu.Lock()
	defer d.mu.Unlock()

	d.maybeCleanupLocked(now)

	timestamps := d.senderTimes[senderID]
	valid := timestamps[:0]
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}

	if len(valid) >= d.rateLimit {
		d.senderTimes[senderID] = valid
		return false
	}
	d.senderTimes[senderID] = append(valid, now)
	return true
}

// maybeCleanupLocked evicts stale per-sender rate-limit entries. Must
// be called with d.mu held.
func (d *Demux) maybeCleanupLocked(now time.Time) {
	if now.Sub(d.lastCleanup) < cleanupInterval {
		return
	}
	d.lastCleanup = now

	cutoff := now.Add(-2 * rateWindow)
	for sender, timestamps := range d.senderTimes {
		if len(timestamps) == 0 || timestamps[len(timestamps)-1].Before(cutoff) {
			delete(d.senderTimes, sender)
		}
	}
}

func (d *Demux) publish(kind string, data map[string]any) {
	if d.bus == nil {
		return
	}
	if d.platform != "" {
		if data == nil {
			data = make(map[string]any, 1)
		}
		data["platform"] = d.platform
	}
	d.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceDemux,
		Kind:      kind,
		Data:      data,
	})
}

// conversationInbox is the per-conversation mailbox a worker drains.
// The per-conversation state that wraps it (conversationState) is
// generic over Pipe's result type, so it is declared next to Pipe in
// pipe.go rather than here.
type conversationInbox struct {
	ch         chan chatevent.Event
	lastActive time.Time
	cancel     context.CancelFunc
}

func newConversationInbox(ctx context.Context, bufSize int) (*conversationInbox, context.Context) {
	convCtx, cancel := context.WithCancel(ctx)
	return &conversationInbox{
		ch:         make(chan chatevent.Event, bufSize),
		lastActive: time.Now(),
		cancel:     cancel,
	}, convCtx
}
