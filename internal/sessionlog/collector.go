package sessionlog

import (
	"context"
	"log/slog"
	"time"

	"github.com/mikabele/canoe-go/internal/events"
)

// Collector subscribes to an event bus and appends a ledger entry for
// every session that reaches a terminal outcome, so the demux and
// adapters never need to import this package directly.
type Collector struct {
	bus    *events.Bus
	ledger *Ledger
	logger *slog.Logger
}

// NewCollector creates a session-log collector over bus, appending to
// ledger.
func NewCollector(bus *events.Bus, ledger *Ledger, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{bus: bus, ledger: ledger, logger: logger}
}

// Run subscribes to the bus and appends ledger entries until ctx is
// cancelled.
func (c *Collector) Run(ctx context.Context) {
	ch := c.bus.Subscribe(256)
	defer c.bus.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			c.handle(ctx, ev)
		}
	}
}

func (c *Collector) handle(ctx context.Context, ev events.Event) {
	outcome, detail, ok := outcomeOf(ev)
	if !ok {
		return
	}

	conversationID, _ := ev.Data["conversation_id"].(string)
	platform, _ := ev.Data["platform"].(string)

	duration := durationOf(ev)
	entry := Entry{
		ConversationID: conversationID,
		Platform:       platform,
		Outcome:        outcome,
		Detail:         detail,
		StartedAt:      ev.Timestamp.Add(-duration),
		EndedAt:        ev.Timestamp,
	}

	if err := c.ledger.Append(ctx, entry); err != nil {
		c.logger.Error("sessionlog: failed to append entry", "conversation_id", conversationID, "error", err)
	}
}

func outcomeOf(ev events.Event) (outcome Outcome, detail string, ok bool) {
	switch ev.Kind {
	case events.KindSessionMatched:
		return OutcomeMatched, "", true
	case events.KindSessionFailed:
		if errMsg, ok := ev.Data["error"].(string); ok {
			return OutcomeFailed, errMsg, true
		}
		return OutcomeFailed, "", true
	case events.KindSessionMismatched:
		return OutcomeMismatched, "", true
	case events.KindSessionCancelled:
		return OutcomeCancelled, "", true
	default:
		return "", "", false
	}
}

func durationOf(ev events.Event) time.Duration {
	if ev.Data == nil {
		return 0
	}
	if ms, ok := ev.Data["elapsed_ms"].(int64); ok {
		return time.Duration(ms) * time.Millisecond
	}
	if ms, ok := ev.Data["elapsed_ms"].(float64); ok {
		return time.Duration(ms) * time.Millisecond
	}
	return 0
}
