package metrics

import (
	"context"
	"log/slog"

	"github.com/mikabele/canoe-go/internal/events"
)

// Collector subscribes to an event bus and drives the package-level
// Prometheus metrics from published events, so adapters and the
// demultiplexer never need to import this package directly -- they
// already publish to the bus for the ops dashboard's benefit.
type Collector struct {
	bus    *events.Bus
	logger *slog.Logger
}

// NewCollector creates a metrics collector over bus.
func NewCollector(bus *events.Bus, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{bus: bus, logger: logger}
}

// Run subscribes to the bus and updates metrics until ctx is
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
			c.handle(ev)
		}
	}
}

func (c *Collector) handle(ev events.Event) {
	platform := platformOf(ev)

	switch ev.Kind {
	case events.KindConversationSpawned:
		RecordConversationSpawned(platform)
	case events.KindConversationEvicted:
		RecordConversationEvicted(platform)
	case events.KindEventRateLimited:
		RecordEventDropped(platform, "rate_limited")
	case events.KindEventDropped:
		RecordEventDropped(platform, reasonOf(ev))
	case events.KindSessionMatched:
		RecordSessionOutcome(platform, "matched", durationOf(ev))
	case events.KindSessionMismatched:
		RecordSessionOutcome(platform, "mismatched", durationOf(ev))
	case events.KindSessionFailed:
		RecordSessionOutcome(platform, "failed", durationOf(ev))
	case events.KindSessionCancelled:
		RecordSessionOutcome(platform, "cancelled", durationOf(ev))
	case events.KindIncidentReported:
		RecordIncidentReported()
	}
}

// platformOf extracts the originating platform label. Adapter-
// published events (message_received, device_linked) identify their
// platform through Source directly; demux-published events (session
// lifecycle, conversation spawn/evict) carry it in Data["platform"]
// instead, since a single demux.Demux instance is dedicated to one
// platform's Pipe but its Source is always SourceDemux. Falls back to
// "unknown" rather than the raw component name, since platform is
// meant to answer "signal, mqtt, or email", not "which package
// published this".
func platformOf(ev events.Event) string {
	switch ev.Source {
	case events.SourceSignal, events.SourceMQTT, events.SourceEmail:
		return ev.Source
	}
	if ev.Data != nil {
		if p, ok := ev.Data["platform"].(string); ok && p != "" {
			return p
		}
	}
	return "unknown"
}

func reasonOf(ev events.Event) string {
	if ev.Data == nil {
		return "unknown"
	}
	if reason, ok := ev.Data["reason"].(string); ok && reason != "" {
		return reason
	}
	return "unknown"
}

func durationOf(ev events.Event) float64 {
	if ev.Data == nil {
		return 0
	}
	if ms, ok := ev.Data["elapsed_ms"].(int64); ok {
		return float64(ms) / 1000
	}
	if ms, ok := ev.Data["elapsed_ms"].(float64); ok {
		return ms / 1000
	}
	if ms, ok := ev.Data["elapsed_ms"].(int); ok {
		return float64(ms) / 1000
	}
	return 0
}
