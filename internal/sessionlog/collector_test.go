package sessionlog

import (
	"context"
	"testing"
	"time"

	"github.com/mikabele/canoe-go/internal/events"
)

func TestCollector_HandleSessionMatched(t *testing.T) {
	l := newTestLedger(t)
	c := NewCollector(events.New(), l, nil)
	ctx := context.Background()
	now := time.Now()

	c.handle(ctx, events.Event{
		Timestamp: now,
		Source:    events.SourceDemux,
		Kind:      events.KindSessionMatched,
		Data:      map[string]any{"conversation_id": "a", "platform": "signal", "elapsed_ms": int64(2500)},
	})

	entries, err := l.Recent(ctx, "a", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	if entries[0].Outcome != OutcomeMatched {
		t.Errorf("Outcome = %v, want Matched", entries[0].Outcome)
	}
	if entries[0].Platform != "signal" {
		t.Errorf("Platform = %q, want signal", entries[0].Platform)
	}
	if got := entries[0].Duration(); got != 2500*time.Millisecond {
		t.Errorf("Duration = %v, want 2.5s", got)
	}
}

func TestCollector_IgnoresUnrelatedEvents(t *testing.T) {
	l := newTestLedger(t)
	c := NewCollector(events.New(), l, nil)
	ctx := context.Background()

	c.handle(ctx, events.Event{Kind: events.KindConversationSpawned, Data: map[string]any{"conversation_id": "a"}})

	entries, err := l.RecentAll(ctx, 0)
	if err != nil {
		t.Fatalf("RecentAll: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %v", entries)
	}
}
