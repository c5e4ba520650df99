package sessionlog

import (
	"context"
	"testing"
	"time"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(":memory:", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestAppendAndRecent(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	start := time.Now().Add(-time.Minute)
	end := time.Now()

	err := l.Append(ctx, Entry{
		ConversationID: "signal:+15551234567",
		Platform:       "signal",
		Outcome:        OutcomeMatched,
		Detail:         "completed onboarding flow",
		StartedAt:      start,
		EndedAt:        end,
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	entries, err := l.Recent(ctx, "signal:+15551234567", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	if entries[0].Outcome != OutcomeMatched {
		t.Errorf("Outcome = %v, want Matched", entries[0].Outcome)
	}
	if entries[0].Detail != "completed onboarding flow" {
		t.Errorf("Detail = %q", entries[0].Detail)
	}
}

func TestRecent_FiltersByConversation(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	now := time.Now()

	l.Append(ctx, Entry{ConversationID: "a", Platform: "mqtt", Outcome: OutcomeFailed, StartedAt: now, EndedAt: now})
	l.Append(ctx, Entry{ConversationID: "b", Platform: "mqtt", Outcome: OutcomeFailed, StartedAt: now, EndedAt: now})

	entries, err := l.Recent(ctx, "a", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 || entries[0].ConversationID != "a" {
		t.Fatalf("Recent returned %v, want one entry for conversation a", entries)
	}
}

func TestRecentAll_AcrossConversations(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	now := time.Now()

	l.Append(ctx, Entry{ConversationID: "a", Platform: "signal", Outcome: OutcomeMatched, StartedAt: now, EndedAt: now})
	l.Append(ctx, Entry{ConversationID: "b", Platform: "mqtt", Outcome: OutcomeFailed, StartedAt: now, EndedAt: now})

	entries, err := l.RecentAll(ctx, 0)
	if err != nil {
		t.Fatalf("RecentAll: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
}

func TestCountSince(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	now := time.Now()

	l.Append(ctx, Entry{ConversationID: "a", Platform: "email", Outcome: OutcomeCancelled, StartedAt: now, EndedAt: now})
	l.Append(ctx, Entry{ConversationID: "b", Platform: "email", Outcome: OutcomeMatched, StartedAt: now, EndedAt: now})

	count, err := l.CountSince(ctx, OutcomeCancelled, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("CountSince: %v", err)
	}
	if count != 1 {
		t.Errorf("CountSince = %d, want 1", count)
	}
}
