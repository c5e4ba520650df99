package signalplatform

import (
	"testing"
	"time"

	"github.com/mikabele/canoe-go/internal/chatevent"
	"github.com/mikabele/canoe-go/internal/events"
)

func newTestAdapter() *Adapter {
	return &Adapter{
		out: make(chan chatevent.Event, 4),
		bus: events.New(),
	}
}

func TestTranslate_DirectTextMessage(t *testing.T) {
	a := newTestAdapter()
	a.translate(Envelope{
		Source:    "+15551234567",
		Timestamp: 1700000000000,
		DataMessage: &DataMessage{
			Message: "hello there",
		},
	})

	select {
	case ev := <-a.out:
		if ev.Kind != chatevent.KindIncomingMessage {
			t.Errorf("Kind = %v, want KindIncomingMessage", ev.Kind)
		}
		if ev.ConversationID != "+15551234567" {
			t.Errorf("ConversationID = %q, want sender number", ev.ConversationID)
		}
		if ev.Text != "hello there" {
			t.Errorf("Text = %q", ev.Text)
		}
	default:
		t.Fatal("no event produced")
	}
}

func TestTranslate_GroupMessage(t *testing.T) {
	a := newTestAdapter()
	a.translate(Envelope{
		Source:    "+15551234567",
		Timestamp: 1700000000000,
		DataMessage: &DataMessage{
			Message:   "group hi",
			GroupInfo: &GroupInfo{GroupID: "grp-abc"},
		},
	})

	ev := <-a.out
	if ev.ConversationID != "grp-abc" {
		t.Errorf("ConversationID = %q, want group ID", ev.ConversationID)
	}
	if ev.SenderID != "+15551234567" {
		t.Errorf("SenderID = %q", ev.SenderID)
	}
}

func TestTranslate_Reaction(t *testing.T) {
	a := newTestAdapter()
	a.translate(Envelope{
		Source:    "+15551234567",
		Timestamp: 1700000000000,
		DataMessage: &DataMessage{
			Reaction: &Reaction{
				Emoji:               "\U0001F44D",
				TargetSentTimestamp: 1699999999000,
			},
		},
	})

	ev := <-a.out
	if ev.Kind != chatevent.KindCallbackQuery {
		t.Errorf("Kind = %v, want KindCallbackQuery", ev.Kind)
	}
	if ev.CallbackData != "\U0001F44D" {
		t.Errorf("CallbackData = %q", ev.CallbackData)
	}
	if ev.OriginMessageID != "1699999999000" {
		t.Errorf("OriginMessageID = %q", ev.OriginMessageID)
	}
}

func TestTranslate_NilDataMessageIgnored(t *testing.T) {
	a := newTestAdapter()
	a.translate(Envelope{Source: "+15551234567"})

	select {
	case ev := <-a.out:
		t.Fatalf("expected no event, got %v", ev)
	case <-time.After(10 * time.Millisecond):
	}
}

func TestIsGroupID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"+15551234567", false},
		{"grp-abc123", true},
		{"", false},
	}
	for _, tt := range tests {
		if got := isGroupID(tt.id); got != tt.want {
			t.Errorf("isGroupID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
