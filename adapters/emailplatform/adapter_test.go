package emailplatform

import (
	"testing"
	"time"

	"github.com/mikabele/canoe-go/internal/chatevent"
	"github.com/mikabele/canoe-go/internal/config"
	"github.com/mikabele/canoe-go/internal/events"
)

func newTestAdapter() *Adapter {
	return New(config.EmailConfig{DefaultFrom: "bot@example.com"}, nil, events.New())
}

func TestTranslate_ProducesIncomingMessage(t *testing.T) {
	a := newTestAdapter()
	a.translate(envelope{UID: 5, From: "alice@example.com", Subject: "hi", Body: "hi"})

	select {
	case ev := <-a.out:
		if ev.Kind != chatevent.KindIncomingMessage {
			t.Errorf("Kind = %v, want KindIncomingMessage", ev.Kind)
		}
		if ev.ConversationID != "alice@example.com" {
			t.Errorf("ConversationID = %q", ev.ConversationID)
		}
	default:
		t.Fatal("no event produced")
	}
}

func TestTranslate_SkipsSelfSent(t *testing.T) {
	a := newTestAdapter()
	a.translate(envelope{UID: 6, From: "bot@example.com", Subject: "auto-reply", Body: "auto-reply"})

	select {
	case ev := <-a.out:
		t.Fatalf("expected no event for self-sent message, got %v", ev)
	case <-time.After(10 * time.Millisecond):
	}
}
