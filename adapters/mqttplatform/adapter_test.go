package mqttplatform

import (
	"testing"
	"time"

	"github.com/mikabele/canoe-go/internal/chatevent"
	"github.com/mikabele/canoe-go/internal/config"
	"github.com/mikabele/canoe-go/internal/events"
)

func newTestAdapter() *Adapter {
	return New(config.MQTTConfig{TopicPrefix: "canoe"}, nil, events.New())
}

func TestConversationFromTopic(t *testing.T) {
	a := newTestAdapter()

	tests := []struct {
		topic  string
		want   string
		wantOK bool
	}{
		{"canoe/alice/in", "alice", true},
		{"canoe/alice/out", "", false},
		{"other/alice/in", "", false},
		{"canoe//in", "", false},
		{"canoe/alice/bob/in", "", false},
	}
	for _, tt := range tests {
		got, ok := a.conversationFromTopic(tt.topic)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("conversationFromTopic(%q) = (%q, %v), want (%q, %v)", tt.topic, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestOutTopic(t *testing.T) {
	a := newTestAdapter()
	if got, want := a.outTopic("alice"), "canoe/alice/out"; got != want {
		t.Errorf("outTopic = %q, want %q", got, want)
	}
}

func TestTranslate_ProducesIncomingMessage(t *testing.T) {
	a := newTestAdapter()
	a.translate("canoe/alice/in", []byte("hello"))

	select {
	case ev := <-a.out:
		if ev.Kind != chatevent.KindIncomingMessage {
			t.Errorf("Kind = %v, want KindIncomingMessage", ev.Kind)
		}
		if ev.ConversationID != "alice" {
			t.Errorf("ConversationID = %q, want alice", ev.ConversationID)
		}
		if ev.Text != "hello" {
			t.Errorf("Text = %q", ev.Text)
		}
	case <-time.After(10 * time.Millisecond):
		t.Fatal("no event produced")
	}
}

func TestTranslate_IgnoresUnrelatedTopic(t *testing.T) {
	a := newTestAdapter()
	a.translate("canoe/alice/out", []byte("ignored"))

	select {
	case ev := <-a.out:
		t.Fatalf("expected no event, got %v", ev)
	case <-time.After(10 * time.Millisecond):
	}
}
