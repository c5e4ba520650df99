package metrics

import (
	"testing"

	"github.com/mikabele/canoe-go/internal/events"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHandle_SessionMatched(t *testing.T) {
	c := NewCollector(events.New(), nil)
	before := testutil.ToFloat64(SessionsTotal.WithLabelValues("signal", "matched"))

	c.handle(events.Event{
		Source: events.SourceSignal,
		Kind:   events.KindSessionMatched,
		Data:   map[string]any{"elapsed_ms": float64(2000)},
	})

	after := testutil.ToFloat64(SessionsTotal.WithLabelValues("signal", "matched"))
	if after != before+1 {
		t.Errorf("SessionsTotal delta = %v, want 1", after-before)
	}
}

func TestPlatformOf(t *testing.T) {
	tests := []struct {
		name string
		ev   events.Event
		want string
	}{
		{"signal source", events.Event{Source: events.SourceSignal}, "signal"},
		{"mqtt source", events.Event{Source: events.SourceMQTT}, "mqtt"},
		{"email source", events.Event{Source: events.SourceEmail}, "email"},
		{"demux with platform data", events.Event{Source: events.SourceDemux, Data: map[string]any{"platform": "signal"}}, "signal"},
		{"demux without platform data", events.Event{Source: events.SourceDemux}, "unknown"},
		{"incident source", events.Event{Source: events.SourceIncident}, "unknown"},
	}
	for _, tt := range tests {
		if got := platformOf(tt.ev); got != tt.want {
			t.Errorf("platformOf(%s) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestDurationOf(t *testing.T) {
	ev := events.Event{Data: map[string]any{"elapsed_ms": float64(1500)}}
	if got := durationOf(ev); got != 1.5 {
		t.Errorf("durationOf = %v, want 1.5", got)
	}
	if got := durationOf(events.Event{}); got != 0 {
		t.Errorf("durationOf(empty) = %v, want 0", got)
	}
}

// demux.classify stamps elapsed_ms via time.Duration.Milliseconds,
// which returns int64 — this is the shape durationOf must handle first.
func TestDurationOf_Int64ElapsedMs(t *testing.T) {
	ev := events.Event{Data: map[string]any{"elapsed_ms": int64(2500)}}
	if got := durationOf(ev); got != 2.5 {
		t.Errorf("durationOf(int64) = %v, want 2.5", got)
	}
}

// This is what demux.classify actually stamps (time.Duration.Milliseconds
// returns int64), so it must not be silently treated as a zero duration.
func TestHandle_SessionMatchedRecordsInt64Duration(t *testing.T) {
	c := NewCollector(events.New(), nil)
	before := testutil.ToFloat64(SessionsTotal.WithLabelValues("mqtt", "matched"))

	c.handle(events.Event{
		Source: events.SourceMQTT,
		Kind:   events.KindSessionMatched,
		Data:   map[string]any{"elapsed_ms": int64(3000)},
	})

	after := testutil.ToFloat64(SessionsTotal.WithLabelValues("mqtt", "matched"))
	if after != before+1 {
		t.Errorf("SessionsTotal delta = %v, want 1", after-before)
	}
}

func TestReasonOf(t *testing.T) {
	if got := reasonOf(events.Event{Data: map[string]any{"reason": "inbox_full"}}); got != "inbox_full" {
		t.Errorf("reasonOf = %q, want inbox_full", got)
	}
	if got := reasonOf(events.Event{}); got != "unknown" {
		t.Errorf("reasonOf(empty) = %q, want unknown", got)
	}
}

func TestHandle_EventDroppedRecordsReason(t *testing.T) {
	c := NewCollector(events.New(), nil)
	before := testutil.ToFloat64(EventsDroppedTotal.WithLabelValues("signal", "inbox_full"))

	c.handle(events.Event{
		Source: events.SourceDemux,
		Kind:   events.KindEventDropped,
		Data:   map[string]any{"platform": "signal", "reason": "inbox_full"},
	})

	after := testutil.ToFloat64(EventsDroppedTotal.WithLabelValues("signal", "inbox_full"))
	if after != before+1 {
		t.Errorf("EventsDroppedTotal delta = %v, want 1", after-before)
	}
}
