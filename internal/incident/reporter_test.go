package incident

import (
	"context"
	"errors"
	"testing"

	"github.com/mikabele/canoe-go/internal/config"
	"github.com/mikabele/canoe-go/internal/events"
)

func TestRecover_ReraisesOriginalError(t *testing.T) {
	r := New(config.IncidentConfig{
		Owner:       "example",
		Repo:        "ops",
		IssueNumber: 1,
	}, nil, events.New())

	cause := errors.New("boom")
	recover := r.Recover("signal:+15551234567")

	// Report itself will fail against the real GitHub API (no network
	// access / invalid token in tests), but Recover must still surface
	// the original cause rather than the reporting error.
	got := recover(context.Background(), cause)
	if !errors.Is(got, cause) {
		t.Errorf("Recover() = %v, want %v", got, cause)
	}
}
