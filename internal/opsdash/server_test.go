package opsdash

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mikabele/canoe-go/internal/config"
	"github.com/mikabele/canoe-go/internal/events"
)

func newTestServer(cfg config.ListenConfig) *Server {
	return New(cfg, events.New(), nil, nil)
}

func TestHandleDashboard_NoRows(t *testing.T) {
	s := newTestServer(config.ListenConfig{})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "No sessions recorded yet.") {
		t.Errorf("expected empty-state message in body, got:\n%s", rec.Body.String())
	}
}

func TestHandleDashboard_UnknownPath404(t *testing.T) {
	s := newTestServer(config.ListenConfig{})
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestRequireBasicAuth_RejectsMissingCredentials(t *testing.T) {
	cfg := config.ListenConfig{BasicAuthUser: "ops", BasicAuthPasswordHash: "$2a$10$invalidhashplaceholderdoesnotneedtoverify0000000000"}
	s := newTestServer(cfg)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestHandleHealthz(t *testing.T) {
	s := newTestServer(config.ListenConfig{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
