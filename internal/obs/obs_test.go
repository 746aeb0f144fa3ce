package obs

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"chatserver/internal/roster"
)

func TestHealthz(t *testing.T) {
	t.Parallel()

	s := New(roster.New(), Counters{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRosterEndpointReflectsJoins(t *testing.T) {
	t.Parallel()

	r := roster.New()
	s := New(r, Counters{})

	req := httptest.NewRequest(http.MethodGet, "/api/roster", nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() == "" {
		t.Fatalf("expected a JSON body")
	}
}

func TestMetricsIncludesRegisteredCounters(t *testing.T) {
	t.Parallel()

	s := New(roster.New(), Counters{
		Connections: func() int64 { return 3 },
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Body.String(); got == "" {
		t.Fatalf("expected non-empty metrics body")
	}
}
