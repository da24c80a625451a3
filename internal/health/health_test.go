package health

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type fakeObjects int

func (n fakeObjects) Len() int { return int(n) }

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestHealthz(t *testing.T) {
	c := NewChecker(fakePinger{errors.New("down")}, fakeObjects(0), testLogger())
	w := httptest.NewRecorder()
	c.Healthz(w, httptest.NewRequest("GET", "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != "ok\n" {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		objects    int
		wantStatus int
		wantState  string
		wantStore  string
	}{
		{"ready", nil, 3, http.StatusOK, "ready", "ok"},
		{"store down", errors.New("connection refused"), 3, http.StatusServiceUnavailable, "not_ready", "unavailable"},
		{"empty catalog", nil, 0, http.StatusServiceUnavailable, "not_ready", "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker(fakePinger{tt.pingErr}, fakeObjects(tt.objects), testLogger())
			w := httptest.NewRecorder()
			c.Readyz(w, httptest.NewRequest("GET", "/readyz", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body readiness
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Status != tt.wantState || body.Store != tt.wantStore {
				t.Errorf("body = %+v, want status %q store %q", body, tt.wantState, tt.wantStore)
			}
			if body.CatalogObjects != tt.objects {
				t.Errorf("catalog_objects = %d, want %d", body.CatalogObjects, tt.objects)
			}
		})
	}
}
