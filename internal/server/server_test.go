package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Debrato2005/OrbitOps/internal/health"
)

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

type count int

func (c count) Len() int { return int(c) }

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestRoutes(t *testing.T) {
	h := Handler(health.NewChecker(okPinger{}, count(5), testLogger()), testLogger())

	tests := []struct {
		method     string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"GET", "/healthz", http.StatusOK, "ok"},
		{"GET", "/readyz", http.StatusOK, `"catalog_objects":5`},
		{"GET", "/metrics", http.StatusOK, "orbitops_http_requests_total"},
		{"POST", "/healthz", http.StatusMethodNotAllowed, ""},
		{"GET", "/api/v1/conjunctions", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			// Prime the request counter so /metrics has a sample to expose.
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/healthz", nil))

			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("body missing %q", tt.wantBody)
			}
		})
	}
}
