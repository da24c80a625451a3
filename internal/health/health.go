// Package health serves liveness and readiness probes for the run daemon.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Pinger reports whether the conjunction store can serve requests.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ObjectCounter reports how many tracked objects are loaded.
type ObjectCounter interface {
	Len() int
}

// Checker answers /healthz and /readyz.
type Checker struct {
	store   Pinger
	objects ObjectCounter
	timeout time.Duration
	logger  *slog.Logger
}

// NewChecker builds a Checker. Readiness requires a reachable store and a
// non-empty object catalog.
func NewChecker(store Pinger, objects ObjectCounter, logger *slog.Logger) *Checker {
	return &Checker{store: store, objects: objects, timeout: 2 * time.Second, logger: logger}
}

// Healthz returns 200 "ok\n" unconditionally.
func (c *Checker) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

type readiness struct {
	Status         string `json:"status"`
	Store          string `json:"store"`
	CatalogObjects int    `json:"catalog_objects"`
}

// Readyz returns 200 with a JSON body when ready, 503 otherwise.
func (c *Checker) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), c.timeout)
	defer cancel()

	resp := readiness{Status: "ready", Store: "ok", CatalogObjects: c.objects.Len()}
	code := http.StatusOK

	if err := c.store.Ping(ctx); err != nil {
		c.logger.Warn("readiness: store ping failed", "error", err)
		resp.Status, resp.Store = "not_ready", "unavailable"
		code = http.StatusServiceUnavailable
	}
	if resp.CatalogObjects == 0 {
		resp.Status = "not_ready"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(resp)
}
