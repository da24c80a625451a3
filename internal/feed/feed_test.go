package feed

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Debrato2005/OrbitOps/internal/catalog"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

const bareFeed = `[
  {"SAT1": "25544", "SAT2": 48274, "SAT1_NAME": "ISS (ZARYA)", "SAT2_NAME": "CZ-2F DEB",
   "TOCA": "2025-02-15 06:12:33.120", "MIN_RNG": "0.842", "REL_SPEED": 13.91, "MAX_PROB": "2.1E-04"},
  {"SAT1": 25544, "SAT2": 33442, "SAT1_NAME": "ISS (ZARYA)", "SAT2_NAME": "COSMOS 2251 DEB",
   "TOCA": "2025-02-16T01:00:00Z", "MIN_RNG": 3.5, "REL_SPEED": 9.2, "MAX_PROB": null},
  {"SAT1": 25544, "SAT2": 25544, "TOCA": "2025-02-16 01:00:00", "MIN_RNG": 0, "REL_SPEED": 1},
  {"SAT1": 1, "SAT2": 2, "TOCA": "soon", "MIN_RNG": 1, "REL_SPEED": 1},
  {"SAT1": 1, "SAT2": 2, "TOCA": "2025-02-16 01:00:00", "MIN_RNG": 1, "REL_SPEED": 0.00001}
]`

func TestDecodeBareAndWrapped(t *testing.T) {
	bare, err := Decode([]byte(bareFeed))
	require.NoError(t, err)
	assert.Len(t, bare, 5)

	wrapped, err := Decode([]byte(`{"conjunctions": ` + bareFeed + `}`))
	require.NoError(t, err)
	assert.Equal(t, bare, wrapped)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", ""},
		{"not json", "SAT1,SAT2"},
		{"two keys", `{"a": [], "b": []}`},
		{"wrapped scalar", `{"a": 3}`},
		{"bad number", `[{"SAT1": "abc"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.doc))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestEvents(t *testing.T) {
	records, err := Decode([]byte(bareFeed))
	require.NoError(t, err)

	events, skipped := Events(records, testLogger)
	assert.Equal(t, 3, skipped, "self-conjunction, bad TOCA and degenerate speed are skipped")
	require.Len(t, events, 2)

	first := events[0]
	assert.Equal(t, 25544, first.PrimaryID)
	assert.Equal(t, 48274, first.SecondaryID)
	assert.Equal(t, "CZ-2F DEB", first.SecondaryName)
	assert.True(t, first.TCA.Equal(time.Date(2025, 2, 15, 6, 12, 33, 120000000, time.UTC)), "TCA = %s", first.TCA)
	assert.InDelta(t, 0.842, first.MissDistanceKm, 1e-12)
	assert.Equal(t, catalog.ProvenanceExternal, first.Provenance)
	require.NotNil(t, first.Probability)
	assert.InDelta(t, 2.1e-4, *first.Probability, 1e-15)

	assert.Nil(t, events[1].Probability)
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "socrates.json")
	require.NoError(t, os.WriteFile(path, []byte(bareFeed), 0o644))

	data, err := File(path).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, bareFeed, string(data))

	_, err = File(filepath.Join(t.TempDir(), "missing.json")).Fetch(context.Background())
	assert.Error(t, err)
}

// TestFetcherBodyLimit verifies that responses exceeding the 50 MB limit
// return an error instead of consuming unbounded memory.
func TestFetcherBodyLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		chunk := strings.Repeat("A", 1024*1024)
		for i := 0; i < 52; i++ {
			if _, err := w.Write([]byte(chunk)); err != nil {
				return // Client closed connection.
			}
		}
	}))
	defer server.Close()

	_, err := NewFetcher(server.URL, testLogger).Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "byte limit")
}

func TestFetcherSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Write([]byte(bareFeed))
	}))
	defer server.Close()

	data, err := NewFetcher(server.URL, testLogger).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, bareFeed, string(data))
}

func TestFetcherStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewFetcher(server.URL, testLogger).Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
