// Package feed reads externally computed conjunction records (SOCRATES-style
// JSON) and converts them into catalog events with external provenance.
package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// maxBodyBytes bounds a feed download.
const maxBodyBytes = 50 * 1024 * 1024

// Source yields one raw feed document.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
	String() string
}

// Fetcher retrieves the feed over HTTP.
type Fetcher struct {
	sourceURL  string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher for the given URL.
func NewFetcher(sourceURL string, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		sourceURL: sourceURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

func (f *Fetcher) String() string {
	return f.sourceURL
}

// Fetch performs an HTTP GET and returns the body, refusing anything larger
// than maxBodyBytes.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, f.sourceURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("feed response exceeds %d byte limit", maxBodyBytes)
	}

	f.logger.Info("feed fetched",
		"url", f.sourceURL,
		"bytes", len(body),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return body, nil
}

// File reads the feed from a local path.
type File string

func (p File) String() string {
	return string(p)
}

// Fetch implements Source.
func (p File) Fetch(context.Context) ([]byte, error) {
	data, err := os.ReadFile(string(p))
	if err != nil {
		return nil, fmt.Errorf("reading feed file: %w", err)
	}
	return data, nil
}
