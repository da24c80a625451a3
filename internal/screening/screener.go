package screening

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/Debrato2005/OrbitOps/internal/catalog"
	"github.com/Debrato2005/OrbitOps/internal/orbit"
	"github.com/Debrato2005/OrbitOps/internal/propagation"
	"github.com/Debrato2005/OrbitOps/internal/tle"
)

// DefaultDuplicateSpeedEpsilon is the relative speed (km/s) below which two
// objects are treated as duplicate catalog entries for the same body.
const DefaultDuplicateSpeedEpsilon = 1e-4

// Options tune a Screener.
type Options struct {
	Workers               int
	FilterMarginKm        float64
	CandidateTimeout      time.Duration
	DuplicateSpeedEpsilon float64
}

// DefaultOptions returns the stock screener settings.
func DefaultOptions() Options {
	return Options{
		Workers:               8,
		CandidateTimeout:      30 * time.Second,
		DuplicateSpeedEpsilon: DefaultDuplicateSpeedEpsilon,
	}
}

// Stats counts candidate outcomes for one pass.
type Stats struct {
	Candidates int `json:"candidates"`
	Pruned     int `json:"pruned"`
	Screened   int `json:"screened"`
	Failed     int `json:"failed"`
	Duplicates int `json:"duplicates"`
	Events     int `json:"events"`
}

// Result is the output of one screening pass.
type Result struct {
	Events []catalog.Event
	Stats  Stats
}

// Screener runs conjunction screening passes.
type Screener struct {
	provider propagation.Provider
	opts     Options
	logger   *slog.Logger
}

// New creates a Screener. Non-positive option values fall back to defaults.
func New(provider propagation.Provider, opts Options, logger *slog.Logger) *Screener {
	def := DefaultOptions()
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.CandidateTimeout <= 0 {
		opts.CandidateTimeout = def.CandidateTimeout
	}
	if opts.DuplicateSpeedEpsilon <= 0 {
		opts.DuplicateSpeedEpsilon = def.DuplicateSpeedEpsilon
	}
	if opts.FilterMarginKm < 0 {
		opts.FilterMarginKm = 0
	}
	return &Screener{provider: provider, opts: opts, logger: logger}
}

// sample is one evaluation of the primary trajectory.
type sample struct {
	at    time.Time
	state orbit.State
	ok    bool
}

// Screen compares primary against every candidate over w. Per-candidate
// failures are counted and skipped. If ctx ends before the pass completes
// the partial result is discarded and ctx's error returned.
func (s *Screener) Screen(ctx context.Context, primary tle.TrackedObject, candidates []tle.TrackedObject, w Window) (Result, error) {
	if err := w.Validate(); err != nil {
		return Result{}, err
	}

	start := time.Now()
	samples, err := s.primarySamples(primary, w)
	if err != nil {
		return Result{}, err
	}

	stats := Stats{}
	survivors := make([]tle.TrackedObject, 0, len(candidates))
	for _, c := range candidates {
		if c.NORADID == primary.NORADID {
			continue
		}
		stats.Candidates++
		if !ShellsOverlap(primary, c, s.opts.FilterMarginKm) {
			stats.Pruned++
			continue
		}
		survivors = append(survivors, c)
	}

	s.logger.Debug("pre-filter complete",
		"primary_id", primary.NORADID,
		"candidates", stats.Candidates,
		"pruned", stats.Pruned,
	)

	pool := newWorkerPool(s.opts.Workers, s.logger)
	outcomes := pool.run(ctx, survivors, func(ctx context.Context, c tle.TrackedObject) candidateOutcome {
		return s.screenCandidate(ctx, primary, c, samples, w.ThresholdKm)
	})

	if err := ctx.Err(); err != nil {
		return Result{Stats: stats}, fmt.Errorf("screening pass for %d interrupted: %w", primary.NORADID, err)
	}

	events := make([]catalog.Event, 0)
	for _, o := range outcomes {
		switch o.kind {
		case outcomeFailed:
			stats.Failed++
			s.logger.Warn("candidate screening failed",
				"primary_id", primary.NORADID,
				"norad_id", o.noradID,
				"error", o.err,
			)
		case outcomeDuplicate:
			stats.Screened++
			stats.Duplicates++
			s.logger.Info("duplicate orbit discarded",
				"primary_id", primary.NORADID,
				"norad_id", o.noradID,
			)
		case outcomeEvent:
			stats.Screened++
			events = append(events, o.event)
		default:
			stats.Screened++
		}
	}

	sort.Slice(events, func(i, j int) bool {
		if events[i].SecondaryID != events[j].SecondaryID {
			return events[i].SecondaryID < events[j].SecondaryID
		}
		return events[i].TCA.Before(events[j].TCA)
	})
	stats.Events = len(events)

	s.logger.Info("screening pass complete",
		"primary_id", primary.NORADID,
		"candidates", stats.Candidates,
		"pruned", stats.Pruned,
		"screened", stats.Screened,
		"failed", stats.Failed,
		"duplicates", stats.Duplicates,
		"events", stats.Events,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return Result{Events: events, Stats: stats}, nil
}

// primarySamples evaluates the primary once per sample instant. Individual
// failures are kept as gaps; a trajectory with no valid sample is an error.
func (s *Screener) primarySamples(primary tle.TrackedObject, w Window) ([]sample, error) {
	orb, err := s.provider.Orbit(primary)
	if err != nil {
		return nil, fmt.Errorf("primary %d: %w", primary.NORADID, err)
	}

	times := w.Times()
	samples := make([]sample, len(times))
	valid := 0
	for i, t := range times {
		st, err := orb.StateAt(t)
		samples[i] = sample{at: t, state: st, ok: err == nil}
		if err == nil {
			valid++
		}
	}
	if valid == 0 {
		return nil, fmt.Errorf("primary %d: no valid state in window: %w", primary.NORADID, propagation.ErrUnavailable)
	}
	if valid < len(samples) {
		s.logger.Warn("primary has propagation gaps",
			"primary_id", primary.NORADID,
			"valid", valid,
			"samples", len(samples),
		)
	}
	return samples, nil
}

type outcomeKind int

const (
	outcomeClear outcomeKind = iota
	outcomeEvent
	outcomeDuplicate
	outcomeFailed
)

type candidateOutcome struct {
	kind    outcomeKind
	noradID int
	event   catalog.Event
	err     error
}

// screenCandidate finds the sampled closest approach between primary and c.
func (s *Screener) screenCandidate(ctx context.Context, primary, c tle.TrackedObject, samples []sample, thresholdKm float64) candidateOutcome {
	fail := func(err error) candidateOutcome {
		return candidateOutcome{kind: outcomeFailed, noradID: c.NORADID, err: err}
	}

	orb, err := s.provider.Orbit(c)
	if err != nil {
		return fail(err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.CandidateTimeout)
	defer cancel()

	var (
		minDist  = math.Inf(1)
		minIdx   = -1
		minState orbit.State
		skipped  int
	)
	for i, p := range samples {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		if !p.ok {
			continue
		}
		st, err := orb.StateAt(p.at)
		if err != nil {
			skipped++
			continue
		}
		if d := orbit.Distance(p.state, st); d < minDist {
			minDist, minIdx, minState = d, i, st
		}
	}

	if minIdx < 0 {
		return fail(fmt.Errorf("no valid sample for %d: %w", c.NORADID, propagation.ErrUnavailable))
	}
	if skipped > 0 {
		s.logger.Debug("candidate samples skipped", "norad_id", c.NORADID, "skipped", skipped)
	}
	if minDist >= thresholdKm {
		return candidateOutcome{kind: outcomeClear, noradID: c.NORADID}
	}

	p := samples[minIdx]
	relSpeed := orbit.RelativeSpeed(p.state, minState)
	if relSpeed < s.opts.DuplicateSpeedEpsilon {
		return candidateOutcome{kind: outcomeDuplicate, noradID: c.NORADID}
	}

	return candidateOutcome{
		kind:    outcomeEvent,
		noradID: c.NORADID,
		event: catalog.Event{
			PrimaryID:        primary.NORADID,
			SecondaryID:      c.NORADID,
			PrimaryName:      primary.Name,
			SecondaryName:    c.Name,
			TCA:              p.at.UTC(),
			MissDistanceKm:   minDist,
			RelativeSpeedKmS: relSpeed,
			Provenance:       catalog.ProvenanceLocal,
		},
	}
}

// IsInterrupted reports whether err came from a cancelled or expired pass.
func IsInterrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
