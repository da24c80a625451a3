package maneuver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Debrato2005/OrbitOps/internal/catalog"
	"github.com/Debrato2005/OrbitOps/internal/metrics"
	"github.com/Debrato2005/OrbitOps/internal/orbit"
	"github.com/Debrato2005/OrbitOps/internal/propagation"
	"github.com/Debrato2005/OrbitOps/internal/tle"
)

// ErrInvalidConfig is returned for solver settings outside the model's range.
var ErrInvalidConfig = errors.New("invalid maneuver config")

// Limits of the first-order model.
const (
	MaxCapMps   = 50.0
	MaxLeadTime = 2 * time.Hour

	// zeroBurnMps is the Δv treated as numerical noise.
	zeroBurnMps = 1e-9
)

// Config controls the burn search.
type Config struct {
	SafeDistanceKm float64
	LeadTime       time.Duration // negative: burn happens before TCA
	SeedMps        float64
	CapMps         float64
	Iterations     int
	ToleranceKm    float64
}

// DefaultConfig returns a 10 km target with the burn 30 minutes before TCA.
func DefaultConfig() Config {
	return Config{
		SafeDistanceKm: 10,
		LeadTime:       -30 * time.Minute,
		SeedMps:        0.01,
		CapMps:         MaxCapMps,
		Iterations:     40,
		ToleranceKm:    1e-6,
	}
}

// Validate checks c against the model limits.
func (c Config) Validate() error {
	switch {
	case !(c.SafeDistanceKm > 0):
		return fmt.Errorf("%w: safe distance %v km", ErrInvalidConfig, c.SafeDistanceKm)
	case c.LeadTime >= 0 || c.LeadTime < -MaxLeadTime:
		return fmt.Errorf("%w: lead time %s outside [-%s, 0)", ErrInvalidConfig, c.LeadTime, MaxLeadTime)
	case !(c.SeedMps > 0):
		return fmt.Errorf("%w: seed %v m/s", ErrInvalidConfig, c.SeedMps)
	case c.CapMps < c.SeedMps || c.CapMps > MaxCapMps:
		return fmt.Errorf("%w: cap %v m/s outside [seed, %v]", ErrInvalidConfig, c.CapMps, MaxCapMps)
	case c.Iterations <= 0:
		return fmt.Errorf("%w: iterations %d", ErrInvalidConfig, c.Iterations)
	case c.ToleranceKm < 0:
		return fmt.Errorf("%w: tolerance %v km", ErrInvalidConfig, c.ToleranceKm)
	}
	return nil
}

// Solver plans burns for conjunction events.
type Solver struct {
	provider propagation.Provider
	cfg      Config
	logger   *slog.Logger
}

// NewSolver validates cfg and returns a Solver.
func NewSolver(provider propagation.Provider, cfg Config, logger *slog.Logger) (*Solver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Solver{provider: provider, cfg: cfg, logger: logger}, nil
}

// Config returns the solver settings.
func (s *Solver) Config() Config {
	return s.cfg
}

// Plan sizes the burn for event, with primary performing it. A nil solution
// and nil error means no burn up to the cap reaches the safe distance. A
// zero-magnitude solution means the event already clears it.
func (s *Solver) Plan(ctx context.Context, event catalog.Event, primary, secondary tle.TrackedObject) (sol *catalog.ManeuverSolution, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() {
		outcome := string(Status(sol))
		if err != nil {
			outcome = "failed"
		}
		metrics.RecordManeuver(outcome, time.Since(start))
		s.logger.Debug("maneuver search complete",
			"event_id", event.ID,
			"primary_id", primary.NORADID,
			"secondary_id", secondary.NORADID,
			"outcome", outcome,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}()

	po, err := s.provider.Orbit(primary)
	if err != nil {
		return nil, fmt.Errorf("primary %d: %w", primary.NORADID, err)
	}
	so, err := s.provider.Orbit(secondary)
	if err != nil {
		return nil, fmt.Errorf("secondary %d: %w", secondary.NORADID, err)
	}
	g, err := NewGeometry(po, so, event.TCA, s.cfg.LeadTime)
	if err != nil {
		return nil, err
	}

	sol, err = s.Solve(g)
	if err != nil {
		return nil, err
	}
	if sol != nil {
		sol.ObjectID = primary.NORADID
	}
	return sol, nil
}

// Solve runs the doubling-then-bisection search on precomputed geometry.
func (s *Solver) Solve(g Geometry) (*catalog.ManeuverSolution, error) {
	safe := s.cfg.SafeDistanceKm

	if g.Separation(0) >= safe {
		return s.solution(g, 0)
	}

	lo, hi := 0.0, s.cfg.SeedMps
	for g.Separation(hi) < safe {
		if hi >= s.cfg.CapMps {
			return nil, nil
		}
		lo = hi
		hi *= 2
		if hi > s.cfg.CapMps {
			hi = s.cfg.CapMps
		}
	}

	mid := hi
	for i := 0; i < s.cfg.Iterations; i++ {
		mid = (lo + hi) / 2
		sep := g.Separation(mid)
		if sep >= safe {
			hi = mid
		} else {
			lo = mid
		}
		if sep-safe <= s.cfg.ToleranceKm && safe-sep <= s.cfg.ToleranceKm {
			break
		}
	}

	if mid < zeroBurnMps {
		mid = 0
	}
	return s.solution(g, mid)
}

// solution builds the report for a burn of dv, including the resulting orbit.
func (s *Solver) solution(g Geometry, dv float64) (*catalog.ManeuverSolution, error) {
	el, err := orbit.ElementsFromState(g.PostBurnState(dv), orbit.MuEarth)
	if err != nil {
		return nil, fmt.Errorf("post-burn elements: %w", err)
	}
	return &catalog.ManeuverSolution{
		BurnTime:     g.BurnTime.UTC(),
		DeltaVMps:    dv,
		Direction:    string(g.Direction()),
		SeparationKm: g.Separation(dv),
		ApogeeKm:     el.ApogeeAltitude(),
		PerigeeKm:    el.PerigeeAltitude(),
	}, nil
}

// Status maps a Plan result to the catalog's maneuver status.
func Status(sol *catalog.ManeuverSolution) catalog.ManeuverStatus {
	switch {
	case sol == nil:
		return catalog.StatusNoSolution
	case sol.DeltaVMps == 0:
		return catalog.StatusNotRequired
	default:
		return catalog.StatusSolved
	}
}
