package propagation

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Debrato2005/OrbitOps/internal/orbit"
	"github.com/Debrato2005/OrbitOps/internal/tle"
)

// SGP4 library choice: github.com/joshuaferrara/go-satellite
//
// Pure Go, explicit TEME output. Propagate() takes Satellite by value so
// SGP4 error codes are not visible to the caller; failures are detected by
// checking output for NaN/Inf and unreasonable position magnitudes.

const (
	minRadiusKm = 6200.0
	maxRadiusKm = 50000.0
)

// SGP4Propagator wraps the go-satellite library for a single object.
type SGP4Propagator struct {
	sat     satellite.Satellite
	noradID int
}

// NewSGP4Propagator creates an SGP4 propagator from TLE lines.
//
// Pre-validates TLE format before passing to the library, because go-satellite
// calls log.Fatal on malformed input (which would kill the process).
func NewSGP4Propagator(line1, line2 string, noradID int) (*SGP4Propagator, error) {
	if err := validateTLELines(line1, line2); err != nil {
		return nil, fmt.Errorf("%w: NORAD %d: %v", ErrInvalidElements, noradID, err)
	}

	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("%w: sgp4 init failed for NORAD %d: code=%d %s", ErrInvalidElements, noradID, sat.Error, sat.ErrorStr)
	}
	return &SGP4Propagator{sat: sat, noradID: noradID}, nil
}

// validateTLELines performs basic format validation on TLE lines.
func validateTLELines(line1, line2 string) error {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)

	if len(line1) != 69 {
		return fmt.Errorf("line1 length %d, expected 69", len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("line2 length %d, expected 69", len(line2))
	}
	if line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1', got '%c'", line1[0])
	}
	if line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2', got '%c'", line2[0])
	}
	return nil
}

// StateAt computes the TEME position (km) and velocity (km/s) at t,
// resolved to whole UTC seconds.
func (p *SGP4Propagator) StateAt(t time.Time) (orbit.State, error) {
	t = t.UTC()
	pos, vel := satellite.Propagate(p.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())

	s := orbit.State{
		Position: r3.Vec{X: pos.X, Y: pos.Y, Z: pos.Z},
		Velocity: r3.Vec{X: vel.X, Y: vel.Y, Z: vel.Z},
	}
	if !s.Finite() {
		return orbit.State{}, fmt.Errorf("%w: NORAD %d at %s: output is NaN/Inf", ErrUnavailable, p.noradID, t.Format(time.RFC3339))
	}

	mag := r3.Norm(s.Position)
	if mag < minRadiusKm || mag > maxRadiusKm {
		return orbit.State{}, fmt.Errorf("%w: NORAD %d at %s: unreasonable position magnitude %.1f km", ErrUnavailable, p.noradID, t.Format(time.RFC3339), mag)
	}
	return s, nil
}

type sgp4Key struct {
	noradID      int
	line1, line2 string
}

// SGP4Provider hands out SGP4 propagators, initialising each element set once.
// Safe for concurrent use.
type SGP4Provider struct {
	mu     sync.Mutex
	props  map[sgp4Key]*SGP4Propagator
	logger *slog.Logger
}

// NewSGP4Provider creates an empty provider.
func NewSGP4Provider(logger *slog.Logger) *SGP4Provider {
	return &SGP4Provider{
		props:  make(map[sgp4Key]*SGP4Propagator),
		logger: logger,
	}
}

// Orbit returns the cached propagator for obj, creating it on first use.
func (p *SGP4Provider) Orbit(obj tle.TrackedObject) (Orbit, error) {
	key := sgp4Key{noradID: obj.NORADID, line1: obj.Line1, line2: obj.Line2}

	p.mu.Lock()
	defer p.mu.Unlock()

	if sp, ok := p.props[key]; ok {
		return sp, nil
	}
	sp, err := NewSGP4Propagator(obj.Line1, obj.Line2, obj.NORADID)
	if err != nil {
		p.logger.Warn("sgp4 init failed", "norad_id", obj.NORADID, "error", err)
		return nil, err
	}
	p.props[key] = sp
	return sp, nil
}

// Len returns the number of cached propagators.
func (p *SGP4Provider) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.props)
}

var _ Orbit = (*SGP4Propagator)(nil)
