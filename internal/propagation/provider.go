// Package propagation evaluates object states over time. The SGP4 provider
// is the production source; Circular orbits give exact analytic geometry
// for validation.
package propagation

import (
	"errors"
	"time"

	"github.com/Debrato2005/OrbitOps/internal/orbit"
	"github.com/Debrato2005/OrbitOps/internal/tle"
)

var (
	// ErrUnavailable reports that a single state evaluation failed. Callers
	// skip the sample, candidate or event and continue.
	ErrUnavailable = errors.New("propagation unavailable")

	// ErrInvalidElements reports an element set that cannot be initialised.
	ErrInvalidElements = errors.New("invalid orbital elements")
)

// Orbit evaluates one object's inertial state.
type Orbit interface {
	StateAt(t time.Time) (orbit.State, error)
}

// Provider builds an Orbit for a tracked object.
type Provider interface {
	Orbit(obj tle.TrackedObject) (Orbit, error)
}
