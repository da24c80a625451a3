package orbit

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrInvalidStateVector is returned for state vectors that have no
// meaningful bound two-body orbit (zero position, non-finite components,
// or non-negative specific energy).
var ErrInvalidStateVector = errors.New("invalid state vector")

// Elements are the Keplerian quantities recovered from a state vector.
// Apogee and Perigee are radii measured from Earth's centre.
type Elements struct {
	SemiMajorAxis float64 // km
	Eccentricity  float64
	Apogee        float64 // km
	Perigee       float64 // km
	Inclination   float64 // degrees
}

// ApogeeAltitude returns the apogee height above the WGS-84 equatorial radius.
func (e Elements) ApogeeAltitude() float64 {
	return e.Apogee - EarthRadiusKm
}

// PerigeeAltitude returns the perigee height above the WGS-84 equatorial radius.
func (e Elements) PerigeeAltitude() float64 {
	return e.Perigee - EarthRadiusKm
}

// ElementsFromState recovers two-body elements from an inertial state.
//
//	h = r × v
//	e = ((v·v − μ/|r|)·r − (r·v)·v) / μ
//	ε = v·v/2 − μ/|r|
//	a = −μ/(2ε)
func ElementsFromState(s State, mu float64) (Elements, error) {
	if !s.Finite() {
		return Elements{}, fmt.Errorf("%w: non-finite component", ErrInvalidStateVector)
	}
	rMag := r3.Norm(s.Position)
	if rMag == 0 {
		return Elements{}, fmt.Errorf("%w: zero position vector", ErrInvalidStateVector)
	}
	if mu <= 0 {
		return Elements{}, fmt.Errorf("%w: gravitational parameter %.3f", ErrInvalidStateVector, mu)
	}

	v2 := r3.Dot(s.Velocity, s.Velocity)
	rv := r3.Dot(s.Position, s.Velocity)

	eVec := r3.Scale(1/mu, r3.Sub(
		r3.Scale(v2-mu/rMag, s.Position),
		r3.Scale(rv, s.Velocity),
	))
	ecc := r3.Norm(eVec)

	energy := v2/2 - mu/rMag
	if energy >= 0 {
		return Elements{}, fmt.Errorf("%w: unbound orbit (specific energy %.6f km²/s²)", ErrInvalidStateVector, energy)
	}
	a := -mu / (2 * energy)

	var incl float64
	h := r3.Cross(s.Position, s.Velocity)
	if hMag := r3.Norm(h); hMag > 0 {
		incl = math.Acos(clamp(h.Z/hMag, -1, 1)) * 180 / math.Pi
	}

	return Elements{
		SemiMajorAxis: a,
		Eccentricity:  ecc,
		Apogee:        a * (1 + ecc),
		Perigee:       math.Max(0, a*(1-ecc)),
		Inclination:   incl,
	}, nil
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
