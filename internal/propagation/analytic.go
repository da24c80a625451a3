package propagation

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Debrato2005/OrbitOps/internal/orbit"
	"github.com/Debrato2005/OrbitOps/internal/tle"
)

// Circular is a two-body circular orbit with exact closed-form states.
// Phase is the argument of latitude at Epoch.
type Circular struct {
	RadiusKm       float64
	InclinationDeg float64
	RAANDeg        float64
	PhaseDeg       float64
	Epoch          time.Time
}

// MeanMotion returns the angular rate in rad/s.
func (c Circular) MeanMotion() float64 {
	return math.Sqrt(orbit.MuEarth / (c.RadiusKm * c.RadiusKm * c.RadiusKm))
}

// StateAt implements Orbit.
func (c Circular) StateAt(t time.Time) (orbit.State, error) {
	if c.RadiusKm <= 0 {
		return orbit.State{}, fmt.Errorf("%w: radius %.3f km", ErrUnavailable, c.RadiusKm)
	}
	n := c.MeanMotion()
	u := c.PhaseDeg*math.Pi/180 + n*t.Sub(c.Epoch).Seconds()
	v := n * c.RadiusKm

	pos := r3.Vec{X: c.RadiusKm * math.Cos(u), Y: c.RadiusKm * math.Sin(u)}
	vel := r3.Vec{X: -v * math.Sin(u), Y: v * math.Cos(u)}

	inc := c.InclinationDeg * math.Pi / 180
	raan := c.RAANDeg * math.Pi / 180
	return orbit.State{
		Position: rotate(pos, inc, raan),
		Velocity: rotate(vel, inc, raan),
	}, nil
}

// rotate maps an in-plane vector to the inertial frame: inclination about x,
// then node about z.
func rotate(p r3.Vec, inc, raan float64) r3.Vec {
	x := p.X
	y := p.Y * math.Cos(inc)
	z := p.Y * math.Sin(inc)
	return r3.Vec{
		X: x*math.Cos(raan) - y*math.Sin(raan),
		Y: x*math.Sin(raan) + y*math.Cos(raan),
		Z: z,
	}
}

// OrbitFunc adapts a function to Orbit.
type OrbitFunc func(t time.Time) (orbit.State, error)

// StateAt implements Orbit.
func (f OrbitFunc) StateAt(t time.Time) (orbit.State, error) { return f(t) }

// Fixed is a Provider backed by a static NORAD ID table.
type Fixed map[int]Orbit

// Orbit implements Provider.
func (f Fixed) Orbit(obj tle.TrackedObject) (Orbit, error) {
	o, ok := f[obj.NORADID]
	if !ok {
		return nil, fmt.Errorf("%w: no orbit for NORAD %d", ErrInvalidElements, obj.NORADID)
	}
	return o, nil
}
