// Package orbit holds inertial state vectors and the two-body relations used
// to recover Keplerian elements from them.
package orbit

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Earth constants (WGS-84).
const (
	MuEarth       = 398600.4418 // km³/s²
	EarthRadiusKm = 6378.137
)

// State is an inertial position/velocity pair.
type State struct {
	Position r3.Vec // km
	Velocity r3.Vec // km/s
}

// Distance returns the separation between two states' positions in km.
func Distance(a, b State) float64 {
	return r3.Norm(r3.Sub(a.Position, b.Position))
}

// RelativeSpeed returns |va - vb| in km/s.
func RelativeSpeed(a, b State) float64 {
	return r3.Norm(r3.Sub(a.Velocity, b.Velocity))
}

// Finite reports whether every component of s is a finite number.
func (s State) Finite() bool {
	for _, c := range []float64{
		s.Position.X, s.Position.Y, s.Position.Z,
		s.Velocity.X, s.Velocity.Y, s.Velocity.Z,
	} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
