// Package maneuver sizes the smallest single along-track burn that opens a
// conjunction to a safe miss distance at TCA.
//
// The model is first order: a burn of Δv at burnTime shifts the primary's
// position at TCA by Δv·(TCA−burnTime) along the unit velocity at burnTime.
// It is only meaningful for small burns applied shortly before TCA, which is
// why Config caps both the burn magnitude and the lead time.
package maneuver

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Debrato2005/OrbitOps/internal/orbit"
	"github.com/Debrato2005/OrbitOps/internal/propagation"
)

// Direction of the along-track burn.
type Direction string

const (
	Prograde   Direction = "prograde"
	Retrograde Direction = "retrograde"
)

// Geometry holds the states a maneuver search needs for one event.
type Geometry struct {
	BurnTime       time.Time
	TCA            time.Time
	PrimaryAtBurn  orbit.State
	PrimaryAtTCA   orbit.State
	SecondaryAtTCA orbit.State

	along r3.Vec  // unit velocity of the primary at burn time
	sign  float64 // +1 prograde, -1 retrograde
	coast float64 // seconds from burn to TCA
}

// NewGeometry evaluates both orbits at TCA and the primary at
// TCA+leadTime. leadTime must be negative.
func NewGeometry(primary, secondary propagation.Orbit, tca time.Time, leadTime time.Duration) (Geometry, error) {
	if leadTime >= 0 {
		return Geometry{}, fmt.Errorf("%w: lead time %s must be negative", ErrInvalidConfig, leadTime)
	}
	burn := tca.Add(leadTime)

	pb, err := primary.StateAt(burn)
	if err != nil {
		return Geometry{}, fmt.Errorf("primary at burn time: %w", err)
	}
	pt, err := primary.StateAt(tca)
	if err != nil {
		return Geometry{}, fmt.Errorf("primary at TCA: %w", err)
	}
	st, err := secondary.StateAt(tca)
	if err != nil {
		return Geometry{}, fmt.Errorf("secondary at TCA: %w", err)
	}
	return newGeometry(burn, tca, pb, pt, st)
}

func newGeometry(burn, tca time.Time, pb, pt, st orbit.State) (Geometry, error) {
	speed := r3.Norm(pb.Velocity)
	if !(speed > 0) {
		return Geometry{}, fmt.Errorf("%w: primary velocity at burn time is zero", orbit.ErrInvalidStateVector)
	}

	g := Geometry{
		BurnTime:       burn,
		TCA:            tca,
		PrimaryAtBurn:  pb,
		PrimaryAtTCA:   pt,
		SecondaryAtTCA: st,
		along:          r3.Unit(pb.Velocity),
		coast:          tca.Sub(burn).Seconds(),
	}

	// Burn along whichever sense of the velocity pushes the primary away
	// from the secondary; separation is then non-decreasing in Δv.
	miss := r3.Sub(pt.Position, st.Position)
	g.sign = 1
	if r3.Dot(miss, g.along) < 0 {
		g.sign = -1
	}
	return g, nil
}

// Direction reports the burn sense chosen for this geometry.
func (g Geometry) Direction() Direction {
	if g.sign < 0 {
		return Retrograde
	}
	return Prograde
}

// Separation returns the miss distance at TCA after a burn of dvMps (m/s)
// in the chosen direction.
func (g Geometry) Separation(dvMps float64) float64 {
	shift := r3.Scale(g.sign*dvMps/1000*g.coast, g.along)
	moved := r3.Add(g.PrimaryAtTCA.Position, shift)
	return r3.Norm(r3.Sub(moved, g.SecondaryAtTCA.Position))
}

// PostBurnState returns the primary's state just after a burn of dvMps.
func (g Geometry) PostBurnState(dvMps float64) orbit.State {
	return orbit.State{
		Position: g.PrimaryAtBurn.Position,
		Velocity: r3.Add(g.PrimaryAtBurn.Velocity, r3.Scale(g.sign*dvMps/1000, g.along)),
	}
}
