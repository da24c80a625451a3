// Package screening finds close approaches between a primary object and a
// candidate catalog by sampling both trajectories over a time window.
package screening

import (
	"errors"
	"fmt"
	"time"

	"github.com/Debrato2005/OrbitOps/internal/tle"
)

// ErrInvalidWindow is returned for windows that cannot be sampled.
var ErrInvalidWindow = errors.New("invalid screening window")

// Window is the time span and cadence of one screening pass.
type Window struct {
	Start       time.Time
	Duration    time.Duration
	Step        time.Duration
	ThresholdKm float64
}

// Validate checks that w describes at least one sample and a positive threshold.
func (w Window) Validate() error {
	switch {
	case w.Start.IsZero():
		return fmt.Errorf("%w: missing start time", ErrInvalidWindow)
	case w.Duration <= 0:
		return fmt.Errorf("%w: duration %s", ErrInvalidWindow, w.Duration)
	case w.Step <= 0:
		return fmt.Errorf("%w: step %s", ErrInvalidWindow, w.Step)
	case !(w.ThresholdKm > 0):
		return fmt.Errorf("%w: threshold %v km", ErrInvalidWindow, w.ThresholdKm)
	}
	return nil
}

// End returns the last instant covered by w.
func (w Window) End() time.Time {
	return w.Start.Add(w.Duration)
}

// Times returns the sample instants: Start, Start+Step, ... up to and
// including End when the step divides the duration.
func (w Window) Times() []time.Time {
	n := int(w.Duration / w.Step)
	times := make([]time.Time, 0, n+1)
	for i := 0; i <= n; i++ {
		times = append(times, w.Start.Add(time.Duration(i)*w.Step))
	}
	return times
}

// ShellsOverlap reports whether b's altitude band can reach a's, widened by
// marginKm on both sides. Candidates whose apogee is below the primary's
// perigee, or whose perigee is above the primary's apogee, cannot meet it.
func ShellsOverlap(a, b tle.TrackedObject, marginKm float64) bool {
	if b.ApogeeKm < a.PerigeeKm-marginKm {
		return false
	}
	if b.PerigeeKm > a.ApogeeKm+marginKm {
		return false
	}
	return true
}
