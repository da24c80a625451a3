package tle

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Debrato2005/OrbitOps/internal/orbit"
)

// MeanElements are the shell-defining quantities read from line 2.
type MeanElements struct {
	InclinationDeg float64
	Eccentricity   float64
	MeanMotion     float64 // revolutions per day
	ApogeeKm       float64 // altitude
	PerigeeKm      float64 // altitude
}

// DeriveElements reads inclination, eccentricity and mean motion from
// line 2 and converts them to apogee/perigee altitudes through Kepler's
// third law.
func DeriveElements(line2 string) (MeanElements, error) {
	if len(line2) < 63 {
		return MeanElements{}, fmt.Errorf("line2 length %d, need at least 63", len(line2))
	}

	incl, err := strconv.ParseFloat(strings.TrimSpace(line2[8:16]), 64)
	if err != nil {
		return MeanElements{}, fmt.Errorf("invalid inclination %q: %w", line2[8:16], err)
	}

	// Eccentricity has an implied leading decimal point.
	ecc, err := strconv.ParseFloat("0."+strings.TrimSpace(line2[26:33]), 64)
	if err != nil {
		return MeanElements{}, fmt.Errorf("invalid eccentricity %q: %w", line2[26:33], err)
	}

	mm, err := strconv.ParseFloat(strings.TrimSpace(line2[52:63]), 64)
	if err != nil {
		return MeanElements{}, fmt.Errorf("invalid mean motion %q: %w", line2[52:63], err)
	}
	if mm <= 0 {
		return MeanElements{}, fmt.Errorf("non-positive mean motion %.8f", mm)
	}

	n := mm * 2 * math.Pi / 86400 // rad/s
	a := math.Cbrt(orbit.MuEarth / (n * n))

	return MeanElements{
		InclinationDeg: incl,
		Eccentricity:   ecc,
		MeanMotion:     mm,
		ApogeeKm:       a*(1+ecc) - orbit.EarthRadiusKm,
		PerigeeKm:      a*(1-ecc) - orbit.EarthRadiusKm,
	}, nil
}
