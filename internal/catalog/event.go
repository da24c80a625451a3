// Package catalog stores conjunction events keyed by (primary, secondary,
// TCA), applies the merge rules for re-detected events and classifies risk.
package catalog

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrNotFound is returned when an event ID does not exist.
	ErrNotFound = errors.New("conjunction event not found")

	// ErrStoreUnavailable wraps any failure to reach the backing store.
	// It is fatal to a batch run.
	ErrStoreUnavailable = errors.New("conjunction store unavailable")

	// ErrInvalidEvent is returned for events that violate the record invariants.
	ErrInvalidEvent = errors.New("invalid conjunction event")
)

// Provenance is the origin of a conjunction record.
type Provenance string

const (
	ProvenanceLocal    Provenance = "local"
	ProvenanceExternal Provenance = "external"
)

// ManeuverStatus tracks the planning outcome attached to an event.
type ManeuverStatus string

const (
	StatusPending     ManeuverStatus = "pending"
	StatusSolved      ManeuverStatus = "solved"
	StatusNotRequired ManeuverStatus = "not_required"
	StatusNoSolution  ManeuverStatus = "no_solution"
)

// Valid reports whether s is a known status.
func (s ManeuverStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSolved, StatusNotRequired, StatusNoSolution:
		return true
	}
	return false
}

// ManeuverSolution is the minimal single burn found for an event.
type ManeuverSolution struct {
	ObjectID     int       `json:"object_id"`
	BurnTime     time.Time `json:"burn_time"`
	DeltaVMps    float64   `json:"delta_v_mps"`
	Direction    string    `json:"direction"`
	SeparationKm float64   `json:"separation_km"`
	ApogeeKm     float64   `json:"apogee_km"`
	PerigeeKm    float64   `json:"perigee_km"`
}

// Event is a predicted close approach between two objects.
type Event struct {
	ID               int64             `json:"id"`
	PrimaryID        int               `json:"primary_id"`
	SecondaryID      int               `json:"secondary_id"`
	PrimaryName      string            `json:"primary_name"`
	SecondaryName    string            `json:"secondary_name"`
	TCA              time.Time         `json:"tca"`
	MissDistanceKm   float64           `json:"miss_distance_km"`
	RelativeSpeedKmS float64           `json:"relative_speed_km_s"`
	Probability      *float64          `json:"probability,omitempty"`
	Provenance       Provenance        `json:"provenance"`
	ManeuverStatus   ManeuverStatus    `json:"maneuver_status"`
	Maneuver         *ManeuverSolution `json:"maneuver,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// Key is the identity of an event.
type Key struct {
	PrimaryID   int
	SecondaryID int
	TCA         time.Time
}

// NormalizeTCA reduces t to the precision the store keeps (UTC microseconds)
// so the same instant always produces the same key.
func NormalizeTCA(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// Key returns the identity key of e.
func (e Event) Key() Key {
	return Key{PrimaryID: e.PrimaryID, SecondaryID: e.SecondaryID, TCA: NormalizeTCA(e.TCA)}
}

// Validate checks the record invariants.
func (e Event) Validate() error {
	switch {
	case e.PrimaryID <= 0 || e.SecondaryID <= 0:
		return fmt.Errorf("%w: object IDs must be positive (%d, %d)", ErrInvalidEvent, e.PrimaryID, e.SecondaryID)
	case e.PrimaryID == e.SecondaryID:
		return fmt.Errorf("%w: primary and secondary are both %d", ErrInvalidEvent, e.PrimaryID)
	case e.TCA.IsZero():
		return fmt.Errorf("%w: missing TCA", ErrInvalidEvent)
	case !(e.MissDistanceKm >= 0) || math.IsInf(e.MissDistanceKm, 0):
		return fmt.Errorf("%w: miss distance %v", ErrInvalidEvent, e.MissDistanceKm)
	case !(e.RelativeSpeedKmS >= 0) || math.IsInf(e.RelativeSpeedKmS, 0):
		return fmt.Errorf("%w: relative speed %v", ErrInvalidEvent, e.RelativeSpeedKmS)
	case e.Provenance != ProvenanceLocal && e.Provenance != ProvenanceExternal:
		return fmt.Errorf("%w: provenance %q", ErrInvalidEvent, e.Provenance)
	}
	if p := e.Probability; p != nil && (!(*p >= 0) || *p > 1) {
		return fmt.Errorf("%w: probability %v", ErrInvalidEvent, *p)
	}
	return nil
}

// Merge applies a re-detection onto an existing row. Geometry, names and
// provenance come from incoming; probability is kept when incoming has none;
// the maneuver solution, status, ID and creation time are preserved.
func Merge(existing, incoming Event) Event {
	out := existing
	out.PrimaryName = incoming.PrimaryName
	out.SecondaryName = incoming.SecondaryName
	out.MissDistanceKm = incoming.MissDistanceKm
	out.RelativeSpeedKmS = incoming.RelativeSpeedKmS
	out.Provenance = incoming.Provenance
	if incoming.Probability != nil {
		p := *incoming.Probability
		out.Probability = &p
	}
	out.UpdatedAt = incoming.UpdatedAt
	return out
}
