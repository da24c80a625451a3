package catalog

import (
	"context"
	"sort"
	"time"
)

// Filter selects events for List. Zero values mean "any".
type Filter struct {
	ObjectID   int // matches primary or secondary
	PrimaryID  int
	Provenance Provenance
	HighRisk   bool
	Urgent     bool
	Criteria   Criteria
	Now        time.Time
}

// Match reports whether e passes f.
func (f Filter) Match(e Event) bool {
	if f.ObjectID != 0 && e.PrimaryID != f.ObjectID && e.SecondaryID != f.ObjectID {
		return false
	}
	if f.PrimaryID != 0 && e.PrimaryID != f.PrimaryID {
		return false
	}
	if f.Provenance != "" && e.Provenance != f.Provenance {
		return false
	}
	if f.HighRisk && !f.Criteria.HighRisk(e) {
		return false
	}
	if f.Urgent && !f.Criteria.Urgent(e, f.Now) {
		return false
	}
	return true
}

// Sweep selects the local rows of one primary that DeleteLocal removes.
type Sweep struct {
	PrimaryID int
	Keep      []int64 // row IDs that survive
	Protected []int   // secondaries whose rows survive
	// From and To, when set, limit the sweep to rows with TCA in [From, To].
	From, To time.Time
}

// InSpan reports whether tca falls within the sweep's TCA bounds.
func (sw Sweep) InSpan(tca time.Time) bool {
	if !sw.From.IsZero() && tca.Before(sw.From) {
		return false
	}
	if !sw.To.IsZero() && tca.After(sw.To) {
		return false
	}
	return true
}

// Store is the keyed persistence behind the catalog. Upsert must rely on the
// (primary, secondary, TCA) uniqueness constraint rather than on a prior
// read, so concurrent writers converge on one row per key.
type Store interface {
	// Upsert inserts e or merges it into the row with the same key (see
	// Merge) and returns the stored row.
	Upsert(ctx context.Context, e Event) (Event, error)
	Get(ctx context.Context, id int64) (Event, error)
	// List returns matching events ordered by TCA ascending, then ID.
	List(ctx context.Context, f Filter) ([]Event, error)
	// DeleteLocal removes the local-provenance rows selected by sw.
	DeleteLocal(ctx context.Context, sw Sweep) (int64, error)
	// SetManeuver replaces the maneuver status and solution of one event and
	// stamps its UpdatedAt with at.
	SetManeuver(ctx context.Context, id int64, status ManeuverStatus, sol *ManeuverSolution, at time.Time) error
	// InTx runs fn against a transactional view; nothing fn wrote is visible
	// if it returns an error.
	InTx(ctx context.Context, fn func(Store) error) error
	Ping(ctx context.Context) error
	Close() error
}

// sortEvents orders events by TCA ascending, then ID.
func sortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].TCA.Equal(events[j].TCA) {
			return events[i].TCA.Before(events[j].TCA)
		}
		return events[i].ID < events[j].ID
	})
}
