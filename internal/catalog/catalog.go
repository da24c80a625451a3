package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Catalog is the entry point for reading and writing conjunction events.
type Catalog struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// New wraps store. The store's lifecycle stays with the caller.
func New(store Store, logger *slog.Logger) *Catalog {
	return &Catalog{store: store, logger: logger, now: time.Now}
}

// WithClock replaces the wall clock used for timestamps and urgency.
func (c *Catalog) WithClock(now func() time.Time) *Catalog {
	c.now = now
	return c
}

// Now returns the catalog's current time.
func (c *Catalog) Now() time.Time {
	return c.now()
}

// prepare validates e and fills the fields the catalog owns.
func (c *Catalog) prepare(e Event) (Event, error) {
	e.TCA = NormalizeTCA(e.TCA)
	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	if e.ManeuverStatus == "" {
		e.ManeuverStatus = StatusPending
	}
	now := c.now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now
	return e, nil
}

// Upsert inserts or merges a single event.
func (c *Catalog) Upsert(ctx context.Context, e Event) (Event, error) {
	e, err := c.prepare(e)
	if err != nil {
		return Event{}, err
	}
	return c.store.Upsert(ctx, e)
}

// UpsertAll merges events in one transaction. Invalid events are skipped and
// counted; store failures abort the whole batch.
func (c *Catalog) UpsertAll(ctx context.Context, events []Event) (written, skipped int, err error) {
	err = c.store.InTx(ctx, func(tx Store) error {
		written, skipped = 0, 0
		for _, e := range events {
			prepared, perr := c.prepare(e)
			if perr != nil {
				skipped++
				c.logger.Warn("skipping invalid event",
					"primary_id", e.PrimaryID,
					"secondary_id", e.SecondaryID,
					"error", perr,
				)
				continue
			}
			if _, err := tx.Upsert(ctx, prepared); err != nil {
				return err
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return written, skipped, nil
}

// ReplaceResult summarises a ReplaceLocal commit.
type ReplaceResult struct {
	Written int
	Removed int64
}

// Span is the TCA interval a screening pass covered.
type Span struct {
	From, To time.Time
}

// ReplaceLocal commits a screening pass for primaryID atomically: the new
// events are upserted, then local rows for the primary that were not
// re-detected are removed. Rows against protected (user-defined) objects
// survive. When the primary itself is protected, only rows whose TCA lies
// inside the screened span are removed, since the pass re-examined exactly
// that interval; a zero span removes nothing.
func (c *Catalog) ReplaceLocal(ctx context.Context, primaryID int, events []Event, protected []int, span Span) (ReplaceResult, error) {
	var res ReplaceResult
	err := c.store.InTx(ctx, func(tx Store) error {
		res = ReplaceResult{}
		keep := make([]int64, 0, len(events))
		for _, e := range events {
			if e.PrimaryID != primaryID {
				return fmt.Errorf("%w: event primary %d in pass for %d", ErrInvalidEvent, e.PrimaryID, primaryID)
			}
			e.Provenance = ProvenanceLocal
			prepared, err := c.prepare(e)
			if err != nil {
				return err
			}
			stored, err := tx.Upsert(ctx, prepared)
			if err != nil {
				return err
			}
			keep = append(keep, stored.ID)
			res.Written++
		}

		sw := Sweep{PrimaryID: primaryID, Keep: keep, Protected: protected}
		if contains(protected, primaryID) {
			if span.From.IsZero() || span.To.IsZero() {
				return nil
			}
			sw.From, sw.To = NormalizeTCA(span.From), NormalizeTCA(span.To)
		}
		n, err := tx.DeleteLocal(ctx, sw)
		if err != nil {
			return err
		}
		res.Removed = n
		return nil
	})
	if err != nil {
		return ReplaceResult{}, err
	}
	return res, nil
}

// ClearLocalFor removes stale local rows for primaryID ahead of a re-screen,
// with the same protection rules as ReplaceLocal.
func (c *Catalog) ClearLocalFor(ctx context.Context, primaryID int, protected []int) (int64, error) {
	if contains(protected, primaryID) {
		c.logger.Info("primary is user-defined, keeping its events", "primary_id", primaryID)
		return 0, nil
	}
	return c.store.DeleteLocal(ctx, Sweep{PrimaryID: primaryID, Protected: protected})
}

// Get returns one event.
func (c *Catalog) Get(ctx context.Context, id int64) (Event, error) {
	return c.store.Get(ctx, id)
}

// ListByObject returns every event where id is primary or secondary,
// ordered by TCA.
func (c *Catalog) ListByObject(ctx context.Context, id int) ([]Event, error) {
	return c.store.List(ctx, Filter{ObjectID: id})
}

// ListHighRisk returns high-risk events for objectID (0 for all). When
// urgentOnly is set the planning horizon is applied as well.
func (c *Catalog) ListHighRisk(ctx context.Context, objectID int, criteria Criteria, urgentOnly bool) ([]Event, error) {
	return c.store.List(ctx, Filter{
		ObjectID: objectID,
		HighRisk: true,
		Urgent:   urgentOnly,
		Criteria: criteria,
		Now:      c.now(),
	})
}

// Query runs an arbitrary filter. A zero Now is replaced by the catalog clock.
func (c *Catalog) Query(ctx context.Context, f Filter) ([]Event, error) {
	if f.Now.IsZero() {
		f.Now = c.now()
	}
	return c.store.List(ctx, f)
}

// AttachManeuver records a planning outcome on an event. A nil solution is
// only valid for pending and no_solution.
func (c *Catalog) AttachManeuver(ctx context.Context, id int64, status ManeuverStatus, sol *ManeuverSolution) error {
	if !status.Valid() {
		return fmt.Errorf("%w: maneuver status %q", ErrInvalidEvent, status)
	}
	if sol == nil && (status == StatusSolved || status == StatusNotRequired) {
		return fmt.Errorf("%w: status %s needs a solution", ErrInvalidEvent, status)
	}
	if sol != nil && (status == StatusPending || status == StatusNoSolution) {
		return fmt.Errorf("%w: status %s cannot carry a solution", ErrInvalidEvent, status)
	}
	return c.store.SetManeuver(ctx, id, status, sol, c.now().UTC())
}

// Ping checks the backing store.
func (c *Catalog) Ping(ctx context.Context) error {
	return c.store.Ping(ctx)
}

func contains(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
