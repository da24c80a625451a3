// Package analysis orchestrates screening, risk queries, maneuver planning
// and feed ingestion over the object and conjunction catalogs.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Debrato2005/OrbitOps/internal/catalog"
	"github.com/Debrato2005/OrbitOps/internal/feed"
	"github.com/Debrato2005/OrbitOps/internal/maneuver"
	"github.com/Debrato2005/OrbitOps/internal/metrics"
	"github.com/Debrato2005/OrbitOps/internal/screening"
	"github.com/Debrato2005/OrbitOps/internal/tle"
)

// ErrUnknownObject is returned when a NORAD ID is not in the object catalog.
var ErrUnknownObject = errors.New("unknown object")

// Config holds orchestration settings.
type Config struct {
	Duration    time.Duration
	Step        time.Duration
	ThresholdKm float64
	PassTimeout time.Duration
	Criteria    catalog.Criteria
	PlanWorkers int
}

// DefaultConfig screens 24 hours at 60 s steps with a 10 km threshold.
func DefaultConfig() Config {
	return Config{
		Duration:    24 * time.Hour,
		Step:        60 * time.Second,
		ThresholdKm: 10,
		PassTimeout: 10 * time.Minute,
		Criteria:    catalog.DefaultCriteria(),
		PlanWorkers: 4,
	}
}

// Service exposes the batch operations.
type Service struct {
	objects  *tle.Store
	catalog  *catalog.Catalog
	screener *screening.Screener
	solver   *maneuver.Solver
	cfg      Config
	logger   *slog.Logger
}

// New wires a Service from its collaborators.
func New(objects *tle.Store, cat *catalog.Catalog, screener *screening.Screener, solver *maneuver.Solver, cfg Config, logger *slog.Logger) *Service {
	if cfg.PlanWorkers <= 0 {
		cfg.PlanWorkers = 1
	}
	return &Service{
		objects:  objects,
		catalog:  cat,
		screener: screener,
		solver:   solver,
		cfg:      cfg,
		logger:   logger,
	}
}

// Window returns the configured screening window starting at the last step
// boundary at or before now. Aligned starts keep sample times, and so TCA
// keys, stable across re-screens of the same approach.
func (s *Service) Window() screening.Window {
	start := s.catalog.Now().UTC()
	if s.cfg.Step > 0 {
		start = start.Truncate(s.cfg.Step)
	}
	return screening.Window{
		Start:       start,
		Duration:    s.cfg.Duration,
		Step:        s.cfg.Step,
		ThresholdKm: s.cfg.ThresholdKm,
	}
}

func (s *Service) lookup(id int) (tle.TrackedObject, error) {
	obj, ok := s.objects.Lookup(id)
	if !ok {
		return tle.TrackedObject{}, fmt.Errorf("%w: NORAD %d", ErrUnknownObject, id)
	}
	return obj, nil
}

// ScreenObject screens primaryID against the whole object catalog over w and
// commits the result atomically. It returns the number of events written.
func (s *Service) ScreenObject(ctx context.Context, primaryID int, w screening.Window) (int, error) {
	logger := s.logger.With("run_id", uuid.NewString(), "primary_id", primaryID)

	primary, err := s.lookup(primaryID)
	if err != nil {
		return 0, err
	}

	if s.cfg.PassTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.PassTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := s.screener.Screen(ctx, primary, s.objects.Objects(), w)
	if err != nil {
		logger.Warn("screening pass aborted", "error", err)
		return 0, fmt.Errorf("screening %d: %w", primaryID, err)
	}
	metrics.RecordScreening(res.Stats.Pruned, res.Stats.Screened, res.Stats.Failed, res.Stats.Duplicates, res.Stats.Events, time.Since(start))

	span := catalog.Span{From: w.Start, To: w.End()}
	out, err := s.catalog.ReplaceLocal(ctx, primaryID, res.Events, s.objects.UserDefinedIDs(), span)
	if err != nil {
		return 0, fmt.Errorf("committing screening for %d: %w", primaryID, err)
	}
	metrics.RecordConjunctionsWritten(string(catalog.ProvenanceLocal), out.Written)

	logger.Info("screening committed",
		"events_written", out.Written,
		"stale_removed", out.Removed,
		"failed_candidates", res.Stats.Failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out.Written, nil
}

// PlanResult is the outcome for one event. Err is set when the event could
// not be planned; Solution is nil for no_solution.
type PlanResult struct {
	EventID  int64                     `json:"event_id"`
	ObjectID int                       `json:"object_id"`
	OtherID  int                       `json:"other_id"`
	TCA      time.Time                 `json:"tca"`
	Status   catalog.ManeuverStatus    `json:"status,omitempty"`
	Solution *catalog.ManeuverSolution `json:"solution,omitempty"`
	Err      error                     `json:"-"`
}

// Outcome is the status string, or "failed" when planning errored.
func (r PlanResult) Outcome() string {
	if r.Err != nil {
		return "failed"
	}
	return string(r.Status)
}

// PlanManeuvers plans a burn by objectID for every urgent high-risk event it
// is part of. Events are independent: one failing is recorded on its result
// and the rest continue. Only catalog failures abort the run.
func (s *Service) PlanManeuvers(ctx context.Context, objectID int) ([]PlanResult, error) {
	logger := s.logger.With("run_id", uuid.NewString(), "object_id", objectID)

	if _, err := s.lookup(objectID); err != nil {
		return nil, err
	}
	events, err := s.catalog.ListHighRisk(ctx, objectID, s.cfg.Criteria, true)
	if err != nil {
		return nil, fmt.Errorf("listing risks for %d: %w", objectID, err)
	}

	results := make([]PlanResult, len(events))
	sem := make(chan struct{}, s.cfg.PlanWorkers)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		storeErr error
	)

	for i, ev := range events {
		wg.Add(1)
		go func(i int, ev catalog.Event) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			r := s.planEvent(ctx, objectID, ev)
			if r.Err == nil {
				if err := s.catalog.AttachManeuver(ctx, ev.ID, r.Status, r.Solution); err != nil {
					r.Err = err
					if errors.Is(err, catalog.ErrStoreUnavailable) {
						mu.Lock()
						if storeErr == nil {
							storeErr = err
						}
						mu.Unlock()
					} else {
						logger.Warn("recording maneuver failed", "event_id", ev.ID, "error", err)
					}
				}
			} else {
				logger.Warn("maneuver planning failed",
					"event_id", ev.ID,
					"other_id", r.OtherID,
					"error", r.Err,
				)
			}
			results[i] = r
		}(i, ev)
	}
	wg.Wait()

	if storeErr != nil {
		return results, fmt.Errorf("recording maneuvers for %d: %w", objectID, storeErr)
	}

	logger.Info("maneuver planning complete", "events", len(events))
	return results, nil
}

// planEvent runs the solver with objectID as the maneuvering object.
func (s *Service) planEvent(ctx context.Context, objectID int, ev catalog.Event) PlanResult {
	otherID := ev.SecondaryID
	if ev.SecondaryID == objectID {
		otherID = ev.PrimaryID
	}
	r := PlanResult{EventID: ev.ID, ObjectID: objectID, OtherID: otherID, TCA: ev.TCA}

	self, err := s.lookup(objectID)
	if err != nil {
		r.Err = err
		return r
	}
	other, err := s.lookup(otherID)
	if err != nil {
		r.Err = err
		return r
	}

	sol, err := s.solver.Plan(ctx, ev, self, other)
	if err != nil {
		r.Err = err
		return r
	}
	r.Status = maneuver.Status(sol)
	r.Solution = sol
	return r
}

// RiskQuery selects events for QueryRisks.
type RiskQuery struct {
	ObjectID int // 0 for every object
	HighRisk bool
	Urgent   bool
}

// QueryRisks lists events ordered by TCA.
func (s *Service) QueryRisks(ctx context.Context, q RiskQuery) ([]catalog.Event, error) {
	return s.catalog.Query(ctx, catalog.Filter{
		ObjectID: q.ObjectID,
		HighRisk: q.HighRisk,
		Urgent:   q.Urgent,
		Criteria: s.cfg.Criteria,
	})
}

// IngestResult summarises a feed merge.
type IngestResult struct {
	Records int `json:"records"`
	Written int `json:"written"`
	Skipped int `json:"skipped"`
}

// IngestFeed merges an external feed into the catalog in one transaction.
func (s *Service) IngestFeed(ctx context.Context, src feed.Source) (IngestResult, error) {
	logger := s.logger.With("run_id", uuid.NewString(), "source", src.String())

	data, err := src.Fetch(ctx)
	if err != nil {
		return IngestResult{}, err
	}
	records, err := feed.Decode(data)
	if err != nil {
		return IngestResult{}, err
	}

	events, skipped := feed.Events(records, logger)
	written, invalid, err := s.catalog.UpsertAll(ctx, events)
	if err != nil {
		return IngestResult{}, fmt.Errorf("merging feed: %w", err)
	}

	res := IngestResult{Records: len(records), Written: written, Skipped: skipped + invalid}
	metrics.RecordFeed(res.Written, res.Skipped)
	metrics.RecordConjunctionsWritten(string(catalog.ProvenanceExternal), written)

	logger.Info("feed ingested", "records", res.Records, "written", res.Written, "skipped", res.Skipped)
	return res, nil
}

// ClearLocalFor removes stale locally screened events of primaryID.
func (s *Service) ClearLocalFor(ctx context.Context, primaryID int) (int64, error) {
	n, err := s.catalog.ClearLocalFor(ctx, primaryID, s.objects.UserDefinedIDs())
	if err != nil {
		return 0, fmt.Errorf("clearing %d: %w", primaryID, err)
	}
	s.logger.Info("local events cleared", "primary_id", primaryID, "removed", n)
	return n, nil
}
