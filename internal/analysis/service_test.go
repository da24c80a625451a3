package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Debrato2005/OrbitOps/internal/catalog"
	"github.com/Debrato2005/OrbitOps/internal/feed"
	"github.com/Debrato2005/OrbitOps/internal/maneuver"
	"github.com/Debrato2005/OrbitOps/internal/orbit"
	"github.com/Debrato2005/OrbitOps/internal/propagation"
	"github.com/Debrato2005/OrbitOps/internal/screening"
	"github.com/Debrato2005/OrbitOps/internal/tle"
)

var (
	epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tca   = epoch.Add(2 * time.Hour)
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// phased returns a circular orbit at argument of latitude zero at tca.
func phased(radiusKm, incDeg float64) propagation.Circular {
	c := propagation.Circular{RadiusKm: radiusKm, InclinationDeg: incDeg, Epoch: epoch}
	c.PhaseDeg = -c.MeanMotion() * tca.Sub(epoch).Seconds() * 180 / math.Pi
	return c
}

func object(id int, name string, radiusKm float64, userDefined bool) tle.TrackedObject {
	alt := radiusKm - orbit.EarthRadiusKm
	return tle.TrackedObject{NORADID: id, Name: name, ApogeeKm: alt, PerigeeKm: alt, UserDefined: userDefined}
}

type fixture struct {
	svc     *Service
	catalog *catalog.Catalog
	objects *tle.Store
	now     *time.Time
}

// newFixture builds an asset (1) crossing debris (2) 1.25 km apart at tca,
// a high object (3) that the pre-filter removes, and a duplicate entry of the
// asset (4).
func newFixture(t *testing.T, store catalog.Store) fixture {
	t.Helper()

	provider := propagation.Fixed{
		1: phased(6778, 0),
		2: phased(6779.25, 86.4),
		3: phased(8000, 30),
		4: phased(6778, 0),
	}
	objects := tle.NewStore()
	objects.Set(tle.NewDataset("test", epoch, []tle.TrackedObject{
		object(1, "ASSET", 6778, true),
		object(2, "DEBRIS", 6779.25, false),
		object(3, "HIGH", 8000, false),
		object(4, "ASSET DUP", 6778, false),
	}))

	now := epoch
	cat := catalog.New(store, testLogger()).WithClock(func() time.Time { return now })
	screener := screening.New(provider, screening.Options{Workers: 2, FilterMarginKm: 5}, testLogger())
	solver, err := maneuver.NewSolver(provider, maneuver.DefaultConfig(), testLogger())
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Duration = 6 * time.Hour
	cfg.Step = time.Minute
	return fixture{
		svc:     New(objects, cat, screener, solver, cfg, testLogger()),
		catalog: cat,
		objects: objects,
		now:     &now,
	}
}

func TestScreenObjectIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, catalog.NewMemoryStore())

	n, err := f.svc.ScreenObject(ctx, 1, f.svc.Window())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	first, err := f.svc.QueryRisks(ctx, RiskQuery{ObjectID: 1})
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 2, first[0].SecondaryID)
	assert.True(t, first[0].TCA.Equal(tca), "TCA = %s", first[0].TCA)
	assert.InDelta(t, 1.25, first[0].MissDistanceKm, 1e-6)

	_, err = f.svc.ScreenObject(ctx, 1, f.svc.Window())
	require.NoError(t, err)

	second, err := f.svc.QueryRisks(ctx, RiskQuery{ObjectID: 1})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, first[0].Key(), second[0].Key())
	assert.Equal(t, first[0].MissDistanceKm, second[0].MissDistanceKm)
}

func TestScreenObjectUnknown(t *testing.T) {
	f := newFixture(t, catalog.NewMemoryStore())
	_, err := f.svc.ScreenObject(context.Background(), 777, f.svc.Window())
	assert.ErrorIs(t, err, ErrUnknownObject)
}

func TestPlanManeuvers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, catalog.NewMemoryStore())

	_, err := f.svc.ScreenObject(ctx, 1, f.svc.Window())
	require.NoError(t, err)

	// High-risk but far beyond the planning horizon.
	_, err = f.catalog.Upsert(ctx, catalog.Event{
		PrimaryID: 1, SecondaryID: 2, TCA: epoch.Add(100 * time.Hour),
		MissDistanceKm: 0.5, RelativeSpeedKmS: 10, Provenance: catalog.ProvenanceExternal,
	})
	require.NoError(t, err)

	results, err := f.svc.PlanManeuvers(ctx, 1)
	require.NoError(t, err)
	require.Len(t, results, 1, "only the urgent event is planned")

	r := results[0]
	require.NoError(t, r.Err)
	assert.Equal(t, catalog.StatusSolved, r.Status)
	require.NotNil(t, r.Solution)
	assert.Greater(t, r.Solution.DeltaVMps, 0.0)
	assert.Less(t, r.Solution.DeltaVMps, maneuver.MaxCapMps)
	assert.Equal(t, VerdictManeuverAvailable, Assess(results, err))

	stored, err := f.catalog.Get(ctx, r.EventID)
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusSolved, stored.ManeuverStatus)
	require.NotNil(t, stored.Maneuver)
	assert.Equal(t, r.Solution.DeltaVMps, stored.Maneuver.DeltaVMps)

	// A re-screen keeps the attached solution.
	_, err = f.svc.ScreenObject(ctx, 1, f.svc.Window())
	require.NoError(t, err)
	again, err := f.catalog.Get(ctx, r.EventID)
	require.NoError(t, err)
	assert.NotNil(t, again.Maneuver)
}

func TestRescreenAsClockAdvancesMergesApproach(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, catalog.NewMemoryStore())

	_, err := f.svc.ScreenObject(ctx, 1, f.svc.Window())
	require.NoError(t, err)
	results, err := f.svc.PlanManeuvers(ctx, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	eventID := results[0].EventID

	for _, offset := range []time.Duration{20 * time.Second, 40 * time.Second, 90 * time.Second, 10 * time.Minute} {
		*f.now = epoch.Add(offset)
		w := f.svc.Window()
		assert.Zero(t, w.Start.Sub(epoch)%time.Minute, "window start %s is off the step grid", w.Start)

		_, err := f.svc.ScreenObject(ctx, 1, w)
		require.NoError(t, err)

		events, err := f.svc.QueryRisks(ctx, RiskQuery{ObjectID: 1})
		require.NoError(t, err)
		require.Len(t, events, 1, "re-screen at +%s duplicated the approach", offset)
		assert.Equal(t, eventID, events[0].ID)
		assert.True(t, events[0].TCA.Equal(tca), "TCA = %s", events[0].TCA)
		assert.Equal(t, catalog.StatusSolved, events[0].ManeuverStatus)
		assert.NotNil(t, events[0].Maneuver)
	}

	results, err = f.svc.PlanManeuvers(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestRescreenRemovesShiftedLocalRows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, catalog.NewMemoryStore())

	// A copy of the approach keyed off-grid, as an unaligned earlier pass
	// would have written it.
	_, err := f.catalog.Upsert(ctx, catalog.Event{
		PrimaryID: 1, SecondaryID: 2, TCA: tca.Add(-20 * time.Second),
		MissDistanceKm: 1.3, RelativeSpeedKmS: 10.5, Provenance: catalog.ProvenanceLocal,
	})
	require.NoError(t, err)

	_, err = f.svc.ScreenObject(ctx, 1, f.svc.Window())
	require.NoError(t, err)

	events, err := f.svc.QueryRisks(ctx, RiskQuery{ObjectID: 1})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].TCA.Equal(tca))
}

type sweptStore struct {
	*catalog.MemoryStore
	err error
}

func (s sweptStore) SetManeuver(context.Context, int64, catalog.ManeuverStatus, *catalog.ManeuverSolution, time.Time) error {
	return s.err
}

func TestPlanManeuversRecordingErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantBatch error
	}{
		{"row swept concurrently", fmt.Errorf("%w: id 1", catalog.ErrNotFound), nil},
		{"store unavailable", fmt.Errorf("%w: connection reset", catalog.ErrStoreUnavailable), catalog.ErrStoreUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, sweptStore{MemoryStore: catalog.NewMemoryStore(), err: tt.err})
			_, err := f.svc.ScreenObject(ctx, 1, f.svc.Window())
			require.NoError(t, err)

			results, err := f.svc.PlanManeuvers(ctx, 1)
			if tt.wantBatch == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantBatch)
			}
			require.Len(t, results, 1)
			assert.True(t, errors.Is(results[0].Err, tt.err))
		})
	}
}

func TestPlanManeuversIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, catalog.NewMemoryStore())

	_, err := f.svc.ScreenObject(ctx, 1, f.svc.Window())
	require.NoError(t, err)
	_, err = f.catalog.Upsert(ctx, catalog.Event{
		PrimaryID: 99, SecondaryID: 1, TCA: epoch.Add(3 * time.Hour),
		MissDistanceKm: 0.3, RelativeSpeedKmS: 12, Provenance: catalog.ProvenanceExternal,
	})
	require.NoError(t, err)

	results, err := f.svc.PlanManeuvers(ctx, 1)
	require.NoError(t, err)
	require.Len(t, results, 2)

	var failed, solved int
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
			assert.ErrorIs(t, r.Err, ErrUnknownObject)
			assert.Equal(t, 99, r.OtherID)
		case r.Status == catalog.StatusSolved:
			solved++
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, solved)
	assert.Equal(t, VerdictAnalysisFailed, Assess(results, nil))
}

type unavailableStore struct {
	*catalog.MemoryStore
}

func (unavailableStore) List(context.Context, catalog.Filter) ([]catalog.Event, error) {
	return nil, fmt.Errorf("%w: connection refused", catalog.ErrStoreUnavailable)
}

func (unavailableStore) InTx(context.Context, func(catalog.Store) error) error {
	return fmt.Errorf("%w: connection refused", catalog.ErrStoreUnavailable)
}

func TestStoreFailureIsSurfaced(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, unavailableStore{catalog.NewMemoryStore()})

	_, err := f.svc.ScreenObject(ctx, 1, f.svc.Window())
	assert.ErrorIs(t, err, catalog.ErrStoreUnavailable)

	results, err := f.svc.PlanManeuvers(ctx, 1)
	assert.ErrorIs(t, err, catalog.ErrStoreUnavailable)
	assert.Empty(t, results)
	assert.Equal(t, VerdictAnalysisFailed, Assess(results, err))

	_, err = f.svc.SweepAll(ctx, nil, nil)
	assert.ErrorIs(t, err, catalog.ErrStoreUnavailable)
}

func TestIngestFeed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, catalog.NewMemoryStore())

	doc := `{"data": [
	  {"SAT1": 1, "SAT2": 2, "SAT1_NAME": "ASSET", "SAT2_NAME": "DEBRIS", "TOCA": "2025-01-01 05:00:00", "MIN_RNG": 0.4, "REL_SPEED": 11.2, "MAX_PROB": 0.002},
	  {"SAT1": 1, "SAT2": 3, "TOCA": "2025-01-01 06:00:00", "MIN_RNG": 2.0, "REL_SPEED": 9.0, "MAX_PROB": 1e-7},
	  {"SAT1": 1, "SAT2": 2, "TOCA": "later", "MIN_RNG": 1, "REL_SPEED": 1}
	]}`
	path := filepath.Join(t.TempDir(), "feed.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	res, err := f.svc.IngestFeed(ctx, feed.File(path))
	require.NoError(t, err)
	assert.Equal(t, IngestResult{Records: 3, Written: 2, Skipped: 1}, res)

	high, err := f.svc.QueryRisks(ctx, RiskQuery{ObjectID: 1, HighRisk: true, Urgent: true})
	require.NoError(t, err)
	require.Len(t, high, 1, "the low-probability record is not high-risk")
	assert.Equal(t, catalog.ProvenanceExternal, high[0].Provenance)

	// Local re-screening of the asset leaves external rows in place.
	_, err = f.svc.ClearLocalFor(ctx, 1)
	require.NoError(t, err)
	all, err := f.svc.QueryRisks(ctx, RiskQuery{ObjectID: 1})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestClearLocalForNonUserDefined(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, catalog.NewMemoryStore())

	_, err := f.catalog.Upsert(ctx, catalog.Event{
		PrimaryID: 2, SecondaryID: 3, TCA: tca, MissDistanceKm: 1, RelativeSpeedKmS: 5,
		Provenance: catalog.ProvenanceLocal,
	})
	require.NoError(t, err)
	_, err = f.catalog.Upsert(ctx, catalog.Event{
		PrimaryID: 2, SecondaryID: 1, TCA: tca, MissDistanceKm: 1, RelativeSpeedKmS: 5,
		Provenance: catalog.ProvenanceLocal,
	})
	require.NoError(t, err)

	n, err := f.svc.ClearLocalFor(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "the row against user-defined asset 1 is kept")
}

func TestSweepAll(t *testing.T) {
	f := newFixture(t, catalog.NewMemoryStore())

	report, err := f.svc.SweepAll(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Primaries, "defaults to user-defined assets")
	assert.Equal(t, 1, report.Written)
	assert.Equal(t, 1, report.Planned)
	assert.Equal(t, VerdictManeuverAvailable, report.Verdicts[1])

	report, err = f.svc.SweepAll(context.Background(), []int{1, 555}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, VerdictAnalysisFailed, report.Verdicts[555])
}

func TestAssess(t *testing.T) {
	solved := PlanResult{Status: catalog.StatusSolved}
	none := PlanResult{Status: catalog.StatusNoSolution}
	clear := PlanResult{Status: catalog.StatusNotRequired}
	broken := PlanResult{Err: errors.New("boom")}

	tests := []struct {
		name    string
		results []PlanResult
		err     error
		want    Verdict
	}{
		{"nothing to plan", nil, nil, VerdictNoRisk},
		{"already clear", []PlanResult{clear}, nil, VerdictNoRisk},
		{"solved", []PlanResult{clear, solved}, nil, VerdictManeuverAvailable},
		{"no solution wins", []PlanResult{solved, broken, none}, nil, VerdictRiskNoManeuver},
		{"partial failure", []PlanResult{solved, broken}, nil, VerdictAnalysisFailed},
		{"run failed", nil, errors.New("store down"), VerdictAnalysisFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Assess(tt.results, tt.err))
		})
	}
}
