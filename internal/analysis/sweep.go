package analysis

import (
	"context"
	"errors"
	"time"

	"github.com/Debrato2005/OrbitOps/internal/catalog"
	"github.com/Debrato2005/OrbitOps/internal/feed"
)

// SweepReport summarises one scheduled sweep.
type SweepReport struct {
	Primaries int             `json:"primaries"`
	Written   int             `json:"written"`
	Planned   int             `json:"planned"`
	Failed    int             `json:"failed"`
	Verdicts  map[int]Verdict `json:"verdicts"`
	Feed      *IngestResult   `json:"feed,omitempty"`
}

// SweepAll re-ingests src (when non-nil), then screens and plans each primary.
// An empty primaries list means every user-defined asset. A failing primary
// is logged and the sweep moves on; catalog unavailability stops it.
func (s *Service) SweepAll(ctx context.Context, primaries []int, src feed.Source) (SweepReport, error) {
	start := time.Now()
	if len(primaries) == 0 {
		primaries = s.objects.UserDefinedIDs()
	}
	report := SweepReport{Primaries: len(primaries), Verdicts: make(map[int]Verdict, len(primaries))}

	if src != nil {
		res, err := s.IngestFeed(ctx, src)
		if err != nil {
			if errors.Is(err, catalog.ErrStoreUnavailable) {
				return report, err
			}
			s.logger.Warn("feed ingestion failed", "source", src.String(), "error", err)
		} else {
			report.Feed = &res
		}
	}

	for _, id := range primaries {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		n, err := s.ScreenObject(ctx, id, s.Window())
		if err != nil {
			if errors.Is(err, catalog.ErrStoreUnavailable) {
				return report, err
			}
			report.Failed++
			report.Verdicts[id] = VerdictAnalysisFailed
			s.logger.Warn("sweep screening failed", "primary_id", id, "error", err)
			continue
		}
		report.Written += n

		results, err := s.PlanManeuvers(ctx, id)
		report.Verdicts[id] = Assess(results, err)
		if err != nil {
			if errors.Is(err, catalog.ErrStoreUnavailable) {
				return report, err
			}
			report.Failed++
			s.logger.Warn("sweep planning failed", "primary_id", id, "error", err)
			continue
		}
		report.Planned += len(results)
	}

	s.logger.Info("sweep complete",
		"primaries", report.Primaries,
		"written", report.Written,
		"planned", report.Planned,
		"failed", report.Failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return report, nil
}
