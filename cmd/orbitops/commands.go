package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Debrato2005/OrbitOps/internal/analysis"
	"github.com/Debrato2005/OrbitOps/internal/catalog"
	"github.com/Debrato2005/OrbitOps/internal/feed"
	"github.com/Debrato2005/OrbitOps/internal/health"
	"github.com/Debrato2005/OrbitOps/internal/schedule"
	"github.com/Debrato2005/OrbitOps/internal/server"
)

func newScreenCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "screen <norad-id>",
		Short: "Screen one object against the catalog and record close approaches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseNORAD(args[0])
			if err != nil {
				return err
			}
			a, err := opts.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()
			a.warnEphemeral("screen")

			n, err := a.service.ScreenObject(cmd.Context(), id, a.service.Window())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d conjunctions recorded for %d\n", n, id)
			return nil
		},
	}
}

func newPlanCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "plan <norad-id>",
		Short: "Plan avoidance burns for the object's urgent high-risk events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseNORAD(args[0])
			if err != nil {
				return err
			}
			a, err := opts.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()
			a.warnEphemeral("plan")

			results, err := a.service.PlanManeuvers(cmd.Context(), id)
			verdict := analysis.Assess(results, err)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
					"verdict": verdict,
					"results": results,
				})
			}
			writePlan(cmd.OutOrStdout(), results)
			fmt.Fprintf(cmd.OutOrStdout(), "verdict: %s\n", verdict)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newRisksCmd(opts *rootOptions) *cobra.Command {
	var (
		q      analysis.RiskQuery
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "risks [norad-id]",
		Short: "List recorded conjunctions ordered by time of closest approach",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				id, err := parseNORAD(args[0])
				if err != nil {
					return err
				}
				q.ObjectID = id
			}
			a, err := opts.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			events, err := a.service.QueryRisks(cmd.Context(), q)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), events)
			}
			writeEvents(cmd.OutOrStdout(), events)
			return nil
		},
	}
	cmd.Flags().BoolVar(&q.HighRisk, "high-risk", false, "only events inside the safety floor or above the probability threshold")
	cmd.Flags().BoolVar(&q.Urgent, "urgent", false, "only events inside the planning horizon")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newIngestCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest-feed",
		Short: "Merge an external conjunction feed into the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()
			a.warnEphemeral("ingest-feed")

			src := feedSource(a)
			if src == nil {
				return errors.New("one of --file or --url is required")
			}
			res, err := a.service.IngestFeed(cmd.Context(), src)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d records: %d written, %d skipped\n", res.Records, res.Written, res.Skipped)
			return nil
		},
	}
	cmd.Flags().String("file", "", "feed JSON file")
	cmd.Flags().String("url", "", "feed URL")
	bind(opts.v, cmd.Flags().Lookup("file"), "feed.file")
	bind(opts.v, cmd.Flags().Lookup("url"), "feed.url")
	return cmd
}

func newClearCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <norad-id>",
		Short: "Remove locally screened events of a primary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseNORAD(args[0])
			if err != nil {
				return err
			}
			a, err := opts.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()
			a.warnEphemeral("clear")

			n, err := a.service.ClearLocalFor(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d events removed\n", n)
			return nil
		},
	}
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run scheduled sweeps and serve /metrics, /healthz and /readyz",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Graceful shutdown on SIGINT/SIGTERM.
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := opts.open(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			src := feedSource(a)
			if once {
				a.warnEphemeral("run --once")
				report, err := a.service.SweepAll(ctx, a.cfg.Primaries, src)
				if err != nil {
					return fmt.Errorf("sweep: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d primaries: %d written, %d planned, %d failed\n",
					report.Primaries, report.Written, report.Planned, report.Failed)
				return nil
			}

			runner := schedule.New(ctx, a.logger)
			if _, err := runner.AddSweep(a.cfg.ScheduleSpec, a.service, a.cfg.Primaries, src); err != nil {
				return fmt.Errorf("schedule %q: %w", a.cfg.ScheduleSpec, err)
			}
			runner.Start()

			srv := server.New(a.cfg.MetricsAddr, health.NewChecker(a.catalog, a.objects, a.logger), a.logger)
			errc := make(chan error, 1)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errc <- err
				}
			}()

			select {
			case <-ctx.Done():
			case err = <-errc:
				a.logger.Error("server listen error", "error", err)
			}
			a.logger.Info("shutting down...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if serr := srv.HTTPServer().Shutdown(shutdownCtx); serr != nil {
				a.logger.Error("server shutdown error", "error", serr)
			}
			runner.Stop()

			a.logger.Info("stopped")
			return err
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single sweep and exit")
	cmd.Flags().String("schedule", "", "cron spec for sweeps (default from config)")
	cmd.Flags().String("metrics-addr", "", "listen address for probes and metrics")
	bind(opts.v, cmd.Flags().Lookup("schedule"), "schedule.spec")
	bind(opts.v, cmd.Flags().Lookup("metrics-addr"), "metrics.addr")
	return cmd
}

// feedSource prefers a local file over a URL.
func feedSource(a *app) feed.Source {
	switch {
	case a.cfg.FeedFile != "":
		return feed.File(a.cfg.FeedFile)
	case a.cfg.FeedURL != "":
		return feed.NewFetcher(a.cfg.FeedURL, a.logger)
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeEvents(w io.Writer, events []catalog.Event) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPRIMARY\tSECONDARY\tTCA\tMISS_KM\tREL_KM_S\tPROB\tSOURCE\tMANEUVER")
	for _, e := range events {
		prob := "-"
		if e.Probability != nil {
			prob = fmt.Sprintf("%.2e", *e.Probability)
		}
		fmt.Fprintf(tw, "%d\t%d\t%d\t%s\t%.3f\t%.3f\t%s\t%s\t%s\n",
			e.ID, e.PrimaryID, e.SecondaryID, e.TCA.Format(time.RFC3339),
			e.MissDistanceKm, e.RelativeSpeedKmS, prob, e.Provenance, e.ManeuverStatus)
	}
	tw.Flush()
}

func writePlan(w io.Writer, results []analysis.PlanResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EVENT\tOTHER\tTCA\tOUTCOME\tBURN\tDV_MPS\tDIRECTION\tSEPARATION_KM")
	for _, r := range results {
		burn, dv, dir, sep := "-", "-", "-", "-"
		if s := r.Solution; s != nil {
			burn = s.BurnTime.Format(time.RFC3339)
			dv = fmt.Sprintf("%.4f", s.DeltaVMps)
			dir = s.Direction
			sep = fmt.Sprintf("%.3f", s.SeparationKm)
		}
		outcome := r.Outcome()
		if r.Err != nil {
			outcome += ": " + r.Err.Error()
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.EventID, r.OtherID, r.TCA.Format(time.RFC3339), outcome, burn, dv, dir, sep)
	}
	tw.Flush()
}
