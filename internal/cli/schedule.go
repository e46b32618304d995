package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"nscan/internal/ingest"
	"nscan/internal/logging"
	"nscan/internal/notify"
	"nscan/internal/scanner"
	"nscan/internal/scheduler"
)

const scanJob = "scan"

func newScheduleCmd(app *App) *cobra.Command {
	var (
		spec     string
		runNow   bool
		fromDB   bool
		autoSave bool
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the scan on a cron schedule until interrupted",
		Long: `Run a scan on a recurring schedule. Each run reports on the month of
the previous day, exports a dated CSV to the output directory and, with
--save, stores the patterns. Results are sent to the notification
channels enabled in the [notify] section. With --db the export directory is imported
into the store before every scan.

The schedule accepts five or six fields (leading seconds) or a descriptor:
  nscan schedule --cron "0 30 15 * * 1-5"
  nscan schedule --cron "@daily" --run-now`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if !cmd.Flags().Changed("cron") {
				spec = app.Config.Schedule.Cron
			}
			if err := scheduler.Validate(spec); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			notifier := notify.New(app.Config.Notify)
			sched := scheduler.New(ctx, app.Logger)
			job := func(ctx context.Context) error {
				return scheduledScan(ctx, app, notifier, fromDB, autoSave)
			}
			if err := sched.Register(scanJob, spec, job); err != nil {
				return err
			}

			if runNow {
				if err := sched.RunNow(scanJob); err != nil {
					output.Error("Initial scan failed: %v", err)
				}
			}

			sched.Start()
			for _, next := range sched.Next() {
				output.Info("Next scan at %s", next.Format("2006-01-02 15:04:05"))
			}
			output.Dim("Press Ctrl+C to stop")

			<-ctx.Done()
			sched.Stop()
			output.Println("Scheduler stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&spec, "cron", app.Config.Schedule.Cron, "cron schedule")
	cmd.Flags().BoolVar(&runNow, "run-now", false, "run one scan immediately")
	cmd.Flags().BoolVar(&fromDB, "db", false, "import the data directory and scan from the store")
	cmd.Flags().BoolVar(&autoSave, "save", false, "store confirmed patterns")
	return cmd
}

// scheduledScan is one tick of the schedule. Results and failures are forwarded to
// the notifier; a notification failure is logged and does not fail the tick.
func scheduledScan(ctx context.Context, app *App, notifier notify.Notifier, fromDB, save bool) error {
	logger := logging.FromContext(ctx)
	rep, err := scheduledRun(ctx, app, fromDB, save)
	if err != nil {
		if nerr := notifier.SendError(ctx, err, "scheduled scan"); nerr != nil {
			logger.Warn().Err(nerr).Msg("Failed to send notification")
		}
		return err
	}

	summary := notify.ScanSummary{
		Symbols:  len(rep.Symbols),
		Skipped:  rep.Skipped,
		Patterns: rep.Patterns,
		Duration: rep.Duration,
	}
	if err := notifier.SendScan(ctx, summary); err != nil {
		logger.Warn().Err(err).Msg("Failed to send notification")
	}
	return nil
}

func scheduledRun(ctx context.Context, app *App, fromDB, save bool) (*scanner.Report, error) {
	cfg := app.Config
	if fromDB {
		s, err := app.Store()
		if err != nil {
			return nil, err
		}
		if _, err := importBars(ctx, app, s, ingest.NewDirSource(cfg.Data.Dir, cfg.Data.Pattern)); err != nil {
			return nil, err
		}
	}

	req := scanRequest{
		Dir:        cfg.Data.Dir,
		FromDB:     fromDB,
		Modes:      cfg.Scan.Modes,
		AutoMonth:  true,
		RecentDays: cfg.Scan.RecentDays,
		Workers:    cfg.Scan.Workers,
		Timeout:    cfg.Scan.SymbolTimeout,
		Export:     true,
		Save:       save,
		Chips:      cfg.Scan.Chips,
		Shapes:     cfg.Scan.Shapes,
	}
	return runScan(ctx, app, req, time.Now())
}
