package commands

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/thoreinstein/snapkeep/internal/config"
	"github.com/thoreinstein/snapkeep/internal/errors"
	"github.com/thoreinstein/snapkeep/internal/logging"
)

var scheduleBindings = func() map[string]string {
	m := map[string]string{config.KeySchedule: "schedule"}
	for k, v := range runBindings {
		m[k] = v
	}
	return m
}()

func init() {
	addRunFlags(scheduleCmd)
	scheduleCmd.Flags().String("schedule", "", `cron expression, e.g. "0 3 * * *" or "@daily"`)
	rootCmd.AddCommand(scheduleCmd)
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run snapshots on a cron schedule until interrupted",
	Long: `Stay in the foreground and perform a full run (snapshot, then retention
sweep) every time the cron expression fires.

The expression uses the standard five fields (minute hour day month weekday)
or a descriptor such as @hourly, @daily or "@every 6h". A tick that fires
while the previous run is still going is skipped, so runs never overlap.

SIGINT or SIGTERM stops the scheduler after any in-flight run completes.`,
	Example: `  # Archive every night at 03:00
  snapkeep schedule --schedule "0 3 * * *" -s ~/docs -d /backups

  See Also: snapkeep run`,
	Args: cobra.NoArgs,
	RunE: runSchedule,
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	raw, err := loadConfig(cmd, scheduleBindings)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := cmd.OutOrStdout()
	if quiet {
		w = io.Discard
	}
	return runScheduleWithWriter(ctx, *raw, w)
}

// runScheduleWithWriter validates raw once, then runs it on its schedule
// until ctx is done.
func runScheduleWithWriter(ctx context.Context, raw config.Raw, w io.Writer) error {
	if raw.Schedule == "" {
		return errors.NewUserError(errors.New("no schedule given"),
			`Pass --schedule "0 3 * * *" or set schedule in the config file`)
	}
	if _, errs := config.Validate(raw, nil); len(errs) > 0 {
		return errors.NewConfigError(errors.NewValidationError(errs))
	}

	log := logging.FromContext(ctx)
	job := func(jobCtx context.Context) {
		if err := executeRun(jobCtx, raw, w); err != nil {
			log.Error("scheduled run failed", "error", err)
		}
	}
	return schedule(ctx, raw.Schedule, job)
}

// schedule calls job on every tick of expr until ctx is done, then waits for
// a running job to return. Jobs get a context that outlives ctx so a
// snapshot in progress is finished rather than abandoned.
func schedule(ctx context.Context, expr string, job func(context.Context)) error {
	log := logging.FromContext(ctx)
	cl := cronLogger{log: log}

	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	jobCtx := context.WithoutCancel(ctx)
	id, err := c.AddFunc(expr, func() { job(jobCtx) })
	if err != nil {
		return errors.NewUserError(errors.Wrapf(err, "parsing schedule %q", expr),
			`Use five cron fields ("0 3 * * *") or a descriptor ("@daily")`)
	}

	log.Info("scheduler started", "schedule", expr, "next", c.Entry(id).Schedule.Next(time.Now()))
	c.Start()

	<-ctx.Done()
	log.Info("stopping scheduler; waiting for a running snapshot to finish")
	<-c.Stop().Done()
	log.Info("scheduler stopped")
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

var _ cron.Logger = cronLogger{}

// Info logs routine scheduler events at debug level.
func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
