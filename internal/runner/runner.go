package runner

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"

	"github.com/thoreinstein/snapkeep/internal/config"
	snaperrors "github.com/thoreinstein/snapkeep/internal/errors"
	"github.com/thoreinstein/snapkeep/internal/logging"
	"github.com/thoreinstein/snapkeep/internal/metrics"
	"github.com/thoreinstein/snapkeep/internal/paths"
	"github.com/thoreinstein/snapkeep/internal/producer"
	"github.com/thoreinstein/snapkeep/internal/retention"
	"github.com/thoreinstein/snapkeep/internal/snapshot"
)

// ProducerFactory builds the producer for validated settings.
type ProducerFactory func(s *config.Settings) (producer.Producer, error)

// Sweeper applies the retention policy.
type Sweeper interface {
	Sweep(ctx context.Context, req retention.Request) (*retention.Report, error)
}

// Clock returns the current time.
type Clock func() time.Time

// Runner executes snapshot runs.
type Runner struct {
	logger      *slog.Logger
	newProducer ProducerFactory
	sweeper     Sweeper
	now         Clock
	env         config.Environment
	metrics     metrics.Recorder
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger. Without it the context logger is used.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithProducerFactory replaces producer.New.
func WithProducerFactory(f ProducerFactory) Option {
	return func(r *Runner) { r.newProducer = f }
}

// WithSweeper replaces the default retention sweeper.
func WithSweeper(s Sweeper) Option {
	return func(r *Runner) { r.sweeper = s }
}

// WithClock replaces time.Now.
func WithClock(c Clock) Option {
	return func(r *Runner) { r.now = c }
}

// WithEnvironment replaces the PATH lookups used during validation.
func WithEnvironment(env config.Environment) Option {
	return func(r *Runner) { r.env = env }
}

// WithMetrics sets the metrics recorder. Without it a textfile recorder is
// derived from the metrics_file setting.
func WithMetrics(m metrics.Recorder) Option {
	return func(r *Runner) { r.metrics = m }
}

// New returns a Runner with the production collaborators.
func New(opts ...Option) *Runner {
	r := &Runner{
		newProducer: func(s *config.Settings) (producer.Producer, error) {
			return producer.New(s)
		},
		sweeper: retention.New(),
		now:     time.Now,
		env:     config.OSEnvironment{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Outcome reports how a run ended.
type Outcome struct {
	// State is the terminal state, StateDone or StateFailed.
	State State

	// Visited lists every state entered, in order.
	Visited []State

	RunContext *snapshot.RunContext
	Settings   *config.Settings

	// Result is set once Produce succeeded.
	Result *producer.Result

	// Sweep is set once the sweep ran. A sweep cut short by SweepErr may
	// still carry a partial report.
	Sweep *retention.Report

	// SweepErr holds a sweep that could not enumerate the destination.
	SweepErr error

	// Err is the error that moved the run to StateFailed.
	Err error

	Duration time.Duration
}

// Failed reports whether the run ended in StateFailed.
func (o *Outcome) Failed() bool {
	return o.State == StateFailed
}

// ExitCode maps the outcome to a process exit status: 0 on success, 1 for
// configuration errors, 2 when the snapshot could not be made.
func (o *Outcome) ExitCode() int {
	if !o.Failed() {
		return snaperrors.ExitSuccess
	}
	if errors.Is(o.Err, snaperrors.ErrInvalidConfig) {
		return snaperrors.ExitUser
	}
	return snaperrors.ExitSystem
}

// ExitError wraps Err with its exit status and a suggestion, or returns nil
// for a successful run.
func (o *Outcome) ExitError() error {
	if !o.Failed() {
		return nil
	}
	if o.ExitCode() == snaperrors.ExitUser {
		return snaperrors.NewConfigError(o.Err)
	}
	return snaperrors.NewSystemError(o.Err, "Check that the destination is writable and has free space")
}

// SweepWarnings counts sweep problems that did not fail the run.
func (o *Outcome) SweepWarnings() int {
	n := 0
	if o.SweepErr != nil {
		n++
	}
	if o.Sweep != nil {
		n += len(o.Sweep.Failures)
	}
	return n
}

type run struct {
	*Runner
	out *Outcome
	log *slog.Logger
}

func (r *run) enter(s State) {
	r.out.State = s
	r.out.Visited = append(r.out.Visited, s)
	r.log.Debug("state", "state", s.String())
}

func (r *run) fail(err error) *Outcome {
	r.out.Err = err
	r.enter(StateFailed)
	return r.out
}

// Run executes one snapshot run from raw configuration. It never panics on
// bad input; every problem is reported through the Outcome.
func (rn *Runner) Run(ctx context.Context, raw config.Raw) *Outcome {
	start := rn.now()
	rc := snapshot.NewRunContext(start, raw.DryRun)

	base := rn.logger
	if base == nil {
		base = logging.FromContext(ctx)
	}

	r := &run{
		Runner: rn,
		out:    &Outcome{RunContext: rc},
		log:    base.With("run", rc.ID),
	}
	ctx = logging.NewContext(ctx, r.log)
	defer func() { r.out.Duration = rn.now().Sub(start) }()

	r.enter(StateStart)
	if rc.DryRun {
		r.log.Info("dry run: no files will be written or removed")
	}

	r.enter(StateValidate)
	settings, errs := config.Validate(raw, rn.env)
	if len(errs) > 0 {
		for _, e := range errs {
			r.log.Error("invalid configuration", "error", e)
		}
		return r.fail(snaperrors.NewValidationError(errs))
	}
	r.out.Settings = settings
	r.log.Info("configuration valid",
		"source", settings.Source,
		"destination", settings.Destination,
		"method", settings.Method.String(),
		"retention_days", settings.RetentionDays)

	defer func() { r.record(ctx) }()

	r.enter(StatePrepareDestination)
	if err := r.prepare(settings, rc.DryRun); err != nil {
		return r.fail(err)
	}

	id, err := snapshot.Reserve(settings.Destination, rc.ID)
	if err != nil {
		return r.fail(errors.Wrap(err, "reserving snapshot name"))
	}
	if id != rc.ID {
		r.log.Info("snapshot name taken, using disambiguated name", "name", rc.ID, "using", id)
		rc = rc.WithID(id)
		r.out.RunContext = rc
	}

	r.enter(StateProduce)
	p, err := rn.newProducer(settings)
	if err != nil {
		return r.fail(err)
	}
	res, err := p.Produce(ctx, rc, settings)
	if err != nil {
		r.log.Error("snapshot failed", "error", err)
		return r.fail(errors.Mark(err, snaperrors.ErrSnapshotFailed))
	}
	r.out.Result = res

	r.enter(StateSweep)
	r.sweep(ctx, settings, rc, res)

	r.enter(StateDone)
	r.log.Info("run complete", "snapshot", res.Path, "duration", rn.now().Sub(start))
	return r.out
}

func (r *run) prepare(s *config.Settings, dryRun bool) error {
	fi, err := os.Stat(s.Destination)
	switch {
	case err == nil && fi.IsDir():
		return nil
	case err == nil:
		return errors.Newf("destination %s is not a directory", s.Destination)
	case !os.IsNotExist(err):
		return errors.Wrap(err, "checking destination")
	}

	if dryRun {
		r.log.Info("dry run: would create destination", "path", s.Destination)
		return nil
	}
	if err := paths.EnsureDir(s.Destination, paths.DefaultDirPerm); err != nil {
		return errors.Wrapf(err, "creating destination %s", s.Destination)
	}
	r.log.Info("created destination", "path", s.Destination)
	return nil
}

func (r *run) sweep(ctx context.Context, s *config.Settings, rc *snapshot.RunContext, res *producer.Result) {
	report, err := r.sweeper.Sweep(ctx, retention.Request{
		Dir:           s.Destination,
		RetentionDays: s.RetentionDays,
		DryRun:        rc.DryRun,
		Now:           rc.Now,
		Keep:          []string{filepath.Base(res.Path)},
	})
	// an interrupted sweep still reports what it removed
	r.out.Sweep = report
	if err != nil {
		r.out.SweepErr = err
		r.log.Warn("retention sweep failed; snapshot was created",
			"error", err,
			"removed", removedCount(report))
		return
	}

	if n := len(report.Failures); n > 0 {
		r.log.Warn("retention sweep left expired snapshots behind", "failures", n, "error", report.Err())
	}
	r.log.Info("retention sweep finished",
		"eligible", len(report.Eligible),
		"removed", len(report.Removed),
		"dry_run", report.DryRun)
}

func removedCount(report *retention.Report) int {
	if report == nil {
		return 0
	}
	return len(report.Removed)
}

// record writes run metrics. Dry runs leave the metrics file alone.
func (r *run) record(ctx context.Context) {
	o := r.out
	if o.RunContext.DryRun || o.Settings == nil {
		return
	}
	rec := r.metrics
	if rec == nil {
		rec = metrics.NewTextfile(o.Settings.MetricsFile)
	}

	sample := metrics.Sample{
		Method:        o.Settings.Method.String(),
		Start:         o.RunContext.Now,
		Duration:      r.now().Sub(o.RunContext.Now),
		Success:       o.State == StateDone,
		SweepFailures: o.SweepWarnings(),
	}
	if o.Result != nil {
		sample.SizeBytes = o.Result.Size
		r.log.Debug("snapshot size", "size", humanize.IBytes(uint64(o.Result.Size)))
	}
	if o.Sweep != nil {
		sample.Removed = len(o.Sweep.Removed)
	}

	if err := rec.Record(ctx, sample); err != nil {
		r.log.Warn("could not write metrics", "error", err)
	}
}
