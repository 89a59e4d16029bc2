package metrics

import (
	"context"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/thoreinstein/snapkeep/internal/paths"
)

const namespace = "snapkeep"

// Sample is the data recorded for one run.
type Sample struct {
	Method        string
	Start         time.Time
	Duration      time.Duration
	Success       bool
	SizeBytes     int64
	Removed       int
	SweepFailures int
}

// Recorder persists a Sample.
type Recorder interface {
	Record(ctx context.Context, s Sample) error
}

// Nop discards samples.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(context.Context, Sample) error { return nil }

// Run holds the gauges for a single run in a private registry.
type Run struct {
	reg *prometheus.Registry

	lastRun       *prometheus.GaugeVec
	success       *prometheus.GaugeVec
	duration      *prometheus.GaugeVec
	size          *prometheus.GaugeVec
	removed       *prometheus.GaugeVec
	sweepFailures *prometheus.GaugeVec
}

// NewRun registers the run gauges in a fresh registry.
func NewRun() *Run {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	labels := []string{"method"}

	return &Run{
		reg: reg,
		lastRun: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run started",
		}, labels),
		success: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 if the last run produced a snapshot, 0 otherwise",
		}, labels),
		duration: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last run in seconds",
		}, labels),
		size: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_size_bytes",
			Help:      "Size of the snapshot created by the last run",
		}, labels),
		removed: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshots_removed",
			Help:      "Expired snapshots removed by the last sweep",
		}, labels),
		sweepFailures: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sweep_failures",
			Help:      "Expired snapshots the last sweep could not remove",
		}, labels),
	}
}

// Observe sets every gauge from s.
func (r *Run) Observe(s Sample) {
	m := s.Method
	r.lastRun.WithLabelValues(m).Set(float64(s.Start.Unix()))
	r.success.WithLabelValues(m).Set(boolValue(s.Success))
	r.duration.WithLabelValues(m).Set(s.Duration.Seconds())
	r.size.WithLabelValues(m).Set(float64(s.SizeBytes))
	r.removed.WithLabelValues(m).Set(float64(s.Removed))
	r.sweepFailures.WithLabelValues(m).Set(float64(s.SweepFailures))
}

// Gatherer exposes the registry.
func (r *Run) Gatherer() prometheus.Gatherer {
	return r.reg
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Textfile writes each sample to a .prom file, replacing it atomically.
type Textfile struct {
	Path string
}

// NewTextfile returns a Textfile recorder for path, or Nop when path is "".
func NewTextfile(path string) Recorder {
	if path == "" {
		return Nop{}
	}
	return &Textfile{Path: path}
}

// Record implements Recorder.
func (t *Textfile) Record(_ context.Context, s Sample) error {
	run := NewRun()
	run.Observe(s)

	if err := paths.EnsureDir(filepath.Dir(t.Path), 0); err != nil {
		return errors.Wrap(err, "creating metrics directory")
	}
	if err := prometheus.WriteToTextfile(t.Path, run.Gatherer()); err != nil {
		return errors.Wrapf(err, "writing metrics to %s", t.Path)
	}
	return nil
}
