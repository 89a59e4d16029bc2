package retention

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"

	"github.com/thoreinstein/snapkeep/internal/logging"
	"github.com/thoreinstein/snapkeep/internal/snapshot"
)

// Day is the unit of the retention period.
const Day = 24 * time.Hour

// Request describes one sweep.
type Request struct {
	// Dir is the destination directory holding snapshots.
	Dir string

	// RetentionDays is the retention period. Zero makes every snapshot
	// older than Now eligible.
	RetentionDays int

	// DryRun lists eligible entries without removing them.
	DryRun bool

	// Now anchors the cutoff. It should be the run start time.
	Now time.Time

	// Keep names entries that are never eligible, regardless of age.
	Keep []string
}

// Cutoff returns the instant before which snapshots are eligible.
func (r Request) Cutoff() time.Time {
	return r.Now.Add(-time.Duration(r.RetentionDays) * Day)
}

// RemoveFailure records an entry that could not be removed.
type RemoveFailure struct {
	Name string
	Err  error
}

func (f RemoveFailure) Error() string {
	return "removing " + f.Name + ": " + f.Err.Error()
}

func (f RemoveFailure) Unwrap() error {
	return f.Err
}

// Report is the outcome of a sweep.
type Report struct {
	Cutoff time.Time

	// Eligible lists entry names older than the cutoff, in name order.
	Eligible []string

	// Removed lists the entries actually deleted. Empty in dry-run mode.
	Removed []string

	// Failures lists entries that could not be removed.
	Failures []RemoveFailure

	DryRun bool
}

// Err joins the removal failures, or returns nil when there are none.
func (r *Report) Err() error {
	if r == nil || len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// Sweeper applies the retention policy to a destination directory.
type Sweeper struct {
	logger *slog.Logger
	remove func(string) error
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithLogger sets the logger. Without it the context logger is used.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = l }
}

// WithRemoveFunc replaces os.RemoveAll.
func WithRemoveFunc(fn func(string) error) Option {
	return func(s *Sweeper) { s.remove = fn }
}

// New returns a Sweeper.
func New(opts ...Option) *Sweeper {
	s := &Sweeper{remove: os.RemoveAll}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep removes, or in dry-run mode lists, eligible snapshots. Only a
// failure to read req.Dir is returned as an error; a missing directory
// yields an empty report.
func (s *Sweeper) Sweep(ctx context.Context, req Request) (*Report, error) {
	log := s.logger
	if log == nil {
		log = logging.FromContext(ctx)
	}

	report := &Report{Cutoff: req.Cutoff(), DryRun: req.DryRun}

	if _, err := os.Stat(req.Dir); os.IsNotExist(err) {
		log.Debug("destination does not exist, nothing to sweep", "dir", req.Dir)
		return report, nil
	}

	entries, err := s.candidates(req)
	if err != nil {
		return nil, err
	}

	for _, e := range entries {
		if !e.ModTime.Before(report.Cutoff) {
			continue
		}
		report.Eligible = append(report.Eligible, e.Name)
	}

	log.Debug("sweep candidates",
		"dir", req.Dir,
		"cutoff", report.Cutoff.Format(time.RFC3339),
		"snapshots", len(entries),
		"eligible", len(report.Eligible))

	for _, name := range report.Eligible {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if req.DryRun {
			log.Info("dry run: would remove expired snapshot", "name", name)
			continue
		}
		if err := s.remove(filepath.Join(req.Dir, name)); err != nil {
			log.Warn("could not remove expired snapshot", "name", name, "error", err)
			report.Failures = append(report.Failures, RemoveFailure{Name: name, Err: err})
			continue
		}
		log.Info("removed expired snapshot", "name", name)
		report.Removed = append(report.Removed, name)
	}

	return report, nil
}

func (s *Sweeper) candidates(req Request) ([]Entry, error) {
	all, err := Scan(req.Dir)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, e := range all {
		if slices.Contains(req.Keep, e.Name) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Entry is one snapshot found in a destination directory.
type Entry struct {
	Name    string
	Path    string
	ModTime time.Time
	IsDir   bool

	// Info is set when the name parses as a snapshot identifier. Entries
	// that carry the prefix but not a valid identifier are still swept.
	Info *snapshot.Info
}

// Scan lists the prefixed entries of dir in name order.
func Scan(dir string) ([]Entry, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", dir)
	}

	var out []Entry
	for _, de := range des {
		name := de.Name()
		if !strings.HasPrefix(name, snapshot.Prefix) {
			continue
		}
		fi, err := de.Info()
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, errors.Wrapf(err, "stat %s", name)
		}
		e := Entry{
			Name:    name,
			Path:    filepath.Join(dir, name),
			ModTime: fi.ModTime(),
			IsDir:   fi.IsDir(),
		}
		if info, err := snapshot.ParseID(name, time.Local); err == nil {
			e.Info = &info
		}
		out = append(out, e)
	}
	return out, nil
}

// Size returns the bytes used by e, summing regular files for directories.
func (e Entry) Size() (int64, error) {
	if !e.IsDir {
		fi, err := os.Lstat(e.Path)
		if err != nil {
			return 0, err
		}
		return fi.Size(), nil
	}
	var total int64
	err := filepath.WalkDir(e.Path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			fi, err := d.Info()
			if err != nil {
				return err
			}
			total += fi.Size()
		}
		return nil
	})
	return total, err
}

// HumanSize formats Size for display, or "?" when it cannot be measured.
func (e Entry) HumanSize() string {
	n, err := e.Size()
	if err != nil {
		return "?"
	}
	return humanize.IBytes(uint64(n))
}
