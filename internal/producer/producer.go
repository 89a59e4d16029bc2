package producer

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/thoreinstein/snapkeep/internal/config"
	snaperrors "github.com/thoreinstein/snapkeep/internal/errors"
	"github.com/thoreinstein/snapkeep/internal/exclude"
	"github.com/thoreinstein/snapkeep/internal/snapshot"
)

// Producer creates one snapshot artifact per call.
type Producer interface {
	Produce(ctx context.Context, rc *snapshot.RunContext, s *config.Settings) (*Result, error)
}

// ActionKind classifies a change a mirror engine makes, or would make, in the
// target directory.
type ActionKind string

const (
	ActionCreate ActionKind = "create"
	ActionUpdate ActionKind = "update"
	ActionDelete ActionKind = "delete"
)

// Action is a single planned or applied change, relative to the target root.
type Action struct {
	Kind  ActionKind `json:"kind"`
	Path  string     `json:"path"`
	IsDir bool       `json:"is_dir,omitempty"`
}

func (a Action) String() string {
	p := a.Path
	if a.IsDir {
		p += "/"
	}
	return string(a.Kind) + " " + p
}

// Result describes the artifact a producer created, or would have created
// in dry-run mode.
type Result struct {
	// Path is the absolute path of the artifact.
	Path string

	// Method is the variant that produced it.
	Method snapshot.Method

	// Size is the artifact size in bytes. Zero in dry-run mode.
	Size int64

	// DryRun is true when nothing was written.
	DryRun bool

	// Entries counts the source entries included.
	Entries int

	// Excluded lists source paths skipped by exclude patterns.
	Excluded []string

	// Engine names the mirror engine, empty for archives.
	Engine string

	// Actions lists mirror changes; empty for archives.
	Actions []Action
}

// Failure reports that a producer could not finish its artifact. Path may
// point at a partial artifact.
type Failure struct {
	Method snapshot.Method
	Path   string
	Err    error
}

func (f *Failure) Error() string {
	return string(f.Method) + " snapshot " + f.Path + " failed: " + f.Err.Error()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Is makes every Failure match ErrSnapshotFailed.
func (f *Failure) Is(target error) bool {
	return target == snaperrors.ErrSnapshotFailed
}

func fail(method snapshot.Method, path string, err error) error {
	return &Failure{Method: method, Path: path, Err: err}
}

type options struct {
	logger  *slog.Logger
	matcher *exclude.Matcher
	engine  MirrorEngine
	level   int
}

// Option configures New.
type Option func(*options)

// WithLogger sets the logger. Without it the context logger is used.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMatcher supplies preloaded exclude patterns instead of reading
// settings.ExcludeFile.
func WithMatcher(m *exclude.Matcher) Option {
	return func(o *options) { o.matcher = m }
}

// WithEngine overrides the mirror engine chosen from settings.MirrorEngine.
func WithEngine(e MirrorEngine) Option {
	return func(o *options) { o.engine = e }
}

// WithCompressionLevel sets the gzip level for archives.
func WithCompressionLevel(level int) Option {
	return func(o *options) { o.level = level }
}

// New selects the producer variant for s.Method. Exclude patterns are
// loaded here so a malformed pattern file fails before anything is written.
func New(s *config.Settings, opts ...Option) (Producer, error) {
	o := options{level: DefaultCompressionLevel}
	for _, opt := range opts {
		opt(&o)
	}

	if o.matcher == nil {
		m, err := exclude.Load(s.ExcludeFile)
		if err != nil {
			return nil, fail(s.Method, s.Destination, err)
		}
		o.matcher = m
	}

	switch s.Method {
	case snapshot.MethodArchive:
		return &Archive{logger: o.logger, matcher: o.matcher, level: o.level}, nil
	case snapshot.MethodMirror:
		engine := o.engine
		if engine == nil {
			e, err := EngineFor(s.MirrorEngine)
			if err != nil {
				return nil, fail(s.Method, s.Destination, err)
			}
			engine = e
		}
		return &Mirror{logger: o.logger, matcher: o.matcher, engine: engine}, nil
	default:
		return nil, errors.Newf("unknown snapshot method %q", s.Method)
	}
}

// EngineFor returns the mirror engine registered under name.
func EngineFor(name string) (MirrorEngine, error) {
	switch name {
	case "", config.EngineNative:
		return NewNativeEngine(), nil
	case config.EngineRsync:
		return NewRsyncEngine(), nil
	default:
		return nil, errors.Newf("unknown mirror engine %q", name)
	}
}
