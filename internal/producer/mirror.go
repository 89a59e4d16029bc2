package producer

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"

	"github.com/thoreinstein/snapkeep/internal/config"
	"github.com/thoreinstein/snapkeep/internal/exclude"
	"github.com/thoreinstein/snapkeep/internal/paths"
	"github.com/thoreinstein/snapkeep/internal/snapshot"
)

// MirrorEngine synchronizes a target directory with a filtered source tree.
type MirrorEngine interface {
	// Name identifies the engine in logs and configuration.
	Name() string

	// Available reports whether the engine can run in env.
	Available(env config.Environment) error

	// Sync makes req.Target an exact replica of the filtered view of
	// req.Source. With req.Preview set it only reports the actions it would
	// take.
	Sync(ctx context.Context, req SyncRequest) ([]Action, error)
}

// SyncRequest describes one engine invocation.
type SyncRequest struct {
	Source string
	Target string

	// Skip is a directory inside Source left out of the replica, normally
	// the snapshot destination.
	Skip string

	Matcher *exclude.Matcher
	Preview bool
}

// Mirror replicates the source tree into a new directory per snapshot.
type Mirror struct {
	logger  *slog.Logger
	matcher *exclude.Matcher
	engine  MirrorEngine
}

// NewMirror returns a mirror producer using engine.
func NewMirror(logger *slog.Logger, m *exclude.Matcher, engine MirrorEngine) *Mirror {
	return &Mirror{logger: logger, matcher: m, engine: engine}
}

// Engine returns the engine in use.
func (p *Mirror) Engine() MirrorEngine {
	return p.engine
}

// Produce creates destination/<id>/ and fills it through the engine. The
// target must not exist beforehand.
func (p *Mirror) Produce(ctx context.Context, rc *snapshot.RunContext, s *config.Settings) (*Result, error) {
	log := loggerFor(ctx, p.logger).With("engine", p.engine.Name())

	target := filepath.Join(s.Destination, snapshot.ArtifactName(rc.ID, snapshot.MethodMirror, false))
	res := &Result{
		Path:   target,
		Method: snapshot.MethodMirror,
		DryRun: rc.DryRun,
		Engine: p.engine.Name(),
	}

	req := SyncRequest{
		Source:  s.Source,
		Target:  target,
		Skip:    s.Destination,
		Matcher: p.matcher,
		Preview: rc.DryRun,
	}

	if rc.DryRun {
		actions, err := p.engine.Sync(ctx, req)
		if err != nil {
			return nil, fail(res.Method, target, err)
		}
		res.Actions = actions
		res.Entries = countKind(actions, ActionCreate) + countKind(actions, ActionUpdate)
		for _, a := range actions {
			log.Info("dry run: would "+string(a.Kind), "path", a.Path, "dir", a.IsDir)
		}
		log.Info("dry run: would create mirror", "path", target, "actions", len(actions))
		return res, nil
	}

	log.Info("creating mirror", "path", target)

	if err := os.Mkdir(target, paths.DefaultDirPerm); err != nil {
		return nil, fail(res.Method, target, errors.Wrap(err, "creating mirror directory"))
	}

	actions, err := p.engine.Sync(ctx, req)
	if err != nil {
		return nil, fail(res.Method, target, err)
	}
	res.Actions = actions
	res.Entries = countKind(actions, ActionCreate) + countKind(actions, ActionUpdate)

	// Engines may carry the source root's mode and mtime onto the target.
	// The snapshot's age is its creation time, so reset both.
	if err := os.Chmod(target, paths.DefaultDirPerm); err != nil {
		return nil, fail(res.Method, target, errors.Wrap(err, "setting mirror permissions"))
	}
	if err := os.Chtimes(target, rc.Now, rc.Now); err != nil {
		return nil, fail(res.Method, target, errors.Wrap(err, "stamping mirror time"))
	}

	size, err := treeSize(target)
	if err != nil {
		return nil, fail(res.Method, target, err)
	}
	res.Size = size

	log.Info("mirror created",
		"path", target,
		"entries", res.Entries,
		"size", humanize.IBytes(uint64(size)))

	return res, nil
}

func countKind(actions []Action, kind ActionKind) int {
	n := 0
	for _, a := range actions {
		if a.Kind == kind {
			n++
		}
	}
	return n
}

// treeSize sums the sizes of regular files below root.
func treeSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		total += fi.Size()
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "measuring mirror")
	}
	return total, nil
}
