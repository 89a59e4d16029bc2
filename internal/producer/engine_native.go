package producer

import (
	"context"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/thoreinstein/snapkeep/internal/config"
	"github.com/thoreinstein/snapkeep/internal/logging"
	"github.com/thoreinstein/snapkeep/internal/paths"
)

// NativeEngine mirrors with the Go standard library: it plans the changes by
// comparing the filtered source with the target, then applies them.
type NativeEngine struct {
	logger *slog.Logger
}

// NewNativeEngine returns the built-in engine.
func NewNativeEngine() *NativeEngine {
	return &NativeEngine{}
}

// Name implements MirrorEngine.
func (*NativeEngine) Name() string { return config.EngineNative }

// Available implements MirrorEngine. The native engine needs nothing.
func (*NativeEngine) Available(config.Environment) error { return nil }

// Sync implements MirrorEngine.
func (n *NativeEngine) Sync(ctx context.Context, req SyncRequest) ([]Action, error) {
	log := loggerFor(ctx, n.logger)

	src, err := n.scanSource(ctx, req, log)
	if err != nil {
		return nil, err
	}
	dst, err := scanTarget(req.Target)
	if err != nil {
		return nil, err
	}

	plan := diff(src, dst)
	if req.Preview {
		return plan.actions(), nil
	}

	if err := n.apply(ctx, req, plan, log); err != nil {
		return nil, err
	}
	return plan.actions(), nil
}

// tree is an ordered set of entries keyed by relative path.
type tree struct {
	order []string
	items map[string]entry
}

func newTree() *tree {
	return &tree{items: make(map[string]entry)}
}

func (t *tree) add(e entry) {
	t.order = append(t.order, e.rel)
	t.items[e.rel] = e
}

func (n *NativeEngine) scanSource(ctx context.Context, req SyncRequest, log *slog.Logger) (*tree, error) {
	t := newTree()
	w := newWalker(req.Source, req.Skip, req.Matcher)
	w.onExclude = func(rel string, isDir bool) {
		log.Debug("excluded", "path", rel, "dir", isDir)
	}
	err := w.walk(ctx, func(e entry) error {
		if !mirrorable(e.info.Mode()) {
			log.Warn("skipping unsupported file type", "path", e.rel, "mode", e.info.Mode().String())
			return nil
		}
		t.add(e)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "scanning source")
	}
	return t, nil
}

// scanTarget indexes an existing target. A missing target is empty.
func scanTarget(root string) (*tree, error) {
	t := newTree()
	if _, err := os.Lstat(root); os.IsNotExist(err) {
		return t, nil
	}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		t.add(entry{rel: filepath.ToSlash(rel), abs: path, info: info})
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "scanning target")
	}
	return t, nil
}

func mirrorable(mode fs.FileMode) bool {
	return mode.IsRegular() || mode.IsDir() || mode&fs.ModeSymlink != 0
}

// step pairs an action with the source entry it came from. Deletes carry
// no source entry.
type step struct {
	Action
	src entry
}

type plan []step

func (p plan) actions() []Action {
	out := make([]Action, len(p))
	for i, s := range p {
		out[i] = s.Action
	}
	return out
}

// diff lists deletions first, then creations and updates in source order so
// parents precede their children.
func diff(src, dst *tree) plan {
	var p plan

	var deleted []string
	for _, rel := range dst.order {
		if _, ok := src.items[rel]; ok {
			continue
		}
		if underAny(rel, deleted) {
			continue
		}
		deleted = append(deleted, rel)
		p = append(p, step{Action: Action{Kind: ActionDelete, Path: rel, IsDir: dst.items[rel].info.IsDir()}})
	}

	for _, rel := range src.order {
		s := src.items[rel]
		d, ok := dst.items[rel]
		switch {
		case !ok:
			p = append(p, step{Action: Action{Kind: ActionCreate, Path: rel, IsDir: s.info.IsDir()}, src: s})
		case !same(s, d):
			p = append(p, step{Action: Action{Kind: ActionUpdate, Path: rel, IsDir: s.info.IsDir()}, src: s})
		}
	}
	return p
}

func underAny(rel string, dirs []string) bool {
	for _, d := range dirs {
		if strings.HasPrefix(rel, d+"/") {
			return true
		}
	}
	return false
}

// same reports whether the target entry already matches the source.
func same(s, d entry) bool {
	sm, dm := s.info.Mode(), d.info.Mode()
	if sm.Type() != dm.Type() {
		return false
	}
	switch {
	case sm.IsDir():
		return sm.Perm() == dm.Perm()
	case sm&fs.ModeSymlink != 0:
		sl, err1 := os.Readlink(s.abs)
		dl, err2 := os.Readlink(d.abs)
		return err1 == nil && err2 == nil && sl == dl
	default:
		return s.info.Size() == d.info.Size() &&
			s.info.ModTime().Equal(d.info.ModTime()) &&
			preservedMode(sm) == preservedMode(dm)
	}
}

func preservedMode(m fs.FileMode) fs.FileMode {
	return m & (fs.ModePerm | fs.ModeSetuid | fs.ModeSetgid | fs.ModeSticky)
}

func (n *NativeEngine) apply(ctx context.Context, req SyncRequest, p plan, log *slog.Logger) error {
	if err := os.MkdirAll(req.Target, paths.DefaultDirPerm); err != nil {
		return errors.Wrap(err, "creating target")
	}

	var dirs []step

	for _, s := range p {
		if err := ctx.Err(); err != nil {
			return err
		}
		dst := filepath.Join(req.Target, filepath.FromSlash(s.Path))

		switch {
		case s.Kind == ActionDelete:
			if err := os.RemoveAll(dst); err != nil {
				return errors.Wrapf(err, "deleting %s", s.Path)
			}
		case s.src.info.IsDir():
			if err := ensureDir(dst); err != nil {
				return errors.Wrapf(err, "creating directory %s", s.Path)
			}
			dirs = append(dirs, s)
		case s.src.info.Mode()&fs.ModeSymlink != 0:
			if err := copySymlink(s.src, dst); err != nil {
				return errors.Wrapf(err, "linking %s", s.Path)
			}
			chownBestEffort(dst, s.src.info, log)
		default:
			if err := copyRegular(s.src, dst); err != nil {
				return errors.Wrapf(err, "copying %s", s.Path)
			}
			chownBestEffort(dst, s.src.info, log)
		}
		log.Log(ctx, logging.LevelTrace, string(s.Kind), "path", s.Path)
	}

	// Directory modes and times are applied deepest first, after their
	// contents, so writing children does not disturb them.
	for i := len(dirs) - 1; i >= 0; i-- {
		s := dirs[i]
		dst := filepath.Join(req.Target, filepath.FromSlash(s.Path))
		if err := os.Chmod(dst, preservedMode(s.src.info.Mode())); err != nil {
			return errors.Wrapf(err, "chmod %s", s.Path)
		}
		chownBestEffort(dst, s.src.info, log)
		mt := s.src.info.ModTime()
		if err := os.Chtimes(dst, mt, mt); err != nil {
			return errors.Wrapf(err, "setting times on %s", s.Path)
		}
	}
	return nil
}

func ensureDir(path string) error {
	fi, err := os.Lstat(path)
	if err == nil {
		if fi.IsDir() {
			return nil
		}
		if err := os.Remove(path); err != nil {
			return err
		}
	}
	return os.Mkdir(path, 0o700)
}

// vacate removes whatever occupies path so a new entry can take its place.
func vacate(path string) error {
	if err := os.RemoveAll(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func copySymlink(src entry, dst string) error {
	link, err := os.Readlink(src.abs)
	if err != nil {
		return err
	}
	if err := vacate(dst); err != nil {
		return err
	}
	return os.Symlink(link, dst)
}

func copyRegular(src entry, dst string) error {
	if err := vacate(dst); err != nil {
		return err
	}

	in, err := os.Open(src.abs)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	if err := os.Chmod(dst, preservedMode(src.info.Mode())); err != nil {
		return err
	}
	mt := src.info.ModTime()
	return os.Chtimes(dst, mt, mt)
}
