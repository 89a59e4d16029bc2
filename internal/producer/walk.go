package producer

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/thoreinstein/snapkeep/internal/exclude"
	"github.com/thoreinstein/snapkeep/internal/logging"
	"github.com/thoreinstein/snapkeep/internal/paths"
)

// entry is one included source path.
type entry struct {
	// rel is slash-separated and relative to the walk root.
	rel  string
	abs  string
	info fs.FileInfo
}

// walker enumerates the filtered view of a source tree in lexical order.
type walker struct {
	root    string
	skip    string
	matcher *exclude.Matcher

	// onExclude is called for each path an exclude pattern removed.
	onExclude func(rel string, isDir bool)
}

// newWalker returns a walker over root that skips dst when dst lies inside
// root.
func newWalker(root, dst string, m *exclude.Matcher) *walker {
	w := &walker{root: root, matcher: m}
	if dst != "" && dst != root && paths.Within(root, dst) {
		w.skip = dst
	}
	return w
}

// walk calls fn for every included entry below root. The root itself is
// not reported.
func (w *walker) walk(ctx context.Context, fn func(e entry) error) error {
	return filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return errors.Wrapf(err, "walking %s", path)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == w.root {
			return nil
		}
		if w.skip != "" && path == w.skip {
			return filepath.SkipDir
		}

		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return errors.Wrapf(err, "relativizing %s", path)
		}
		rel = filepath.ToSlash(rel)

		if w.matcher.Match(rel, d.IsDir()) {
			if w.onExclude != nil {
				w.onExclude(rel, d.IsDir())
			}
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return errors.Wrapf(err, "stat %s", path)
		}
		return fn(entry{rel: rel, abs: path, info: info})
	})
}

func loggerFor(ctx context.Context, l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return logging.FromContext(ctx)
}
