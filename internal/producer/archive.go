package producer

import (
	"archive/tar"
	"context"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzip"

	"github.com/thoreinstein/snapkeep/internal/config"
	"github.com/thoreinstein/snapkeep/internal/exclude"
	"github.com/thoreinstein/snapkeep/internal/snapshot"
)

// DefaultCompressionLevel is used for .tar.gz archives.
const DefaultCompressionLevel = gzip.DefaultCompression

// archiveFileMode is the permission of a new archive file.
const archiveFileMode = 0o640

// Archive writes the source tree as a tarball.
type Archive struct {
	logger  *slog.Logger
	matcher *exclude.Matcher
	level   int
}

// NewArchive returns an archive producer.
func NewArchive(logger *slog.Logger, m *exclude.Matcher) *Archive {
	return &Archive{logger: logger, matcher: m, level: DefaultCompressionLevel}
}

// Produce writes destination/<id>.tar.gz, or .tar without compression.
// Members are stored relative to the source root.
func (a *Archive) Produce(ctx context.Context, rc *snapshot.RunContext, s *config.Settings) (*Result, error) {
	log := loggerFor(ctx, a.logger)

	target := filepath.Join(s.Destination, snapshot.ArtifactName(rc.ID, snapshot.MethodArchive, s.Compress))
	res := &Result{Path: target, Method: snapshot.MethodArchive, DryRun: rc.DryRun}

	w := newWalker(s.Source, s.Destination, a.matcher)
	w.onExclude = func(rel string, isDir bool) {
		res.Excluded = append(res.Excluded, rel)
		log.Debug("excluded", "path", rel, "dir", isDir)
	}

	if rc.DryRun {
		err := w.walk(ctx, func(entry) error {
			res.Entries++
			return nil
		})
		if err != nil {
			return nil, fail(res.Method, target, err)
		}
		for _, rel := range res.Excluded {
			log.Info("dry run: would exclude", "path", rel)
		}
		log.Info("dry run: would create archive",
			"path", target,
			"entries", res.Entries,
			"excluded", len(res.Excluded),
			"compress", s.Compress)
		return res, nil
	}

	log.Info("creating archive", "path", target, "compress", s.Compress)

	if err := a.write(ctx, target, s.Compress, w, res); err != nil {
		return nil, fail(res.Method, target, err)
	}

	fi, err := os.Stat(target)
	if err != nil {
		return nil, fail(res.Method, target, errors.Wrap(err, "stat archive"))
	}
	res.Size = fi.Size()

	log.Info("archive created",
		"path", target,
		"entries", res.Entries,
		"excluded", len(res.Excluded),
		"size", humanize.IBytes(uint64(res.Size)))

	return res, nil
}

// archiveWriters chains file, gzip and tar writers.
type archiveWriters struct {
	tw      *tar.Writer
	closers []io.Closer
}

// Close closes all writers in reverse order, returning the first error.
func (aw *archiveWriters) Close() error {
	var firstErr error
	for i := len(aw.closers) - 1; i >= 0; i-- {
		if err := aw.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func openArchive(path string, compress bool, level int) (*archiveWriters, error) {
	// O_EXCL: an existing artifact is never overwritten.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, archiveFileMode)
	if err != nil {
		return nil, errors.Wrap(err, "creating archive file")
	}

	aw := &archiveWriters{closers: []io.Closer{f}}

	var dst io.Writer = f
	if compress {
		gz, err := gzip.NewWriterLevel(f, level)
		if err != nil {
			_ = f.Close()
			return nil, errors.Wrap(err, "creating gzip writer")
		}
		aw.closers = append(aw.closers, gz)
		dst = gz
	}

	aw.tw = tar.NewWriter(dst)
	aw.closers = append(aw.closers, aw.tw)
	return aw, nil
}

func (a *Archive) write(ctx context.Context, target string, compress bool, w *walker, res *Result) (err error) {
	aw, err := openArchive(target, compress, a.level)
	if err != nil {
		return err
	}
	defer func() {
		closeErr := aw.Close()
		if err == nil && closeErr != nil {
			err = errors.Wrap(closeErr, "finalizing archive")
		}
	}()

	log := loggerFor(ctx, a.logger)
	return w.walk(ctx, func(e entry) error {
		added, err := addEntry(aw.tw, e)
		if err != nil {
			return err
		}
		if added {
			res.Entries++
		} else {
			log.Warn("skipping unsupported file type", "path", e.rel, "mode", e.info.Mode().String())
		}
		return nil
	})
}

// addEntry writes one tar member. Sockets and other types tar cannot hold
// are reported as not added.
func addEntry(tw *tar.Writer, e entry) (bool, error) {
	mode := e.info.Mode()
	if mode&fs.ModeSocket != 0 {
		return false, nil
	}

	var link string
	if mode&fs.ModeSymlink != 0 {
		l, err := os.Readlink(e.abs)
		if err != nil {
			return false, errors.Wrapf(err, "reading link %s", e.rel)
		}
		link = l
	}

	hdr, err := tar.FileInfoHeader(e.info, link)
	if err != nil {
		return false, errors.Wrapf(err, "header for %s", e.rel)
	}
	hdr.Name = e.rel
	if e.info.IsDir() {
		hdr.Name += "/"
	}

	if err := tw.WriteHeader(hdr); err != nil {
		return false, errors.Wrapf(err, "writing header for %s", e.rel)
	}

	if !mode.IsRegular() {
		return true, nil
	}

	f, err := os.Open(e.abs)
	if err != nil {
		return false, errors.Wrapf(err, "opening %s", e.rel)
	}
	defer f.Close()

	// The header already declared the size; a file that grew is truncated
	// and one that shrank fails the write.
	if _, err := io.Copy(tw, io.LimitReader(f, hdr.Size)); err != nil {
		return false, errors.Wrapf(err, "archiving %s", e.rel)
	}
	return true, nil
}
