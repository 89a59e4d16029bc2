package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thoreinstein/snapkeep/internal/config"
	"github.com/thoreinstein/snapkeep/internal/errors"
	"github.com/thoreinstein/snapkeep/internal/logging"
	"github.com/thoreinstein/snapkeep/internal/retention"
)

var testNow = time.Date(2025, 1, 11, 12, 0, 0, 0, time.Local)

// seedDestination writes an expired and a fresh snapshot plus an unrelated
// file into a new destination.
func seedDestination(t *testing.T) string {
	t.Helper()
	dst := t.TempDir()

	write := func(name string, age time.Duration) {
		p := filepath.Join(dst, name)
		require.NoError(t, os.WriteFile(p, []byte(name), 0o644))
		mt := testNow.Add(-age)
		require.NoError(t, os.Chtimes(p, mt, mt))
	}
	write("backup_20200101_000000.tar.gz", 10*retention.Day)
	write("backup_20250110_000000.tar.gz", retention.Day)
	write("notes.txt", 100*retention.Day)
	return dst
}

func pruneRaw(dst string, dryRun bool) config.Raw {
	raw := config.Default()
	raw.Destination = dst
	raw.DryRun = dryRun
	return raw
}

func TestRunPrune(t *testing.T) {
	dst := seedDestination(t)
	var buf bytes.Buffer

	err := runPruneWithWriter(context.Background(), pruneRaw(dst, false), testNow, &buf,
		retention.New(retention.WithLogger(logging.ForTest(t))))
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "Removed 1 snapshot(s)")
	assert.Contains(t, buf.String(), "backup_20200101_000000.tar.gz")
	assert.NoFileExists(t, filepath.Join(dst, "backup_20200101_000000.tar.gz"))
	assert.FileExists(t, filepath.Join(dst, "backup_20250110_000000.tar.gz"))
	assert.FileExists(t, filepath.Join(dst, "notes.txt"))
}

func TestRunPrune_DryRun(t *testing.T) {
	dst := seedDestination(t)
	var buf bytes.Buffer

	err := runPruneWithWriter(context.Background(), pruneRaw(dst, true), testNow, &buf,
		retention.New(retention.WithLogger(logging.ForTest(t))))
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "Would remove 1 snapshot(s)")
	assert.FileExists(t, filepath.Join(dst, "backup_20200101_000000.tar.gz"))
}

func TestRunPrune_RemoveFailure(t *testing.T) {
	dst := seedDestination(t)
	failing := retention.New(
		retention.WithLogger(logging.ForTest(t)),
		retention.WithRemoveFunc(func(string) error { return os.ErrPermission }),
	)

	err := runPruneWithWriter(context.Background(), pruneRaw(dst, false), testNow, &bytes.Buffer{}, failing)
	require.Error(t, err)
	assert.Equal(t, errors.ExitSystem, errors.ExitCode(err))
	assert.ErrorIs(t, err, os.ErrPermission)
}

func TestRunPrune_InvalidRetention(t *testing.T) {
	raw := pruneRaw(t.TempDir(), false)
	raw.RetentionDays = "-2"

	err := runPruneWithWriter(context.Background(), raw, testNow, &bytes.Buffer{}, retention.New())
	require.Error(t, err)
	assert.Equal(t, errors.ExitUser, errors.ExitCode(err))
	assert.ErrorIs(t, err, config.ErrInvalidRetention)
}

func TestRunPrune_MissingDestination(t *testing.T) {
	raw := pruneRaw(filepath.Join(t.TempDir(), "absent"), false)

	err := runPruneWithWriter(context.Background(), raw, testNow, &bytes.Buffer{}, retention.New())
	require.Error(t, err)
	assert.Equal(t, errors.ExitUser, errors.ExitCode(err))
}
