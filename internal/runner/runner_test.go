package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/thoreinstein/snapkeep/internal/config"
	snaperrors "github.com/thoreinstein/snapkeep/internal/errors"
	"github.com/thoreinstein/snapkeep/internal/logging"
	"github.com/thoreinstein/snapkeep/internal/metrics"
	"github.com/thoreinstein/snapkeep/internal/producer"
	"github.com/thoreinstein/snapkeep/internal/retention"
	"github.com/thoreinstein/snapkeep/internal/snapshot"
)

var fixedNow = time.Date(2025, 1, 2, 3, 4, 5, 0, time.Local)

func fixedClock() time.Time { return fixedNow }

type noTools struct{}

func (noTools) LookPath(file string) (string, error) {
	return "", errors.Newf("%s not found", file)
}

type recorder struct {
	samples []metrics.Sample
}

func (r *recorder) Record(_ context.Context, s metrics.Sample) error {
	r.samples = append(r.samples, s)
	return nil
}

func testCtx(t *testing.T) context.Context {
	return logging.NewContext(context.Background(), logging.ForTest(t))
}

func rawFor(t *testing.T) config.Raw {
	t.Helper()
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "data.txt"), []byte("payload"), 0o644))

	raw := config.Default()
	raw.Source = src
	raw.Destination = filepath.Join(t.TempDir(), "dest")
	return raw
}

func factoryFor(p producer.Producer) ProducerFactory {
	return func(*config.Settings) (producer.Producer, error) { return p, nil }
}

func failingFactory(t *testing.T) ProducerFactory {
	return func(*config.Settings) (producer.Producer, error) {
		t.Error("producer must not be built")
		return nil, errors.New("unexpected")
	}
}

func TestRun_PhaseOrder(t *testing.T) {
	raw := rawFor(t)
	p := NewMockProducer(t)
	s := NewMockSweeper(t)
	rec := &recorder{}

	var order []string
	wantPath := filepath.Join(raw.Destination, "backup_20250102_030405.tar.gz")

	p.EXPECT().Produce(mock.Anything, mock.Anything, mock.Anything).
		Run(func(_ context.Context, rc *snapshot.RunContext, _ *config.Settings) {
			order = append(order, "produce")
			assert.Equal(t, "backup_20250102_030405", rc.ID)
			assert.DirExists(t, raw.Destination, "destination is prepared before produce")
		}).
		Return(&producer.Result{Path: wantPath, Method: snapshot.MethodArchive, Size: 42}, nil)

	s.EXPECT().Sweep(mock.Anything, mock.Anything).
		Run(func(_ context.Context, req retention.Request) {
			order = append(order, "sweep")
			assert.Equal(t, raw.Destination, req.Dir)
			assert.Equal(t, 7, req.RetentionDays)
			assert.Equal(t, fixedNow, req.Now)
			assert.Equal(t, []string{"backup_20250102_030405.tar.gz"}, req.Keep)
			assert.False(t, req.DryRun)
		}).
		Return(&retention.Report{Removed: []string{"backup_old.tar.gz"}}, nil)

	r := New(
		WithProducerFactory(factoryFor(p)),
		WithSweeper(s),
		WithClock(fixedClock),
		WithEnvironment(noTools{}),
		WithMetrics(rec),
	)
	out := r.Run(testCtx(t), raw)

	require.NoError(t, out.Err)
	assert.Equal(t, StateDone, out.State)
	assert.Equal(t, []State{
		StateStart, StateValidate, StatePrepareDestination, StateProduce, StateSweep, StateDone,
	}, out.Visited)
	assert.Equal(t, []string{"produce", "sweep"}, order)
	assert.Equal(t, snaperrors.ExitSuccess, out.ExitCode())
	assert.NoError(t, out.ExitError())

	require.Len(t, rec.samples, 1)
	assert.True(t, rec.samples[0].Success)
	assert.Equal(t, int64(42), rec.samples[0].SizeBytes)
	assert.Equal(t, 1, rec.samples[0].Removed)
	assert.Equal(t, "archive", rec.samples[0].Method)
}

func TestRun_ValidationFailure(t *testing.T) {
	raw := rawFor(t)
	raw.Source = filepath.Join(t.TempDir(), "missing")
	raw.RetentionDays = "-3"
	rec := &recorder{}

	r := New(
		WithProducerFactory(failingFactory(t)),
		WithSweeper(NewMockSweeper(t)),
		WithClock(fixedClock),
		WithEnvironment(noTools{}),
		WithMetrics(rec),
	)
	out := r.Run(testCtx(t), raw)

	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, []State{StateStart, StateValidate, StateFailed}, out.Visited)
	assert.Equal(t, snaperrors.ExitUser, out.ExitCode())
	assert.True(t, errors.Is(out.Err, snaperrors.ErrInvalidConfig))

	var verr *snaperrors.ValidationError
	require.ErrorAs(t, out.Err, &verr)
	assert.Len(t, verr.Errs, 2)

	assert.NoDirExists(t, raw.Destination)
	assert.Empty(t, rec.samples)

	var exitErr *snaperrors.ExitError
	require.ErrorAs(t, out.ExitError(), &exitErr)
	assert.Equal(t, snaperrors.ExitUser, exitErr.Code)
	assert.NotEmpty(t, exitErr.Suggestion)
}

func TestRun_ProduceFailureSkipsSweep(t *testing.T) {
	raw := rawFor(t)
	p := NewMockProducer(t)
	rec := &recorder{}

	boom := &producer.Failure{Method: snapshot.MethodArchive, Path: "x", Err: errors.New("disk full")}
	p.EXPECT().Produce(mock.Anything, mock.Anything, mock.Anything).Return(nil, boom)

	r := New(
		WithProducerFactory(factoryFor(p)),
		WithSweeper(NewMockSweeper(t)), // no expectations: any call fails the test
		WithClock(fixedClock),
		WithEnvironment(noTools{}),
		WithMetrics(rec),
	)
	out := r.Run(testCtx(t), raw)

	assert.Equal(t, StateFailed, out.State)
	assert.NotContains(t, out.Visited, StateSweep)
	assert.Equal(t, snaperrors.ExitSystem, out.ExitCode())
	assert.ErrorIs(t, out.Err, snaperrors.ErrSnapshotFailed)
	assert.Contains(t, out.Err.Error(), "disk full")

	require.Len(t, rec.samples, 1)
	assert.False(t, rec.samples[0].Success)
}

func TestRun_ProducerFactoryFailure(t *testing.T) {
	raw := rawFor(t)
	r := New(
		WithProducerFactory(func(*config.Settings) (producer.Producer, error) {
			return nil, errors.New("bad exclude file")
		}),
		WithSweeper(NewMockSweeper(t)),
		WithClock(fixedClock),
		WithEnvironment(noTools{}),
		WithMetrics(metrics.Nop{}),
	)
	out := r.Run(testCtx(t), raw)

	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, snaperrors.ExitSystem, out.ExitCode())
}

func TestRun_SweepErrorIsOnlyAWarning(t *testing.T) {
	raw := rawFor(t)
	p := NewMockProducer(t)
	s := NewMockSweeper(t)

	p.EXPECT().Produce(mock.Anything, mock.Anything, mock.Anything).
		Return(&producer.Result{Path: filepath.Join(raw.Destination, "backup_x.tar.gz")}, nil)
	s.EXPECT().Sweep(mock.Anything, mock.Anything).Return(nil, errors.New("permission denied"))

	r := New(
		WithProducerFactory(factoryFor(p)),
		WithSweeper(s),
		WithClock(fixedClock),
		WithEnvironment(noTools{}),
		WithMetrics(metrics.Nop{}),
	)
	out := r.Run(testCtx(t), raw)

	assert.Equal(t, StateDone, out.State)
	assert.Equal(t, snaperrors.ExitSuccess, out.ExitCode())
	assert.Error(t, out.SweepErr)
	assert.Equal(t, 1, out.SweepWarnings())
}

func TestRun_InterruptedSweepKeepsPartialReport(t *testing.T) {
	raw := rawFor(t)
	p := NewMockProducer(t)
	s := NewMockSweeper(t)
	rec := &recorder{}

	p.EXPECT().Produce(mock.Anything, mock.Anything, mock.Anything).
		Return(&producer.Result{Path: filepath.Join(raw.Destination, "backup_x.tar.gz")}, nil)
	s.EXPECT().Sweep(mock.Anything, mock.Anything).Return(&retention.Report{
		Eligible: []string{"backup_a", "backup_b"},
		Removed:  []string{"backup_a"},
	}, context.Canceled)

	r := New(
		WithProducerFactory(factoryFor(p)),
		WithSweeper(s),
		WithClock(fixedClock),
		WithEnvironment(noTools{}),
		WithMetrics(rec),
	)
	out := r.Run(testCtx(t), raw)

	assert.Equal(t, StateDone, out.State)
	assert.ErrorIs(t, out.SweepErr, context.Canceled)
	require.NotNil(t, out.Sweep)
	assert.Equal(t, []string{"backup_a"}, out.Sweep.Removed)
	require.Len(t, rec.samples, 1)
	assert.Equal(t, 1, rec.samples[0].Removed)
}

func TestRun_SweepRemoveFailuresAreWarnings(t *testing.T) {
	raw := rawFor(t)
	p := NewMockProducer(t)
	s := NewMockSweeper(t)
	rec := &recorder{}

	p.EXPECT().Produce(mock.Anything, mock.Anything, mock.Anything).
		Return(&producer.Result{Path: filepath.Join(raw.Destination, "backup_x.tar.gz")}, nil)
	s.EXPECT().Sweep(mock.Anything, mock.Anything).Return(&retention.Report{
		Eligible: []string{"backup_a", "backup_b"},
		Removed:  []string{"backup_a"},
		Failures: []retention.RemoveFailure{{Name: "backup_b", Err: errors.New("busy")}},
	}, nil)

	r := New(
		WithProducerFactory(factoryFor(p)),
		WithSweeper(s),
		WithClock(fixedClock),
		WithEnvironment(noTools{}),
		WithMetrics(rec),
	)
	out := r.Run(testCtx(t), raw)

	assert.Equal(t, snaperrors.ExitSuccess, out.ExitCode())
	assert.Equal(t, 1, out.SweepWarnings())
	require.Len(t, rec.samples, 1)
	assert.Equal(t, 1, rec.samples[0].SweepFailures)
	assert.True(t, rec.samples[0].Success)
}

func TestRun_DestinationIsFile(t *testing.T) {
	raw := rawFor(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(raw.Destination), 0o755))
	require.NoError(t, os.WriteFile(raw.Destination, []byte("not a dir"), 0o600))

	r := New(
		WithProducerFactory(failingFactory(t)),
		WithSweeper(NewMockSweeper(t)),
		WithClock(fixedClock),
		WithEnvironment(noTools{}),
		WithMetrics(metrics.Nop{}),
	)
	out := r.Run(testCtx(t), raw)

	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, []State{StateStart, StateValidate, StatePrepareDestination, StateFailed}, out.Visited)
	assert.Equal(t, snaperrors.ExitSystem, out.ExitCode())
}

func TestRun_Collision(t *testing.T) {
	raw := rawFor(t)
	require.NoError(t, os.MkdirAll(raw.Destination, 0o755))
	taken := filepath.Join(raw.Destination, "backup_20250102_030405.tar.gz")
	require.NoError(t, os.WriteFile(taken, []byte("earlier run"), 0o600))

	r := New(
		WithClock(fixedClock),
		WithEnvironment(noTools{}),
		WithMetrics(metrics.Nop{}),
	)
	out := r.Run(testCtx(t), raw)

	require.NoError(t, out.Err)
	assert.Equal(t, "backup_20250102_030405-1", out.RunContext.ID)
	assert.Equal(t, filepath.Join(raw.Destination, "backup_20250102_030405-1.tar.gz"), out.Result.Path)

	data, err := os.ReadFile(taken)
	require.NoError(t, err)
	assert.Equal(t, "earlier run", string(data))
}

// The remaining tests use the real producers and sweeper.

func TestRun_EndToEndArchive(t *testing.T) {
	raw := rawFor(t)
	require.NoError(t, os.WriteFile(filepath.Join(raw.Source, "scratch.tmp"), []byte("x"), 0o644))
	excludes := filepath.Join(t.TempDir(), "excludes")
	require.NoError(t, os.WriteFile(excludes, []byte("*.tmp\n"), 0o600))
	raw.ExcludeFile = excludes

	now := time.Now()
	require.NoError(t, os.MkdirAll(raw.Destination, 0o755))
	old := filepath.Join(raw.Destination, "backup_20200101_000000.tar.gz")
	recent := filepath.Join(raw.Destination, "backup_20250101_000000.tar.gz")
	notes := filepath.Join(raw.Destination, "notes.txt")
	for path, ageDays := range map[string]int{old: 10, recent: 1, notes: 100} {
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
		mt := now.Add(-time.Duration(ageDays) * 24 * time.Hour)
		require.NoError(t, os.Chtimes(path, mt, mt))
	}

	out := New(WithClock(func() time.Time { return now }), WithEnvironment(noTools{})).Run(testCtx(t), raw)

	require.NoError(t, out.Err)
	assert.Equal(t, snaperrors.ExitSuccess, out.ExitCode())
	assert.FileExists(t, out.Result.Path)
	assert.Equal(t, ".gz", filepath.Ext(out.Result.Path))
	assert.Contains(t, out.Result.Excluded, "scratch.tmp")

	assert.NoFileExists(t, old)
	assert.FileExists(t, recent)
	assert.FileExists(t, notes)
	assert.Equal(t, []string{"backup_20200101_000000.tar.gz"}, out.Sweep.Removed)
}

func TestRun_FailedArchiveKeepsExpiredSnapshots(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root reads files regardless of mode")
	}
	raw := rawFor(t)
	locked := filepath.Join(raw.Source, "data.txt")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o600) })

	now := time.Now()
	require.NoError(t, os.MkdirAll(raw.Destination, 0o755))
	old := filepath.Join(raw.Destination, "backup_20200101_000000.tar.gz")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o600))
	mt := now.Add(-30 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(old, mt, mt))

	out := New(WithClock(func() time.Time { return now }), WithEnvironment(noTools{}), WithMetrics(metrics.Nop{})).
		Run(testCtx(t), raw)

	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, snaperrors.ExitSystem, out.ExitCode())
	assert.NotContains(t, out.Visited, StateSweep)
	assert.Nil(t, out.Sweep)

	assert.FileExists(t, old, "expired snapshot must survive a failed run")
	partial := filepath.Join(raw.Destination, snapshot.ArtifactName(out.RunContext.ID, snapshot.MethodArchive, true))
	assert.FileExists(t, partial, "partial archive is left in place")
}

func TestRun_EndToEndMirrorPreservesOldMtime(t *testing.T) {
	raw := rawFor(t)
	raw.Method = string(snapshot.MethodMirror)
	raw.RetentionDays = "1"

	// a source whose files look ancient must not have its fresh mirror swept
	ancient := time.Now().Add(-400 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(raw.Source, "data.txt"), ancient, ancient))
	require.NoError(t, os.Chtimes(raw.Source, ancient, ancient))

	out := New(WithEnvironment(noTools{})).Run(testCtx(t), raw)

	require.NoError(t, out.Err)
	assert.DirExists(t, out.Result.Path)
	assert.FileExists(t, filepath.Join(out.Result.Path, "data.txt"))
	assert.Empty(t, out.Sweep.Removed)
}

func TestRun_DryRunLeavesDestinationUntouched(t *testing.T) {
	for _, method := range []snapshot.Method{snapshot.MethodArchive, snapshot.MethodMirror} {
		t.Run(method.String(), func(t *testing.T) {
			raw := rawFor(t)
			raw.Method = method.String()
			raw.DryRun = true
			raw.MetricsFile = filepath.Join(t.TempDir(), "snapkeep.prom")

			require.NoError(t, os.MkdirAll(raw.Destination, 0o755))
			old := filepath.Join(raw.Destination, "backup_20200101_000000.tar.gz")
			require.NoError(t, os.WriteFile(old, []byte("x"), 0o600))
			mt := time.Now().Add(-30 * 24 * time.Hour)
			require.NoError(t, os.Chtimes(old, mt, mt))

			out := New(WithEnvironment(noTools{})).Run(testCtx(t), raw)

			require.NoError(t, out.Err)
			assert.Equal(t, StateDone, out.State)
			assert.True(t, out.Result.DryRun)
			assert.Equal(t, []string{"backup_20200101_000000.tar.gz"}, out.Sweep.Eligible)
			assert.Empty(t, out.Sweep.Removed)

			entries, err := os.ReadDir(raw.Destination)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, "backup_20200101_000000.tar.gz", entries[0].Name())
			assert.NoFileExists(t, raw.MetricsFile)
		})
	}
}

func TestRun_DryRunDoesNotCreateDestination(t *testing.T) {
	raw := rawFor(t)
	raw.DryRun = true

	out := New(WithEnvironment(noTools{})).Run(testCtx(t), raw)

	require.NoError(t, out.Err)
	assert.NoDirExists(t, raw.Destination)
}

func TestRun_MetricsFileWritten(t *testing.T) {
	raw := rawFor(t)
	raw.MetricsFile = filepath.Join(t.TempDir(), "snapkeep.prom")

	out := New(WithEnvironment(noTools{})).Run(testCtx(t), raw)
	require.NoError(t, out.Err)

	data, err := os.ReadFile(raw.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `snapkeep_last_run_success{method="archive"} 1`)
}

func TestState_Terminal(t *testing.T) {
	assert.True(t, StateDone.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateProduce.Terminal())
}
