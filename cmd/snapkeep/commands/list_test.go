package commands

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thoreinstein/snapkeep/internal/errors"
)

func TestRunList_Text(t *testing.T) {
	dst := seedDestination(t)
	var buf bytes.Buffer

	require.NoError(t, runListWithWriter(pruneRaw(dst, false), testNow, &buf))

	out := buf.String()
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "backup_20200101_000000.tar.gz")
	assert.Contains(t, out, "expired")
	assert.Contains(t, out, "kept")
	assert.NotContains(t, out, "notes.txt")
}

func TestRunList_JSON(t *testing.T) {
	listJSON = true
	t.Cleanup(func() { listJSON = false })

	dst := seedDestination(t)
	var buf bytes.Buffer
	require.NoError(t, runListWithWriter(pruneRaw(dst, false), testNow, &buf))

	var got []listEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)

	assert.Equal(t, "backup_20200101_000000.tar.gz", got[0].Name)
	assert.Equal(t, "archive", got[0].Kind)
	assert.True(t, got[0].Expired)
	require.NotNil(t, got[0].Taken)
	assert.Equal(t, 2020, got[0].Taken.Year())

	assert.False(t, got[1].Expired)
	assert.Equal(t, int64(len("backup_20250110_000000.tar.gz")), got[1].Size)
}

func TestRunList_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, runListWithWriter(pruneRaw(t.TempDir(), false), testNow, &buf))
	assert.Equal(t, "No snapshots found.\n", buf.String())
}

func TestRunList_MissingDestination(t *testing.T) {
	err := runListWithWriter(pruneRaw(filepath.Join(t.TempDir(), "absent"), false), testNow, &bytes.Buffer{})
	require.Error(t, err)
	assert.Equal(t, errors.ExitUser, errors.ExitCode(err))
}
