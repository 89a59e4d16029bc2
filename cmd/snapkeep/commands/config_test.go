package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/thoreinstein/snapkeep/internal/config"
	"github.com/thoreinstein/snapkeep/internal/errors"
)

func setConfigInitFlags(t *testing.T, force bool, source, dest, format string) {
	t.Helper()
	configInitForce, configInitSource, configInitDest, configInitFormat = force, source, dest, format
	t.Cleanup(func() {
		configInitForce, configInitSource, configInitDest, configInitFormat = false, "", "", ""
	})
}

func TestRunConfigShow_Formats(t *testing.T) {
	raw := config.Default()
	raw.Source = "/data"

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, runConfigShowWithWriter(raw, "yaml", &buf))
		var got config.Raw
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, raw, got)
	})

	t.Run("toml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, runConfigShowWithWriter(raw, "toml", &buf))
		var got config.Raw
		require.NoError(t, toml.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, raw, got)
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, runConfigShowWithWriter(raw, "json", &buf))
		var got config.Raw
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, raw, got)
	})

	t.Run("unknown", func(t *testing.T) {
		err := runConfigShowWithWriter(raw, "ini", &bytes.Buffer{})
		assert.Equal(t, errors.ExitUser, errors.ExitCode(err))
	})
}

func TestConfigShowCommand_MergesEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv("SNAPKEEP_METHOD", "mirror")

	stdout, _, err := executeCommand(t, "config", "show")
	require.NoError(t, err)

	var got config.Raw
	require.NoError(t, yaml.Unmarshal([]byte(stdout), &got))
	assert.Equal(t, "mirror", got.Method)
	assert.Equal(t, "7", got.RetentionDays)
}

func TestRunConfigInit(t *testing.T) {
	setConfigInitFlags(t, false, "/data", "/backups", "")
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	var buf bytes.Buffer

	require.NoError(t, runConfigInitWithWriter(path, &buf))
	assert.Contains(t, buf.String(), "Wrote "+path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, configFilePerm, info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got config.Raw
	require.NoError(t, yaml.Unmarshal(data, &got))
	assert.Equal(t, "/data", got.Source)
	assert.Equal(t, "/backups", got.Destination)
	assert.Equal(t, config.DefaultMethod, got.Method)
}

func TestRunConfigInit_LoadsBack(t *testing.T) {
	isolate(t)
	setConfigInitFlags(t, false, "/data", "/backups", "")
	path := filepath.Join(t.TempDir(), "snapkeep.toml")

	require.NoError(t, runConfigInitWithWriter(path, &bytes.Buffer{}))

	config.Init()
	raw, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data", raw.Source)
	assert.Equal(t, "7", raw.RetentionDays)
}

func TestRunConfigInit_RefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("keep: me\n"), 0o644))

	setConfigInitFlags(t, false, "", "", "")
	err := runConfigInitWithWriter(path, &bytes.Buffer{})
	require.Error(t, err)
	assert.Equal(t, errors.ExitUser, errors.ExitCode(err))

	data, _ := os.ReadFile(path)
	assert.Equal(t, "keep: me\n", string(data))

	setConfigInitFlags(t, true, "", "", "json")
	var buf bytes.Buffer
	require.NoError(t, runConfigInitWithWriter(path, &buf))
	assert.Contains(t, buf.String(), "Set source and destination")

	data, _ = os.ReadFile(path)
	var got config.Raw
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, config.DefaultMethod, got.Method)
}
