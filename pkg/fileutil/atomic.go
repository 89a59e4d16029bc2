// Package fileutil provides file system utilities: atomic writes of encoded
// documents and size-limited reads.
package fileutil

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/thoreinstein/snapkeep/internal/errors"
)

// Format names a document encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// Formats returns the supported formats.
func Formats() []Format {
	return []Format{FormatYAML, FormatTOML, FormatJSON}
}

// ParseFormat converts a user-supplied name into a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatYAML, FormatTOML, FormatJSON:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", errors.Newf("unknown format %q (valid: yaml, toml, json)", s)
	}
}

// FormatFromPath picks the format from the file extension, defaulting to YAML.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	case ".json":
		return FormatJSON
	default:
		return FormatYAML
	}
}

// Marshal encodes v in format f. The output always ends in a newline.
func Marshal(f Format, v any) (data []byte, err error) {
	switch f {
	case FormatJSON:
		data, err = json.MarshalIndent(v, "", "  ")
	case FormatTOML:
		var buf bytes.Buffer
		enc := toml.NewEncoder(&buf)
		enc.SetIndentTables(true)
		err = enc.Encode(v)
		data = buf.Bytes()
	case FormatYAML, "":
		data, err = marshalYAML(v)
	default:
		return nil, errors.Newf("unknown format %q", f)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "marshaling %s", f)
	}

	if len(data) == 0 || data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}
	return data, nil
}

// marshalYAML converts the panics yaml.Marshal raises on unmarshalable types
// into errors.
func marshalYAML(v any) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("%v", r)
		}
	}()
	return yaml.Marshal(v)
}

// AtomicWriteFile writes data to a file atomically using a temp file + rename pattern.
// Interrupted writes leave the original file intact.
//
// The caller is responsible for ensuring the parent directory exists.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	// same directory so the rename stays on one filesystem
	tmp, err := os.CreateTemp(dir, ".snapkeep-atomic-*.tmp")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}

	tmpName := tmp.Name()
	renamed := false
	defer func() {
		if !renamed {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "writing temp file")
	}

	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return errors.Wrap(err, "setting file permissions")
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "syncing temp file")
	}

	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "closing temp file")
	}

	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrap(err, "renaming temp file")
	}
	renamed = true

	return nil
}

// AtomicWrite encodes v in format f and writes it to path atomically.
func AtomicWrite(path string, f Format, v any, perm os.FileMode) error {
	data, err := Marshal(f, v)
	if err != nil {
		return err
	}
	return AtomicWriteFile(path, data, perm)
}
