package doctor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/thoreinstein/snapkeep/pkg/fileutil"
)

// ConfigFileCheck validates the syntax and permissions of snapkeep's own
// config file.
type ConfigFileCheck struct {
	PermissionFixer

	path string
}

var (
	_ Check = (*ConfigFileCheck)(nil)
	_ Fixer = (*ConfigFileCheck)(nil)
)

// NewConfigFileCheck creates a config file check. An empty path means no
// config file was found.
func NewConfigFileCheck(path string) *ConfigFileCheck {
	return &ConfigFileCheck{path: path}
}

// Name returns the unique identifier for this check.
func (c *ConfigFileCheck) Name() string { return "config-file" }

// Category returns the grouping for this check.
func (c *ConfigFileCheck) Category() string { return "config" }

// Run executes the check.
func (c *ConfigFileCheck) Run() *CheckResult {
	result := newResult(c)
	c.setIssues(nil)

	if c.path == "" {
		result.Status = SeverityInfo
		result.Message = "no config file found; using flags, environment and defaults"
		result.FixHint = "snapkeep config init"
		return result
	}
	result.Details["path"] = c.path

	info, err := os.Stat(c.path)
	if err != nil {
		result.Status = SeverityError
		result.Message = fmt.Sprintf("cannot stat config file: %v", err)
		return result
	}

	data, err := fileutil.ReadFileWithLimit(c.path)
	if err != nil {
		result.Status = SeverityError
		result.Message = fmt.Sprintf("config file is not readable: %v", err)
		return result
	}

	if msg := validateSyntax(c.path, data); msg != "" {
		result.Status = SeverityError
		result.Message = msg
		result.FixHint = "fix the syntax error in " + c.path
		return result
	}

	// world-writable config lets other users redirect backups
	if runtime.GOOS != "windows" && info.Mode().Perm()&0o002 != 0 {
		c.setIssues([]pathIssue{{
			Path:        c.path,
			Type:        "file",
			Problem:     "world-writable",
			Permissions: formatOctal(info.Mode()),
			Fixable:     true,
			FixHint:     fmt.Sprintf("chmod %o %s", secureFilePerm, c.path),
		}})
		result.Status = SeverityWarning
		result.Message = "config file is world-writable"
		result.Details["permissions"] = formatOctal(info.Mode())
		result.Fixable = true
		result.FixHint = fmt.Sprintf("chmod %o %s", secureFilePerm, c.path)
		return result
	}

	result.Message = "config file is valid"
	return result
}

// validateSyntax returns a description of the first syntax error in data,
// or "" when it parses.
func validateSyntax(path string, data []byte) string {
	if len(data) == 0 {
		return ""
	}

	var v any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &v); err != nil {
			return formatJSONError(err, data)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &v); err != nil {
			return formatTOMLError(err)
		}
	default:
		if err := yaml.Unmarshal(data, &v); err != nil {
			return "YAML syntax error: " + err.Error()
		}
	}
	return ""
}

// formatJSONError extracts position information from JSON syntax errors.
func formatJSONError(err error, data []byte) string {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(data, int(syntaxErr.Offset))
		return fmt.Sprintf("JSON syntax error at line %d, column %d: %s", line, col, syntaxErr.Error())
	}
	return fmt.Sprintf("JSON error: %v", err)
}

// formatTOMLError extracts position information from TOML decode errors.
func formatTOMLError(err error) string {
	var decodeErr *toml.DecodeError
	if errors.As(err, &decodeErr) {
		row, col := decodeErr.Position()
		return fmt.Sprintf("TOML syntax error at line %d, column %d: %s", row, col, decodeErr.Error())
	}
	return fmt.Sprintf("TOML error: %v", err)
}

// offsetToLineCol converts a byte offset to 1-indexed line and column numbers.
func offsetToLineCol(data []byte, offset int) (line, col int) {
	offset = max(0, min(offset, len(data)))

	line = 1
	lineStart := 0
	for i := range offset {
		if data[i] == '\n' {
			line++
			lineStart = i + 1
		}
	}
	return line, offset - lineStart + 1
}

func formatOctal(mode os.FileMode) string {
	return fmt.Sprintf("%04o", mode.Perm())
}
