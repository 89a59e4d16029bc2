package doctor

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/thoreinstein/snapkeep/internal/config"
	"github.com/thoreinstein/snapkeep/internal/exclude"
	"github.com/thoreinstein/snapkeep/internal/paths"
	"github.com/thoreinstein/snapkeep/internal/retention"
	"github.com/thoreinstein/snapkeep/internal/snapshot"
)

// Target is the configuration under diagnosis. Paths are absolute; fields
// may be empty or invalid, which is what the checks report on.
type Target struct {
	ConfigFile   string
	Source       string
	Destination  string
	ExcludeFile  string
	Method       string
	MirrorEngine string
}

// TargetFromRaw resolves raw configuration into a Target.
func TargetFromRaw(raw config.Raw, configFile string) Target {
	abs := func(p string) string {
		a, err := paths.Absolute(p)
		if err != nil {
			return p
		}
		return a
	}
	return Target{
		ConfigFile:   configFile,
		Source:       abs(raw.Source),
		Destination:  abs(raw.Destination),
		ExcludeFile:  abs(raw.ExcludeFile),
		Method:       raw.Method,
		MirrorEngine: raw.MirrorEngine,
	}
}

// DefaultChecks returns the standard check set for t.
func DefaultChecks(t Target, env config.Environment) []Check {
	return []Check{
		NewConfigFileCheck(t.ConfigFile),
		NewSourceCheck(t.Source),
		NewDestinationCheck(t.Source, t.Destination),
		NewExcludeFileCheck(t.ExcludeFile),
		NewMirrorEngineCheck(t.Method, t.MirrorEngine, env),
	}
}

// SourceCheck verifies the source is a readable directory.
type SourceCheck struct {
	path string
}

var _ Check = (*SourceCheck)(nil)

// NewSourceCheck creates a source check for path.
func NewSourceCheck(path string) *SourceCheck {
	return &SourceCheck{path: path}
}

// Name returns the unique identifier for this check.
func (c *SourceCheck) Name() string { return "source" }

// Category returns the grouping for this check.
func (c *SourceCheck) Category() string { return "paths" }

// Run executes the check.
func (c *SourceCheck) Run() *CheckResult {
	result := newResult(c)
	result.Details["path"] = c.path

	if c.path == "" {
		result.Status = SeverityError
		result.Message = "source is not set"
		result.FixHint = "set source in the config file or pass --source"
		return result
	}

	info, err := os.Stat(c.path)
	switch {
	case os.IsNotExist(err):
		result.Status = SeverityError
		result.Message = "source does not exist"
		return result
	case err != nil:
		result.Status = SeverityError
		result.Message = fmt.Sprintf("cannot stat source: %v", err)
		return result
	case !info.IsDir():
		result.Status = SeverityError
		result.Message = "source is not a directory"
		return result
	}

	entries, err := os.ReadDir(c.path)
	if err != nil {
		result.Status = SeverityError
		result.Message = "source is not readable"
		result.FixHint = "run snapkeep as a user that can read " + c.path
		return result
	}
	result.Details["entries"] = len(entries)
	if len(entries) == 0 {
		result.Status = SeverityWarning
		result.Message = "source is empty"
		return result
	}

	result.Message = "source is a readable directory"
	return result
}

// DestinationCheck verifies the destination exists and is writable, or can
// be created. It can create a missing destination.
type DestinationCheck struct {
	PermissionFixer

	source string
	path   string
}

var (
	_ Check = (*DestinationCheck)(nil)
	_ Fixer = (*DestinationCheck)(nil)
)

// NewDestinationCheck creates a destination check.
func NewDestinationCheck(source, path string) *DestinationCheck {
	return &DestinationCheck{source: source, path: path}
}

// Name returns the unique identifier for this check.
func (c *DestinationCheck) Name() string { return "destination" }

// Category returns the grouping for this check.
func (c *DestinationCheck) Category() string { return "paths" }

// Run executes the check.
func (c *DestinationCheck) Run() *CheckResult {
	result := newResult(c)
	result.Details["path"] = c.path
	c.setIssues(nil)

	if c.path == "" {
		result.Status = SeverityError
		result.Message = "destination is not set"
		result.FixHint = "set destination in the config file or pass --destination"
		return result
	}
	if c.source != "" && c.source == c.path {
		result.Status = SeverityError
		result.Message = "destination is the source directory"
		return result
	}

	info, err := os.Stat(c.path)
	switch {
	case err == nil && !info.IsDir():
		result.Status = SeverityError
		result.Message = "destination exists but is not a directory"
		return result
	case err == nil:
		return c.checkExisting(result)
	case !os.IsNotExist(err):
		result.Status = SeverityError
		result.Message = fmt.Sprintf("cannot stat destination: %v", err)
		return result
	}

	parent := nearestExisting(filepath.Dir(c.path))
	result.Details["parent"] = parent
	if ok, _ := isDirectoryWritable(parent); !ok {
		result.Status = SeverityError
		result.Message = "destination does not exist and cannot be created"
		result.FixHint = "create " + c.path + " as a user snapkeep runs as"
		return result
	}

	c.setIssues([]pathIssue{{
		Path:    c.path,
		Type:    "directory",
		Problem: "missing",
		Fixable: true,
		FixHint: "mkdir -p " + c.path,
	}})
	result.Status = SeverityInfo
	result.Message = "destination will be created on the first run"
	result.Fixable = true
	result.FixHint = "mkdir -p " + c.path
	return result
}

func (c *DestinationCheck) checkExisting(result *CheckResult) *CheckResult {
	if ok, err := isDirectoryWritable(c.path); !ok {
		result.Status = SeverityError
		result.Message = fmt.Sprintf("destination is not writable: %v", err)
		return result
	}

	if entries, err := retention.Scan(c.path); err == nil {
		result.Details["snapshots"] = len(entries)
	}

	if c.source != "" && paths.Within(c.source, c.path) {
		result.Status = SeverityInfo
		result.Message = "destination lies inside the source and is left out of snapshots"
		return result
	}

	result.Message = "destination is a writable directory"
	return result
}

// nearestExisting walks up from dir to the first path that exists.
func nearestExisting(dir string) string {
	for {
		if _, err := os.Stat(dir); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}

// isDirectoryWritable tests if a directory is writable by creating a temp file.
func isDirectoryWritable(path string) (bool, error) {
	tmpFile, err := os.CreateTemp(path, ".snapkeep-doctor-*")
	if err != nil {
		return false, err
	}

	tmpPath := tmpFile.Name()
	tmpFile.Close()
	os.Remove(tmpPath)

	return true, nil
}

// ExcludeFileCheck loads the exclude file and reports its patterns.
type ExcludeFileCheck struct {
	path string
}

var _ Check = (*ExcludeFileCheck)(nil)

// NewExcludeFileCheck creates an exclude file check.
func NewExcludeFileCheck(path string) *ExcludeFileCheck {
	return &ExcludeFileCheck{path: path}
}

// Name returns the unique identifier for this check.
func (c *ExcludeFileCheck) Name() string { return "exclude-file" }

// Category returns the grouping for this check.
func (c *ExcludeFileCheck) Category() string { return "config" }

// Run executes the check.
func (c *ExcludeFileCheck) Run() *CheckResult {
	result := newResult(c)

	if c.path == "" {
		result.Status = SeverityInfo
		result.Message = "no exclude file configured; everything is included"
		return result
	}
	result.Details["path"] = c.path

	m, err := exclude.Load(c.path)
	if err != nil {
		result.Status = SeverityError
		result.Message = err.Error()
		return result
	}

	result.Details["patterns"] = m.Patterns()
	if m.Len() == 0 {
		result.Status = SeverityWarning
		result.Message = "exclude file has no patterns"
		return result
	}
	result.Message = fmt.Sprintf("%d exclude pattern(s) loaded", m.Len())
	return result
}

// MirrorEngineCheck reports which mirror engines can run.
type MirrorEngineCheck struct {
	method string
	engine string
	env    config.Environment
}

var _ Check = (*MirrorEngineCheck)(nil)

// NewMirrorEngineCheck creates an engine availability check.
func NewMirrorEngineCheck(method, engine string, env config.Environment) *MirrorEngineCheck {
	if env == nil {
		env = config.OSEnvironment{}
	}
	return &MirrorEngineCheck{method: method, engine: engine, env: env}
}

// Name returns the unique identifier for this check.
func (c *MirrorEngineCheck) Name() string { return "mirror-engines" }

// Category returns the grouping for this check.
func (c *MirrorEngineCheck) Category() string { return "engine" }

// Run executes the check.
func (c *MirrorEngineCheck) Run() *CheckResult {
	result := newResult(c)

	engine := c.engine
	if engine == "" {
		engine = config.DefaultMirrorEngine
	}

	status := make(map[string]string)
	var missing []string
	for _, name := range []string{config.EngineNative, config.EngineRsync} {
		if err := config.CheckEngine(name, c.env); err != nil {
			status[name] = "unavailable"
			missing = append(missing, name)
			continue
		}
		status[name] = "available"
	}
	result.Details["engines"] = status
	result.Details["selected"] = engine

	selectedMissing := status[engine] != "available"
	usesMirror := snapshot.Method(c.method) == snapshot.MethodMirror

	switch {
	case usesMirror && selectedMissing:
		result.Status = SeverityError
		result.Message = fmt.Sprintf("mirror engine %q is not available", engine)
		result.FixHint = "install " + config.EngineBinary(engine) + " or set mirror_engine: native"
	case selectedMissing:
		result.Status = SeverityWarning
		result.Message = fmt.Sprintf("mirror engine %q is not available; archive runs are unaffected", engine)
	case len(missing) > 0:
		result.Status = SeverityInfo
		result.Message = fmt.Sprintf("using %s; unavailable: %v", engine, missing)
	default:
		result.Message = "all mirror engines available"
	}
	return result
}
