package doctor

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"

	"github.com/thoreinstein/snapkeep/internal/paths"
)

// Fixer is an optional interface for checks that can remediate what they
// detect. Fix must be called after Run.
type Fixer interface {
	// CanFix returns true if the last Run found fixable issues.
	CanFix() bool

	// Fix attempts to remediate the issues found by Run.
	Fix() []FixResult
}

// FixResult describes the outcome of an attempted fix operation.
type FixResult struct {
	Path        string `json:"path"`
	Fixed       bool   `json:"fixed"`
	Description string `json:"description"`
	Error       error  `json:"-"`
}

// secureFilePerm is the target permission for config files (rw-r--r--).
const secureFilePerm os.FileMode = 0o644

// pathIssue is a single path problem found by a check.
type pathIssue struct {
	Path        string
	Type        string // "file" or "directory"
	Problem     string // "missing" or "world-writable"
	Permissions string
	Fixable     bool
	FixHint     string
}

// PermissionFixer creates missing directories and tightens file
// permissions. Checks embed it to gain Fixer.
type PermissionFixer struct {
	issues []pathIssue
}

// CanFix returns true if there are any fixable issues.
func (f *PermissionFixer) CanFix() bool {
	return f.CountFixable() > 0
}

// Fix attempts to fix all fixable issues.
func (f *PermissionFixer) Fix() []FixResult {
	results := make([]FixResult, 0, f.CountFixable())
	for _, issue := range f.issues {
		if !issue.Fixable {
			continue
		}
		results = append(results, f.fixIssue(issue))
	}
	return results
}

func (f *PermissionFixer) fixIssue(issue pathIssue) FixResult {
	result := FixResult{Path: issue.Path}

	switch {
	case issue.Type == "directory" && issue.Problem == "missing":
		if err := paths.EnsureDir(issue.Path, paths.DefaultDirPerm); err != nil {
			result.Description = fmt.Sprintf("failed to create directory: %v", err)
			result.Error = errors.Wrapf(err, "mkdir %s", issue.Path)
			return result
		}
		result.Description = fmt.Sprintf("created directory (%04o)", paths.DefaultDirPerm)
	case issue.Type == "file":
		if err := os.Chmod(issue.Path, secureFilePerm); err != nil {
			result.Description = fmt.Sprintf("failed to chmod %04o: %v", secureFilePerm, err)
			result.Error = errors.Wrapf(err, "chmod %04o %s", secureFilePerm, issue.Path)
			return result
		}
		result.Description = fmt.Sprintf("chmod %04o", secureFilePerm)
	default:
		result.Description = "no automatic fix for " + issue.Problem
		result.Error = errors.Newf("cannot fix %s %s", issue.Type, issue.Problem)
		return result
	}

	result.Fixed = true
	return result
}

func (f *PermissionFixer) setIssues(issues []pathIssue) {
	f.issues = issues
}

// CountFixable returns the number of fixable issues.
func (f *PermissionFixer) CountFixable() int {
	count := 0
	for _, issue := range f.issues {
		if issue.Fixable {
			count++
		}
	}
	return count
}
