// Package exclude loads exclude-pattern files and matches source paths
// against them.
//
// A pattern file holds one glob per line. Blank lines and lines starting with
// '#' are ignored. Patterns use doublestar syntax ('*', '?', '[...]', '{a,b}'
// and '**' across directories). A pattern ending in '/' only matches
// directories. A leading "/" or "./" anchors a pattern at the source root.
//
// A path is excluded when a pattern matches either its full slash-separated
// path relative to the source root or its base name, so "*.tmp" removes
// temporary files at every depth while "cache/**" is anchored at the root.
// RsyncPatterns restates the same rules in rsync filter syntax.
package exclude

import (
	"bufio"
	"os"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cockroachdb/errors"
)

// ErrBadPattern wraps patterns doublestar cannot compile.
var ErrBadPattern = errors.New("invalid exclude pattern")

type rule struct {
	pattern string
	dirOnly bool
}

// Matcher answers whether a relative path is excluded. The zero value and a
// nil *Matcher exclude nothing.
type Matcher struct {
	rules []rule
}

// Load reads patterns from file. An empty path returns an empty Matcher.
func Load(file string) (*Matcher, error) {
	if file == "" {
		return &Matcher{}, nil
	}

	f, err := os.Open(file)
	if err != nil {
		return nil, errors.Wrap(err, "opening exclude file")
	}
	defer f.Close()

	var patterns []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		patterns = append(patterns, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "reading exclude file")
	}

	m, err := New(patterns...)
	if err != nil {
		return nil, errors.Wrapf(err, "in %s", file)
	}
	return m, nil
}

// New builds a Matcher from raw pattern lines.
func New(lines ...string) (*Matcher, error) {
	m := &Matcher{}
	for i, line := range lines {
		p := strings.TrimSpace(line)
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}

		r := rule{pattern: p}
		if strings.HasSuffix(p, "/") {
			r.dirOnly = true
			r.pattern = strings.TrimRight(p, "/")
		}
		// "./x" and "/x" both name x at the source root
		r.pattern = strings.TrimPrefix(strings.TrimPrefix(r.pattern, "./"), "/")
		if r.pattern == "" {
			continue
		}

		if !doublestar.ValidatePattern(r.pattern) {
			return nil, errors.Wrapf(ErrBadPattern, "line %d: %q", i+1, line)
		}
		m.rules = append(m.rules, r)
	}
	return m, nil
}

// Match reports whether rel (slash-separated, relative to the source root)
// is excluded.
func (m *Matcher) Match(rel string, isDir bool) bool {
	if m == nil || rel == "" || rel == "." {
		return false
	}
	base := path.Base(rel)
	for _, r := range m.rules {
		if r.dirOnly && !isDir {
			continue
		}
		if ok, _ := doublestar.Match(r.pattern, rel); ok {
			return true
		}
		if ok, _ := doublestar.Match(r.pattern, base); ok {
			return true
		}
	}
	return false
}

// Patterns returns the effective patterns in file order, with directory-only
// patterns carrying their trailing slash.
func (m *Matcher) Patterns() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.rules))
	for i, r := range m.rules {
		out[i] = r.pattern
		if r.dirOnly {
			out[i] += "/"
		}
	}
	return out
}

// RsyncPatterns returns the patterns as rsync --exclude values with the
// Matcher's anchoring. rsync matches a pattern containing '/' at any depth
// unless it starts with '/', so those are anchored explicitly. Patterns
// without '/' already match base names at every depth in both.
func (m *Matcher) RsyncPatterns() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.rules))
	for i, r := range m.rules {
		p := r.pattern
		if strings.Contains(p, "/") {
			p = "/" + p
		}
		if r.dirOnly {
			p += "/"
		}
		out[i] = p
	}
	return out
}

// Len returns the number of active patterns.
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.rules)
}

