// Package snapshot names snapshot artifacts and carries the per-run context
// shared by every stage of a backup run.
package snapshot

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

const (
	// Prefix starts every snapshot artifact name. The retention sweeper only
	// ever considers entries carrying it.
	Prefix = "backup_"

	// TimestampLayout is the time layout embedded in identifiers.
	TimestampLayout = "20060102_150405"

	// maxDisambiguator bounds the collision search in Reserve.
	maxDisambiguator = 1000
)

// Archive suffixes.
const (
	SuffixTar   = ".tar"
	SuffixTarGz = ".tar.gz"
)

// ErrNotSnapshot is returned by ParseID for names that are not artifacts.
var ErrNotSnapshot = errors.New("not a snapshot name")

// Method selects how a snapshot is produced.
type Method string

const (
	// MethodArchive writes a single tarball.
	MethodArchive Method = "archive"

	// MethodMirror replicates the tree into a new directory.
	MethodMirror Method = "mirror"
)

// Methods returns the recognized methods.
func Methods() []Method {
	return []Method{MethodArchive, MethodMirror}
}

// ParseMethod converts user input into a Method.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case MethodArchive, MethodMirror:
		return m, nil
	default:
		return "", errors.Newf("unknown method %q (valid: archive, mirror)", s)
	}
}

func (m Method) String() string { return string(m) }

// NewID returns the identifier for a run started at now.
func NewID(now time.Time) string {
	return Prefix + now.Format(TimestampLayout)
}

// ArtifactName returns the directory entry name used for id.
func ArtifactName(id string, method Method, compress bool) string {
	if method == MethodMirror {
		return id
	}
	if compress {
		return id + SuffixTarGz
	}
	return id + SuffixTar
}

// candidateNames lists every artifact name a given id could occupy,
// regardless of method, so a mirror never shares an id with an archive.
func candidateNames(id string) []string {
	return []string{id, id + SuffixTar, id + SuffixTarGz}
}

// Reserve returns an identifier whose artifact names are all free under dir.
// The first candidate is id itself; on collision "-1", "-2", ... is appended.
// Reserve does not create anything, so the caller must hold the only run
// against dir.
func Reserve(dir, id string) (string, error) {
	for n := 0; n < maxDisambiguator; n++ {
		candidate := id
		if n > 0 {
			candidate = id + "-" + strconv.Itoa(n)
		}

		taken, err := anyExists(dir, candidateNames(candidate))
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", errors.Newf("no free snapshot name for %s after %d attempts", id, maxDisambiguator)
}

func anyExists(dir string, names []string) (bool, error) {
	for _, name := range names {
		_, err := os.Lstat(filepath.Join(dir, name))
		switch {
		case err == nil:
			return true, nil
		case os.IsNotExist(err):
			continue
		default:
			return false, errors.Wrapf(err, "checking %s", name)
		}
	}
	return false, nil
}

// Info describes an artifact parsed from a directory entry name.
type Info struct {
	// ID is the identifier including any disambiguator.
	ID string

	// Taken is the timestamp embedded in the name.
	Taken time.Time

	// Method is inferred from the suffix.
	Method Method

	// Compressed is true for .tar.gz archives.
	Compressed bool
}

// ParseID decodes an artifact name produced by ArtifactName.
// The timestamp is interpreted in loc.
func ParseID(name string, loc *time.Location) (Info, error) {
	if !strings.HasPrefix(name, Prefix) {
		return Info{}, ErrNotSnapshot
	}

	info := Info{Method: MethodMirror}
	id := name
	switch {
	case strings.HasSuffix(name, SuffixTarGz):
		id = strings.TrimSuffix(name, SuffixTarGz)
		info.Method, info.Compressed = MethodArchive, true
	case strings.HasSuffix(name, SuffixTar):
		id = strings.TrimSuffix(name, SuffixTar)
		info.Method = MethodArchive
	}
	info.ID = id

	stamp := strings.TrimPrefix(id, Prefix)
	if len(stamp) < len(TimestampLayout) {
		return Info{}, errors.Wrapf(ErrNotSnapshot, "%s", name)
	}
	rest := stamp[len(TimestampLayout):]
	if rest != "" && !isDisambiguator(rest) {
		return Info{}, errors.Wrapf(ErrNotSnapshot, "%s", name)
	}

	taken, err := time.ParseInLocation(TimestampLayout, stamp[:len(TimestampLayout)], loc)
	if err != nil {
		return Info{}, errors.Wrapf(ErrNotSnapshot, "%s", name)
	}
	info.Taken = taken
	return info, nil
}

func isDisambiguator(s string) bool {
	if len(s) < 2 || s[0] != '-' {
		return false
	}
	_, err := strconv.Atoi(s[1:])
	return err == nil
}
