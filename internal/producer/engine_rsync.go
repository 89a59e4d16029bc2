package producer

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/thoreinstein/snapkeep/internal/config"
	"github.com/thoreinstein/snapkeep/internal/paths"
)

// execFunc runs a program and returns its stdout and stderr.
type execFunc func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// RsyncEngine mirrors by running rsync. Arguments are passed as a vector;
// no shell is involved.
type RsyncEngine struct {
	// Binary is the program to run. Defaults to "rsync" resolved on PATH.
	Binary string

	exec execFunc
}

// NewRsyncEngine returns an rsync engine.
func NewRsyncEngine() *RsyncEngine {
	return &RsyncEngine{
		Binary: config.EngineBinary(config.EngineRsync),
		exec:   runCommand,
	}
}

// Name implements MirrorEngine.
func (*RsyncEngine) Name() string { return config.EngineRsync }

// Available implements MirrorEngine.
func (e *RsyncEngine) Available(env config.Environment) error {
	return config.CheckEngine(config.EngineRsync, env)
}

// Args builds the rsync argument vector for req. Exclude patterns come from
// req.Matcher, translated so rsync excludes the same paths the native
// engine does.
func (*RsyncEngine) Args(req SyncRequest) []string {
	args := []string{"-a", "--delete", "--itemize-changes"}
	if req.Preview {
		args = append(args, "--dry-run")
	}
	for _, p := range req.Matcher.RsyncPatterns() {
		args = append(args, "--exclude="+p)
	}
	if req.Skip != "" && req.Skip != req.Source && paths.Within(req.Source, req.Skip) {
		rel, err := filepath.Rel(req.Source, req.Skip)
		if err == nil {
			args = append(args, "--exclude=/"+filepath.ToSlash(rel)+"/")
		}
	}
	return append(args, withSlash(req.Source), withSlash(req.Target))
}

// withSlash makes rsync copy the contents of dir rather than dir itself.
func withSlash(dir string) string {
	if strings.HasSuffix(dir, string(filepath.Separator)) {
		return dir
	}
	return dir + string(filepath.Separator)
}

// Sync implements MirrorEngine.
func (e *RsyncEngine) Sync(ctx context.Context, req SyncRequest) ([]Action, error) {
	run := e.exec
	if run == nil {
		run = runCommand
	}
	bin := e.Binary
	if bin == "" {
		bin = "rsync"
	}

	args := e.Args(req)
	loggerFor(ctx, nil).Debug("running rsync", "binary", bin, "args", args)

	stdout, stderr, err := run(ctx, bin, args...)
	if err != nil {
		msg := strings.TrimSpace(string(stderr))
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, errors.Wrapf(err, "rsync exited with status %d: %s", exitErr.ExitCode(), msg)
		}
		return nil, errors.Wrapf(err, "running rsync: %s", msg)
	}
	return parseItemize(stdout), nil
}

// parseItemize converts rsync --itemize-changes output into actions.
// Unchanged entries and the transfer root are dropped.
func parseItemize(out []byte) []Action {
	var actions []Action
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "*deleting") {
			p := strings.TrimSpace(strings.TrimPrefix(line, "*deleting"))
			actions = append(actions, itemAction(ActionDelete, p))
			continue
		}

		// informational lines such as "created directory <dst>" carry no
		// itemize code
		code, p, ok := strings.Cut(line, " ")
		if !ok || !isItemizeCode(code) {
			continue
		}
		p = strings.TrimSpace(p)
		if p == "" || p == "./" {
			continue
		}
		// symlinks itemize as "cL+++..." and may append " -> target"
		if code[1] == 'L' {
			p, _, _ = strings.Cut(p, " -> ")
		}

		kind := ActionUpdate
		if strings.Contains(code[2:], "+++") {
			kind = ActionCreate
		}
		actions = append(actions, itemAction(kind, p))
	}
	return actions
}

// isItemizeCode reports whether code looks like an rsync "YXcstpoguax"
// change string. rsync releases before 3.1 print nine columns.
func isItemizeCode(code string) bool {
	if len(code) < 9 || len(code) > 11 {
		return false
	}
	return strings.IndexByte("<>ch.*", code[0]) >= 0
}

func itemAction(kind ActionKind, p string) Action {
	isDir := strings.HasSuffix(p, "/")
	return Action{Kind: kind, Path: strings.TrimSuffix(p, "/"), IsDir: isDir}
}
