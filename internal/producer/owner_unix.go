//go:build unix

package producer

import (
	"io/fs"
	"log/slog"
	"os"
	"syscall"
)

// chownBestEffort copies ownership from info when running as root. Failures
// are logged, not returned.
func chownBestEffort(path string, info fs.FileInfo, log *slog.Logger) {
	if os.Geteuid() != 0 {
		return
	}
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return
	}
	if err := os.Lchown(path, int(st.Uid), int(st.Gid)); err != nil {
		log.Debug("could not preserve ownership", "path", path, "error", err)
	}
}
