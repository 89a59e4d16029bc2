//go:build !unix

package producer

import (
	"io/fs"
	"log/slog"
)

func chownBestEffort(string, fs.FileInfo, *slog.Logger) {}
