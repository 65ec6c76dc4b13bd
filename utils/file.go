package utils

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalArchiver writes season snapshots under a directory on disk.
type LocalArchiver struct {
	Dir string
}

func NewLocalArchiver(dir string) *LocalArchiver {
	return &LocalArchiver{Dir: dir}
}

// Archive writes body to Dir/key through a temp file and rename, so a
// partially written snapshot is never visible.
func (a *LocalArchiver) Archive(ctx context.Context, key string, body []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("archive key %q escapes the archive directory", key)
	}
	destPath := filepath.Join(a.Dir, clean)

	// Ensure the directory for the destination file exists
	if err := os.MkdirAll(filepath.Dir(destPath), os.ModePerm); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".archive-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), destPath); err != nil {
		return "", err
	}
	return destPath, nil
}
