package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Local writes images below Dir; BaseURL is the prefix the HTTP server mounts Dir on.
type Local struct {
	Dir     string
	BaseURL string
}

func NewLocal(dir, baseURL string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Local{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (l *Local) Save(ctx context.Context, obj Object) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	folder := filepath.Base(filepath.Clean("/" + obj.Folder))
	base := filepath.Base(filepath.Clean("/" + obj.Name))
	if folder == "/" || base == "/" || strings.HasPrefix(base, ".") {
		return "", fmt.Errorf("invalid object name %q", obj.Name)
	}
	name := base + obj.Ext
	dir := filepath.Join(l.Dir, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(dir, "upload-*")
	if err != nil {
		return "", err
	}
	_, copyErr := io.Copy(tmp, obj.Body)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmp.Name())
		if copyErr != nil {
			return "", copyErr
		}
		return "", closeErr
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	return path.Join(l.BaseURL, folder, name), nil
}
