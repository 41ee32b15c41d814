package media

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FS implements Store on the local file system. Objects are served by the
// HTTP surface under baseURL.
type FS struct {
	root    string // absolute path to media directory
	baseURL string
	folder  string
}

// NewFS creates a new FS store rooted at the given directory, creating it
// when missing.
func NewFS(root, baseURL, folder string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("media: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("media: create root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("media: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("media: root is not a directory: %s", abs)
	}
	if baseURL == "" {
		return nil, fmt.Errorf("media: base url is required")
	}
	return &FS{root: abs, baseURL: baseURL, folder: folder}, nil
}

// Root returns the absolute media directory.
func (f *FS) Root() string {
	return f.root
}

// Path resolves an object key to its file path, rejecting keys that escape
// the media root (directory traversal).
func (f *FS) Path(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("media: empty key")
	}
	cleaned := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("media: absolute paths not allowed: %s", key)
	}
	abs, err := filepath.Abs(filepath.Join(f.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("media: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("media: path escapes media root: %s", key)
	}
	return abs, nil
}

// Upload atomically writes the object: tmp file → fsync → rename.
func (f *FS) Upload(ctx context.Context, obj Object) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := newKey(f.folder, obj)
	abs, err := f.Path(key)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("media: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".capes-tmp-*")
	if err != nil {
		return "", fmt.Errorf("media: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(obj.Data); err != nil {
		return "", fmt.Errorf("media: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("media: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("media: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return "", fmt.Errorf("media: rename: %w", err)
	}
	success = true
	return joinURL(f.baseURL, filepath.ToSlash(key)), nil
}

// Delete removes the file behind url. A missing file is not an error.
func (f *FS) Delete(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := keyFromURL(f.baseURL, url)
	if err != nil {
		return err
	}
	abs, err := f.Path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("media: delete %s: %w", key, err)
	}
	return nil
}

var _ Store = (*FS)(nil)
