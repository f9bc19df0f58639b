// Package blob stores downloaded documents, manifests and uploaded key lists on the local filesystem.
//
// All access goes through an os.Root opened on the base directory, so a path can never resolve
// outside it (including via symlinks). Locators returned by PersistBlob are the slash separated
// paths relative to the base directory.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/information-sharing-networks/nfce-downloader/internal/nfce"
)

type FileStore struct {
	root *os.Root
	dir  string
}

// NewFileStore creates dir when needed and opens it as the store root
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, nfce.WrapStorageError(err, fmt.Sprintf("failed to create blob directory %s", dir))
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, nfce.WrapStorageError(err, fmt.Sprintf("failed to open blob directory %s", dir))
	}
	return &FileStore{root: root, dir: dir}, nil
}

func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) Close() error {
	return s.root.Close()
}

func cleanLocator(p string) (string, error) {
	if p == "" || strings.Contains(p, `\`) {
		return "", nfce.NewValidationError(fmt.Sprintf("invalid blob path %q", p))
	}
	cleaned := path.Clean(p)
	if path.IsAbs(cleaned) || cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", nfce.NewValidationError(fmt.Sprintf("invalid blob path %q", p))
	}
	return cleaned, nil
}

// PersistBlob writes data to p (relative to the store root), replacing any existing blob.
// The data is written to a temporary file first so readers never see a partial document.
func (s *FileStore) PersistBlob(ctx context.Context, p string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	locator, err := cleanLocator(p)
	if err != nil {
		return "", err
	}

	if dir := path.Dir(locator); dir != "." {
		if err := s.root.MkdirAll(dir, 0o750); err != nil {
			return "", nfce.WrapStorageError(err, fmt.Sprintf("failed to create directory for %s", locator))
		}
	}

	tmp := locator + ".tmp"
	if err := s.root.WriteFile(tmp, data, 0o640); err != nil {
		return "", nfce.WrapStorageError(err, fmt.Sprintf("failed to write %s", locator))
	}
	if err := s.root.Rename(tmp, locator); err != nil {
		_ = s.root.Remove(tmp)
		return "", nfce.WrapStorageError(err, fmt.Sprintf("failed to write %s", locator))
	}
	return locator, nil
}

func (s *FileStore) ReadBlob(ctx context.Context, locator string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cleaned, err := cleanLocator(locator)
	if err != nil {
		return nil, err
	}

	data, err := s.root.ReadFile(cleaned)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nfce.NewNotFoundError(fmt.Sprintf("blob %s not found", cleaned))
		}
		return nil, nfce.WrapStorageError(err, fmt.Sprintf("failed to read %s", cleaned))
	}
	return data, nil
}
