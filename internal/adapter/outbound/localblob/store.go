// Package localblob stores uploaded files on the local filesystem for
// self-hosted deployments that run without Cloud Storage.
package localblob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/medicos-health/medigate/internal/port/outbound"
)

// Store writes blobs under a root directory. The returned URI is
// file://<absolute-path>. Content type and metadata are not persisted;
// the document store carries those alongside the file reference.
type Store struct {
	root string
}

var _ outbound.BlobStore = (*Store)(nil)

// New creates a store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve blob dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &Store{root: abs}, nil
}

// Put writes data to path under the root and returns its file:// URI.
// Path traversal outside the root is rejected.
func (s *Store) Put(_ context.Context, path string, data []byte, _ string, _ map[string]string) (string, error) {
	clean := filepath.Clean(path)
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid blob path: %q", path)
	}

	full := filepath.Join(s.root, clean)
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", fmt.Errorf("create blob subdir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o640); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	return "file://" + full, nil
}
