package rest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var errUnsafePath = errors.New("path must be relative and stay inside the data directory")

// dataPath resolves a path from a request below tools.data_dir. Absolute
// paths and paths escaping the directory are rejected. With create the
// parent directories are made.
func (s *Server) dataPath(p string, create bool) (string, error) {
	if !filepath.IsLocal(p) {
		return "", fmt.Errorf("%w: %q", errUnsafePath, p)
	}
	full := filepath.Join(s.lm.Config().Tools.DataDir, p)
	if create {
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return "", fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	return full, nil
}
