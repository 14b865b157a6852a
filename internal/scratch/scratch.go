// Package scratch manages the ephemeral local working directories a job uses
// while rendering images.
//
// All operations are best-effort on the removal side: a directory that cannot
// be removed is logged and left behind rather than failing a job whose
// artifacts may already be uploaded.
package scratch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

const dirPerm os.FileMode = 0o750

// Manager creates and destroys scratch directories below a fixed root.
type Manager struct {
	root string
}

// NewManager returns a Manager rooted at root. An empty root means the OS
// temp directory.
func NewManager(root string) *Manager {
	if root == "" {
		root = os.TempDir()
	}
	return &Manager{root: filepath.Clean(root)}
}

// Root returns the directory all scratch paths are resolved under.
func (m *Manager) Root() string {
	return m.root
}

// Path joins elem under the scratch root. It fails when the result would
// escape the root (e.g. a job filePath of "../etc").
func (m *Manager) Path(elem ...string) (string, error) {
	joined := filepath.Join(append([]string{m.root}, elem...)...)
	rel, err := filepath.Rel(m.root, joined)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("scratch path %q escapes root %s", filepath.Join(elem...), m.root)
	}
	return joined, nil
}

// CreateOrReset makes path exist as a directory. With overwrite set, any
// existing content is removed first; a removal failure is logged and the
// create still proceeds. Calling it repeatedly is safe.
func (m *Manager) CreateOrReset(path string, overwrite bool) error {
	if overwrite {
		if err := os.RemoveAll(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Could not remove scratch directory, continuing")
		}
	}
	if err := os.MkdirAll(path, dirPerm); err != nil {
		return fmt.Errorf("create scratch directory %s: %w", path, err)
	}
	log.Debug().Str("path", path).Bool("overwrite", overwrite).Msg("Scratch directory ready")
	return nil
}

// RemoveRecursive deletes path and everything below it. Failures are logged,
// never returned.
func (m *Manager) RemoveRecursive(path string) {
	if err := os.RemoveAll(path); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to remove scratch directory")
		return
	}
	log.Debug().Str("path", path).Msg("Scratch directory removed")
}
