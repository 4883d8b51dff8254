package state

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
)

// DefaultDirName is the state directory created under the home directory
// when no directory is configured.
const DefaultDirName = ".gleaner"

// FileManager persists state as flat files in a directory: the checkpoint
// as tab-separated fields in last_state.txt and the marker in
// last_harvest.txt. Writes go to a temp file in the same directory followed
// by a rename, so a crash leaves either the old file or the new one.
type FileManager struct {
	dir string
}

// NewFileManager creates a file-backed manager rooted at dir, creating the
// directory if needed.
func NewFileManager(dir string) (*FileManager, error) {
	if dir == "" {
		home, err := homedir.Dir()
		if err != nil {
			return nil, fmt.Errorf("state: cannot resolve home directory: %w", err)
		}
		dir = filepath.Join(home, DefaultDirName)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("state: cannot create %s: %w", dir, err)
	}
	return &FileManager{dir: dir}, nil
}

// Dir returns the state directory.
func (m *FileManager) Dir() string { return m.dir }

// StatePath returns the checkpoint file path.
func (m *FileManager) StatePath() string { return filepath.Join(m.dir, StateFileName) }

// DatePath returns the marker file path.
func (m *FileManager) DatePath() string { return filepath.Join(m.dir, DateFileName) }

// LoadState implements Manager.
func (m *FileManager) LoadState(_ context.Context) ([]string, error) {
	data, err := os.ReadFile(m.StatePath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("state: read %s: %w", StateFileName, err)
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\t"), nil
}

// SaveState implements Manager. The four fields are joined with tabs and
// written via temp-then-rename.
func (m *FileManager) SaveState(_ context.Context, set, token, start, end string) error {
	line := strings.Join([]string{set, token, start, end}, "\t") + "\n"
	return m.writeAtomic(m.StatePath(), line)
}

// ClearState implements Manager.
func (m *FileManager) ClearState(_ context.Context) error {
	err := os.Remove(m.StatePath())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("state: remove %s: %w", StateFileName, err)
	}
	return nil
}

// LoadDate implements Manager.
func (m *FileManager) LoadDate(_ context.Context) (string, error) {
	data, err := os.ReadFile(m.DatePath())
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("state: read %s: %w", DateFileName, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// SaveDate implements Manager.
func (m *FileManager) SaveDate(_ context.Context, date string) error {
	return m.writeAtomic(m.DatePath(), date+"\n")
}

// writeAtomic writes content to a temp file in the target directory and
// renames it over path. Rename within one directory is atomic on POSIX.
func (m *FileManager) writeAtomic(path, content string) error {
	tmp, err := os.CreateTemp(m.dir, ".gleaner-state-")
	if err != nil {
		return fmt.Errorf("state: create temp file: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return fmt.Errorf("state: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return fmt.Errorf("state: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("state: close temp file: %w", err)
	}
	if err := os.Rename(name, path); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("state: rename into place: %w", err)
	}
	return nil
}

// Verify FileManager implements Manager.
var _ Manager = (*FileManager)(nil)
