package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	LF   = "\n"
	CRLF = "\r\n"
)

// Manager creates ephemeral job workspaces below a root directory.
type Manager struct {
	root string
}

// New returns a Manager creating workspaces in root, an empty root means
// os.TempDir.
func New(root string) Manager {
	return Manager{root: root}
}

func (m Manager) Root() string {
	if m.root == "" {
		return os.TempDir()
	}
	return m.root
}

// Create makes a new uniquely named workspace directory and returns its
// absolute path.
func (m Manager) Create() (string, error) {
	return m.CreateNamed("workspace")
}

// CreateNamed is like Create, but the directory name starts with prefix.
func (m Manager) CreateNamed(prefix string) (string, error) {
	if err := os.MkdirAll(m.Root(), 0o755); err != nil {
		return "", fmt.Errorf("creating workspace root: %w", err)
	}
	dir, err := os.MkdirTemp(m.Root(), prefix)
	if err != nil {
		return "", fmt.Errorf("creating workspace: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("creating workspace: %w", err)
	}
	return abs, nil
}

// WriteScript writes lines joined by terminator into dir/name. Every line,
// the last one included, is followed by the terminator. Returns the path of
// the written file.
func WriteScript(dir, name string, lines []string, terminator string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid script name %q", name)
	}
	var sb strings.Builder
	for _, line := range lines {
		sb.WriteString(line)
		sb.WriteString(terminator)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(sb.String()), 0o755); err != nil {
		return "", fmt.Errorf("writing script: %w", err)
	}
	return path, nil
}

// Destroy recursively removes the workspace. Removing a workspace which does
// not exist is not an error.
func Destroy(dir string) error {
	if dir == "" {
		return errors.New("empty workspace path")
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("deleting workspace %s: %w", dir, err)
	}
	return nil
}
