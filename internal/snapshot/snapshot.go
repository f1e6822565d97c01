// Package snapshot provides source snapshots which can be checked out into a
// job workspace.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Dir is a snapshot of a local directory tree.
type Dir struct {
	Path string
}

// Checkout copies the directory content into dir. Symlinks are not
// followed, dir must exist.
func (d Dir) Checkout(ctx context.Context, dir string) error {
	if d.Path == "" {
		return errors.New("snapshot path is empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(d.Path)
	if err != nil {
		return fmt.Errorf("checkout: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("checkout: %s is not a directory", d.Path)
	}
	if err := os.CopyFS(dir, os.DirFS(d.Path)); err != nil {
		return fmt.Errorf("checkout %s: %w", d.Path, err)
	}
	return nil
}

func (d Dir) String() string {
	return "dir:" + d.Path
}
