// Package workspace provisions the isolated directory a job instance runs in.
// Every instance gets a fresh tree under a run-scoped root, and the tree is
// removed unconditionally when the instance completes.
package workspace

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Workspace is the per-job working area. SourceDir is where the checkout
// step places the repository copy.
type Workspace struct {
	Root string
}

// New creates a fresh workspace for the given job key under parent. The key
// is sanitized into a path segment; a pre-existing directory for the same key
// is an error, since workspaces must never be shared or reused.
func New(parent, key string) (*Workspace, error) {
	root := filepath.Join(parent, sanitize(key))
	if _, err := os.Stat(root); err == nil {
		return nil, fmt.Errorf("workspace %s already exists", root)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating workspace %s: %w", root, err)
	}
	return &Workspace{Root: root}, nil
}

// SourceDir returns the directory the source tree is checked out into.
func (w *Workspace) SourceDir() string {
	return filepath.Join(w.Root, "src")
}

// Remove tears the workspace down. Called unconditionally at job completion.
func (w *Workspace) Remove() error {
	return os.RemoveAll(w.Root)
}

// CopyTree copies a local source tree into dst, used for checkouts from a
// local path. Symlinks and VCS metadata are not followed.
func CopyTree(dst, src string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		switch {
		case info.IsDir():
			return os.MkdirAll(target, 0o755)
		case info.Mode().IsRegular():
			return copyFile(target, path, info.Mode())
		default:
			// Sockets, devices and symlinks have no business in a checkout.
			return nil
		}
	})
}

func copyFile(dst, src string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// sanitize turns a job key like "ubuntu-20.04/3.9" into a single safe path
// segment.
func sanitize(key string) string {
	r := strings.NewReplacer("/", "-", "\\", "-", ":", "-", " ", "-")
	return r.Replace(key)
}
