// Package workspace implements the in-container control plane's workspace
// router (§4.4): sandboxed file and directory operations under a single
// guarded root. Every path is resolved and symlink-checked before any I/O,
// closing the symlink-escape hole the original's prefix-only check leaves
// open (§9 design note, SPEC_FULL.md §4.4 expansion) — no teacher file
// performs path containment, so this check is new, built directly from the
// design note plus Go's standard filepath.EvalSymlinks.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"sandboxrt/internal/model"
)

// Router serves file and directory operations rooted at Base.
type Router struct {
	Base string
}

// New builds a Router rooted at base (normally /workspace).
func New(base string) *Router {
	return &Router{Base: base}
}

// resolve joins base + rel, resolves any symlinks in the *existing* portion
// of the path, and verifies the result stays under Base. When rel does not
// yet exist (e.g. a file about to be created), symlinks are resolved against
// the parent directory instead and the leaf name re-appended.
func (r *Router) resolve(rel string) (string, error) {
	joined := filepath.Join(r.Base, rel)

	resolved, err := filepath.EvalSymlinks(joined)
	if err != nil {
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("workspace: resolve %s: %w", rel, err)
		}
		parent, leaf := filepath.Split(joined)
		resolvedParent, perr := filepath.EvalSymlinks(parent)
		if perr != nil {
			if os.IsNotExist(perr) {
				resolvedParent = filepath.Clean(parent)
			} else {
				return "", fmt.Errorf("workspace: resolve parent of %s: %w", rel, perr)
			}
		}
		resolved = filepath.Join(resolvedParent, leaf)
	}

	base, err := filepath.EvalSymlinks(r.Base)
	if err != nil {
		base = filepath.Clean(r.Base)
	}
	if resolved != base && !strings.HasPrefix(resolved, base+string(filepath.Separator)) {
		return "", fmt.Errorf("workspace: %w: %s", model.ErrWorkspaceEscape, rel)
	}
	return resolved, nil
}

// ReadFile returns the contents of the file at filePath.
func (r *Router) ReadFile(filePath string) ([]byte, error) {
	path, err := r.resolve(filePath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("workspace: read %s: %w", filePath, err)
	}
	return data, nil
}

// WriteFile creates or overwrites the file at filePath with data.
func (r *Router) WriteFile(filePath string, data []byte) error {
	path, err := r.resolve(filePath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("workspace: mkdir %s: %w", filepath.Dir(filePath), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("workspace: write %s: %w", filePath, err)
	}
	return nil
}

// DeleteFile removes the file at filePath.
func (r *Router) DeleteFile(filePath string) error {
	path, err := r.resolve(filePath)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("workspace: delete %s: %w", filePath, err)
	}
	return nil
}

// Entry is one item in a recursive directory listing.
type Entry struct {
	Type string `json:"type"` // "file" | "directory"
	Path string `json:"path"` // relative to Base
}

// Stats summarizes a recursive listing.
type Stats struct {
	TotalFiles       int `json:"total_files"`
	TotalDirectories int `json:"total_directories"`
}

// ListDirectories recursively lists directory under Base, returning every
// entry plus aggregate statistics.
func (r *Router) ListDirectories(directory string) ([]Entry, Stats, error) {
	path, err := r.resolve(directory)
	if err != nil {
		return nil, Stats{}, err
	}

	var entries []Entry
	var stats Stats
	err = filepath.Walk(path, func(walked string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if walked == path {
			return nil
		}
		rel, relErr := filepath.Rel(r.Base, walked)
		if relErr != nil {
			return relErr
		}
		if info.IsDir() {
			stats.TotalDirectories++
			entries = append(entries, Entry{Type: "directory", Path: rel})
		} else {
			stats.TotalFiles++
			entries = append(entries, Entry{Type: "file", Path: rel})
		}
		return nil
	})
	if err != nil {
		return nil, Stats{}, fmt.Errorf("workspace: list %s: %w", directory, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, stats, nil
}

// CreateDirectory creates directoryPath (and any missing parents).
func (r *Router) CreateDirectory(directoryPath string) error {
	path, err := r.resolve(directoryPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("workspace: mkdir %s: %w", directoryPath, err)
	}
	return nil
}

// DeleteDirectory removes directoryPath; recursive controls whether non-empty
// directories are allowed.
func (r *Router) DeleteDirectory(directoryPath string, recursive bool) error {
	path, err := r.resolve(directoryPath)
	if err != nil {
		return err
	}
	if recursive {
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("workspace: rmdir -r %s: %w", directoryPath, err)
		}
		return nil
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("workspace: rmdir %s: %w", directoryPath, err)
	}
	return nil
}

// Move renames/moves src to dst, both workspace-relative.
func (r *Router) Move(src, dst string) error {
	srcPath, err := r.resolve(src)
	if err != nil {
		return err
	}
	dstPath, err := r.resolve(dst)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return fmt.Errorf("workspace: mkdir %s: %w", filepath.Dir(dst), err)
	}
	if err := os.Rename(srcPath, dstPath); err != nil {
		return fmt.Errorf("workspace: move %s -> %s: %w", src, dst, err)
	}
	return nil
}

// Copy duplicates src to dst, both workspace-relative. Directories are
// copied recursively.
func (r *Router) Copy(src, dst string) error {
	srcPath, err := r.resolve(src)
	if err != nil {
		return err
	}
	dstPath, err := r.resolve(dst)
	if err != nil {
		return err
	}

	info, err := os.Stat(srcPath)
	if err != nil {
		return fmt.Errorf("workspace: stat %s: %w", src, err)
	}
	if !info.IsDir() {
		data, err := os.ReadFile(srcPath)
		if err != nil {
			return fmt.Errorf("workspace: read %s: %w", src, err)
		}
		if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
			return fmt.Errorf("workspace: mkdir %s: %w", filepath.Dir(dst), err)
		}
		return os.WriteFile(dstPath, data, 0o644)
	}

	return filepath.Walk(srcPath, func(walked string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(srcPath, walked)
		if relErr != nil {
			return relErr
		}
		target := filepath.Join(dstPath, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, readErr := os.ReadFile(walked)
		if readErr != nil {
			return readErr
		}
		return os.WriteFile(target, data, 0o644)
	})
}
