// Package mount implements the manager's mount provisioning (§4.2): a
// directory per session for the local filesystem backend, or an
// object-store prefix for the OSS backend, plus readonly mount propagation.
// No mount-provisioning code exists in the teacher (agents/shared/docker's
// workspace.go solves a different problem — host-path mirroring for a
// developer's own machine, not per-session sandbox storage) so this package
// is new, grounded on the original's storage_folder/OSS semantics in
// original_source/.../server/config.py.
package mount

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/minio/minio-go/v7"
)

// Provisioner materializes and reclaims a session's /workspace contents.
type Provisioner interface {
	// Provision returns the mount_dir or storage_path to record on the
	// Container. Local keeps an existing session directory's contents;
	// ObjectStore downloads nothing.
	Provision(ctx context.Context, sessionID string) (path string, err error)
	// Release uploads (object-store) or simply leaves in place (local) the
	// session's workspace contents. Manager.Release does not call it; a
	// release that does not return to the pool calls Delete.
	Release(ctx context.Context, sessionID, localWorkspacePath string) error
	// Delete permanently removes the session's stored contents.
	Delete(ctx context.Context, sessionID string) error
	// Reset wipes a session's existing contents and recreates a fresh, empty
	// workspace under the same sessionID, returning the path/prefix the
	// caller should re-copy ReadonlyMounts into, exactly like a fresh
	// Provision — used when a container is returned to the warm pool so the
	// next occupant doesn't inherit (or lose) the previous session's files.
	Reset(ctx context.Context, sessionID string) (path string, err error)
}

// Local provisions a plain directory per session under a configured base,
// per §4.2 "a directory per session under a configured base; lifetime
// equals container lifetime."
type Local struct {
	BaseDir string
}

func (l *Local) Provision(_ context.Context, sessionID string) (string, error) {
	dir := filepath.Join(l.BaseDir, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mount: mkdir %s: %w", dir, err)
	}
	return dir, nil
}

func (l *Local) Release(_ context.Context, _ string, _ string) error {
	return nil // the directory already is the live, durable copy
}

func (l *Local) Delete(_ context.Context, sessionID string) error {
	dir := filepath.Join(l.BaseDir, sessionID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("mount: remove %s: %w", dir, err)
	}
	return nil
}

// Reset removes and recreates the session directory, leaving an empty,
// bind-mountable workspace behind rather than a dangling path.
func (l *Local) Reset(_ context.Context, sessionID string) (string, error) {
	dir := filepath.Join(l.BaseDir, sessionID)
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("mount: reset remove %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mount: reset mkdir %s: %w", dir, err)
	}
	return dir, nil
}

// ObjectStore provisions a prefix per session in an S3-compatible bucket —
// §4.2 "Object-store-backed" mount provisioning. Release uploads a local
// directory under the prefix and Restore downloads it again; Provision does
// neither.
type ObjectStore struct {
	Client *minio.Client
	Bucket string
	Prefix string // global prefix, e.g. "sandboxrt/mounts"
}

func (o *ObjectStore) sessionPrefix(sessionID string) string {
	return filepath.ToSlash(filepath.Join(o.Prefix, sessionID))
}

// Provision returns the object-store prefix for sessionID. It creates no
// local directory and does not restore previously uploaded contents.
func (o *ObjectStore) Provision(ctx context.Context, sessionID string) (string, error) {
	return o.sessionPrefix(sessionID), nil
}

// Restore downloads every object under the session prefix into
// localWorkspacePath. The manager does not call it.
func (o *ObjectStore) Restore(ctx context.Context, sessionID, localWorkspacePath string) error {
	prefix := o.sessionPrefix(sessionID) + "/"
	for obj := range o.Client.ListObjects(ctx, o.Bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return fmt.Errorf("mount: list objects: %w", obj.Err)
		}
		rel := obj.Key[len(prefix):]
		if rel == "" {
			continue
		}
		dest := filepath.Join(localWorkspacePath, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("mount: mkdir %s: %w", dest, err)
		}
		reader, err := o.Client.GetObject(ctx, o.Bucket, obj.Key, minio.GetObjectOptions{})
		if err != nil {
			return fmt.Errorf("mount: get object %s: %w", obj.Key, err)
		}
		f, err := os.Create(dest)
		if err != nil {
			reader.Close()
			return fmt.Errorf("mount: create %s: %w", dest, err)
		}
		_, copyErr := io.Copy(f, reader)
		reader.Close()
		f.Close()
		if copyErr != nil {
			return fmt.Errorf("mount: download %s: %w", obj.Key, copyErr)
		}
	}
	return nil
}

func (o *ObjectStore) Release(ctx context.Context, sessionID, localWorkspacePath string) error {
	prefix := o.sessionPrefix(sessionID)
	return filepath.Walk(localWorkspacePath, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(localWorkspacePath, path)
		if err != nil {
			return fmt.Errorf("mount: rel path: %w", err)
		}
		key := prefix + "/" + filepath.ToSlash(rel)
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("mount: read %s: %w", path, err)
		}
		_, err = o.Client.PutObject(ctx, o.Bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
		if err != nil {
			return fmt.Errorf("mount: upload %s: %w", key, err)
		}
		return nil
	})
}

// Reset clears every object under the session prefix and returns that
// prefix, mirroring Provision for a pooled container being reused.
func (o *ObjectStore) Reset(ctx context.Context, sessionID string) (string, error) {
	if err := o.Delete(ctx, sessionID); err != nil {
		return "", fmt.Errorf("mount: reset %s: %w", sessionID, err)
	}
	return o.sessionPrefix(sessionID), nil
}

func (o *ObjectStore) Delete(ctx context.Context, sessionID string) error {
	prefix := o.sessionPrefix(sessionID) + "/"
	objectsCh := o.Client.ListObjects(ctx, o.Bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true})
	for obj := range objectsCh {
		if obj.Err != nil {
			return fmt.Errorf("mount: list for delete: %w", obj.Err)
		}
		if err := o.Client.RemoveObject(ctx, o.Bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("mount: remove object %s: %w", obj.Key, err)
		}
	}
	return nil
}

// CopyReadonlyMounts copies every host path in mounts (host path -> relative
// name) into destDir, verbatim, per §4.2's "a host-path->container-path map
// is copied into every container unmodified." The manager calls it for every
// driver, so the copy lands in the session's provisioned directory; no
// driver bind-mounts the readonly paths directly.
func CopyReadonlyMounts(mounts map[string]string, destDir string) error {
	for hostPath, relName := range mounts {
		dest := filepath.Join(destDir, relName)
		info, err := os.Stat(hostPath)
		if err != nil {
			return fmt.Errorf("mount: stat readonly mount %s: %w", hostPath, err)
		}
		if info.IsDir() {
			if err := copyDir(hostPath, dest); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("mount: mkdir %s: %w", dest, err)
		}
		data, err := os.ReadFile(hostPath)
		if err != nil {
			return fmt.Errorf("mount: read %s: %w", hostPath, err)
		}
		if err := os.WriteFile(dest, data, 0o444); err != nil {
			return fmt.Errorf("mount: write %s: %w", dest, err)
		}
	}
	return nil
}

func copyDir(src, dest string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o444)
	})
}
