// Package storage implements the Storage Backend surface (component D):
// a keyed blob store the orchestrator core uses for checkpoints, DLQ
// entries, events, and job state. Keys are "/"-separated opaque strings;
// the core assumes atomic overwrite semantics on Put and read-after-write
// consistency within a process, and never holds a backend lock itself.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// Backend is a keyed blob store.
type Backend interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// LocalFS implements Backend on top of an afero.Fs rooted at dir,
// mapping "/"-separated keys to nested paths. Put writes to a temp file
// and renames over the destination so a crash mid-write never leaves a
// partially-written blob visible to a concurrent Get.
type LocalFS struct {
	fs  afero.Fs
	dir string
}

// NewLocalFS constructs a LocalFS backend rooted at dir on fs. Pass
// afero.NewOsFs() for a real filesystem or afero.NewMemMapFs() in tests.
func NewLocalFS(fs afero.Fs, dir string) *LocalFS {
	return &LocalFS{fs: fs, dir: dir}
}

func (b *LocalFS) path(key string) string {
	return filepath.Join(b.dir, filepath.FromSlash(key))
}

func (b *LocalFS) Put(ctx context.Context, key string, data []byte) error {
	dest := b.path(key)
	if err := b.fs.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return NewBlobError("put", key, err)
	}

	tmp := dest + fmt.Sprintf(".tmp-%s", generateULID())
	if err := afero.WriteFile(b.fs, tmp, data, 0o644); err != nil {
		return NewBlobError("put", key, err)
	}

	if err := b.fs.Rename(tmp, dest); err != nil {
		_ = b.fs.Remove(tmp)
		return NewBlobError("put", key, err)
	}

	return nil
}

func (b *LocalFS) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := afero.ReadFile(b.fs, b.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewBlobError("get", key, ErrBlobNotFound)
		}
		return nil, NewBlobError("get", key, err)
	}
	return data, nil
}

func (b *LocalFS) Delete(ctx context.Context, key string) error {
	if err := b.fs.Remove(b.path(key)); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return NewBlobError("delete", key, err)
	}
	return nil
}

func (b *LocalFS) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := afero.Walk(b.fs, b.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(b.dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if strings.Contains(rel, ".tmp-") {
			return nil
		}
		if strings.HasPrefix(rel, prefix) {
			keys = append(keys, rel)
		}
		return nil
	})
	if err != nil {
		return nil, NewBlobError("list", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}
