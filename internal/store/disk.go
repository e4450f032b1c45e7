package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chtzvt/rewardd/internal/secrets"
	"github.com/google/uuid"
)

type DiskStore struct {
	baseDir string
}

func NewDiskStore(opts map[string]interface{}, _ *secrets.Store) (Store, error) {
	baseDir, ok := opts["path"].(string)
	if !ok || baseDir == "" {
		return nil, fmt.Errorf("disk store requires 'path' option")
	}
	return &DiskStore{baseDir: baseDir}, nil
}

func (d *DiskStore) List(ctx context.Context, prefix string) ([]Object, error) {
	var objects []Object
	err := filepath.WalkDir(d.baseDir, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.baseDir, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		objects = append(objects, Object{Key: key, Size: info.Size()})
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

func (d *DiskStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return os.Open(d.fullPath(key))
}

func (d *DiskStore) Put(ctx context.Context, key string, body io.Reader) error {
	fullPath := d.fullPath(key)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return err
	}
	// Write-then-rename so a crashed writer never leaves a visible partial
	// object behind.
	tmp := fullPath + ".tmp-" + uuid.NewString()
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, fullPath)
}

func (d *DiskStore) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if err := os.Remove(d.fullPath(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (d *DiskStore) fullPath(key string) string {
	return filepath.Join(d.baseDir, filepath.FromSlash(key))
}

func init() {
	Register("disk", NewDiskStore)
}
