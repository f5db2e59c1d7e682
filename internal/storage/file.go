package storage

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

const tempPrefix = ".tmp-"

// FileStore keeps objects as files below a local directory. Used for local
// development and testing.
type FileStore struct {
	root string
}

func NewFileStore(root string) (*FileStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving %v", root)
	}
	return &FileStore{root: abs}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func (s *FileStore) URL(key string) string {
	return "file://" + filepath.ToSlash(s.path(key))
}

func (s *FileStore) Exists(ctx context.Context, prefix string) (bool, error) {
	found := false
	err := s.walk(ctx, prefix, func(string) bool {
		found = true
		return false
	})
	return found, err
}

func (s *FileStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.walk(ctx, prefix, func(key string) bool {
		keys = append(keys, key)
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// walk calls fn with every key under prefix until fn returns false.
func (s *FileStore) walk(ctx context.Context, prefix string, fn func(key string) bool) error {
	dir := prefix
	if !strings.HasSuffix(prefix, "/") {
		dir = path.Dir(prefix)
	}
	start := s.path(dir)

	stop := errors.New("stop")
	err := filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, strings.TrimPrefix(prefix, "./")) {
			return nil
		}
		if !fn(key) {
			return stop
		}
		return nil
	})
	switch {
	case err == nil, err == stop:
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return nil
	default:
		return errors.Wrapf(err, "walking %v", start)
	}
}

func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "reading file %v", s.path(key))
	}
	return data, nil
}

// Put writes to a temporary file and hard-links it into place, so readers
// never see a partial object and an existing file is never replaced.
func (s *FileStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst := s.path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrapf(err, "creating directory for %v", dst)
	}

	f, err := os.CreateTemp(filepath.Dir(dst), tempPrefix+"*")
	if err != nil {
		return errors.Wrapf(err, "creating temp file for %v", dst)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return errors.Wrapf(err, "writing %v", tmp)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.Wrapf(err, "syncing %v", tmp)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "closing %v", tmp)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Link(tmp, dst); err != nil {
		if os.IsExist(err) {
			return errors.Wrapf(ErrExists, "writing file %v", dst)
		}
		return errors.Wrapf(err, "linking %v", dst)
	}
	return nil
}
