// Package storage reads source documents from a directory tree and watches
// it for new arrivals.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/custodia-labs/nexus/internal/core/domain"
	"github.com/custodia-labs/nexus/internal/core/ports/driven"
	"github.com/custodia-labs/nexus/internal/extractors"
)

var _ driven.ObjectStore = (*FileStore)(nil)

// DefaultMaxObjectSize caps how much of a single file is read.
const DefaultMaxObjectSize int64 = 100 << 20

// FileStore is an ObjectStore over a local directory. Keys are slash-separated
// paths relative to the root.
type FileStore struct {
	root    string
	maxSize int64
}

// NewFileStore opens root, creating it if needed.
func NewFileStore(root string, maxSize int64) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: storage root required", domain.ErrInvalidInput)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxObjectSize
	}
	return &FileStore{root: abs, maxSize: maxSize}, nil
}

// Root returns the absolute root directory.
func (s *FileStore) Root() string {
	return s.root
}

// Get reads the object at key.
func (s *FileStore) Get(ctx context.Context, key string) (*driven.Object, error) {
	p, err := s.resolve(key)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: object %s", domain.ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", domain.ErrInvalidInput, key)
	}
	if info.Size() > s.maxSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", domain.ErrInvalidInput, key, info.Size(), s.maxSize)
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}

	return &driven.Object{
		Key:      key,
		Data:     data,
		MimeType: extractors.DetectMIMEType(key, data),
		ModTime:  info.ModTime(),
	}, nil
}

// List walks the root and returns every regular file, sorted by key.
// Hidden files and directories are skipped.
func (s *FileStore) List(ctx context.Context) ([]driven.ObjectInfo, error) {
	var infos []driven.ObjectInfo
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if p == s.root {
			return nil
		}
		if isHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		key, err := s.keyFor(p)
		if err != nil {
			return err
		}
		infos = append(infos, driven.ObjectInfo{Key: key, Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.root, err)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// Ping checks that the root is still a readable directory.
func (s *FileStore) Ping(ctx context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("%w: storage root: %v", domain.ErrServiceUnavailable, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: storage root is not a directory", domain.ErrServiceUnavailable)
	}
	return nil
}

// resolve maps a key to a path inside the root, rejecting escapes.
func (s *FileStore) resolve(key string) (string, error) {
	slashed := strings.ReplaceAll(key, "\\", "/")
	clean := path.Clean("/" + slashed)
	if key == "" || clean == "/" {
		return "", fmt.Errorf("%w: empty object key", domain.ErrInvalidInput)
	}
	if !fs.ValidPath(strings.TrimPrefix(clean, "/")) || slices.Contains(strings.Split(slashed, "/"), "..") {
		return "", fmt.Errorf("%w: invalid object key %q", domain.ErrInvalidInput, key)
	}
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

func (s *FileStore) keyFor(p string) (string, error) {
	rel, err := filepath.Rel(s.root, p)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") ||
		strings.HasSuffix(name, ".part") || strings.HasSuffix(name, ".tmp")
}
