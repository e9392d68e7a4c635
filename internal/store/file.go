package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"internwatch/internal/domain"
)

const (
	SnapshotFileName = "snapshot.json"
	etagFileName     = ".etag"
)

// File keeps the snapshot as an indented JSON array next to a plain-text
// ETag file. Writes take an exclusive lock file and replace the snapshot by
// rename, leaving the previous one as snapshot.json.bak.
type File struct {
	path     string
	etagPath string
	lock     *flock.Flock
}

func NewFile(dir string) (*File, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("snapshot dir cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	path := filepath.Join(dir, SnapshotFileName)
	return &File{
		path:     path,
		etagPath: filepath.Join(dir, etagFileName),
		lock:     flock.New(path + ".lock"),
	}, nil
}

func (f *File) Path() string { return f.path }

func (f *File) Load(_ context.Context) ([]domain.Listing, error) {
	b, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return []domain.Listing{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var out []domain.Listing
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", f.path, err)
	}
	if out == nil {
		out = []domain.Listing{}
	}
	return out, nil
}

func (f *File) Save(ctx context.Context, listings []domain.Listing) error {
	if listings == nil {
		listings = []domain.Listing{}
	}
	b, err := json.MarshalIndent(listings, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	b = append(b, '\n')

	return f.withLock(ctx, func() error {
		return writeAtomic(f.path, b)
	})
}

func (f *File) LoadETag(_ context.Context) (string, error) {
	b, err := os.ReadFile(f.etagPath)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read etag: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func (f *File) SaveETag(ctx context.Context, etag string) error {
	return f.withLock(ctx, func() error {
		return writeAtomic(f.etagPath, []byte(etag))
	})
}

func (f *File) Close() error { return nil }

func (f *File) withLock(ctx context.Context, fn func() error) error {
	ok, err := f.lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock %s: %w", f.lock.Path(), err)
	}
	if !ok {
		return fmt.Errorf("lock %s: not acquired", f.lock.Path())
	}
	defer func() { _ = f.lock.Unlock() }()
	return fn()
}

// renameFile is swapped in tests.
var renameFile = os.Rename

// writeAtomic replaces path by rename so readers see the old or the new
// content, never neither. The old content is kept as path.bak.
func writeAtomic(path string, b []byte) error {
	tmp := path + ".tmp"
	bak := path + ".bak"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("sync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}

	if err := backup(path, bak); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	if err := renameFile(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// backup links (or copies) path to bak. A missing path is not an error.
func backup(path, bak string) error {
	_ = os.Remove(bak)
	err := os.Link(path, bak)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}

	b, rerr := os.ReadFile(path)
	if errors.Is(rerr, os.ErrNotExist) {
		return nil
	}
	if rerr != nil {
		return fmt.Errorf("backup %s: %w", path, rerr)
	}
	if err := os.WriteFile(bak, b, 0o644); err != nil {
		return fmt.Errorf("backup %s: %w", path, err)
	}
	return nil
}
