// Package store persists the last notified snapshot of listings and the
// ETag of the document it came from.
package store

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"internwatch/internal/domain"
)

const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"

	defaultSQLiteName = "internwatch.db"
)

// Store is a snapshot backend.
type Store interface {
	Load(ctx context.Context) ([]domain.Listing, error)
	Save(ctx context.Context, listings []domain.Listing) error
	LoadETag(ctx context.Context) (string, error)
	SaveETag(ctx context.Context, etag string) error
	Close() error
}

// Open returns the backend named by driver, rooted in dataDir. path
// overrides the default location (a directory for "file", a database file
// for "sqlite"); relative paths are resolved against dataDir.
func Open(driver, dataDir, path string) (Store, error) {
	resolve := func(def string) string {
		p := strings.TrimSpace(path)
		if p == "" {
			return filepath.Join(dataDir, def)
		}
		if !filepath.IsAbs(p) {
			p = filepath.Join(dataDir, p)
		}
		return p
	}

	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverFile:
		return NewFile(resolve("."))
	case DriverSQLite:
		return OpenSQLite(resolve(defaultSQLiteName))
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
