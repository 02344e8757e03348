// Package store implements the object storage engine: buckets, objects,
// prefix/delimiter listings, byte-range reads, and multipart uploads.
// Metadata lives in an embedded SQLite database; payload bytes live behind
// the BlobStore collaborator. The engine receives already-parsed operation
// requests and reports failures as the sentinel errors in errors.go; it has
// no knowledge of HTTP or wire formats.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations
var migrationsFS embed.FS

// DefaultMinPartSize is the size floor applied to every part except the
// last when completing a multipart upload, matching the conventional
// 5 MiB minimum.
const DefaultMinPartSize = 5 * 1024 * 1024

// Config holds the tunables for a Store.
type Config struct {
	// DataDir is the root directory for the metadata database and, when no
	// explicit blob store is supplied, the payload files.
	DataDir string

	// Blobs overrides the payload backend. When nil, a LocalBlobStore
	// rooted under DataDir is used.
	Blobs BlobStore

	// MinPartSize overrides the multipart minimum part size. Zero selects
	// DefaultMinPartSize.
	MinPartSize int64
}

// Store owns all engine state: the metadata database, the blob backend, and
// the in-flight multipart session locks. Construct one per engine instance
// with NewStore; it is safe for concurrent use.
type Store struct {
	cfg   Config
	db    *sql.DB
	blobs BlobStore

	mu          sync.Mutex
	uploadLocks map[string]*sync.RWMutex
}

// NewStore initializes the metadata database, applies schema migrations,
// and returns a ready Store.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DataDir == "" {
		return nil, errors.New("DataDir must not be empty")
	}
	if cfg.MinPartSize == 0 {
		cfg.MinPartSize = DefaultMinPartSize
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "metadata.sqlite")
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	if cfg.Blobs == nil {
		cfg.Blobs = NewLocalBlobStore(filepath.Join(cfg.DataDir, "blobs"))
	}

	return &Store{
		cfg:         cfg,
		db:          db,
		blobs:       cfg.Blobs,
		uploadLocks: make(map[string]*sync.RWMutex),
	}, nil
}

// Close releases the resources held by the Store.
func (s *Store) Close() error {
	return s.db.Close()
}

// initSchema applies all SQL files in the embedded migrations directory in
// lexicographical order.
func initSchema(ctx context.Context, db *sql.DB) error {
	return fs.WalkDir(migrationsFS, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		content, readError := migrationsFS.ReadFile(path)
		if readError != nil {
			return fmt.Errorf("error reading SQL file: %w", readError)
		}

		slog.Debug("Running migration", "path", path)
		_, execError := db.ExecContext(ctx, string(content))
		return execError
	})
}

// withTransaction runs a function within a database transaction.
func withTransaction(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}

	return nil
}

// backendError wraps a metadata or blob I/O fault so callers can separate
// infrastructure failures from semantic errors with errors.Is.
func backendError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrBackendUnavailable, op, err)
}

// objectBlobID returns the blob id for an object payload. Payloads are
// content-addressed within their bucket, fanned out by the first two hash
// characters the way on-disk layouts usually shard.
func objectBlobID(bucket string, hashHex string) string {
	if len(hashHex) < 2 {
		return bucket + "/" + hashHex
	}
	return bucket + "/" + hashHex[:2] + "/" + hashHex
}

// uploadLock returns the lock that serializes terminal transitions of a
// multipart session against its in-flight part uploads.
func (s *Store) uploadLock(uploadID string) *sync.RWMutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.uploadLocks[uploadID]
	if !ok {
		lock = &sync.RWMutex{}
		s.uploadLocks[uploadID] = lock
	}
	return lock
}

// releaseUploadLock discards the lock for a session that no longer
// exists, terminated or never created.
func (s *Store) releaseUploadLock(uploadID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.uploadLocks, uploadID)
}
