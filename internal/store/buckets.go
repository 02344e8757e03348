package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Bucket is a top-level named container for objects.
type Bucket struct {
	Name      string
	CreatedAt time.Time
}

// CreateBucket inserts a new bucket with an empty object namespace. The
// name must be globally unique; a taken name fails with
// ErrBucketAlreadyExists.
func (s *Store) CreateBucket(ctx context.Context, name string) (Bucket, error) {
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO buckets(name, created_at) VALUES(?, ?)`,
		name, now,
	)
	if err != nil {
		return Bucket{}, backendError("create bucket", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return Bucket{}, backendError("create bucket", err)
	}
	if rows == 0 {
		return Bucket{}, fmt.Errorf("bucket %q: %w", name, ErrBucketAlreadyExists)
	}

	return Bucket{Name: name, CreatedAt: now}, nil
}

// DeleteBucket removes a bucket. The bucket must exist and must own no
// objects; deleting a non-empty bucket fails with ErrBucketNotEmpty and
// never cascades into its objects.
func (s *Store) DeleteBucket(ctx context.Context, name string) error {
	err := withTransaction(ctx, s.db, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM buckets WHERE name = ?`, name).Scan(&exists); err != nil {
			return backendError("delete bucket lookup", err)
		}
		if exists == 0 {
			return fmt.Errorf("bucket %q: %w", name, ErrNoSuchBucket)
		}

		var objects int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM objects WHERE bucket = ?`, name).Scan(&objects); err != nil {
			return backendError("delete bucket object count", err)
		}
		if objects > 0 {
			return fmt.Errorf("bucket %q owns %d objects: %w", name, objects, ErrBucketNotEmpty)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM buckets WHERE name = ?`, name); err != nil {
			return backendError("delete bucket", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// The namespace is empty, so only unreferenced payloads (kept around
	// after object deletes) can remain under the bucket's blob prefix.
	ids, err := s.blobs.List(name + "/")
	if err != nil {
		return backendError("list bucket payloads", err)
	}
	for _, id := range ids {
		if err := s.blobs.Delete(id); err != nil {
			return backendError("delete bucket payload", err)
		}
	}

	return nil
}

// GetBucket looks up a bucket by name, failing with ErrNoSuchBucket if it
// is absent.
func (s *Store) GetBucket(ctx context.Context, name string) (Bucket, error) {
	var b Bucket
	err := s.db.QueryRowContext(ctx,
		`SELECT name, created_at FROM buckets WHERE name = ?`, name,
	).Scan(&b.Name, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Bucket{}, fmt.Errorf("bucket %q: %w", name, ErrNoSuchBucket)
	}
	if err != nil {
		return Bucket{}, backendError("get bucket", err)
	}
	return b, nil
}

// BucketExists reports whether a bucket with the given name exists.
func (s *Store) BucketExists(ctx context.Context, name string) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM buckets WHERE name = ?`, name).Scan(&count); err != nil {
		return false, backendError("bucket exists", err)
	}
	return count > 0, nil
}

// ListBuckets returns all buckets sorted by name.
func (s *Store) ListBuckets(ctx context.Context) ([]Bucket, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, created_at FROM buckets ORDER BY name`)
	if err != nil {
		return nil, backendError("list buckets", err)
	}
	defer rows.Close()

	buckets := make([]Bucket, 0)
	for rows.Next() {
		var b Bucket
		if err := rows.Scan(&b.Name, &b.CreatedAt); err != nil {
			return nil, backendError("scan bucket", err)
		}
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, backendError("list buckets", err)
	}

	return buckets, nil
}
