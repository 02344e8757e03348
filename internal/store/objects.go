package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Object is a stored object record. Data carries the payload (or the
// requested slice of it for ranged reads) and is nil for metadata-only
// lookups; Size is always the full object size.
type Object struct {
	Bucket       string
	Key          string
	Data         []byte
	Size         int64
	ETag         string
	LastModified time.Time
	ContentType  string

	// ContentRange is set on ranged reads: "bytes start-end/size".
	ContentRange string
}

// PutResult reports the outcome of a put or copy.
type PutResult struct {
	ETag string
	Size int64
}

// PutObject stores data under bucket/key, replacing any existing record.
// Overwrite is unconditional: concurrent puts race and the final state is
// exactly one of the submitted payloads.
func (s *Store) PutObject(ctx context.Context, bucket string, key string, data []byte, contentType string) (PutResult, error) {
	if exists, err := s.BucketExists(ctx, bucket); err != nil {
		return PutResult{}, err
	} else if !exists {
		return PutResult{}, fmt.Errorf("bucket %q: %w", bucket, ErrNoSuchBucket)
	}

	hashHex := ContentHash(data)
	if err := s.blobs.Put(objectBlobID(bucket, hashHex), data); err != nil {
		return PutResult{}, backendError("store payload", err)
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO objects(bucket, key, hash, size, content_type, created_at, modified_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(bucket, key) DO UPDATE SET
		 	hash=excluded.hash,
		 	size=excluded.size,
		 	content_type=excluded.content_type,
		 	modified_at=excluded.modified_at`,
		bucket, key, hashHex, int64(len(data)), contentType, now, now,
	)
	if err != nil {
		return PutResult{}, backendError("upsert object metadata", err)
	}

	return PutResult{ETag: hashHex, Size: int64(len(data))}, nil
}

// GetObject retrieves the object at bucket/key. With a nil range the full
// payload is returned; otherwise rng is resolved against the object size
// (failing with ErrInvalidRange when unsatisfiable) and Data holds only the
// requested slice, with ContentRange describing it.
func (s *Store) GetObject(ctx context.Context, bucket string, key string, rng *RangeSpec) (*Object, error) {
	obj, err := s.HeadObject(ctx, bucket, key)
	if err != nil {
		return nil, err
	}

	data, err := s.blobs.Get(objectBlobID(bucket, obj.ETag))
	if err != nil {
		return nil, backendError("read payload", err)
	}

	if rng == nil {
		obj.Data = data
		return obj, nil
	}

	start, length, err := rng.Resolve(obj.Size)
	if err != nil {
		return nil, err
	}

	obj.Data = data[start : start+length]
	obj.ContentRange = fmt.Sprintf("bytes %d-%d/%d", start, start+length-1, obj.Size)
	return obj, nil
}

// HeadObject returns the object's metadata without materializing the
// payload. It fails with ErrNoSuchBucket or ErrNoSuchKey exactly as
// GetObject does.
func (s *Store) HeadObject(ctx context.Context, bucket string, key string) (*Object, error) {
	if exists, err := s.BucketExists(ctx, bucket); err != nil {
		return nil, err
	} else if !exists {
		return nil, fmt.Errorf("bucket %q: %w", bucket, ErrNoSuchBucket)
	}

	obj := &Object{Bucket: bucket, Key: key}
	var contentType sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT hash, size, content_type, modified_at FROM objects WHERE bucket = ? AND key = ?`,
		bucket, key,
	).Scan(&obj.ETag, &obj.Size, &contentType, &obj.LastModified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("object %s/%s: %w", bucket, key, ErrNoSuchKey)
	}
	if err != nil {
		return nil, backendError("lookup object metadata", err)
	}

	if contentType.Valid {
		obj.ContentType = contentType.String
	} else {
		obj.ContentType = "application/octet-stream"
	}

	return obj, nil
}

// DeleteObject removes the object at bucket/key. Deleting an absent key is
// not an error; only a missing bucket is. Unreferenced payloads are left to
// be reclaimed when the bucket is deleted.
func (s *Store) DeleteObject(ctx context.Context, bucket string, key string) error {
	if exists, err := s.BucketExists(ctx, bucket); err != nil {
		return err
	} else if !exists {
		return fmt.Errorf("bucket %q: %w", bucket, ErrNoSuchBucket)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM objects WHERE bucket = ? AND key = ?`, bucket, key); err != nil {
		return backendError("delete object metadata", err)
	}
	return nil
}

// CopyObject reads the source object and puts its bytes at the destination.
// The destination ETag is recomputed from the copied bytes, never copied
// from the source record, and a self-copy refreshes the modification time.
func (s *Store) CopyObject(ctx context.Context, srcBucket string, srcKey string, dstBucket string, dstKey string) (PutResult, error) {
	src, err := s.GetObject(ctx, srcBucket, srcKey, nil)
	if err != nil {
		return PutResult{}, err
	}

	return s.PutObject(ctx, dstBucket, dstKey, src.Data, src.ContentType)
}
