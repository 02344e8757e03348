package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	minPartNumber = 1
	maxPartNumber = 10000
)

// Upload is an in-progress multipart session.
type Upload struct {
	ID          string
	Bucket      string
	Key         string
	ContentType string
	CreatedAt   time.Time
}

// Part is the record of one uploaded part within a session.
type Part struct {
	PartNumber   int
	ETag         string
	Size         int64
	LastModified time.Time
}

// CompletedPart names a part in a completion request. The ETag must match
// the value returned when the part was uploaded.
type CompletedPart struct {
	PartNumber int
	ETag       string
}

// CompleteResult reports the object assembled by a completed upload.
type CompleteResult struct {
	ETag string
	Size int64
}

// CreateMultipartUpload opens a multipart session for bucket/key and
// returns its upload id. The session holds no object data until parts are
// uploaded, and the destination key is untouched until completion.
func (s *Store) CreateMultipartUpload(ctx context.Context, bucket string, key string, contentType string) (string, error) {
	if exists, err := s.BucketExists(ctx, bucket); err != nil {
		return "", err
	} else if !exists {
		return "", fmt.Errorf("bucket %q: %w", bucket, ErrNoSuchBucket)
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}

	uploadID := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO uploads(id, bucket, key, content_type, created_at) VALUES(?, ?, ?, ?, ?)`,
		uploadID, bucket, key, contentType, time.Now().UTC(),
	)
	if err != nil {
		return "", backendError("create upload session", err)
	}

	return uploadID, nil
}

// UploadPart stores data as the numbered part of an open session and
// returns the part's ETag. Re-uploading a part number replaces the earlier
// bytes; part numbers outside [1, 10000] fail with ErrInvalidPart.
func (s *Store) UploadPart(ctx context.Context, uploadID string, partNumber int, data []byte) (string, error) {
	if partNumber < minPartNumber || partNumber > maxPartNumber {
		return "", fmt.Errorf("part number %d out of range: %w", partNumber, ErrInvalidPart)
	}

	// Part uploads share the session lock so they can proceed in parallel
	// but never interleave with a terminal transition.
	lock := s.uploadLock(uploadID)
	lock.RLock()
	defer lock.RUnlock()

	if _, err := s.getUpload(ctx, uploadID); err != nil {
		if errors.Is(err, ErrNoSuchUpload) {
			s.releaseUploadLock(uploadID)
		}
		return "", err
	}

	etag := ContentHash(data)
	if err := s.blobs.Put(partBlobID(uploadID, partNumber), data); err != nil {
		return "", backendError("store part payload", err)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO parts(upload_id, part_number, hash, size, modified_at)
		 VALUES(?, ?, ?, ?, ?)
		 ON CONFLICT(upload_id, part_number) DO UPDATE SET
		 	hash=excluded.hash,
		 	size=excluded.size,
		 	modified_at=excluded.modified_at`,
		uploadID, partNumber, etag, int64(len(data)), time.Now().UTC(),
	)
	if err != nil {
		return "", backendError("upsert part metadata", err)
	}

	return etag, nil
}

// ListParts returns the uploaded parts of an open session in ascending
// part-number order.
func (s *Store) ListParts(ctx context.Context, uploadID string) (*Upload, []Part, error) {
	upload, err := s.getUpload(ctx, uploadID)
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT part_number, hash, size, modified_at FROM parts WHERE upload_id = ? ORDER BY part_number`,
		uploadID,
	)
	if err != nil {
		return nil, nil, backendError("list parts", err)
	}
	defer rows.Close()

	var parts []Part
	for rows.Next() {
		var p Part
		if err := rows.Scan(&p.PartNumber, &p.ETag, &p.Size, &p.LastModified); err != nil {
			return nil, nil, backendError("scan part row", err)
		}
		parts = append(parts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, backendError("list parts", err)
	}

	return upload, parts, nil
}

// ListMultipartUploads returns the open sessions targeting a bucket,
// ordered by creation time.
func (s *Store) ListMultipartUploads(ctx context.Context, bucket string) ([]Upload, error) {
	if exists, err := s.BucketExists(ctx, bucket); err != nil {
		return nil, err
	} else if !exists {
		return nil, fmt.Errorf("bucket %q: %w", bucket, ErrNoSuchBucket)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, bucket, key, content_type, created_at FROM uploads WHERE bucket = ? ORDER BY created_at, id`,
		bucket,
	)
	if err != nil {
		return nil, backendError("list uploads", err)
	}
	defer rows.Close()

	var uploads []Upload
	for rows.Next() {
		var u Upload
		if err := rows.Scan(&u.ID, &u.Bucket, &u.Key, &u.ContentType, &u.CreatedAt); err != nil {
			return nil, backendError("scan upload row", err)
		}
		uploads = append(uploads, u)
	}
	if err := rows.Err(); err != nil {
		return nil, backendError("list uploads", err)
	}
	return uploads, nil
}

// CompleteMultipartUpload validates the submitted part list against the
// session, concatenates the parts in ascending order into a single object
// at the session's destination, and discards the session. Validation
// failures leave the session untouched so the caller can retry.
func (s *Store) CompleteMultipartUpload(ctx context.Context, uploadID string, completed []CompletedPart) (CompleteResult, error) {
	lock := s.uploadLock(uploadID)
	lock.Lock()
	defer lock.Unlock()

	upload, err := s.getUpload(ctx, uploadID)
	if err != nil {
		if errors.Is(err, ErrNoSuchUpload) {
			s.releaseUploadLock(uploadID)
		}
		return CompleteResult{}, err
	}

	if len(completed) == 0 {
		return CompleteResult{}, fmt.Errorf("empty part list: %w", ErrInvalidPart)
	}

	for i := 1; i < len(completed); i++ {
		if completed[i].PartNumber <= completed[i-1].PartNumber {
			return CompleteResult{}, fmt.Errorf("part %d after part %d: %w",
				completed[i].PartNumber, completed[i-1].PartNumber, ErrInvalidPartOrder)
		}
	}

	_, parts, err := s.ListParts(ctx, uploadID)
	if err != nil {
		return CompleteResult{}, err
	}

	stored := make(map[int]Part, len(parts))
	for _, p := range parts {
		stored[p.PartNumber] = p
	}

	var body bytes.Buffer
	for i, cp := range completed {
		part, ok := stored[cp.PartNumber]
		if !ok {
			return CompleteResult{}, fmt.Errorf("part %d was never uploaded: %w", cp.PartNumber, ErrInvalidPart)
		}
		if part.ETag != cp.ETag {
			return CompleteResult{}, fmt.Errorf("part %d etag mismatch: %w", cp.PartNumber, ErrInvalidPart)
		}
		if i < len(completed)-1 && part.Size < s.cfg.MinPartSize {
			return CompleteResult{}, fmt.Errorf("part %d is %d bytes, below the %d byte minimum: %w",
				cp.PartNumber, part.Size, s.cfg.MinPartSize, ErrEntityTooSmall)
		}

		data, err := s.blobs.Get(partBlobID(uploadID, cp.PartNumber))
		if err != nil {
			return CompleteResult{}, backendError("read part payload", err)
		}
		body.Write(data)
	}

	result, err := s.PutObject(ctx, upload.Bucket, upload.Key, body.Bytes(), upload.ContentType)
	if err != nil {
		return CompleteResult{}, err
	}

	if err := s.purgeUpload(ctx, uploadID, parts); err != nil {
		return CompleteResult{}, err
	}
	s.releaseUploadLock(uploadID)

	return CompleteResult{ETag: result.ETag, Size: result.Size}, nil
}

// AbortMultipartUpload discards an open session and every part uploaded to
// it. The destination key is never touched.
func (s *Store) AbortMultipartUpload(ctx context.Context, uploadID string) error {
	lock := s.uploadLock(uploadID)
	lock.Lock()
	defer lock.Unlock()

	_, parts, err := s.ListParts(ctx, uploadID)
	if err != nil {
		if errors.Is(err, ErrNoSuchUpload) {
			s.releaseUploadLock(uploadID)
		}
		return err
	}

	if err := s.purgeUpload(ctx, uploadID, parts); err != nil {
		return err
	}
	s.releaseUploadLock(uploadID)
	return nil
}

func (s *Store) getUpload(ctx context.Context, uploadID string) (*Upload, error) {
	upload := &Upload{ID: uploadID}
	err := s.db.QueryRowContext(ctx,
		`SELECT bucket, key, content_type, created_at FROM uploads WHERE id = ?`,
		uploadID,
	).Scan(&upload.Bucket, &upload.Key, &upload.ContentType, &upload.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("upload %q: %w", uploadID, ErrNoSuchUpload)
	}
	if err != nil {
		return nil, backendError("lookup upload session", err)
	}
	return upload, nil
}

// purgeUpload removes the session row (parts follow by cascade) and the
// part payload blobs.
func (s *Store) purgeUpload(ctx context.Context, uploadID string, parts []Part) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM uploads WHERE id = ?`, uploadID); err != nil {
		return backendError("delete upload session", err)
	}

	for _, p := range parts {
		if err := s.blobs.Delete(partBlobID(uploadID, p.PartNumber)); err != nil {
			return backendError("delete part payload", err)
		}
	}
	return nil
}

func partBlobID(uploadID string, partNumber int) string {
	return fmt.Sprintf("uploads/%s/%05d", uploadID, partNumber)
}
