package store

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

const (
	maxListKeys      = 1000
	listBatchEntries = 256
)

// ObjectInfo is the metadata-only view of an object returned by listings.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// ListObjectsParams selects and pages a bucket listing. MaxKeys is clamped
// to [1, 1000]; zero means the full 1000. ContinuationToken takes precedence
// over StartAfter when both are set.
type ListObjectsParams struct {
	Prefix            string
	Delimiter         string
	ContinuationToken string
	StartAfter        string
	MaxKeys           int
}

// ListObjectsResult is one page of a bucket listing. Objects and
// CommonPrefixes are each sorted, and KeyCount is the total entries across
// both. NextContinuationToken is set only when IsTruncated.
type ListObjectsResult struct {
	Objects               []ObjectInfo
	CommonPrefixes        []string
	IsTruncated           bool
	NextContinuationToken string
	KeyCount              int
}

// ListObjects pages through the keys of a bucket in lexicographic order,
// grouping keys that share a delimiter-bounded prefix into CommonPrefixes.
func (s *Store) ListObjects(ctx context.Context, bucket string, params ListObjectsParams) (*ListObjectsResult, error) {
	exists, err := s.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("bucket %q: %w", bucket, ErrNoSuchBucket)
	}

	maxKeys := params.MaxKeys
	if maxKeys <= 0 || maxKeys > maxListKeys {
		maxKeys = maxListKeys
	}

	// The scan resumes from a key lower bound: the decoded continuation
	// token if present, otherwise just past StartAfter.
	resume := params.Prefix
	if params.ContinuationToken != "" {
		decoded, err := decodeListToken(params.ContinuationToken)
		if err != nil {
			return nil, err
		}
		resume = decoded
	} else if params.StartAfter != "" && params.StartAfter >= resume {
		resume = params.StartAfter + "\x00"
		// A marker naming a delimiter group resumes past the whole group,
		// so the group's prefix is not reported twice.
		if params.Delimiter != "" && strings.HasPrefix(params.StartAfter, params.Prefix) &&
			strings.HasSuffix(params.StartAfter, params.Delimiter) {
			if next := prefixSuccessor(params.StartAfter); next != "" {
				resume = next
			}
		}
	}

	// Keys outside the prefix are excluded by an exclusive upper bound on
	// the scan rather than filtered row by row.
	upper := prefixSuccessor(params.Prefix)

	// Every scan of the page reads from one transaction, so concurrent
	// writers cannot leak into the middle of a listing.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, backendError("begin listing", err)
	}
	defer tx.Rollback()

	result := &ListObjectsResult{}
	for result.KeyCount < maxKeys {
		batch, err := listBatch(ctx, tx, bucket, resume, upper, listBatchEntries)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			return result, nil
		}

		for _, info := range batch {
			if result.KeyCount == maxKeys {
				result.IsTruncated = true
				result.NextContinuationToken = encodeListToken(resume)
				return result, nil
			}

			if params.Delimiter != "" {
				rest := info.Key[len(params.Prefix):]
				if i := strings.Index(rest, params.Delimiter); i >= 0 {
					cp := params.Prefix + rest[:i+len(params.Delimiter)]
					result.CommonPrefixes = append(result.CommonPrefixes, cp)
					result.KeyCount++
					// Skip the rest of the group in one jump.
					resume = prefixSuccessor(cp)
					break
				}
			}

			result.Objects = append(result.Objects, info)
			result.KeyCount++
			resume = info.Key + "\x00"
		}
	}

	// The page is full; truncation depends on whether anything is left.
	more, err := listBatch(ctx, tx, bucket, resume, upper, 1)
	if err != nil {
		return nil, err
	}
	if len(more) > 0 {
		result.IsTruncated = true
		result.NextContinuationToken = encodeListToken(resume)
	}
	return result, nil
}

func listBatch(ctx context.Context, tx *sql.Tx, bucket, lower, upper string, limit int) ([]ObjectInfo, error) {
	const query = `
		SELECT key, size, hash, modified_at
		FROM objects
		WHERE bucket = ? AND key >= ? AND (? = '' OR key < ?)
		ORDER BY key
		LIMIT ?`

	rows, err := tx.QueryContext(ctx, query, bucket, lower, upper, upper, limit)
	if err != nil {
		return nil, backendError("list objects", err)
	}
	defer rows.Close()

	var infos []ObjectInfo
	for rows.Next() {
		var info ObjectInfo
		if err := rows.Scan(&info.Key, &info.Size, &info.ETag, &info.LastModified); err != nil {
			return nil, backendError("scan object row", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, backendError("list objects", err)
	}
	return infos, nil
}

// prefixSuccessor returns the smallest string greater than every string
// with the given prefix, or "" when no such bound exists.
func prefixSuccessor(prefix string) string {
	for i := len(prefix) - 1; i >= 0; i-- {
		if prefix[i] != 0xff {
			return prefix[:i] + string(prefix[i]+1)
		}
	}
	return ""
}

func encodeListToken(resume string) string {
	return base64.StdEncoding.EncodeToString([]byte(resume))
}

func decodeListToken(token string) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("continuation token %q: %w", token, ErrInvalidContinuationToken)
	}
	return string(decoded), nil
}
