package store

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newUploadBucket(t *testing.T, s *Store) string {
	t.Helper()

	_, err := s.CreateBucket(context.Background(), "uploads")
	require.NoError(t, err, "CreateBucket error")
	return "uploads"
}

func TestMultipartUploadAssembly(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	bucket := newUploadBucket(t, s)

	uploadID, err := s.CreateMultipartUpload(ctx, bucket, "assembled.txt", "text/plain")
	require.NoError(t, err, "CreateMultipartUpload error")
	require.NotEmpty(t, uploadID, "upload id")

	// The destination key must not exist until completion.
	_, err = s.GetObject(ctx, bucket, "assembled.txt", nil)
	require.ErrorIs(t, err, ErrNoSuchKey, "key should be absent before completion")

	// The test store's minimum part size is 16 bytes; each non-final chunk
	// clears it.
	chunks := []string{
		strings.Repeat("Part 1 data.", 2),
		strings.Repeat("Part 2 data.", 2),
		"Part 3, final.",
	}

	var completed []CompletedPart
	for i, chunk := range chunks {
		etag, err := s.UploadPart(ctx, uploadID, i+1, []byte(chunk))
		require.NoErrorf(t, err, "UploadPart %d error", i+1)
		completed = append(completed, CompletedPart{PartNumber: i + 1, ETag: etag})
	}

	_, parts, err := s.ListParts(ctx, uploadID)
	require.NoError(t, err, "ListParts error")
	require.Len(t, parts, 3, "part count")
	require.Equal(t, 1, parts[0].PartNumber, "parts listed in ascending order")

	want := []byte(strings.Join(chunks, ""))
	res, err := s.CompleteMultipartUpload(ctx, uploadID, completed)
	require.NoError(t, err, "CompleteMultipartUpload error")
	require.Equal(t, ContentHash(want), res.ETag, "assembled ETag is the hash of the concatenation")
	require.Equal(t, int64(len(want)), res.Size, "assembled size")

	obj, err := s.GetObject(ctx, bucket, "assembled.txt", nil)
	require.NoError(t, err, "GetObject error")
	require.Equal(t, want, obj.Data, "assembled payload")
	require.Equal(t, "text/plain", obj.ContentType, "content type from session")

	// The session is gone once it completes.
	_, _, err = s.ListParts(ctx, uploadID)
	require.ErrorIs(t, err, ErrNoSuchUpload, "session should be purged after completion")
	_, err = s.UploadPart(ctx, uploadID, 4, bytes.Repeat([]byte("x"), 20))
	require.ErrorIs(t, err, ErrNoSuchUpload, "parts cannot be added after completion")
}

func TestMultipartUploadPartReplace(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	bucket := newUploadBucket(t, s)

	uploadID, err := s.CreateMultipartUpload(ctx, bucket, "replace.txt", "")
	require.NoError(t, err, "CreateMultipartUpload error")

	_, err = s.UploadPart(ctx, uploadID, 1, []byte("first attempt, discarded"))
	require.NoError(t, err, "first UploadPart error")

	etag, err := s.UploadPart(ctx, uploadID, 1, []byte("second attempt wins"))
	require.NoError(t, err, "second UploadPart error")

	res, err := s.CompleteMultipartUpload(ctx, uploadID, []CompletedPart{{PartNumber: 1, ETag: etag}})
	require.NoError(t, err, "CompleteMultipartUpload error")
	require.Equal(t, ContentHash([]byte("second attempt wins")), res.ETag, "re-uploaded bytes win")
}

func TestMultipartUploadValidation(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	bucket := newUploadBucket(t, s)

	_, err := s.CreateMultipartUpload(ctx, "ghost", "k", "")
	require.ErrorIs(t, err, ErrNoSuchBucket, "upload into unknown bucket")

	uploadID, err := s.CreateMultipartUpload(ctx, bucket, "validated.txt", "")
	require.NoError(t, err, "CreateMultipartUpload error")

	_, err = s.UploadPart(ctx, uploadID, 0, []byte("x"))
	require.ErrorIs(t, err, ErrInvalidPart, "part number zero")
	_, err = s.UploadPart(ctx, uploadID, 10001, []byte("x"))
	require.ErrorIs(t, err, ErrInvalidPart, "part number above the ceiling")
	_, err = s.UploadPart(ctx, "no-such-id", 1, []byte("x"))
	require.ErrorIs(t, err, ErrNoSuchUpload, "unknown session")

	etag1, err := s.UploadPart(ctx, uploadID, 1, bytes.Repeat([]byte("a"), 20))
	require.NoError(t, err, "UploadPart 1 error")
	etag2, err := s.UploadPart(ctx, uploadID, 2, []byte("tail"))
	require.NoError(t, err, "UploadPart 2 error")

	_, err = s.CompleteMultipartUpload(ctx, uploadID, nil)
	require.ErrorIs(t, err, ErrInvalidPart, "empty completion list")

	_, err = s.CompleteMultipartUpload(ctx, uploadID, []CompletedPart{
		{PartNumber: 2, ETag: etag2},
		{PartNumber: 1, ETag: etag1},
	})
	require.ErrorIs(t, err, ErrInvalidPartOrder, "descending part numbers")

	_, err = s.CompleteMultipartUpload(ctx, uploadID, []CompletedPart{
		{PartNumber: 1, ETag: etag1},
		{PartNumber: 3, ETag: "deadbeef"},
	})
	require.ErrorIs(t, err, ErrInvalidPart, "part never uploaded")

	_, err = s.CompleteMultipartUpload(ctx, uploadID, []CompletedPart{
		{PartNumber: 1, ETag: "wrong"},
		{PartNumber: 2, ETag: etag2},
	})
	require.ErrorIs(t, err, ErrInvalidPart, "etag mismatch")

	// Part 2 is below the minimum and not final here.
	etag3, err := s.UploadPart(ctx, uploadID, 3, bytes.Repeat([]byte("c"), 20))
	require.NoError(t, err, "UploadPart 3 error")
	_, err = s.CompleteMultipartUpload(ctx, uploadID, []CompletedPart{
		{PartNumber: 1, ETag: etag1},
		{PartNumber: 2, ETag: etag2},
		{PartNumber: 3, ETag: etag3},
	})
	require.ErrorIs(t, err, ErrEntityTooSmall, "undersized non-final part")

	// Every rejection above left the session open.
	res, err := s.CompleteMultipartUpload(ctx, uploadID, []CompletedPart{
		{PartNumber: 1, ETag: etag1},
		{PartNumber: 3, ETag: etag3},
		// Omitting part 2 is allowed; unreferenced parts are discarded.
	})
	require.NoError(t, err, "CompleteMultipartUpload error")
	require.Equal(t, int64(40), res.Size, "assembled from the referenced parts only")
}

func TestAbortMultipartUpload(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	bucket := newUploadBucket(t, s)

	require.ErrorIs(t, s.AbortMultipartUpload(ctx, "no-such-id"), ErrNoSuchUpload, "aborting unknown session")

	uploadID, err := s.CreateMultipartUpload(ctx, bucket, "aborted.txt", "")
	require.NoError(t, err, "CreateMultipartUpload error")

	_, err = s.UploadPart(ctx, uploadID, 1, []byte("soon to vanish"))
	require.NoError(t, err, "UploadPart error")

	require.NoError(t, s.AbortMultipartUpload(ctx, uploadID), "AbortMultipartUpload error")

	// No object, no session, no parts.
	_, err = s.GetObject(ctx, bucket, "aborted.txt", nil)
	require.ErrorIs(t, err, ErrNoSuchKey, "destination key untouched")
	_, _, err = s.ListParts(ctx, uploadID)
	require.ErrorIs(t, err, ErrNoSuchUpload, "session gone")
	require.ErrorIs(t, s.AbortMultipartUpload(ctx, uploadID), ErrNoSuchUpload, "repeat abort")
}

func TestListMultipartUploads(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	bucket := newUploadBucket(t, s)

	_, err := s.ListMultipartUploads(ctx, "ghost")
	require.ErrorIs(t, err, ErrNoSuchBucket, "listing uploads of unknown bucket")

	id1, err := s.CreateMultipartUpload(ctx, bucket, "one", "")
	require.NoError(t, err, "CreateMultipartUpload error")
	id2, err := s.CreateMultipartUpload(ctx, bucket, "two", "")
	require.NoError(t, err, "CreateMultipartUpload error")

	uploads, err := s.ListMultipartUploads(ctx, bucket)
	require.NoError(t, err, "ListMultipartUploads error")
	require.Len(t, uploads, 2, "open session count")

	ids := map[string]bool{}
	for _, u := range uploads {
		ids[u.ID] = true
	}
	require.True(t, ids[id1] && ids[id2], "both sessions listed")
}

func TestCompleteMultipartUploadExcludesConcurrentPartUploads(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	bucket := newUploadBucket(t, s)

	uploadID, err := s.CreateMultipartUpload(ctx, bucket, "raced.bin", "")
	require.NoError(t, err, "CreateMultipartUpload error")

	first := bytes.Repeat([]byte("a"), 32)
	variantB := bytes.Repeat([]byte("b"), 32)
	variantC := bytes.Repeat([]byte("c"), 32)

	_, err = s.UploadPart(ctx, uploadID, 1, first)
	require.NoError(t, err, "UploadPart error")
	_, err = s.UploadPart(ctx, uploadID, 2, variantB)
	require.NoError(t, err, "UploadPart error")

	// A writer keeps replacing part 2 until the session disappears under
	// it. Completion must observe each part either before or after one of
	// those rewrites, never mid-write.
	writerErr := make(chan error, 1)
	go func() {
		defer close(writerErr)
		payloads := [][]byte{variantC, variantB}
		for i := 0; ; i++ {
			_, err := s.UploadPart(ctx, uploadID, 2, payloads[i%2])
			if errors.Is(err, ErrNoSuchUpload) {
				return
			}
			if err != nil {
				writerErr <- err
				return
			}
		}
	}()

	// The submitted etags chase the writer; a rewrite that lands between
	// ListParts and completion is rejected as ErrInvalidPart and retried.
	var result CompleteResult
	for attempt := 0; ; attempt++ {
		require.Less(t, attempt, 10000, "completion should eventually win the race")

		_, parts, err := s.ListParts(ctx, uploadID)
		require.NoError(t, err, "ListParts error")
		require.Len(t, parts, 2, "part count")

		completed := make([]CompletedPart, 0, len(parts))
		for _, p := range parts {
			completed = append(completed, CompletedPart{PartNumber: p.PartNumber, ETag: p.ETag})
		}

		result, err = s.CompleteMultipartUpload(ctx, uploadID, completed)
		if errors.Is(err, ErrInvalidPart) {
			continue
		}
		require.NoError(t, err, "CompleteMultipartUpload error")
		break
	}
	require.NoError(t, <-writerErr, "writer error")

	obj, err := s.GetObject(ctx, bucket, "raced.bin", nil)
	require.NoError(t, err, "GetObject error")
	require.Equal(t, ContentHash(obj.Data), result.ETag, "assembled bytes match the reported etag")

	wantB := append(append([]byte{}, first...), variantB...)
	wantC := append(append([]byte{}, first...), variantC...)
	if !bytes.Equal(obj.Data, wantB) && !bytes.Equal(obj.Data, wantC) {
		t.Fatalf("assembled object mixes part versions: %q", obj.Data)
	}
}

func TestUnknownUploadLeavesNoLockBehind(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UploadPart(ctx, "bogus-upload", 1, []byte("data"))
	require.ErrorIs(t, err, ErrNoSuchUpload, "part upload against unknown session")
	_, err = s.CompleteMultipartUpload(ctx, "bogus-upload", []CompletedPart{{PartNumber: 1, ETag: "x"}})
	require.ErrorIs(t, err, ErrNoSuchUpload, "completing unknown session")
	require.ErrorIs(t, s.AbortMultipartUpload(ctx, "another-bogus"), ErrNoSuchUpload, "aborting unknown session")

	s.mu.Lock()
	defer s.mu.Unlock()
	require.Empty(t, s.uploadLocks, "no locks retained for sessions that never existed")
}
