package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateBucket(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	b, err := s.CreateBucket(ctx, "first")
	require.NoError(t, err, "CreateBucket error")
	require.Equal(t, "first", b.Name, "bucket name")
	require.False(t, b.CreatedAt.IsZero(), "CreatedAt should be set")

	_, err = s.CreateBucket(ctx, "first")
	require.ErrorIs(t, err, ErrBucketAlreadyExists, "duplicate create")
}

func TestDeleteBucket(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	require.ErrorIs(t, s.DeleteBucket(ctx, "missing"), ErrNoSuchBucket, "deleting unknown bucket")

	_, err := s.CreateBucket(ctx, "doomed")
	require.NoError(t, err, "CreateBucket error")

	_, err = s.PutObject(ctx, "doomed", "blocker.txt", []byte("x"), "")
	require.NoError(t, err, "PutObject error")

	// A bucket holding objects cannot be removed.
	require.ErrorIs(t, s.DeleteBucket(ctx, "doomed"), ErrBucketNotEmpty, "deleting non-empty bucket")

	require.NoError(t, s.DeleteObject(ctx, "doomed", "blocker.txt"), "DeleteObject error")
	require.NoError(t, s.DeleteBucket(ctx, "doomed"), "DeleteBucket error")

	_, err = s.GetBucket(ctx, "doomed")
	require.ErrorIs(t, err, ErrNoSuchBucket, "bucket should be gone")
}

func TestListBuckets(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	buckets, err := s.ListBuckets(ctx)
	require.NoError(t, err, "ListBuckets error")
	require.Empty(t, buckets, "fresh store should have no buckets")

	for _, name := range []string{"zeta", "alpha", "mid"} {
		_, err := s.CreateBucket(ctx, name)
		require.NoErrorf(t, err, "CreateBucket %s error", name)
	}

	buckets, err = s.ListBuckets(ctx)
	require.NoError(t, err, "ListBuckets error")

	var names []string
	for _, b := range buckets {
		names = append(names, b.Name)
	}
	require.Equal(t, []string{"alpha", "mid", "zeta"}, names, "buckets should list in name order")
}

func TestGetBucket(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetBucket(ctx, "nope")
	require.ErrorIs(t, err, ErrNoSuchBucket, "unknown bucket")

	created, err := s.CreateBucket(ctx, "known")
	require.NoError(t, err, "CreateBucket error")

	got, err := s.GetBucket(ctx, "known")
	require.NoError(t, err, "GetBucket error")
	require.Equal(t, created.Name, got.Name, "bucket name")
}
