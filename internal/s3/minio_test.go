package s3_test

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/require"
)

// newMinioClient creates a MinIO client configured to talk to the in-memory
// test server using path-style bucket lookup and the default credentials.
func newMinioClient(t *testing.T, httpSrv *httptest.Server) *minio.Client {
	t.Helper()

	u, err := url.Parse(httpSrv.URL)
	require.NoError(t, err, "parsing test server URL")

	client, err := minio.New(u.Host, &minio.Options{
		Creds:  credentials.NewStaticV4(AccessKeyID, SecretAccessKey, ""),
		Secure: u.Scheme == "https",
		// The server expects path-style requests: /bucket/object.
		BucketLookup: minio.BucketLookupPath,
	})
	require.NoError(t, err, "creating MinIO client")

	return client
}

// newMinioCoreClient creates a low-level MinIO Core client for exercising
// individual multipart API calls.
func newMinioCoreClient(t *testing.T, httpSrv *httptest.Server) *minio.Core {
	t.Helper()

	u, err := url.Parse(httpSrv.URL)
	require.NoError(t, err, "parsing test server URL")

	coreClient, err := minio.NewCore(u.Host, &minio.Options{
		Creds:        credentials.NewStaticV4(AccessKeyID, SecretAccessKey, ""),
		Secure:       u.Scheme == "https",
		BucketLookup: minio.BucketLookupPath,
	})
	require.NoError(t, err, "creating MinIO Core client")

	return coreClient
}

// TestObjectRoundTripUsingMinioClient verifies basic bucket and object
// operations through the MinIO Go client, including SigV4-signed requests
// with streaming payloads.
func TestObjectRoundTripUsingMinioClient(t *testing.T) {
	t.Parallel()

	_, httpSrv := NewTestServer(t)
	client := newMinioClient(t, httpSrv)
	ctx := t.Context()

	const (
		bucket = "minio-roundtrip-bucket"
		object = "notes/readme.txt"
	)

	err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: "us-east-1"})
	require.NoError(t, err, "MakeBucket via MinIO client")

	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err, "BucketExists via MinIO client")
	require.True(t, exists, "bucket should exist after MakeBucket")

	data := []byte("minio round trip payload")
	putInfo, err := client.PutObject(ctx, bucket, object, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "text/plain",
	})
	require.NoError(t, err, "PutObject via MinIO client")
	require.Equal(t, int64(len(data)), putInfo.Size, "uploaded size")

	stat, err := client.StatObject(ctx, bucket, object, minio.StatObjectOptions{})
	require.NoError(t, err, "StatObject via MinIO client")
	require.Equal(t, int64(len(data)), stat.Size, "stat size")
	require.Equal(t, "text/plain", stat.ContentType, "stat content type")

	obj, err := client.GetObject(ctx, bucket, object, minio.GetObjectOptions{})
	require.NoError(t, err, "GetObject via MinIO client")
	defer obj.Close()

	got, err := io.ReadAll(obj)
	require.NoError(t, err, "reading object data")
	require.Equal(t, data, got, "round-trip payload mismatch")

	require.NoError(t, client.RemoveObject(ctx, bucket, object, minio.RemoveObjectOptions{}), "RemoveObject via MinIO client")
	require.NoError(t, client.RemoveBucket(ctx, bucket), "RemoveBucket via MinIO client")
}

// TestRangeReadUsingMinioClient verifies ranged GETs issued by the MinIO
// client are honored with partial content.
func TestRangeReadUsingMinioClient(t *testing.T) {
	t.Parallel()

	_, httpSrv := NewTestServer(t)
	client := newMinioClient(t, httpSrv)
	ctx := t.Context()

	const (
		bucket = "minio-range-bucket"
		object = "ranged.bin"
	)

	require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: "us-east-1"}), "MakeBucket via MinIO client")

	data := []byte("0123456789ABCDEFGHIJ")
	_, err := client.PutObject(ctx, bucket, object, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
	require.NoError(t, err, "PutObject via MinIO client")

	opts := minio.GetObjectOptions{}
	require.NoError(t, opts.SetRange(5, 9), "setting range on GetObjectOptions")

	obj, err := client.GetObject(ctx, bucket, object, opts)
	require.NoError(t, err, "ranged GetObject via MinIO client")
	defer obj.Close()

	got, err := io.ReadAll(obj)
	require.NoError(t, err, "reading ranged object data")
	require.Equal(t, "56789", string(got), "ranged payload")
}

// TestListObjectsUsingMinioClient verifies delimiter-based listing through
// the MinIO client, which drives ListObjectsV2 with continuation tokens.
func TestListObjectsUsingMinioClient(t *testing.T) {
	t.Parallel()

	_, httpSrv := NewTestServer(t)
	client := newMinioClient(t, httpSrv)
	ctx := t.Context()

	const bucket = "minio-list-bucket"
	require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: "us-east-1"}), "MakeBucket via MinIO client")

	keys := []string{"logs/2024/a.log", "logs/2024/b.log", "logs/2025/c.log", "top.txt"}
	for _, key := range keys {
		_, err := client.PutObject(ctx, bucket, key, bytes.NewReader([]byte("x")), 1, minio.PutObjectOptions{})
		require.NoErrorf(t, err, "PutObject %s via MinIO client", key)
	}

	var listed []string
	for info := range client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Recursive: true}) {
		require.NoError(t, info.Err, "ListObjects entry error")
		listed = append(listed, info.Key)
	}
	require.Equal(t, keys, listed, "recursive listing in key order")

	// Non-recursive listing collapses directories into prefixes.
	listed = nil
	for info := range client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: "logs/", Recursive: false}) {
		require.NoError(t, info.Err, "ListObjects entry error")
		listed = append(listed, info.Key)
	}
	require.Equal(t, []string{"logs/2024/", "logs/2025/"}, listed, "delimiter listing under logs/")
}

// TestMultipartUploadUsingMinioClient verifies that a large object uploaded
// via the MinIO Go client uses multipart upload successfully and that the
// resulting object can be read back intact.
func TestMultipartUploadUsingMinioClient(t *testing.T) {
	t.Parallel()

	_, httpSrv := NewTestServer(t)
	client := newMinioClient(t, httpSrv)
	ctx := t.Context()

	const (
		bucket = "minio-multipart-bucket"
		object = "large-object.bin"
	)

	err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: "us-east-1"})
	require.NoError(t, err, "MakeBucket via MinIO client")

	// A payload large enough to trigger multipart upload in minio-go
	// (threshold is 16MiB).
	size := int64(20 * 1024 * 1024) // 20 MiB
	data := bytes.Repeat([]byte("0123456789abcdef"), int(size/16))
	require.Equal(t, size, int64(len(data)), "test payload size")

	putInfo, err := client.PutObject(ctx, bucket, object, bytes.NewReader(data), size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	require.NoError(t, err, "PutObject via MinIO client")
	require.Equal(t, size, putInfo.Size, "uploaded size")
	require.NotEmpty(t, putInfo.ETag, "uploaded ETag")

	obj, err := client.GetObject(ctx, bucket, object, minio.GetObjectOptions{})
	require.NoError(t, err, "GetObject via MinIO client")
	defer obj.Close()

	got, err := io.ReadAll(obj)
	require.NoError(t, err, "reading object data")
	require.Equal(t, data, got, "round-trip multipart payload mismatch")
}

// TestExplicitMultipartUploadUsingMinioCore performs a full multipart
// upload sequence using the MinIO Core API: initiate, upload parts,
// complete, and then verifies the final object contents via a regular
// GET request to the server.
func TestExplicitMultipartUploadUsingMinioCore(t *testing.T) {
	t.Parallel()

	_, httpSrv := NewTestServer(t)
	coreClient := newMinioCoreClient(t, httpSrv)
	ctx := t.Context()

	const (
		bucket = "minio-core-multipart-bucket"
		object = "core-multipart-object.bin"
	)

	client := newMinioClient(t, httpSrv)
	require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: "us-east-1"}), "MakeBucket via MinIO client")

	uploadID, err := coreClient.NewMultipartUpload(ctx, bucket, object, minio.PutObjectOptions{ContentType: "application/octet-stream"})
	require.NoError(t, err, "NewMultipartUpload via MinIO Core")
	require.NotEmpty(t, uploadID, "uploadID should not be empty")

	// Every part but the last must meet the 5 MiB minimum.
	partData := [][]byte{
		bytes.Repeat([]byte("AAAA"), 5*256*1024), // 5 MiB
		bytes.Repeat([]byte("BBBB"), 5*256*1024),
		bytes.Repeat([]byte("CCCC"), 128*1024), // smaller last part
	}

	var full bytes.Buffer
	var parts []minio.CompletePart

	for i, data := range partData {
		partNumber := i + 1
		full.Write(data)

		objPart, err := coreClient.PutObjectPart(ctx, bucket, object, uploadID, partNumber, bytes.NewReader(data), int64(len(data)), minio.PutObjectPartOptions{})
		require.NoErrorf(t, err, "PutObjectPart via MinIO Core for part %d", partNumber)

		parts = append(parts, minio.CompletePart{
			PartNumber: partNumber,
			ETag:       objPart.ETag,
		})
	}

	_, err = coreClient.CompleteMultipartUpload(ctx, bucket, object, uploadID, parts, minio.PutObjectOptions{ContentType: "application/octet-stream"})
	require.NoError(t, err, "CompleteMultipartUpload via MinIO Core")

	// Fetch the final object via the regular HTTP GET helper and verify its
	// contents match the concatenated parts.
	resp := DoGet(t, httpSrv.URL+"/"+bucket+"/"+object)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, "GET completed multipart object status")

	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "reading completed multipart object")
	require.Equal(t, full.Bytes(), got, "completed multipart object payload mismatch")
}

// TestAbortMultipartUploadUsingMinioCore verifies that aborting a multipart
// upload via the MinIO Core API discards the session and its parts.
func TestAbortMultipartUploadUsingMinioCore(t *testing.T) {
	t.Parallel()

	_, httpSrv := NewTestServer(t)
	coreClient := newMinioCoreClient(t, httpSrv)
	ctx := t.Context()

	const (
		bucket = "minio-abort-multipart-bucket"
		object = "multipart-object.bin"
	)

	client := newMinioClient(t, httpSrv)
	require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: "us-east-1"}), "MakeBucket via MinIO client")

	uploadID, err := coreClient.NewMultipartUpload(ctx, bucket, object, minio.PutObjectOptions{ContentType: "application/octet-stream"})
	require.NoError(t, err, "NewMultipartUpload via MinIO Core")
	require.NotEmpty(t, uploadID, "uploadID should not be empty")

	data := bytes.Repeat([]byte("D"), 64*1024)
	_, err = coreClient.PutObjectPart(ctx, bucket, object, uploadID, 1, bytes.NewReader(data), int64(len(data)), minio.PutObjectPartOptions{})
	require.NoError(t, err, "PutObjectPart via MinIO Core")

	require.NoError(t, coreClient.AbortMultipartUpload(ctx, bucket, object, uploadID), "AbortMultipartUpload via MinIO Core")

	// The session is gone: listing its parts must fail.
	listResp := DoGet(t, httpSrv.URL+"/"+bucket+"/"+object+"?uploadId="+uploadID)
	defer listResp.Body.Close()
	require.Equal(t, http.StatusNotFound, listResp.StatusCode, "ListParts after abort status")
	require.Equal(t, "NoSuchUpload", DecodeS3Error(t, listResp.Body), "expected NoSuchUpload error code")

	// And the destination key was never materialized.
	getResp := DoGet(t, httpSrv.URL+"/"+bucket+"/"+object)
	defer getResp.Body.Close()
	require.Equal(t, http.StatusNotFound, getResp.StatusCode, "GET after abort status")
}
