// Command example exercises a running TinyStore server through the MinIO Go
// client: buckets, uploads, downloads, ranged reads, copies, and an explicit
// multipart upload via the low-level Core API.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// getenv returns the value of the environment variable named by key or
// fallback if the variable is not present.
func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

const (
	BucketName    = "example-bucket"
	ArchiveBucket = "example-archive"
	ObjectName    = "notes/hello.txt"
	ObjectContent = "Hello from TinyStore!\n"
)

// EnsureBucket checks if a bucket exists, and creates it if it does not.
func EnsureBucket(ctx context.Context, client *minio.Client, bucketName string) error {
	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		if err := client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %q: %w", bucketName, err)
		}
	}
	return nil
}

// UploadObject uploads an object to the specified bucket.
func UploadObject(ctx context.Context, client *minio.Client, bucketName string, objectName string, content []byte) error {
	_, err := client.PutObject(ctx, bucketName, objectName, bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType: "text/plain",
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %q to bucket %q: %w", objectName, bucketName, err)
	}

	slog.Info("Uploaded object to bucket", "object", objectName, "bucket", bucketName)
	return nil
}

// ListBucketObjects lists all objects in the specified bucket.
func ListBucketObjects(ctx context.Context, client *minio.Client, bucketName string) error {
	slog.Info("Objects in bucket", "bucket", bucketName)
	for objectInfo := range client.ListObjects(ctx, bucketName, minio.ListObjectsOptions{Recursive: true}) {
		if objectInfo.Err != nil {
			return fmt.Errorf("failed to list objects in bucket %q: %w", bucketName, objectInfo.Err)
		}
		slog.Info("Object in bucket", "key", objectInfo.Key, "size", objectInfo.Size)
	}
	return nil
}

// DownloadObject downloads an object from the specified bucket to a local file.
func DownloadObject(ctx context.Context, client *minio.Client, bucketName string, objectName string, downloadPath string) error {
	if err := client.FGetObject(ctx, bucketName, objectName, downloadPath, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("failed to download object %q from bucket %q: %w", objectName, bucketName, err)
	}
	slog.Info("Downloaded object", "path", downloadPath)
	return nil
}

// ReadObjectRange reads a byte range from an object and logs what came back.
func ReadObjectRange(ctx context.Context, client *minio.Client, bucketName string, objectName string, start int64, end int64) error {
	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(start, end); err != nil {
		return fmt.Errorf("failed to set range: %w", err)
	}

	obj, err := client.GetObject(ctx, bucketName, objectName, opts)
	if err != nil {
		return fmt.Errorf("failed to read range of object %q: %w", objectName, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return fmt.Errorf("failed to read ranged object data: %w", err)
	}

	slog.Info("Read object range", "object", objectName, "start", start, "end", end, "content", string(data))
	return nil
}

// CopyObject performs a server-side copy between buckets.
func CopyObject(ctx context.Context, client *minio.Client, srcBucket string, srcObject string, destBucket string, destObject string) error {
	copySrc := minio.CopySrcOptions{Bucket: srcBucket, Object: srcObject}
	copyDst := minio.CopyDestOptions{Bucket: destBucket, Object: destObject}
	if _, err := client.CopyObject(ctx, copyDst, copySrc); err != nil {
		return fmt.Errorf("failed to copy object from %q/%q to %q/%q: %w", srcBucket, srcObject, destBucket, destObject, err)
	}
	slog.Info("Copied object", "source_object", srcObject, "dest_object", destObject, "source_bucket", srcBucket, "dest_bucket", destBucket)
	return nil
}

// MultipartUploadExample performs an explicit multipart upload using the
// low-level Core client. Every part but the last must be at least 5 MiB.
func MultipartUploadExample(ctx context.Context, client *minio.Client) error {

	const (
		bucket = "example-multipart-bucket"
		object = "assembled/archive.bin"
	)

	creds, err := client.GetCreds()
	if err != nil {
		return fmt.Errorf("failed to get client credentials: %w", err)
	}

	endpointURL := client.EndpointURL()

	coreClient, err := minio.NewCore(endpointURL.Host, &minio.Options{
		Creds:        credentials.NewStaticV4(creds.AccessKeyID, creds.SecretAccessKey, ""),
		Secure:       false,
		BucketLookup: minio.BucketLookupPath,
	})

	if err != nil {
		return fmt.Errorf("failed to create core client: %w", err)
	}

	if err := coreClient.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: "us-east-1"}); err != nil {
		return fmt.Errorf("failed to create bucket %q: %w", bucket, err)
	}

	uploadID, err := coreClient.NewMultipartUpload(ctx, bucket, object, minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return fmt.Errorf("failed to initiate multipart upload: %w", err)
	}

	log := slog.With("bucket", bucket, "object", object, "upload_id", uploadID)
	log.Info("Started multipart upload")

	partData := [][]byte{
		bytes.Repeat([]byte("AAAA"), 5*256*1024), // 5 MiB
		bytes.Repeat([]byte("BBBB"), 5*256*1024),
		bytes.Repeat([]byte("CCCC"), 128*1024), // smaller last part
	}

	var parts []minio.CompletePart
	totalLength := 0

	for i, data := range partData {
		partNumber := i + 1

		objPart, err := coreClient.PutObjectPart(ctx, bucket, object, uploadID, partNumber, bytes.NewReader(data), int64(len(data)), minio.PutObjectPartOptions{})
		if err != nil {
			return fmt.Errorf("failed to upload part %d: %w", partNumber, err)
		}

		parts = append(parts, minio.CompletePart{
			PartNumber: partNumber,
			ETag:       objPart.ETag,
		})
		totalLength += len(data)
	}

	_, err = coreClient.CompleteMultipartUpload(ctx, bucket, object, uploadID, parts, minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return fmt.Errorf("failed to complete multipart upload: %w", err)
	}

	log.Info("Completed multipart upload", "total_size", totalLength)
	return nil

}

func Run(ctx context.Context, client *minio.Client) error {
	// 1. Ensure bucket exists.
	if err := EnsureBucket(ctx, client, BucketName); err != nil {
		return fmt.Errorf("failed to ensure bucket exists: %w", err)
	}

	// 2. Upload a small text object.
	if err := UploadObject(ctx, client, BucketName, ObjectName, []byte(ObjectContent)); err != nil {
		return fmt.Errorf("failed to upload example file: %w", err)
	}

	// 3. List the contents of the bucket.
	if err := ListBucketObjects(ctx, client, BucketName); err != nil {
		return fmt.Errorf("failed to list bucket objects: %w", err)
	}

	// 4. Download the file.
	downloadPath := filepath.Join(".", "downloaded_"+filepath.Base(ObjectName))
	if err := DownloadObject(ctx, client, BucketName, ObjectName, downloadPath); err != nil {
		return fmt.Errorf("failed to download file: %w", err)
	}

	// 5. Read just the first word back with a ranged GET.
	if err := ReadObjectRange(ctx, client, BucketName, ObjectName, 0, 4); err != nil {
		return fmt.Errorf("failed to read object range: %w", err)
	}

	// 6. Copy the object within the same bucket and across buckets.
	if err := CopyObject(ctx, client, BucketName, ObjectName, BucketName, "notes/hello_copy.txt"); err != nil {
		return fmt.Errorf("failed to copy object within bucket: %w", err)
	}

	if err := EnsureBucket(ctx, client, ArchiveBucket); err != nil {
		return fmt.Errorf("failed to ensure archive bucket exists: %w", err)
	}

	if err := CopyObject(ctx, client, BucketName, ObjectName, ArchiveBucket, "2026/hello.txt"); err != nil {
		return fmt.Errorf("failed to copy object to archive bucket: %w", err)
	}

	// 7. List the contents of the archive bucket.
	if err := ListBucketObjects(ctx, client, ArchiveBucket); err != nil {
		return fmt.Errorf("failed to list bucket objects: %w", err)
	}

	// 8. Demonstrate multipart upload using the low-level Core client.
	if err := MultipartUploadExample(ctx, client); err != nil {
		return fmt.Errorf("failed to run multipart upload example: %w", err)
	}

	return nil
}

func main() {
	endpoint := getenv("TINYSTORE_ENDPOINT", "localhost:9000")
	accessKey := getenv("TINYSTORE_ACCESS_KEY", "minioadmin")
	secretKey := getenv("TINYSTORE_SECRET_KEY", "minioadmin")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: false,
	})

	if err != nil {
		slog.Error("failed to create MinIO client", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()

	if err := Run(ctx, client); err != nil {
		slog.Error("error running example", "err", err)
		os.Exit(1)
	}
}
