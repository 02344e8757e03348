// Package s3 exposes the storage engine over an S3-compatible HTTP API.
// Requests are translated into engine operations and engine errors are
// translated back into S3 XML error responses; all storage semantics live
// in internal/store.
package s3

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"tinystore/internal/auth"
	"tinystore/internal/store"
)

// Regex for validating S3 bucket names.
// matches lowercase letters, digits, dots, and hyphens,
// must start and end with a letter or digit, and must be between 3 and 63 characters long.
var bucketNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

// Config holds the tunables for a Server.
type Config struct {
	// Region is reported by GetBucketLocation. Defaults to us-east-1.
	Region string

	// AccessKeyID and SecretAccessKey are the credentials requests must
	// present, either as SigV4 signatures or HTTP Basic auth. Both default
	// to "minioadmin".
	AccessKeyID     string
	SecretAccessKey string
}

// Server provides an S3-compatible HTTP API over a storage engine.
type Server struct {
	cfg   Config
	store *store.Store
	auth  auth.Engine
}

// NewServer wraps a storage engine in an HTTP API server.
func NewServer(st *store.Store, cfg Config) *Server {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.AccessKeyID == "" {
		cfg.AccessKeyID = "minioadmin"
	}
	if cfg.SecretAccessKey == "" {
		cfg.SecretAccessKey = "minioadmin"
	}

	engine := auth.NewChainEngine(
		auth.NewSigV4Engine(cfg.AccessKeyID, cfg.SecretAccessKey),
		auth.NewBasicEngine(cfg.AccessKeyID, cfg.SecretAccessKey),
	)

	return &Server{cfg: cfg, store: st, auth: engine}
}

// Handler returns an http.Handler implementing the S3/MinIO API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Non-S3 operational endpoints. The "-" segment can never collide with
	// a bucket because it fails bucket-name validation.
	mux.HandleFunc("GET /-/health", s.handleHealth)
	mux.HandleFunc("GET /-/stats", s.handleStats)

	// List all buckets
	mux.HandleFunc("GET /{$}", s.handleListBuckets)

	// Bucket-level operations
	mux.HandleFunc("PUT /{bucket}", func(w http.ResponseWriter, r *http.Request) {
		s.handleBucketPut(w, r, r.PathValue("bucket"))
	})
	mux.HandleFunc("GET /{bucket}", func(w http.ResponseWriter, r *http.Request) {
		s.handleBucketGet(w, r, r.PathValue("bucket"))
	})
	mux.HandleFunc("HEAD /{bucket}", func(w http.ResponseWriter, r *http.Request) {
		s.handleBucketHead(w, r, r.PathValue("bucket"))
	})
	mux.HandleFunc("DELETE /{bucket}", func(w http.ResponseWriter, r *http.Request) {
		s.handleBucketDelete(w, r, r.PathValue("bucket"))
	})
	mux.HandleFunc("POST /{bucket}", func(w http.ResponseWriter, r *http.Request) {
		s.handleBucketPost(w, r, r.PathValue("bucket"))
	})

	// Object-level operations
	mux.HandleFunc("PUT /{bucket}/{key...}", func(w http.ResponseWriter, r *http.Request) {
		s.handleObjectPut(w, r, r.PathValue("bucket"), r.PathValue("key"))
	})
	mux.HandleFunc("GET /{bucket}/{key...}", func(w http.ResponseWriter, r *http.Request) {
		s.handleObjectGet(w, r, r.PathValue("bucket"), r.PathValue("key"))
	})
	mux.HandleFunc("HEAD /{bucket}/{key...}", func(w http.ResponseWriter, r *http.Request) {
		s.handleObjectHead(w, r, r.PathValue("bucket"), r.PathValue("key"))
	})
	mux.HandleFunc("DELETE /{bucket}/{key...}", func(w http.ResponseWriter, r *http.Request) {
		s.handleObjectDelete(w, r, r.PathValue("bucket"), r.PathValue("key"))
	})
	mux.HandleFunc("POST /{bucket}/{key...}", func(w http.ResponseWriter, r *http.Request) {
		s.handleObjectPost(w, r, r.PathValue("bucket"), r.PathValue("key"))
	})

	return LogRequest(RequireAuthentication(s.auth, Recoverer(SlashFix(mux))))
}

// writeNotImplemented is a helper for stubbing unsupported S3 operations.
func (s *Server) writeNotImplemented(w http.ResponseWriter, r *http.Request, op string) {
	message := op + " is not implemented."
	writeS3Error(w, "NotImplemented", message, r.URL.Path, http.StatusNotImplemented)
}

// isValidBucketName implements the standard S3 bucket naming rules for
// "virtual hosted-style" buckets.
func isValidBucketName(name string) bool {

	// Must consist only of lowercase letters, digits, dots, or hyphens,
	// and must start and end with a letter or digit.
	if !bucketNamePattern.MatchString(name) {
		return false
	}

	// Disallow patterns like "..", ".-", "-.".
	if strings.Contains(name, "..") {
		return false
	}

	for i := 1; i < len(name); i++ {
		if (name[i-1] == '.' && name[i] == '-') || (name[i-1] == '-' && name[i] == '.') {
			return false
		}
	}

	// Bucket name must not be formatted as an IPv4 address.
	ip := net.ParseIP(name)
	return ip == nil
}

// isValidObjectKey enforces basic S3 object key constraints: non-empty,
// at most 1024 bytes, and no control characters.
func isValidObjectKey(key string) bool {
	if len(key) == 0 || len(key) > 1024 {
		return false
	}

	return !strings.ContainsFunc(key, func(c rune) bool {
		return c < 0x20 || c == 0x7f
	})
}

// validateBucketNameOrError writes an S3 InvalidBucketName error and returns
// false if the provided name does not meet S3 bucket naming rules.
func validateBucketNameOrError(w http.ResponseWriter, r *http.Request, bucket string) bool {
	if !isValidBucketName(bucket) {
		writeS3Error(w, "InvalidBucketName", "The specified bucket is not valid.", r.URL.Path, http.StatusBadRequest)
		return false
	}
	return true
}

// validateObjectKeyOrError writes an S3-style error for invalid object keys.
func validateObjectKeyOrError(w http.ResponseWriter, r *http.Request, key string) bool {
	if !isValidObjectKey(key) {
		writeS3Error(w, "InvalidObjectName", "The specified key is not valid.", r.URL.Path, http.StatusBadRequest)
		return false
	}
	return true
}

// writeXMLResponse encodes v as XML and writes it to w with a 200 OK status.
func writeXMLResponse(w http.ResponseWriter, v any) error {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	return xml.NewEncoder(w).Encode(v)
}

// createETag formats a hash hex string as an ETag value.
func createETag(hashHex string) string {
	return fmt.Sprintf("\"%s\"", hashHex)
}

// trimETag strips the surrounding quotes a client echoes back in part lists.
func trimETag(etag string) string {
	return strings.Trim(etag, "\"")
}

// ------ Dispatchers for bucket-level HTTP handlers ------

// handleBucketPut dispatches PUT /bucket[?subresource] between CreateBucket
// and various bucket configuration APIs.
func (s *Server) handleBucketPut(w http.ResponseWriter, r *http.Request, bucket string) {
	if !validateBucketNameOrError(w, r, bucket) {
		return
	}

	q := r.URL.Query()
	switch {
	case q.Has("tagging"):
		s.writeNotImplemented(w, r, "PutBucketTagging")
	case q.Has("versioning"):
		s.writeNotImplemented(w, r, "PutBucketVersioning")
	case q.Has("encryption"):
		s.writeNotImplemented(w, r, "PutBucketEncryption")
	case q.Has("cors"):
		s.writeNotImplemented(w, r, "PutBucketCors")
	case q.Has("lifecycle"):
		s.writeNotImplemented(w, r, "PutBucketLifecycleConfiguration")
	case q.Has("policy"):
		s.writeNotImplemented(w, r, "PutBucketPolicy")
	case q.Has("replication"):
		s.writeNotImplemented(w, r, "PutBucketReplication")
	default:
		s.handleCreateBucket(w, r, bucket)
	}
}

// handleBucketGet dispatches GET /bucket[?subresource] between ListObjects
// and bucket-level read APIs.
func (s *Server) handleBucketGet(w http.ResponseWriter, r *http.Request, bucket string) {
	if !validateBucketNameOrError(w, r, bucket) {
		return
	}

	q := r.URL.Query()
	switch {
	case q.Has("location"):
		s.handleGetBucketLocation(w, r, bucket)
	case q.Has("tagging"):
		s.writeNotImplemented(w, r, "GetBucketTagging")
	case q.Has("versioning"):
		s.writeNotImplemented(w, r, "GetBucketVersioning")
	case q.Has("encryption"):
		s.writeNotImplemented(w, r, "GetBucketEncryption")
	case q.Has("cors"):
		s.writeNotImplemented(w, r, "GetBucketCors")
	case q.Has("lifecycle"):
		s.writeNotImplemented(w, r, "GetBucketLifecycleConfiguration")
	case q.Has("policy"):
		s.writeNotImplemented(w, r, "GetBucketPolicy")
	case q.Has("replication"):
		s.writeNotImplemented(w, r, "GetBucketReplication")
	case q.Has("versions"):
		s.writeNotImplemented(w, r, "ListObjectVersions")
	case q.Has("uploads"):
		s.handleListMultipartUploads(w, r, bucket)
	case q.Get("list-type") == "2":
		s.handleListObjectsV2(w, r, bucket)
	default:
		s.handleListObjects(w, r, bucket)
	}
}

// handleBucketPost implements POST /bucket[?subresource], such as DeleteObjects.
func (s *Server) handleBucketPost(w http.ResponseWriter, r *http.Request, bucket string) {
	if !validateBucketNameOrError(w, r, bucket) {
		return
	}

	q := r.URL.Query()
	switch {
	case q.Has("delete"):
		s.handleDeleteObjects(w, r, bucket)
	default:
		s.writeNotImplemented(w, r, "BucketPost")
	}
}

// handleBucketDelete implements DELETE /bucket[?subresource].
func (s *Server) handleBucketDelete(w http.ResponseWriter, r *http.Request, bucket string) {
	if !validateBucketNameOrError(w, r, bucket) {
		return
	}

	q := r.URL.Query()
	switch {
	case q.Has("tagging"):
		s.writeNotImplemented(w, r, "DeleteBucketTagging")
	case q.Has("cors"):
		s.writeNotImplemented(w, r, "DeleteBucketCors")
	case q.Has("lifecycle"):
		s.writeNotImplemented(w, r, "DeleteBucketLifecycle")
	case q.Has("policy"):
		s.writeNotImplemented(w, r, "DeleteBucketPolicy")
	default:
		s.handleDeleteBucket(w, r, bucket)
	}
}

// handleBucketHead implements HEAD /bucket.
func (s *Server) handleBucketHead(w http.ResponseWriter, r *http.Request, bucket string) {
	if !validateBucketNameOrError(w, r, bucket) {
		return
	}

	if _, err := s.store.GetBucket(r.Context(), bucket); err != nil {
		writeStoreError(w, r, err)
		return
	}

	// S3-compatible HEAD bucket: 200 with no body.
	w.WriteHeader(http.StatusOK)
}

// ------ Dispatchers for object-level HTTP handlers ------

// handleObjectPut dispatches PUT /bucket/key between PutObject, UploadPart,
// and CopyObject.
func (s *Server) handleObjectPut(w http.ResponseWriter, r *http.Request, bucket string, key string) {
	if !validateBucketNameOrError(w, r, bucket) {
		return
	}
	if !validateObjectKeyOrError(w, r, key) {
		return
	}

	q := r.URL.Query()

	if uploadID := q.Get("uploadId"); uploadID != "" {
		if partNumber := q.Get("partNumber"); partNumber != "" {
			if r.Header.Get("x-amz-copy-source") != "" {
				s.writeNotImplemented(w, r, "UploadPartCopy")
				return
			}

			partNum, err := strconv.Atoi(partNumber)
			if err != nil || partNum <= 0 {
				writeS3Error(w, "InvalidArgument", "Invalid part number.", r.URL.Path, http.StatusBadRequest)
				return
			}

			s.handleUploadPart(w, r, uploadID, partNum)
			return
		}
	}

	if q.Has("tagging") {
		s.writeNotImplemented(w, r, "PutObjectTagging")
		return
	}

	if copySource := r.Header.Get("x-amz-copy-source"); copySource != "" {
		s.handleCopyObject(w, r, bucket, key, copySource)
		return
	}

	s.handlePutObject(w, r, bucket, key)
}

// handleObjectGet implements GET /bucket/key to retrieve an object.
func (s *Server) handleObjectGet(w http.ResponseWriter, r *http.Request, bucket string, key string) {
	if !validateBucketNameOrError(w, r, bucket) {
		return
	}
	if !validateObjectKeyOrError(w, r, key) {
		return
	}

	q := r.URL.Query()
	switch {
	case q.Has("tagging"):
		s.writeNotImplemented(w, r, "GetObjectTagging")
	case q.Has("attributes"):
		s.writeNotImplemented(w, r, "GetObjectAttributes")
	case q.Has("uploadId"):
		s.handleListParts(w, r, bucket, key, q.Get("uploadId"))
	default:
		s.handleGetObject(w, r, bucket, key)
	}
}

// handleObjectDelete implements DELETE /bucket/key to delete an object.
func (s *Server) handleObjectDelete(w http.ResponseWriter, r *http.Request, bucket string, key string) {
	if !validateBucketNameOrError(w, r, bucket) {
		return
	}
	if !validateObjectKeyOrError(w, r, key) {
		return
	}

	q := r.URL.Query()
	switch {
	case q.Has("tagging"):
		s.writeNotImplemented(w, r, "DeleteObjectTagging")
	case q.Has("uploadId"):
		s.handleAbortMultipartUpload(w, r, q.Get("uploadId"))
	default:
		s.handleDeleteObject(w, r, bucket, key)
	}
}

// handleObjectPost implements POST /bucket/key[?subresource] operations such
// as CreateMultipartUpload and CompleteMultipartUpload.
func (s *Server) handleObjectPost(w http.ResponseWriter, r *http.Request, bucket string, key string) {
	if !validateBucketNameOrError(w, r, bucket) {
		return
	}
	if !validateObjectKeyOrError(w, r, key) {
		return
	}

	q := r.URL.Query()
	switch {
	case q.Has("uploads"):
		s.handleCreateMultipartUpload(w, r, bucket, key)
	case q.Has("uploadId"):
		s.handleCompleteMultipartUpload(w, r, bucket, key, q.Get("uploadId"))
	case q.Has("restore"):
		s.writeNotImplemented(w, r, "RestoreObject")
	case q.Has("select"):
		s.writeNotImplemented(w, r, "SelectObjectContent")
	default:
		s.writeNotImplemented(w, r, "ObjectPost")
	}
}

// ------ Individual API HTTP handlers ------

// handleListBuckets implements GET / to list all buckets.
func (s *Server) handleListBuckets(w http.ResponseWriter, r *http.Request) {
	buckets, err := s.store.ListBuckets(r.Context())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	entries := make([]BucketEntry, 0, len(buckets))
	for _, b := range buckets {
		entries = append(entries, BucketEntry{
			Name:         b.Name,
			CreationDate: b.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	resp := ListAllMyBucketsResult{
		XMLNS: s3XMLNamespace,
		Owner: Owner{
			ID:          "tinystore",
			DisplayName: "tinystore",
		},
		Buckets: entries,
	}

	if err := writeXMLResponse(w, resp); err != nil {
		slog.Error("Encode list buckets XML", "err", err)
	}
}

// handleCreateBucket implements PUT /bucket to create a new bucket.
func (s *Server) handleCreateBucket(w http.ResponseWriter, r *http.Request, bucket string) {
	if _, err := s.store.CreateBucket(r.Context(), bucket); err != nil {
		writeStoreError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// handleDeleteBucket implements DELETE /bucket for the primary bucket
// deletion operation (without subresources).
func (s *Server) handleDeleteBucket(w http.ResponseWriter, r *http.Request, bucket string) {
	if err := s.store.DeleteBucket(r.Context(), bucket); err != nil {
		writeStoreError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleGetBucketLocation implements GET /bucket?location
func (s *Server) handleGetBucketLocation(w http.ResponseWriter, r *http.Request, bucket string) {
	if _, err := s.store.GetBucket(r.Context(), bucket); err != nil {
		writeStoreError(w, r, err)
		return
	}

	resp := LocationConstraint{
		XMLNS:  s3XMLNamespace,
		Region: s.cfg.Region,
	}

	if err := writeXMLResponse(w, resp); err != nil {
		slog.Error("Encode bucket location XML", "bucket", bucket, "err", err)
	}
}

// listParamsFromQuery builds engine listing parameters from the shared v1/v2
// query parameters.
func listParamsFromQuery(q url.Values) store.ListObjectsParams {
	params := store.ListObjectsParams{
		Prefix:    q.Get("prefix"),
		Delimiter: q.Get("delimiter"),
	}
	if raw := q.Get("max-keys"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			params.MaxKeys = v
		}
	}
	return params
}

func objectSummaries(objects []store.ObjectInfo) []ObjectSummary {
	summaries := make([]ObjectSummary, 0, len(objects))
	for _, o := range objects {
		summaries = append(summaries, ObjectSummary{
			Key:          o.Key,
			LastModified: o.LastModified.UTC().Format(time.RFC3339),
			ETag:         createETag(o.ETag),
			Size:         o.Size,
			StorageClass: "STANDARD",
		})
	}
	return summaries
}

func commonPrefixEntries(prefixes []string) []CommonPrefix {
	entries := make([]CommonPrefix, 0, len(prefixes))
	for _, p := range prefixes {
		entries = append(entries, CommonPrefix{Prefix: p})
	}
	return entries
}

// handleListObjects implements the original S3 ListObjects API:
// GET /bucket[?prefix=&delimiter=&max-keys=&marker=].
func (s *Server) handleListObjects(w http.ResponseWriter, r *http.Request, bucket string) {
	q := r.URL.Query()
	params := listParamsFromQuery(q)
	params.StartAfter = q.Get("marker")

	result, err := s.store.ListObjects(r.Context(), bucket, params)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	maxKeys := params.MaxKeys
	if maxKeys == 0 {
		maxKeys = 1000
	}

	// NextMarker is the last entry of a truncated page, key or common
	// prefix, whichever sorts later; clients feed it back as marker.
	var nextMarker string
	if result.IsTruncated {
		if n := len(result.Objects); n > 0 {
			nextMarker = result.Objects[n-1].Key
		}
		if n := len(result.CommonPrefixes); n > 0 && result.CommonPrefixes[n-1] > nextMarker {
			nextMarker = result.CommonPrefixes[n-1]
		}
	}

	resp := ListBucketResult{
		XMLNS:          s3XMLNamespace,
		Name:           bucket,
		Prefix:         params.Prefix,
		Delimiter:      params.Delimiter,
		Marker:         params.StartAfter,
		NextMarker:     nextMarker,
		MaxKeys:        maxKeys,
		IsTruncated:    result.IsTruncated,
		Contents:       objectSummaries(result.Objects),
		CommonPrefixes: commonPrefixEntries(result.CommonPrefixes),
	}

	if err := writeXMLResponse(w, resp); err != nil {
		slog.Error("Encode list objects XML", "bucket", bucket, "err", err)
	}
}

// handleListObjectsV2 implements S3 ListObjectsV2:
// GET /bucket?list-type=2[&prefix=&delimiter=&max-keys=&continuation-token=&start-after=].
func (s *Server) handleListObjectsV2(w http.ResponseWriter, r *http.Request, bucket string) {
	q := r.URL.Query()
	params := listParamsFromQuery(q)
	params.ContinuationToken = q.Get("continuation-token")
	if params.ContinuationToken == "" {
		params.StartAfter = q.Get("start-after")
	}

	result, err := s.store.ListObjects(r.Context(), bucket, params)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	maxKeys := params.MaxKeys
	if maxKeys == 0 {
		maxKeys = 1000
	}

	resp := ListBucketResultV2{
		XMLNS:                 s3XMLNamespace,
		Name:                  bucket,
		Prefix:                params.Prefix,
		Delimiter:             params.Delimiter,
		KeyCount:              result.KeyCount,
		MaxKeys:               maxKeys,
		IsTruncated:           result.IsTruncated,
		ContinuationToken:     params.ContinuationToken,
		NextContinuationToken: result.NextContinuationToken,
		StartAfter:            params.StartAfter,
		Contents:              objectSummaries(result.Objects),
		CommonPrefixes:        commonPrefixEntries(result.CommonPrefixes),
	}

	if err := writeXMLResponse(w, resp); err != nil {
		slog.Error("Encode list objects v2 XML", "bucket", bucket, "err", err)
	}
}

// handlePutObject implements PUT /bucket/key to store an object.
func (s *Server) handlePutObject(w http.ResponseWriter, r *http.Request, bucket string, key string) {
	data, err := readObjectPayload(r)
	if err != nil {
		slog.Error("Read object payload", "bucket", bucket, "key", key, "err", err)
		writeS3Error(w, "InvalidRequest", "Failed to read request body", r.URL.Path, http.StatusBadRequest)
		return
	}

	res, err := s.store.PutObject(r.Context(), bucket, key, data, r.Header.Get("Content-Type"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	w.Header().Set("ETag", createETag(res.ETag))
	w.WriteHeader(http.StatusOK)
}

// handleGetObject implements GET /bucket/key, honoring a single-range Range
// header with a 206 response.
func (s *Server) handleGetObject(w http.ResponseWriter, r *http.Request, bucket string, key string) {
	var rng *store.RangeSpec
	if raw := r.Header.Get("Range"); raw != "" {
		parsed, err := store.ParseRange(raw)
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		rng = parsed
	}

	obj, err := s.store.GetObject(r.Context(), bucket, key, rng)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.Data)))
	w.Header().Set("Last-Modified", obj.LastModified.UTC().Format(http.TimeFormat))
	w.Header().Set("ETag", createETag(obj.ETag))
	w.Header().Set("Accept-Ranges", "bytes")

	if obj.ContentRange != "" {
		w.Header().Set("Content-Range", obj.ContentRange)
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	if _, err := w.Write(obj.Data); err != nil {
		slog.Error("Stream object", "bucket", bucket, "key", key, "err", err)
	}
}

// handleObjectHead implements HEAD /bucket/key, returning metadata headers
// compatible with S3 but without a response body.
func (s *Server) handleObjectHead(w http.ResponseWriter, r *http.Request, bucket string, key string) {
	if !validateBucketNameOrError(w, r, bucket) {
		return
	}
	if !validateObjectKeyOrError(w, r, key) {
		return
	}

	obj, err := s.store.HeadObject(r.Context(), bucket, key)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	w.Header().Set("Last-Modified", obj.LastModified.UTC().Format(http.TimeFormat))
	w.Header().Set("ETag", createETag(obj.ETag))
	w.Header().Set("Accept-Ranges", "bytes")

	w.WriteHeader(http.StatusOK)
}

// handleDeleteObject implements DELETE /bucket/key.
func (s *Server) handleDeleteObject(w http.ResponseWriter, r *http.Request, bucket string, key string) {
	if err := s.store.DeleteObject(r.Context(), bucket, key); err != nil {
		writeStoreError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteObjects implements the multi-object delete API:
// POST /bucket?delete
func (s *Server) handleDeleteObjects(w http.ResponseWriter, r *http.Request, bucket string) {
	defer r.Body.Close()
	var req DeleteObjectsRequest
	if err := xml.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Decode DeleteObjects XML", "bucket", bucket, "err", err)
		writeS3Error(w, "MalformedXML", "The XML you provided was not well-formed or did not validate against our published schema.", r.URL.Path, http.StatusBadRequest)
		return
	}

	if len(req.Objects) == 0 {
		writeS3Error(w, "InvalidRequest", "You must specify at least one object to delete.", r.URL.Path, http.StatusBadRequest)
		return
	}

	deleted := make([]DeleteObject, 0, len(req.Objects))
	for _, obj := range req.Objects {
		if obj.Key == "" {
			continue
		}

		if err := s.store.DeleteObject(r.Context(), bucket, obj.Key); err != nil {
			writeStoreError(w, r, err)
			return
		}

		deleted = append(deleted, obj)
	}

	resp := DeleteResult{
		XMLNS:   s3XMLNamespace,
		Deleted: deleted,
	}

	if err := writeXMLResponse(w, resp); err != nil {
		slog.Error("Encode DeleteObjects XML", "bucket", bucket, "err", err)
	}
}

// handleCopyObject implements a basic version of S3 CopyObject for
// non-multipart copies without conditional headers.
func (s *Server) handleCopyObject(w http.ResponseWriter, r *http.Request, destBucket string, destKey string, copySource string) {
	// Parse x-amz-copy-source, which is typically of the form
	// "/source-bucket/source-key" or "source-bucket/source-key" and may be
	// URL-encoded and include a query string.
	src := copySource
	if i := strings.Index(src, "?"); i != -1 {
		src = src[:i]
	}
	src = strings.TrimPrefix(src, "/")
	decoded, err := url.PathUnescape(src)
	if err != nil {
		writeS3Error(w, "InvalidRequest", "Unable to parse copy source.", r.URL.Path, http.StatusBadRequest)
		return
	}

	srcBucket, srcKey, ok := strings.Cut(decoded, "/")
	if !ok {
		writeS3Error(w, "InvalidRequest", "Invalid copy source.", r.URL.Path, http.StatusBadRequest)
		return
	}

	res, err := s.store.CopyObject(r.Context(), srcBucket, srcKey, destBucket, destKey)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	resp := CopyObjectResult{
		XMLNS:        s3XMLNamespace,
		LastModified: time.Now().UTC().Format(time.RFC3339),
		ETag:         createETag(res.ETag),
	}

	if err := writeXMLResponse(w, resp); err != nil {
		slog.Error("Encode copy object XML", "destBucket", destBucket, "destKey", destKey, "err", err)
	}
}

// ------ Multipart upload handlers ------

// handleCreateMultipartUpload implements CreateMultipartUpload
// (InitiateMultipartUpload): POST /bucket/key?uploads
func (s *Server) handleCreateMultipartUpload(w http.ResponseWriter, r *http.Request, bucket string, key string) {
	uploadID, err := s.store.CreateMultipartUpload(r.Context(), bucket, key, r.Header.Get("Content-Type"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	resp := InitiateMultipartUploadResult{
		XMLNS:    s3XMLNamespace,
		Bucket:   bucket,
		Key:      key,
		UploadID: uploadID,
	}

	if err := writeXMLResponse(w, resp); err != nil {
		slog.Error("Encode create multipart upload XML", "bucket", bucket, "key", key, "err", err)
	}
}

// handleUploadPart implements UploadPart: PUT /bucket/key?partNumber=N&uploadId=ID
func (s *Server) handleUploadPart(w http.ResponseWriter, r *http.Request, uploadID string, partNumber int) {
	data, err := readObjectPayload(r)
	if err != nil {
		slog.Error("Read upload part payload", "upload_id", uploadID, "part", partNumber, "err", err)
		writeS3Error(w, "InvalidRequest", "Failed to read request body", r.URL.Path, http.StatusBadRequest)
		return
	}

	etag, err := s.store.UploadPart(r.Context(), uploadID, partNumber, data)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	w.Header().Set("ETag", createETag(etag))
	w.WriteHeader(http.StatusOK)
}

// handleCompleteMultipartUpload implements CompleteMultipartUpload:
// POST /bucket/key?uploadId=ID
func (s *Server) handleCompleteMultipartUpload(w http.ResponseWriter, r *http.Request, bucket string, key string, uploadID string) {
	defer r.Body.Close()
	var req CompleteMultipartUpload
	if err := xml.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Decode complete multipart upload XML", "bucket", bucket, "key", key, "err", err)
		writeS3Error(w, "MalformedXML", "The XML you provided was not well-formed or did not validate against our published schema.", r.URL.Path, http.StatusBadRequest)
		return
	}

	completed := make([]store.CompletedPart, 0, len(req.Parts))
	for _, p := range req.Parts {
		completed = append(completed, store.CompletedPart{
			PartNumber: p.PartNumber,
			ETag:       trimETag(p.ETag),
		})
	}

	res, err := s.store.CompleteMultipartUpload(r.Context(), uploadID, completed)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	resp := CompleteMultipartUploadResult{
		XMLNS:    s3XMLNamespace,
		Location: fmt.Sprintf("/%s/%s", bucket, key),
		Bucket:   bucket,
		Key:      key,
		ETag:     createETag(res.ETag),
	}

	if err := writeXMLResponse(w, resp); err != nil {
		slog.Error("Encode complete multipart upload XML", "bucket", bucket, "key", key, "err", err)
	}
}

// handleAbortMultipartUpload implements AbortMultipartUpload:
// DELETE /bucket/key?uploadId=ID
func (s *Server) handleAbortMultipartUpload(w http.ResponseWriter, r *http.Request, uploadID string) {
	if err := s.store.AbortMultipartUpload(r.Context(), uploadID); err != nil {
		writeStoreError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleListParts implements the ListParts API:
// GET /bucket/key?uploadId=ID
func (s *Server) handleListParts(w http.ResponseWriter, r *http.Request, bucket string, key string, uploadID string) {
	_, parts, err := s.store.ListParts(r.Context(), uploadID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	entries := make([]ListPartsPart, 0, len(parts))
	for _, p := range parts {
		entries = append(entries, ListPartsPart{
			PartNumber:   p.PartNumber,
			LastModified: p.LastModified.UTC().Format(time.RFC3339),
			ETag:         createETag(p.ETag),
			Size:         p.Size,
		})
	}

	resp := ListPartsResult{
		XMLNS:    s3XMLNamespace,
		Bucket:   bucket,
		Key:      key,
		UploadID: uploadID,
		MaxParts: 1000,
		Parts:    entries,
	}

	if err := writeXMLResponse(w, resp); err != nil {
		slog.Error("Encode ListParts XML", "bucket", bucket, "key", key, "err", err)
	}
}

// handleListMultipartUploads implements ListMultipartUploads:
// GET /bucket?uploads
func (s *Server) handleListMultipartUploads(w http.ResponseWriter, r *http.Request, bucket string) {
	uploads, err := s.store.ListMultipartUploads(r.Context(), bucket)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	q := r.URL.Query()
	prefix := q.Get("prefix")
	maxUploads := 1000
	if raw := q.Get("max-uploads"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			maxUploads = v
		}
	}

	owner := Owner{ID: "tinystore", DisplayName: "tinystore"}
	entries := make([]MultipartUploadInfo, 0, len(uploads))
	for _, u := range uploads {
		if prefix != "" && !strings.HasPrefix(u.Key, prefix) {
			continue
		}
		if len(entries) >= maxUploads {
			break
		}
		entries = append(entries, MultipartUploadInfo{
			Key:          u.Key,
			UploadID:     u.ID,
			Initiator:    owner,
			Owner:        owner,
			StorageClass: "STANDARD",
			Initiated:    u.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	resp := ListMultipartUploadsResult{
		XMLNS:       s3XMLNamespace,
		Bucket:      bucket,
		Prefix:      prefix,
		MaxUploads:  maxUploads,
		IsTruncated: len(entries) >= maxUploads,
		Uploads:     entries,
	}

	if err := writeXMLResponse(w, resp); err != nil {
		slog.Error("Encode ListMultipartUploads XML", "bucket", bucket, "err", err)
	}
}

// ------ Operational endpoints ------

// handleHealth implements GET /-/health as a liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleStats implements GET /-/stats, reporting engine-wide totals.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		slog.Error("Collect stats", "err", err)
		writeInternalError(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		slog.Error("Encode stats JSON", "err", err)
	}
}
