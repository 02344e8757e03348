package s3

import (
	"encoding/xml"
	"errors"
	"log/slog"
	"net/http"

	"tinystore/internal/store"
)

// writeS3Error writes a minimal S3-style XML error response.
func writeS3Error(w http.ResponseWriter, code string, message string, resource string, status int) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_ = xml.NewEncoder(w).Encode(S3Error{
		Code:     code,
		Message:  message,
		Resource: resource,
	})
}

// writeInternalError writes a generic S3 InternalError response.
func writeInternalError(w http.ResponseWriter, r *http.Request) {
	writeS3Error(w, "InternalError", "We encountered an internal error. Please try again.", r.URL.Path, http.StatusInternalServerError)
}

// writeStoreError maps an engine error onto the matching S3 error code and
// HTTP status. Anything that is not one of the engine's sentinel errors is
// logged and reported as an InternalError.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNoSuchBucket):
		writeS3Error(w, "NoSuchBucket", "The specified bucket does not exist.", r.URL.Path, http.StatusNotFound)
	case errors.Is(err, store.ErrBucketAlreadyExists):
		writeS3Error(w, "BucketAlreadyExists", "The requested bucket name is not available. The bucket namespace is shared by all users of the system. Please select a different name and try again.", r.URL.Path, http.StatusConflict)
	case errors.Is(err, store.ErrBucketNotEmpty):
		writeS3Error(w, "BucketNotEmpty", "The bucket you tried to delete is not empty.", r.URL.Path, http.StatusConflict)
	case errors.Is(err, store.ErrNoSuchKey):
		writeS3Error(w, "NoSuchKey", "The specified key does not exist.", r.URL.Path, http.StatusNotFound)
	case errors.Is(err, store.ErrNoSuchUpload):
		writeS3Error(w, "NoSuchUpload", "The specified multipart upload does not exist.", r.URL.Path, http.StatusNotFound)
	case errors.Is(err, store.ErrInvalidPartOrder):
		writeS3Error(w, "InvalidPartOrder", "The list of parts was not in ascending order. Parts must be ordered by part number.", r.URL.Path, http.StatusBadRequest)
	case errors.Is(err, store.ErrInvalidPart):
		writeS3Error(w, "InvalidPart", "One or more of the specified parts could not be found or did not match.", r.URL.Path, http.StatusBadRequest)
	case errors.Is(err, store.ErrEntityTooSmall):
		writeS3Error(w, "EntityTooSmall", "Your proposed upload is smaller than the minimum allowed part size.", r.URL.Path, http.StatusBadRequest)
	case errors.Is(err, store.ErrInvalidRange):
		writeS3Error(w, "InvalidRange", "The requested range is not satisfiable.", r.URL.Path, http.StatusRequestedRangeNotSatisfiable)
	case errors.Is(err, store.ErrInvalidContinuationToken):
		writeS3Error(w, "InvalidArgument", "The continuation token provided is incorrect.", r.URL.Path, http.StatusBadRequest)
	default:
		slog.Error("Storage engine error", "path", r.URL.Path, "err", err)
		writeInternalError(w, r)
	}
}
