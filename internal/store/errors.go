package store

import "errors"

// Sentinel errors for every failure mode the engine can report. Callers
// classify failures with errors.Is; the request layer maps each value to an
// S3 error code and HTTP status.
var (
	ErrNoSuchBucket        = errors.New("no such bucket")
	ErrBucketAlreadyExists = errors.New("bucket already exists")
	ErrBucketNotEmpty      = errors.New("bucket not empty")
	ErrNoSuchKey           = errors.New("no such key")
	ErrNoSuchUpload        = errors.New("no such upload")
	ErrInvalidPart         = errors.New("invalid part")
	ErrInvalidPartOrder    = errors.New("parts not in ascending order")
	ErrEntityTooSmall      = errors.New("part below minimum size")
	ErrInvalidRange        = errors.New("invalid range")

	ErrInvalidContinuationToken = errors.New("invalid continuation token")

	// ErrBackendUnavailable wraps I/O faults from the metadata database or
	// the blob backend, keeping them distinguishable from semantic errors.
	ErrBackendUnavailable = errors.New("storage backend unavailable")
)
