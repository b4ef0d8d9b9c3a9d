package commentguard

import (
	"errors"

	"commentguard/classifier"
	"commentguard/internal/retry"
	"commentguard/moderation"
	"commentguard/storage"
	"commentguard/youtube"
)

// Error handling types exported for library users.
//
// Using errors.Is() for sentinel errors:
//
//	if errors.Is(err, commentguard.ErrVideoNotFound) {
//		fmt.Println("Video not found")
//	}
//
// Using errors.As() for wrapped errors:
//
//	var apiErr *commentguard.APIError
//	if errors.As(err, &apiErr) {
//		fmt.Printf("%s failed with status %d (%s)\n", apiErr.Op, apiErr.Status, apiErr.Reason)
//	}

// Type aliases for convenient error handling.
type (
	// ValidationError reports a malformed request.
	ValidationError = moderation.ValidationError
	// DeletionError is a permanent failure to remove one comment.
	DeletionError = moderation.DeletionError
	// APIError wraps a failed YouTube Data API call.
	APIError = youtube.APIError
	// SchemaError reports an AI reply that failed validation.
	SchemaError = classifier.SchemaError
	// RetryableError wraps errors that occurred after retries were exhausted.
	RetryableError = retry.RetryableError
	// StorageError wraps errors during storage operations.
	StorageError = storage.StorageError
)

// Sentinel errors exported from sub-packages.
var (
	// ErrValidation matches every ValidationError.
	ErrValidation = moderation.ErrValidation
	// ErrVideoNotFound indicates the video does not exist or is private.
	ErrVideoNotFound = moderation.ErrVideoNotFound
	// ErrCommentsDisabled indicates comments are turned off for the video.
	ErrCommentsDisabled = moderation.ErrCommentsDisabled
	// ErrQuotaExceeded indicates the daily Data API quota is used up.
	ErrQuotaExceeded = moderation.ErrQuotaExceeded
	// ErrAuthRequired indicates an enforcing run without a usable session.
	ErrAuthRequired = moderation.ErrAuthRequired
	// ErrAuthLost indicates the session became unusable during a run.
	ErrAuthLost = moderation.ErrAuthLost
	// ErrTimeout indicates the run deadline passed.
	ErrTimeout = moderation.ErrTimeout
	// ErrClassificationUnresolved marks comments the AI could not judge.
	ErrClassificationUnresolved = moderation.ErrClassificationUnresolved
	// ErrDeletionFailed matches every DeletionError.
	ErrDeletionFailed = moderation.ErrDeletionFailed

	// Storage errors
	// ErrNotFound indicates a record was not found in storage.
	ErrNotFound = storage.ErrNotFound
	// ErrStorageCorrupt indicates data corruption was detected.
	ErrStorageCorrupt = storage.ErrStorageCorrupt
	// ErrLockTimeout indicates a timeout acquiring a file lock.
	ErrLockTimeout = storage.ErrLockTimeout
)

// IsRetryable determines if an error should be retried.
// It returns false for permanent errors like ErrQuotaExceeded.
func IsRetryable(err error) bool {
	return retry.IsRetryable(err) && errors.Is(err, moderation.ErrTransient)
}

// ErrorKind names the failure class of err, e.g. "AuthRequired" or
// "ExternalServiceError", as listed in response errors.
func ErrorKind(err error) string {
	return moderation.ErrorKind(err)
}
