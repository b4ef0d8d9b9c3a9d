package moderation

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for the moderation pipeline. Upstream adapters wrap these
// so callers can match with errors.Is.
var (
	ErrValidation               = errors.New("moderation: invalid request")
	ErrVideoNotFound            = errors.New("moderation: video not found")
	ErrCommentsDisabled         = errors.New("moderation: comments disabled for video")
	ErrQuotaExceeded            = errors.New("moderation: quota exceeded")
	ErrAuthRequired             = errors.New("moderation: authentication required")
	ErrAuthLost                 = errors.New("moderation: authentication lost")
	ErrTimeout                  = errors.New("moderation: deadline exceeded")
	ErrTransient                = errors.New("moderation: transient upstream failure")
	ErrClassificationUnresolved = errors.New("moderation: classification unresolved")
	ErrDeletionFailed           = errors.New("moderation: deletion failed")
)

// ValidationError reports a malformed request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("moderation: invalid %s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// Error kinds reported in response error lists.
const (
	KindValidation      = "ValidationError"
	KindAuthRequired    = "AuthRequired"
	KindVideoNotFound   = "VideoNotFound"
	KindQuotaExceeded   = "QuotaExceeded"
	KindTimeout         = "Timeout"
	KindExternalService = "ExternalServiceError"
	KindUnresolved      = "ClassificationUnresolved"
	KindDeletionFailed  = "DeletionFailed"
)

// ErrorKind maps err to its taxonomy name.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrAuthRequired), errors.Is(err, ErrAuthLost):
		return KindAuthRequired
	case errors.Is(err, ErrVideoNotFound):
		return KindVideoNotFound
	case errors.Is(err, ErrQuotaExceeded):
		return KindQuotaExceeded
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrClassificationUnresolved):
		return KindUnresolved
	case errors.Is(err, ErrDeletionFailed):
		return KindDeletionFailed
	default:
		return KindExternalService
	}
}

// describe renders err as "Kind" or "Kind: detail". Auth, quota, not-found
// and timeout errors render as the bare kind.
func describe(err error) string {
	kind := ErrorKind(err)
	switch kind {
	case KindAuthRequired, KindQuotaExceeded, KindVideoNotFound, KindTimeout:
		return kind
	}
	return kind + ": " + err.Error()
}
