package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	httpx "commentguard/http"
	"commentguard/moderation"

	"google.golang.org/api/googleapi"
)

// Error reasons returned by the Data API that change how a call is handled.
const (
	reasonVideoNotFound      = "videoNotFound"
	reasonCommentsDisabled   = "commentsDisabled"
	reasonCommentNotFound    = "commentNotFound"
	reasonQuotaExceeded      = "quotaExceeded"
	reasonDailyLimitExceeded = "dailyLimitExceeded"
	reasonRateLimitExceeded  = "rateLimitExceeded"
	reasonUserRateLimit      = "userRateLimitExceeded"
	reasonForbidden          = "forbidden"
	reasonInsufficientPerms  = "insufficientPermissions"
	reasonProcessingFailure  = "processingFailure"
)

// APIError is a failed Data API call. Kind is the moderation sentinel the
// failure maps to, if any; errors.Is matches both Kind and Err.
type APIError struct {
	Op     string
	ID     string
	Status int
	Reason string
	Kind   error
	Err    error
}

func (e *APIError) Error() string {
	switch {
	case e.Reason != "":
		return fmt.Sprintf("youtube: %s %s: %s (status %d)", e.Op, e.ID, e.Reason, e.Status)
	case e.Status != 0:
		return fmt.Sprintf("youtube: %s %s: status %d: %v", e.Op, e.ID, e.Status, e.Err)
	default:
		return fmt.Sprintf("youtube: %s %s: %v", e.Op, e.ID, e.Err)
	}
}

func (e *APIError) Unwrap() []error {
	if e.Kind == nil {
		return []error{e.Err}
	}
	return []error{e.Kind, e.Err}
}

// statusAndReason extracts the HTTP status and first error reason from a
// googleapi error.
func statusAndReason(err error) (int, string) {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return 0, ""
	}
	reason := ""
	if len(gerr.Errors) > 0 {
		reason = gerr.Errors[0].Reason
	}
	return gerr.Code, reason
}

// wrapError converts a Data API error into an *APIError with its kind set.
func wrapError(op, id string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &APIError{Op: op, ID: id, Kind: moderation.ErrTimeout, Err: err}
	}
	status, reason := statusAndReason(err)
	return &APIError{Op: op, ID: id, Status: status, Reason: reason, Kind: kindOf(status, reason, err), Err: err}
}

func kindOf(status int, reason string, err error) error {
	switch reason {
	case reasonVideoNotFound:
		return moderation.ErrVideoNotFound
	case reasonCommentsDisabled:
		return moderation.ErrCommentsDisabled
	case reasonQuotaExceeded, reasonDailyLimitExceeded:
		return moderation.ErrQuotaExceeded
	case reasonRateLimitExceeded, reasonUserRateLimit:
		return moderation.ErrTransient
	}

	switch {
	case status == http.StatusUnauthorized, errors.Is(err, moderation.ErrAuthLost):
		return moderation.ErrAuthLost
	case status == http.StatusTooManyRequests, status >= 500:
		return moderation.ErrTransient
	case status == 0 && !errors.Is(err, httpx.ErrCircuitOpen):
		// Connection level failure.
		return moderation.ErrTransient
	}
	return nil
}

// isTransient is the retry classifier for Data API calls.
func isTransient(err error) bool {
	return errors.Is(err, moderation.ErrTransient)
}

// deletionError maps a failed moderation call to what the executor
// expects: sentinels for batch-stopping failures, *DeletionError for
// permanent per-comment ones, and the transient error itself otherwise.
func deletionError(commentID string, err error) error {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch {
	case errors.Is(err, moderation.ErrAuthLost),
		errors.Is(err, moderation.ErrQuotaExceeded),
		errors.Is(err, moderation.ErrTimeout),
		errors.Is(err, moderation.ErrTransient):
		return err
	}

	reason := moderation.ReasonUpstream
	switch {
	case apiErr.Status == http.StatusNotFound, apiErr.Reason == reasonCommentNotFound:
		reason = moderation.ReasonNotFound
	case apiErr.Reason == reasonProcessingFailure:
		reason = moderation.ReasonProcessingFailure
	case apiErr.Status == http.StatusForbidden,
		apiErr.Reason == reasonForbidden,
		apiErr.Reason == reasonInsufficientPerms:
		reason = moderation.ReasonForbidden
	}
	return &moderation.DeletionError{CommentID: commentID, Reason: reason, Err: err}
}
