package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"commentguard/internal/logging"
	"commentguard/internal/retry"

	"golang.org/x/time/rate"
)

// AuthHandle is the credential handle obtained once per invocation.
type AuthHandle interface {
	// Valid reports whether the underlying session is still usable.
	Valid() bool
}

// CommentDeleter issues a single moderation call for one comment.
//
// Implementations return an error wrapping ErrAuthLost when the credential
// was rejected, ErrQuotaExceeded when the daily quota is spent, and a
// *DeletionError for permanent per-comment failures. Any other error is
// treated as transient.
type CommentDeleter interface {
	DeleteComment(ctx context.Context, handle AuthHandle, commentID string) error
}

// DeletionError is a permanent failure for one comment.
type DeletionError struct {
	CommentID string
	Reason    string
	Err       error
}

func (e *DeletionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("delete %s: %s: %v", e.CommentID, e.Reason, e.Err)
	}
	return fmt.Sprintf("delete %s: %s", e.CommentID, e.Reason)
}

func (e *DeletionError) Unwrap() error { return e.Err }

// Is lets errors.Is match ErrDeletionFailed.
func (e *DeletionError) Is(target error) bool { return target == ErrDeletionFailed }

// ExecutorConfig configures the moderation executor.
type ExecutorConfig struct {
	// Interval is the minimum spacing between moderation calls.
	Interval time.Duration
	// Retry bounds retries of a single call on transient failure.
	Retry retry.Config
}

// DefaultExecutorConfig returns one call per second and three attempts.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		Interval: time.Second,
		Retry:    retry.DefaultConfig(),
	}
}

// Executor removes flagged comments one at a time at a fixed maximum rate.
type Executor struct {
	deleter CommentDeleter
	limiter *rate.Limiter
	retry   retry.Config
	logger  *slog.Logger
}

// NewExecutor creates an executor around deleter.
func NewExecutor(deleter CommentDeleter, cfg ExecutorConfig, logger *slog.Logger) *Executor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultExecutorConfig().Interval
	}
	return &Executor{
		deleter: deleter,
		limiter: rate.NewLimiter(rate.Every(cfg.Interval), 1),
		retry:   cfg.Retry,
		logger:  logging.Or(logger),
	}
}

// Execute moderates commentIDs strictly in order. It fails with
// ErrAuthRequired before issuing anything if handle is not valid.
//
// The returned outcomes always cover every id. A non-nil error alongside
// outcomes means the batch stopped early: ErrAuthLost or ErrQuotaExceeded
// mark the remainder failed, ErrTimeout marks it not_attempted.
func (e *Executor) Execute(ctx context.Context, commentIDs []string, handle AuthHandle) ([]DeletionOutcome, error) {
	if handle == nil || !handle.Valid() {
		return nil, ErrAuthRequired
	}

	outcomes := make([]DeletionOutcome, 0, len(commentIDs))
	fill := func(from int, status DeletionStatus) {
		for _, id := range commentIDs[from:] {
			outcomes = append(outcomes, DeletionOutcome{CommentID: id, Status: status})
		}
	}

	for i, id := range commentIDs {
		if ctx.Err() != nil {
			fill(i, NotAttempted())
			return outcomes, fmt.Errorf("%w: %d of %d moderation calls not attempted", ErrTimeout, len(commentIDs)-i, len(commentIDs))
		}
		if !handle.Valid() {
			e.logger.Error("credential invalidated mid-batch", slog.Int("remaining", len(commentIDs)-i))
			fill(i, Failed(ReasonAuthLost))
			return outcomes, ErrAuthLost
		}

		issued, err := e.deleteOne(ctx, handle, id)
		switch {
		case err == nil:
			outcomes = append(outcomes, DeletionOutcome{CommentID: id, Status: Deleted()})
			e.logger.Info("comment removed", slog.String("comment_id", id))

		case errors.Is(err, ErrAuthLost):
			e.logger.Error("credential rejected", slog.String("comment_id", id), slog.Any("error", err))
			fill(i, Failed(ReasonAuthLost))
			return outcomes, ErrAuthLost

		case errors.Is(err, ErrQuotaExceeded):
			e.logger.Error("quota exceeded during moderation", slog.String("comment_id", id))
			fill(i, Failed(ReasonQuotaExceeded))
			return outcomes, ErrQuotaExceeded

		case ctx.Err() != nil || errors.Is(err, ErrTimeout):
			if issued {
				outcomes = append(outcomes, DeletionOutcome{CommentID: id, Status: Failed(ReasonDeadline), Detail: err.Error()})
				fill(i+1, NotAttempted())
			} else {
				fill(i, NotAttempted())
			}
			return outcomes, fmt.Errorf("%w: moderation batch interrupted", ErrTimeout)

		default:
			reason := ReasonUpstream
			var delErr *DeletionError
			if errors.As(err, &delErr) {
				reason = delErr.Reason
			}
			e.logger.Warn("comment removal failed",
				slog.String("comment_id", id),
				slog.String("reason", reason),
				slog.Any("error", err))
			outcomes = append(outcomes, DeletionOutcome{CommentID: id, Status: Failed(reason), Detail: err.Error()})
		}
	}

	return outcomes, nil
}

// deleteOne performs one paced, retried call. issued reports whether at
// least one request went out.
func (e *Executor) deleteOne(ctx context.Context, handle AuthHandle, id string) (issued bool, err error) {
	cfg := e.retry
	cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		e.logger.Warn("retrying comment removal",
			slog.String("comment_id", id),
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.Any("error", err))
	}

	err = retry.Do(ctx, cfg, isTransientDeletion, func(ctx context.Context) error {
		if err := e.limiter.Wait(ctx); err != nil {
			// Wait fails early when the next slot lies past the deadline.
			return retry.Permanent(fmt.Errorf("%w: %v", ErrTimeout, err))
		}
		issued = true
		return e.deleter.DeleteComment(ctx, handle, id)
	})
	return issued, err
}

func isTransientDeletion(err error) bool {
	if errors.Is(err, ErrAuthLost) || errors.Is(err, ErrQuotaExceeded) || errors.Is(err, ErrDeletionFailed) || errors.Is(err, ErrTimeout) {
		return false
	}
	return retry.IsRetryable(err)
}
