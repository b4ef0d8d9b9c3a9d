package youtube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"commentguard/internal/logging"
	"commentguard/moderation"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// Moderation modes.
const (
	// ModeDelete removes the comment with comments.delete.
	ModeDelete = "delete"
	// ModeReject hides it with comments.setModerationStatus(rejected).
	ModeReject = "reject"
)

// AuthorizedHandle is a moderation.AuthHandle that can issue
// authorized requests.
type AuthorizedHandle interface {
	moderation.AuthHandle
	HTTPClient() *http.Client
}

// ModeratorConfig configures a Moderator.
type ModeratorConfig struct {
	Mode string
	// BanAuthor also bans the author; only honored in ModeReject.
	BanAuthor bool
	Endpoint  string
	Quota     *Quota
	Logger    *slog.Logger
}

// Moderator implements moderation.CommentDeleter against the Data API.
// It does not retry; the executor owns pacing and retries.
type Moderator struct {
	mode      string
	banAuthor bool
	endpoint  string
	quota     *Quota
	logger    *slog.Logger

	// svc is the authorized service for client, the latest handle client.
	mu     sync.Mutex
	client *http.Client
	svc    *youtube.Service
}

// NewModerator creates a Moderator. An empty mode means ModeDelete.
func NewModerator(cfg ModeratorConfig) (*Moderator, error) {
	switch cfg.Mode {
	case "":
		cfg.Mode = ModeDelete
	case ModeDelete, ModeReject:
	default:
		return nil, fmt.Errorf("youtube: unknown moderation mode %q", cfg.Mode)
	}
	logger := logging.Or(cfg.Logger)
	if cfg.Quota == nil {
		cfg.Quota = NewQuota(0, logger)
	}
	return &Moderator{
		mode:      cfg.Mode,
		banAuthor: cfg.BanAuthor,
		endpoint:  cfg.Endpoint,
		quota:     cfg.Quota,
		logger:    logger,
	}, nil
}

// DeleteComment implements moderation.CommentDeleter.
func (m *Moderator) DeleteComment(ctx context.Context, handle moderation.AuthHandle, commentID string) error {
	svc, err := m.serviceFor(ctx, handle)
	if err != nil {
		return err
	}

	op, cost := "comments.delete", CostDeleteComment
	if m.mode == ModeReject {
		op, cost = "comments.setModerationStatus", CostSetModeration
	}
	if err := m.quota.Reserve(cost); err != nil {
		return err
	}

	if m.mode == ModeReject {
		req := svc.Comments.SetModerationStatus([]string{commentID}, "rejected").Context(ctx)
		if m.banAuthor {
			req = req.BanAuthor(true)
		}
		err = req.Do()
	} else {
		err = svc.Comments.Delete(commentID).Context(ctx).Do()
	}
	m.quota.Charge(cost)

	if err != nil {
		err = wrapError(op, commentID, err)
		if errors.Is(err, moderation.ErrQuotaExceeded) {
			m.quota.MarkExhausted()
		}
		return deletionError(commentID, err)
	}
	m.logger.Debug("comment moderated", slog.String("op", op), slog.String("comment_id", commentID))
	return nil
}

func (m *Moderator) serviceFor(ctx context.Context, handle moderation.AuthHandle) (*youtube.Service, error) {
	ah, ok := handle.(AuthorizedHandle)
	if !ok || !handle.Valid() {
		return nil, fmt.Errorf("%w: handle cannot authorize requests", moderation.ErrAuthLost)
	}
	hc := ah.HTTPClient()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client == hc {
		return m.svc, nil
	}
	svc, err := newAuthorizedService(ctx, hc, m.endpoint)
	if err != nil {
		return nil, err
	}
	m.client, m.svc = hc, svc
	return svc, nil
}

func newAuthorizedService(ctx context.Context, hc *http.Client, endpoint string) (*youtube.Service, error) {
	opts := []option.ClientOption{option.WithHTTPClient(hc)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	return svc, nil
}
