// Package youtube adapts the YouTube Data API v3 to the moderation
// pipeline: reading comment threads and video metadata with an API key,
// and removing comments with an authorized handle.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	httpx "commentguard/http"
	"commentguard/internal/logging"
	"commentguard/internal/retry"
	"commentguard/moderation"

	gtransport "google.golang.org/api/googleapi/transport"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// Config configures a Client.
type Config struct {
	// APIKey authorizes read calls. It may be empty when HTTPClient
	// already carries credentials.
	APIKey string
	// Endpoint overrides the Data API base URL.
	Endpoint string
	// HTTPClient is the base client for read calls. The API key is added
	// on top of its transport.
	HTTPClient *http.Client
	// DailyQuota is the project's unit allocation.
	DailyQuota int
	Retry      retry.Config
	Logger     *slog.Logger
}

// Client reads comments and video metadata.
type Client struct {
	service *youtube.Service
	quota   *Quota
	retry   retry.Config
	logger  *slog.Logger
}

// NewClient creates a read client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	logger := logging.Or(cfg.Logger)

	base := cfg.HTTPClient
	if base == nil {
		base = httpx.NewClient(nil)
	}
	hc := base
	if cfg.APIKey != "" {
		rt := base.Transport
		if rt == nil {
			rt = http.DefaultTransport
		}
		hc = &http.Client{
			Timeout:   base.Timeout,
			Transport: &gtransport.APIKey{Key: cfg.APIKey, Transport: rt},
		}
	}

	opts := []option.ClientOption{option.WithHTTPClient(hc)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}

	return &Client{
		service: service,
		quota:   NewQuota(cfg.DailyQuota, logger),
		retry:   cfg.Retry,
		logger:  logger,
	}, nil
}

// Quota returns the client's quota tracker.
func (c *Client) Quota() *Quota { return c.quota }

// Fetch implements moderation.CommentSource. It pages commentThreads.list
// newest first, 100 per page at most, until maxResults top-level comments
// are collected or pages run out. Replies are not fetched.
func (c *Client) Fetch(ctx context.Context, videoID string, maxResults int) ([]moderation.Comment, error) {
	comments := make([]moderation.Comment, 0, maxResults)
	seen := make(map[string]struct{}, maxResults)
	pageToken := ""

	for len(comments) < maxResults {
		pageSize := min(maxResults-len(comments), 100)

		var resp *youtube.CommentThreadListResponse
		err := call(ctx, c.quota, c.retry, c.logger, CostListCommentThreads, "commentThreads.list", videoID, func(ctx context.Context) error {
			req := c.service.CommentThreads.List([]string{"snippet"}).
				VideoId(videoID).
				Order("time").
				TextFormat("plainText").
				MaxResults(int64(pageSize)).
				Context(ctx)
			if pageToken != "" {
				req = req.PageToken(pageToken)
			}
			var err error
			resp, err = req.Do()
			return err
		})
		if err != nil {
			return nil, notFoundAsVideo(err)
		}

		for _, item := range resp.Items {
			cm, ok := toComment(item)
			if !ok {
				continue
			}
			if _, dup := seen[cm.ID]; dup {
				continue
			}
			seen[cm.ID] = struct{}{}
			comments = append(comments, cm)
			if len(comments) == maxResults {
				break
			}
		}

		c.logger.Debug("comment page fetched",
			slog.String("video_id", videoID),
			slog.Int("items", len(resp.Items)),
			slog.Int("total", len(comments)))

		if resp.NextPageToken == "" || len(resp.Items) == 0 {
			break
		}
		pageToken = resp.NextPageToken
	}
	return comments, nil
}

func toComment(item *youtube.CommentThread) (moderation.Comment, bool) {
	if item == nil || item.Snippet == nil || item.Snippet.TopLevelComment == nil || item.Snippet.TopLevelComment.Snippet == nil {
		return moderation.Comment{}, false
	}
	s := item.Snippet.TopLevelComment.Snippet
	id := item.Snippet.TopLevelComment.Id
	if id == "" {
		id = item.Id
	}
	return moderation.Comment{
		ID:          id,
		Author:      s.AuthorDisplayName,
		Text:        s.TextDisplay,
		PublishedAt: parseTime(s.PublishedAt),
		LikeCount:   s.LikeCount,
	}, true
}

// notFoundAsVideo treats a bare 404 from a list call as a missing video.
func notFoundAsVideo(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Kind == nil && apiErr.Status == http.StatusNotFound {
		apiErr.Kind = moderation.ErrVideoNotFound
	}
	return err
}

// call runs one quota-charged Data API request with retries on transient
// failures.
func call(ctx context.Context, quota *Quota, cfg retry.Config, logger *slog.Logger, cost int, op, id string, fn func(context.Context) error) error {
	cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		logger.Warn("retrying youtube call",
			slog.String("op", op),
			slog.String("id", id),
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.Any("error", err))
	}

	return retry.Do(ctx, cfg, isTransient, func(ctx context.Context) error {
		if err := quota.Reserve(cost); err != nil {
			return retry.Permanent(&APIError{Op: op, ID: id, Kind: moderation.ErrQuotaExceeded, Err: err})
		}
		err := fn(ctx)
		quota.Charge(cost)
		if err == nil {
			return nil
		}
		err = wrapError(op, id, err)
		if errors.Is(err, moderation.ErrQuotaExceeded) {
			quota.MarkExhausted()
		}
		return err
	})
}
