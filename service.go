package commentguard

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"commentguard/auth"
	"commentguard/classifier"
	"commentguard/config"
	httpx "commentguard/http"
	"commentguard/internal/logging"
	"commentguard/internal/retry"
	"commentguard/moderation"
	"commentguard/storage"
	"commentguard/youtube"
)

// Service wires the moderation pipeline to YouTube, the AI service and
// the stored OAuth session.
type Service struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      storage.CredentialStore
	auth       *auth.Manager
	youtube    *youtube.Client
	moderator  *youtube.Moderator
	classifier *classifier.Classifier
	executor   *moderation.Executor
	pipeline   *moderation.Pipeline
}

// New builds a Service from cfg. A nil logger uses slog.Default.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Service, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger = logging.Or(logger)

	hc := httpx.NewClient(httpConfig(cfg))
	rc := retryConfig(cfg.Retry)

	yt, err := youtube.NewClient(ctx, youtube.Config{
		APIKey:     cfg.YouTube.APIKey,
		Endpoint:   cfg.YouTube.Endpoint,
		HTTPClient: hc,
		DailyQuota: cfg.YouTube.DailyQuota,
		Retry:      rc,
		Logger:     logger.With("component", "youtube"),
	})
	if err != nil {
		return nil, err
	}

	mod, err := youtube.NewModerator(youtube.ModeratorConfig{
		Mode:      cfg.Pipeline.ModerationMode,
		BanAuthor: cfg.Pipeline.BanAuthor,
		Endpoint:  cfg.YouTube.Endpoint,
		Quota:     yt.Quota(),
		Logger:    logger.With("component", "moderator"),
	})
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(cfg.OAuth.CredentialsFile); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create credentials directory: %w", err)
		}
	}
	store, err := storage.NewJSONStore(cfg.OAuth.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}

	am := auth.NewManager(store, auth.Config{
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		RedirectURL:  cfg.OAuth.RedirectURL,
		RevokeURL:    cfg.OAuth.RevokeURL,
		HTTPClient:   hc,
		Lookup: func(ctx context.Context, hc *http.Client) (string, string, error) {
			ch, err := mod.Channel(ctx, hc)
			if err != nil {
				return "", "", err
			}
			return ch.ID, ch.Title, nil
		},
		Logger: logger,
	})

	var completer classifier.Completer
	if cfg.AI.APIKey != "" {
		completer, err = classifier.NewOpenAICompleter(classifier.OpenAIConfig{
			APIKey:         cfg.AI.APIKey,
			BaseURL:        cfg.AI.BaseURL,
			Model:          cfg.AI.Model,
			RequestTimeout: cfg.AI.RequestTimeout,
			HTTPClient:     hc,
		})
		if err != nil {
			store.Close()
			return nil, err
		}
	} else {
		logger.Warn("no AI API key configured; comments will be left unclassified")
	}
	cls := classifier.New(completer, classifier.Config{Retry: rc, Logger: logger})

	executor := moderation.NewExecutor(mod, moderation.ExecutorConfig{
		Interval: cfg.Pipeline.DeleteInterval,
		Retry:    rc,
	}, logger)

	pipeline := moderation.NewPipeline(yt, cls, executor, am, moderation.PipelineConfig{
		Thresholds: thresholds(cfg.Policy),
		Workers:    cfg.Pipeline.Workers,
		Timeout:    cfg.Pipeline.Timeout,
	}, logger)

	return &Service{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		auth:       am,
		youtube:    yt,
		moderator:  mod,
		classifier: cls,
		executor:   executor,
		pipeline:   pipeline,
	}, nil
}

// Close releases the credential store.
func (s *Service) Close() error {
	return s.store.Close()
}

// ProcessVideo runs the pipeline for one video. A zero MaxResults uses
// the configured default. The response is always non-nil.
func (s *Service) ProcessVideo(ctx context.Context, req moderation.Request) (*moderation.Response, error) {
	return s.pipeline.Run(ctx, s.withDefaults(req))
}

// ProcessBatch runs the pipeline for each video in turn.
func (s *Service) ProcessBatch(ctx context.Context, videoIDs []string, maxResults int, dryRun bool) (*moderation.BatchResponse, error) {
	reqs := make([]moderation.Request, len(videoIDs))
	for i, id := range videoIDs {
		reqs[i] = s.withDefaults(moderation.Request{VideoID: strings.TrimSpace(id), MaxResults: maxResults, DryRun: dryRun})
	}
	return s.pipeline.RunBatch(ctx, reqs)
}

func (s *Service) withDefaults(req moderation.Request) moderation.Request {
	if req.MaxResults == 0 {
		req.MaxResults = s.cfg.Pipeline.DefaultMaxResults
	}
	return req
}

// AnalyzeComment classifies text and applies the decision policy to it.
func (s *Service) AnalyzeComment(ctx context.Context, text string) (moderation.Classification, error) {
	if strings.TrimSpace(text) == "" {
		return moderation.Classification{}, &moderation.ValidationError{Field: "text", Reason: "must not be empty"}
	}
	c := moderation.Apply(s.classifier.Classify(ctx, text), thresholds(s.cfg.Policy))
	if c.Unresolved() {
		return c, fmt.Errorf("%w: %s", moderation.ErrClassificationUnresolved, c.Error)
	}
	return c, nil
}

// DeleteComment removes a single comment with the stored session, paced
// and retried like a pipeline deletion. A permanent failure is reported in
// the outcome, not as an error.
func (s *Service) DeleteComment(ctx context.Context, commentID string) (moderation.DeletionOutcome, error) {
	commentID = strings.TrimSpace(commentID)
	if commentID == "" {
		return moderation.DeletionOutcome{}, &moderation.ValidationError{Field: "comment_id", Reason: "must not be empty"}
	}

	h, err := s.auth.ValidHandle(ctx)
	if err != nil {
		return moderation.DeletionOutcome{CommentID: commentID, Status: moderation.NotAttempted()}, err
	}
	outcomes, err := s.executor.Execute(ctx, []string{commentID}, h)
	if len(outcomes) == 0 {
		if err == nil {
			err = moderation.ErrAuthRequired
		}
		return moderation.DeletionOutcome{CommentID: commentID, Status: moderation.NotAttempted()}, err
	}
	out := outcomes[0]
	s.logger.Info("single comment moderation", slog.String("comment_id", commentID), slog.String("status", out.Status.String()))
	return out, err
}

// VideoInfo returns metadata for a video.
func (s *Service) VideoInfo(ctx context.Context, videoID string) (*youtube.VideoInfo, error) {
	if err := moderation.ValidateVideoID(videoID); err != nil {
		return nil, err
	}
	return s.youtube.VideoInfo(ctx, videoID)
}

// AuthStatus reports the stored session.
func (s *Service) AuthStatus(ctx context.Context) (*auth.Status, error) {
	return s.auth.Status(ctx)
}

// LoginURL starts the OAuth consent flow.
func (s *Service) LoginURL(ctx context.Context) (string, error) {
	return s.auth.LoginURL(ctx)
}

// CompleteLogin finishes the flow started with LoginURL.
func (s *Service) CompleteLogin(ctx context.Context, state, code string) (*auth.Status, error) {
	return s.auth.CompleteLogin(ctx, state, code)
}

// Logout revokes and forgets the stored session.
func (s *Service) Logout(ctx context.Context) error {
	return s.auth.Logout(ctx)
}

// QuotaRemaining is the Data API quota left in the current Pacific day.
func (s *Service) QuotaRemaining() int {
	return s.youtube.Quota().Remaining()
}

func thresholds(p config.PolicyConfig) moderation.Thresholds {
	return moderation.Thresholds{
		Delete:     p.DeleteThreshold,
		MediumRisk: p.MediumRiskThreshold,
		HighRisk:   p.HighRiskThreshold,
	}
}

func retryConfig(r config.RetryConfig) retry.Config {
	return retry.Config{
		MaxRetries:     r.MaxRetries,
		InitialBackoff: r.InitialBackoff,
		MaxBackoff:     r.MaxBackoff,
		Multiplier:     r.BackoffMultiplier,
		JitterFraction: 0.2,
	}
}

// httpConfig applies the configured rates to the Data API hosts and to
// whichever host serves the AI endpoint.
func httpConfig(cfg *config.Config) *httpx.Config {
	hc := httpx.DefaultConfig()
	rates := map[string]float64{
		httpx.GoogleAPIsHost: cfg.RateLimit.DataAPIRPS,
		httpx.YouTubeAPIHost: cfg.RateLimit.DataAPIRPS,
		httpx.OpenAIHost:     cfg.RateLimit.AIRPS,
	}
	if u, err := url.Parse(cfg.AI.BaseURL); err == nil && u.Hostname() != "" {
		rates[u.Hostname()] = cfg.RateLimit.AIRPS
	}
	hc.RateLimiter.HostRates = rates
	return hc
}
