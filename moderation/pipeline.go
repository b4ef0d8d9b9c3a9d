package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"commentguard/internal/logging"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// CommentSource fetches up to maxResults top-level comments in upstream order.
type CommentSource interface {
	Fetch(ctx context.Context, videoID string, maxResults int) ([]Comment, error)
}

// Classifier judges one comment. It never fails; unrecoverable upstream
// errors come back as an unresolved classification.
type Classifier interface {
	Classify(ctx context.Context, text string) Classification
}

// AuthProvider hands out a valid credential handle or ErrAuthRequired.
type AuthProvider interface {
	ValidHandle(ctx context.Context) (AuthHandle, error)
}

// MaxResultsLimit is the largest page budget a request may ask for.
const MaxResultsLimit = 200

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// Request asks for one video to be moderated.
type Request struct {
	VideoID    string `json:"video_id"`
	MaxResults int    `json:"max_results"`
	DryRun     bool   `json:"dry_run"`
}

// Validate rejects malformed requests before any external call.
func (r Request) Validate() error {
	if err := ValidateVideoID(r.VideoID); err != nil {
		return err
	}
	if r.MaxResults < 1 || r.MaxResults > MaxResultsLimit {
		return &ValidationError{Field: "max_results", Reason: fmt.Sprintf("must be between 1 and %d", MaxResultsLimit)}
	}
	return nil
}

// ValidateVideoID checks the 11 character platform id format.
func ValidateVideoID(id string) error {
	if !videoIDPattern.MatchString(id) {
		return &ValidationError{Field: "video_id", Reason: fmt.Sprintf("%q is not an 11 character video id", id)}
	}
	return nil
}

// Stage is a pipeline state.
type Stage string

const (
	StagePending        Stage = "pending"
	StageFetching       Stage = "fetching"
	StageClassifying    Stage = "classifying"
	StageDeciding       Stage = "deciding"
	StageDryRunComplete Stage = "dry_run_complete"
	StageDeleting       Stage = "deleting"
	StageAggregating    Stage = "aggregating"
	StageDone           Stage = "done"
	StageFailed         Stage = "failed"
)

var transitions = map[Stage][]Stage{
	StagePending:        {StageFetching},
	StageFetching:       {StageClassifying},
	StageClassifying:    {StageDeciding},
	StageDeciding:       {StageDryRunComplete, StageDeleting},
	StageDryRunComplete: {StageAggregating},
	StageDeleting:       {StageAggregating},
	StageAggregating:    {StageDone},
}

// CanTransition reports whether from -> to is a legal move. Failed is
// reachable from every non-terminal stage.
func CanTransition(from, to Stage) bool {
	if from == StageDone || from == StageFailed {
		return false
	}
	if to == StageFailed {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Response is the outcome of one invocation. Success is true only when the
// run reached StageDone; Errors then lists per-comment problems, if any.
type Response struct {
	RunID        string             `json:"run_id"`
	Success      bool               `json:"success"`
	Stage        Stage              `json:"stage"`
	Summary      Summary            `json:"summary"`
	SpamComments []ProcessingResult `json:"spam_comments"`
	Results      []ProcessingResult `json:"results,omitempty"`
	Errors       []string           `json:"errors"`
}

// PipelineConfig tunes a pipeline.
type PipelineConfig struct {
	Thresholds Thresholds
	// Workers bounds concurrent classification calls.
	Workers int
	// Timeout is the overall deadline per invocation. Zero means none.
	Timeout time.Duration
}

// Pipeline runs fetch, classify, decide, delete and aggregate for one video.
type Pipeline struct {
	source     CommentSource
	classifier Classifier
	executor   *Executor
	auth       AuthProvider
	cfg        PipelineConfig
	logger     *slog.Logger
}

// NewPipeline wires the stages together. executor and auth may be nil when
// only dry runs are used.
func NewPipeline(source CommentSource, classifier Classifier, executor *Executor, auth AuthProvider, cfg PipelineConfig, logger *slog.Logger) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 5
	}
	return &Pipeline{
		source:     source,
		classifier: classifier,
		executor:   executor,
		auth:       auth,
		cfg:        cfg,
		logger:     logging.Or(logger),
	}
}

// run carries the mutable state of one invocation.
type run struct {
	req    Request
	resp   *Response
	logger *slog.Logger
	start  time.Time
}

func (r *run) moveTo(to Stage) {
	if !CanTransition(r.resp.Stage, to) {
		panic(fmt.Sprintf("moderation: illegal transition %s -> %s", r.resp.Stage, to))
	}
	r.logger.Debug("stage transition", slog.String("from", string(r.resp.Stage)), slog.String("to", string(to)))
	r.resp.Stage = to
}

func (r *run) fail(err error) (*Response, error) {
	r.moveTo(StageFailed)
	r.resp.Success = false
	r.resp.Errors = append(r.resp.Errors, describe(err))
	r.resp.Summary.ErrorsCount = len(r.resp.Errors)
	if !r.start.IsZero() {
		r.resp.Summary.ProcessingTime = time.Since(r.start)
	}
	r.logger.Error("moderation run failed", slog.String("kind", ErrorKind(err)), slog.Any("error", err))
	return r.resp, err
}

// Run processes one video. The response is always non-nil; the error is the
// fatal error that moved the run to StageFailed.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Response, error) {
	r := &run{
		req: req,
		resp: &Response{
			RunID:        uuid.NewString(),
			Stage:        StagePending,
			SpamComments: []ProcessingResult{},
			Errors:       []string{},
			Summary:      Summary{VideoID: req.VideoID, DryRun: req.DryRun},
		},
	}
	r.logger = p.logger.With(slog.String("run_id", r.resp.RunID), slog.String("video_id", req.VideoID))

	if err := req.Validate(); err != nil {
		return r.fail(err)
	}

	var handle AuthHandle
	if !req.DryRun {
		if p.auth == nil || p.executor == nil {
			return r.fail(ErrAuthRequired)
		}
		h, err := p.auth.ValidHandle(ctx)
		if err != nil {
			if !errors.Is(err, ErrAuthRequired) {
				err = fmt.Errorf("%w: %v", ErrAuthRequired, err)
			}
			return r.fail(err)
		}
		handle = h
	}

	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	r.logger.Info("moderation run started", slog.Int("max_results", req.MaxResults), slog.Bool("dry_run", req.DryRun))
	r.start = time.Now()

	r.moveTo(StageFetching)
	comments, err := p.source.Fetch(ctx, req.VideoID, req.MaxResults)
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: fetching comments: %v", ErrTimeout, err)
		}
		return r.fail(err)
	}
	comments = uniqueComments(comments)
	r.logger.Info("comments fetched", slog.Int("count", len(comments)))

	r.moveTo(StageClassifying)
	classes, err := p.classifyAll(ctx, comments)
	if err != nil {
		return r.fail(err)
	}

	r.moveTo(StageDeciding)
	results := make([]ProcessingResult, len(comments))
	var flagged []string
	for i, c := range comments {
		cls := Apply(classes[i], p.cfg.Thresholds)
		results[i] = ProcessingResult{Comment: c, Classification: cls}
		if cls.Unresolved() {
			r.resp.Errors = append(r.resp.Errors, fmt.Sprintf("%s: comment %s: %s", KindUnresolved, c.ID, cls.Error))
		}
		if cls.RecommendedAction == ActionDelete {
			flagged = append(flagged, c.ID)
		}
	}
	r.resp.Results = results
	r.logger.Info("decisions made", slog.Int("flagged", len(flagged)))

	var stopErr error
	if req.DryRun {
		r.moveTo(StageDryRunComplete)
	} else {
		// Comments already classified are still reported when the run
		// fails before any deletion is issued.
		diagnose := func(err error) (*Response, error) {
			r.resp.Summary = Aggregate(req.VideoID, req.DryRun, results, p.cfg.Thresholds, len(r.resp.Errors), time.Since(r.start))
			r.resp.SpamComments = spamOf(results)
			return r.fail(err)
		}
		if !handle.Valid() {
			return diagnose(ErrAuthRequired)
		}
		r.moveTo(StageDeleting)
		outcomes, err := p.executor.Execute(ctx, flagged, handle)
		if err != nil && outcomes == nil {
			return diagnose(err)
		}
		stopErr = err
		r.resp.Errors = append(r.resp.Errors, applyOutcomes(results, outcomes)...)
	}

	r.moveTo(StageAggregating)
	r.resp.SpamComments = spamOf(results)
	r.resp.Summary = Aggregate(req.VideoID, req.DryRun, results, p.cfg.Thresholds, len(r.resp.Errors), time.Since(r.start))

	if stopErr != nil {
		return r.fail(stopErr)
	}

	r.moveTo(StageDone)
	r.resp.Success = true
	r.logger.Info("moderation run complete",
		slog.Int("total", r.resp.Summary.TotalComments),
		slog.Int("spam", r.resp.Summary.SpamDetected),
		slog.Int("deleted", r.resp.Summary.DeletedCount),
		slog.Duration("elapsed", r.resp.Summary.ProcessingTime))
	return r.resp, nil
}

// classifyAll classifies with a bounded worker pool. Results are stored by
// index so output order matches fetch order.
func (p *Pipeline) classifyAll(ctx context.Context, comments []Comment) ([]Classification, error) {
	classes := make([]Classification, len(comments))

	var g errgroup.Group
	g.SetLimit(p.cfg.Workers)
	for i, c := range comments {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			classes[i] = p.classifier.Classify(ctx, c.Text)
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: classifying comments: %v", ErrTimeout, err)
	}
	return classes, nil
}

// applyOutcomes records deletion statuses on results and returns error
// entries for failed ids.
func applyOutcomes(results []ProcessingResult, outcomes []DeletionOutcome) []string {
	byID := make(map[string]DeletionOutcome, len(outcomes))
	for _, o := range outcomes {
		byID[o.CommentID] = o
	}

	var errs []string
	for i := range results {
		o, ok := byID[results[i].ID]
		if !ok {
			continue
		}
		status := o.Status
		results[i].DeletionStatus = &status
		if status.State == StateFailed {
			errs = append(errs, fmt.Sprintf("%s: comment %s: %s", KindDeletionFailed, o.CommentID, status))
		}
	}
	return errs
}

func spamOf(results []ProcessingResult) []ProcessingResult {
	spam := []ProcessingResult{}
	for _, r := range results {
		if r.Classification.RecommendedAction == ActionDelete {
			spam = append(spam, r)
		}
	}
	return spam
}

// uniqueComments drops repeated ids, keeping the first occurrence.
func uniqueComments(comments []Comment) []Comment {
	seen := make(map[string]struct{}, len(comments))
	out := comments[:0:0]
	for _, c := range comments {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}
