package moderation

import (
	"context"
	"fmt"
	"log/slog"
)

// MaxBatchSize is the largest number of videos one batch may hold.
const MaxBatchSize = 10

// BatchItem is the result for one video of a batch.
type BatchItem struct {
	VideoID  string    `json:"video_id"`
	Response *Response `json:"response"`
}

// BatchResponse aggregates a batch run.
type BatchResponse struct {
	Items         []BatchItem `json:"items"`
	Videos        int         `json:"videos"`
	Succeeded     int         `json:"succeeded"`
	TotalComments int         `json:"total_comments"`
	SpamDetected  int         `json:"spam_detected"`
	DeletedCount  int         `json:"deleted_count"`
}

// RunBatch processes videos one after another, one invocation each. A
// failing video does not stop the batch.
func (p *Pipeline) RunBatch(ctx context.Context, reqs []Request) (*BatchResponse, error) {
	if len(reqs) == 0 {
		return nil, &ValidationError{Field: "videos", Reason: "at least one video required"}
	}
	if len(reqs) > MaxBatchSize {
		return nil, &ValidationError{Field: "videos", Reason: fmt.Sprintf("at most %d videos per batch", MaxBatchSize)}
	}

	out := &BatchResponse{Videos: len(reqs)}
	for _, req := range reqs {
		if ctx.Err() != nil {
			resp := &Response{Stage: StageFailed, Errors: []string{KindTimeout}, Summary: Summary{VideoID: req.VideoID, DryRun: req.DryRun}}
			out.Items = append(out.Items, BatchItem{VideoID: req.VideoID, Response: resp})
			continue
		}
		resp, err := p.Run(ctx, req)
		if err != nil {
			p.logger.Warn("batch item failed", slog.String("video_id", req.VideoID), slog.Any("error", err))
		}
		out.Items = append(out.Items, BatchItem{VideoID: req.VideoID, Response: resp})
		if resp.Success {
			out.Succeeded++
		}
		out.TotalComments += resp.Summary.TotalComments
		out.SpamDetected += resp.Summary.SpamDetected
		out.DeletedCount += resp.Summary.DeletedCount
	}
	return out, nil
}
