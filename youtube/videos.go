package youtube

import (
	"context"
	"fmt"
	"time"

	"commentguard/moderation"

	"google.golang.org/api/youtube/v3"
)

// VideoInfo is the metadata shown before moderating a video.
type VideoInfo struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	ChannelID    string    `json:"channel_id"`
	ChannelTitle string    `json:"channel_title"`
	PublishedAt  time.Time `json:"published_at"`
	Thumbnail    string    `json:"thumbnail,omitempty"`
	ViewCount    uint64    `json:"view_count"`
	LikeCount    uint64    `json:"like_count"`
	CommentCount uint64    `json:"comment_count"`
}

// VideoInfo fetches snippet and statistics for videoID.
func (c *Client) VideoInfo(ctx context.Context, videoID string) (*VideoInfo, error) {
	var resp *youtube.VideoListResponse
	err := call(ctx, c.quota, c.retry, c.logger, CostListVideos, "videos.list", videoID, func(ctx context.Context) error {
		var err error
		resp, err = c.service.Videos.List([]string{"snippet", "statistics"}).
			Id(videoID).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, notFoundAsVideo(err)
	}
	if len(resp.Items) == 0 {
		return nil, &APIError{Op: "videos.list", ID: videoID, Kind: moderation.ErrVideoNotFound, Err: fmt.Errorf("no video with id %s", videoID)}
	}

	v := resp.Items[0]
	info := &VideoInfo{ID: v.Id}
	if v.Snippet != nil {
		info.Title = v.Snippet.Title
		info.ChannelID = v.Snippet.ChannelId
		info.ChannelTitle = v.Snippet.ChannelTitle
		info.PublishedAt = parseTime(v.Snippet.PublishedAt)
		if th := v.Snippet.Thumbnails; th != nil {
			switch {
			case th.High != nil:
				info.Thumbnail = th.High.Url
			case th.Default != nil:
				info.Thumbnail = th.Default.Url
			}
		}
	}
	if v.Statistics != nil {
		info.ViewCount = v.Statistics.ViewCount
		info.LikeCount = v.Statistics.LikeCount
		info.CommentCount = v.Statistics.CommentCount
	}
	return info, nil
}

// parseTime parses an RFC 3339 timestamp, returning zero on failure.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
