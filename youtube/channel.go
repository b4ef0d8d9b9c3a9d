package youtube

import (
	"context"
	"errors"
	"net/http"

	"commentguard/internal/retry"

	"google.golang.org/api/youtube/v3"
)

// ErrNoChannel is returned when the authorized account owns no channel.
var ErrNoChannel = errors.New("youtube: account has no channel")

// ChannelInfo identifies the channel behind an authorized account.
type ChannelInfo struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Channel looks up the channel of the account authorizing hc.
func (m *Moderator) Channel(ctx context.Context, hc *http.Client) (*ChannelInfo, error) {
	svc, err := newAuthorizedService(ctx, hc, m.endpoint)
	if err != nil {
		return nil, err
	}

	var resp *youtube.ChannelListResponse
	err = call(ctx, m.quota, retry.DefaultConfig(), m.logger, CostListChannels, "channels.list", "mine", func(ctx context.Context) error {
		var err error
		resp, err = svc.Channels.List([]string{"snippet"}).Mine(true).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, ErrNoChannel
	}

	ch := resp.Items[0]
	info := &ChannelInfo{ID: ch.Id}
	if ch.Snippet != nil {
		info.Title = ch.Snippet.Title
	}
	return info, nil
}
