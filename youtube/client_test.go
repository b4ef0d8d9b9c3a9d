package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	httpx "commentguard/http"
	"commentguard/internal/logging"
	"commentguard/internal/retry"
	"commentguard/moderation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/youtube/v3"
)

const testVideo = "dQw4w9WgXcQ"

func fastRetry() retry.Config {
	return retry.Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, Multiplier: 2}
}

func newTestClient(t *testing.T, h http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), Config{
		APIKey:     "test-key",
		Endpoint:   srv.URL + "/",
		HTTPClient: srv.Client(),
		Retry:      fastRetry(),
		Logger:     logging.Discard(),
	})
	require.NoError(t, err)
	return c, srv
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, code int, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"code":%d,"message":%q,"errors":[{"domain":"youtube","reason":%q,"message":%q}]}}`, code, reason, reason, reason)
}

func thread(id, text string) *youtube.CommentThread {
	return &youtube.CommentThread{
		Id: id,
		Snippet: &youtube.CommentThreadSnippet{
			TopLevelComment: &youtube.Comment{
				Id: id,
				Snippet: &youtube.CommentSnippet{
					AuthorDisplayName: "viewer " + id,
					TextDisplay:       text,
					PublishedAt:       "2024-05-01T10:00:00Z",
					LikeCount:         3,
				},
			},
		},
	}
}

// pagedThreads serves total threads, honoring maxResults and pageToken.
func pagedThreads(t *testing.T, total int, calls *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		q := r.URL.Query()
		assert.Equal(t, "/youtube/v3/commentThreads", r.URL.Path)
		assert.Equal(t, "test-key", q.Get("key"))
		assert.Equal(t, "snippet", q.Get("part"))
		assert.Equal(t, "time", q.Get("order"))
		assert.Equal(t, testVideo, q.Get("videoId"))

		start, _ := strconv.Atoi(q.Get("pageToken"))
		size, _ := strconv.Atoi(q.Get("maxResults"))
		assert.LessOrEqual(t, size, 100)

		resp := &youtube.CommentThreadListResponse{}
		for i := start; i < total && i < start+size; i++ {
			id := fmt.Sprintf("c%03d", i)
			resp.Items = append(resp.Items, thread(id, "text "+id))
		}
		if start+size < total {
			resp.NextPageToken = strconv.Itoa(start + size)
		}
		writeJSON(w, resp)
	}
}

func TestFetchPaginates(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, pagedThreads(t, 250, &calls))

	comments, err := c.Fetch(context.Background(), testVideo, 150)
	require.NoError(t, err)

	require.Len(t, comments, 150)
	assert.Equal(t, int32(2), calls.Load())
	for i, cm := range comments {
		assert.Equal(t, fmt.Sprintf("c%03d", i), cm.ID)
	}
	assert.Equal(t, "viewer c000", comments[0].Author)
	assert.Equal(t, int64(3), comments[0].LikeCount)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), comments[0].PublishedAt.UTC())
	assert.Equal(t, DefaultDailyQuota-2, c.Quota().Remaining())
}

func TestFetchStopsWhenPagesRunOut(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, pagedThreads(t, 30, &calls))

	comments, err := c.Fetch(context.Background(), testVideo, 200)
	require.NoError(t, err)
	assert.Len(t, comments, 30)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchDropsDuplicates(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("pageToken") == "" {
			writeJSON(w, &youtube.CommentThreadListResponse{
				Items:         []*youtube.CommentThread{thread("a", "1"), thread("b", "2")},
				NextPageToken: "next",
			})
			return
		}
		writeJSON(w, &youtube.CommentThreadListResponse{
			Items: []*youtube.CommentThread{thread("b", "2"), thread("c", "3")},
		})
	}))

	comments, err := c.Fetch(context.Background(), testVideo, 10)
	require.NoError(t, err)

	var ids []string
	for _, cm := range comments {
		ids = append(ids, cm.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestFetchErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		reason    string
		want      error
		wantCalls int32
	}{
		{"video not found", http.StatusNotFound, "videoNotFound", moderation.ErrVideoNotFound, 1},
		{"bare not found", http.StatusNotFound, "notFound", moderation.ErrVideoNotFound, 1},
		{"comments disabled", http.StatusForbidden, "commentsDisabled", moderation.ErrCommentsDisabled, 1},
		{"quota exceeded", http.StatusForbidden, "quotaExceeded", moderation.ErrQuotaExceeded, 1},
		{"backend error", http.StatusServiceUnavailable, "backendError", moderation.ErrTransient, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				writeAPIError(w, tt.status, tt.reason)
			}))

			_, err := c.Fetch(context.Background(), testVideo, 10)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.wantCalls, calls.Load())

			var apiErr *APIError
			if assert.ErrorAs(t, err, &apiErr) {
				assert.Equal(t, tt.status, apiErr.Status)
			}
		})
	}
}

func TestFetchRetriesTransient(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			writeAPIError(w, http.StatusForbidden, "rateLimitExceeded")
			return
		}
		writeJSON(w, &youtube.CommentThreadListResponse{Items: []*youtube.CommentThread{thread("a", "x")}})
	}))

	comments, err := c.Fetch(context.Background(), testVideo, 10)
	require.NoError(t, err)
	assert.Len(t, comments, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestQuotaExhaustionFailsFast(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeAPIError(w, http.StatusForbidden, "quotaExceeded")
	}))

	_, err := c.Fetch(context.Background(), testVideo, 10)
	require.ErrorIs(t, err, moderation.ErrQuotaExceeded)
	assert.Zero(t, c.Quota().Remaining())

	_, err = c.Fetch(context.Background(), testVideo, 10)
	assert.ErrorIs(t, err, moderation.ErrQuotaExceeded)
	assert.Equal(t, int32(1), calls.Load())
}

func TestVideoInfo(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/youtube/v3/videos", r.URL.Path)
		if r.URL.Query().Get("id") != testVideo {
			writeJSON(w, &youtube.VideoListResponse{})
			return
		}
		writeJSON(w, &youtube.VideoListResponse{Items: []*youtube.Video{{
			Id: testVideo,
			Snippet: &youtube.VideoSnippet{
				Title:        "Never Gonna Give You Up",
				ChannelId:    "UCuAXFkgsw1L7xaCfnd5JJOw",
				ChannelTitle: "Rick Astley",
				PublishedAt:  "2009-10-25T06:57:33Z",
			},
			Statistics: &youtube.VideoStatistics{ViewCount: 1000, LikeCount: 50, CommentCount: 7},
		}}})
	}))

	info, err := c.VideoInfo(context.Background(), testVideo)
	require.NoError(t, err)
	assert.Equal(t, "Never Gonna Give You Up", info.Title)
	assert.Equal(t, "Rick Astley", info.ChannelTitle)
	assert.Equal(t, uint64(1000), info.ViewCount)
	assert.Equal(t, uint64(7), info.CommentCount)

	_, err = c.VideoInfo(context.Background(), "xxxxxxxxxxx")
	assert.ErrorIs(t, err, moderation.ErrVideoNotFound)
}

func TestWrapErrorClassification(t *testing.T) {
	err := wrapError("commentThreads.list", testVideo, errors.New("connection reset"))
	assert.True(t, isTransient(err), "connection errors are transient")

	err = wrapError("commentThreads.list", testVideo, fmt.Errorf("get: %w", httpx.ErrCircuitOpen))
	assert.False(t, isTransient(err), "an open circuit is not retried")
	assert.ErrorIs(t, err, httpx.ErrCircuitOpen)

	err = wrapError("commentThreads.list", testVideo, context.DeadlineExceeded)
	assert.ErrorIs(t, err, moderation.ErrTimeout)
	assert.False(t, isTransient(err))
}
