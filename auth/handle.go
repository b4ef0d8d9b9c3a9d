package auth

import (
	"fmt"
	"net/http"
	"sync/atomic"

	"commentguard/moderation"
)

// Handle is the credential handle of one pipeline invocation. It becomes
// invalid when the session is logged out or replaced, or when a refresh
// fails while it is in use.
type Handle struct {
	manager   *Manager
	gen       uint64
	channelID string
	client    *http.Client
	lost      atomic.Bool
}

// Valid implements moderation.AuthHandle.
func (h *Handle) Valid() bool {
	return !h.lost.Load() && h.gen == h.manager.generation.Load()
}

// ChannelID is the channel recorded at login, if any.
func (h *Handle) ChannelID() string { return h.channelID }

// HTTPClient returns a client that authorizes requests with the session's
// token, refreshing it through the manager as needed.
func (h *Handle) HTTPClient() *http.Client { return h.client }

// handleTransport sets the bearer token on each request. The token is
// looked up, and refreshed if expired, under the request's context.
type handleTransport struct {
	handle *Handle
	base   http.RoundTripper
}

func (t *handleTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	h := t.handle
	if !h.Valid() {
		closeBody(req)
		return nil, fmt.Errorf("%w: session was replaced or logged out", moderation.ErrAuthLost)
	}

	cred, err := h.manager.token(ctx)
	if err != nil {
		closeBody(req)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		h.lost.Store(true)
		return nil, fmt.Errorf("%w: %v", moderation.ErrAuthLost, err)
	}

	out := req.Clone(ctx)
	toToken(cred).SetAuthHeader(out)
	return t.base.RoundTrip(out)
}

func closeBody(req *http.Request) {
	if req.Body != nil {
		req.Body.Close()
	}
}
