package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"commentguard/internal/logging"
	"commentguard/moderation"
	"commentguard/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type provider struct {
	srv       *httptest.Server
	exchanges atomic.Int32
	refreshes atomic.Int32
	revoked   chan string
}

func newProvider(t *testing.T) *provider {
	t.Helper()
	p := &provider{revoked: make(chan string, 1)}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		switch r.Form.Get("grant_type") {
		case "authorization_code":
			p.exchanges.Add(1)
			if r.Form.Get("code") != "good-code" {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"access_token": "access-1", "token_type": "Bearer",
				"refresh_token": "refresh-1", "expires_in": 3600,
			})
		case "refresh_token":
			p.refreshes.Add(1)
			if r.Form.Get("refresh_token") == "slow-refresh" {
				select {
				case <-r.Context().Done():
				case <-time.After(5 * time.Second):
				}
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			if r.Form.Get("refresh_token") != "refresh-1" {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"access_token": "access-2", "token_type": "Bearer", "expires_in": 3600,
			})
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
	mux.HandleFunc("/revoke", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		p.revoked <- r.Form.Get("token")
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.Header.Get("Authorization")))
	})
	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

func newTestStore(t *testing.T) *storage.JSONStore {
	t.Helper()
	store, err := storage.NewJSONStore(filepath.Join(t.TempDir(), "credentials.json"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestManager(t *testing.T, p *provider, store storage.CredentialStore) *Manager {
	t.Helper()
	return NewManager(store, Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost:5000/auth/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:   p.srv.URL + "/auth",
			TokenURL:  p.srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RevokeURL:  p.srv.URL + "/revoke",
		HTTPClient: p.srv.Client(),
		Lookup: func(ctx context.Context, hc *http.Client) (string, string, error) {
			return "UC123", "My Channel", nil
		},
		Logger: logging.Discard(),
	})
}

// authHeader fetches /me with hc and returns the Authorization it sent.
func authHeader(t *testing.T, p *provider, hc *http.Client) string {
	t.Helper()
	resp, err := hc.Get(p.srv.URL + "/me")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf [256]byte
	n, _ := resp.Body.Read(buf[:])
	return string(buf[:n])
}

func seed(t *testing.T, store storage.CredentialStore, access, refresh string, expiry time.Time) {
	t.Helper()
	require.NoError(t, store.SaveCredential(context.Background(), &storage.Credential{
		Account:      storage.DefaultAccount,
		ChannelID:    "UC123",
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		Expiry:       expiry,
	}))
}

func TestLoginFlow(t *testing.T) {
	p := newProvider(t)
	store := newTestStore(t)
	m := newTestManager(t, p, store)
	ctx := context.Background()

	assert.False(t, m.IsAuthenticated(ctx))

	raw, err := m.LoginURL(ctx)
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Equal(t, Scope, q.Get("scope"))
	assert.Equal(t, "client", q.Get("client_id"))
	state := q.Get("state")
	require.NotEmpty(t, state)

	st, err := m.CompleteLogin(ctx, state, "good-code")
	require.NoError(t, err)
	assert.True(t, st.Authenticated)
	assert.True(t, st.CanRefresh)
	assert.Equal(t, "UC123", st.ChannelID)
	assert.Equal(t, "My Channel", st.ChannelTitle)
	assert.True(t, m.IsAuthenticated(ctx))

	cred, err := store.GetCredential(ctx, storage.DefaultAccount)
	require.NoError(t, err)
	assert.Equal(t, "access-1", cred.AccessToken)
	assert.Equal(t, "refresh-1", cred.RefreshToken)

	_, err = m.CompleteLogin(ctx, state, "good-code")
	assert.ErrorIs(t, err, ErrInvalidState, "a state is single use")
}

func TestCompleteLoginLookupSeesToken(t *testing.T) {
	p := newProvider(t)
	m := newTestManager(t, p, newTestStore(t))
	var seen string
	m.lookup = func(ctx context.Context, hc *http.Client) (string, string, error) {
		seen = authHeader(t, p, hc)
		return "UC9", "", nil
	}
	ctx := context.Background()

	raw, err := m.LoginURL(ctx)
	require.NoError(t, err)
	u, _ := url.Parse(raw)

	_, err = m.CompleteLogin(ctx, u.Query().Get("state"), "good-code")
	require.NoError(t, err)
	assert.Equal(t, "Bearer access-1", seen)
}

func TestCompleteLoginRejectsUnknownState(t *testing.T) {
	p := newProvider(t)
	m := newTestManager(t, p, newTestStore(t))

	_, err := m.CompleteLogin(context.Background(), "forged", "good-code")
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Zero(t, p.exchanges.Load())
}

func TestCompleteLoginBadCode(t *testing.T) {
	p := newProvider(t)
	m := newTestManager(t, p, newTestStore(t))
	ctx := context.Background()

	raw, err := m.LoginURL(ctx)
	require.NoError(t, err)
	u, _ := url.Parse(raw)

	_, err = m.CompleteLogin(ctx, u.Query().Get("state"), "bad-code")
	require.Error(t, err)
	var rerr *oauth2.RetrieveError
	assert.True(t, errors.As(err, &rerr))
	assert.False(t, m.IsAuthenticated(ctx))
}

func TestLoginNotConfigured(t *testing.T) {
	m := NewManager(newTestStore(t), Config{Logger: logging.Discard()})

	_, err := m.LoginURL(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = m.CompleteLogin(context.Background(), "s", "c")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestValidHandleWithoutSession(t *testing.T) {
	p := newProvider(t)
	m := newTestManager(t, p, newTestStore(t))

	h, err := m.ValidHandle(context.Background())
	assert.Nil(t, h)
	assert.ErrorIs(t, err, moderation.ErrAuthRequired)
}

func TestValidHandleUsesStoredToken(t *testing.T) {
	p := newProvider(t)
	store := newTestStore(t)
	seed(t, store, "access-1", "refresh-1", time.Now().Add(time.Hour))
	m := newTestManager(t, p, store)

	h, err := m.ValidHandle(context.Background())
	require.NoError(t, err)
	assert.True(t, h.Valid())

	handle := h.(*Handle)
	assert.Equal(t, "UC123", handle.ChannelID())
	assert.Equal(t, "Bearer access-1", authHeader(t, p, handle.HTTPClient()))
	assert.Zero(t, p.refreshes.Load())
}

func TestValidHandleRefreshesAndPersists(t *testing.T) {
	p := newProvider(t)
	store := newTestStore(t)
	seed(t, store, "stale", "refresh-1", time.Now().Add(-time.Hour))
	m := newTestManager(t, p, store)
	ctx := context.Background()

	h, err := m.ValidHandle(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Bearer access-2", authHeader(t, p, h.(*Handle).HTTPClient()))

	cred, err := store.GetCredential(ctx, storage.DefaultAccount)
	require.NoError(t, err)
	assert.Equal(t, "access-2", cred.AccessToken)
	assert.Equal(t, "refresh-1", cred.RefreshToken, "refresh token survives a refresh without rotation")
	assert.Equal(t, "UC123", cred.ChannelID)
	assert.True(t, cred.Expiry.After(time.Now()))
}

func TestConcurrentRefreshIsSerialized(t *testing.T) {
	p := newProvider(t)
	store := newTestStore(t)
	seed(t, store, "stale", "refresh-1", time.Now().Add(-time.Hour))
	m := newTestManager(t, p, store)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = m.ValidHandle(context.Background())
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), p.refreshes.Load())
}

func TestValidHandleRefreshFailure(t *testing.T) {
	p := newProvider(t)
	store := newTestStore(t)
	seed(t, store, "stale", "revoked-refresh", time.Now().Add(-time.Hour))
	m := newTestManager(t, p, store)

	_, err := m.ValidHandle(context.Background())
	assert.ErrorIs(t, err, moderation.ErrAuthRequired)
}

func TestValidHandleExpiredWithoutRefreshToken(t *testing.T) {
	p := newProvider(t)
	store := newTestStore(t)
	seed(t, store, "stale", "", time.Now().Add(-time.Hour))
	m := newTestManager(t, p, store)

	_, err := m.ValidHandle(context.Background())
	assert.ErrorIs(t, err, moderation.ErrAuthRequired)
	assert.False(t, m.IsAuthenticated(context.Background()))
	assert.Zero(t, p.refreshes.Load())
}

func TestLogoutRevokesAndInvalidatesHandles(t *testing.T) {
	p := newProvider(t)
	store := newTestStore(t)
	seed(t, store, "access-1", "refresh-1", time.Now().Add(time.Hour))
	m := newTestManager(t, p, store)
	ctx := context.Background()

	h, err := m.ValidHandle(ctx)
	require.NoError(t, err)

	require.NoError(t, m.Logout(ctx))

	select {
	case tok := <-p.revoked:
		assert.Equal(t, "refresh-1", tok)
	case <-time.After(time.Second):
		t.Fatal("revoke endpoint not called")
	}
	assert.False(t, h.Valid())
	assert.False(t, m.IsAuthenticated(ctx))

	_, err = h.(*Handle).HTTPClient().Get(p.srv.URL + "/me")
	assert.ErrorIs(t, err, moderation.ErrAuthLost)

	st, err := m.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Authenticated)

	assert.NoError(t, m.Logout(ctx), "logout without a session is a no-op")
}

func TestHandleLostWhenRefreshFailsMidUse(t *testing.T) {
	p := newProvider(t)
	store := newTestStore(t)
	seed(t, store, "access-1", "refresh-1", time.Now().Add(time.Hour))
	m := newTestManager(t, p, store)
	ctx := context.Background()

	h, err := m.ValidHandle(ctx)
	require.NoError(t, err)

	// The stored session is replaced by an expired one whose refresh
	// token the provider no longer accepts.
	seed(t, store, "stale", "revoked-refresh", time.Now().Add(-time.Hour))
	handle := h.(*Handle)

	_, err = handle.HTTPClient().Get(p.srv.URL + "/me")
	assert.ErrorIs(t, err, moderation.ErrAuthLost)
	assert.False(t, handle.Valid())
}

func TestHandleRefreshHonorsRequestDeadline(t *testing.T) {
	p := newProvider(t)
	store := newTestStore(t)
	seed(t, store, "access-1", "refresh-1", time.Now().Add(time.Hour))
	m := newTestManager(t, p, store)

	h, err := m.ValidHandle(context.Background())
	require.NoError(t, err)
	seed(t, store, "stale", "slow-refresh", time.Now().Add(-time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.srv.URL+"/me", nil)
	require.NoError(t, err)

	start := time.Now()
	_, err = h.(*Handle).HTTPClient().Do(req)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, h.Valid(), "an interrupted refresh keeps the handle usable")
}

func TestStatus(t *testing.T) {
	p := newProvider(t)
	store := newTestStore(t)
	m := newTestManager(t, p, store)
	ctx := context.Background()

	st, err := m.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, &Status{}, st)

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	seed(t, store, "access-1", "", exp)
	st, err = m.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Authenticated)
	assert.False(t, st.CanRefresh)
	assert.Equal(t, "UC123", st.ChannelID)
	assert.True(t, exp.Equal(st.Expiry))
}
