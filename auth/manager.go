// Package auth owns the channel owner's OAuth session: the login flow,
// refresh-and-persist of access tokens, revocation, and the per-invocation
// handles the moderation pipeline deletes with.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	httpx "commentguard/http"
	"commentguard/internal/logging"
	"commentguard/moderation"
	"commentguard/storage"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Scope allows comment moderation on the authorized channel.
const Scope = "https://www.googleapis.com/auth/youtube.force-ssl"

const (
	// stateTTL bounds how long a login URL stays usable.
	stateTTL = 10 * time.Minute
	// expiryMargin refreshes tokens that are about to expire.
	expiryMargin = time.Minute
)

var (
	// ErrNotConfigured is returned by the login flow when no OAuth client
	// is configured.
	ErrNotConfigured = errors.New("auth: OAuth client not configured")
	// ErrInvalidState is returned when a login callback carries an
	// unknown or expired state.
	ErrInvalidState = errors.New("auth: unknown or expired login state")
)

// ChannelLookup resolves the channel owned by the account authorizing hc.
type ChannelLookup func(ctx context.Context, hc *http.Client) (id, title string, err error)

// Config configures a Manager.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Endpoint overrides the provider; the zero value uses Google.
	Endpoint oauth2.Endpoint
	// RevokeURL is called on logout. Empty skips provider revocation.
	RevokeURL string
	// Account keys the credential record; empty uses storage.DefaultAccount.
	Account string
	// HTTPClient carries token, revoke and authorized API requests.
	HTTPClient *http.Client
	// Lookup, if set, records the channel on login.
	Lookup ChannelLookup
	Logger *slog.Logger
}

// Status describes the stored session.
type Status struct {
	Authenticated bool      `json:"authenticated"`
	ChannelID     string    `json:"channel_id,omitempty"`
	ChannelTitle  string    `json:"channel_title,omitempty"`
	Expiry        time.Time `json:"expiry,omitempty"`
	CanRefresh    bool      `json:"can_refresh"`
}

// Manager is the single owner of the stored session. Refresh and persist
// happen under one mutex so concurrent invocations never overwrite a fresh
// token with a stale one.
type Manager struct {
	oauth      *oauth2.Config
	store      storage.CredentialStore
	account    string
	revokeURL  string
	httpClient *http.Client
	lookup     ChannelLookup
	logger     *slog.Logger
	now        func() time.Time

	mu         sync.Mutex
	generation atomic.Uint64
}

// NewManager creates a Manager backed by store.
func NewManager(store storage.CredentialStore, cfg Config) *Manager {
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" && endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}
	account := cfg.Account
	if account == "" {
		account = storage.DefaultAccount
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = httpx.NewClient(nil)
	}

	return &Manager{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{Scope},
		},
		store:      store,
		account:    account,
		revokeURL:  cfg.RevokeURL,
		httpClient: hc,
		lookup:     cfg.Lookup,
		logger:     logging.Or(cfg.Logger).With("component", "auth"),
		now:        time.Now,
	}
}

// IsAuthenticated reports whether a session is stored that is either
// unexpired or refreshable. It makes no network calls.
func (m *Manager) IsAuthenticated(ctx context.Context) bool {
	cred, err := m.store.GetCredential(ctx, m.account)
	if err != nil {
		return false
	}
	return cred.RefreshToken != "" || (cred.AccessToken != "" && !cred.Expired(m.now()))
}

// Status reports the stored session without refreshing it.
func (m *Manager) Status(ctx context.Context) (*Status, error) {
	cred, err := m.store.GetCredential(ctx, m.account)
	if errors.Is(err, storage.ErrNotFound) {
		return &Status{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &Status{
		Authenticated: cred.RefreshToken != "" || (cred.AccessToken != "" && !cred.Expired(m.now())),
		ChannelID:     cred.ChannelID,
		ChannelTitle:  cred.ChannelTitle,
		Expiry:        cred.Expiry,
		CanRefresh:    cred.RefreshToken != "",
	}, nil
}

// ValidHandle returns a handle whose HTTP client carries a fresh token,
// refreshing and persisting it first when needed. Any failure to produce
// a usable token is ErrAuthRequired.
func (m *Manager) ValidHandle(ctx context.Context) (moderation.AuthHandle, error) {
	cred, err := m.token(ctx)
	if err != nil {
		return nil, err
	}

	h := &Handle{
		manager:   m,
		gen:       m.generation.Load(),
		channelID: cred.ChannelID,
	}
	// Each request asks the manager for the token so that a logout or a
	// failed refresh takes effect on the next call.
	base := m.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	h.client = &http.Client{
		Transport: &handleTransport{handle: h, base: base},
		Timeout:   m.httpClient.Timeout,
	}
	return h, nil
}

// token returns the stored credential with an unexpired access token.
func (m *Manager) token(ctx context.Context) (*storage.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, err := m.store.GetCredential(ctx, m.account)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, moderation.ErrAuthRequired
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", moderation.ErrAuthRequired, err)
	}
	if cred.AccessToken != "" && !cred.Expired(m.now().Add(expiryMargin)) {
		return cred, nil
	}
	if cred.RefreshToken == "" {
		return nil, fmt.Errorf("%w: access token expired and no refresh token stored", moderation.ErrAuthRequired)
	}

	tok, err := m.oauth.TokenSource(m.clientContext(ctx), &oauth2.Token{RefreshToken: cred.RefreshToken}).Token()
	if err != nil {
		m.logger.Warn("token refresh failed", slog.Any("error", err))
		return nil, fmt.Errorf("%w: refresh failed: %v", moderation.ErrAuthRequired, err)
	}

	fromToken(cred, tok)
	if err := m.store.SaveCredential(ctx, cred); err != nil {
		return nil, fmt.Errorf("%w: persist refreshed token: %v", moderation.ErrAuthRequired, err)
	}
	m.logger.Info("access token refreshed", slog.Time("expiry", cred.Expiry))
	return m.store.GetCredential(ctx, m.account)
}

// LoginURL starts a login: it records a random state and returns the
// consent URL requesting offline access.
func (m *Manager) LoginURL(ctx context.Context) (string, error) {
	if m.oauth.ClientID == "" {
		return "", ErrNotConfigured
	}
	now := m.now()
	state := uuid.NewString()
	if err := m.store.SavePendingState(ctx, &storage.PendingState{
		State:     state,
		CreatedAt: now,
		ExpiresAt: now.Add(stateTTL),
	}); err != nil {
		return "", err
	}
	return m.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// CompleteLogin exchanges the authorization code of a login started with
// LoginURL and persists the session.
func (m *Manager) CompleteLogin(ctx context.Context, state, code string) (*Status, error) {
	if m.oauth.ClientID == "" {
		return nil, ErrNotConfigured
	}
	if strings.TrimSpace(code) == "" {
		return nil, &moderation.ValidationError{Field: "code", Reason: "must not be empty"}
	}
	if _, err := m.store.ConsumePendingState(ctx, state); err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrExpired) || errors.Is(err, storage.ErrInvalidInput) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
		}
		return nil, err
	}

	cctx := m.clientContext(ctx)
	tok, err := m.oauth.Exchange(cctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchange code: %w", err)
	}

	cred := &storage.Credential{Account: m.account, Scopes: []string{Scope}}
	fromToken(cred, tok)

	if m.lookup != nil {
		id, title, err := m.lookup(ctx, m.oauth.Client(cctx, tok))
		if err != nil {
			return nil, fmt.Errorf("auth: look up channel: %w", err)
		}
		cred.ChannelID, cred.ChannelTitle = id, title
	}

	m.mu.Lock()
	err = m.store.SaveCredential(ctx, cred)
	m.generation.Add(1)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	m.logger.Info("logged in", slog.String("channel_id", cred.ChannelID))
	return m.Status(ctx)
}

// Logout revokes the token at the provider (best effort), removes the
// stored session and invalidates every outstanding handle.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, err := m.store.GetCredential(ctx, m.account)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if cred != nil {
		token := cred.RefreshToken
		if token == "" {
			token = cred.AccessToken
		}
		if err := m.revoke(ctx, token); err != nil {
			m.logger.Warn("token revocation failed", slog.Any("error", err))
		}
	}

	m.generation.Add(1)
	return m.store.DeleteCredential(ctx, m.account)
}

func (m *Manager) revoke(ctx context.Context, token string) error {
	if m.revokeURL == "" || token == "" {
		return nil
	}
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revoke returned status %d", resp.StatusCode)
	}
	return nil
}

func (m *Manager) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}

func toToken(cred *storage.Credential) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		TokenType:    cred.TokenType,
		Expiry:       cred.Expiry,
	}
}

func fromToken(cred *storage.Credential, tok *oauth2.Token) {
	cred.AccessToken = tok.AccessToken
	cred.TokenType = tok.TokenType
	cred.Expiry = tok.Expiry
	if tok.RefreshToken != "" {
		cred.RefreshToken = tok.RefreshToken
	}
}
