package storage

import "time"

// DefaultAccount is the key used when only one account is managed.
const DefaultAccount = "default"

// Credential is a persisted OAuth token for the moderating account.
type Credential struct {
	// Account is the local key for this credential.
	Account string `json:"account"`
	// ChannelID is the channel the token acts for, when known.
	ChannelID    string `json:"channel_id,omitempty"`
	ChannelTitle string `json:"channel_title,omitempty"`

	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	Scopes       []string  `json:"scopes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Expired reports whether the access token has passed its expiry. A zero
// expiry never expires.
func (c *Credential) Expired(now time.Time) bool {
	return !c.Expiry.IsZero() && !now.Before(c.Expiry)
}

// PendingState is the CSRF state of an authorization request awaiting its
// callback.
type PendingState struct {
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
