package http

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Backoff tuning for hosts that answer 429 or 503.
const (
	InitialBackoff    = 1 * time.Second
	MaxBackoff        = 60 * time.Second
	BackoffMultiplier = 2.0
	// BackoffCooldownPeriod is how long after the last error the original
	// rate is restored.
	BackoffCooldownPeriod = 5 * time.Minute
	// MinRPSMultiplier is the floor of rate reduction (25% of original).
	MinRPSMultiplier = 0.25
)

// Well-known hosts.
const (
	GoogleAPIsHost = "www.googleapis.com"
	YouTubeAPIHost = "youtube.googleapis.com"
	OAuthHost      = "oauth2.googleapis.com"
	OpenAIHost     = "api.openai.com"
)

// RateLimiterConfig defines per-host request rates.
type RateLimiterConfig struct {
	// DefaultRPS applies to hosts without an entry in HostRates. Zero
	// leaves them unlimited.
	DefaultRPS float64
	// HostRates maps a host name to requests per second.
	HostRates map[string]float64
	// EnableDynamicBackoff lowers a host's rate after 429/503 answers.
	EnableDynamicBackoff bool
}

// DefaultRateLimiterConfig paces the YouTube Data API at 5 req/s and the
// AI endpoint at 10 req/s.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		HostRates: map[string]float64{
			GoogleAPIsHost: 5,
			YouTubeAPIHost: 5,
			OpenAIHost:     10,
		},
		EnableDynamicBackoff: true,
	}
}

// BackoffState tracks rate limit backoff for a host.
type BackoffState struct {
	CurrentBackoff    time.Duration
	LastError         time.Time
	ConsecutiveErrors int
	OriginalRPS       float64
	// ReducedRPS is the lowered rate; zero means the original applies.
	ReducedRPS float64
}

// RateLimiter holds one token bucket per host.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	backoff  map[string]*BackoffState
	mu       sync.Mutex
	config   RateLimiterConfig
}

// NewRateLimiter creates a rate limiter.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.HostRates == nil {
		cfg.HostRates = make(map[string]float64)
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		backoff:  make(map[string]*BackoffState),
		config:   cfg,
	}
}

// Wait blocks until host may receive another request.
func (rl *RateLimiter) Wait(ctx context.Context, host string) error {
	if rl == nil {
		return nil
	}
	limiter := rl.limiterFor(host)
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

func (rl *RateLimiter) limiterFor(host string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limiter, ok := rl.limiters[host]; ok {
		return limiter
	}
	rps := rl.rpsFor(host)
	if rps <= 0 {
		return nil
	}
	limiter := rate.NewLimiter(rate.Limit(rps), 1)
	rl.limiters[host] = limiter
	return limiter
}

// rpsFor must be called with mu held.
func (rl *RateLimiter) rpsFor(host string) float64 {
	if rps, ok := rl.config.HostRates[host]; ok {
		return rps
	}
	return rl.config.DefaultRPS
}

// SetRate changes the rate for host. Zero removes the limit.
func (rl *RateLimiter) SetRate(host string, rps float64) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.config.HostRates[host] = rps
	delete(rl.limiters, host)
}

// Rate returns the current rate for host, including any reduction.
func (rl *RateLimiter) Rate(host string) float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limiter, ok := rl.limiters[host]; ok {
		return float64(limiter.Limit())
	}
	return rl.rpsFor(host)
}

// RecordRateLimitError records a 429/503 for host and returns the
// recommended wait. A longer Retry-After from the server wins.
func (rl *RateLimiter) RecordRateLimitError(host string, retryAfter time.Duration) time.Duration {
	if rl == nil || !rl.config.EnableDynamicBackoff {
		if retryAfter > 0 {
			return retryAfter
		}
		return InitialBackoff
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	state, ok := rl.backoff[host]
	if !ok {
		state = &BackoffState{
			CurrentBackoff: InitialBackoff,
			OriginalRPS:    rl.rpsFor(host),
		}
		rl.backoff[host] = state
	}

	state.LastError = time.Now()
	state.ConsecutiveErrors++

	// 1s, 2s, 4s ... capped at MaxBackoff
	if state.ConsecutiveErrors > 1 {
		state.CurrentBackoff = time.Duration(float64(state.CurrentBackoff) * BackoffMultiplier)
		if state.CurrentBackoff > MaxBackoff {
			state.CurrentBackoff = MaxBackoff
		}
	}
	if retryAfter > state.CurrentBackoff {
		state.CurrentBackoff = retryAfter
	}

	rl.reduceRate(host, state)
	return state.CurrentBackoff
}

// reduceRate lowers the bucket rate to 75%, 50%, then 25% of the original
// as errors accumulate. Must be called with mu held.
func (rl *RateLimiter) reduceRate(host string, state *BackoffState) {
	if state.OriginalRPS <= 0 {
		return
	}
	factor := 0.75
	switch {
	case state.ConsecutiveErrors >= 3:
		factor = MinRPSMultiplier
	case state.ConsecutiveErrors == 2:
		factor = 0.5
	}

	state.ReducedRPS = state.OriginalRPS * factor
	if limiter, ok := rl.limiters[host]; ok {
		limiter.SetLimit(rate.Limit(state.ReducedRPS))
	}
}

// RecordSuccess winds down the backoff state of host.
func (rl *RateLimiter) RecordSuccess(host string) {
	if rl == nil || !rl.config.EnableDynamicBackoff {
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	state, ok := rl.backoff[host]
	if !ok {
		return
	}

	if time.Since(state.LastError) > BackoffCooldownPeriod {
		if limiter, ok := rl.limiters[host]; ok && state.ReducedRPS > 0 {
			limiter.SetLimit(rate.Limit(state.OriginalRPS))
		}
		delete(rl.backoff, host)
		return
	}

	if state.ConsecutiveErrors > 0 {
		state.ConsecutiveErrors--
		// Recover to half the original rate; full rate returns after cooldown.
		if state.ConsecutiveErrors == 0 && state.ReducedRPS > 0 {
			half := state.OriginalRPS * 0.5
			if half > state.ReducedRPS {
				state.ReducedRPS = half
				if limiter, ok := rl.limiters[host]; ok {
					limiter.SetLimit(rate.Limit(half))
				}
			}
		}
	}
}

// Backoff returns a copy of the backoff state for host, or nil.
func (rl *RateLimiter) Backoff(host string) *BackoffState {
	if rl == nil {
		return nil
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	state, ok := rl.backoff[host]
	if !ok {
		return nil
	}
	out := *state
	return &out
}

// WaitForBackoff sleeps out the remainder of host's backoff window.
func (rl *RateLimiter) WaitForBackoff(ctx context.Context, host string) error {
	state := rl.Backoff(host)
	if state == nil {
		return nil
	}

	remaining := state.CurrentBackoff - time.Since(state.LastError)
	if remaining <= 0 {
		return nil
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
