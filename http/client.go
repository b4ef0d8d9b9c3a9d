// Package http provides the outbound HTTP stack shared by the YouTube and
// AI clients: a pooled transport wrapped with per-host rate limiting,
// Retry-After aware backoff and a circuit breaker.
package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"
)

// Config holds HTTP client configuration.
type Config struct {
	// Timeout bounds a single request including reading the body.
	Timeout time.Duration
	// UserAgent is set on requests that carry none.
	UserAgent string

	RateLimiter    RateLimiterConfig
	CircuitBreaker CircuitBreakerConfig
	Transport      TransportConfig
}

// TransportConfig configures connection pooling.
type TransportConfig struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration
	ForceAttemptHTTP2   bool
}

// DefaultConfig returns defaults sized for one moderation run.
func DefaultConfig() *Config {
	return &Config{
		Timeout:        30 * time.Second,
		UserAgent:      "commentguard/1.0",
		RateLimiter:    DefaultRateLimiterConfig(),
		CircuitBreaker: DefaultCircuitBreakerConfig(),
		Transport:      DefaultTransportConfig(),
	}
}

// DefaultTransportConfig returns the pool settings used by NewClient.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
}

// Transport is an http.RoundTripper that paces requests per host and fails
// fast while a host's circuit is open. It does not retry; callers retry
// with their own error classification.
type Transport struct {
	base      http.RoundTripper
	limiter   *RateLimiter
	breaker   *CircuitBreaker
	userAgent string
}

// NewTransport wraps base. A nil base uses a pooled *http.Transport built
// from cfg.Transport.
func NewTransport(base http.RoundTripper, cfg *Config) *Transport {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if base == nil {
		base = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        cfg.Transport.MaxIdleConns,
			MaxIdleConnsPerHost: cfg.Transport.MaxIdleConnsPerHost,
			MaxConnsPerHost:     cfg.Transport.MaxConnsPerHost,
			IdleConnTimeout:     cfg.Transport.IdleConnTimeout,
			ForceAttemptHTTP2:   cfg.Transport.ForceAttemptHTTP2,
		}
	}
	return &Transport{
		base:      base,
		limiter:   NewRateLimiter(cfg.RateLimiter),
		breaker:   NewCircuitBreaker(cfg.CircuitBreaker),
		userAgent: cfg.UserAgent,
	}
}

// NewClient returns an *http.Client whose transport is a Transport.
func NewClient(cfg *Config) *http.Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: NewTransport(nil, cfg),
	}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	host := req.URL.Hostname()
	ctx := req.Context()

	if err := t.breaker.Allow(host); err != nil {
		return nil, err
	}
	if err := t.limiter.WaitForBackoff(ctx, host); err != nil {
		return nil, err
	}
	if err := t.limiter.Wait(ctx, host); err != nil {
		return nil, err
	}

	if t.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req = req.Clone(ctx)
		req.Header.Set("User-Agent", t.userAgent)
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			t.breaker.RecordFailure(host)
		}
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		t.limiter.RecordRateLimitError(host, ParseRetryAfter(resp.Header))
		t.breaker.RecordFailure(host)
	case resp.StatusCode >= 500:
		t.breaker.RecordFailure(host)
	default:
		t.limiter.RecordSuccess(host)
		t.breaker.RecordSuccess(host)
	}
	return resp, nil
}

// Limiter exposes the per-host rate limiter.
func (t *Transport) Limiter() *RateLimiter { return t.limiter }

// Breaker exposes the per-host circuit breaker.
func (t *Transport) Breaker() *CircuitBreaker { return t.breaker }

// ParseRetryAfter reads a Retry-After header given in seconds or as an
// HTTP date. It returns 0 when absent or unparsable.
func ParseRetryAfter(header http.Header) time.Duration {
	v := header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(v); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
