package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.RateLimiter = RateLimiterConfig{EnableDynamicBackoff: true}
	cfg.CircuitBreaker = CircuitBreakerConfig{FailureThreshold: 2, RecoveryTimeout: time.Minute}
	return cfg
}

func TestTransportSetsUserAgent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	client := &http.Client{Transport: NewTransport(http.DefaultTransport, testConfig())}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()

	if got != "commentguard/1.0" {
		t.Errorf("User-Agent = %q, want commentguard/1.0", got)
	}
}

func TestTransportOpensCircuitOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr := NewTransport(http.DefaultTransport, testConfig())
	client := &http.Client{Transport: tr}

	for i := 0; i < 2; i++ {
		resp, err := client.Get(srv.URL)
		if err != nil {
			t.Fatalf("Get() #%d error = %v", i, err)
		}
		resp.Body.Close()
	}

	_, err := client.Get(srv.URL)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Get() with open circuit error = %v, want ErrCircuitOpen", err)
	}
	if n := hits.Load(); n != 2 {
		t.Errorf("server hits = %d, want 2", n)
	}

	u, _ := url.Parse(srv.URL)
	if got := tr.Breaker().State(u.Hostname()); got != CircuitOpen {
		t.Errorf("State() = %v, want open", got)
	}
}

func TestTransportRecordsRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	tr := NewTransport(http.DefaultTransport, testConfig())
	resp, err := (&http.Client{Transport: tr}).Get(srv.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d, want 429", resp.StatusCode)
	}
	u, _ := url.Parse(srv.URL)
	state := tr.Limiter().Backoff(u.Hostname())
	if state == nil || state.CurrentBackoff != 7*time.Second {
		t.Errorf("Backoff() = %+v, want 7s", state)
	}
}

func TestTransportSuccessKeepsCircuitClosed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	tr := NewTransport(http.DefaultTransport, testConfig())
	client := &http.Client{Transport: tr}
	for i := 0; i < 5; i++ {
		resp, err := client.Get(srv.URL)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		resp.Body.Close()
	}

	u, _ := url.Parse(srv.URL)
	if got := tr.Breaker().State(u.Hostname()); got != CircuitClosed {
		t.Errorf("State() after 4xx = %v, want closed", got)
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   time.Duration
	}{
		{"empty", "", 0},
		{"seconds", "12", 12 * time.Second},
		{"negative", "-3", 0},
		{"garbage", "soon", 0},
		{"past date", "Mon, 02 Jan 2006 15:04:05 GMT", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.header != "" {
				h.Set("Retry-After", tt.header)
			}
			if got := ParseRetryAfter(h); got != tt.want {
				t.Errorf("ParseRetryAfter(%q) = %v, want %v", tt.header, got, tt.want)
			}
		})
	}
}

func TestNewClientUsesTransport(t *testing.T) {
	c := NewClient(nil)
	if _, ok := c.Transport.(*Transport); !ok {
		t.Fatalf("Transport = %T, want *Transport", c.Transport)
	}
	if c.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", c.Timeout)
	}
}
