package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"
)

func TestInMemoryRateLimitStore_Allow(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	config := RateLimitConfig{RequestsPerWindow: 3, WindowDuration: time.Minute}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if allowed, _, _ := store.Allow(ctx, "user:a", config); !allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	now = now.Add(20 * time.Second)
	allowed, retryAfter, err := store.Allow(ctx, "user:a", config)
	if err != nil || allowed {
		t.Fatalf("4th request: allowed=%v err=%v, want blocked", allowed, err)
	}
	if retryAfter != 40 {
		t.Errorf("retryAfter = %d, want 40", retryAfter)
	}

	if allowed, _, _ := store.Allow(ctx, "user:b", config); !allowed {
		t.Error("other keys should have their own window")
	}

	now = now.Add(40 * time.Second)
	if allowed, _, _ := store.Allow(ctx, "user:a", config); !allowed {
		t.Error("request after window reset should be allowed")
	}
}

func TestInMemoryRateLimitStore_Concurrency(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	config := RateLimitConfig{RequestsPerWindow: 50, WindowDuration: time.Minute}

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowedCount := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if allowed, _, _ := store.Allow(context.Background(), "k", config); allowed {
				mu.Lock()
				allowedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowedCount != 50 {
		t.Errorf("allowed %d requests, want 50", allowedCount)
	}
}

func TestRetrySeconds(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want int
	}{
		{0, 1},
		{-time.Second, 1},
		{300 * time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{time.Minute, 60},
	}
	for _, tt := range tests {
		if got := retrySeconds(tt.in); got != tt.want {
			t.Errorf("retrySeconds(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestIPKeyFunc(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"remote addr", "192.168.1.1:12345", nil, "192.168.1.1"},
		{"ipv6 remote addr", "[::1]:12345", nil, "::1"},
		{"remote addr without port", "10.0.0.1", nil, "10.0.0.1"},
		{"forwarded for chain", "10.0.0.1:1", map[string]string{"X-Forwarded-For": " 203.0.113.5 , 10.0.0.2"}, "203.0.113.5"},
		{"real ip", "10.0.0.1:1", map[string]string{"X-Real-IP": "198.51.100.7"}, "198.51.100.7"},
	}

	keyFunc := IPKeyFunc()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := keyFunc(req); got != tt.want {
				t.Errorf("key = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUserKeyFunc(t *testing.T) {
	keyFunc := UserKeyFunc()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.1:1"
	if got := keyFunc(req); got != "ip:192.168.1.1" {
		t.Errorf("anonymous key = %q", got)
	}

	req = req.WithContext(SetUserID(req.Context(), "user-7"))
	if got := keyFunc(req); got != "user:user-7" {
		t.Errorf("user key = %q", got)
	}
}

func TestRateLimiter_BlocksExcessiveTraffic(t *testing.T) {
	m := NewMetrics()
	store := NewInMemoryRateLimitStore()
	config := RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute}
	handler := RateLimiter(store, config, UserKeyFunc(), m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/me/newsfeed", nil)
		req = req.WithContext(SetUserID(req.Context(), "user-1"))
		last = httptest.NewRecorder()
		handler.ServeHTTP(last, req)
		codes = append(codes, last.Code)
	}

	if codes[0] != http.StatusAccepted || codes[1] != http.StatusAccepted || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("status codes = %v", codes)
	}
	retry, err := strconv.Atoi(last.Header().Get("Retry-After"))
	if err != nil || retry < 1 || retry > 60 {
		t.Errorf("Retry-After = %q", last.Header().Get("Retry-After"))
	}
	if last.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("expected X-RateLimit-Reset header")
	}
	if got := counterValue(t, m.rateLimitRequests); got != 3 {
		t.Errorf("checks = %v, want 3", got)
	}
	if got := counterValue(t, m.rateLimitBlocked); got != 1 {
		t.Errorf("blocked = %v, want 1", got)
	}
}

type failingStore struct{}

func (failingStore) Allow(context.Context, string, RateLimitConfig) (bool, int, error) {
	return false, 0, errors.New("redis: connection refused")
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	m := NewMetrics()
	handler := RateLimiter(failingStore{}, DefaultGenerateLimit(), IPKeyFunc(), m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/me/newsfeed", nil))

	if rr.Code != http.StatusAccepted {
		t.Errorf("status = %d, want request to pass through", rr.Code)
	}
	if got := counterValue(t, m.rateLimitRedisErrors); got != 1 {
		t.Errorf("redis errors = %v, want 1", got)
	}
}

func TestRateLimitConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  RateLimitConfig
		wantErr bool
	}{
		{"default", DefaultGenerateLimit(), false},
		{"zero requests", RateLimitConfig{RequestsPerWindow: 0, WindowDuration: time.Minute}, true},
		{"zero window", RateLimitConfig{RequestsPerWindow: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
