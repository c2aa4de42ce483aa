package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestMemoryRateLimiterWindow(t *testing.T) {
	rl := NewMemoryRateLimiter(2, time.Minute)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if ok, _ := rl.Allow(context.Background(), "ip"); !ok {
			t.Fatalf("request %d should pass", i)
		}
	}
	if ok, _ := rl.Allow(context.Background(), "ip"); ok {
		t.Fatal("third request should be limited")
	}
	now = now.Add(61 * time.Second)
	if ok, _ := rl.Allow(context.Background(), "ip"); !ok {
		t.Fatal("new window should reset the counter")
	}
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func TestWithRateLimitFailOpen(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	open := WithRateLimit(failingLimiter{}, nil, true, nil)(ok)
	rw := httptest.NewRecorder()
	open.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200 when failing open, got %d", rw.Code)
	}

	closed := WithRateLimit(failingLimiter{}, nil, false, nil)(ok)
	rw = httptest.NewRecorder()
	closed.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	if rw.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when failing closed, got %d", rw.Code)
	}
}
