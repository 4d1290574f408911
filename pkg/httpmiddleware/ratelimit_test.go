package httpmiddleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(limit int, window time.Duration) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	l := NewLimiter(RateLimitConfig{Max: limit, Window: window})
	l.now = clock.now
	return l, clock
}

func tillRequest(terminal, remote string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/checkout", nil)
	req.RemoteAddr = remote
	if terminal != "" {
		req.Header.Set(HeaderTerminalID, terminal)
	}
	return req
}

func TestLimiter_UnderLimit(t *testing.T) {
	l, _ := newTestLimiter(5, time.Minute)
	handler := l.Middleware()(okHandler())

	for i := range 5 {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, tillRequest("till-1", "192.168.1.1:12345"))

		assert.Equal(t, http.StatusOK, w.Code, "request %d should pass", i+1)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}
}

func TestLimiter_OverLimit(t *testing.T) {
	l, _ := newTestLimiter(2, time.Minute)
	handler := l.Middleware()(okHandler())

	for range 2 {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, tillRequest("", "10.0.0.1:9999"))
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, tillRequest("", "10.0.0.1:9999"))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, float64(429), body["code"])
	assert.Equal(t, "rate limit exceeded", body["message"])
}

func TestLimiter_TerminalsBehindOneIP(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)
	handler := l.Middleware()(okHandler())

	for _, till := range []string{"till-1", "till-2", "till-3"} {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, tillRequest(till, "10.0.0.1:1000"))
		assert.Equal(t, http.StatusOK, w.Code, till)
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, tillRequest("till-2", "10.0.0.1:1000"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestLimiter_SlidingWindow(t *testing.T) {
	l, clock := newTestLimiter(4, time.Minute)

	for range 4 {
		ok, _, _ := l.Allow("k")
		require.True(t, ok)
	}
	ok, _, _ := l.Allow("k")
	require.False(t, ok)

	// Half way into the next window half of the previous count still applies.
	clock.advance(90 * time.Second)
	ok, remaining, _ := l.Allow("k")
	assert.True(t, ok)
	assert.Equal(t, 1, remaining)
	ok, _, _ = l.Allow("k")
	assert.True(t, ok)
	ok, _, _ = l.Allow("k")
	assert.False(t, ok)

	clock.advance(3 * time.Minute)
	ok, remaining, _ = l.Allow("k")
	assert.True(t, ok)
	assert.Equal(t, 3, remaining)
}

func TestLimiter_Sweep(t *testing.T) {
	l, clock := newTestLimiter(1, time.Minute)
	l.Allow("a")
	l.Allow("b")

	clock.advance(90 * time.Second)
	l.Sweep()
	assert.Len(t, l.windows, 2)

	clock.advance(time.Minute)
	l.Sweep()
	assert.Empty(t, l.windows)
}

func TestRateLimit_Disabled(t *testing.T) {
	handler := RateLimit(context.Background(), RateLimitConfig{})(okHandler())

	for range 10 {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, tillRequest("", "10.0.0.1:1"))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "remote addr", remote: "10.1.1.1:443", want: "10.1.1.1"},
		{name: "no port", remote: "10.1.1.1", want: "10.1.1.1"},
		{
			name:    "forwarded chain",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"},
			remote:  "10.0.0.1:1",
			want:    "203.0.113.5",
		},
		{
			name:    "real ip",
			headers: map[string]string{"X-Real-IP": "198.51.100.7"},
			remote:  "10.0.0.1:1",
			want:    "198.51.100.7",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}
