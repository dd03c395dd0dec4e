package appMiddleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ok, _ := rl.Allow("k")
	assert.True(t, ok)
	ok, _ = rl.Allow("k")
	assert.True(t, ok)

	ok, retry := rl.Allow("k")
	assert.False(t, ok)
	assert.Greater(t, retry, time.Duration(0))
	assert.LessOrEqual(t, retry, time.Minute)

	ok, _ = rl.Allow("other")
	assert.True(t, ok, "keys are counted independently")
}

func TestRateLimiterWindowResets(t *testing.T) {
	rl := NewRateLimiter(1, 50*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ok, _ := rl.Allow("k")
	assert.True(t, ok)
	ok, _ = rl.Allow("k")
	assert.False(t, ok)

	time.Sleep(80 * time.Millisecond)

	ok, _ = rl.Allow("k")
	assert.True(t, ok)
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h := rl.Middleware(okHandler())

	newReq := func(addr string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/api/login", nil)
		req.RemoteAddr = addr
		return req
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, newReq("10.0.0.1:5555"))
	assert.Equal(t, http.StatusOK, w.Code)

	// Same client from another source port is still the same client.
	w = httptest.NewRecorder()
	h.ServeHTTP(w, newReq("10.0.0.1:6666"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "Too many requests")

	w = httptest.NewRecorder()
	h.ServeHTTP(w, newReq("10.0.0.2:5555"))
	assert.Equal(t, http.StatusOK, w.Code)
}
