package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
}

// --- auth ---

func TestAuthDisabledWhenKeyEmpty(t *testing.T) {
	h := Auth("")(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/book", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRejectsMissingToken(t *testing.T) {
	h := Auth("secret")(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/book", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthAcceptsBearerToken(t *testing.T) {
	h := Auth("secret")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/book", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthAcceptsAPIKeyHeader(t *testing.T) {
	h := Auth("secret")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/book", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRejectsWrongToken(t *testing.T) {
	h := Auth("secret")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/book", nil)
	req.Header.Set("X-API-Key", "guess")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthSkipsExemptPaths(t *testing.T) {
	h := Auth("secret", "/api/health", "/metrics")(okHandler())

	for _, path := range []string{"/api/health", "/metrics"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/book", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// --- cors ---

func TestCORSAllowsListedOrigin(t *testing.T) {
	h := CORS([]string{"https://dash.example.com"})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/book", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://dash.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSIgnoresUnknownOrigin(t *testing.T) {
	h := CORS([]string{"https://dash.example.com"})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/book", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSAllowsAllWhenUnconfigured(t *testing.T) {
	h := CORS(nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/book", nil)
	req.Header.Set("Origin", "https://anywhere.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "https://anywhere.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSAnswersPreflight(t *testing.T) {
	h := CORS(nil)(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/book", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

// --- rate limit ---

type stubLimiter struct {
	allowed bool
	err     error
	lastKey string
}

func (l *stubLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	l.lastKey = key
	return l.allowed, l.err
}

var _ domain.RateLimiter = (*stubLimiter)(nil)

func TestRateLimitPassesAllowedRequests(t *testing.T) {
	limiter := &stubLimiter{allowed: true}
	h := RateLimit(limiter, 10, time.Minute)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/book", nil)
	req.RemoteAddr = "10.1.2.3:4567"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "api:10.1.2.3", limiter.lastKey)
}

func TestRateLimitBlocksWhenDenied(t *testing.T) {
	h := RateLimit(&stubLimiter{allowed: false}, 10, time.Minute)(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/book", nil))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestRateLimitFailsOpenOnLimiterError(t *testing.T) {
	h := RateLimit(&stubLimiter{err: errors.New("redis down")}, 10, time.Minute)(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/book", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitTrustsForwardedFor(t *testing.T) {
	limiter := &stubLimiter{allowed: true}
	h := RateLimit(limiter, 10, time.Minute)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/book", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "api:203.0.113.9", limiter.lastKey)
}

// --- logging ---

func TestLoggingPreservesHandlerStatus(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/archive/run", nil))

	assert.Equal(t, http.StatusCreated, rec.Code)
}
