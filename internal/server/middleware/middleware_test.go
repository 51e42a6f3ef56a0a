package middleware_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/chorus/internal/server/middleware"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func requestFrom(addr string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.RemoteAddr = addr
	return req
}

// ===========================================================================
// 1. RateLimitByIP middleware
// ===========================================================================

func TestRateLimitByIP_FirstRequestPasses(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := middleware.RateLimitByIP(ctx, 1, 1)(okHandler)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, requestFrom("10.0.0.1:1234"))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitByIP_BurstExceeded_Returns429(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Very low rate (effectively zero refill during the test) with burst of 2.
	handler := middleware.RateLimitByIP(ctx, 0.001, 2)(okHandler)

	for i := range 2 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestFrom("10.0.0.1:1234"))
		require.Equalf(t, http.StatusOK, rec.Code, "request %d should pass", i+1)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestFrom("10.0.0.1:1234"))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "1000", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate limit exceeded")
}

func TestRateLimitByIP_PortDoesNotSplitClient(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := middleware.RateLimitByIP(ctx, 0.001, 1)(okHandler)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestFrom("10.0.0.1:1111"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, requestFrom("10.0.0.1:2222"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRateLimitByIP_IndependentPerClient(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := middleware.RateLimitByIP(ctx, 0.001, 1)(okHandler)

	// Exhaust client A's burst.
	recA := httptest.NewRecorder()
	handler.ServeHTTP(recA, requestFrom("10.0.0.1:1234"))
	require.Equal(t, http.StatusOK, recA.Code)

	recA2 := httptest.NewRecorder()
	handler.ServeHTTP(recA2, requestFrom("10.0.0.1:1234"))
	assert.Equal(t, http.StatusTooManyRequests, recA2.Code)

	// Client B (bare address, as left by RealIP) is still allowed.
	recB := httptest.NewRecorder()
	handler.ServeHTTP(recB, requestFrom("10.0.0.2"))
	assert.Equal(t, http.StatusOK, recB.Code)
}

// ===========================================================================
// 2. RequestLogger middleware
// ===========================================================================

func TestRequestLogger_WritesAccessLine(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	handler := chimw.RequestID(middleware.RequestLogger(logger)(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte("done"))
		}),
	))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", http.NoBody)
	req.Header.Set(chimw.RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))

	assert.Equal(t, "http request", line["message"])
	assert.Equal(t, "POST", line["method"])
	assert.Equal(t, "/api/v1/sessions", line["url"])
	assert.InDelta(t, 201, line["status"], 0)
	assert.InDelta(t, 4, line["size"], 0)
	assert.Equal(t, "req-123", line["request_id"])
	assert.Contains(t, line, "remote_addr")
}
