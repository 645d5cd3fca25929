package handlers_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/scrypster/agentmemory/internal/config"
	"github.com/scrypster/agentmemory/internal/engine"
	"github.com/scrypster/agentmemory/internal/storage"
	"github.com/scrypster/agentmemory/internal/storage/sqlite"
	"github.com/scrypster/agentmemory/web/handlers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRequireAuth_SkipInDevelopmentMode(t *testing.T) {
	cfg := &config.Config{
		Security: config.SecurityConfig{
			SecurityMode: "development",
			APIToken:     "secret",
		},
	}

	handler := handlers.RequireAuth(okHandler, cfg)

	req := httptest.NewRequest("GET", "/api/context", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAuth_Production(t *testing.T) {
	cfg := &config.Config{
		Security: config.SecurityConfig{
			SecurityMode: "production",
			APIToken:     "secret-token",
		},
	}
	handler := handlers.RequireAuth(okHandler, cfg)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"token without scheme", "secret-token", http.StatusUnauthorized},
		{"valid token", "Bearer secret-token", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/context", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusUnauthorized {
				assert.Contains(t, w.Body.String(), "unauthorized")
			}
		})
	}
}

func TestRateLimitMiddleware_AllowsNormalRate(t *testing.T) {
	limiter := handlers.NewRateLimiter(10, 20)
	handler := handlers.RateLimitMiddleware(okHandler, limiter)

	for i := 0; i < 10; i++ {
		req := httptest.NewRequest("GET", "/api/search", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRateLimitMiddleware_RejectsExcessiveRate(t *testing.T) {
	limiter := handlers.NewRateLimiter(1, 2)
	handler := handlers.RateLimitMiddleware(okHandler, limiter)

	// Burst of 2 passes.
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("GET", "/api/search", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	req := httptest.NewRequest("GET", "/api/search", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestRateLimiter_ZeroRateDisables(t *testing.T) {
	limiter := handlers.NewRateLimiter(0, 1)
	for i := 0; i < 100; i++ {
		assert.True(t, limiter.Allow())
	}
}

func TestScopeMiddleware_FreshScopePerRequest(t *testing.T) {
	store, err := sqlite.NewEventStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	svc, err := engine.New(store, engine.DefaultConfig())
	require.NoError(t, err)

	var seen []*storage.Scope
	handler := handlers.ScopeMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scope, ok := storage.ScopeFromContext(r.Context())
		require.True(t, ok)
		seen = append(seen, scope)
	}), svc)

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/context", nil))
	}
	require.Len(t, seen, 2)
	assert.NotSame(t, seen[0], seen[1])
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := config.NewLogger(config.LoggingConfig{Level: "debug", Format: "text"}, &buf)

	handler := handlers.LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}), logger)
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/issues", nil))

	assert.Contains(t, buf.String(), "path=/api/issues")
	assert.Contains(t, buf.String(), "status=418")
}
