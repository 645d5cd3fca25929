package server_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/scrypster/agentmemory/internal/config"
	"github.com/scrypster/agentmemory/internal/engine"
	"github.com/scrypster/agentmemory/internal/server"
	"github.com/scrypster/agentmemory/internal/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(mode, token string) *config.Config {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0 // random port
	cfg.Server.RateLimitRPS = 0
	cfg.Security.SecurityMode = mode
	cfg.Security.APIToken = token
	return cfg
}

// startTestServer starts a server over an in-memory SQLite store and returns
// its base URL plus a cancel func that shuts it down.
func startTestServer(t *testing.T, cfg *config.Config) (string, context.CancelFunc) {
	t.Helper()

	store, err := sqlite.NewEventStore(":memory:")
	require.NoError(t, err, "failed to create in-memory SQLite store")

	hub := server.NewHub(cfg, nil)
	svc, err := engine.New(store, engine.ConfigFrom(cfg.Memory), engine.WithNotifier(hub.Notify))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	addr, err := server.Start(ctx, cfg, svc, hub, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		cancel()
		time.Sleep(50 * time.Millisecond)
		_ = store.Close()
	})

	return "http://" + addr, cancel
}

func TestServer_StartsOnRandomPort(t *testing.T) {
	baseURL, _ := startTestServer(t, testConfig("development", ""))

	addr := strings.TrimPrefix(baseURL, "http://")
	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err, "address should be valid host:port format")
	assert.Equal(t, "127.0.0.1", host)
	assert.NotEqual(t, "0", port, "port should not be 0 in actual address")
}

func TestServer_ListenFailure(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = taken.Close() }()

	cfg := testConfig("development", "")
	cfg.Server.Port = taken.Addr().(*net.TCPAddr).Port

	store, err := sqlite.NewEventStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	svc, err := engine.New(store, engine.DefaultConfig())
	require.NoError(t, err)

	_, err = server.Start(context.Background(), cfg, svc, nil, nil)
	assert.Error(t, err)
}

func TestServer_HealthEndpoints(t *testing.T) {
	baseURL, _ := startTestServer(t, testConfig("production", "test-token"))

	for _, path := range []string{"/health", "/api/health"} {
		t.Run(path, func(t *testing.T) {
			resp, err := http.Get(baseURL + path)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, http.StatusOK, resp.StatusCode, "health needs no auth")
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

			var data map[string]interface{}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&data))
			assert.Equal(t, "healthy", data["status"])
			assert.Contains(t, data, "version")
		})
	}
}

func TestServer_SecurityHeaders(t *testing.T) {
	baseURL, _ := startTestServer(t, testConfig("development", ""))

	resp, err := http.Get(baseURL + "/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	expectedHeaders := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"X-XSS-Protection":       "1; mode=block",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	}
	for name, want := range expectedHeaders {
		assert.Equal(t, want, resp.Header.Get(name), "header %q", name)
	}
}

func TestServer_RouteRegistration(t *testing.T) {
	baseURL, _ := startTestServer(t, testConfig("development", ""))

	paths := []string{
		"/api/context",
		"/api/context?format=json",
		"/api/context/digest",
		"/api/issues",
		"/api/search?q=payroll",
		"/api/events/related?email_id=em-1",
	}
	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			resp, err := http.Get(baseURL + path)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		})
	}
}

func TestServer_ProductionMode_RequiresAuth(t *testing.T) {
	testToken := "test-secret-token-xyz123"
	baseURL, _ := startTestServer(t, testConfig("production", testToken))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"without_auth_header", "", http.StatusUnauthorized},
		{"with_invalid_auth_header", "Bearer wrong-token", http.StatusUnauthorized},
		{"with_valid_auth_header", "Bearer " + testToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest("GET", baseURL+"/api/issues", nil)
			require.NoError(t, err)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestServer_HTTPMethods(t *testing.T) {
	baseURL, _ := startTestServer(t, testConfig("development", ""))

	tests := []struct {
		method   string
		path     string
		body     string
		expectOK bool
	}{
		{"POST", "/health", "", false},
		{"DELETE", "/api/context", "", false},
		{"GET", "/api/resolve", "", false},
		{"GET", "/api/events", "", false},
		{"PUT", "/api/annotate", "", false},
		{"POST", "/api/events", `{"agent_type":"triage","event_type":"email_analyzed","summary":"test"}`, true},
		{"POST", "/api/resolve", `{"topic":"Pedro"}`, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_%s", tt.method, tt.path), func(t *testing.T) {
			req, err := http.NewRequest(tt.method, baseURL+tt.path, strings.NewReader(tt.body))
			require.NoError(t, err)
			if tt.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			if tt.expectOK {
				assert.Less(t, resp.StatusCode, 300, "%s %s should succeed", tt.method, tt.path)
			} else {
				assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
			}
		})
	}
}

// Scenario: a triage finding is recorded, the operator says it was handled,
// and the next context read in a separate request no longer shows it.
func TestServer_RecordResolveContext(t *testing.T) {
	baseURL, _ := startTestServer(t, testConfig("development", ""))

	post := func(path, body string) *http.Response {
		resp, err := http.Post(baseURL+path, "application/json", strings.NewReader(body))
		require.NoError(t, err)
		return resp
	}
	getText := func(path string) string {
		resp, err := http.Get(baseURL + path)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		b, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return string(b)
	}

	resp := post("/api/events", `{"agent_type":"triage","event_type":"email_analyzed","summary":"Analyzed urgent payroll email for Pedro"}`)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	assert.Contains(t, getText("/api/context"), "Pedro")

	resp = post("/api/resolve", `{"utterance":"Pedro was handled"}`)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.NotContains(t, getText("/api/context"), "Pedro")
}

func TestServer_NotFoundHandling(t *testing.T) {
	baseURL, _ := startTestServer(t, testConfig("development", ""))

	resp, err := http.Get(baseURL + "/nonexistent/route")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_GracefulShutdown(t *testing.T) {
	baseURL, cancel := startTestServer(t, testConfig("development", ""))

	resp, err := http.Get(baseURL + "/health")
	require.NoError(t, err, "server should be responding before shutdown")
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()

	assert.Eventually(t, func() bool {
		client := &http.Client{Timeout: 500 * time.Millisecond}
		resp, err := client.Get(baseURL + "/health")
		if err == nil {
			_ = resp.Body.Close()
		}
		return err != nil
	}, 3*time.Second, 50*time.Millisecond, "server should stop responding after shutdown")
}
