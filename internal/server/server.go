// Package server provides HTTP server initialization and lifecycle management
// for the agent memory API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/scrypster/agentmemory/internal/config"
	"github.com/scrypster/agentmemory/internal/engine"
	"github.com/scrypster/agentmemory/web/handlers"
)

// securityHeadersMiddleware adds security headers to all HTTP responses.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// NewHub creates the notification hub for cfg. Browsers may connect from the
// configured listen address and from localhost on the same port. Pass
// hub.Notify to engine.WithNotifier so committed changes reach subscribers.
func NewHub(cfg *config.Config, logger *slog.Logger) *handlers.WebSocketHub {
	origins := []string{
		fmt.Sprintf("localhost:%d", cfg.Server.Port),
		fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port),
	}
	if cfg.Server.Host != "" && cfg.Server.Host != "127.0.0.1" && cfg.Server.Host != "0.0.0.0" {
		origins = append(origins, fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
	}
	return handlers.NewWebSocketHub(logger, origins...)
}

func methodNotAllowed(w http.ResponseWriter) {
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}

// routes builds the full handler tree.
func routes(cfg *config.Config, svc *engine.Service, hub *handlers.WebSocketHub, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	api := handlers.NewAPIHandlers(svc, logger)
	apiMux := http.NewServeMux()

	apiMux.HandleFunc("/api/events", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			api.RecordEvent(w, r)
		default:
			methodNotAllowed(w)
		}
	})
	apiMux.HandleFunc("/api/events/related", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			api.RelatedEvents(w, r)
		default:
			methodNotAllowed(w)
		}
	})
	apiMux.HandleFunc("/api/events/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			api.GetEvent(w, r)
		default:
			methodNotAllowed(w)
		}
	})

	// Context routes
	apiMux.HandleFunc("/api/context", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			api.GetContext(w, r)
		default:
			methodNotAllowed(w)
		}
	})
	apiMux.HandleFunc("/api/context/digest", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			api.GetDigestContext(w, r)
		default:
			methodNotAllowed(w)
		}
	})

	// Resolution routes
	apiMux.HandleFunc("/api/resolve", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			api.Resolve(w, r)
		default:
			methodNotAllowed(w)
		}
	})
	apiMux.HandleFunc("/api/annotate", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			api.Annotate(w, r)
		default:
			methodNotAllowed(w)
		}
	})

	apiMux.HandleFunc("/api/search", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			api.Search(w, r)
		default:
			methodNotAllowed(w)
		}
	})
	apiMux.HandleFunc("/api/issues", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			api.ActiveIssues(w, r)
		default:
			methodNotAllowed(w)
		}
	})

	// Session routes
	apiMux.HandleFunc("/api/sessions", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			api.StartSession(w, r)
		default:
			methodNotAllowed(w)
		}
	})
	apiMux.HandleFunc("/api/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			api.GetSession(w, r)
		default:
			methodNotAllowed(w)
		}
	})
	apiMux.HandleFunc("/api/sessions/{id}/complete", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			api.CompleteSession(w, r)
		default:
			methodNotAllowed(w)
		}
	})

	// Health endpoint, no auth required
	health := func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		api.Health(w, r)
	}
	mux.HandleFunc("/health", health)
	mux.HandleFunc("/api/health", health)

	var apiHandler http.Handler = handlers.ScopeMiddleware(apiMux, svc)
	apiHandler = handlers.LoggingMiddleware(apiHandler, logger)
	mux.Handle("/api/", handlers.RequireAuth(apiHandler, cfg))

	// WebSocket endpoint (no auth required - origin validation handles security)
	mux.Handle("/ws", hub)

	rateLimiter := handlers.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	handler := handlers.RateLimitMiddleware(mux, rateLimiter)
	return securityHeadersMiddleware(handler)
}

// Start initializes and starts the HTTP server. It returns the actual address
// being listened on (useful for testing with port 0). The server and hub
// shut down when ctx is cancelled.
func Start(ctx context.Context, cfg *config.Config, svc *engine.Service, hub *handlers.WebSocketHub, logger *slog.Logger) (string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if hub == nil {
		hub = NewHub(cfg, logger)
	}
	go hub.Run()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      routes(cfg, svc, hub, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		hub.Stop()
		return "", fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	actualAddr := listener.Addr().String()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
		hub.Stop()
	}()

	logger.Info("server listening", "addr", actualAddr, "security_mode", cfg.Security.SecurityMode)
	return actualAddr, nil
}
