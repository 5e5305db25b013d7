// Package server exposes the memory engine over a REST API plus a
// websocket event feed.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/cogmem/cogmem/internal/config"
	"github.com/cogmem/cogmem/internal/engine"
)

// Start initializes and starts the HTTP server. Returns the actual address
// being listened on (useful for testing with port 0) and the event hub.
// The server shuts down gracefully when ctx is cancelled.
func Start(ctx context.Context, cfg *config.Config, eng *engine.Engine) (string, *Hub, error) {
	hub := NewHub()
	go hub.Run()

	handler := NewRouter(cfg, eng, hub)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		hub.Stop()
		return "", nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	actualAddr := listener.Addr().String()

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("server: serve error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("server: shutdown error: %v", err)
		}
		hub.Stop()
	}()

	return actualAddr, hub, nil
}

// NewRouter builds the full HTTP handler chain: routes wrapped with auth,
// rate limiting, security headers and request logging.
func NewRouter(cfg *config.Config, eng *engine.Engine, hub *Hub) http.Handler {
	handlers := NewHandlers(eng, hub)

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("POST /api/conversations/{id}/turns", handlers.AddTurns)
	apiMux.HandleFunc("GET /api/conversations/{id}/search", handlers.Search)
	apiMux.HandleFunc("GET /api/memories/{id}", handlers.GetMemory)
	apiMux.HandleFunc("PATCH /api/memories/{id}", handlers.UpdateMemory)
	apiMux.HandleFunc("DELETE /api/memories/{id}", handlers.DeleteMemory)

	mux := http.NewServeMux()
	// Health stays outside auth so monitoring never needs a token.
	mux.HandleFunc("GET /api/health", handlers.Health)
	mux.Handle("/api/", requireAuth(apiMux, cfg))
	if hub != nil {
		mux.Handle("/ws/events", hub)
	}

	chain := rateLimit(mux, cfg.Server.RateLimit, cfg.Server.RateBurst)
	chain = securityHeaders(chain)
	chain = requestLog(chain)
	return chain
}
