// Package http exposes the inventory and sales API. Read endpoints are backed
// by short-lived LRU caches that write handlers invalidate.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"tienda/internal/cache"
	"tienda/internal/core"
	"tienda/internal/services"
	"tienda/internal/store"
)

type Server struct {
	http.Server
	store       store.Store
	sales       *services.SaleService
	lowStock    *services.LowStockMonitor
	rateLimiter *rateLimiter

	windowMonths int
	latestLimit  int

	productsCache *cache.LRUCache[[]core.Product]
	monthlyCache  *cache.LRUCache[monthlySalesResponse]
	cacheManager  *cache.Manager

	shutdownOnce sync.Once
}

// Options carries the tunables the config layer resolves from env vars.
type Options struct {
	Addr         string
	WindowMonths int
	LatestLimit  int
}

// NewServer configures routes and caches, returning a ready-to-run server.
func NewServer(opts Options, st store.Store, sales *services.SaleService, lowStock *services.LowStockMonitor) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    opts.Addr,
			Handler: mux,
		},
		store:        st,
		sales:        sales,
		lowStock:     lowStock,
		rateLimiter:  newRateLimiter(),
		windowMonths: opts.WindowMonths,
		latestLimit:  opts.LatestLimit,

		productsCache: cache.NewLRUCache[[]core.Product](10, 5*time.Minute),
		monthlyCache:  cache.NewLRUCache[monthlySalesResponse](10, 5*time.Minute),
		cacheManager:  cache.NewManager(),
	}

	s.cacheManager.Register(s.productsCache)
	s.cacheManager.Register(s.monthlyCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("GET /api/products", s.withMiddleware(s.handleListProducts))
	mux.HandleFunc("POST /api/products", s.withMiddleware(s.handleCreateProduct))
	mux.HandleFunc("GET /api/products/low-stock", s.withMiddleware(s.handleLowStock))
	mux.HandleFunc("POST /api/products/low-stock/dismiss", s.withMiddleware(s.handleLowStockDismiss))
	mux.HandleFunc("POST /api/products/low-stock/reset", s.withMiddleware(s.handleLowStockReset))
	mux.HandleFunc("GET /api/products/{id}", s.withMiddleware(s.handleGetProduct))
	mux.HandleFunc("PUT /api/products/{id}", s.withMiddleware(s.handleUpdateProduct))
	mux.HandleFunc("DELETE /api/products/{id}", s.withMiddleware(s.handleDeleteProduct))

	mux.HandleFunc("GET /api/categories", s.withMiddleware(s.handleListCategories))
	mux.HandleFunc("POST /api/categories", s.withMiddleware(s.handleCreateCategory))
	mux.HandleFunc("DELETE /api/categories/{id}", s.withMiddleware(s.handleDeleteCategory))

	mux.HandleFunc("POST /api/sales", s.withMiddleware(s.handleRegisterSale))
	mux.HandleFunc("GET /api/sales/latest", s.withMiddleware(s.handleLatestSales))
	mux.HandleFunc("GET /api/sales/monthly", s.withMiddleware(s.handleMonthlySales))

	return s
}

// Shutdown gracefully shuts down the server and its cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// invalidateViews drops the cached product and sales views after a mutation.
func (s *Server) invalidateViews() {
	s.productsCache.Clear()
	s.monthlyCache.Clear()
}

// Simple per-IP rate limiter, 60 requests per minute.
type rateLimiter struct {
	mu           sync.Mutex
	clients      map[string]*clientInfo
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type clientInfo struct {
	lastRequest time.Time
	requests    int
}

func newRateLimiter() *rateLimiter {
	rl := &rateLimiter{
		clients:     make(map[string]*clientInfo),
		stopCleanup: make(chan struct{}),
	}
	go rl.startCleanup()
	return rl
}

func (rl *rateLimiter) startCleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *rateLimiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, client := range rl.clients {
		if client.lastRequest.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.shutdownOnce.Do(func() {
		close(rl.stopCleanup)
	})
}

func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	client, exists := rl.clients[clientIP]

	if !exists {
		rl.clients[clientIP] = &clientInfo{lastRequest: now, requests: 1}
		return true
	}

	if now.Sub(client.lastRequest) > time.Minute {
		client.requests = 1
		client.lastRequest = now
		return true
	}

	client.requests++
	client.lastRequest = now

	return client.requests <= 60
}

// withMiddleware adds security headers, rate limiting on writes, request IDs,
// and request logging.
func (s *Server) withMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP)

		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded", "client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", clientIP)
	}
}

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
