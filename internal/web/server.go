// Package web provides the HTTP boundary for the upload pipeline. It is
// thin plumbing: handlers decode requests, call the pipeline or stores,
// and encode results; all business logic lives in internal/pipeline.
package web

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/equipflow/equipflow/internal/config"
	"github.com/equipflow/equipflow/internal/pipeline"
	"github.com/equipflow/equipflow/internal/store"
	appmw "github.com/equipflow/equipflow/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// UploadProcessor runs the full pipeline for one upload.
type UploadProcessor interface {
	Process(ctx context.Context, fileName string, data []byte) (*pipeline.Result, error)
}

// HistoryReader serves the read-only history boundary.
type HistoryReader interface {
	ListRecent(ctx context.Context) ([]store.HistoryEntry, error)
}

// EquipmentReader serves the read boundary over persisted records.
type EquipmentReader interface {
	List(ctx context.Context) ([]store.EquipmentRow, error)
}

// Pinger verifies the database connection for health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP server for the upload service.
type Server struct {
	processor UploadProcessor
	history   HistoryReader
	equipment EquipmentReader
	pinger    Pinger
	cfg       *config.Config
	router    *chi.Mux
	server    *http.Server
}

// NewServer wires routes and middleware around the given collaborators.
func NewServer(processor UploadProcessor, history HistoryReader, equipment EquipmentReader, pinger Pinger, cfg *config.Config) *Server {
	s := &Server{
		processor: processor,
		history:   history,
		equipment: equipment,
		pinger:    pinger,
		cfg:       cfg,
		router:    chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(appmw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(appmw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
	s.router.Use(securityHeaders)

	if s.cfg.Rate.Enabled {
		limiter := newRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute)
		s.router.Use(limiter.middleware)
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Generated reports; the report_path returned by an upload is
	// relative to /media/.
	s.router.Handle("/media/reports/*",
		http.StripPrefix("/media/reports/", http.FileServer(http.Dir(s.cfg.Reports.Dir))))

	s.router.Route("/api", func(r chi.Router) {
		r.Use(appmw.APIKeyAuth(&s.cfg.Security))

		r.Post("/upload", s.handleUpload)
		r.Get("/history", s.handleHistory)
		r.Get("/equipment", s.handleEquipment)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router exposes the chi router for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds standard hardening headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// rateLimiter is a simple token bucket per client IP. Stale entries are
// swept lazily from allow, so it owns no goroutine and needs no lifecycle.
type rateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	rate      int
	window    time.Duration
	lastSweep time.Time
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

func newRateLimiter(rate int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		visitors:  make(map[string]*visitor),
		rate:      rate,
		window:    window,
		lastSweep: time.Now(),
	}
}

// sweepLocked drops stale visitor entries so the map stays bounded.
// Runs at most once per window; the caller holds mu.
func (rl *rateLimiter) sweepLocked() {
	now := time.Now()
	if now.Sub(rl.lastSweep) < rl.window {
		return
	}
	rl.lastSweep = now
	for ip, v := range rl.visitors {
		if now.Sub(v.lastReset) > rl.window*2 {
			delete(rl.visitors, ip)
		}
	}
}

func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.sweepLocked()

	v, exists := rl.visitors[ip]
	if !exists {
		rl.visitors[ip] = &visitor{tokens: rl.rate - 1, lastReset: time.Now()}
		return true
	}

	if time.Since(v.lastReset) > rl.window {
		v.tokens = rl.rate - 1
		v.lastReset = time.Now()
		return true
	}

	if v.tokens <= 0 {
		return false
	}
	v.tokens--
	return true
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(r.RemoteAddr) {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
