// Package httpapi is the inbound HTTP Surface: it registers the operations
// listed in the external-interfaces section, serializing every mutating one
// through the engine's own exclusive lock.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"dataexplorer/internal/engine"
	"dataexplorer/internal/eventbus"

	"github.com/gorilla/mux"
)

// Server hosts the HTTP Surface over one Engine.
type Server struct {
	engine     *engine.Engine
	limiter    *ipLimiter
	httpServer *http.Server
	onShutdown func()
	onRestart  func()
}

// NewServer builds a Server wired to eng, applying any functional options
// before the router and listener are constructed. bus, if non-nil, is
// subscribed by the WS hub so engine-published fetch_complete/redraw_needed
// events reach connected UI clients. Rate limiting defaults to the same
// 10rps/burst-20 values as Config.Default; pass WithRateLimit to match a
// loaded Config.
func NewServer(eng *engine.Engine, bus *eventbus.Bus, addr string, opts ...func(*Server)) *Server {
	s := &Server{engine: eng, limiter: newIPLimiter(10, 20, 15*time.Minute)}
	for _, opt := range opts {
		opt(s)
	}

	if bus != nil {
		subscribeBus(bus)
	}

	r := mux.NewRouter()
	r.Use(commonMiddleware)
	r.Use(s.rateLimitMiddleware)
	registerRoutes(r, s)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return s
}

// WithOnShutdown sets the callback invoked by the /shutdown handler after it
// has responded to the client.
func WithOnShutdown(fn func()) func(*Server) {
	return func(s *Server) { s.onShutdown = fn }
}

// WithOnRestart sets the callback invoked by the /restart handler after it
// has responded to the client.
func WithOnRestart(fn func()) func(*Server) {
	return func(s *Server) { s.onRestart = fn }
}

// WithRateLimit overrides the default per-IP token-bucket rate, typically
// from a loaded Config's RateLimitRPS/RateLimitBurst. rps <= 0 disables
// rate limiting entirely.
func WithRateLimit(rps float64, burst int) func(*Server) {
	return func(s *Server) { s.limiter = newIPLimiter(rps, burst, 15*time.Minute) }
}

// Start begins serving. It blocks until the listener stops.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func commonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
