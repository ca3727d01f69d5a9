package httpx

import (
	"net/http"
	"time"

	"log/slog"

	"github.com/rs/cors"

	"github.com/hemanth-chakravarthy/realtime-geosync/internal/app"
	"github.com/hemanth-chakravarthy/realtime-geosync/pkg/ratelimit"
)

type Middleware struct {
	cors   *cors.Cors
	rlimit *ratelimit.Limiter
	log    *slog.Logger
}

// NewMiddleware builds the shared middleware stack from config
func NewMiddleware(cfg app.Config, logger *slog.Logger) *Middleware {
	return &Middleware{
		cors: cors.New(cors.Options{
			AllowedOrigins:   cfg.CORSAllow,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
		}),
		rlimit: ratelimit.New(cfg.CreateRateLimit, time.Minute),
		log:    logger,
	}
}

// Wrap applies CORS + request logging to a handler
func (m *Middleware) Wrap(h http.Handler) http.Handler {
	return m.cors.Handler(m.logRequests(h))
}

// logRequests emits one debug line per request
func (m *Middleware) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t := time.Now()
		next.ServeHTTP(w, r)
		m.log.Debug("http.request",
			"method", r.Method,
			"path", r.URL.Path,
			"dur", time.Since(t))
	})
}

// Limit caps requests per source IP; used on room creation only
func (m *Middleware) Limit(h http.Handler) http.Handler {
	return m.rlimit.Middleware(h)
}
