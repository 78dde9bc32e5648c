package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"ledger/internal/auth"
	"ledger/internal/log"
	"ledger/internal/middleware/ratelimit"
	"ledger/internal/middleware/security"
	"ledger/internal/middleware/trace"
	"ledger/internal/services"
)

const (
	readHeaderTimeout = 5 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 120 * time.Second
	readyTimeout      = 2 * time.Second
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config wires the server to the ledger.
type Config struct {
	Addr               string
	Ledger             *services.LedgerService
	Store              Pinger
	Verifier           *auth.Verifier
	RateLimitPerMinute int
	Logger             *log.Logger
}

type Server struct {
	http.Server
	ledger   *services.LedgerService
	store    Pinger
	verifier *auth.Verifier
	logger   *log.Logger

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	started          time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		ledger:           cfg.Ledger,
		store:            cfg.Store,
		verifier:         cfg.Verifier,
		logger:           logger,
		rateLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute}),
		securityDetector: security.NewDetector(),
		traceMiddleware:  trace.NewMiddleware(),
		started:          time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /categories", s.authenticated(s.handleListCategories))
	mux.HandleFunc("POST /categories", s.limited(s.authenticated(s.handleCreateCategory)))
	mux.HandleFunc("GET /categories/{name}", s.authenticated(s.handleGetCategory))
	mux.HandleFunc("PUT /categories/{name}", s.limited(s.authenticated(s.handleRenameCategory)))
	mux.HandleFunc("DELETE /categories/{name}", s.limited(s.authenticated(s.handleDeleteCategory)))
	mux.HandleFunc("GET /categories/{name}/outcomes", s.authenticated(s.handleGetOutcomes))
	mux.HandleFunc("PUT /transactions", s.limited(s.authenticated(s.handleIngestTransactions)))

	var handler http.Handler = mux
	handler = s.securityDetector.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = log.AccessLog(s.securityDetector.ExtractClientIP)(handler)
	handler = log.RequestIDMiddleware(trace.RequestID)(handler)
	handler = log.Middleware(logger)(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
	return s
}

// authenticated verifies the bearer token and stores the owner in the
// request context.
func (s *Server) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.BearerToken(r.Header.Get("Authorization"))
		if err == nil {
			var owner string
			if owner, err = s.verifier.Verify(token); err == nil {
				ctx := auth.WithOwner(r.Context(), owner)
				ctx = context.WithValue(ctx, log.LoggerContextKey, log.FromContext(ctx).With(log.FieldOwner, owner))
				next(w, r.WithContext(ctx))
				return
			}
		}
		writeError(w, r, "authenticate", err)
	}
}

// limited applies the per-client rate limit to mutating routes.
func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	mw := s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(),
			"Rate limit exceeded",
			log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
			log.FieldPath, r.URL.Path)
		b := NewJSONResponse().Status(http.StatusTooManyRequests).Message("rate limit exceeded")
		b.body.Status = statusError
		b.Write(w)
	})
	return mw(next).ServeHTTP
}

// Shutdown stops background routines and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
