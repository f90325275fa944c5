// Package http exposes the transaction service as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"finease/internal/auth"
	"finease/internal/core"
	"finease/internal/log"
	"finease/internal/middleware/ratelimit"
	"finease/internal/middleware/security"
	"finease/internal/middleware/trace"
	"finease/internal/query"
)

// Service is what the handlers need from the transaction service.
type Service interface {
	Create(ctx context.Context, in core.TransactionInput) (string, error)
	List(ctx context.Context, p query.Params) ([]core.Transaction, error)
	Get(ctx context.Context, id string) (core.Transaction, error)
	Delete(ctx context.Context, id string) (int64, error)
	Update(ctx context.Context, id, owner string, in core.TransactionPatchInput) (int64, error)
	CategoryTotal(ctx context.Context, owner, category string) (core.Money, error)
	Overview(ctx context.Context, owner string) (core.Overview, error)
	Summary(ctx context.Context, owner string) (core.ReportSummary, error)
	Ping(ctx context.Context) error
}

type Options struct {
	RateLimitPerMinute int
	CORSAllowedOrigins []string
	Logger             *log.Logger
}

type Server struct {
	http.Server

	svc       Service
	verifier  auth.Verifier
	limiter   *ratelimit.Limiter
	detector  *security.Detector
	logger    *log.Logger
	startedAt time.Time

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, svc Service, verifier auth.Verifier, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}

	s := &Server{
		svc:       svc,
		verifier:  verifier,
		limiter:   ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector:  security.NewDetector(),
		logger:    logger.WithComponent(log.ComponentHTTP),
		startedAt: time.Now(),
	}

	mux := http.NewServeMux()
	requireAuth := auth.Require(verifier, s.writeError)

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /add-transaction", s.handleCreate)
	mux.Handle("GET /my-transactions", requireAuth(http.HandlerFunc(s.handleList)))
	mux.HandleFunc("GET /transaction/{id}", s.handleGet)
	mux.HandleFunc("DELETE /transaction/{id}", s.handleDelete)
	mux.Handle("PUT /transaction/{id}", requireAuth(http.HandlerFunc(s.handleUpdate)))

	mux.Handle("GET /total-by-category", requireAuth(http.HandlerFunc(s.handleCategoryTotal)))
	mux.Handle("GET /overview", requireAuth(http.HandlerFunc(s.handleOverview)))
	mux.Handle("GET /reports-summary", requireAuth(http.HandlerFunc(s.handleSummary)))

	var handler http.Handler = mux
	handler = s.limiter.Middleware(s.detector.ClientIP, s.writeRateLimited)(handler)
	handler = security.NewCORS(opts.CORSAllowedOrigins).Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = trace.NewMiddleware(logger, s.detector.ClientIP).Middleware(handler)
	handler = s.detector.RejectProbes(s.logProbe)(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown stops the rate limiter and drains the HTTP server. It is safe
// to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func (s *Server) logProbe(r *http.Request) {
	s.logger.WarnContext(r.Context(), "Probe request rejected",
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path,
		log.FieldClientIP, s.detector.ClientIP(r),
		log.FieldUserAgent, r.UserAgent())
}
