// Package api is the thin HTTP surface in front of the submission queue.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/vietddude/zkrelay/internal/core/domain"
	"github.com/vietddude/zkrelay/internal/metrics"
	"github.com/vietddude/zkrelay/internal/relay/connection"
	"github.com/vietddude/zkrelay/internal/relay/queue"
)

// Relay is the part of the queue the HTTP surface drives.
type Relay interface {
	Submit(ctx context.Context, in queue.SubmitInput) (*domain.TxResult, error)
	ClearQueue() queue.ClearResult
	Status() domain.QueueStatus
}

// ConnectionStats reports the chain connection for /health.
type ConnectionStats interface {
	Stats() connection.Stats
}

// Config holds HTTP server settings.
type Config struct {
	Port      int
	RateLimit float64 // per second on /verify, 0 = unlimited
	RateBurst int
}

// Server provides the verification and monitoring endpoints.
type Server struct {
	relay   Relay
	conn    ConnectionStats
	vk      domain.VKRef
	limiter *rate.Limiter
	log     *slog.Logger
	server  *http.Server
}

// NewServer creates a new API server. Every accepted proof carries vk.
func NewServer(cfg Config, relay Relay, conn ConnectionStats, vk domain.VKRef) *Server {
	mux := http.NewServeMux()
	s := &Server{
		relay: relay,
		conn:  conn,
		vk:    vk,
		log:   slog.Default().With("component", "api"),
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Port),
			Handler: mux,
		},
	}
	if cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.RateBurst, 1))
	}

	mux.Handle("POST /verify", s.instrument("/verify", s.rateLimited(http.HandlerFunc(s.handleVerify))))
	mux.Handle("GET /health", s.instrument("/health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /queue/status", s.instrument("/queue/status", http.HandlerFunc(s.handleQueueStatus)))
	mux.Handle("POST /queue/clear", s.instrument("/queue/clear", http.HandlerFunc(s.handleQueueClear)))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Handler exposes the routes without a listener.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server. It returns http.ErrServerClosed after Stop.
func (s *Server) Start() error {
	s.log.Info("API listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
	})
}

func (s *Server) rateLimited(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			metrics.RateLimited.Inc()
			writeJSON(w, http.StatusTooManyRequests, errorResponse{
				Error:     "rate limit exceeded",
				Category:  "RateLimited",
				Retryable: true,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
