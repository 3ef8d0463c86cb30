// Package api exposes the HTTP status interface for the crawler.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pharmintel/pricewatch/internal/pharma"
)

// Server wires HTTP handlers to the run ledger and product store. It
// is read-only: crawl runs are launched from the CLI, not over HTTP.
type Server struct {
	router   chi.Router
	ledger   pharma.RunLedger
	products pharma.ProductStore
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(ledger pharma.RunLedger, products pharma.ProductStore, logger *zap.Logger) *Server {
	s := &Server{
		ledger:   ledger,
		products: products,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/runs", s.listRuns)
		r.Route("/products/{source}/{site_code}", func(r chi.Router) {
			r.Get("/", s.getProduct)
			r.Get("/history", s.getPriceHistory)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The ledger query doubles as a database liveness probe.
	if _, err := s.ledger.ListRecent(r.Context(), 1); err != nil {
		writeError(s.logger, w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			writeError(s.logger, w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	runs, err := s.ledger.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(s.logger, w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	key, ok := s.productKey(w, r)
	if !ok {
		return
	}
	product, err := s.products.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, pharma.ErrNotFound) {
			writeError(s.logger, w, http.StatusNotFound, "product not found")
			return
		}
		writeError(s.logger, w, http.StatusInternalServerError, "failed to fetch product")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"product": product})
}

func (s *Server) getPriceHistory(w http.ResponseWriter, r *http.Request) {
	key, ok := s.productKey(w, r)
	if !ok {
		return
	}
	history, err := s.products.PriceHistory(r.Context(), key)
	if err != nil {
		writeError(s.logger, w, http.StatusInternalServerError, "failed to fetch price history")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"history": history})
}

func (s *Server) productKey(w http.ResponseWriter, r *http.Request) (pharma.ProductKey, bool) {
	source := pharma.Source(chi.URLParam(r, "source"))
	siteCode := chi.URLParam(r, "site_code")
	if source == "" || siteCode == "" {
		writeError(s.logger, w, http.StatusBadRequest, "source and site_code required")
		return pharma.ProductKey{}, false
	}
	known := false
	for _, s := range pharma.KnownSources() {
		if s == source {
			known = true
			break
		}
	}
	if !known {
		writeError(s.logger, w, http.StatusNotFound, "unknown source")
		return pharma.ProductKey{}, false
	}
	return pharma.ProductKey{Source: source, SiteCode: siteCode}, true
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(s.logger, w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(logger *zap.Logger, w http.ResponseWriter, status int, msg string) {
	writeJSON(logger, w, status, map[string]string{"error": msg})
}
