package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/wikicrawler/internal/article"
	"github.com/JakeFAU/wikicrawler/internal/config"
	"github.com/JakeFAU/wikicrawler/internal/crawler"
	"github.com/JakeFAU/wikicrawler/internal/metrics"
)

const maxRequestBody = 1 << 20

// ArticleService is the behavior the handlers depend on.
type ArticleService interface {
	Parse(ctx context.Context, ref string, overrides article.Overrides) (article.ParseResult, error)
	Summary(ctx context.Context, ref string) (crawler.StoredArticle, crawler.Summary, error)
}

// ReadinessFunc reports whether downstream dependencies are reachable.
type ReadinessFunc func(ctx context.Context) error

// Server wires HTTP handlers to the article service.
type Server struct {
	router  chi.Router
	service ArticleService
	ready   ReadinessFunc
	baseURL string
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes. A nil ready
// function always reports ready.
func NewServer(service ArticleService, ready ReadinessFunc, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		service: service,
		ready:   ready,
		baseURL: cfg.Crawler.BaseURL,
		logger:  logger.Named("api"),
	}
	timeout := cfg.Server.RequestTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)
	r.Use(corsMiddleware(cfg.Server.CORSAllowedOrigins))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(timeout))
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Get("/", s.welcome)
		r.Route("/v1", func(r chi.Router) {
			r.Post("/parse", s.parse)
			r.Get("/summary", s.summary)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) welcome(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "wikicrawler: POST /v1/parse to crawl an article, GET /v1/summary?url= to read its summary",
	})
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type parseRequest struct {
	URL       string `json:"url"`
	MaxDepth  *int   `json:"max_depth"`
	MaxFanout *int   `json:"max_fanout"`
}

type parseResponse struct {
	ID      string               `json:"id"`
	Key     string               `json:"key"`
	URL     string               `json:"url"`
	Title   string               `json:"title"`
	Summary string               `json:"summary,omitempty"`
	Nodes   int                  `json:"nodes"`
	Stats   crawler.Stats        `json:"stats"`
	Tree    *crawler.ArticleNode `json:"tree,omitempty"`
}

type summaryResponse struct {
	ID      string `json:"id"`
	Key     string `json:"key"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

func (s *Server) parse(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url required")
		return
	}
	if (req.MaxDepth != nil && *req.MaxDepth < 0) || (req.MaxFanout != nil && *req.MaxFanout < 0) {
		writeError(w, http.StatusBadRequest, "max_depth and max_fanout must be >= 0")
		return
	}

	res, err := s.service.Parse(r.Context(), req.URL, article.Overrides{
		MaxDepth:  req.MaxDepth,
		MaxFanout: req.MaxFanout,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := parseResponse{
		ID:    res.Article.ID,
		Key:   res.Article.Key.String(),
		URL:   s.articleURL(res.Article.Key),
		Title: res.Article.Title,
		Nodes: res.Nodes,
		Stats: res.Stats,
		Tree:  res.Tree,
	}
	if res.Summary != nil {
		resp.Summary = res.Summary.Text
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) summary(w http.ResponseWriter, r *http.Request) {
	ref := r.URL.Query().Get("url")
	if strings.TrimSpace(ref) == "" {
		writeError(w, http.StatusBadRequest, "url query parameter required")
		return
	}
	stored, sum, err := s.service.Summary(r.Context(), ref)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{
		ID:      stored.ID,
		Key:     stored.Key.String(),
		Title:   stored.Title,
		Summary: sum.Text,
	})
}

func (s *Server) articleURL(key crawler.CanonicalKey) string {
	if s.baseURL == "" {
		return key.EscapedPath()
	}
	return strings.TrimRight(s.baseURL, "/") + "/" + key.EscapedPath()
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, crawler.ErrInvalidSeed), errors.Is(err, crawler.ErrInvalidConfig):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, crawler.ErrNotFound):
		writeError(w, http.StatusNotFound, "article not found")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "request timed out")
	default:
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", RequestID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

type requestIDKey struct{}

// RequestID returns the request ID stored by the request ID middleware.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", RequestID(r.Context())),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rec),
						zap.String("request_id", RequestID(r.Context())),
					)
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, `{"error":"request timed out"}`)
	}
}

// corsMiddleware answers preflight requests for the configured origins. An
// empty origin list allows every origin.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	})
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
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

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
