package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/listing-sync/internal/metrics"
	"github.com/sells-group/listing-sync/internal/model"
	"github.com/sells-group/listing-sync/internal/pipeline"
	"github.com/sells-group/listing-sync/internal/store"
)

const maxBodyBytes = 1 << 20

// Runner runs pipeline invocations. *pipeline.Coordinator implements it.
type Runner interface {
	Run(ctx context.Context, inv pipeline.Invocation) *model.PipelineResult
	ValidateCredential(raw string) model.CredentialDiagnostics
}

// Store is the read side used by the listing and run endpoints.
type Store interface {
	store.ListingStore
	store.RunStore
}

// Options configure a Server.
type Options struct {
	CORSOrigins []string
	RunTimeout  time.Duration
}

// Server serves the HTTP API.
type Server struct {
	runner  Runner
	store   Store
	metrics *metrics.Recorder
	opts    Options
	now     func() time.Time
}

// NewServer creates a Server. st and rec may be nil.
func NewServer(runner Runner, st Store, rec *metrics.Recorder, opts Options) *Server {
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 5 * time.Minute
	}
	return &Server{runner: runner, store: st, metrics: rec, opts: opts, now: time.Now}
}

// ScrapeRequest is the body of POST /v1/scrape.
type ScrapeRequest struct {
	URL               string            `json:"url,omitempty"`
	SessionCredential string            `json:"session_credential"`
	Filters           map[string]string `json:"filters,omitempty"`
	DryRun            bool              `json:"dry_run,omitempty"`
}

// CredentialRequest is the body of POST /v1/credentials/validate.
type CredentialRequest struct {
	SessionCredential string `json:"session_credential"`
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/scrape", s.handleScrape)
		r.Post("/credentials/validate", s.handleValidate)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Get("/listings", s.handleListListings)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	var req ScrapeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RunTimeout)
	defer cancel()

	res := s.runner.Run(ctx, pipeline.Invocation{
		URL:        req.URL,
		Credential: req.SessionCredential,
		Filters:    req.Filters,
		DryRun:     req.DryRun,
	})
	// Structured failures are still 200 so callers can render the guidance.
	writeJSON(w, http.StatusOK, BuildResponse(res))
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req CredentialRequest
	if !decodeBody(w, r, &req) {
		return
	}
	diag := s.runner.ValidateCredential(req.SessionCredential)
	writeJSON(w, http.StatusOK, CredentialResponse(diag, s.now()))
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "not_found", "run history is not enabled")
		return
	}
	res, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "run not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListListings(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "not_found", "listing store is not enabled")
		return
	}
	q := r.URL.Query()
	filter := store.ListFilter{SourceURL: q.Get("source_url")}
	var err error
	if v := q.Get("limit"); v != "" {
		if filter.Limit, err = strconv.Atoi(v); err != nil || filter.Limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a non-negative integer")
			return
		}
	}
	if v := q.Get("offset"); v != "" {
		if filter.Offset, err = strconv.Atoi(v); err != nil || filter.Offset < 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "offset must be a non-negative integer")
			return
		}
	}

	listings, err := s.store.ListListings(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: list listings", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "could not list listings")
		return
	}
	if listings == nil {
		listings = []model.StoredListing{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"listings": listings, "count": len(listings)})
}

// observe logs and counts each request. Bodies and headers are never logged.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.ObserveHTTP(r.Method, path, status, time.Since(start))
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be a JSON object")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, Response{"success": false, "error": code, "message": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}
