// Package api is the HTTP front door: the synchronous compile endpoints,
// the async job endpoints, and static informational routes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dontdude/dbpexec/internal/domain"
	"github.com/dontdude/dbpexec/internal/platform/metrics"
	"github.com/dontdude/dbpexec/internal/platform/web"
)

// Options configures the handler set.
type Options struct {
	// Compiler serves /compile and /compile_multi.
	Compiler domain.Compiler
	// Queue and Hub enable the async job endpoints; both nil in local mode.
	Queue domain.JobQueue
	Hub   *Hub
	Mode  string

	Secret          string
	SignatureHeader string
	MaxBodyBytes    int64
	// RateLimiter is optional.
	RateLimiter *web.RateLimiter

	MetricsPath string // empty disables /metrics
	Logger      *slog.Logger
}

// Server holds the handlers' dependencies.
type Server struct {
	opts   Options
	logger *slog.Logger
}

// NewServer returns a Server for opts.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	return &Server{opts: opts, logger: logger}
}

// Handler builds the routed, middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Signed, rate limited routes that reach the compile lock or the job queue.
	guarded := func(route string, h http.HandlerFunc) http.Handler {
		var next http.Handler = web.SignatureMiddleware(s.opts.Secret, s.opts.SignatureHeader, s.opts.MaxBodyBytes, h)
		if s.opts.RateLimiter != nil {
			next = s.opts.RateLimiter.Middleware(next)
		}
		return metrics.Middleware(route, next)
	}

	mux.Handle("POST /compile", guarded("/compile", s.handleCompile))
	mux.Handle("POST /compile_multi", guarded("/compile_multi", s.handleCompileMulti))
	mux.Handle("GET /update", metrics.Middleware("/update", http.HandlerFunc(s.handleUpdate)))
	mux.Handle("GET /commit_hash", metrics.Middleware("/commit_hash", http.HandlerFunc(s.handleCommitHash)))
	mux.Handle("GET /health", metrics.Middleware("/health", http.HandlerFunc(s.handleHealth)))

	if s.opts.Queue != nil && s.opts.Hub != nil {
		mux.Handle("POST /api/jobs", guarded("/api/jobs", s.handleSubmit))
		mux.Handle("GET /api/ws", metrics.Middleware("/api/ws", http.HandlerFunc(s.handleWS)))
	}

	if s.opts.MetricsPath != "" {
		mux.Handle("GET "+s.opts.MetricsPath, promhttp.Handler())
	}

	return web.RequestID(web.Logging(s.logger, web.EnableCORS(s.opts.SignatureHeader, mux)))
}

// compileSnippet is one request item. Code is a pointer so a missing field
// can be told apart from empty source.
type compileSnippet struct {
	Code *string `json:"code"`
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)).Decode(v); err != nil {
		web.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	var snippet compileSnippet
	if !s.decode(w, r, &snippet) {
		return
	}
	if snippet.Code == nil {
		web.WriteError(w, http.StatusBadRequest, "code is required")
		return
	}

	result, err := s.opts.Compiler.Compile(r.Context(), domain.CompileRequest{Code: *snippet.Code})
	if err != nil {
		s.writeUnavailable(w, r, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, result)
}

// handleCompileMulti runs every snippet in order. Each item goes through the
// compile lock on its own, and a failing item does not stop the rest.
func (s *Server) handleCompileMulti(w http.ResponseWriter, r *http.Request) {
	var snippets []compileSnippet
	if !s.decode(w, r, &snippets) {
		return
	}
	for i, snippet := range snippets {
		if snippet.Code == nil {
			web.WriteError(w, http.StatusBadRequest, "code is required for every item")
			s.logger.Debug("Rejected batch", "item", i)
			return
		}
	}

	results := make([]domain.CompileResult, 0, len(snippets))
	for i, snippet := range snippets {
		result, err := s.opts.Compiler.Compile(r.Context(), domain.CompileRequest{Code: *snippet.Code})
		if err != nil {
			// Only the client leaving ends the batch; any other error fails this item alone.
			if r.Context().Err() != nil {
				s.writeUnavailable(w, r, err)
				return
			}
			s.logger.Warn("Batch item not served", "item", i, "requestID", web.RequestIDFromContext(r.Context()), "error", err)
			result = domain.CompileResult{Output: err.Error()}
		}
		results = append(results, result)
	}
	web.WriteJSON(w, http.StatusOK, results)
}

func (s *Server) writeUnavailable(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) {
		s.logger.Info("Client went away before its run", "requestID", web.RequestIDFromContext(r.Context()))
		return
	}
	s.logger.Error("Compile request not served", "requestID", web.RequestIDFromContext(r.Context()), "error", err)
	web.WriteError(w, http.StatusServiceUnavailable, err.Error())
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	web.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "",
	})
}

func (s *Server) handleCommitHash(w http.ResponseWriter, r *http.Request) {
	web.WriteJSON(w, http.StatusOK, map[string]string{
		"commit_hash": commitHash(),
	})
}

// commitHash reports the VCS revision stamped into the binary, or "0".
func commitHash() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "0"
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && setting.Value != "" {
			return setting.Value
		}
	}
	return "0"
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status": "healthy",
		"mode":   s.opts.Mode,
	}
	if s.opts.Hub != nil {
		resp["pending_jobs"] = s.opts.Hub.Pending()
	}
	web.WriteJSON(w, http.StatusOK, resp)
}
