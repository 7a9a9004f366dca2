package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"retriever/internal/api"
	"retriever/internal/config"
	"retriever/internal/feed"
	"retriever/internal/logging"
	"retriever/internal/metrics"
	"retriever/internal/services"
)

const maxRequestBody = 1 << 20

type apiServer struct {
	bind   string
	token  string
	logger *slog.Logger
	daemon *Daemon

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	return &apiServer{
		bind:   strings.TrimSpace(cfg.API.Bind),
		token:  cfg.API.Token,
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}
}

// routes builds the router. /metrics is served outside the token check so
// scrapers need no credentials.
func (s *apiServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware(s.token))
		r.Get("/status", s.handleStatus)
		r.Get("/overview", s.handleOverview)
		r.Get("/backends", s.handleBackends)
		r.Post("/validate", s.handleValidate)
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.handleSubmit)
			r.Get("/", s.handleList)
			r.Post("/purge", s.handlePurgeFinished)
			r.Get("/{id}", s.handleGet)
			r.Delete("/{id}", s.handlePurge)
			r.Post("/{id}/cancel", s.handleCancel)
			r.Post("/{id}/retry", s.handleRetry)
		})
	})
	return r
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// /api/validate runs whole batches synchronously.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	s.logger.Info("api server listening",
		logging.Event("api_listening"),
		logging.String("address", listener.Addr().String()),
	)
	return nil
}

func (s *apiServer) stop() {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// observe threads the request id into the context and records request
// metrics under the matched route pattern.
func (s *apiServer) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		reqID := middleware.GetReqID(r.Context())
		r = r.WithContext(services.WithScope(r.Context(), services.Scope{RequestID: reqID}))

		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
		s.logger.Debug("api request",
			logging.String("method", r.Method),
			logging.String("route", route),
			logging.Int("status", status),
			logging.Duration("duration", elapsed),
			logging.Correlation(reqID),
		)
	})
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body api.SubmitRequest
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	req, err := body.ToWorkflowRequest()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	job, err := s.daemon.workflow.Submit(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.SubmitResponse{JobID: job.ID, Job: job})
}

func (s *apiServer) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter, err := feed.ParseFilter(query.Get("filter"), query["state"], query.Get("backend"), query.Get("kind"))
	if err != nil {
		s.writeError(w, r, api.InvalidRequest(err.Error()))
		return
	}
	list, err := s.daemon.feed.Jobs(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: list})
}

func (s *apiServer) handleGet(w http.ResponseWriter, r *http.Request) {
	job, err := s.daemon.feed.Job(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	accepted, err := s.daemon.workflow.Cancel(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	job, err := s.daemon.feed.Job(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.CancelResponse{Accepted: accepted, Job: job})
}

func (s *apiServer) handleRetry(w http.ResponseWriter, r *http.Request) {
	job, err := s.daemon.workflow.Retry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *apiServer) handlePurge(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.workflow.Purge(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handlePurgeFinished(w http.ResponseWriter, r *http.Request) {
	var body api.PurgeRequest
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	age, err := time.ParseDuration(strings.TrimSpace(body.OlderThan))
	if err != nil {
		s.writeError(w, r, api.InvalidRequest("older_than: "+err.Error()))
		return
	}
	removed, err := s.daemon.workflow.PurgeFinished(r.Context(), age)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.PurgeResponse{Purged: removed})
}

func (s *apiServer) handleValidate(w http.ResponseWriter, r *http.Request) {
	var body api.ValidateRequest
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	batch, used, err := s.daemon.workflow.ValidateNow(r.Context(), body.Backend, body.Target())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ValidateResponse{Backend: used, Results: batch.Results, Summary: batch.Summary})
}

func (s *apiServer) handleOverview(w http.ResponseWriter, r *http.Request) {
	ov, err := s.daemon.feed.Overview(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ov)
}

func (s *apiServer) handleBackends(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, api.BackendsResponse{Backends: s.daemon.feed.Backends()})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func decodeBody(r *http.Request, dest any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return api.InvalidRequest("request body is empty")
		}
		return api.InvalidRequest("malformed JSON: " + err.Error())
	}
	return nil
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, payload := api.ErrorFrom(err)
	if status >= http.StatusInternalServerError {
		s.logger.Warn("api request failed",
			logging.Event("api_error"),
			logging.String("path", r.URL.Path),
			logging.ErrorKind(payload.Error),
			logging.Error(err),
		)
	}
	s.writeJSON(w, status, payload)
}
